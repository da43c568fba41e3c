// Package message implements the structured messages exchanged with
// the Casper broker.
//
// A Message maps names to typed values: integers, strings, booleans,
// binary blobs, nested messages, and homogeneous arrays of each of
// these. Services look fields up by name and kind, never by position.
package message

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
)

var (
	// ErrEncoding is returned when a Message cannot be represented on
	// the wire.
	ErrEncoding = errors.New("message encoding failed")
	// ErrDecoding is returned for malformed wire data.
	ErrDecoding = errors.New("message decoding failed")
	// ErrNoField is returned by getters when the named field is absent.
	ErrNoField = errors.New("no such field")
	// ErrWrongKind is returned by getters when the named field holds a
	// value of another kind.
	ErrWrongKind = errors.New("field has wrong kind")
)

// Kind identifies the type of a Value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt
	KindString
	KindBool
	KindBinary
	KindMessage
	KindIntArray
	KindStringArray
	KindBoolArray
	KindBinaryArray
	KindMessageArray
)

var kindNames = [...]string{
	KindInvalid:      "invalid",
	KindInt:          "int",
	KindString:       "string",
	KindBool:         "bool",
	KindBinary:       "binary",
	KindMessage:      "message",
	KindIntArray:     "[]int",
	KindStringArray:  "[]string",
	KindBoolArray:    "[]bool",
	KindBinaryArray:  "[]binary",
	KindMessageArray: "[]message",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Value is a single typed message field. The zero Value is invalid
// and cannot be encoded.
type Value struct {
	kind Kind
	v    any
}

func Int(i int64) Value { return Value{KindInt, i} }
func String(s string) Value { return Value{KindString, s} }
func Bool(b bool) Value { return Value{KindBool, b} }
func Binary(b []byte) Value { return Value{KindBinary, b} }
func Nested(m *Message) Value { return Value{KindMessage, m} }
func Ints(is []int64) Value { return Value{KindIntArray, is} }
func Strings(ss []string) Value { return Value{KindStringArray, ss} }
func Bools(bs []bool) Value { return Value{KindBoolArray, bs} }
func Binaries(bs [][]byte) Value { return Value{KindBinaryArray, bs} }
func Messages(ms []*Message) Value { return Value{KindMessageArray, ms} }

// Kind returns the kind of v.
func (v Value) Kind() Kind {
	return v.kind
}

// Interface returns the Go value held by v: an int64, string, bool,
// []byte, *Message, or a slice of one of these.
func (v Value) Interface() any {
	return v.v
}

// Equal reports whether v and w hold the same kind and contents.
// Nil and empty slices are equal.
func (v Value) Equal(w Value) bool {
	if v.kind != w.kind {
		return false
	}
	switch v.kind {
	case KindInvalid:
		return true
	case KindBinary:
		return bytes.Equal(v.v.([]byte), w.v.([]byte))
	case KindMessage:
		return v.v.(*Message).Equal(w.v.(*Message))
	case KindIntArray:
		return slices.Equal(v.v.([]int64), w.v.([]int64))
	case KindStringArray:
		return slices.Equal(v.v.([]string), w.v.([]string))
	case KindBoolArray:
		return slices.Equal(v.v.([]bool), w.v.([]bool))
	case KindBinaryArray:
		return slices.EqualFunc(v.v.([][]byte), w.v.([][]byte), bytes.Equal)
	case KindMessageArray:
		return slices.EqualFunc(v.v.([]*Message), w.v.([]*Message), (*Message).Equal)
	default:
		return v.v == w.v
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindInvalid:
		return "<invalid>"
	case KindString:
		return fmt.Sprintf("%q", v.v)
	case KindBinary:
		return fmt.Sprintf("%x", v.v)
	default:
		return fmt.Sprint(v.v)
	}
}

// Message is a set of named values. The zero Message is empty and
// ready to use.
type Message struct {
	fields map[string]Value
}

// New returns an empty Message.
func New() *Message {
	return &Message{}
}

// Set stores v under name, replacing any previous value.
func (m *Message) Set(name string, v Value) *Message {
	if m.fields == nil {
		m.fields = make(map[string]Value)
	}
	m.fields[name] = v
	return m
}

func (m *Message) SetInt(name string, i int64) *Message { return m.Set(name, Int(i)) }
func (m *Message) SetString(name, s string) *Message { return m.Set(name, String(s)) }
func (m *Message) SetBool(name string, b bool) *Message { return m.Set(name, Bool(b)) }
func (m *Message) SetBinary(name string, b []byte) *Message { return m.Set(name, Binary(b)) }
func (m *Message) SetMessage(name string, n *Message) *Message { return m.Set(name, Nested(n)) }
func (m *Message) SetInts(name string, is []int64) *Message { return m.Set(name, Ints(is)) }
func (m *Message) SetStrings(name string, ss []string) *Message {
	return m.Set(name, Strings(ss))
}
func (m *Message) SetBools(name string, bs []bool) *Message { return m.Set(name, Bools(bs)) }
func (m *Message) SetBinaries(name string, bs [][]byte) *Message { return m.Set(name, Binaries(bs)) }
func (m *Message) SetMessages(name string, ms []*Message) *Message { return m.Set(name, Messages(ms)) }

// Get returns the value stored under name.
func (m *Message) Get(name string) (Value, bool) {
	if m == nil {
		return Value{}, false
	}
	v, ok := m.fields[name]
	return v, ok
}

// Has reports whether m has a field with the given name.
func (m *Message) Has(name string) bool {
	_, ok := m.Get(name)
	return ok
}

// Delete removes the named field from m.
func (m *Message) Delete(name string) {
	if m != nil {
		delete(m.fields, name)
	}
}

// Len returns the number of fields in m.
func (m *Message) Len() int {
	if m == nil {
		return 0
	}
	return len(m.fields)
}

// Names returns the field names of m in sorted order.
func (m *Message) Names() []string {
	if m == nil {
		return nil
	}
	names := make([]string, 0, len(m.fields))
	for n := range m.fields {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func get[T any](m *Message, name string, kind Kind) (T, error) {
	var zero T
	v, ok := m.Get(name)
	if !ok {
		return zero, fmt.Errorf("%q: %w", name, ErrNoField)
	}
	if v.kind != kind {
		return zero, fmt.Errorf("%q is %v, not %v: %w", name, v.kind, kind, ErrWrongKind)
	}
	return v.v.(T), nil
}

func (m *Message) GetInt(name string) (int64, error) { return get[int64](m, name, KindInt) }
func (m *Message) GetString(name string) (string, error) { return get[string](m, name, KindString) }
func (m *Message) GetBool(name string) (bool, error) { return get[bool](m, name, KindBool) }
func (m *Message) GetBinary(name string) ([]byte, error) { return get[[]byte](m, name, KindBinary) }
func (m *Message) GetMessage(name string) (*Message, error) {
	return get[*Message](m, name, KindMessage)
}
func (m *Message) GetInts(name string) ([]int64, error) { return get[[]int64](m, name, KindIntArray) }
func (m *Message) GetStrings(name string) ([]string, error) {
	return get[[]string](m, name, KindStringArray)
}
func (m *Message) GetBools(name string) ([]bool, error) { return get[[]bool](m, name, KindBoolArray) }
func (m *Message) GetBinaries(name string) ([][]byte, error) {
	return get[[][]byte](m, name, KindBinaryArray)
}
func (m *Message) GetMessages(name string) ([]*Message, error) {
	return get[[]*Message](m, name, KindMessageArray)
}

// Equal reports whether m and other have the same fields with equal
// values. A nil Message equals an empty one.
func (m *Message) Equal(other *Message) bool {
	if m.Len() != other.Len() {
		return false
	}
	if m.Len() == 0 {
		return true
	}
	for name, v := range m.fields {
		w, ok := other.fields[name]
		if !ok || !v.Equal(w) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of m.
func (m *Message) Clone() *Message {
	c := New()
	for _, name := range m.Names() {
		c.Set(name, cloneValue(m.fields[name]))
	}
	return c
}

func cloneValue(v Value) Value {
	switch v.kind {
	case KindBinary:
		return Binary(bytes.Clone(v.v.([]byte)))
	case KindMessage:
		return Nested(v.v.(*Message).Clone())
	case KindIntArray:
		return Ints(slices.Clone(v.v.([]int64)))
	case KindStringArray:
		return Strings(slices.Clone(v.v.([]string)))
	case KindBoolArray:
		return Bools(slices.Clone(v.v.([]bool)))
	case KindBinaryArray:
		bs := v.v.([][]byte)
		c := make([][]byte, len(bs))
		for i, b := range bs {
			c[i] = bytes.Clone(b)
		}
		return Binaries(c)
	case KindMessageArray:
		ms := v.v.([]*Message)
		c := make([]*Message, len(ms))
		for i, n := range ms {
			c[i] = n.Clone()
		}
		return Messages(c)
	default:
		return v
	}
}

// String formats m for debugging, as {name=value, ...} in name order.
func (m *Message) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, name := range m.Names() {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%v", name, m.fields[name])
	}
	b.WriteByte('}')
	return b.String()
}
