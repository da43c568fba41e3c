package message

import (
	"fmt"
	"unicode/utf8"

	"github.com/fxamacker/cbor/v2"
)

// Limits enforced by Encode and Decode.
const (
	// MaxDepth is the deepest nesting of messages within messages.
	MaxDepth = 64
	// MaxNameLength is the longest permitted field name, in bytes.
	MaxNameLength = 2048
)

// On the wire, a Message is a CBOR map from field name to a two
// element array [kind, payload]. Nested messages are encoded the same
// way within their payload.
type wireValue struct {
	_       struct{} `cbor:",toarray"`
	Kind    Kind
	Payload cbor.RawMessage
}

type wireMessage map[string]wireValue

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// Empty arrays must decode as empty arrays, not as missing values.
	encOptions.NilContainers = cbor.NilContainerAsEmpty
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("message: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
		MaxNestedLevels: 3*MaxDepth + 8,
		UTF8:            cbor.UTF8RejectInvalid,
	}.DecMode()
	if err != nil {
		panic("message: CBOR decoder initialization failed: " + err.Error())
	}
}

// Encode returns the wire form of m.
//
// Encoding fails with ErrEncoding if a field name is empty, too long
// or not valid UTF-8, if a string is not valid UTF-8, if a value is
// the zero Value or a nil nested Message, or if messages are nested
// deeper than MaxDepth. The last check also rejects cyclic messages.
func Encode(m *Message) ([]byte, error) {
	w, err := toWire(m, 0)
	if err != nil {
		return nil, err
	}
	b, err := encMode.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return b, nil
}

func encodingErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrEncoding, fmt.Sprintf(format, args...))
}

func checkName(name string) error {
	switch {
	case name == "":
		return encodingErrorf("empty field name")
	case len(name) > MaxNameLength:
		return encodingErrorf("field name of %d bytes exceeds %d", len(name), MaxNameLength)
	case !utf8.ValidString(name):
		return encodingErrorf("field name %q is not valid UTF-8", name)
	}
	return nil
}

func toWire(m *Message, depth int) (wireMessage, error) {
	if m == nil {
		return nil, encodingErrorf("nil message")
	}
	if depth >= MaxDepth {
		return nil, encodingErrorf("messages nested deeper than %d", MaxDepth)
	}
	w := make(wireMessage, m.Len())
	for name, v := range m.fields {
		if err := checkName(name); err != nil {
			return nil, err
		}
		payload, err := payloadOf(v, depth)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		raw, err := encMode.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w: %v", name, ErrEncoding, err)
		}
		w[name] = wireValue{Kind: v.kind, Payload: raw}
	}
	return w, nil
}

// payloadOf returns the Go value to encode as the payload of v.
func payloadOf(v Value, depth int) (any, error) {
	switch v.kind {
	case KindInvalid:
		return nil, encodingErrorf("invalid value")
	case KindString:
		if s := v.v.(string); !utf8.ValidString(s) {
			return nil, encodingErrorf("string %q is not valid UTF-8", s)
		}
	case KindStringArray:
		for _, s := range v.v.([]string) {
			if !utf8.ValidString(s) {
				return nil, encodingErrorf("string %q is not valid UTF-8", s)
			}
		}
	case KindMessage:
		return toWire(v.v.(*Message), depth+1)
	case KindMessageArray:
		ms := v.v.([]*Message)
		ws := make([]wireMessage, len(ms))
		for i, n := range ms {
			w, err := toWire(n, depth+1)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			ws[i] = w
		}
		return ws, nil
	}
	return v.v, nil
}

// Decode parses the wire form of a Message.
//
// Decoding fails with ErrDecoding on malformed CBOR, trailing data,
// duplicate field names, unknown kinds, payloads that do not match
// their kind, and messages nested deeper than MaxDepth.
func Decode(data []byte) (*Message, error) {
	return decodeMessage(data, 0)
}

func decodingErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDecoding, fmt.Sprintf(format, args...))
}

func decodeMessage(data []byte, depth int) (*Message, error) {
	if depth >= MaxDepth {
		return nil, decodingErrorf("messages nested deeper than %d", MaxDepth)
	}
	var w wireMessage
	if err := decMode.Unmarshal(data, &w); err != nil {
		return nil, decodingErrorf("%v", err)
	}
	if w == nil {
		return nil, decodingErrorf("not a message")
	}
	m := New()
	for name, wv := range w {
		if name == "" || len(name) > MaxNameLength {
			return nil, decodingErrorf("invalid field name %q", name)
		}
		v, err := decodeValue(wv, depth)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		m.Set(name, v)
	}
	return m, nil
}

func unmarshalPayload[T any](payload []byte) (T, error) {
	var v T
	if len(payload) == 0 || payload[0] == 0xf6 || payload[0] == 0xf7 {
		return v, decodingErrorf("missing payload")
	}
	if err := decMode.Unmarshal(payload, &v); err != nil {
		return v, decodingErrorf("%v", err)
	}
	return v, nil
}

func decodeValue(wv wireValue, depth int) (Value, error) {
	switch wv.Kind {
	case KindInt:
		i, err := unmarshalPayload[int64](wv.Payload)
		return Int(i), err
	case KindString:
		s, err := unmarshalPayload[string](wv.Payload)
		return String(s), err
	case KindBool:
		b, err := unmarshalPayload[bool](wv.Payload)
		return Bool(b), err
	case KindBinary:
		b, err := unmarshalPayload[[]byte](wv.Payload)
		return Binary(b), err
	case KindMessage:
		n, err := decodeMessage(wv.Payload, depth+1)
		return Nested(n), err
	case KindIntArray:
		is, err := unmarshalPayload[[]int64](wv.Payload)
		return Ints(is), err
	case KindStringArray:
		ss, err := unmarshalPayload[[]string](wv.Payload)
		return Strings(ss), err
	case KindBoolArray:
		bs, err := unmarshalPayload[[]bool](wv.Payload)
		return Bools(bs), err
	case KindBinaryArray:
		bs, err := unmarshalPayload[[][]byte](wv.Payload)
		return Binaries(bs), err
	case KindMessageArray:
		raws, err := unmarshalPayload[[]cbor.RawMessage](wv.Payload)
		if err != nil {
			return Value{}, err
		}
		ms := make([]*Message, len(raws))
		for i, raw := range raws {
			if ms[i], err = decodeMessage(raw, depth+1); err != nil {
				return Value{}, fmt.Errorf("element %d: %w", i, err)
			}
		}
		return Messages(ms), nil
	default:
		return Value{}, decodingErrorf("unknown kind %d", uint8(wv.Kind))
	}
}
