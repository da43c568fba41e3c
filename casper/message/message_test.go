package message

import (
	"bytes"
	"errors"
	"slices"
	"strings"
	"testing"
)

func sample() *Message {
	inner := New().
		SetString("name", "inner").
		SetInts("empty", []int64{})
	return New().
		SetInt("int", -42).
		SetInt("big", 1<<62).
		SetString("string", "héllo").
		SetString("emptystring", "").
		SetBool("true", true).
		SetBool("false", false).
		SetBinary("binary", []byte{0, 1, 2, 0xff}).
		SetBinary("nilbinary", nil).
		SetMessage("nested", inner).
		SetMessage("emptynested", New()).
		SetInts("ints", []int64{1, -1, 0}).
		SetStrings("strings", []string{"a", "", "c"}).
		SetBools("bools", []bool{true, false}).
		SetBinaries("binaries", [][]byte{{1}, {}}).
		SetMessages("messages", []*Message{New().SetInt("i", 1), New()}).
		SetMessages("nomessages", nil)
}

func TestRoundTrip(t *testing.T) {
	for _, tt := range []struct {
		Name string
		Msg  *Message
	}{
		{"Empty", New()},
		{"Zero", &Message{}},
		{"AllKinds", sample()},
		{"Deep", chain(MaxDepth)},
		{"DeepArray", arrayChain(MaxDepth)},
	} {
		t.Run(tt.Name, func(t *testing.T) {
			b, err := Encode(tt.Msg)
			if err != nil {
				t.Fatalf("Encode(%v): %v", tt.Msg, err)
			}
			got, err := Decode(b)
			if err != nil {
				t.Fatalf("Decode(Encode(%v)): %v", tt.Msg, err)
			}
			if !got.Equal(tt.Msg) {
				t.Errorf("Decode(Encode(m)) = %v, want %v", got, tt.Msg)
			}
		})
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	a, err := Encode(sample())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for i := 0; i < 10; i++ {
		b, err := Encode(sample())
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if !bytes.Equal(a, b) {
			t.Fatalf("Encode() differs between runs:\n%x\n%x", a, b)
		}
	}
}

// chain returns n messages nested within each other.
func chain(n int) *Message {
	m := New().SetInt("depth", int64(n))
	for i := n - 1; i > 0; i-- {
		m = New().SetInt("depth", int64(i)).SetMessage("next", m)
	}
	return m
}

// arrayChain is like chain, but nests through message arrays.
func arrayChain(n int) *Message {
	m := New()
	for i := n - 1; i > 0; i-- {
		m = New().SetMessages("next", []*Message{m, New()})
	}
	return m
}

func TestEncodeErrors(t *testing.T) {
	cyclic := New()
	cyclic.SetMessage("self", cyclic)

	for _, tt := range []struct {
		Name string
		Msg  *Message
	}{
		{"Nil", nil},
		{"EmptyName", New().SetInt("", 1)},
		{"LongName", New().SetInt(strings.Repeat("n", MaxNameLength+1), 1)},
		{"InvalidUTF8Name", New().SetInt("\xff", 1)},
		{"InvalidUTF8String", New().SetString("s", "\xc3\x28")},
		{"InvalidUTF8InArray", New().SetStrings("s", []string{"ok", "\xff"})},
		{"ZeroValue", New().Set("v", Value{})},
		{"NilNested", New().SetMessage("m", nil)},
		{"NilInArray", New().SetMessages("m", []*Message{New(), nil})},
		{"TooDeep", chain(MaxDepth + 1)},
		{"TooDeepArray", arrayChain(MaxDepth + 1)},
		{"Cycle", cyclic},
	} {
		t.Run(tt.Name, func(t *testing.T) {
			if _, err := Encode(tt.Msg); !errors.Is(err, ErrEncoding) {
				t.Errorf("Encode() = _, %v, want %v", err, ErrEncoding)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	valid, err := Encode(sample())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	tooDeep := New().SetMessage("next", chain(MaxDepth))

	for _, tt := range []struct {
		Name string
		Data []byte
	}{
		{"Empty", nil},
		{"Garbage", []byte{0xff, 0x00}},
		{"NotAMap", []byte{0x01}},
		{"Null", []byte{0xf6}},
		{"Truncated", valid[:len(valid)-1]},
		{"Trailing", append(slices.Clone(valid), 0x00)},
		{"DuplicateName", []byte{0xa2, 0x61, 'a', 0x82, 0x01, 0x00, 0x61, 'a', 0x82, 0x01, 0x01}},
		{"UnknownKind", []byte{0xa1, 0x61, 'a', 0x82, 0x18, 0x63, 0x00}},
		{"InvalidKind", []byte{0xa1, 0x61, 'a', 0x82, 0x00, 0x00}},
		{"KindMismatch", []byte{0xa1, 0x61, 'a', 0x82, 0x01, 0x61, 'x'}},
		{"NullPayload", []byte{0xa1, 0x61, 'a', 0x82, 0x01, 0xf6}},
		{"EmptyName", []byte{0xa1, 0x60, 0x82, 0x01, 0x00}},
		{"ShortValue", []byte{0xa1, 0x61, 'a', 0x81, 0x01}},
		{"InvalidUTF8", []byte{0xa1, 0x61, 'a', 0x82, 0x02, 0x61, 0xff}},
		{"TooDeep", mustEncodeUnchecked(t, tooDeep)},
	} {
		t.Run(tt.Name, func(t *testing.T) {
			if m, err := Decode(tt.Data); !errors.Is(err, ErrDecoding) {
				t.Errorf("Decode(%x) = %v, %v, want %v", tt.Data, m, err, ErrDecoding)
			}
		})
	}
}

// mustEncodeUnchecked encodes m like Encode, but without the depth limit.
func mustEncodeUnchecked(t *testing.T, m *Message) []byte {
	t.Helper()
	w := make(wireMessage)
	for name, v := range m.fields {
		var payload []byte
		var err error
		if v.kind == KindMessage {
			payload = mustEncodeUnchecked(t, v.v.(*Message))
		} else {
			payload, err = encMode.Marshal(v.v)
		}
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		w[name] = wireValue{Kind: v.kind, Payload: payload}
	}
	b, err := encMode.Marshal(w)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return b
}

func TestGetters(t *testing.T) {
	m := sample()

	if got, err := m.GetInt("int"); err != nil || got != -42 {
		t.Errorf("GetInt(%q) = %v, %v, want -42, nil", "int", got, err)
	}
	if got, err := m.GetString("string"); err != nil || got != "héllo" {
		t.Errorf("GetString(%q) = %q, %v, want %q, nil", "string", got, err, "héllo")
	}
	if got, err := m.GetBool("true"); err != nil || !got {
		t.Errorf("GetBool(%q) = %v, %v, want true, nil", "true", got, err)
	}
	if got, err := m.GetMessage("nested"); err != nil || got.Len() != 2 {
		t.Errorf("GetMessage(%q) = %v, %v, want 2 fields", "nested", got, err)
	}
	if got, err := m.GetStrings("strings"); err != nil || !slices.Equal(got, []string{"a", "", "c"}) {
		t.Errorf("GetStrings(%q) = %v, %v", "strings", got, err)
	}
	if got, err := m.GetMessages("messages"); err != nil || len(got) != 2 {
		t.Errorf("GetMessages(%q) = %v, %v, want 2 messages", "messages", got, err)
	}

	if _, err := m.GetInt("missing"); !errors.Is(err, ErrNoField) {
		t.Errorf("GetInt(%q) = _, %v, want %v", "missing", err, ErrNoField)
	}
	if _, err := m.GetString("int"); !errors.Is(err, ErrWrongKind) {
		t.Errorf("GetString(%q) = _, %v, want %v", "int", err, ErrWrongKind)
	}
	var nilMsg *Message
	if _, err := nilMsg.GetInt("int"); !errors.Is(err, ErrNoField) {
		t.Errorf("nil.GetInt() = _, %v, want %v", err, ErrNoField)
	}
}

func TestNamesDeleteLen(t *testing.T) {
	m := New().SetInt("b", 1).SetInt("a", 2).SetInt("c", 3)
	if got, want := m.Names(), []string{"a", "b", "c"}; !slices.Equal(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
	m.Delete("b")
	if m.Len() != 2 || m.Has("b") {
		t.Errorf("after Delete(%q): %v", "b", m)
	}
	m.SetString("a", "replaced")
	if v, _ := m.Get("a"); v.Kind() != KindString {
		t.Errorf("Set() did not replace: %v", m)
	}
	if got, want := m.String(), `{a="replaced", c=3}`; got != want {
		t.Errorf("String() = %s, want %s", got, want)
	}
}

func TestEqual(t *testing.T) {
	var nilMsg *Message
	for _, tt := range []struct {
		Name string
		A, B *Message
		Want bool
	}{
		{"NilEmpty", nilMsg, New(), true},
		{"Same", sample(), sample(), true},
		{"NilVsEmptySlice", New().SetInts("i", nil), New().SetInts("i", []int64{}), true},
		{"DifferentKind", New().SetInt("v", 1), New().SetBool("v", true), false},
		{"DifferentValue", New().SetInt("v", 1), New().SetInt("v", 2), false},
		{"DifferentName", New().SetInt("v", 1), New().SetInt("w", 1), false},
		{"NestedDiffers", New().SetMessage("m", New().SetInt("x", 1)), New().SetMessage("m", New()), false},
		{"ExtraField", New().SetInt("v", 1), New().SetInt("v", 1).SetInt("w", 1), false},
	} {
		t.Run(tt.Name, func(t *testing.T) {
			if got := tt.A.Equal(tt.B); got != tt.Want {
				t.Errorf("%v.Equal(%v) = %v, want %v", tt.A, tt.B, got, tt.Want)
			}
			if got := tt.B.Equal(tt.A); got != tt.Want {
				t.Errorf("%v.Equal(%v) = %v, want %v", tt.B, tt.A, got, tt.Want)
			}
		})
	}
}

func TestClone(t *testing.T) {
	m := sample()
	c := m.Clone()
	if !c.Equal(m) {
		t.Fatalf("Clone() = %v, want %v", c, m)
	}
	b, _ := c.GetBinary("binary")
	b[0] = 0x7f
	n, _ := c.GetMessage("nested")
	n.SetInt("added", 1)
	if !m.Equal(sample()) {
		t.Errorf("modifying a clone changed the original")
	}
}

func TestFrame(t *testing.T) {
	var buf bytes.Buffer
	for _, m := range []*Message{sample(), New(), New().SetString("cmd", "getuid")} {
		if err := WriteFrame(&buf, m); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}
	for _, want := range []*Message{sample(), New(), New().SetString("cmd", "getuid")} {
		got, err := ReadFrame(&buf, DefaultMaxFrameSize)
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if !got.Equal(want) {
			t.Errorf("ReadFrame() = %v, want %v", got, want)
		}
	}
	if buf.Len() != 0 {
		t.Errorf("%d bytes left after reading all frames", buf.Len())
	}
}

func TestFrameTooLarge(t *testing.T) {
	m := New().SetBinary("blob", make([]byte, 100))
	var buf bytes.Buffer
	if err := WriteFrame(&buf, m); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if _, err := ReadFrame(&buf, 50); !errors.Is(err, ErrDecoding) {
		t.Errorf("ReadFrame(limit 50) = _, %v, want %v", err, ErrDecoding)
	}
}
