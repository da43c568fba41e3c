package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-capsicum/go-capsicum/casper/message"
)

// parseArgs builds a request from arguments of the form NAME=VALUE or
// NAME:KIND=VALUE, where KIND is one of string (the default), int,
// bool or binary (hex). Repeating a name with a []-suffixed kind, as in
// cmds:[]string=a, appends to an array.
func parseArgs(args []string) (*message.Message, error) {
	m := message.New()
	for _, arg := range args {
		key, val, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("argument %q: want NAME=VALUE", arg)
		}
		name, kind, _ := strings.Cut(key, ":")
		if name == "" {
			return nil, fmt.Errorf("argument %q: empty name", arg)
		}
		if err := setArg(m, name, kind, val); err != nil {
			return nil, fmt.Errorf("argument %q: %w", arg, err)
		}
	}
	return m, nil
}

func setArg(m *message.Message, name, kind, val string) error {
	switch kind {
	case "", "string":
		m.SetString(name, val)
	case "int":
		i, err := strconv.ParseInt(val, 0, 64)
		if err != nil {
			return err
		}
		m.SetInt(name, i)
	case "bool":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return err
		}
		m.SetBool(name, b)
	case "binary":
		b, err := hex.DecodeString(val)
		if err != nil {
			return err
		}
		m.SetBinary(name, b)
	case "[]string":
		ss, _ := m.GetStrings(name)
		m.SetStrings(name, append(ss, val))
	case "[]int":
		i, err := strconv.ParseInt(val, 0, 64)
		if err != nil {
			return err
		}
		is, _ := m.GetInts(name)
		m.SetInts(name, append(is, i))
	default:
		return fmt.Errorf("unknown kind %q", kind)
	}
	return nil
}

// plain converts m to maps and slices for printing. Binary values
// become hex strings.
func plain(m *message.Message) map[string]any {
	out := make(map[string]any, m.Len())
	for _, name := range m.Names() {
		v, _ := m.Get(name)
		out[name] = plainValue(v)
	}
	return out
}

func plainValue(v message.Value) any {
	switch x := v.Interface().(type) {
	case []byte:
		return hex.EncodeToString(x)
	case [][]byte:
		ss := make([]string, len(x))
		for i, b := range x {
			ss[i] = hex.EncodeToString(b)
		}
		return ss
	case *message.Message:
		return plain(x)
	case []*message.Message:
		ms := make([]map[string]any, len(x))
		for i, n := range x {
			ms[i] = plain(n)
		}
		return ms
	default:
		return x
	}
}
