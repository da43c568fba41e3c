package main

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/go-capsicum/go-capsicum/capsicum"
)

const yamlPolicy = `
descriptors:
  - fd: 0
    rights: [read, seek, fstat]
    ioctls: []
  - fd: 1
    rights: [write]
    ioctls: [0x5401, 21523]
    fcntls: [getfl, F_SETFL]
`

const jsoncPolicy = `{
	// stdin is read-only
	"descriptors": [
		{"fd": 0, "rights": ["read", "seek", "fstat"], "ioctls": []},
		{"fd": 1, "rights": ["write"], "ioctls": [21505, 21523], "fcntls": ["getfl", "F_SETFL"],},
	],
}`

func TestParsePolicy(t *testing.T) {
	want := &Policy{Descriptors: []Descriptor{
		{FD: 0, Rights: []string{"read", "seek", "fstat"}, Ioctls: []uint{}},
		{FD: 1, Rights: []string{"write"}, Ioctls: []uint{0x5401, 21523}, Fcntls: []string{"getfl", "F_SETFL"}},
	}}
	for _, tt := range []struct {
		Ext  string
		Data string
	}{
		{".yaml", yamlPolicy},
		{".jsonc", jsoncPolicy},
	} {
		t.Run(tt.Ext, func(t *testing.T) {
			got, err := ParsePolicy([]byte(tt.Data), tt.Ext)
			if err != nil {
				t.Fatalf("ParsePolicy(): %v", err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("ParsePolicy() = %+v, want %+v", got, want)
			}
		})
	}
}

func TestParsePolicyErrors(t *testing.T) {
	for _, tt := range []struct {
		Name    string
		Ext     string
		Data    string
		WantErr error
	}{
		{"BadYAML", ".yaml", "descriptors: [", nil},
		{"BadJSON", ".json", `{"descriptors": 3}`, nil},
		{"UnknownRight", ".yaml", "descriptors: [{fd: 0, rights: [teleport]}]", capsicum.ErrInvalidRights},
		{"UnknownFcntl", ".yaml", "descriptors: [{fd: 0, fcntls: [dupfd]}]", capsicum.ErrInvalidRights},
		{"NegativeFD", ".yaml", "descriptors: [{fd: -1}]", nil},
	} {
		t.Run(tt.Name, func(t *testing.T) {
			_, err := ParsePolicy([]byte(tt.Data), tt.Ext)
			if err == nil {
				t.Fatalf("ParsePolicy(%q) succeeded, want error", tt.Data)
			}
			if tt.WantErr != nil && !errors.Is(err, tt.WantErr) {
				t.Errorf("ParsePolicy(%q) = %v, want %v", tt.Data, err, tt.WantErr)
			}
		})
	}
}

func TestTooManyIoctls(t *testing.T) {
	d := Descriptor{FD: 0, Ioctls: make([]uint, capsicum.IoctlsMaxCount+1)}
	for i := range d.Ioctls {
		d.Ioctls[i] = uint(i)
	}
	if _, err := d.limiters(); !errors.Is(err, capsicum.ErrInvalidRights) {
		t.Errorf("limiters() = %v, want %v", err, capsicum.ErrInvalidRights)
	}
}

func TestLimitedFamilies(t *testing.T) {
	for _, tt := range []struct {
		Name   string
		Policy func(p *Policy) error
		Want   []capsicum.Limiter
	}{
		{
			Name:   "IoctlsOnly",
			Policy: func(p *Policy) error { return p.AddIoctls("0=0x5401") },
			Want:   []capsicum.Limiter{capsicum.MustIoctlRights(0x5401)},
		},
		{
			Name:   "FcntlsOnly",
			Policy: func(p *Policy) error { return p.AddFcntls("0=getfl") },
			Want:   []capsicum.Limiter{capsicum.NewFcntlRights(capsicum.FcntlGetFL)},
		},
		{
			Name:   "NoRights",
			Policy: func(p *Policy) error { return p.AddRights("0=") },
			Want:   []capsicum.Limiter{capsicum.NewFileRights()},
		},
		{
			Name: "RightsAndIoctls",
			Policy: func(p *Policy) error {
				if err := p.AddRights("0=read"); err != nil {
					return err
				}
				return p.AddIoctls("0=")
			},
			Want: []capsicum.Limiter{capsicum.NewFileRights(capsicum.Read), capsicum.MustIoctlRights()},
		},
	} {
		t.Run(tt.Name, func(t *testing.T) {
			p := &Policy{}
			if err := tt.Policy(p); err != nil {
				t.Fatal(err)
			}
			got, err := p.Descriptors[0].limiters()
			if err != nil {
				t.Fatalf("limiters(): %v", err)
			}
			if !reflect.DeepEqual(got, tt.Want) {
				t.Errorf("limiters() = %v, want %v", got, tt.Want)
			}
		})
	}

	p, err := ParsePolicy([]byte("descriptors: [{fd: 3, ioctls: [0x5401]}]"), ".yaml")
	if err != nil {
		t.Fatalf("ParsePolicy(): %v", err)
	}
	got, err := p.Descriptors[0].limiters()
	if err != nil {
		t.Fatalf("limiters(): %v", err)
	}
	if want := []capsicum.Limiter{capsicum.MustIoctlRights(0x5401)}; !reflect.DeepEqual(got, want) {
		t.Errorf("limiters() = %v, want %v", got, want)
	}
}

func TestReadPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yml")
	if err := os.WriteFile(path, []byte(yamlPolicy), 0o600); err != nil {
		t.Fatal(err)
	}
	p, err := ReadPolicy(path)
	if err != nil {
		t.Fatalf("ReadPolicy(): %v", err)
	}
	if len(p.Descriptors) != 2 {
		t.Errorf("ReadPolicy() has %d descriptors, want 2", len(p.Descriptors))
	}

	if _, err := ReadPolicy(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("ReadPolicy(missing) = %v, want %v", err, os.ErrNotExist)
	}
}

func TestFlags(t *testing.T) {
	p := &Policy{}
	for _, tt := range []struct {
		Fn  func(string) error
		Val string
	}{
		{p.AddRights, "0=read,seek"},
		{p.AddRights, "1=write"},
		{p.AddRights, "0=fstat"},
		{p.AddIoctls, "0="},
		{p.AddIoctls, "1=0x5401,21523"},
		{p.AddFcntls, "1=getfl"},
	} {
		if err := tt.Fn(tt.Val); err != nil {
			t.Fatalf("parsing %q: %v", tt.Val, err)
		}
	}
	want := []Descriptor{
		{FD: 0, Rights: []string{"read", "seek", "fstat"}, Ioctls: []uint{}},
		{FD: 1, Rights: []string{"write"}, Ioctls: []uint{0x5401, 21523}, Fcntls: []string{"getfl"}},
	}
	if !reflect.DeepEqual(p.Descriptors, want) {
		t.Errorf("Descriptors = %+v, want %+v", p.Descriptors, want)
	}

	for _, bad := range []string{"read", "x=read", "-1=read"} {
		if err := p.AddRights(bad); err == nil {
			t.Errorf("AddRights(%q) succeeded, want error", bad)
		}
	}
	if err := p.AddIoctls("0=TIOCGETD"); err == nil {
		t.Errorf("AddIoctls(%q) succeeded, want error", "0=TIOCGETD")
	}
}
