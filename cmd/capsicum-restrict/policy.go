package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/go-capsicum/go-capsicum/capsicum"
)

// Policy lists the limits to place on inherited descriptors.
//
// In YAML:
//
//	descriptors:
//	  - fd: 0
//	    rights: [read, seek, fstat]
//	    ioctls: []
//	    fcntls: [getfl]
type Policy struct {
	Descriptors []Descriptor `yaml:"descriptors" json:"descriptors"`
}

// Descriptor holds the limits for one descriptor. A nil Rights, Ioctls
// or Fcntls leaves that family unrestricted; an empty one denies it.
type Descriptor struct {
	FD     int      `yaml:"fd" json:"fd"`
	Rights []string `yaml:"rights" json:"rights"`
	Ioctls []uint   `yaml:"ioctls" json:"ioctls"`
	Fcntls []string `yaml:"fcntls" json:"fcntls"`
}

// ReadPolicy reads a policy file. Files ending in .json or .jsonc are
// JSON with comments and trailing commas permitted; anything else is
// YAML.
func ReadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := ParsePolicy(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// ParsePolicy parses a policy in the format given by its file
// extension.
func ParsePolicy(data []byte, ext string) (*Policy, error) {
	var p Policy
	switch ext {
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &p); err != nil {
			return nil, fmt.Errorf("parsing policy: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parsing policy: %w", err)
		}
	}
	for _, d := range p.Descriptors {
		if _, err := d.limiters(); err != nil {
			return nil, fmt.Errorf("fd %d: %w", d.FD, err)
		}
	}
	return &p, nil
}

func (d Descriptor) limiters() ([]capsicum.Limiter, error) {
	if d.FD < 0 {
		return nil, fmt.Errorf("invalid descriptor number %d", d.FD)
	}

	var limiters []capsicum.Limiter
	if d.Rights != nil {
		var rights []capsicum.Right
		for _, name := range d.Rights {
			r, err := capsicum.ParseRight(name)
			if err != nil {
				return nil, err
			}
			rights = append(rights, r)
		}
		limiters = append(limiters, capsicum.NewFileRights(rights...))
	}
	if d.Ioctls != nil {
		ir, err := capsicum.NewIoctlRights(d.Ioctls...)
		if err != nil {
			return nil, err
		}
		limiters = append(limiters, ir)
	}
	if d.Fcntls != nil {
		var fcntls []capsicum.FcntlRight
		for _, name := range d.Fcntls {
			r, err := capsicum.ParseFcntlRight(name)
			if err != nil {
				return nil, err
			}
			fcntls = append(fcntls, r)
		}
		limiters = append(limiters, capsicum.NewFcntlRights(fcntls...))
	}
	return limiters, nil
}

// Apply limits each descriptor in turn.
func (p *Policy) Apply() error {
	for _, d := range p.Descriptors {
		limiters, err := d.limiters()
		if err != nil {
			return fmt.Errorf("fd %d: %w", d.FD, err)
		}
		if err := capsicum.LimitFD(d.FD, limiters...); err != nil {
			return err
		}
	}
	return nil
}

// descriptor returns the entry for fd, adding it if needed.
func (p *Policy) descriptor(fd int) *Descriptor {
	for i := range p.Descriptors {
		if p.Descriptors[i].FD == fd {
			return &p.Descriptors[i]
		}
	}
	p.Descriptors = append(p.Descriptors, Descriptor{FD: fd})
	return &p.Descriptors[len(p.Descriptors)-1]
}

// splitFlag splits a flag value of the form FD=A,B,C.
func splitFlag(val string) (int, []string, error) {
	fdStr, list, ok := strings.Cut(val, "=")
	if !ok {
		return 0, nil, fmt.Errorf("%q: want FD=LIST", val)
	}
	fd, err := strconv.Atoi(fdStr)
	if err != nil || fd < 0 {
		return 0, nil, fmt.Errorf("%q: invalid descriptor number %q", val, fdStr)
	}
	items := []string{}
	for _, s := range strings.Split(list, ",") {
		if s = strings.TrimSpace(s); s != "" {
			items = append(items, s)
		}
	}
	return fd, items, nil
}

// AddRights handles --fd FD=RIGHT,...
func (p *Policy) AddRights(val string) error {
	fd, names, err := splitFlag(val)
	if err != nil {
		return err
	}
	d := p.descriptor(fd)
	if d.Rights == nil {
		d.Rights = []string{}
	}
	d.Rights = append(d.Rights, names...)
	return nil
}

// AddIoctls handles --ioctls FD=CMD,... where commands may be given
// in decimal, octal or hex.
func (p *Policy) AddIoctls(val string) error {
	fd, items, err := splitFlag(val)
	if err != nil {
		return err
	}
	d := p.descriptor(fd)
	if d.Ioctls == nil {
		d.Ioctls = []uint{}
	}
	for _, s := range items {
		cmd, err := strconv.ParseUint(s, 0, 0)
		if err != nil {
			return fmt.Errorf("%q: invalid ioctl command %q", val, s)
		}
		d.Ioctls = append(d.Ioctls, uint(cmd))
	}
	return nil
}

// AddFcntls handles --fcntls FD=NAME,...
func (p *Policy) AddFcntls(val string) error {
	fd, names, err := splitFlag(val)
	if err != nil {
		return err
	}
	d := p.descriptor(fd)
	if d.Fcntls == nil {
		d.Fcntls = []string{}
	}
	d.Fcntls = append(d.Fcntls, names...)
	return nil
}
