package casper

import (
	"errors"
	"fmt"

	"github.com/go-capsicum/go-capsicum/casper/message"
)

// ErrNotFound is returned by lookup services when the broker found no
// matching entry.
var ErrNotFound = errors.New("no such entry")

// Service describes a named broker service together with the shape of
// its requests and responses. Implement Service to add typed access to
// a service this package does not know; Passthrough covers untyped
// access.
type Service[Req, Resp any] interface {
	// Name returns the name the service is registered under.
	Name() string
	// BuildRequest returns the message sent for req. It must set the
	// "cmd" field.
	BuildRequest(req Req) (*message.Message, error)
	// ParseResponse extracts the result from a successful response.
	ParseResponse(resp *message.Message) (Resp, error)
}

// Client is a Session bound to a Service.
type Client[Req, Resp any] struct {
	*Session
	svc Service[Req, Resp]
}

// OpenService opens a session to svc on ch.
func OpenService[Req, Resp any](ch *Channel, svc Service[Req, Resp]) (*Client[Req, Resp], error) {
	s, err := ch.Open(svc.Name())
	if err != nil {
		return nil, err
	}
	return &Client[Req, Resp]{Session: s, svc: svc}, nil
}

// Call sends req and returns the parsed response.
func (c *Client[Req, Resp]) Call(req Req) (Resp, error) {
	return Call(c.Session, c.svc, req)
}

// Call performs one typed exchange with svc over s. The session must
// have been opened for svc.
func Call[Req, Resp any](s *Session, svc Service[Req, Resp], req Req) (Resp, error) {
	var zero Resp
	if s.Name() != svc.Name() {
		return zero, fmt.Errorf("session for %q cannot serve %q", s.Name(), svc.Name())
	}
	m, err := svc.BuildRequest(req)
	if err != nil {
		return zero, err
	}
	resp, err := s.Call(m)
	if err != nil {
		return zero, err
	}
	return svc.ParseResponse(resp)
}

func parseErr(svc string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrProtocol, svc, err)
}

// UID is the "getuid" service, which reports the user ID of the
// broker. It refuses to answer once any limits are set.
type UID struct{}

func (UID) Name() string { return "getuid" }

func (UID) BuildRequest(struct{}) (*message.Message, error) {
	return message.New().SetString("cmd", "getuid"), nil
}

func (UID) ParseResponse(resp *message.Message) (int, error) {
	uid, err := resp.GetInt("uid")
	if err != nil {
		return 0, parseErr("getuid", err)
	}
	return int(uid), nil
}

// PasswdQuery selects a password database entry by name or, if Name
// is empty, by UID.
type PasswdQuery struct {
	Name string
	UID  int
}

// PasswdEntry is an entry of the password database.
type PasswdEntry struct {
	Name     string
	Password string
	UID      int
	GID      int
	Change   int64
	Class    string
	Gecos    string
	Dir      string
	Shell    string
	Expire   int64
}

// Passwd is the "system.pwd" service, which looks up the password
// database. Lookups without a match fail with ErrNotFound.
type Passwd struct{}

func (Passwd) Name() string { return "system.pwd" }

func (Passwd) BuildRequest(q PasswdQuery) (*message.Message, error) {
	if q.Name != "" {
		return message.New().SetString("cmd", "getpwnam").SetString("name", q.Name), nil
	}
	if q.UID < 0 {
		return nil, fmt.Errorf("system.pwd: negative uid %d", q.UID)
	}
	return message.New().SetString("cmd", "getpwuid").SetInt("uid", int64(q.UID)), nil
}

func (Passwd) ParseResponse(resp *message.Message) (*PasswdEntry, error) {
	if !resp.Has("pw_name") {
		return nil, ErrNotFound
	}
	p := fieldParser{m: resp}
	e := &PasswdEntry{
		Name:     p.str("pw_name"),
		Password: p.str("pw_passwd"),
		UID:      int(p.num("pw_uid")),
		GID:      int(p.num("pw_gid")),
		Change:   p.num("pw_change"),
		Class:    p.str("pw_class"),
		Gecos:    p.str("pw_gecos"),
		Dir:      p.str("pw_dir"),
		Shell:    p.str("pw_shell"),
		Expire:   p.num("pw_expire"),
	}
	if p.err != nil {
		return nil, parseErr("system.pwd", p.err)
	}
	return e, nil
}

// fieldParser reads optional fields, remembering the first field that
// is present with the wrong kind.
type fieldParser struct {
	m   *message.Message
	err error
}

func (p *fieldParser) str(name string) string {
	s, err := p.m.GetString(name)
	p.note(err)
	return s
}

func (p *fieldParser) num(name string) int64 {
	i, err := p.m.GetInt(name)
	p.note(err)
	return i
}

func (p *fieldParser) note(err error) {
	if p.err == nil && err != nil && !errors.Is(err, message.ErrNoField) {
		p.err = err
	}
}

// DefaultSysctlSize is the size of the buffer Sysctl asks the broker
// to fill when MaxSize is not set.
const DefaultSysctlSize = 4096

const sysctlRead = 0x01

// Sysctl is the "system.sysctl" service, which reads kernel state by
// MIB name. The response is the raw value.
type Sysctl struct {
	// MaxSize bounds the size of the returned value. Defaults to
	// DefaultSysctlSize.
	MaxSize int
}

func (Sysctl) Name() string { return "system.sysctl" }

func (s Sysctl) BuildRequest(name string) (*message.Message, error) {
	if name == "" {
		return nil, errors.New("system.sysctl: empty name")
	}
	size := s.MaxSize
	if size <= 0 {
		size = DefaultSysctlSize
	}
	return message.New().
		SetString("cmd", "sysctl").
		SetString("name", name).
		SetInt("operation", sysctlRead).
		SetInt("oldlen", int64(size)), nil
}

func (Sysctl) ParseResponse(resp *message.Message) ([]byte, error) {
	b, err := resp.GetBinary("oldp")
	if err != nil {
		return nil, parseErr("system.sysctl", err)
	}
	return b, nil
}

// Passthrough gives untyped access to any service. Requests are sent
// as given, with "cmd" set to Command; responses are returned whole.
// The request may be nil and is not modified.
type Passthrough struct {
	Service string
	Command string
}

func (p Passthrough) Name() string { return p.Service }

func (p Passthrough) BuildRequest(args *message.Message) (*message.Message, error) {
	if p.Command == "" {
		return nil, fmt.Errorf("%s: empty command", p.Service)
	}
	return args.Clone().SetString("cmd", p.Command), nil
}

func (Passthrough) ParseResponse(resp *message.Message) (*message.Message, error) {
	return resp, nil
}
