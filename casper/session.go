package casper

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/go-capsicum/go-capsicum/casper/internal/wire"
	"github.com/go-capsicum/go-capsicum/casper/message"
)

// Session commands understood by every service.
const (
	cmdLimitSet = "limit_set"
	cmdLimitGet = "limit_get"
)

// Session is a connection to a single service, opened with
// Channel.Open. A Session carries at most one request at a time.
//
// Sessions are safe for concurrent use in the sense that violations
// of the one-request rule are reported as ErrSessionBusy instead of
// being queued. Concurrent callers should use separate sessions.
type Session struct {
	name string
	ch   *Channel
	log  *slog.Logger

	conn *wire.Conn // not guarded by mu; see pending and receiving

	mu        sync.Mutex
	pending   bool // a request was sent and its response not yet received
	receiving bool
	closed    bool
	broken    bool // conn was shut down after a failed send or receive
}

// Name returns the name of the service.
func (s *Session) Name() string {
	return s.name
}

// Send sends a request to the service. It fails with ErrSessionBusy
// if the response to the previous request has not been received.
func (s *Session) Send(req *message.Message) error {
	s.mu.Lock()
	switch {
	case s.closed || s.broken:
		s.mu.Unlock()
		return ErrClosed
	case s.pending:
		s.mu.Unlock()
		s.log.Debug("request rejected", "error", ErrSessionBusy)
		return ErrSessionBusy
	}
	s.pending = true
	s.mu.Unlock()

	if err := s.conn.Send(req); err != nil {
		if errors.Is(err, message.ErrEncoding) {
			s.mu.Lock()
			s.pending = false
			s.mu.Unlock()
			return err
		}
		s.breakConn(err)
		return connErr("send", err)
	}
	return nil
}

// Receive returns the response to the pending request. It fails with
// ErrNoRequest if no request was sent.
//
// Receive returns the response as sent by the service, including its
// "error" field; see Call for a variant that checks it.
//
// If the response cannot be read the session is unusable: later
// requests fail with ErrClosed.
func (s *Session) Receive() (*message.Message, error) {
	s.mu.Lock()
	switch {
	case s.closed || s.broken:
		s.mu.Unlock()
		return nil, ErrClosed
	case !s.pending:
		s.mu.Unlock()
		return nil, ErrNoRequest
	case s.receiving:
		s.mu.Unlock()
		return nil, ErrSessionBusy
	}
	s.receiving = true
	s.mu.Unlock()

	resp, files, err := s.conn.Receive()
	wire.CloseFiles(files)
	if err != nil {
		s.breakConn(err)
		return nil, connErr("receive", err)
	}

	s.mu.Lock()
	s.receiving = false
	s.pending = false
	s.mu.Unlock()
	return resp, nil
}

// Call sends req and waits for the response. A response with a
// non-zero "error" field is returned as a *CommandError.
func (s *Session) Call(req *message.Message) (*message.Message, error) {
	if err := s.Send(req); err != nil {
		return nil, err
	}
	resp, err := s.Receive()
	if err != nil {
		return nil, err
	}
	errno, err := resp.GetInt("error")
	if err != nil {
		return nil, errors.Join(ErrProtocol, err)
	}
	if errno != 0 {
		cmd, _ := req.GetString("cmd")
		err := &CommandError{Service: s.name, Command: cmd, Errno: unix.Errno(errno)}
		s.log.Debug("command failed", "command", cmd, "error", err)
		return nil, err
	}
	return resp, nil
}

// Command calls the service with the given command name and
// arguments. args may be nil, and is not modified.
func (s *Session) Command(cmd string, args *message.Message) (*message.Message, error) {
	return Call(s, Passthrough{Service: s.name, Command: cmd}, args)
}

// LimitSet restricts what the service will do for this session. The
// contents of limits are service-defined. Services refuse limits
// that are wider than the ones already in place.
func (s *Session) LimitSet(limits *message.Message) error {
	if limits == nil {
		limits = message.New()
	}
	_, err := s.Command(cmdLimitSet, message.New().SetMessage("limits", limits))
	return err
}

// LimitGet returns the limits in place for this session. The result
// is empty if no limits were set.
func (s *Session) LimitGet() (*message.Message, error) {
	resp, err := s.Command(cmdLimitGet, nil)
	if err != nil {
		return nil, err
	}
	if !resp.Has("limits") {
		return message.New(), nil
	}
	limits, err := resp.GetMessage("limits")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	return limits, nil
}

// Close closes the session. Closing an already closed session is a
// no-op.
func (s *Session) Close() error {
	if !s.markClosed() {
		return nil
	}
	s.ch.forget(s)
	s.log.Debug("session closed")
	if s.isBroken() {
		return nil
	}
	return s.conn.Close()
}

func (s *Session) isBroken() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.broken
}

func (s *Session) markClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	return true
}

// breakConn shuts down the connection after a failed send or receive,
// which may leave the stream in the middle of a frame. Later requests
// fail with ErrClosed; Close must still be called to release the
// session.
func (s *Session) breakConn(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = false
	s.receiving = false
	if s.closed || s.broken {
		return
	}
	s.broken = true
	s.conn.Close()
	s.log.Debug("session broken", "error", err)
}

// closeConn is called by the owning Channel when it is closed.
func (s *Session) closeConn() {
	if s.markClosed() && !s.isBroken() {
		s.conn.Close()
	}
}
