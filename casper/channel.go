// Package casper is a client for the Casper broker, which performs
// operations on behalf of a process in capability mode.
//
// A process obtains a Channel to the broker before or after entering
// capability mode, usually from a descriptor set up by its launcher
// (see Connect). From the Channel it opens Sessions to named services.
// Each Session carries one request at a time: a response must be
// received before the next request is sent. Independent work uses
// independent Sessions or cloned Channels.
//
// Example:
//
//	ch, err := casper.Connect()
//	if err != nil {
//	    log.Fatalf("casper.Connect(): %v", err)
//	}
//	defer ch.Close()
//	if err := capsicum.Enter(); err != nil {
//	    log.Fatalf("capsicum.Enter(): %v", err)
//	}
//	uid, err := casper.OpenService(ch, casper.UID{})
//	...
//	n, err := uid.Call(struct{}{})
package casper

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/go-capsicum/go-capsicum/casper/internal/wire"
	"github.com/go-capsicum/go-capsicum/casper/message"
)

// Channel commands understood by the broker.
const (
	cmdOpen  = "open"
	cmdClone = "clone"
)

// Channel is a connection to the broker. Its methods are safe for
// concurrent use; channel commands are serialized.
type Channel struct {
	cfg Config
	log *slog.Logger

	mu       sync.Mutex
	conn     *wire.Conn
	sessions map[*Session]struct{}
	closed   bool
	broken   bool // the stream is out of sync after a failed exchange
}

func newConn(f *os.File, cfg Config) (*wire.Conn, error) {
	conn, err := wire.NewConn(f, cfg.MaxMessageSize)
	if err != nil {
		return nil, connErr("channel", err)
	}
	return conn, nil
}

func newChannel(conn *wire.Conn, cfg Config) *Channel {
	return &Channel{
		cfg:      cfg,
		log:      cfg.Logger,
		conn:     conn,
		sessions: make(map[*Session]struct{}),
	}
}

// exchange sends a channel command and returns the response together
// with the single descriptor that must accompany a successful one.
// errno is the broker's error number; it is non-zero only when err
// is nil.
func (ch *Channel) exchange(req *message.Message) (resp *message.Message, f *os.File, errno int64, err error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed || ch.broken {
		return nil, nil, 0, ErrClosed
	}
	if err := ch.conn.Send(req); err != nil {
		if !errors.Is(err, message.ErrEncoding) {
			ch.breakConn(err)
		}
		return nil, nil, 0, connErr("send", err)
	}
	resp, files, err := ch.conn.Receive()
	if err != nil {
		ch.breakConn(err)
		return nil, nil, 0, connErr("receive", err)
	}
	errno, err = resp.GetInt("error")
	if err != nil {
		wire.CloseFiles(files)
		return nil, nil, 0, errors.Join(ErrProtocol, err)
	}
	if errno != 0 {
		wire.CloseFiles(files)
		return resp, nil, errno, nil
	}
	if len(files) != 1 {
		wire.CloseFiles(files)
		return nil, nil, 0, errors.Join(ErrProtocol, errors.New("expected exactly one descriptor"))
	}
	return resp, files[0], 0, nil
}

// breakConn shuts down the connection after a failed exchange so that
// later commands fail with ErrClosed. ch.mu must be held.
func (ch *Channel) breakConn(err error) {
	ch.broken = true
	ch.conn.Close()
	ch.log.Debug("channel broken", "error", err)
}

// Open opens a session to the named service. It fails with
// ErrServiceUnavailable if the broker does not know the service or
// refuses access to it.
func (ch *Channel) Open(name string) (*Session, error) {
	req := message.New().SetString("cmd", cmdOpen).SetString("service", name)
	_, f, errno, err := ch.exchange(req)
	if err != nil {
		return nil, err
	}
	if errno != 0 {
		ch.log.Debug("service refused", "service", name, "errno", errno)
		return nil, fmt.Errorf("%w: %q: %w", ErrServiceUnavailable, name, unix.Errno(errno))
	}
	defer f.Close()

	conn, err := newConn(f, ch.cfg)
	if err != nil {
		return nil, err
	}
	s := &Session{name: name, ch: ch, conn: conn, log: ch.log.With("service", name)}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		conn.Close()
		return nil, ErrClosed
	}
	ch.sessions[s] = struct{}{}
	ch.log.Debug("service opened", "service", name)
	return s, nil
}

// TryClone asks the broker for a new, independent channel. The new
// channel shares no state with ch; either may be used or closed
// without affecting the other. It fails with ErrConnection if the
// broker refuses.
func (ch *Channel) TryClone() (*Channel, error) {
	_, f, errno, err := ch.exchange(message.New().SetString("cmd", cmdClone))
	if err != nil {
		return nil, err
	}
	if errno != 0 {
		ch.log.Debug("clone refused", "errno", errno)
		return nil, fmt.Errorf("%w: clone refused: %w", ErrConnection, unix.Errno(errno))
	}
	defer f.Close()

	conn, err := newConn(f, ch.cfg)
	if err != nil {
		return nil, err
	}
	ch.log.Debug("channel cloned")
	return newChannel(conn, ch.cfg), nil
}

// Close closes the channel and every session opened from it.
// Closing an already closed channel is a no-op.
func (ch *Channel) Close() error {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return nil
	}
	ch.closed = true
	sessions := ch.sessions
	ch.sessions = nil
	ch.mu.Unlock()

	for s := range sessions {
		s.closeConn()
	}
	ch.log.Debug("channel closed", "sessions", len(sessions))
	if ch.broken {
		return nil
	}
	return ch.conn.Close()
}

// Closed reports whether Close was called.
func (ch *Channel) Closed() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.closed
}

func (ch *Channel) forget(s *Session) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	delete(ch.sessions, s)
}
