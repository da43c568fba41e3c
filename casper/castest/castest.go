// Package castest runs an in-process broker for tests of Casper
// clients.
//
// The broker speaks the same protocol as the real one over socket
// pairs, so clients exercise their full send and receive path. It
// performs service commands in the test process itself.
package castest

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/go-capsicum/go-capsicum/casper"
	"github.com/go-capsicum/go-capsicum/casper/internal/wire"
	"github.com/go-capsicum/go-capsicum/casper/message"
)

// Service is a service served by a Broker.
type Service struct {
	Name string
	// Command performs cmd. limits is nil until limits are set on the
	// session. A returned unix.Errno is sent to the client as is; other
	// errors are sent as EIO.
	Command func(cmd string, limits, req *message.Message) (*message.Message, error)
	// Limit approves replacing old limits (nil if none) with next.
	// A nil Limit accepts any limits.
	Limit func(old, next *message.Message) error
}

// Broker serves channels and sessions until it is closed.
type Broker struct {
	log     *slog.Logger
	maxSize int

	mu       sync.Mutex
	services map[string]Service
	conns    map[*wire.Conn]struct{}
	closed   bool

	wg sync.WaitGroup
}

// NewBroker returns a Broker offering the given services. A nil
// logger discards log output.
func NewBroker(logger *slog.Logger, services ...Service) *Broker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	b := &Broker{
		log:      logger,
		maxSize:  message.DefaultMaxFrameSize,
		services: make(map[string]Service),
		conns:    make(map[*wire.Conn]struct{}),
	}
	for _, svc := range services {
		b.Register(svc)
	}
	return b
}

// New returns a Broker that logs to t and is closed when the test
// ends.
func New(t testing.TB, services ...Service) *Broker {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
	b := NewBroker(logger, services...)
	t.Cleanup(func() { b.Close() })
	return b
}

type testWriter struct{ t testing.TB }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

// Register adds svc, replacing any service of the same name.
func (b *Broker) Register(svc Service) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.services[svc.Name] = svc
}

// Unregister removes the named service. Sessions already open keep
// working.
func (b *Broker) Unregister(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.services, name)
}

// Socket returns the client end of a new broker channel. The caller
// owns the returned file.
func (b *Broker) Socket() (*os.File, error) {
	return b.start(b.channelCommand)
}

// Channel returns a new casper.Channel to b. It is closed when the
// test ends.
func (b *Broker) Channel(t testing.TB) *casper.Channel {
	t.Helper()

	f, err := b.Socket()
	if err != nil {
		t.Fatalf("Broker.Socket(): %v", err)
	}
	ch, err := casper.Config{Logger: b.log}.NewChannel(f)
	if err != nil {
		t.Fatalf("NewChannel(): %v", err)
	}
	t.Cleanup(func() { ch.Close() })
	return ch
}

// Close stops serving and closes the broker ends of all connections.
func (b *Broker) Close() error {
	b.mu.Lock()
	b.closed = true
	for c := range b.conns {
		c.Close()
	}
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

type handler func(req *message.Message) (resp *message.Message, files []*os.File)

// start creates a connection served by h and returns its client end.
func (b *Broker) start(h handler) (*os.File, error) {
	client, server, err := wire.Socketpair()
	if err != nil {
		return nil, err
	}
	conn, err := wire.NewConn(server, b.maxSize)
	server.Close()
	if err != nil {
		client.Close()
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		conn.Close()
		client.Close()
		return nil, net.ErrClosed
	}
	b.conns[conn] = struct{}{}
	b.wg.Add(1)
	go b.serve(conn, h)
	return client, nil
}

func (b *Broker) serve(conn *wire.Conn, h handler) {
	defer b.wg.Done()
	defer func() {
		b.mu.Lock()
		delete(b.conns, conn)
		b.mu.Unlock()
		conn.Close()
	}()

	for {
		req, files, err := conn.Receive()
		wire.CloseFiles(files)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				b.log.Warn("receive failed", "error", err)
			}
			return
		}
		resp, files := h(req)
		err = conn.Send(resp, files...)
		wire.CloseFiles(files)
		if err != nil {
			b.log.Warn("send failed", "error", err)
			return
		}
	}
}

func errnoOf(err error) int64 {
	if err == nil {
		return 0
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return int64(errno)
	}
	return int64(unix.EIO)
}

func reply(err error) *message.Message {
	return message.New().SetInt("error", errnoOf(err))
}

func (b *Broker) channelCommand(req *message.Message) (*message.Message, []*os.File) {
	cmd, _ := req.GetString("cmd")
	switch cmd {
	case "open":
		name, _ := req.GetString("service")
		b.mu.Lock()
		svc, ok := b.services[name]
		b.mu.Unlock()
		if !ok {
			b.log.Debug("unknown service", "service", name)
			return reply(unix.ENOENT), nil
		}
		s := &session{svc: svc, log: b.log.With("service", name)}
		f, err := b.start(s.handle)
		if err != nil {
			return reply(err), nil
		}
		b.log.Debug("service opened", "service", name)
		return reply(nil), []*os.File{f}
	case "clone":
		f, err := b.start(b.channelCommand)
		if err != nil {
			return reply(err), nil
		}
		b.log.Debug("channel cloned")
		return reply(nil), []*os.File{f}
	default:
		b.log.Debug("unknown channel command", "cmd", cmd)
		return reply(unix.EINVAL), nil
	}
}

// session is the broker side of one service session. Requests on a
// connection are handled one at a time, so limits needs no lock.
type session struct {
	svc    Service
	log    *slog.Logger
	limits *message.Message
}

func (s *session) handle(req *message.Message) (*message.Message, []*os.File) {
	cmd, err := req.GetString("cmd")
	if err != nil {
		return reply(unix.EINVAL), nil
	}
	s.log.Debug("command", "cmd", cmd)

	switch cmd {
	case "limit_set":
		limits, err := req.GetMessage("limits")
		if err != nil {
			return reply(unix.EINVAL), nil
		}
		if s.svc.Limit != nil {
			if err := s.svc.Limit(s.limits, limits); err != nil {
				return reply(err), nil
			}
		}
		s.limits = limits
		return reply(nil), nil
	case "limit_get":
		resp := reply(nil)
		if s.limits != nil {
			resp.SetMessage("limits", s.limits)
		}
		return resp, nil
	}

	if s.svc.Command == nil {
		return reply(unix.EINVAL), nil
	}
	out, err := s.svc.Command(cmd, s.limits, req)
	if err != nil {
		return reply(err), nil
	}
	if out == nil {
		out = message.New()
	}
	return out.SetInt("error", 0), nil
}
