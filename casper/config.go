package casper

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/go-capsicum/go-capsicum/casper/message"
)

// DefaultEnvVar names the environment variable that holds the number
// of the descriptor connected to the broker.
const DefaultEnvVar = "CASPER_FD"

// Config describes how to reach the broker and how channels behave.
// The zero Config uses the defaults.
type Config struct {
	// EnvVar names the environment variable holding the inherited
	// broker descriptor. Defaults to DefaultEnvVar.
	EnvVar string
	// MaxMessageSize limits the encoded size of a single message in
	// either direction. Defaults to message.DefaultMaxFrameSize.
	MaxMessageSize int
	// Logger receives lifecycle events. Defaults to discarding them.
	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.EnvVar == "" {
		c.EnvVar = DefaultEnvVar
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = message.DefaultMaxFrameSize
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// Descriptors inherited from the launcher that a Channel was already
// built from.
var (
	claimedMu sync.Mutex
	claimed   = make(map[int]bool)
)

// Connect returns a Channel over the broker descriptor named by the
// configured environment variable.
//
// The descriptor can only be claimed once per process; use TryClone
// to obtain further independent channels. Connect fails with
// ErrConnection if the variable is unset, does not name an open
// descriptor, or was already claimed.
func (c Config) Connect() (*Channel, error) {
	c = c.withDefaults()

	val, ok := os.LookupEnv(c.EnvVar)
	if !ok {
		return nil, fmt.Errorf("%w: $%s is not set", ErrConnection, c.EnvVar)
	}
	fd, err := strconv.Atoi(val)
	if err != nil || fd < 0 {
		return nil, fmt.Errorf("%w: $%s=%q is not a descriptor number", ErrConnection, c.EnvVar, val)
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0); err != nil {
		return nil, connErr(fmt.Sprintf("descriptor %d from $%s", fd, c.EnvVar), err)
	}

	claimedMu.Lock()
	defer claimedMu.Unlock()
	if claimed[fd] {
		return nil, fmt.Errorf("%w: descriptor %d is already in use by another channel", ErrConnection, fd)
	}
	ch, err := c.NewChannel(os.NewFile(uintptr(fd), "casper"))
	if err != nil {
		return nil, err
	}
	claimed[fd] = true
	c.Logger.Debug("connected to broker", "fd", fd)
	return ch, nil
}

// NewChannel returns a Channel over f, a Unix stream socket connected
// to the broker. The Channel takes ownership of f.
func (c Config) NewChannel(f *os.File) (*Channel, error) {
	c = c.withDefaults()
	defer f.Close()

	conn, err := newConn(f, c)
	if err != nil {
		return nil, err
	}
	return newChannel(conn, c), nil
}

// Connect returns a Channel over the broker descriptor named by
// $CASPER_FD, using the default Config.
func Connect() (*Channel, error) {
	return Config{}.Connect()
}

// NewChannel returns a Channel over f using the default Config.
func NewChannel(f *os.File) (*Channel, error) {
	return Config{}.NewChannel(f)
}
