package casper

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

var (
	// ErrConnection is returned when the broker channel is missing,
	// closed, broken, or refuses to clone.
	ErrConnection = errors.New("casper connection error")
	// ErrServiceUnavailable is returned when the broker refuses to
	// open a service.
	ErrServiceUnavailable = errors.New("casper service unavailable")
	// ErrSessionBusy is returned when a request is sent on a session
	// whose previous response has not been received yet.
	ErrSessionBusy = errors.New("session has a request in flight")
	// ErrNoRequest is returned by Receive when no request is pending.
	ErrNoRequest = errors.New("no request pending")
	// ErrClosed is returned for operations on a closed channel or
	// session. It wraps ErrConnection.
	ErrClosed = fmt.Errorf("%w: closed", ErrConnection)
	// ErrProtocol is returned when the broker sends a response that
	// does not follow the protocol. It wraps ErrConnection.
	ErrProtocol = fmt.Errorf("%w: protocol violation", ErrConnection)
)

// CommandError is returned when a service answers a command with a
// non-zero error number.
type CommandError struct {
	Service string
	Command string
	Errno   unix.Errno
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("casper: %s %s: %v", e.Service, e.Command, e.Errno)
}

func (e *CommandError) Unwrap() error {
	return e.Errno
}

func connErr(op string, err error) error {
	if errors.Is(err, ErrConnection) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrConnection, op, err)
}
