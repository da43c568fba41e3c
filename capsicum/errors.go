package capsicum

import (
	"errors"
	"fmt"
)

// ErrInvalidRights is returned when a rights value violates the
// kernel's rules. It is detected before any system call is made.
var ErrInvalidRights = errors.New("invalid capability rights")

// OSError is returned when a Capsicum system call fails.
// Err is usually a syscall.Errno, such as ENOTCAPABLE when a limit
// would widen the rights of a descriptor.
type OSError struct {
	Op  string
	FD  int // -1 for process-wide operations
	Err error
}

func (e *OSError) Error() string {
	if e.FD < 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s(fd %d): %v", e.Op, e.FD, e.Err)
}

func (e *OSError) Unwrap() error {
	return e.Err
}

func bug(err error) error {
	return fmt.Errorf("BUG(go-capsicum): This should not have happened: %w", err)
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRights, fmt.Sprintf(format, args...))
}
