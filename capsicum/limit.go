package capsicum

import "syscall"

// A Limiter restricts what may be done with a descriptor.
// FileRights, IoctlRights and FcntlRights are Limiters.
type Limiter interface {
	LimitFD(fd int) error
}

// Limit applies each of the given limiters to the descriptor
// underlying f, in order. It stops at the first error.
//
// Example: The following restricts a file to reading and seeking,
// with no ioctls and only F_GETFL:
//
//	err := capsicum.Limit(f,
//	    capsicum.NewFileRights(capsicum.Read, capsicum.Seek, capsicum.Ioctl, capsicum.Fcntl),
//	    capsicum.MustIoctlRights(),
//	    capsicum.NewFcntlRights(capsicum.FcntlGetFL),
//	)
//	if err != nil {
//	    log.Fatalf("capsicum.Limit(): %v", err)
//	}
func Limit(f syscall.Conn, limiters ...Limiter) error {
	return withFD(f, func(fd int) error {
		return LimitFD(fd, limiters...)
	})
}

// LimitFD is like Limit, for a raw descriptor.
func LimitFD(fd int, limiters ...Limiter) error {
	for _, l := range limiters {
		if err := l.LimitFD(fd); err != nil {
			return err
		}
	}
	return nil
}

// withFD calls fn with the raw descriptor of f.
func withFD(f syscall.Conn, fn func(fd int) error) error {
	rc, err := f.SyscallConn()
	if err != nil {
		return err
	}
	var opErr error
	if err := rc.Control(func(fd uintptr) {
		opErr = fn(int(fd))
	}); err != nil {
		return err
	}
	return opErr
}
