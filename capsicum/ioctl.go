package capsicum

import (
	"fmt"
	"slices"
	"strings"
	"syscall"

	csys "github.com/go-capsicum/go-capsicum/capsicum/syscall"
)

// IoctlsMaxCount is the largest number of ioctl commands that can be
// allowed on a single descriptor.
const IoctlsMaxCount = csys.IoctlsMaxCount

// IoctlRights is a set of ioctl(2) commands permitted on a descriptor.
// It only matters for descriptors that hold the Ioctl right.
//
// The zero value permits no ioctl commands. AllIoctls returns the
// unrestricted set that every fresh descriptor starts with.
type IoctlRights struct {
	cmds []uint // sorted, no duplicates
	all  bool
}

// AllIoctls returns the set of all ioctl commands. Limiting a
// descriptor to it leaves the descriptor's ioctls unchanged.
func AllIoctls() IoctlRights {
	return IoctlRights{all: true}
}

// NewIoctlRights returns the set of the given ioctl commands.
// It fails with ErrInvalidRights if more than IoctlsMaxCount distinct
// commands are given.
func NewIoctlRights(cmds ...uint) (IoctlRights, error) {
	return IoctlRights{}.Allow(cmds...)
}

// MustIoctlRights is like NewIoctlRights but panics on error.
func MustIoctlRights(cmds ...uint) IoctlRights {
	ir, err := NewIoctlRights(cmds...)
	if err != nil {
		panic(err)
	}
	return ir
}

// Allow returns ir with the given commands added. It fails with
// ErrInvalidRights if the result would exceed IoctlsMaxCount commands.
func (ir IoctlRights) Allow(cmds ...uint) (IoctlRights, error) {
	if ir.all {
		return ir, nil
	}
	merged := make([]uint, 0, len(ir.cmds)+len(cmds))
	merged = append(merged, ir.cmds...)
	merged = append(merged, cmds...)
	slices.Sort(merged)
	merged = slices.Compact(merged)
	if len(merged) > IoctlsMaxCount {
		return ir, invalidf("%d ioctl commands exceed the limit of %d", len(merged), IoctlsMaxCount)
	}
	return IoctlRights{cmds: merged}, nil
}

// Deny returns ir without the given commands. The unrestricted set
// cannot be narrowed command by command; Deny returns it unchanged.
func (ir IoctlRights) Deny(cmds ...uint) IoctlRights {
	if ir.all {
		return ir
	}
	kept := slices.DeleteFunc(slices.Clone(ir.cmds), func(c uint) bool {
		return slices.Contains(cmds, c)
	})
	return IoctlRights{cmds: kept}
}

// Contains reports whether cmd is permitted.
func (ir IoctlRights) Contains(cmd uint) bool {
	if ir.all {
		return true
	}
	_, found := slices.BinarySearch(ir.cmds, cmd)
	return found
}

// Unlimited reports whether all ioctl commands are permitted.
func (ir IoctlRights) Unlimited() bool {
	return ir.all
}

// Commands returns the permitted commands in ascending order.
// It returns nil for the unrestricted set.
func (ir IoctlRights) Commands() []uint {
	return slices.Clone(ir.cmds)
}

// Equal reports whether ir and other permit the same commands.
func (ir IoctlRights) Equal(other IoctlRights) bool {
	return ir.all == other.all && slices.Equal(ir.cmds, other.cmds)
}

func (ir IoctlRights) String() string {
	if ir.all {
		return "all"
	}
	if len(ir.cmds) == 0 {
		return "∅"
	}
	var b strings.Builder
	b.WriteByte('{')
	for i, c := range ir.cmds {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%#x", c)
	}
	b.WriteByte('}')
	return b.String()
}

// Limit restricts the ioctl commands permitted on the descriptor
// underlying f. As with FileRights, the kernel only narrows.
func (ir IoctlRights) Limit(f syscall.Conn) error {
	return withFD(f, ir.LimitFD)
}

// LimitFD is like Limit, but takes a raw descriptor number.
func (ir IoctlRights) LimitFD(fd int) error {
	if ir.all {
		return nil
	}
	if len(ir.cmds) > IoctlsMaxCount {
		return invalidf("%d ioctl commands exceed the limit of %d", len(ir.cmds), IoctlsMaxCount)
	}
	if err := csys.CapIoctlsLimit(fd, ir.cmds); err != nil {
		return &OSError{Op: "cap_ioctls_limit", FD: fd, Err: err}
	}
	return nil
}

// IoctlRightsFromFD returns the ioctl commands currently permitted
// on fd.
func IoctlRightsFromFD(fd int) (IoctlRights, error) {
	buf := make([]uint, IoctlsMaxCount)
	n, all, err := csys.CapIoctlsGet(fd, buf)
	if err != nil {
		return IoctlRights{}, &OSError{Op: "cap_ioctls_get", FD: fd, Err: err}
	}
	if all {
		return AllIoctls(), nil
	}
	if n > len(buf) {
		return IoctlRights{}, bug(fmt.Errorf("cap_ioctls_get: %d commands, more than %d", n, len(buf)))
	}
	return IoctlRights{}.Allow(buf[:n]...)
}

// IoctlRightsFromFile returns the ioctl commands currently permitted
// on the descriptor underlying f.
func IoctlRightsFromFile(f syscall.Conn) (ir IoctlRights, err error) {
	err = withFD(f, func(fd int) error {
		ir, err = IoctlRightsFromFD(fd)
		return err
	})
	return ir, err
}
