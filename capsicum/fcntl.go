package capsicum

import (
	"strings"
	"syscall"

	csys "github.com/go-capsicum/go-capsicum/capsicum/syscall"
)

// FcntlRight is a single fcntl(2) command that can be permitted on a
// descriptor holding the Fcntl right.
type FcntlRight uint32

const (
	FcntlGetFL  FcntlRight = csys.FcntlGetFL
	FcntlSetFL  FcntlRight = csys.FcntlSetFL
	FcntlGetOwn FcntlRight = csys.FcntlGetOwn
	FcntlSetOwn FcntlRight = csys.FcntlSetOwn
)

var fcntlNames = []struct {
	r    FcntlRight
	name string
}{
	{FcntlGetFL, "GetFL"},
	{FcntlSetFL, "SetFL"},
	{FcntlGetOwn, "GetOwn"},
	{FcntlSetOwn, "SetOwn"},
}

// ParseFcntlRight returns the FcntlRight with the given name, such as
// "GetFL" or "F_GETFL". Matching ignores case.
func ParseFcntlRight(name string) (FcntlRight, error) {
	key := strings.TrimPrefix(strings.ToLower(name), "f_")
	for _, n := range fcntlNames {
		if strings.ToLower(n.name) == key {
			return n.r, nil
		}
	}
	return 0, invalidf("unknown fcntl right %q", name)
}

// FcntlRights is a set of permitted fcntl commands.
// The zero value permits none of them.
type FcntlRights uint32

// AllFcntls permits every fcntl command. Fresh descriptors start out
// with this set.
const AllFcntls FcntlRights = csys.FcntlAll

// NewFcntlRights returns the set of the given fcntl commands.
func NewFcntlRights(rights ...FcntlRight) FcntlRights {
	return FcntlRights(0).Allow(rights...)
}

// Allow returns fr with the given commands added.
func (fr FcntlRights) Allow(rights ...FcntlRight) FcntlRights {
	for _, r := range rights {
		fr |= FcntlRights(r)
	}
	return fr
}

// Deny returns fr without the given commands.
func (fr FcntlRights) Deny(rights ...FcntlRight) FcntlRights {
	for _, r := range rights {
		fr &^= FcntlRights(r)
	}
	return fr
}

// Contains reports whether r is permitted.
func (fr FcntlRights) Contains(r FcntlRight) bool {
	return r != 0 && FcntlRights(r)&fr == FcntlRights(r)
}

// Validate fails with ErrInvalidRights if fr contains unknown bits.
func (fr FcntlRights) Validate() error {
	if extra := fr &^ AllFcntls; extra != 0 {
		return invalidf("unknown fcntl rights %#x", uint32(extra))
	}
	return nil
}

func (fr FcntlRights) String() string {
	if fr == 0 {
		return "∅"
	}
	var b strings.Builder
	b.WriteByte('{')
	for _, n := range fcntlNames {
		if fr&FcntlRights(n.r) == 0 {
			continue
		}
		if b.Len() > 1 {
			b.WriteByte(',')
		}
		b.WriteString(n.name)
	}
	b.WriteByte('}')
	return b.String()
}

// Limit restricts the fcntl commands permitted on the descriptor
// underlying f. As with FileRights, the kernel only narrows.
func (fr FcntlRights) Limit(f syscall.Conn) error {
	return withFD(f, fr.LimitFD)
}

// LimitFD is like Limit, but takes a raw descriptor number.
func (fr FcntlRights) LimitFD(fd int) error {
	if err := fr.Validate(); err != nil {
		return err
	}
	if err := csys.CapFcntlsLimit(fd, uint32(fr)); err != nil {
		return &OSError{Op: "cap_fcntls_limit", FD: fd, Err: err}
	}
	return nil
}

// FcntlRightsFromFD returns the fcntl commands currently permitted
// on fd.
func FcntlRightsFromFD(fd int) (FcntlRights, error) {
	r, err := csys.CapFcntlsGet(fd)
	if err != nil {
		return 0, &OSError{Op: "cap_fcntls_get", FD: fd, Err: err}
	}
	return FcntlRights(r), nil
}

// FcntlRightsFromFile returns the fcntl commands currently permitted
// on the descriptor underlying f.
func FcntlRightsFromFile(f syscall.Conn) (fr FcntlRights, err error) {
	err = withFD(f, func(fd int) error {
		fr, err = FcntlRightsFromFD(fd)
		return err
	})
	return fr, err
}
