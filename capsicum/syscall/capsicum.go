// Package syscall provides a low-level interface to the FreeBSD Capsicum
// capability and sandboxing facility.
package syscall

import "syscall"

// Layout of cap_rights_t for CAP_RIGHTS_VERSION_00.
const (
	RightsVersion = 0
	RightsWords   = RightsVersion + 2

	// Bit position of the first index marker. Word i carries 1<<(IndexShift+i).
	IndexShift = 57
	// Bit position of the version field in word 0.
	VersionShift = 62
)

// Data bits of the rights defined in each word (CAP_ALL0 and CAP_ALL1
// without their index markers).
const (
	RightsMask0 = 0x000007FFFFFFFFFF
	RightsMask1 = 0x00000000001FFFFF
)

// CapRight composes a kernel right value out of a word index and the
// data bits in that word, like the CAPRIGHT macro.
func CapRight(idx int, bits uint64) uint64 {
	return 1<<(IndexShift+idx) | bits
}

// CapRights is the kernel's cap_rights_t.
type CapRights struct {
	Rights [RightsWords]uint64
}

// Init resets r to the empty set with valid version and index markers.
func (r *CapRights) Init() {
	r.Rights[0] = CapRight(0, 0) | RightsVersion<<VersionShift
	r.Rights[1] = CapRight(1, 0)
}

// Fcntl rights, for use with CapFcntlsLimit. Each is 1 << F_*.
const (
	FcntlGetFL  = 1 << 3
	FcntlSetFL  = 1 << 4
	FcntlGetOwn = 1 << 5
	FcntlSetOwn = 1 << 6

	FcntlAll = FcntlGetFL | FcntlSetFL | FcntlGetOwn | FcntlSetOwn
)

// IoctlsMaxCount is the largest number of ioctl commands the kernel
// accepts in one cap_ioctls_limit call.
const IoctlsMaxCount = 256

// Capsicum error numbers.
const (
	ENOTCAPABLE = syscall.Errno(93)
	ECAPMODE    = syscall.Errno(94)
)
