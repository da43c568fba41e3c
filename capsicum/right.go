package capsicum

import (
	"fmt"
	"strings"

	csys "github.com/go-capsicum/go-capsicum/capsicum/syscall"
)

// A Right is a single capability right, such as the right to read
// from a descriptor. Some rights are composites that stand for a
// group of other rights and have no bit of their own.
type Right uint8

// Rights defined in word 0 of the kernel's rights mask.
const (
	Read Right = iota + 1
	Write
	SeekTell
	Seek
	Pread
	Pwrite
	Mmap
	MmapR
	MmapW
	MmapX
	MmapRW
	MmapRX
	MmapWX
	MmapRWX
	Create
	Fexecve
	Fsync
	Ftruncate
	Lookup
	Fchdir
	Fchflags
	Chflagsat
	Fchmod
	Fchmodat
	Fchown
	Fchownat
	Fcntl
	Flock
	Fpathconf
	Fsck
	Fstat
	Fstatat
	Fstatfs
	Futimes
	Futimesat
	LinkatTarget
	Mkdirat
	Mkfifoat
	Mknodat
	RenameatSource
	Symlinkat
	Unlinkat
	Accept
	Bind
	Connect
	Getpeername
	Getsockname
	Getsockopt
	Listen
	Peeloff
	Setsockopt
	Shutdown
	Bindat
	Connectat
	LinkatSource
	RenameatTarget
	SockClient
	SockServer
)

// Rights defined in word 1 of the kernel's rights mask.
const (
	MacGet Right = iota + SockServer + 1
	MacSet
	SemGetvalue
	SemPost
	SemWait
	Event
	KqueueEvent
	Ioctl
	Ttyhook
	Pdgetpid
	Pdwait
	Pdkill
	ExtattrDelete
	ExtattrGet
	ExtattrList
	ExtattrSet
	AclCheck
	AclDelete
	AclGet
	AclSet
	KqueueChange
	Kqueue

	numRights = iota + SockServer + 1
)

// rightInfo describes how a Right is laid out in the kernel mask.
// Composite rights have no own bits; they are fully described by
// their prerequisites.
type rightInfo struct {
	name     string
	word     int
	bits     uint64
	requires []Right
}

// The table mirrors the CAP_* definitions in FreeBSD's
// sys/sys/capsicum.h for CAP_RIGHTS_VERSION_00. A right's kernel value
// is its own bits plus the bits of everything it requires.
var rightInfos = [numRights]rightInfo{
	Read:           {"Read", 0, 0x1, nil},
	Write:          {"Write", 0, 0x2, nil},
	SeekTell:       {"SeekTell", 0, 0x4, nil},
	Seek:           {"Seek", 0, 0x8, []Right{SeekTell}},
	Pread:          {"Pread", 0, 0, []Right{Seek, Read}},
	Pwrite:         {"Pwrite", 0, 0, []Right{Seek, Write}},
	Mmap:           {"Mmap", 0, 0x10, nil},
	MmapR:          {"MmapR", 0, 0, []Right{Mmap, Seek, Read}},
	MmapW:          {"MmapW", 0, 0, []Right{Mmap, Seek, Write}},
	MmapX:          {"MmapX", 0, 0x20, []Right{Mmap, Seek}},
	MmapRW:         {"MmapRW", 0, 0, []Right{MmapR, MmapW}},
	MmapRX:         {"MmapRX", 0, 0, []Right{MmapR, MmapX}},
	MmapWX:         {"MmapWX", 0, 0, []Right{MmapW, MmapX}},
	MmapRWX:        {"MmapRWX", 0, 0, []Right{MmapR, MmapW, MmapX}},
	Create:         {"Create", 0, 0x40, nil},
	Fexecve:        {"Fexecve", 0, 0x80, nil},
	Fsync:          {"Fsync", 0, 0x100, nil},
	Ftruncate:      {"Ftruncate", 0, 0x200, nil},
	Lookup:         {"Lookup", 0, 0x400, nil},
	Fchdir:         {"Fchdir", 0, 0x800, nil},
	Fchflags:       {"Fchflags", 0, 0x1000, nil},
	Chflagsat:      {"Chflagsat", 0, 0, []Right{Fchflags, Lookup}},
	Fchmod:         {"Fchmod", 0, 0x2000, nil},
	Fchmodat:       {"Fchmodat", 0, 0, []Right{Fchmod, Lookup}},
	Fchown:         {"Fchown", 0, 0x4000, nil},
	Fchownat:       {"Fchownat", 0, 0, []Right{Fchown, Lookup}},
	Fcntl:          {"Fcntl", 0, 0x8000, nil},
	Flock:          {"Flock", 0, 0x10000, nil},
	Fpathconf:      {"Fpathconf", 0, 0x20000, nil},
	Fsck:           {"Fsck", 0, 0x40000, nil},
	Fstat:          {"Fstat", 0, 0x80000, nil},
	Fstatat:        {"Fstatat", 0, 0, []Right{Fstat, Lookup}},
	Fstatfs:        {"Fstatfs", 0, 0x100000, nil},
	Futimes:        {"Futimes", 0, 0x200000, nil},
	Futimesat:      {"Futimesat", 0, 0, []Right{Futimes, Lookup}},
	LinkatTarget:   {"LinkatTarget", 0, 0x400000, []Right{Lookup}},
	Mkdirat:        {"Mkdirat", 0, 0x800000, []Right{Lookup}},
	Mkfifoat:       {"Mkfifoat", 0, 0x1000000, []Right{Lookup}},
	Mknodat:        {"Mknodat", 0, 0x2000000, []Right{Lookup}},
	RenameatSource: {"RenameatSource", 0, 0x4000000, []Right{Lookup}},
	Symlinkat:      {"Symlinkat", 0, 0x8000000, []Right{Lookup}},
	Unlinkat:       {"Unlinkat", 0, 0x10000000, []Right{Lookup}},
	Accept:         {"Accept", 0, 0x20000000, nil},
	Bind:           {"Bind", 0, 0x40000000, nil},
	Connect:        {"Connect", 0, 0x80000000, nil},
	Getpeername:    {"Getpeername", 0, 0x100000000, nil},
	Getsockname:    {"Getsockname", 0, 0x200000000, nil},
	Getsockopt:     {"Getsockopt", 0, 0x400000000, nil},
	Listen:         {"Listen", 0, 0x800000000, nil},
	Peeloff:        {"Peeloff", 0, 0x1000000000, nil},
	Setsockopt:     {"Setsockopt", 0, 0x2000000000, nil},
	Shutdown:       {"Shutdown", 0, 0x4000000000, nil},
	Bindat:         {"Bindat", 0, 0x8000000000, []Right{Lookup}},
	Connectat:      {"Connectat", 0, 0x10000000000, []Right{Lookup}},
	LinkatSource:   {"LinkatSource", 0, 0x20000000000, []Right{Lookup}},
	RenameatTarget: {"RenameatTarget", 0, 0x40000000000, []Right{Lookup}},
	SockClient: {"SockClient", 0, 0, []Right{
		Connect, Getpeername, Getsockname, Getsockopt, Peeloff,
		Read, Write, Setsockopt, Shutdown,
	}},
	SockServer: {"SockServer", 0, 0, []Right{
		Accept, Bind, Getpeername, Getsockname, Getsockopt, Listen,
		Peeloff, Read, Write, Setsockopt, Shutdown,
	}},

	MacGet:        {"MacGet", 1, 0x1, nil},
	MacSet:        {"MacSet", 1, 0x2, nil},
	SemGetvalue:   {"SemGetvalue", 1, 0x4, nil},
	SemPost:       {"SemPost", 1, 0x8, nil},
	SemWait:       {"SemWait", 1, 0x10, nil},
	Event:         {"Event", 1, 0x20, nil},
	KqueueEvent:   {"KqueueEvent", 1, 0x40, nil},
	Ioctl:         {"Ioctl", 1, 0x80, nil},
	Ttyhook:       {"Ttyhook", 1, 0x100, nil},
	Pdgetpid:      {"Pdgetpid", 1, 0x200, nil},
	Pdwait:        {"Pdwait", 1, 0x400, nil},
	Pdkill:        {"Pdkill", 1, 0x800, nil},
	ExtattrDelete: {"ExtattrDelete", 1, 0x1000, nil},
	ExtattrGet:    {"ExtattrGet", 1, 0x2000, nil},
	ExtattrList:   {"ExtattrList", 1, 0x4000, nil},
	ExtattrSet:    {"ExtattrSet", 1, 0x8000, nil},
	AclCheck:      {"AclCheck", 1, 0x10000, nil},
	AclDelete:     {"AclDelete", 1, 0x20000, nil},
	AclGet:        {"AclGet", 1, 0x40000, nil},
	AclSet:        {"AclSet", 1, 0x80000, nil},
	KqueueChange:  {"KqueueChange", 1, 0x100000, nil},
	Kqueue:        {"Kqueue", 1, 0, []Right{KqueueEvent, KqueueChange}},
}

// closures[r] holds the data bits of r and all of its prerequisites,
// per word.
var closures [numRights][csys.RightsWords]uint64

func init() {
	var visit func(r Right) [csys.RightsWords]uint64
	visit = func(r Right) [csys.RightsWords]uint64 {
		info := rightInfos[r]
		var c [csys.RightsWords]uint64
		c[info.word] = info.bits
		for _, req := range info.requires {
			rc := visit(req)
			for i := range c {
				c[i] |= rc[i]
			}
		}
		return c
	}
	for r := Read; r < numRights; r++ {
		closures[r] = visit(r)
	}
}

func (r Right) valid() bool {
	return r >= Read && r < numRights
}

// isComposite reports whether r has no bits of its own.
func (r Right) isComposite() bool {
	return rightInfos[r].bits == 0
}

func (r Right) String() string {
	if !r.valid() {
		return fmt.Sprintf("Right(%d)", uint8(r))
	}
	return rightInfos[r].name
}

// Value returns the kernel's CAP_* constant for r, including the
// word index marker and the bits of all prerequisite rights.
// It returns 0 for an unknown Right.
func (r Right) Value() uint64 {
	if !r.valid() {
		return 0
	}
	info := rightInfos[r]
	return csys.CapRight(info.word, closures[r][info.word])
}

// Requires returns the rights that are implied by r.
func (r Right) Requires() []Right {
	if !r.valid() {
		return nil
	}
	return append([]Right(nil), rightInfos[r].requires...)
}

// AllRights returns every known Right in kernel order.
func AllRights() []Right {
	rs := make([]Right, 0, numRights-1)
	for r := Read; r < numRights; r++ {
		rs = append(rs, r)
	}
	return rs
}

// Names that the kernel headers keep for compatibility.
var rightAliases = map[string]Right{
	"recv":       Read,
	"send":       Write,
	"pollevent":  Event,
	"linkat":     LinkatTarget,
	"renameat":   RenameatSource,
	"fchflagsat": Chflagsat,
	"mknotat":    Mknodat,
}

// ParseRight returns the Right with the given name. Matching ignores
// case, underscores and a leading "CAP_", so "CAP_MMAP_R", "mmap_r"
// and "MmapR" all name the same right.
func ParseRight(name string) (Right, error) {
	key := strings.ToLower(name)
	key = strings.TrimPrefix(key, "cap_")
	key = strings.ReplaceAll(key, "_", "")
	for r := Read; r < numRights; r++ {
		if strings.ToLower(rightInfos[r].name) == key {
			return r, nil
		}
	}
	if r, ok := rightAliases[key]; ok {
		return r, nil
	}
	return 0, fmt.Errorf("unknown right %q: %w", name, ErrInvalidRights)
}
