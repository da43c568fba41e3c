//go:build freebsd

package syscall

import (
	"math"
	"unsafe"

	"golang.org/x/sys/unix"
)

// CapEnter places the calling process into capability mode.
func CapEnter() (err error) {
	_, _, e1 := unix.Syscall(unix.SYS_CAP_ENTER, 0, 0, 0)
	if e1 != 0 {
		err = e1
	}
	return
}

// CapGetmode returns 1 if the process is in capability mode, 0 otherwise.
func CapGetmode() (mode uint32, err error) {
	_, _, e1 := unix.Syscall(unix.SYS_CAP_GETMODE, uintptr(unsafe.Pointer(&mode)), 0, 0)
	if e1 != 0 {
		err = e1
	}
	return
}

// CapRightsLimit restricts fd to the given rights.
func CapRightsLimit(fd int, rights *CapRights) (err error) {
	_, _, e1 := unix.Syscall(unix.SYS_CAP_RIGHTS_LIMIT, uintptr(fd), uintptr(unsafe.Pointer(rights)), 0)
	if e1 != 0 {
		err = e1
	}
	return
}

// CapRightsGet stores the rights currently held by fd in rights.
func CapRightsGet(fd int, rights *CapRights) (err error) {
	_, _, e1 := unix.Syscall(unix.SYS___CAP_RIGHTS_GET, RightsVersion, uintptr(fd), uintptr(unsafe.Pointer(rights)))
	if e1 != 0 {
		err = e1
	}
	return
}

// CapIoctlsLimit restricts the ioctl commands permitted on fd.
// An empty cmds denies all ioctls.
func CapIoctlsLimit(fd int, cmds []uint) (err error) {
	var p unsafe.Pointer
	if len(cmds) > 0 {
		p = unsafe.Pointer(&cmds[0])
	}
	_, _, e1 := unix.Syscall(unix.SYS_CAP_IOCTLS_LIMIT, uintptr(fd), uintptr(p), uintptr(len(cmds)))
	if e1 != 0 {
		err = e1
	}
	return
}

// CapIoctlsGet fills cmds with the ioctl commands permitted on fd.
// n is the total number of permitted commands, which may exceed
// len(cmds). all is true if fd is not restricted at all.
func CapIoctlsGet(fd int, cmds []uint) (n int, all bool, err error) {
	var p unsafe.Pointer
	if len(cmds) > 0 {
		p = unsafe.Pointer(&cmds[0])
	}
	r0, _, e1 := unix.Syscall(unix.SYS_CAP_IOCTLS_GET, uintptr(fd), uintptr(p), uintptr(len(cmds)))
	if e1 != 0 {
		return 0, false, e1
	}
	if int(r0) == math.MaxInt {
		return 0, true, nil
	}
	return int(r0), false, nil
}

// CapFcntlsLimit restricts the fcntl commands permitted on fd.
func CapFcntlsLimit(fd int, rights uint32) (err error) {
	_, _, e1 := unix.Syscall(unix.SYS_CAP_FCNTLS_LIMIT, uintptr(fd), uintptr(rights), 0)
	if e1 != 0 {
		err = e1
	}
	return
}

// CapFcntlsGet returns the fcntl rights of fd.
func CapFcntlsGet(fd int) (rights uint32, err error) {
	_, _, e1 := unix.Syscall(unix.SYS_CAP_FCNTLS_GET, uintptr(fd), uintptr(unsafe.Pointer(&rights)), 0)
	if e1 != 0 {
		err = e1
	}
	return
}
