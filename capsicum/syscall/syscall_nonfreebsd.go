//go:build !freebsd

package syscall

import "golang.org/x/sys/unix"

func CapEnter() error {
	return unix.ENOSYS
}

func CapGetmode() (mode uint32, err error) {
	return 0, unix.ENOSYS
}

func CapRightsLimit(fd int, rights *CapRights) error {
	return unix.ENOSYS
}

func CapRightsGet(fd int, rights *CapRights) error {
	return unix.ENOSYS
}

func CapIoctlsLimit(fd int, cmds []uint) error {
	return unix.ENOSYS
}

func CapIoctlsGet(fd int, cmds []uint) (n int, all bool, err error) {
	return 0, false, unix.ENOSYS
}

func CapFcntlsLimit(fd int, rights uint32) error {
	return unix.ENOSYS
}

func CapFcntlsGet(fd int) (rights uint32, err error) {
	return 0, unix.ENOSYS
}
