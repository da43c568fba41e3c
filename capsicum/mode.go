package capsicum

import csys "github.com/go-capsicum/go-capsicum/capsicum/syscall"

// Enter places the process into capability mode. In capability mode,
// access to global namespaces such as the file system or the process
// table is denied, and only the descriptors the process already holds
// remain usable, subject to their rights.
//
// Capability mode cannot be left again, and it is inherited by child
// processes. Calling Enter while already in capability mode is a no-op.
func Enter() error {
	if in, err := GetMode(); err == nil && in {
		return nil
	}
	if err := csys.CapEnter(); err != nil {
		return &OSError{Op: "cap_enter", FD: -1, Err: err}
	}
	return nil
}

// GetMode reports whether the process is in capability mode.
func GetMode() (bool, error) {
	mode, err := csys.CapGetmode()
	if err != nil {
		return false, &OSError{Op: "cap_getmode", FD: -1, Err: err}
	}
	return mode != 0, nil
}

// Sandboxed reports whether the process is in capability mode.
// It returns false if the mode cannot be determined, for instance on
// systems without Capsicum.
func Sandboxed() bool {
	in, err := GetMode()
	return err == nil && in
}
