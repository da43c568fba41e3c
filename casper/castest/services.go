package castest

import (
	"errors"
	"os"
	"os/user"
	"slices"
	"strconv"

	"golang.org/x/sys/unix"

	csys "github.com/go-capsicum/go-capsicum/capsicum/syscall"
	"github.com/go-capsicum/go-capsicum/casper/message"
)

// UIDService returns the "getuid" service. It answers with the user ID
// of the test process, and refuses with ENOTCAPABLE once any limits
// are set.
func UIDService() Service {
	return Service{
		Name: "getuid",
		Command: func(cmd string, limits, _ *message.Message) (*message.Message, error) {
			if cmd != "getuid" {
				return nil, unix.EINVAL
			}
			if limits != nil {
				return nil, csys.ENOTCAPABLE
			}
			return message.New().SetInt("uid", int64(os.Getuid())), nil
		},
	}
}

// PasswdService returns the "system.pwd" service, backed by os/user.
//
// Limits may hold "cmds", the permitted commands. Limits can only
// narrow the permitted commands.
func PasswdService() Service {
	return Service{
		Name: "system.pwd",
		Command: func(cmd string, limits, req *message.Message) (*message.Message, error) {
			if allowed, err := limits.GetStrings("cmds"); err == nil && !slices.Contains(allowed, cmd) {
				return nil, csys.ENOTCAPABLE
			}
			var (
				u   *user.User
				err error
			)
			switch cmd {
			case "getpwnam":
				name, gerr := req.GetString("name")
				if gerr != nil {
					return nil, unix.EINVAL
				}
				u, err = user.Lookup(name)
			case "getpwuid":
				uid, gerr := req.GetInt("uid")
				if gerr != nil {
					return nil, unix.EINVAL
				}
				u, err = user.LookupId(strconv.FormatInt(uid, 10))
			default:
				return nil, unix.EINVAL
			}
			var unknownName user.UnknownUserError
			var unknownID user.UnknownUserIdError
			if errors.As(err, &unknownName) || errors.As(err, &unknownID) {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			return passwdEntry(u), nil
		},
		Limit: func(old, next *message.Message) error {
			cmds, err := next.GetStrings("cmds")
			if err != nil {
				if errors.Is(err, message.ErrNoField) {
					if old.Has("cmds") {
						return csys.ENOTCAPABLE
					}
					return nil
				}
				return unix.EINVAL
			}
			if prev, err := old.GetStrings("cmds"); err == nil {
				for _, c := range cmds {
					if !slices.Contains(prev, c) {
						return csys.ENOTCAPABLE
					}
				}
			}
			return nil
		},
	}
}

func passwdEntry(u *user.User) *message.Message {
	m := message.New().
		SetString("pw_name", u.Username).
		SetString("pw_gecos", u.Name).
		SetString("pw_dir", u.HomeDir)
	if uid, err := strconv.ParseInt(u.Uid, 10, 64); err == nil {
		m.SetInt("pw_uid", uid)
	}
	if gid, err := strconv.ParseInt(u.Gid, 10, 64); err == nil {
		m.SetInt("pw_gid", gid)
	}
	return m
}

// SysctlService returns a "system.sysctl" service that answers reads
// from values. Unknown names fail with ENOENT; values larger than the
// requested size fail with ENOMEM.
func SysctlService(values map[string][]byte) Service {
	return Service{
		Name: "system.sysctl",
		Command: func(cmd string, _, req *message.Message) (*message.Message, error) {
			if cmd != "sysctl" {
				return nil, unix.EINVAL
			}
			name, err := req.GetString("name")
			if err != nil {
				return nil, unix.EINVAL
			}
			v, ok := values[name]
			if !ok {
				return nil, unix.ENOENT
			}
			if size, err := req.GetInt("oldlen"); err == nil && int64(len(v)) > size {
				return nil, unix.ENOMEM
			}
			return message.New().SetBinary("oldp", v).SetInt("oldlen", int64(len(v))), nil
		},
	}
}
