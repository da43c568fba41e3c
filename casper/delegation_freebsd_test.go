//go:build freebsd

package casper_test

import (
	"errors"
	"os"
	"testing"

	"github.com/go-capsicum/go-capsicum/capsicum"
	"github.com/go-capsicum/go-capsicum/capsicum/captest"
	csys "github.com/go-capsicum/go-capsicum/capsicum/syscall"
	"github.com/go-capsicum/go-capsicum/casper"
	"github.com/go-capsicum/go-capsicum/casper/castest"
)

func TestUIDInCapabilityMode(t *testing.T) {
	captest.RequireCapsicum(t)
	captest.RunInSubprocess(t, func() {
		want := os.Getuid()
		b := castest.New(t, castest.UIDService())
		ch := b.Channel(t)

		if err := capsicum.Enter(); err != nil {
			t.Fatalf("Enter(): %v", err)
		}
		if !capsicum.Sandboxed() {
			t.Fatalf("Sandboxed() = false after Enter()")
		}
		if _, err := os.Open("/etc/passwd"); !errors.Is(err, csys.ECAPMODE) {
			t.Errorf("os.Open() in capability mode = %v, want %v", err, csys.ECAPMODE)
		}

		uid, err := casper.OpenService(ch, casper.UID{})
		if err != nil {
			t.Fatalf("OpenService(UID): %v", err)
		}
		defer uid.Close()
		got, err := uid.Call(struct{}{})
		if err != nil {
			t.Fatalf("Call(): %v", err)
		}
		if got != want {
			t.Errorf("Call() = %v, want %v", got, want)
		}

		clone, err := ch.TryClone()
		if err != nil {
			t.Fatalf("TryClone() in capability mode: %v", err)
		}
		defer clone.Close()
		if _, err := casper.OpenService(clone, casper.UID{}); err != nil {
			t.Errorf("OpenService() on clone: %v", err)
		}
	})
}
