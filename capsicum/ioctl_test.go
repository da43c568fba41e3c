package capsicum

import (
	"errors"
	"slices"
	"testing"
)

func TestIoctlRightsTooMany(t *testing.T) {
	cmds := make([]uint, IoctlsMaxCount+1)
	for i := range cmds {
		cmds[i] = uint(0x40000000 + i)
	}

	if _, err := NewIoctlRights(cmds...); !errors.Is(err, ErrInvalidRights) {
		t.Errorf("NewIoctlRights(%d commands) = _, %v, want %v", len(cmds), err, ErrInvalidRights)
	}

	ir, err := NewIoctlRights(cmds[:IoctlsMaxCount]...)
	if err != nil {
		t.Fatalf("NewIoctlRights(%d commands) = _, %v, want success", IoctlsMaxCount, err)
	}
	if _, err := ir.Allow(cmds[IoctlsMaxCount]); !errors.Is(err, ErrInvalidRights) {
		t.Errorf("Allow() beyond the maximum = _, %v, want %v", err, ErrInvalidRights)
	}
	if _, err := ir.Allow(cmds[0]); err != nil {
		t.Errorf("Allow() of a present command = _, %v, want success", err)
	}
}

func TestIoctlRightsSortedUnique(t *testing.T) {
	ir := MustIoctlRights(3, 1, 2, 3, 1)
	if got, want := ir.Commands(), []uint{1, 2, 3}; !slices.Equal(got, want) {
		t.Errorf("Commands() = %v, want %v", got, want)
	}
	if !ir.Contains(2) || ir.Contains(4) {
		t.Errorf("Contains() disagrees with %v", ir)
	}
	if got := ir.String(); got != "{0x1,0x2,0x3}" {
		t.Errorf("String() = %q, want %q", got, "{0x1,0x2,0x3}")
	}

	denied := ir.Deny(2, 7)
	if got, want := denied.Commands(), []uint{1, 3}; !slices.Equal(got, want) {
		t.Errorf("Deny(2, 7).Commands() = %v, want %v", got, want)
	}
	if !ir.Contains(2) {
		t.Errorf("Deny modified its receiver")
	}
}

func TestIoctlRightsZeroAndAll(t *testing.T) {
	var none IoctlRights
	if none.Unlimited() || none.Contains(1) || none.String() != "∅" {
		t.Errorf("zero IoctlRights = %v, want empty", none)
	}
	if !none.Equal(MustIoctlRights()) {
		t.Errorf("zero IoctlRights differs from MustIoctlRights()")
	}

	all := AllIoctls()
	if !all.Unlimited() || !all.Contains(0xdeadbeef) || all.Commands() != nil {
		t.Errorf("AllIoctls() = %v, want unrestricted", all)
	}
	if got := all.Deny(1); !got.Unlimited() {
		t.Errorf("AllIoctls().Deny(1) = %v, want unrestricted", got)
	}
	if got, err := all.Allow(1); err != nil || !got.Unlimited() {
		t.Errorf("AllIoctls().Allow(1) = %v, %v, want unrestricted", got, err)
	}
	// Limiting to all ioctls never reaches the kernel.
	if err := all.LimitFD(-1); err != nil {
		t.Errorf("AllIoctls().LimitFD(-1) = %v, want nil", err)
	}
}

func TestMustIoctlRightsPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("MustIoctlRights() did not panic")
		}
	}()
	cmds := make([]uint, IoctlsMaxCount+1)
	for i := range cmds {
		cmds[i] = uint(i)
	}
	MustIoctlRights(cmds...)
}
