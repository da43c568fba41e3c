package casper_test

import (
	"errors"
	"os"
	"strconv"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/go-capsicum/go-capsicum/casper"
	"github.com/go-capsicum/go-capsicum/casper/castest"
)

func TestConnect(t *testing.T) {
	const env = "CASPER_TEST_FD"
	b := castest.New(t, castest.UIDService())

	f, err := b.Socket()
	if err != nil {
		t.Fatalf("Socket(): %v", err)
	}
	fd, err := unix.Dup(int(f.Fd()))
	f.Close()
	if err != nil {
		t.Fatalf("Dup(): %v", err)
	}
	t.Setenv(env, strconv.Itoa(fd))

	cfg := casper.Config{EnvVar: env}
	ch, err := cfg.Connect()
	if err != nil {
		t.Fatalf("Connect(): %v", err)
	}
	defer ch.Close()

	uid, err := casper.OpenService(ch, casper.UID{})
	if err != nil {
		t.Fatalf("OpenService(UID): %v", err)
	}
	defer uid.Close()
	if _, err := uid.Call(struct{}{}); err != nil {
		t.Errorf("Call(): %v", err)
	}

	if _, err := cfg.Connect(); !errors.Is(err, casper.ErrConnection) {
		t.Errorf("second Connect() = %v, want %v", err, casper.ErrConnection)
	}
}

func TestConnectErrors(t *testing.T) {
	const env = "CASPER_TEST_FD"
	for _, tt := range []struct {
		Name  string
		Value *string
	}{
		{Name: "Unset"},
		{Name: "Empty", Value: ptr("")},
		{Name: "NotANumber", Value: ptr("three")},
		{Name: "Negative", Value: ptr("-1")},
		{Name: "NotOpen", Value: ptr("987654")},
	} {
		t.Run(tt.Name, func(t *testing.T) {
			t.Setenv(env, "")
			if tt.Value == nil {
				os.Unsetenv(env)
			} else {
				t.Setenv(env, *tt.Value)
			}
			if _, err := (casper.Config{EnvVar: env}).Connect(); !errors.Is(err, casper.ErrConnection) {
				t.Errorf("Connect() = %v, want %v", err, casper.ErrConnection)
			}
		})
	}
}

func TestConnectNotASocket(t *testing.T) {
	const env = "CASPER_TEST_FD"
	fd, err := unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("Open(/dev/null): %v", err)
	}
	t.Setenv(env, strconv.Itoa(fd))

	if _, err := (casper.Config{EnvVar: env}).Connect(); !errors.Is(err, casper.ErrConnection) {
		t.Errorf("Connect() = %v, want %v", err, casper.ErrConnection)
	}
}

func ptr[T any](v T) *T { return &v }
