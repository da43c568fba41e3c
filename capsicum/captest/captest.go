// Package captest has helpers for Capsicum-enabled tests.
package captest

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"

	csys "github.com/go-capsicum/go-capsicum/capsicum/syscall"
)

// RunInSubprocess runs the given test function in a subprocess
// and forwards its output.
//
// Use it for tests that enter capability mode or otherwise leave the
// process in a state that other tests cannot run in.
func RunInSubprocess(t *testing.T, f func()) {
	t.Helper()

	if IsRunningInSubprocess() {
		f()
		return
	}

	args := append(os.Args[1:], "-test.run="+regexp.QuoteMeta(t.Name())+"$")

	t.Setenv("TMPDIR", t.TempDir())
	t.Setenv("IS_SUBPROCESS", "yes")
	buf, err := exec.Command(os.Args[0], args...).Output()

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		t.Fatalf("Could not execute test in subprocess: %v", err)
	}

	for _, l := range strings.Split(string(buf), "\n") {
		if l == "FAIL" {
			defer func() { t.Error("Test failed in subprocess") }()
			continue
		}
		if strings.HasPrefix(l, "--- SKIP") {
			defer func() { t.Skip("Test skipped in subprocess") }()
			continue
		}
		if strings.HasPrefix(l, "===") || strings.HasPrefix(l, "---") || l == "PASS" || l == "" {
			continue
		}
		fmt.Println(l)
	}
}

func IsRunningInSubprocess() bool {
	return os.Getenv("IS_SUBPROCESS") != ""
}

// RequireCapsicum skips the test if the kernel does not provide
// Capsicum.
func RequireCapsicum(t testing.TB) {
	t.Helper()

	if _, err := csys.CapGetmode(); err != nil {
		t.Skipf("Requires Capsicum: %v", err)
	}
}

// TempFile creates a file with the given contents and returns it
// opened for reading and writing. The file is closed when the test
// ends.
//
// In subprocesses, the file is created outside of t.TempDir(), as the
// test framework could not remove it from within capability mode.
func TempFile(t testing.TB, contents string) *os.File {
	t.Helper()

	dir := os.TempDir()
	if !IsRunningInSubprocess() {
		dir = t.TempDir()
	}
	f, err := os.CreateTemp(dir, "CapsicumTestFile")
	if err != nil {
		t.Fatalf("os.CreateTemp: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	if _, err := f.WriteString(contents); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	return f
}
