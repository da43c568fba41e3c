package main

import (
	"fmt"
	"log"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
)

func usage(flags *pflag.FlagSet) {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  capsicum-restrict [OPTIONS] -- COMMAND...")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Options:")
	fmt.Fprint(os.Stderr, flags.FlagUsages())
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Limits descriptors inherited by COMMAND. Each of --fd, --ioctls and")
	fmt.Fprintln(os.Stderr, "--fcntls restricts only its own family; a family not named for a")
	fmt.Fprintln(os.Stderr, "descriptor stays unrestricted. An empty list (as in --fd 0= or")
	fmt.Fprintln(os.Stderr, "--ioctls 0=) denies the whole family.")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Example:")
	fmt.Fprintln(os.Stderr, "  capsicum-restrict --fd 0=read,seek,fstat --fd 1=write --fd 2=write -- /bin/cat")
}

func parseFlags(args []string) (verbose bool, pol *Policy, cmd []string) {
	var (
		policyFile     string
		fds            []string
		ioctls, fcntls []string
	)
	flags := pflag.NewFlagSet("capsicum-restrict", pflag.ContinueOnError)
	flags.SetInterspersed(false)
	flags.BoolVarP(&verbose, "verbose", "v", false, "print the policy before executing")
	flags.StringVar(&policyFile, "policy", "", "read limits from a YAML or JSONC `file`")
	flags.StringArrayVar(&fds, "fd", nil, "limit descriptor `FD=RIGHT,...` to the given rights")
	flags.StringArrayVar(&ioctls, "ioctls", nil, "limit descriptor `FD=CMD,...` to the given ioctl commands")
	flags.StringArrayVar(&fcntls, "fcntls", nil, "limit descriptor `FD=NAME,...` to the given fcntl commands")
	flags.Usage = func() { usage(flags) }

	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			os.Exit(0)
		}
		log.Fatalf("%v", err)
	}

	pol = &Policy{}
	if policyFile != "" {
		p, err := ReadPolicy(policyFile)
		if err != nil {
			log.Fatalf("policy: %v", err)
		}
		pol = p
	}
	for _, add := range []struct {
		vals []string
		fn   func(string) error
	}{
		{fds, pol.AddRights},
		{ioctls, pol.AddIoctls},
		{fcntls, pol.AddFcntls},
	} {
		for _, v := range add.vals {
			if err := add.fn(v); err != nil {
				log.Fatalf("%v", err)
			}
		}
	}
	return verbose, pol, flags.Args()
}

func main() {
	verbose, pol, cmdArgs := parseFlags(os.Args[1:])

	if len(cmdArgs) < 1 {
		log.Fatalf("Need proper command, got %v", cmdArgs)
	}
	if !strings.HasPrefix(cmdArgs[0], "/") {
		log.Fatalf("Need absolute binary path, got %q", cmdArgs[0])
	}

	if verbose {
		for _, d := range pol.Descriptors {
			fmt.Fprintf(os.Stderr, "fd %d: rights %v, ioctls %v, fcntls %v\n", d.FD, d.Rights, d.Ioctls, d.Fcntls)
		}
		fmt.Fprintf(os.Stderr, "Executing command %v\n", cmdArgs)
	}

	if err := pol.Apply(); err != nil {
		log.Fatalf("capsicum: %v", err)
	}
	if err := syscall.Exec(cmdArgs[0], cmdArgs, os.Environ()); err != nil {
		log.Fatalf("execve: %v", err)
	}
}
