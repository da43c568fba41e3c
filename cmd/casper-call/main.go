// casper-call sends one command to a Casper service over the broker
// channel inherited from the parent process, and prints the response
// as YAML.
package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/go-capsicum/go-capsicum/capsicum"
	"github.com/go-capsicum/go-capsicum/casper"
	"github.com/go-capsicum/go-capsicum/casper/message"
)

func usage(flags *pflag.FlagSet) {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  casper-call [OPTIONS] SERVICE COMMAND [NAME[:KIND]=VALUE...]")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Options:")
	fmt.Fprint(os.Stderr, flags.FlagUsages())
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "KIND is string (default), int, bool, binary (hex), []string or []int.")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Example:")
	fmt.Fprintln(os.Stderr, "  casper-call --enter system.pwd getpwuid uid:int=0")
}

func main() {
	var (
		cfg     casper.Config
		enter   bool
		verbose bool
		limits  []string
	)
	flags := pflag.NewFlagSet("casper-call", pflag.ContinueOnError)
	flags.SetInterspersed(false)
	flags.StringVar(&cfg.EnvVar, "env", casper.DefaultEnvVar, "environment `variable` holding the broker descriptor")
	flags.IntVar(&cfg.MaxMessageSize, "max-size", message.DefaultMaxFrameSize, "largest message to send or accept, in `bytes`")
	flags.BoolVar(&enter, "enter", false, "enter capability mode before opening the service")
	flags.StringArrayVar(&limits, "limit", nil, "set a session limit `NAME[:KIND]=VALUE` before the command")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log channel and session events to stderr")
	flags.Usage = func() { usage(flags) }

	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			os.Exit(0)
		}
		log.Fatalf("%v", err)
	}
	args := flags.Args()
	if len(args) < 2 {
		usage(flags)
		log.Fatalf("Need service and command, got %v", args)
	}
	service, command := args[0], args[1]

	req, err := parseArgs(args[2:])
	if err != nil {
		log.Fatalf("%v", err)
	}
	var lim *message.Message
	if len(limits) > 0 {
		if lim, err = parseArgs(limits); err != nil {
			log.Fatalf("limit: %v", err)
		}
	}

	if verbose {
		cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	ch, err := cfg.Connect()
	if err != nil {
		log.Fatalf("casper: %v", err)
	}
	defer ch.Close()

	if enter {
		if err := capsicum.Enter(); err != nil {
			log.Fatalf("capsicum: %v", err)
		}
	}

	s, err := ch.Open(service)
	if err != nil {
		log.Fatalf("casper: %v", err)
	}
	defer s.Close()
	if lim != nil {
		if err := s.LimitSet(lim); err != nil {
			log.Fatalf("casper: %v", err)
		}
	}

	resp, err := s.Command(command, req)
	if err != nil {
		log.Fatalf("casper: %v", err)
	}
	out, err := yaml.Marshal(plain(resp))
	if err != nil {
		log.Fatalf("yaml: %v", err)
	}
	os.Stdout.Write(out)
}
