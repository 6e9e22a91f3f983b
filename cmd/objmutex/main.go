package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

const usage = `usage: objmutex [-config file] <command> [arguments]

commands:
  enter <url>            wait for and take the mutex guarding the object at url
  exit <url>             release the mutex if this session still holds it
  serve [flags]          run a replicated store node
  vars start <file>      save the environment to file
  vars capture <file>    print openjd_env lines for changes since start
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// stdout carries only openjd protocol lines, narration goes to the log on stderr
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("objmutex", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := fs.String("config", "", "YAML config file")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return 2
	}

	switch cmd := rest[0]; cmd {
	case "enter", "exit":
		return runMutex(ctx, cmd, rest[1:], *configPath, stdout, stderr)
	case "serve":
		return runServe(ctx, rest[1:], *configPath, stdout, stderr)
	case "vars":
		return runVars(rest[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		fs.Usage()
		return 2
	}
}
