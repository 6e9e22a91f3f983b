package main

import (
	"fmt"
	"io"

	"github.com/pixperk/objmutex/pkg/envsnap"
	"github.com/pixperk/objmutex/pkg/openjd"
)

func runVars(args []string, stdout, stderr io.Writer) int {
	if len(args) != 2 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	switch action, path := args[0], args[1]; action {
	case "start":
		if err := envsnap.Save(path, envsnap.Current()); err != nil {
			openjd.Fail(stdout, err.Error())
			return 1
		}
	case "capture":
		before, err := envsnap.Load(path)
		if err != nil {
			openjd.Fail(stdout, err.Error())
			return 1
		}
		if err := envsnap.Compare(before, envsnap.Current()).Write(stdout); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
	default:
		fmt.Fprintf(stderr, "unknown vars action %q\n", action)
		return 2
	}
	return 0
}
