package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/basket/warden/internal/manager"
)

func runStopCommand(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("stop", flag.ContinueOnError)
	keepWorkdir := fs.Bool("keep-workdir", false, "keep the working directory and a stopped record")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: warden stop [-keep-workdir] <agent-id>")
		return 2
	}
	id := fs.Arg(0)

	a, err := newApp(false)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer a.Close()

	if err := a.manager.Stop(ctx, id, !*keepWorkdir); err != nil {
		if errors.Is(err, manager.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "no agent %q\n", id)
		} else {
			fmt.Fprintf(os.Stderr, "stop failed: %v\n", err)
		}
		return 1
	}

	if *keepWorkdir {
		fmt.Printf("Stopped agent %s (workdir kept)\n", id)
	} else {
		fmt.Printf("Stopped and removed agent %s\n", id)
	}
	return 0
}
