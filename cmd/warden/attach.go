package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/basket/warden/internal/manager"
)

func runAttachCommand(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("attach", flag.ContinueOnError)
	all := fs.Bool("all", false, "open a tiled dashboard over every running agent")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if !isatty.IsTerminal(os.Stdin.Fd()) || !isatty.IsTerminal(os.Stdout.Fd()) {
		fmt.Fprintln(os.Stderr, "attach requires an interactive terminal")
		return 1
	}

	// Attach hands the terminal to tmux or docker, so logs go to the
	// file only.
	a, err := newApp(true)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer a.Close()

	if *all {
		if fs.NArg() != 0 {
			fmt.Fprintln(os.Stderr, "usage: warden attach -all")
			return 2
		}
		if err := a.manager.AttachAll(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "attach failed: %v\n", err)
			return 1
		}
		return 0
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: warden attach <agent-id> | warden attach -all")
		return 2
	}
	id := fs.Arg(0)

	if err := a.manager.Attach(ctx, id); err != nil {
		switch {
		case errors.Is(err, manager.ErrNotFound):
			fmt.Fprintf(os.Stderr, "no agent %q\n", id)
		case errors.Is(err, manager.ErrStaleAgent):
			fmt.Fprintf(os.Stderr, "agent %s is no longer running; its record has been marked stopped\n", id)
		default:
			fmt.Fprintf(os.Stderr, "attach failed: %v\n", err)
		}
		return 1
	}
	return 0
}
