package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

func runInfoCommand(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	outputLimit := fs.Int("outputs", 10, "number of recent output entries to show")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: warden info [-outputs n] <agent-id>")
		return 2
	}
	id := fs.Arg(0)

	a, err := newApp(false)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer a.Close()

	rec, err := a.manager.Get(ctx, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "info failed: %v\n", err)
		return 1
	}
	if rec == nil {
		fmt.Fprintf(os.Stderr, "no agent %q\n", id)
		return 1
	}

	fmt.Printf("%s %s\n", headerStyle.Render("Agent"), idStyle.Render(rec.ID))
	fmt.Printf("  status:   %s\n", styleStatus(rec.Status, string(rec.Status)))
	fmt.Printf("  backend:  %s\n", rec.Backend)
	fmt.Printf("  repo:     %s\n", rec.RepoURL)
	fmt.Printf("  workdir:  %s\n", rec.WorkingDir)
	if rec.RuntimeRef != "" {
		fmt.Printf("  runtime:  %s\n", rec.RuntimeRef)
	}
	fmt.Printf("  created:  %s (%s)\n", rec.CreatedAt.Format(time.RFC3339), relativeAge(rec.CreatedAt))
	fmt.Printf("  updated:  %s\n", rec.UpdatedAt.Format(time.RFC3339))

	if *outputLimit > 0 {
		outputs, err := a.manager.Outputs(ctx, id, *outputLimit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "outputs: %v\n", err)
			return 1
		}
		if len(outputs) > 0 {
			fmt.Printf("\n%s\n", headerStyle.Render("Recent output"))
			for _, out := range outputs {
				stamp := faintStyle.Render(out.CreatedAt.Format("15:04:05"))
				fmt.Printf("  %s [%s] %s\n", stamp, out.Kind, strings.TrimSpace(out.Content))
			}
		}
	}
	return 0
}
