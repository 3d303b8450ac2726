package main

import (
	"context"
	"flag"
	"fmt"
	"os"
)

func runCleanCommand(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("clean", flag.ContinueOnError)
	statusFlag := fs.String("status", "", "delete only agents with this status")
	all := fs.Bool("all", false, "delete every agent")
	orphans := fs.Bool("orphans", false, "also remove backend units that have no record")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "usage: warden clean [-status s | -all] [-orphans]")
		return 2
	}
	if *statusFlag == "" && !*all && !*orphans {
		fmt.Fprintln(os.Stderr, "clean needs -status, -all or -orphans (refusing to guess)")
		return 2
	}
	if *statusFlag != "" && *all {
		fmt.Fprintln(os.Stderr, "-status and -all are mutually exclusive")
		return 2
	}

	filter, ok := parseStatusFlag(*statusFlag)
	if !ok {
		fmt.Fprintf(os.Stderr, "invalid status %q\n", *statusFlag)
		return 2
	}

	a, err := newApp(false)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer a.Close()

	if *statusFlag != "" || *all {
		count, err := a.manager.Clean(ctx, filter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "clean failed: %v\n", err)
			return 1
		}
		fmt.Printf("Cleaned %d agent(s)\n", count)
	}

	if *orphans {
		count, err := a.manager.CleanOrphans(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "orphan cleanup failed: %v\n", err)
			return 1
		}
		fmt.Printf("Removed %d orphaned unit(s)\n", count)
	}
	return 0
}
