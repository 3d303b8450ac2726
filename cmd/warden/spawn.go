package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/basket/warden/internal/manager"
	"github.com/basket/warden/internal/store"
)

func runSpawnCommand(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("spawn", flag.ContinueOnError)
	backendKind := fs.String("backend", "", "backend kind: session or container (default from config)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: warden spawn [-backend session|container] <repo-url>")
		return 2
	}
	repoURL := fs.Arg(0)

	kind := store.BackendKind(*backendKind)
	if kind != "" && !kind.Valid() {
		fmt.Fprintf(os.Stderr, "invalid backend %q (expected session or container)\n", *backendKind)
		return 2
	}

	a, err := newApp(false)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer a.Close()

	rec, err := a.manager.Spawn(ctx, repoURL, kind)
	if err != nil {
		var spawnErr *manager.SpawnError
		switch {
		case errors.Is(err, manager.ErrInvalidRepoURL):
			fmt.Fprintf(os.Stderr, "invalid repository URL %q (expected http://, https://, git@ or git:// prefix)\n", repoURL)
		case errors.As(err, &spawnErr):
			fmt.Fprintf(os.Stderr, "spawn failed during %s: %v\n", spawnErr.Stage, spawnErr.Err)
		default:
			fmt.Fprintf(os.Stderr, "spawn failed: %v\n", err)
		}
		return 1
	}

	fmt.Printf("Spawned agent %s\n", rec.ID)
	fmt.Printf("  backend: %s\n", rec.Backend)
	fmt.Printf("  workdir: %s\n", rec.WorkingDir)
	fmt.Printf("  attach:  warden attach %s\n", rec.ID)
	return 0
}
