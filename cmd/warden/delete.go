package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/basket/warden/internal/manager"
)

func runDeleteCommand(ctx context.Context, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: warden delete <agent-id>")
		return 2
	}
	id := args[0]

	a, err := newApp(false)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer a.Close()

	if err := a.manager.Delete(ctx, id); err != nil {
		if errors.Is(err, manager.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "no agent %q\n", id)
		} else {
			fmt.Fprintf(os.Stderr, "delete failed: %v\n", err)
		}
		return 1
	}

	fmt.Printf("Deleted agent %s\n", id)
	return 0
}
