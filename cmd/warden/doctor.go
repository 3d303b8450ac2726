package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/basket/warden/internal/config"
	"github.com/basket/warden/internal/doctor"
)

func runDoctorCommand(ctx context.Context, args []string) int {
	jsonOutput := false
	rebuildImage := false
	for _, arg := range args {
		switch arg {
		case "-json", "--json":
			jsonOutput = true
		case "-rebuild-image", "--rebuild-image":
			rebuildImage = true
		default:
			fmt.Fprintf(os.Stderr, "unknown flag %q\nusage: warden doctor [-json] [-rebuild-image]\n", arg)
			return 2
		}
	}

	if rebuildImage {
		if code := rebuildAgentImage(ctx); code != 0 {
			return code
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		// Continue anyway to diagnose why.
	}

	diag := doctor.Run(ctx, &cfg, Version)

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(diag); err != nil {
			fmt.Fprintf(os.Stderr, "error encoding json: %v\n", err)
			return 1
		}
		if diag.Failed() {
			return 1
		}
		return 0
	}

	fmt.Printf("Warden Doctor Report (%s)\n", diag.Timestamp.Format(time.RFC3339))
	fmt.Printf("System: %s/%s (%s)\n", diag.System.OS, diag.System.Arch, diag.System.Go)
	fmt.Println("---")

	for _, res := range diag.Results {
		icon := "✅"
		switch res.Status {
		case "FAIL":
			icon = "❌"
		case "WARN":
			icon = "⚠️ "
		case "SKIP":
			icon = "⏩"
		}
		fmt.Printf("%s %-12s: %s\n", icon, res.Name, res.Message)
		if res.Detail != "" {
			fmt.Printf("    %s\n", res.Detail)
		}
	}

	if diag.Failed() {
		return 1
	}
	return 0
}

// rebuildAgentImage drops the cached agent image and builds a fresh
// one from the embedded Dockerfile.
func rebuildAgentImage(ctx context.Context) int {
	a, err := newApp(false)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer a.Close()

	images := a.container.Images()
	if err := images.Invalidate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "invalidate image: %v\n", err)
		return 1
	}
	if err := images.Ensure(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "rebuild image: %v\n", err)
		return 1
	}
	fmt.Printf("Rebuilt agent image %s\n", a.cfg.Container.Image)
	return 0
}
