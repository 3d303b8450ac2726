// Command warden supervises ephemeral coding-agent workspaces: each
// agent is a fresh clone of a repository paired with one interactive
// assistant process in a tmux session or a Docker container.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/basket/warden/internal/secrets"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.1-dev"

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: %s <command> [options]

COMMANDS:
  spawn <repo-url>            Create a new agent for the repository
                              Options: -backend session|container
  list                        List agents (alias: ls)
                              Options: -status spawning|running|stopped|error
  info <agent-id>             Show one agent in detail, with recent output
                              Options: -outputs <n>
  attach <agent-id>           Attach the terminal to an agent's session
  attach -all                 Tiled dashboard over every running agent
  stop <agent-id>             Stop an agent and remove its working directory
                              Options: -keep-workdir
  delete <agent-id>           Stop and fully remove an agent (alias: rm)
  clean                       Bulk-delete agents
                              Options: -status <s> | -all, -orphans
  doctor                      Run environment diagnostics
                              Options: -json, -rebuild-image
  help                        Show this message

ENVIRONMENT VARIABLES:
  WARDEN_HOME                 Data directory (default: ~/.warden)
  WARDEN_AGENTS_DIR           Where agent clones are created
  WARDEN_BACKEND              Default backend kind
  ANTHROPIC_API_KEY           Injected into container agents

EXAMPLES:
  %s spawn https://github.com/user/repo
  %s list -status running
  %s attach 1a2b3c4d
  %s clean -status error
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0])
}

func main() {
	secrets.Load(".env")

	flag.Usage = printUsage
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "-h", "--help":
		printUsage()
		os.Exit(0)
	case "spawn":
		os.Exit(runSpawnCommand(ctx, args[1:]))
	case "list", "ls":
		os.Exit(runListCommand(ctx, args[1:]))
	case "info":
		os.Exit(runInfoCommand(ctx, args[1:]))
	case "attach":
		os.Exit(runAttachCommand(ctx, args[1:]))
	case "stop":
		os.Exit(runStopCommand(ctx, args[1:]))
	case "delete", "rm":
		os.Exit(runDeleteCommand(ctx, args[1:]))
	case "clean":
		os.Exit(runCleanCommand(ctx, args[1:]))
	case "doctor":
		os.Exit(runDoctorCommand(ctx, args[1:]))
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
}
