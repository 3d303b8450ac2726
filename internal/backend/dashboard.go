package backend

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// DashboardSession is the tmux session name the multi-agent view is
// composed in. Killing it never touches member sessions: each pane
// only replays an attach command.
const DashboardSession = "warden-dashboard"

// Dashboard tiles one attach command per agent into a single tmux
// session. Convenience composition only; it owns no agent resources.
type Dashboard struct {
	logger   *slog.Logger
	run      commandRunner
	lookPath func(string) (string, error)
}

func NewDashboard(logger *slog.Logger) *Dashboard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dashboard{logger: logger, run: runCommand, lookPath: exec.LookPath}
}

// Open rebuilds the dashboard session with one pane per attach argv,
// tiles it evenly, and attaches the caller's terminal.
func (d *Dashboard) Open(ctx context.Context, panes [][]string) error {
	if err := d.compose(ctx, panes); err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, "tmux", "attach-session", "-t", DashboardSession)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		if isInteractiveEnd(ctx, err) {
			return nil
		}
		return fmt.Errorf("attach to dashboard: %w", err)
	}
	return nil
}

// compose rebuilds the dashboard session with one pane per attach
// argv. A pane that cannot be created or linked is skipped, never
// fatal for the batch.
func (d *Dashboard) compose(ctx context.Context, panes [][]string) error {
	if _, err := d.lookPath("tmux"); err != nil {
		return fmt.Errorf("tmux not found on PATH: %w", ErrUnavailable)
	}
	if len(panes) == 0 {
		return fmt.Errorf("no panes to open")
	}

	_, _ = d.run(ctx, "tmux", "kill-session", "-t", DashboardSession)

	if _, err := d.run(ctx, "tmux", "new-session", "-d", "-s", DashboardSession); err != nil {
		return fmt.Errorf("create dashboard session: %w", err)
	}
	if _, err := d.run(ctx, "tmux", "send-keys", "-t", paneTarget(0), shellJoin(panes[0]), "C-m"); err != nil {
		return fmt.Errorf("link first pane: %w", err)
	}

	for i, argv := range panes[1:] {
		if _, err := d.run(ctx, "tmux", "split-window", "-t", DashboardSession+":0", "-d"); err != nil {
			d.logger.Warn("dashboard pane skipped", "pane", i+1, "error", err)
			continue
		}
		if _, err := d.run(ctx, "tmux", "send-keys", "-t", paneTarget(i+1), shellJoin(argv), "C-m"); err != nil {
			d.logger.Warn("dashboard pane link failed", "pane", i+1, "error", err)
		}
	}

	if _, err := d.run(ctx, "tmux", "select-layout", "-t", DashboardSession, "tiled"); err != nil {
		return fmt.Errorf("tile dashboard: %w", err)
	}
	return nil
}

func paneTarget(index int) string {
	return fmt.Sprintf("%s:0.%d", DashboardSession, index)
}

// shellJoin renders an argv as a single tmux send-keys command line,
// quoting arguments that would otherwise split.
func shellJoin(argv []string) string {
	parts := make([]string, 0, len(argv))
	for _, arg := range argv {
		if arg == "" || strings.ContainsAny(arg, " \t'\"$&|;<>()") {
			parts = append(parts, "'"+strings.ReplaceAll(arg, "'", `'\''`)+"'")
			continue
		}
		parts = append(parts, arg)
	}
	return strings.Join(parts, " ")
}
