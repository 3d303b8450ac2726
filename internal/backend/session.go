package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/basket/warden/internal/store"
)

// commandRunner executes an external command and returns its combined
// trimmed output. Injected in tests.
type commandRunner func(ctx context.Context, name string, args ...string) (string, error)

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	trimmed := strings.TrimSpace(string(out))
	if err != nil {
		if trimmed != "" {
			return trimmed, fmt.Errorf("%s %s: %s: %w", name, strings.Join(args, " "), trimmed, err)
		}
		return trimmed, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return trimmed, nil
}

// SessionConfig tunes how the assistant is launched inside a session.
type SessionConfig struct {
	// Command is the assistant binary invoked inside the session.
	Command string

	// SkipPermissions launches the assistant in unattended-acceptance
	// mode and drives its first-run permission prompt.
	SkipPermissions bool

	// AcceptPrompt is the substring probed for in the pane when waiting
	// for the permission prompt to render.
	AcceptPrompt string

	// AcceptAttempts / AcceptInterval bound the probe-and-confirm loop.
	// The prompt race depends on the assistant's startup latency, so
	// the sequence is retried rather than driven by one fixed sleep.
	AcceptAttempts int
	AcceptInterval time.Duration
}

func (c *SessionConfig) applyDefaults() {
	if c.Command == "" {
		c.Command = "claude"
	}
	if c.AcceptPrompt == "" {
		c.AcceptPrompt = "Yes, proceed"
	}
	if c.AcceptAttempts <= 0 {
		c.AcceptAttempts = 8
	}
	if c.AcceptInterval <= 0 {
		c.AcceptInterval = 500 * time.Millisecond
	}
}

// SessionBackend runs each agent in a named host-local tmux session.
// One session per agent, name derived from the agent id.
type SessionBackend struct {
	cfg    SessionConfig
	logger *slog.Logger

	run      commandRunner
	sleep    func(time.Duration)
	lookPath func(string) (string, error)
}

func NewSessionBackend(cfg SessionConfig, logger *slog.Logger) *SessionBackend {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionBackend{
		cfg:      cfg,
		logger:   logger,
		run:      runCommand,
		sleep:    time.Sleep,
		lookPath: exec.LookPath,
	}
}

func (b *SessionBackend) Kind() store.BackendKind {
	return store.BackendSession
}

// Start creates the session rooted at workingDir, launches the
// assistant and returns the assistant's process id. Liveness and stop
// must target the real assistant process, not the multiplexer shell,
// so the leaf pane's child is resolved after launch.
func (b *SessionBackend) Start(ctx context.Context, agentID, workingDir string) (string, error) {
	if _, err := b.lookPath("tmux"); err != nil {
		return "", fmt.Errorf("tmux not found on PATH: %w", ErrUnavailable)
	}

	name := UnitName(agentID)

	// A stale session with the same name belongs to a previous
	// incarnation of this agent id; replace it.
	_, _ = b.run(ctx, "tmux", "kill-session", "-t", name)

	if _, err := b.run(ctx, "tmux", "new-session", "-d", "-s", name, "-c", workingDir); err != nil {
		return "", fmt.Errorf("create session %q: %w", name, err)
	}

	if err := b.launchAssistant(ctx, name); err != nil {
		_, _ = b.run(ctx, "tmux", "kill-session", "-t", name)
		return "", err
	}

	pid, err := b.resolveAssistantPID(ctx, name)
	if err != nil {
		_, _ = b.run(ctx, "tmux", "kill-session", "-t", name)
		return "", err
	}
	b.logger.Info("session started", "agent_id", agentID, "session", name, "pid", pid)
	return strconv.Itoa(pid), nil
}

func (b *SessionBackend) launchAssistant(ctx context.Context, name string) error {
	if !b.cfg.SkipPermissions {
		if _, err := b.run(ctx, "tmux", "send-keys", "-t", name, b.cfg.Command, "C-m"); err != nil {
			return fmt.Errorf("launch assistant: %w", err)
		}
		b.sleep(b.cfg.AcceptInterval)
		return nil
	}

	cmd := b.cfg.Command + " --dangerously-skip-permissions"
	if _, err := b.run(ctx, "tmux", "send-keys", "-t", name, cmd, "C-m"); err != nil {
		return fmt.Errorf("launch assistant: %w", err)
	}

	// Probe-and-confirm: wait for the permission prompt to render,
	// then answer it. The prompt may never appear (already accepted on
	// this host), in which case the loop simply expires.
	for attempt := 0; attempt < b.cfg.AcceptAttempts; attempt++ {
		b.sleep(b.cfg.AcceptInterval)
		pane, err := b.run(ctx, "tmux", "capture-pane", "-p", "-t", name)
		if err != nil {
			continue
		}
		if strings.Contains(pane, b.cfg.AcceptPrompt) {
			if _, err := b.run(ctx, "tmux", "send-keys", "-t", name, "Down", "C-m"); err != nil {
				return fmt.Errorf("confirm permission prompt: %w", err)
			}
			b.sleep(b.cfg.AcceptInterval)
			return nil
		}
	}
	return nil
}

// resolveAssistantPID inspects the session's leaf pane process and
// prefers its assistant child; the pane pid is the fallback when the
// child has not forked yet right after launch.
func (b *SessionBackend) resolveAssistantPID(ctx context.Context, name string) (int, error) {
	if pid, err := b.assistantChildPID(ctx, name); err == nil {
		return pid, nil
	}
	return b.panePID(ctx, name)
}

func (b *SessionBackend) panePID(ctx context.Context, name string) (int, error) {
	out, err := b.run(ctx, "tmux", "list-panes", "-t", name, "-F", "#{pane_pid}")
	if err != nil {
		return 0, fmt.Errorf("resolve pane pid: %w", err)
	}
	panePID, err := strconv.Atoi(strings.SplitN(out, "\n", 2)[0])
	if err != nil {
		return 0, fmt.Errorf("parse pane pid %q: %w", out, err)
	}
	return panePID, nil
}

// assistantChildPID finds the assistant process under the session's
// leaf pane. Errors when no such child exists, which after a normal
// assistant exit leaves only the pane shell behind.
func (b *SessionBackend) assistantChildPID(ctx context.Context, name string) (int, error) {
	panePID, err := b.panePID(ctx, name)
	if err != nil {
		return 0, err
	}
	children, err := b.run(ctx, "pgrep", "-P", strconv.Itoa(panePID), baseCommand(b.cfg.Command))
	if err != nil || children == "" {
		return 0, fmt.Errorf("no assistant process under pane %d", panePID)
	}
	pid, err := strconv.Atoi(strings.SplitN(children, "\n", 2)[0])
	if err != nil {
		return 0, fmt.Errorf("parse assistant pid %q: %w", children, err)
	}
	return pid, nil
}

func baseCommand(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return command
	}
	return fields[0]
}

// Attach connects the controlling terminal to the agent's session and
// blocks until detach or interrupt, both of which return nil.
func (b *SessionBackend) Attach(ctx context.Context, agentID string) error {
	name := UnitName(agentID)
	if !b.sessionExists(ctx, name) {
		return fmt.Errorf("session %q: %w", name, ErrNotFound)
	}

	cmd := exec.CommandContext(ctx, "tmux", "attach-session", "-t", name)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		if isInteractiveEnd(ctx, err) {
			return nil
		}
		return fmt.Errorf("attach to session %q: %w", name, err)
	}
	return nil
}

// isInteractiveEnd reports whether an attach command ended the way any
// blocking terminal session ends: caller cancellation or an interrupt
// delivered to the foreground process.
func isInteractiveEnd(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			sig := status.Signal()
			return sig == syscall.SIGINT || sig == syscall.SIGTERM || sig == syscall.SIGHUP
		}
	}
	return false
}

// Stop terminates the assistant process, then the session. Both are
// best effort; a missing session is success.
func (b *SessionBackend) Stop(ctx context.Context, agentID string) error {
	name := UnitName(agentID)
	if !b.sessionExists(ctx, name) {
		return nil
	}
	if pid, err := b.assistantChildPID(ctx, name); err == nil {
		// SIGTERM the assistant itself so it can flush state before
		// the session goes away.
		_ = syscall.Kill(pid, syscall.SIGTERM)
	}
	_, _ = b.run(ctx, "tmux", "kill-session", "-t", name)
	return nil
}

// Remove is equivalent to Stop for sessions; tmux has no stopped-but-
// present unit state to delete.
func (b *SessionBackend) Remove(ctx context.Context, agentID string, force bool) error {
	name := UnitName(agentID)
	if !b.sessionExists(ctx, name) {
		return nil
	}
	if !force {
		return b.Stop(ctx, agentID)
	}
	_, _ = b.run(ctx, "tmux", "kill-session", "-t", name)
	return nil
}

// Alive reports whether the agent's session exists and its assistant
// process is still running. The pane shell outliving the assistant is
// the normal way a session dies, so only a live assistant child
// counts; probing the pane pid here would keep dead agents running
// forever.
func (b *SessionBackend) Alive(ctx context.Context, agentID string) bool {
	name := UnitName(agentID)
	if !b.sessionExists(ctx, name) {
		return false
	}
	pid, err := b.assistantChildPID(ctx, name)
	if err != nil {
		return false
	}
	return processAlive(pid)
}

func (b *SessionBackend) sessionExists(ctx context.Context, name string) bool {
	_, err := b.run(ctx, "tmux", "has-session", "-t", name)
	return err == nil
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}

func (b *SessionBackend) AttachArgs(agentID string) []string {
	return []string{"tmux", "attach-session", "-t", UnitName(agentID)}
}

// Units lists the agent ids of every agent session currently known to
// the tmux server. No running server means no units.
func (b *SessionBackend) Units(ctx context.Context) ([]string, error) {
	if _, err := b.lookPath("tmux"); err != nil {
		return nil, nil
	}
	out, err := b.run(ctx, "tmux", "list-sessions", "-F", "#{session_name}")
	if err != nil {
		return nil, nil
	}
	var ids []string
	for _, name := range strings.Split(out, "\n") {
		name = strings.TrimSpace(name)
		if id, ok := strings.CutPrefix(name, unitPrefix); ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
