package backend

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"
)

// fakeRunner records every invocation and replays canned responses
// keyed on a joined command prefix.
type fakeRunner struct {
	calls     []string
	responses map[string]string
	failures  map[string]error
}

func (f *fakeRunner) run(_ context.Context, name string, args ...string) (string, error) {
	call := name + " " + strings.Join(args, " ")
	f.calls = append(f.calls, call)
	for prefix, err := range f.failures {
		if strings.HasPrefix(call, prefix) {
			return "", err
		}
	}
	for prefix, out := range f.responses {
		if strings.HasPrefix(call, prefix) {
			return out, nil
		}
	}
	return "", nil
}

func (f *fakeRunner) called(prefix string) bool {
	for _, call := range f.calls {
		if strings.HasPrefix(call, prefix) {
			return true
		}
	}
	return false
}

func newTestSessionBackend(runner *fakeRunner) *SessionBackend {
	b := NewSessionBackend(SessionConfig{
		Command:        "claude",
		AcceptAttempts: 2,
		AcceptInterval: time.Millisecond,
	}, nil)
	b.run = runner.run
	b.sleep = func(time.Duration) {}
	b.lookPath = func(string) (string, error) { return "/usr/bin/tmux", nil }
	return b
}

func TestUnitName_Deterministic(t *testing.T) {
	if got := UnitName("a1b2c3d4"); got != "agent-a1b2c3d4" {
		t.Fatalf("unexpected unit name %q", got)
	}
}

func TestSessionStart_ResolvesAssistantChildPID(t *testing.T) {
	runner := &fakeRunner{
		responses: map[string]string{
			"tmux list-panes": "4242",
			"pgrep -P 4242":   "4300\n4301",
		},
	}
	b := newTestSessionBackend(runner)

	ref, err := b.Start(context.Background(), "a1b2c3d4", "/tmp/work")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if ref != "4300" {
		t.Fatalf("expected assistant child pid 4300, got %q", ref)
	}
	if !runner.called("tmux new-session -d -s agent-a1b2c3d4 -c /tmp/work") {
		t.Fatalf("session not created rooted at working dir, calls: %v", runner.calls)
	}
	if !runner.called("tmux send-keys -t agent-a1b2c3d4 claude C-m") {
		t.Fatalf("assistant not launched, calls: %v", runner.calls)
	}
}

func TestSessionStart_FallsBackToPanePID(t *testing.T) {
	runner := &fakeRunner{
		responses: map[string]string{
			"tmux list-panes": "4242",
		},
		failures: map[string]error{
			"pgrep": fmt.Errorf("no match"),
		},
	}
	b := newTestSessionBackend(runner)

	ref, err := b.Start(context.Background(), "a1b2c3d4", "/tmp/work")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if ref != "4242" {
		t.Fatalf("expected pane pid fallback 4242, got %q", ref)
	}
}

func TestSessionStart_TearsDownSessionOnFailure(t *testing.T) {
	runner := &fakeRunner{
		failures: map[string]error{
			"tmux list-panes": fmt.Errorf("no panes"),
		},
	}
	b := newTestSessionBackend(runner)

	_, err := b.Start(context.Background(), "a1b2c3d4", "/tmp/work")
	if err == nil {
		t.Fatal("expected start failure")
	}
	if !runner.called("tmux kill-session -t agent-a1b2c3d4") {
		t.Fatalf("partially created session not torn down, calls: %v", runner.calls)
	}
}

func TestSessionStart_UnattendedAcceptanceProbesAndConfirms(t *testing.T) {
	runner := &fakeRunner{
		responses: map[string]string{
			"tmux capture-pane": "Do you trust the files?\n> Yes, proceed",
			"tmux list-panes":   "4242",
		},
	}
	b := newTestSessionBackend(runner)
	b.cfg.SkipPermissions = true

	if _, err := b.Start(context.Background(), "a1b2c3d4", "/tmp/work"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !runner.called("tmux send-keys -t agent-a1b2c3d4 claude --dangerously-skip-permissions C-m") {
		t.Fatalf("unattended launch missing, calls: %v", runner.calls)
	}
	if !runner.called("tmux send-keys -t agent-a1b2c3d4 Down C-m") {
		t.Fatalf("permission prompt not confirmed, calls: %v", runner.calls)
	}
}

func TestSessionStart_UnattendedAcceptanceToleratesMissingPrompt(t *testing.T) {
	runner := &fakeRunner{
		responses: map[string]string{
			"tmux capture-pane": "assistant already trusted this directory",
			"tmux list-panes":   "4242",
		},
	}
	b := newTestSessionBackend(runner)
	b.cfg.SkipPermissions = true

	if _, err := b.Start(context.Background(), "a1b2c3d4", "/tmp/work"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if runner.called("tmux send-keys -t agent-a1b2c3d4 Down C-m") {
		t.Fatalf("confirm keystroke sent without a prompt, calls: %v", runner.calls)
	}
}

func TestSessionStopAndRemove_MissingSessionIsNoError(t *testing.T) {
	runner := &fakeRunner{
		failures: map[string]error{
			"tmux has-session": fmt.Errorf("no such session"),
		},
	}
	b := newTestSessionBackend(runner)

	if err := b.Stop(context.Background(), "gone0001"); err != nil {
		t.Fatalf("stop of missing session: %v", err)
	}
	if err := b.Remove(context.Background(), "gone0001", true); err != nil {
		t.Fatalf("remove of missing session: %v", err)
	}
	if runner.called("tmux kill-session") {
		t.Fatalf("kill-session issued for missing session, calls: %v", runner.calls)
	}
}

func TestSessionAlive_MissingSessionIsFalse(t *testing.T) {
	runner := &fakeRunner{
		failures: map[string]error{
			"tmux has-session": fmt.Errorf("no such session"),
		},
	}
	b := newTestSessionBackend(runner)

	if b.Alive(context.Background(), "gone0001") {
		t.Fatal("expected not-alive for missing session")
	}
}

func TestSessionAlive_ExitedAssistantWithLivingShellIsFalse(t *testing.T) {
	// The usual end of a session: the assistant exits and the pane
	// drops back to its shell, so the pane pid is a live process but
	// pgrep finds no assistant child under it.
	runner := &fakeRunner{
		responses: map[string]string{
			"tmux list-panes": strconv.Itoa(os.Getpid()),
		},
		failures: map[string]error{
			"pgrep": fmt.Errorf("exit status 1"),
		},
	}
	b := newTestSessionBackend(runner)

	if b.Alive(context.Background(), "a1b2c3d4") {
		t.Fatal("expected not-alive when only the pane shell survives")
	}
}

func TestSessionAlive_RunningAssistantIsTrue(t *testing.T) {
	runner := &fakeRunner{
		responses: map[string]string{
			"tmux list-panes": "4242",
			"pgrep -P 4242":   strconv.Itoa(os.Getpid()),
		},
	}
	b := newTestSessionBackend(runner)

	if !b.Alive(context.Background(), "a1b2c3d4") {
		t.Fatal("expected alive for a running assistant child")
	}
}

func TestSessionAttachArgs(t *testing.T) {
	b := newTestSessionBackend(&fakeRunner{})
	got := strings.Join(b.AttachArgs("a1b2c3d4"), " ")
	if got != "tmux attach-session -t agent-a1b2c3d4" {
		t.Fatalf("unexpected attach argv %q", got)
	}
}

func TestSessionUnits_FiltersAgentSessions(t *testing.T) {
	runner := &fakeRunner{
		responses: map[string]string{
			"tmux list-sessions": "agent-a1b2c3d4\nwarden-dashboard\nagent-ffee0011\nscratch",
		},
	}
	b := newTestSessionBackend(runner)

	ids, err := b.Units(context.Background())
	if err != nil {
		t.Fatalf("units: %v", err)
	}
	if strings.Join(ids, ",") != "a1b2c3d4,ffee0011" {
		t.Fatalf("unexpected units %v", ids)
	}
}

func TestSessionUnits_NoServerIsEmpty(t *testing.T) {
	runner := &fakeRunner{
		failures: map[string]error{
			"tmux list-sessions": fmt.Errorf("no server running"),
		},
	}
	b := newTestSessionBackend(runner)

	ids, err := b.Units(context.Background())
	if err != nil || len(ids) != 0 {
		t.Fatalf("expected no units and no error, got %v, %v", ids, err)
	}
}
