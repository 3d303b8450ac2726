package backend

import (
	"context"
	"fmt"
	"testing"
)

func newTestDashboard(runner *fakeRunner) *Dashboard {
	d := NewDashboard(nil)
	d.run = runner.run
	d.lookPath = func(string) (string, error) { return "/usr/bin/tmux", nil }
	return d
}

func TestDashboardCompose_OnePanePerAgentTiled(t *testing.T) {
	runner := &fakeRunner{}
	d := newTestDashboard(runner)

	panes := [][]string{
		{"tmux", "attach-session", "-t", "agent-aaaa0001"},
		{"docker", "exec", "-it", "agent-bbbb0002", "tmux", "attach-session", "-t", "warden"},
		{"tmux", "attach-session", "-t", "agent-cccc0003"},
	}
	if err := d.compose(context.Background(), panes); err != nil {
		t.Fatalf("compose: %v", err)
	}

	if !runner.called("tmux kill-session -t " + DashboardSession) {
		t.Fatalf("stale dashboard not replaced, calls: %v", runner.calls)
	}
	if !runner.called("tmux new-session -d -s " + DashboardSession) {
		t.Fatalf("dashboard session not created, calls: %v", runner.calls)
	}
	if !runner.called("tmux send-keys -t " + DashboardSession + ":0.0 tmux attach-session -t agent-aaaa0001 C-m") {
		t.Fatalf("first pane not linked, calls: %v", runner.calls)
	}
	if !runner.called("tmux send-keys -t " + DashboardSession + ":0.1 docker exec -it agent-bbbb0002 tmux attach-session -t warden C-m") {
		t.Fatalf("container pane not linked, calls: %v", runner.calls)
	}
	if !runner.called("tmux select-layout -t " + DashboardSession + " tiled") {
		t.Fatalf("layout not tiled, calls: %v", runner.calls)
	}
}

func TestDashboardCompose_PaneFailureSkippedNotFatal(t *testing.T) {
	runner := &fakeRunner{
		failures: map[string]error{
			"tmux split-window": fmt.Errorf("pane limit"),
		},
	}
	d := newTestDashboard(runner)

	panes := [][]string{
		{"tmux", "attach-session", "-t", "agent-aaaa0001"},
		{"tmux", "attach-session", "-t", "agent-bbbb0002"},
	}
	if err := d.compose(context.Background(), panes); err != nil {
		t.Fatalf("compose should tolerate pane failure: %v", err)
	}
}

func TestDashboardCompose_NoPanes(t *testing.T) {
	d := newTestDashboard(&fakeRunner{})
	if err := d.compose(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty dashboard")
	}
}

func TestShellJoin_QuotesUnsafeArgs(t *testing.T) {
	got := shellJoin([]string{"tmux", "send", "hello world", "it's"})
	want := `tmux send 'hello world' 'it'\''s'`
	if got != want {
		t.Fatalf("shellJoin = %q, want %q", got, want)
	}
}
