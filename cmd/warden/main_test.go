package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/basket/warden/internal/store"
)

func TestParseStatusFlag(t *testing.T) {
	if got, ok := parseStatusFlag(""); !ok || got != nil {
		t.Errorf("empty flag should be a nil filter, got %v ok=%v", got, ok)
	}
	got, ok := parseStatusFlag("Running")
	if !ok || got == nil || *got != store.StatusRunning {
		t.Errorf("parseStatusFlag(Running) = %v ok=%v", got, ok)
	}
	if _, ok := parseStatusFlag("bogus"); ok {
		t.Error("bogus status should be rejected")
	}
}

func TestRelativeAge(t *testing.T) {
	now := time.Now()
	cases := []struct {
		t    time.Time
		want string
	}{
		{now.Add(-10 * time.Second), "just now"},
		{now.Add(-5 * time.Minute), "5m ago"},
		{now.Add(-3 * time.Hour), "3h ago"},
		{now.Add(-49 * time.Hour), "2d ago"},
	}
	for _, tc := range cases {
		if got := relativeAge(tc.t); got != tc.want {
			t.Errorf("relativeAge(%v) = %q, want %q", tc.t, got, tc.want)
		}
	}
}

func TestRenderAgentTable(t *testing.T) {
	recs := []store.AgentRecord{
		{
			ID:        "abc12345",
			RepoURL:   "https://example.com/repo.git",
			Status:    store.StatusRunning,
			Backend:   store.BackendContainer,
			CreatedAt: time.Now(),
		},
	}
	out := renderAgentTable(recs)
	for _, want := range []string{"abc12345", "running", "container", "https://example.com/repo.git", "ID", "STATUS"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestSpawnCommand_ArgValidation(t *testing.T) {
	ctx := context.Background()
	if code := runSpawnCommand(ctx, nil); code != 2 {
		t.Errorf("no args: code = %d, want 2", code)
	}
	if code := runSpawnCommand(ctx, []string{"-backend", "vm", "https://example.com/r.git"}); code != 2 {
		t.Errorf("bad backend: code = %d, want 2", code)
	}
}

func TestStopCommand_ArgValidation(t *testing.T) {
	if code := runStopCommand(context.Background(), nil); code != 2 {
		t.Errorf("no args: code = %d, want 2", code)
	}
}

func TestDeleteCommand_ArgValidation(t *testing.T) {
	if code := runDeleteCommand(context.Background(), nil); code != 2 {
		t.Errorf("no args: code = %d, want 2", code)
	}
}

func TestInfoCommand_ArgValidation(t *testing.T) {
	if code := runInfoCommand(context.Background(), nil); code != 2 {
		t.Errorf("no args: code = %d, want 2", code)
	}
}

func TestCleanCommand_ArgValidation(t *testing.T) {
	ctx := context.Background()
	if code := runCleanCommand(ctx, nil); code != 2 {
		t.Errorf("no selector: code = %d, want 2", code)
	}
	if code := runCleanCommand(ctx, []string{"-status", "running", "-all"}); code != 2 {
		t.Errorf("-status with -all: code = %d, want 2", code)
	}
	if code := runCleanCommand(ctx, []string{"-status", "bogus"}); code != 2 {
		t.Errorf("bad status: code = %d, want 2", code)
	}
}

func TestDoctorCommand_RejectsUnknownFlag(t *testing.T) {
	if code := runDoctorCommand(context.Background(), []string{"-frobnicate"}); code != 2 {
		t.Errorf("unknown flag: code = %d, want 2", code)
	}
}

func TestAttachCommand_RequiresTerminal(t *testing.T) {
	// go test never runs with a TTY on stdin.
	if code := runAttachCommand(context.Background(), []string{"abc12345"}); code != 1 {
		t.Errorf("non-tty attach: code = %d, want 1", code)
	}
}
