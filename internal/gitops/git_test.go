package gitops

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"testing"
)

type gitCall struct {
	dir  string
	args string
}

// fakeGitRunner records invocations and replays canned failures keyed
// on the first argument (the git subcommand).
type fakeGitRunner struct {
	calls    []gitCall
	failures map[string]error
}

func (f *fakeGitRunner) run(_ context.Context, dir string, args ...string) (string, error) {
	f.calls = append(f.calls, gitCall{dir: dir, args: strings.Join(args, " ")})
	if err, ok := f.failures[args[0]]; ok {
		return "", err
	}
	return "", nil
}

func newTestGit(runner *fakeGitRunner) *Git {
	g := New(nil)
	g.run = runner.run
	return g
}

func requireGitOnPath(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func TestCloneRepository_Argv(t *testing.T) {
	requireGitOnPath(t)
	runner := &fakeGitRunner{}
	g := newTestGit(runner)

	if err := g.CloneRepository(context.Background(), "https://example.com/repo.git", "/tmp/agents/ab12cd34"); err != nil {
		t.Fatalf("clone: %v", err)
	}
	if len(runner.calls) != 1 {
		t.Fatalf("expected one git invocation, got %v", runner.calls)
	}
	if runner.calls[0].args != "clone https://example.com/repo.git /tmp/agents/ab12cd34" {
		t.Fatalf("unexpected argv %q", runner.calls[0].args)
	}
	if runner.calls[0].dir != "" {
		t.Fatalf("clone must not run inside a repository, got dir %q", runner.calls[0].dir)
	}
}

func TestCloneRepository_PropagatesFailure(t *testing.T) {
	requireGitOnPath(t)
	runner := &fakeGitRunner{
		failures: map[string]error{
			"clone": fmt.Errorf("git clone: repository not found"),
		},
	}
	g := newTestGit(runner)

	err := g.CloneRepository(context.Background(), "https://example.com/missing.git", "/tmp/agents/ab12cd34")
	if err == nil || !strings.Contains(err.Error(), "repository not found") {
		t.Fatalf("expected clone failure to surface, got %v", err)
	}
}

func TestCreateBranch_RunsCheckoutInRepo(t *testing.T) {
	runner := &fakeGitRunner{}
	g := newTestGit(runner)

	if err := g.CreateBranch(context.Background(), "/tmp/agents/ab12cd34", "agent-dev/ab12cd34"); err != nil {
		t.Fatalf("create branch: %v", err)
	}
	if len(runner.calls) != 1 {
		t.Fatalf("expected one git invocation, got %v", runner.calls)
	}
	if runner.calls[0].args != "checkout -b agent-dev/ab12cd34" {
		t.Fatalf("unexpected argv %q", runner.calls[0].args)
	}
	if runner.calls[0].dir != "/tmp/agents/ab12cd34" {
		t.Fatalf("branch must be created inside the clone, got dir %q", runner.calls[0].dir)
	}
}

func TestCreateBranch_PropagatesFailure(t *testing.T) {
	runner := &fakeGitRunner{
		failures: map[string]error{
			"checkout": fmt.Errorf("git checkout -b x: branch already exists"),
		},
	}
	g := newTestGit(runner)

	err := g.CreateBranch(context.Background(), "/tmp/agents/ab12cd34", "agent-dev/x")
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected checkout failure to surface, got %v", err)
	}
}

func TestRunGit_WrapsCommandOutputInError(t *testing.T) {
	requireGitOnPath(t)
	// A real git invocation that must fail: checkout outside a repo.
	_, err := runGit(context.Background(), t.TempDir(), "checkout", "-b", "x")
	if err == nil {
		t.Fatal("expected failure outside a repository")
	}
	if !strings.Contains(err.Error(), "git checkout -b x:") {
		t.Fatalf("error does not name the command: %v", err)
	}
}
