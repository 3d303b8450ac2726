package backend

import (
	"fmt"
	"strings"
	"testing"
)

func TestContainerConfig_Defaults(t *testing.T) {
	var cfg ContainerConfig
	cfg.applyDefaults()

	if cfg.Image != "warden-agent:latest" {
		t.Fatalf("unexpected default image %q", cfg.Image)
	}
	if cfg.MemoryMB != 2048 || cfg.CPUs != 2 || cfg.PidsLimit != 100 {
		t.Fatalf("unexpected default limits: %+v", cfg)
	}
	if cfg.APIKeyName != "ANTHROPIC_API_KEY" {
		t.Fatalf("unexpected default secret name %q", cfg.APIKeyName)
	}
}

func TestContainerBootstrapScript_SeedsConfigAndNestedSession(t *testing.T) {
	b := &ContainerBackend{cfg: ContainerConfig{Command: "claude", SkipPermissions: true}}

	script := b.bootstrapScript()
	if !strings.Contains(script, `"hasCompletedOnboarding":true`) {
		t.Fatalf("onboarding not seeded: %q", script)
	}
	if !strings.Contains(script, "tmux new-session -d -s "+nestedSessionName+" -c /workspace") {
		t.Fatalf("assistant not launched in nested session: %q", script)
	}
	if !strings.Contains(script, "claude --dangerously-skip-permissions") {
		t.Fatalf("unattended flag missing: %q", script)
	}
	// Seeding must not clobber existing assistant state.
	if !strings.Contains(script, `[ -f "$HOME/.claude.json" ] ||`) {
		t.Fatalf("config seed not guarded: %q", script)
	}
}

func TestContainerAttachArgs_TargetsNestedSession(t *testing.T) {
	b := &ContainerBackend{}
	got := strings.Join(b.AttachArgs("a1b2c3d4"), " ")
	want := "docker exec -it agent-a1b2c3d4 tmux attach-session -t " + nestedSessionName
	if got != want {
		t.Fatalf("attach argv = %q, want %q", got, want)
	}
}

func TestIsGone_ClassifiesByErrorContract(t *testing.T) {
	// The daemon reports 404s through the SDK's NotFound contract,
	// for missing containers and missing images alike.
	if !isGone(&notFoundError{"No such container: agent-x"}) {
		t.Fatal("missing container not treated as already-gone")
	}
	if !isGone(&notFoundError{"No such image: warden-agent:latest"}) {
		t.Fatal("missing image not treated as already-gone")
	}
	if !isGone(fmt.Errorf("inspect: %w", &notFoundError{"No such container: abc"})) {
		t.Fatal("wrapped not-found must still classify")
	}
	if isGone(&strError{"permission denied"}) {
		t.Fatal("unrelated daemon error must not match")
	}
	if isGone(&strError{"Error response from daemon: No such container: agent-x"}) {
		t.Fatal("message text alone must not classify, only the error contract")
	}
	if isGone(nil) {
		t.Fatal("nil error must not match")
	}
}

type strError struct{ s string }

func (e *strError) Error() string { return e.s }

// notFoundError mirrors the SDK's 404 shape.
type notFoundError struct{ s string }

func (e *notFoundError) Error() string { return e.s }
func (e *notFoundError) NotFound()     {}
