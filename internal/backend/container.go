package backend

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	"github.com/basket/warden/internal/store"
)

// nestedSessionName is the tmux session the assistant runs in inside
// the container, so a later attach reconnects to the same interactive
// surface instead of replacing it.
const nestedSessionName = "warden"

// ContainerConfig tunes the sandbox each container agent runs in.
type ContainerConfig struct {
	Image     string
	MemoryMB  int64
	CPUs      float64
	PidsLimit int64

	// Network is the container network mode. "none" keeps the sandbox
	// offline; "bridge" grants egress for the assistant's API calls.
	Network string

	// APIKeyName names the one secret injected into the container as
	// an environment value. It is never written into the image.
	APIKeyName string

	Command         string
	SkipPermissions bool
}

func (c *ContainerConfig) applyDefaults() {
	if c.Image == "" {
		c.Image = "warden-agent:latest"
	}
	if c.MemoryMB <= 0 {
		c.MemoryMB = 2048
	}
	if c.CPUs <= 0 {
		c.CPUs = 2
	}
	if c.PidsLimit <= 0 {
		c.PidsLimit = 100
	}
	if c.Network == "" {
		c.Network = "bridge"
	}
	if c.APIKeyName == "" {
		c.APIKeyName = "ANTHROPIC_API_KEY"
	}
	if c.Command == "" {
		c.Command = "claude"
	}
}

// ContainerBackend runs each agent in a resource-capped Docker
// container with the working directory bind-mounted as /workspace.
type ContainerBackend struct {
	cli     *client.Client
	cfg     ContainerConfig
	secrets SecretSource
	logger  *slog.Logger
	images  *ImageBuilder
}

func NewContainerBackend(cfg ContainerConfig, secrets SecretSource, logger *slog.Logger) (*ContainerBackend, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if secrets == nil {
		secrets = func(string) (string, bool) { return "", false }
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &ContainerBackend{
		cli:     cli,
		cfg:     cfg,
		secrets: secrets,
		logger:  logger,
		images:  NewImageBuilder(cli, cfg.Image, logger),
	}, nil
}

func (b *ContainerBackend) Kind() store.BackendKind {
	return store.BackendContainer
}

// Images exposes the image builder so callers can force a rebuild.
func (b *ContainerBackend) Images() *ImageBuilder {
	return b.images
}

func (b *ContainerBackend) Close() error {
	return b.cli.Close()
}

// Start provisions a fresh container for the agent: daemon preflight,
// cached image build, stale-unit removal, create with resource caps,
// then an in-unit bootstrap that seeds assistant configuration and
// launches it inside a nested tmux session.
func (b *ContainerBackend) Start(ctx context.Context, agentID, workingDir string) (string, error) {
	if _, err := b.cli.Ping(ctx); err != nil {
		return "", fmt.Errorf("docker daemon not reachable: %v: %w", err, ErrUnavailable)
	}

	if err := b.images.Ensure(ctx); err != nil {
		return "", fmt.Errorf("ensure image: %w", err)
	}

	name := UnitName(agentID)
	if _, err := b.cli.ContainerInspect(ctx, name); err == nil {
		if err := b.cli.ContainerRemove(ctx, name, container.RemoveOptions{Force: true}); err != nil {
			return "", fmt.Errorf("remove stale container %q: %w", name, err)
		}
	}

	var env []string
	if key, ok := b.secrets(b.cfg.APIKeyName); ok {
		env = append(env, b.cfg.APIKeyName+"="+key)
	} else {
		b.logger.Warn("secret not found, assistant API calls will fail", "name", b.cfg.APIKeyName)
	}

	pidsLimit := b.cfg.PidsLimit
	useInit := true
	resp, err := b.cli.ContainerCreate(ctx, &container.Config{
		Image:      b.cfg.Image,
		Cmd:        []string{"sleep", "infinity"},
		WorkingDir: "/workspace",
		Env:        env,
	}, &container.HostConfig{
		Resources: container.Resources{
			Memory:    b.cfg.MemoryMB * 1024 * 1024,
			NanoCPUs:  int64(b.cfg.CPUs * 1e9),
			PidsLimit: &pidsLimit,
		},
		NetworkMode: container.NetworkMode(b.cfg.Network),
		Binds:       []string{fmt.Sprintf("%s:/workspace", workingDir)},
		Init:        &useInit,
	}, nil, nil, name)
	if err != nil {
		return "", fmt.Errorf("create container %q: %w", name, err)
	}
	containerID := resp.ID

	fail := func(cause error) (string, error) {
		_ = b.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
		return "", cause
	}

	if err := b.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return fail(fmt.Errorf("start container %q: %w", name, err))
	}

	if err := b.bootstrap(ctx, containerID); err != nil {
		return fail(fmt.Errorf("bootstrap container %q: %w", name, err))
	}

	b.logger.Info("container started", "agent_id", agentID, "container", name, "id", shortID(containerID))
	return containerID, nil
}

// bootstrap seeds assistant configuration so the first run skips
// onboarding, then starts the assistant inside the nested session.
func (b *ContainerBackend) bootstrap(ctx context.Context, containerID string) error {
	script := b.bootstrapScript()
	execResp, err := b.cli.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:    []string{"bash", "-lc", script},
		Detach: true,
	})
	if err != nil {
		return fmt.Errorf("exec create: %w", err)
	}
	if err := b.cli.ContainerExecStart(ctx, execResp.ID, container.ExecStartOptions{Detach: true}); err != nil {
		return fmt.Errorf("exec start: %w", err)
	}
	return nil
}

func (b *ContainerBackend) bootstrapScript() string {
	assistant := b.cfg.Command
	if b.cfg.SkipPermissions {
		assistant += " --dangerously-skip-permissions"
	}
	return strings.Join([]string{
		`[ -f "$HOME/.claude.json" ] || printf '{"hasCompletedOnboarding":true}' > "$HOME/.claude.json"`,
		fmt.Sprintf("tmux new-session -d -s %s -c /workspace '%s'", nestedSessionName, assistant),
	}, " && ")
}

// Attach execs an interactive terminal into the container and
// reconnects to the nested session. The docker CLI carries the
// caller's controlling TTY; the SDK is used for everything else.
func (b *ContainerBackend) Attach(ctx context.Context, agentID string) error {
	name := UnitName(agentID)
	info, err := b.cli.ContainerInspect(ctx, name)
	if err != nil {
		return fmt.Errorf("container %q never existed: %w", name, ErrNotFound)
	}
	if info.State == nil || !info.State.Running {
		return fmt.Errorf("container %q exited: %w", name, ErrNotFound)
	}

	if _, err := exec.LookPath("docker"); err != nil {
		return fmt.Errorf("docker CLI not found on PATH: %w", ErrUnavailable)
	}

	cmd := exec.CommandContext(ctx, "docker", "exec", "-it", name,
		"tmux", "attach-session", "-t", nestedSessionName)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		if isInteractiveEnd(ctx, err) {
			return nil
		}
		return fmt.Errorf("attach to container %q: %w", name, err)
	}
	return nil
}

// Stop gracefully stops the container. Missing or already-stopped
// units are success.
func (b *ContainerBackend) Stop(ctx context.Context, agentID string) error {
	name := UnitName(agentID)
	timeout := 10
	err := b.cli.ContainerStop(ctx, name, container.StopOptions{Timeout: &timeout})
	if err != nil && !isGone(err) {
		return fmt.Errorf("stop container %q: %w", name, err)
	}
	return nil
}

// Remove deletes the container. Without force it stops first; a
// missing unit is success either way.
func (b *ContainerBackend) Remove(ctx context.Context, agentID string, force bool) error {
	name := UnitName(agentID)
	if !force {
		if err := b.Stop(ctx, agentID); err != nil {
			return err
		}
	}
	err := b.cli.ContainerRemove(ctx, name, container.RemoveOptions{Force: force})
	if err != nil && !isGone(err) {
		return fmt.Errorf("remove container %q: %w", name, err)
	}
	return nil
}

// Alive inspects the container and reports its running flag. Any
// inspection failure is not-alive, never an error.
func (b *ContainerBackend) Alive(ctx context.Context, agentID string) bool {
	info, err := b.cli.ContainerInspect(ctx, UnitName(agentID))
	if err != nil || info.State == nil {
		return false
	}
	return info.State.Running
}

func (b *ContainerBackend) AttachArgs(agentID string) []string {
	return []string{"docker", "exec", "-it", UnitName(agentID),
		"tmux", "attach-session", "-t", nestedSessionName}
}

// Units lists the agent ids of every agent container on the host,
// running or exited.
func (b *ContainerBackend) Units(ctx context.Context) ([]string, error) {
	summaries, err := b.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", unitPrefix)),
	})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	var ids []string
	for _, summary := range summaries {
		for _, name := range summary.Names {
			name = strings.TrimPrefix(name, "/")
			if id, ok := strings.CutPrefix(name, unitPrefix); ok && id != "" {
				ids = append(ids, id)
				break
			}
		}
	}
	return ids, nil
}

// isGone classifies daemon not-found responses for containers and
// images alike, via the SDK's error contract rather than message text.
func isGone(err error) bool {
	return cerrdefs.IsNotFound(err)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
