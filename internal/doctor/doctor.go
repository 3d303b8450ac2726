// Package doctor runs environment diagnostics for the warden CLI.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/docker/docker/client"

	"github.com/basket/warden/internal/config"
	"github.com/basket/warden/internal/store"
)

type CheckResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "PASS", "FAIL", "WARN", "SKIP"
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

type Diagnosis struct {
	Timestamp time.Time     `json:"timestamp"`
	System    SystemInfo    `json:"system"`
	Results   []CheckResult `json:"results"`
}

type SystemInfo struct {
	OS      string `json:"os"`
	Arch    string `json:"arch"`
	Go      string `json:"go_version"`
	Version string `json:"version"`
}

// Failed reports whether any check finished with FAIL status.
func (d Diagnosis) Failed() bool {
	for _, r := range d.Results {
		if r.Status == "FAIL" {
			return true
		}
	}
	return false
}

// Run executes all diagnostic checks.
func Run(ctx context.Context, cfg *config.Config, version string) Diagnosis {
	d := Diagnosis{
		Timestamp: time.Now().UTC(),
		System: SystemInfo{
			OS:      runtime.GOOS,
			Arch:    runtime.GOARCH,
			Go:      runtime.Version(),
			Version: version,
		},
	}

	checks := []func(context.Context, *config.Config) CheckResult{
		checkConfig,
		checkDatabase,
		checkAgentsDir,
		checkGit,
		checkTmux,
		checkAssistant,
		checkDocker,
		checkAPIKey,
	}

	for _, check := range checks {
		d.Results = append(d.Results, check(ctx, cfg))
	}

	return d
}

func checkConfig(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Config", Status: "FAIL", Message: "Configuration not loaded"}
	}
	return CheckResult{Name: "Config", Status: "PASS", Message: fmt.Sprintf("Loaded from %s", cfg.HomeDir)}
}

func checkDatabase(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Database", Status: "SKIP", Message: "Config missing"}
	}

	st, err := store.Open(cfg.DBPath())
	if err != nil {
		return CheckResult{Name: "Database", Status: "FAIL", Message: fmt.Sprintf("Open failed: %v", err)}
	}
	defer st.Close()

	if _, err := st.ListAgents(ctx, nil); err != nil {
		return CheckResult{Name: "Database", Status: "FAIL", Message: fmt.Sprintf("Query failed: %v", err)}
	}
	return CheckResult{Name: "Database", Status: "PASS", Message: "Connection and schema valid"}
}

func checkAgentsDir(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Agents Dir", Status: "SKIP", Message: "Config missing"}
	}
	if err := os.MkdirAll(cfg.AgentsDir, 0o755); err != nil {
		return CheckResult{Name: "Agents Dir", Status: "FAIL", Message: fmt.Sprintf("Cannot create %s: %v", cfg.AgentsDir, err)}
	}
	probe := filepath.Join(cfg.AgentsDir, ".write_test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return CheckResult{Name: "Agents Dir", Status: "FAIL", Message: fmt.Sprintf("Unwritable: %v", err)}
	}
	os.Remove(probe)
	return CheckResult{Name: "Agents Dir", Status: "PASS", Message: fmt.Sprintf("%s writable", cfg.AgentsDir)}
}

func checkGit(_ context.Context, _ *config.Config) CheckResult {
	path, err := exec.LookPath("git")
	if err != nil {
		return CheckResult{
			Name:    "Git",
			Status:  "FAIL",
			Message: "git not found in PATH",
			Detail:  "git is required to clone agent repositories",
		}
	}
	return CheckResult{Name: "Git", Status: "PASS", Message: path}
}

func checkTmux(_ context.Context, cfg *config.Config) CheckResult {
	path, err := exec.LookPath("tmux")
	if err != nil {
		status := "WARN"
		detail := "required only for the session backend and the attach dashboard"
		if cfg != nil && cfg.Backend == "session" {
			status = "FAIL"
			detail = "the configured default backend is session"
		}
		return CheckResult{Name: "Tmux", Status: status, Message: "tmux not found in PATH", Detail: detail}
	}
	return CheckResult{Name: "Tmux", Status: "PASS", Message: path}
}

func checkAssistant(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Assistant", Status: "SKIP", Message: "Config missing"}
	}
	command := cfg.Assistant.Command
	base := command
	if fields := strings.Fields(command); len(fields) > 0 {
		base = fields[0]
	}
	path, err := exec.LookPath(base)
	if err != nil {
		return CheckResult{
			Name:    "Assistant",
			Status:  "WARN",
			Message: fmt.Sprintf("%s not found in PATH", base),
			Detail:  "session-backend agents run the assistant on this host; container agents bundle their own",
		}
	}
	return CheckResult{Name: "Assistant", Status: "PASS", Message: path}
}

func checkDocker(ctx context.Context, cfg *config.Config) CheckResult {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return CheckResult{Name: "Docker", Status: "FAIL", Message: fmt.Sprintf("Client init failed: %v", err)}
	}
	defer cli.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := cli.Ping(pingCtx); err != nil {
		status := "FAIL"
		if cfg != nil && cfg.Backend == "session" {
			status = "WARN"
		}
		return CheckResult{
			Name:    "Docker",
			Status:  status,
			Message: fmt.Sprintf("Daemon unreachable: %v", err),
			Detail:  "required for the container backend",
		}
	}
	return CheckResult{Name: "Docker", Status: "PASS", Message: "Daemon reachable"}
}

func checkAPIKey(_ context.Context, cfg *config.Config) CheckResult {
	envVar := "ANTHROPIC_API_KEY"
	if cfg != nil && cfg.Container.APIKeyEnv != "" {
		envVar = cfg.Container.APIKeyEnv
	}
	if os.Getenv(envVar) != "" {
		return CheckResult{Name: "API Key", Status: "PASS", Message: fmt.Sprintf("%s is set", envVar)}
	}
	return CheckResult{
		Name:    "API Key",
		Status:  "WARN",
		Message: fmt.Sprintf("%s not set", envVar),
		Detail:  "container agents start without assistant credentials; set it in the environment or a .env file",
	}
}
