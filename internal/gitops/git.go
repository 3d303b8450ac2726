// Package gitops wraps the git command line for the two operations
// spawn needs: clone a repository and create a per-agent branch.
package gitops

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Git shells out to the git binary. It satisfies manager.Cloner.
type Git struct {
	logger *slog.Logger
	run    func(ctx context.Context, dir string, args ...string) (string, error)
}

func New(logger *slog.Logger) *Git {
	if logger == nil {
		logger = slog.Default()
	}
	return &Git{logger: logger, run: runGit}
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	trimmed := strings.TrimSpace(string(out))
	if err != nil {
		if trimmed != "" {
			return trimmed, fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), trimmed, err)
		}
		return trimmed, fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return trimmed, nil
}

// CloneRepository clones url into dest. dest must exist and be empty;
// git refuses a non-empty target, which protects against clobbering a
// directory owned by another agent.
func (g *Git) CloneRepository(ctx context.Context, url, dest string) error {
	if _, err := exec.LookPath("git"); err != nil {
		return fmt.Errorf("git not found on PATH: %w", err)
	}
	g.logger.Info("cloning repository", "url", url, "dest", dest)
	if _, err := g.run(ctx, "", "clone", url, dest); err != nil {
		return err
	}
	return nil
}

// CreateBranch creates and checks out a new branch in repoPath.
func (g *Git) CreateBranch(ctx context.Context, repoPath, name string) error {
	g.logger.Info("creating branch", "repo", repoPath, "branch", name)
	if _, err := g.run(ctx, repoPath, "checkout", "-b", name); err != nil {
		return err
	}
	return nil
}
