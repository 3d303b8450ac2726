// Package manager orchestrates the record store and the runtime
// backends: it owns the agent state machine (spawning, running,
// stopped, error) and keeps stored state reconciled with observed
// backend liveness on every read.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/basket/warden/internal/backend"
	"github.com/basket/warden/internal/store"
)

// Cloner is the version-control collaborator consumed by spawn.
type Cloner interface {
	CloneRepository(ctx context.Context, url, dest string) error
	CreateBranch(ctx context.Context, repoPath, name string) error
}

// DashboardOpener composes many attach commands into one tiled view.
type DashboardOpener interface {
	Open(ctx context.Context, panes [][]string) error
}

// Options configures a Manager.
type Options struct {
	// BaseDir is the directory agent working directories are created
	// under, one subdirectory per agent id.
	BaseDir string

	// DefaultBackend is used when Spawn is not given an explicit kind.
	DefaultBackend store.BackendKind

	Logger *slog.Logger
}

// Manager is the sole entry point a front end may call. One Manager
// drives one store; operations are synchronous and block the caller
// for their full duration.
type Manager struct {
	store     *store.Store
	backends  map[store.BackendKind]backend.Runtime
	cloner    Cloner
	dashboard DashboardOpener
	opts      Options
	logger    *slog.Logger
}

func New(s *store.Store, cloner Cloner, backends map[store.BackendKind]backend.Runtime, dashboard DashboardOpener, opts Options) (*Manager, error) {
	if s == nil {
		return nil, fmt.Errorf("manager: store is required")
	}
	if cloner == nil {
		return nil, fmt.Errorf("manager: cloner is required")
	}
	if len(backends) == 0 {
		return nil, fmt.Errorf("manager: at least one backend is required")
	}
	if opts.DefaultBackend == "" {
		opts.DefaultBackend = store.BackendContainer
	}
	if _, ok := backends[opts.DefaultBackend]; !ok {
		return nil, fmt.Errorf("manager: no backend registered for default kind %q", opts.DefaultBackend)
	}
	if opts.BaseDir == "" {
		opts.BaseDir = ".agents"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:     s,
		backends:  backends,
		cloner:    cloner,
		dashboard: dashboard,
		opts:      opts,
		logger:    logger,
	}, nil
}

// ValidRepoURL reports whether url looks like a cloneable repository
// location. Syntactic check only; the clone itself is the real test.
func ValidRepoURL(url string) bool {
	for _, prefix := range []string{"http://", "https://", "git@", "git://"} {
		if strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}

func newAgentID() string {
	return uuid.NewString()[:8]
}

func (m *Manager) backendFor(kind store.BackendKind) backend.Runtime {
	return m.backends[kind]
}

// Spawn provisions a new agent: fresh id and working directory, record
// in the store, clone plus per-agent branch, then backend start. The
// record always leaves this call as running or error, never spawning;
// on failure the working directory is rolled back and the error record
// retained for inspection.
func (m *Manager) Spawn(ctx context.Context, repoURL string, kind store.BackendKind) (*store.AgentRecord, error) {
	if !ValidRepoURL(repoURL) {
		return nil, fmt.Errorf("%q: %w", repoURL, ErrInvalidRepoURL)
	}
	if kind == "" {
		kind = m.opts.DefaultBackend
	}
	rt := m.backendFor(kind)
	if rt == nil {
		return nil, fmt.Errorf("no backend registered for kind %q", kind)
	}

	id := newAgentID()
	workingDir, err := filepath.Abs(filepath.Join(m.opts.BaseDir, id))
	if err != nil {
		return nil, fmt.Errorf("resolve working dir: %w", err)
	}
	if err := os.MkdirAll(workingDir, 0o755); err != nil {
		return nil, fmt.Errorf("create working dir: %w", err)
	}

	if _, err := m.store.CreateAgent(ctx, id, repoURL, workingDir, kind, store.StatusSpawning); err != nil {
		_ = os.RemoveAll(workingDir)
		return nil, &SpawnError{AgentID: id, Stage: "record", Err: err}
	}

	m.logger.Info("spawning agent", "agent_id", id, "repo", repoURL, "backend", kind)

	if err := m.cloner.CloneRepository(ctx, repoURL, workingDir); err != nil {
		return nil, m.failSpawn(ctx, id, workingDir, "clone", err)
	}

	branch := "agent-dev/" + id
	if err := m.cloner.CreateBranch(ctx, workingDir, branch); err != nil {
		return nil, m.failSpawn(ctx, id, workingDir, "branch", err)
	}

	ref, err := rt.Start(ctx, id, workingDir)
	if err != nil {
		return nil, m.failSpawn(ctx, id, workingDir, "start", err)
	}

	running := store.StatusRunning
	if _, err := m.store.UpdateAgent(ctx, id, store.UpdateFields{RuntimeRef: &ref, Status: &running}); err != nil {
		_ = rt.Remove(ctx, id, true)
		return nil, m.failSpawn(ctx, id, workingDir, "record", err)
	}

	rec, err := m.store.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}
	m.logger.Info("agent running", "agent_id", id, "runtime_ref", ref)
	m.recordEvent(ctx, id, fmt.Sprintf("spawned from %s on %s backend (ref %s)", repoURL, kind, ref))
	return rec, nil
}

// recordEvent appends a lifecycle entry to the agent's output log.
// Best effort; the log is diagnostic, not authoritative.
func (m *Manager) recordEvent(ctx context.Context, id, content string) {
	if err := m.store.AddOutput(ctx, id, "lifecycle", content); err != nil {
		m.logger.Warn("output log write failed", "agent_id", id, "error", err)
	}
}

// failSpawn marks the record error, rolls back the working directory
// and wraps the cause. The error record is deliberately retained.
func (m *Manager) failSpawn(ctx context.Context, id, workingDir, stage string, cause error) error {
	errStatus := store.StatusError
	if _, err := m.store.UpdateAgent(ctx, id, store.UpdateFields{Status: &errStatus}); err != nil {
		m.logger.Error("mark agent error failed", "agent_id", id, "error", err)
	}
	if err := os.RemoveAll(workingDir); err != nil {
		m.logger.Error("working dir rollback failed", "agent_id", id, "dir", workingDir, "error", err)
	}
	m.logger.Error("spawn failed", "agent_id", id, "stage", stage, "error", cause)
	m.recordEvent(ctx, id, fmt.Sprintf("spawn failed during %s: %v", stage, cause))
	return &SpawnError{AgentID: id, Stage: stage, Err: cause}
}

// Get returns the reconciled record for id, or nil when absent.
func (m *Manager) Get(ctx context.Context, id string) (*store.AgentRecord, error) {
	rec, err := m.store.GetAgent(ctx, id)
	if err != nil || rec == nil {
		return rec, err
	}
	m.reconcile(ctx, rec)
	return rec, nil
}

// List returns all reconciled records, optionally filtered by the
// stored status at call time.
func (m *Manager) List(ctx context.Context, status *store.Status) ([]store.AgentRecord, error) {
	recs, err := m.store.ListAgents(ctx, status)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		m.reconcile(ctx, &recs[i])
	}
	return recs, nil
}

// reconcile demotes a running record to stopped when its backend unit
// is no longer alive, both in the store and in the in-memory record
// handed back to the caller. A running record is untrustworthy until
// this probe has run.
func (m *Manager) reconcile(ctx context.Context, rec *store.AgentRecord) {
	if rec.Status != store.StatusRunning {
		return
	}
	rt := m.backendFor(rec.Backend)
	if rt == nil || rt.Alive(ctx, rec.ID) {
		return
	}
	stopped := store.StatusStopped
	if _, err := m.store.UpdateAgent(ctx, rec.ID, store.UpdateFields{Status: &stopped}); err != nil {
		m.logger.Error("reconcile update failed", "agent_id", rec.ID, "error", err)
		return
	}
	m.logger.Info("agent demoted to stopped", "agent_id", rec.ID, "runtime_ref", rec.RuntimeRef)
	m.recordEvent(ctx, rec.ID, "runtime unit no longer alive, demoted to stopped")
	rec.Status = store.StatusStopped
}

// Attach connects the caller's terminal to the agent's interactive
// session and blocks until it ends. A dead unit demotes the record and
// fails with ErrStaleAgent.
func (m *Manager) Attach(ctx context.Context, id string) error {
	rec, err := m.store.GetAgent(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("agent %q: %w", id, ErrNotFound)
	}

	rt := m.backendFor(rec.Backend)
	if rt == nil {
		return fmt.Errorf("no backend registered for kind %q", rec.Backend)
	}
	if !rt.Alive(ctx, rec.ID) {
		if rec.Status == store.StatusRunning {
			stopped := store.StatusStopped
			if _, err := m.store.UpdateAgent(ctx, rec.ID, store.UpdateFields{Status: &stopped}); err != nil {
				m.logger.Error("demote stale agent failed", "agent_id", rec.ID, "error", err)
			}
		}
		return fmt.Errorf("agent %q: %w", id, ErrStaleAgent)
	}
	return rt.Attach(ctx, id)
}

// Stop terminates the agent's backend unit. With removeWorkdir the
// working directory and record are removed as well; otherwise the
// record is retained as stopped. Safe to call repeatedly.
func (m *Manager) Stop(ctx context.Context, id string, removeWorkdir bool) error {
	rec, err := m.store.GetAgent(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("agent %q: %w", id, ErrNotFound)
	}

	rt := m.backendFor(rec.Backend)
	if rt != nil {
		if err := rt.Stop(ctx, id); err != nil {
			m.logger.Warn("backend stop failed", "agent_id", id, "error", err)
		}
		if err := rt.Remove(ctx, id, true); err != nil {
			m.logger.Warn("backend remove failed", "agent_id", id, "error", err)
		}
	}

	if !removeWorkdir {
		stopped := store.StatusStopped
		if _, err := m.store.UpdateAgent(ctx, id, store.UpdateFields{Status: &stopped}); err != nil {
			return err
		}
		m.logger.Info("agent stopped", "agent_id", id)
		m.recordEvent(ctx, id, "stopped, working directory kept")
		return nil
	}

	if err := os.RemoveAll(rec.WorkingDir); err != nil {
		return fmt.Errorf("remove working dir: %w", err)
	}
	if _, err := m.store.DeleteAgent(ctx, id); err != nil {
		return err
	}
	m.logger.Info("agent stopped and removed", "agent_id", id)
	return nil
}

// Delete unconditionally removes the agent: backend unit (tolerating
// already-gone), working directory, then record. Only a record that
// never existed is an error.
func (m *Manager) Delete(ctx context.Context, id string) error {
	rec, err := m.store.GetAgent(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("agent %q: %w", id, ErrNotFound)
	}

	if rt := m.backendFor(rec.Backend); rt != nil {
		if err := rt.Stop(ctx, id); err != nil {
			m.logger.Warn("backend stop failed", "agent_id", id, "error", err)
		}
		if err := rt.Remove(ctx, id, true); err != nil {
			m.logger.Warn("backend remove failed", "agent_id", id, "error", err)
		}
	}
	if err := os.RemoveAll(rec.WorkingDir); err != nil {
		return fmt.Errorf("remove working dir: %w", err)
	}
	if _, err := m.store.DeleteAgent(ctx, id); err != nil {
		return err
	}
	m.logger.Info("agent deleted", "agent_id", id)
	return nil
}

// Clean bulk-deletes every agent matching the status filter (all
// agents when nil). Individual failures are logged and skipped so the
// batch continues; the return value counts agents actually removed.
func (m *Manager) Clean(ctx context.Context, status *store.Status) (int, error) {
	recs, err := m.store.ListAgents(ctx, status)
	if err != nil {
		return 0, err
	}

	cleaned := 0
	for _, rec := range recs {
		if err := m.Delete(ctx, rec.ID); err != nil {
			m.logger.Warn("clean skipped agent", "agent_id", rec.ID, "error", err)
			continue
		}
		cleaned++
	}
	return cleaned, nil
}

// CleanOrphans removes backend units that have no record, the debris
// of spawns that crashed between unit creation and record update or of
// records deleted out from under a live unit. Records themselves are
// never touched. Returns the number of units removed.
func (m *Manager) CleanOrphans(ctx context.Context) (int, error) {
	recs, err := m.store.ListAgents(ctx, nil)
	if err != nil {
		return 0, err
	}
	known := make(map[string]bool, len(recs))
	for _, rec := range recs {
		known[rec.ID] = true
	}

	removed := 0
	for _, rt := range m.backends {
		lister, ok := rt.(backend.UnitLister)
		if !ok {
			continue
		}
		ids, err := lister.Units(ctx)
		if err != nil {
			m.logger.Warn("orphan scan failed", "backend", rt.Kind(), "error", err)
			continue
		}
		for _, id := range ids {
			if known[id] {
				continue
			}
			if err := rt.Remove(ctx, id, true); err != nil {
				m.logger.Warn("orphan removal failed", "backend", rt.Kind(), "agent_id", id, "error", err)
				continue
			}
			m.logger.Info("removed orphaned unit", "backend", rt.Kind(), "agent_id", id)
			removed++
		}
	}
	return removed, nil
}

// AttachAll opens the tiled dashboard over every running agent. Dead
// panes are skipped; ownership of member sessions never changes.
func (m *Manager) AttachAll(ctx context.Context) error {
	if m.dashboard == nil {
		return fmt.Errorf("no dashboard configured")
	}
	running := store.StatusRunning
	recs, err := m.List(ctx, &running)
	if err != nil {
		return err
	}

	var panes [][]string
	for _, rec := range recs {
		if rec.Status != store.StatusRunning {
			continue // demoted during reconciliation
		}
		rt := m.backendFor(rec.Backend)
		if rt == nil {
			continue
		}
		panes = append(panes, rt.AttachArgs(rec.ID))
	}
	if len(panes) == 0 {
		return fmt.Errorf("no running agents")
	}
	return m.dashboard.Open(ctx, panes)
}

// Outputs returns the agent's captured output log.
func (m *Manager) Outputs(ctx context.Context, id string, limit int) ([]store.OutputRecord, error) {
	rec, err := m.store.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("agent %q: %w", id, ErrNotFound)
	}
	return m.store.ListOutputs(ctx, id, limit)
}
