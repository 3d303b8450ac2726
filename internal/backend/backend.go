// Package backend drives the compute unit behind an agent: either a
// host-local tmux session or an isolated Docker container. Both
// variants implement the same capability contract; the lifecycle
// manager selects one per agent at spawn time and never re-dispatches
// on ad-hoc flags.
package backend

import (
	"context"
	"errors"

	"github.com/basket/warden/internal/store"
)

// ErrNotFound indicates the operation referenced an agent whose
// compute unit does not exist (never created, or already gone).
var ErrNotFound = errors.New("no compute unit for agent")

// ErrUnavailable indicates a runtime prerequisite is missing: the
// docker daemon is not reachable, or a required binary is not on PATH.
var ErrUnavailable = errors.New("runtime unavailable")

// SecretSource resolves a named secret (API key) at start time. The
// backend never reads the process environment directly.
type SecretSource func(name string) (string, bool)

// Runtime is the capability contract shared by both backends.
//
// Stop, Remove and Alive are idempotent with respect to missing units:
// stopping or removing a unit that is already gone is success, and
// Alive reports false rather than failing.
type Runtime interface {
	// Start provisions a fresh unit bound to workingDir, launches the
	// assistant inside it and returns an opaque runtime reference
	// (process id or container id). Partially created resources are
	// torn down on failure.
	Start(ctx context.Context, agentID, workingDir string) (string, error)

	// Attach connects the caller's terminal to the unit's interactive
	// session and blocks until the session ends. Detach and interrupt
	// return nil, not an error. Returns ErrNotFound when no live unit
	// exists.
	Attach(ctx context.Context, agentID string) error

	// Stop gracefully terminates the unit. Best effort, idempotent.
	Stop(ctx context.Context, agentID string) error

	// Remove deletes the unit. Idempotent; force succeeds even on a
	// running unit.
	Remove(ctx context.Context, agentID string, force bool) error

	// Alive is a point-in-time liveness probe. Never errors: a missing
	// unit is simply not alive.
	Alive(ctx context.Context, agentID string) bool

	// AttachArgs returns the argv a dashboard pane runs to attach to
	// this agent's interactive session.
	AttachArgs(agentID string) []string

	Kind() store.BackendKind
}

// UnitLister is implemented by backends that can enumerate the agent
// units currently present on the host, recorded or not. Used to find
// orphans left behind by crashed runs.
type UnitLister interface {
	Units(ctx context.Context) ([]string, error)
}

// unitPrefix namespaces every unit this tool owns, so pruning can
// never touch unrelated sessions or containers.
const unitPrefix = "agent-"

// UnitName derives the deterministic unit name (tmux session or
// container name) for an agent id.
func UnitName(agentID string) string {
	return unitPrefix + agentID
}
