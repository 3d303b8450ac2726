package manager

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the operation referenced an agent record that
// does not exist.
var ErrNotFound = errors.New("agent not found")

// ErrStaleAgent indicates a record claimed running but its backend
// unit is dead; the record has already been demoted to stopped.
var ErrStaleAgent = errors.New("agent is stale: backend unit is no longer alive")

// ErrInvalidRepoURL indicates a malformed repository URL. Raised
// before any record or directory is created.
var ErrInvalidRepoURL = errors.New("invalid repository url")

// SpawnError wraps any failure during provisioning: clone, branch,
// image build, or unit start. The agent record is left in the error
// state and the working directory has been rolled back.
type SpawnError struct {
	AgentID string
	Stage   string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn agent %s: %s: %v", e.AgentID, e.Stage, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}
