package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrDuplicateID is returned by CreateAgent when the id already exists.
var ErrDuplicateID = errors.New("agent id already exists")

// ErrWorkdirInUse is returned by CreateAgent when another live record
// already owns the working directory.
var ErrWorkdirInUse = errors.New("working directory already owned by another agent")

const agentColumns = `id, repo_url, working_dir, runtime_ref, status, backend, created_at, updated_at`

// CreateAgent inserts a new agent record.
func (s *Store) CreateAgent(ctx context.Context, id, repoURL, workingDir string, backend BackendKind, status Status) (*AgentRecord, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("create agent: invalid status %q", status)
	}
	if !backend.Valid() {
		return nil, fmt.Errorf("create agent: invalid backend %q", backend)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (id, repo_url, working_dir, status, backend, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP);
	`, id, repoURL, workingDir, status, backend)
	if err != nil {
		msg := err.Error()
		if strings.Contains(msg, "UNIQUE constraint failed: agents.id") ||
			strings.Contains(msg, "agents.id") && strings.Contains(msg, "UNIQUE") {
			return nil, fmt.Errorf("create agent %q: %w", id, ErrDuplicateID)
		}
		if strings.Contains(msg, "idx_agents_working_dir") ||
			strings.Contains(msg, "agents.working_dir") {
			return nil, fmt.Errorf("create agent %q: %w", id, ErrWorkdirInUse)
		}
		return nil, fmt.Errorf("create agent %q: %w", id, err)
	}
	return s.GetAgent(ctx, id)
}

// GetAgent returns the record for id, or nil (no error) when absent.
func (s *Store) GetAgent(ctx context.Context, id string) (*AgentRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ?;`, id)
	rec, err := scanAgent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get agent %q: %w", id, err)
	}
	return rec, nil
}

// ListAgents returns all records newest-created-first, optionally
// filtered by exact status match.
func (s *Store) ListAgents(ctx context.Context, status *Status) ([]AgentRecord, error) {
	query := `SELECT ` + agentColumns + ` FROM agents ORDER BY created_at DESC, rowid DESC;`
	args := []any{}
	if status != nil {
		query = `SELECT ` + agentColumns + ` FROM agents WHERE status = ? ORDER BY created_at DESC, rowid DESC;`
		args = append(args, *status)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []AgentRecord
	for rows.Next() {
		rec, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list agents: iterate: %w", err)
	}
	return out, nil
}

// UpdateFields is a partial mutation of an agent record. Nil fields
// are left untouched; updated_at is always refreshed.
type UpdateFields struct {
	RuntimeRef *string
	Status     *Status
}

// UpdateAgent applies fields to the record and reports whether a row
// was affected (false means the id does not exist).
func (s *Store) UpdateAgent(ctx context.Context, id string, fields UpdateFields) (bool, error) {
	set := []string{"updated_at = CURRENT_TIMESTAMP"}
	args := []any{}
	if fields.RuntimeRef != nil {
		set = append(set, "runtime_ref = ?")
		args = append(args, *fields.RuntimeRef)
	}
	if fields.Status != nil {
		if !fields.Status.Valid() {
			return false, fmt.Errorf("update agent %q: invalid status %q", id, *fields.Status)
		}
		set = append(set, "status = ?")
		args = append(args, *fields.Status)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, `UPDATE agents SET `+strings.Join(set, ", ")+` WHERE id = ?;`, args...)
	if err != nil {
		return false, fmt.Errorf("update agent %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update agent %q: rows affected: %w", id, err)
	}
	return n > 0, nil
}

// DeleteAgent removes the record and, via the foreign key cascade, its
// output rows. Reports whether a row was affected.
func (s *Store) DeleteAgent(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = ?;`, id)
	if err != nil {
		return false, fmt.Errorf("delete agent %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete agent %q: rows affected: %w", id, err)
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*AgentRecord, error) {
	var (
		rec        AgentRecord
		runtimeRef sql.NullString
		createdAt  time.Time
		updatedAt  time.Time
	)
	if err := row.Scan(&rec.ID, &rec.RepoURL, &rec.WorkingDir, &runtimeRef,
		&rec.Status, &rec.Backend, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if runtimeRef.Valid {
		rec.RuntimeRef = runtimeRef.String
	}
	rec.CreatedAt = createdAt
	rec.UpdatedAt = updatedAt
	return &rec, nil
}
