package store

import (
	"context"
	"fmt"
)

// AddOutput appends one row to the agent's output log. The foreign key
// on agent_outputs means the agent must exist.
func (s *Store) AddOutput(ctx context.Context, agentID, kind, content string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_outputs (agent_id, kind, content, created_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP);
	`, agentID, kind, content)
	if err != nil {
		return fmt.Errorf("add output for %q: %w", agentID, err)
	}
	return nil
}

// ListOutputs returns the agent's output rows oldest-first. A positive
// limit keeps only the most recent rows, still in chronological order.
func (s *Store) ListOutputs(ctx context.Context, agentID string, limit int) ([]OutputRecord, error) {
	query := `
		SELECT id, agent_id, kind, content, created_at
		FROM agent_outputs WHERE agent_id = ?
		ORDER BY created_at ASC, id ASC`
	args := []any{agentID}
	if limit > 0 {
		query = `
		SELECT id, agent_id, kind, content, created_at FROM (
			SELECT id, agent_id, kind, content, created_at
			FROM agent_outputs WHERE agent_id = ?
			ORDER BY created_at DESC, id DESC LIMIT ?
		) ORDER BY created_at ASC, id ASC`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query+";", args...)
	if err != nil {
		return nil, fmt.Errorf("list outputs for %q: %w", agentID, err)
	}
	defer rows.Close()

	var out []OutputRecord
	for rows.Next() {
		var rec OutputRecord
		if err := rows.Scan(&rec.ID, &rec.AgentID, &rec.Kind, &rec.Content, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan output: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list outputs for %q: iterate: %w", agentID, err)
	}
	return out, nil
}
