package store

import (
	"context"
	"database/sql"
	"errors"
)

// SettingsRow holds one agent's stored settings overrides as raw JSON.
type SettingsRow struct {
	OwnerAgentID string
	VectorConfig string
	GraphConfig  string
	UpdatedAt    int64
}

// GetSettingsRow fetches the agent's stored overrides, or nil when the
// agent never changed anything.
func (s *Store) GetSettingsRow(ctx context.Context, agentID string) (*SettingsRow, error) {
	var r SettingsRow
	var vec, graph sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT owner_agent_id, vector_config, graph_config, updated_at
		FROM kb_settings WHERE owner_agent_id = ?`, agentID).
		Scan(&r.OwnerAgentID, &vec, &graph, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.VectorConfig = vec.String
	r.GraphConfig = graph.String
	return &r, nil
}

// UpsertSettingsRow writes the agent's overrides, replacing any prior row.
func (s *Store) UpsertSettingsRow(ctx context.Context, r SettingsRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kb_settings (owner_agent_id, vector_config, graph_config, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(owner_agent_id) DO UPDATE SET
			vector_config = excluded.vector_config,
			graph_config = excluded.graph_config,
			updated_at = excluded.updated_at`,
		r.OwnerAgentID, nullStr(r.VectorConfig), nullStr(r.GraphConfig), r.UpdatedAt)
	return err
}
