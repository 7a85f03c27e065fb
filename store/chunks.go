package store

import (
	"context"
	"database/sql"
	"errors"
)

// Chunk represents a row in the chunks table.
type Chunk struct {
	ID        string `json:"id"`
	Path      string `json:"path"`
	Source    string `json:"source"`
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
	Text      string `json:"text"`
}

// knowledgePath is the chunks.path value for a knowledge document.
func knowledgePath(documentID string) string {
	return "knowledge/" + documentID
}

// ListKnowledgeChunks pages through the indexed chunks of one document in
// line order, returning the page and the total chunk count.
func (s *Store) ListKnowledgeChunks(ctx context.Context, documentID string, limit, offset int) ([]Chunk, int, error) {
	if limit <= 0 {
		limit = 50
	}
	path := knowledgePath(documentID)

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chunks WHERE path = ? AND source = 'knowledge'`, path).
		Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, source, start_line, end_line, text
		FROM chunks WHERE path = ? AND source = 'knowledge'
		ORDER BY start_line ASC LIMIT ? OFFSET ?`, path, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.Path, &c.Source, &c.StartLine, &c.EndLine, &c.Text); err != nil {
			return nil, 0, err
		}
		chunks = append(chunks, c)
	}
	return chunks, total, rows.Err()
}

// KnowledgeChunkIndex returns the 1-based position of the chunk starting
// at startLine within its document's line-ordered chunk list.
func (s *Store) KnowledgeChunkIndex(ctx context.Context, documentID string, startLine int) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM chunks
		WHERE path = ? AND source = 'knowledge' AND start_line <= ?`,
		knowledgePath(documentID), startLine).Scan(&n)
	return n, err
}

// GetKnowledgeChunk fetches one knowledge chunk by id, or nil if absent
// or not a knowledge chunk.
func (s *Store) GetKnowledgeChunk(ctx context.Context, id string) (*Chunk, error) {
	var c Chunk
	err := s.db.QueryRowContext(ctx, `
		SELECT id, path, source, start_line, end_line, text
		FROM chunks WHERE id = ? AND source = 'knowledge'`, id).
		Scan(&c.ID, &c.Path, &c.Source, &c.StartLine, &c.EndLine, &c.Text)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
