// Package memindex maintains the vector memory index that knowledge
// documents are ingested into. Chunks and vectors live in the same
// per-agent database as the knowledge tables.
package memindex

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/knograph/knograph/llm"
	"github.com/knograph/knograph/store"
)

// Options configure an Index.
type Options struct {
	// Dim is the embedding dimension; it must match the embedder's model.
	Dim int
	// ChunkSize and Overlap are in characters.
	ChunkSize int
	Overlap   int
	// Model is recorded on each chunk row.
	Model string
}

// Index chunks, embeds, and stores document text for nearest-neighbour
// retrieval. A nil embedder stores chunks without vectors; listings still
// work but Search returns nothing for those documents.
type Index struct {
	stores *store.Registry
	embed  llm.Provider
	opts   Options
	log    *slog.Logger
}

// New creates an index over the given registry.
func New(stores *store.Registry, embedder llm.Provider, opts Options, logger *slog.Logger) *Index {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 800
	}
	if opts.Overlap < 0 {
		opts.Overlap = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{stores: stores, embed: embedder, opts: opts, log: logger}
}

// Ingest replaces the indexed chunks for one document.
func (ix *Index) Ingest(ctx context.Context, agentID, documentID, filename, content string) error {
	st, err := ix.stores.ForAgent(agentID)
	if err != nil {
		return err
	}
	db := st.DB()
	if err := ix.ensureVecTable(ctx, db); err != nil {
		return err
	}

	chunks := splitChunks(content, ix.opts.ChunkSize, ix.opts.Overlap)

	var vectors [][]float32
	if ix.embed != nil && len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.text
		}
		vectors, err = ix.embed.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embedding %s: %w", filename, err)
		}
	}

	path := "knowledge/" + documentID
	now := time.Now().UnixMilli()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := deleteDocumentTx(ctx, tx, path); err != nil {
		return err
	}
	for i, c := range chunks {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO chunks (id, path, source, start_line, end_line, text, model, updated_at)
			VALUES (?, ?, 'knowledge', ?, ?, ?, ?, ?)`,
			uuid.NewString(), path, c.startLine, c.endLine, c.text, ix.opts.Model, now)
		if err != nil {
			return fmt.Errorf("inserting chunk: %w", err)
		}
		if vectors != nil {
			rowid, err := res.LastInsertId()
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO chunks_vec (chunk_rowid, embedding) VALUES (?, ?)`,
				rowid, serializeFloat32(vectors[i])); err != nil {
				return fmt.Errorf("inserting embedding: %w", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	ix.log.Debug("document indexed", "agent", agentID, "document", documentID, "chunks", len(chunks))
	return nil
}

// Delete removes a document's chunks and vectors.
func (ix *Index) Delete(ctx context.Context, agentID, documentID string) error {
	st, err := ix.stores.ForAgent(agentID)
	if err != nil {
		return err
	}
	db := st.DB()
	if err := ix.ensureVecTable(ctx, db); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := deleteDocumentTx(ctx, tx, "knowledge/"+documentID); err != nil {
		return err
	}
	return tx.Commit()
}

// Result is one search hit.
type Result struct {
	ChunkID    string  `json:"chunkId"`
	DocumentID string  `json:"documentId"`
	Path       string  `json:"path"`
	StartLine  int     `json:"startLine"`
	EndLine    int     `json:"endLine"`
	Text       string  `json:"text"`
	Distance   float64 `json:"distance"`
}

// Search runs a KNN query over an agent's knowledge chunks.
func (ix *Index) Search(ctx context.Context, agentID, query string, topK int) ([]Result, error) {
	if ix.embed == nil {
		return nil, fmt.Errorf("memindex: no embedder configured")
	}
	if topK <= 0 {
		topK = 5
	}
	st, err := ix.stores.ForAgent(agentID)
	if err != nil {
		return nil, err
	}
	db := st.DB()
	if err := ix.ensureVecTable(ctx, db); err != nil {
		return nil, err
	}

	vecs, err := ix.embed.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT c.id, c.path, c.start_line, c.end_line, c.text, v.distance
		FROM chunks_vec v
		JOIN chunks c ON c.rowid = v.chunk_rowid
		WHERE v.embedding MATCH ? AND k = ? AND c.source = 'knowledge'
		ORDER BY v.distance`,
		serializeFloat32(vecs[0]), topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ChunkID, &r.Path, &r.StartLine, &r.EndLine, &r.Text, &r.Distance); err != nil {
			return nil, err
		}
		if len(r.Path) > len("knowledge/") {
			r.DocumentID = r.Path[len("knowledge/"):]
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ensureVecTable creates the vec0 table on first use. The dimension is an
// index property, not a schema constant, so it lives here rather than in
// the store DDL.
func (ix *Index) ensureVecTable(ctx context.Context, db *sql.DB) error {
	dim := ix.opts.Dim
	if dim <= 0 {
		dim = 768
	}
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS chunks_vec USING vec0(
			chunk_rowid INTEGER PRIMARY KEY,
			embedding float[%d]
		)`, dim))
	if err != nil {
		return fmt.Errorf("creating vector table: %w", err)
	}
	return nil
}

func deleteDocumentTx(ctx context.Context, tx *sql.Tx, path string) error {
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM chunks_vec WHERE chunk_rowid IN
			(SELECT rowid FROM chunks WHERE path = ? AND source = 'knowledge')`, path); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		`DELETE FROM chunks WHERE path = ? AND source = 'knowledge'`, path)
	return err
}

// serializeFloat32 converts a float32 slice to little-endian bytes for
// sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
