package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// GraphTriple represents a row in the knowledge_graph_triples table.
type GraphTriple struct {
	ID         string `json:"id"`
	KBID       string `json:"kbId"`
	DocumentID string `json:"documentId"`
	H          string `json:"h"`
	R          string `json:"r"`
	T          string `json:"t"`
	PropsJSON  string `json:"propsJson,omitempty"`
	CreatedAt  int64  `json:"createdAt"`
}

// ScoredTriple is a triple with its full-text rank. Rank is the raw bm25
// value; lower is better.
type ScoredTriple struct {
	GraphTriple
	Rank float64
}

// GraphRun represents a row in the knowledge_graph_runs table.
type GraphRun struct {
	ID          string `json:"id"`
	KBID        string `json:"kbId"`
	DocumentID  string `json:"documentId"`
	Status      string `json:"status"` // running, success, failed
	TriplesPath string `json:"triplesPath,omitempty"`
	Extractor   string `json:"extractor"`
	Model       string `json:"model,omitempty"`
	TripleCount int    `json:"tripleCount"`
	Error       string `json:"error,omitempty"`
	CreatedAt   int64  `json:"createdAt"`
	UpdatedAt   int64  `json:"updatedAt"`
}

// GraphStats summarises one base's graph state.
type GraphStats struct {
	Triples   int            `json:"triples"`
	Documents int            `json:"documents"`
	Runs      map[string]int `json:"runs"`
	LastRunAt int64          `json:"lastRunAt,omitempty"`
}

// TripleFilter narrows graph queries. Zero values mean no constraint.
type TripleFilter struct {
	DocumentIDs   []string
	Relation      string
	EntityPrefix  string
	CreatedAfter  int64
	CreatedBefore int64
}

// sqlClauses renders the filter as AND clauses against table alias a.
func (f TripleFilter) sqlClauses(a string) (string, []any) {
	var b strings.Builder
	var args []any
	if len(f.DocumentIDs) > 0 {
		b.WriteString(` AND ` + a + `.document_id IN (` + repeatPlaceholders(len(f.DocumentIDs)) + `)`)
		for _, id := range f.DocumentIDs {
			args = append(args, id)
		}
	}
	if f.Relation != "" {
		b.WriteString(` AND LOWER(` + a + `.r) = LOWER(?)`)
		args = append(args, f.Relation)
	}
	if f.EntityPrefix != "" {
		b.WriteString(` AND (LOWER(` + a + `.h) LIKE ? OR LOWER(` + a + `.t) LIKE ?)`)
		p := strings.ToLower(f.EntityPrefix) + "%"
		args = append(args, p, p)
	}
	if f.CreatedAfter > 0 {
		b.WriteString(` AND ` + a + `.created_at >= ?`)
		args = append(args, f.CreatedAfter)
	}
	if f.CreatedBefore > 0 {
		b.WriteString(` AND ` + a + `.created_at <= ?`)
		args = append(args, f.CreatedBefore)
	}
	return b.String(), args
}

const tripleCols = `id, kb_id, document_id, h, r, t, props_json, created_at`

func scanTriple(row interface{ Scan(...any) error }, extra ...any) (*GraphTriple, error) {
	var t GraphTriple
	var props sql.NullString
	dest := []any{&t.ID, &t.KBID, &t.DocumentID, &t.H, &t.R, &t.T, &props, &t.CreatedAt}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	t.PropsJSON = props.String
	return &t, nil
}

// ReplaceDocumentTriples swaps a document's triples for the given set in
// one transaction, keeping the FTS mirror in sync when it exists.
func (s *Store) ReplaceDocumentTriples(ctx context.Context, kbID, documentID string, triples []GraphTriple) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := deleteTriplesTx(ctx, tx, kbID, documentID, s.hasGraphFTS); err != nil {
			return err
		}
		for _, t := range triples {
			if _, err := tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO knowledge_graph_triples (`+tripleCols+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				t.ID, t.KBID, t.DocumentID, t.H, t.R, t.T, nullStr(t.PropsJSON), t.CreatedAt); err != nil {
				return fmt.Errorf("inserting triple: %w", err)
			}
			if s.hasGraphFTS {
				content := t.H + " " + t.R + " " + t.T
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO knowledge_graph_fts
						(content, triple_id, kb_id, document_id, h, r, t)
					VALUES (?, ?, ?, ?, ?, ?, ?)`,
					content, t.ID, t.KBID, t.DocumentID, t.H, t.R, t.T); err != nil {
					return fmt.Errorf("mirroring triple: %w", err)
				}
			}
		}
		return nil
	})
}

// DeleteGraphEntries removes a document's triples, runs, and FTS rows.
func (s *Store) DeleteGraphEntries(ctx context.Context, kbID, documentID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := deleteTriplesTx(ctx, tx, kbID, documentID, s.hasGraphFTS); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`DELETE FROM knowledge_graph_runs WHERE kb_id = ? AND document_id = ?`,
			kbID, documentID)
		return err
	})
}

func deleteTriplesTx(ctx context.Context, tx *sql.Tx, kbID, documentID string, hasFTS bool) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM knowledge_graph_triples WHERE kb_id = ? AND document_id = ?`,
		kbID, documentID); err != nil {
		return err
	}
	if hasFTS {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM knowledge_graph_fts WHERE kb_id = ? AND document_id = ?`,
			kbID, documentID); err != nil {
			return err
		}
	}
	return nil
}

// UpsertGraphRun writes a run record, updating status fields when the run
// id already exists.
func (s *Store) UpsertGraphRun(ctx context.Context, r GraphRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO knowledge_graph_runs
			(id, kb_id, document_id, status, triples_path, extractor, model, triple_count, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			triples_path = excluded.triples_path,
			extractor = excluded.extractor,
			model = excluded.model,
			triple_count = excluded.triple_count,
			error = excluded.error,
			updated_at = excluded.updated_at`,
		r.ID, r.KBID, r.DocumentID, r.Status, nullStr(r.TriplesPath), r.Extractor, nullStr(r.Model),
		r.TripleCount, nullStr(r.Error), r.CreatedAt, r.UpdatedAt)
	return err
}

// GetGraphRun fetches the run for a document in a base, or nil.
func (s *Store) GetGraphRun(ctx context.Context, kbID, documentID string) (*GraphRun, error) {
	var r GraphRun
	var triplesPath, model, errMsg sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, kb_id, document_id, status, triples_path, extractor, model, triple_count, error, created_at, updated_at
		FROM knowledge_graph_runs WHERE kb_id = ? AND document_id = ?
		ORDER BY updated_at DESC LIMIT 1`, kbID, documentID).
		Scan(&r.ID, &r.KBID, &r.DocumentID, &r.Status, &triplesPath, &r.Extractor, &model,
			&r.TripleCount, &errMsg, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.TriplesPath = triplesPath.String
	r.Model = model.String
	r.Error = errMsg.String
	return &r, nil
}

// GetGraphStats summarises triples, covered documents, and run states for
// one base.
func (s *Store) GetGraphStats(ctx context.Context, kbID string) (*GraphStats, error) {
	stats := &GraphStats{Runs: make(map[string]int)}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT document_id)
		FROM knowledge_graph_triples WHERE kb_id = ?`, kbID).
		Scan(&stats.Triples, &stats.Documents)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*), MAX(updated_at)
		FROM knowledge_graph_runs WHERE kb_id = ? GROUP BY status`, kbID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		var last sql.NullInt64
		if err := rows.Scan(&status, &n, &last); err != nil {
			return nil, err
		}
		stats.Runs[status] = n
		if last.Int64 > stats.LastRunAt {
			stats.LastRunAt = last.Int64
		}
	}
	return stats, rows.Err()
}

// SeedTriplesFTS finds seed triples via the FTS mirror, best rank first.
func (s *Store) SeedTriplesFTS(ctx context.Context, kbID, match string, f TripleFilter, limit int) ([]ScoredTriple, error) {
	clauses, fargs := f.sqlClauses("t")
	q := `
		SELECT t.id, t.kb_id, t.document_id, t.h, t.r, t.t, t.props_json, t.created_at,
		       bm25(knowledge_graph_fts) AS rank
		FROM knowledge_graph_fts
		JOIN knowledge_graph_triples t ON t.id = knowledge_graph_fts.triple_id
		WHERE knowledge_graph_fts.kb_id = ? AND knowledge_graph_fts MATCH ?` + clauses + `
		ORDER BY rank ASC LIMIT ?`
	args := append([]any{kbID, match}, fargs...)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScoredTriple
	for rows.Next() {
		var rank float64
		t, err := scanTriple(rows, &rank)
		if err != nil {
			return nil, err
		}
		out = append(out, ScoredTriple{GraphTriple: *t, Rank: rank})
	}
	return out, rows.Err()
}

// SeedTriplesLike finds seed triples by substring match, newest first. An
// empty keyword matches everything the filter allows.
func (s *Store) SeedTriplesLike(ctx context.Context, kbID, keyword string, f TripleFilter, limit int) ([]GraphTriple, error) {
	clauses, fargs := f.sqlClauses("t")
	like := "%" + strings.ToLower(keyword) + "%"
	q := `
		SELECT ` + prefixCols("t", tripleCols) + `
		FROM knowledge_graph_triples t
		WHERE t.kb_id = ?
		  AND (LOWER(t.h) LIKE ? OR LOWER(t.r) LIKE ? OR LOWER(t.t) LIKE ?)` + clauses + `
		ORDER BY t.created_at DESC, t.id ASC LIMIT ?`
	args := append([]any{kbID, like, like, like}, fargs...)
	args = append(args, limit)
	return s.queryTriples(ctx, q, args...)
}

// TriplesTouching returns triples whose head or tail is one of the given
// entity names, for breadth-first expansion.
func (s *Store) TriplesTouching(ctx context.Context, kbID string, entities []string, f TripleFilter, limit int) ([]GraphTriple, error) {
	if len(entities) == 0 {
		return nil, nil
	}
	clauses, fargs := f.sqlClauses("t")
	ph := repeatPlaceholders(len(entities))
	q := `
		SELECT ` + prefixCols("t", tripleCols) + `
		FROM knowledge_graph_triples t
		WHERE t.kb_id = ? AND (t.h IN (` + ph + `) OR t.t IN (` + ph + `))` + clauses + `
		ORDER BY t.created_at DESC, t.id ASC LIMIT ?`
	args := []any{kbID}
	for i := 0; i < 2; i++ {
		for _, e := range entities {
			args = append(args, e)
		}
	}
	args = append(args, fargs...)
	args = append(args, limit)
	return s.queryTriples(ctx, q, args...)
}

func (s *Store) queryTriples(ctx context.Context, q string, args ...any) ([]GraphTriple, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GraphTriple
	for rows.Next() {
		t, err := scanTriple(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func prefixCols(alias, cols string) string {
	parts := strings.Split(cols, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}
