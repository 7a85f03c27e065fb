package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Document represents a row in the kb_documents table.
type Document struct {
	ID             string   `json:"id"`
	OwnerAgentID   string   `json:"ownerAgentId"`
	KBID           string   `json:"kbId,omitempty"`
	Filename       string   `json:"filename"`
	Description    string   `json:"description,omitempty"`
	Mimetype       string   `json:"mimetype"`
	SizeBytes      int64    `json:"sizeBytes"`
	Hash           string   `json:"hash"`
	Path           string   `json:"path"`
	SourceMetadata string   `json:"sourceMetadata,omitempty"`
	UploadedAt     int64    `json:"uploadedAt"`
	IndexedAt      *int64   `json:"indexedAt,omitempty"`
	Tags           []string `json:"tags,omitempty"`
}

const documentCols = `id, owner_agent_id, kb_id, filename, description, mimetype, size_bytes, hash, path, source_metadata, uploaded_at, indexed_at`

func scanDocument(row interface{ Scan(...any) error }) (*Document, error) {
	var d Document
	var kbID, desc, meta sql.NullString
	var indexedAt sql.NullInt64
	err := row.Scan(&d.ID, &d.OwnerAgentID, &kbID, &d.Filename, &desc, &d.Mimetype,
		&d.SizeBytes, &d.Hash, &d.Path, &meta, &d.UploadedAt, &indexedAt)
	if err != nil {
		return nil, err
	}
	d.KBID = kbID.String
	d.Description = desc.String
	d.SourceMetadata = meta.String
	if indexedAt.Valid {
		v := indexedAt.Int64
		d.IndexedAt = &v
	}
	return &d, nil
}

// InsertDocument stores a new document row together with its tags.
func (s *Store) InsertDocument(ctx context.Context, d Document) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO kb_documents (`+documentCols+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
			d.ID, d.OwnerAgentID, nullStr(d.KBID), d.Filename, nullStr(d.Description),
			d.Mimetype, d.SizeBytes, d.Hash, d.Path, nullStr(d.SourceMetadata), d.UploadedAt)
		if err != nil {
			return fmt.Errorf("inserting document: %w", err)
		}
		return insertTags(ctx, tx, d.ID, d.Tags)
	})
}

// GetDocument fetches one document with its tags, or nil if absent.
func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentCols+` FROM kb_documents WHERE id = ?`, id)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if d.Tags, err = s.documentTags(ctx, id); err != nil {
		return nil, err
	}
	return d, nil
}

// FindDocumentByHash finds an agent's document by content hash. excludeID
// skips one document, for update-in-place duplicate checks.
func (s *Store) FindDocumentByHash(ctx context.Context, agentID, hash, excludeID string) (*Document, error) {
	q := `SELECT ` + documentCols + ` FROM kb_documents WHERE owner_agent_id = ? AND hash = ?`
	args := []any{agentID, hash}
	if excludeID != "" {
		q += ` AND id != ?`
		args = append(args, excludeID)
	}
	d, err := scanDocument(s.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

// ReplaceDocumentContent swaps the stored file identity of a document
// after its bytes were replaced. The indexed marker is cleared so the
// document is re-indexed.
func (s *Store) ReplaceDocumentContent(ctx context.Context, id, filename, mimetype string, size int64, hash, path string, uploadedAt int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE kb_documents
		SET filename = ?, mimetype = ?, size_bytes = ?, hash = ?, path = ?,
		    uploaded_at = ?, indexed_at = NULL
		WHERE id = ?`,
		filename, mimetype, size, hash, path, uploadedAt, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// UpdateDocumentMetadata updates filename, description, and tags. Nil
// pointers keep the stored value; a non-nil tags slice replaces the set.
func (s *Store) UpdateDocumentMetadata(ctx context.Context, id string, filename, description *string, tags []string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if filename != nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE kb_documents SET filename = ? WHERE id = ?`, *filename, id); err != nil {
				return err
			}
		}
		if description != nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE kb_documents SET description = ? WHERE id = ?`, nullStr(*description), id); err != nil {
				return err
			}
		}
		if tags != nil {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM kb_tags WHERE document_id = ?`, id); err != nil {
				return err
			}
			if err := insertTags(ctx, tx, id, tags); err != nil {
				return err
			}
		}
		return nil
	})
}

// SetDocumentIndexedAt stamps (or clears, with nil) the indexed marker.
func (s *Store) SetDocumentIndexedAt(ctx context.Context, id string, ts *int64) error {
	var v any
	if ts != nil {
		v = *ts
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE kb_documents SET indexed_at = ? WHERE id = ?`, v, id)
	return err
}

// DeleteDocument removes the row; tags cascade.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kb_documents WHERE id = ?`, id)
	return err
}

// DocumentCount returns how many documents an agent owns.
func (s *Store) DocumentCount(ctx context.Context, agentID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM kb_documents WHERE owner_agent_id = ?`, agentID).Scan(&n)
	return n, err
}

// ListDocumentsOptions filters and pages ListDocuments.
type ListDocumentsOptions struct {
	KBID   string   // restrict to one base
	Tags   []string // any-of tag match
	Limit  int      // default 100
	Offset int
}

// ListDocuments returns an agent's documents, newest first. Ties on the
// upload timestamp break on id so pages are stable.
func (s *Store) ListDocuments(ctx context.Context, agentID string, opts ListDocumentsOptions) ([]Document, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	var b strings.Builder
	b.WriteString(`SELECT DISTINCT d.` + strings.ReplaceAll(documentCols, ", ", ", d.") +
		` FROM kb_documents d`)
	args := []any{}
	if len(opts.Tags) > 0 {
		b.WriteString(` JOIN kb_tags t ON t.document_id = d.id`)
	}
	b.WriteString(` WHERE d.owner_agent_id = ?`)
	args = append(args, agentID)
	if opts.KBID != "" {
		b.WriteString(` AND d.kb_id = ?`)
		args = append(args, opts.KBID)
	}
	if len(opts.Tags) > 0 {
		b.WriteString(` AND t.tag IN (` + repeatPlaceholders(len(opts.Tags)) + `)`)
		for _, tag := range opts.Tags {
			args = append(args, tag)
		}
	}
	b.WriteString(` ORDER BY d.uploaded_at DESC, d.id DESC LIMIT ? OFFSET ?`)
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range docs {
		if docs[i].Tags, err = s.documentTags(ctx, docs[i].ID); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

func (s *Store) documentTags(ctx context.Context, docID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tag FROM kb_tags WHERE document_id = ? ORDER BY tag`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func insertTags(ctx context.Context, tx *sql.Tx, docID string, tags []string) error {
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO kb_tags (document_id, tag) VALUES (?, ?)`, docID, tag); err != nil {
			return fmt.Errorf("inserting tag: %w", err)
		}
	}
	return nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
