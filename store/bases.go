package store

import (
	"context"
	"database/sql"
	"errors"
)

// Base represents a row in the kb_bases table.
type Base struct {
	ID           string `json:"id"`
	OwnerAgentID string `json:"ownerAgentId"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Icon         string `json:"icon,omitempty"`
	Visibility   string `json:"visibility"`
	CreatedAt    int64  `json:"createdAt"`
	UpdatedAt    int64  `json:"updatedAt"`
}

// BaseSettingsRow holds the raw JSON settings blobs for one base. Merging
// over defaults happens above the store.
type BaseSettingsRow struct {
	KBID                string
	ChunkConfig         string
	RetrievalConfig     string
	IndexConfig         string
	GraphConfig         string
	VectorizationConfig string
	UpdatedAt           int64
}

// TagDef represents a row in the kb_tag_defs table.
type TagDef struct {
	ID           string `json:"id"`
	OwnerAgentID string `json:"ownerAgentId"`
	Name         string `json:"name"`
	Color        string `json:"color,omitempty"`
	CreatedAt    int64  `json:"createdAt"`
}

const baseCols = `id, owner_agent_id, name, description, icon, visibility, created_at, updated_at`

func scanBase(row interface{ Scan(...any) error }) (*Base, error) {
	var b Base
	var desc, icon sql.NullString
	err := row.Scan(&b.ID, &b.OwnerAgentID, &b.Name, &desc, &icon,
		&b.Visibility, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.Description = desc.String
	b.Icon = icon.String
	return &b, nil
}

// InsertBase stores a new knowledge base row.
func (s *Store) InsertBase(ctx context.Context, b Base) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kb_bases (`+baseCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.OwnerAgentID, b.Name, nullStr(b.Description), nullStr(b.Icon),
		b.Visibility, b.CreatedAt, b.UpdatedAt)
	return err
}

// GetBase fetches one base by id, or nil if absent.
func (s *Store) GetBase(ctx context.Context, id string) (*Base, error) {
	b, err := scanBase(s.db.QueryRowContext(ctx,
		`SELECT `+baseCols+` FROM kb_bases WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

// BaseNameExists reports whether the agent already has a base with this
// name, optionally ignoring one base id.
func (s *Store) BaseNameExists(ctx context.Context, agentID, name, excludeID string) (bool, error) {
	q := `SELECT 1 FROM kb_bases WHERE owner_agent_id = ? AND name = ?`
	args := []any{agentID, name}
	if excludeID != "" {
		q += ` AND id != ?`
		args = append(args, excludeID)
	}
	var one int
	err := s.db.QueryRowContext(ctx, q, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// UpdateBase applies the non-nil fields and bumps updated_at.
func (s *Store) UpdateBase(ctx context.Context, id string, name, description, icon, visibility *string, updatedAt int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		set := func(col string, v *string, nullable bool) error {
			if v == nil {
				return nil
			}
			val := any(*v)
			if nullable {
				val = nullStr(*v)
			}
			_, err := tx.ExecContext(ctx,
				`UPDATE kb_bases SET `+col+` = ? WHERE id = ?`, val, id)
			return err
		}
		if err := set("name", name, false); err != nil {
			return err
		}
		if err := set("description", description, true); err != nil {
			return err
		}
		if err := set("icon", icon, true); err != nil {
			return err
		}
		if err := set("visibility", visibility, false); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE kb_bases SET updated_at = ? WHERE id = ?`, updatedAt, id)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

// DeleteBase removes the base row. Base settings and tag links cascade;
// documents keep their kb_id and remain listable by the owner.
func (s *Store) DeleteBase(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM kb_bases WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ListBasesOptions filters and pages ListBases. All filters AND together.
type ListBasesOptions struct {
	Search     string   // substring on name or description
	Visibility string   // private, team, public
	TagIDs     []string // any-of tag match
	Limit      int      // default 100
	Offset     int
}

// ListBases returns a page of the agent's bases, oldest first, plus the
// total count matching the filters.
func (s *Store) ListBases(ctx context.Context, agentID string, opts ListBasesOptions) ([]Base, int, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	where := ` FROM kb_bases b`
	args := []any{}
	if len(opts.TagIDs) > 0 {
		where += ` JOIN kb_base_tags bt ON bt.kb_id = b.id`
	}
	where += ` WHERE b.owner_agent_id = ?`
	args = append(args, agentID)
	if opts.Search != "" {
		where += ` AND (b.name LIKE ? ESCAPE '\' OR b.description LIKE ? ESCAPE '\')`
		like := "%" + escapeLike(opts.Search) + "%"
		args = append(args, like, like)
	}
	if opts.Visibility != "" {
		where += ` AND b.visibility = ?`
		args = append(args, opts.Visibility)
	}
	if len(opts.TagIDs) > 0 {
		where += ` AND bt.tag_id IN (` + repeatPlaceholders(len(opts.TagIDs)) + `)`
		for _, id := range opts.TagIDs {
			args = append(args, id)
		}
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT b.id)`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	cols := prefixCols("b", baseCols)
	pageArgs := append(append([]any{}, args...), limit, opts.Offset)
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT `+cols+where+` ORDER BY b.created_at ASC, b.id ASC LIMIT ? OFFSET ?`,
		pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var bases []Base
	for rows.Next() {
		b, err := scanBase(rows)
		if err != nil {
			return nil, 0, err
		}
		bases = append(bases, *b)
	}
	return bases, total, rows.Err()
}

// BaseIDs returns the ids of every base the agent owns.
func (s *Store) BaseIDs(ctx context.Context, agentID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM kb_bases WHERE owner_agent_id = ? ORDER BY created_at ASC`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetBaseSettingsRow fetches the stored settings blobs for a base, or nil
// when none were ever written.
func (s *Store) GetBaseSettingsRow(ctx context.Context, kbID string) (*BaseSettingsRow, error) {
	var r BaseSettingsRow
	var chunk, retr, index, graph, vec sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT kb_id, chunk_config, retrieval_config, index_config, graph_config,
		       vectorization_config, updated_at
		FROM kb_base_settings WHERE kb_id = ?`, kbID).
		Scan(&r.KBID, &chunk, &retr, &index, &graph, &vec, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.ChunkConfig = chunk.String
	r.RetrievalConfig = retr.String
	r.IndexConfig = index.String
	r.GraphConfig = graph.String
	r.VectorizationConfig = vec.String
	return &r, nil
}

// UpsertBaseSettingsRow writes the full settings blobs for a base.
func (s *Store) UpsertBaseSettingsRow(ctx context.Context, r BaseSettingsRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kb_base_settings
			(kb_id, chunk_config, retrieval_config, index_config, graph_config,
			 vectorization_config, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(kb_id) DO UPDATE SET
			chunk_config = excluded.chunk_config,
			retrieval_config = excluded.retrieval_config,
			index_config = excluded.index_config,
			graph_config = excluded.graph_config,
			vectorization_config = excluded.vectorization_config,
			updated_at = excluded.updated_at`,
		r.KBID, nullStr(r.ChunkConfig), nullStr(r.RetrievalConfig), nullStr(r.IndexConfig),
		nullStr(r.GraphConfig), nullStr(r.VectorizationConfig), r.UpdatedAt)
	return err
}

// --- tag definitions ---

const tagDefCols = `id, owner_agent_id, name, color, created_at`

func scanTagDef(row interface{ Scan(...any) error }) (*TagDef, error) {
	var t TagDef
	var color sql.NullString
	if err := row.Scan(&t.ID, &t.OwnerAgentID, &t.Name, &color, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.Color = color.String
	return &t, nil
}

// InsertTagDef stores a new tag definition.
func (s *Store) InsertTagDef(ctx context.Context, t TagDef) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kb_tag_defs (`+tagDefCols+`) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.OwnerAgentID, t.Name, nullStr(t.Color), t.CreatedAt)
	return err
}

// GetTagDef fetches one tag definition by id, or nil if absent.
func (s *Store) GetTagDef(ctx context.Context, id string) (*TagDef, error) {
	t, err := scanTagDef(s.db.QueryRowContext(ctx,
		`SELECT `+tagDefCols+` FROM kb_tag_defs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// GetTagDefByName fetches an agent's tag definition by name, or nil.
func (s *Store) GetTagDefByName(ctx context.Context, agentID, name string) (*TagDef, error) {
	t, err := scanTagDef(s.db.QueryRowContext(ctx,
		`SELECT `+tagDefCols+` FROM kb_tag_defs WHERE owner_agent_id = ? AND name = ?`,
		agentID, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// ListTagDefs returns every tag definition the agent owns, by name.
func (s *Store) ListTagDefs(ctx context.Context, agentID string) ([]TagDef, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tagDefCols+` FROM kb_tag_defs WHERE owner_agent_id = ? ORDER BY name ASC`,
		agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []TagDef
	for rows.Next() {
		t, err := scanTagDef(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, *t)
	}
	return defs, rows.Err()
}

// UpdateTagDef applies the non-nil fields of a tag definition.
func (s *Store) UpdateTagDef(ctx context.Context, id string, name, color *string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if name != nil {
			res, err := tx.ExecContext(ctx,
				`UPDATE kb_tag_defs SET name = ? WHERE id = ?`, *name, id)
			if err != nil {
				return err
			}
			if err := requireRow(res); err != nil {
				return err
			}
		}
		if color != nil {
			res, err := tx.ExecContext(ctx,
				`UPDATE kb_tag_defs SET color = ? WHERE id = ?`, nullStr(*color), id)
			if err != nil {
				return err
			}
			if err := requireRow(res); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteTagDef removes a tag definition; base links cascade.
func (s *Store) DeleteTagDef(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM kb_tag_defs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// BaseTagIDs returns the tag ids currently bound to a base.
func (s *Store) BaseTagIDs(ctx context.Context, kbID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tag_id FROM kb_base_tags WHERE kb_id = ?`, kbID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// BaseTags returns the tag definitions bound to a base, by name.
func (s *Store) BaseTags(ctx context.Context, kbID string) ([]TagDef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.owner_agent_id, d.name, d.color, d.created_at
		FROM kb_base_tags bt JOIN kb_tag_defs d ON d.id = bt.tag_id
		WHERE bt.kb_id = ? ORDER BY d.name ASC`, kbID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []TagDef
	for rows.Next() {
		t, err := scanTagDef(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, *t)
	}
	return defs, rows.Err()
}

// SetBaseTags reconciles a base's tag links to exactly tagIDs, adding and
// removing links as needed.
func (s *Store) SetBaseTags(ctx context.Context, kbID string, tagIDs []string) error {
	want := make(map[string]bool, len(tagIDs))
	for _, id := range tagIDs {
		want[id] = true
	}
	current, err := s.BaseTagIDs(ctx, kbID)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(current))
	for _, id := range current {
		have[id] = true
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		for id := range want {
			if !have[id] {
				if _, err := tx.ExecContext(ctx,
					`INSERT OR IGNORE INTO kb_base_tags (kb_id, tag_id) VALUES (?, ?)`,
					kbID, id); err != nil {
					return err
				}
			}
		}
		for id := range have {
			if !want[id] {
				if _, err := tx.ExecContext(ctx,
					`DELETE FROM kb_base_tags WHERE kb_id = ? AND tag_id = ?`,
					kbID, id); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
