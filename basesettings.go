package knograph

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/knograph/knograph/store"
)

// ChunkSettings controls how a base's documents are split for indexing.
type ChunkSettings struct {
	Enabled   bool   `json:"enabled"`
	Size      int    `json:"size"`
	Overlap   int    `json:"overlap"`
	Separator string `json:"separator"` // auto, paragraph, sentence
}

// RetrievalSettings controls how a base answers search requests.
type RetrievalSettings struct {
	Mode        string  `json:"mode"` // semantic, keyword, hybrid
	TopK        int     `json:"topK"`
	MinScore    float64 `json:"minScore"`
	HybridAlpha float64 `json:"hybridAlpha"`
}

// IndexSettings controls the indexing profile of a base.
type IndexSettings struct {
	Mode string `json:"mode"` // balanced, speed, quality
}

// ToggleSettings is a single enabled flag, used for the per-base
// vectorization and graph switches.
type ToggleSettings struct {
	Enabled bool `json:"enabled"`
}

// RuntimeSettings are the per-base knobs layered on top of the agent's
// knowledge settings.
type RuntimeSettings struct {
	Vectorization ToggleSettings    `json:"vectorization"`
	Chunk         ChunkSettings     `json:"chunk"`
	Retrieval     RetrievalSettings `json:"retrieval"`
	Index         IndexSettings     `json:"index"`
	Graph         ToggleSettings    `json:"graph"`
}

// DefaultRuntimeSettings returns the per-base defaults: chunking and
// vectorization on, graph extraction off.
func DefaultRuntimeSettings() RuntimeSettings {
	return RuntimeSettings{
		Vectorization: ToggleSettings{Enabled: true},
		Chunk: ChunkSettings{
			Enabled:   true,
			Size:      800,
			Overlap:   120,
			Separator: "auto",
		},
		Retrieval: RetrievalSettings{
			Mode:        "hybrid",
			TopK:        5,
			MinScore:    0.35,
			HybridAlpha: 0.5,
		},
		Index: IndexSettings{Mode: "balanced"},
		Graph: ToggleSettings{Enabled: false},
	}
}

// ChunkPatch, RetrievalPatch, IndexPatch, and TogglePatch are partial
// sections of a runtime settings update. Omitted fields fall back to the
// built-in defaults, matching how stored settings are re-read.
type ChunkPatch struct {
	Enabled   *bool   `json:"enabled,omitempty"`
	Size      *int    `json:"size,omitempty"`
	Overlap   *int    `json:"overlap,omitempty"`
	Separator *string `json:"separator,omitempty"`
}

type RetrievalPatch struct {
	Mode        *string  `json:"mode,omitempty"`
	TopK        *int     `json:"topK,omitempty"`
	MinScore    *float64 `json:"minScore,omitempty"`
	HybridAlpha *float64 `json:"hybridAlpha,omitempty"`
}

type IndexPatch struct {
	Mode *string `json:"mode,omitempty"`
}

type TogglePatch struct {
	Enabled *bool `json:"enabled,omitempty"`
}

// RuntimeSettingsPatch is a partial runtime settings write. Nil sections
// keep the base's stored section.
type RuntimeSettingsPatch struct {
	Vectorization *TogglePatch    `json:"vectorization,omitempty"`
	Chunk         *ChunkPatch     `json:"chunk,omitempty"`
	Retrieval     *RetrievalPatch `json:"retrieval,omitempty"`
	Index         *IndexPatch     `json:"index,omitempty"`
	Graph         *TogglePatch    `json:"graph,omitempty"`
}

// GetBaseSettings returns the runtime settings of one base.
func (m *Manager) GetBaseSettings(ctx context.Context, agentID, kbID string) (*RuntimeSettings, error) {
	if _, err := m.requireConfig(agentID); err != nil {
		return nil, err
	}
	st, err := m.stores.ForAgent(agentID)
	if err != nil {
		return nil, err
	}
	resolved, err := m.resolveBaseID(ctx, st, agentID, kbID)
	if err != nil {
		return nil, err
	}
	return m.baseRuntimeSettings(ctx, st, resolved)
}

// UpdateBaseSettings applies a partial update to the runtime settings of
// one base and returns the result. Provided sections replace the stored
// section; omitted fields within a section revert to defaults.
func (m *Manager) UpdateBaseSettings(ctx context.Context, agentID, kbID string, patch RuntimeSettingsPatch) (*RuntimeSettings, error) {
	if _, err := m.requireConfig(agentID); err != nil {
		return nil, err
	}
	st, err := m.stores.ForAgent(agentID)
	if err != nil {
		return nil, err
	}
	resolved, err := m.resolveBaseID(ctx, st, agentID, kbID)
	if err != nil {
		return nil, err
	}

	current, err := m.baseRuntimeSettings(ctx, st, resolved)
	if err != nil {
		return nil, err
	}
	next := *current
	if patch.Vectorization != nil {
		next.Vectorization = mergeToggle(*patch.Vectorization, true)
	}
	if patch.Chunk != nil {
		next.Chunk = mergeChunk(*patch.Chunk)
	}
	if patch.Retrieval != nil {
		next.Retrieval = mergeRetrieval(*patch.Retrieval)
	}
	if patch.Index != nil {
		next.Index = mergeIndex(*patch.Index)
	}
	if patch.Graph != nil {
		next.Graph = mergeToggle(*patch.Graph, false)
	}
	if err := validateRuntimeSettings(next); err != nil {
		return nil, err
	}
	if err := m.writeBaseRuntimeSettings(ctx, st, resolved, next); err != nil {
		return nil, err
	}
	return &next, nil
}

// baseRuntimeSettings reads one base's stored settings, falling back to
// defaults section by section.
func (m *Manager) baseRuntimeSettings(ctx context.Context, st *store.Store, kbID string) (*RuntimeSettings, error) {
	row, err := st.GetBaseSettingsRow(ctx, kbID)
	if err != nil {
		return nil, err
	}
	s := DefaultRuntimeSettings()
	if row == nil {
		return &s, nil
	}
	if err := decodeSection(row.VectorizationConfig, &s.Vectorization); err != nil {
		return nil, err
	}
	if err := decodeSection(row.ChunkConfig, &s.Chunk); err != nil {
		return nil, err
	}
	if err := decodeSection(row.RetrievalConfig, &s.Retrieval); err != nil {
		return nil, err
	}
	if err := decodeSection(row.IndexConfig, &s.Index); err != nil {
		return nil, err
	}
	if err := decodeSection(row.GraphConfig, &s.Graph); err != nil {
		return nil, err
	}
	return &s, nil
}

// writeBaseRuntimeSettings persists the fully merged settings. Each
// section is stored complete, so re-reads do not depend on defaults
// shifting underneath old rows.
func (m *Manager) writeBaseRuntimeSettings(ctx context.Context, st *store.Store, kbID string, s RuntimeSettings) error {
	row := store.BaseSettingsRow{
		KBID:      kbID,
		UpdatedAt: time.Now().UnixMilli(),
	}
	for _, part := range []struct {
		dst *string
		v   any
	}{
		{&row.VectorizationConfig, s.Vectorization},
		{&row.ChunkConfig, s.Chunk},
		{&row.RetrievalConfig, s.Retrieval},
		{&row.IndexConfig, s.Index},
		{&row.GraphConfig, s.Graph},
	} {
		data, err := json.Marshal(part.v)
		if err != nil {
			return err
		}
		*part.dst = string(data)
	}
	return st.UpsertBaseSettingsRow(ctx, row)
}

func decodeSection(raw string, dst any) error {
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("parsing stored base settings: %w", err)
	}
	return nil
}

func mergeToggle(p TogglePatch, def bool) ToggleSettings {
	s := ToggleSettings{Enabled: def}
	if p.Enabled != nil {
		s.Enabled = *p.Enabled
	}
	return s
}

func mergeChunk(p ChunkPatch) ChunkSettings {
	s := DefaultRuntimeSettings().Chunk
	if p.Enabled != nil {
		s.Enabled = *p.Enabled
	}
	if p.Size != nil {
		s.Size = *p.Size
	}
	if p.Overlap != nil {
		s.Overlap = *p.Overlap
	}
	if p.Separator != nil {
		s.Separator = *p.Separator
	}
	return s
}

func mergeRetrieval(p RetrievalPatch) RetrievalSettings {
	s := DefaultRuntimeSettings().Retrieval
	if p.Mode != nil {
		s.Mode = *p.Mode
	}
	if p.TopK != nil {
		s.TopK = *p.TopK
	}
	if p.MinScore != nil {
		s.MinScore = *p.MinScore
	}
	if p.HybridAlpha != nil {
		s.HybridAlpha = *p.HybridAlpha
	}
	return s
}

func mergeIndex(p IndexPatch) IndexSettings {
	s := DefaultRuntimeSettings().Index
	if p.Mode != nil {
		s.Mode = *p.Mode
	}
	return s
}

func validateRuntimeSettings(s RuntimeSettings) error {
	c := s.Chunk
	if c.Size < 200 || c.Size > 4000 {
		return fmt.Errorf("%w: chunk.size must be between 200 and 4000", ErrInvalid)
	}
	if c.Overlap < 0 || c.Overlap > 1000 {
		return fmt.Errorf("%w: chunk.overlap must be between 0 and 1000", ErrInvalid)
	}
	if c.Overlap >= c.Size {
		return fmt.Errorf("%w: chunk.overlap must be less than chunk.size", ErrInvalid)
	}
	switch c.Separator {
	case "auto", "paragraph", "sentence":
	default:
		return fmt.Errorf("%w: chunk.separator %q", ErrInvalid, c.Separator)
	}

	r := s.Retrieval
	switch r.Mode {
	case "semantic", "keyword", "hybrid":
	default:
		return fmt.Errorf("%w: retrieval.mode %q", ErrInvalid, r.Mode)
	}
	if r.TopK < 1 || r.TopK > 20 {
		return fmt.Errorf("%w: retrieval.topK must be between 1 and 20", ErrInvalid)
	}
	if r.MinScore < 0 || r.MinScore > 1 {
		return fmt.Errorf("%w: retrieval.minScore must be between 0 and 1", ErrInvalid)
	}
	if r.HybridAlpha < 0 || r.HybridAlpha > 1 {
		return fmt.Errorf("%w: retrieval.hybridAlpha must be between 0 and 1", ErrInvalid)
	}
	return nil
}

// DefaultTagColor is assigned to tags created without an explicit color.
const DefaultTagColor = "#64748b"

var tagColorRE = regexp.MustCompile(`^#([0-9a-fA-F]{6})$`)

// normalizeTagColor validates and lowercases a #RRGGBB color. An empty
// value means no color was given.
func normalizeTagColor(value string) (string, error) {
	color := strings.TrimSpace(value)
	if color == "" {
		return "", nil
	}
	if !tagColorRE.MatchString(color) {
		return "", fmt.Errorf("%w: tag color must be in #RRGGBB format", ErrInvalid)
	}
	return strings.ToLower(color), nil
}
