package knograph

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/knograph/knograph/graph"
	"github.com/knograph/knograph/store"
)

// KnowledgeSettings is the effective agent-scoped settings view: static
// configuration with the agent's stored overrides applied.
type KnowledgeSettings struct {
	Enabled       bool                `json:"enabled"`
	Vectorization VectorizationConfig `json:"vectorization"`
	Graph         GraphConfig         `json:"graph"`
	UpdatedAt     int64               `json:"updatedAt,omitempty"`
}

// SettingsUpdate is a partial settings write. Nil fields leave the stored
// override untouched.
type SettingsUpdate struct {
	Vectorization *VectorizationOverride `json:"vectorization,omitempty"`
	Graph         *GraphOverride         `json:"graph,omitempty"`
}

// GetSettings returns the agent's effective settings.
func (m *Manager) GetSettings(ctx context.Context, agentID string) (*KnowledgeSettings, error) {
	cfg, err := m.requireConfig(agentID)
	if err != nil {
		return nil, err
	}
	st, err := m.stores.ForAgent(agentID)
	if err != nil {
		return nil, err
	}
	return m.effectiveSettings(ctx, st, agentID, cfg)
}

// UpdateSettings merges the partial update into the agent's stored
// overrides and returns the recomputed effective settings.
func (m *Manager) UpdateSettings(ctx context.Context, agentID string, upd SettingsUpdate) (*KnowledgeSettings, error) {
	cfg, err := m.requireConfig(agentID)
	if err != nil {
		return nil, err
	}
	if upd.Graph != nil && upd.Graph.Extractor != nil && *upd.Graph.Extractor != "llm" {
		return nil, fmt.Errorf("%w: unsupported graph extractor %q", ErrInvalid, *upd.Graph.Extractor)
	}

	st, err := m.stores.ForAgent(agentID)
	if err != nil {
		return nil, err
	}
	stored, err := m.storedOverrides(ctx, st, agentID)
	if err != nil {
		return nil, err
	}

	if upd.Vectorization != nil {
		if stored.vec == nil {
			stored.vec = &VectorizationOverride{}
		}
		mergeVectorizationOverride(stored.vec, upd.Vectorization)
	}
	if upd.Graph != nil {
		if stored.graph == nil {
			stored.graph = &GraphOverride{}
		}
		mergeGraphOverride(stored.graph, upd.Graph)
	}

	row := store.SettingsRow{
		OwnerAgentID: agentID,
		UpdatedAt:    time.Now().UnixMilli(),
	}
	if stored.vec != nil {
		data, err := json.Marshal(stored.vec)
		if err != nil {
			return nil, err
		}
		row.VectorConfig = string(data)
	}
	if stored.graph != nil {
		data, err := json.Marshal(stored.graph)
		if err != nil {
			return nil, err
		}
		row.GraphConfig = string(data)
	}
	if err := st.UpsertSettingsRow(ctx, row); err != nil {
		return nil, err
	}
	return m.effectiveSettings(ctx, st, agentID, cfg)
}

type settingsOverrides struct {
	vec       *VectorizationOverride
	graph     *GraphOverride
	updatedAt int64
}

func (m *Manager) storedOverrides(ctx context.Context, st *store.Store, agentID string) (*settingsOverrides, error) {
	out := &settingsOverrides{}
	row, err := st.GetSettingsRow(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return out, nil
	}
	out.updatedAt = row.UpdatedAt
	if row.VectorConfig != "" {
		out.vec = &VectorizationOverride{}
		if err := json.Unmarshal([]byte(row.VectorConfig), out.vec); err != nil {
			return nil, fmt.Errorf("parsing stored vector settings: %w", err)
		}
	}
	if row.GraphConfig != "" {
		out.graph = &GraphOverride{}
		if err := json.Unmarshal([]byte(row.GraphConfig), out.graph); err != nil {
			return nil, fmt.Errorf("parsing stored graph settings: %w", err)
		}
	}
	return out, nil
}

// effectiveSettings applies an agent's stored overrides onto the resolved
// static configuration. The extractor kind always reads back as "llm".
func (m *Manager) effectiveSettings(ctx context.Context, st *store.Store, agentID string, cfg *KnowledgeConfig) (*KnowledgeSettings, error) {
	stored, err := m.storedOverrides(ctx, st, agentID)
	if err != nil {
		return nil, err
	}

	eff := &KnowledgeSettings{
		Enabled:       cfg.Enabled,
		Vectorization: cfg.Vectorization,
		Graph:         cfg.Graph,
		UpdatedAt:     stored.updatedAt,
	}
	applyVectorizationOverride(&eff.Vectorization, stored.vec)
	applyGraphOverride(&eff.Graph, stored.graph)
	eff.Graph.Extractor = "llm"
	return eff, nil
}

// graphSettings converts effective graph settings into extraction knobs.
func graphSettings(g GraphConfig) graph.Settings {
	return graph.Settings{
		Model:             g.Model,
		MinTriples:        g.MinTriples,
		MaxTriples:        g.MaxTriples,
		TriplesPerKTokens: g.TriplesPerKTokens,
		MaxDepth:          g.MaxDepth,
	}
}

func applyVectorizationOverride(c *VectorizationConfig, o *VectorizationOverride) {
	if o == nil {
		return
	}
	if o.Enabled != nil {
		c.Enabled = *o.Enabled
	}
	if o.Provider != nil {
		c.Provider = *o.Provider
	}
	if o.Model != nil {
		c.Model = *o.Model
	}
}

func applyGraphOverride(c *GraphConfig, o *GraphOverride) {
	if o == nil {
		return
	}
	if o.Enabled != nil {
		c.Enabled = *o.Enabled
	}
	if o.Extractor != nil {
		c.Extractor = *o.Extractor
	}
	if o.Provider != nil {
		c.Provider = *o.Provider
	}
	if o.Model != nil {
		c.Model = *o.Model
	}
	if o.MinTriples != nil {
		c.MinTriples = *o.MinTriples
	}
	if o.MaxTriples != nil {
		c.MaxTriples = *o.MaxTriples
	}
	if o.TriplesPerKTokens != nil {
		c.TriplesPerKTokens = *o.TriplesPerKTokens
	}
	if o.MaxDepth != nil {
		c.MaxDepth = *o.MaxDepth
	}
}

func mergeVectorizationOverride(dst, src *VectorizationOverride) {
	if src.Enabled != nil {
		dst.Enabled = src.Enabled
	}
	if src.Provider != nil {
		dst.Provider = src.Provider
	}
	if src.Model != nil {
		dst.Model = src.Model
	}
}

func mergeGraphOverride(dst, src *GraphOverride) {
	if src.Enabled != nil {
		dst.Enabled = src.Enabled
	}
	if src.Extractor != nil {
		dst.Extractor = src.Extractor
	}
	if src.Provider != nil {
		dst.Provider = src.Provider
	}
	if src.Model != nil {
		dst.Model = src.Model
	}
	if src.MinTriples != nil {
		dst.MinTriples = src.MinTriples
	}
	if src.MaxTriples != nil {
		dst.MaxTriples = src.MaxTriples
	}
	if src.TriplesPerKTokens != nil {
		dst.TriplesPerKTokens = src.TriplesPerKTokens
	}
	if src.MaxDepth != nil {
		dst.MaxDepth = src.MaxDepth
	}
}
