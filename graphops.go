package knograph

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/knograph/knograph/graph"
	"github.com/knograph/knograph/store"
)

// GraphQuery shapes a subgraph retrieval against one base.
type GraphQuery struct {
	KBID          string
	Query         string
	DocumentIDs   []string
	Relation      string
	Entity        string
	CreatedAfter  int64
	CreatedBefore int64
	MaxDepth      int
	MaxTriples    int
	MinDegree     int
}

// QueryGraph retrieves a scored subgraph. The target base comes from the
// explicit kb id, from the documents' shared base, or from a sole owned
// base, in that order.
func (m *Manager) QueryGraph(ctx context.Context, agentID string, q GraphQuery) (*graph.Subgraph, error) {
	if _, err := m.requireConfig(agentID); err != nil {
		return nil, err
	}
	st, err := m.stores.ForAgent(agentID)
	if err != nil {
		return nil, err
	}
	kbID, err := m.resolveGraphKB(ctx, st, agentID, q.KBID, q.DocumentIDs)
	if err != nil {
		return nil, err
	}
	return graph.QuerySubgraph(ctx, st, kbID, graph.QueryParams{
		Query:         q.Query,
		DocumentIDs:   q.DocumentIDs,
		Relation:      q.Relation,
		Entity:        q.Entity,
		CreatedAfter:  q.CreatedAfter,
		CreatedBefore: q.CreatedBefore,
		MaxDepth:      q.MaxDepth,
		MaxTriples:    q.MaxTriples,
		MinDegree:     q.MinDegree,
	})
}

// RefreshGraph re-runs triple extraction for one document from its
// stored blob, regardless of the base's graph switch. Preview-only
// documents have no extractable text and are rejected.
func (m *Manager) RefreshGraph(ctx context.Context, agentID, documentID, kbID string) (*store.GraphRun, error) {
	cfg, err := m.requireConfig(agentID)
	if err != nil {
		return nil, err
	}
	if m.pipeline == nil {
		return nil, fmt.Errorf("%w: no graph extractor configured", ErrDisabled)
	}
	st, err := m.stores.ForAgent(agentID)
	if err != nil {
		return nil, err
	}
	doc, err := m.requireDocument(ctx, st, agentID, documentID, kbID)
	if err != nil {
		return nil, err
	}
	targetKB, err := m.documentKB(ctx, st, agentID, doc, kbID)
	if err != nil {
		return nil, err
	}

	proc := m.processors.Get(doc.Mimetype)
	if proc == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, doc.Mimetype)
	}
	data, err := os.ReadFile(filepath.Join(m.stores.AgentDir(agentID), doc.Path))
	if err != nil {
		return nil, fmt.Errorf("reading document blob: %w", err)
	}
	text, err := m.extractText(ctx, proc, doc.Filename, data)
	if err != nil {
		return nil, err
	}

	settings, err := m.effectiveSettings(ctx, st, agentID, cfg)
	if err != nil {
		return nil, err
	}
	return m.pipeline.ExtractForDocument(ctx, st, graph.ExtractRequest{
		KBID:       targetKB,
		DocumentID: documentID,
		Text:       text,
		TriplesDir: m.triplesDir(agentID, targetKB),
		Settings:   graphSettings(settings.Graph),
	})
}

// GetGraphRun returns the latest extraction run for a document, or nil
// when none has happened.
func (m *Manager) GetGraphRun(ctx context.Context, agentID, documentID, kbID string) (*store.GraphRun, error) {
	if _, err := m.requireConfig(agentID); err != nil {
		return nil, err
	}
	st, err := m.stores.ForAgent(agentID)
	if err != nil {
		return nil, err
	}
	doc, err := m.requireDocument(ctx, st, agentID, documentID, kbID)
	if err != nil {
		return nil, err
	}
	targetKB, err := m.documentKB(ctx, st, agentID, doc, kbID)
	if err != nil {
		return nil, err
	}
	return st.GetGraphRun(ctx, targetKB, documentID)
}

// GetGraphStats summarises one base's graph.
func (m *Manager) GetGraphStats(ctx context.Context, agentID, kbID string) (*store.GraphStats, error) {
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
	return st.GetGraphStats(ctx, resolved)
}

// documentKB picks the base a document's graph entries live under: the
// document's own base, then the explicit kb id, then a sole owned base.
func (m *Manager) documentKB(ctx context.Context, st *store.Store, agentID string, doc *store.Document, kbID string) (string, error) {
	if doc.KBID != "" {
		return doc.KBID, nil
	}
	if kbID != "" {
		return kbID, nil
	}
	return m.resolveBaseID(ctx, st, agentID, "")
}

// resolveGraphKB picks the base for a graph query. An explicit kb id is
// validated against every named document; without one, the documents
// must agree on a single base.
func (m *Manager) resolveGraphKB(ctx context.Context, st *store.Store, agentID, kbID string, documentIDs []string) (string, error) {
	if kbID != "" {
		if _, err := m.resolveBaseID(ctx, st, agentID, kbID); err != nil {
			return "", err
		}
		for _, id := range documentIDs {
			if _, err := m.requireDocument(ctx, st, agentID, id, kbID); err != nil {
				return "", err
			}
		}
		return kbID, nil
	}
	var resolved string
	for _, id := range documentIDs {
		doc, err := m.requireDocument(ctx, st, agentID, id, "")
		if err != nil {
			return "", err
		}
		if doc.KBID == "" {
			continue
		}
		if resolved == "" {
			resolved = doc.KBID
		} else if resolved != doc.KBID {
			return "", ErrBaseMismatch
		}
	}
	if resolved != "" {
		return resolved, nil
	}
	return m.resolveBaseID(ctx, st, agentID, "")
}
