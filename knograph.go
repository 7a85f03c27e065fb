// Package knograph is a multi-tenant knowledge engine: agents upload
// documents into knowledge bases, text is extracted and optionally pushed
// into a vector memory index, and an LLM extractor builds a queryable
// knowledge graph of (head, relation, tail) triples per document.
package knograph

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/knograph/knograph/graph"
	"github.com/knograph/knograph/llm"
	"github.com/knograph/knograph/memindex"
	"github.com/knograph/knograph/processor"
	"github.com/knograph/knograph/store"
)

// MemoryIndex ingests and evicts document text from the shared memory
// search index. Failures are treated as best-effort by the manager.
type MemoryIndex interface {
	Ingest(ctx context.Context, agentID, documentID, filename, content string) error
	Delete(ctx context.Context, agentID, documentID string) error
}

// Manager is the engine facade. All public operations are scoped by the
// calling agent's id; an agent can never read or write another agent's
// documents, bases, or graph.
type Manager struct {
	cfg        Config
	stores     *store.Registry
	processors *processor.Registry
	index      MemoryIndex
	pipeline   *graph.Pipeline
	log        *slog.Logger

	ownsStores bool
}

// Options carries optional collaborators for New. Zero values get
// defaults; a nil Index or Extractor simply disables that behavior.
type Options struct {
	// Stores overrides the registry. When nil, the manager opens its own
	// registry under the configured state directory and closes it on
	// Close.
	Stores *store.Registry

	// Processors overrides the format registry; defaults to all built-in
	// processors.
	Processors *processor.Registry

	// Index receives extracted text for memory search. When nil and the
	// config has an embedding provider, a sqlite-vec index over the same
	// registry is constructed.
	Index MemoryIndex

	// Extractor produces graph triples. When nil and the config has an
	// extraction provider, an LLM extractor is constructed.
	Extractor graph.Extractor

	Logger *slog.Logger
}

// New constructs a Manager from config.
func New(cfg Config, opts Options) (*Manager, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		cfg:        cfg,
		stores:     opts.Stores,
		processors: opts.Processors,
		index:      opts.Index,
		log:        logger,
	}
	if m.stores == nil {
		m.stores = store.NewRegistry(cfg.resolveStateDir())
		m.ownsStores = true
	}
	if m.processors == nil {
		m.processors = processor.NewRegistry()
	}

	if m.index == nil && cfg.Embedding.Provider != "" {
		embedder, err := llm.New(llm.Config(cfg.Embedding))
		if err != nil {
			return nil, fmt.Errorf("embedding provider: %w", err)
		}
		m.index = memindex.New(m.stores, embedder, memindex.Options{
			Dim:   cfg.EmbeddingDim,
			Model: cfg.Embedding.Model,
		}, logger)
	}

	extractor := opts.Extractor
	if extractor == nil && cfg.Extraction.Provider != "" {
		provider, err := llm.New(llm.Config(cfg.Extraction))
		if err != nil {
			return nil, fmt.Errorf("extraction provider: %w", err)
		}
		extractor = graph.NewLLMExtractor(provider, logger)
	}
	if extractor != nil {
		m.pipeline = graph.NewPipeline(extractor, logger)
	}

	return m, nil
}

// Close releases the store registry if the manager opened it.
func (m *Manager) Close() error {
	if m.ownsStores {
		return m.stores.Close()
	}
	return nil
}

// resolveConfig layers the deployment and per-agent overrides; nil means
// knowledge is disabled for this agent.
func (m *Manager) resolveConfig(agentID string) *KnowledgeConfig {
	var agentLayer *KnowledgeOverride
	if ov, ok := m.cfg.Agents[agentID]; ok {
		agentLayer = &ov
	}
	return ResolveKnowledgeConfig(&m.cfg.Knowledge, agentLayer)
}

// requireConfig is resolveConfig with the disabled case turned into an
// error.
func (m *Manager) requireConfig(agentID string) (*KnowledgeConfig, error) {
	cfg := m.resolveConfig(agentID)
	if cfg == nil {
		return nil, ErrDisabled
	}
	return cfg, nil
}

// ResolveBase picks the target base: an explicit id must be owned; with
// none given, a sole owned base is implied, zero bases is not found, and
// several are ambiguous.
func ResolveBase(explicit string, owned []string) (string, error) {
	if explicit != "" {
		for _, id := range owned {
			if id == explicit {
				return explicit, nil
			}
		}
		return "", fmt.Errorf("%w: knowledge base %s", ErrNotFound, explicit)
	}
	switch len(owned) {
	case 0:
		return "", fmt.Errorf("%w: agent has no knowledge base", ErrNotFound)
	case 1:
		return owned[0], nil
	default:
		return "", ErrAmbiguousBase
	}
}

func (m *Manager) resolveBaseID(ctx context.Context, st *store.Store, agentID, explicit string) (string, error) {
	owned, err := st.BaseIDs(ctx, agentID)
	if err != nil {
		return "", err
	}
	return ResolveBase(explicit, owned)
}

// triplesDir is where a base's JSONL triple snapshots live.
func (m *Manager) triplesDir(agentID, kbID string) string {
	return filepath.Join(m.stores.AgentDir(agentID), "knowledge", "graphs", kbID, "triples")
}

// blobDir is where document bytes live.
func (m *Manager) blobDir(agentID string) string {
	return filepath.Join(m.stores.AgentDir(agentID), "knowledge")
}

// postHook is one best-effort step after a document write. Hooks run in
// order, each inside its own error boundary: a failing hook is logged and
// never fails the write that triggered it.
type postHook struct {
	name string
	run  func(ctx context.Context) error
}

func (m *Manager) runPostHooks(ctx context.Context, agentID, documentID string, hooks []postHook) {
	for _, h := range hooks {
		if err := h.run(ctx); err != nil {
			m.log.Warn("post-write hook failed",
				"hook", h.name,
				"agent", agentID,
				"document", documentID,
				"error", err,
			)
		}
	}
}

// hashBytes is the content identity of an uploaded file.
func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// estimateTokens approximates token counts at four characters per token,
// never below one.
func estimateTokens(s string) int {
	n := (len(s) + 3) / 4
	if n < 1 {
		return 1
	}
	return n
}

// extForMimetype maps a content type to the stored blob extension.
func extForMimetype(mimetype string) string {
	switch mimetype {
	case "application/pdf":
		return "pdf"
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return "docx"
	case "application/msword":
		return "doc"
	case "text/plain":
		return "txt"
	case "text/markdown":
		return "md"
	case "text/html":
		return "html"
	default:
		return "bin"
	}
}
