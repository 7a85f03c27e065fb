package knograph

import (
	"os"
	"path/filepath"
)

// Config holds all configuration for the knowledge engine.
type Config struct {
	// StateDir is the root directory for per-agent state. Each agent gets
	// <StateDir>/agents/<agentID>/ holding its database and blob store.
	// If empty, defaults to ~/.knograph.
	StateDir string `json:"state_dir"`

	// LLM providers. Extraction drives graph triple extraction, Embedding
	// drives memory-index vectorization.
	Extraction LLMConfig `json:"extraction"`
	Embedding  LLMConfig `json:"embedding"`

	// EmbeddingDim must match the embedding model's output dimension.
	EmbeddingDim int `json:"embedding_dim"`

	// Knowledge is the deployment-wide default knowledge configuration.
	Knowledge KnowledgeOverride `json:"knowledge"`

	// Agents maps agent ids to per-agent knowledge overrides, applied on
	// top of the deployment defaults.
	Agents map[string]KnowledgeOverride `json:"agents,omitempty"`
}

// LLMConfig configures a single LLM provider endpoint.
type LLMConfig struct {
	Provider string `json:"provider"` // ollama, lmstudio, openai, custom
	Model    string `json:"model"`
	BaseURL  string `json:"base_url"`
	APIKey   string `json:"api_key"`
}

// KnowledgeConfig is a fully resolved knowledge configuration for one agent.
// Every field is populated; there are no optional layers left to apply.
type KnowledgeConfig struct {
	Enabled       bool                `json:"enabled"`
	Vectorization VectorizationConfig `json:"vectorization"`
	Graph         GraphConfig         `json:"graph"`
	Storage       StorageConfig       `json:"storage"`
	Formats       FormatsConfig       `json:"formats"`
	Upload        UploadConfig        `json:"upload"`
	Search        SearchConfig        `json:"search"`
}

// VectorizationConfig controls memory-index ingestion of document text.
type VectorizationConfig struct {
	Enabled  bool   `json:"enabled"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

// GraphConfig controls knowledge-graph triple extraction.
type GraphConfig struct {
	Enabled           bool   `json:"enabled"`
	Extractor         string `json:"extractor"` // only "llm" is supported
	Provider          string `json:"provider,omitempty"`
	Model             string `json:"model,omitempty"`
	MinTriples        int    `json:"min_triples"`
	MaxTriples        int    `json:"max_triples"`
	TriplesPerKTokens int    `json:"triples_per_k_tokens"`
	MaxDepth          int    `json:"max_depth"`
}

// StorageConfig bounds per-agent document storage.
type StorageConfig struct {
	MaxFileSize  int64 `json:"max_file_size"`
	MaxDocuments int   `json:"max_documents"`
}

// FormatsConfig toggles individual extractable file formats.
type FormatsConfig struct {
	PDF  FormatToggle `json:"pdf"`
	Docx FormatToggle `json:"docx"`
	Text FormatToggle `json:"text"`
	HTML FormatToggle `json:"html"`
}

// FormatToggle enables or disables a single format.
type FormatToggle struct {
	Enabled bool `json:"enabled"`
}

// UploadConfig toggles upload entry points.
type UploadConfig struct {
	WebAPI          bool `json:"web_api"`
	ChatAttachments bool `json:"chat_attachments"`
}

// SearchConfig controls how knowledge participates in memory search.
type SearchConfig struct {
	AutoIndex             bool `json:"auto_index"`
	IncludeInMemorySearch bool `json:"include_in_memory_search"`
}

// DefaultKnowledgeConfig returns the built-in knowledge defaults. Uploads
// work out of the box; graph extraction and vectorization are opt-in.
func DefaultKnowledgeConfig() KnowledgeConfig {
	return KnowledgeConfig{
		Enabled: true,
		Vectorization: VectorizationConfig{
			Enabled: false,
		},
		Graph: GraphConfig{
			Enabled:           false,
			Extractor:         "llm",
			MinTriples:        20,
			MaxTriples:        400,
			TriplesPerKTokens: 20,
			MaxDepth:          2,
		},
		Storage: StorageConfig{
			MaxFileSize:  10 * 1024 * 1024,
			MaxDocuments: 1000,
		},
		Formats: FormatsConfig{
			PDF:  FormatToggle{Enabled: true},
			Docx: FormatToggle{Enabled: true},
			Text: FormatToggle{Enabled: true},
			HTML: FormatToggle{Enabled: true},
		},
		Upload: UploadConfig{
			WebAPI:          true,
			ChatAttachments: true,
		},
		Search: SearchConfig{
			AutoIndex:             true,
			IncludeInMemorySearch: true,
		},
	}
}

// KnowledgeOverride is a partial KnowledgeConfig. Nil fields leave the
// underlying layer untouched.
type KnowledgeOverride struct {
	Enabled       *bool                  `json:"enabled,omitempty"`
	Vectorization *VectorizationOverride `json:"vectorization,omitempty"`
	Graph         *GraphOverride         `json:"graph,omitempty"`
	Storage       *StorageOverride       `json:"storage,omitempty"`
	Formats       *FormatsOverride       `json:"formats,omitempty"`
	Upload        *UploadOverride        `json:"upload,omitempty"`
	Search        *SearchOverride        `json:"search,omitempty"`
}

// VectorizationOverride is a partial VectorizationConfig.
type VectorizationOverride struct {
	Enabled  *bool   `json:"enabled,omitempty"`
	Provider *string `json:"provider,omitempty"`
	Model    *string `json:"model,omitempty"`
}

// GraphOverride is a partial GraphConfig.
type GraphOverride struct {
	Enabled           *bool   `json:"enabled,omitempty"`
	Extractor         *string `json:"extractor,omitempty"`
	Provider          *string `json:"provider,omitempty"`
	Model             *string `json:"model,omitempty"`
	MinTriples        *int    `json:"min_triples,omitempty"`
	MaxTriples        *int    `json:"max_triples,omitempty"`
	TriplesPerKTokens *int    `json:"triples_per_k_tokens,omitempty"`
	MaxDepth          *int    `json:"max_depth,omitempty"`
}

// StorageOverride is a partial StorageConfig.
type StorageOverride struct {
	MaxFileSize  *int64 `json:"max_file_size,omitempty"`
	MaxDocuments *int   `json:"max_documents,omitempty"`
}

// FormatsOverride is a partial FormatsConfig.
type FormatsOverride struct {
	PDF  *FormatToggle `json:"pdf,omitempty"`
	Docx *FormatToggle `json:"docx,omitempty"`
	Text *FormatToggle `json:"text,omitempty"`
	HTML *FormatToggle `json:"html,omitempty"`
}

// UploadOverride is a partial UploadConfig.
type UploadOverride struct {
	WebAPI          *bool `json:"web_api,omitempty"`
	ChatAttachments *bool `json:"chat_attachments,omitempty"`
}

// SearchOverride is a partial SearchConfig.
type SearchOverride struct {
	AutoIndex             *bool `json:"auto_index,omitempty"`
	IncludeInMemorySearch *bool `json:"include_in_memory_search,omitempty"`
}

// ResolveKnowledgeConfig layers partial overrides over the built-in
// defaults, in order, and returns the resolved configuration. It returns
// nil when the result has the subsystem disabled.
//
// When vectorization is enabled by a layer but no layer says whether
// knowledge should join memory search, the search flag wins: vectorization
// follows Search.IncludeInMemorySearch unless explicitly set.
func ResolveKnowledgeConfig(layers ...*KnowledgeOverride) *KnowledgeConfig {
	cfg := DefaultKnowledgeConfig()
	vecExplicit := false

	for _, layer := range layers {
		if layer == nil {
			continue
		}
		if layer.Enabled != nil {
			cfg.Enabled = *layer.Enabled
		}
		if v := layer.Vectorization; v != nil {
			if v.Enabled != nil {
				cfg.Vectorization.Enabled = *v.Enabled
				vecExplicit = true
			}
			if v.Provider != nil {
				cfg.Vectorization.Provider = *v.Provider
			}
			if v.Model != nil {
				cfg.Vectorization.Model = *v.Model
			}
		}
		if g := layer.Graph; g != nil {
			if g.Enabled != nil {
				cfg.Graph.Enabled = *g.Enabled
			}
			if g.Extractor != nil {
				cfg.Graph.Extractor = *g.Extractor
			}
			if g.Provider != nil {
				cfg.Graph.Provider = *g.Provider
			}
			if g.Model != nil {
				cfg.Graph.Model = *g.Model
			}
			if g.MinTriples != nil {
				cfg.Graph.MinTriples = *g.MinTriples
			}
			if g.MaxTriples != nil {
				cfg.Graph.MaxTriples = *g.MaxTriples
			}
			if g.TriplesPerKTokens != nil {
				cfg.Graph.TriplesPerKTokens = *g.TriplesPerKTokens
			}
			if g.MaxDepth != nil {
				cfg.Graph.MaxDepth = *g.MaxDepth
			}
		}
		if s := layer.Storage; s != nil {
			if s.MaxFileSize != nil {
				cfg.Storage.MaxFileSize = *s.MaxFileSize
			}
			if s.MaxDocuments != nil {
				cfg.Storage.MaxDocuments = *s.MaxDocuments
			}
		}
		if f := layer.Formats; f != nil {
			if f.PDF != nil {
				cfg.Formats.PDF = *f.PDF
			}
			if f.Docx != nil {
				cfg.Formats.Docx = *f.Docx
			}
			if f.Text != nil {
				cfg.Formats.Text = *f.Text
			}
			if f.HTML != nil {
				cfg.Formats.HTML = *f.HTML
			}
		}
		if u := layer.Upload; u != nil {
			if u.WebAPI != nil {
				cfg.Upload.WebAPI = *u.WebAPI
			}
			if u.ChatAttachments != nil {
				cfg.Upload.ChatAttachments = *u.ChatAttachments
			}
		}
		if s := layer.Search; s != nil {
			if s.AutoIndex != nil {
				cfg.Search.AutoIndex = *s.AutoIndex
			}
			if s.IncludeInMemorySearch != nil {
				cfg.Search.IncludeInMemorySearch = *s.IncludeInMemorySearch
			}
		}
	}

	// The extractor kind is fixed; overrides cannot select a non-LLM one.
	cfg.Graph.Extractor = "llm"

	if !vecExplicit {
		cfg.Vectorization.Enabled = cfg.Search.IncludeInMemorySearch
	}

	if !cfg.Enabled {
		return nil
	}
	return &cfg
}

// resolveStateDir computes the final state directory from config fields.
func (c *Config) resolveStateDir() string {
	if c.StateDir != "" {
		return c.StateDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".knograph"
	}
	return filepath.Join(home, ".knograph")
}
