package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/knograph/knograph/llm"
)

// Extractor produces triples from document text. Implementations return
// the triples and the model identifier that produced them.
type Extractor interface {
	Extract(ctx context.Context, text string, target int, s Settings) ([]Triple, string, error)
}

// maxPromptChars caps how much document text goes into one extraction
// prompt. Long documents are truncated, not chunked.
const maxPromptChars = 16000

const extractionPromptFmt = `Extract knowledge graph triples from the document below.
Return up to %d triples in JSONL format, one JSON object per line:
{"h": "head entity", "r": "relation", "t": "tail entity"}
Use short canonical entity names and lowercase relations. Output only JSONL, no commentary.

Document:
%s`

// LLMExtractor extracts triples with a chat model.
type LLMExtractor struct {
	provider llm.Provider
	log      *slog.Logger
}

// NewLLMExtractor wraps a chat provider as an Extractor.
func NewLLMExtractor(provider llm.Provider, logger *slog.Logger) *LLMExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMExtractor{provider: provider, log: logger}
}

func (e *LLMExtractor) Extract(ctx context.Context, text string, target int, s Settings) ([]Triple, string, error) {
	if len(text) > maxPromptChars {
		text = text[:maxPromptChars]
	}

	resp, err := e.provider.Chat(ctx, llm.ChatRequest{
		Model: s.Model,
		Messages: []llm.Message{
			{Role: "user", Content: fmt.Sprintf(extractionPromptFmt, target, text)},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, "", fmt.Errorf("triple extraction: %w", err)
	}

	triples := ParseTriples(resp.Content, target)
	model := resp.Model
	if model == "" {
		model = s.Model
	}
	e.log.Debug("extracted triples",
		"target", target,
		"parsed", len(triples),
		"model", model,
	)
	return triples, model, nil
}
