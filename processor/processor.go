// Package processor extracts plain text from uploaded document bytes.
// Processors are registered per content type; formats without a processor
// are either preview-only or unsupported.
package processor

import "context"

// Processor extracts plain text from one document format.
type Processor interface {
	ContentTypes() []string
	Extract(ctx context.Context, data []byte) (string, error)
}

// Registry maps content types to processors.
type Registry struct {
	processors map[string]Processor
}

// NewRegistry returns a registry with all built-in processors.
func NewRegistry() *Registry {
	r := &Registry{processors: make(map[string]Processor)}
	for _, p := range []Processor{
		&PDFProcessor{},
		&DocxProcessor{},
		&TextProcessor{},
		&HTMLProcessor{},
	} {
		r.Register(p)
	}
	return r
}

// Register adds a processor for every content type it claims.
func (r *Registry) Register(p Processor) {
	for _, ct := range p.ContentTypes() {
		r.processors[ct] = p
	}
}

// Get returns the processor for a content type, or nil.
func (r *Registry) Get(contentType string) Processor {
	return r.processors[contentType]
}
