package processor

import (
	"context"
	"strings"
	"unicode/utf8"
)

// TextProcessor handles plain text and markdown. Bytes that are not valid
// UTF-8 are decoded as Latin-1 so nothing is silently dropped.
type TextProcessor struct{}

func (p *TextProcessor) ContentTypes() []string {
	return []string{"text/plain", "text/markdown"}
}

func (p *TextProcessor) Extract(ctx context.Context, data []byte) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}
	var b strings.Builder
	b.Grow(len(data))
	for _, c := range data {
		b.WriteRune(rune(c))
	}
	return b.String(), nil
}
