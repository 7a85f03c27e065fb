package processor

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFProcessor extracts text from PDF bytes page by page. MaxPages caps
// how many pages are read; zero means all of them.
type PDFProcessor struct {
	MaxPages int
}

func (p *PDFProcessor) ContentTypes() []string {
	return []string{"application/pdf"}
}

func (p *PDFProcessor) Extract(ctx context.Context, data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}

	total := reader.NumPage()
	if p.MaxPages > 0 && total > p.MaxPages {
		total = p.MaxPages
	}

	var b strings.Builder
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip pages that fail to extract
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}
	return b.String(), nil
}
