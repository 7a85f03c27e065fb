package processor

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLProcessor extracts readable text from HTML, dropping script and
// style content and collapsing whitespace.
type HTMLProcessor struct{}

func (p *HTMLProcessor) ContentTypes() []string {
	return []string{"text/html"}
}

var htmlSpaceRE = regexp.MustCompile(`[ \t\r\f]+`)

func (p *HTMLProcessor) Extract(ctx context.Context, data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parsing HTML: %w", err)
	}

	doc.Find("script, style, noscript").Remove()

	var b strings.Builder
	doc.Find("body").Each(func(_ int, sel *goquery.Selection) {
		b.WriteString(sel.Text())
	})
	text := b.String()
	if text == "" {
		// Fragment without a body element.
		text = doc.Text()
	}

	lines := strings.Split(text, "\n")
	var out []string
	for _, line := range lines {
		line = strings.TrimSpace(htmlSpaceRE.ReplaceAllString(line, " "))
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n"), nil
}
