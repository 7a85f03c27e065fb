package memindex

import (
	"fmt"
	"strings"
	"testing"
)

func TestSplitChunksEmpty(t *testing.T) {
	if got := splitChunks("", 800, 100); len(got) != 0 {
		t.Fatalf("expected no chunks for empty content, got %d", len(got))
	}
	if got := splitChunks("\n\n\n", 800, 100); len(got) != 0 {
		t.Fatalf("expected no chunks for blank content, got %d", len(got))
	}
}

func TestSplitChunksSingle(t *testing.T) {
	got := splitChunks("one\ntwo\nthree", 800, 100)
	if len(got) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(got))
	}
	c := got[0]
	if c.startLine != 1 || c.endLine != 3 {
		t.Fatalf("unexpected line range: %d..%d", c.startLine, c.endLine)
	}
	if c.text != "one\ntwo\nthree" {
		t.Fatalf("unexpected text: %q", c.text)
	}
}

func TestSplitChunksRespectsSize(t *testing.T) {
	var b strings.Builder
	for i := 1; i <= 40; i++ {
		fmt.Fprintf(&b, "line %02d with some padding text here\n", i)
	}
	chunks := splitChunks(b.String(), 200, 0)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c.text) > 200+40 {
			t.Fatalf("chunk %d far exceeds budget: %d chars", i, len(c.text))
		}
		if c.startLine < 1 || c.endLine < c.startLine {
			t.Fatalf("chunk %d has bad line range: %d..%d", i, c.startLine, c.endLine)
		}
	}
	// Consecutive chunks stay in order.
	for i := 1; i < len(chunks); i++ {
		if chunks[i].startLine <= chunks[i-1].startLine {
			t.Fatalf("chunks out of order at %d", i)
		}
	}
}

func TestSplitChunksOverlap(t *testing.T) {
	var b strings.Builder
	for i := 1; i <= 20; i++ {
		fmt.Fprintf(&b, "line %02d aaaaaaaaaaaaaaaaaaaa\n", i)
	}
	chunks := splitChunks(b.String(), 150, 60)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		if chunks[i].startLine > chunks[i-1].endLine+1 {
			t.Fatalf("gap between chunks %d and %d", i-1, i)
		}
		if chunks[i].startLine > chunks[i-1].endLine {
			continue
		}
		// Overlapping region repeats the previous chunk's tail.
		if !strings.Contains(chunks[i-1].text, strings.SplitN(chunks[i].text, "\n", 2)[0]) {
			t.Fatalf("chunk %d does not overlap its predecessor", i)
		}
	}
}

func TestSplitChunksLongLine(t *testing.T) {
	long := strings.Repeat("x", 500)
	chunks := splitChunks("short\n"+long+"\nshort again", 100, 0)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[1].text != long {
		t.Fatal("oversized line should become its own chunk")
	}
}
