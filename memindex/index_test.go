//go:build cgo

package memindex

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/knograph/knograph/llm"
	"github.com/knograph/knograph/store"
)

// fakeEmbedder maps known texts to fixed vectors.
type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{}, nil
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := f.vectors[text]; ok {
			out[i] = v
		} else {
			out[i] = []float32{0, 0, 0, 1}
		}
	}
	return out, nil
}

func newTestIndex(t *testing.T, embedder llm.Provider) (*Index, *store.Registry) {
	t.Helper()
	reg := store.NewRegistry(t.TempDir())
	t.Cleanup(func() { reg.Close() })
	ix := New(reg, embedder, Options{Dim: 4, ChunkSize: 100, Model: "test-embed"},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	return ix, reg
}

func TestIngestWithoutEmbedder(t *testing.T) {
	ix, reg := newTestIndex(t, nil)
	ctx := context.Background()

	if err := ix.Ingest(ctx, "alpha", "d1", "notes.txt", "line one\nline two"); err != nil {
		t.Fatalf("ingesting: %v", err)
	}

	st, err := reg.ForAgent("alpha")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	chunks, total, err := st.ListKnowledgeChunks(ctx, "d1", 10, 0)
	if err != nil {
		t.Fatalf("listing chunks: %v", err)
	}
	if total != 1 || chunks[0].Text != "line one\nline two" {
		t.Fatalf("unexpected chunks: total=%d %+v", total, chunks)
	}
}

func TestIngestReplacesChunks(t *testing.T) {
	ix, reg := newTestIndex(t, nil)
	ctx := context.Background()

	if err := ix.Ingest(ctx, "alpha", "d1", "a.txt", "version one"); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if err := ix.Ingest(ctx, "alpha", "d1", "a.txt", "version two"); err != nil {
		t.Fatalf("second ingest: %v", err)
	}

	st, _ := reg.ForAgent("alpha")
	chunks, total, err := st.ListKnowledgeChunks(ctx, "d1", 10, 0)
	if err != nil {
		t.Fatalf("listing chunks: %v", err)
	}
	if total != 1 || chunks[0].Text != "version two" {
		t.Fatalf("reingest did not replace: total=%d %+v", total, chunks)
	}
}

func TestDelete(t *testing.T) {
	ix, reg := newTestIndex(t, nil)
	ctx := context.Background()

	if err := ix.Ingest(ctx, "alpha", "d1", "a.txt", "content"); err != nil {
		t.Fatalf("ingesting: %v", err)
	}
	if err := ix.Delete(ctx, "alpha", "d1"); err != nil {
		t.Fatalf("deleting: %v", err)
	}

	st, _ := reg.ForAgent("alpha")
	_, total, err := st.ListKnowledgeChunks(ctx, "d1", 10, 0)
	if err != nil {
		t.Fatalf("listing chunks: %v", err)
	}
	if total != 0 {
		t.Fatalf("chunks survived the delete: %d", total)
	}
}

func TestSearch(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"cats are mammals":  {1, 0, 0, 0},
		"planes have wings": {0, 1, 0, 0},
		"about cats":        {0.9, 0.1, 0, 0},
	}}
	ix, _ := newTestIndex(t, embedder)
	ctx := context.Background()

	if err := ix.Ingest(ctx, "alpha", "d1", "cats.txt", "cats are mammals"); err != nil {
		t.Fatalf("ingesting d1: %v", err)
	}
	if err := ix.Ingest(ctx, "alpha", "d2", "planes.txt", "planes have wings"); err != nil {
		t.Fatalf("ingesting d2: %v", err)
	}

	results, err := ix.Search(ctx, "alpha", "about cats", 2)
	if err != nil {
		t.Fatalf("searching: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].DocumentID != "d1" {
		t.Fatalf("nearest neighbour wrong: %+v", results[0])
	}
	if results[0].Distance >= results[1].Distance {
		t.Fatal("results not ordered by distance")
	}
}

func TestSearchWithoutEmbedder(t *testing.T) {
	ix, _ := newTestIndex(t, nil)
	if _, err := ix.Search(context.Background(), "alpha", "query", 5); err == nil {
		t.Fatal("expected error without an embedder")
	}
}

func TestSerializeFloat32(t *testing.T) {
	buf := serializeFloat32([]float32{1.5, -2})
	if len(buf) != 8 {
		t.Fatalf("expected 8 bytes, got %d", len(buf))
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(buf[:4])); got != 1.5 {
		t.Fatalf("first value: %v", got)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(buf[4:])); got != -2 {
		t.Fatalf("second value: %v", got)
	}
}
