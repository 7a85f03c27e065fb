package processor

import (
	"archive/zip"
	"bytes"
	"context"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()

	for _, ct := range []string{
		"text/plain",
		"text/markdown",
		"text/html",
		"application/pdf",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/msword",
	} {
		if r.Get(ct) == nil {
			t.Fatalf("no processor registered for %s", ct)
		}
	}
	if r.Get("application/x-unknown") != nil {
		t.Fatal("unknown content type must resolve to nil")
	}
}

// ---------------------------------------------------------------------------
// Plain text
// ---------------------------------------------------------------------------

func TestTextProcessorUTF8(t *testing.T) {
	p := &TextProcessor{}
	got, err := p.Extract(context.Background(), []byte("héllo wörld"))
	if err != nil {
		t.Fatalf("extracting: %v", err)
	}
	if got != "héllo wörld" {
		t.Fatalf("unexpected text: %q", got)
	}
}

func TestTextProcessorLatin1Fallback(t *testing.T) {
	p := &TextProcessor{}
	// "café" in Latin-1; 0xE9 is not valid UTF-8 on its own.
	got, err := p.Extract(context.Background(), []byte{'c', 'a', 'f', 0xE9})
	if err != nil {
		t.Fatalf("extracting: %v", err)
	}
	if got != "café" {
		t.Fatalf("expected Latin-1 decode, got %q", got)
	}
}

// ---------------------------------------------------------------------------
// HTML
// ---------------------------------------------------------------------------

func TestHTMLProcessorStripsScriptAndStyle(t *testing.T) {
	p := &HTMLProcessor{}
	html := `<html><head><style>body { color: red }</style></head>
<body><h1>Title</h1><script>alert("nope")</script><p>Body   text</p></body></html>`
	got, err := p.Extract(context.Background(), []byte(html))
	if err != nil {
		t.Fatalf("extracting: %v", err)
	}
	if strings.Contains(got, "alert") || strings.Contains(got, "color") {
		t.Fatalf("script or style leaked into text: %q", got)
	}
	if !strings.Contains(got, "Title") || !strings.Contains(got, "Body text") {
		t.Fatalf("content missing or whitespace not collapsed: %q", got)
	}
}

func TestHTMLProcessorFragment(t *testing.T) {
	p := &HTMLProcessor{}
	got, err := p.Extract(context.Background(), []byte(`<p>just a fragment</p>`))
	if err != nil {
		t.Fatalf("extracting: %v", err)
	}
	if !strings.Contains(got, "just a fragment") {
		t.Fatalf("fragment text missing: %q", got)
	}
}

// ---------------------------------------------------------------------------
// DOCX
// ---------------------------------------------------------------------------

func buildDocx(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("creating zip entry: %v", err)
	}
	if _, err := w.Write([]byte(documentXML)); err != nil {
		t.Fatalf("writing zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}
	return buf.Bytes()
}

func TestDocxProcessor(t *testing.T) {
	docXML := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second </w:t></w:r><w:r><w:t>paragraph.</w:t></w:r></w:p>
    <w:p></w:p>
  </w:body>
</w:document>`
	p := &DocxProcessor{}
	got, err := p.Extract(context.Background(), buildDocx(t, docXML))
	if err != nil {
		t.Fatalf("extracting: %v", err)
	}
	want := "First paragraph.\nSecond paragraph."
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestDocxProcessorRejectsNonZip(t *testing.T) {
	p := &DocxProcessor{}
	if _, err := p.Extract(context.Background(), []byte("plain old doc bytes")); err == nil {
		t.Fatal("expected an error for non-zip payload")
	}
}

func TestDocxProcessorMissingDocumentXML(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	if _, err := zw.Create("word/styles.xml"); err != nil {
		t.Fatalf("creating zip entry: %v", err)
	}
	zw.Close()

	p := &DocxProcessor{}
	if _, err := p.Extract(context.Background(), buf.Bytes()); err == nil {
		t.Fatal("expected an error when document.xml is absent")
	}
}

// ---------------------------------------------------------------------------
// Preview-only formats
// ---------------------------------------------------------------------------

func TestIsPreviewOnly(t *testing.T) {
	previewOnly := []string{
		"image/png",
		"audio/mpeg",
		"video/mp4",
		"text/csv",
		"application/json",
		"application/vnd.ms-excel",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"application/vnd.openxmlformats-officedocument.presentationml.presentation",
		"application/vnd.ms-powerpoint",
		"application/vnd.ms-word.document.macroEnabled.12",
		"Image/PNG; charset=binary",
	}
	for _, ct := range previewOnly {
		if !IsPreviewOnly(ct) {
			t.Errorf("%s should be preview-only", ct)
		}
	}

	extractable := []string{
		"text/plain",
		"text/markdown",
		"text/html",
		"application/pdf",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	}
	for _, ct := range extractable {
		if IsPreviewOnly(ct) {
			t.Errorf("%s should not be preview-only", ct)
		}
	}
}
