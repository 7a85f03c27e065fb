package graph

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// JSON forms
// ---------------------------------------------------------------------------

func TestTripleDecodeStringForm(t *testing.T) {
	var tr Triple
	if err := json.Unmarshal([]byte(`{"h":"go","r":"created_by","t":"google"}`), &tr); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if tr.H.Name != "go" || tr.R.Type != "created_by" || tr.T.Name != "google" {
		t.Fatalf("unexpected triple: %+v", tr)
	}
}

func TestTripleDecodeObjectForm(t *testing.T) {
	raw := `{"h":{"name":"go","type":"language","year":2009},"r":{"type":"created_by","confidence":0.9},"t":{"name":"google","type":"company"}}`
	var tr Triple
	if err := json.Unmarshal([]byte(raw), &tr); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if tr.H.Name != "go" || tr.H.Type != "language" {
		t.Fatalf("head not decoded: %+v", tr.H)
	}
	if tr.H.Props["year"] != float64(2009) {
		t.Fatalf("head props lost: %+v", tr.H.Props)
	}
	if tr.R.Type != "created_by" || tr.R.Props["confidence"] != 0.9 {
		t.Fatalf("relation not decoded: %+v", tr.R)
	}
	if tr.T.Type != "company" {
		t.Fatalf("tail not decoded: %+v", tr.T)
	}
}

func TestRelationLegacyNameForm(t *testing.T) {
	var r RelationRef
	if err := json.Unmarshal([]byte(`{"name":"works_at"}`), &r); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if r.Type != "works_at" {
		t.Fatalf("legacy name not mapped to type: %+v", r)
	}
}

func TestTripleEncodeCompactsPlainRefs(t *testing.T) {
	tr := Triple{
		H: EntityRef{Name: "go"},
		R: RelationRef{Type: "created_by"},
		T: EntityRef{Name: "google", Type: "company"},
	}
	data, err := json.Marshal(tr)
	if err != nil {
		t.Fatalf("encoding: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, `"h":"go"`) || !strings.Contains(s, `"r":"created_by"`) {
		t.Fatalf("plain refs should encode as strings: %s", s)
	}
	if !strings.Contains(s, `"type":"company"`) {
		t.Fatalf("typed refs should encode as objects: %s", s)
	}
}

// ---------------------------------------------------------------------------
// Normalize / HashKey / TargetTriples
// ---------------------------------------------------------------------------

func TestNormalize(t *testing.T) {
	tr := Triple{
		H: EntityRef{Name: "  go "},
		R: RelationRef{Type: " created_by"},
		T: EntityRef{Name: "google  "},
	}
	n, ok := tr.Normalize()
	if !ok {
		t.Fatal("triple should survive")
	}
	if n.H.Name != "go" || n.R.Type != "created_by" || n.T.Name != "google" {
		t.Fatalf("not trimmed: %+v", n)
	}

	if _, ok := (Triple{H: EntityRef{Name: "a"}, R: RelationRef{Type: "r"}}).Normalize(); ok {
		t.Fatal("empty tail must be dropped")
	}
	if _, ok := (Triple{H: EntityRef{Name: "   "}, R: RelationRef{Type: "r"}, T: EntityRef{Name: "b"}}).Normalize(); ok {
		t.Fatal("whitespace head must be dropped")
	}
}

func TestHashKeyStable(t *testing.T) {
	a := HashKey("go", "created_by", "google")
	b := HashKey("go", "created_by", "google")
	if a != b {
		t.Fatal("hash key must be deterministic")
	}
	if a == HashKey("go", "created_by", "mozilla") {
		t.Fatal("distinct triples must not collide")
	}
	if len(a) != 64 {
		t.Fatalf("expected sha256 hex, got %q", a)
	}
}

func TestTargetTriples(t *testing.T) {
	s := Settings{MinTriples: 20, MaxTriples: 400, TriplesPerKTokens: 20}

	// A tiny document still gets the floor.
	if got := TargetTriples(100, s); got != 20 {
		t.Fatalf("short text: expected 20, got %d", got)
	}
	// 400k chars ~ 100k tokens ~ 2000 triples, clamped to the ceiling.
	if got := TargetTriples(400_000, s); got != 400 {
		t.Fatalf("long text: expected 400, got %d", got)
	}
	// 8k chars ~ 2k tokens ~ 40 triples, between the clamps.
	if got := TargetTriples(8_000, s); got != 40 {
		t.Fatalf("mid text: expected 40, got %d", got)
	}
}

// ---------------------------------------------------------------------------
// ParseTriples
// ---------------------------------------------------------------------------

func TestParseTriplesJSONArray(t *testing.T) {
	raw := `[{"h":"a","r":"r1","t":"b"},{"h":"b","r":"r2","t":"c"}]`
	got := ParseTriples(raw, 0)
	if len(got) != 2 {
		t.Fatalf("expected 2 triples, got %d", len(got))
	}
	if got[1].H.Name != "b" || got[1].R.Type != "r2" {
		t.Fatalf("unexpected triple: %+v", got[1])
	}
}

func TestParseTriplesJSONL(t *testing.T) {
	raw := `{"h":"a","r":"r1","t":"b"}
not json at all
{"h":"","r":"r2","t":"c"}
{"h":"c","r":"r3","t":"d"}`
	got := ParseTriples(raw, 0)
	if len(got) != 2 {
		t.Fatalf("expected 2 valid triples, got %d", len(got))
	}
	if got[0].T.Name != "b" || got[1].H.Name != "c" {
		t.Fatalf("unexpected triples: %+v", got)
	}
}

func TestParseTriplesCodeFence(t *testing.T) {
	raw := "```json\n[{\"h\":\"a\",\"r\":\"r\",\"t\":\"b\"}]\n```"
	got := ParseTriples(raw, 0)
	if len(got) != 1 || got[0].H.Name != "a" {
		t.Fatalf("fenced payload not parsed: %+v", got)
	}
}

func TestParseTriplesMax(t *testing.T) {
	raw := `[{"h":"a","r":"r","t":"b"},{"h":"b","r":"r","t":"c"},{"h":"c","r":"r","t":"d"}]`
	got := ParseTriples(raw, 2)
	if len(got) != 2 {
		t.Fatalf("cap ignored: got %d", len(got))
	}
}

func TestParseTriplesEmpty(t *testing.T) {
	if got := ParseTriples("", 0); got != nil {
		t.Fatalf("expected nil for empty input, got %+v", got)
	}
	if got := ParseTriples("```\n```", 0); len(got) != 0 {
		t.Fatalf("expected nothing for empty fence, got %+v", got)
	}
}

// ---------------------------------------------------------------------------
// JSONL snapshots
// ---------------------------------------------------------------------------

func TestWriteJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graphs", "kb1", "triples", "d1.jsonl")
	triples := []Triple{
		{H: EntityRef{Name: "a"}, R: RelationRef{Type: "r"}, T: EntityRef{Name: "b"}},
		{H: EntityRef{Name: "b"}, R: RelationRef{Type: "r"}, T: EntityRef{Name: "c"}},
	}
	if err := WriteJSONL(path, triples); err != nil {
		t.Fatalf("writing: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading back: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	roundtrip := ParseTriples(string(data), 0)
	if len(roundtrip) != 2 || roundtrip[1].T.Name != "c" {
		t.Fatalf("roundtrip failed: %+v", roundtrip)
	}
}
