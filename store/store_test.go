//go:build cgo

package store

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "knowledge.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// ---------------------------------------------------------------------------
// Schema / construction
// ---------------------------------------------------------------------------

func TestNew(t *testing.T) {
	s := newTestStore(t)
	if s.DB() == nil {
		t.Fatal("expected non-nil *sql.DB")
	}
}

func TestNewCreatesParentDir(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "agents", "a1", "knowledge.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("creating store in nested dir: %v", err)
	}
	s.Close()
}

func TestRegistryForAgent(t *testing.T) {
	r := NewRegistry(t.TempDir())
	defer r.Close()

	s1, err := r.ForAgent("alpha")
	if err != nil {
		t.Fatalf("opening agent store: %v", err)
	}
	s2, err := r.ForAgent("alpha")
	if err != nil {
		t.Fatalf("reopening agent store: %v", err)
	}
	if s1 != s2 {
		t.Fatal("expected the same store instance for one agent")
	}
	other, err := r.ForAgent("beta")
	if err != nil {
		t.Fatalf("opening second agent store: %v", err)
	}
	if other == s1 {
		t.Fatal("expected distinct stores per agent")
	}
}

// ---------------------------------------------------------------------------
// Documents
// ---------------------------------------------------------------------------

func sampleDoc(id, agent, kb string) Document {
	return Document{
		ID:           id,
		OwnerAgentID: agent,
		KBID:         kb,
		Filename:     "notes.md",
		Mimetype:     "text/markdown",
		SizeBytes:    42,
		Hash:         HashText("content-" + id),
		Path:         "knowledge/" + id + ".md",
		UploadedAt:   1700000000000,
		Tags:         []string{"work", "draft"},
	}
}

func TestInsertAndGetDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := sampleDoc("d1", "alpha", "kb1")
	if err := s.InsertDocument(ctx, doc); err != nil {
		t.Fatalf("inserting document: %v", err)
	}

	got, err := s.GetDocument(ctx, "d1")
	if err != nil {
		t.Fatalf("getting document: %v", err)
	}
	if got == nil {
		t.Fatal("expected document, got nil")
	}
	if got.Filename != "notes.md" || got.KBID != "kb1" {
		t.Fatalf("unexpected document: %+v", got)
	}
	if len(got.Tags) != 2 {
		t.Fatalf("expected 2 tags, got %v", got.Tags)
	}
	if got.IndexedAt != nil {
		t.Fatal("new document should not be indexed")
	}

	missing, err := s.GetDocument(ctx, "nope")
	if err != nil {
		t.Fatalf("getting missing document: %v", err)
	}
	if missing != nil {
		t.Fatal("expected nil for missing document")
	}
}

func TestFindDocumentByHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := sampleDoc("d1", "alpha", "kb1")
	if err := s.InsertDocument(ctx, doc); err != nil {
		t.Fatalf("inserting document: %v", err)
	}

	dup, err := s.FindDocumentByHash(ctx, "alpha", doc.Hash, "")
	if err != nil {
		t.Fatalf("finding by hash: %v", err)
	}
	if dup == nil || dup.ID != "d1" {
		t.Fatalf("expected d1, got %+v", dup)
	}

	// Excluding the document itself finds nothing.
	dup, err = s.FindDocumentByHash(ctx, "alpha", doc.Hash, "d1")
	if err != nil {
		t.Fatalf("finding by hash with exclusion: %v", err)
	}
	if dup != nil {
		t.Fatalf("expected no duplicate, got %+v", dup)
	}

	// Other agents never see the hash.
	dup, err = s.FindDocumentByHash(ctx, "beta", doc.Hash, "")
	if err != nil {
		t.Fatalf("finding by hash for other agent: %v", err)
	}
	if dup != nil {
		t.Fatal("hash lookup leaked across agents")
	}
}

func TestReplaceDocumentContentClearsIndexedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.InsertDocument(ctx, sampleDoc("d1", "alpha", "kb1")); err != nil {
		t.Fatalf("inserting document: %v", err)
	}
	ts := int64(1700000001000)
	if err := s.SetDocumentIndexedAt(ctx, "d1", &ts); err != nil {
		t.Fatalf("stamping indexed_at: %v", err)
	}

	err := s.ReplaceDocumentContent(ctx, "d1", "notes-v2.md", "text/markdown",
		99, HashText("v2"), "knowledge/d1.md", 1700000002000)
	if err != nil {
		t.Fatalf("replacing content: %v", err)
	}

	got, err := s.GetDocument(ctx, "d1")
	if err != nil {
		t.Fatalf("getting document: %v", err)
	}
	if got.Filename != "notes-v2.md" || got.SizeBytes != 99 {
		t.Fatalf("content not replaced: %+v", got)
	}
	if got.IndexedAt != nil {
		t.Fatal("replace must clear indexed_at")
	}
}

func TestUpdateDocumentMetadata(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.InsertDocument(ctx, sampleDoc("d1", "alpha", "kb1")); err != nil {
		t.Fatalf("inserting document: %v", err)
	}

	desc := "updated description"
	if err := s.UpdateDocumentMetadata(ctx, "d1", nil, &desc, []string{"final"}); err != nil {
		t.Fatalf("updating metadata: %v", err)
	}
	got, err := s.GetDocument(ctx, "d1")
	if err != nil {
		t.Fatalf("getting document: %v", err)
	}
	if got.Description != desc {
		t.Fatalf("description not updated: %q", got.Description)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "final" {
		t.Fatalf("tags not replaced: %v", got.Tags)
	}
	// Filename was left alone.
	if got.Filename != "notes.md" {
		t.Fatalf("filename changed unexpectedly: %q", got.Filename)
	}
}

func TestListDocumentsFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := sampleDoc("d1", "alpha", "kb1")
	a.UploadedAt = 100
	b := sampleDoc("d2", "alpha", "kb2")
	b.Hash = HashText("other")
	b.UploadedAt = 200
	b.Tags = []string{"research"}
	c := sampleDoc("d3", "beta", "kb1")
	c.Hash = HashText("beta-doc")
	for _, d := range []Document{a, b, c} {
		if err := s.InsertDocument(ctx, d); err != nil {
			t.Fatalf("inserting %s: %v", d.ID, err)
		}
	}

	docs, err := s.ListDocuments(ctx, "alpha", ListDocumentsOptions{})
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	if docs[0].ID != "d2" {
		t.Fatalf("expected newest first, got %s", docs[0].ID)
	}

	docs, err = s.ListDocuments(ctx, "alpha", ListDocumentsOptions{KBID: "kb1"})
	if err != nil {
		t.Fatalf("listing by base: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "d1" {
		t.Fatalf("base filter failed: %+v", docs)
	}

	docs, err = s.ListDocuments(ctx, "alpha", ListDocumentsOptions{Tags: []string{"research"}})
	if err != nil {
		t.Fatalf("listing by tag: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "d2" {
		t.Fatalf("tag filter failed: %+v", docs)
	}

	n, err := s.DocumentCount(ctx, "alpha")
	if err != nil {
		t.Fatalf("counting: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected count 2, got %d", n)
	}
}

func TestDeleteDocumentCascadesTags(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.InsertDocument(ctx, sampleDoc("d1", "alpha", "kb1")); err != nil {
		t.Fatalf("inserting document: %v", err)
	}
	if err := s.DeleteDocument(ctx, "d1"); err != nil {
		t.Fatalf("deleting: %v", err)
	}
	got, err := s.GetDocument(ctx, "d1")
	if err != nil {
		t.Fatalf("getting deleted document: %v", err)
	}
	if got != nil {
		t.Fatal("document still present after delete")
	}
	var n int
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM kb_tags WHERE document_id = 'd1'`).Scan(&n); err != nil {
		t.Fatalf("counting tags: %v", err)
	}
	if n != 0 {
		t.Fatalf("tags did not cascade, %d left", n)
	}
}

// ---------------------------------------------------------------------------
// Bases, tags, settings
// ---------------------------------------------------------------------------

func sampleBase(id, agent, name string) Base {
	return Base{
		ID:           id,
		OwnerAgentID: agent,
		Name:         name,
		Visibility:   "private",
		CreatedAt:    1700000000000,
		UpdatedAt:    1700000000000,
	}
}

func TestBaseCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.InsertBase(ctx, sampleBase("kb1", "alpha", "work")); err != nil {
		t.Fatalf("inserting base: %v", err)
	}

	got, err := s.GetBase(ctx, "kb1")
	if err != nil {
		t.Fatalf("getting base: %v", err)
	}
	if got == nil || got.Name != "work" {
		t.Fatalf("unexpected base: %+v", got)
	}

	exists, err := s.BaseNameExists(ctx, "alpha", "work", "")
	if err != nil {
		t.Fatalf("name check: %v", err)
	}
	if !exists {
		t.Fatal("expected name to exist")
	}
	exists, err = s.BaseNameExists(ctx, "alpha", "work", "kb1")
	if err != nil {
		t.Fatalf("name check with exclusion: %v", err)
	}
	if exists {
		t.Fatal("exclusion did not apply")
	}

	name := "projects"
	if err := s.UpdateBase(ctx, "kb1", &name, nil, nil, nil, 1700000001000); err != nil {
		t.Fatalf("updating base: %v", err)
	}
	got, err = s.GetBase(ctx, "kb1")
	if err != nil {
		t.Fatalf("getting base: %v", err)
	}
	if got.Name != "projects" || got.UpdatedAt != 1700000001000 {
		t.Fatalf("update not applied: %+v", got)
	}

	if err := s.DeleteBase(ctx, "kb1"); err != nil {
		t.Fatalf("deleting base: %v", err)
	}
	got, err = s.GetBase(ctx, "kb1")
	if err != nil {
		t.Fatalf("getting deleted base: %v", err)
	}
	if got != nil {
		t.Fatal("base still present after delete")
	}
}

func TestListBasesFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b1 := sampleBase("kb1", "alpha", "legal notes")
	b2 := sampleBase("kb2", "alpha", "engineering")
	b2.Visibility = "team"
	b2.CreatedAt = 1700000001000
	for _, b := range []Base{b1, b2} {
		if err := s.InsertBase(ctx, b); err != nil {
			t.Fatalf("inserting base: %v", err)
		}
	}
	if err := s.InsertTagDef(ctx, TagDef{ID: "t1", OwnerAgentID: "alpha", Name: "ops", Color: "#112233", CreatedAt: 1}); err != nil {
		t.Fatalf("inserting tag: %v", err)
	}
	if err := s.SetBaseTags(ctx, "kb2", []string{"t1"}); err != nil {
		t.Fatalf("setting base tags: %v", err)
	}

	bases, total, err := s.ListBases(ctx, "alpha", ListBasesOptions{})
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if total != 2 || len(bases) != 2 {
		t.Fatalf("expected 2 bases, got total=%d len=%d", total, len(bases))
	}

	bases, total, err = s.ListBases(ctx, "alpha", ListBasesOptions{Search: "legal"})
	if err != nil {
		t.Fatalf("search listing: %v", err)
	}
	if total != 1 || bases[0].ID != "kb1" {
		t.Fatalf("search filter failed: total=%d %+v", total, bases)
	}

	bases, _, err = s.ListBases(ctx, "alpha", ListBasesOptions{Visibility: "team"})
	if err != nil {
		t.Fatalf("visibility listing: %v", err)
	}
	if len(bases) != 1 || bases[0].ID != "kb2" {
		t.Fatalf("visibility filter failed: %+v", bases)
	}

	bases, _, err = s.ListBases(ctx, "alpha", ListBasesOptions{TagIDs: []string{"t1"}})
	if err != nil {
		t.Fatalf("tag listing: %v", err)
	}
	if len(bases) != 1 || bases[0].ID != "kb2" {
		t.Fatalf("tag filter failed: %+v", bases)
	}
}

func TestSetBaseTagsDiffSync(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.InsertBase(ctx, sampleBase("kb1", "alpha", "work")); err != nil {
		t.Fatalf("inserting base: %v", err)
	}
	for _, id := range []string{"t1", "t2", "t3"} {
		if err := s.InsertTagDef(ctx, TagDef{ID: id, OwnerAgentID: "alpha", Name: id, CreatedAt: 1}); err != nil {
			t.Fatalf("inserting tag %s: %v", id, err)
		}
	}

	if err := s.SetBaseTags(ctx, "kb1", []string{"t1", "t2"}); err != nil {
		t.Fatalf("first set: %v", err)
	}
	if err := s.SetBaseTags(ctx, "kb1", []string{"t2", "t3"}); err != nil {
		t.Fatalf("second set: %v", err)
	}
	ids, err := s.BaseTagIDs(ctx, "kb1")
	if err != nil {
		t.Fatalf("listing tag ids: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 tags, got %v", ids)
	}
	seen := map[string]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	if !seen["t2"] || !seen["t3"] || seen["t1"] {
		t.Fatalf("diff sync failed: %v", ids)
	}
}

func TestSettingsRowRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	row, err := s.GetSettingsRow(ctx, "alpha")
	if err != nil {
		t.Fatalf("getting absent settings: %v", err)
	}
	if row != nil {
		t.Fatal("expected nil for absent settings")
	}

	in := SettingsRow{
		OwnerAgentID: "alpha",
		VectorConfig: `{"enabled":true}`,
		GraphConfig:  `{"enabled":true,"max_triples":50}`,
		UpdatedAt:    1700000000000,
	}
	if err := s.UpsertSettingsRow(ctx, in); err != nil {
		t.Fatalf("upserting settings: %v", err)
	}
	in.GraphConfig = `{"enabled":false}`
	in.UpdatedAt = 1700000001000
	if err := s.UpsertSettingsRow(ctx, in); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	row, err = s.GetSettingsRow(ctx, "alpha")
	if err != nil {
		t.Fatalf("getting settings: %v", err)
	}
	if row.GraphConfig != `{"enabled":false}` || row.UpdatedAt != 1700000001000 {
		t.Fatalf("upsert did not replace: %+v", row)
	}
}

// ---------------------------------------------------------------------------
// Graph triples
// ---------------------------------------------------------------------------

func insertTriples(t *testing.T, s *Store, kb, doc string, triples [][3]string) {
	t.Helper()
	rows := make([]GraphTriple, 0, len(triples))
	for _, tr := range triples {
		rows = append(rows, GraphTriple{
			ID:         HashText(kb + "::" + doc + "::" + tr[0] + "::" + tr[1] + "::" + tr[2]),
			KBID:       kb,
			DocumentID: doc,
			H:          tr[0],
			R:          tr[1],
			T:          tr[2],
			CreatedAt:  1700000000000,
		})
	}
	if err := s.ReplaceDocumentTriples(context.Background(), kb, doc, rows); err != nil {
		t.Fatalf("replacing triples: %v", err)
	}
}

func TestReplaceDocumentTriplesIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	triples := [][3]string{
		{"go", "created_by", "google"},
		{"go", "has_feature", "goroutines"},
	}
	insertTriples(t, s, "kb1", "d1", triples)
	insertTriples(t, s, "kb1", "d1", triples)

	got, err := s.TriplesTouching(ctx, "kb1", []string{"go"}, TripleFilter{}, 100)
	if err != nil {
		t.Fatalf("querying triples: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 triples after re-run, got %d", len(got))
	}
}

func TestSeedTriplesLike(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertTriples(t, s, "kb1", "d1", [][3]string{
		{"go", "created_by", "google"},
		{"rust", "created_by", "mozilla"},
	})

	got, err := s.SeedTriplesLike(ctx, "kb1", "google", TripleFilter{}, 10)
	if err != nil {
		t.Fatalf("seeding: %v", err)
	}
	if len(got) != 1 || got[0].T != "google" {
		t.Fatalf("unexpected seeds: %+v", got)
	}

	// Document filter narrows to nothing.
	got, err = s.SeedTriplesLike(ctx, "kb1", "google", TripleFilter{DocumentIDs: []string{"d2"}}, 10)
	if err != nil {
		t.Fatalf("seeding with filter: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("document filter ignored: %+v", got)
	}
}

func TestSeedTriplesFTS(t *testing.T) {
	s := newTestStore(t)
	if !s.HasGraphFTS() {
		t.Skip("sqlite build lacks FTS5")
	}
	ctx := context.Background()

	insertTriples(t, s, "kb1", "d1", [][3]string{
		{"go", "created_by", "google"},
		{"kubernetes", "written_in", "go"},
	})

	got, err := s.SeedTriplesFTS(ctx, "kb1", `"google"`, TripleFilter{}, 10)
	if err != nil {
		t.Fatalf("fts seeding: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 match, got %d", len(got))
	}
	if got[0].T != "google" {
		t.Fatalf("unexpected match: %+v", got[0])
	}
}

func TestDeleteGraphEntries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertTriples(t, s, "kb1", "d1", [][3]string{{"a", "r", "b"}})
	insertTriples(t, s, "kb1", "d2", [][3]string{{"c", "r", "d"}})
	if err := s.UpsertGraphRun(ctx, GraphRun{
		ID: "run1", KBID: "kb1", DocumentID: "d1", Status: "success",
		Extractor: "llm", CreatedAt: 1, UpdatedAt: 1,
	}); err != nil {
		t.Fatalf("upserting run: %v", err)
	}

	if err := s.DeleteGraphEntries(ctx, "kb1", "d1"); err != nil {
		t.Fatalf("deleting entries: %v", err)
	}

	got, err := s.TriplesTouching(ctx, "kb1", []string{"a", "c"}, TripleFilter{}, 10)
	if err != nil {
		t.Fatalf("querying: %v", err)
	}
	if len(got) != 1 || got[0].H != "c" {
		t.Fatalf("wrong triples survived: %+v", got)
	}
	run, err := s.GetGraphRun(ctx, "kb1", "d1")
	if err != nil {
		t.Fatalf("getting run: %v", err)
	}
	if run != nil {
		t.Fatal("run survived delete")
	}
}

func TestGraphRunUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := GraphRun{
		ID: "run1", KBID: "kb1", DocumentID: "d1", Status: "running",
		Extractor: "llm", Model: "m1", CreatedAt: 1, UpdatedAt: 1,
	}
	if err := s.UpsertGraphRun(ctx, run); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	run.Status = "success"
	run.TriplesPath = "/tmp/d1.jsonl"
	run.TripleCount = 7
	run.UpdatedAt = 2
	if err := s.UpsertGraphRun(ctx, run); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := s.GetGraphRun(ctx, "kb1", "d1")
	if err != nil {
		t.Fatalf("getting run: %v", err)
	}
	if got.Status != "success" || got.TripleCount != 7 || got.TriplesPath != "/tmp/d1.jsonl" {
		t.Fatalf("upsert did not update: %+v", got)
	}
	if got.CreatedAt != 1 {
		t.Fatalf("created_at must survive updates: %d", got.CreatedAt)
	}
}

func TestGetGraphStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertTriples(t, s, "kb1", "d1", [][3]string{
		{"a", "r", "b"},
		{"b", "r", "c"},
	})
	insertTriples(t, s, "kb1", "d2", [][3]string{{"c", "r", "d"}})
	if err := s.UpsertGraphRun(ctx, GraphRun{
		ID: "run1", KBID: "kb1", DocumentID: "d1", Status: "success",
		Extractor: "llm", CreatedAt: 1, UpdatedAt: 5,
	}); err != nil {
		t.Fatalf("upserting run: %v", err)
	}

	stats, err := s.GetGraphStats(ctx, "kb1")
	if err != nil {
		t.Fatalf("getting stats: %v", err)
	}
	if stats.Triples != 3 {
		t.Fatalf("expected 3 triples, got %d", stats.Triples)
	}
	if stats.Documents != 2 {
		t.Fatalf("expected 2 documents, got %d", stats.Documents)
	}
	if stats.Runs["success"] != 1 {
		t.Fatalf("expected 1 success run, got %v", stats.Runs)
	}
	if stats.LastRunAt != 5 {
		t.Fatalf("expected last run at 5, got %d", stats.LastRunAt)
	}
}

// ---------------------------------------------------------------------------
// Chunks
// ---------------------------------------------------------------------------

func insertChunk(t *testing.T, s *Store, id, docID string, start, end int, text string) {
	t.Helper()
	_, err := s.DB().Exec(`
		INSERT INTO chunks (id, path, source, start_line, end_line, text, model, updated_at)
		VALUES (?, ?, 'knowledge', ?, ?, ?, '', 0)`,
		id, "knowledge/"+docID, start, end, text)
	if err != nil {
		t.Fatalf("inserting chunk: %v", err)
	}
}

func TestListKnowledgeChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertChunk(t, s, "c1", "d1", 1, 10, "first")
	insertChunk(t, s, "c2", "d1", 11, 20, "second")
	insertChunk(t, s, "c3", "d2", 1, 5, "other doc")

	chunks, total, err := s.ListKnowledgeChunks(ctx, "d1", 10, 0)
	if err != nil {
		t.Fatalf("listing chunks: %v", err)
	}
	if total != 2 || len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got total=%d len=%d", total, len(chunks))
	}
	if chunks[0].ID != "c1" || chunks[1].ID != "c2" {
		t.Fatalf("wrong order: %+v", chunks)
	}

	chunks, total, err = s.ListKnowledgeChunks(ctx, "d1", 1, 1)
	if err != nil {
		t.Fatalf("paging chunks: %v", err)
	}
	if total != 2 || len(chunks) != 1 || chunks[0].ID != "c2" {
		t.Fatalf("paging failed: total=%d %+v", total, chunks)
	}

	idx, err := s.KnowledgeChunkIndex(ctx, "d1", 11)
	if err != nil {
		t.Fatalf("chunk index: %v", err)
	}
	if idx != 2 {
		t.Fatalf("expected index 2, got %d", idx)
	}
}

func TestGetKnowledgeChunk(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertChunk(t, s, "c1", "d1", 1, 10, "first")

	c, err := s.GetKnowledgeChunk(ctx, "c1")
	if err != nil {
		t.Fatalf("getting chunk: %v", err)
	}
	if c == nil || c.Text != "first" {
		t.Fatalf("unexpected chunk: %+v", c)
	}

	c, err = s.GetKnowledgeChunk(ctx, "missing")
	if err != nil {
		t.Fatalf("getting missing chunk: %v", err)
	}
	if c != nil {
		t.Fatal("expected nil for missing chunk")
	}
}
