package knograph

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/knograph/knograph/graph"
	"github.com/knograph/knograph/processor"
	"github.com/knograph/knograph/store"
)

// Upload origins. Each origin can be switched off independently in the
// knowledge configuration.
const (
	OriginWeb  = "web"
	OriginChat = "chat"
)

// UploadRequest describes one document upload or content replacement.
type UploadRequest struct {
	KBID        string
	Filename    string
	Data        []byte
	Mimetype    string
	Description string
	Tags        []string
	Origin      string // OriginWeb, OriginChat, or empty for internal callers
}

// UploadResult reports where an upload landed.
type UploadResult struct {
	DocumentID string `json:"documentId"`
	KBID       string `json:"kbId"`
	Indexed    bool   `json:"indexed"`
}

// UpdateResult reports a content replacement.
type UpdateResult struct {
	DocumentID string `json:"documentId"`
	Filename   string `json:"filename"`
	Size       int64  `json:"size"`
	Indexed    bool   `json:"indexed"`
	UpdatedAt  int64  `json:"updatedAt"`
}

// UploadDocument validates, stores, and processes a new document. Text
// extraction failures surface as errors; indexing and graph extraction
// run afterwards as best-effort steps and never fail the upload.
func (m *Manager) UploadDocument(ctx context.Context, agentID string, req UploadRequest) (*UploadResult, error) {
	cfg, err := m.requireConfig(agentID)
	if err != nil {
		return nil, err
	}
	if err := checkOrigin(cfg, req.Origin); err != nil {
		return nil, err
	}
	st, err := m.stores.ForAgent(agentID)
	if err != nil {
		return nil, err
	}
	kbID, err := m.resolveBaseID(ctx, st, agentID, req.KBID)
	if err != nil {
		return nil, err
	}

	if int64(len(req.Data)) > cfg.Storage.MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrTooLarge, len(req.Data), cfg.Storage.MaxFileSize)
	}
	count, err := st.DocumentCount(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if count >= cfg.Storage.MaxDocuments {
		return nil, fmt.Errorf("%w: %d/%d documents", ErrLimitReached, count, cfg.Storage.MaxDocuments)
	}

	proc := m.processors.Get(req.Mimetype)
	previewOnly := proc == nil && processor.IsPreviewOnly(req.Mimetype)
	if proc == nil && !previewOnly {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, req.Mimetype)
	}
	if proc != nil && !formatEnabled(cfg, req.Mimetype) {
		return nil, fmt.Errorf("%w: %s", ErrFormatDisabled, req.Mimetype)
	}

	hash := hashBytes(req.Data)
	dup, err := st.FindDocumentByHash(ctx, agentID, hash, "")
	if err != nil {
		return nil, err
	}
	if dup != nil {
		return nil, fmt.Errorf("%w: same content as document %s", ErrDuplicate, dup.ID)
	}

	docID := uuid.NewString()
	relPath := "knowledge/" + docID + "." + extForMimetype(req.Mimetype)
	if err := m.writeBlob(agentID, relPath, req.Data); err != nil {
		return nil, err
	}

	doc := store.Document{
		ID:             docID,
		OwnerAgentID:   agentID,
		KBID:           kbID,
		Filename:       req.Filename,
		Description:    req.Description,
		Mimetype:       req.Mimetype,
		SizeBytes:      int64(len(req.Data)),
		Hash:           hash,
		Path:           relPath,
		SourceMetadata: previewMetadata(req.Mimetype, req.Data),
		UploadedAt:     time.Now().UnixMilli(),
		Tags:           req.Tags,
	}
	if err := st.InsertDocument(ctx, doc); err != nil {
		return nil, err
	}
	m.log.Info("knowledge: stored document",
		"agent", agentID, "document", docID, "filename", req.Filename)

	text, err := m.extractText(ctx, proc, req.Filename, req.Data)
	if err != nil {
		return nil, err
	}

	indexed, err := m.processDocument(ctx, st, agentID, kbID, docID, req.Filename, text, cfg)
	if err != nil {
		return nil, err
	}
	return &UploadResult{DocumentID: docID, KBID: kbID, Indexed: indexed}, nil
}

// UpdateDocument replaces a document's content in place, keeping its id.
// Stale index entries and graph triples are removed before reprocessing.
func (m *Manager) UpdateDocument(ctx context.Context, agentID, documentID string, req UploadRequest) (*UpdateResult, error) {
	cfg, err := m.requireConfig(agentID)
	if err != nil {
		return nil, err
	}
	st, err := m.stores.ForAgent(agentID)
	if err != nil {
		return nil, err
	}
	kbID, err := m.resolveBaseID(ctx, st, agentID, req.KBID)
	if err != nil {
		return nil, err
	}
	doc, err := m.requireDocument(ctx, st, agentID, documentID, kbID)
	if err != nil {
		return nil, err
	}

	if int64(len(req.Data)) > cfg.Storage.MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrTooLarge, len(req.Data), cfg.Storage.MaxFileSize)
	}
	proc := m.processors.Get(req.Mimetype)
	previewOnly := proc == nil && processor.IsPreviewOnly(req.Mimetype)
	if proc == nil && !previewOnly {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, req.Mimetype)
	}
	if proc != nil && !formatEnabled(cfg, req.Mimetype) {
		return nil, fmt.Errorf("%w: %s", ErrFormatDisabled, req.Mimetype)
	}

	hash := hashBytes(req.Data)
	dup, err := st.FindDocumentByHash(ctx, agentID, hash, documentID)
	if err != nil {
		return nil, err
	}
	if dup != nil {
		return nil, fmt.Errorf("%w: same content as document %s", ErrDuplicate, dup.ID)
	}

	relPath := "knowledge/" + documentID + "." + extForMimetype(req.Mimetype)
	if doc.Path != relPath {
		// Extension changed with the mimetype; drop the old blob.
		os.Remove(filepath.Join(m.stores.AgentDir(agentID), doc.Path))
	}
	if err := m.writeBlob(agentID, relPath, req.Data); err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	if err := st.ReplaceDocumentContent(ctx, documentID, req.Filename, req.Mimetype,
		int64(len(req.Data)), hash, relPath, now); err != nil {
		return nil, err
	}
	if req.Description != "" || req.Tags != nil {
		var desc *string
		if req.Description != "" {
			desc = &req.Description
		}
		if err := st.UpdateDocumentMetadata(ctx, documentID, nil, desc, req.Tags); err != nil {
			return nil, err
		}
	}
	m.log.Info("knowledge: updated document",
		"agent", agentID, "document", documentID, "filename", req.Filename)

	text, err := m.extractText(ctx, proc, req.Filename, req.Data)
	if err != nil {
		return nil, err
	}

	// Clear stale derived state before reprocessing.
	if m.index != nil {
		if err := m.index.Delete(ctx, agentID, documentID); err != nil {
			m.log.Warn("knowledge: index cleanup failed",
				"agent", agentID, "document", documentID, "error", err)
		}
	}
	if err := st.DeleteGraphEntries(ctx, kbID, documentID); err != nil {
		return nil, err
	}

	indexed, err := m.processDocument(ctx, st, agentID, kbID, documentID, req.Filename, text, cfg)
	if err != nil {
		return nil, err
	}
	return &UpdateResult{
		DocumentID: documentID,
		Filename:   req.Filename,
		Size:       int64(len(req.Data)),
		Indexed:    indexed,
		UpdatedAt:  now,
	}, nil
}

// MetadataUpdate changes descriptive fields without touching content.
type MetadataUpdate struct {
	KBID        string
	Filename    *string
	Description *string
	Tags        []string // nil keeps the stored tags
}

// UpdateDocumentMetadata updates filename, description, or tags and
// returns the fresh document.
func (m *Manager) UpdateDocumentMetadata(ctx context.Context, agentID, documentID string, upd MetadataUpdate) (*store.Document, error) {
	if _, err := m.requireConfig(agentID); err != nil {
		return nil, err
	}
	st, err := m.stores.ForAgent(agentID)
	if err != nil {
		return nil, err
	}
	kbID, err := m.resolveBaseID(ctx, st, agentID, upd.KBID)
	if err != nil {
		return nil, err
	}
	if _, err := m.requireDocument(ctx, st, agentID, documentID, kbID); err != nil {
		return nil, err
	}
	if err := st.UpdateDocumentMetadata(ctx, documentID, upd.Filename, upd.Description, upd.Tags); err != nil {
		return nil, err
	}
	return st.GetDocument(ctx, documentID)
}

// DeleteDocument removes a document, its blob, its index entries, and
// its graph entries. A missing document reports false without error.
func (m *Manager) DeleteDocument(ctx context.Context, agentID, documentID, kbID string) (bool, error) {
	_, err := m.requireConfig(agentID)
	if err != nil {
		return false, err
	}
	st, err := m.stores.ForAgent(agentID)
	if err != nil {
		return false, err
	}
	doc, err := st.GetDocument(ctx, documentID)
	if err != nil {
		return false, err
	}
	if doc == nil {
		return false, nil
	}
	if doc.OwnerAgentID != agentID {
		return false, ErrNotOwner
	}
	if kbID != "" && doc.KBID != "" && kbID != doc.KBID {
		return false, ErrBaseMismatch
	}

	if m.index != nil {
		if err := m.index.Delete(ctx, agentID, documentID); err != nil {
			m.log.Warn("knowledge: index cleanup failed",
				"agent", agentID, "document", documentID, "error", err)
		}
	}

	os.Remove(filepath.Join(m.stores.AgentDir(agentID), doc.Path))
	if err := st.DeleteDocument(ctx, documentID); err != nil {
		return false, err
	}

	graphKB := doc.KBID
	if graphKB == "" {
		graphKB = kbID
	}
	if graphKB == "" {
		// Untargeted document; only a sole base can still locate its
		// graph entries.
		graphKB, _ = m.resolveBaseID(ctx, st, agentID, "")
	}
	if graphKB != "" {
		if err := st.DeleteGraphEntries(ctx, graphKB, documentID); err != nil {
			m.log.Warn("knowledge: graph cleanup failed",
				"agent", agentID, "document", documentID, "error", err)
		}
	}

	m.log.Info("knowledge: deleted document", "agent", agentID, "document", documentID)
	return true, nil
}

// ListDocumentsOptions filters ListDocuments.
type ListDocumentsOptions struct {
	KBID   string
	Tags   []string
	Limit  int
	Offset int
}

// ListDocuments returns an agent's documents with tags, newest first.
func (m *Manager) ListDocuments(ctx context.Context, agentID string, opts ListDocumentsOptions) ([]store.Document, error) {
	if _, err := m.requireConfig(agentID); err != nil {
		return nil, err
	}
	st, err := m.stores.ForAgent(agentID)
	if err != nil {
		return nil, err
	}
	if opts.KBID != "" {
		if _, err := m.resolveBaseID(ctx, st, agentID, opts.KBID); err != nil {
			return nil, err
		}
	}
	return st.ListDocuments(ctx, agentID, store.ListDocumentsOptions{
		KBID:   opts.KBID,
		Tags:   opts.Tags,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// GetDocument returns one document with tags, or nil if absent.
func (m *Manager) GetDocument(ctx context.Context, agentID, documentID, kbID string) (*store.Document, error) {
	if _, err := m.requireConfig(agentID); err != nil {
		return nil, err
	}
	st, err := m.stores.ForAgent(agentID)
	if err != nil {
		return nil, err
	}
	doc, err := st.GetDocument(ctx, documentID)
	if err != nil || doc == nil {
		return nil, err
	}
	if doc.OwnerAgentID != agentID {
		return nil, ErrNotOwner
	}
	if kbID != "" && doc.KBID != "" && kbID != doc.KBID {
		return nil, ErrBaseMismatch
	}
	return doc, nil
}

// DocumentCount returns how many documents the agent owns. A disabled
// agent has zero documents rather than an error.
func (m *Manager) DocumentCount(ctx context.Context, agentID string) (int, error) {
	if m.resolveConfig(agentID) == nil {
		return 0, nil
	}
	st, err := m.stores.ForAgent(agentID)
	if err != nil {
		return 0, err
	}
	return st.DocumentCount(ctx, agentID)
}

// ResolveDocumentPath returns the absolute blob path and mimetype for
// serving a document's raw bytes.
func (m *Manager) ResolveDocumentPath(ctx context.Context, agentID, documentID, kbID string) (string, string, error) {
	doc, err := m.GetDocument(ctx, agentID, documentID, kbID)
	if err != nil {
		return "", "", err
	}
	if doc == nil {
		return "", "", fmt.Errorf("%w: document %s", ErrNotFound, documentID)
	}
	return filepath.Join(m.stores.AgentDir(agentID), doc.Path), doc.Mimetype, nil
}

// ChunkInfo is one indexed chunk of a document.
type ChunkInfo struct {
	ID        string `json:"id"`
	Index     int    `json:"index"` // 1-based position within the document
	Text      string `json:"text"`
	Tokens    int    `json:"tokens"`
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
}

// ChunkPage is one page of a document's chunks.
type ChunkPage struct {
	Total    int         `json:"total"`
	Returned int         `json:"returned"`
	Offset   int         `json:"offset"`
	Chunks   []ChunkInfo `json:"chunks"`
}

// ListChunks pages through the indexed chunks of one document.
func (m *Manager) ListChunks(ctx context.Context, agentID, documentID, kbID string, limit, offset int) (*ChunkPage, error) {
	if _, err := m.requireConfig(agentID); err != nil {
		return nil, err
	}
	st, err := m.stores.ForAgent(agentID)
	if err != nil {
		return nil, err
	}
	if _, err := m.requireDocument(ctx, st, agentID, documentID, kbID); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, total, err := st.ListKnowledgeChunks(ctx, documentID, limit, offset)
	if err != nil {
		return nil, err
	}
	page := &ChunkPage{Total: total, Returned: len(rows), Offset: offset, Chunks: make([]ChunkInfo, 0, len(rows))}
	for i, row := range rows {
		page.Chunks = append(page.Chunks, ChunkInfo{
			ID:        row.ID,
			Index:     offset + i + 1,
			Text:      row.Text,
			Tokens:    estimateTokens(row.Text),
			StartLine: row.StartLine,
			EndLine:   row.EndLine,
		})
	}
	return page, nil
}

// GetChunk returns one chunk with its document context, or nil if the
// chunk does not exist.
func (m *Manager) GetChunk(ctx context.Context, agentID, chunkID, kbID string) (*ChunkInfo, string, error) {
	if _, err := m.requireConfig(agentID); err != nil {
		return nil, "", err
	}
	st, err := m.stores.ForAgent(agentID)
	if err != nil {
		return nil, "", err
	}
	row, err := st.GetKnowledgeChunk(ctx, chunkID)
	if err != nil || row == nil {
		return nil, "", err
	}
	documentID := strings.TrimPrefix(row.Path, "knowledge/")
	if _, err := m.requireDocument(ctx, st, agentID, documentID, kbID); err != nil {
		return nil, "", err
	}
	idx, err := st.KnowledgeChunkIndex(ctx, documentID, row.StartLine)
	if err != nil {
		return nil, "", err
	}
	return &ChunkInfo{
		ID:        row.ID,
		Index:     idx,
		Text:      row.Text,
		Tokens:    estimateTokens(row.Text),
		StartLine: row.StartLine,
		EndLine:   row.EndLine,
	}, documentID, nil
}

// requireDocument loads a document and enforces ownership and base
// membership.
func (m *Manager) requireDocument(ctx context.Context, st *store.Store, agentID, documentID, kbID string) (*store.Document, error) {
	doc, err := st.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document %s", ErrNotFound, documentID)
	}
	if doc.OwnerAgentID != agentID {
		return nil, ErrNotOwner
	}
	if kbID != "" && doc.KBID != "" && kbID != doc.KBID {
		return nil, ErrBaseMismatch
	}
	return doc, nil
}

// extractText runs the format processor. A nil processor (preview-only
// upload) yields empty text without error.
func (m *Manager) extractText(ctx context.Context, proc processor.Processor, filename string, data []byte) (string, error) {
	if proc == nil {
		return "", nil
	}
	text, err := proc.Extract(ctx, data)
	if err != nil {
		m.log.Warn("knowledge: text extraction failed", "filename", filename, "error", err)
		return "", fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	if strings.TrimSpace(text) == "" {
		m.log.Warn("knowledge: no text extracted", "filename", filename)
		return "", ErrNoContent
	}
	return text, nil
}

// processDocument runs the post-write steps: memory indexing when every
// layer allows it, then graph extraction when the base opts in. Both are
// best effort.
func (m *Manager) processDocument(ctx context.Context, st *store.Store, agentID, kbID, documentID, filename, text string, cfg *KnowledgeConfig) (bool, error) {
	if text == "" {
		return false, nil
	}
	settings, err := m.effectiveSettings(ctx, st, agentID, cfg)
	if err != nil {
		return false, err
	}
	baseSettings, err := m.baseRuntimeSettings(ctx, st, kbID)
	if err != nil {
		return false, err
	}

	indexed := false
	var hooks []postHook
	if cfg.Search.AutoIndex && cfg.Search.IncludeInMemorySearch &&
		settings.Vectorization.Enabled && baseSettings.Vectorization.Enabled {
		if m.index == nil {
			m.log.Warn("knowledge: memory index unavailable, skipping indexing", "agent", agentID)
		} else {
			hooks = append(hooks, postHook{name: "index", run: func(ctx context.Context) error {
				if err := m.index.Ingest(ctx, agentID, documentID, filename, text); err != nil {
					return err
				}
				now := time.Now().UnixMilli()
				if err := st.SetDocumentIndexedAt(ctx, documentID, &now); err != nil {
					return err
				}
				indexed = true
				return nil
			}})
		}
	}
	if baseSettings.Graph.Enabled && m.pipeline != nil {
		hooks = append(hooks, postHook{name: "graph", run: func(ctx context.Context) error {
			_, err := m.pipeline.ExtractForDocument(ctx, st, graph.ExtractRequest{
				KBID:       kbID,
				DocumentID: documentID,
				Text:       text,
				TriplesDir: m.triplesDir(agentID, kbID),
				Settings:   graphSettings(settings.Graph),
			})
			return err
		}})
	}
	m.runPostHooks(ctx, agentID, documentID, hooks)
	return indexed, nil
}

// writeBlob stores document bytes under the agent's knowledge directory.
func (m *Manager) writeBlob(agentID, relPath string, data []byte) error {
	abs := filepath.Join(m.stores.AgentDir(agentID), relPath)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}
	return os.WriteFile(abs, data, 0o644)
}

// checkOrigin enforces the per-entry-point upload switches.
func checkOrigin(cfg *KnowledgeConfig, origin string) error {
	switch origin {
	case OriginWeb:
		if !cfg.Upload.WebAPI {
			return fmt.Errorf("%w: web uploads", ErrDisabled)
		}
	case OriginChat:
		if !cfg.Upload.ChatAttachments {
			return fmt.Errorf("%w: chat attachments", ErrDisabled)
		}
	}
	return nil
}

// formatEnabled checks the per-format switches for processable types.
func formatEnabled(cfg *KnowledgeConfig, mimetype string) bool {
	switch mimetype {
	case "application/pdf":
		return cfg.Formats.PDF.Enabled
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document", "application/msword":
		return cfg.Formats.Docx.Enabled
	case "text/plain", "text/markdown":
		return cfg.Formats.Text.Enabled
	case "text/html":
		return cfg.Formats.HTML.Enabled
	}
	return true
}

// previewMetadata builds source metadata for preview-only uploads. A
// spreadsheet gets its sheet names and row counts recorded so the UI can
// summarise it without text extraction.
func previewMetadata(mimetype string, data []byte) string {
	lower := strings.ToLower(mimetype)
	if !strings.Contains(lower, "spreadsheet") && !strings.Contains(lower, "excel") {
		return ""
	}
	sheets, err := processor.SpreadsheetPreview(data)
	if err != nil || len(sheets) == 0 {
		return ""
	}
	meta, err := json.Marshal(map[string]any{"sheets": sheets})
	if err != nil {
		return ""
	}
	return string(meta)
}
