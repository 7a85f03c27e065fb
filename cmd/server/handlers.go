package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/knograph/knograph"
)

type handler struct {
	engine *knograph.Manager
}

func newHandler(e *knograph.Manager) *handler {
	return &handler{engine: e}
}

// agentID pulls the calling agent from the X-Agent-ID header. Every
// operation except the health check is agent-scoped.
func agentID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get("X-Agent-ID"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "X-Agent-ID header is required")
		return "", false
	}
	return id, true
}

// GET /settings
func (h *handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	agent, ok := agentID(w, r)
	if !ok {
		return
	}
	settings, err := h.engine.GetSettings(r.Context(), agent)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// PATCH /settings
func (h *handler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	agent, ok := agentID(w, r)
	if !ok {
		return
	}
	var upd knograph.SettingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	settings, err := h.engine.UpdateSettings(r.Context(), agent, upd)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// GET /bases
func (h *handler) handleListBases(w http.ResponseWriter, r *http.Request) {
	agent, ok := agentID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	page, err := h.engine.ListBases(r.Context(), agent, knograph.ListBasesOptions{
		Search:     q.Get("search"),
		Visibility: q.Get("visibility"),
		Tags:       splitList(q.Get("tags")),
		Limit:      queryInt(q.Get("limit")),
		Offset:     queryInt(q.Get("offset")),
	})
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// POST /bases
func (h *handler) handleCreateBase(w http.ResponseWriter, r *http.Request) {
	agent, ok := agentID(w, r)
	if !ok {
		return
	}
	var req struct {
		Name        string                         `json:"name"`
		Description string                         `json:"description"`
		Icon        string                         `json:"icon"`
		Visibility  string                         `json:"visibility"`
		Tags        []knograph.TagInput            `json:"tags"`
		Settings    *knograph.RuntimeSettingsPatch `json:"settings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	base, err := h.engine.CreateBase(r.Context(), agent, knograph.CreateBaseRequest{
		Name:        req.Name,
		Description: req.Description,
		Icon:        req.Icon,
		Visibility:  req.Visibility,
		Tags:        req.Tags,
		Settings:    req.Settings,
	})
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, base)
}

// GET /bases/{id}
func (h *handler) handleGetBase(w http.ResponseWriter, r *http.Request) {
	agent, ok := agentID(w, r)
	if !ok {
		return
	}
	base, err := h.engine.GetBase(r.Context(), agent, r.PathValue("id"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	if base == nil {
		writeError(w, http.StatusNotFound, "knowledge base not found")
		return
	}
	writeJSON(w, http.StatusOK, base)
}

// PATCH /bases/{id}
func (h *handler) handleUpdateBase(w http.ResponseWriter, r *http.Request) {
	agent, ok := agentID(w, r)
	if !ok {
		return
	}
	var req struct {
		Name        *string             `json:"name"`
		Description *string             `json:"description"`
		Icon        *string             `json:"icon"`
		Visibility  *string             `json:"visibility"`
		Tags        []knograph.TagInput `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	base, err := h.engine.UpdateBase(r.Context(), agent, r.PathValue("id"), knograph.BaseUpdate{
		Name:        req.Name,
		Description: req.Description,
		Icon:        req.Icon,
		Visibility:  req.Visibility,
		Tags:        req.Tags,
	})
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, base)
}

// DELETE /bases/{id}
func (h *handler) handleDeleteBase(w http.ResponseWriter, r *http.Request) {
	agent, ok := agentID(w, r)
	if !ok {
		return
	}
	deleted, err := h.engine.DeleteBase(r.Context(), agent, r.PathValue("id"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": deleted})
}

// GET /bases/{id}/settings
func (h *handler) handleGetBaseSettings(w http.ResponseWriter, r *http.Request) {
	agent, ok := agentID(w, r)
	if !ok {
		return
	}
	settings, err := h.engine.GetBaseSettings(r.Context(), agent, r.PathValue("id"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// PATCH /bases/{id}/settings
func (h *handler) handleUpdateBaseSettings(w http.ResponseWriter, r *http.Request) {
	agent, ok := agentID(w, r)
	if !ok {
		return
	}
	var patch knograph.RuntimeSettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	settings, err := h.engine.UpdateBaseSettings(r.Context(), agent, r.PathValue("id"), patch)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// PUT /bases/{id}/tags
func (h *handler) handleSetBaseTags(w http.ResponseWriter, r *http.Request) {
	agent, ok := agentID(w, r)
	if !ok {
		return
	}
	var req struct {
		Tags []knograph.TagInput `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	tags, err := h.engine.SetBaseTags(r.Context(), agent, r.PathValue("id"), req.Tags)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

// GET /tags
func (h *handler) handleListTags(w http.ResponseWriter, r *http.Request) {
	agent, ok := agentID(w, r)
	if !ok {
		return
	}
	tags, err := h.engine.ListTags(r.Context(), agent)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

// POST /tags
func (h *handler) handleCreateTag(w http.ResponseWriter, r *http.Request) {
	agent, ok := agentID(w, r)
	if !ok {
		return
	}
	var req struct {
		Name  string `json:"name"`
		Color string `json:"color"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	tag, err := h.engine.CreateTag(r.Context(), agent, req.Name, req.Color)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tag)
}

// PATCH /tags/{id}
func (h *handler) handleUpdateTag(w http.ResponseWriter, r *http.Request) {
	agent, ok := agentID(w, r)
	if !ok {
		return
	}
	var req struct {
		Name  *string `json:"name"`
		Color *string `json:"color"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	tag, err := h.engine.UpdateTag(r.Context(), agent, r.PathValue("id"), req.Name, req.Color)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tag)
}

// DELETE /tags/{id}
func (h *handler) handleDeleteTag(w http.ResponseWriter, r *http.Request) {
	agent, ok := agentID(w, r)
	if !ok {
		return
	}
	deleted, err := h.engine.DeleteTag(r.Context(), agent, r.PathValue("id"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": deleted})
}

// POST /documents
// Multipart upload: file plus kbId, description, tags form fields.
func (h *handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	agent, ok := agentID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	req, ok := parseUploadForm(w, r)
	if !ok {
		return
	}
	result, err := h.engine.UploadDocument(ctx, agent, req)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// PUT /documents/{id}
func (h *handler) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	agent, ok := agentID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	req, ok := parseUploadForm(w, r)
	if !ok {
		return
	}
	result, err := h.engine.UpdateDocument(ctx, agent, r.PathValue("id"), req)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func parseUploadForm(w http.ResponseWriter, r *http.Request) (knograph.UploadRequest, bool) {
	if err := r.ParseMultipartForm(100 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "expected multipart form upload")
		return knograph.UploadRequest{}, false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return knograph.UploadRequest{}, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read file")
		slog.Error("reading uploaded file", "error", err)
		return knograph.UploadRequest{}, false
	}

	mimetype := r.FormValue("mimetype")
	if mimetype == "" {
		mimetype = header.Header.Get("Content-Type")
	}
	origin := r.FormValue("origin")
	if origin == "" {
		origin = knograph.OriginWeb
	}
	return knograph.UploadRequest{
		KBID:        r.FormValue("kbId"),
		Filename:    filepath.Base(header.Filename),
		Data:        data,
		Mimetype:    mimetype,
		Description: r.FormValue("description"),
		Tags:        splitList(r.FormValue("tags")),
		Origin:      origin,
	}, true
}

// PATCH /documents/{id}
func (h *handler) handleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	agent, ok := agentID(w, r)
	if !ok {
		return
	}
	var req struct {
		KBID        string   `json:"kbId"`
		Filename    *string  `json:"filename"`
		Description *string  `json:"description"`
		Tags        []string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	doc, err := h.engine.UpdateDocumentMetadata(r.Context(), agent, r.PathValue("id"), knograph.MetadataUpdate{
		KBID:        req.KBID,
		Filename:    req.Filename,
		Description: req.Description,
		Tags:        req.Tags,
	})
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// DELETE /documents/{id}
func (h *handler) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	agent, ok := agentID(w, r)
	if !ok {
		return
	}
	deleted, err := h.engine.DeleteDocument(r.Context(), agent, r.PathValue("id"), r.URL.Query().Get("kbId"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": deleted})
}

// GET /documents
func (h *handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	agent, ok := agentID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	docs, err := h.engine.ListDocuments(r.Context(), agent, knograph.ListDocumentsOptions{
		KBID:   q.Get("kbId"),
		Tags:   splitList(q.Get("tags")),
		Limit:  queryInt(q.Get("limit")),
		Offset: queryInt(q.Get("offset")),
	})
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

// GET /documents/{id}
func (h *handler) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	agent, ok := agentID(w, r)
	if !ok {
		return
	}
	doc, err := h.engine.GetDocument(r.Context(), agent, r.PathValue("id"), r.URL.Query().Get("kbId"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// GET /documents/{id}/file
func (h *handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	agent, ok := agentID(w, r)
	if !ok {
		return
	}
	absPath, mimetype, err := h.engine.ResolveDocumentPath(r.Context(), agent, r.PathValue("id"), r.URL.Query().Get("kbId"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", mimetype)
	http.ServeFile(w, r, absPath)
}

// GET /documents/{id}/chunks
func (h *handler) handleListChunks(w http.ResponseWriter, r *http.Request) {
	agent, ok := agentID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	page, err := h.engine.ListChunks(r.Context(), agent, r.PathValue("id"), q.Get("kbId"),
		queryInt(q.Get("limit")), queryInt(q.Get("offset")))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GET /chunks/{id}
func (h *handler) handleGetChunk(w http.ResponseWriter, r *http.Request) {
	agent, ok := agentID(w, r)
	if !ok {
		return
	}
	chunk, documentID, err := h.engine.GetChunk(r.Context(), agent, r.PathValue("id"), r.URL.Query().Get("kbId"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	if chunk == nil {
		writeError(w, http.StatusNotFound, "chunk not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"chunk":      chunk,
		"documentId": documentID,
	})
}

// POST /graph/query
func (h *handler) handleGraphQuery(w http.ResponseWriter, r *http.Request) {
	agent, ok := agentID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	var req struct {
		KBID          string   `json:"kbId"`
		Query         string   `json:"query"`
		DocumentIDs   []string `json:"documentIds"`
		Relation      string   `json:"relation"`
		Entity        string   `json:"entity"`
		CreatedAfter  int64    `json:"createdAfter"`
		CreatedBefore int64    `json:"createdBefore"`
		MaxDepth      int      `json:"maxDepth"`
		MaxTriples    int      `json:"maxTriples"`
		MinDegree     int      `json:"minDegree"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	sub, err := h.engine.QueryGraph(ctx, agent, knograph.GraphQuery{
		KBID:          req.KBID,
		Query:         req.Query,
		DocumentIDs:   req.DocumentIDs,
		Relation:      req.Relation,
		Entity:        req.Entity,
		CreatedAfter:  req.CreatedAfter,
		CreatedBefore: req.CreatedBefore,
		MaxDepth:      req.MaxDepth,
		MaxTriples:    req.MaxTriples,
		MinDegree:     req.MinDegree,
	})
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// POST /documents/{id}/graph/refresh
func (h *handler) handleGraphRefresh(w http.ResponseWriter, r *http.Request) {
	agent, ok := agentID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	run, err := h.engine.RefreshGraph(ctx, agent, r.PathValue("id"), r.URL.Query().Get("kbId"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// GET /documents/{id}/graph/run
func (h *handler) handleGraphRun(w http.ResponseWriter, r *http.Request) {
	agent, ok := agentID(w, r)
	if !ok {
		return
	}
	run, err := h.engine.GetGraphRun(r.Context(), agent, r.PathValue("id"), r.URL.Query().Get("kbId"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "no extraction run for document")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// GET /bases/{id}/graph/stats
func (h *handler) handleGraphStats(w http.ResponseWriter, r *http.Request) {
	agent, ok := agentID(w, r)
	if !ok {
		return
	}
	stats, err := h.engine.GetGraphStats(r.Context(), agent, r.PathValue("id"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// writeEngineError maps engine sentinel errors to HTTP statuses.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, knograph.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, knograph.ErrNotOwner),
		errors.Is(err, knograph.ErrBaseMismatch),
		errors.Is(err, knograph.ErrDisabled):
		status = http.StatusForbidden
	case errors.Is(err, knograph.ErrAmbiguousBase),
		errors.Is(err, knograph.ErrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, knograph.ErrTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, knograph.ErrLimitReached),
		errors.Is(err, knograph.ErrDuplicate),
		errors.Is(err, knograph.ErrDuplicateName):
		status = http.StatusConflict
	case errors.Is(err, knograph.ErrUnsupportedType),
		errors.Is(err, knograph.ErrFormatDisabled):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, knograph.ErrExtraction),
		errors.Is(err, knograph.ErrNoContent):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func queryInt(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
