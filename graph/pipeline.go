package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/knograph/knograph/store"
)

// Run statuses recorded in the graph runs table.
const (
	RunRunning = "running"
	RunSuccess = "success"
	RunFailed  = "failed"
)

// Pipeline drives triple extraction for single documents: it records the
// run, calls the extractor, snapshots the triples to disk, and swaps the
// document's triples in the store.
type Pipeline struct {
	extractor Extractor
	log       *slog.Logger
}

// NewPipeline creates a pipeline around an extractor.
func NewPipeline(extractor Extractor, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{extractor: extractor, log: logger}
}

// ExtractRequest names one document extraction.
type ExtractRequest struct {
	KBID       string
	DocumentID string
	Text       string
	// TriplesDir is where the JSONL snapshot for this base lives.
	TriplesDir string
	Settings   Settings
}

// RunID derives the stable run id for a document in a base. Re-running
// extraction updates the same run record.
func RunID(kbID, documentID string) string {
	return store.HashText(kbID + ":" + documentID)
}

// ExtractForDocument runs extraction end to end and returns the final run
// record. A failed extraction is recorded on the run and returned as an
// error; previously stored triples are left untouched in that case.
func (p *Pipeline) ExtractForDocument(ctx context.Context, st *store.Store, req ExtractRequest) (*store.GraphRun, error) {
	now := time.Now().UnixMilli()
	run := store.GraphRun{
		ID:         RunID(req.KBID, req.DocumentID),
		KBID:       req.KBID,
		DocumentID: req.DocumentID,
		Status:     RunRunning,
		Extractor:  "llm",
		Model:      req.Settings.Model,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := st.UpsertGraphRun(ctx, run); err != nil {
		return nil, fmt.Errorf("recording graph run: %w", err)
	}

	target := TargetTriples(len(req.Text), req.Settings)
	triples, model, err := p.extractor.Extract(ctx, req.Text, target, req.Settings)
	if err != nil {
		run.Status = RunFailed
		run.Error = err.Error()
		run.UpdatedAt = time.Now().UnixMilli()
		if uerr := st.UpsertGraphRun(ctx, run); uerr != nil {
			p.log.Error("marking graph run failed", "run", run.ID, "error", uerr)
		}
		return &run, err
	}
	run.Model = model

	rows, deduped := p.tripleRows(req.KBID, req.DocumentID, triples)
	triplesPath := filepath.Join(req.TriplesDir, req.DocumentID+".jsonl")
	if err := WriteJSONL(triplesPath, deduped); err != nil {
		return p.fail(ctx, st, run, err)
	}
	if err := st.ReplaceDocumentTriples(ctx, req.KBID, req.DocumentID, rows); err != nil {
		return p.fail(ctx, st, run, fmt.Errorf("storing triples: %w", err))
	}

	run.Status = RunSuccess
	run.TriplesPath = triplesPath
	run.TripleCount = len(rows)
	run.UpdatedAt = time.Now().UnixMilli()
	if err := st.UpsertGraphRun(ctx, run); err != nil {
		return nil, fmt.Errorf("finishing graph run: %w", err)
	}

	p.log.Info("graph extraction complete",
		"kb", req.KBID,
		"document", req.DocumentID,
		"triples", len(rows),
		"model", model,
	)
	return &run, nil
}

func (p *Pipeline) fail(ctx context.Context, st *store.Store, run store.GraphRun, err error) (*store.GraphRun, error) {
	run.Status = RunFailed
	run.Error = err.Error()
	run.UpdatedAt = time.Now().UnixMilli()
	if uerr := st.UpsertGraphRun(ctx, run); uerr != nil {
		p.log.Error("marking graph run failed", "run", run.ID, "error", uerr)
	}
	return &run, err
}

// tripleRows converts triples to store rows, collapsing duplicates by
// content hash so re-extraction stays idempotent. Row ids are scoped by
// base and document so identical statements extracted from two documents
// do not collide.
func (p *Pipeline) tripleRows(kbID, documentID string, triples []Triple) ([]store.GraphTriple, []Triple) {
	now := time.Now().UnixMilli()
	seen := make(map[string]bool, len(triples))
	rows := make([]store.GraphTriple, 0, len(triples))
	deduped := make([]Triple, 0, len(triples))

	for _, t := range triples {
		key := HashKey(t.H.Name, t.R.Type, t.T.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		rows = append(rows, store.GraphTriple{
			ID:         store.HashText(kbID + "::" + documentID + "::" + t.H.Name + "::" + t.R.Type + "::" + t.T.Name),
			KBID:       kbID,
			DocumentID: documentID,
			H:          t.H.Name,
			R:          t.R.Type,
			T:          t.T.Name,
			PropsJSON:  propsJSON(t),
			CreatedAt:  now,
		})
		deduped = append(deduped, t)
	}
	return rows, deduped
}

// propsJSON serialises the detailed endpoint forms, or "" when every
// component was a bare name.
func propsJSON(t Triple) string {
	if t.H.Type == "" && t.T.Type == "" &&
		len(t.H.Props) == 0 && len(t.R.Props) == 0 && len(t.T.Props) == 0 {
		return ""
	}
	data, err := json.Marshal(t)
	if err != nil {
		return ""
	}
	return string(data)
}
