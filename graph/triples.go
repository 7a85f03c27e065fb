// Package graph implements knowledge-graph triple extraction and scored
// subgraph retrieval over the triple store.
package graph

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knograph/knograph/store"
)

// EntityRef is one endpoint of a triple. Extractors may return bare
// strings or objects with extra attributes; both decode into this struct.
type EntityRef struct {
	Name  string
	Type  string
	Props map[string]any
}

// RelationRef is the labelled relation of a triple. The label decodes
// from either a bare string or an object with a non-empty "type".
type RelationRef struct {
	Type  string
	Props map[string]any
}

// Triple is one extracted head-relation-tail statement.
type Triple struct {
	H EntityRef   `json:"h"`
	R RelationRef `json:"r"`
	T EntityRef   `json:"t"`
}

func (e *EntityRef) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*e = EntityRef{Name: s}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*e = EntityRef{}
	for k, v := range m {
		switch k {
		case "name":
			if s, ok := v.(string); ok {
				e.Name = s
			}
		case "type":
			if s, ok := v.(string); ok {
				e.Type = s
			}
		default:
			if e.Props == nil {
				e.Props = make(map[string]any)
			}
			e.Props[k] = v
		}
	}
	return nil
}

func (e EntityRef) MarshalJSON() ([]byte, error) {
	if e.Type == "" && len(e.Props) == 0 {
		return json.Marshal(e.Name)
	}
	m := make(map[string]any, len(e.Props)+2)
	for k, v := range e.Props {
		m[k] = v
	}
	m["name"] = e.Name
	if e.Type != "" {
		m["type"] = e.Type
	}
	return json.Marshal(m)
}

func (r *RelationRef) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = RelationRef{Type: s}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*r = RelationRef{}
	if s, ok := m["type"].(string); ok && s != "" {
		r.Type = s
	} else if s, ok := m["name"].(string); ok {
		// Tolerated legacy form.
		r.Type = s
	}
	for k, v := range m {
		if k == "type" || k == "name" {
			continue
		}
		if r.Props == nil {
			r.Props = make(map[string]any)
		}
		r.Props[k] = v
	}
	return nil
}

func (r RelationRef) MarshalJSON() ([]byte, error) {
	if len(r.Props) == 0 {
		return json.Marshal(r.Type)
	}
	m := make(map[string]any, len(r.Props)+1)
	for k, v := range r.Props {
		m[k] = v
	}
	m["type"] = r.Type
	return json.Marshal(m)
}

// Normalize trims entity and relation names and reports whether the
// triple survives. Triples with any empty component are dropped.
func (t Triple) Normalize() (Triple, bool) {
	t.H.Name = strings.TrimSpace(t.H.Name)
	t.R.Type = strings.TrimSpace(t.R.Type)
	t.T.Name = strings.TrimSpace(t.T.Name)
	t.H.Type = strings.TrimSpace(t.H.Type)
	t.T.Type = strings.TrimSpace(t.T.Type)
	if t.H.Name == "" || t.R.Type == "" || t.T.Name == "" {
		return Triple{}, false
	}
	return t, true
}

// HashKey returns the content-addressed id of a triple. Re-extracting the
// same statement always yields the same id.
func HashKey(h, r, t string) string {
	return store.HashText(h + "::" + r + "::" + t)
}

// Settings are the extraction knobs for one run.
type Settings struct {
	Model             string
	MinTriples        int
	MaxTriples        int
	TriplesPerKTokens int
	MaxDepth          int
}

// TargetTriples computes how many triples to ask for, scaling with the
// approximate token count of the text and clamped to [MinTriples,
// MaxTriples].
func TargetTriples(textLen int, s Settings) int {
	tokens := textLen / 4
	if tokens < 1 {
		tokens = 1
	}
	perK := s.TriplesPerKTokens
	if perK < 1 {
		perK = 1
	}
	target := (tokens*perK + 999) / 1000
	if target < s.MinTriples {
		target = s.MinTriples
	}
	if s.MaxTriples > 0 && target > s.MaxTriples {
		target = s.MaxTriples
	}
	return target
}

// ParseTriples decodes extractor output. The payload may be a JSON array
// or JSONL, possibly wrapped in a code fence; unparseable lines and
// invalid triples are skipped. At most max triples are returned.
func ParseTriples(raw string, max int) []Triple {
	raw = stripCodeFences(raw)
	if raw == "" {
		return nil
	}

	var out []Triple
	add := func(t Triple) bool {
		n, ok := t.Normalize()
		if !ok {
			return true
		}
		out = append(out, n)
		return max <= 0 || len(out) < max
	}

	if strings.HasPrefix(raw, "[") {
		var arr []Triple
		if err := json.Unmarshal([]byte(raw), &arr); err == nil {
			for _, t := range arr {
				if !add(t) {
					break
				}
			}
			return out
		}
	}

	for line := range strings.Lines(raw) {
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "{") {
			continue
		}
		var t Triple
		if err := json.Unmarshal([]byte(line), &t); err != nil {
			continue
		}
		if !add(t) {
			break
		}
	}
	return out
}

// stripCodeFences removes a surrounding markdown code fence, if any.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// WriteJSONL snapshots triples to a JSONL file, one triple per line with
// a trailing newline, creating parent directories as needed.
func WriteJSONL(path string, triples []Triple) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating triples directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating triples file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, t := range triples {
		line, err := json.Marshal(t)
		if err != nil {
			return err
		}
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}
