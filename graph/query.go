package graph

import (
	"context"
	"strings"

	"github.com/knograph/knograph/store"
)

// Query defaults and floors. Requests below the floors are lifted, not
// rejected.
const (
	defaultMaxDepth   = 2
	defaultMaxTriples = 200
	minMaxTriples     = 10
)

// QueryParams shape one subgraph retrieval.
type QueryParams struct {
	Query string

	// DocumentIDs restricts matching to specific documents. A non-nil
	// empty slice means the caller's document filter resolved to nothing,
	// and the result is empty by construction.
	DocumentIDs []string

	Relation      string
	Entity        string
	CreatedAfter  int64
	CreatedBefore int64

	MaxDepth   int
	MaxTriples int
	MinDegree  int
}

// HasFilter reports whether any structural filter is set.
func (p QueryParams) HasFilter() bool {
	return p.DocumentIDs != nil || p.Relation != "" || p.Entity != "" ||
		p.CreatedAfter > 0 || p.CreatedBefore > 0
}

// Node is a projected entity. Ids are content-addressed hashes of the
// entity name, stable across queries.
type Node struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Degree int    `json:"degree"`
}

// Edge is a projected triple. Source and Target reference node ids; the
// id hashes the (h, r, t) content. Score is set on seed edges only; edges
// reached by structural expansion carry zero.
type Edge struct {
	ID         string  `json:"id"`
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	Type       string  `json:"type"`
	DocumentID string  `json:"documentId"`
	Score      float64 `json:"score"`
}

// Subgraph is the result of a graph query.
type Subgraph struct {
	Nodes     []Node `json:"nodes"`
	Edges     []Edge `json:"edges"`
	Truncated bool   `json:"truncated"`
	UsedFTS   bool   `json:"usedFts"`
}

type scoredTriple struct {
	store.GraphTriple
	score float64
}

// QuerySubgraph retrieves a scored, filtered, multi-hop subgraph from one
// base. Seeds come from full-text (or substring fallback) matching; later
// hops expand structurally from seed entities until the depth or triple
// budget runs out. With neither a keyword nor a filter the result is
// empty: unbounded full-graph scans are refused.
func QuerySubgraph(ctx context.Context, st *store.Store, kbID string, p QueryParams) (*Subgraph, error) {
	if strings.TrimSpace(p.Query) == "" && !p.HasFilter() {
		return &Subgraph{}, nil
	}
	if p.DocumentIDs != nil && len(p.DocumentIDs) == 0 {
		return &Subgraph{}, nil
	}

	maxDepth := p.MaxDepth
	if maxDepth == 0 {
		maxDepth = defaultMaxDepth
	}
	if maxDepth < 1 {
		maxDepth = 1
	}
	maxTriples := p.MaxTriples
	if maxTriples == 0 {
		maxTriples = defaultMaxTriples
	}
	if maxTriples < minMaxTriples {
		maxTriples = minMaxTriples
	}
	minDegree := p.MinDegree
	if minDegree < 0 {
		minDegree = 0
	}

	filter := store.TripleFilter{
		DocumentIDs:   p.DocumentIDs,
		Relation:      p.Relation,
		EntityPrefix:  p.Entity,
		CreatedAfter:  p.CreatedAfter,
		CreatedBefore: p.CreatedBefore,
	}

	seen := make(map[string]bool)
	var acc []scoredTriple
	frontier := make(map[string]bool)
	truncated := false

	add := func(t store.GraphTriple, score float64) bool {
		key := HashKey(t.H, t.R, t.T)
		if seen[key] {
			return true
		}
		if len(acc) >= maxTriples {
			truncated = true
			return false
		}
		seen[key] = true
		acc = append(acc, scoredTriple{GraphTriple: t, score: score})
		frontier[t.H] = true
		frontier[t.T] = true
		return true
	}

	usedFTS := false
	if st.HasGraphFTS() && strings.TrimSpace(p.Query) != "" {
		seeds, err := st.SeedTriplesFTS(ctx, kbID, ftsMatch(p.Query), filter, maxTriples)
		if err == nil {
			usedFTS = true
			for _, s := range seeds {
				rank := s.Rank
				if rank < 0 {
					rank = 0
				}
				if !add(s.GraphTriple, 1/(1+rank)) {
					break
				}
			}
		}
		// A failed MATCH (e.g. unbalanced quotes) falls through to LIKE.
	}
	if !usedFTS {
		seeds, err := st.SeedTriplesLike(ctx, kbID, p.Query, filter, maxTriples)
		if err != nil {
			return nil, err
		}
		for _, s := range seeds {
			if !add(s, scoreTextMatch(p.Query, s)) {
				break
			}
		}
	}

	// Structural expansion. Each hop consumes the previous hop's newly
	// discovered entities; the keyword predicate does not apply here.
	for depth := 1; depth < maxDepth && len(frontier) > 0 && !truncated; depth++ {
		names := make([]string, 0, len(frontier))
		for name := range frontier {
			names = append(names, name)
		}
		frontier = make(map[string]bool)

		grown, err := st.TriplesTouching(ctx, kbID, names, filter, maxTriples)
		if err != nil {
			return nil, err
		}
		known := make(map[string]bool, len(names))
		for _, n := range names {
			known[n] = true
		}
		for _, t := range grown {
			if !add(t, 0) {
				break
			}
		}
		for name := range frontier {
			if known[name] {
				delete(frontier, name)
			}
		}
	}

	return project(acc, minDegree, truncated, usedFTS), nil
}

// project computes node degrees, applies the degree floor, and drops
// triples whose endpoints were pruned.
func project(acc []scoredTriple, minDegree int, truncated, usedFTS bool) *Subgraph {
	degree := make(map[string]int)
	for _, t := range acc {
		degree[t.H]++
		degree[t.T]++
	}

	kept := make(map[string]bool, len(degree))
	for name, d := range degree {
		if d >= minDegree {
			kept[name] = true
		}
	}

	sg := &Subgraph{Truncated: truncated, UsedFTS: usedFTS}
	added := make(map[string]bool, len(kept))
	for _, t := range acc {
		if !kept[t.H] || !kept[t.T] {
			continue
		}
		sg.Edges = append(sg.Edges, Edge{
			ID:         HashKey(t.H, t.R, t.T),
			Source:     store.HashText(t.H),
			Target:     store.HashText(t.T),
			Type:       t.R,
			DocumentID: t.DocumentID,
			Score:      t.score,
		})
		for _, name := range []string{t.H, t.T} {
			if added[name] {
				continue
			}
			added[name] = true
			sg.Nodes = append(sg.Nodes, Node{
				ID:     store.HashText(name),
				Name:   name,
				Degree: degree[name],
			})
		}
	}
	return sg
}

// ftsMatch wraps the raw query as a single quoted FTS5 phrase.
func ftsMatch(query string) string {
	return `"` + strings.ReplaceAll(query, `"`, `""`) + `"`
}

// scoreTextMatch scores a substring seed: exact full-triple-text match
// 1.0, containment 0.7, anything else 0.3.
func scoreTextMatch(query string, t store.GraphTriple) float64 {
	q := strings.ToLower(strings.TrimSpace(query))
	full := strings.ToLower(t.H + " " + t.R + " " + t.T)
	switch {
	case q != "" && full == q:
		return 1.0
	case q != "" && strings.Contains(full, q):
		return 0.7
	default:
		return 0.3
	}
}
