// Package kb is the knowledge retrieval layer: the Director consults it for
// canonical setting lore when generating scenarios and adjudicating rituals.
//
// Three backends implement [Retriever]: a Postgres + pgvector semantic index
// (subpackage postgres), an MCP lore-server client (subpackage mcp), and a
// keyword-matched in-memory store for configs that ship their lore inline.
package kb

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Result is one retrieved lore fragment, most relevant first.
type Result struct {
	Source  string  // backend-specific origin (table, server, "inline")
	Title   string
	Content string
	Score   float64 // higher is more relevant
}

// Retriever answers free-text lore queries.
type Retriever interface {
	// Query returns up to limit fragments relevant to the query, ordered by
	// descending relevance. An empty result is not an error.
	Query(ctx context.Context, query string, limit int) ([]Result, error)
}

// Static is an in-memory keyword retriever over inline lore documents. It is
// the default backend when no database or lore server is configured.
type Static struct {
	mu   sync.RWMutex
	docs []Result
}

// NewStatic builds a retriever over the given documents.
func NewStatic(docs []Result) *Static {
	s := &Static{}
	s.docs = append(s.docs, docs...)
	return s
}

// Add appends a document.
func (s *Static) Add(title, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, Result{Source: "inline", Title: title, Content: content})
}

// Query implements [Retriever] with word-overlap scoring: the score is the
// fraction of query words found in the document's title or body.
func (s *Static) Query(_ context.Context, query string, limit int) ([]Result, error) {
	words := queryWords(query)
	if len(words) == 0 || limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var scored []Result
	for _, d := range s.docs {
		haystack := strings.ToLower(d.Title + " " + d.Content)
		matched := 0
		for _, w := range words {
			if strings.Contains(haystack, w) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		d.Score = float64(matched) / float64(len(words))
		scored = append(scored, d)
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func queryWords(q string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(q)) {
		w = strings.Trim(w, ".,;:!?\"'")
		if len(w) >= 3 {
			out = append(out, w)
		}
	}
	return out
}

// FormatResults renders retrieval results as a prompt section. Empty input
// yields a placeholder line rather than an empty section.
func FormatResults(results []Result) string {
	if len(results) == 0 {
		return "(no canon retrieved; improvise consistently)"
	}
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if r.Title != "" {
			b.WriteString("### " + r.Title + "\n")
		}
		b.WriteString(strings.TrimSpace(r.Content))
	}
	return b.String()
}
