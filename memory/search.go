// Package memory declares the long-term memory search capability the
// context assembler consumes, and implements the assembler itself. The
// store behind the Searcher (vector, keyword, hybrid) is the surrounding
// application's concern.
package memory

import "context"

// Hit is one search result from long-term memory.
type Hit struct {
	Content string  `json:"content"`
	Source  string  `json:"source,omitempty"`
	Score   float64 `json:"score"`
}

// Searcher is the external memory-search capability. Implementations should
// return hits ordered by descending score. Failures are tolerated by the
// assembler: a task proceeds without memory rather than aborting.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Hit, error)
}

// SearchFunc adapts a plain function to the Searcher interface.
type SearchFunc func(ctx context.Context, query string, limit int) ([]Hit, error)

func (f SearchFunc) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	return f(ctx, query, limit)
}
