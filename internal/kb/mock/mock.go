// Package mock provides a test double for the kb.Retriever interface.
package mock

import (
	"context"
	"sync"

	"github.com/arkavel/voidtable/internal/kb"
)

// QueryCall records a single invocation of Query.
type QueryCall struct {
	Query string
	Limit int
}

// Retriever is a mock implementation of kb.Retriever. Zero values cause
// methods to return nil results and nil errors.
type Retriever struct {
	mu sync.Mutex

	// QueryResults is returned by Query.
	QueryResults []kb.Result

	// QueryErr, if non-nil, is returned as the error from Query.
	QueryErr error

	// QueryCalls records every invocation of Query in order.
	QueryCalls []QueryCall
}

// Query records the call and returns QueryResults, QueryErr.
func (r *Retriever) Query(_ context.Context, query string, limit int) ([]kb.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.QueryCalls = append(r.QueryCalls, QueryCall{Query: query, Limit: limit})
	return r.QueryResults, r.QueryErr
}

var _ kb.Retriever = (*Retriever)(nil)
