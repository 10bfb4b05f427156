package database

import (
	"context"

	"github.com/tieubaoca/edu-assistant/types"
)

// VectorIndex defines the operations the document services need from a
// vector store. Every call is scoped to one namespace.
type VectorIndex interface {
	// EnsureNamespace provisions the namespace and blocks until it is ready.
	// A namespace that already exists is not an error.
	EnsureNamespace(ctx context.Context, namespace string) error

	// Upsert writes items in fixed-size batches. A failing batch does not
	// stop the remaining ones; the result reports what was stored.
	Upsert(ctx context.Context, namespace string, items []types.VectorItem) (types.UpsertResult, error)

	// Query returns candidates ordered by descending score.
	Query(ctx context.Context, query types.VectorQuery) ([]types.Candidate, error)

	// FindChunks returns up to limit chunks matching filter, without ranking.
	FindChunks(ctx context.Context, namespace string, filter types.ChunkFilter, limit int) ([]types.Candidate, error)

	// Delete removes ids. Unknown ids are ignored.
	Delete(ctx context.Context, namespace string, ids []string) error

	// Ping reports whether the index is reachable.
	Ping(ctx context.Context) error
}
