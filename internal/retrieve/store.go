package retrieve

import "context"

// LegResult is one hit returned by a single search leg (dense or sparse)
// against the vector store, before fusion.
type LegResult struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// StoreFilter is the vendor-neutral filter passed down to the store.
type StoreFilter struct {
	TenantID    string
	SessionID   string
	Type        string
	StartMillis int64
	EndMillis   int64
	VTEndAfter  int64
}

// Store is the narrow slice of the vector-store contract the hybrid
// retriever depends on. internal/store provides the Qdrant-backed and
// in-memory implementations; this package only ever sees this interface so
// it never imports a store-specific client.
type Store interface {
	SearchDense(ctx context.Context, collection, vectorName string, vector []float32, k int, filter StoreFilter) ([]LegResult, error)
	SearchSparse(ctx context.Context, collection string, sparse map[uint32]float32, k int, filter StoreFilter) ([]LegResult, error)
}

// DenseEmbedder produces a dense embedding for a query string.
type DenseEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Name() string
}

// SparseEmbedder produces a sparse (index -> weight) embedding for a query
// string.
type SparseEmbedder interface {
	EmbedSparseQuery(ctx context.Context, text string) (map[uint32]float32, error)
}

func toFilter(f Filter) StoreFilter {
	return StoreFilter{
		TenantID:    f.TenantID,
		SessionID:   f.SessionID,
		Type:        f.Type,
		StartMillis: f.StartMillis,
		EndMillis:   f.EndMillis,
		VTEndAfter:  f.VTEndAfter,
	}
}
