// Package indexer implements the document indexer: embed a batch of
// Documents (dense, sparse, and optionally multi-vector), assemble Points,
// and upsert the whole batch in one store call.
package indexer

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/vectorlane/memquery/internal/document"
	"github.com/vectorlane/memquery/internal/store"
)

// DenseEmbedder embeds a batch of document texts in one call.
type DenseEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string, isQuery bool) ([][]float32, error)
}

// SparseEmbedder embeds a batch of document texts into sparse vectors in
// one call.
type SparseEmbedder interface {
	EmbedSparseBatch(ctx context.Context, texts []string) ([]map[uint32]float32, error)
}

// MultiVectorEmbedder produces per-token late-interaction vectors per text.
type MultiVectorEmbedder interface {
	EmbedDocument(ctx context.Context, text string) ([][]float32, error)
}

// Indexer assembles and upserts Points for one collection.
type Indexer struct {
	store       store.Writer
	dense       DenseEmbedder
	sparse      SparseEmbedder
	multiVector MultiVectorEmbedder // optional; nil disables the multi-vector field
	collection  string
	denseName   string
	sparseName  string
	multiName   string
	log         zerolog.Logger
}

// Option configures an Indexer.
type Option func(*Indexer)

func WithMultiVector(e MultiVectorEmbedder, name string) Option {
	return func(i *Indexer) { i.multiVector = e; i.multiName = name }
}
func WithLogger(l zerolog.Logger) Option { return func(i *Indexer) { i.log = l } }

// New builds an Indexer targeting one collection and its named dense/sparse
// vector fields.
func New(w store.Writer, dense DenseEmbedder, sparse SparseEmbedder, collection, denseName, sparseName string, opts ...Option) *Indexer {
	ix := &Indexer{
		store:      w,
		dense:      dense,
		sparse:     sparse,
		collection: collection,
		denseName:  denseName,
		sparseName: sparseName,
		log:        zerolog.Nop(),
	}
	for _, o := range opts {
		o(ix)
	}
	return ix
}

// Index embeds and upserts docs, returning the count successfully indexed.
// On any embedding or upsert error, the whole batch is treated as lost: it
// logs and returns 0 with the error rather than a partial count. The caller
// is the batch queue's flush callback; the event consumer has already acked
// each message once it was queued.
func (ix *Indexer) Index(ctx context.Context, docs []document.Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	for _, d := range docs {
		if d.OrgID == "" {
			ix.log.Error().Str("doc_id", d.ID).Msg("indexer: document missing required org_id")
			return 0, errMissingOrgID
		}
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}

	denseVecs, err := ix.dense.EmbedBatch(ctx, texts, false)
	if err != nil {
		ix.log.Error().Err(err).Int("batch", len(docs)).Msg("indexer: dense embed batch failed")
		return 0, err
	}
	sparseVecs, err := ix.sparse.EmbedSparseBatch(ctx, texts)
	if err != nil {
		ix.log.Error().Err(err).Int("batch", len(docs)).Msg("indexer: sparse embed batch failed")
		return 0, err
	}

	var multiVecs [][][]float32
	if ix.multiVector != nil {
		multiVecs = make([][][]float32, len(docs))
		for i, text := range texts {
			mv, err := ix.multiVector.EmbedDocument(ctx, text)
			if err != nil {
				ix.log.Error().Err(err).Int("batch", len(docs)).Msg("indexer: multi-vector embed failed")
				return 0, err
			}
			multiVecs[i] = mv
		}
	}

	points := make([]store.Point, len(docs))
	for i, d := range docs {
		payload := make(map[string]any, len(d.Metadata)+3)
		for k, v := range d.Metadata {
			payload[k] = v
		}
		payload["content"] = d.Content
		payload["org_id"] = d.OrgID
		if d.SessionID != "" {
			payload["session_id"] = d.SessionID
		}

		p := store.Point{
			ID:           d.ID,
			DenseVectors: map[string][]float32{ix.denseName: denseVecs[i]},
			SparseName:   ix.sparseName,
			SparseVector: sparseVecs[i],
			Payload:      payload,
		}
		if ix.multiVector != nil {
			p.MultiVectorName = ix.multiName
			p.MultiVector = multiVecs[i]
		}
		points[i] = p
	}

	if err := ix.store.UpsertBatch(ctx, ix.collection, points); err != nil {
		ix.log.Error().Err(err).Int("batch", len(docs)).Msg("indexer: upsert batch failed")
		return 0, err
	}
	return len(points), nil
}
