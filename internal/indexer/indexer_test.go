package indexer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vectorlane/memquery/internal/document"
	"github.com/vectorlane/memquery/internal/store"
)

type fakeWriter struct {
	points     []store.Point
	collection string
	err        error
}

func (f *fakeWriter) UpsertBatch(_ context.Context, collection string, points []store.Point) error {
	if f.err != nil {
		return f.err
	}
	f.collection = collection
	f.points = points
	return nil
}

type fakeDense struct{ err error }

func (f fakeDense) EmbedBatch(_ context.Context, texts []string, _ bool) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

type fakeSparse struct{ err error }

func (f fakeSparse) EmbedSparseBatch(_ context.Context, texts []string) ([]map[uint32]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]map[uint32]float32, len(texts))
	for i := range texts {
		out[i] = map[uint32]float32{uint32(i): 1}
	}
	return out, nil
}

func TestIndexAssemblesAndUpsertsPoints(t *testing.T) {
	w := &fakeWriter{}
	ix := New(w, fakeDense{}, fakeSparse{}, "chunks", "text_dense", "text_sparse")

	n, err := ix.Index(context.Background(), []document.Document{
		{ID: "d1", Content: "hello", OrgID: "org1", SessionID: "s1", Metadata: map[string]string{"type": "note"}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, "chunks", w.collection)
	require.Len(t, w.points, 1)
	require.Equal(t, "org1", w.points[0].Payload["org_id"])
	require.Equal(t, "s1", w.points[0].Payload["session_id"])
	require.Equal(t, "hello", w.points[0].Payload["content"])
}

func TestIndexRejectsMissingOrgID(t *testing.T) {
	w := &fakeWriter{}
	ix := New(w, fakeDense{}, fakeSparse{}, "chunks", "text_dense", "text_sparse")

	n, err := ix.Index(context.Background(), []document.Document{{ID: "d1", Content: "hello"}})
	require.Error(t, err)
	require.Equal(t, 0, n)
}

func TestIndexReturnsZeroOnDenseEmbedFailure(t *testing.T) {
	w := &fakeWriter{}
	ix := New(w, fakeDense{err: errors.New("embed down")}, fakeSparse{}, "chunks", "text_dense", "text_sparse")

	n, err := ix.Index(context.Background(), []document.Document{{ID: "d1", Content: "hello", OrgID: "org1"}})
	require.Error(t, err)
	require.Equal(t, 0, n)
}

func TestIndexReturnsZeroOnUpsertFailure(t *testing.T) {
	w := &fakeWriter{err: errors.New("store down")}
	ix := New(w, fakeDense{}, fakeSparse{}, "chunks", "text_dense", "text_sparse")

	n, err := ix.Index(context.Background(), []document.Document{{ID: "d1", Content: "hello", OrgID: "org1"}})
	require.Error(t, err)
	require.Equal(t, 0, n)
}

func TestIndexIncludesMultiVectorWhenConfigured(t *testing.T) {
	w := &fakeWriter{}
	mv := fakeMultiVector{}
	ix := New(w, fakeDense{}, fakeSparse{}, "chunks", "text_dense", "text_sparse", WithMultiVector(mv, "turn_colbert"))

	_, err := ix.Index(context.Background(), []document.Document{{ID: "d1", Content: "hello world", OrgID: "org1"}})
	require.NoError(t, err)
	require.Equal(t, "turn_colbert", w.points[0].MultiVectorName)
	require.NotEmpty(t, w.points[0].MultiVector)
}

type fakeMultiVector struct{}

func (fakeMultiVector) EmbedDocument(_ context.Context, text string) ([][]float32, error) {
	return [][]float32{{1, 2}, {3, 4}}, nil
}

func TestIndexEmptyBatchIsNoop(t *testing.T) {
	w := &fakeWriter{}
	ix := New(w, fakeDense{}, fakeSparse{}, "chunks", "text_dense", "text_sparse")
	n, err := ix.Index(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.Nil(t, w.points)
}
