package retrieve

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	dense               []LegResult
	sparse              []LegResult
	denseErr            error
	sparseErr           error
	denseCalls          int
	sparseCalls         int
	lastDenseVectorName string
}

func (f *fakeStore) SearchDense(_ context.Context, _ string, vectorName string, _ []float32, k int, _ StoreFilter) ([]LegResult, error) {
	f.denseCalls++
	f.lastDenseVectorName = vectorName
	if f.denseErr != nil {
		return nil, f.denseErr
	}
	return trim(f.dense, k), nil
}

func (f *fakeStore) SearchSparse(_ context.Context, _ string, _ map[uint32]float32, k int, _ StoreFilter) ([]LegResult, error) {
	f.sparseCalls++
	if f.sparseErr != nil {
		return nil, f.sparseErr
	}
	return trim(f.sparse, k), nil
}

func trim(in []LegResult, k int) []LegResult {
	if k > 0 && len(in) > k {
		return in[:k]
	}
	return in
}

type fakeDense struct {
	err  error
	name string
}

func (f fakeDense) EmbedQuery(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}
func (f fakeDense) Name() string {
	if f.name != "" {
		return f.name
	}
	return "fake-dense"
}

type fakeSparse struct{ err error }

func (f fakeSparse) EmbedSparseQuery(context.Context, string) (map[uint32]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return map[uint32]float32{1: 0.5}, nil
}

func baseQuery() Query {
	return Query{Text: "hello world", Limit: 5, Filter: Filter{TenantID: "t1"}}
}

func TestSearchRejectsMissingTenant(t *testing.T) {
	store := &fakeStore{}
	r := New(store, fakeDense{}, fakeSparse{}, "chunks")
	q := baseQuery()
	q.Filter.TenantID = ""
	_, err := r.Search(context.Background(), q)
	require.ErrorIs(t, err, ErrTenantMissing)
	require.Equal(t, 0, store.denseCalls)
	require.Equal(t, 0, store.sparseCalls)
}

func TestSearchRespectsLimit(t *testing.T) {
	store := &fakeStore{
		dense:  []LegResult{{ID: "a", Score: 0.9}, {ID: "b", Score: 0.8}, {ID: "c", Score: 0.7}},
		sparse: []LegResult{{ID: "b", Score: 0.5}, {ID: "d", Score: 0.4}},
	}
	r := New(store, fakeDense{}, fakeSparse{}, "chunks")
	q := baseQuery()
	q.Limit = 2
	results, err := r.Search(context.Background(), q)
	require.NoError(t, err)
	require.LessOrEqual(t, len(results), 2)
}

func TestSearchDegradesOnSingleLegFailure(t *testing.T) {
	store := &fakeStore{
		dense:     []LegResult{{ID: "a", Score: 0.9}},
		sparseErr: errors.New("sparse backend down"),
	}
	r := New(store, fakeDense{}, fakeSparse{}, "chunks")
	results, err := r.Search(context.Background(), baseQuery())
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, res := range results {
		require.True(t, res.Degraded)
		require.Equal(t, "sparse_failed", res.DegradedReason)
	}
}

func TestSearchFailsRetrievalWhenBothLegsFail(t *testing.T) {
	store := &fakeStore{denseErr: errors.New("down"), sparseErr: errors.New("down")}
	r := New(store, fakeDense{}, fakeSparse{}, "chunks")
	results, err := r.Search(context.Background(), baseQuery())
	require.ErrorIs(t, err, ErrRetrievalFailed)
	require.Len(t, results, 1)
	require.True(t, results[0].Degraded)
	require.Equal(t, "retrieval_failed", results[0].DegradedReason)
}

func TestSearchAppliesThresholdFilter(t *testing.T) {
	store := &fakeStore{
		dense:  []LegResult{{ID: "a", Score: 0.9}, {ID: "low", Score: 0.01}},
		sparse: []LegResult{},
	}
	r := New(store, fakeDense{}, fakeSparse{}, "chunks")
	q := baseQuery()
	q.Threshold = 0.02
	results, err := r.Search(context.Background(), q)
	require.NoError(t, err)
	for _, res := range results {
		require.GreaterOrEqual(t, res.EffectiveScore(), q.Threshold)
	}
}

func TestSearchOrdersByNonIncreasingScoreWithoutRerank(t *testing.T) {
	store := &fakeStore{
		dense:  []LegResult{{ID: "a", Score: 0.9}, {ID: "b", Score: 0.8}, {ID: "c", Score: 0.7}},
		sparse: []LegResult{},
	}
	r := New(store, fakeDense{}, fakeSparse{}, "chunks")
	results, err := r.Search(context.Background(), baseQuery())
	require.NoError(t, err)
	for i := 1; i < len(results); i++ {
		require.GreaterOrEqual(t, results[i-1].EffectiveScore(), results[i].EffectiveScore())
	}
}

func TestSearchRoutesCodeSyntaxQueryToCodeDenseVector(t *testing.T) {
	store := &fakeStore{
		dense:  []LegResult{{ID: "a", Score: 0.9}},
		sparse: []LegResult{{ID: "a", Score: 0.5}},
	}
	r := New(store, fakeDense{name: "text"}, fakeSparse{}, "chunks", WithCodeEmbedder(fakeDense{name: "code"}))
	q := baseQuery()
	q.Text = "call foo.bar(baz)"
	_, err := r.Search(context.Background(), q)
	require.NoError(t, err)
	require.Equal(t, CodeDenseVector, store.lastDenseVectorName)
}

func TestSearchFallsBackToTextDenseVectorWithoutCodeEmbedder(t *testing.T) {
	store := &fakeStore{
		dense:  []LegResult{{ID: "a", Score: 0.9}},
		sparse: []LegResult{{ID: "a", Score: 0.5}},
	}
	r := New(store, fakeDense{name: "text"}, fakeSparse{}, "chunks")
	q := baseQuery()
	q.Text = "call foo.bar(baz)"
	_, err := r.Search(context.Background(), q)
	require.NoError(t, err)
	require.Equal(t, TextDenseVector, store.lastDenseVectorName)
}
