package rerank

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPTierRunnerParsesResultsByIndex(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[{"index":1,"relevance_score":0.9},{"index":0,"relevance_score":0.2}]}`))
	}))
	defer ts.Close()

	runner := HTTPTierRunner{URL: ts.URL, Model: "cross-encoder"}
	scored, err := runner.Run(context.Background(), "q", []Candidate{{Text: "a", OriginalIndex: 10}, {Text: "b", OriginalIndex: 20}}, 10)
	require.NoError(t, err)
	require.Len(t, scored, 2)
	require.Equal(t, 20, scored[0].OriginalIndex)
	require.Equal(t, 0.9, scored[0].Score)
}

func TestHTTPTierRunnerTruncatesToTopK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[{"index":0,"relevance_score":0.9},{"index":1,"relevance_score":0.8},{"index":2,"relevance_score":0.7}]}`))
	}))
	defer ts.Close()

	runner := HTTPTierRunner{URL: ts.URL}
	scored, err := runner.Run(context.Background(), "q", []Candidate{{OriginalIndex: 0}, {OriginalIndex: 1}, {OriginalIndex: 2}}, 2)
	require.NoError(t, err)
	require.Len(t, scored, 2)
}

func TestHTTPTierRunnerReturnsErrorOnNonOKStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	runner := HTTPTierRunner{URL: ts.URL}
	_, err := runner.Run(context.Background(), "q", []Candidate{{OriginalIndex: 0}}, 1)
	require.Error(t, err)
}
