package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPDenseSendsBearerAuthorizationByDefault(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		resp := httpDenseResp{Data: []struct {
			Embedding []float32 `json:"embedding"`
		}{{Embedding: []float32{0.1, 0.2}}}}
		b, _ := json.Marshal(resp)
		w.Write(b)
	}))
	defer ts.Close()

	e := NewHTTPDense("text_dense", 2, ts.URL, "m", "secret", "", nil)
	v, err := e.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, []float32{0.1, 0.2}, v)
}

func TestHTTPDenseSendsCustomHeaderName(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "secret", r.Header.Get("x-api-key"))
		resp := httpDenseResp{Data: []struct {
			Embedding []float32 `json:"embedding"`
		}{{Embedding: []float32{1}}}}
		b, _ := json.Marshal(resp)
		w.Write(b)
	}))
	defer ts.Close()

	e := NewHTTPDense("text_dense", 1, ts.URL, "m", "secret", "x-api-key", nil)
	_, err := e.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
}

func TestHTTPDenseReturnsErrorOnCountMismatch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": []}`))
	}))
	defer ts.Close()

	e := NewHTTPDense("text_dense", 1, ts.URL, "m", "", "", nil)
	_, err := e.EmbedQuery(context.Background(), "hello")
	require.Error(t, err)
}

func TestHTTPSparseParsesIndicesAndValues(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": [{"indices": [3, 7], "values": [0.5, 0.25]}]}`))
	}))
	defer ts.Close()

	e := NewHTTPSparse("sparse", ts.URL, "m", "", "", nil)
	m, err := e.EmbedSparseQuery(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, map[uint32]float32{3: 0.5, 7: 0.25}, m)
}

func TestHTTPDenseReturnsErrorOnNonOKStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer ts.Close()

	e := NewHTTPDense("text_dense", 1, ts.URL, "m", "", "", nil)
	_, err := e.EmbedQuery(context.Background(), "hello")
	require.Error(t, err)
}
