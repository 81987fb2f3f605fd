package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// httpEmbedReq is the wire request shape the HTTP-backed embedders send,
// carried over from the teacher's embedding client.
type httpEmbedReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type httpDenseResp struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type httpSparseResp struct {
	Data []struct {
		Indices []uint32  `json:"indices"`
		Values  []float32 `json:"values"`
	} `json:"data"`
}

// HTTPDense is a DenseEmbedder backed by a remote embedding endpoint,
// grounded on the teacher's embedding.EmbedText POST-and-decode shape.
type HTTPDense struct {
	client    *http.Client
	url       string
	apiKey    string
	apiHeader string
	model     string
	name      string
	dim       int
	timeout   time.Duration
}

// NewHTTPDense constructs an HTTP-backed dense embedder. client, if nil,
// defaults to http.DefaultClient; callers normally pass one wrapped by
// telemetry.NewHTTPClient so outbound calls get a span.
func NewHTTPDense(name string, dim int, url, model, apiKey, apiHeader string, client *http.Client) *HTTPDense {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPDense{client: client, url: url, apiKey: apiKey, apiHeader: apiHeader, model: model, name: name, dim: dim, timeout: 30 * time.Second}
}

func (h *HTTPDense) Name() string    { return h.name }
func (h *HTTPDense) Dimensions() int { return h.dim }

func (h *HTTPDense) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	out, err := h.EmbedBatch(ctx, []string{text}, true)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (h *HTTPDense) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	out, err := h.EmbedBatch(ctx, []string{text}, false)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (h *HTTPDense) EmbedBatch(ctx context.Context, texts []string, _ bool) ([][]float32, error) {
	var resp httpDenseResp
	if err := h.post(ctx, texts, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedder: %s returned %d embeddings for %d inputs", h.name, len(resp.Data), len(texts))
	}
	out := make([][]float32, len(resp.Data))
	for i := range resp.Data {
		out[i] = resp.Data[i].Embedding
	}
	return out, nil
}

// HTTPSparse is a SparseEmbedder backed by a remote embedding endpoint
// returning index/value pairs (e.g. a SPLADE-class model).
type HTTPSparse struct {
	client    *http.Client
	url       string
	apiKey    string
	apiHeader string
	model     string
	name      string
	timeout   time.Duration
}

func NewHTTPSparse(name, url, model, apiKey, apiHeader string, client *http.Client) *HTTPSparse {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSparse{client: client, url: url, apiKey: apiKey, apiHeader: apiHeader, model: model, name: name, timeout: 30 * time.Second}
}

func (h *HTTPSparse) Name() string { return h.name }

func (h *HTTPSparse) EmbedSparseQuery(ctx context.Context, text string) (map[uint32]float32, error) {
	out, err := h.EmbedSparseBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (h *HTTPSparse) EmbedSparseBatch(ctx context.Context, texts []string) ([]map[uint32]float32, error) {
	var resp httpSparseResp
	if err := h.post(ctx, texts, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedder: %s returned %d embeddings for %d inputs", h.name, len(resp.Data), len(texts))
	}
	out := make([]map[uint32]float32, len(resp.Data))
	for i, d := range resp.Data {
		m := make(map[uint32]float32, len(d.Indices))
		for j, idx := range d.Indices {
			if j < len(d.Values) {
				m[idx] = d.Values[j]
			}
		}
		out[i] = m
	}
	return out, nil
}

func (h *HTTPSparse) post(ctx context.Context, texts []string, out any) error {
	return doEmbedPost(ctx, h.client, h.url, h.model, h.apiKey, h.apiHeader, h.timeout, texts, out)
}

func (h *HTTPDense) post(ctx context.Context, texts []string, out any) error {
	return doEmbedPost(ctx, h.client, h.url, h.model, h.apiKey, h.apiHeader, h.timeout, texts, out)
}

func doEmbedPost(ctx context.Context, client *http.Client, url, model, apiKey, apiHeader string, timeout time.Duration, texts []string, out any) error {
	if len(texts) == 0 {
		return fmt.Errorf("embedder: no inputs")
	}
	body, err := json.Marshal(httpEmbedReq{Model: model, Input: texts})
	if err != nil {
		return fmt.Errorf("embedder: marshal request: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(cctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("embedder: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		if apiHeader == "" || apiHeader == "Authorization" {
			req.Header.Set("Authorization", "Bearer "+apiKey)
		} else {
			req.Header.Set(apiHeader, apiKey)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("embedder: request failed: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("embedder: read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("embedder: endpoint returned %s: %s", resp.Status, string(b))
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("embedder: parse response: %w", err)
	}
	return nil
}
