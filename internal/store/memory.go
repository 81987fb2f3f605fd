package store

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/vectorlane/memquery/internal/retrieve"
)

type memoryPoint struct {
	dense   map[string][]float32
	sparse  map[uint32]float32
	payload map[string]any
}

// MemoryStore is an in-process cosine-similarity vector store, generalized
// from a single unnamed vector to named dense vectors plus one sparse
// vector per collection, for use in tests and local development without a
// running Qdrant instance.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]memoryPoint // collection -> id -> point
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]memoryPoint)}
}

func (m *MemoryStore) UpsertBatch(_ context.Context, collection string, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.collections[collection]
	if !ok {
		coll = make(map[string]memoryPoint)
		m.collections[collection] = coll
	}
	for _, p := range points {
		dense := make(map[string][]float32, len(p.DenseVectors))
		for name, v := range p.DenseVectors {
			cp := make([]float32, len(v))
			copy(cp, v)
			dense[name] = cp
		}
		var sparse map[uint32]float32
		if p.SparseVector != nil {
			sparse = make(map[uint32]float32, len(p.SparseVector))
			for k, v := range p.SparseVector {
				sparse[k] = v
			}
		}
		payload := make(map[string]any, len(p.Payload))
		for k, v := range p.Payload {
			payload[k] = v
		}
		coll[p.ID] = memoryPoint{dense: dense, sparse: sparse, payload: payload}
	}
	return nil
}

func (m *MemoryStore) SearchDense(_ context.Context, collection, vectorName string, vector []float32, k int, filter retrieve.StoreFilter) ([]retrieve.LegResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 {
		k = 10
	}
	coll := m.collections[collection]
	qnorm := l2norm(vector)
	out := make([]retrieve.LegResult, 0, len(coll))
	for id, p := range coll {
		v, ok := p.dense[vectorName]
		if !ok || !matchesFilter(p.payload, filter) {
			continue
		}
		out = append(out, retrieve.LegResult{ID: id, Score: cosine(vector, v, qnorm), Payload: p.payload})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (m *MemoryStore) SearchSparse(_ context.Context, collection string, sparse map[uint32]float32, k int, filter retrieve.StoreFilter) ([]retrieve.LegResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 {
		k = 10
	}
	coll := m.collections[collection]
	out := make([]retrieve.LegResult, 0, len(coll))
	for id, p := range coll {
		if p.sparse == nil || !matchesFilter(p.payload, filter) {
			continue
		}
		out = append(out, retrieve.LegResult{ID: id, Score: sparseDot(sparse, p.sparse), Payload: p.payload})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func matchesFilter(payload map[string]any, f retrieve.StoreFilter) bool {
	if f.TenantID != "" {
		if v, _ := payload["tenant_id"].(string); v != f.TenantID {
			return false
		}
	}
	if f.SessionID != "" {
		if v, _ := payload["session_id"].(string); v != f.SessionID {
			return false
		}
	}
	if f.Type != "" {
		if v, _ := payload["type"].(string); v != f.Type {
			return false
		}
	}
	return true
}

func sparseDot(a, b map[uint32]float32) float64 {
	var sum float64
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	for idx, v := range small {
		if w, ok := large[idx]; ok {
			sum += float64(v) * float64(w)
		}
	}
	return sum
}

func l2norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func cosine(a, b []float32, anorm float64) float64 {
	if anorm == 0 {
		anorm = l2norm(a)
	}
	bnorm := l2norm(b)
	if anorm == 0 || bnorm == 0 {
		return 0
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (anorm * bnorm)
}
