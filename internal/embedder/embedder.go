// Package embedder provides the capability-bearing embedder registry: one
// lazily constructed, thread-safe instance per capability class (dense
// text, dense code, sparse, late-interaction), with a deterministic
// hash-based embedder for tests.
package embedder

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
)

// Capability names one of the four embedder classes the registry can hold.
// Sparse and late-interaction are modeled as distinct variants rather than
// methods on one fat interface, because their return shapes differ: dense
// embedders return a single vector, sparse an index->weight map, and
// late-interaction a list of per-token vectors.
type Capability string

const (
	CapabilityTextDense       Capability = "text_dense"
	CapabilityCodeDense       Capability = "code_dense"
	CapabilitySparse          Capability = "sparse"
	CapabilityLateInteraction Capability = "late_interaction"
)

// DenseEmbedder is the capability surface for text_dense and code_dense.
type DenseEmbedder interface {
	Name() string
	Dimensions() int
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string, isQuery bool) ([][]float32, error)
}

// SparseEmbedder is the capability surface for the sparse (SPLADE-class)
// class: index -> positive weight.
type SparseEmbedder interface {
	Name() string
	EmbedSparseQuery(ctx context.Context, text string) (map[uint32]float32, error)
	EmbedSparseBatch(ctx context.Context, texts []string) ([]map[uint32]float32, error)
}

// LateInteractionEmbedder is the capability surface for ColBERT-class
// late-interaction embedders: a list of per-token vectors per text.
//
// Per the open question in the design notes, EmbedQuery and EmbedDocument
// expose the true multi-vector contract (the indexer's multi-vector field
// is filled through EmbedDocument); EmbedAveraged
// exposes the single-averaged-vector contract some base-class callers
// still expect (e.g. a generic DenseEmbedder adapter). Both are preserved
// rather than collapsed into one.
type LateInteractionEmbedder interface {
	Name() string
	EmbedQuery(ctx context.Context, text string) ([][]float32, error)
	EmbedDocument(ctx context.Context, text string) ([][]float32, error)
	EmbedAveraged(ctx context.Context, text string) ([]float32, error)
}

// Factory constructs one embedder instance for a capability, invoked at
// most once (on first Get) per capability.
type Factory func() (any, error)

// Registry lazily constructs and caches one embedder per capability under a
// per-capability lock so concurrent first-access callers don't race to
// construct duplicate (possibly model-downloading) instances.
type Registry struct {
	mu        sync.Mutex
	factories map[Capability]Factory
	once      map[Capability]*sync.Once
	instances map[Capability]any
	errs      map[Capability]error
}

// NewRegistry builds a Registry from a set of factories, one per capability
// the caller intends to support. Capabilities absent from factories simply
// return an error from Get.
func NewRegistry(factories map[Capability]Factory) *Registry {
	r := &Registry{
		factories: factories,
		once:      make(map[Capability]*sync.Once, len(factories)),
		instances: make(map[Capability]any, len(factories)),
		errs:      make(map[Capability]error, len(factories)),
	}
	for c := range factories {
		r.once[c] = &sync.Once{}
	}
	return r
}

// get resolves the singleton instance for a capability, constructing it on
// first access. A construction failure is cached and removed from future
// consideration for OTHER capabilities' sake — i.e. it never propagates to
// callers asking for a different capability — but is returned to every
// caller of this same capability.
func (r *Registry) get(cap Capability) (any, error) {
	r.mu.Lock()
	once, ok := r.once[cap]
	factory := r.factories[cap]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("embedder: no factory registered for capability %q", cap)
	}

	once.Do(func() {
		inst, err := factory()
		r.mu.Lock()
		if err != nil {
			r.errs[cap] = err
		} else {
			r.instances[cap] = inst
		}
		r.mu.Unlock()
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.errs[cap]; ok {
		return nil, err
	}
	return r.instances[cap], nil
}

func (r *Registry) TextDense() (DenseEmbedder, error) {
	v, err := r.get(CapabilityTextDense)
	if err != nil {
		return nil, err
	}
	return v.(DenseEmbedder), nil
}

func (r *Registry) CodeDense() (DenseEmbedder, error) {
	v, err := r.get(CapabilityCodeDense)
	if err != nil {
		return nil, err
	}
	return v.(DenseEmbedder), nil
}

func (r *Registry) Sparse() (SparseEmbedder, error) {
	v, err := r.get(CapabilitySparse)
	if err != nil {
		return nil, err
	}
	return v.(SparseEmbedder), nil
}

func (r *Registry) LateInteraction() (LateInteractionEmbedder, error) {
	v, err := r.get(CapabilityLateInteraction)
	if err != nil {
		return nil, err
	}
	return v.(LateInteractionEmbedder), nil
}

// ---- deterministic test embedders ----

// deterministicDense hashes byte 3-grams into a fixed-size, L2-normalized
// vector. It is fast, requires no network, and is stable across calls for
// the same input — suitable for retriever and indexer tests.
type deterministicDense struct {
	dim  int
	name string
	seed uint64
}

// NewDeterministicDense constructs a DenseEmbedder that needs no model or
// network access, for use in tests and local development.
func NewDeterministicDense(name string, dim int, seed uint64) DenseEmbedder {
	if dim <= 0 {
		dim = 64
	}
	return &deterministicDense{dim: dim, name: name, seed: seed}
}

func (d *deterministicDense) Name() string    { return d.name }
func (d *deterministicDense) Dimensions() int { return d.dim }

func (d *deterministicDense) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return d.embedOne(text), nil
}

func (d *deterministicDense) EmbedDocument(_ context.Context, text string) ([]float32, error) {
	return d.embedOne(text), nil
}

func (d *deterministicDense) EmbedBatch(_ context.Context, texts []string, _ bool) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = d.embedOne(t)
	}
	return out, nil
}

func (d *deterministicDense) embedOne(s string) []float32 {
	v := make([]float32, d.dim)
	hashGrams(d.seed, s, v)
	normalize(v)
	return v
}

// deterministicSparse hashes words into a small fixed vocabulary space with
// positive weights, mimicking a SPLADE-class sparse embedder's shape.
type deterministicSparse struct {
	name      string
	vocabSize uint32
}

func NewDeterministicSparse(name string, vocabSize uint32) SparseEmbedder {
	if vocabSize == 0 {
		vocabSize = 30000
	}
	return &deterministicSparse{name: name, vocabSize: vocabSize}
}

func (d *deterministicSparse) Name() string { return d.name }

func (d *deterministicSparse) EmbedSparseQuery(_ context.Context, text string) (map[uint32]float32, error) {
	return d.embedOne(text), nil
}

func (d *deterministicSparse) EmbedSparseBatch(_ context.Context, texts []string) ([]map[uint32]float32, error) {
	out := make([]map[uint32]float32, len(texts))
	for i, t := range texts {
		out[i] = d.embedOne(t)
	}
	return out, nil
}

func (d *deterministicSparse) embedOne(s string) map[uint32]float32 {
	out := map[uint32]float32{}
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ' ' {
			if i > start {
				word := s[start:i]
				h := fnv.New32a()
				_, _ = h.Write([]byte(word))
				idx := h.Sum32() % d.vocabSize
				out[idx] += 1.0
			}
			start = i + 1
		}
	}
	return out
}

// deterministicLate produces a short list of per-token vectors, one per
// word, for late-interaction (ColBERT-class) tests.
type deterministicLate struct {
	name string
	dim  int
}

func NewDeterministicLateInteraction(name string, dim int) LateInteractionEmbedder {
	if dim <= 0 {
		dim = 32
	}
	return &deterministicLate{name: name, dim: dim}
}

func (d *deterministicLate) Name() string { return d.name }

func (d *deterministicLate) EmbedQuery(_ context.Context, text string) ([][]float32, error) {
	return d.tokenVectors(text), nil
}

func (d *deterministicLate) EmbedDocument(_ context.Context, text string) ([][]float32, error) {
	return d.tokenVectors(text), nil
}

// EmbedAveraged averages the per-token vectors into one, preserving the
// base-class compatibility contract called out in the design notes.
func (d *deterministicLate) EmbedAveraged(ctx context.Context, text string) ([]float32, error) {
	toks := d.tokenVectors(text)
	if len(toks) == 0 {
		return make([]float32, d.dim), nil
	}
	avg := make([]float32, d.dim)
	for _, t := range toks {
		for i, x := range t {
			avg[i] += x
		}
	}
	for i := range avg {
		avg[i] /= float32(len(toks))
	}
	return avg, nil
}

func (d *deterministicLate) tokenVectors(text string) [][]float32 {
	var toks [][]float32
	start := 0
	for i := 0; i <= len(text); i++ {
		if i == len(text) || text[i] == ' ' {
			if i > start {
				v := make([]float32, d.dim)
				hashGrams(0, text[start:i], v)
				normalize(v)
				toks = append(toks, v)
			}
			start = i + 1
		}
	}
	return toks
}

func hashGrams(seed uint64, s string, v []float32) {
	b := []byte(s)
	if len(b) == 0 {
		return
	}
	if len(b) < 3 {
		addGram(seed, b, v)
		return
	}
	for i := 0; i <= len(b)-3; i++ {
		addGram(seed, b[i:i+3], v)
	}
}

func addGram(seed uint64, gram []byte, v []float32) {
	h := fnv.New64a()
	if seed != 0 {
		var tmp [8]byte
		for i := 0; i < 8; i++ {
			tmp[i] = byte(seed >> (8 * i))
		}
		_, _ = h.Write(tmp[:])
	}
	_, _ = h.Write(gram)
	hv := h.Sum64()
	idx := int(hv % uint64(len(v)))
	w := float32(int32(hv>>32)) / float32(1<<31)
	v[idx] += w
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum <= 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
