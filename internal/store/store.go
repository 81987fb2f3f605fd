// Package store implements the vector-store collaborator: named dense
// vectors, one sparse vector, and an optional multi-vector field for
// late-interaction ranking, upserted and searched as a single unit per
// spec §3 (Point) and §6 (vector store contract).
//
// QdrantStore is the production adapter over github.com/qdrant/go-client.
// MemoryStore is an in-process fake used by tests and local development; it
// implements the identical Store/Writer contracts so the retriever,
// indexer, and session-aware retriever never need to know which backend
// they're talking to.
package store

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/vectorlane/memquery/internal/retrieve"
)

// PayloadIDField preserves a caller-supplied id that doesn't round-trip as
// a native Qdrant point id (Qdrant only accepts UUIDs or unsigned
// integers), mirroring the teacher's PAYLOAD_ID_FIELD convention.
const PayloadIDField = "_original_id"

// Point is the store-facing record assembled by the indexer from a
// Document plus its embeddings.
type Point struct {
	ID              string
	DenseVectors    map[string][]float32   // e.g. "text_dense", "code_dense"
	SparseName      string                 // e.g. "text_sparse"; empty if no sparse vector
	SparseVector    map[uint32]float32
	MultiVectorName string // e.g. "turn_colbert"; empty if ColBERT disabled for this collection
	MultiVector     [][]float32
	Payload         map[string]any
}

// ErrVectorSchemaMismatch names the condition of a Point carrying vector
// names the target collection doesn't declare, or omitting one it requires.
// No code path in this package returns it: UpsertBatch does not compare a
// Point's vector names with the collection schema.
var ErrVectorSchemaMismatch = fmt.Errorf("store: point vector names do not match collection schema")

// Writer is the indexer-facing half of the store contract: batch upsert.
// Neither implementation checks vector names against a collection schema.
type Writer interface {
	UpsertBatch(ctx context.Context, collection string, points []Point) error
}

// QdrantStore adapts a Qdrant gRPC client to retrieve.Store and Writer.
type QdrantStore struct {
	client *qdrant.Client
}

// NewQdrantStore connects to Qdrant over gRPC. dsn is a URL like
// "http://localhost:6334?api_key=...".
func NewQdrantStore(dsn string) (*QdrantStore, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	portStr := parsed.Port()
	if portStr == "" {
		portStr = "6334"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("store: invalid port in dsn: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: port}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("store: create qdrant client: %w", err)
	}
	return &QdrantStore{client: client}, nil
}

func (q *QdrantStore) Close() error { return q.client.Close() }

// pointID maps an opaque document id to a Qdrant-legal point id, preserving
// the original in the payload when a conversion was necessary.
func pointID(id string) (*qdrant.PointId, string) {
	if _, err := uuid.Parse(id); err == nil {
		return qdrant.NewIDUUID(id), ""
	}
	derived := uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
	return qdrant.NewIDUUID(derived), id
}

// UpsertBatch assembles one PointStruct per Point and issues a single
// Upsert call, satisfying the spec's "atomic from the indexer's view"
// requirement: one store call covers the whole batch.
func (q *QdrantStore) UpsertBatch(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	structs := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		id, original := pointID(p.ID)
		payload := make(map[string]any, len(p.Payload)+1)
		for k, v := range p.Payload {
			payload[k] = v
		}
		if original != "" {
			payload[PayloadIDField] = original
		}

		named := make(map[string]*qdrant.Vector, len(p.DenseVectors)+2)
		for name, vec := range p.DenseVectors {
			named[name] = qdrant.NewVector(vec...)
		}
		if p.SparseName != "" {
			indices, values := sparseToArrays(p.SparseVector)
			named[p.SparseName] = qdrant.NewVectorSparse(indices, values)
		}
		if p.MultiVectorName != "" && len(p.MultiVector) > 0 {
			named[p.MultiVectorName] = qdrant.NewVectorMulti(p.MultiVector)
		}

		structs = append(structs, &qdrant.PointStruct{
			Id:      id,
			Vectors: qdrant.NewVectorsMap(named),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         structs,
	})
	if err != nil {
		return fmt.Errorf("store: upsert batch of %d points: %w", len(points), err)
	}
	return nil
}

// SearchDense implements retrieve.Store.
func (q *QdrantStore) SearchDense(ctx context.Context, collection, vectorName string, vector []float32, k int, filter retrieve.StoreFilter) ([]retrieve.LegResult, error) {
	if k <= 0 {
		k = 10
	}
	limit := uint64(k)
	resp, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQueryDense(vector),
		Using:          &vectorName,
		Limit:          &limit,
		Filter:         toQdrantFilter(filter),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("store: dense search on %q: %w", vectorName, err)
	}
	return toLegResults(resp), nil
}

// SearchSparse implements retrieve.Store.
func (q *QdrantStore) SearchSparse(ctx context.Context, collection string, sparse map[uint32]float32, k int, filter retrieve.StoreFilter) ([]retrieve.LegResult, error) {
	if k <= 0 {
		k = 10
	}
	indices, values := sparseToArrays(sparse)
	limit := uint64(k)
	resp, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuerySparse(indices, values),
		Limit:          &limit,
		Filter:         toQdrantFilter(filter),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("store: sparse search: %w", err)
	}
	return toLegResults(resp), nil
}

func toLegResults(hits []*qdrant.ScoredPoint) []retrieve.LegResult {
	out := make([]retrieve.LegResult, 0, len(hits))
	for _, hit := range hits {
		id := hit.Id.GetUuid()
		payload := make(map[string]any, len(hit.Payload))
		var original string
		for k, v := range hit.Payload {
			if k == PayloadIDField {
				original = v.GetStringValue()
				continue
			}
			payload[k] = valueToAny(v)
		}
		if original != "" {
			id = original
		}
		out = append(out, retrieve.LegResult{ID: id, Score: float64(hit.Score), Payload: payload})
	}
	return out
}

func valueToAny(v *qdrant.Value) any {
	switch {
	case v.GetStringValue() != "":
		return v.GetStringValue()
	case v.GetIntegerValue() != 0:
		return v.GetIntegerValue()
	case v.GetDoubleValue() != 0:
		return v.GetDoubleValue()
	case v.GetBoolValue():
		return true
	default:
		return v.GetStringValue()
	}
}

func sparseToArrays(m map[uint32]float32) ([]uint32, []float32) {
	indices := make([]uint32, 0, len(m))
	for idx := range m {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	values := make([]float32, len(indices))
	for i, idx := range indices {
		values[i] = m[idx]
	}
	return indices, values
}

func toQdrantFilter(f retrieve.StoreFilter) *qdrant.Filter {
	must := make([]*qdrant.Condition, 0, 4)
	if f.TenantID != "" {
		must = append(must, qdrant.NewMatch("tenant_id", f.TenantID))
	}
	if f.SessionID != "" {
		must = append(must, qdrant.NewMatch("session_id", f.SessionID))
	}
	if f.Type != "" {
		must = append(must, qdrant.NewMatch("type", f.Type))
	}
	if f.StartMillis > 0 || f.EndMillis > 0 {
		r := &qdrant.Range{}
		if f.StartMillis > 0 {
			v := float64(f.StartMillis)
			r.Gte = &v
		}
		if f.EndMillis > 0 {
			v := float64(f.EndMillis)
			r.Lte = &v
		}
		must = append(must, qdrant.NewRange("created_at_ms", r))
	}
	if f.VTEndAfter > 0 {
		v := float64(f.VTEndAfter)
		must = append(must, qdrant.NewRange("vt_end_ms", &qdrant.Range{Gte: &v}))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}
