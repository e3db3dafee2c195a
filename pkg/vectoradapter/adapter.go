// Package vectoradapter is the thin facade over an external embedding
// function and an external ANN store named in spec §4.2. No other
// component talks to either directly.
package vectoradapter

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"
)

// Embedder is the opaque embed(text) → vector function named in spec §1
// ("the embedding model itself... treated as an opaque function"). The
// real provider lives behind pkg/boundary/llm.go; StubEmbedder here backs
// tests and offline use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Hit is one result of Query: distance ∈ [0,2], similarity = 1 - distance
// (spec §4.2).
type Hit struct {
	ID       string
	Distance float32
}

// vectorRow is what the in-process ANN stand-in stores per id.
type vectorRow struct {
	vector   []float32
	metadata map[string]string
}

// Adapter is the facade over the embedder and the ANN store. The ANN store
// itself is out of scope (spec §1: "treated as a key-value store of
// id→vector with k-NN query"); Adapter's in-process map plays that role so
// the rest of the system can be exercised without a real external service.
type Adapter struct {
	embedder Embedder
	log      *slog.Logger

	mu          sync.RWMutex
	collections map[string]map[string]vectorRow

	queue *batchQueue
}

// New constructs an Adapter with the given embedder and batching
// parameters (spec §4.2: "bounded size... and a flush interval").
func New(embedder Embedder, batchSize int, flushInterval time.Duration) *Adapter {
	a := &Adapter{
		embedder:    embedder,
		log:         slog.With("component", "vectoradapter"),
		collections: map[string]map[string]vectorRow{},
	}
	a.queue = newBatchQueue(a, batchSize, flushInterval)
	return a
}

// Upsert enqueues (collection, id, text, metadata) for batched embedding
// and write, chunking large texts first (spec §4.2).
func (a *Adapter) Upsert(collection, id, text string, metadata map[string]string) {
	for _, c := range Chunk(id, text) {
		a.queue.enqueue(upsertJob{collection: collection, id: c.ID, text: c.Text, metadata: metadata})
	}
}

// Close drains the batch queue, flushing any pending writes before the
// process exits (spec §4.2: "on process exit the queue is drained").
func (a *Adapter) Close() {
	a.queue.drainAndStop()
}

// HealthCheck pings the embedder before first use (spec §4.2).
func (a *Adapter) HealthCheck(ctx context.Context) error {
	_, err := a.embedder.Embed(ctx, "healthcheck")
	if err != nil {
		return fmt.Errorf("vector adapter health check: %w", err)
	}
	return nil
}

// ResetCollection drops and recreates a collection.
func (a *Adapter) ResetCollection(collection string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.collections[collection] = map[string]vectorRow{}
}

// upsertOne embeds text and writes (id, vector, metadata) directly,
// bypassing the batch queue — used by the queue's flush goroutine.
func (a *Adapter) upsertOne(ctx context.Context, collection, id, text string, metadata map[string]string) error {
	vec, err := a.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed %s/%s: %w", collection, id, err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.collections[collection] == nil {
		a.collections[collection] = map[string]vectorRow{}
	}
	a.collections[collection][id] = vectorRow{vector: vec, metadata: metadata}
	return nil
}

// Query runs k-NN search over collection, returning up to k hits ordered
// by ascending distance, filtered by the metadata conjunction in filter
// (spec §4.2 "Filter contract").
func (a *Adapter) Query(ctx context.Context, collection, text string, k int, filter map[string]string) ([]Hit, error) {
	qvec, err := a.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	a.mu.RLock()
	rows := a.collections[collection]
	hits := make([]Hit, 0, len(rows))
	for id, row := range rows {
		if !matchesFilter(row.metadata, filter) {
			continue
		}
		hits = append(hits, Hit{ID: id, Distance: cosineDistance(qvec, row.vector)})
	}
	a.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func matchesFilter(metadata, filter map[string]string) bool {
	for k, v := range filter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

// cosineDistance maps cosine similarity ∈ [-1,1] onto SQL-friendly
// distance ∈ [0,2], matching spec §4.2's stated distance range.
func cosineDistance(a, b []float32) float32 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 2
	}
	var dot, na, nb float32
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 2
	}
	cos := dot / float32(math.Sqrt(float64(na))*math.Sqrt(float64(nb)))
	if cos > 1 {
		cos = 1
	}
	if cos < -1 {
		cos = -1
	}
	return 1 - cos
}
