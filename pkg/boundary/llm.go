package boundary

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"net/http"
	"time"
)

// StubEmbedder is a deterministic pseudo-embedding used for tests and
// offline use. It satisfies vectoradapter.Embedder without pulling in a
// real model — the embedding model itself is explicitly out of scope
// (spec §1).
type StubEmbedder struct {
	Dimensions int
}

// NewStubEmbedder returns a StubEmbedder with a conventional dimension.
func NewStubEmbedder() *StubEmbedder {
	return &StubEmbedder{Dimensions: 64}
}

// Embed hashes text into a fixed-size float32 vector. Two calls with the
// same text always return the same vector, which is all the retrieval
// engine's tests require of an embedder.
func (e *StubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	dims := e.Dimensions
	if dims <= 0 {
		dims = 64
	}
	out := make([]float32, dims)
	sum := sha256.Sum256([]byte(text))
	for i := range out {
		b := sum[i%len(sum):]
		if len(b) < 4 {
			b = append(append([]byte{}, b...), sum[:4-len(b)]...)
		}
		v := binary.BigEndian.Uint32(b[:4])
		out[i] = float32(v%2000)/1000.0 - 1.0
	}
	return out, nil
}

// HTTPEmbedder holds the endpoint, API key and HTTP client for a real
// embedding provider. It sends no request: Embed always returns an error.
// SPEC_FULL's Boundary adapters section frames this as "never a concrete
// model implementation" — HTTPEmbedder is wiring, not a model.
type HTTPEmbedder struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

// NewHTTPEmbedder constructs a pass-through embedder for a real provider.
func NewHTTPEmbedder(endpoint, apiKey string) *HTTPEmbedder {
	return &HTTPEmbedder{
		Endpoint: endpoint,
		APIKey:   apiKey,
		Client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Embed is unimplemented pass-through wiring; HTTPEmbedder exists to show
// where a real provider call would be made, not to make one.
func (e *HTTPEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return nil, fmt.Errorf("boundary: no embedding provider configured at %q", e.Endpoint)
}
