// Package embed maps text to L2-normalized fixed-dimension vectors using the
// biomedical encoder behind the model gateway. The encoder handle is an
// expensive shared resource: it is built lazily, at most once per process,
// and is read-only afterwards, so one handle serves all concurrent requests.
package embed

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/david1005910/Bio2/engine/domain"
	"github.com/david1005910/Bio2/pkg/modelhttp"
)

// Embedder converts text into normalized embedding vectors. Embed is a pure
// function of its input for a pinned model version; EmbedBatch preserves
// input order.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Options configures the gateway-backed embedder.
type Options struct {
	Model      string
	Dimensions int
	Timeout    time.Duration
	BatchSize  int
}

// DefaultOptions returns the reference deployment settings (PubMedBERT, 768d).
func DefaultOptions() Options {
	return Options{
		Model:      "pubmedbert-base",
		Dimensions: 768,
		Timeout:    10 * time.Second,
		BatchSize:  32,
	}
}

// Client is the model-gateway surface the embedder needs.
type Client interface {
	Embeddings(ctx context.Context, model string, texts []string) ([][]float32, error)
}

// Handle is the process-wide embedder. Construct one in main and inject it
// into the retriever and ingestion pipeline; the underlying client connection
// is dialed on first use, guarded so concurrent first callers cannot race.
type Handle struct {
	opts Options
	dial func() (Client, error)

	once   sync.Once
	client Client
	err    error
}

// NewHandle creates a lazily-initialized embedder handle. dial runs at most
// once, on the first Embed/EmbedBatch call.
func NewHandle(opts Options, dial func() (Client, error)) *Handle {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultOptions().BatchSize
	}
	return &Handle{opts: opts, dial: dial}
}

// NewGatewayHandle wires a Handle to a modelhttp client.
func NewGatewayHandle(opts Options, gatewayURL, apiKey string) *Handle {
	return NewHandle(opts, func() (Client, error) {
		return modelhttp.New(gatewayURL,
			modelhttp.WithAPIKey(apiKey),
			modelhttp.WithTimeout(opts.Timeout),
		), nil
	})
}

// Dimensions returns the encoder's output dimensionality.
func (h *Handle) Dimensions() int { return h.opts.Dimensions }

func (h *Handle) get() (Client, error) {
	h.once.Do(func() {
		h.client, h.err = h.dial()
	})
	if h.err != nil {
		return nil, fmt.Errorf("embed: init encoder: %w: %v", domain.ErrEmbeddingUnavailable, h.err)
	}
	return h.client, nil
}

// Embed returns the normalized vector for one text. Callers must treat an
// error as fatal for the request; there is no zero-vector fallback.
func (h *Handle) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := h.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in input order, batching gateway calls at the
// configured batch size for throughput.
func (h *Handle) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	client, err := h.get()
	if err != nil {
		return nil, err
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += h.opts.BatchSize {
		end := start + h.opts.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := client.Embeddings(ctx, h.opts.Model, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed: batch [%d:%d]: %w: %v", start, end, domain.ErrEmbeddingUnavailable, err)
		}
		for i, v := range vecs {
			if h.opts.Dimensions > 0 && len(v) != h.opts.Dimensions {
				return nil, fmt.Errorf("embed: vector %d has %d dims, want %d: %w",
					start+i, len(v), h.opts.Dimensions, domain.ErrEmbeddingUnavailable)
			}
			out = append(out, Normalize(v))
		}
	}
	return out, nil
}

// Normalize scales v to unit Euclidean norm so cosine similarity reduces to
// dot product. A zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// Norm returns the Euclidean norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Mean returns the arithmetic mean of the given vectors, normalized. Used for
// a paper's representative vector. Empty input returns nil.
func Mean(vecs [][]float32) []float32 {
	if len(vecs) == 0 {
		return nil
	}
	acc := make([]float64, len(vecs[0]))
	for _, v := range vecs {
		for i := range acc {
			if i < len(v) {
				acc[i] += float64(v[i])
			}
		}
	}
	out := make([]float32, len(acc))
	for i, x := range acc {
		out[i] = float32(x / float64(len(vecs)))
	}
	return Normalize(out)
}
