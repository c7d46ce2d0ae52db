// Package rerank re-scores a candidate chunk set against a query using the
// cross-encoder behind the model gateway. Like the embedder, the model handle
// is lazy and shared process-wide.
package rerank

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/david1005910/Bio2/engine/domain"
	"github.com/david1005910/Bio2/pkg/modelhttp"
)

// Reranker scores (query, passage) pairs; higher means more relevant.
// Scores returns one score per passage, in passage order.
type Reranker interface {
	Scores(ctx context.Context, query string, passages []string) ([]float32, error)
}

// Client is the model-gateway surface the reranker needs.
type Client interface {
	Rerank(ctx context.Context, model, query string, documents []string) ([]float32, error)
}

// Options configures the gateway-backed reranker.
type Options struct {
	Model   string
	Timeout time.Duration
}

// DefaultOptions returns the reference cross-encoder settings.
func DefaultOptions() Options {
	return Options{
		Model:   "ms-marco-minilm-l12",
		Timeout: 10 * time.Second,
	}
}

// Handle is the lazily-initialized process-wide reranker.
type Handle struct {
	opts Options
	dial func() (Client, error)

	once   sync.Once
	client Client
	err    error
}

// NewHandle creates a reranker handle; dial runs at most once.
func NewHandle(opts Options, dial func() (Client, error)) *Handle {
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

// Scores implements Reranker.
func (h *Handle) Scores(ctx context.Context, query string, passages []string) ([]float32, error) {
	if len(passages) == 0 {
		return nil, nil
	}
	h.once.Do(func() {
		h.client, h.err = h.dial()
	})
	if h.err != nil {
		return nil, fmt.Errorf("rerank: init model: %w: %v", domain.ErrRerankUnavailable, h.err)
	}
	scores, err := h.client.Rerank(ctx, h.opts.Model, query, passages)
	if err != nil {
		return nil, fmt.Errorf("rerank: score %d passages: %w: %v", len(passages), domain.ErrRerankUnavailable, err)
	}
	return scores, nil
}
