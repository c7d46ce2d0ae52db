// Package retrieve orchestrates embedding, vector search, and reranking into
// an ordered evidence set for one query.
package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/david1005910/Bio2/engine/domain"
	"github.com/david1005910/Bio2/engine/embed"
	"github.com/david1005910/Bio2/engine/rerank"
	"github.com/david1005910/Bio2/engine/semantic"
)

// Options configures the retriever.
type Options struct {
	// SearchTimeout bounds the vector-index call independently of the
	// embedding and rerank timeouts.
	SearchTimeout time.Duration
	// RerankTimeout bounds the cross-encoder call.
	RerankTimeout time.Duration
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		SearchTimeout: 5 * time.Second,
		RerankTimeout: 10 * time.Second,
	}
}

// Retriever produces ordered, scored evidence for a query.
type Retriever struct {
	embedder embed.Embedder
	index    semantic.Index
	reranker rerank.Reranker
	opts     Options
	logger   *slog.Logger
}

// New creates a Retriever. reranker may be nil if reranking is never used.
func New(embedder embed.Embedder, index semantic.Index, reranker rerank.Reranker, opts Options, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		embedder: embedder,
		index:    index,
		reranker: reranker,
		opts:     opts,
		logger:   logger,
	}
}

// Retrieve returns up to k evidence items for the query, best first.
// With reranking enabled it over-fetches 2k candidates, re-scores every
// (query, chunk) pair, and resorts before truncating to k. Chunks from the
// same paper are deliberately not deduplicated: sectioned evidence from one
// paper can be independently useful. Fewer than k available candidates is
// not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, useRerank bool, filters domain.Filters) ([]domain.EvidenceItem, error) {
	if k <= 0 {
		return nil, nil
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieve: embed query: %w", err)
	}

	fetchK := k
	if useRerank {
		fetchK = 2 * k
	}

	searchCtx, cancel := context.WithTimeout(ctx, r.opts.SearchTimeout)
	defer cancel()
	hits, err := r.index.Search(searchCtx, vec, fetchK, filters)
	if err != nil {
		return nil, fmt.Errorf("retrieve: index search: %w: %v", domain.ErrIndexUnavailable, err)
	}
	r.logger.Debug("retrieve: search done", "candidates", len(hits), "k", k, "rerank", useRerank)

	if useRerank && len(hits) > 0 {
		hits, err = r.rerankHits(ctx, query, hits)
		if err != nil {
			return nil, err
		}
	}

	if len(hits) > k {
		hits = hits[:k]
	}

	evidence := make([]domain.EvidenceItem, len(hits))
	for i, h := range hits {
		evidence[i] = domain.EvidenceItem{
			PMID:     h.PMID,
			Title:    h.Title,
			Section:  h.Section,
			Text:     h.Text,
			Score:    h.Score,
			ChunkIdx: h.ChunkIndex,
		}
	}
	return evidence, nil
}

// rerankHits re-scores every candidate and stably resorts by the new score,
// so ties keep the index's insertion ordering.
func (r *Retriever) rerankHits(ctx context.Context, query string, hits []semantic.SearchResult) ([]semantic.SearchResult, error) {
	if r.reranker == nil {
		return hits, nil
	}
	passages := make([]string, len(hits))
	for i, h := range hits {
		passages[i] = h.Text
	}

	rerankCtx, cancel := context.WithTimeout(ctx, r.opts.RerankTimeout)
	defer cancel()
	scores, err := r.reranker.Scores(rerankCtx, query, passages)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	rescored := make([]semantic.SearchResult, len(hits))
	copy(rescored, hits)
	for i := range rescored {
		rescored[i].Score = scores[i]
	}
	sort.SliceStable(rescored, func(i, j int) bool {
		return rescored[i].Score > rescored[j].Score
	})
	return rescored, nil
}
