// Package search provides paper-level semantic search: query expansion,
// vector search over chunks, best-chunk aggregation per paper, optional
// cross-encoder reranking, and sorted, paginated results.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/david1005910/Bio2/engine/citegraph"
	"github.com/david1005910/Bio2/engine/domain"
	"github.com/david1005910/Bio2/engine/embed"
	"github.com/david1005910/Bio2/engine/rerank"
	"github.com/david1005910/Bio2/engine/semantic"
)

// Sort orders for search results.
const (
	SortRelevance = "relevance"
	SortDate      = "date"
	SortCitations = "citations"
)

// Request is one search call.
type Request struct {
	Query    string         `json:"query"`
	Filters  domain.Filters `json:"filters,omitzero"`
	SortBy   string         `json:"sort_by,omitempty"`
	Page     int            `json:"page,omitempty"`
	PageSize int            `json:"page_size,omitempty"`
	Rerank   bool           `json:"rerank"`
}

// Result is one paper in a search response, with the best chunk score as its
// relevance.
type Result struct {
	PMID           string   `json:"pmid"`
	Title          string   `json:"title"`
	Journal        string   `json:"journal,omitempty"`
	Year           int      `json:"year,omitempty"`
	RelevanceScore float32  `json:"relevance_score"`
	CitationCount  int      `json:"citation_count"`
	MatchedChunks  []string `json:"matched_chunks,omitempty"`
}

// Response carries one page of results plus pagination metadata.
type Response struct {
	Results     []Result `json:"results"`
	Total       int      `json:"total"`
	Page        int      `json:"page"`
	QueryTimeMS int64    `json:"query_time_ms"`
}

// Options configures the search service.
type Options struct {
	// OverFetch multiplies the chunk fetch size so per-paper aggregation
	// still fills a page.
	OverFetch int
	// MatchedChunkLimit caps excerpts returned per paper.
	MatchedChunkLimit int
	// ExcerptLen bounds each matched-chunk excerpt, in runes.
	ExcerptLen int
	// DefaultPageSize applies when the request does not set one.
	DefaultPageSize int
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		OverFetch:         3,
		MatchedChunkLimit: 3,
		ExcerptLen:        200,
		DefaultPageSize:   10,
	}
}

// Service runs paper-level search. reranker and graph may be nil.
type Service struct {
	embedder embed.Embedder
	index    semantic.Index
	reranker rerank.Reranker
	graph    citegraph.Graph
	opts     Options
	logger   *slog.Logger
}

// New creates a search service.
func New(embedder embed.Embedder, index semantic.Index, reranker rerank.Reranker, graph citegraph.Graph, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		embedder: embedder,
		index:    index,
		reranker: reranker,
		graph:    graph,
		opts:     opts,
		logger:   logger,
	}
}

// Search answers one search request.
func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	if strings.TrimSpace(req.Query) == "" {
		return nil, domain.NewValidationError("query", req.Query, domain.ErrEmptyQuestion)
	}
	page := req.Page
	if page <= 0 {
		page = 1
	}
	size := req.PageSize
	if size <= 0 {
		size = s.opts.DefaultPageSize
	}

	vec, err := s.embedder.Embed(ctx, ExpandQuery(req.Query))
	if err != nil {
		return nil, fmt.Errorf("search: embed query: %w", err)
	}

	fetch := s.opts.OverFetch * page * size
	hits, err := s.index.Search(ctx, vec, fetch, req.Filters)
	if err != nil {
		return nil, fmt.Errorf("search: index: %w: %v", domain.ErrIndexUnavailable, err)
	}

	papers := s.aggregate(hits)

	if req.Rerank && s.reranker != nil && len(papers) > 1 {
		papers, err = s.rerankPapers(ctx, req.Query, papers)
		if err != nil {
			return nil, err
		}
	}

	s.enrich(ctx, papers)
	sortPapers(papers, req.SortBy)

	total := len(papers)
	papers = paginate(papers, page, size)

	results := make([]Result, len(papers))
	for i, p := range papers {
		results[i] = Result{
			PMID:           p.pmid,
			Title:          p.title,
			Journal:        p.journal,
			Year:           p.year,
			RelevanceScore: p.score,
			CitationCount:  p.citationCount,
			MatchedChunks:  p.excerpts,
		}
	}
	return &Response{
		Results:     results,
		Total:       total,
		Page:        page,
		QueryTimeMS: time.Since(start).Milliseconds(),
	}, nil
}

type paperHit struct {
	pmid          string
	title         string
	journal       string
	year          int
	score         float32
	citationCount int
	bestChunk     string
	excerpts      []string
}

// aggregate groups chunk hits by paper, keeping the best chunk score and up
// to MatchedChunkLimit excerpts per paper. Output is score-descending.
func (s *Service) aggregate(hits []semantic.SearchResult) []*paperHit {
	byPMID := make(map[string]*paperHit)
	var order []*paperHit
	for _, h := range hits {
		if h.PMID == "" {
			continue
		}
		p, ok := byPMID[h.PMID]
		if !ok {
			p = &paperHit{
				pmid:      h.PMID,
				title:     h.Title,
				journal:   h.Journal,
				year:      h.Year,
				score:     h.Score,
				bestChunk: h.Text,
			}
			byPMID[h.PMID] = p
			order = append(order, p)
		} else if h.Score > p.score {
			p.score = h.Score
			p.bestChunk = h.Text
		}
		if len(p.excerpts) < s.opts.MatchedChunkLimit {
			p.excerpts = append(p.excerpts, clip(h.Text, s.opts.ExcerptLen))
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return order[i].score > order[j].score
	})
	return order
}

// rerankPapers re-scores each paper using its title plus best chunk.
func (s *Service) rerankPapers(ctx context.Context, query string, papers []*paperHit) ([]*paperHit, error) {
	passages := make([]string, len(papers))
	for i, p := range papers {
		passages[i] = p.title + " " + p.bestChunk
	}
	scores, err := s.reranker.Scores(ctx, query, passages)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	for i, p := range papers {
		p.score = scores[i]
	}
	sort.SliceStable(papers, func(i, j int) bool {
		return papers[i].score > papers[j].score
	})
	return papers, nil
}

func (s *Service) enrich(ctx context.Context, papers []*paperHit) {
	if s.graph == nil || len(papers) == 0 {
		return
	}
	pmids := make([]string, len(papers))
	for i, p := range papers {
		pmids[i] = p.pmid
	}
	metas, err := s.graph.Papers(ctx, pmids)
	if err != nil {
		s.logger.Warn("search: metadata lookup failed, continuing", "err", err)
		return
	}
	for _, p := range papers {
		if m, ok := metas[p.pmid]; ok {
			p.citationCount = m.CitationCount
			if p.title == "" {
				p.title = m.Title
			}
			if p.year == 0 {
				p.year = m.Year
			}
		}
	}
}

func sortPapers(papers []*paperHit, sortBy string) {
	switch sortBy {
	case SortDate:
		sort.SliceStable(papers, func(i, j int) bool {
			return papers[i].year > papers[j].year
		})
	case SortCitations:
		sort.SliceStable(papers, func(i, j int) bool {
			return papers[i].citationCount > papers[j].citationCount
		})
	}
	// relevance keeps the score ordering
}

func paginate(papers []*paperHit, page, size int) []*paperHit {
	start := (page - 1) * size
	if start >= len(papers) {
		return nil
	}
	end := start + size
	if end > len(papers) {
		end = len(papers)
	}
	return papers[start:end]
}

func clip(text string, limit int) string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
