// Package recommend ranks papers related to a source paper. Content
// similarity comes from the vector index, citation similarity from the
// citation graph, and the hybrid method blends the two.
package recommend

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/david1005910/Bio2/engine/citegraph"
	"github.com/david1005910/Bio2/engine/domain"
	"github.com/david1005910/Bio2/engine/embed"
	"github.com/david1005910/Bio2/engine/semantic"
)

// Options configures the recommendation scorer.
type Options struct {
	// ContentWeight is the hybrid blend weight for content similarity;
	// citation similarity gets the remainder.
	ContentWeight float64
	// OverFetch multiplies k when searching the index so best-per-paper
	// aggregation still yields k distinct papers.
	OverFetch int
}

// DefaultOptions returns the documented 70/30 blend.
func DefaultOptions() Options {
	return Options{
		ContentWeight: 0.7,
		OverFetch:     3,
	}
}

// Scorer computes related-paper recommendations. Edges are recomputed on
// demand and never persisted.
type Scorer struct {
	index  semantic.Index
	graph  citegraph.Graph
	opts   Options
	logger *slog.Logger
}

// New creates a Scorer. graph may be nil; citation-dependent methods then
// fall back to content similarity.
func New(index semantic.Index, graph citegraph.Graph, opts Options, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{index: index, graph: graph, opts: opts, logger: logger}
}

// Similar returns up to k papers related to pmid, best first. A source paper
// with no indexed chunks yields an empty content contribution, not an error.
func (s *Scorer) Similar(ctx context.Context, pmid string, k int, method string) ([]domain.Recommendation, error) {
	if k <= 0 {
		return nil, nil
	}
	if s.graph == nil && method != domain.MethodContent {
		method = domain.MethodContent
	}

	switch method {
	case domain.MethodContent:
		return s.contentRecs(ctx, pmid, k)
	case domain.MethodCitation:
		return s.citationRecs(ctx, pmid, k)
	case domain.MethodHybrid:
		return s.hybridRecs(ctx, pmid, k)
	default:
		return s.contentRecs(ctx, pmid, k)
	}
}

// candidate accumulates per-paper scoring state before ranking.
type candidate struct {
	pmid          string
	title         string
	journal       string
	score         float64
	citationCount int
}

// contentScores searches around the source paper's representative vector and
// keeps the best chunk score per candidate paper, source excluded.
func (s *Scorer) contentScores(ctx context.Context, pmid string, k int) (map[string]*candidate, error) {
	records, err := s.index.FetchByPMID(ctx, pmid)
	if err != nil {
		return nil, fmt.Errorf("recommend: fetch chunks for %s: %w", pmid, err)
	}
	if len(records) == 0 {
		return map[string]*candidate{}, nil
	}

	vectors := make([][]float32, len(records))
	for i, r := range records {
		vectors[i] = r.Embedding
	}
	rep := embed.Mean(vectors)

	fetch := k * s.opts.OverFetch
	if fetch < k {
		fetch = k
	}
	// Own chunks come back too; widen so aggregation still has k papers.
	hits, err := s.index.Search(ctx, rep, fetch+len(records), domain.Filters{})
	if err != nil {
		return nil, fmt.Errorf("recommend: search around %s: %w", pmid, err)
	}

	out := make(map[string]*candidate)
	for _, h := range hits {
		if h.PMID == pmid || h.PMID == "" {
			continue
		}
		if c, ok := out[h.PMID]; ok {
			if float64(h.Score) > c.score {
				c.score = float64(h.Score)
			}
			continue
		}
		out[h.PMID] = &candidate{
			pmid:    h.PMID,
			title:   h.Title,
			journal: h.Journal,
			score:   float64(h.Score),
		}
	}
	return out, nil
}

func (s *Scorer) contentRecs(ctx context.Context, pmid string, k int) ([]domain.Recommendation, error) {
	cands, err := s.contentScores(ctx, pmid, k)
	if err != nil {
		return nil, err
	}
	s.enrich(ctx, cands)
	return rank(cands, k, domain.MethodContent), nil
}

func (s *Scorer) citationRecs(ctx context.Context, pmid string, k int) ([]domain.Recommendation, error) {
	scores, err := s.graph.CoCitationScores(ctx, pmid)
	if err != nil {
		return nil, fmt.Errorf("recommend: co-citation for %s: %w", pmid, err)
	}
	cands := make(map[string]*candidate, len(scores))
	for id, score := range scores {
		cands[id] = &candidate{pmid: id, score: score}
	}
	s.enrich(ctx, cands)
	return rank(cands, k, domain.MethodCitation), nil
}

func (s *Scorer) hybridRecs(ctx context.Context, pmid string, k int) ([]domain.Recommendation, error) {
	content, err := s.contentScores(ctx, pmid, 2*k)
	if err != nil {
		return nil, err
	}
	citation, err := s.graph.CoCitationScores(ctx, pmid)
	if err != nil {
		return nil, fmt.Errorf("recommend: co-citation for %s: %w", pmid, err)
	}

	// Normalize each signal to [0,1] before blending so the weights mean
	// what they say.
	var maxContent float64
	for _, c := range content {
		if c.score > maxContent {
			maxContent = c.score
		}
	}

	cands := make(map[string]*candidate, len(content)+len(citation))
	for id, c := range content {
		norm := c.score
		if maxContent > 0 {
			norm = c.score / maxContent
		}
		cands[id] = &candidate{pmid: id, title: c.title, journal: c.journal, score: s.opts.ContentWeight * norm}
	}
	w := 1 - s.opts.ContentWeight
	for id, score := range citation {
		if c, ok := cands[id]; ok {
			c.score += w * score
			continue
		}
		cands[id] = &candidate{pmid: id, score: w * score}
	}

	s.enrich(ctx, cands)
	return rank(cands, k, domain.MethodHybrid), nil
}

// enrich fills title, journal, and citation counts from the graph. Metadata
// gaps are tolerated; the ranking still works without them.
func (s *Scorer) enrich(ctx context.Context, cands map[string]*candidate) {
	if s.graph == nil || len(cands) == 0 {
		return
	}
	pmids := make([]string, 0, len(cands))
	for id := range cands {
		pmids = append(pmids, id)
	}
	metas, err := s.graph.Papers(ctx, pmids)
	if err != nil {
		s.logger.Warn("recommend: metadata lookup failed, continuing", "err", err)
		return
	}
	for id, c := range cands {
		if m, ok := metas[id]; ok {
			if c.title == "" {
				c.title = m.Title
			}
			if c.journal == "" {
				c.journal = m.Journal
			}
			c.citationCount = m.CitationCount
		}
	}
}

// rank orders candidates by descending score, ties broken by descending
// citation count and then by PMID, and truncates to k.
func rank(cands map[string]*candidate, k int, method string) []domain.Recommendation {
	list := make([]*candidate, 0, len(cands))
	for _, c := range cands {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].score != list[j].score {
			return list[i].score > list[j].score
		}
		if list[i].citationCount != list[j].citationCount {
			return list[i].citationCount > list[j].citationCount
		}
		return list[i].pmid < list[j].pmid
	})
	if k < len(list) {
		list = list[:k]
	}
	out := make([]domain.Recommendation, len(list))
	for i, c := range list {
		out[i] = domain.Recommendation{
			PMID:          c.pmid,
			Title:         c.title,
			Score:         c.score,
			Journal:       c.journal,
			CitationCount: c.citationCount,
			Method:        method,
		}
	}
	return out
}
