package rag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/david1005910/Bio2/engine/cache"
	"github.com/david1005910/Bio2/engine/domain"
)

// Retriever produces ordered evidence for a question.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int, useRerank bool, filters domain.Filters) ([]domain.EvidenceItem, error)
}

// ResponseCache memoizes complete responses by fingerprint. A nil cache
// disables memoization; correctness never depends on hits.
type ResponseCache interface {
	Get(ctx context.Context, key string) (*domain.RAGResponse, bool, error)
	Put(ctx context.Context, key string, resp *domain.RAGResponse) error
}

// SessionStore appends turns to a conversation history.
type SessionStore interface {
	Append(ctx context.Context, sessionID string, turns ...domain.Turn) error
}

// Options configures the RAG service.
type Options struct {
	// TopK is the evidence count when the query does not set max_sources.
	TopK int
	// MaxTopK caps caller-supplied max_sources.
	MaxTopK int
	// ExcerptLimit bounds source excerpts, in runes.
	ExcerptLimit int
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		TopK:         5,
		MaxTopK:      20,
		ExcerptLimit: 500,
	}
}

// Service runs the question-to-validated-answer pipeline. Stages run strictly
// in sequence per request; any stage failure fails the whole request.
type Service struct {
	retriever Retriever
	generator Generator
	cache     ResponseCache
	sessions  SessionStore
	opts      Options
	logger    *slog.Logger
}

// New creates a RAG service. cache and sessions may be nil.
func New(retriever Retriever, generator Generator, respCache ResponseCache, sessions SessionStore, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		retriever: retriever,
		generator: generator,
		cache:     respCache,
		sessions:  sessions,
		opts:      opts,
		logger:    logger,
	}
}

// Query answers one question. Insufficient evidence is a normal response with
// low confidence; a failed dependency is an error.
func (s *Service) Query(ctx context.Context, q domain.Query) (*domain.RAGResponse, error) {
	if err := domain.ValidateQuery(q); err != nil {
		return nil, fmt.Errorf("rag: %w", err)
	}
	start := time.Now()

	k := q.MaxSources
	if k <= 0 {
		k = s.opts.TopK
	}
	if s.opts.MaxTopK > 0 && k > s.opts.MaxTopK {
		k = s.opts.MaxTopK
	}

	key := cache.Fingerprint(q.Question, k, q.Rerank, q.Filters)
	if s.cache != nil {
		if hit, ok, err := s.cache.Get(ctx, key); err != nil {
			s.logger.Warn("rag: cache get failed, continuing", "err", err)
		} else if ok {
			hit.Cached = true
			hit.SessionID = q.SessionID
			hit.ResponseTimeMS = time.Since(start).Milliseconds()
			s.appendTurns(ctx, q, hit)
			return hit, nil
		}
	}

	evidence, err := s.retriever.Retrieve(ctx, q.Question, k, q.Rerank, q.Filters)
	if err != nil {
		return nil, err
	}
	s.logger.Info("rag: retrieval done", "evidence", len(evidence), "k", k, "rerank", q.Rerank)

	if len(evidence) == 0 {
		resp := &domain.RAGResponse{
			Answer:         noEvidenceAnswer,
			Confidence:     0,
			SessionID:      q.SessionID,
			ResponseTimeMS: time.Since(start).Milliseconds(),
		}
		s.appendTurns(ctx, q, resp)
		return resp, nil
	}

	answer, err := s.generator.Generate(ctx, q.Question, evidence, q.Temperature)
	if err != nil {
		return nil, err
	}

	validation := Validate(answer, evidence)

	resp := &domain.RAGResponse{
		Answer:         answer,
		Sources:        s.sources(evidence),
		Confidence:     validation.Confidence,
		ChunksUsed:     len(evidence),
		ResponseTimeMS: time.Since(start).Milliseconds(),
		SessionID:      q.SessionID,
		Warnings:       validation.Warnings,
	}

	if s.cache != nil {
		if err := s.cache.Put(ctx, key, resp); err != nil {
			s.logger.Warn("rag: cache put failed, continuing", "err", err)
		}
	}
	s.appendTurns(ctx, q, resp)

	s.logger.Info("rag: query done",
		"confidence", resp.Confidence,
		"chunks_used", resp.ChunksUsed,
		"elapsed_ms", resp.ResponseTimeMS)
	return resp, nil
}

func (s *Service) sources(evidence []domain.EvidenceItem) []domain.SourceInfo {
	out := make([]domain.SourceInfo, len(evidence))
	for i, e := range evidence {
		out[i] = domain.SourceInfo{
			PMID:      e.PMID,
			Title:     e.Title,
			Relevance: e.Score,
			Excerpt:   excerpt(e.Text, s.opts.ExcerptLimit),
			Section:   e.Section,
		}
	}
	return out
}

// appendTurns records the exchange; history failures never fail the request.
func (s *Service) appendTurns(ctx context.Context, q domain.Query, resp *domain.RAGResponse) {
	if s.sessions == nil || q.SessionID == "" {
		return
	}
	now := time.Now().UTC()
	err := s.sessions.Append(ctx, q.SessionID,
		domain.Turn{Role: "user", Content: q.Question, At: now},
		domain.Turn{Role: "assistant", Content: resp.Answer, Sources: resp.Sources, At: now},
	)
	if err != nil {
		s.logger.Warn("rag: session append failed", "session", q.SessionID, "err", err)
	}
}

func excerpt(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
