package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/david1005910/Bio2/engine/cache"
	"github.com/david1005910/Bio2/engine/citegraph"
	"github.com/david1005910/Bio2/engine/domain"
	"github.com/david1005910/Bio2/engine/ingest"
	"github.com/david1005910/Bio2/engine/rag"
	"github.com/david1005910/Bio2/engine/recommend"
	"github.com/david1005910/Bio2/engine/search"
	"github.com/david1005910/Bio2/engine/semantic"
	"github.com/david1005910/Bio2/pkg/metrics"
	"github.com/david1005910/Bio2/pkg/natsutil"
)

type apiServer struct {
	rag       *rag.Service
	search    *search.Service
	recommend *recommend.Scorer
	sessions  *cache.SessionStore
	index     semantic.Index
	graph     *citegraph.Store
	nats      *nats.Conn
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleChatQuery(w http.ResponseWriter, r *http.Request) {
	var q domain.Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	start := time.Now()
	resp, err := s.rag.Query(r.Context(), q)
	if err != nil {
		var vErr *domain.ValidationError
		if errors.As(err, &vErr) {
			s.metrics.ObserveRAG("rejected", 0, time.Since(start), false)
			writeError(w, http.StatusBadRequest, vErr.Error())
			return
		}
		s.logger.Error("rag query failed", "err", err)
		s.metrics.ObserveRAG("error", 0, time.Since(start), false)
		status := http.StatusInternalServerError
		if domain.IsDependencyFailure(err) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, "query failed")
		return
	}

	s.metrics.ObserveRAG("ok", resp.Confidence, time.Since(start), resp.Cached)
	writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session")
	turns, err := s.sessions.History(r.Context(), sessionID)
	if err != nil {
		s.logger.Error("history fetch failed", "session", sessionID, "err", err)
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, domain.Session{ID: sessionID, Turns: turns})
}

func (s *apiServer) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session")
	if err := s.sessions.Clear(r.Context(), sessionID); err != nil {
		s.logger.Error("history clear failed", "session", sessionID, "err", err)
		writeError(w, http.StatusInternalServerError, "clear failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req search.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.search.Search(r.Context(), req)
	if err != nil {
		var vErr *domain.ValidationError
		if errors.As(err, &vErr) {
			writeError(w, http.StatusBadRequest, vErr.Error())
			return
		}
		s.logger.Error("search failed", "err", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	s.metrics.ObserveSearch()
	writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	pmid := r.PathValue("pmid")
	if pmid == "" {
		writeError(w, http.StatusBadRequest, "pmid is required")
		return
	}

	k := 10
	if v := r.URL.Query().Get("k"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			k = n
		}
	}
	method := r.URL.Query().Get("method")
	if method == "" {
		method = domain.MethodHybrid
	}
	switch method {
	case domain.MethodContent, domain.MethodCitation, domain.MethodHybrid:
	default:
		writeError(w, http.StatusBadRequest, "method must be content, citation, or hybrid")
		return
	}

	recs, err := s.recommend.Similar(r.Context(), pmid, k, method)
	if err != nil {
		s.logger.Error("recommendations failed", "pmid", pmid, "err", err)
		writeError(w, http.StatusInternalServerError, "recommendations failed")
		return
	}
	if recs == nil {
		recs = []domain.Recommendation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"pmid": pmid, "recommendations": recs})
}

// handleEnqueuePaper validates a paper and queues it for asynchronous
// ingestion. The consumer owns chunking, embedding, and storage.
func (s *apiServer) handleEnqueuePaper(w http.ResponseWriter, r *http.Request) {
	var p domain.Paper
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := domain.ValidatePaper(p); err != nil {
		s.metrics.ObserveIngest("rejected")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := natsutil.Publish(r.Context(), s.nats, ingest.Subject, p); err != nil {
		s.logger.Error("ingest enqueue failed", "pmid", p.PMID, "err", err)
		writeError(w, http.StatusServiceUnavailable, "ingest queue unavailable")
		return
	}

	s.metrics.ObserveIngest("queued")
	writeJSON(w, http.StatusAccepted, map[string]string{"pmid": p.PMID, "status": "queued"})
}

// handleDeletePaper removes a paper from both the vector index and the
// citation graph. Missing papers delete cleanly.
func (s *apiServer) handleDeletePaper(w http.ResponseWriter, r *http.Request) {
	pmid := r.PathValue("pmid")
	if pmid == "" {
		writeError(w, http.StatusBadRequest, "pmid is required")
		return
	}

	if err := s.index.DeleteByPMID(r.Context(), pmid); err != nil {
		s.logger.Error("index delete failed", "pmid", pmid, "err", err)
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	if err := s.graph.DeletePaper(r.Context(), pmid); err != nil {
		s.logger.Error("graph delete failed", "pmid", pmid, "err", err)
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
