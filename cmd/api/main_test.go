package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/david1005910/Bio2/engine/cache"
	"github.com/david1005910/Bio2/engine/domain"
	"github.com/david1005910/Bio2/engine/rag"
	"github.com/david1005910/Bio2/pkg/metrics"
)

type fakeRetriever struct {
	evidence []domain.EvidenceItem
}

func (f *fakeRetriever) Retrieve(context.Context, string, int, bool, domain.Filters) ([]domain.EvidenceItem, error) {
	return f.evidence, nil
}

type fakeGenerator struct {
	answer string
}

func (f *fakeGenerator) Generate(context.Context, string, []domain.EvidenceItem, float32) (string, error) {
	return f.answer, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
}

func testServer(t *testing.T) *apiServer {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	logger := quietLogger()
	retriever := &fakeRetriever{evidence: []domain.EvidenceItem{
		{PMID: "123", Title: "CRISPR study", Text: "CRISPR edits genes.", Score: 0.9},
	}}
	gen := &fakeGenerator{answer: "CRISPR edits genes [PMID: 123]."}
	sessions := cache.NewSessionStore(rdb, cache.DefaultMaxTurns, time.Hour)

	return &apiServer{
		rag:      rag.New(retriever, gen, nil, sessions, rag.DefaultOptions(), logger),
		sessions: sessions,
		metrics:  metrics.New(),
		logger:   logger,
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := testServer(t)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest("GET", "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "ok" {
		t.Fatalf("expected status ok, got %s", resp["status"])
	}
}

func TestChatQuery(t *testing.T) {
	s := testServer(t)
	body := `{"question":"How does CRISPR work?","session_id":"s1"}`
	rec := httptest.NewRecorder()
	s.handleChatQuery(rec, httptest.NewRequest("POST", "/api/v1/chat/query", bytes.NewBufferString(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.RAGResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0", resp.Confidence)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].PMID != "123" {
		t.Errorf("sources = %+v", resp.Sources)
	}
}

func TestChatQuery_EmptyQuestion(t *testing.T) {
	s := testServer(t)
	rec := httptest.NewRecorder()
	s.handleChatQuery(rec, httptest.NewRequest("POST", "/api/v1/chat/query", bytes.NewBufferString(`{"question":""}`)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestChatQuery_InvalidJSON(t *testing.T) {
	s := testServer(t)
	rec := httptest.NewRecorder()
	s.handleChatQuery(rec, httptest.NewRequest("POST", "/api/v1/chat/query", bytes.NewBufferString("not json")))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHistoryRoundTrip(t *testing.T) {
	s := testServer(t)

	// A query with a session id records both turns.
	body := `{"question":"How does CRISPR work?","session_id":"s7"}`
	rec := httptest.NewRecorder()
	s.handleChatQuery(rec, httptest.NewRequest("POST", "/api/v1/chat/query", bytes.NewBufferString(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("query failed: %d", rec.Code)
	}

	req := httptest.NewRequest("GET", "/api/v1/chat/history/s7", nil)
	req.SetPathValue("session", "s7")
	rec = httptest.NewRecorder()
	s.handleHistory(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("history failed: %d", rec.Code)
	}
	var sess domain.Session
	if err := json.NewDecoder(rec.Body).Decode(&sess); err != nil {
		t.Fatal(err)
	}
	if len(sess.Turns) != 2 || sess.Turns[0].Role != "user" || sess.Turns[1].Role != "assistant" {
		t.Fatalf("turns = %+v", sess.Turns)
	}

	req = httptest.NewRequest("DELETE", "/api/v1/chat/history/s7", nil)
	req.SetPathValue("session", "s7")
	rec = httptest.NewRecorder()
	s.handleClearHistory(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("clear failed: %d", rec.Code)
	}

	req = httptest.NewRequest("GET", "/api/v1/chat/history/s7", nil)
	req.SetPathValue("session", "s7")
	rec = httptest.NewRecorder()
	s.handleHistory(rec, req)
	var cleared domain.Session
	_ = json.NewDecoder(rec.Body).Decode(&cleared)
	if len(cleared.Turns) != 0 {
		t.Fatalf("history not cleared: %+v", cleared.Turns)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := loadConfig()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.CORSOrigin != "*" {
		t.Fatalf("expected default CORS *, got %s", cfg.CORSOrigin)
	}
	if cfg.Collection != "bio2_papers" {
		t.Fatalf("expected default collection bio2_papers, got %s", cfg.Collection)
	}
}

func TestEnvOr(t *testing.T) {
	t.Setenv("TEST_ENV_VAR_XYZ", "custom")
	if v := envOr("TEST_ENV_VAR_XYZ", "default"); v != "custom" {
		t.Fatalf("expected custom, got %s", v)
	}
	if v := envOr("NONEXISTENT_VAR_ABC", "fallback"); v != "fallback" {
		t.Fatalf("expected fallback, got %s", v)
	}
}
