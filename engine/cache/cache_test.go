package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/david1005910/Bio2/engine/domain"
)

func testRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestFingerprint_Deterministic(t *testing.T) {
	f := domain.Filters{YearStart: 2020, Journals: []string{"Nature", "Cell"}}
	a := Fingerprint("What is CRISPR?", 5, true, f)
	b := Fingerprint("What is CRISPR?", 5, true, f)
	if a != b {
		t.Fatal("same inputs produced different fingerprints")
	}
}

func TestFingerprint_NormalizesQuestion(t *testing.T) {
	a := Fingerprint("What is CRISPR?", 5, true, domain.Filters{})
	b := Fingerprint("  what   is CRISPR?  ", 5, true, domain.Filters{})
	if a != b {
		t.Fatal("whitespace and case should not change the fingerprint")
	}
}

func TestFingerprint_ConfigChangesKey(t *testing.T) {
	base := Fingerprint("q about genes", 5, true, domain.Filters{})
	cases := map[string]string{
		"k":       Fingerprint("q about genes", 10, true, domain.Filters{}),
		"rerank":  Fingerprint("q about genes", 5, false, domain.Filters{}),
		"year":    Fingerprint("q about genes", 5, true, domain.Filters{YearStart: 2020}),
		"journal": Fingerprint("q about genes", 5, true, domain.Filters{Journals: []string{"Cell"}}),
		"section": Fingerprint("q about genes", 5, true, domain.Filters{Section: "methods"}),
	}
	for name, fp := range cases {
		if fp == base {
			t.Errorf("changing %s did not change the fingerprint", name)
		}
	}
}

func TestFingerprint_JournalOrderIrrelevant(t *testing.T) {
	a := Fingerprint("q", 5, false, domain.Filters{Journals: []string{"Nature", "Cell"}})
	b := Fingerprint("q", 5, false, domain.Filters{Journals: []string{"cell", "nature"}})
	if a != b {
		t.Fatal("journal ordering should not change the fingerprint")
	}
}

func TestResponseCache_RoundTrip(t *testing.T) {
	_, rdb := testRedis(t)
	c := NewResponseCache(rdb, time.Hour)
	ctx := context.Background()

	want := &domain.RAGResponse{
		Answer:     "CRISPR improves precision [PMID: 123].",
		Sources:    []domain.SourceInfo{{PMID: "123", Title: "CRISPR study", Relevance: 0.93}},
		Confidence: 1.0,
		ChunksUsed: 3,
	}
	if err := c.Put(ctx, "fp1", want); err != nil {
		t.Fatal(err)
	}

	got, ok, err := c.Get(ctx, "fp1")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if got.Answer != want.Answer || got.Confidence != want.Confidence || len(got.Sources) != 1 {
		t.Fatalf("cached response mutated: %+v", got)
	}
}

func TestResponseCache_MissAndExpiry(t *testing.T) {
	mr, rdb := testRedis(t)
	c := NewResponseCache(rdb, time.Minute)
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "missing"); ok || err != nil {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}

	if err := c.Put(ctx, "fp", &domain.RAGResponse{Answer: "a"}); err != nil {
		t.Fatal(err)
	}
	mr.FastForward(2 * time.Minute)
	if _, ok, _ := c.Get(ctx, "fp"); ok {
		t.Fatal("expired entry was returned")
	}
}

func TestResponseCache_Invalidate(t *testing.T) {
	_, rdb := testRedis(t)
	c := NewResponseCache(rdb, time.Hour)
	ctx := context.Background()

	_ = c.Put(ctx, "fp", &domain.RAGResponse{Answer: "a"})
	if err := c.Invalidate(ctx, "fp"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.Get(ctx, "fp"); ok {
		t.Fatal("invalidated entry was returned")
	}
}

func TestSessionStore_AppendAndHistory(t *testing.T) {
	_, rdb := testRedis(t)
	s := NewSessionStore(rdb, 10, time.Hour)
	ctx := context.Background()

	err := s.Append(ctx, "sess1",
		domain.Turn{Role: "user", Content: "question one"},
		domain.Turn{Role: "assistant", Content: "answer one"},
	)
	if err != nil {
		t.Fatal(err)
	}

	turns, err := s.History(ctx, "sess1")
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Role != "user" || turns[1].Role != "assistant" {
		t.Fatalf("turns out of order: %+v", turns)
	}
}

func TestSessionStore_TrimsToCap(t *testing.T) {
	_, rdb := testRedis(t)
	s := NewSessionStore(rdb, 4, time.Hour)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_ = s.Append(ctx, "sess",
			domain.Turn{Role: "user", Content: "q"},
			domain.Turn{Role: "assistant", Content: "a"},
		)
	}

	turns, _ := s.History(ctx, "sess")
	if len(turns) != 4 {
		t.Fatalf("expected history trimmed to 4, got %d", len(turns))
	}
}

func TestSessionStore_UnknownSessionEmpty(t *testing.T) {
	_, rdb := testRedis(t)
	s := NewSessionStore(rdb, 0, 0)

	turns, err := s.History(context.Background(), "nope")
	if err != nil || len(turns) != 0 {
		t.Fatalf("expected empty history, got %d turns (err %v)", len(turns), err)
	}
}

func TestSessionStore_Clear(t *testing.T) {
	_, rdb := testRedis(t)
	s := NewSessionStore(rdb, 10, time.Hour)
	ctx := context.Background()

	_ = s.Append(ctx, "sess", domain.Turn{Role: "user", Content: "q"})
	if err := s.Clear(ctx, "sess"); err != nil {
		t.Fatal(err)
	}
	turns, _ := s.History(ctx, "sess")
	if len(turns) != 0 {
		t.Fatal("cleared session still has turns")
	}
}
