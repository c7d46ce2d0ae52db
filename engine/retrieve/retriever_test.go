package retrieve

import (
	"context"
	"errors"
	"testing"

	"github.com/david1005910/Bio2/engine/domain"
	"github.com/david1005910/Bio2/engine/semantic"
)

// --- mocks ---

type mockEmbedder struct {
	vec []float32
	err error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return m.vec, m.err
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = m.vec
	}
	return out, m.err
}

func (m *mockEmbedder) Dimensions() int { return len(m.vec) }

type mockIndex struct {
	results []semantic.SearchResult
	err     error
	lastK   int
}

func (m *mockIndex) Upsert(context.Context, []semantic.VectorRecord) error { return nil }
func (m *mockIndex) FetchByPMID(context.Context, string) ([]semantic.VectorRecord, error) {
	return nil, nil
}
func (m *mockIndex) DeleteByPMID(context.Context, string) error { return nil }

func (m *mockIndex) Search(_ context.Context, _ []float32, topK int, _ domain.Filters) ([]semantic.SearchResult, error) {
	m.lastK = topK
	if m.err != nil {
		return nil, m.err
	}
	if topK > len(m.results) {
		topK = len(m.results)
	}
	return m.results[:topK], nil
}

type mockReranker struct {
	scores []float32
	err    error
	called bool
}

func (m *mockReranker) Scores(_ context.Context, _ string, passages []string) ([]float32, error) {
	m.called = true
	if m.err != nil {
		return nil, m.err
	}
	return m.scores[:len(passages)], nil
}

func hits(n int) []semantic.SearchResult {
	out := make([]semantic.SearchResult, n)
	for i := range out {
		out[i] = semantic.SearchResult{
			ID:    string(rune('a' + i)),
			PMID:  "p" + string(rune('0'+i)),
			Text:  "chunk",
			Score: float32(n-i) / float32(n),
		}
	}
	return out
}

func newRetriever(e *mockEmbedder, idx *mockIndex, rr *mockReranker) *Retriever {
	var reranker mockRerankerIface
	if rr != nil {
		reranker = rr
	}
	return New(e, idx, reranker, DefaultOptions(), nil)
}

// mockRerankerIface avoids a typed-nil interface when rr is nil.
type mockRerankerIface interface {
	Scores(ctx context.Context, query string, passages []string) ([]float32, error)
}

func TestRetrieve_NoRerankKeepsIndexOrder(t *testing.T) {
	idx := &mockIndex{results: hits(5)}
	r := newRetriever(&mockEmbedder{vec: []float32{1, 0}}, idx, nil)

	out, err := r.Retrieve(context.Background(), "q", 3, false, domain.Filters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx.lastK != 3 {
		t.Errorf("expected fetch k=3, got %d", idx.lastK)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 items, got %d", len(out))
	}
	if out[0].PMID != "p0" || out[1].PMID != "p1" {
		t.Fatalf("index order not preserved: %+v", out)
	}
}

func TestRetrieve_RerankOverfetchesAndResorts(t *testing.T) {
	idx := &mockIndex{results: hits(6)}
	// Reverse the ordering: last candidate scores highest.
	rr := &mockReranker{scores: []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}}
	r := newRetriever(&mockEmbedder{vec: []float32{1, 0}}, idx, rr)

	out, err := r.Retrieve(context.Background(), "q", 3, true, domain.Filters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx.lastK != 6 {
		t.Errorf("expected over-fetch 2k=6, got %d", idx.lastK)
	}
	if !rr.called {
		t.Fatal("reranker was not called")
	}
	if len(out) != 3 {
		t.Fatalf("expected truncation to 3, got %d", len(out))
	}
	if out[0].PMID != "p5" || out[0].Score != 0.6 {
		t.Fatalf("rerank resort failed: %+v", out[0])
	}
}

func TestRetrieve_RerankNeverShrinksBelowAvailable(t *testing.T) {
	// Only 2 candidates exist; k=5. Rerank on must still return min(k, available).
	idx := &mockIndex{results: hits(2)}
	rr := &mockReranker{scores: []float32{0.5, 0.9}}
	r := newRetriever(&mockEmbedder{vec: []float32{1, 0}}, idx, rr)

	out, err := r.Retrieve(context.Background(), "q", 5, true, domain.Filters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 items, got %d", len(out))
	}
}

func TestRetrieve_DuplicatePaperChunksKept(t *testing.T) {
	idx := &mockIndex{results: []semantic.SearchResult{
		{ID: "a", PMID: "p1", Section: "abstract", Score: 0.9},
		{ID: "b", PMID: "p1", Section: "results", Score: 0.8},
		{ID: "c", PMID: "p2", Section: "abstract", Score: 0.7},
	}}
	r := newRetriever(&mockEmbedder{vec: []float32{1}}, idx, nil)

	out, _ := r.Retrieve(context.Background(), "q", 3, false, domain.Filters{})
	if len(out) != 3 {
		t.Fatalf("expected both p1 chunks kept, got %d items", len(out))
	}
	if out[0].PMID != "p1" || out[1].PMID != "p1" {
		t.Fatal("same-paper chunks were deduplicated")
	}
}

func TestRetrieve_EmbedFailureAborts(t *testing.T) {
	idx := &mockIndex{results: hits(3)}
	r := newRetriever(&mockEmbedder{err: domain.ErrEmbeddingUnavailable}, idx, nil)

	_, err := r.Retrieve(context.Background(), "q", 3, false, domain.Filters{})
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
}

func TestRetrieve_IndexFailure(t *testing.T) {
	idx := &mockIndex{err: errors.New("connection refused")}
	r := newRetriever(&mockEmbedder{vec: []float32{1}}, idx, nil)

	_, err := r.Retrieve(context.Background(), "q", 3, false, domain.Filters{})
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
}

func TestRetrieve_RerankFailureAborts(t *testing.T) {
	idx := &mockIndex{results: hits(4)}
	rr := &mockReranker{err: domain.ErrRerankUnavailable}
	r := newRetriever(&mockEmbedder{vec: []float32{1}}, idx, rr)

	_, err := r.Retrieve(context.Background(), "q", 2, true, domain.Filters{})
	if !errors.Is(err, domain.ErrRerankUnavailable) {
		t.Fatalf("expected ErrRerankUnavailable, got %v", err)
	}
}

func TestRetrieve_ZeroK(t *testing.T) {
	r := newRetriever(&mockEmbedder{vec: []float32{1}}, &mockIndex{}, nil)
	out, err := r.Retrieve(context.Background(), "q", 0, false, domain.Filters{})
	if err != nil || out != nil {
		t.Fatalf("expected nil,nil for k=0, got %v,%v", out, err)
	}
}
