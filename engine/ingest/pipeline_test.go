package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/david1005910/Bio2/engine/chunk"
	"github.com/david1005910/Bio2/engine/domain"
	"github.com/david1005910/Bio2/engine/semantic"
)

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		// Cheap deterministic vector derived from the text length.
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return 2 }

func paper(pmid string) domain.Paper {
	return domain.Paper{
		PMID:     pmid,
		Title:    "Paper " + pmid,
		Abstract: "CRISPR improves gene editing precision.",
		Journal:  "Nature",
	}
}

func deps(idx semantic.Index) Deps {
	return Deps{
		Chunker:  chunk.New(0, 0),
		Embedder: &fakeEmbedder{},
		Index:    idx,
	}
}

func TestPipeline_StoresChunksWithMetadata(t *testing.T) {
	idx := semantic.NewMemory()
	pipeline := NewPipeline(deps(idx))

	result := pipeline(context.Background(), paper("PMID1"))
	pmid, err := result.Unwrap()
	if err != nil {
		t.Fatal(err)
	}
	if pmid != "PMID1" {
		t.Fatalf("unexpected pipeline output: %s", pmid)
	}

	records, _ := idx.FetchByPMID(context.Background(), "PMID1")
	if len(records) != 1 {
		t.Fatalf("expected 1 stored chunk, got %d", len(records))
	}
	r := records[0]
	if r.Title != "Paper PMID1" || r.Journal != "Nature" {
		t.Fatalf("metadata not stored: %+v", r)
	}
	if r.Chunk.Section != "abstract" {
		t.Fatalf("expected abstract chunk, got %s", r.Chunk.Section)
	}
	if r.ID != PointID("PMID1", 0) {
		t.Fatal("point id not derived from pmid and chunk index")
	}
}

func TestPipeline_ReingestReplacesVectors(t *testing.T) {
	idx := semantic.NewMemory()
	d := deps(idx)
	pipeline := NewPipeline(d)
	ctx := context.Background()

	long := paper("P1")
	long.FullText = strings.Repeat("word ", 2000)
	if _, err := pipeline(ctx, long).Unwrap(); err != nil {
		t.Fatal(err)
	}
	before, _ := idx.FetchByPMID(ctx, "P1")
	if len(before) < 2 {
		t.Fatalf("expected multiple chunks before re-ingest, got %d", len(before))
	}

	// Re-ingest a shorter version: old chunks must be gone.
	if _, err := pipeline(ctx, paper("P1")).Unwrap(); err != nil {
		t.Fatal(err)
	}
	after, _ := idx.FetchByPMID(ctx, "P1")
	if len(after) != 1 {
		t.Fatalf("stale chunks survived re-ingest: %d", len(after))
	}
}

func TestPipeline_RejectsInvalidPaper(t *testing.T) {
	idx := semantic.NewMemory()
	emb := &fakeEmbedder{}
	pipeline := NewPipeline(Deps{Chunker: chunk.New(0, 0), Embedder: emb, Index: idx})

	_, err := pipeline(context.Background(), domain.Paper{PMID: "X"}).Unwrap()
	if err == nil {
		t.Fatal("title-less paper accepted")
	}
	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if emb.calls != 0 {
		t.Fatal("embedder called for invalid paper")
	}
	if idx.Len() != 0 {
		t.Fatal("invalid paper reached the index")
	}
}

func TestPipeline_EmbedFailureLeavesIndexUntouched(t *testing.T) {
	idx := semantic.NewMemory()
	pipeline := NewPipeline(Deps{
		Chunker:  chunk.New(0, 0),
		Embedder: &fakeEmbedder{err: domain.ErrEmbeddingUnavailable},
		Index:    idx,
	})

	_, err := pipeline(context.Background(), paper("P2")).Unwrap()
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
	if idx.Len() != 0 {
		t.Fatal("failed ingestion wrote to the index")
	}
}

func TestPointID_Stable(t *testing.T) {
	a := PointID("123", 0)
	b := PointID("123", 0)
	c := PointID("123", 1)
	if a != b {
		t.Fatal("point id not deterministic")
	}
	if a == c {
		t.Fatal("different chunks share a point id")
	}
}
