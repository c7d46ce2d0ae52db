package semantic

import (
	"context"

	"github.com/david1005910/Bio2/engine/domain"
)

// SearchResult represents a single vector search hit.
type SearchResult struct {
	ID         string  `json:"id"`
	Score      float32 `json:"score"`
	PMID       string  `json:"pmid"`
	Title      string  `json:"title"`
	Section    string  `json:"section"`
	Text       string  `json:"text"`
	ChunkIndex int     `json:"chunk_index"`
	Journal    string  `json:"journal,omitempty"`
	Year       int     `json:"year,omitempty"`
}

// VectorRecord is a single chunk vector with its payload.
type VectorRecord struct {
	ID        string
	Embedding []float32
	Chunk     domain.Chunk
	Journal   string
	Year      int
	Title     string
}

// Index is the contract the pipeline requires from a vector index: cosine
// similarity search ordered descending, equal scores broken by insertion
// order, metadata filtering, and atomic-per-caller deletion by paper.
type Index interface {
	Upsert(ctx context.Context, records []VectorRecord) error
	Search(ctx context.Context, embedding []float32, topK int, filters domain.Filters) ([]SearchResult, error)
	FetchByPMID(ctx context.Context, pmid string) ([]VectorRecord, error)
	DeleteByPMID(ctx context.Context, pmid string) error
}
