// Package ingest runs papers through validation, chunking, embedding, and
// storage. Re-ingesting a paper first deletes its existing vectors so the
// index never holds chunks from two versions of the same paper.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/david1005910/Bio2/engine/chunk"
	"github.com/david1005910/Bio2/engine/citegraph"
	"github.com/david1005910/Bio2/engine/domain"
	"github.com/david1005910/Bio2/engine/embed"
	"github.com/david1005910/Bio2/engine/semantic"
	"github.com/david1005910/Bio2/pkg/fn"
	"github.com/david1005910/Bio2/pkg/metrics"
)

// ChunkedPaper is a paper with its chunks, between the chunk and embed stages.
type ChunkedPaper struct {
	Paper  domain.Paper
	Chunks []domain.Chunk
}

// EmbeddedPaper adds one vector per chunk, index-aligned.
type EmbeddedPaper struct {
	ChunkedPaper
	Embeddings [][]float32
}

// Deps holds the external dependencies of the ingestion pipeline.
type Deps struct {
	Chunker  *chunk.Chunker
	Embedder embed.Embedder
	Index    semantic.Index
	Graph    *citegraph.Store // optional
	Metrics  *metrics.Metrics // optional
	Logger   *slog.Logger
}

// Validate rejects malformed papers before any external call.
var Validate fn.Stage[domain.Paper, domain.Paper] = func(_ context.Context, p domain.Paper) fn.Result[domain.Paper] {
	if err := domain.ValidatePaper(p); err != nil {
		return fn.Err[domain.Paper](err)
	}
	return fn.Ok(p)
}

// NewChunk creates the chunking stage.
func NewChunk(c *chunk.Chunker) fn.Stage[domain.Paper, ChunkedPaper] {
	return func(_ context.Context, p domain.Paper) fn.Result[ChunkedPaper] {
		chunks := c.ChunkPaper(p)
		if len(chunks) == 0 {
			return fn.Errf[ChunkedPaper]("ingest: paper %s produced no chunks", p.PMID)
		}
		return fn.Ok(ChunkedPaper{Paper: p, Chunks: chunks})
	}
}

// NewEmbed creates the embedding stage. Batching happens inside the embedder.
func NewEmbed(e embed.Embedder) fn.Stage[ChunkedPaper, EmbeddedPaper] {
	return func(ctx context.Context, cp ChunkedPaper) fn.Result[EmbeddedPaper] {
		texts := make([]string, len(cp.Chunks))
		for i, c := range cp.Chunks {
			texts[i] = c.Text
		}
		vecs, err := e.EmbedBatch(ctx, texts)
		if err != nil {
			return fn.Err[EmbeddedPaper](fmt.Errorf("ingest: embed %s: %w", cp.Paper.PMID, err))
		}
		return fn.Ok(EmbeddedPaper{ChunkedPaper: cp, Embeddings: vecs})
	}
}

// NewStore creates the storage stage: delete the paper's old vectors, upsert
// the new ones, and record the paper and its citations in the graph.
func NewStore(index semantic.Index, graph *citegraph.Store) fn.Stage[EmbeddedPaper, string] {
	return func(ctx context.Context, ep EmbeddedPaper) fn.Result[string] {
		pmid := ep.Paper.PMID
		if err := index.DeleteByPMID(ctx, pmid); err != nil {
			return fn.Err[string](fmt.Errorf("ingest: clear old vectors for %s: %w", pmid, err))
		}

		year := 0
		if !ep.Paper.PublishedAt.IsZero() {
			year = ep.Paper.PublishedAt.Year()
		}
		records := make([]semantic.VectorRecord, len(ep.Chunks))
		for i, c := range ep.Chunks {
			records[i] = semantic.VectorRecord{
				ID:        PointID(pmid, c.Index),
				Embedding: ep.Embeddings[i],
				Chunk:     c,
				Title:     ep.Paper.Title,
				Journal:   ep.Paper.Journal,
				Year:      year,
			}
		}
		if err := index.Upsert(ctx, records); err != nil {
			return fn.Err[string](fmt.Errorf("ingest: upsert %s: %w", pmid, err))
		}

		if graph != nil {
			if err := graph.SavePaper(ctx, ep.Paper); err != nil {
				return fn.Err[string](fmt.Errorf("ingest: %w", err))
			}
		}
		return fn.Ok(pmid)
	}
}

// PointID derives a stable vector-point id from a paper and chunk index, so
// re-ingestion overwrites rather than duplicates.
func PointID(pmid string, chunkIndex int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s-%d", pmid, chunkIndex))).String()
}

// NewPipeline wires validate, chunk, embed, and store into one traced stage.
func NewPipeline(deps Deps) fn.Stage[domain.Paper, string] {
	chunker := deps.Chunker
	if chunker == nil {
		chunker = chunk.New(0, 0)
	}
	validated := fn.Traced("ingest.validate", Validate)
	chunked := fn.Then(validated, fn.Traced("ingest.chunk", NewChunk(chunker)))
	embedded := fn.Then(chunked, fn.Traced("ingest.embed", NewEmbed(deps.Embedder)))
	return fn.Then(embedded, fn.Traced("ingest.store", NewStore(deps.Index, deps.Graph)))
}
