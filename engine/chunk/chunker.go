// Package chunk splits paper text into overlapping, bounded-size segments
// for embedding and retrieval. Section-aware when a section map is present,
// fixed-size token windows otherwise.
package chunk

import (
	"sort"
	"strings"

	"github.com/david1005910/Bio2/engine/domain"
)

const (
	// DefaultSize is the target number of tokens per chunk.
	DefaultSize = 512
	// DefaultOverlap is the number of trailing tokens repeated at the start
	// of the next window.
	DefaultOverlap = 50
	// minBodyChunk drops sub-50-token fragments when sub-chunking long
	// sections; fixed-size fallback keeps them so coverage stays exhaustive.
	minBodyChunk = 50
)

// Chunker produces ordered chunks for a paper. A token is a whitespace-
// delimited word; the rule is deterministic and tokenizer-independent.
type Chunker struct {
	Size    int
	Overlap int
}

// New creates a Chunker, falling back to defaults for non-positive values.
func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultOverlap
		if overlap >= size {
			overlap = size / 4
		}
	}
	return &Chunker{Size: size, Overlap: overlap}
}

// ChunkPaper creates the chunk sequence for a paper. The abstract is always
// chunk 0 when present; sections are chunked independently so no chunk spans
// two sections; remaining full text falls back to fixed-size windows.
// Empty input yields an empty sequence, never an error.
func (c *Chunker) ChunkPaper(p domain.Paper) []domain.Chunk {
	var chunks []domain.Chunk

	if text := strings.TrimSpace(p.Abstract); text != "" {
		chunks = append(chunks, domain.Chunk{
			PMID:       p.PMID,
			Index:      0,
			Section:    "abstract",
			Text:       text,
			TokenCount: tokenCount(text),
		})
	}

	if len(p.Sections) > 0 {
		chunks = c.chunkSections(p, chunks)
	} else if text := strings.TrimSpace(p.FullText); text != "" {
		for _, w := range c.windows(text) {
			chunks = append(chunks, domain.Chunk{
				PMID:       p.PMID,
				Index:      len(chunks),
				Section:    domain.SectionUnlabeled,
				Text:       w,
				TokenCount: tokenCount(w),
			})
		}
	}

	return chunks
}

// chunkSections appends one chunk per section, sub-chunking sections longer
// than the configured size. Section order is sorted by name for determinism;
// Go map iteration order would reshuffle chunk indexes between runs.
func (c *Chunker) chunkSections(p domain.Paper, chunks []domain.Chunk) []domain.Chunk {
	names := make([]string, 0, len(p.Sections))
	for name := range p.Sections {
		if name == "abstract" && len(chunks) > 0 {
			continue // already emitted as chunk 0
		}
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		text := strings.TrimSpace(p.Sections[name])
		if text == "" {
			continue
		}
		if tokenCount(text) <= c.Size {
			chunks = append(chunks, domain.Chunk{
				PMID:       p.PMID,
				Index:      len(chunks),
				Section:    name,
				Text:       text,
				TokenCount: tokenCount(text),
			})
			continue
		}
		for _, w := range c.windows(text) {
			if tokenCount(w) < minBodyChunk {
				continue
			}
			chunks = append(chunks, domain.Chunk{
				PMID:       p.PMID,
				Index:      len(chunks),
				Section:    name,
				Text:       w,
				TokenCount: tokenCount(w),
			})
		}
	}
	return chunks
}

// windows splits text into token windows of Size with Overlap trailing tokens
// repeated at the start of the next window. The final window may be shorter.
// Text shorter than one window yields exactly one element.
func (c *Chunker) windows(text string) []string {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return nil
	}
	if len(tokens) <= c.Size {
		return []string{strings.Join(tokens, " ")}
	}

	step := c.Size - c.Overlap
	var out []string
	for start := 0; start < len(tokens); start += step {
		end := start + c.Size
		if end > len(tokens) {
			end = len(tokens)
		}
		out = append(out, strings.Join(tokens[start:end], " "))
		if end == len(tokens) {
			break
		}
	}
	return out
}

func tokenCount(s string) int {
	return len(strings.Fields(s))
}
