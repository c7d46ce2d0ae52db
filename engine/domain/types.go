// Package domain defines core domain types, constants, and validation for the
// Bio2 retrieval pipeline. It acts as the validation gate at pipeline entry points.
package domain

import "time"

// Paper is a read-only view of an indexed biomedical paper. The metadata
// store owns the record; the engine only consumes it and refreshes
// CitationCount through re-ingestion.
type Paper struct {
	PMID          string            `json:"pmid"`
	Title         string            `json:"title"`
	Abstract      string            `json:"abstract"`
	FullText      string            `json:"full_text,omitempty"`
	Journal       string            `json:"journal,omitempty"`
	PublishedAt   time.Time         `json:"published_at,omitzero"`
	Authors       []string          `json:"authors,omitempty"`
	CitationCount int               `json:"citation_count"`
	Keywords      []string          `json:"keywords,omitempty"`
	Sections      map[string]string `json:"sections,omitempty"`
	References    []string          `json:"references,omitempty"` // PMIDs this paper cites
}

// Chunk is a bounded contiguous slice of one paper's text, the unit of
// retrieval. Created at ingestion, never mutated.
type Chunk struct {
	PMID       string `json:"pmid"`
	Index      int    `json:"index"`
	Section    string `json:"section"` // abstract, methods, ..., or "unsectioned"
	Text       string `json:"text"`
	TokenCount int    `json:"token_count"`
}

// SectionUnlabeled tags chunks produced by the fixed-size fallback when no
// section map is available.
const SectionUnlabeled = "unsectioned"

// EvidenceItem is a retrieved chunk plus its post-rerank relevance score and
// the citation-relevant metadata of its source paper. Request-scoped.
type EvidenceItem struct {
	PMID     string  `json:"pmid"`
	Title    string  `json:"title"`
	Section  string  `json:"section"`
	Text     string  `json:"text"`
	Score    float32 `json:"score"`
	ChunkIdx int     `json:"chunk_index"`
}

// SourceInfo is the caller-facing citation record inside a RAG response.
type SourceInfo struct {
	PMID      string  `json:"pmid"`
	Title     string  `json:"title"`
	Relevance float32 `json:"relevance"`
	Excerpt   string  `json:"excerpt"`
	Section   string  `json:"section,omitempty"`
}

// RAGResponse is the complete answer to one question.
type RAGResponse struct {
	Answer         string       `json:"answer"`
	Sources        []SourceInfo `json:"sources"`
	Confidence     float64      `json:"confidence"`
	ChunksUsed     int          `json:"chunks_used"`
	ResponseTimeMS int64        `json:"response_time_ms"`
	SessionID      string       `json:"session_id,omitempty"`
	Warnings       []string     `json:"warnings,omitempty"`
	Cached         bool         `json:"cached,omitempty"`
}

// Query is a RAG question with retrieval controls.
type Query struct {
	Question    string  `json:"question"`
	SessionID   string  `json:"session_id,omitempty"`
	MaxSources  int     `json:"max_sources,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
	Rerank      bool    `json:"rerank"`
	Filters     Filters `json:"filters,omitzero"`
}

// Filters restrict retrieval by paper metadata.
type Filters struct {
	YearStart int      `json:"year_start,omitempty"`
	YearEnd   int      `json:"year_end,omitempty"`
	Journals  []string `json:"journals,omitempty"`
	Section   string   `json:"section,omitempty"`
}

// Empty reports whether no filter is set.
func (f Filters) Empty() bool {
	return f.YearStart == 0 && f.YearEnd == 0 && len(f.Journals) == 0 && f.Section == ""
}

// Recommendation is one related-paper suggestion.
type Recommendation struct {
	PMID          string  `json:"pmid"`
	Title         string  `json:"title,omitempty"`
	Score         float64 `json:"score"`
	Journal       string  `json:"journal,omitempty"`
	CitationCount int     `json:"citation_count"`
	Method        string  `json:"method"` // content, citation, or hybrid
}

// Recommendation methods.
const (
	MethodContent  = "content"
	MethodCitation = "citation"
	MethodHybrid   = "hybrid"
)

// Turn is one message in a chat session.
type Turn struct {
	Role    string       `json:"role"` // user or assistant
	Content string       `json:"content"`
	Sources []SourceInfo `json:"sources,omitempty"`
	At      time.Time    `json:"at"`
}

// Session is an ordered conversation history. The engine only appends.
type Session struct {
	ID    string `json:"id"`
	Turns []Turn `json:"turns"`
}
