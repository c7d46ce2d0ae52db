package semantic

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/david1005910/Bio2/engine/domain"
)

// Memory is a brute-force in-process Index. It is the reference for the
// ordering contract: descending dot product, equal scores broken by
// insertion order. Used by tests and small corpora.
type Memory struct {
	mu      sync.RWMutex
	records []VectorRecord
	byID    map[string]int // id -> position in records
}

var _ Index = (*Memory)(nil)

// NewMemory creates an empty in-memory index.
func NewMemory() *Memory {
	return &Memory{byID: make(map[string]int)}
}

// Upsert inserts or replaces records. A replaced record keeps its original
// insertion position so tie-breaking stays stable.
func (m *Memory) Upsert(_ context.Context, records []VectorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		if pos, ok := m.byID[r.ID]; ok {
			m.records[pos] = r
			continue
		}
		m.byID[r.ID] = len(m.records)
		m.records = append(m.records, r)
	}
	return nil
}

// Search returns up to topK hits sorted by descending similarity, stable on
// insertion order for equal scores.
func (m *Memory) Search(_ context.Context, embedding []float32, topK int, filters domain.Filters) ([]SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		pos   int
		score float32
	}
	var hits []scored
	for pos, r := range m.records {
		if !matches(r, filters) {
			continue
		}
		hits = append(hits, scored{pos: pos, score: dot(r.Embedding, embedding)})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].score > hits[j].score
	})

	if topK > len(hits) {
		topK = len(hits)
	}
	out := make([]SearchResult, 0, topK)
	for _, h := range hits[:topK] {
		r := m.records[h.pos]
		out = append(out, SearchResult{
			ID:         r.ID,
			Score:      h.score,
			PMID:       r.Chunk.PMID,
			Title:      r.Title,
			Section:    r.Chunk.Section,
			Text:       r.Chunk.Text,
			ChunkIndex: r.Chunk.Index,
			Journal:    r.Journal,
			Year:       r.Year,
		})
	}
	return out, nil
}

// FetchByPMID returns all records of a paper in insertion order.
func (m *Memory) FetchByPMID(_ context.Context, pmid string) ([]VectorRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []VectorRecord
	for _, r := range m.records {
		if r.Chunk.PMID == pmid {
			out = append(out, r)
		}
	}
	return out, nil
}

// DeleteByPMID removes every record of a paper in one critical section, so
// readers never see a partial deletion.
func (m *Memory) DeleteByPMID(_ context.Context, pmid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.records[:0]
	for _, r := range m.records {
		if r.Chunk.PMID != pmid {
			kept = append(kept, r)
		}
	}
	m.records = kept
	m.byID = make(map[string]int, len(kept))
	for i, r := range kept {
		m.byID[r.ID] = i
	}
	return nil
}

// Len returns the number of stored vectors.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func matches(r VectorRecord, f domain.Filters) bool {
	if f.Empty() {
		return true
	}
	if f.Section != "" && r.Chunk.Section != f.Section {
		return false
	}
	if f.YearStart != 0 && (r.Year == 0 || r.Year < f.YearStart) {
		return false
	}
	if f.YearEnd != 0 && (r.Year == 0 || r.Year > f.YearEnd) {
		return false
	}
	if len(f.Journals) > 0 {
		ok := false
		for _, j := range f.Journals {
			if strings.EqualFold(j, r.Journal) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
