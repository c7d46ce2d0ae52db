// Package cache provides the Redis-backed response cache and session store.
// The cache is a pure optimization: every read path tolerates a miss and
// every write failure is non-fatal to the request.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/david1005910/Bio2/engine/domain"
)

// Fingerprint derives a deterministic cache key from the normalized question
// and the retrieval configuration. Two requests differing in k, rerank flag,
// or any filter map to different keys.
func Fingerprint(question string, k int, rerank bool, f domain.Filters) string {
	var b strings.Builder
	b.WriteString(normalize(question))
	fmt.Fprintf(&b, "|k=%d|rerank=%t", k, rerank)
	fmt.Fprintf(&b, "|years=%d-%d", f.YearStart, f.YearEnd)
	if len(f.Journals) > 0 {
		js := make([]string, len(f.Journals))
		for i, j := range f.Journals {
			js[i] = strings.ToLower(strings.TrimSpace(j))
		}
		sort.Strings(js)
		b.WriteString("|journals=")
		b.WriteString(strings.Join(js, ","))
	}
	if f.Section != "" {
		b.WriteString("|section=")
		b.WriteString(f.Section)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// normalize lowercases and collapses whitespace so trivially reworded
// requests share a key.
func normalize(question string) string {
	return strings.Join(strings.Fields(strings.ToLower(question)), " ")
}
