package rag

import (
	"fmt"
	"strings"

	"github.com/david1005910/Bio2/engine/domain"
)

// uncitedPenalty is the confidence assigned when the answer makes a claim
// without citing anything and without declining.
const uncitedPenalty = 0.1

// ValidationResult is the outcome of the post-hoc citation check.
type ValidationResult struct {
	Confidence float64
	CitedIDs   []string // valid cited PMIDs, first-appearance order, deduplicated
	Warnings   []string
}

// Validate checks every [PMID: x] marker in the answer against the evidence
// set. Deterministic and model-free, so the same (answer, evidence) pair
// always yields the same result.
//
// Confidence:
//   - no markers, answer declines: 1.0 (correct insufficiency handling)
//   - no markers, answer does not decline: fixed penalty (claim without citation)
//   - markers present: valid / total
func Validate(answer string, evidence []domain.EvidenceItem) ValidationResult {
	known := make(map[string]bool, len(evidence))
	for _, e := range evidence {
		known[e.PMID] = true
	}

	markers := domain.ExtractMarkers(answer)
	if len(markers) == 0 {
		if declines(answer) {
			return ValidationResult{Confidence: 1.0}
		}
		return ValidationResult{
			Confidence: uncitedPenalty,
			Warnings:   []string{"answer contains no citations and does not decline"},
		}
	}

	var (
		valid   int
		cited   []string
		seen    = make(map[string]bool)
		invalid []string
	)
	for _, id := range markers {
		if known[id] {
			valid++
			if !seen[id] {
				seen[id] = true
				cited = append(cited, id)
			}
			continue
		}
		invalid = append(invalid, id)
	}

	res := ValidationResult{
		Confidence: float64(valid) / float64(len(markers)),
		CitedIDs:   cited,
	}
	if len(invalid) > 0 {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("citations not in evidence: %s", strings.Join(invalid, ", ")))
	}
	return res
}

func declines(answer string) bool {
	return strings.Contains(answer, DeclinePhrase) || strings.Contains(answer, noEvidenceAnswer)
}
