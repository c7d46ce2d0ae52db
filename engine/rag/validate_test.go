package rag

import (
	"math"
	"testing"

	"github.com/david1005910/Bio2/engine/domain"
)

func ev(pmids ...string) []domain.EvidenceItem {
	out := make([]domain.EvidenceItem, len(pmids))
	for i, p := range pmids {
		out[i] = domain.EvidenceItem{PMID: p, Text: "text"}
	}
	return out
}

func TestValidate_AllCitationsValid(t *testing.T) {
	res := Validate("CRISPR improves precision [PMID: 123].", ev("123", "456"))
	if res.Confidence != 1.0 {
		t.Fatalf("expected confidence 1.0, got %v", res.Confidence)
	}
	if len(res.CitedIDs) != 1 || res.CitedIDs[0] != "123" {
		t.Fatalf("expected cited [123], got %v", res.CitedIDs)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", res.Warnings)
	}
}

func TestValidate_AllCitationsInvalid(t *testing.T) {
	res := Validate("See [PMID: 999].", ev("123"))
	if res.Confidence != 0.0 {
		t.Fatalf("expected confidence 0.0, got %v", res.Confidence)
	}
	if len(res.CitedIDs) != 0 {
		t.Fatalf("expected no valid cited ids, got %v", res.CitedIDs)
	}
	if len(res.Warnings) == 0 {
		t.Fatal("expected invalid-citation warning")
	}
}

func TestValidate_MixedCitations(t *testing.T) {
	answer := "A [PMID: 123] and B [PMID: 999] and C [PMID: 456]."
	res := Validate(answer, ev("123", "456"))
	want := 2.0 / 3.0
	if math.Abs(res.Confidence-want) > 1e-9 {
		t.Fatalf("expected confidence %v, got %v", want, res.Confidence)
	}
	if len(res.CitedIDs) != 2 || res.CitedIDs[0] != "123" || res.CitedIDs[1] != "456" {
		t.Fatalf("expected cited [123 456], got %v", res.CitedIDs)
	}
}

func TestValidate_DuplicateMarkersCountedButDeduplicatedInCited(t *testing.T) {
	answer := "A [PMID: 123] then again [PMID: 123]."
	res := Validate(answer, ev("123"))
	if res.Confidence != 1.0 {
		t.Fatalf("expected confidence 1.0, got %v", res.Confidence)
	}
	if len(res.CitedIDs) != 1 {
		t.Fatalf("expected deduplicated cited ids, got %v", res.CitedIDs)
	}
}

func TestValidate_DeclineWithoutMarkers(t *testing.T) {
	answer := DeclinePhrase + " in the provided papers."
	res := Validate(answer, ev("123"))
	if res.Confidence != 1.0 {
		t.Fatalf("decline without markers should score 1.0, got %v", res.Confidence)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", res.Warnings)
	}
}

func TestValidate_UncitedClaimPenalized(t *testing.T) {
	res := Validate("Gene editing works through nuclease activity.", ev("123"))
	if res.Confidence != uncitedPenalty {
		t.Fatalf("expected penalty %v, got %v", uncitedPenalty, res.Confidence)
	}
	if len(res.Warnings) == 0 {
		t.Fatal("expected uncited-claim warning")
	}
}

func TestValidate_DeclineWithMarkersUsesRatio(t *testing.T) {
	// A decline that still cites is scored on its markers, not the decline.
	answer := DeclinePhrase + ", though [PMID: 999] is adjacent."
	res := Validate(answer, ev("123"))
	if res.Confidence != 0.0 {
		t.Fatalf("expected marker ratio 0.0, got %v", res.Confidence)
	}
}
