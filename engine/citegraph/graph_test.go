package citegraph

import (
	"math"
	"testing"
	"time"

	"github.com/david1005910/Bio2/engine/domain"
)

func TestNormalizeScores(t *testing.T) {
	scores := map[string]float64{"a": 4, "b": 2, "c": 1}
	out := NormalizeScores(scores)
	if out["a"] != 1.0 {
		t.Fatalf("best score should be 1.0, got %v", out["a"])
	}
	if math.Abs(out["b"]-0.5) > 1e-9 || math.Abs(out["c"]-0.25) > 1e-9 {
		t.Fatalf("unexpected normalized scores: %v", out)
	}
}

func TestNormalizeScores_Empty(t *testing.T) {
	out := NormalizeScores(map[string]float64{})
	if len(out) != 0 {
		t.Fatal("empty map should stay empty")
	}
}

func TestNormalizeScores_AllZero(t *testing.T) {
	out := NormalizeScores(map[string]float64{"a": 0})
	if out["a"] != 0 {
		t.Fatal("zero scores must not divide by zero")
	}
}

func TestPaperProps(t *testing.T) {
	p := domain.Paper{
		PMID:          "123",
		Title:         "CRISPR study",
		Journal:       "Nature",
		CitationCount: 42,
		PublishedAt:   time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	props := paperProps(p)
	if props["title"] != "CRISPR study" || props["journal"] != "Nature" {
		t.Fatalf("unexpected props: %v", props)
	}
	if props["year"] != 2021 {
		t.Fatalf("expected year 2021, got %v", props["year"])
	}

	// Zero publication date must not produce a year property.
	if _, ok := paperProps(domain.Paper{PMID: "1"})["year"]; ok {
		t.Fatal("zero date produced a year property")
	}
}
