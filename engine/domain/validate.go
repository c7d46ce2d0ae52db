package domain

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// pmidRegex accepts PubMed numeric ids and alphanumeric test accessions.
var pmidRegex = regexp.MustCompile(`^[A-Za-z0-9.-]+$`)

const minQuestionLength = 3

// ValidatePaper checks a Paper record before ingestion.
func ValidatePaper(p Paper) error {
	if p.PMID == "" {
		return NewValidationError("pmid", p.PMID, ErrEmptyPMID)
	}
	if !pmidRegex.MatchString(p.PMID) {
		return NewValidationError("pmid", p.PMID, ErrEmptyPMID)
	}
	if p.Title == "" {
		return NewValidationError("title", p.Title, ErrEmptyTitle)
	}
	if strings.TrimSpace(p.Abstract) == "" && strings.TrimSpace(p.FullText) == "" && len(p.Sections) == 0 {
		return NewValidationError("abstract", "", ErrNoText)
	}
	return nil
}

// ValidateQuery checks a RAG query before any external call is made.
func ValidateQuery(q Query) error {
	text := strings.TrimSpace(q.Question)
	if text == "" {
		return NewValidationError("question", text, ErrEmptyQuestion)
	}
	if utf8.RuneCountInString(text) < minQuestionLength {
		return NewValidationError("question", text, ErrQuestionTooShort)
	}
	return nil
}

// ValidateChunking checks the chunker configuration invariant.
func ValidateChunking(size, overlap int) error {
	if size <= 0 || overlap < 0 || overlap >= size {
		return NewValidationError("chunk_overlap", "", ErrBadChunkConfig)
	}
	return nil
}
