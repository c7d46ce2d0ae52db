// Package rag orchestrates the Retrieval-Augmented Generation pipeline.
// It validates a question, checks the response cache, retrieves evidence,
// generates an answer through the model gateway, and validates the answer's
// citations before returning.
package rag

import (
	"fmt"
	"strings"

	"github.com/david1005910/Bio2/engine/domain"
)

// DeclinePhrase is the exact wording the generator must use when evidence is
// insufficient. The citation validator keys on it, so it must not drift.
const DeclinePhrase = "I cannot find sufficient information"

const systemPrompt = `You are an expert biomedical researcher assistant. Answer the question based on the provided research paper excerpts.

IMPORTANT RULES:
1. Only use information from the provided context
2. Cite sources using [PMID: xxxxx] format
3. If the context doesn't contain enough information, say "` + DeclinePhrase + ` in the provided papers"
4. Do not make assumptions or add information not present in the context
5. Be precise and factual
6. Explain complex terms when needed`

// noEvidenceAnswer is returned without a generation call when retrieval
// produces zero candidates.
const noEvidenceAnswer = "I could not find any relevant information in the database to answer your question."

// buildContext formats evidence into the labeled block the model cites from.
// Each item carries its PMID so the model can emit [PMID: x] markers.
func buildContext(evidence []domain.EvidenceItem) string {
	var b strings.Builder
	for i, e := range evidence {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[Paper %d] PMID: %s\n", i+1, e.PMID)
		fmt.Fprintf(&b, "Title: %s\n", e.Title)
		fmt.Fprintf(&b, "Section: %s\n", e.Section)
		fmt.Fprintf(&b, "Content: %s\n", e.Text)
	}
	return b.String()
}

// buildUserPrompt combines the context block and the question.
func buildUserPrompt(question, context string) string {
	var b strings.Builder
	b.WriteString("Context from research papers:\n")
	b.WriteString(context)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nProvide a detailed answer with citations:")
	return b.String()
}
