package search

import "strings"

// synonyms is the biomedical query-expansion table. Keys are matched as
// substrings of the lowercased query; matched entries are appended so the
// embedder sees both the original phrasing and the variants.
var synonyms = map[string][]string{
	"t cell":        {"t lymphocyte", "t-cell"},
	"cancer":        {"carcinoma", "tumor", "malignancy", "neoplasm"},
	"crispr":        {"crispr-cas9", "crispr/cas9", "gene editing"},
	"car-t":         {"car t", "chimeric antigen receptor"},
	"immunotherapy": {"immune therapy", "immunotherapeutic"},
	"antibody":      {"immunoglobulin", "mab", "monoclonal antibody"},
	"rna":           {"ribonucleic acid"},
	"dna":           {"deoxyribonucleic acid"},
	"gene":          {"genetic", "genomic"},
	"protein":       {"proteomic", "polypeptide"},
}

// expansionOrder keeps expansion deterministic across runs.
var expansionOrder = []string{
	"t cell", "cancer", "crispr", "car-t", "immunotherapy",
	"antibody", "rna", "dna", "gene", "protein",
}

// ExpandQuery appends known synonyms of terms found in the query, improving
// recall for domain vocabulary. The original query always comes first.
func ExpandQuery(query string) string {
	lower := strings.ToLower(query)
	terms := []string{query}
	for _, key := range expansionOrder {
		if strings.Contains(lower, key) {
			terms = append(terms, synonyms[key]...)
		}
	}
	return strings.Join(terms, " ")
}
