package domain

import (
	"fmt"
	"regexp"
)

// Citation marker wire format inside generated answers. The validator depends
// on this exact shape, so it must not drift.
const markerFormat = "[PMID: %s]"

// markerRegex matches citation markers of the form [PMID: 12345]. Identifiers
// are alphanumeric to cover both PubMed numeric ids and test accessions.
var markerRegex = regexp.MustCompile(`\[PMID:\s*([A-Za-z0-9.-]+)\]`)

// Marker formats a citation marker for the given identifier.
func Marker(pmid string) string {
	return fmt.Sprintf(markerFormat, pmid)
}

// ExtractMarkers returns every cited identifier in answer text, in order of
// appearance, duplicates included.
func ExtractMarkers(text string) []string {
	matches := markerRegex.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m[1]
	}
	return ids
}
