package citegraph

import (
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/david1005910/Bio2/pkg/repo"
)

// NewPaperRepo builds a generic repository over Paper nodes, used for paging
// through the corpus in backfill jobs and admin lookups.
func NewPaperRepo(driver neo4j.DriverWithContext) *repo.Neo4jRepo[PaperMeta, string] {
	return repo.NewNeo4jRepo[PaperMeta, string](driver, "Paper", "pmid", metaToMap, metaFromRecord)
}

func metaToMap(m PaperMeta) map[string]any {
	props := map[string]any{
		"pmid":           m.PMID,
		"title":          m.Title,
		"journal":        m.Journal,
		"citation_count": m.CitationCount,
	}
	if m.Year != 0 {
		props["year"] = m.Year
	}
	return props
}

func metaFromRecord(rec *neo4j.Record) (PaperMeta, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return PaperMeta{}, fmt.Errorf("citegraph: decode paper node: %w", err)
	}
	props := node.Props
	m := PaperMeta{}
	if v, ok := props["pmid"].(string); ok {
		m.PMID = v
	}
	if v, ok := props["title"].(string); ok {
		m.Title = v
	}
	if v, ok := props["journal"].(string); ok {
		m.Journal = v
	}
	if v, ok := props["year"].(int64); ok {
		m.Year = int(v)
	}
	if v, ok := props["citation_count"].(int64); ok {
		m.CitationCount = int(v)
	}
	return m, nil
}
