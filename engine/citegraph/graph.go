// Package citegraph stores the paper citation graph in Neo4j. Papers are
// nodes keyed by PMID; a CITES edge points from the citing paper to the
// cited paper. Referenced papers that were never ingested exist as stub
// nodes carrying only their PMID.
package citegraph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/david1005910/Bio2/engine/domain"
)

// PaperMeta is the citation-relevant subset of a paper node.
type PaperMeta struct {
	PMID          string
	Title         string
	Journal       string
	Year          int
	CitationCount int
}

// Graph is the surface the recommendation scorer consumes.
type Graph interface {
	CoCitationScores(ctx context.Context, pmid string) (map[string]float64, error)
	Papers(ctx context.Context, pmids []string) (map[string]PaperMeta, error)
}

// Store provides citation-graph operations over a Neo4j driver.
type Store struct {
	driver neo4j.DriverWithContext
}

var _ Graph = (*Store)(nil)

// New creates a citation graph store.
func New(driver neo4j.DriverWithContext) *Store {
	return &Store{driver: driver}
}

// SavePaper creates or updates a paper node and its outgoing CITES edges.
func (s *Store) SavePaper(ctx context.Context, p domain.Paper) error {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, savePaperTx(ctx, tx, p)
	})
	if err != nil {
		return fmt.Errorf("citegraph: save paper %s: %w", p.PMID, err)
	}
	return nil
}

// SaveBatch saves multiple papers and their citations in one transaction.
func (s *Store) SaveBatch(ctx context.Context, papers []domain.Paper) error {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, p := range papers {
			if err := savePaperTx(ctx, tx, p); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("citegraph: save batch of %d: %w", len(papers), err)
	}
	return nil
}

func savePaperTx(ctx context.Context, tx neo4j.ManagedTransaction, p domain.Paper) error {
	cypher := `MERGE (n:Paper {pmid: $pmid}) SET n += $props`
	if _, err := tx.Run(ctx, cypher, map[string]any{
		"pmid":  p.PMID,
		"props": paperProps(p),
	}); err != nil {
		return err
	}
	if len(p.References) == 0 {
		return nil
	}
	// Stub nodes for references keep the graph connected before the cited
	// papers are ingested themselves.
	edges := `MATCH (a:Paper {pmid: $pmid})
			  UNWIND $refs AS ref
			  MERGE (b:Paper {pmid: ref})
			  MERGE (a)-[:CITES]->(b)`
	_, err := tx.Run(ctx, edges, map[string]any{"pmid": p.PMID, "refs": p.References})
	return err
}

// DeletePaper detaches and removes a paper node.
func (s *Store) DeletePaper(ctx context.Context, pmid string) error {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	_, err := sess.Run(ctx, `MATCH (n:Paper {pmid: $pmid}) DETACH DELETE n`,
		map[string]any{"pmid": pmid})
	if err != nil {
		return fmt.Errorf("citegraph: delete paper %s: %w", pmid, err)
	}
	return nil
}

// Cites returns the PMIDs a paper cites.
func (s *Store) Cites(ctx context.Context, pmid string) ([]string, error) {
	return s.pmidQuery(ctx,
		`MATCH (:Paper {pmid: $pmid})-[:CITES]->(b:Paper) RETURN b.pmid AS pmid`, pmid)
}

// CitedBy returns the PMIDs of papers citing this one.
func (s *Store) CitedBy(ctx context.Context, pmid string) ([]string, error) {
	return s.pmidQuery(ctx,
		`MATCH (:Paper {pmid: $pmid})<-[:CITES]-(b:Paper) RETURN b.pmid AS pmid`, pmid)
}

func (s *Store) pmidQuery(ctx context.Context, cypher, pmid string) ([]string, error) {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer sess.Close(ctx)

	result, err := sess.Run(ctx, cypher, map[string]any{"pmid": pmid})
	if err != nil {
		return nil, fmt.Errorf("citegraph: query %s: %w", pmid, err)
	}
	var out []string
	for result.Next(ctx) {
		if v, ok := result.Record().Get("pmid"); ok {
			if id, ok := v.(string); ok {
				out = append(out, id)
			}
		}
	}
	return out, result.Err()
}

// CoCitationScores scores every paper co-cited with the given one. A paper
// citing the same references earns 1.0 per shared reference; a paper cited
// by the same citers earns 0.5 per shared citer. Scores are normalized by
// the maximum so the best candidate is 1.0.
func (s *Store) CoCitationScores(ctx context.Context, pmid string) (map[string]float64, error) {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer sess.Close(ctx)

	scores := make(map[string]float64)

	coCiters := `MATCH (:Paper {pmid: $pmid})-[:CITES]->(ref:Paper)<-[:CITES]-(co:Paper)
				 WHERE co.pmid <> $pmid
				 RETURN co.pmid AS pmid, count(ref) AS n`
	if err := s.accumulate(ctx, sess, coCiters, pmid, 1.0, scores); err != nil {
		return nil, err
	}

	coCited := `MATCH (:Paper {pmid: $pmid})<-[:CITES]-(citer:Paper)-[:CITES]->(co:Paper)
				WHERE co.pmid <> $pmid
				RETURN co.pmid AS pmid, count(citer) AS n`
	if err := s.accumulate(ctx, sess, coCited, pmid, 0.5, scores); err != nil {
		return nil, err
	}

	return NormalizeScores(scores), nil
}

func (s *Store) accumulate(ctx context.Context, sess neo4j.SessionWithContext, cypher, pmid string, weight float64, scores map[string]float64) error {
	result, err := sess.Run(ctx, cypher, map[string]any{"pmid": pmid})
	if err != nil {
		return fmt.Errorf("citegraph: co-citation %s: %w", pmid, err)
	}
	for result.Next(ctx) {
		rec := result.Record()
		id, ok := rec.Get("pmid")
		if !ok {
			continue
		}
		n, _ := rec.Get("n")
		count, _ := n.(int64)
		if sid, ok := id.(string); ok {
			scores[sid] += weight * float64(count)
		}
	}
	return result.Err()
}

// Papers returns metadata for the given PMIDs. Unknown ids are absent from
// the result, not an error.
func (s *Store) Papers(ctx context.Context, pmids []string) (map[string]PaperMeta, error) {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer sess.Close(ctx)

	cypher := `MATCH (n:Paper) WHERE n.pmid IN $pmids
			   RETURN n.pmid AS pmid, n.title AS title, n.journal AS journal,
					  n.year AS year, n.citation_count AS citations`
	result, err := sess.Run(ctx, cypher, map[string]any{"pmids": pmids})
	if err != nil {
		return nil, fmt.Errorf("citegraph: papers: %w", err)
	}

	out := make(map[string]PaperMeta, len(pmids))
	for result.Next(ctx) {
		rec := result.Record()
		meta := PaperMeta{
			PMID:          strVal(rec, "pmid"),
			Title:         strVal(rec, "title"),
			Journal:       strVal(rec, "journal"),
			Year:          intVal(rec, "year"),
			CitationCount: intVal(rec, "citations"),
		}
		if meta.PMID != "" {
			out[meta.PMID] = meta
		}
	}
	return out, result.Err()
}

// NormalizeScores divides every score by the maximum, mapping the best
// candidate to 1.0. An empty map stays empty.
func NormalizeScores(scores map[string]float64) map[string]float64 {
	var max float64
	for _, v := range scores {
		if v > max {
			max = v
		}
	}
	if max == 0 {
		return scores
	}
	for k, v := range scores {
		scores[k] = v / max
	}
	return scores
}

func paperProps(p domain.Paper) map[string]any {
	props := map[string]any{
		"title":          p.Title,
		"journal":        p.Journal,
		"citation_count": p.CitationCount,
	}
	if !p.PublishedAt.IsZero() {
		props["year"] = p.PublishedAt.Year()
	}
	return props
}

func strVal(rec *neo4j.Record, key string) string {
	if v, ok := rec.Get(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func intVal(rec *neo4j.Record, key string) int {
	if v, ok := rec.Get(key); ok {
		if n, ok := v.(int64); ok {
			return int(n)
		}
	}
	return 0
}
