// Command backfill refreshes stored paper metadata. It pages through Paper
// nodes in Neo4j, re-fetches each batch from PubMed, recomputes citation
// counts from the graph, and optionally requeues papers for re-embedding.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/david1005910/Bio2/engine/citegraph"
	"github.com/david1005910/Bio2/engine/ingest"
	"github.com/david1005910/Bio2/pkg/natsutil"
	"github.com/david1005910/Bio2/pkg/pubmed"
	"github.com/david1005910/Bio2/pkg/repo"
)

func main() {
	_ = godotenv.Load()

	var (
		batchSize = flag.Int("batch", 100, "papers per page")
		requeue   = flag.Bool("requeue", false, "requeue refreshed papers for re-embedding")
		natsURL   = flag.String("nats", envOr("NATS_URL", nats.DefaultURL), "NATS server URL")
		apiKey    = flag.String("api-key", os.Getenv("PUBMED_API_KEY"), "NCBI API key")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	neo4jURL := envOr("NEO4J_URL", "neo4j://localhost:7687")
	neo4jUser := envOr("NEO4J_USER", "neo4j")
	neo4jPass := envOr("NEO4J_PASS", "password")

	driver, err := neo4j.NewDriverWithContext(neo4jURL, neo4j.BasicAuth(neo4jUser, neo4jPass, ""))
	if err != nil {
		log.Fatalf("neo4j connect: %v", err)
	}
	defer driver.Close(ctx)

	graph := citegraph.New(driver)
	papers := citegraph.NewPaperRepo(driver)
	client := pubmed.NewClient(pubmed.Options{APIKey: *apiKey})

	var nc *nats.Conn
	if *requeue {
		nc, err = nats.Connect(*natsURL, nats.Name("bio2-backfill"))
		if err != nil {
			log.Fatalf("nats connect: %v", err)
		}
		defer nc.Drain()
	}

	var refreshed, requeued, failed int
	for offset := 0; ; offset += *batchSize {
		if ctx.Err() != nil {
			break
		}
		page, err := papers.List(ctx, repo.ListOpts{Offset: offset, Limit: *batchSize})
		if err != nil {
			log.Fatalf("list papers at offset %d: %v", offset, err)
		}
		if len(page) == 0 {
			break
		}

		pmids := make([]string, len(page))
		for i, m := range page {
			pmids[i] = m.PMID
		}
		fresh, err := client.Fetch(ctx, pmids)
		if err != nil {
			log.Printf("pubmed fetch at offset %d: %v (got %d)", offset, err, len(fresh))
		}
		freshByPMID := make(map[string]int, len(fresh))
		for i, p := range fresh {
			freshByPMID[p.PMID] = i
		}

		for _, meta := range page {
			// Citation count comes from the graph, not PubMed.
			citers, err := graph.CitedBy(ctx, meta.PMID)
			if err != nil {
				log.Printf("cited-by %s: %v", meta.PMID, err)
				failed++
				continue
			}
			meta.CitationCount = len(citers)

			if i, ok := freshByPMID[meta.PMID]; ok {
				meta.Title = fresh[i].Title
				meta.Journal = fresh[i].Journal
				if !fresh[i].PublishedAt.IsZero() {
					meta.Year = fresh[i].PublishedAt.Year()
				}
			}

			if err := papers.Save(ctx, meta); err != nil {
				log.Printf("save %s: %v", meta.PMID, err)
				failed++
				continue
			}
			refreshed++

			if nc != nil {
				if i, ok := freshByPMID[meta.PMID]; ok {
					if err := natsutil.Publish(ctx, nc, ingest.Subject, fresh[i]); err != nil {
						log.Printf("requeue %s: %v", meta.PMID, err)
						continue
					}
					requeued++
				}
			}
		}

		log.Printf("progress: %d refreshed, %d requeued, %d failed", refreshed, requeued, failed)
	}

	log.Printf("done: %d refreshed, %d requeued, %d failed", refreshed, requeued, failed)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
