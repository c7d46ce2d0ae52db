// Command collector searches PubMed for papers matching a query, fetches
// their metadata, and queues them for ingestion over NATS.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/david1005910/Bio2/engine/domain"
	"github.com/david1005910/Bio2/engine/ingest"
	"github.com/david1005910/Bio2/pkg/natsutil"
	"github.com/david1005910/Bio2/pkg/pubmed"
)

func main() {
	_ = godotenv.Load()

	var (
		query     = flag.String("query", "", "PubMed search query, e.g. 'cancer immunotherapy[Title/Abstract]'")
		max       = flag.Int("max", 100, "maximum number of papers to collect")
		startDate = flag.String("start", "", "earliest publication date, YYYY/MM/DD")
		endDate   = flag.String("end", "", "latest publication date, YYYY/MM/DD")
		apiKey    = flag.String("api-key", os.Getenv("PUBMED_API_KEY"), "NCBI API key (raises rate limit)")
		natsURL   = flag.String("nats", envOr("NATS_URL", nats.DefaultURL), "NATS server URL")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if *query == "" {
		logger.Error("-query is required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nc, err := nats.Connect(*natsURL, nats.Name("bio2-collector"))
	if err != nil {
		logger.Error("nats connect failed", "err", err)
		os.Exit(1)
	}
	defer nc.Drain()

	client := pubmed.NewClient(pubmed.Options{APIKey: *apiKey})

	var dr *pubmed.DateRange
	if *startDate != "" && *endDate != "" {
		dr = &pubmed.DateRange{Start: *startDate, End: *endDate}
	}

	pmids, err := client.Search(ctx, *query, *max, dr)
	if err != nil {
		logger.Error("pubmed search failed", "err", err)
		os.Exit(1)
	}
	logger.Info("search done", "query", *query, "pmids", len(pmids))
	if len(pmids) == 0 {
		return
	}

	papers, err := client.Fetch(ctx, pmids)
	if err != nil {
		logger.Error("pubmed fetch failed", "fetched", len(papers), "err", err)
		if len(papers) == 0 {
			os.Exit(1)
		}
	}

	queued, skipped := 0, 0
	for _, p := range papers {
		if ctx.Err() != nil {
			break
		}
		if err := domain.ValidatePaper(p); err != nil {
			logger.Warn("skipping invalid paper", "pmid", p.PMID, "err", err)
			skipped++
			continue
		}
		if err := natsutil.Publish(ctx, nc, ingest.Subject, p); err != nil {
			logger.Error("enqueue failed", "pmid", p.PMID, "err", err)
			skipped++
			continue
		}
		queued++
	}

	logger.Info("collection done", "queued", queued, "skipped", skipped)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
