// Command ingest consumes papers from the NATS ingest subject and runs them
// through the ingestion pipeline into Qdrant and Neo4j.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/david1005910/Bio2/engine/chunk"
	"github.com/david1005910/Bio2/engine/citegraph"
	"github.com/david1005910/Bio2/engine/embed"
	"github.com/david1005910/Bio2/engine/ingest"
	"github.com/david1005910/Bio2/engine/semantic"
	"github.com/david1005910/Bio2/pkg/metrics"
)

func main() {
	_ = godotenv.Load()

	var (
		natsURL     = flag.String("nats", envOr("NATS_URL", nats.DefaultURL), "NATS server URL")
		gatewayURL  = flag.String("gateway", envOr("MODEL_GATEWAY_URL", "http://localhost:8500"), "model gateway base URL")
		gatewayKey  = flag.String("gateway-key", os.Getenv("MODEL_GATEWAY_KEY"), "model gateway API key")
		neo4jURL    = flag.String("neo4j", envOr("NEO4J_URL", "neo4j://localhost:7687"), "Neo4j bolt URL")
		neo4jUser   = flag.String("neo4j-user", envOr("NEO4J_USER", "neo4j"), "Neo4j username")
		neo4jPass   = flag.String("neo4j-pass", envOr("NEO4J_PASS", "password"), "Neo4j password")
		qdrantAddr  = flag.String("qdrant", envOr("QDRANT_URL", "localhost:6334"), "Qdrant gRPC address")
		collection  = flag.String("collection", envOr("QDRANT_COLLECTION", "bio2_papers"), "Qdrant collection name")
		chunkSize   = flag.Int("chunk-size", 0, "chunk size in tokens (0 = default)")
		overlap     = flag.Int("chunk-overlap", 0, "chunk overlap in tokens (0 = default)")
		metricsPort = flag.String("metrics-port", envOr("METRICS_PORT", "9091"), "Prometheus metrics port")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	driver, err := neo4j.NewDriverWithContext(*neo4jURL, neo4j.BasicAuth(*neo4jUser, *neo4jPass, ""))
	if err != nil {
		logger.Error("neo4j connect failed", "err", err)
		os.Exit(1)
	}
	defer driver.Close(ctx)
	if err := driver.VerifyConnectivity(ctx); err != nil {
		logger.Error("neo4j verify failed", "err", err)
		os.Exit(1)
	}

	embedder := embed.NewGatewayHandle(embed.DefaultOptions(), *gatewayURL, *gatewayKey)

	vs, err := semantic.New(*qdrantAddr, *collection)
	if err != nil {
		logger.Error("qdrant connect failed", "err", err)
		os.Exit(1)
	}
	defer vs.Close()
	if err := vs.EnsureCollection(ctx, embedder.Dimensions()); err != nil {
		logger.Error("qdrant ensure collection failed", "err", err)
		os.Exit(1)
	}
	logger.Info("connected to Qdrant", "collection", *collection, "dims", embedder.Dimensions())

	nc, err := nats.Connect(*natsURL, nats.Name("bio2-ingest"))
	if err != nil {
		logger.Error("nats connect failed", "err", err)
		os.Exit(1)
	}
	defer nc.Drain()

	m := metrics.New()
	metricsSrv := &http.Server{Addr: ":" + *metricsPort, Handler: m.Handler()}
	go func() {
		logger.Info("metrics server starting", "port", *metricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "err", err)
		}
	}()
	defer metricsSrv.Close()

	deps := ingest.Deps{
		Chunker:  chunk.New(*chunkSize, *overlap),
		Embedder: embedder,
		Index:    vs,
		Graph:    citegraph.New(driver),
		Metrics:  m,
		Logger:   logger,
	}
	sub, err := ingest.StartConsumer(nc, deps)
	if err != nil {
		logger.Error("subscribe failed", "err", err)
		os.Exit(1)
	}
	defer sub.Unsubscribe()

	logger.Info("ingest consumer started", "subject", ingest.Subject)
	<-ctx.Done()
	logger.Info("shutting down")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
