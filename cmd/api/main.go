// Package main implements the Bio2 API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"

	"github.com/david1005910/Bio2/engine/cache"
	"github.com/david1005910/Bio2/engine/citegraph"
	"github.com/david1005910/Bio2/engine/domain"
	"github.com/david1005910/Bio2/engine/embed"
	"github.com/david1005910/Bio2/engine/rag"
	"github.com/david1005910/Bio2/engine/recommend"
	"github.com/david1005910/Bio2/engine/rerank"
	"github.com/david1005910/Bio2/engine/retrieve"
	"github.com/david1005910/Bio2/engine/search"
	"github.com/david1005910/Bio2/engine/semantic"
	"github.com/david1005910/Bio2/pkg/metrics"
	"github.com/david1005910/Bio2/pkg/mid"
	"github.com/david1005910/Bio2/pkg/resilience"
)

// Config holds all environment-based configuration.
type Config struct {
	Port       string
	GatewayURL string
	GatewayKey string
	Neo4jURL   string
	Neo4jUser  string
	Neo4jPass  string
	QdrantURL  string
	Collection string
	RedisAddr  string
	NATSURL    string
	CORSOrigin string
	RatePerSec float64
	RateBurst  int
}

func loadConfig() Config {
	return Config{
		Port:       envOr("PORT", "8080"),
		GatewayURL: envOr("MODEL_GATEWAY_URL", "http://localhost:8500"),
		GatewayKey: os.Getenv("MODEL_GATEWAY_KEY"),
		Neo4jURL:   envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser:  envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:  envOr("NEO4J_PASS", "password"),
		QdrantURL:  envOr("QDRANT_URL", "localhost:6334"),
		Collection: envOr("QDRANT_COLLECTION", "bio2_papers"),
		RedisAddr:  envOr("REDIS_ADDR", "localhost:6379"),
		NATSURL:    envOr("NATS_URL", nats.DefaultURL),
		CORSOrigin: envOr("CORS_ORIGIN", "*"),
		RatePerSec: envFloat("RATE_LIMIT_PER_SEC", 50),
		RateBurst:  int(envFloat("RATE_LIMIT_BURST", 100)),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Model gateway handles (dialed lazily on first use) ---
	embedder := embed.NewGatewayHandle(embed.DefaultOptions(), cfg.GatewayURL, cfg.GatewayKey)
	reranker := rerank.NewGatewayHandle(rerank.DefaultOptions(), cfg.GatewayURL, cfg.GatewayKey)
	generator := rag.NewGatewayGenHandle(rag.DefaultGenerateOptions(), cfg.GatewayURL, cfg.GatewayKey)

	// --- Connect to Qdrant ---
	vectorStore, err := semantic.New(cfg.QdrantURL, cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectorStore.Close()
	if err := vectorStore.EnsureCollection(ctx, embedder.Dimensions()); err != nil {
		return fmt.Errorf("qdrant collection: %w", err)
	}

	// --- Connect to Neo4j ---
	neo4jDriver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer neo4jDriver.Close(ctx)
	graphStore := citegraph.New(neo4jDriver)

	// --- Connect to Redis ---
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	respCache := cache.NewResponseCache(rdb, cache.DefaultTTL)
	sessions := cache.NewSessionStore(rdb, cache.DefaultMaxTurns, cache.DefaultSessionTTL)

	// --- Connect to NATS ---
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("bio2-api"))
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Drain()

	// --- Build services ---
	retriever := retrieve.New(embedder, vectorStore, reranker, retrieve.DefaultOptions(), logger)
	guarded := &guardedGenerator{
		inner:   generator,
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
	}
	ragSvc := rag.New(retriever, guarded, respCache, sessions, rag.DefaultOptions(), logger)
	searchSvc := search.New(embedder, vectorStore, reranker, graphStore, search.DefaultOptions(), logger)
	recommender := recommend.New(vectorStore, graphStore, recommend.DefaultOptions(), logger)

	m := metrics.New()

	api := &apiServer{
		rag:       ragSvc,
		search:    searchSvc,
		recommend: recommender,
		sessions:  sessions,
		index:     vectorStore,
		graph:     graphStore,
		nats:      nc,
		metrics:   m,
		logger:    logger,
	}

	// --- Build HTTP server ---
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", api.handleHealth)
	mux.HandleFunc("POST /api/v1/chat/query", api.handleChatQuery)
	mux.HandleFunc("GET /api/v1/chat/history/{session}", api.handleHistory)
	mux.HandleFunc("DELETE /api/v1/chat/history/{session}", api.handleClearHistory)
	mux.HandleFunc("POST /api/v1/search", api.handleSearch)
	mux.HandleFunc("GET /api/v1/recommendations/{pmid}", api.handleRecommendations)
	mux.HandleFunc("POST /api/v1/papers", api.handleEnqueuePaper)
	mux.HandleFunc("DELETE /api/v1/papers/{pmid}", api.handleDeletePaper)
	mux.Handle("GET /metrics", m.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("bio2-api"),
		mid.Metrics(m),
		mid.RateLimit(resilience.NewLimiter(cfg.RatePerSec, cfg.RateBurst)),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// guardedGenerator trips a circuit breaker on generation failures so a dead
// model backend sheds load fast instead of timing out every request.
type guardedGenerator struct {
	inner   rag.Generator
	breaker *resilience.Breaker
}

func (g *guardedGenerator) Generate(ctx context.Context, question string, evidence []domain.EvidenceItem, temperature float32) (string, error) {
	var answer string
	err := g.breaker.Call(ctx, func(ctx context.Context) error {
		var genErr error
		answer, genErr = g.inner.Generate(ctx, question, evidence, temperature)
		return genErr
	})
	return answer, err
}
