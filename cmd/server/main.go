// Package main provides the price guard service: it polls the oracle
// for every configured feed, optionally consumes the on-chain account
// stream, validates each observation, and persists accepted records
// and rejections.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"pyth-price-guard/internal/domain"
	"pyth-price-guard/internal/monitor"
	"pyth-price-guard/internal/observability"
	"pyth-price-guard/internal/oracle"
	"pyth-price-guard/internal/pyth"
	"pyth-price-guard/internal/solana"
	"pyth-price-guard/internal/storage"
	chstore "pyth-price-guard/internal/storage/clickhouse"
	"pyth-price-guard/internal/storage/memory"
	"pyth-price-guard/internal/storage/migrations"
	pgstore "pyth-price-guard/internal/storage/postgres"
	"pyth-price-guard/internal/validation"
)

// Server wires the monitor runner to its source, stores and HTTP
// surface.
type Server struct {
	feeds        []monitor.Feed
	pollInterval time.Duration
	logger       *log.Logger

	recordStore    storage.PriceRecordStore
	rejectionStore storage.RejectionStore

	mu      sync.Mutex
	started time.Time
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	feedsFlag := flag.String("feeds", os.Getenv("GUARD_FEEDS"), "Comma-separated SYMBOL=FEED_ID_HEX pairs")
	source := flag.String("source", "hermes", "Polling source: hermes or solana")
	hermesEndpoint := flag.String("hermes-endpoint", oracle.DefaultEndpoint, "Hermes HTTP endpoint")
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("SOLANA_WS_ENDPOINT"), "Solana WebSocket endpoint (enables account streaming)")
	shard := flag.Uint("shard", 0, "Push oracle shard for feed account derivation")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (stores records there instead of PostgreSQL)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of databases")
	pollInterval := flag.Duration("poll-interval", 10*time.Second, "Feed polling interval")
	maxAge := flag.Duration("max-age", validation.DefaultMaxAge, "Maximum observation age")
	maxConfBps := flag.Uint64("max-conf-bps", validation.DefaultMaxConfRatioBps, "Maximum confidence/price ratio in basis points")
	httpAddr := flag.String("http-addr", ":9090", "HTTP address for health/metrics/status")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	feeds, err := parseFeeds(*feedsFlag)
	if err != nil {
		logger.Fatalf("Invalid --feeds value: %v", err)
	}
	if len(feeds) == 0 {
		logger.Fatal("--feeds is required, e.g. --feeds SOL/USD=ef0d8b6f...")
	}
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	recordStore, rejectionStore, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	priceSource, err := createSource(*source, *hermesEndpoint, *rpcEndpoint, uint16(*shard))
	if err != nil {
		logger.Fatal(err)
	}
	logger.Printf("Monitoring %d feeds via %s, poll interval %v", len(feeds), priceSource.Name(), *pollInterval)

	// Optional streaming intake from the on-chain feed accounts.
	var stream solana.WSClient
	if *wsEndpoint != "" {
		ws, err := solana.NewWSClient(ctx, *wsEndpoint, nil)
		if err != nil {
			logger.Fatalf("Failed to connect WebSocket: %v", err)
		}
		defer ws.Close()
		stream = ws
		logger.Printf("Streaming feed accounts from %s", *wsEndpoint)
	}

	runner := monitor.NewRunner(monitor.RunnerOptions{
		Source:         priceSource,
		Config:         validation.Config{MaxAge: *maxAge, MaxConfRatioBps: *maxConfBps},
		Feeds:          feeds,
		RecordStore:    recordStore,
		RejectionStore: rejectionStore,
		Stream:         stream,
		Shard:          uint16(*shard),
		PollInterval:   *pollInterval,
		Logger:         log.New(os.Stdout, "[monitor] ", log.LstdFlags|log.Lshortfile),
	})

	server := &Server{
		feeds:          feeds,
		pollInterval:   *pollInterval,
		logger:         logger,
		recordStore:    recordStore,
		rejectionStore: rejectionStore,
		started:        time.Now(),
	}

	// Channel to signal completion
	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	// Start HTTP server
	go server.startHTTPServer(*httpAddr)

	err = runner.Run(ctx)
	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// parseFeeds parses "SYMBOL=FEED_ID_HEX,..." into monitor feeds.
func parseFeeds(s string) ([]monitor.Feed, error) {
	var feeds []monitor.Feed
	seen := make(map[domain.FeedID]bool)

	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("expected SYMBOL=FEED_ID, got %q", pair)
		}
		symbol := strings.TrimSpace(parts[0])
		id, err := domain.ParseFeedID(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("feed %q: %w", symbol, err)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		feeds = append(feeds, monitor.Feed{Symbol: symbol, ID: id})
	}
	return feeds, nil
}

// createSource builds the polling price source.
func createSource(source, hermesEndpoint, rpcEndpoint string, shard uint16) (validation.PriceSource, error) {
	switch source {
	case "hermes":
		return oracle.NewHermesClient(hermesEndpoint), nil
	case "solana":
		if rpcEndpoint == "" {
			return nil, fmt.Errorf("--rpc-endpoint is required for source=solana")
		}
		return pyth.NewSource(solana.NewHTTPClient(rpcEndpoint), shard), nil
	default:
		return nil, fmt.Errorf("unknown source %q, want hermes or solana", source)
	}
}

// createStores creates the record and rejection stores and runs
// migrations. Records go to ClickHouse when a DSN is given, otherwise
// to PostgreSQL; rejections always live in PostgreSQL.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (storage.PriceRecordStore, storage.RejectionStore, func(), error) {
	if useMemory {
		return memory.NewPriceRecordStore(), memory.NewRejectionStore(), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	rejectionStore := pgstore.NewRejectionStore(pool)

	if clickhouseDSN == "" {
		return pgstore.NewPriceRecordStore(pool), rejectionStore, pool.Close, nil
	}

	chConn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}
	return chstore.NewPriceRecordStore(chConn), rejectionStore, cleanup, nil
}

// startHTTPServer starts the HTTP server for health/metrics/status.
func (s *Server) startHTTPServer(addr string) {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("/metrics", observability.Handler())

	// Status and latest-record endpoints
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/latest", s.handleLatest)

	s.logger.Printf("Starting HTTP server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		s.logger.Printf("HTTP server error: %v", err)
	}
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status       string   `json:"status"`
	Uptime       string   `json:"uptime"`
	Feeds        []string `json:"feeds"`
	PollInterval string   `json:"poll_interval"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	symbols := make([]string, 0, len(s.feeds))
	for _, f := range s.feeds {
		symbols = append(symbols, f.Symbol)
	}

	resp := StatusResponse{
		Status:       "running",
		Uptime:       time.Since(started).String(),
		Feeds:        symbols,
		PollInterval: s.pollInterval.String(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// LatestResponse is the JSON response for /latest endpoint.
type LatestResponse struct {
	FeedID      string `json:"feed_id"`
	Symbol      string `json:"symbol"`
	Price       int64  `json:"price"`
	Conf        uint64 `json:"conf"`
	Expo        int32  `json:"expo"`
	PublishTime int64  `json:"publish_time"`
	RatioBps    uint64 `json:"ratio_bps"`
	Source      string `json:"source"`
}

// handleLatest returns the latest accepted record for ?feed=<hex>.
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseFeedID(r.URL.Query().Get("feed"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rec, err := s.recordStore.Latest(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "no records for feed", http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	resp := LatestResponse{
		FeedID:      rec.FeedID.String(),
		Symbol:      rec.Symbol,
		Price:       rec.Price,
		Conf:        rec.Conf,
		Expo:        rec.Expo,
		PublishTime: rec.PublishTime,
		RatioBps:    rec.RatioBps,
		Source:      rec.Source,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
