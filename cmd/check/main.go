// Package main provides a one-shot price check: decode a feed
// identifier, fetch the freshest observation from the chosen source,
// validate it, and print the result.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"pyth-price-guard/internal/domain"
	"pyth-price-guard/internal/oracle"
	"pyth-price-guard/internal/pyth"
	"pyth-price-guard/internal/solana"
	"pyth-price-guard/internal/validation"
)

// Exit codes distinguish validation outcomes for scripting.
const (
	exitInvalidFeed = 2
	exitStale       = 3
	exitZeroPrice   = 4
	exitWideConf    = 5
)

func main() {
	feed := flag.String("feed", "", "Feed identifier, 64 hex chars (0x prefix allowed)")
	source := flag.String("source", "hermes", "Price source: hermes or solana")
	hermesEndpoint := flag.String("hermes-endpoint", oracle.DefaultEndpoint, "Hermes HTTP endpoint")
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint (source=solana)")
	shard := flag.Uint("shard", 0, "Push oracle shard (source=solana)")
	maxAge := flag.Duration("max-age", validation.DefaultMaxAge, "Maximum observation age")
	maxConfBps := flag.Uint64("max-conf-bps", validation.DefaultMaxConfRatioBps, "Maximum confidence/price ratio in basis points")
	timeout := flag.Duration("timeout", 15*time.Second, "Overall request timeout")

	flag.Parse()

	logger := log.New(os.Stderr, "[check] ", log.LstdFlags)

	if *feed == "" {
		logger.Fatal("--feed is required")
	}

	var priceSource validation.PriceSource
	switch *source {
	case "hermes":
		priceSource = oracle.NewHermesClient(*hermesEndpoint)
	case "solana":
		if *rpcEndpoint == "" {
			logger.Fatal("--rpc-endpoint is required for source=solana")
		}
		rpc := solana.NewHTTPClient(*rpcEndpoint)
		priceSource = pyth.NewSource(rpc, uint16(*shard))
	default:
		logger.Fatalf("Unknown source %q, want hermes or solana", *source)
	}

	checker := validation.NewChecker(validation.CheckerOptions{
		Source: priceSource,
		Config: validation.Config{MaxAge: *maxAge, MaxConfRatioBps: *maxConfBps},
		Logger: logger,
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	record, err := checker.Check(ctx, *feed)
	if err != nil {
		logger.Printf("Check failed: %v", err)
		os.Exit(exitCode(err))
	}

	fmt.Printf("feed=%s source=%s price=%d conf=%d expo=%d publish_time=%d ratio_bps=%d\n",
		record.FeedID, record.Source, record.Price, record.Conf, record.Expo,
		record.PublishTime, record.RatioBps)
}

// exitCode maps a check failure to its exit code.
func exitCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidFeedID):
		return exitInvalidFeed
	case errors.Is(err, validation.ErrStalePrice), errors.Is(err, validation.ErrFeedNotFound):
		return exitStale
	case errors.Is(err, validation.ErrZeroPrice):
		return exitZeroPrice
	case errors.Is(err, validation.ErrWideConfidence):
		return exitWideConf
	default:
		return 1
	}
}
