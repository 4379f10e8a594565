package pyth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pyth-price-guard/internal/domain"
	"pyth-price-guard/internal/solana"
	"pyth-price-guard/internal/validation"
)

// Source reads price updates from push oracle feed accounts on Solana.
type Source struct {
	rpc   solana.RPCClient
	shard uint16

	// derived feed account addresses, cached per feed
	mu       sync.Mutex
	accounts map[domain.FeedID]string
}

// NewSource creates an on-chain price source for the given shard.
func NewSource(rpc solana.RPCClient, shard uint16) *Source {
	return &Source{
		rpc:      rpc,
		shard:    shard,
		accounts: make(map[domain.FeedID]string),
	}
}

// Compile-time interface check.
var _ validation.PriceSource = (*Source)(nil)

// Name identifies the source in records and logs.
func (s *Source) Name() string { return domain.SourceSolana }

// AccountFor returns the derived feed account address for a feed,
// computing and caching it on first use.
func (s *Source) AccountFor(feedID domain.FeedID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if addr, ok := s.accounts[feedID]; ok {
		return addr, nil
	}

	addr, err := PriceFeedAccount(s.shard, feedID)
	if err != nil {
		return "", fmt.Errorf("derive feed account: %w", err)
	}
	s.accounts[feedID] = addr
	return addr, nil
}

// Latest fetches the feed account and returns its observation if it is
// no older than maxAge relative to now (Unix seconds).
func (s *Source) Latest(ctx context.Context, feedID domain.FeedID, now int64, maxAge time.Duration) (*domain.PriceObservation, error) {
	addr, err := s.AccountFor(feedID)
	if err != nil {
		return nil, err
	}

	info, err := s.rpc.GetAccountInfo(ctx, addr)
	if err != nil {
		if errors.Is(err, solana.ErrAccountNotFound) {
			return nil, fmt.Errorf("%w: feed %s has no account on shard %d",
				validation.ErrFeedNotFound, feedID, s.shard)
		}
		return nil, fmt.Errorf("fetch feed account %s: %w", addr, err)
	}

	update, err := ParsePriceUpdate(info.Data)
	if err != nil {
		return nil, fmt.Errorf("parse feed account %s: %w", addr, err)
	}
	if update.FeedID != feedID {
		return nil, fmt.Errorf("%w: account %s holds feed %s", ErrFeedMismatch, addr, update.FeedID)
	}

	if update.PublishTime < now-int64(maxAge/time.Second) {
		return nil, fmt.Errorf("%w: published %d, now %d",
			validation.ErrStalePrice, update.PublishTime, now)
	}

	return update.Observation(domain.SourceSolana), nil
}
