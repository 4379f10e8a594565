// Package monitor runs continuous price validation across a set of feeds.
package monitor

import (
	"context"
	"errors"
	"log"
	"time"

	"pyth-price-guard/internal/domain"
	"pyth-price-guard/internal/observability"
	"pyth-price-guard/internal/pyth"
	"pyth-price-guard/internal/solana"
	"pyth-price-guard/internal/storage"
	"pyth-price-guard/internal/validation"
)

// Feed pairs an operator-assigned symbol with the feed identifier.
type Feed struct {
	Symbol string
	ID     domain.FeedID
}

// Runner polls a price source for each configured feed, validates
// every observation, and persists accepted records and rejections.
// It can additionally consume a WebSocket account stream for the same
// feeds so that on-chain updates are validated as they land.
type Runner struct {
	checker   *validation.Checker
	validator *validation.Validator
	source    validation.PriceSource
	feeds     []Feed

	recordStore    storage.PriceRecordStore
	rejectionStore storage.RejectionStore

	stream solana.WSClient
	shard  uint16

	pollInterval time.Duration
	logger       *log.Logger
	now          func() int64
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Source         validation.PriceSource
	Config         validation.Config
	Feeds          []Feed
	RecordStore    storage.PriceRecordStore
	RejectionStore storage.RejectionStore

	// Stream is optional; when set the runner subscribes to the
	// on-chain feed accounts and validates pushed updates too.
	Stream solana.WSClient
	Shard  uint16

	PollInterval time.Duration // Default: 10s
	Logger       *log.Logger

	// Now supplies the current time in Unix seconds.
	// Default: time.Now().Unix.
	Now func() int64
}

// NewRunner creates a new monitor runner.
func NewRunner(opts RunnerOptions) *Runner {
	pollInterval := opts.PollInterval
	if pollInterval == 0 {
		pollInterval = 10 * time.Second
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	now := opts.Now
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}

	return &Runner{
		checker: validation.NewChecker(validation.CheckerOptions{
			Source: opts.Source,
			Config: opts.Config,
			Logger: logger,
			Now:    opts.Now,
		}),
		validator:      validation.NewValidator(opts.Config),
		source:         opts.Source,
		feeds:          opts.Feeds,
		recordStore:    opts.RecordStore,
		rejectionStore: opts.RejectionStore,
		stream:         opts.Stream,
		shard:          opts.Shard,
		pollInterval:   pollInterval,
		logger:         logger,
		now:            now,
	}
}

// streamUpdate tags an account notification with the feed it belongs to.
type streamUpdate struct {
	feed Feed
	note solana.AccountNotification
}

// Run starts the polling loop and, when configured, the account
// stream. It blocks until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	if len(r.feeds) == 0 {
		return errors.New("no feeds configured")
	}

	r.logger.Printf("Starting monitor for %d feeds, poll interval: %v", len(r.feeds), r.pollInterval)

	streamCh, err := r.subscribeStream(ctx)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	// Check all feeds once at startup so the first records do not
	// wait a full poll interval.
	r.checkAll(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Println("Monitor stopping...")
			return ctx.Err()

		case <-ticker.C:
			r.checkAll(ctx)

		case upd, ok := <-streamCh:
			if !ok {
				return errors.New("account stream closed")
			}
			r.handleStreamUpdate(ctx, upd)
		}
	}
}

// subscribeStream subscribes to the on-chain account of every feed and
// fans the notifications into a single channel. Returns a nil channel
// when no stream is configured; receiving from a nil channel blocks
// forever, which is what the select loop wants.
func (r *Runner) subscribeStream(ctx context.Context) (<-chan streamUpdate, error) {
	if r.stream == nil {
		return nil, nil
	}

	out := make(chan streamUpdate)
	for _, feed := range r.feeds {
		account, err := pyth.PriceFeedAccount(r.shard, feed.ID)
		if err != nil {
			return nil, err
		}

		ch, err := r.stream.SubscribeAccount(ctx, account)
		if err != nil {
			return nil, err
		}
		r.logger.Printf("Subscribed to %s account %s", feed.Symbol, account)

		go func(feed Feed, ch <-chan solana.AccountNotification) {
			for note := range ch {
				select {
				case out <- streamUpdate{feed: feed, note: note}:
				case <-ctx.Done():
					return
				}
			}
		}(feed, ch)
	}
	return out, nil
}

// checkAll runs one validation pass over every configured feed.
func (r *Runner) checkAll(ctx context.Context) {
	for _, feed := range r.feeds {
		r.checkFeed(ctx, feed)
	}
}

// checkFeed validates a single feed via the polling source and
// persists the outcome.
func (r *Runner) checkFeed(ctx context.Context, feed Feed) {
	start := time.Now()
	record, err := r.checker.CheckFeed(ctx, feed.ID)
	observability.RecordFetchLatency(r.source.Name(), time.Since(start).Seconds())
	observability.RecordCheck(r.source.Name())

	if err != nil {
		r.handleFailure(ctx, feed, nil, err)
		return
	}

	record.Symbol = feed.Symbol
	r.storeRecord(ctx, record)
}

// handleStreamUpdate decodes a pushed account update and validates it.
func (r *Runner) handleStreamUpdate(ctx context.Context, upd streamUpdate) {
	observability.RecordStreamUpdate()

	update, err := pyth.ParsePriceUpdate(upd.note.Data)
	if err != nil {
		observability.RecordStreamDecodeError()
		r.logger.Printf("Error decoding %s account update: %v", upd.feed.Symbol, err)
		return
	}
	if update.FeedID != upd.feed.ID {
		observability.RecordStreamDecodeError()
		r.logger.Printf("Error decoding %s account update: %v", upd.feed.Symbol, pyth.ErrFeedMismatch)
		return
	}

	obs := update.Observation(domain.SourceStream)
	if upd.note.Slot > obs.Slot {
		obs.Slot = upd.note.Slot
	}

	now := r.now()
	ratio, err := r.validator.Validate(obs, now)
	observability.RecordCheck(domain.SourceStream)
	if err != nil {
		r.handleFailure(ctx, upd.feed, obs, err)
		return
	}

	r.logger.Printf("feed %s: price (%d ± %d) * 10^%d published at %d",
		obs.FeedID, obs.Price, obs.Conf, obs.Expo, obs.PublishTime)

	r.storeRecord(ctx, &domain.PriceRecord{
		FeedID:      obs.FeedID,
		Symbol:      upd.feed.Symbol,
		Price:       obs.Price,
		Conf:        obs.Conf,
		Expo:        obs.Expo,
		PublishTime: obs.PublishTime,
		Slot:        obs.Slot,
		RatioBps:    ratio,
		Source:      domain.SourceStream,
		ReceivedAt:  time.Now().UnixMilli(),
	})
}

// storeRecord persists an accepted record. Duplicates are expected
// when polling faster than the oracle publishes.
func (r *Runner) storeRecord(ctx context.Context, record *domain.PriceRecord) {
	observability.RecordAccepted(record.Symbol, record.PublishTime, record.RatioBps)

	if r.recordStore == nil {
		return
	}
	if err := r.recordStore.Insert(ctx, record); err != nil {
		if !errors.Is(err, storage.ErrDuplicateKey) {
			r.logger.Printf("Error storing record for %s: %v", record.Symbol, err)
		}
	}
}

// handleFailure classifies a check failure as a validation rejection
// or an operational error and records it accordingly.
func (r *Runner) handleFailure(ctx context.Context, feed Feed, obs *domain.PriceObservation, err error) {
	reason := validation.RejectReason(err)
	if reason == "" {
		source := r.source.Name()
		if obs != nil {
			source = obs.Source
		}
		observability.RecordCheckError(source)
		r.logger.Printf("Error checking %s: %v", feed.Symbol, err)
		return
	}

	observability.RecordRejected(feed.Symbol, reason)
	r.logger.Printf("Rejected %s: %s (%v)", feed.Symbol, reason, err)

	if r.rejectionStore == nil {
		return
	}

	rej := &domain.Rejection{
		FeedID:     feed.ID,
		Symbol:     feed.Symbol,
		Reason:     reason,
		RejectedAt: time.Now().UnixMilli(),
	}
	if obs != nil {
		rej.Price = obs.Price
		rej.Conf = obs.Conf
		rej.PublishTime = obs.PublishTime
	}
	if err := r.rejectionStore.Insert(ctx, rej); err != nil {
		r.logger.Printf("Error storing rejection for %s: %v", feed.Symbol, err)
	}
}
