package validation

import (
	"context"
	"errors"
	"log"
	"time"

	"pyth-price-guard/internal/domain"
)

// PriceSource supplies the latest observation for a feed, constrained
// to be no older than maxAge relative to now (Unix seconds).
// Implementations return ErrStalePrice when no observation within the
// window exists and ErrFeedNotFound when the feed is unknown.
type PriceSource interface {
	// Name identifies the source in records and logs.
	Name() string
	// Latest fetches the freshest observation for the feed.
	Latest(ctx context.Context, feedID domain.FeedID, now int64, maxAge time.Duration) (*domain.PriceObservation, error)
}

// Checker runs the full check for one feed: decode the identifier,
// fetch the freshest observation, validate it, and log the result.
type Checker struct {
	source    PriceSource
	validator *Validator
	logger    *log.Logger
	now       func() int64
}

// CheckerOptions contains configuration for creating a Checker.
type CheckerOptions struct {
	Source PriceSource
	Config Config
	Logger *log.Logger
	// Now supplies the current time in Unix seconds.
	// Default: time.Now().Unix.
	Now func() int64
}

// NewChecker creates a new Checker.
func NewChecker(opts CheckerOptions) *Checker {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := opts.Now
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	return &Checker{
		source:    opts.Source,
		validator: NewValidator(opts.Config),
		logger:    logger,
		now:       now,
	}
}

// Check validates the feed identified by the hex string and returns
// the accepted record. The whole call is atomic from the caller's
// perspective: nothing is recorded before the final success.
func (c *Checker) Check(ctx context.Context, feedHex string) (*domain.PriceRecord, error) {
	feedID, err := domain.ParseFeedID(feedHex)
	if err != nil {
		return nil, err
	}
	return c.CheckFeed(ctx, feedID)
}

// CheckFeed is Check with an already-decoded identifier.
func (c *Checker) CheckFeed(ctx context.Context, feedID domain.FeedID) (*domain.PriceRecord, error) {
	now := c.now()

	obs, err := c.source.Latest(ctx, feedID, now, c.validator.Config().MaxAge)
	if err != nil {
		return nil, err
	}

	ratio, err := c.validator.Validate(obs, now)
	if err != nil {
		return nil, err
	}

	// The exponent is reported, not applied; scaling is the consumer's job.
	c.logger.Printf("feed %s: price (%d ± %d) * 10^%d published at %d",
		obs.FeedID, obs.Price, obs.Conf, obs.Expo, obs.PublishTime)

	return &domain.PriceRecord{
		FeedID:      obs.FeedID,
		Price:       obs.Price,
		Conf:        obs.Conf,
		Expo:        obs.Expo,
		PublishTime: obs.PublishTime,
		Slot:        obs.Slot,
		RatioBps:    ratio,
		Source:      c.source.Name(),
		ReceivedAt:  time.Now().UnixMilli(),
	}, nil
}

// RejectReason maps a validation failure to a rejection reason label.
// Returns "" for errors that are not validation rejections.
func RejectReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrStalePrice), errors.Is(err, ErrFeedNotFound):
		return domain.RejectStale
	case errors.Is(err, ErrZeroPrice):
		return domain.RejectZeroPrice
	case errors.Is(err, ErrWideConfidence):
		return domain.RejectWideConf
	default:
		return ""
	}
}
