package storage

import (
	"context"

	"pyth-price-guard/internal/domain"
)

// PriceRecordStore provides access to accepted price records.
// Records are keyed by (feed_id, publish_time).
type PriceRecordStore interface {
	// Insert adds a record. Returns ErrDuplicateKey if (feed_id,
	// publish_time) exists.
	Insert(ctx context.Context, r *domain.PriceRecord) error

	// InsertBulk adds multiple records atomically. Fails the entire
	// batch on any duplicate.
	InsertBulk(ctx context.Context, records []*domain.PriceRecord) error

	// Latest retrieves the record with the highest publish_time for a
	// feed. Returns ErrNotFound if the feed has no records.
	Latest(ctx context.Context, feedID domain.FeedID) (*domain.PriceRecord, error)

	// ListByFeed retrieves records for a feed with publish_time within
	// [start, end] (inclusive), ordered by publish_time ASC.
	ListByFeed(ctx context.Context, feedID domain.FeedID, start, end int64) ([]*domain.PriceRecord, error)
}

// RejectionStore provides access to rejected observations.
type RejectionStore interface {
	// Insert adds a rejection.
	Insert(ctx context.Context, r *domain.Rejection) error

	// ListByFeed retrieves rejections for a feed ordered by
	// rejected_at ASC.
	ListByFeed(ctx context.Context, feedID domain.FeedID) ([]*domain.Rejection, error)
}
