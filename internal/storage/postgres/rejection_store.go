package postgres

import (
	"context"
	"fmt"

	"pyth-price-guard/internal/domain"
	"pyth-price-guard/internal/storage"
)

// RejectionStore implements storage.RejectionStore using PostgreSQL.
type RejectionStore struct {
	pool *Pool
}

// NewRejectionStore creates a new RejectionStore.
func NewRejectionStore(pool *Pool) *RejectionStore {
	return &RejectionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RejectionStore = (*RejectionStore)(nil)

// Insert adds a rejection.
func (s *RejectionStore) Insert(ctx context.Context, r *domain.Rejection) error {
	if r == nil || r.FeedID.IsZero() || r.Reason == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO price_rejections (
			feed_id, symbol, reason, price, conf, publish_time, rejected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.pool.Exec(ctx, query,
		r.FeedID.String(), r.Symbol, r.Reason,
		r.Price, int64(r.Conf), r.PublishTime, r.RejectedAt,
	)
	if err != nil {
		return fmt.Errorf("insert rejection: %w", err)
	}
	return nil
}

// ListByFeed retrieves rejections for a feed ordered by rejected_at ASC.
func (s *RejectionStore) ListByFeed(ctx context.Context, feedID domain.FeedID) ([]*domain.Rejection, error) {
	query := `
		SELECT id, feed_id, symbol, reason, price, conf, publish_time, rejected_at
		FROM price_rejections
		WHERE feed_id = $1
		ORDER BY rejected_at ASC
	`

	rows, err := s.pool.Query(ctx, query, feedID.String())
	if err != nil {
		return nil, fmt.Errorf("query rejections: %w", err)
	}
	defer rows.Close()

	var result []*domain.Rejection
	for rows.Next() {
		var (
			r       domain.Rejection
			feedHex string
			conf    int64
		)
		err := rows.Scan(&r.ID, &feedHex, &r.Symbol, &r.Reason,
			&r.Price, &conf, &r.PublishTime, &r.RejectedAt)
		if err != nil {
			return nil, fmt.Errorf("scan rejection: %w", err)
		}

		id, err := domain.ParseFeedID(feedHex)
		if err != nil {
			return nil, fmt.Errorf("stored feed id: %w", err)
		}
		r.FeedID = id
		r.Conf = uint64(conf)
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rejections: %w", err)
	}

	return result, nil
}
