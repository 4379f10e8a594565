package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"pyth-price-guard/internal/domain"
	"pyth-price-guard/internal/storage"
)

// PriceRecordStore implements storage.PriceRecordStore using PostgreSQL.
type PriceRecordStore struct {
	pool *Pool
}

// NewPriceRecordStore creates a new PriceRecordStore.
func NewPriceRecordStore(pool *Pool) *PriceRecordStore {
	return &PriceRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PriceRecordStore = (*PriceRecordStore)(nil)

const insertRecordQuery = `
	INSERT INTO price_records (
		feed_id, symbol, price, conf, expo,
		publish_time, slot, ratio_bps, source, received_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`

// Insert adds a record. Returns ErrDuplicateKey if (feed_id, publish_time) exists.
func (s *PriceRecordStore) Insert(ctx context.Context, r *domain.PriceRecord) error {
	if r == nil || r.FeedID.IsZero() {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, insertRecordQuery,
		r.FeedID.String(), r.Symbol, r.Price, int64(r.Conf), r.Expo,
		r.PublishTime, r.Slot, int64(r.RatioBps), r.Source, r.ReceivedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert price record: %w", err)
	}
	return nil
}

// InsertBulk adds multiple records atomically. Fails entire batch on any duplicate.
func (s *PriceRecordStore) InsertBulk(ctx context.Context, records []*domain.PriceRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range records {
		if r == nil || r.FeedID.IsZero() {
			return storage.ErrInvalidInput
		}
		_, err := tx.Exec(ctx, insertRecordQuery,
			r.FeedID.String(), r.Symbol, r.Price, int64(r.Conf), r.Expo,
			r.PublishTime, r.Slot, int64(r.RatioBps), r.Source, r.ReceivedAt,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert price record: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const selectRecordColumns = `
	feed_id, symbol, price, conf, expo,
	publish_time, slot, ratio_bps, source, received_at
`

// Latest retrieves the record with the highest publish_time for a feed.
func (s *PriceRecordStore) Latest(ctx context.Context, feedID domain.FeedID) (*domain.PriceRecord, error) {
	query := `
		SELECT ` + selectRecordColumns + `
		FROM price_records
		WHERE feed_id = $1
		ORDER BY publish_time DESC
		LIMIT 1
	`

	row := s.pool.QueryRow(ctx, query, feedID.String())
	r, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("query latest record: %w", err)
	}
	return r, nil
}

// ListByFeed retrieves records within [start, end], ordered by publish_time ASC.
func (s *PriceRecordStore) ListByFeed(ctx context.Context, feedID domain.FeedID, start, end int64) ([]*domain.PriceRecord, error) {
	query := `
		SELECT ` + selectRecordColumns + `
		FROM price_records
		WHERE feed_id = $1 AND publish_time >= $2 AND publish_time <= $3
		ORDER BY publish_time ASC
	`

	rows, err := s.pool.Query(ctx, query, feedID.String(), start, end)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var result []*domain.PriceRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	return result, nil
}

// scanRecord scans one price record row.
func scanRecord(row pgx.Row) (*domain.PriceRecord, error) {
	var (
		r        domain.PriceRecord
		feedHex  string
		conf     int64
		ratioBps int64
	)

	err := row.Scan(
		&feedHex, &r.Symbol, &r.Price, &conf, &r.Expo,
		&r.PublishTime, &r.Slot, &ratioBps, &r.Source, &r.ReceivedAt,
	)
	if err != nil {
		return nil, err
	}

	feedID, err := domain.ParseFeedID(feedHex)
	if err != nil {
		return nil, fmt.Errorf("stored feed id: %w", err)
	}
	r.FeedID = feedID
	r.Conf = uint64(conf)
	r.RatioBps = uint64(ratioBps)
	return &r, nil
}
