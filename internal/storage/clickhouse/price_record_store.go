package clickhouse

import (
	"context"
	"fmt"

	"pyth-price-guard/internal/domain"
	"pyth-price-guard/internal/storage"
)

// PriceRecordStore implements storage.PriceRecordStore using ClickHouse.
type PriceRecordStore struct {
	conn *Conn
}

// NewPriceRecordStore creates a new PriceRecordStore.
func NewPriceRecordStore(conn *Conn) *PriceRecordStore {
	return &PriceRecordStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PriceRecordStore = (*PriceRecordStore)(nil)

// Insert adds a single record.
func (s *PriceRecordStore) Insert(ctx context.Context, r *domain.PriceRecord) error {
	return s.InsertBulk(ctx, []*domain.PriceRecord{r})
}

// InsertBulk adds multiple records. Fails entire batch on duplicate
// (feed_id, publish_time). MergeTree does not enforce uniqueness, so
// duplicates are checked explicitly before the batch insert.
func (s *PriceRecordStore) InsertBulk(ctx context.Context, records []*domain.PriceRecord) error {
	if len(records) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	type key struct {
		feedID      domain.FeedID
		publishTime int64
	}
	seen := make(map[key]struct{}, len(records))
	for _, r := range records {
		if r == nil || r.FeedID.IsZero() {
			return storage.ErrInvalidInput
		}
		k := key{r.FeedID, r.PublishTime}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// Check for duplicates against existing rows
	for _, r := range records {
		exists, err := s.exists(ctx, r.FeedID, r.PublishTime)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_records (
			feed_id, symbol, price, conf, expo,
			publish_time, slot, ratio_bps, source, received_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range records {
		err = batch.Append(
			r.FeedID.String(), r.Symbol, r.Price, r.Conf, r.Expo,
			r.PublishTime, r.Slot, r.RatioBps, r.Source, r.ReceivedAt,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// exists checks whether a (feed_id, publish_time) row is present.
func (s *PriceRecordStore) exists(ctx context.Context, feedID domain.FeedID, publishTime int64) (bool, error) {
	query := `
		SELECT count() FROM price_records
		WHERE feed_id = ? AND publish_time = ?
	`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, feedID.String(), publishTime).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// Latest retrieves the record with the highest publish_time for a feed.
func (s *PriceRecordStore) Latest(ctx context.Context, feedID domain.FeedID) (*domain.PriceRecord, error) {
	query := `
		SELECT feed_id, symbol, price, conf, expo,
		       publish_time, slot, ratio_bps, source, received_at
		FROM price_records
		WHERE feed_id = ?
		ORDER BY publish_time DESC
		LIMIT 1
	`

	rows, err := s.conn.Query(ctx, query, feedID.String())
	if err != nil {
		return nil, fmt.Errorf("query latest record: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, storage.ErrNotFound
	}
	return scanRecord(rows)
}

// ListByFeed retrieves records within [start, end], ordered by publish_time ASC.
func (s *PriceRecordStore) ListByFeed(ctx context.Context, feedID domain.FeedID, start, end int64) ([]*domain.PriceRecord, error) {
	query := `
		SELECT feed_id, symbol, price, conf, expo,
		       publish_time, slot, ratio_bps, source, received_at
		FROM price_records
		WHERE feed_id = ? AND publish_time >= ? AND publish_time <= ?
		ORDER BY publish_time ASC
	`

	rows, err := s.conn.Query(ctx, query, feedID.String(), start, end)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var result []*domain.PriceRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	return result, nil
}

// rowScanner abstracts driver.Rows for scanning a single record.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.PriceRecord, error) {
	var (
		r       domain.PriceRecord
		feedHex string
	)

	err := row.Scan(
		&feedHex, &r.Symbol, &r.Price, &r.Conf, &r.Expo,
		&r.PublishTime, &r.Slot, &r.RatioBps, &r.Source, &r.ReceivedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan record: %w", err)
	}

	feedID, err := domain.ParseFeedID(feedHex)
	if err != nil {
		return nil, fmt.Errorf("stored feed id: %w", err)
	}
	r.FeedID = feedID
	return &r, nil
}
