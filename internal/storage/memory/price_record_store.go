// Package memory provides in-memory store implementations for tests
// and single-process runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"pyth-price-guard/internal/domain"
	"pyth-price-guard/internal/storage"
)

// PriceRecordStore is an in-memory implementation of storage.PriceRecordStore.
type PriceRecordStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PriceRecord // keyed by (feed_id, publish_time)
}

// NewPriceRecordStore creates a new in-memory price record store.
func NewPriceRecordStore() *PriceRecordStore {
	return &PriceRecordStore{
		data: make(map[string]*domain.PriceRecord),
	}
}

// Compile-time interface check.
var _ storage.PriceRecordStore = (*PriceRecordStore)(nil)

// recordKey generates a unique key for a price record.
func recordKey(feedID domain.FeedID, publishTime int64) string {
	return fmt.Sprintf("%s|%d", feedID, publishTime)
}

// Insert adds a record. Returns ErrDuplicateKey if (feed_id, publish_time) exists.
func (s *PriceRecordStore) Insert(_ context.Context, r *domain.PriceRecord) error {
	if r == nil || r.FeedID.IsZero() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey(r.FeedID, r.PublishTime)
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	recordCopy := *r
	s.data[key] = &recordCopy
	return nil
}

// InsertBulk adds multiple records. Fails entire batch on duplicate.
func (s *PriceRecordStore) InsertBulk(_ context.Context, records []*domain.PriceRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// First pass: check for duplicates (existing + intra-batch)
	batchKeys := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r == nil || r.FeedID.IsZero() {
			return storage.ErrInvalidInput
		}
		key := recordKey(r.FeedID, r.PublishTime)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all
	for _, r := range records {
		recordCopy := *r
		s.data[recordKey(r.FeedID, r.PublishTime)] = &recordCopy
	}

	return nil
}

// Latest retrieves the record with the highest publish_time for a feed.
func (s *PriceRecordStore) Latest(_ context.Context, feedID domain.FeedID) (*domain.PriceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.PriceRecord
	for _, r := range s.data {
		if r.FeedID != feedID {
			continue
		}
		if latest == nil || r.PublishTime > latest.PublishTime {
			latest = r
		}
	}

	if latest == nil {
		return nil, storage.ErrNotFound
	}

	recordCopy := *latest
	return &recordCopy, nil
}

// ListByFeed retrieves records within [start, end], ordered by publish_time ASC.
func (s *PriceRecordStore) ListByFeed(_ context.Context, feedID domain.FeedID, start, end int64) ([]*domain.PriceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PriceRecord
	for _, r := range s.data {
		if r.FeedID != feedID || r.PublishTime < start || r.PublishTime > end {
			continue
		}
		recordCopy := *r
		result = append(result, &recordCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].PublishTime < result[j].PublishTime
	})

	return result, nil
}
