package memory

import (
	"context"
	"sort"
	"sync"

	"pyth-price-guard/internal/domain"
	"pyth-price-guard/internal/storage"
)

// RejectionStore is an in-memory implementation of storage.RejectionStore.
type RejectionStore struct {
	mu     sync.RWMutex
	data   []*domain.Rejection
	nextID int64
}

// NewRejectionStore creates a new in-memory rejection store.
func NewRejectionStore() *RejectionStore {
	return &RejectionStore{nextID: 1}
}

// Compile-time interface check.
var _ storage.RejectionStore = (*RejectionStore)(nil)

// Insert adds a rejection, assigning a sequential ID.
func (s *RejectionStore) Insert(_ context.Context, r *domain.Rejection) error {
	if r == nil || r.FeedID.IsZero() || r.Reason == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rejCopy := *r
	rejCopy.ID = s.nextID
	s.nextID++
	s.data = append(s.data, &rejCopy)
	return nil
}

// ListByFeed retrieves rejections for a feed ordered by rejected_at ASC.
func (s *RejectionStore) ListByFeed(_ context.Context, feedID domain.FeedID) ([]*domain.Rejection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Rejection
	for _, r := range s.data {
		if r.FeedID != feedID {
			continue
		}
		rejCopy := *r
		result = append(result, &rejCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].RejectedAt < result[j].RejectedAt
	})

	return result, nil
}
