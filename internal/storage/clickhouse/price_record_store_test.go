package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pyth-price-guard/internal/domain"
	"pyth-price-guard/internal/storage"
)

func testFeed(b byte) domain.FeedID {
	var id domain.FeedID
	id[0] = b
	id[31] = b
	return id
}

func createTestRecord(feed domain.FeedID, publishTime int64) *domain.PriceRecord {
	return &domain.PriceRecord{
		FeedID:      feed,
		Symbol:      "SOL/USD",
		Price:       14386462500,
		Conf:        7186055,
		Expo:        -8,
		PublishTime: publishTime,
		Slot:        250000000,
		RatioBps:    4,
		Source:      domain.SourceStream,
		ReceivedAt:  publishTime * 1000,
	}
}

func TestPriceRecordStore_InsertBulkAndList(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPriceRecordStore(conn)
	feed := testFeed(1)

	err := store.InsertBulk(ctx, []*domain.PriceRecord{
		createTestRecord(feed, 1000),
		createTestRecord(feed, 2000),
		createTestRecord(testFeed(2), 1500),
	})
	require.NoError(t, err)

	records, err := store.ListByFeed(ctx, feed, 0, 10000)
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, int64(1000), records[0].PublishTime)
	assert.Equal(t, int64(2000), records[1].PublishTime)
	assert.Equal(t, feed, records[0].FeedID)
	assert.Equal(t, uint64(7186055), records[0].Conf)
	assert.Equal(t, int32(-8), records[0].Expo)
	assert.Equal(t, domain.SourceStream, records[0].Source)
}

func TestPriceRecordStore_Latest(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPriceRecordStore(conn)
	feed := testFeed(1)

	require.NoError(t, store.Insert(ctx, createTestRecord(feed, 1000)))
	require.NoError(t, store.Insert(ctx, createTestRecord(feed, 3000)))
	require.NoError(t, store.Insert(ctx, createTestRecord(feed, 2000)))

	latest, err := store.Latest(ctx, feed)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), latest.PublishTime)
}

func TestPriceRecordStore_Latest_NotFound(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPriceRecordStore(conn)

	_, err := store.Latest(context.Background(), testFeed(9))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPriceRecordStore_DuplicateKey(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPriceRecordStore(conn)
	feed := testFeed(1)

	require.NoError(t, store.Insert(ctx, createTestRecord(feed, 1000)))

	err := store.Insert(ctx, createTestRecord(feed, 1000))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestPriceRecordStore_IntraBatchDuplicate(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPriceRecordStore(conn)
	feed := testFeed(1)

	err := store.InsertBulk(ctx, []*domain.PriceRecord{
		createTestRecord(feed, 1000),
		createTestRecord(feed, 1000),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}
