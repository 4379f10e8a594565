package monitor

import (
	"bytes"
	"context"
	"encoding/binary"
	"log"
	"testing"
	"time"

	"pyth-price-guard/internal/domain"
	"pyth-price-guard/internal/solana"
	"pyth-price-guard/internal/storage/memory"
	"pyth-price-guard/internal/validation"
)

const testNow = int64(1700000000)

func testFeedID(b byte) domain.FeedID {
	var id domain.FeedID
	id[0] = b
	id[31] = b
	return id
}

// stubSource returns a fixed observation or error for every feed.
type stubSource struct {
	obs *domain.PriceObservation
	err error
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Latest(_ context.Context, feedID domain.FeedID, _ int64, _ time.Duration) (*domain.PriceObservation, error) {
	if s.err != nil {
		return nil, s.err
	}
	obs := *s.obs
	obs.FeedID = feedID
	return &obs, nil
}

func freshObs(price int64, conf uint64) *domain.PriceObservation {
	return &domain.PriceObservation{
		Price:       price,
		Conf:        conf,
		Expo:        -8,
		PublishTime: testNow - 5,
		Source:      "stub",
	}
}

func newTestRunner(src validation.PriceSource, records *memory.PriceRecordStore, rejections *memory.RejectionStore) *Runner {
	return NewRunner(RunnerOptions{
		Source: src,
		Config: validation.Config{MaxAge: 60 * time.Second, MaxConfRatioBps: 200},
		Feeds: []Feed{
			{Symbol: "SOL/USD", ID: testFeedID(1)},
			{Symbol: "BTC/USD", ID: testFeedID(2)},
		},
		RecordStore:    records,
		RejectionStore: rejections,
		Logger:         log.New(&bytes.Buffer{}, "", 0),
		Now:            func() int64 { return testNow },
	})
}

func TestCheckAll_StoresAcceptedRecords(t *testing.T) {
	records := memory.NewPriceRecordStore()
	rejections := memory.NewRejectionStore()
	r := newTestRunner(&stubSource{obs: freshObs(1000, 10)}, records, rejections)

	r.checkAll(context.Background())

	for _, feed := range r.feeds {
		rec, err := records.Latest(context.Background(), feed.ID)
		if err != nil {
			t.Fatalf("no record stored for %s: %v", feed.Symbol, err)
		}
		if rec.Symbol != feed.Symbol {
			t.Errorf("Symbol = %q, want %q", rec.Symbol, feed.Symbol)
		}
		if rec.RatioBps != 100 {
			t.Errorf("RatioBps = %d, want 100", rec.RatioBps)
		}
	}

	got, err := rejections.ListByFeed(context.Background(), testFeedID(1))
	if err != nil {
		t.Fatalf("ListByFeed failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no rejections, got %d", len(got))
	}
}

func TestCheckAll_StoresRejections(t *testing.T) {
	records := memory.NewPriceRecordStore()
	rejections := memory.NewRejectionStore()
	r := newTestRunner(&stubSource{obs: freshObs(0, 10)}, records, rejections)

	r.checkAll(context.Background())

	got, err := rejections.ListByFeed(context.Background(), testFeedID(1))
	if err != nil {
		t.Fatalf("ListByFeed failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 rejection, got %d", len(got))
	}
	if got[0].Reason != domain.RejectZeroPrice {
		t.Errorf("Reason = %q, want %q", got[0].Reason, domain.RejectZeroPrice)
	}
	if got[0].Symbol != "SOL/USD" {
		t.Errorf("Symbol = %q, want SOL/USD", got[0].Symbol)
	}

	if _, err := records.Latest(context.Background(), testFeedID(1)); err == nil {
		t.Error("rejected observation must not be stored as a record")
	}
}

func TestCheckAll_OperationalErrorNotRecorded(t *testing.T) {
	records := memory.NewPriceRecordStore()
	rejections := memory.NewRejectionStore()
	r := newTestRunner(&stubSource{err: context.DeadlineExceeded}, records, rejections)

	r.checkAll(context.Background())

	got, err := rejections.ListByFeed(context.Background(), testFeedID(1))
	if err != nil {
		t.Fatalf("ListByFeed failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("transport failures are not rejections, got %d", len(got))
	}
}

func TestCheckAll_StaleSourceRecordedAsStale(t *testing.T) {
	records := memory.NewPriceRecordStore()
	rejections := memory.NewRejectionStore()
	r := newTestRunner(&stubSource{err: validation.ErrStalePrice}, records, rejections)

	r.checkAll(context.Background())

	got, err := rejections.ListByFeed(context.Background(), testFeedID(2))
	if err != nil {
		t.Fatalf("ListByFeed failed: %v", err)
	}
	if len(got) != 1 || got[0].Reason != domain.RejectStale {
		t.Errorf("expected one stale rejection, got %+v", got)
	}
}

// buildStreamData serializes a minimal fully-verified PriceUpdateV2
// account for stream tests.
func buildStreamData(feedID domain.FeedID, price int64, conf uint64, publishTime int64, slot uint64) []byte {
	data := make([]byte, 0, 134)
	data = append(data, 34, 241, 35, 99, 157, 126, 244, 205)
	data = append(data, make([]byte, 32)...) // write_authority
	data = append(data, 1)                   // VerificationFull
	data = append(data, feedID[:]...)
	data = binary.LittleEndian.AppendUint64(data, uint64(price))
	data = binary.LittleEndian.AppendUint64(data, conf)
	data = binary.LittleEndian.AppendUint32(data, uint32(0xFFFFFFF8)) // expo -8
	data = binary.LittleEndian.AppendUint64(data, uint64(publishTime))
	data = binary.LittleEndian.AppendUint64(data, uint64(publishTime-1))
	data = binary.LittleEndian.AppendUint64(data, uint64(price))
	data = binary.LittleEndian.AppendUint64(data, conf)
	data = binary.LittleEndian.AppendUint64(data, slot)
	return data
}

func TestHandleStreamUpdate_Accepted(t *testing.T) {
	records := memory.NewPriceRecordStore()
	rejections := memory.NewRejectionStore()
	r := newTestRunner(&stubSource{obs: freshObs(1000, 10)}, records, rejections)

	feed := Feed{Symbol: "SOL/USD", ID: testFeedID(1)}
	r.handleStreamUpdate(context.Background(), streamUpdate{
		feed: feed,
		note: solana.AccountNotification{
			Data: buildStreamData(feed.ID, 2000, 20, testNow-3, 42),
			Slot: 42,
		},
	})

	rec, err := records.Latest(context.Background(), feed.ID)
	if err != nil {
		t.Fatalf("no record stored: %v", err)
	}
	if rec.Price != 2000 || rec.Conf != 20 {
		t.Errorf("record fields mismatch: %+v", rec)
	}
	if rec.Source != domain.SourceStream {
		t.Errorf("Source = %q, want %q", rec.Source, domain.SourceStream)
	}
	if rec.Slot != 42 {
		t.Errorf("Slot = %d, want 42", rec.Slot)
	}
}

func TestHandleStreamUpdate_WideConfidenceRejected(t *testing.T) {
	records := memory.NewPriceRecordStore()
	rejections := memory.NewRejectionStore()
	r := newTestRunner(&stubSource{obs: freshObs(1000, 10)}, records, rejections)

	feed := Feed{Symbol: "SOL/USD", ID: testFeedID(1)}
	r.handleStreamUpdate(context.Background(), streamUpdate{
		feed: feed,
		note: solana.AccountNotification{
			// conf/price = 500 bps, over the 200 bps limit
			Data: buildStreamData(feed.ID, 1000, 50, testNow-3, 42),
			Slot: 42,
		},
	})

	got, err := rejections.ListByFeed(context.Background(), feed.ID)
	if err != nil {
		t.Fatalf("ListByFeed failed: %v", err)
	}
	if len(got) != 1 || got[0].Reason != domain.RejectWideConf {
		t.Errorf("expected one wide_confidence rejection, got %+v", got)
	}
	if got[0].Price != 1000 || got[0].Conf != 50 {
		t.Errorf("rejection carries observed values: %+v", got[0])
	}
}

func TestHandleStreamUpdate_FeedMismatchIgnored(t *testing.T) {
	records := memory.NewPriceRecordStore()
	rejections := memory.NewRejectionStore()
	r := newTestRunner(&stubSource{obs: freshObs(1000, 10)}, records, rejections)

	feed := Feed{Symbol: "SOL/USD", ID: testFeedID(1)}
	r.handleStreamUpdate(context.Background(), streamUpdate{
		feed: feed,
		note: solana.AccountNotification{
			Data: buildStreamData(testFeedID(9), 2000, 20, testNow-3, 42),
			Slot: 42,
		},
	})

	if _, err := records.Latest(context.Background(), feed.ID); err == nil {
		t.Error("mismatched feed must not produce a record")
	}
	got, _ := rejections.ListByFeed(context.Background(), feed.ID)
	if len(got) != 0 {
		t.Errorf("mismatched feed is not a rejection, got %d", len(got))
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	records := memory.NewPriceRecordStore()
	rejections := memory.NewRejectionStore()
	r := newTestRunner(&stubSource{obs: freshObs(1000, 10)}, records, rejections)
	r.pollInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	// The startup pass writes a record for each feed before the first tick.
	deadline := time.After(2 * time.Second)
	for {
		if _, err := records.Latest(context.Background(), testFeedID(2)); err == nil {
			break
		}
		select {
		case <-deadline:
			t.Fatal("startup pass did not run")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

func TestRun_NoFeeds(t *testing.T) {
	r := NewRunner(RunnerOptions{Source: &stubSource{obs: freshObs(1000, 10)}})
	if err := r.Run(context.Background()); err == nil {
		t.Error("expected error with no feeds configured")
	}
}
