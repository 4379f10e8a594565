package domain

import "fmt"

// Observation source constants.
const (
	SourceSolana = "solana" // on-chain price update account
	SourceHermes = "hermes" // Hermes REST endpoint
	SourceStream = "stream" // accountSubscribe WebSocket stream
)

// PriceObservation is a single parsed price print from the oracle.
// Immutable once obtained; the exponent is never applied here, scaling
// is left to the consumer.
type PriceObservation struct {
	FeedID      FeedID // which asset the print refers to
	Price       int64  // raw price, scaled by 10^Expo
	Conf        uint64 // confidence band, absolute units, same scale
	Expo        int32  // decimal exponent, typically negative
	PublishTime int64  // Unix timestamp in seconds
	Slot        int64  // Solana slot the update was posted in, 0 for off-chain sources
	Source      string // SourceSolana | SourceHermes | SourceStream
}

// String renders the observation for logging. The exponent is reported
// alongside the raw price, not applied to it.
func (o *PriceObservation) String() string {
	return fmt.Sprintf("feed=%s price=%d conf=%d expo=%d publish_time=%d",
		o.FeedID, o.Price, o.Conf, o.Expo, o.PublishTime)
}

// PriceRecord is an accepted observation persisted for downstream use.
// Corresponds to price_records table in PostgreSQL/ClickHouse.
type PriceRecord struct {
	FeedID      FeedID // feed identifier
	Symbol      string // operator-assigned label, e.g. "SOL/USD"
	Price       int64  // raw price
	Conf        uint64 // confidence band
	Expo        int32  // decimal exponent
	PublishTime int64  // Unix timestamp in seconds
	Slot        int64  // posting slot, 0 for off-chain sources
	RatioBps    uint64 // conf/|price| ratio in basis points, as validated
	Source      string // observation source
	ReceivedAt  int64  // record creation timestamp (ms)
}

// Rejection records an observation that failed validation.
// Corresponds to price_rejections table in PostgreSQL.
type Rejection struct {
	ID          int64  // BIGSERIAL primary key
	FeedID      FeedID // feed identifier
	Symbol      string // operator-assigned label
	Reason      string // RejectStale | RejectZeroPrice | RejectWideConf
	Price       int64  // observed price, 0 when fetch itself failed
	Conf        uint64 // observed confidence
	PublishTime int64  // observed publish time, 0 when fetch failed
	RejectedAt  int64  // rejection timestamp (ms)
}

// Rejection reason constants.
const (
	RejectStale     = "stale"
	RejectZeroPrice = "zero_price"
	RejectWideConf  = "wide_confidence"
)
