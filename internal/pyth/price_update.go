// Package pyth decodes Pyth receiver price update accounts and derives
// price feed account addresses.
package pyth

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"pyth-price-guard/internal/domain"
)

// Verification levels of a price update, in ascending order of trust.
const (
	VerificationPartial = 0 // subset of guardian signatures checked
	VerificationFull    = 1 // full guardian quorum checked
)

// priceUpdateDiscriminator is the Anchor account discriminator for
// PriceUpdateV2: first 8 bytes of sha256("account:PriceUpdateV2").
var priceUpdateDiscriminator = []byte{34, 241, 35, 99, 157, 126, 244, 205}

// Decode errors.
var (
	// ErrNotPriceUpdate is returned when the account discriminator does
	// not match a PriceUpdateV2 account.
	ErrNotPriceUpdate = errors.New("account is not a price update")

	// ErrTruncatedAccount is returned when the account data is shorter
	// than the fixed layout requires.
	ErrTruncatedAccount = errors.New("price update account data truncated")

	// ErrFeedMismatch is returned when an account holds a different
	// feed than the one requested.
	ErrFeedMismatch = errors.New("price update is for a different feed")
)

// PriceUpdate is a decoded PriceUpdateV2 account.
type PriceUpdate struct {
	WriteAuthority    [32]byte      // account allowed to overwrite the update
	VerificationLevel uint8         // VerificationPartial | VerificationFull
	NumSignatures     uint8         // guardian signatures checked, partial level only
	FeedID            domain.FeedID // feed the update refers to
	Price             int64         // raw price, scaled by 10^Expo
	Conf              uint64        // confidence band
	Expo              int32         // decimal exponent
	PublishTime       int64         // Unix timestamp in seconds
	PrevPublishTime   int64         // publish time of the preceding update
	EmaPrice          int64         // exponentially weighted average price
	EmaConf           uint64        // confidence of the EMA price
	PostedSlot        uint64        // slot the update was posted in
}

// Borsh layout of the price message within the account:
// feed_id[32] price(i64) conf(u64) exponent(i32) publish_time(i64)
// prev_publish_time(i64) ema_price(i64) ema_conf(u64).
const priceMessageLen = 32 + 8 + 8 + 4 + 8 + 8 + 8 + 8

// ParsePriceUpdate decodes the Borsh-serialized PriceUpdateV2 account
// data, including the 8-byte Anchor discriminator.
func ParsePriceUpdate(data []byte) (*PriceUpdate, error) {
	if len(data) < 8 {
		return nil, ErrTruncatedAccount
	}
	if !bytes.Equal(data[:8], priceUpdateDiscriminator) {
		return nil, ErrNotPriceUpdate
	}
	offset := 8

	u := &PriceUpdate{}

	if offset+32 > len(data) {
		return nil, ErrTruncatedAccount
	}
	copy(u.WriteAuthority[:], data[offset:])
	offset += 32

	// verification_level is a Borsh enum: Partial carries an extra
	// num_signatures byte, Full is the bare variant tag.
	if offset >= len(data) {
		return nil, ErrTruncatedAccount
	}
	u.VerificationLevel = data[offset]
	offset++
	switch u.VerificationLevel {
	case VerificationPartial:
		if offset >= len(data) {
			return nil, ErrTruncatedAccount
		}
		u.NumSignatures = data[offset]
		offset++
	case VerificationFull:
	default:
		return nil, fmt.Errorf("%w: unknown verification level %d", ErrNotPriceUpdate, u.VerificationLevel)
	}

	if offset+priceMessageLen+8 > len(data) {
		return nil, ErrTruncatedAccount
	}

	copy(u.FeedID[:], data[offset:])
	offset += 32
	u.Price = int64(binary.LittleEndian.Uint64(data[offset:]))
	offset += 8
	u.Conf = binary.LittleEndian.Uint64(data[offset:])
	offset += 8
	u.Expo = int32(binary.LittleEndian.Uint32(data[offset:]))
	offset += 4
	u.PublishTime = int64(binary.LittleEndian.Uint64(data[offset:]))
	offset += 8
	u.PrevPublishTime = int64(binary.LittleEndian.Uint64(data[offset:]))
	offset += 8
	u.EmaPrice = int64(binary.LittleEndian.Uint64(data[offset:]))
	offset += 8
	u.EmaConf = binary.LittleEndian.Uint64(data[offset:])
	offset += 8
	u.PostedSlot = binary.LittleEndian.Uint64(data[offset:])

	return u, nil
}

// Observation converts the update to a domain observation tagged with
// the given source label.
func (u *PriceUpdate) Observation(source string) *domain.PriceObservation {
	return &domain.PriceObservation{
		FeedID:      u.FeedID,
		Price:       u.Price,
		Conf:        u.Conf,
		Expo:        u.Expo,
		PublishTime: u.PublishTime,
		Slot:        int64(u.PostedSlot),
		Source:      source,
	}
}
