package domain

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// FeedIDLen is the byte length of a Pyth feed identifier.
const FeedIDLen = 32

// FeedID identifies which real-world asset price a record refers to.
type FeedID [FeedIDLen]byte

// ErrInvalidFeedID is returned when a feed identifier string is not
// valid hex or does not decode to exactly 32 bytes.
var ErrInvalidFeedID = errors.New("invalid feed identifier")

// ParseFeedID decodes a hex feed-identifier string. An optional "0x"
// prefix is accepted. Decoding is deterministic: the same string always
// yields the same FeedID.
func ParseFeedID(s string) (FeedID, error) {
	var id FeedID

	s = strings.TrimPrefix(s, "0x")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("%w: %v", ErrInvalidFeedID, err)
	}
	if len(raw) != FeedIDLen {
		return id, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidFeedID, len(raw), FeedIDLen)
	}

	copy(id[:], raw)
	return id, nil
}

// String returns the lowercase hex form without a 0x prefix.
func (id FeedID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether the identifier is all zero bytes.
func (id FeedID) IsZero() bool {
	return id == FeedID{}
}
