package validation

import "errors"

// Validation failure kinds. Every failure is terminal for the call;
// retrying is the caller's decision.
var (
	// ErrStalePrice is returned when no observation within the
	// freshness window exists for the requested feed.
	ErrStalePrice = errors.New("no sufficiently fresh price for feed")

	// ErrFeedNotFound is returned when the source has no observation
	// for the requested feed at all.
	ErrFeedNotFound = errors.New("feed not found")

	// ErrZeroPrice is returned for a literal zero price. A zero print
	// is never a valid asset price and indicates a misconfigured or
	// corrupt feed.
	ErrZeroPrice = errors.New("price is zero")

	// ErrWideConfidence is returned when the reported confidence band
	// is disproportionately large relative to the price magnitude.
	ErrWideConfidence = errors.New("confidence interval too wide")
)
