package validation

import (
	"fmt"
	"math"
	"math/bits"
	"time"

	"pyth-price-guard/internal/domain"
)

// Default validation thresholds.
const (
	DefaultMaxAge          = 60 * time.Second
	DefaultMaxConfRatioBps = 200 // 2%
)

// BpsDenominator is the basis-point scale: 10000 bps = 100%.
const BpsDenominator = 10000

// Config holds the validation thresholds.
type Config struct {
	// MaxAge is the freshness window: maximum allowed age between an
	// observation's publish time and the current time.
	MaxAge time.Duration
	// MaxConfRatioBps is the maximum allowed conf/|price| ratio in
	// basis points.
	MaxConfRatioBps uint64
}

// Validator decides whether a price observation is acceptable for
// downstream use.
type Validator struct {
	cfg Config
}

// NewValidator creates a validator. Zero config fields get defaults.
func NewValidator(cfg Config) *Validator {
	if cfg.MaxAge == 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.MaxConfRatioBps == 0 {
		cfg.MaxConfRatioBps = DefaultMaxConfRatioBps
	}
	return &Validator{cfg: cfg}
}

// Config returns the effective thresholds.
func (v *Validator) Config() Config {
	return v.cfg
}

// Validate checks a single observation against the current time,
// given in Unix seconds. It returns the computed conf/|price| ratio
// in basis points on success.
//
// Checks, in order: freshness, non-zero price, confidence ratio.
// No state is mutated; a ratio of 0 is returned alongside any error.
func (v *Validator) Validate(obs *domain.PriceObservation, now int64) (uint64, error) {
	maxAge := int64(v.cfg.MaxAge / time.Second)
	if obs.PublishTime < now-maxAge {
		return 0, fmt.Errorf("%w: published %d, now %d, max age %ds",
			ErrStalePrice, obs.PublishTime, now, maxAge)
	}

	if obs.Price == 0 {
		return 0, ErrZeroPrice
	}

	ratio := ConfRatioBps(obs.Price, obs.Conf)
	if ratio > v.cfg.MaxConfRatioBps {
		return 0, fmt.Errorf("%w: %d bps > %d bps max",
			ErrWideConfidence, ratio, v.cfg.MaxConfRatioBps)
	}

	return ratio, nil
}

// ConfRatioBps computes conf * 10000 / |price| in basis points.
// The multiply is widened to 128 bits so the ratio cannot wrap even
// when price and conf are near their maximum magnitudes. Price must
// be non-zero. Ratios that do not fit in 64 bits saturate to
// MaxUint64, which still compares correctly against any threshold.
func ConfRatioBps(price int64, conf uint64) uint64 {
	abs := absPrice(price)

	hi, lo := bits.Mul64(conf, BpsDenominator)
	if hi >= abs {
		// Quotient would overflow 64 bits.
		return math.MaxUint64
	}
	ratio, _ := bits.Div64(hi, lo, abs)
	return ratio
}

// absPrice returns the unsigned magnitude of a signed price.
// Two's complement negation is exact for MinInt64.
func absPrice(price int64) uint64 {
	if price >= 0 {
		return uint64(price)
	}
	return -uint64(price)
}
