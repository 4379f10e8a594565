package validation

import (
	"errors"
	"math"
	"testing"
	"time"

	"pyth-price-guard/internal/domain"
)

const testNow = int64(1700000000)

func testObs(price int64, conf uint64) *domain.PriceObservation {
	return &domain.PriceObservation{
		Price:       price,
		Conf:        conf,
		Expo:        -8,
		PublishTime: testNow, // fresh
	}
}

func TestValidate_Accept(t *testing.T) {
	v := NewValidator(Config{MaxAge: 60 * time.Second, MaxConfRatioBps: 200})

	// ratio = 10*10000/1000 = 100 <= 200
	ratio, err := v.Validate(testObs(1000, 10), testNow)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if ratio != 100 {
		t.Errorf("ratio = %d, want 100", ratio)
	}
}

func TestValidate_ZeroPrice(t *testing.T) {
	v := NewValidator(Config{})

	// Zero price is rejected regardless of confidence.
	for _, conf := range []uint64{0, 1, math.MaxUint64} {
		_, err := v.Validate(testObs(0, conf), testNow)
		if !errors.Is(err, ErrZeroPrice) {
			t.Errorf("conf=%d: expected ErrZeroPrice, got %v", conf, err)
		}
	}
}

func TestValidate_ZeroConfAlwaysPasses(t *testing.T) {
	v := NewValidator(Config{MaxConfRatioBps: 1})

	for _, price := range []int64{1, -1, 1000, math.MaxInt64, math.MinInt64} {
		if _, err := v.Validate(testObs(price, 0), testNow); err != nil {
			t.Errorf("price=%d conf=0: expected pass, got %v", price, err)
		}
	}
}

func TestValidate_WideConfidence(t *testing.T) {
	v := NewValidator(Config{MaxConfRatioBps: 200})

	// ratio = 3*10000/100 = 300 > 200. Magnitude of a negative price
	// is used, the sign itself is not rejected.
	_, err := v.Validate(testObs(-100, 3), testNow)
	if !errors.Is(err, ErrWideConfidence) {
		t.Errorf("expected ErrWideConfidence, got %v", err)
	}
}

func TestValidate_Stale(t *testing.T) {
	v := NewValidator(Config{MaxAge: 60 * time.Second})

	obs := testObs(1000, 1)
	obs.PublishTime = testNow - 61
	_, err := v.Validate(obs, testNow)
	if !errors.Is(err, ErrStalePrice) {
		t.Errorf("expected ErrStalePrice, got %v", err)
	}

	// Exactly at the window boundary is still fresh.
	obs.PublishTime = testNow - 60
	if _, err := v.Validate(obs, testNow); err != nil {
		t.Errorf("boundary observation should pass, got %v", err)
	}
}

func TestConfRatioBps(t *testing.T) {
	cases := []struct {
		name  string
		price int64
		conf  uint64
		want  uint64
	}{
		{"basic", 1000, 10, 100},
		{"negative price", -100, 3, 300},
		{"conf equals price", 500, 500, 10000},
		{"truncation", 3, 1, 3333},
		{"one", 1, 1, 10000},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ConfRatioBps(tc.price, tc.conf)
			if got != tc.want {
				t.Errorf("ConfRatioBps(%d, %d) = %d, want %d", tc.price, tc.conf, got, tc.want)
			}
		})
	}
}

func TestConfRatioBps_NoOverflow(t *testing.T) {
	// conf*10000 far exceeds 64 bits; result must not wrap.
	// (2^64-1)*10000 / 2^63 = 19999 (floor).
	got := ConfRatioBps(math.MinInt64, math.MaxUint64)
	if got != 19999 {
		t.Errorf("ConfRatioBps(MinInt64, MaxUint64) = %d, want 19999", got)
	}

	// Max positive price with max confidence.
	got = ConfRatioBps(math.MaxInt64, math.MaxUint64)
	if got < 10000 {
		t.Errorf("ratio wrapped: got %d", got)
	}
}

func TestConfRatioBps_Saturates(t *testing.T) {
	// Quotient exceeding 64 bits saturates instead of panicking.
	got := ConfRatioBps(1, math.MaxUint64)
	if got != math.MaxUint64 {
		t.Errorf("expected saturation to MaxUint64, got %d", got)
	}
}

func TestNewValidator_Defaults(t *testing.T) {
	v := NewValidator(Config{})
	cfg := v.Config()
	if cfg.MaxAge != DefaultMaxAge {
		t.Errorf("MaxAge = %v, want %v", cfg.MaxAge, DefaultMaxAge)
	}
	if cfg.MaxConfRatioBps != DefaultMaxConfRatioBps {
		t.Errorf("MaxConfRatioBps = %d, want %d", cfg.MaxConfRatioBps, DefaultMaxConfRatioBps)
	}
}
