// Package oracle provides the Hermes REST price source.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"pyth-price-guard/internal/domain"
	"pyth-price-guard/internal/validation"
)

// DefaultEndpoint is the public Hermes instance.
const DefaultEndpoint = "https://hermes.pyth.network"

// Default client configuration.
const (
	DefaultTimeout    = 10 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = 500 * time.Millisecond
	DefaultMaxDelay   = 5 * time.Second
)

// HermesClient fetches the latest parsed price updates from a Hermes
// endpoint.
type HermesClient struct {
	endpoint   string
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
	maxDelay   time.Duration
}

// HermesOption configures HermesClient.
type HermesOption func(*HermesClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) HermesOption {
	return func(c *HermesClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) HermesOption {
	return func(c *HermesClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) HermesOption {
	return func(c *HermesClient) {
		c.retryDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) HermesOption {
	return func(c *HermesClient) {
		c.client = client
	}
}

// NewHermesClient creates a new Hermes client.
func NewHermesClient(endpoint string, opts ...HermesOption) *HermesClient {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &HermesClient{
		endpoint:   endpoint,
		client:     &http.Client{Timeout: DefaultTimeout},
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		maxDelay:   DefaultMaxDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile-time interface check.
var _ validation.PriceSource = (*HermesClient)(nil)

// Name identifies the source in records and logs.
func (c *HermesClient) Name() string { return domain.SourceHermes }

// latestResponse is the Hermes /v2/updates/price/latest payload.
type latestResponse struct {
	Parsed []parsedPrice `json:"parsed"`
}

type parsedPrice struct {
	ID    string    `json:"id"` // feed id, hex without prefix
	Price priceInfo `json:"price"`
}

type priceInfo struct {
	Price       string `json:"price"` // decimal string, scaled by 10^Expo
	Conf        string `json:"conf"`  // decimal string
	Expo        int32  `json:"expo"`
	PublishTime int64  `json:"publish_time"`
}

// Latest fetches the freshest parsed update for the feed, rejecting
// observations older than maxAge relative to now (Unix seconds).
func (c *HermesClient) Latest(ctx context.Context, feedID domain.FeedID, now int64, maxAge time.Duration) (*domain.PriceObservation, error) {
	q := url.Values{}
	q.Add("ids[]", "0x"+feedID.String())
	q.Set("parsed", "true")
	reqURL := c.endpoint + "/v2/updates/price/latest?" + q.Encode()

	var resp latestResponse
	if err := c.get(ctx, reqURL, &resp); err != nil {
		return nil, err
	}

	for _, p := range resp.Parsed {
		got, err := domain.ParseFeedID(p.ID)
		if err != nil || got != feedID {
			continue
		}

		price, err := strconv.ParseInt(p.Price.Price, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse price %q: %w", p.Price.Price, err)
		}
		conf, err := strconv.ParseUint(p.Price.Conf, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse conf %q: %w", p.Price.Conf, err)
		}

		if p.Price.PublishTime < now-int64(maxAge/time.Second) {
			return nil, fmt.Errorf("%w: published %d, now %d",
				validation.ErrStalePrice, p.Price.PublishTime, now)
		}

		return &domain.PriceObservation{
			FeedID:      feedID,
			Price:       price,
			Conf:        conf,
			Expo:        p.Price.Expo,
			PublishTime: p.Price.PublishTime,
			Source:      domain.SourceHermes,
		}, nil
	}

	return nil, fmt.Errorf("%w: %s", validation.ErrFeedNotFound, feedID)
}

// get performs a GET with retries and exponential backoff.
func (c *HermesClient) get(ctx context.Context, reqURL string, result interface{}) error {
	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		// Hermes answers 404 for unknown feed ids; not retryable.
		if resp.StatusCode == http.StatusNotFound {
			return validation.ErrFeedNotFound
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
			continue
		}

		if err := json.Unmarshal(body, result); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
