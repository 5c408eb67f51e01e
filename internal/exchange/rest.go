package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"orderflow-core/pkg/types"
)

// RESTClient fetches depth snapshots and polls OI/funding from the venue's
// REST API, generalized from the teacher's internal/exchange/client.go.
type RESTClient struct {
	http        *resty.Client
	rateLimiter *RateLimiter
	logger      *slog.Logger
}

// NewRESTClient builds a RESTClient against baseURL.
func NewRESTClient(baseURL string, rateLimiter *RateLimiter, logger *slog.Logger) *RESTClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second)
	return &RESTClient{http: c, rateLimiter: rateLimiter, logger: logger.With("component", "exchange-rest")}
}

// ErrThrottled is returned when the rate limiter refuses to issue a request.
type ErrThrottled struct {
	RetryAfter time.Duration
}

func (e *ErrThrottled) Error() string {
	return fmt.Sprintf("rate-limited, retry after %s", e.RetryAfter)
}

// FetchDepth fetches `/fapi/v1/depth?symbol=S&limit=L`. limit is normalized
// to the smallest accepted value >= requested (spec §4.2). On 429/418 the
// rate limiter's backoff is doubled; on 2xx it is reset.
func (c *RESTClient) FetchDepth(ctx context.Context, symbol string, limit int) (types.DepthSnapshotWire, error) {
	now := time.Now()
	if ok, wait := c.rateLimiter.Allow(symbol, now); !ok {
		return types.DepthSnapshotWire{}, &ErrThrottled{RetryAfter: wait}
	}
	c.rateLimiter.RecordAttempt(symbol, now)

	normalized := NormalizeDepthLimit(limit)

	var out types.DepthSnapshotWire
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetQueryParam("limit", fmt.Sprintf("%d", normalized)).
		SetResult(&out).
		Get("/fapi/v1/depth")
	if err != nil {
		return types.DepthSnapshotWire{}, fmt.Errorf("fetch depth: %w", err)
	}

	if resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() == 418 {
		c.rateLimiter.RecordThrottled(symbol)
		return types.DepthSnapshotWire{}, fmt.Errorf("depth fetch throttled: status %d", resp.StatusCode())
	}
	if resp.StatusCode() >= 500 {
		return types.DepthSnapshotWire{}, fmt.Errorf("depth fetch server error: status %d", resp.StatusCode())
	}
	if resp.StatusCode() >= 400 {
		return types.DepthSnapshotWire{}, fmt.Errorf("depth fetch failed: status %d", resp.StatusCode())
	}

	c.rateLimiter.RecordSuccess(symbol)
	return out, nil
}

// oiFundingWire mirrors the venue's minimal numeric-scalar poll responses.
type oiFundingWire struct {
	Symbol string `json:"symbol"`
	Value  string `json:"openInterest,omitempty"`
	Rate   string `json:"lastFundingRate,omitempty"`
}

// FetchOpenInterest polls the open-interest endpoint for symbol.
func (c *RESTClient) FetchOpenInterest(ctx context.Context, symbol string) (float64, error) {
	var out oiFundingWire
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&out).
		Get("/fapi/v1/openInterest")
	if err != nil {
		return 0, fmt.Errorf("fetch open interest: %w", err)
	}
	if resp.StatusCode() >= 400 {
		return 0, fmt.Errorf("fetch open interest: status %d", resp.StatusCode())
	}
	return parseFloat(out.Value), nil
}

// FetchFundingRate polls the funding-rate endpoint for symbol.
func (c *RESTClient) FetchFundingRate(ctx context.Context, symbol string) (float64, error) {
	var out oiFundingWire
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&out).
		Get("/fapi/v1/premiumIndex")
	if err != nil {
		return 0, fmt.Errorf("fetch funding rate: %w", err)
	}
	if resp.StatusCode() >= 400 {
		return 0, fmt.Errorf("fetch funding rate: status %d", resp.StatusCode())
	}
	return parseFloat(out.Rate), nil
}

func parseFloat(s string) float64 {
	var f float64
	if s == "" {
		return 0
	}
	_, err := fmt.Sscanf(s, "%g", &f)
	if err != nil {
		return 0
	}
	return f
}
