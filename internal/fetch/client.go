package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/abelbrown/marketfeed/internal/logging"
	"github.com/abelbrown/marketfeed/internal/model"
)

// Searcher is the contract the coordinator and the search controller
// consume. *Client implements it; tests substitute fakes.
type Searcher interface {
	Search(ctx context.Context, q Query) (Response, error)
}

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL       string
	Path          string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
}

// Client calls the catalog/search endpoint.
type Client struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
}

// NewClient creates a Client. Path defaults to /api/products/search; a zero
// rate disables throttling.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Path == "" {
		cfg.Path = "/api/products/search"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + cfg.Path,
		client:   &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(limit, cfg.Burst),
	}
}

// Search performs one request. Transport failures, timeouts, 429 and 5xx
// wrap model.ErrTransientNetwork and are never retried here; retry is a
// user action. A body without products is logged and returned as an empty,
// Malformed response with a nil error.
func (c *Client) Search(ctx context.Context, q Query) (Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf("%w: rate limiter: %v", model.ErrTransientNetwork, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Values().Encode(), nil)
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "marketfeed/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %v", model.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return Response{}, fmt.Errorf("%w: read response: %v", model.ErrTransientNetwork, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return Response{}, fmt.Errorf("%w: catalog API error (status %d)", model.ErrTransientNetwork, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return Response{}, fmt.Errorf("catalog API error (status %d): %s", resp.StatusCode, truncate(string(body), 200))
	}

	out, err := Normalize(body)
	if errors.Is(err, model.ErrMalformedResponse) {
		logging.Warn("malformed catalog response", "query", q.Key(), "error", err)
		return out, nil
	}
	return out, err
}

// truncate shortens s to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
