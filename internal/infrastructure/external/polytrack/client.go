package polytrack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the Polytrack API client.
type ClientConfig struct {
	// BaseURL is the upstream service root, e.g. "https://vps.kodub.com:43273"
	BaseURL string

	// ProxyURL is the relay prefix the encoded upstream URL is appended to,
	// e.g. "https://hi-rewis.maxicode.workers.dev/?url="
	ProxyURL string

	// Version is the game protocol version sent with every request
	Version string

	// Timeout is the HTTP request timeout
	Timeout time.Duration

	// RateLimiterConfig for API rate limiting
	RateLimiterConfig RateLimiterConfig

	// CircuitBreakerConfig for fault tolerance
	CircuitBreakerConfig CircuitBreakerConfig

	// Logger for structured logging
	Logger *slog.Logger

	// Registerer for Prometheus metrics; nil disables registration
	Registerer prometheus.Registerer

	// Debug enables per-request debug logging
	Debug bool
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL, proxyURL string) ClientConfig {
	return ClientConfig{
		BaseURL:              baseURL,
		ProxyURL:             proxyURL,
		Version:              "0.5.0",
		Timeout:              30 * time.Second,
		RateLimiterConfig:    DefaultRateLimiterConfig(),
		CircuitBreakerConfig: DefaultCircuitBreakerConfig(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the Polytrack API client. A single request goes out per call;
// retry policy belongs to the caller, where attempt budgets are accounted.
type Client struct {
	config         ClientConfig
	httpClient     *http.Client
	logger         *slog.Logger
	rateLimiter    *RateLimiter
	circuitBreaker *CircuitBreaker
	metrics        *Metrics
	group          singleflight.Group
}

// NewClient creates a new Polytrack API client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Version == "" {
		config.Version = "0.5.0"
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger:         config.Logger,
		rateLimiter:    NewRateLimiter(config.RateLimiterConfig),
		circuitBreaker: NewCircuitBreaker(config.CircuitBreakerConfig),
		metrics:        NewMetrics(config.Registerer),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// PageRequest describes one leaderboard query.
type PageRequest struct {
	// TrackID is the 64-hex track identifier
	TrackID string

	// Skip is the number of entries to skip (0-based offset)
	Skip int

	// Amount is the window size
	Amount int

	// OnlyVerified restricts the board to verified runs
	OnlyVerified bool

	// UserTokenHash, when set, makes the response carry the subject's
	// standing in userEntry
	UserTokenHash string
}

// FetchPage fetches one leaderboard window. Identical in-flight requests are
// coalesced, which matters for rank enrichment probes that repeat the same
// skip=0 amount=1 query per visible row.
func (c *Client) FetchPage(ctx context.Context, req PageRequest) (*PageDTO, error) {
	params := url.Values{}
	params.Set("version", c.config.Version)
	params.Set("trackId", req.TrackID)
	params.Set("skip", strconv.Itoa(req.Skip))
	params.Set("amount", strconv.Itoa(req.Amount))
	params.Set("onlyVerified", strconv.FormatBool(req.OnlyVerified))
	if req.UserTokenHash != "" {
		params.Set("userTokenHash", req.UserTokenHash)
	}

	endpoint := "/leaderboard?" + params.Encode()

	v, err, shared := c.group.Do(endpoint, func() (interface{}, error) {
		var page PageDTO
		if err := c.doRequest(ctx, "leaderboard", endpoint, &page); err != nil {
			return nil, err
		}
		return &page, nil
	})
	if shared {
		c.metrics.Deduped.Inc()
	}
	if err != nil {
		return nil, fmt.Errorf("fetch page track %s skip %d: %w", req.TrackID, req.Skip, err)
	}
	return v.(*PageDTO), nil
}

// ProbeStanding fetches only the subject's standing on a track: a skip=0
// amount=1 query keyed by token hash. The window contents are ignored.
func (c *Client) ProbeStanding(ctx context.Context, trackID, tokenHash string, onlyVerified bool) (*PageDTO, error) {
	return c.FetchPage(ctx, PageRequest{
		TrackID:       trackID,
		Skip:          0,
		Amount:        1,
		OnlyVerified:  onlyVerified,
		UserTokenHash: tokenHash,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// USER OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// FetchUserInfo resolves a raw user token to the player's display identity.
// This is the only request that carries the raw token; it must never be
// logged.
func (c *Client) FetchUserInfo(ctx context.Context, userToken string) (*UserInfoDTO, error) {
	params := url.Values{}
	params.Set("version", c.config.Version)
	params.Set("userToken", userToken)

	endpoint := "/user?" + params.Encode()

	var info UserInfoDTO
	if err := c.doRequest(ctx, "user", endpoint, &info); err != nil {
		return nil, fmt.Errorf("fetch user info: %w", err)
	}
	return &info, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORDING OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// FetchRecordings fetches replay ghosts for a set of entry IDs. The response
// is positional: index i corresponds to ids[i], with null for entries that
// have no recording.
func (c *Client) FetchRecordings(ctx context.Context, ids []int64) ([]*RecordingDTO, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = strconv.FormatInt(id, 10)
	}

	params := url.Values{}
	params.Set("version", c.config.Version)
	params.Set("recordingIds", strings.Join(strs, ","))

	endpoint := "/recordings?" + params.Encode()

	var recordings []*RecordingDTO
	if err := c.doRequest(ctx, "recordings", endpoint, &recordings); err != nil {
		return nil, fmt.Errorf("fetch recordings: %w", err)
	}
	return recordings, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// proxyURL wraps an upstream endpoint in the relay URL. The whole upstream
// URL, query included, rides in a single encoded parameter.
func (c *Client) proxyURL(endpoint string) string {
	return c.config.ProxyURL + url.QueryEscape(c.config.BaseURL+endpoint)
}

// doRequest performs a single GET through the proxy with rate limiting and
// circuit breaking. endpointLabel is the metrics dimension, endpoint the
// upstream path and query.
func (c *Client) doRequest(ctx context.Context, endpointLabel, endpoint string, result interface{}) error {
	if err := c.circuitBreaker.Allow(); err != nil {
		return fmt.Errorf("circuit breaker: %w", err)
	}

	if err := c.rateLimiter.Allow(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	err := c.doSingleRequest(ctx, endpointLabel, endpoint, result)
	c.metrics.Duration.WithLabelValues(endpointLabel).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		c.circuitBreaker.RecordSuccess()
		c.metrics.Requests.WithLabelValues(endpointLabel, "ok").Inc()
	default:
		var fetchErr *FetchError
		if errors.As(err, &fetchErr) && fetchErr.IsNotFound() {
			// 404 is an answer, not an upstream fault.
			c.circuitBreaker.RecordSuccess()
			c.metrics.Requests.WithLabelValues(endpointLabel, "not_found").Inc()
		} else {
			c.circuitBreaker.RecordFailure()
			c.metrics.Requests.WithLabelValues(endpointLabel, "error").Inc()
		}
	}
	return err
}

// doSingleRequest performs one HTTP GET through the proxy.
func (c *Client) doSingleRequest(ctx context.Context, endpointLabel, endpoint string, result interface{}) error {
	fullURL := c.proxyURL(endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if c.config.Debug {
		c.logger.Debug("polytrack api request", "endpoint", endpointLabel)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := time.Duration(0)
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		c.rateLimiter.RecordRateLimitHit(retryAfter)
		return &FetchError{StatusCode: resp.StatusCode, Endpoint: endpointLabel}
	}

	if resp.StatusCode != http.StatusOK {
		return &FetchError{StatusCode: resp.StatusCode, Endpoint: endpointLabel}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

// IsRetryable reports whether an error from this client is worth repeating.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.IsRetryable()
	}

	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return true
	}

	if errors.Is(err, ErrCircuitOpen) {
		return true
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Transport-level failures are generally transient.
	errStr := err.Error()
	for _, marker := range []string{"timeout", "connection refused", "temporary", "reset", "EOF"} {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH AND STATUS
// ══════════════════════════════════════════════════════════════════════════════

// ClientStatus is a point-in-time view of the client's protective layers.
type ClientStatus struct {
	RateLimiter    RateLimiterStatus
	CircuitBreaker CircuitBreakerStatus
}

// Status returns the current status of the client.
func (c *Client) Status() ClientStatus {
	return ClientStatus{
		RateLimiter:    c.rateLimiter.Status(),
		CircuitBreaker: c.circuitBreaker.Status(),
	}
}

// Reset resets the rate limiter and circuit breaker.
func (c *Client) Reset() {
	c.rateLimiter.Reset()
	c.circuitBreaker.Reset()
}
