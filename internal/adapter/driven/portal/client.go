// Package portal implements the resilient HTTP client for the student
// portal gateway: version discovery, client-side rate limiting, opt-in
// response caching, and the single-retry policy for expired credentials.
package portal

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
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ewinther/portalsync/internal/domain/model"
)

// The gateway fingerprints clients; requests carry the same User-Agent a
// real browser session would.
const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

const versionsPath = "/api/versions"

// Default token-bucket profile: burst of 10, refilled at 3 requests per
// second. Conservative against the gateway's undocumented server limits.
const (
	DefaultRateCapacity = 10
	DefaultRateRefill   = 3.0
)

// DefaultTimeout bounds a single gateway request.
const DefaultTimeout = 30 * time.Second

// errNotInitialized gates every request operation: without discovered
// versions there is no sensible degraded mode, so nothing is sent.
var errNotInitialized = errors.New("client not initialized: Initialize must succeed before requests")

// CredentialSource supplies the credential for outgoing requests and
// accepts invalidation when the gateway rejects it. Implemented by
// application.Manager.
type CredentialSource interface {
	GetCredential(ctx context.Context) (*model.Credential, error)
	ClearCredential(ctx context.Context) error
}

// Client is the gateway API client. Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	creds   CredentialSource
	limiter *rate.Limiter
	cache   *responseCache
	logger  *slog.Logger

	mu       sync.Mutex
	versions *model.APIVersions
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying http.Client. Intended for
// tests injecting an httptest server's client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.http = httpClient }
}

// WithRateLimit replaces the token-bucket profile: capacity tokens of
// burst, refilled at refill tokens per second.
func WithRateLimit(capacity int, refill float64) ClientOption {
	return func(c *Client) { c.limiter = newLimiter(capacity, refill) }
}

// WithLogger sets the client's logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithTimeout bounds each gateway request. Ignored when WithHTTPClient
// supplies a client of its own.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

func newLimiter(capacity int, refill float64) *rate.Limiter {
	if capacity <= 0 {
		capacity = DefaultRateCapacity
	}
	if refill <= 0 {
		refill = DefaultRateRefill
	}
	return rate.NewLimiter(rate.Limit(refill), capacity)
}

// NewClient creates a gateway client rooted at baseURL. Plaintext HTTP
// base URLs are rejected outright; credentials never travel unencrypted.
func NewClient(baseURL string, creds CredentialSource, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if u.Scheme != "https" {
		return nil, fmt.Errorf("base URL %q must use https", baseURL)
	}

	c := &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		creds:   creds,
		limiter: newLimiter(DefaultRateCapacity, DefaultRateRefill),
		cache:   newResponseCache(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type productVersion struct {
	ProductCode   string `json:"productCode"`
	LatestVersion string `json:"latestVersion"`
}

// Initialize discovers the gateway's API versions. The discovery
// endpoint is unauthenticated but still consumes a rate-limit token.
// Both product codes must be announced; a partial answer means the
// gateway is mid-deploy and the client refuses to guess path prefixes.
func (c *Client) Initialize(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	status, raw, header, err := c.send(ctx, versionsPath, nil)
	if err != nil {
		return fmt.Errorf("discovering api versions: %w", err)
	}
	body, err := c.classify(versionsPath, status, raw, header)
	if err != nil {
		return fmt.Errorf("discovering api versions: %w", err)
	}

	var announced []productVersion
	if err := json.Unmarshal(body, &announced); err != nil {
		return fmt.Errorf("decoding version discovery response: %w", err)
	}

	var versions model.APIVersions
	for _, pv := range announced {
		switch pv.ProductCode {
		case model.ProductPortal:
			versions.Portal = pv.LatestVersion
		case model.ProductWidgets:
			versions.Widgets = pv.LatestVersion
		}
	}
	if versions.Portal == "" || versions.Widgets == "" {
		return fmt.Errorf("version discovery incomplete: need %q and %q, got %d entries",
			model.ProductPortal, model.ProductWidgets, len(announced))
	}

	c.mu.Lock()
	c.versions = &versions
	c.mu.Unlock()

	c.logger.Info("api versions discovered",
		"portal", versions.Portal, "widgets", versions.Widgets)
	return nil
}

// Versions returns the discovered versions, or nil before Initialize.
func (c *Client) Versions() *model.APIVersions {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versions == nil {
		return nil
	}
	v := *c.versions
	return &v
}

// Get fetches the given resource under the discovered portal version
// prefix. A positive ttl opts the response into the cache; a cache hit
// consumes no rate-limit token and makes no request.
func (c *Client) Get(ctx context.Context, resource string, ttl time.Duration) ([]byte, error) {
	c.mu.Lock()
	versions := c.versions
	c.mu.Unlock()
	if versions == nil {
		return nil, errNotInitialized
	}

	path := "/api/v" + versions.Portal + "/" + strings.TrimPrefix(resource, "/")
	if ttl > 0 {
		if body, ok := c.cache.Get(path); ok {
			c.logger.Debug("cache hit", "path", path)
			return body, nil
		}
	}

	body, err := c.roundTrip(ctx, path)
	if err != nil {
		return nil, err
	}
	c.cache.Set(path, body, ttl)
	return body, nil
}

// GetRaw fetches the given path verbatim, bypassing both the version
// prefix and the cache.
func (c *Client) GetRaw(ctx context.Context, path string) ([]byte, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.roundTrip(ctx, path)
}

// FlushCache drops every cached response.
func (c *Client) FlushCache() {
	c.cache.Flush()
}

// roundTrip runs the full request pipeline: initialization gate, rate
// limit, credential, request, and the 401 single-retry policy. A 401 is
// retried exactly once and only when the source can produce a
// credential with a different secret; a second rejection clears the
// stored credential so the next caller triggers reauthentication.
func (c *Client) roundTrip(ctx context.Context, path string) ([]byte, error) {
	c.mu.Lock()
	initialized := c.versions != nil
	c.mu.Unlock()
	if !initialized {
		return nil, errNotInitialized
	}

	cred, err := c.fetchCredential(ctx)
	if err != nil {
		return nil, err
	}

	status, body, header, err := c.send(ctx, path, cred)
	if err != nil {
		return nil, err
	}
	if status != http.StatusUnauthorized {
		return c.classify(path, status, body, header)
	}

	fresh, err := c.creds.GetCredential(ctx)
	if err != nil {
		// A transient read failure says nothing about the stored
		// credential; it may still be good, so it is not cleared.
		return nil, fmt.Errorf("resolving replacement credential: %w", err)
	}
	if fresh == nil || fresh.SameSecret(cred) {
		c.logger.Warn("credential rejected with no replacement available", "path", path)
		c.invalidate(ctx)
		return nil, model.ErrAuthExpired
	}

	c.logger.Info("credential rejected, retrying once with refreshed credential", "path", path)
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	status, body, header, err = c.send(ctx, path, fresh)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		c.invalidate(ctx)
		return nil, model.ErrAuthExpired
	}
	return c.classify(path, status, body, header)
}

func (c *Client) fetchCredential(ctx context.Context) (*model.Credential, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	cred, err := c.creds.GetCredential(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving credential: %w", err)
	}
	if cred == nil {
		return nil, model.ErrUnauthenticated
	}
	return cred, nil
}

func (c *Client) invalidate(ctx context.Context) {
	if err := c.creds.ClearCredential(ctx); err != nil {
		c.logger.Warn("clearing rejected credential failed", "error", err)
	}
}

func (c *Client) send(ctx context.Context, path string, cred *model.Credential) (int, []byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("building request for %s: %w", path, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if cred != nil {
		name, value := cred.Header()
		req.Header.Set(name, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("requesting %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("reading response for %s: %w", path, err)
	}
	return resp.StatusCode, body, resp.Header, nil
}

// classify maps a terminal (non-401) response to its result. 429 is
// surfaced as RateLimitError and never retried internally.
func (c *Client) classify(path string, status int, body []byte, header http.Header) ([]byte, error) {
	switch {
	case status >= 200 && status < 300:
		return body, nil
	case status == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(header.Get("Retry-After"))
		c.logger.Warn("gateway rate limit hit", "path", path, "retry_after", retryAfter)
		return nil, &model.RateLimitError{RetryAfter: retryAfter}
	default:
		return nil, &model.APIError{StatusCode: status, Body: truncate(string(body), 512)}
	}
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
