package dataapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"
)

// Dispatch constants.
const (
	// maxAttempts is the shared retry budget for 401 re-auth and 429
	// backoff. Everything else fails on the first response.
	maxAttempts = 3

	// rateLimitWarnThreshold triggers a warning when the remote window is
	// nearly spent, so operators see throttling coming before it bites.
	rateLimitWarnThreshold = 10

	defaultMinBackoff = 1 * time.Second

	userAgent = "apexdata/0.1"
)

// HTTP client timeouts and pool caps.
const (
	connectTimeout = 10 * time.Second
	headerTimeout  = 20 * time.Second
	totalTimeout   = 30 * time.Second

	maxPoolConns        = 100
	maxPoolConnsPerHost = 30
)

// Credentials identify the account and client application. They are used
// only to derive masked values for the handshake; the raw secrets never
// leave the process.
type Credentials struct {
	Identity     string // account identity (email)
	Secret       string // account password, masked against Identity
	ClientID     string
	ClientSecret string // masked against ClientID
}

// Client is an authenticated client for the apex data API. It owns the
// token lifecycle, the per-endpoint rate-limit schedule, and one level of
// blob-storage link indirection. A single Client is safe for unbounded
// concurrent use; the session mutex serializes scheduling and auth
// decisions while the transport handles connection pooling.
type Client struct {
	baseURL    string
	tokenURL   string
	creds      Credentials
	httpClient *http.Client
	logger     *slog.Logger
	sess       *session

	// sleepFunc is called for rate-limit waits and 429 backoff. Defaults to
	// timeSleep. Tests override this to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a data API client. baseURL is the data endpoint root
// (no trailing slash), tokenURL the OAuth token endpoint.
func NewClient(baseURL, tokenURL string, creds Credentials, httpClient *http.Client, logger *slog.Logger) *Client {
	if baseURL == "" || tokenURL == "" {
		panic("dataapi: NewClient requires baseURL and tokenURL")
	}

	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = DefaultHTTPClient()
	}

	return &Client{
		baseURL:    baseURL,
		tokenURL:   tokenURL,
		creds:      creds,
		httpClient: httpClient,
		logger:     logger,
		sess:       &session{minBackoff: defaultMinBackoff},
		sleepFunc:  timeSleep,
	}
}

// DefaultHTTPClient returns an HTTP client with the recommended timeouts
// and connection pool caps. Every network operation the client performs
// is bounded; a hung connection fails like any other transport error.
func DefaultHTTPClient() *http.Client {
	return &http.Client{
		Timeout: totalTimeout,
		Transport: &http.Transport{
			DialContext:           (&net.Dialer{Timeout: connectTimeout}).DialContext,
			ResponseHeaderTimeout: headerTimeout,
			MaxIdleConns:          maxPoolConns,
			MaxIdleConnsPerHost:   maxPoolConnsPerHost,
			MaxConnsPerHost:       maxPoolConnsPerHost,
		},
	}
}

// Token returns a copy of the current token pair, or nil when the session
// is unauthenticated. The CLI persists it between runs.
func (c *Client) Token() *oauth2.Token {
	c.sess.mu.Lock()
	defer c.sess.mu.Unlock()

	if !c.sess.authenticated {
		return nil
	}

	tok := *c.sess.token

	return &tok
}

// SetToken seeds the session with a previously persisted token pair.
// An expired token is still worth seeding: its refresh token lets the
// client skip the full handshake.
func (c *Client) SetToken(tok *oauth2.Token) {
	if tok == nil || tok.AccessToken == "" {
		return
	}

	c.sess.mu.Lock()
	defer c.sess.mu.Unlock()

	c.sess.install(tok)
}

// Get performs an authenticated GET against the given endpoint and returns
// the resolved JSON payload. It authenticates on demand, waits out the
// rate-limit schedule, retries on 401 (after a fresh handshake) and 429
// (after the server-directed delay) up to the attempt budget, and follows
// one level of link indirection before returning.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := c.ensureAuthenticated(ctx); err != nil {
			return nil, err
		}

		body, retry, err := c.dispatch(ctx, endpoint, params, attempt)
		if err != nil {
			return nil, err
		}

		if retry {
			continue
		}

		return c.resolveIndirect(ctx, endpoint, body)
	}

	c.logger.Error("rate limit retries exhausted",
		slog.String("endpoint", endpoint),
		slog.Int("attempts", maxAttempts),
	)

	return nil, fmt.Errorf("dataapi: GET %s: %w", endpoint, ErrRateLimitExhausted)
}

// dispatch performs one scheduled attempt. It returns the raw body on 200,
// retry=true after handling a 401 or 429, or a terminal error.
//
// The session mutex is held from the scheduling decision through the
// request itself. Strictly only the read-modify-write of nextRequestAt
// needs the lock; holding it across the request keeps the state machine
// simple at the cost of serializing in-flight data requests.
func (c *Client) dispatch(ctx context.Context, endpoint string, params url.Values, attempt int) ([]byte, bool, error) {
	c.sess.mu.Lock()

	if !c.sess.authenticated {
		// Another caller's 401 invalidated the session between
		// ensureAuthenticated and here. Go back through authentication
		// instead of dispatching without a token.
		c.sess.mu.Unlock()

		return nil, true, nil
	}

	if wait := time.Until(c.sess.nextRequestAt); wait > 0 {
		c.logger.Debug("waiting for rate-limit window",
			slog.String("endpoint", endpoint),
			slog.Duration("wait", wait),
		)

		if err := c.sleepFunc(ctx, wait); err != nil {
			c.sess.mu.Unlock()
			return nil, false, fmt.Errorf("dataapi: GET %s canceled: %w", endpoint, err)
		}
	}

	resp, err := c.doGet(ctx, endpoint, params)
	if err != nil {
		c.sess.mu.Unlock()
		c.logger.Error("request transport failure",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)

		return nil, false, fmt.Errorf("dataapi: GET %s: %w", endpoint, err)
	}

	c.warnLowRateLimit(endpoint, resp)

	switch resp.StatusCode {
	case http.StatusOK:
		c.sess.advanceNotBefore(time.Now())

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		c.sess.mu.Unlock()

		if readErr != nil {
			return nil, false, fmt.Errorf("dataapi: reading %s response: %w", endpoint, readErr)
		}

		return body, false, nil

	case http.StatusUnauthorized:
		resp.Body.Close()
		// Drop the rejected token; the next loop iteration runs a full
		// handshake, not a refresh.
		c.sess.invalidate()
		c.sess.mu.Unlock()

		c.logger.Info("access token rejected, re-authenticating",
			slog.String("endpoint", endpoint),
			slog.Int("attempt", attempt+1),
		)

		return nil, true, nil

	case http.StatusTooManyRequests:
		delay := c.retryDelay(resp)
		resp.Body.Close()
		c.sess.advanceNotBefore(time.Now().Add(delay))
		c.sess.mu.Unlock()

		c.logger.Warn("throttled by rate limiter",
			slog.String("endpoint", endpoint),
			slog.Duration("delay", delay),
			slog.Int("attempt", attempt+1),
		)

		if err := c.sleepFunc(ctx, delay); err != nil {
			return nil, false, fmt.Errorf("dataapi: GET %s canceled: %w", endpoint, err)
		}

		return nil, true, nil

	case http.StatusServiceUnavailable:
		resp.Body.Close()
		c.sess.mu.Unlock()

		c.logger.Warn("service in maintenance, not retrying",
			slog.String("endpoint", endpoint),
		)

		return nil, false, &APIError{
			StatusCode: resp.StatusCode,
			Endpoint:   endpoint,
			Message:    "maintenance",
			Err:        ErrUnavailable,
		}

	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errBodyLimit+1))
		resp.Body.Close()
		c.sess.mu.Unlock()

		c.logger.Error("request failed",
			slog.String("endpoint", endpoint),
			slog.Int("status", resp.StatusCode),
			slog.String("body", truncateBody(body)),
		)

		return nil, false, &APIError{
			StatusCode: resp.StatusCode,
			Endpoint:   endpoint,
			Message:    truncateBody(body),
		}
	}
}

// doGet issues a single bearer-authenticated GET. Called with the session
// mutex held so the access token read is consistent.
func (c *Client) doGet(ctx context.Context, endpoint string, params url.Values) (*http.Response, error) {
	target := c.baseURL + endpoint
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.sess.token.AccessToken)
	req.Header.Set("User-Agent", userAgent)

	return c.httpClient.Do(req)
}

// warnLowRateLimit emits a non-fatal warning when the remote window is
// nearly exhausted. A missing or unparseable header is ignored.
func (c *Client) warnLowRateLimit(endpoint string, resp *http.Response) {
	raw := resp.Header.Get("x-ratelimit-remaining")
	if raw == "" {
		return
	}

	remaining, err := strconv.Atoi(raw)
	if err != nil {
		return
	}

	if remaining < rateLimitWarnThreshold {
		c.logger.Warn("rate-limit window nearly exhausted",
			slog.String("endpoint", endpoint),
			slog.Int("remaining", remaining),
		)
	}
}

// retryDelay returns how long to back off after a 429. The server's
// Retry-After wins when parseable; otherwise twice the minimum backoff.
func (c *Client) retryDelay(resp *http.Response) time.Duration {
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}

	return c.sess.minBackoff * 2
}

// timeSleep waits for the given duration or until the context is canceled.
// It is the default sleepFunc for Client.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
