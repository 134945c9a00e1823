package dataapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Token endpoint form constants. The grant type and scope strings are
// dictated by the service and must match byte for byte.
const (
	grantLimitedPassword = "limited-password"
	grantRefreshToken    = "refresh_token"
	tokenScope           = "data.read"
)

// defaultExpirySeconds is assumed when the token response omits expires_in.
const defaultExpirySeconds = 600

// tokenResponse is the token endpoint's 200 body for both grants.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// Authenticate forces a full credential handshake, replacing any current
// token pair. Dispatched requests authenticate on demand; this exists for
// the CLI login path, which wants to validate credentials eagerly.
func (c *Client) Authenticate(ctx context.Context) error {
	c.sess.mu.Lock()
	defer c.sess.mu.Unlock()

	return c.handshakeLocked(ctx)
}

// ensureAuthenticated makes sure the session holds a usable access token
// before a request is dispatched. A valid token is a no-op. An expired
// token with a refresh token tries the refresh grant first and falls back
// to the full handshake. Anything else runs the handshake directly.
// Callers must not hold the session mutex.
func (c *Client) ensureAuthenticated(ctx context.Context) error {
	c.sess.mu.Lock()
	defer c.sess.mu.Unlock()

	if c.sess.authenticated && time.Now().Before(c.sess.token.Expiry) {
		return nil
	}

	if c.sess.authenticated && c.sess.token.RefreshToken != "" {
		if c.refreshLocked(ctx) {
			return nil
		}

		c.logger.Warn("token refresh failed, falling back to full handshake")
	}

	return c.handshakeLocked(ctx)
}

// handshakeLocked performs the full limited-password handshake. Both
// secrets go over the wire masked. On failure the session is left
// unauthenticated and the error wraps ErrAuthentication.
// The session mutex must be held.
func (c *Client) handshakeLocked(ctx context.Context) error {
	c.logger.Info("authenticating",
		slog.String("identity", c.creds.Identity),
	)

	form := url.Values{
		"grant_type":    {grantLimitedPassword},
		"client_id":     {c.creds.ClientID},
		"client_secret": {Mask(c.creds.ClientSecret, c.creds.ClientID)},
		"username":      {c.creds.Identity},
		"password":      {Mask(c.creds.Secret, c.creds.Identity)},
		"scope":         {tokenScope},
	}

	tr, err := c.postTokenForm(ctx, form)
	if err != nil {
		c.sess.invalidate()
		c.logger.Error("handshake rejected",
			slog.String("identity", c.creds.Identity),
			slog.String("error", err.Error()),
		)

		return fmt.Errorf("%w: %v", ErrAuthentication, err)
	}

	c.installLocked(tr)
	c.logger.Info("authenticated",
		slog.Time("expiry", c.sess.token.Expiry),
	)

	return nil
}

// refreshLocked tries the refresh grant. It reports success; a failed or
// malformed refresh never surfaces as an error because the caller falls
// back to the full handshake. Tokens are replaced only on a complete
// successful parse. The session mutex must be held.
func (c *Client) refreshLocked(ctx context.Context) bool {
	form := url.Values{
		"grant_type":    {grantRefreshToken},
		"client_id":     {c.creds.ClientID},
		"refresh_token": {c.sess.token.RefreshToken},
	}

	tr, err := c.postTokenForm(ctx, form)
	if err != nil {
		c.logger.Warn("token refresh rejected",
			slog.String("error", err.Error()),
		)

		return false
	}

	c.installLocked(tr)
	c.logger.Debug("token refreshed",
		slog.Time("expiry", c.sess.token.Expiry),
	)

	return true
}

// installLocked converts a parsed token response into the session's token
// pair. The session mutex must be held.
func (c *Client) installLocked(tr *tokenResponse) {
	expiresIn := tr.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = defaultExpirySeconds
	}

	c.sess.install(&oauth2.Token{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Duration(expiresIn) * time.Second),
	})
}

// postTokenForm POSTs a form-encoded grant to the token endpoint and
// parses the response. Non-200 statuses and incomplete bodies are errors;
// the caller decides whether that means fallback or failure.
func (c *Client) postTokenForm(ctx context.Context, form url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating token request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errBodyLimit+1))

		return nil, fmt.Errorf("token endpoint returned HTTP %d: %s", resp.StatusCode, truncateBody(body))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}

	if tr.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}

	return &tr, nil
}
