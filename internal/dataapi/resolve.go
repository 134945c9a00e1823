package dataapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// linkEnvelope matches the indirection wrapper the API returns when a
// payload was offloaded to blob storage: the real body lives at the
// pre-signed URL in the link field.
type linkEnvelope struct {
	Link string `json:"link"`
}

// resolveIndirect follows at most one level of link indirection. A body
// that is a JSON object with a link field is replaced by the result of
// one unauthenticated GET to that URL; everything else passes through
// unchanged. A link that resolves to another link is malformed.
func (c *Client) resolveIndirect(ctx context.Context, endpoint string, body []byte) (json.RawMessage, error) {
	link, ok := indirectLink(body)
	if !ok {
		return body, nil
	}

	c.logger.Debug("following indirect link",
		slog.String("endpoint", endpoint),
	)

	resolved, err := c.fetchUnauthenticated(ctx, link)
	if err != nil {
		return nil, fmt.Errorf("dataapi: resolving link for %s: %w", endpoint, err)
	}

	if _, chained := indirectLink(resolved); chained {
		c.logger.Error("indirect link resolved to another link",
			slog.String("endpoint", endpoint),
		)

		return nil, fmt.Errorf("dataapi: %s: chained indirection: %w", endpoint, ErrMalformedPayload)
	}

	return resolved, nil
}

// indirectLink reports whether body is a JSON object carrying a non-empty
// link field. Arrays, scalars, and objects without a link are not
// indirections.
func indirectLink(body []byte) (string, bool) {
	var env linkEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", false
	}

	return env.Link, env.Link != ""
}

// fetchUnauthenticated GETs a pre-signed URL and returns the body. No
// bearer token: the URL carries its own authorization. The URL is never
// logged because it embeds auth material.
func (c *Client) fetchUnauthenticated(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errBodyLimit+1))

		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    truncateBody(body),
		}
	}

	return io.ReadAll(resp.Body)
}
