package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/chartview/chartview/internal/token"
)

const fhirJSON = "application/fhir+json"

// maxErrorBody caps how much of an upstream error body is carried into a
// RequestError message.
const maxErrorBody = 512

// client is the shared HTTP plumbing under both adapters: URL building,
// credential headers, single-attempt GETs, and 401 propagation to the
// token context.
type client struct {
	source token.Source
	opts   Options
	http   *http.Client
	tokens *token.Context
	logger zerolog.Logger
}

func newClient(source token.Source, opts Options, hc *http.Client, tokens *token.Context, logger zerolog.Logger) *client {
	if hc == nil {
		hc = &http.Client{}
	}
	return &client{
		source: source,
		opts:   opts,
		http:   hc,
		tokens: tokens,
		logger: logger.With().Str("source", source.String()).Logger(),
	}
}

// applyCredential sets the source bearer in the configured auth header and,
// when the source requires one, the secondary platform bearer in its own
// header. Both are present simultaneously; they are independent
// credentials, not a fallback chain.
func (c *client) applyCredential(req *http.Request, cred token.Credential) {
	req.Header.Set(c.opts.AuthHeader, "Bearer "+cred.AccessToken)
	if c.opts.PlatformHeader != "" && cred.PlatformToken != "" {
		req.Header.Set(c.opts.PlatformHeader, "Bearer "+cred.PlatformToken)
	}
}

// get performs a single authenticated GET against the source. It returns
// the response body and the Content-Type the source declared. A 401
// invalidates the held credential before the error is returned, so
// subsequent calls fail fast.
func (c *client) get(ctx context.Context, cred token.Credential, p string, query url.Values, accept string) ([]byte, string, error) {
	u := strings.TrimRight(c.opts.BaseURL, "/") + "/" + strings.TrimLeft(p, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request for %s: %w", p, err)
	}
	if accept == "" {
		accept = fhirJSON
	}
	req.Header.Set("Accept", accept)
	c.applyCredential(req, cred)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("call %s %s: %w", c.source, p, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read %s %s response: %w", c.source, p, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.Warn().Str("path", p).Msg("credential rejected, invalidating")
		if c.tokens != nil {
			c.tokens.Invalidate(c.source)
		}
		return nil, "", &RequestError{Source: c.source, Status: resp.StatusCode, Message: truncate(body)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", &RequestError{Source: c.source, Status: resp.StatusCode, Message: truncate(body)}
	}

	return body, resp.Header.Get("Content-Type"), nil
}

// exchangeCode posts the authorization code grant to the source's token
// endpoint. The client secret is optional; some sandbox apps are public
// clients.
func (c *client) exchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	if c.opts.TokenURL == "" {
		return nil, fmt.Errorf("source %s has no token endpoint configured", c.source)
	}

	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {c.opts.RedirectURI},
		"client_id":    {c.opts.ClientID},
	}
	if c.opts.ClientSecret != "" {
		form.Set("client_secret", c.opts.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange with %s: %w", c.source, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &RequestError{Source: c.source, Status: resp.StatusCode, Message: truncate(body)}
	}

	var tr TokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("token response from %s carried no access_token", c.source)
	}
	return &tr, nil
}

func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody]
	}
	return s
}
