package oauth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultDiscoveryCacheTTL is the default TTL for cached discovery
	// documents.
	DefaultDiscoveryCacheTTL = 30 * time.Minute
)

// discoveryCacheEntry holds a cached service configuration with its
// fetch timestamp.
type discoveryCacheEntry struct {
	config    *ServiceConfiguration
	fetchedAt time.Time
}

// Client executes the protocol operations of the authorization code flow:
// discovery, code exchange, token refresh, revocation and dynamic client
// registration. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger

	discoveryMu    sync.RWMutex
	discoveryCache map[string]*discoveryCacheEntry
	discoveryTTL   time.Duration

	// singleflight group deduplicating concurrent discovery fetches
	discoveryGroup singleflight.Group
}

// ClientOption configures the protocol client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client. Its timeout bounds every
// network call that has no tighter context deadline.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDiscoveryCacheTTL sets the discovery cache TTL.
func WithDiscoveryCacheTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		c.discoveryTTL = ttl
	}
}

// NewClient creates a protocol client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient:     &http.Client{Timeout: DefaultHTTPTimeout},
		logger:         slog.Default(),
		discoveryCache: make(map[string]*discoveryCacheEntry),
		discoveryTTL:   DefaultDiscoveryCacheTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Discover resolves an issuer into a service configuration via its
// well-known discovery document. OpenID Connect discovery
// (/.well-known/openid-configuration) is tried first, then RFC 8414
// (/.well-known/oauth-authorization-server).
//
// Results are cached with a TTL; concurrent fetches for the same issuer
// are collapsed into one request.
func (c *Client) Discover(ctx context.Context, issuer string) (*ServiceConfiguration, error) {
	issuer = strings.TrimSuffix(issuer, "/")

	c.discoveryMu.RLock()
	if entry, ok := c.discoveryCache[issuer]; ok {
		if time.Since(entry.fetchedAt) < c.discoveryTTL {
			c.discoveryMu.RUnlock()
			return entry.config, nil
		}
	}
	c.discoveryMu.RUnlock()

	result, err, _ := c.discoveryGroup.Do(issuer, func() (interface{}, error) {
		// Double-check cache after winning the singleflight slot
		c.discoveryMu.RLock()
		if entry, ok := c.discoveryCache[issuer]; ok {
			if time.Since(entry.fetchedAt) < c.discoveryTTL {
				c.discoveryMu.RUnlock()
				return entry.config, nil
			}
		}
		c.discoveryMu.RUnlock()

		return c.doDiscover(ctx, issuer)
	})
	if err != nil {
		return nil, err
	}
	return result.(*ServiceConfiguration), nil
}

func (c *Client) doDiscover(ctx context.Context, issuer string) (*ServiceConfiguration, error) {
	doc, err := c.fetchDiscoveryDocument(ctx, issuer+"/.well-known/openid-configuration")
	if err != nil {
		c.logger.Debug("OIDC discovery failed, trying RFC 8414",
			"issuer", issuer,
			"error", err)
		var fallbackErr error
		doc, fallbackErr = c.fetchDiscoveryDocument(ctx, issuer+"/.well-known/oauth-authorization-server")
		if fallbackErr != nil {
			return nil, &ConfigurationError{Reason: "failed to discover configuration for " + issuer, Err: err}
		}
	}

	cfg, err := doc.ServiceConfiguration()
	if err != nil {
		return nil, err
	}

	c.discoveryMu.Lock()
	c.discoveryCache[issuer] = &discoveryCacheEntry{config: cfg, fetchedAt: time.Now()}
	c.discoveryMu.Unlock()

	c.logger.Debug("Discovered service configuration",
		"issuer", issuer,
		"authorization_endpoint", cfg.AuthorizationEndpoint,
		"token_endpoint", cfg.TokenEndpoint)

	return cfg, nil
}

func (c *Client) fetchDiscoveryDocument(ctx context.Context, documentURL string) (*DiscoveryDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, documentURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &NetworkError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	var doc DiscoveryDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &ProtocolError{Reason: "discovery document is not valid JSON", Err: err}
	}
	return &doc, nil
}

// ClearDiscoveryCache drops all cached discovery results.
func (c *Client) ClearDiscoveryCache() {
	c.discoveryMu.Lock()
	c.discoveryCache = make(map[string]*discoveryCacheEntry)
	c.discoveryMu.Unlock()
}

// Exchange executes a token endpoint request: an authorization code
// exchange or a refresh. Client authentication uses exactly one method,
// HTTP Basic or form body parameters, per the request's AuthMethod.
//
// Transport failures and timeouts surface as NetworkError; OAuth error
// bodies as ServerError; malformed success bodies as ProtocolError.
// The client never retries; the caller decides.
func (c *Client) Exchange(ctx context.Context, tokenReq *TokenRequest) (*TokenResponse, error) {
	if err := tokenReq.validate(); err != nil {
		return nil, err
	}

	body := tokenReq.formValues().EncodeForm()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenReq.Configuration.TokenEndpoint, strings.NewReader(body))
	if err != nil {
		return nil, &ConfigurationError{Reason: "invalid token endpoint", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if tokenReq.authMethod() == AuthMethodBasic {
		req.SetBasicAuth(escape(tokenReq.ClientID, false), escape(tokenReq.ClientSecret, false))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if serverErr := parseServerError(respBody); serverErr != nil {
			c.logger.Debug("Token request rejected",
				"grant_type", tokenReq.GrantType,
				"status", resp.StatusCode,
				"error", serverErr.Code)
			return nil, serverErr
		}
		return nil, &NetworkError{StatusCode: resp.StatusCode}
	}

	tokenResp, err := parseTokenResponse(respBody, time.Now())
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Token request succeeded",
		"grant_type", tokenReq.GrantType,
		"has_refresh_token", tokenResp.RefreshToken != "",
		"expiry", tokenResp.Expiry)

	return tokenResp, nil
}

// parseServerError attempts to parse an OAuth error object from an error
// response body. Returns nil when the body carries no usable error code.
func parseServerError(body []byte) *ServerError {
	var serverErr ServerError
	if err := json.Unmarshal(body, &serverErr); err != nil {
		return nil
	}
	if serverErr.Code == "" {
		return nil
	}
	return &serverErr
}

// Revoke revokes a token at the provider's revocation endpoint (RFC 7009).
// Some providers insist on client_id in the body while others reject it;
// includeClientID gates that, defaulting per the RFC to omission.
func (c *Client) Revoke(ctx context.Context, cfg *ServiceConfiguration, token, tokenTypeHint, clientID string, includeClientID bool) error {
	if cfg == nil || cfg.RevocationEndpoint == "" {
		return &ConfigurationError{Reason: "provider exposes no revocation endpoint"}
	}
	if token == "" {
		return &ConfigurationError{Reason: "no token to revoke"}
	}

	v := NewValues()
	v.Set("token", token)
	if tokenTypeHint != "" {
		v.Set("token_type_hint", tokenTypeHint)
	}
	if includeClientID && clientID != "" {
		v.Set("client_id", clientID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.RevocationEndpoint, strings.NewReader(v.EncodeForm()))
	if err != nil {
		return &ConfigurationError{Reason: "invalid revocation endpoint", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		if serverErr := parseServerError(body); serverErr != nil {
			return serverErr
		}
		return &NetworkError{StatusCode: resp.StatusCode}
	}

	c.logger.Debug("Token revoked", "endpoint", cfg.RevocationEndpoint)
	return nil
}

// Register performs dynamic client registration (RFC 7591) against the
// provider's registration endpoint.
func (c *Client) Register(ctx context.Context, cfg *ServiceConfiguration, regReq *RegistrationRequest) (*RegistrationResponse, error) {
	if cfg == nil || cfg.RegistrationEndpoint == "" {
		return nil, &ConfigurationError{Reason: "provider exposes no registration endpoint"}
	}
	if len(regReq.RedirectURIs) == 0 {
		return nil, &ConfigurationError{Reason: "registration requires at least one redirect URI"}
	}

	payload, err := json.Marshal(regReq)
	if err != nil {
		return nil, &ConfigurationError{Reason: "failed to encode registration request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.RegistrationEndpoint, strings.NewReader(string(payload)))
	if err != nil {
		return nil, &ConfigurationError{Reason: "invalid registration endpoint", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		if serverErr := parseServerError(body); serverErr != nil {
			return nil, serverErr
		}
		return nil, &NetworkError{StatusCode: resp.StatusCode}
	}

	var regResp RegistrationResponse
	if err := json.Unmarshal(body, &regResp); err != nil {
		return nil, &ProtocolError{Reason: "registration response is not valid JSON", Err: err}
	}
	if regResp.ClientID == "" {
		return nil, &ProtocolError{Reason: "registration response is missing client_id"}
	}

	c.logger.Debug("Client registered",
		"endpoint", cfg.RegistrationEndpoint,
		"client_id", regResp.ClientID)

	return &regResp, nil
}

// HTTPClient exposes the underlying HTTP client so collaborating
// components share its pooling and timeout behavior.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}
