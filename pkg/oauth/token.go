package oauth

import (
	"encoding/json"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Grant types accepted by Exchange.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
)

// Token endpoint client authentication methods. Exactly one method is
// applied per request.
const (
	// AuthMethodBasic sends client id and secret as an HTTP Basic
	// Authorization header (RFC 6749 §2.3.1).
	AuthMethodBasic = "client_secret_basic"

	// AuthMethodPost sends client id and secret as form body parameters.
	AuthMethodPost = "client_secret_post"

	// AuthMethodNone sends only the client id, for public clients.
	AuthMethodNone = "none"
)

// DefaultExpiryMargin is the margin applied when checking token freshness,
// absorbing clock skew and network latency.
const DefaultExpiryMargin = 30 * time.Second

// TokenRequest describes one request against the token endpoint: either an
// authorization code exchange or a refresh.
type TokenRequest struct {
	// Configuration supplies the token endpoint.
	Configuration *ServiceConfiguration `json:"configuration"`

	// GrantType is GrantTypeAuthorizationCode or GrantTypeRefreshToken.
	GrantType string `json:"grant_type"`

	// Code is the authorization code, for the code grant.
	Code string `json:"code,omitempty"`

	// RedirectURI must repeat the authorization request's redirect URI,
	// for the code grant.
	RedirectURI string `json:"redirect_uri,omitempty"`

	// CodeVerifier is the PKCE verifier, for the code grant.
	CodeVerifier string `json:"code_verifier,omitempty"`

	// RefreshToken is the refresh token, for the refresh grant.
	RefreshToken string `json:"refresh_token,omitempty"`

	// ClientID identifies the client.
	ClientID string `json:"client_id"`

	// ClientSecret authenticates confidential clients.
	ClientSecret string `json:"client_secret,omitempty"`

	// AuthMethod selects how client credentials are transmitted.
	// Empty defaults to AuthMethodPost when a secret is present,
	// AuthMethodNone otherwise.
	AuthMethod string `json:"auth_method,omitempty"`

	// Scopes optionally narrows the requested scope.
	Scopes []string `json:"scopes,omitempty"`

	// AdditionalParams are extra form parameters, appended in caller order.
	AdditionalParams *Values `json:"additional_params,omitempty"`
}

// authMethod resolves the effective client authentication method.
func (r *TokenRequest) authMethod() string {
	if r.AuthMethod != "" {
		return r.AuthMethod
	}
	if r.ClientSecret != "" {
		return AuthMethodPost
	}
	return AuthMethodNone
}

func (r *TokenRequest) validate() error {
	if r.Configuration == nil || r.Configuration.TokenEndpoint == "" {
		return &ConfigurationError{Reason: "token request has no token endpoint"}
	}
	if r.ClientID == "" {
		return &ConfigurationError{Reason: "token request has no client id"}
	}
	switch r.GrantType {
	case GrantTypeAuthorizationCode:
		if r.Code == "" {
			return &ConfigurationError{Reason: "code grant requires an authorization code"}
		}
		if r.RedirectURI == "" {
			return &ConfigurationError{Reason: "code grant requires the redirect URI"}
		}
	case GrantTypeRefreshToken:
		if r.RefreshToken == "" {
			return &ConfigurationError{Reason: "refresh grant requires a refresh token"}
		}
	default:
		return &ConfigurationError{Reason: "unsupported grant type " + r.GrantType}
	}
	return nil
}

// formValues builds the form body in wire order. Client credentials are
// omitted here when the auth method carries them in the Authorization
// header instead.
func (r *TokenRequest) formValues() *Values {
	v := NewValues()
	v.Set("grant_type", r.GrantType)
	switch r.GrantType {
	case GrantTypeAuthorizationCode:
		v.Set("code", r.Code)
		v.Set("redirect_uri", r.RedirectURI)
		if r.CodeVerifier != "" {
			v.Set("code_verifier", r.CodeVerifier)
		}
	case GrantTypeRefreshToken:
		v.Set("refresh_token", r.RefreshToken)
	}
	if len(r.Scopes) > 0 {
		v.Set("scope", strings.Join(r.Scopes, " "))
	}
	switch r.authMethod() {
	case AuthMethodPost:
		v.Set("client_id", r.ClientID)
		v.Set("client_secret", r.ClientSecret)
	case AuthMethodNone:
		v.Set("client_id", r.ClientID)
	}
	if r.AdditionalParams != nil {
		for _, k := range r.AdditionalParams.Keys() {
			for _, val := range r.AdditionalParams.Values(k) {
				v.Add(k, val)
			}
		}
	}
	return v
}

// TokenResponse is a successful token endpoint response. Expiry is computed
// once, at receipt time, from the server-supplied relative lifetime; it is
// compared against the wall clock on each use.
type TokenResponse struct {
	// AccessToken is the bearer token.
	AccessToken string `json:"access_token"`

	// TokenType is typically "Bearer".
	TokenType string `json:"token_type"`

	// Expiry is the absolute expiration instant, zero if the server sent
	// no expires_in.
	Expiry time.Time `json:"expiry,omitempty"`

	// RefreshToken is absent when the server means "unchanged".
	RefreshToken string `json:"refresh_token,omitempty"`

	// IDToken is the OIDC ID token, if issued.
	IDToken string `json:"id_token,omitempty"`

	// Scope is the scope actually granted, space-separated.
	Scope string `json:"scope,omitempty"`

	// ReceivedAt is when the response was parsed.
	ReceivedAt time.Time `json:"received_at"`

	// AdditionalParams carries any non-standard response members.
	AdditionalParams map[string]any `json:"additional_params,omitempty"`
}

// tokenResponseFields are the standard members peeled off into struct
// fields; everything else lands in AdditionalParams.
var tokenResponseFields = map[string]bool{
	"access_token":  true,
	"token_type":    true,
	"expires_in":    true,
	"refresh_token": true,
	"id_token":      true,
	"scope":         true,
}

// parseTokenResponse parses a JSON token endpoint body received at the
// given instant. Missing required members are a ProtocolError.
func parseTokenResponse(body []byte, now time.Time) (*TokenResponse, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &ProtocolError{Reason: "token response is not valid JSON", Err: err}
	}

	resp := &TokenResponse{ReceivedAt: now}
	if s, ok := raw["access_token"].(string); ok {
		resp.AccessToken = s
	}
	if s, ok := raw["token_type"].(string); ok {
		resp.TokenType = s
	}
	if s, ok := raw["refresh_token"].(string); ok {
		resp.RefreshToken = s
	}
	if s, ok := raw["id_token"].(string); ok {
		resp.IDToken = s
	}
	if s, ok := raw["scope"].(string); ok {
		resp.Scope = s
	}
	if n, ok := raw["expires_in"].(float64); ok && n > 0 {
		resp.Expiry = now.Add(time.Duration(n) * time.Second)
	}

	if resp.AccessToken == "" {
		return nil, &ProtocolError{Reason: "token response is missing access_token"}
	}
	if resp.TokenType == "" {
		return nil, &ProtocolError{Reason: "token response is missing token_type"}
	}

	for k, v := range raw {
		if tokenResponseFields[k] {
			continue
		}
		if resp.AdditionalParams == nil {
			resp.AdditionalParams = make(map[string]any)
		}
		resp.AdditionalParams[k] = v
	}
	return resp, nil
}

// IsExpired reports whether the access token has expired, applying
// DefaultExpiryMargin. Tokens without an expiry never expire.
func (t *TokenResponse) IsExpired() bool {
	return !t.HasValidityFor(DefaultExpiryMargin)
}

// HasValidityFor reports whether the access token remains valid for at
// least the given duration from now.
func (t *TokenResponse) HasValidityFor(d time.Duration) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	if t.Expiry.IsZero() {
		return true
	}
	return time.Now().Add(d).Before(t.Expiry)
}

// Scopes returns the granted scope split into individual values.
func (t *TokenResponse) Scopes() []string {
	if t.Scope == "" {
		return nil
	}
	return strings.Fields(t.Scope)
}

// OAuth2Token converts the response to an oauth2.Token for interop with
// golang.org/x/oauth2 consumers.
func (t *TokenResponse) OAuth2Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry,
	}
	if t.IDToken != "" {
		tok = tok.WithExtra(map[string]any{"id_token": t.IDToken})
	}
	return tok
}
