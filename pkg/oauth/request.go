package oauth

import (
	"net/url"
	"strings"
)

// ResponseTypeCode is the authorization code response type.
const ResponseTypeCode = "code"

// AuthorizationRequest is one fully assembled authorization request.
// Build it with NewAuthorizationRequest; it must not be mutated afterwards.
type AuthorizationRequest struct {
	// Configuration supplies the authorization endpoint.
	Configuration *ServiceConfiguration `json:"configuration"`

	// ClientID identifies the client at the authorization server.
	ClientID string `json:"client_id"`

	// ClientSecret is carried through to the code exchange for
	// confidential clients; it never appears in the authorization URL.
	ClientSecret string `json:"client_secret,omitempty"`

	// ResponseType is the OAuth response type, normally "code".
	ResponseType string `json:"response_type"`

	// RedirectURI is where the authorization server sends the user back.
	RedirectURI string `json:"redirect_uri"`

	// Scopes are the requested scopes, space-joined on the wire in order.
	Scopes []string `json:"scopes,omitempty"`

	// State is the anti-CSRF value correlating response to request.
	State string `json:"state"`

	// Nonce binds the ID token to this request.
	Nonce string `json:"nonce,omitempty"`

	// PKCE is the verifier/challenge pair, present when the response type
	// includes "code".
	PKCE *PKCE `json:"pkce,omitempty"`

	// TokenAuthMethod selects client authentication at the token endpoint.
	TokenAuthMethod string `json:"token_auth_method,omitempty"`

	// AdditionalParams are appended to the authorization URL after the
	// standard parameters, in caller order.
	AdditionalParams *Values `json:"additional_params,omitempty"`
}

// AuthorizationRequestOption customizes request construction.
type AuthorizationRequestOption func(*AuthorizationRequest) error

// WithClientSecret attaches a client secret for confidential clients.
func WithClientSecret(secret string) AuthorizationRequestOption {
	return func(r *AuthorizationRequest) error {
		r.ClientSecret = secret
		return nil
	}
}

// WithResponseType overrides the default "code" response type.
func WithResponseType(responseType string) AuthorizationRequestOption {
	return func(r *AuthorizationRequest) error {
		r.ResponseType = responseType
		return nil
	}
}

// WithTokenAuthMethod selects the token endpoint client auth method.
func WithTokenAuthMethod(method string) AuthorizationRequestOption {
	return func(r *AuthorizationRequest) error {
		r.TokenAuthMethod = method
		return nil
	}
}

// WithAdditionalParams appends extra authorization parameters in the
// given order.
func WithAdditionalParams(params *Values) AuthorizationRequestOption {
	return func(r *AuthorizationRequest) error {
		r.AdditionalParams = params.Clone()
		return nil
	}
}

// WithPKCEMethod selects the PKCE challenge method. Plain is only accepted
// when the configuration's discovery document advertises no S256 support.
func WithPKCEMethod(method string) AuthorizationRequestOption {
	return func(r *AuthorizationRequest) error {
		if method == CodeChallengeMethodPlain {
			if d := r.Configuration.Discovery; d != nil && d.SupportsPKCES256() {
				return &ConfigurationError{Reason: "plain PKCE requested but server supports S256"}
			}
		}
		pkce, err := GeneratePKCEWithMethod(method)
		if err != nil {
			return err
		}
		r.PKCE = pkce
		return nil
	}
}

// NewAuthorizationRequest assembles an authorization request with a freshly
// generated state and nonce, and a PKCE pair when the response type
// includes "code".
func NewAuthorizationRequest(cfg *ServiceConfiguration, clientID, redirectURI string, scopes []string, opts ...AuthorizationRequestOption) (*AuthorizationRequest, error) {
	if cfg == nil || cfg.AuthorizationEndpoint == "" {
		return nil, &ConfigurationError{Reason: "authorization request has no authorization endpoint"}
	}
	if clientID == "" {
		return nil, &ConfigurationError{Reason: "authorization request has no client id"}
	}
	if redirectURI == "" {
		return nil, &ConfigurationError{Reason: "authorization request has no redirect URI"}
	}

	state, err := GenerateState()
	if err != nil {
		return nil, err
	}
	nonce, err := GenerateNonce()
	if err != nil {
		return nil, err
	}

	req := &AuthorizationRequest{
		Configuration: cfg,
		ClientID:      clientID,
		ResponseType:  ResponseTypeCode,
		RedirectURI:   redirectURI,
		Scopes:        append([]string(nil), scopes...),
		State:         state,
		Nonce:         nonce,
	}

	for _, opt := range opts {
		if err := opt(req); err != nil {
			return nil, err
		}
	}

	if req.PKCE == nil && strings.Contains(req.ResponseType, ResponseTypeCode) {
		pkce, err := GeneratePKCE()
		if err != nil {
			return nil, err
		}
		req.PKCE = pkce
	}

	return req, nil
}

// URL serializes the request into the authorization endpoint URL. The
// parameter order is fixed: response_type, client_id, redirect_uri, scope,
// state, nonce, code_challenge, code_challenge_method, then additional
// parameters in caller order.
func (r *AuthorizationRequest) URL() (string, error) {
	endpoint, err := url.Parse(r.Configuration.AuthorizationEndpoint)
	if err != nil {
		return "", &ConfigurationError{Reason: "invalid authorization endpoint", Err: err}
	}

	v := NewValues()
	v.Set("response_type", r.ResponseType)
	v.Set("client_id", r.ClientID)
	v.Set("redirect_uri", r.RedirectURI)
	if len(r.Scopes) > 0 {
		v.Set("scope", strings.Join(r.Scopes, " "))
	}
	v.Set("state", r.State)
	if r.Nonce != "" {
		v.Set("nonce", r.Nonce)
	}
	if r.PKCE != nil {
		v.Set("code_challenge", r.PKCE.CodeChallenge)
		v.Set("code_challenge_method", r.PKCE.CodeChallengeMethod)
	}
	if r.AdditionalParams != nil {
		for _, k := range r.AdditionalParams.Keys() {
			for _, val := range r.AdditionalParams.Values(k) {
				v.Add(k, val)
			}
		}
	}

	query := v.EncodeQuery()
	if endpoint.RawQuery != "" {
		endpoint.RawQuery = endpoint.RawQuery + "&" + query
	} else {
		endpoint.RawQuery = query
	}
	return endpoint.String(), nil
}

// TokenExchangeRequest derives the code exchange request for a successful
// authorization response to this request.
func (r *AuthorizationRequest) tokenExchangeRequest(code string) *TokenRequest {
	req := &TokenRequest{
		Configuration: r.Configuration,
		GrantType:     GrantTypeAuthorizationCode,
		Code:          code,
		RedirectURI:   r.RedirectURI,
		ClientID:      r.ClientID,
		ClientSecret:  r.ClientSecret,
		AuthMethod:    r.TokenAuthMethod,
	}
	if r.PKCE != nil {
		req.CodeVerifier = r.PKCE.CodeVerifier
	}
	return req
}
