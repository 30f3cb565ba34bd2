package oauth

import (
	"net/url"
)

// AuthorizationResponse is a successful authorization endpoint response,
// parsed from the redirect callback URL and correlated with its request.
type AuthorizationResponse struct {
	// Request is the authorization request this response answers.
	Request *AuthorizationRequest `json:"request"`

	// Code is the authorization code.
	Code string `json:"code"`

	// State echoes the request's state; it has already been verified.
	State string `json:"state"`

	// AdditionalParams are any further parameters the server returned.
	AdditionalParams *Values `json:"additional_params,omitempty"`
}

// responseParams are the standard callback parameters peeled off into
// struct fields.
var responseParams = map[string]bool{
	"code":              true,
	"state":             true,
	"error":             true,
	"error_description": true,
	"error_uri":         true,
}

// ParseAuthorizationResponse parses and verifies a redirect callback URL
// against the pending request.
//
// Verification order: the callback must land on the request's redirect URI;
// an error parameter becomes a ServerError; a state mismatch or a missing
// code is a ProtocolError. A failed verification never yields a response.
func ParseAuthorizationResponse(req *AuthorizationRequest, callbackURL string) (*AuthorizationResponse, error) {
	cb, err := url.Parse(callbackURL)
	if err != nil {
		return nil, &ProtocolError{Reason: "malformed callback URL", Err: err}
	}
	if !redirectMatches(req.RedirectURI, cb) {
		return nil, &ProtocolError{Reason: "callback URL does not match the request's redirect URI"}
	}

	params, err := ParseQuery(cb.RawQuery)
	if err != nil {
		return nil, err
	}

	if code := params.Get("error"); code != "" {
		return nil, &ServerError{
			Code:        code,
			Description: params.Get("error_description"),
			URI:         params.Get("error_uri"),
		}
	}

	if params.Get("state") != req.State {
		return nil, &ProtocolError{Reason: "state mismatch between authorization request and response"}
	}
	if params.Get("code") == "" {
		return nil, &ProtocolError{Reason: "authorization response is missing code"}
	}

	resp := &AuthorizationResponse{
		Request: req,
		Code:    params.Get("code"),
		State:   params.Get("state"),
	}
	for _, k := range params.Keys() {
		if responseParams[k] {
			continue
		}
		if resp.AdditionalParams == nil {
			resp.AdditionalParams = NewValues()
		}
		for _, val := range params.Values(k) {
			resp.AdditionalParams.Add(k, val)
		}
	}
	return resp, nil
}

// redirectMatches verifies that the callback landed on the registered
// redirect URI: same scheme, host and path. Query is where the response
// lives, so it is excluded from the comparison.
func redirectMatches(redirectURI string, cb *url.URL) bool {
	want, err := url.Parse(redirectURI)
	if err != nil {
		return false
	}
	return want.Scheme == cb.Scheme && want.Host == cb.Host && want.Path == cb.Path
}

// TokenExchangeRequest derives the code-for-token exchange request for
// this response.
func (r *AuthorizationResponse) TokenExchangeRequest() *TokenRequest {
	return r.Request.tokenExchangeRequest(r.Code)
}
