package authstate

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"authflow/pkg/oauth"
)

// State aggregates everything learned over one user's authorization
// lifetime: the last authorization response, the last token response merged
// per the refresh rules, the last dynamic registration response, and the
// last unresolved authorization error.
//
// State is not safe for concurrent use; Manager provides the locked view.
type State struct {
	// AuthorizationResponse is the last successful authorization response.
	AuthorizationResponse *oauth.AuthorizationResponse

	// TokenResponse is the last token response, merged: a refresh response
	// that omits refresh_token keeps the prior refresh token.
	TokenResponse *oauth.TokenResponse

	// RegistrationResponse is the last dynamic client registration
	// response, if the client registered itself.
	RegistrationResponse *oauth.RegistrationResponse

	// AuthorizationError is the last unresolved error. Cleared by the next
	// successful update.
	AuthorizationError error

	needsTokenRefresh bool
}

// Update records the outcome of an authorization attempt. A success stores
// the response and clears any prior error. A failure stores the error;
// previously valid tokens survive unless the error definitively
// invalidates the grant.
func (s *State) Update(response *oauth.AuthorizationResponse, err error) {
	if err != nil {
		s.AuthorizationError = err
		if oauth.IsGrantInvalidated(err) {
			s.TokenResponse = nil
			s.AuthorizationResponse = nil
		}
		return
	}
	s.AuthorizationResponse = response
	s.AuthorizationError = nil
}

// UpdateWithTokenResponse merges a token response into the state. Access
// token, token type, expiry, and scope are always replaced; the refresh
// token is replaced only when the response carries one (servers omit it to
// mean "unchanged"), and likewise the ID token. A failure stores the error
// and clears tokens only on definitive grant invalidation.
func (s *State) UpdateWithTokenResponse(response *oauth.TokenResponse, err error) {
	if err != nil {
		s.AuthorizationError = err
		if oauth.IsGrantInvalidated(err) {
			s.TokenResponse = nil
			s.AuthorizationResponse = nil
		}
		return
	}

	merged := *response
	if prior := s.TokenResponse; prior != nil {
		if merged.RefreshToken == "" {
			merged.RefreshToken = prior.RefreshToken
		}
		if merged.IDToken == "" {
			merged.IDToken = prior.IDToken
		}
	}
	s.TokenResponse = &merged
	s.AuthorizationError = nil
	s.needsTokenRefresh = false
}

// UpdateWithRegistrationResponse records a dynamic registration outcome.
func (s *State) UpdateWithRegistrationResponse(response *oauth.RegistrationResponse, err error) {
	if err != nil {
		s.AuthorizationError = err
		return
	}
	s.RegistrationResponse = response
	s.AuthorizationError = nil
}

// IsAuthorized reports whether the state holds a usable credential: a
// non-expired access token, or a refresh token capable of renewing one,
// with no unresolved authorization error.
func (s *State) IsAuthorized() bool {
	if s.AuthorizationError != nil {
		return false
	}
	t := s.TokenResponse
	if t == nil {
		return false
	}
	if t.AccessToken != "" && !t.IsExpired() {
		return true
	}
	return t.RefreshToken != ""
}

// AccessToken returns the current access token, or "" if none is stored.
func (s *State) AccessToken() string {
	if s.TokenResponse == nil {
		return ""
	}
	return s.TokenResponse.AccessToken
}

// AccessTokenExpiry returns the access token's expiration instant, zero if
// unknown.
func (s *State) AccessTokenExpiry() time.Time {
	if s.TokenResponse == nil {
		return time.Time{}
	}
	return s.TokenResponse.Expiry
}

// RefreshToken returns the current refresh token, or "".
func (s *State) RefreshToken() string {
	if s.TokenResponse == nil {
		return ""
	}
	return s.TokenResponse.RefreshToken
}

// IDToken returns the current ID token, or "".
func (s *State) IDToken() string {
	if s.TokenResponse == nil {
		return ""
	}
	return s.TokenResponse.IDToken
}

// Scope returns the granted scope, falling back to the requested scopes
// when the server echoed none.
func (s *State) Scope() string {
	if s.TokenResponse != nil && s.TokenResponse.Scope != "" {
		return s.TokenResponse.Scope
	}
	if s.AuthorizationResponse != nil && s.AuthorizationResponse.Request != nil {
		return strings.Join(s.AuthorizationResponse.Request.Scopes, " ")
	}
	return ""
}

// ClientID returns the effective client id: the registered one when the
// client registered dynamically, otherwise the one from the authorization
// request.
func (s *State) ClientID() string {
	if s.RegistrationResponse != nil && s.RegistrationResponse.ClientID != "" {
		return s.RegistrationResponse.ClientID
	}
	if s.AuthorizationResponse != nil && s.AuthorizationResponse.Request != nil {
		return s.AuthorizationResponse.Request.ClientID
	}
	return ""
}

// ClientSecret returns the effective client secret, "" for public clients.
func (s *State) ClientSecret() string {
	if s.RegistrationResponse != nil && s.RegistrationResponse.ClientSecret != "" {
		return s.RegistrationResponse.ClientSecret
	}
	if s.AuthorizationResponse != nil && s.AuthorizationResponse.Request != nil {
		return s.AuthorizationResponse.Request.ClientSecret
	}
	return ""
}

// NeedsTokenRefresh reports whether a refresh has been forced.
func (s *State) NeedsTokenRefresh() bool {
	return s.needsTokenRefresh
}

// SetNeedsTokenRefresh forces the next fresh-token request to refresh even
// if the access token has remaining lifetime.
func (s *State) SetNeedsTokenRefresh() {
	s.needsTokenRefresh = true
}

// TokenRefreshRequest builds the refresh-grant token request from the
// stored responses. It fails when no refresh token or no service
// configuration is available.
func (s *State) TokenRefreshRequest() (*oauth.TokenRequest, error) {
	if s.RefreshToken() == "" {
		return nil, &oauth.ConfigurationError{Reason: "no refresh token available"}
	}
	if s.AuthorizationResponse == nil || s.AuthorizationResponse.Request == nil {
		return nil, &oauth.ConfigurationError{Reason: "no authorization request on record"}
	}

	request := s.AuthorizationResponse.Request
	return &oauth.TokenRequest{
		Configuration: request.Configuration,
		GrantType:     oauth.GrantTypeRefreshToken,
		RefreshToken:  s.RefreshToken(),
		ClientID:      s.ClientID(),
		ClientSecret:  s.ClientSecret(),
		AuthMethod:    request.TokenAuthMethod,
	}, nil
}

// serializedState is the persisted shape. The authorization error is only
// persisted when it is a server-reported OAuth error; transport errors are
// transient and not worth keeping across restarts.
type serializedState struct {
	AuthorizationResponse *oauth.AuthorizationResponse `json:"authorizationResponse,omitempty"`
	TokenResponse         *oauth.TokenResponse         `json:"tokenResponse,omitempty"`
	RegistrationResponse  *oauth.RegistrationResponse  `json:"registrationResponse,omitempty"`
	AuthorizationError    *oauth.ServerError           `json:"authorizationError,omitempty"`
	NeedsTokenRefresh     bool                         `json:"needsTokenRefresh,omitempty"`
}

// MarshalJSON serializes the state for host persistence.
func (s *State) MarshalJSON() ([]byte, error) {
	out := serializedState{
		AuthorizationResponse: s.AuthorizationResponse,
		TokenResponse:         s.TokenResponse,
		RegistrationResponse:  s.RegistrationResponse,
		NeedsTokenRefresh:     s.needsTokenRefresh,
	}
	var serverErr *oauth.ServerError
	if errors.As(s.AuthorizationError, &serverErr) {
		out.AuthorizationError = serverErr
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a state persisted by MarshalJSON.
func (s *State) UnmarshalJSON(data []byte) error {
	var in serializedState
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	s.AuthorizationResponse = in.AuthorizationResponse
	s.TokenResponse = in.TokenResponse
	s.RegistrationResponse = in.RegistrationResponse
	s.needsTokenRefresh = in.NeedsTokenRefresh
	if in.AuthorizationError != nil {
		s.AuthorizationError = in.AuthorizationError
	} else {
		s.AuthorizationError = nil
	}
	return nil
}
