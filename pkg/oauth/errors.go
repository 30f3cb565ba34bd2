package oauth

import (
	"errors"
	"fmt"
)

// Well-known OAuth error codes from RFC 6749 §5.2 that indicate the stored
// grant is no longer usable and must not be retried with the same credentials.
const (
	ErrorCodeInvalidGrant  = "invalid_grant"
	ErrorCodeInvalidClient = "invalid_client"
)

// NetworkError indicates a transport-level failure: connection refused,
// DNS failure, timeout, or an HTTP error status with no parseable OAuth
// error body.
type NetworkError struct {
	// StatusCode is the HTTP status, or 0 if the request never completed.
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("network error: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError represents an OAuth error object returned by the authorization
// or token endpoint (RFC 6749 §5.2): an error code plus optional description
// and URI.
type ServerError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
}

func (e *ServerError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("server error: %s - %s", e.Code, e.Description)
	}
	return fmt.Sprintf("server error: %s", e.Code)
}

// InvalidatesGrant reports whether the error definitively invalidates the
// stored grant. Tokens held before the failure must be discarded when this
// returns true.
func (e *ServerError) InvalidatesGrant() bool {
	return e.Code == ErrorCodeInvalidGrant || e.Code == ErrorCodeInvalidClient
}

// ProtocolError indicates a malformed or inconsistent protocol exchange:
// a missing required response field, a state mismatch, or a redirect URI
// that does not correspond to the pending request.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
	}
	return "protocol error: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// UserCancelledError indicates the authorization flow was cancelled before
// completion, either by the user closing the external user agent or by the
// program tearing down a pending session.
type UserCancelledError struct {
	Reason string
}

func (e *UserCancelledError) Error() string {
	if e.Reason != "" {
		return "authorization cancelled: " + e.Reason
	}
	return "authorization cancelled"
}

// ConfigurationError indicates the client is misconfigured or a required
// capability is unavailable: missing discovery fields, no secure randomness,
// or an operation requested against an endpoint the provider does not expose.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
	}
	return "configuration error: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// IsUserCancelled reports whether err is (or wraps) a UserCancelledError.
func IsUserCancelled(err error) bool {
	var cancelled *UserCancelledError
	return errors.As(err, &cancelled)
}

// IsGrantInvalidated reports whether err is a server error that invalidates
// the stored grant (e.g. a consumed or revoked refresh token).
func IsGrantInvalidated(err error) bool {
	var serverErr *ServerError
	return errors.As(err, &serverErr) && serverErr.InvalidatesGrant()
}
