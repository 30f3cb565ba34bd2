package flow

import (
	"sync"

	"github.com/google/uuid"

	"authflow/pkg/oauth"
)

// SessionState describes where a Session is in its lifecycle.
type SessionState int

const (
	// StateIdle means the session has been created but not started.
	StateIdle SessionState = iota

	// StatePending means the authorization request has been handed to the
	// external user agent and the session is waiting for the redirect.
	StatePending

	// StateResolved means the redirect arrived and carried a valid
	// authorization response.
	StateResolved

	// StateFailed means the redirect arrived but could not be correlated
	// with the request, or carried a server error.
	StateFailed

	// StateCancelled means the session was cancelled before a redirect
	// arrived.
	StateCancelled
)

// String returns a human-readable name for the state.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateResolved:
		return "resolved"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Result is the single outcome of a session. Exactly one of Response and
// Err is set.
type Result struct {
	Response *oauth.AuthorizationResponse
	Err      error
}

// Session correlates one in-flight authorization attempt with the redirect
// that eventually completes or cancels it. Once resolved, further Resume or
// Cancel calls are no-ops: the completion channel fires exactly once.
type Session struct {
	id string

	mu      sync.Mutex
	state   SessionState
	request *oauth.AuthorizationRequest
	done    chan Result
}

// NewSession creates an idle session.
func NewSession() *Session {
	return &Session{
		id:   uuid.NewString(),
		done: make(chan Result, 1),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Request returns the authorization request this session is tracking, or
// nil if the session has not been started.
func (s *Session) Request() *oauth.AuthorizationRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.request
}

// Done returns the completion channel. It receives exactly one Result over
// the session's lifetime.
func (s *Session) Done() <-chan Result {
	return s.done
}

// Start transitions the session from idle to pending and records the
// request for later correlation with the redirect.
func (s *Session) Start(request *oauth.AuthorizationRequest) error {
	if request == nil {
		return &oauth.ConfigurationError{Reason: "authorization request is required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return &oauth.ProtocolError{Reason: "session already started"}
	}

	s.state = StatePending
	s.request = request
	return nil
}

// Resume completes a pending session with the redirect callback URL. The
// callback is verified against the recorded request: redirect URI and state
// must match. On mismatch or a server-reported error the session resolves
// as failed. Resume reports whether this call performed the resolution; a
// session that is not pending is left untouched and false is returned.
func (s *Session) Resume(callbackURL string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePending {
		return false
	}

	response, err := oauth.ParseAuthorizationResponse(s.request, callbackURL)
	if err != nil {
		s.state = StateFailed
		s.done <- Result{Err: err}
		return true
	}

	s.state = StateResolved
	s.done <- Result{Response: response}
	return true
}

// Cancel completes a pending session with a cancellation error. It reports
// whether this call performed the resolution; cancelling a session that is
// not pending is a no-op.
func (s *Session) Cancel(reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePending {
		return false
	}

	if reason == "" {
		reason = "authorization flow cancelled"
	}

	s.state = StateCancelled
	s.done <- Result{Err: &oauth.UserCancelledError{Reason: reason}}
	return true
}

// Fail completes a pending session with the supplied error, for failures
// that originate outside the redirect itself (presenter errors, listener
// errors). It reports whether this call performed the resolution.
func (s *Session) Fail(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePending {
		return false
	}

	s.state = StateFailed
	s.done <- Result{Err: err}
	return true
}
