package flow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"authflow/pkg/logging"
	"authflow/pkg/oauth"
)

// RequestBuilder builds the authorization request once the callback
// redirect URI is known. The listener is bound before the request is built,
// so the builder receives the final redirect URI.
type RequestBuilder func(redirectURI string) (*oauth.AuthorizationRequest, error)

// Authorizer runs interactive authorization attempts. At most one session
// is active per authorizer; starting a new attempt cancels a prior pending
// one.
type Authorizer struct {
	presenter Presenter
	port      int
	timeout   time.Duration

	mu      sync.Mutex
	current *Session
}

// AuthorizerOption configures an Authorizer.
type AuthorizerOption func(*Authorizer)

// WithCallbackPort pins the loopback listener to a fixed port instead of an
// ephemeral one. Use this when the provider requires an exact redirect URI.
func WithCallbackPort(port int) AuthorizerOption {
	return func(a *Authorizer) {
		a.port = port
	}
}

// WithCallbackTimeout overrides how long to wait for the redirect.
func WithCallbackTimeout(timeout time.Duration) AuthorizerOption {
	return func(a *Authorizer) {
		a.timeout = timeout
	}
}

// NewAuthorizer creates an authorizer that presents authorization URLs via
// the given presenter.
func NewAuthorizer(presenter Presenter, opts ...AuthorizerOption) *Authorizer {
	a := &Authorizer{
		presenter: presenter,
		timeout:   DefaultCallbackTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Session returns the currently tracked session, or nil.
func (a *Authorizer) Session() *Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// Cancel cancels the pending session, if any. It reports whether a session
// was cancelled.
func (a *Authorizer) Cancel(reason string) bool {
	a.mu.Lock()
	session := a.current
	a.mu.Unlock()

	if session == nil {
		return false
	}
	return session.Cancel(reason)
}

// Authorize runs one complete authorization attempt: bind the loopback
// listener, build the request against its redirect URI, open the user's
// browser, and wait for the redirect. A prior pending session is cancelled
// before the new one starts.
func (a *Authorizer) Authorize(ctx context.Context, build RequestBuilder) (*oauth.AuthorizationResponse, error) {
	session := NewSession()

	a.mu.Lock()
	if prior := a.current; prior != nil && prior.Cancel("superseded by a new authorization attempt") {
		logging.Debug("Flow", "Cancelled pending session %s", prior.ID())
	}
	a.current = session
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	listener := NewListener(a.port)
	redirectURI, err := listener.Start(ctx)
	if err != nil {
		return nil, err
	}
	defer listener.Stop()

	request, err := build(redirectURI)
	if err != nil {
		return nil, err
	}
	if err := session.Start(request); err != nil {
		return nil, err
	}

	authorizationURL, err := request.URL()
	if err != nil {
		session.Fail(err)
		return nil, err
	}

	logging.Debug("Flow", "Session %s waiting for callback on %s", session.ID(), redirectURI)

	if err := a.presenter.Present(ctx, authorizationURL); err != nil {
		presentErr := fmt.Errorf("failed to present authorization URL: %w", err)
		session.Fail(presentErr)
		return nil, presentErr
	}

	// The redirect and an external Cancel race here; the session resolves
	// exactly once with whichever committed first.
	go func() {
		callbackURL, waitErr := listener.Wait(ctx)
		if waitErr != nil {
			if ctx.Err() != nil {
				session.Cancel("timed out waiting for authorization callback")
				return
			}
			session.Fail(waitErr)
			return
		}
		session.Resume(callbackURL)
	}()

	result := <-session.Done()
	if result.Err != nil {
		logging.Debug("Flow", "Session %s finished with error: %v", session.ID(), result.Err)
		return nil, result.Err
	}

	logging.Debug("Flow", "Session %s resolved successfully", session.ID())
	return result.Response, nil
}
