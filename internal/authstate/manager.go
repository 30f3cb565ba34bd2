package authstate

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"authflow/pkg/logging"
	"authflow/pkg/oauth"
)

// DefaultMinimumValidity is how much remaining access-token lifetime a
// caller gets by default before a refresh is triggered.
const DefaultMinimumValidity = oauth.DefaultExpiryMargin

// Action receives the outcome of a fresh-token request. On success err is
// nil and the tokens are current; on failure err describes why and the
// tokens are the unchanged, possibly stale ones.
type Action func(accessToken, idToken string, err error)

// Listener observes successful state mutations. The snapshot is a copy;
// mutating it does not affect the manager.
type Listener func(snapshot State)

// ErrorListener observes failed state mutations.
type ErrorListener func(err error)

type listenerEntry struct {
	id string
	fn Listener
}

type errorListenerEntry struct {
	id string
	fn ErrorListener
}

// Manager wraps a State with mutual exclusion, listener registries, and
// refresh de-duplication. All exported methods are safe for concurrent use.
type Manager struct {
	client *oauth.Client

	mu             sync.Mutex
	state          State
	listeners      []listenerEntry
	errorListeners []errorListenerEntry

	// refreshing guards the single in-flight refresh; callers arriving
	// while it is true park their action on pending and are released in
	// arrival order with the refresh's outcome.
	refreshing bool
	pending    []Action
}

// NewManager creates a manager around an empty state.
func NewManager(client *oauth.Client) *Manager {
	return &Manager{client: client}
}

// NewManagerFromJSON restores a manager from a state persisted with
// ExportJSON.
func NewManagerFromJSON(client *oauth.Client, data []byte) (*Manager, error) {
	m := NewManager(client)
	if err := json.Unmarshal(data, &m.state); err != nil {
		return nil, &oauth.ConfigurationError{Reason: "failed to restore persisted state", Err: err}
	}
	return m, nil
}

// ExportJSON serializes the current state for host persistence.
func (m *Manager) ExportJSON() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return json.Marshal(&m.state)
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsAuthorized reports whether a usable credential is present.
func (m *Manager) IsAuthorized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.IsAuthorized()
}

// Subscribe registers a state-change listener and returns its id. Listeners
// are notified in registration order after every successful mutation.
func (m *Manager) Subscribe(listener Listener) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.listeners = append(m.listeners, listenerEntry{id: id, fn: listener})
	return id
}

// SubscribeErrors registers an error listener and returns its id.
func (m *Manager) SubscribeErrors(listener ErrorListener) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.errorListeners = append(m.errorListeners, errorListenerEntry{id: id, fn: listener})
	return id
}

// Unsubscribe removes a listener by id. Unknown ids are ignored, so a
// listener that already unsubscribed is tolerated.
func (m *Manager) Unsubscribe(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, entry := range m.listeners {
		if entry.id == id {
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			return
		}
	}
	for i, entry := range m.errorListeners {
		if entry.id == id {
			m.errorListeners = append(m.errorListeners[:i], m.errorListeners[i+1:]...)
			return
		}
	}
}

// Update records an authorization outcome and notifies listeners.
func (m *Manager) Update(response *oauth.AuthorizationResponse, err error) {
	m.mu.Lock()
	m.state.Update(response, err)
	snapshot := m.state
	listeners, errorListeners := m.snapshotListenersLocked()
	m.mu.Unlock()

	m.notify(snapshot, err, listeners, errorListeners)
}

// UpdateWithTokenResponse merges a token outcome and notifies listeners.
func (m *Manager) UpdateWithTokenResponse(response *oauth.TokenResponse, err error) {
	m.mu.Lock()
	m.state.UpdateWithTokenResponse(response, err)
	snapshot := m.state
	listeners, errorListeners := m.snapshotListenersLocked()
	m.mu.Unlock()

	m.notify(snapshot, err, listeners, errorListeners)
}

// UpdateWithRegistrationResponse records a registration outcome and
// notifies listeners.
func (m *Manager) UpdateWithRegistrationResponse(response *oauth.RegistrationResponse, err error) {
	m.mu.Lock()
	m.state.UpdateWithRegistrationResponse(response, err)
	snapshot := m.state
	listeners, errorListeners := m.snapshotListenersLocked()
	m.mu.Unlock()

	m.notify(snapshot, err, listeners, errorListeners)
}

// SetNeedsTokenRefresh forces the next PerformWithFreshTokens to refresh.
func (m *Manager) SetNeedsTokenRefresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.SetNeedsTokenRefresh()
}

// PerformWithFreshTokens invokes action with tokens that have at least
// minimumValidity of lifetime left. If the stored access token qualifies,
// action runs immediately. Otherwise exactly one refresh exchange is
// performed no matter how many callers arrive concurrently; the others are
// queued and released with the same outcome, in arrival order. When the
// refresh fails or no refresh token exists, action receives the error
// alongside the unchanged stale tokens.
func (m *Manager) PerformWithFreshTokens(ctx context.Context, minimumValidity time.Duration, action Action) {
	if minimumValidity <= 0 {
		minimumValidity = DefaultMinimumValidity
	}

	m.mu.Lock()

	token := m.state.TokenResponse
	if token != nil && !m.state.NeedsTokenRefresh() && token.HasValidityFor(minimumValidity) {
		accessToken, idToken := token.AccessToken, token.IDToken
		m.mu.Unlock()
		action(accessToken, idToken, nil)
		return
	}

	m.pending = append(m.pending, action)
	if m.refreshing {
		m.mu.Unlock()
		return
	}
	m.refreshing = true
	request, err := m.state.TokenRefreshRequest()
	m.mu.Unlock()

	go m.refresh(ctx, request, err)
}

// FreshTokens is the blocking form of PerformWithFreshTokens.
func (m *Manager) FreshTokens(ctx context.Context, minimumValidity time.Duration) (string, string, error) {
	type outcome struct {
		accessToken string
		idToken     string
		err         error
	}
	results := make(chan outcome, 1)
	m.PerformWithFreshTokens(ctx, minimumValidity, func(accessToken, idToken string, err error) {
		results <- outcome{accessToken: accessToken, idToken: idToken, err: err}
	})
	select {
	case r := <-results:
		return r.accessToken, r.idToken, r.err
	case <-ctx.Done():
		return "", "", ctx.Err()
	}
}

// refresh performs the single in-flight token refresh and releases every
// queued caller with its outcome.
func (m *Manager) refresh(ctx context.Context, request *oauth.TokenRequest, buildErr error) {
	var response *oauth.TokenResponse
	err := buildErr
	if err == nil {
		logging.Debug("AuthState", "Refreshing access token")
		response, err = m.client.Exchange(ctx, request)
	}

	m.mu.Lock()
	m.state.UpdateWithTokenResponse(response, err)
	snapshot := m.state
	accessToken, idToken := snapshot.AccessToken(), snapshot.IDToken()
	pending := m.pending
	m.pending = nil
	m.refreshing = false
	listeners, errorListeners := m.snapshotListenersLocked()
	m.mu.Unlock()

	if err != nil {
		logging.Debug("AuthState", "Token refresh failed: %v", err)
	}

	m.notify(snapshot, err, listeners, errorListeners)

	for _, queued := range pending {
		queued(accessToken, idToken, err)
	}
}

func (m *Manager) snapshotListenersLocked() ([]listenerEntry, []errorListenerEntry) {
	listeners := make([]listenerEntry, len(m.listeners))
	copy(listeners, m.listeners)
	errorListeners := make([]errorListenerEntry, len(m.errorListeners))
	copy(errorListeners, m.errorListeners)
	return listeners, errorListeners
}

// notify runs outside the state lock so a listener may call back into the
// manager without deadlocking.
func (m *Manager) notify(snapshot State, err error, listeners []listenerEntry, errorListeners []errorListenerEntry) {
	if err != nil {
		for _, entry := range errorListeners {
			entry.fn(err)
		}
		return
	}
	for _, entry := range listeners {
		entry.fn(snapshot)
	}
}
