package flow

import (
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sync"
	"time"

	"authflow/pkg/oauth"
)

// DefaultCallbackTimeout is how long to wait for the authorization redirect.
const DefaultCallbackTimeout = 10 * time.Minute

//go:embed templates/callback_success.html
var callbackSuccessHTML string

//go:embed templates/callback_error.html
var callbackErrorHTML string

var (
	successTemplate = template.Must(template.New("success").Parse(callbackSuccessHTML))
	errorTemplate   = template.Must(template.New("error").Parse(callbackErrorHTML))
)

// Listener is a temporary loopback HTTP server that catches the
// authorization redirect. It serves a single callback request, delivers the
// full callback URL once, then shuts down.
type Listener struct {
	port     int
	server   *http.Server
	listener net.Listener
	urlCh    chan string
	errCh    chan error
	once     sync.Once
	baseURL  string
}

// NewListener creates a listener bound to the given loopback port. Port 0
// picks a free ephemeral port.
func NewListener(port int) *Listener {
	return &Listener{
		port:  port,
		urlCh: make(chan string, 1),
		errCh: make(chan error, 1),
	}
}

// Start binds the server on 127.0.0.1 and returns the redirect URI to use
// in the authorization request. The server stops when the context is
// cancelled.
func (l *Listener) Start(ctx context.Context) (string, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", l.port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", &oauth.ConfigurationError{
			Reason: fmt.Sprintf("failed to bind callback listener on %s", addr),
			Err:    err,
		}
	}

	l.listener = listener
	l.port = listener.Addr().(*net.TCPAddr).Port
	l.baseURL = fmt.Sprintf("http://127.0.0.1:%d", l.port)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", l.handleCallback)

	l.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := l.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			select {
			case l.errCh <- err:
			default:
			}
		}
	}()

	go func() {
		<-ctx.Done()
		l.Stop()
	}()

	return l.RedirectURI(), nil
}

// Wait blocks until the callback arrives, the server fails, or the context
// is cancelled. On success it returns the full callback URL including query
// parameters.
func (l *Listener) Wait(ctx context.Context) (string, error) {
	select {
	case callbackURL := <-l.urlCh:
		return callbackURL, nil
	case err := <-l.errCh:
		return "", &oauth.NetworkError{Err: err}
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// handleCallback serves the redirect request. Only the first request is
// processed; anything after that is rejected.
func (l *Listener) handleCallback(w http.ResponseWriter, r *http.Request) {
	var handled bool
	l.once.Do(func() {
		handled = true
		l.processCallback(w, r)
	})

	if !handled {
		http.Error(w, "Callback already processed", http.StatusBadRequest)
	}
}

// processCallback renders the result page and delivers the callback URL.
// Called exactly once via sync.Once.
func (l *Listener) processCallback(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	query := r.URL.Query()
	if errCode := query.Get("error"); errCode != "" {
		_ = errorTemplate.Execute(w, map[string]string{
			"Error":       errCode,
			"Description": query.Get("error_description"),
		})
	} else {
		_ = successTemplate.Execute(w, nil)
	}

	select {
	case l.urlCh <- l.baseURL + r.URL.RequestURI():
	default:
	}

	// Give the response time to flush before tearing the server down.
	go func() {
		time.Sleep(1 * time.Second)
		l.Stop()
	}()
}

// Stop gracefully shuts down the listener.
func (l *Listener) Stop() {
	if l.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.server.Shutdown(ctx)
	}
	if l.listener != nil {
		_ = l.listener.Close()
	}
}

// RedirectURI returns the redirect URI served by this listener.
func (l *Listener) RedirectURI() string {
	return l.baseURL + "/callback"
}

// Port returns the bound port.
func (l *Listener) Port() int {
	return l.port
}
