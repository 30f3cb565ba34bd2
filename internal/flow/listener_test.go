package flow

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestListenerDeliversCallbackURL(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener := NewListener(0)
	redirectURI, err := listener.Start(ctx)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer listener.Stop()

	if !strings.HasPrefix(redirectURI, "http://127.0.0.1:") || !strings.HasSuffix(redirectURI, "/callback") {
		t.Fatalf("unexpected redirect URI %q", redirectURI)
	}

	resp, err := http.Get(redirectURI + "?code=XYZ&state=abc123")
	if err != nil {
		t.Fatalf("GET callback error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if !strings.Contains(string(body), "Authentication Successful") {
		t.Errorf("success page not rendered, got: %s", body)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	callbackURL, err := listener.Wait(waitCtx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if callbackURL != redirectURI+"?code=XYZ&state=abc123" {
		t.Errorf("callback URL = %q", callbackURL)
	}
}

func TestListenerRendersErrorPage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener := NewListener(0)
	redirectURI, err := listener.Start(ctx)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer listener.Stop()

	resp, err := http.Get(redirectURI + "?error=access_denied&error_description=user+said+no")
	if err != nil {
		t.Fatalf("GET callback error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if !strings.Contains(string(body), "access_denied") {
		t.Errorf("error page missing error code, got: %s", body)
	}
	if !strings.Contains(string(body), "user said no") {
		t.Errorf("error page missing description, got: %s", body)
	}

	// The error still travels to the flow as a callback URL; classifying
	// it is the session's job.
	callbackURL, err := listener.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if !strings.Contains(callbackURL, "error=access_denied") {
		t.Errorf("callback URL = %q", callbackURL)
	}
}

func TestListenerRejectsSecondCallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener := NewListener(0)
	redirectURI, err := listener.Start(ctx)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer listener.Stop()

	first, err := http.Get(redirectURI + "?code=first&state=s")
	if err != nil {
		t.Fatalf("first GET error = %v", err)
	}
	first.Body.Close()

	second, err := http.Get(redirectURI + "?code=second&state=s")
	if err != nil {
		// The server may already be shutting down; that also counts as
		// rejecting the second callback.
		return
	}
	second.Body.Close()
	if second.StatusCode != http.StatusBadRequest {
		t.Errorf("second callback status = %d, want %d", second.StatusCode, http.StatusBadRequest)
	}

	callbackURL, err := listener.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if !strings.Contains(callbackURL, "code=first") {
		t.Errorf("delivered URL = %q, want the first callback", callbackURL)
	}
}

func TestListenerWaitHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	listener := NewListener(0)
	if _, err := listener.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer listener.Stop()

	cancel()
	if _, err := listener.Wait(ctx); err == nil {
		t.Fatal("Wait() after context cancellation should fail")
	}
}
