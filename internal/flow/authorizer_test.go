package flow

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"authflow/pkg/oauth"
)

func testBuilder(t *testing.T) RequestBuilder {
	t.Helper()
	cfg, err := oauth.NewServiceConfiguration(
		"https://idp.example.com/authorize",
		"https://idp.example.com/token",
	)
	if err != nil {
		t.Fatalf("NewServiceConfiguration() error = %v", err)
	}
	return func(redirectURI string) (*oauth.AuthorizationRequest, error) {
		return oauth.NewAuthorizationRequest(cfg, "client-1", redirectURI, []string{"openid", "profile"})
	}
}

// idpPresenter plays the authorization server: it parses the authorization
// URL and immediately redirects back to the client with a code.
func idpPresenter(t *testing.T) Presenter {
	t.Helper()
	return PresenterFunc(func(ctx context.Context, authorizationURL string) error {
		u, err := url.Parse(authorizationURL)
		if err != nil {
			return err
		}
		query := u.Query()
		redirect := query.Get("redirect_uri") + "?code=XYZ&state=" + url.QueryEscape(query.Get("state"))

		go func() {
			resp, err := http.Get(redirect)
			if err != nil {
				t.Errorf("callback GET error = %v", err)
				return
			}
			resp.Body.Close()
		}()
		return nil
	})
}

func TestAuthorizeHappyPath(t *testing.T) {
	authorizer := NewAuthorizer(idpPresenter(t), WithCallbackTimeout(10*time.Second))

	response, err := authorizer.Authorize(context.Background(), testBuilder(t))
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	if response.Code != "XYZ" {
		t.Errorf("Code = %q, want %q", response.Code, "XYZ")
	}
	if got := authorizer.Session().State(); got != StateResolved {
		t.Errorf("session state = %v, want %v", got, StateResolved)
	}
}

func TestAuthorizeCancel(t *testing.T) {
	authorizer := NewAuthorizer(
		PresenterFunc(func(ctx context.Context, authorizationURL string) error {
			// Never deliver a redirect; the flow must end via Cancel.
			return nil
		}),
		WithCallbackTimeout(10*time.Second),
	)

	go func() {
		for !authorizer.Cancel("test cancel") {
			time.Sleep(10 * time.Millisecond)
		}
	}()

	_, err := authorizer.Authorize(context.Background(), testBuilder(t))
	if !oauth.IsUserCancelled(err) {
		t.Fatalf("Authorize() error = %v, want UserCancelledError", err)
	}
}

func TestAuthorizeTimeout(t *testing.T) {
	authorizer := NewAuthorizer(
		PresenterFunc(func(ctx context.Context, authorizationURL string) error {
			return nil
		}),
		WithCallbackTimeout(100*time.Millisecond),
	)

	_, err := authorizer.Authorize(context.Background(), testBuilder(t))
	if !oauth.IsUserCancelled(err) {
		t.Fatalf("Authorize() error = %v, want cancellation after timeout", err)
	}
}

func TestAuthorizePresenterFailure(t *testing.T) {
	authorizer := NewAuthorizer(
		PresenterFunc(func(ctx context.Context, authorizationURL string) error {
			return context.DeadlineExceeded
		}),
		WithCallbackTimeout(10*time.Second),
	)

	_, err := authorizer.Authorize(context.Background(), testBuilder(t))
	if err == nil {
		t.Fatal("Authorize() should surface presenter failure")
	}
	if got := authorizer.Session().State(); got != StateFailed {
		t.Errorf("session state = %v, want %v", got, StateFailed)
	}
}

func TestAuthorizeSupersedesPriorSession(t *testing.T) {
	authorizer := NewAuthorizer(
		PresenterFunc(func(ctx context.Context, authorizationURL string) error {
			return nil
		}),
		WithCallbackTimeout(10*time.Second),
	)

	firstErr := make(chan error, 1)
	go func() {
		_, err := authorizer.Authorize(context.Background(), testBuilder(t))
		firstErr <- err
	}()

	// Wait for the first session to reach pending before superseding it.
	for authorizer.Session() == nil || authorizer.Session().State() != StatePending {
		time.Sleep(10 * time.Millisecond)
	}
	go authorizer.Authorize(context.Background(), testBuilder(t)) //nolint:errcheck

	select {
	case err := <-firstErr:
		if !oauth.IsUserCancelled(err) {
			t.Fatalf("first Authorize() error = %v, want UserCancelledError", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first Authorize() was not cancelled by the second attempt")
	}
}
