package flow

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"authflow/pkg/oauth"
)

func newPendingSession(t *testing.T) (*Session, *oauth.AuthorizationRequest) {
	t.Helper()

	cfg, err := oauth.NewServiceConfiguration(
		"https://idp.example.com/authorize",
		"https://idp.example.com/token",
	)
	if err != nil {
		t.Fatalf("NewServiceConfiguration() error = %v", err)
	}

	request, err := oauth.NewAuthorizationRequest(cfg, "client-1", "http://127.0.0.1:8765/callback", []string{"openid"})
	if err != nil {
		t.Fatalf("NewAuthorizationRequest() error = %v", err)
	}

	session := NewSession()
	if err := session.Start(request); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return session, request
}

func callbackURL(request *oauth.AuthorizationRequest, query string) string {
	return request.RedirectURI + "?" + query
}

func TestSessionLifecycle(t *testing.T) {
	session := NewSession()
	if got := session.State(); got != StateIdle {
		t.Errorf("State() = %v, want %v", got, StateIdle)
	}

	if session.Resume("http://127.0.0.1/callback?code=x") {
		t.Error("Resume() on idle session should be a no-op")
	}
	if session.Cancel("") {
		t.Error("Cancel() on idle session should be a no-op")
	}
}

func TestSessionStartTwice(t *testing.T) {
	session, request := newPendingSession(t)

	err := session.Start(request)
	var protocolErr *oauth.ProtocolError
	if !errors.As(err, &protocolErr) {
		t.Fatalf("second Start() error = %v, want ProtocolError", err)
	}
	if got := session.State(); got != StatePending {
		t.Errorf("State() = %v, want %v", got, StatePending)
	}
}

func TestSessionResumeSuccess(t *testing.T) {
	session, request := newPendingSession(t)

	if !session.Resume(callbackURL(request, "code=XYZ&state="+request.State)) {
		t.Fatal("Resume() = false, want true")
	}
	if got := session.State(); got != StateResolved {
		t.Errorf("State() = %v, want %v", got, StateResolved)
	}

	result := <-session.Done()
	if result.Err != nil {
		t.Fatalf("result error = %v", result.Err)
	}
	if result.Response.Code != "XYZ" {
		t.Errorf("Code = %q, want %q", result.Response.Code, "XYZ")
	}
}

func TestSessionResumeStateMismatch(t *testing.T) {
	session, request := newPendingSession(t)

	if !session.Resume(callbackURL(request, "code=XYZ&state=wrong")) {
		t.Fatal("Resume() = false, want true")
	}
	if got := session.State(); got != StateFailed {
		t.Errorf("State() = %v, want %v", got, StateFailed)
	}

	result := <-session.Done()
	var protocolErr *oauth.ProtocolError
	if !errors.As(result.Err, &protocolErr) {
		t.Fatalf("result error = %v, want ProtocolError", result.Err)
	}
	if result.Response != nil {
		t.Error("failed resolution must not carry a response")
	}
}

func TestSessionResumeServerError(t *testing.T) {
	session, request := newPendingSession(t)

	session.Resume(callbackURL(request, "error=access_denied&state="+request.State))

	result := <-session.Done()
	var serverErr *oauth.ServerError
	if !errors.As(result.Err, &serverErr) {
		t.Fatalf("result error = %v, want ServerError", result.Err)
	}
	if serverErr.Code != "access_denied" {
		t.Errorf("Code = %q, want %q", serverErr.Code, "access_denied")
	}
}

func TestSessionCancel(t *testing.T) {
	session, _ := newPendingSession(t)

	if !session.Cancel("user closed the terminal") {
		t.Fatal("Cancel() = false, want true")
	}
	if got := session.State(); got != StateCancelled {
		t.Errorf("State() = %v, want %v", got, StateCancelled)
	}

	result := <-session.Done()
	if !oauth.IsUserCancelled(result.Err) {
		t.Fatalf("result error = %v, want UserCancelledError", result.Err)
	}
}

func TestSessionResolvesExactlyOnce(t *testing.T) {
	session, request := newPendingSession(t)

	if !session.Resume(callbackURL(request, "code=XYZ&state="+request.State)) {
		t.Fatal("first Resume() = false, want true")
	}
	if session.Resume(callbackURL(request, "code=OTHER&state="+request.State)) {
		t.Error("second Resume() should be a no-op")
	}
	if session.Cancel("") {
		t.Error("Cancel() after resolution should be a no-op")
	}

	// The completion channel must carry exactly one result.
	<-session.Done()
	select {
	case extra := <-session.Done():
		t.Fatalf("unexpected second completion: %+v", extra)
	default:
	}
}

func TestSessionConcurrentCancelAndResume(t *testing.T) {
	for i := 0; i < 50; i++ {
		t.Run(fmt.Sprintf("round-%d", i), func(t *testing.T) {
			session, request := newPendingSession(t)
			url := callbackURL(request, "code=XYZ&state="+request.State)

			var wg sync.WaitGroup
			var resumed, cancelled bool
			wg.Add(2)
			go func() {
				defer wg.Done()
				resumed = session.Resume(url)
			}()
			go func() {
				defer wg.Done()
				cancelled = session.Cancel("racing cancel")
			}()
			wg.Wait()

			if resumed == cancelled {
				t.Fatalf("exactly one of resume/cancel must win: resumed=%v cancelled=%v", resumed, cancelled)
			}

			result := <-session.Done()
			switch {
			case resumed:
				if result.Err != nil || result.Response == nil {
					t.Fatalf("resume won but result = %+v", result)
				}
			case cancelled:
				if !oauth.IsUserCancelled(result.Err) {
					t.Fatalf("cancel won but result error = %v", result.Err)
				}
			}

			select {
			case extra := <-session.Done():
				t.Fatalf("unexpected second completion: %+v", extra)
			default:
			}
		})
	}
}
