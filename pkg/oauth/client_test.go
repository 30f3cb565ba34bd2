package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func discoveryHandler(t *testing.T, calls *int32) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(calls, 1)
		issuer := "http://" + r.Host
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"issuer":                           issuer,
			"authorization_endpoint":           issuer + "/authorize",
			"token_endpoint":                   issuer + "/token",
			"revocation_endpoint":              issuer + "/revoke",
			"registration_endpoint":            issuer + "/register",
			"code_challenge_methods_supported": []string{"S256"},
		})
	}
}

func TestClient_Discover(t *testing.T) {
	var calls int32
	server := httptest.NewServer(discoveryHandler(t, &calls))
	defer server.Close()

	client := NewClient()
	cfg, err := client.Discover(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	if cfg.AuthorizationEndpoint != server.URL+"/authorize" {
		t.Errorf("AuthorizationEndpoint = %q", cfg.AuthorizationEndpoint)
	}
	if cfg.TokenEndpoint != server.URL+"/token" {
		t.Errorf("TokenEndpoint = %q", cfg.TokenEndpoint)
	}
	if cfg.Discovery == nil || !cfg.Discovery.SupportsPKCES256() {
		t.Error("discovery document was not retained or lost PKCE support")
	}

	// Second call must hit the cache
	if _, err := client.Discover(context.Background(), server.URL); err != nil {
		t.Fatalf("cached Discover() failed: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("discovery endpoint hit %d times, want 1 (cached)", got)
	}
}

func TestClient_Discover_Concurrent(t *testing.T) {
	var calls int32
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(20 * time.Millisecond)
		discoveryHandler(t, &calls)(w, r)
	}))
	defer slow.Close()

	client := NewClient()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.Discover(context.Background(), slow.URL); err != nil {
				t.Errorf("Discover() failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("concurrent discovery made %d fetches, want 1", got)
	}
}

func TestClient_Discover_RFC8414Fallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/oauth-authorization-server" {
			http.NotFound(w, r)
			return
		}
		issuer := "http://" + r.Host
		json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 issuer,
			"authorization_endpoint": issuer + "/authorize",
			"token_endpoint":         issuer + "/token",
		})
	}))
	defer server.Close()

	cfg, err := NewClient().Discover(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Discover() with RFC 8414 fallback failed: %v", err)
	}
	if cfg.TokenEndpoint != server.URL+"/token" {
		t.Errorf("TokenEndpoint = %q", cfg.TokenEndpoint)
	}
}

func TestClient_Discover_MissingEndpoints(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"issuer": "http://" + r.Host})
	}))
	defer server.Close()

	_, err := NewClient().Discover(context.Background(), server.URL)
	if err == nil {
		t.Fatal("discovery document without endpoints was accepted")
	}
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Errorf("error = %T, want *ConfigurationError", err)
	}
}

func exchangeConfig(serverURL string) *ServiceConfiguration {
	return &ServiceConfiguration{
		AuthorizationEndpoint: serverURL + "/authorize",
		TokenEndpoint:         serverURL + "/token",
		RevocationEndpoint:    serverURL + "/revoke",
		RegistrationEndpoint:  serverURL + "/register",
	}
}

func TestClient_Exchange_CodeGrant(t *testing.T) {
	var gotForm *Values
	var gotAuthHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := make([]byte, r.ContentLength)
		r.Body.Read(body)
		gotForm, _ = ParseForm(string(body))
		gotAuthHeader = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "AT1",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": "RT1",
		})
	}))
	defer server.Close()

	resp, err := NewClient().Exchange(context.Background(), &TokenRequest{
		Configuration: exchangeConfig(server.URL),
		GrantType:     GrantTypeAuthorizationCode,
		Code:          "XYZ",
		RedirectURI:   "http://127.0.0.1:8080/callback",
		CodeVerifier:  "verifier",
		ClientID:      "client-1",
	})
	if err != nil {
		t.Fatalf("Exchange() failed: %v", err)
	}

	if resp.AccessToken != "AT1" || resp.RefreshToken != "RT1" {
		t.Error("token response fields were not parsed")
	}
	if gotForm.Get("grant_type") != "authorization_code" {
		t.Errorf("grant_type = %q", gotForm.Get("grant_type"))
	}
	if gotForm.Get("code") != "XYZ" || gotForm.Get("code_verifier") != "verifier" {
		t.Error("code grant parameters missing from the form body")
	}
	if gotAuthHeader != "" {
		t.Error("public client request must not carry an Authorization header")
	}
}

func TestClient_Exchange_BasicAuth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, secret, ok := r.BasicAuth()
		if !ok || id != "client-1" || secret != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid_client"})
			return
		}
		body := make([]byte, r.ContentLength)
		r.Body.Read(body)
		form, _ := ParseForm(string(body))
		if form.Has("client_secret") {
			t.Error("basic auth request duplicated the secret in the body")
		}
		json.NewEncoder(w).Encode(map[string]any{"access_token": "AT1", "token_type": "Bearer"})
	}))
	defer server.Close()

	_, err := NewClient().Exchange(context.Background(), &TokenRequest{
		Configuration: exchangeConfig(server.URL),
		GrantType:     GrantTypeRefreshToken,
		RefreshToken:  "RT1",
		ClientID:      "client-1",
		ClientSecret:  "s3cret",
		AuthMethod:    AuthMethodBasic,
	})
	if err != nil {
		t.Fatalf("Exchange() with basic auth failed: %v", err)
	}
}

func TestClient_Exchange_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_grant",
			"error_description": "refresh token already used",
		})
	}))
	defer server.Close()

	_, err := NewClient().Exchange(context.Background(), &TokenRequest{
		Configuration: exchangeConfig(server.URL),
		GrantType:     GrantTypeRefreshToken,
		RefreshToken:  "RT1",
		ClientID:      "client-1",
	})
	if err == nil {
		t.Fatal("server error was swallowed")
	}

	var serverErr *ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("error = %T, want *ServerError", err)
	}
	if serverErr.Code != "invalid_grant" {
		t.Errorf("error code = %q, want invalid_grant", serverErr.Code)
	}
	if !IsGrantInvalidated(err) {
		t.Error("invalid_grant must report as grant invalidation")
	}
}

func TestClient_Exchange_UnparseableErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>upstream broke</html>"))
	}))
	defer server.Close()

	_, err := NewClient().Exchange(context.Background(), &TokenRequest{
		Configuration: exchangeConfig(server.URL),
		GrantType:     GrantTypeRefreshToken,
		RefreshToken:  "RT1",
		ClientID:      "client-1",
	})
	if err == nil {
		t.Fatal("HTTP error without OAuth body was swallowed")
	}

	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("error = %T, want *NetworkError", err)
	}
	if netErr.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d, want 502", netErr.StatusCode)
	}
}

func TestClient_Exchange_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewClient().Exchange(ctx, &TokenRequest{
		Configuration: exchangeConfig(server.URL),
		GrantType:     GrantTypeRefreshToken,
		RefreshToken:  "RT1",
		ClientID:      "client-1",
	})
	if err == nil {
		t.Fatal("timed-out exchange reported success")
	}
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Errorf("error = %T, want *NetworkError", err)
	}
}

func TestClient_Revoke(t *testing.T) {
	var gotForm *Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := make([]byte, r.ContentLength)
		r.Body.Read(body)
		gotForm, _ = ParseForm(string(body))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := NewClient().Revoke(context.Background(), exchangeConfig(server.URL), "RT1", "refresh_token", "client-1", true)
	if err != nil {
		t.Fatalf("Revoke() failed: %v", err)
	}
	if gotForm.Get("token") != "RT1" || gotForm.Get("token_type_hint") != "refresh_token" {
		t.Error("revocation form body incomplete")
	}
	if gotForm.Get("client_id") != "client-1" {
		t.Error("client_id was requested but not sent")
	}
}

func TestClient_Revoke_NoEndpoint(t *testing.T) {
	cfg := &ServiceConfiguration{
		AuthorizationEndpoint: "https://idp.example.com/authorize",
		TokenEndpoint:         "https://idp.example.com/token",
	}
	err := NewClient().Revoke(context.Background(), cfg, "RT1", "", "c", false)
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Errorf("error = %T, want *ConfigurationError", err)
	}
}

func TestClient_Register(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req RegistrationRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.RedirectURIs) == 0 {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid_redirect_uri"})
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(RegistrationResponse{
			ClientID:     "generated-client",
			RedirectURIs: req.RedirectURIs,
		})
	}))
	defer server.Close()

	resp, err := NewClient().Register(context.Background(), exchangeConfig(server.URL), &RegistrationRequest{
		RedirectURIs: []string{"http://127.0.0.1:8080/callback"},
		ClientName:   "authflow",
	})
	if err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	if resp.ClientID != "generated-client" {
		t.Errorf("ClientID = %q", resp.ClientID)
	}
}
