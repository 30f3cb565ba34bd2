package cmd

import (
	"strings"
	"testing"
	"time"

	"authflow/internal/authstate"
	"authflow/internal/tokenstore"
	"authflow/pkg/oauth"
)

func storedState(t *testing.T, accessToken, refreshToken string, lifetime time.Duration) *tokenstore.StoredState {
	t.Helper()
	var state authstate.State
	state.UpdateWithTokenResponse(&oauth.TokenResponse{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(lifetime),
		RefreshToken: refreshToken,
		ReceivedAt:   time.Now(),
	}, nil)
	return &tokenstore.StoredState{
		Provider:  "corp",
		IssuerURL: "https://idp.example.com",
		State:     &state,
	}
}

func TestStatusRowAuthenticated(t *testing.T) {
	row := statusRow(storedState(t, "AT1", "RT1", time.Hour))

	if row[0] != "corp" {
		t.Errorf("provider cell = %v", row[0])
	}
	if !strings.Contains(row[1].(string), "authenticated") {
		t.Errorf("status cell = %v", row[1])
	}
	if row[4] != "yes" {
		t.Errorf("refresh cell = %v, want yes", row[4])
	}
}

func TestStatusRowSignedOut(t *testing.T) {
	row := statusRow(&tokenstore.StoredState{Provider: "corp", State: &authstate.State{}})
	if !strings.Contains(row[1].(string), "signed out") {
		t.Errorf("status cell = %v", row[1])
	}
	if row[4] != "no" {
		t.Errorf("refresh cell = %v, want no", row[4])
	}
}

func TestStatusRowExpiredShowsExpired(t *testing.T) {
	row := statusRow(storedState(t, "AT1", "", -time.Minute))
	if !strings.Contains(row[3].(string), "expired") {
		t.Errorf("expires cell = %v", row[3])
	}
}
