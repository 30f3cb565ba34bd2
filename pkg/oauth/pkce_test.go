package oauth

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"
)

func TestGeneratePKCE(t *testing.T) {
	pkce, err := GeneratePKCE()
	if err != nil {
		t.Fatalf("GeneratePKCE() failed: %v", err)
	}

	if pkce.CodeVerifier == "" {
		t.Error("CodeVerifier is empty")
	}
	if pkce.CodeChallenge == "" {
		t.Error("CodeChallenge is empty")
	}
	if pkce.CodeChallengeMethod != CodeChallengeMethodS256 {
		t.Errorf("CodeChallengeMethod = %q, want S256", pkce.CodeChallengeMethod)
	}

	// The challenge must be the SHA256 hash of the verifier
	hash := sha256.Sum256([]byte(pkce.CodeVerifier))
	expected := base64.RawURLEncoding.EncodeToString(hash[:])
	if pkce.CodeChallenge != expected {
		t.Errorf("CodeChallenge verification failed.\nGot:  %q\nWant: %q", pkce.CodeChallenge, expected)
	}
}

func TestGeneratePKCE_VerifierLength(t *testing.T) {
	pkce, err := GeneratePKCE()
	if err != nil {
		t.Fatalf("GeneratePKCE() failed: %v", err)
	}

	// RFC 7636 requires the verifier to be between 43 and 128 chars
	if len(pkce.CodeVerifier) < 43 {
		t.Errorf("CodeVerifier too short: %d chars (min 43)", len(pkce.CodeVerifier))
	}
	if len(pkce.CodeVerifier) > 128 {
		t.Errorf("CodeVerifier too long: %d chars (max 128)", len(pkce.CodeVerifier))
	}
}

func TestGeneratePKCE_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		pkce, err := GeneratePKCE()
		if err != nil {
			t.Fatalf("GeneratePKCE() failed on iteration %d: %v", i, err)
		}
		if seen[pkce.CodeVerifier] {
			t.Errorf("Duplicate code verifier generated on iteration %d", i)
		}
		seen[pkce.CodeVerifier] = true
	}
}

func TestGeneratePKCEWithMethod_Plain(t *testing.T) {
	pkce, err := GeneratePKCEWithMethod(CodeChallengeMethodPlain)
	if err != nil {
		t.Fatalf("GeneratePKCEWithMethod(plain) failed: %v", err)
	}
	if pkce.CodeChallenge != pkce.CodeVerifier {
		t.Error("plain challenge must equal the verifier")
	}
	if pkce.CodeChallengeMethod != CodeChallengeMethodPlain {
		t.Errorf("CodeChallengeMethod = %q, want plain", pkce.CodeChallengeMethod)
	}
}

func TestGeneratePKCEWithMethod_Unsupported(t *testing.T) {
	if _, err := GeneratePKCEWithMethod("S512"); err == nil {
		t.Error("expected error for unsupported challenge method")
	}
}

func TestGenerateState(t *testing.T) {
	state, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState() failed: %v", err)
	}
	if len(state) < 32 {
		t.Errorf("State too short: %d chars (must be >= 32)", len(state))
	}

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		s, err := GenerateState()
		if err != nil {
			t.Fatalf("GenerateState() failed on iteration %d: %v", i, err)
		}
		if seen[s] {
			t.Errorf("Duplicate state generated on iteration %d", i)
		}
		seen[s] = true
	}
}
