package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

// PKCE code challenge methods (RFC 7636 §4.2). S256 is the default; plain
// is only used when explicitly configured for a server that does not
// advertise S256 support.
const (
	CodeChallengeMethodS256  = "S256"
	CodeChallengeMethodPlain = "plain"
)

const (
	// pkceVerifierBytes is the number of random bytes for the PKCE code
	// verifier. 32 bytes encode to 43 base64url characters, the minimum
	// verifier length allowed by RFC 7636 (43-128 chars).
	pkceVerifierBytes = 32

	// stateBytes is the number of random bytes for the state parameter.
	// 32 bytes encode to 43 base64url characters, well above the required
	// 32 bits of entropy.
	stateBytes = 32
)

// PKCE holds a code verifier together with its derived challenge. One pair
// is generated per authorization request and owned by that request.
type PKCE struct {
	// CodeVerifier is the random secret. It is sent only to the token
	// endpoint during code exchange, never through the browser.
	CodeVerifier string `json:"code_verifier"`

	// CodeChallenge is derived from the verifier and sent in the
	// authorization request.
	CodeChallenge string `json:"code_challenge"`

	// CodeChallengeMethod is S256 or plain.
	CodeChallengeMethod string `json:"code_challenge_method"`
}

// GeneratePKCE generates a new S256 PKCE pair: a 32-byte random verifier,
// base64url-encoded without padding, and challenge = base64url(SHA-256(verifier)).
//
// Unavailable secure randomness is a fatal ConfigurationError and is not
// retried.
func GeneratePKCE() (*PKCE, error) {
	return GeneratePKCEWithMethod(CodeChallengeMethodS256)
}

// GeneratePKCEWithMethod generates a PKCE pair using the given challenge
// method. Anything other than S256 or plain is a ConfigurationError.
func GeneratePKCEWithMethod(method string) (*PKCE, error) {
	verifierBytes := make([]byte, pkceVerifierBytes)
	if _, err := rand.Read(verifierBytes); err != nil {
		return nil, &ConfigurationError{Reason: "secure randomness unavailable", Err: err}
	}
	verifier := base64.RawURLEncoding.EncodeToString(verifierBytes)

	switch method {
	case CodeChallengeMethodS256:
		hash := sha256.Sum256([]byte(verifier))
		return &PKCE{
			CodeVerifier:        verifier,
			CodeChallenge:       base64.RawURLEncoding.EncodeToString(hash[:]),
			CodeChallengeMethod: CodeChallengeMethodS256,
		}, nil
	case CodeChallengeMethodPlain:
		return &PKCE{
			CodeVerifier:        verifier,
			CodeChallenge:       verifier,
			CodeChallengeMethod: CodeChallengeMethodPlain,
		}, nil
	default:
		return nil, &ConfigurationError{Reason: "unsupported code challenge method " + method}
	}
}

// GenerateState generates a random state parameter binding an authorization
// response back to its request and protecting against CSRF.
func GenerateState() (string, error) {
	buf := make([]byte, stateBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", &ConfigurationError{Reason: "secure randomness unavailable", Err: err}
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateNonce generates a random nonce for ID token binding. Same shape
// as state, different semantic use.
func GenerateNonce() (string, error) {
	return GenerateState()
}
