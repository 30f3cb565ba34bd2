package oauth

import (
	"github.com/golang-jwt/jwt/v5"
)

// IDTokenClaims holds the identity claims extracted from an OIDC ID token.
// The token is decoded without signature verification; it comes straight
// from the token endpoint over TLS, and full validation is the concern of
// resource servers.
type IDTokenClaims struct {
	// Issuer is the iss claim.
	Issuer string `json:"iss"`
	// Subject is the unique user identifier (sub claim).
	Subject string `json:"sub"`
	// Email is the user's email address, when the scope granted it.
	Email string `json:"email"`
	// Nonce echoes the authorization request's nonce.
	Nonce string `json:"nonce"`
}

// ParseIDTokenClaims decodes the claims of an ID token without verifying
// its signature.
func ParseIDTokenClaims(idToken string) (*IDTokenClaims, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(idToken, claims); err != nil {
		return nil, &ProtocolError{Reason: "id token is not a parseable JWT", Err: err}
	}

	out := &IDTokenClaims{}
	if s, ok := claims["iss"].(string); ok {
		out.Issuer = s
	}
	if s, ok := claims["sub"].(string); ok {
		out.Subject = s
	}
	if s, ok := claims["email"].(string); ok {
		out.Email = s
	}
	if s, ok := claims["nonce"].(string); ok {
		out.Nonce = s
	}
	return out, nil
}

// VerifyNonce checks the ID token's nonce against the authorization
// request that produced it. A mismatch is a ProtocolError.
func (c *IDTokenClaims) VerifyNonce(req *AuthorizationRequest) error {
	if req.Nonce == "" || c.Nonce == "" {
		return nil
	}
	if c.Nonce != req.Nonce {
		return &ProtocolError{Reason: "nonce mismatch between authorization request and id token"}
	}
	return nil
}
