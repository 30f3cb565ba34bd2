package oauth

// DiscoveryDocument represents OpenID Connect provider metadata as served
// from the issuer's well-known endpoint, with the subset of RFC 8414
// authorization server metadata this client consumes.
type DiscoveryDocument struct {
	// Issuer is the provider's issuer identifier.
	Issuer string `json:"issuer"`

	// AuthorizationEndpoint is the URL of the authorization endpoint.
	AuthorizationEndpoint string `json:"authorization_endpoint"`

	// TokenEndpoint is the URL of the token endpoint.
	TokenEndpoint string `json:"token_endpoint"`

	// RegistrationEndpoint is the URL for dynamic client registration.
	RegistrationEndpoint string `json:"registration_endpoint,omitempty"`

	// RevocationEndpoint is the URL for token revocation (RFC 7009).
	RevocationEndpoint string `json:"revocation_endpoint,omitempty"`

	// EndSessionEndpoint is the OIDC RP-initiated logout endpoint.
	EndSessionEndpoint string `json:"end_session_endpoint,omitempty"`

	// UserinfoEndpoint is the OIDC userinfo endpoint.
	UserinfoEndpoint string `json:"userinfo_endpoint,omitempty"`

	// JwksURI is the URL of the provider's JSON Web Key Set.
	JwksURI string `json:"jwks_uri,omitempty"`

	// ScopesSupported lists the scope values the provider supports.
	ScopesSupported []string `json:"scopes_supported,omitempty"`

	// ResponseTypesSupported lists the supported response_type values.
	ResponseTypesSupported []string `json:"response_types_supported,omitempty"`

	// GrantTypesSupported lists the supported grant types.
	GrantTypesSupported []string `json:"grant_types_supported,omitempty"`

	// TokenEndpointAuthMethodsSupported lists the client authentication
	// methods accepted at the token endpoint.
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`

	// CodeChallengeMethodsSupported lists the PKCE challenge methods.
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported,omitempty"`
}

// SupportsPKCES256 reports whether the provider supports S256 code
// challenges. An empty advertisement is treated as supporting S256, per
// the OAuth 2.1 requirement that all servers accept it.
func (d *DiscoveryDocument) SupportsPKCES256() bool {
	if len(d.CodeChallengeMethodsSupported) == 0 {
		return true
	}
	for _, m := range d.CodeChallengeMethodsSupported {
		if m == CodeChallengeMethodS256 {
			return true
		}
	}
	return false
}

// ServiceConfiguration describes the endpoints of one authorization server.
// It is created once, from discovery or manual construction, and treated as
// read-only afterwards.
type ServiceConfiguration struct {
	// AuthorizationEndpoint is the URL of the authorization endpoint.
	AuthorizationEndpoint string `json:"authorization_endpoint"`

	// TokenEndpoint is the URL of the token endpoint.
	TokenEndpoint string `json:"token_endpoint"`

	// RegistrationEndpoint is the optional dynamic registration endpoint.
	RegistrationEndpoint string `json:"registration_endpoint,omitempty"`

	// RevocationEndpoint is the optional token revocation endpoint.
	RevocationEndpoint string `json:"revocation_endpoint,omitempty"`

	// EndSessionEndpoint is the optional RP-initiated logout endpoint.
	EndSessionEndpoint string `json:"end_session_endpoint,omitempty"`

	// Discovery is the discovery document this configuration was built
	// from, or nil for manually constructed configurations.
	Discovery *DiscoveryDocument `json:"discovery,omitempty"`
}

// NewServiceConfiguration builds a configuration from manually supplied
// endpoints, for providers without a discovery document.
func NewServiceConfiguration(authorizationEndpoint, tokenEndpoint string) (*ServiceConfiguration, error) {
	if authorizationEndpoint == "" {
		return nil, &ConfigurationError{Reason: "authorization endpoint is required"}
	}
	if tokenEndpoint == "" {
		return nil, &ConfigurationError{Reason: "token endpoint is required"}
	}
	return &ServiceConfiguration{
		AuthorizationEndpoint: authorizationEndpoint,
		TokenEndpoint:         tokenEndpoint,
	}, nil
}

// ServiceConfiguration converts a discovery document into a service
// configuration, rejecting documents missing the required endpoints.
func (d *DiscoveryDocument) ServiceConfiguration() (*ServiceConfiguration, error) {
	if d.AuthorizationEndpoint == "" {
		return nil, &ConfigurationError{Reason: "discovery document has no authorization_endpoint"}
	}
	if d.TokenEndpoint == "" {
		return nil, &ConfigurationError{Reason: "discovery document has no token_endpoint"}
	}
	return &ServiceConfiguration{
		AuthorizationEndpoint: d.AuthorizationEndpoint,
		TokenEndpoint:         d.TokenEndpoint,
		RegistrationEndpoint:  d.RegistrationEndpoint,
		RevocationEndpoint:    d.RevocationEndpoint,
		EndSessionEndpoint:    d.EndSessionEndpoint,
		Discovery:             d,
	}, nil
}
