package config

import (
	"fmt"
	"time"

	"authflow/pkg/oauth"
)

// Config is the top-level configuration file shape.
type Config struct {
	// DefaultProvider is used when a command names no provider.
	DefaultProvider string `yaml:"defaultProvider,omitempty"`

	// StorageDir overrides where authorization state is persisted.
	StorageDir string `yaml:"storageDir,omitempty"`

	// Providers maps provider names to their settings.
	Providers map[string]ProviderConfig `yaml:"providers,omitempty"`
}

// ProviderConfig describes one authorization server.
type ProviderConfig struct {
	// Issuer enables OIDC discovery. Either Issuer or both explicit
	// endpoints must be set.
	Issuer string `yaml:"issuer,omitempty"`

	// AuthorizationEndpoint and TokenEndpoint configure the provider
	// manually when discovery is unavailable.
	AuthorizationEndpoint string `yaml:"authorizationEndpoint,omitempty"`
	TokenEndpoint         string `yaml:"tokenEndpoint,omitempty"`

	// ClientID identifies this client. Leave empty together with
	// Register to use dynamic client registration.
	ClientID string `yaml:"clientId,omitempty"`

	// ClientSecret is set for confidential clients only.
	ClientSecret string `yaml:"clientSecret,omitempty"`

	// Register enables dynamic client registration when no ClientID is
	// configured.
	Register bool `yaml:"register,omitempty"`

	// Scopes to request. Defaults to ["openid"].
	Scopes []string `yaml:"scopes,omitempty"`

	// RedirectPort pins the loopback callback port; 0 picks an ephemeral
	// one.
	RedirectPort int `yaml:"redirectPort,omitempty"`

	// AuthMethod selects token endpoint client authentication: "basic",
	// "post", or "none". Empty lets the client pick based on whether a
	// secret is configured.
	AuthMethod string `yaml:"authMethod,omitempty"`

	// PKCEMethod is "S256" (default) or "plain". Plain is only accepted
	// for servers that do not advertise S256 support.
	PKCEMethod string `yaml:"pkceMethod,omitempty"`

	// ExpiryMargin is how much remaining access-token lifetime a refresh
	// requires before it triggers. Defaults to 30s.
	ExpiryMargin time.Duration `yaml:"expiryMargin,omitempty"`

	// AdditionalParams are extra authorization request parameters, for
	// provider-specific knobs like audience or prompt.
	AdditionalParams map[string]string `yaml:"additionalParams,omitempty"`
}

// Provider returns the named provider, falling back to DefaultProvider
// when name is empty.
func (c *Config) Provider(name string) (string, ProviderConfig, error) {
	if name == "" {
		name = c.DefaultProvider
	}
	if name == "" {
		return "", ProviderConfig{}, fmt.Errorf("no provider named and no defaultProvider configured")
	}
	provider, ok := c.Providers[name]
	if !ok {
		return "", ProviderConfig{}, fmt.Errorf("provider %q is not configured", name)
	}
	return name, provider, nil
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if c.DefaultProvider != "" {
		if _, ok := c.Providers[c.DefaultProvider]; !ok {
			return fmt.Errorf("defaultProvider %q is not configured", c.DefaultProvider)
		}
	}
	for name, provider := range c.Providers {
		if err := provider.Validate(); err != nil {
			return fmt.Errorf("provider %q: %w", name, err)
		}
	}
	return nil
}

// Validate checks one provider's settings.
func (p *ProviderConfig) Validate() error {
	if p.Issuer == "" && (p.AuthorizationEndpoint == "" || p.TokenEndpoint == "") {
		return fmt.Errorf("either issuer or both authorizationEndpoint and tokenEndpoint are required")
	}
	if p.ClientID == "" && !p.Register {
		return fmt.Errorf("clientId is required unless register is enabled")
	}
	switch p.AuthMethod {
	case "", "basic", "post", "none":
	default:
		return fmt.Errorf("authMethod %q is not one of basic, post, none", p.AuthMethod)
	}
	switch p.PKCEMethod {
	case "", oauth.CodeChallengeMethodS256, oauth.CodeChallengeMethodPlain:
	default:
		return fmt.Errorf("pkceMethod %q is not one of %s, %s",
			p.PKCEMethod, oauth.CodeChallengeMethodS256, oauth.CodeChallengeMethodPlain)
	}
	if p.RedirectPort < 0 || p.RedirectPort > 65535 {
		return fmt.Errorf("redirectPort %d is out of range", p.RedirectPort)
	}
	return nil
}

// EffectiveExpiryMargin returns the configured refresh margin, defaulting
// to the protocol client's margin.
func (p *ProviderConfig) EffectiveExpiryMargin() time.Duration {
	if p.ExpiryMargin > 0 {
		return p.ExpiryMargin
	}
	return oauth.DefaultExpiryMargin
}

// EffectiveScopes returns the scopes to request, defaulting to openid.
func (p *ProviderConfig) EffectiveScopes() []string {
	if len(p.Scopes) > 0 {
		return p.Scopes
	}
	return []string{"openid"}
}

// TokenAuthMethod maps the configured auth method name onto the token
// endpoint constants. Empty means "let the client decide".
func (p *ProviderConfig) TokenAuthMethod() string {
	switch p.AuthMethod {
	case "basic":
		return oauth.AuthMethodBasic
	case "post":
		return oauth.AuthMethodPost
	case "none":
		return oauth.AuthMethodNone
	default:
		return ""
	}
}
