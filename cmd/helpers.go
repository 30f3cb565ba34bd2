package cmd

import (
	"context"
	"fmt"

	"authflow/internal/config"
	"authflow/internal/tokenstore"
	"authflow/pkg/oauth"
)

// notAuthorizedError signals that a command needed stored credentials that
// do not exist. Mapped to ExitCodeAuthRequired.
type notAuthorizedError struct {
	provider string
}

func (e *notAuthorizedError) Error() string {
	return fmt.Sprintf("not authenticated to provider %q, run: authflow login %s", e.provider, e.provider)
}

func loadConfig() (config.Config, error) {
	return config.Load(configPath)
}

func newStore(cfg config.Config) (*tokenstore.Store, error) {
	return tokenstore.NewStore(tokenstore.Config{
		StorageDir: cfg.StorageDir,
		FileMode:   true,
	})
}

// serviceConfiguration resolves a provider's endpoints, via OIDC discovery
// when an issuer is configured and from explicit endpoints otherwise.
func serviceConfiguration(ctx context.Context, client *oauth.Client, provider config.ProviderConfig) (*oauth.ServiceConfiguration, error) {
	if provider.Issuer != "" {
		return client.Discover(ctx, provider.Issuer)
	}
	return oauth.NewServiceConfiguration(provider.AuthorizationEndpoint, provider.TokenEndpoint)
}

// issuerOf identifies the provider in stored state: the issuer when
// configured, the token endpoint otherwise.
func issuerOf(provider config.ProviderConfig) string {
	if provider.Issuer != "" {
		return provider.Issuer
	}
	return provider.TokenEndpoint
}

func cliPrintf(format string, args ...any) {
	if !quiet {
		fmt.Printf(format, args...)
	}
}

func cliPrintln(args ...any) {
	if !quiet {
		fmt.Println(args...)
	}
}
