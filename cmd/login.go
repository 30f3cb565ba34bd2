package cmd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"authflow/internal/authstate"
	"authflow/internal/config"
	"authflow/internal/flow"
	"authflow/pkg/oauth"
)

// Login-specific flags
var (
	loginNoBrowser bool
	loginPort      int
	loginTimeout   time.Duration
)

var loginCmd = &cobra.Command{
	Use:   "login [provider]",
	Short: "Sign in to a provider",
	Long: `Sign in to a configured provider using the browser-based authorization
code flow with PKCE.

The command opens your browser at the provider's sign-in page, catches the
redirect on a local loopback listener, exchanges the authorization code for
tokens, and stores them for later use.

Examples:
  authflow login                # Sign in to the default provider
  authflow login corp           # Sign in to the "corp" provider
  authflow login --no-browser   # Print the sign-in URL instead of opening a browser`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().BoolVar(&loginNoBrowser, "no-browser", false,
		"Print the authorization URL instead of opening a browser")
	loginCmd.Flags().IntVar(&loginPort, "port", 0,
		"Loopback callback port (overrides the provider's redirectPort)")
	loginCmd.Flags().DurationVar(&loginTimeout, "timeout", flow.DefaultCallbackTimeout,
		"How long to wait for the browser sign-in")
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	providerArg := ""
	if len(args) > 0 {
		providerArg = args[0]
	}
	name, provider, err := cfg.Provider(providerArg)
	if err != nil {
		return err
	}

	store, err := newStore(cfg)
	if err != nil {
		return err
	}

	client := oauth.NewClient()
	service, err := serviceConfiguration(ctx, client, provider)
	if err != nil {
		return err
	}

	manager := authstate.NewManager(client)

	var presenter flow.Presenter = flow.BrowserPresenter{}
	if loginNoBrowser {
		presenter = flow.PresenterFunc(func(_ context.Context, authorizationURL string) error {
			fmt.Printf("Open this URL in your browser to sign in:\n\n  %s\n\n", authorizationURL)
			return nil
		})
	}

	port := provider.RedirectPort
	if loginPort != 0 {
		port = loginPort
	}
	authorizer := flow.NewAuthorizer(presenter,
		flow.WithCallbackPort(port),
		flow.WithCallbackTimeout(loginTimeout),
	)

	var wait *spinner.Spinner
	if !quiet && !loginNoBrowser {
		wait = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		wait.Suffix = fmt.Sprintf(" Waiting for sign-in to %s in your browser...", name)
		wait.Start()
	}

	response, err := authorizer.Authorize(ctx, loginRequestBuilder(ctx, client, manager, service, provider))
	if wait != nil {
		wait.Stop()
	}
	manager.Update(response, err)
	if err != nil {
		return err
	}

	tokenResponse, err := client.Exchange(ctx, response.TokenExchangeRequest())
	manager.UpdateWithTokenResponse(tokenResponse, err)
	if err != nil {
		return err
	}

	if tokenResponse.IDToken != "" {
		claims, err := oauth.ParseIDTokenClaims(tokenResponse.IDToken)
		if err != nil {
			return err
		}
		if err := claims.VerifyNonce(response.Request); err != nil {
			return err
		}
	}

	snapshot := manager.Snapshot()
	if err := store.Save(name, issuerOf(provider), &snapshot); err != nil {
		return err
	}

	cliPrintf("Signed in to %s.\n", name)
	if !tokenResponse.Expiry.IsZero() {
		cliPrintf("Access token valid until %s.\n", tokenResponse.Expiry.Format(time.RFC1123))
	}
	return nil
}

// loginRequestBuilder builds the authorization request once the loopback
// redirect URI is known, registering the client first when configured.
func loginRequestBuilder(ctx context.Context, client *oauth.Client, manager *authstate.Manager, service *oauth.ServiceConfiguration, provider config.ProviderConfig) flow.RequestBuilder {
	return func(redirectURI string) (*oauth.AuthorizationRequest, error) {
		clientID := provider.ClientID
		clientSecret := provider.ClientSecret

		if clientID == "" && provider.Register {
			registration, err := client.Register(ctx, service, &oauth.RegistrationRequest{
				RedirectURIs:  []string{redirectURI},
				ClientName:    "authflow",
				GrantTypes:    []string{oauth.GrantTypeAuthorizationCode, oauth.GrantTypeRefreshToken},
				ResponseTypes: []string{oauth.ResponseTypeCode},
			})
			manager.UpdateWithRegistrationResponse(registration, err)
			if err != nil {
				return nil, err
			}
			clientID = registration.ClientID
			clientSecret = registration.ClientSecret
		}

		opts := []oauth.AuthorizationRequestOption{}
		if clientSecret != "" {
			opts = append(opts, oauth.WithClientSecret(clientSecret))
		}
		if method := provider.TokenAuthMethod(); method != "" {
			opts = append(opts, oauth.WithTokenAuthMethod(method))
		}
		if provider.PKCEMethod != "" {
			opts = append(opts, oauth.WithPKCEMethod(provider.PKCEMethod))
		}
		if len(provider.AdditionalParams) > 0 {
			extra := oauth.NewValues()
			for _, key := range sortedKeys(provider.AdditionalParams) {
				extra.Add(key, provider.AdditionalParams[key])
			}
			opts = append(opts, oauth.WithAdditionalParams(extra))
		}

		return oauth.NewAuthorizationRequest(service, clientID, redirectURI, provider.EffectiveScopes(), opts...)
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
