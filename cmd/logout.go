package cmd

import (
	"github.com/spf13/cobra"

	"authflow/pkg/oauth"
)

var logoutAll bool

var logoutCmd = &cobra.Command{
	Use:   "logout [provider]",
	Short: "Sign out of a provider",
	Long: `Revoke the stored tokens at the provider (when it supports revocation)
and delete the local state.

Examples:
  authflow logout           # Sign out of the default provider
  authflow logout corp      # Sign out of the "corp" provider
  authflow logout --all     # Delete all stored state`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogout,
}

func init() {
	logoutCmd.Flags().BoolVar(&logoutAll, "all", false, "Delete stored state for every provider")
	rootCmd.AddCommand(logoutCmd)
}

func runLogout(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := newStore(cfg)
	if err != nil {
		return err
	}

	if logoutAll {
		if err := store.Clear(); err != nil {
			return err
		}
		cliPrintln("Deleted all stored authentication state.")
		return nil
	}

	providerArg := ""
	if len(args) > 0 {
		providerArg = args[0]
	}
	name, provider, err := cfg.Provider(providerArg)
	if err != nil {
		return err
	}

	stored := store.Get(name)
	if stored == nil || stored.State == nil {
		cliPrintf("No stored state for %s.\n", name)
		return nil
	}

	// Best effort: revoke at the provider when possible, but never let a
	// dead revocation endpoint block local sign-out.
	client := oauth.NewClient()
	if service, err := serviceConfiguration(ctx, client, provider); err == nil && service.RevocationEndpoint != "" {
		state := stored.State
		if refreshToken := state.RefreshToken(); refreshToken != "" {
			if err := client.Revoke(ctx, service, refreshToken, "refresh_token", state.ClientID(), true); err != nil {
				cliPrintf("Warning: token revocation failed: %v\n", err)
			}
		} else if accessToken := state.AccessToken(); accessToken != "" {
			if err := client.Revoke(ctx, service, accessToken, "access_token", state.ClientID(), true); err != nil {
				cliPrintf("Warning: token revocation failed: %v\n", err)
			}
		}
	}

	if err := store.Delete(name); err != nil {
		return err
	}
	cliPrintf("Signed out of %s.\n", name)
	return nil
}
