package cmd

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"authflow/internal/authstate"
	"authflow/pkg/oauth"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh [provider]",
	Short: "Refresh the stored access token",
	Long: `Exchange the stored refresh token for a fresh access token and persist
the result. Fails when no refresh token is stored or the provider has
invalidated the grant, in which case a new login is required.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRefresh,
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(cmd *cobra.Command, args []string) error {
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
	stored := store.Get(name)
	if stored == nil || stored.State == nil {
		return &notAuthorizedError{provider: name}
	}

	data, err := json.Marshal(stored.State)
	if err != nil {
		return err
	}
	manager, err := authstate.NewManagerFromJSON(oauth.NewClient(), data)
	if err != nil {
		return err
	}

	manager.SetNeedsTokenRefresh()
	_, _, err = manager.FreshTokens(ctx, provider.EffectiveExpiryMargin())
	if err != nil {
		if oauth.IsGrantInvalidated(err) {
			// The refresh token is dead; drop the stored state so status
			// reflects reality.
			snapshot := manager.Snapshot()
			_ = store.Save(name, stored.IssuerURL, &snapshot)
		}
		return err
	}

	snapshot := manager.Snapshot()
	if err := store.Save(name, stored.IssuerURL, &snapshot); err != nil {
		return err
	}

	cliPrintf("Refreshed access token for %s.\n", name)
	if expiry := snapshot.AccessTokenExpiry(); !expiry.IsZero() {
		cliPrintf("Valid until %s.\n", expiry.Format(time.RFC1123))
	}
	return nil
}
