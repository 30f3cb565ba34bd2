package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"authflow/internal/tokenstore"
	"authflow/pkg/oauth"
)

var statusWatch bool

var statusCmd = &cobra.Command{
	Use:   "status [provider]",
	Short: "Show authentication status",
	Long: `Show the stored authentication state for all configured providers: who
you are signed in as, when access tokens expire, and which providers need
a fresh sign-in.

Examples:
  authflow status           # Show all providers
  authflow status corp      # Show one provider
  authflow status --watch   # Redraw whenever stored state changes`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false,
		"Keep running and redraw when stored state changes")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := newStore(cfg)
	if err != nil {
		return err
	}

	providerFilter := ""
	if len(args) > 0 {
		providerFilter = args[0]
	}

	renderStatus(store, providerFilter)

	if !statusWatch {
		return nil
	}

	events, err := store.Watch(cmd.Context())
	if err != nil {
		return err
	}
	for range events {
		fmt.Println()
		renderStatus(store, providerFilter)
	}
	return nil
}

func renderStatus(store *tokenstore.Store, providerFilter string) {
	states := store.List()

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Provider", "Status", "Subject", "Expires", "Refresh"})

	rows := 0
	for _, stored := range states {
		if providerFilter != "" && stored.Provider != providerFilter {
			continue
		}
		t.AppendRow(statusRow(stored))
		rows++
	}

	if rows == 0 {
		if providerFilter != "" {
			fmt.Printf("No stored state for provider %q. Run: authflow login %s\n", providerFilter, providerFilter)
		} else {
			fmt.Println("No stored authentication state. Run: authflow login")
		}
		return
	}

	t.Render()
}

func statusRow(stored *tokenstore.StoredState) table.Row {
	status := text.FgRed.Sprint("signed out")
	subject := "-"
	expires := "-"
	refresh := "no"

	if state := stored.State; state != nil {
		if state.IsAuthorized() {
			status = text.FgGreen.Sprint("authenticated")
		} else if state.AuthorizationError != nil {
			status = text.FgYellow.Sprint("error")
		}
		if state.RefreshToken() != "" {
			refresh = "yes"
		}
		if expiry := state.AccessTokenExpiry(); !expiry.IsZero() {
			if remaining := time.Until(expiry); remaining > 0 {
				expires = fmt.Sprintf("%s (in %s)", expiry.Format(time.Kitchen), remaining.Round(time.Second))
			} else {
				expires = text.FgYellow.Sprint("expired")
			}
		}
		if idToken := state.IDToken(); idToken != "" {
			if claims, err := oauth.ParseIDTokenClaims(idToken); err == nil {
				subject = claims.Subject
				if claims.Email != "" {
					subject = claims.Email
				}
			}
		}
	}

	return table.Row{stored.Provider, status, subject, expires, refresh}
}
