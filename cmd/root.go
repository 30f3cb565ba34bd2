package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"authflow/internal/config"
	"authflow/pkg/logging"
	"authflow/pkg/oauth"
)

// Exit codes for CLI commands, usable from scripts.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates authentication is required but not available.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the authorization flow failed or was cancelled.
	ExitCodeAuthFailed = 3
)

// Persistent flags shared by all subcommands.
var (
	configPath string
	logLevel   string
	quiet      bool
)

// rootCmd is the entry point when the application is called without any
// subcommands.
var rootCmd = &cobra.Command{
	Use:   "authflow",
	Short: "Authenticate to OpenID Connect providers from the command line",
	Long: `authflow drives browser-based OpenID Connect authorization code flows
with PKCE, stores the resulting tokens, and keeps them fresh.

Providers are configured in ~/.config/authflow/config.yaml.`,
	// SilenceUsage prevents cobra from printing the usage message on
	// errors that are handled by the application.
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logging.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logging.InitForCLI(level, os.Stderr)
		return nil
	},
}

// SetVersion sets the version for the root command. Called from main to
// inject the build version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute runs the root command and exits with a semantic exit code.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "authflow version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps error kinds onto exit codes for scripting.
func getExitCode(err error) int {
	if oauth.IsUserCancelled(err) {
		return ExitCodeAuthFailed
	}

	var serverErr *oauth.ServerError
	if errors.As(err, &serverErr) {
		return ExitCodeAuthFailed
	}

	var protocolErr *oauth.ProtocolError
	if errors.As(err, &protocolErr) {
		return ExitCodeAuthFailed
	}

	var notAuthorized *notAuthorizedError
	if errors.As(err, &notAuthorized) {
		return ExitCodeAuthRequired
	}

	return ExitCodeError
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", config.DefaultConfigPath(),
		"Directory containing config.yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn",
		"Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"Suppress non-essential output")
}
