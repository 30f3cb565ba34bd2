// Package logging provides a thin subsystem-oriented wrapper around the
// standard slog package for the authflow CLI.
//
// Library packages log through log/slog directly; this wrapper exists for
// command-level code that wants printf-style messages tagged with a
// subsystem ("Config", "Login", "TokenStore") and a single init point:
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//	logging.Info("Login", "Waiting for redirect on %s", redirectURI)
//	logging.Error("TokenStore", err, "Failed to persist session")
package logging
