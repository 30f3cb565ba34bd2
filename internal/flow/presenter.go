package flow

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
)

// Presenter hands an authorization URL to an external user agent. The
// presenter only opens the agent; the redirect comes back through the
// Listener.
type Presenter interface {
	Present(ctx context.Context, authorizationURL string) error
}

// PresenterFunc adapts a function to the Presenter interface.
type PresenterFunc func(ctx context.Context, authorizationURL string) error

// Present calls f.
func (f PresenterFunc) Present(ctx context.Context, authorizationURL string) error {
	return f(ctx, authorizationURL)
}

// BrowserPresenter opens the authorization URL in the system's default web
// browser. It supports Linux, macOS, and Windows.
type BrowserPresenter struct{}

// Present launches the browser and returns without waiting for it. The
// browser process runs detached; its exit status is not observed.
func (BrowserPresenter) Present(ctx context.Context, authorizationURL string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "linux":
		cmd = exec.CommandContext(ctx, "xdg-open", authorizationURL)
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", authorizationURL)
	case "windows":
		cmd = exec.CommandContext(ctx, "cmd", "/c", "start", authorizationURL)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}

	return nil
}
