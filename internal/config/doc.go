// Package config loads provider configuration from the user's config
// directory (~/.config/authflow/config.yaml by default).
package config
