// Package config loads and validates the snapsift TOML configuration.
//
// Configuration is resolved from an explicit --config path, then
// ~/.config/snapsift/config.toml, then ./snapsift.toml, falling back to
// built-in defaults when no file exists. API keys left blank in the file are
// read from the provider's conventional environment variable.
package config
