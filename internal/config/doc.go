// Package config loads, validates, and normalizes the OmniStream TOML
// configuration.
//
// Load resolves the config path (explicit flag, ~/.config/omnistream/config.toml,
// or ./omnistream.toml), merges file values over repository defaults, expands
// all path fields, and validates the result. Missing files are not an error;
// defaults alone are a usable configuration.
package config
