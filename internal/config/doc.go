// Package config loads, normalizes, and validates murmur's TOML
// configuration.
//
// Load resolves the config file (explicit path or ~/.config/murmur), applies
// defaults for anything unset, expands ~ in path fields, and validates the
// result. A missing config file is not an error; the defaults are usable on
// their own once an LLM API key is supplied for generation features.
package config
