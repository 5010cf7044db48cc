// Package config loads, normalizes, and validates the steamfetch TOML
// configuration.
//
// Load applies repository defaults first, then overlays the user's config
// file, expands ~ in every path field, and validates the result. Callers
// receive a Config whose paths are absolute and whose numeric settings are
// guaranteed positive.
package config
