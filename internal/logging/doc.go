// Package logging assembles the structured slog loggers used across
// steamfetch components.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes small Attr helpers so daemon, queue, and driver
// code emit fields with the same shape. A no-op logger is provided for
// tests and wiring code that cannot fail.
//
// Credential material must never be passed to a logger; callers log the
// auth mode, never the values.
package logging
