// Package logging provides a tiny abstraction over slog so downstream code
// can depend on a minimal interface (Logger) while allowing callers to plug
// any structured logger. The built-in constructor wraps its handler in a
// sanitizing layer that redacts secret-bearing attributes and fingerprints
// user identifiers before they reach the sink.
package logging
