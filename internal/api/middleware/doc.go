// Package middleware provides the Gin middleware of the diagnostics API:
// CORS for the head unit's web UI, per-client rate limiting and request
// identifiers for log correlation.
package middleware
