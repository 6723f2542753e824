// Package retry implements the backoff policy used around vision API
// calls: exponential delays with a cap and uniform jitter, a bounded
// attempt count, and a transient/permanent split so auth failures and
// malformed requests surface immediately instead of burning attempts.
package retry
