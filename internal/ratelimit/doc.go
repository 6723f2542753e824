// Package ratelimit provides the token-bucket limiter that bounds the
// aggregate vision API call rate. Concurrency is bounded separately by the
// worker pool; this limiter bounds the call rate itself so retries and fast
// responses cannot push a batch past an API's per-minute quota.
package ratelimit
