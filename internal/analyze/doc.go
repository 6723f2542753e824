// Package analyze schedules batches of images through the vision
// providers: cache-first resolution, a bounded worker pool admitting items
// in input order, a shared token-bucket rate limit across all workers, and
// per-call retries with backoff. Every path/provider pair reaches exactly
// one terminal outcome; partial failure never aborts a batch.
package analyze
