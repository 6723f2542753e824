// Package imaging bundles the per-file image operations: content
// fingerprinting, resize-and-encode for vision API payloads, EXIF capture
// metadata, and perceptual hashing for near-duplicate detection.
package imaging
