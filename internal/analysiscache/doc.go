// Package analysiscache persists classification verdicts keyed by image
// fingerprint, model, and logic version. The persisted JSON document is the
// contract with the web viewer, so its layout stays stable: a top-level
// entries map from fingerprint to {path, version, models}, with model
// records keyed "<model>_<size>" (legacy bare model keys accepted on read).
package analysiscache
