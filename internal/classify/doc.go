// Package classify defines the canonical classification result produced by
// the vision providers and normalizes the two persisted result schemas
// (current confidence fields in [0,1] and the legacy 0-100
// final_classification shape) into that single in-memory form.
package classify
