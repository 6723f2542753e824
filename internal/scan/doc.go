// Package scan walks the images root and reports what is there: extension
// and capture-year histograms, camera device counts, analysis cache
// coverage, and groups of near-duplicate shots.
package scan
