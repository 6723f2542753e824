// Package logging builds the slog loggers used across snapsift.
//
// Two output formats are supported: a compact console format
// ("ts LEVEL component: msg key=value ...") for interactive use and plain
// JSON for log files. Components obtain scoped loggers via
// NewComponentLogger so every line carries a component attribute.
package logging
