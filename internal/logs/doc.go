// Package logs provides file tailing helpers for the CLI log viewer.
//
// It reads the daemon log with bounded memory usage, supports "last N lines"
// reads, and powers follow-mode updates for `omnistream logs --follow`.
// Callers supply a context so polling shuts down cleanly when the CLI exits.
package logs
