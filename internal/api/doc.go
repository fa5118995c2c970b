// Package api defines the wire representations shared by the HTTP API and
// the IPC layer, plus conversions from the storage models. Keeping the DTOs
// in one place keeps both control surfaces rendering tasks, sources, and
// settings identically.
package api
