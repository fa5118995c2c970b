// Package daemon ties the engine, store, and control surfaces (HTTP API and
// IPC) into a single lifecycle with flock-based locking to prevent multiple
// instances from fighting over the same recordings and database.
package daemon
