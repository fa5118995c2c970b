// Package store persists OmniStream state in SQLite and defines the domain
// models shared across the daemon.
//
// Four tables back the orchestrator: tasks (one row per capture attempt),
// sources (monitored stream origins), profiles (publication destinations),
// and app_settings (the single capture-settings row). Nested values are
// stored as JSON blobs; task status round-trips through a tagged string
// encoding that preserves error reasons verbatim.
//
// Treat this package as the single source of truth for persistence
// semantics; schema changes bump the version in schema.go.
package store
