// Package logging constructs the slog loggers used across the daemon and CLI
// and centralizes the attribute keys shared by every component.
//
// Two output formats are supported: a console handler for interactive use and
// a JSON handler for machine-readable logs. Components derive child loggers
// with NewComponentLogger so task-scoped entries stay greppable by a stable
// field set (component, task_id, source, event_type).
package logging
