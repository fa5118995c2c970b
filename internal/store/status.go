package store

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StatusCode enumerates the task lifecycle states.
type StatusCode int

const (
	CodeIdle StatusCode = iota
	CodeRecording
	CodeUploading
	CodeCompleted
	CodeError
)

// Status is the task lifecycle state. Only the error state carries a payload:
// the human-readable reason the task failed. Values are comparable with ==.
type Status struct {
	Code   StatusCode
	Reason string
}

var (
	Idle      = Status{Code: CodeIdle}
	Recording = Status{Code: CodeRecording}
	Uploading = Status{Code: CodeUploading}
	Completed = Status{Code: CodeCompleted}
)

// Errored constructs the error status carrying a reason.
func Errored(reason string) Status {
	return Status{Code: CodeError, Reason: reason}
}

// Busy reports whether the task currently owns a running job.
func (s Status) Busy() bool {
	return s.Code == CodeRecording || s.Code == CodeUploading
}

// Terminal reports whether the task has finished (successfully or not).
func (s Status) Terminal() bool {
	return !s.Busy()
}

// errorPrefix is the persisted tag for the error variant. The reason follows
// the colon verbatim, special characters included.
const errorPrefix = "Error:"

// String renders the persisted form of the status.
func (s Status) String() string {
	switch s.Code {
	case CodeIdle:
		return "Idle"
	case CodeRecording:
		return "Recording"
	case CodeUploading:
		return "Uploading"
	case CodeCompleted:
		return "Completed"
	case CodeError:
		return errorPrefix + s.Reason
	default:
		return fmt.Sprintf("Status(%d)", int(s.Code))
	}
}

// ParseStatus decodes the persisted form. Unknown tags decode as Idle so a
// database written by a newer build never wedges task listing.
func ParseStatus(raw string) Status {
	switch raw {
	case "Idle":
		return Idle
	case "Recording":
		return Recording
	case "Uploading":
		return Uploading
	case "Completed":
		return Completed
	}
	if strings.HasPrefix(raw, errorPrefix) {
		return Errored(raw[len(errorPrefix):])
	}
	return Idle
}

// MarshalJSON encodes the status in its persisted string form.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes the persisted string form.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = ParseStatus(raw)
	return nil
}
