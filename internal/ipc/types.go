package ipc

import (
	"omnistream/internal/api"
	"omnistream/internal/store"
)

// Task mirrors the HTTP API task DTO for internal IPC callers.
type Task = api.Task

// Source mirrors the HTTP API source DTO.
type Source = api.Source

// Profile mirrors the HTTP API profile DTO.
type Profile = api.Profile

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents daemon runtime information.
type StatusResponse struct {
	Status api.DaemonStatus `json:"status"`
}

// TaskListRequest fetches every task.
type TaskListRequest struct{}

// TaskListResponse contains task entries in creation order.
type TaskListResponse struct {
	Tasks []Task `json:"tasks"`
}

// TaskStartRequest begins recording a URL immediately.
type TaskStartRequest struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// TaskStartResponse returns the created task id.
type TaskStartResponse struct {
	TaskID string `json:"task_id"`
}

// TaskStopRequest stops a running capture or resets a finished task.
type TaskStopRequest struct {
	ID string `json:"id"`
}

// TaskStopResponse indicates stop result.
type TaskStopResponse struct {
	Stopped bool `json:"stopped"`
}

// TaskRemoveRequest deletes a stopped task.
type TaskRemoveRequest struct {
	ID string `json:"id"`
}

// TaskRemoveResponse indicates removal result.
type TaskRemoveResponse struct {
	Removed bool `json:"removed"`
}

// SourceListRequest fetches every source.
type SourceListRequest struct{}

// SourceListResponse contains source entries with derived states.
type SourceListResponse struct {
	Sources []Source `json:"sources"`
}

// SourceSaveRequest creates or updates a source.
type SourceSaveRequest struct {
	Source Source `json:"source"`
}

// SourceSaveResponse returns the saved source, id included.
type SourceSaveResponse struct {
	Source Source `json:"source"`
}

// SourceRemoveRequest deletes a source by id.
type SourceRemoveRequest struct {
	ID string `json:"id"`
}

// SourceRemoveResponse indicates removal result.
type SourceRemoveResponse struct {
	Removed bool `json:"removed"`
}

// ProfileListRequest fetches every publication profile.
type ProfileListRequest struct{}

// ProfileListResponse contains profile entries.
type ProfileListResponse struct {
	Profiles []Profile `json:"profiles"`
}

// ProfileSaveRequest creates or updates a profile.
type ProfileSaveRequest struct {
	Profile Profile `json:"profile"`
}

// ProfileSaveResponse returns the saved profile, id included.
type ProfileSaveResponse struct {
	Profile Profile `json:"profile"`
}

// ProfileRemoveRequest deletes a profile by id.
type ProfileRemoveRequest struct {
	ID string `json:"id"`
}

// ProfileRemoveResponse indicates removal result.
type ProfileRemoveResponse struct {
	Removed bool `json:"removed"`
}

// SettingsGetRequest fetches the global capture settings.
type SettingsGetRequest struct{}

// SettingsGetResponse contains the current capture settings.
type SettingsGetResponse struct {
	Settings store.CaptureSettings `json:"settings"`
}

// SettingsSetRequest replaces the global capture settings.
type SettingsSetRequest struct {
	Settings store.CaptureSettings `json:"settings"`
}

// SettingsSetResponse returns the normalized settings as installed.
type SettingsSetResponse struct {
	Settings store.CaptureSettings `json:"settings"`
}

// PublishRequest triggers a manual publication. SourceID publishes a
// source's own recording directory under its linked profiles; otherwise
// Directory and ProfileIDs name the files and profiles explicitly.
type PublishRequest struct {
	SourceID   string   `json:"source_id,omitempty"`
	Directory  string   `json:"directory,omitempty"`
	ProfileIDs []string `json:"profile_ids,omitempty"`
}

// PublishResponse returns the manual task id.
type PublishResponse struct {
	TaskID string `json:"task_id"`
}
