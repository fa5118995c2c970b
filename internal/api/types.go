package api

import (
	"time"

	"omnistream/internal/store"
)

// Task is the wire representation of a capture task.
type Task struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	URL           string               `json:"url"`
	Status        string               `json:"status"`
	Filename      string               `json:"filename,omitempty"`
	CreatedAt     string               `json:"created_at"`
	UploadConfigs []store.UploadConfig `json:"upload_configs,omitempty"`
}

// FromTask converts a storage task to its wire form.
func FromTask(task *store.Task) Task {
	dto := Task{
		ID:            task.ID,
		Name:          task.Name,
		URL:           task.URL,
		Status:        task.Status.String(),
		Filename:      task.Filename,
		UploadConfigs: task.UploadConfigs,
	}
	if !task.CreatedAt.IsZero() {
		dto.CreatedAt = task.CreatedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

// FromTasks converts a task list, skipping nils.
func FromTasks(tasks []*store.Task) []Task {
	out := make([]Task, 0, len(tasks))
	for _, task := range tasks {
		if task == nil {
			continue
		}
		out = append(out, FromTask(task))
	}
	return out
}

// Source is the wire representation of a monitored source. State is derived
// at render time and never persisted.
type Source struct {
	ID               string                 `json:"id"`
	Name             string                 `json:"name"`
	URL              string                 `json:"url"`
	LinkedProfileIDs []string               `json:"linked_profile_ids,omitempty"`
	UseCustom        bool                   `json:"use_custom_settings"`
	CustomSettings   *store.CaptureSettings `json:"capture_settings,omitempty"`
	State            string                 `json:"state,omitempty"`
}

// FromSource converts a storage source to its wire form.
func FromSource(source *store.Source, state string) Source {
	return Source{
		ID:               source.ID,
		Name:             source.Name,
		URL:              source.URL,
		LinkedProfileIDs: source.LinkedProfileIDs,
		UseCustom:        source.UseCustom,
		CustomSettings:   source.CustomSettings,
		State:            state,
	}
}

// ToSource converts a wire source back into its storage form.
func (s Source) ToSource() *store.Source {
	return &store.Source{
		ID:               s.ID,
		Name:             s.Name,
		URL:              s.URL,
		LinkedProfileIDs: s.LinkedProfileIDs,
		UseCustom:        s.UseCustom,
		CustomSettings:   s.CustomSettings,
	}
}

// Profile is the wire representation of a publication profile.
type Profile struct {
	ID     string             `json:"id"`
	Name   string             `json:"name"`
	Config store.UploadConfig `json:"config"`
}

// FromProfile converts a storage profile to its wire form.
func FromProfile(profile *store.Profile) Profile {
	return Profile{ID: profile.ID, Name: profile.Name, Config: profile.Config}
}

// ToProfile converts a wire profile back into its storage form.
func (p Profile) ToProfile() *store.Profile {
	return &store.Profile{ID: p.ID, Name: p.Name, Config: p.Config}
}

// DaemonStatus summarizes the running daemon for status surfaces.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	DatabasePath string         `json:"database_path"`
	LockPath     string         `json:"lock_path"`
	Sources      int            `json:"sources"`
	TaskCounts   map[string]int `json:"task_counts"`
}
