package store

import (
	"strings"
	"time"
)

// Task represents one capture attempt. A task is created when a source goes
// live (or on explicit request), mutated by the recorder and the publication
// pipeline, and kept after completion until externally removed.
type Task struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	URL           string         `json:"url"`
	Status        Status         `json:"status"`
	Filename      string         `json:"filename"`
	CreatedAt     time.Time      `json:"created_at"`
	UploadConfigs []UploadConfig `json:"upload_configs"`
}

// UploadConfig is the publication configuration snapshot a task carries for
// one destination. Later edits to the originating profile do not affect
// in-flight tasks.
type UploadConfig struct {
	Title       string   `json:"title,omitempty"`
	Tags        []string `json:"tags"`
	Tid         int      `json:"tid"`
	Copyright   int      `json:"copyright"`
	Description string   `json:"description"`
	Dynamic     string   `json:"dynamic"`
	AccountFile string   `json:"account_file"`
}

const (
	// DefaultTid is the fallback submission category.
	DefaultTid = 171
	// DefaultCopyright marks submissions as original content.
	DefaultCopyright = 1
	// DefaultAccountFile is the fallback credential file.
	DefaultAccountFile = "cookies.json"
)

// DefaultUploadConfig returns an UploadConfig with repository defaults.
func DefaultUploadConfig() UploadConfig {
	return UploadConfig{
		Tid:         DefaultTid,
		Copyright:   DefaultCopyright,
		AccountFile: DefaultAccountFile,
	}
}

// Normalize fills zero values with defaults.
func (c *UploadConfig) Normalize() {
	if c.Tid == 0 {
		c.Tid = DefaultTid
	}
	if c.Copyright == 0 {
		c.Copyright = DefaultCopyright
	}
	if strings.TrimSpace(c.AccountFile) == "" {
		c.AccountFile = DefaultAccountFile
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
}

// Profile is a named, reusable publication configuration sources can link to.
type Profile struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Config UploadConfig `json:"config"`
}

// Source is a configured live-stream origin monitored for liveness.
type Source struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	URL              string           `json:"url"`
	LinkedProfileIDs []string         `json:"linked_profile_ids"`
	UseCustom        bool             `json:"use_custom_settings"`
	CustomSettings   *CaptureSettings `json:"capture_settings,omitempty"`

	// State is the derived display state (recording/uploading/checking/...).
	// Computed by the engine for listings, never persisted.
	State string `json:"state,omitempty"`
}

// EffectiveSettings returns the source's custom capture settings when enabled.
// The override replaces the global settings wholesale; there is no field-level
// merge.
func (s *Source) EffectiveSettings() *CaptureSettings {
	if s.UseCustom && s.CustomSettings != nil {
		settings := *s.CustomSettings
		return &settings
	}
	return nil
}

// QualityConfig holds the streamlink quality string per platform.
type QualityConfig struct {
	Bilibili string `json:"bilibili"`
	Douyu    string `json:"douyu"`
	Huya     string `json:"huya"`
	Twitch   string `json:"twitch"`
	YouTube  string `json:"youtube"`
	Default  string `json:"default_quality"`
}

// DefaultQualityConfig selects the best available stream everywhere.
func DefaultQualityConfig() QualityConfig {
	return QualityConfig{
		Bilibili: "best",
		Douyu:    "best",
		Huya:     "best",
		Twitch:   "best",
		YouTube:  "best",
		Default:  "best",
	}
}

// CaptureSettings bound a recording: segment ceilings, per-platform quality,
// and the post-publish cleanup flag. Zero ceilings mean "no limit".
type CaptureSettings struct {
	SegmentSizeMB       int64         `json:"segment_size_mb"`
	SegmentTimeSec      int64         `json:"segment_time_sec"`
	Quality             QualityConfig `json:"quality"`
	CleanupAfterPublish bool          `json:"cleanup_after_publish"`
}

// DefaultCaptureSettings returns the settings used before any are persisted:
// hourly segments, best quality, no cleanup.
func DefaultCaptureSettings() CaptureSettings {
	return CaptureSettings{
		SegmentTimeSec: 3600,
		Quality:        DefaultQualityConfig(),
	}
}

// SegmentSizeBytes converts the configured ceiling to bytes. Zero means unlimited.
func (s CaptureSettings) SegmentSizeBytes() int64 {
	if s.SegmentSizeMB <= 0 {
		return 0
	}
	return s.SegmentSizeMB * 1024 * 1024
}

// SegmentTime converts the configured ceiling to a duration. Zero means unlimited.
func (s CaptureSettings) SegmentTime() time.Duration {
	if s.SegmentTimeSec <= 0 {
		return 0
	}
	return time.Duration(s.SegmentTimeSec) * time.Second
}

// Normalize clamps negative ceilings and fills blank quality strings with "best".
func (s *CaptureSettings) Normalize() {
	if s.SegmentSizeMB < 0 {
		s.SegmentSizeMB = 0
	}
	if s.SegmentTimeSec < 0 {
		s.SegmentTimeSec = 0
	}
	normalizeQuality(&s.Quality.Bilibili)
	normalizeQuality(&s.Quality.Douyu)
	normalizeQuality(&s.Quality.Huya)
	normalizeQuality(&s.Quality.Twitch)
	normalizeQuality(&s.Quality.YouTube)
	normalizeQuality(&s.Quality.Default)
}

func normalizeQuality(v *string) {
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		trimmed = "best"
	}
	*v = trimmed
}

// QualityFor picks the quality string matching the platform behind a url.
func (s CaptureSettings) QualityFor(url string) string {
	u := strings.ToLower(url)
	switch {
	case strings.Contains(u, "bilibili.com") || strings.Contains(u, "b23.tv"):
		return s.Quality.Bilibili
	case strings.Contains(u, "douyu.com"):
		return s.Quality.Douyu
	case strings.Contains(u, "huya.com"):
		return s.Quality.Huya
	case strings.Contains(u, "twitch.tv"):
		return s.Quality.Twitch
	case strings.Contains(u, "youtube.com") || strings.Contains(u, "youtu.be"):
		return s.Quality.YouTube
	default:
		return s.Quality.Default
	}
}
