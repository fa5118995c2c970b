package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

const captureSettingsKey = "capture_settings"

// LoadCaptureSettings returns the persisted global capture settings, or the
// defaults when none were saved yet.
func (s *Store) LoadCaptureSettings(ctx context.Context) (CaptureSettings, error) {
	settings := DefaultCaptureSettings()

	var raw string
	err := s.db.QueryRowContext(
		ctx,
		`SELECT value FROM app_settings WHERE key = ?`,
		captureSettingsKey,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return settings, nil
	}
	if err != nil {
		return settings, fmt.Errorf("load capture settings: %w", err)
	}

	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return DefaultCaptureSettings(), fmt.Errorf("decode capture settings: %w", err)
	}
	settings.Normalize()
	return settings, nil
}

// SaveCaptureSettings normalizes and persists the global capture settings.
func (s *Store) SaveCaptureSettings(ctx context.Context, settings CaptureSettings) error {
	settings.Normalize()
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal capture settings: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO app_settings (key, value)
         VALUES (?, ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		captureSettingsKey,
		string(raw),
	)
	if err != nil {
		return fmt.Errorf("save capture settings: %w", err)
	}
	return nil
}
