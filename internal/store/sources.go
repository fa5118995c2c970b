package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// SaveSource upserts a monitored source.
func (s *Store) SaveSource(ctx context.Context, source *Source) error {
	if source == nil {
		return errors.New("source is nil")
	}
	linkedJSON, err := json.Marshal(source.LinkedProfileIDs)
	if err != nil {
		return fmt.Errorf("marshal linked profile ids: %w", err)
	}
	var settingsJSON sql.NullString
	if source.CustomSettings != nil {
		raw, err := json.Marshal(source.CustomSettings)
		if err != nil {
			return fmt.Errorf("marshal capture settings: %w", err)
		}
		settingsJSON = sql.NullString{String: string(raw), Valid: true}
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO sources (id, name, url, linked_profile_ids, use_custom_settings, capture_settings)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             name = excluded.name,
             url = excluded.url,
             linked_profile_ids = excluded.linked_profile_ids,
             use_custom_settings = excluded.use_custom_settings,
             capture_settings = excluded.capture_settings`,
		source.ID,
		source.Name,
		source.URL,
		string(linkedJSON),
		boolToInt(source.UseCustom),
		settingsJSON,
	)
	if err != nil {
		return fmt.Errorf("save source: %w", err)
	}
	return nil
}

// GetSource fetches a source by id. Missing sources return (nil, nil).
func (s *Store) GetSource(ctx context.Context, id string) (*Source, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id)
	source, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}
	return source, nil
}

// ListSources returns all sources ordered by name.
func (s *Store) ListSources(ctx context.Context) ([]*Source, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var sources []*Source
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, source)
	}
	return sources, rows.Err()
}

// DeleteSource removes a source row by id.
func (s *Store) DeleteSource(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete source: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

const sourceColumns = "id, name, url, linked_profile_ids, use_custom_settings, capture_settings"

func scanSource(scanner interface{ Scan(dest ...any) error }) (*Source, error) {
	var (
		id           string
		name         string
		url          string
		linkedJSON   sql.NullString
		useCustom    int
		settingsJSON sql.NullString
	)
	if err := scanner.Scan(&id, &name, &url, &linkedJSON, &useCustom, &settingsJSON); err != nil {
		return nil, err
	}

	source := &Source{
		ID:        id,
		Name:      name,
		URL:       url,
		UseCustom: useCustom != 0,
	}
	if linkedJSON.Valid && linkedJSON.String != "" {
		if err := json.Unmarshal([]byte(linkedJSON.String), &source.LinkedProfileIDs); err != nil {
			source.LinkedProfileIDs = nil
		}
	}
	if settingsJSON.Valid && settingsJSON.String != "" {
		var settings CaptureSettings
		if err := json.Unmarshal([]byte(settingsJSON.String), &settings); err == nil {
			settings.Normalize()
			source.CustomSettings = &settings
		}
	}
	return source, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
