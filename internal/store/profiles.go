package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// SaveProfile upserts a publication profile.
func (s *Store) SaveProfile(ctx context.Context, profile *Profile) error {
	if profile == nil {
		return errors.New("profile is nil")
	}
	configJSON, err := json.Marshal(profile.Config)
	if err != nil {
		return fmt.Errorf("marshal profile config: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO profiles (id, name, config)
         VALUES (?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             name = excluded.name,
             config = excluded.config`,
		profile.ID,
		profile.Name,
		string(configJSON),
	)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// GetProfile fetches a profile by id. Missing profiles return (nil, nil).
func (s *Store) GetProfile(ctx context.Context, id string) (*Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, config FROM profiles WHERE id = ?`, id)
	profile, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return profile, nil
}

// ListProfiles returns all profiles ordered by name.
func (s *Store) ListProfiles(ctx context.Context) ([]*Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, config FROM profiles ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}
	return profiles, rows.Err()
}

// DeleteProfile removes a profile row by id. Sources keep dangling links;
// the engine drops unknown ids when it snapshots configs for a task.
func (s *Store) DeleteProfile(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete profile: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func scanProfile(scanner interface{ Scan(dest ...any) error }) (*Profile, error) {
	var (
		id         string
		name       string
		configJSON string
	)
	if err := scanner.Scan(&id, &name, &configJSON); err != nil {
		return nil, err
	}

	profile := &Profile{ID: id, Name: name}
	if configJSON != "" {
		if err := json.Unmarshal([]byte(configJSON), &profile.Config); err != nil {
			return nil, fmt.Errorf("decode profile config: %w", err)
		}
	}
	profile.Config.Normalize()
	return profile, nil
}
