package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"omnistream/internal/config"
)

// Store manages OmniStream persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the database and verifies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.Paths.DatabasePath)
}

// OpenPath connects to the database at an explicit path.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// SaveTask upserts the full task row.
func (s *Store) SaveTask(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("task is nil")
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	configsJSON, err := json.Marshal(task.UploadConfigs)
	if err != nil {
		return fmt.Errorf("marshal upload configs: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO tasks (id, name, url, status, filename, created_at, upload_configs)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             name = excluded.name,
             url = excluded.url,
             status = excluded.status,
             filename = excluded.filename,
             upload_configs = excluded.upload_configs`,
		task.ID,
		task.Name,
		task.URL,
		task.Status.String(),
		task.Filename,
		task.CreatedAt.UTC().Format(time.RFC3339Nano),
		string(configsJSON),
	)
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

// UpdateTaskStatus replaces the persisted status of one task.
func (s *Store) UpdateTaskStatus(ctx context.Context, id string, status Status) error {
	_, err := s.db.ExecContext(ctx, `UPDATE tasks SET status = ? WHERE id = ?`, status.String(), id)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	return nil
}

// UpdateTaskFilename replaces the persisted active segment path of one task.
func (s *Store) UpdateTaskFilename(ctx context.Context, id, filename string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE tasks SET filename = ? WHERE id = ?`, filename, id)
	if err != nil {
		return fmt.Errorf("update task filename: %w", err)
	}
	return nil
}

// GetTask fetches a task by id. Missing tasks return (nil, nil).
func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// ListTasks returns all tasks ordered by creation time.
func (s *Store) ListTasks(ctx context.Context) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// DeleteTask removes a task row by id.
func (s *Store) DeleteTask(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ResetInterruptedTasks fails tasks stranded in a busy state by a previous
// daemon crash. Run once at startup, before any job starts.
func (s *Store) ResetInterruptedTasks(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks SET status = ? WHERE status IN (?, ?)`,
		Errored(InterruptedReason).String(),
		Recording.String(),
		Uploading.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("reset interrupted tasks: %w", err)
	}
	return res.RowsAffected()
}

// InterruptedReason is the error reason applied to tasks left busy by a crash.
const InterruptedReason = "interrupted by daemon restart"

const taskColumns = "id, name, url, status, filename, created_at, upload_configs"

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		id          string
		name        string
		url         string
		statusRaw   string
		filename    string
		createdRaw  string
		configsJSON sql.NullString
	)
	if err := scanner.Scan(&id, &name, &url, &statusRaw, &filename, &createdRaw, &configsJSON); err != nil {
		return nil, err
	}

	task := &Task{
		ID:       id,
		Name:     name,
		URL:      url,
		Status:   ParseStatus(statusRaw),
		Filename: filename,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		task.CreatedAt = created
	}
	if configsJSON.Valid && configsJSON.String != "" {
		if err := json.Unmarshal([]byte(configsJSON.String), &task.UploadConfigs); err != nil {
			// A corrupt blob loses the snapshot, not the task.
			task.UploadConfigs = nil
		}
	}
	return task, nil
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
