package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"omnistream/internal/api"
	"omnistream/internal/config"
	"omnistream/internal/engine"
	"omnistream/internal/logging"
	"omnistream/internal/store"
)

// Daemon coordinates the capture engine and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store
	engine *engine.Engine

	lockPath string
	lock     *flock.Flock

	apiSrv *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, s *store.Store, eng *engine.Engine, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || s == nil || eng == nil {
		return nil, errors.New("daemon requires config, store, and engine")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "omnistream.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger.With(logging.String(logging.FieldComponent, "daemon")),
		store:    s,
		engine:   eng,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}

	apiSrv, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.apiSrv = apiSrv
	return d, nil
}

// Start acquires the daemon lock, fails over tasks stranded by a previous
// crash, and launches the monitor and API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another omnistream daemon instance is already running")
	}

	reset, err := d.engine.RecoverInterruptedTasks(ctx)
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("recover interrupted tasks: %w", err)
	}
	if reset > 0 {
		d.logger.Warn("failed tasks left by previous run", logging.Int64("count", reset))
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if d.apiSrv != nil {
		if err := d.apiSrv.start(runCtx); err != nil {
			cancel()
			_ = d.lock.Unlock()
			return err
		}
	}

	go d.engine.RunMonitor(runCtx)

	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("pid", os.Getpid()))
	return nil
}

// Stop shuts down the monitor, running jobs, and the API server, then
// releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.engine.Close()
	if d.apiSrv != nil {
		d.apiSrv.stop()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// APIAddr returns the bound API address, or "" when the API is disabled.
func (d *Daemon) APIAddr() string {
	return d.apiSrv.addr()
}

// Status reports daemon runtime information.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	status := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.store.Path(),
		LockPath:     d.lockPath,
		TaskCounts:   make(map[string]int),
	}
	if sources, err := d.store.ListSources(ctx); err == nil {
		status.Sources = len(sources)
	}
	for _, task := range d.engine.Tasks() {
		key := task.Status.String()
		if task.Status.Code == store.CodeError {
			key = "Error"
		}
		status.TaskCounts[key]++
	}
	return status
}

// ListTasks returns every task in creation order.
func (d *Daemon) ListTasks(_ context.Context) ([]*store.Task, error) {
	return d.engine.Tasks(), nil
}

// GetTask returns one task. Missing tasks return (nil, nil).
func (d *Daemon) GetTask(_ context.Context, id string) (*store.Task, error) {
	return d.engine.Task(id), nil
}

// StartCapture begins recording a URL immediately and returns the task id.
func (d *Daemon) StartCapture(ctx context.Context, name, url string) (string, error) {
	return d.engine.StartCapture(ctx, name, url)
}

// StopTask stops a running capture or resets a finished task to idle.
func (d *Daemon) StopTask(ctx context.Context, id string) error {
	return d.engine.StopTask(ctx, id)
}

// RemoveTask deletes a stopped task.
func (d *Daemon) RemoveTask(ctx context.Context, id string) error {
	return d.engine.RemoveTask(ctx, id)
}

// ListSources returns every source with its derived display state.
func (d *Daemon) ListSources(ctx context.Context) ([]api.Source, error) {
	sources, err := d.store.ListSources(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]api.Source, 0, len(sources))
	for _, source := range sources {
		out = append(out, api.FromSource(source, d.engine.SourceState(source)))
	}
	return out, nil
}

// SaveSource validates and persists a source, assigning an id when missing.
func (d *Daemon) SaveSource(ctx context.Context, source *store.Source) (*store.Source, error) {
	if source == nil {
		return nil, errors.New("source required")
	}
	source.Name = strings.TrimSpace(source.Name)
	source.URL = strings.TrimSpace(source.URL)
	if source.Name == "" {
		return nil, errors.New("source name required")
	}
	if source.URL == "" {
		return nil, errors.New("source url required")
	}
	if source.ID == "" {
		source.ID = uuid.NewString()
	}
	if source.CustomSettings != nil {
		source.CustomSettings.Normalize()
	}
	if err := d.store.SaveSource(ctx, source); err != nil {
		return nil, err
	}
	return source, nil
}

// RemoveSource deletes a source. Running tasks for it finish on their own.
func (d *Daemon) RemoveSource(ctx context.Context, id string) error {
	removed, err := d.store.DeleteSource(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("source %s not found", id)
	}
	return nil
}

// ListProfiles returns every publication profile.
func (d *Daemon) ListProfiles(ctx context.Context) ([]*store.Profile, error) {
	return d.store.ListProfiles(ctx)
}

// SaveProfile validates and persists a profile, assigning an id when missing.
func (d *Daemon) SaveProfile(ctx context.Context, profile *store.Profile) (*store.Profile, error) {
	if profile == nil {
		return nil, errors.New("profile required")
	}
	profile.Name = strings.TrimSpace(profile.Name)
	if profile.Name == "" {
		return nil, errors.New("profile name required")
	}
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	profile.Config.Normalize()
	if err := d.store.SaveProfile(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// RemoveProfile deletes a profile. Sources linking to it keep the dangling
// reference; the engine drops it at snapshot time.
func (d *Daemon) RemoveProfile(ctx context.Context, id string) error {
	removed, err := d.store.DeleteProfile(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("profile %s not found", id)
	}
	return nil
}

// Settings returns the current global capture settings.
func (d *Daemon) Settings() store.CaptureSettings {
	return d.engine.Settings()
}

// UpdateSettings installs new global capture settings.
func (d *Daemon) UpdateSettings(ctx context.Context, settings store.CaptureSettings) (store.CaptureSettings, error) {
	return d.engine.UpdateSettings(ctx, settings)
}

// ManualPublish uploads the media files in dir under the named profiles.
func (d *Daemon) ManualPublish(ctx context.Context, dir string, profileIDs []string) (string, error) {
	expanded, err := config.ExpandPath(dir)
	if err != nil {
		return "", err
	}
	return d.engine.ManualPublish(ctx, expanded, profileIDs)
}

// PublishSource uploads a source's recorded files under its linked profiles.
func (d *Daemon) PublishSource(ctx context.Context, sourceID string) (string, error) {
	return d.engine.ManualPublishSource(ctx, sourceID)
}
