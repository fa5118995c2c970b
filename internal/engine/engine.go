package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"omnistream/internal/capture"
	"omnistream/internal/logging"
	"omnistream/internal/probe"
	"omnistream/internal/publish"
	"omnistream/internal/store"
)

// Options wires the engine's collaborators and timing knobs.
type Options struct {
	Store     *store.Store
	Checker   probe.Checker
	Launcher  capture.Launcher
	Publisher publish.Publisher

	RecordingsDir string

	MonitorInterval       time.Duration
	SizePollInterval      time.Duration
	RestartBackoff        time.Duration
	EmptySegmentThreshold int

	Logger *slog.Logger
	Now    func() time.Time
}

// Engine coordinates monitoring, recording, and publication. All exported
// methods are safe for concurrent use.
type Engine struct {
	store     *store.Store
	checker   probe.Checker
	launcher  capture.Launcher
	publisher publish.Publisher

	recordingsDir         string
	monitorInterval       time.Duration
	sizePollInterval      time.Duration
	restartBackoff        time.Duration
	emptySegmentThreshold int

	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	tasks    map[string]*store.Task // task registry, authoritative for reads
	cancels  map[string]context.CancelFunc
	activeBy map[string]string // source url -> task id
	checking map[string]struct{}

	settingsMu sync.RWMutex
	settings   store.CaptureSettings

	rootCtx    context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup
	closed     bool
}

// New constructs an engine and loads the persisted capture settings.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("store required")
	}
	if opts.Checker == nil {
		return nil, errors.New("checker required")
	}
	if opts.Launcher == nil {
		return nil, errors.New("launcher required")
	}
	if opts.Publisher == nil {
		return nil, errors.New("publisher required")
	}
	if opts.RecordingsDir == "" {
		return nil, errors.New("recordings directory required")
	}
	if opts.MonitorInterval <= 0 {
		opts.MonitorInterval = time.Minute
	}
	if opts.SizePollInterval <= 0 {
		opts.SizePollInterval = 5 * time.Second
	}
	if opts.RestartBackoff < 0 {
		opts.RestartBackoff = 0
	}
	if opts.EmptySegmentThreshold <= 0 {
		opts.EmptySegmentThreshold = 3
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	settings, err := opts.Store.LoadCaptureSettings(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load capture settings: %w", err)
	}

	persisted, err := opts.Store.ListTasks(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	tasks := make(map[string]*store.Task, len(persisted))
	for _, task := range persisted {
		dup := *task
		tasks[task.ID] = &dup
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	return &Engine{
		store:                 opts.Store,
		checker:               opts.Checker,
		launcher:              opts.Launcher,
		publisher:             opts.Publisher,
		recordingsDir:         opts.RecordingsDir,
		monitorInterval:       opts.MonitorInterval,
		sizePollInterval:      opts.SizePollInterval,
		restartBackoff:        opts.RestartBackoff,
		emptySegmentThreshold: opts.EmptySegmentThreshold,
		logger:                opts.Logger.With(logging.String(logging.FieldComponent, "engine")),
		now:                   opts.Now,
		tasks:                 tasks,
		cancels:               make(map[string]context.CancelFunc),
		activeBy:              make(map[string]string),
		checking:              make(map[string]struct{}),
		settings:              settings,
		rootCtx:               rootCtx,
		rootCancel:            rootCancel,
	}, nil
}

// Close cancels every running job and waits for them to wind down.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.rootCancel()
	e.wg.Wait()
}

// Settings returns a copy of the current capture settings.
func (e *Engine) Settings() store.CaptureSettings {
	e.settingsMu.RLock()
	defer e.settingsMu.RUnlock()
	return e.settings
}

// UpdateSettings normalizes, persists, and installs new capture settings.
// Running jobs keep the snapshot they started with.
func (e *Engine) UpdateSettings(ctx context.Context, settings store.CaptureSettings) (store.CaptureSettings, error) {
	settings.Normalize()
	if err := e.store.SaveCaptureSettings(ctx, settings); err != nil {
		return store.CaptureSettings{}, err
	}
	e.settingsMu.Lock()
	e.settings = settings
	e.settingsMu.Unlock()
	return settings, nil
}

// TaskRunning reports whether a job currently owns the task.
func (e *Engine) TaskRunning(taskID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.cancels[taskID]
	return ok
}

// StopTask cancels a running job, or resets a finished task back to idle.
// Stopping the same task twice is a no-op.
func (e *Engine) StopTask(ctx context.Context, taskID string) error {
	e.mu.Lock()
	cancel, running := e.cancels[taskID]
	e.mu.Unlock()

	if running {
		cancel()
		return nil
	}

	if e.Task(taskID) == nil {
		return fmt.Errorf("task %s not found", taskID)
	}
	e.setStatus(taskID, store.Idle)
	return nil
}

// RemoveTask deletes a task record. Running tasks must be stopped first.
func (e *Engine) RemoveTask(ctx context.Context, taskID string) error {
	if e.TaskRunning(taskID) {
		return fmt.Errorf("task %s is running, stop it first", taskID)
	}

	e.mu.Lock()
	_, known := e.tasks[taskID]
	delete(e.tasks, taskID)
	e.mu.Unlock()
	if !known {
		return fmt.Errorf("task %s not found", taskID)
	}

	if _, err := e.store.DeleteTask(ctx, taskID); err != nil {
		e.logger.Error("delete task",
			logging.String(logging.FieldTaskID, taskID),
			logging.Error(err))
	}
	return nil
}

// Task returns a copy of one task from the registry, or nil when unknown.
func (e *Engine) Task(taskID string) *store.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	task, ok := e.tasks[taskID]
	if !ok {
		return nil
	}
	dup := *task
	return &dup
}

// Tasks returns a copy of every task, oldest first.
func (e *Engine) Tasks() []*store.Task {
	e.mu.Lock()
	out := make([]*store.Task, 0, len(e.tasks))
	for _, task := range e.tasks {
		dup := *task
		out = append(out, &dup)
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// saveTask installs a new task in the registry, then mirrors it to the
// store. The registry write comes first and survives a store failure, so
// task state stays observable while the database is unreachable.
func (e *Engine) saveTask(ctx context.Context, task *store.Task) {
	if task.CreatedAt.IsZero() {
		task.CreatedAt = e.now().UTC()
	}
	dup := *task
	e.mu.Lock()
	e.tasks[task.ID] = &dup
	e.mu.Unlock()

	if err := e.store.SaveTask(ctx, task); err != nil {
		e.logger.Error("persist task",
			logging.String(logging.FieldTaskID, task.ID),
			logging.Error(err))
	}
}

// setStatus moves a task through its lifecycle: registry first, store
// mirrored best-effort.
func (e *Engine) setStatus(taskID string, status store.Status) {
	e.mu.Lock()
	if task, ok := e.tasks[taskID]; ok {
		task.Status = status
	}
	e.mu.Unlock()

	if err := e.store.UpdateTaskStatus(context.Background(), taskID, status); err != nil {
		e.logger.Error("persist status",
			logging.String(logging.FieldTaskID, taskID),
			logging.Error(err))
	}
}

// setFilename records the segment a task is currently writing.
func (e *Engine) setFilename(taskID, filename string) {
	e.mu.Lock()
	if task, ok := e.tasks[taskID]; ok {
		task.Filename = filename
	}
	e.mu.Unlock()

	if err := e.store.UpdateTaskFilename(context.Background(), taskID, filename); err != nil {
		e.logger.Error("persist filename",
			logging.String(logging.FieldTaskID, taskID),
			logging.Error(err))
	}
}

// RecoverInterruptedTasks fails over tasks left busy by a previous daemon
// run. The registry is refreshed from the store first, so tasks written by
// an older process become visible. Call once at startup, before the monitor
// starts new jobs.
func (e *Engine) RecoverInterruptedTasks(ctx context.Context) (int64, error) {
	persisted, err := e.store.ListTasks(ctx)
	if err != nil {
		return 0, fmt.Errorf("load tasks: %w", err)
	}

	e.mu.Lock()
	for _, task := range persisted {
		if _, ok := e.tasks[task.ID]; !ok {
			dup := *task
			e.tasks[task.ID] = &dup
		}
	}
	for id, task := range e.tasks {
		if _, running := e.cancels[id]; running {
			continue
		}
		if task.Status.Code == store.CodeRecording || task.Status.Code == store.CodeUploading {
			task.Status = store.Errored(store.InterruptedReason)
		}
	}
	e.mu.Unlock()

	return e.store.ResetInterruptedTasks(ctx)
}

// registerJob records the cancellation handle for a new job. It fails when
// the engine is shutting down.
func (e *Engine) registerJob(taskID, url string) (context.Context, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, false
	}
	if _, busy := e.activeBy[url]; url != "" && busy {
		return nil, false
	}
	jobCtx, cancel := context.WithCancel(e.rootCtx)
	e.cancels[taskID] = cancel
	if url != "" {
		e.activeBy[url] = taskID
	}
	return jobCtx, true
}

func (e *Engine) finishJob(taskID, url string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cancel, ok := e.cancels[taskID]; ok {
		cancel()
		delete(e.cancels, taskID)
	}
	if url != "" && e.activeBy[url] == taskID {
		delete(e.activeBy, url)
	}
}

// urlBusy reports whether a job already covers the source url.
func (e *Engine) urlBusy(url string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.activeBy[url]
	return ok
}
