package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"omnistream/internal/logging"
	"omnistream/internal/store"
)

// RunMonitor polls every source for liveness until the context ends. Each
// source is probed concurrently; a source with a running or in-flight check is
// skipped for that tick.
func (e *Engine) RunMonitor(ctx context.Context) {
	e.logger.Info("monitor started", logging.Duration("interval", e.monitorInterval))

	e.checkSources(ctx)

	ticker := time.NewTicker(e.monitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("monitor stopped")
			return
		case <-ticker.C:
			e.checkSources(ctx)
		}
	}
}

func (e *Engine) checkSources(ctx context.Context) {
	sources, err := e.store.ListSources(ctx)
	if err != nil {
		e.logger.Error("list sources", logging.Error(err))
		return
	}

	for _, source := range sources {
		if !e.beginCheck(source) {
			continue
		}
		e.wg.Add(1)
		go func(src store.Source) {
			defer e.wg.Done()
			defer e.endCheck(src.ID)
			e.checkSource(ctx, &src)
		}(*source)
	}
}

// beginCheck claims a source for probing. A source already being checked or
// already covered by a running job stays claimed elsewhere.
func (e *Engine) beginCheck(source *store.Source) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	if _, busy := e.activeBy[source.URL]; busy {
		return false
	}
	if _, probing := e.checking[source.ID]; probing {
		return false
	}
	e.checking[source.ID] = struct{}{}
	return true
}

func (e *Engine) endCheck(sourceID string) {
	e.mu.Lock()
	delete(e.checking, sourceID)
	e.mu.Unlock()
}

func (e *Engine) checkSource(ctx context.Context, source *store.Source) {
	logger := e.logger.With(
		logging.String(logging.FieldSource, source.Name),
		logging.String(logging.FieldURL, source.URL))

	live, err := e.checker.IsLive(ctx, source.URL)
	if err != nil {
		logger.Warn("liveness check failed", logging.Error(err))
		return
	}
	if !live {
		return
	}

	settings := e.settingsFor(source)
	configs := e.snapshotConfigs(ctx, source)
	liveTitle := e.checker.ProbeTitle(ctx, source.URL)

	task := &store.Task{
		ID:            uuid.NewString(),
		Name:          source.Name,
		URL:           source.URL,
		Status:        store.Recording,
		UploadConfigs: configs,
	}

	// Register before the task becomes visible so a stop request arriving
	// right after creation always finds the cancellation handle.
	jobCtx, ok := e.registerJob(task.ID, task.URL)
	if !ok {
		return
	}
	e.saveTask(ctx, task)

	logger.Info("source live, capture starting",
		logging.String(logging.FieldTaskID, task.ID),
		logging.String("live_title", liveTitle))

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.finishJob(task.ID, task.URL)
		e.runJob(jobCtx, task, settings, liveTitle)
	}()
}

// settingsFor resolves the capture settings a new task snapshots: the
// source's custom settings when enabled, otherwise the current globals.
func (e *Engine) settingsFor(source *store.Source) store.CaptureSettings {
	if custom := source.EffectiveSettings(); custom != nil {
		return *custom
	}
	return e.Settings()
}

// snapshotConfigs freezes the source's linked publication configs onto a new
// task. Dangling profile links are dropped without failing the capture.
func (e *Engine) snapshotConfigs(ctx context.Context, source *store.Source) []store.UploadConfig {
	var configs []store.UploadConfig
	for _, profileID := range source.LinkedProfileIDs {
		profile, err := e.store.GetProfile(ctx, profileID)
		if err != nil {
			e.logger.Warn("load profile",
				logging.String(logging.FieldProfile, profileID),
				logging.Error(err))
			continue
		}
		if profile == nil {
			continue
		}
		cfg := profile.Config
		cfg.Normalize()
		configs = append(configs, cfg)
	}
	return configs
}

// SourceState derives the display state of a source for listings. Idle
// sources report the outcome of their most recent task, if any.
func (e *Engine) SourceState(source *store.Source) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if taskID, active := e.activeBy[source.URL]; active {
		if task, ok := e.tasks[taskID]; ok && task.Status == store.Uploading {
			return "uploading"
		}
		return "recording"
	}
	if _, probing := e.checking[source.ID]; probing {
		return "checking"
	}

	var last *store.Task
	for _, task := range e.tasks {
		if task.URL != source.URL {
			continue
		}
		if last == nil || task.CreatedAt.After(last.CreatedAt) {
			last = task
		}
	}
	if last != nil {
		switch last.Status.Code {
		case store.CodeError:
			return "error"
		case store.CodeCompleted:
			return "completed"
		}
	}
	return "monitoring"
}
