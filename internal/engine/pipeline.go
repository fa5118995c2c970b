package engine

import (
	"context"
	"log/slog"
	"os"

	"omnistream/internal/logging"
	"omnistream/internal/publish"
	"omnistream/internal/store"
)

// noFilesReason marks a capture that ended without producing any data.
const noFilesReason = "No files generated"

// runJob is the full task lifecycle: record, then publish whatever the
// recorder produced. Status writes use the background context so a cancelled
// job can still persist its final state.
func (e *Engine) runJob(ctx context.Context, task *store.Task, settings store.CaptureSettings, liveTitle string) {
	logger := e.logger.With(logging.String(logging.FieldTaskID, task.ID))

	outcome := e.record(ctx, task, settings)

	if outcome.cancelled {
		logger.Info("capture stopped", logging.Int("segments", len(outcome.files)))
		e.setStatus(task.ID, store.Idle)
		return
	}
	if len(outcome.files) == 0 {
		reason := outcome.failReason
		if reason == "" {
			reason = noFilesReason
		}
		logger.Warn("capture produced nothing", logging.String("reason", reason))
		e.setStatus(task.ID, store.Errored(reason))
		return
	}

	// The live title may have been unavailable when the capture began.
	// Fetch it again before rendering upload titles.
	if liveTitle == "" {
		liveTitle = e.checker.ProbeTitle(context.Background(), task.URL)
	}

	e.publishTask(task, settings, liveTitle, outcome.files, true)
}

// publishTask pushes the files through every upload config the task carries.
// Every config is attempted; the task completes only when all succeed, and a
// partial failure reports the last error. updateStatus is off for manually
// triggered publications.
func (e *Engine) publishTask(task *store.Task, settings store.CaptureSettings, liveTitle string, files []string, updateStatus bool) {
	logger := e.logger.With(logging.String(logging.FieldTaskID, task.ID))

	if len(task.UploadConfigs) == 0 {
		logger.Info("no publication configs, capture kept on disk",
			logging.Int("segments", len(files)))
		if updateStatus {
			e.setStatus(task.ID, store.Completed)
		}
		return
	}

	if updateStatus {
		e.setStatus(task.ID, store.Uploading)
	}

	// Publication runs detached from job cancellation: a stop request ends
	// the capture, not an upload already in flight.
	ctx := context.Background()
	now := e.now()
	var lastErr error
	for i, cfg := range task.UploadConfigs {
		title := publish.RenderTitle(cfg.Title, liveTitle, task.Name, now)
		if err := e.publisher.Publish(ctx, files, cfg, title); err != nil {
			lastErr = err
			logger.Error("upload failed",
				logging.Int("config", i),
				logging.String("title", title),
				logging.Error(err))
			continue
		}
		logger.Info("upload succeeded",
			logging.Int("config", i),
			logging.String("title", title))
	}

	if lastErr != nil {
		if updateStatus {
			e.setStatus(task.ID, store.Errored(lastErr.Error()))
		}
		return
	}

	if updateStatus {
		e.setStatus(task.ID, store.Completed)
	}
	if settings.CleanupAfterPublish {
		e.cleanupFiles(files, logger)
	}
}

// cleanupFiles removes published segments, deduplicated so a file listed
// twice is only removed once.
func (e *Engine) cleanupFiles(files []string, logger *slog.Logger) {
	seen := make(map[string]struct{}, len(files))
	for _, file := range files {
		if _, dup := seen[file]; dup {
			continue
		}
		seen[file] = struct{}{}
		if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
			logger.Warn("cleanup failed", logging.String(logging.FieldSegment, file), logging.Error(err))
			continue
		}
		logger.Info("segment removed", logging.String(logging.FieldSegment, file))
	}
}
