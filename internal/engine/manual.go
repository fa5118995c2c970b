package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"omnistream/internal/logging"
	"omnistream/internal/store"
)

// mediaExtensions are the file types a manual publication picks up.
var mediaExtensions = map[string]struct{}{
	".mp4": {},
	".flv": {},
	".mkv": {},
	".ts":  {},
}

// StartCapture begins recording a URL immediately, without waiting for the
// monitor to observe it live. The task carries no publication configs and
// snapshots the current global settings.
func (e *Engine) StartCapture(ctx context.Context, name, url string) (string, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return "", fmt.Errorf("url is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = url
	}

	task := &store.Task{
		ID:     uuid.NewString(),
		Name:   name,
		URL:    url,
		Status: store.Recording,
	}

	jobCtx, ok := e.registerJob(task.ID, task.URL)
	if !ok {
		return "", fmt.Errorf("a capture for %s is already running", url)
	}
	e.saveTask(ctx, task)

	settings := e.Settings()

	e.logger.Info("manual capture starting",
		logging.String(logging.FieldTaskID, task.ID),
		logging.String(logging.FieldURL, url))

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.finishJob(task.ID, task.URL)
		e.runJob(jobCtx, task, settings, "")
	}()

	return task.ID, nil
}

// ManualPublish uploads every media file in dir under the named profiles'
// configs. The created task is a record of the request only: its status never
// changes, so a retried or concurrent manual run cannot wedge the monitor.
func (e *Engine) ManualPublish(ctx context.Context, dir string, profileIDs []string) (string, error) {
	files, err := scanMediaFiles(dir)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("no media files in %s", dir)
	}

	source := &store.Source{LinkedProfileIDs: profileIDs}
	configs := e.snapshotConfigs(ctx, source)
	if len(configs) == 0 {
		return "", fmt.Errorf("no publication configs resolved from %d profile(s)", len(profileIDs))
	}

	task := &store.Task{
		ID:            "manual-publish-" + uuid.NewString(),
		Name:          filepath.Base(dir),
		Status:        store.Idle,
		UploadConfigs: configs,
	}
	e.saveTask(ctx, task)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", fmt.Errorf("engine is shutting down")
	}
	e.wg.Add(1)
	e.mu.Unlock()

	e.logger.Info("manual publication starting",
		logging.String(logging.FieldTaskID, task.ID),
		logging.Int("files", len(files)))

	go func() {
		defer e.wg.Done()
		e.publishTask(task, e.Settings(), "", files, false)
	}()

	return task.ID, nil
}

// ManualPublishSource uploads a source's accumulated recordings under its
// linked profiles. The files come from the source's own recording
// directory, the same place the recorder writes segments.
func (e *Engine) ManualPublishSource(ctx context.Context, sourceID string) (string, error) {
	source, err := e.store.GetSource(ctx, sourceID)
	if err != nil {
		return "", err
	}
	if source == nil {
		return "", fmt.Errorf("source %s not found", sourceID)
	}

	dir := filepath.Join(e.recordingsDir, sanitizeName(source.Name))
	return e.ManualPublish(ctx, dir, source.LinkedProfileIDs)
}

// scanMediaFiles lists media files directly under dir, sorted by name so
// multi-part recordings upload in capture order.
func scanMediaFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if _, ok := mediaExtensions[ext]; !ok {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}
