package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ncruces/go-strftime"

	"omnistream/internal/capture"
	"omnistream/internal/logging"
	"omnistream/internal/store"
)

// unavailableReason marks a stream whose captures keep ending with no file.
const unavailableReason = "stream appears unavailable"

// segmentTimestampLayout stamps segment filenames, strftime style.
const segmentTimestampLayout = "%Y%m%d_%H%M%S"

type recordOutcome struct {
	files      []string
	failReason string
	cancelled  bool
}

// record runs the segment loop for one task: start the capture tool, rotate
// segments at the configured ceilings, restart while the stream stays live,
// and stop after too many consecutive starts that leave no file behind.
func (e *Engine) record(ctx context.Context, task *store.Task, settings store.CaptureSettings) recordOutcome {
	logger := e.logger.With(
		logging.String(logging.FieldTaskID, task.ID),
		logging.String(logging.FieldURL, task.URL))

	sanitized := sanitizeName(task.Name)
	segmentDir := filepath.Join(e.recordingsDir, sanitized)
	quality := settings.QualityFor(task.URL)

	var outcome recordOutcome
	emptyCount := 0

	for {
		segmentPath := nextSegmentPath(segmentDir, sanitized, e.now())

		proc, err := e.launcher.Start(task.URL, quality, segmentPath)
		if err != nil {
			logger.Error("start capture", logging.Error(err))
			outcome.failReason = err.Error()
			return outcome
		}

		e.setStatus(task.ID, store.Recording)
		e.setFilename(task.ID, segmentPath)
		logger.Info("segment started", logging.String(logging.FieldSegment, segmentPath))

		exited, rotated, cancelled := e.supervise(ctx, proc, segmentPath, settings)

		// A segment counts as soon as the capture tool created the file.
		// Files stay on disk either way.
		if _, err := os.Stat(segmentPath); err == nil {
			outcome.files = append(outcome.files, segmentPath)
			emptyCount = 0
			logger.Info("segment finished",
				logging.String(logging.FieldSegment, segmentPath),
				logging.Int64("bytes", fileSize(segmentPath)))
		} else {
			emptyCount++
			logger.Warn("segment produced no file",
				logging.String(logging.FieldSegment, segmentPath),
				logging.Int("consecutive", emptyCount))
		}

		if cancelled {
			outcome.cancelled = true
			return outcome
		}
		if rotated {
			continue
		}
		if emptyCount >= e.emptySegmentThreshold {
			outcome.failReason = unavailableReason
			return outcome
		}
		if exited {
			if !e.stillLive(ctx, task.URL, logger) {
				return outcome
			}
			// Back off before reattaching so a flapping stream does not spin.
			if !sleepCtx(ctx, e.restartBackoff) {
				outcome.cancelled = true
				return outcome
			}
		}
	}
}

// supervise waits for one segment to end. The capture process exiting on its
// own wins over a simultaneous size or time limit; a limit hit kills the
// process and requests rotation.
func (e *Engine) supervise(ctx context.Context, proc capture.Process, segmentPath string, settings store.CaptureSettings) (exited, rotated, cancelled bool) {
	exitCh := make(chan error, 1)
	go func() { exitCh <- proc.Wait() }()

	var timeC <-chan time.Time
	if limit := settings.SegmentTime(); limit > 0 {
		timer := time.NewTimer(limit)
		defer timer.Stop()
		timeC = timer.C
	}

	var sizeC <-chan time.Time
	sizeLimit := settings.SegmentSizeBytes()
	if sizeLimit > 0 {
		ticker := time.NewTicker(e.sizePollInterval)
		defer ticker.Stop()
		sizeC = ticker.C
	}

	stop := func() {
		_ = proc.Kill()
		<-exitCh
	}

	for {
		select {
		case <-exitCh:
			return true, false, false
		case <-ctx.Done():
			stop()
			return false, false, true
		case <-timeC:
			select {
			case <-exitCh:
				return true, false, false
			default:
			}
			stop()
			return false, true, false
		case <-sizeC:
			if fileSize(segmentPath) < sizeLimit {
				continue
			}
			select {
			case <-exitCh:
				return true, false, false
			default:
			}
			stop()
			return false, true, false
		}
	}
}

// stillLive rechecks liveness after the capture tool exits. Probe failures
// read as offline so a broken probe cannot keep a dead capture respawning.
func (e *Engine) stillLive(ctx context.Context, url string, logger *slog.Logger) bool {
	if ctx.Err() != nil {
		return false
	}
	live, err := e.checker.IsLive(ctx, url)
	if err != nil {
		logger.Warn("liveness recheck failed", logging.Error(err))
		return false
	}
	return live
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// nextSegmentPath picks an unused segment filename. Rotation within one
// second would otherwise reuse the timestamp and clobber the previous file.
func nextSegmentPath(dir, name string, now time.Time) string {
	base := filepath.Join(dir, name+"-"+strftime.Format(segmentTimestampLayout, now))
	path := base + ".mp4"
	for i := 1; ; i++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
		path = fmt.Sprintf("%s-%d.mp4", base, i)
	}
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
