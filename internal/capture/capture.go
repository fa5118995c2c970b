// Package capture launches and supervises the streamlink process that writes
// one recording segment to disk. The engine owns the lifecycle; this package
// only knows how to start, wait for, and kill the tool.
package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"omnistream/internal/logging"
)

// Process is a handle on one running capture. Wait blocks until the tool
// exits; Kill terminates it. Both are safe to call from different goroutines.
type Process interface {
	Wait() error
	Kill() error
}

// Launcher starts a capture writing to outputPath. The returned Process is
// already running.
type Launcher interface {
	Start(url, quality, outputPath string) (Process, error)
}

// StreamlinkLauncher shells out to streamlink with file output.
type StreamlinkLauncher struct {
	binary string
	logger *slog.Logger
}

// NewStreamlinkLauncher constructs a launcher for the provided binary.
func NewStreamlinkLauncher(binary string, logger *slog.Logger) (*StreamlinkLauncher, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("streamlink binary required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StreamlinkLauncher{
		binary: binary,
		logger: logger.With(logging.String(logging.FieldComponent, "capture")),
	}, nil
}

// Start launches streamlink writing the stream to outputPath. The parent
// directory is created if missing.
func (l *StreamlinkLauncher) Start(url, quality, outputPath string) (Process, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("stream url required")
	}
	if strings.TrimSpace(outputPath) == "" {
		return nil, errors.New("output path required")
	}
	if quality = strings.TrimSpace(quality); quality == "" {
		quality = "best"
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, fmt.Errorf("create segment directory: %w", err)
	}

	cmd := exec.Command(l.binary, "-o", outputPath, url, quality) //nolint:gosec
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start streamlink: %w", err)
	}

	l.logger.Debug("capture started",
		logging.String(logging.FieldURL, url),
		logging.String(logging.FieldSegment, outputPath),
		logging.Int("pid", cmd.Process.Pid))

	return &streamlinkProcess{cmd: cmd}, nil
}

type streamlinkProcess struct {
	cmd *exec.Cmd
}

func (p *streamlinkProcess) Wait() error {
	return p.cmd.Wait()
}

func (p *streamlinkProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	err := p.cmd.Process.Kill()
	if err != nil && !errors.Is(err, os.ErrProcessDone) && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("kill streamlink: %w", err)
	}
	return nil
}
