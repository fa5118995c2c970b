package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"omnistream/internal/logging"
)

// Checker reports stream liveness. An offline stream returns (false, nil);
// errors mean the check itself failed and the caller should try again later.
type Checker interface {
	IsLive(ctx context.Context, url string) (bool, error)
	ProbeTitle(ctx context.Context, url string) string
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) ([]byte, error)
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	// streamlink reports errors as JSON on stdout with a nonzero exit code,
	// so the output matters even when the command "fails".
	out, err := cmd.Output()
	if len(out) > 0 {
		return out, nil
	}
	return out, err
}

// Option configures the streamlink checker.
type Option func(*StreamlinkChecker)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *StreamlinkChecker) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// StreamlinkChecker probes liveness through the streamlink CLI.
type StreamlinkChecker struct {
	binary  string
	timeout time.Duration
	exec    Executor
	logger  *slog.Logger
}

// NewStreamlinkChecker constructs a checker for the provided streamlink binary.
func NewStreamlinkChecker(binary string, timeoutSeconds int, logger *slog.Logger, opts ...Option) (*StreamlinkChecker, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("streamlink binary required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	checker := &StreamlinkChecker{
		binary:  binary,
		timeout: time.Duration(timeoutSeconds) * time.Second,
		exec:    commandExecutor{},
		logger:  logger.With(logging.String(logging.FieldComponent, "probe")),
	}
	for _, opt := range opts {
		opt(checker)
	}
	return checker, nil
}

type probeResult struct {
	Error    string                     `json:"error"`
	Metadata map[string]json.RawMessage `json:"metadata"`
	Streams  map[string]json.RawMessage `json:"streams"`
	Title    string                     `json:"title"`
}

// offlineMarkers are the streamlink error fragments that mean "not live right
// now" rather than "the probe broke".
var offlineMarkers = []string{
	"no playable streams found",
	"no streams found",
	"is offline",
}

// IsLive probes the url. Offline is (false, nil); anything that prevents a
// definitive answer is an error.
func (c *StreamlinkChecker) IsLive(ctx context.Context, url string) (bool, error) {
	result, err := c.probe(ctx, url)
	if err != nil {
		return false, err
	}
	if result.Error != "" {
		if isOfflineError(result.Error) {
			return false, nil
		}
		return false, fmt.Errorf("streamlink: %s", result.Error)
	}
	return len(result.Streams) > 0, nil
}

// ProbeTitle returns the live title of the stream, or "" when it cannot be
// determined. Title failures never block a capture.
func (c *StreamlinkChecker) ProbeTitle(ctx context.Context, url string) string {
	result, err := c.probe(ctx, url)
	if err != nil || result.Error != "" {
		return ""
	}
	if raw, ok := result.Metadata["title"]; ok {
		var title string
		if json.Unmarshal(raw, &title) == nil {
			return strings.TrimSpace(title)
		}
	}
	return strings.TrimSpace(result.Title)
}

func (c *StreamlinkChecker) probe(ctx context.Context, url string) (*probeResult, error) {
	probeCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	out, err := c.exec.Run(probeCtx, c.binary, []string{"--json", url})
	if err != nil {
		return nil, fmt.Errorf("run streamlink: %w", err)
	}

	var result probeResult
	if err := json.Unmarshal(out, &result); err != nil {
		c.logger.Debug("unreadable probe output", logging.String(logging.FieldURL, url), logging.Error(err))
		return nil, fmt.Errorf("decode streamlink output: %w", err)
	}
	return &result, nil
}

func isOfflineError(message string) bool {
	lower := strings.ToLower(message)
	for _, marker := range offlineMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
