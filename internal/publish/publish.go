// Package publish pushes finished recordings to bilibili through the biliup
// CLI. Each upload uses one UploadConfig snapshot; the engine decides which
// configs a task carries and how failures aggregate.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"omnistream/internal/logging"
	"omnistream/internal/store"
)

// Publisher uploads a set of files under one publication config. The title is
// already rendered.
type Publisher interface {
	Publish(ctx context.Context, files []string, cfg store.UploadConfig, title string) error
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) ([]byte, error)
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	return cmd.CombinedOutput()
}

// ValidateConfig rejects configs that biliup would fail on anyway. Copyright
// is 1 (original) or 2 (repost).
func ValidateConfig(cfg store.UploadConfig) error {
	if strings.TrimSpace(cfg.AccountFile) == "" {
		return errors.New("account file required")
	}
	if cfg.Tid <= 0 {
		return errors.New("tid required")
	}
	if cfg.Copyright != 1 && cfg.Copyright != 2 {
		return fmt.Errorf("copyright must be 1 or 2, got %d", cfg.Copyright)
	}
	return nil
}

// Option configures the biliup publisher.
type Option func(*BiliupPublisher)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(p *BiliupPublisher) {
		if exec != nil {
			p.exec = exec
		}
	}
}

// BiliupPublisher shells out to the biliup CLI.
type BiliupPublisher struct {
	binary  string
	timeout time.Duration
	exec    Executor
	logger  *slog.Logger
}

// NewBiliupPublisher constructs a publisher for the provided biliup binary.
// A zero timeout means uploads run unbounded.
func NewBiliupPublisher(binary string, timeoutSeconds int, logger *slog.Logger, opts ...Option) (*BiliupPublisher, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("biliup binary required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	publisher := &BiliupPublisher{
		binary:  binary,
		timeout: time.Duration(timeoutSeconds) * time.Second,
		exec:    commandExecutor{},
		logger:  logger.With(logging.String(logging.FieldComponent, "publish")),
	}
	for _, opt := range opts {
		opt(publisher)
	}
	return publisher, nil
}

// defaultTag keeps biliup from rejecting submissions with no tags at all.
const defaultTag = "omnistream"

// Publish uploads files as one submission.
func (p *BiliupPublisher) Publish(ctx context.Context, files []string, cfg store.UploadConfig, title string) error {
	if len(files) == 0 {
		return errors.New("no files to publish")
	}
	if err := ValidateConfig(cfg); err != nil {
		return err
	}

	uploadCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		uploadCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	args := buildArgs(files, cfg, title)
	p.logger.Info("upload starting",
		logging.Int("files", len(files)),
		logging.String("title", title),
		logging.String(logging.FieldProfile, cfg.AccountFile))

	out, err := p.exec.Run(uploadCtx, p.binary, args)
	if err != nil {
		message := strings.TrimSpace(string(out))
		if message == "" {
			return fmt.Errorf("biliup upload: %w", err)
		}
		return fmt.Errorf("biliup upload: %s: %w", lastLine(message), err)
	}

	p.logger.Info("upload finished", logging.String("title", title))
	return nil
}

func buildArgs(files []string, cfg store.UploadConfig, title string) []string {
	args := []string{
		"--user-cookie", cfg.AccountFile,
		"upload",
		"--title", title,
		"--tid", strconv.Itoa(cfg.Tid),
		"--copyright", strconv.Itoa(cfg.Copyright),
	}
	tags := cfg.Tags
	if len(tags) == 0 {
		tags = []string{defaultTag}
	}
	args = append(args, "--tag", strings.Join(tags, ","))
	if cfg.Description != "" {
		args = append(args, "--desc", cfg.Description)
	}
	if cfg.Dynamic != "" {
		args = append(args, "--dynamic", cfg.Dynamic)
	}
	return append(args, files...)
}

func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if trimmed := strings.TrimSpace(lines[i]); trimmed != "" {
			return trimmed
		}
	}
	return s
}
