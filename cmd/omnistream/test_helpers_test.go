package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"omnistream/internal/capture"
	"omnistream/internal/config"
	"omnistream/internal/daemon"
	"omnistream/internal/engine"
	"omnistream/internal/ipc"
	"omnistream/internal/logging"
	"omnistream/internal/store"
	"omnistream/internal/testsupport"
)

type offlineChecker struct{}

func (offlineChecker) IsLive(context.Context, string) (bool, error) { return false, nil }
func (offlineChecker) ProbeTitle(context.Context, string) string    { return "" }

type noopProcess struct{ done chan struct{} }

func (p *noopProcess) Wait() error { <-p.done; return nil }
func (p *noopProcess) Kill() error {
	select {
	case <-p.done:
	default:
		close(p.done)
	}
	return nil
}

type noopLauncher struct{}

func (noopLauncher) Start(url, quality, outputPath string) (capture.Process, error) {
	return &noopProcess{done: make(chan struct{})}, nil
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, []string, store.UploadConfig, string) error {
	return nil
}

type cliTestEnv struct {
	cfg        *config.Config
	store      *store.Store
	daemon     *daemon.Daemon
	socketPath string
	configPath string
}

// setupCLITestEnv builds a daemon behind a unix socket. Seed functions run
// against the store before the engine loads it, so seeded records are
// visible to the daemon.
func setupCLITestEnv(t *testing.T, seeds ...func(t *testing.T, st *store.Store)) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	for _, seed := range seeds {
		seed(t, st)
	}

	eng, err := engine.New(engine.Options{
		Store:     st,
		Checker:   offlineChecker{},
		Launcher:  noopLauncher{},
		Publisher: noopPublisher{},

		RecordingsDir: cfg.Paths.RecordingsDir,
		Logger:        logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	d, err := daemon.New(cfg, st, eng, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv, err := ipc.NewServer(ctx, cfg.Paths.SocketPath, d, logging.NewNop())
	if err != nil {
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
	})

	return &cliTestEnv{
		cfg:        cfg,
		store:      st,
		daemon:     d,
		socketPath: cfg.Paths.SocketPath,
		configPath: configPath,
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\ndata_dir = %q\nrecordings_dir = %q\nlog_dir = %q\ndatabase_path = %q\nsocket_path = %q\napi_bind = %q\n",
		cfg.Paths.DataDir,
		cfg.Paths.RecordingsDir,
		cfg.Paths.LogDir,
		cfg.Paths.DatabasePath,
		cfg.Paths.SocketPath,
		cfg.Paths.APIBind,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, want string) {
	t.Helper()
	if !strings.Contains(output, want) {
		t.Fatalf("expected output to contain %q, got %q", want, output)
	}
}
