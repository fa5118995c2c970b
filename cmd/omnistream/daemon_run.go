package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"omnistream/internal/capture"
	"omnistream/internal/daemon"
	"omnistream/internal/engine"
	"omnistream/internal/ipc"
	"omnistream/internal/logging"
	"omnistream/internal/preflight"
	"omnistream/internal/probe"
	"omnistream/internal/publish"
	"omnistream/internal/store"
)

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon-run",
		Short: "Run the omnistream daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonProcess(cmd.Context(), ctx)
		},
	}
}

func runDaemonProcess(cmdCtx context.Context, ctx *commandContext) error {
	if ctx == nil {
		return fmt.Errorf("command context is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("omnistream-%s.log", runID))
	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update omnistream.log link: %v\n", err)
	}

	pidPath := filepath.Join(cfg.Paths.LogDir, "omnistream.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	for _, result := range preflight.RunAll(cfg) {
		if result.Passed {
			logger.Info("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
			)
			continue
		}
		logger.Warn("preflight check failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
		)
	}

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open task store", logging.Error(err))
		return err
	}
	defer st.Close()

	checker, err := probe.NewStreamlinkChecker(cfg.Tools.StreamlinkBinary, cfg.Tools.ProbeTimeout, logger)
	if err != nil {
		return fmt.Errorf("create stream checker: %w", err)
	}
	launcher, err := capture.NewStreamlinkLauncher(cfg.Tools.StreamlinkBinary, logger)
	if err != nil {
		return fmt.Errorf("create capture launcher: %w", err)
	}
	publisher, err := publish.NewBiliupPublisher(cfg.Tools.BiliupBinary, cfg.Tools.PublishTimeout, logger)
	if err != nil {
		return fmt.Errorf("create publisher: %w", err)
	}

	eng, err := engine.New(engine.Options{
		Store:                 st,
		Checker:               checker,
		Launcher:              launcher,
		Publisher:             publisher,
		RecordingsDir:         cfg.Paths.RecordingsDir,
		MonitorInterval:       time.Duration(cfg.Monitor.Interval) * time.Second,
		SizePollInterval:      time.Duration(cfg.Recorder.SizePollInterval) * time.Second,
		RestartBackoff:        time.Duration(cfg.Recorder.RestartBackoff) * time.Second,
		EmptySegmentThreshold: cfg.Recorder.EmptySegmentThreshold,
		Logger:                logger,
	})
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	d, err := daemon.New(cfg, st, eng, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(signalCtx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	logger.Info("omnistream daemon running",
		logging.String("socket", cfg.Paths.SocketPath),
		logging.String("api", d.APIAddr()),
	)

	<-signalCtx.Done()
	logger.Info("omnistream daemon shutting down")
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "omnistream.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
