package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateMonitor(); err != nil {
		return err
	}
	if err := c.validateRecorder(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateMonitor() error {
	if c.Monitor.Interval <= 0 {
		return errors.New("monitor.interval must be a positive number of seconds")
	}
	return nil
}

func (c *Config) validateRecorder() error {
	if c.Recorder.SizePollInterval <= 0 {
		return errors.New("recorder.size_poll_interval must be a positive number of seconds")
	}
	if c.Recorder.RestartBackoff < 0 {
		return errors.New("recorder.restart_backoff must not be negative")
	}
	if c.Recorder.EmptySegmentThreshold <= 0 {
		return errors.New("recorder.empty_segment_threshold must be at least 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be \"console\" or \"json\", got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug/info/warn/error, got %q", c.Logging.Level)
	}
	return nil
}
