package config

const (
	defaultDataDir               = "~/.local/share/omnistream"
	defaultRecordingsDir         = "~/.local/share/omnistream/recordings"
	defaultLogDir                = "~/.local/share/omnistream/logs"
	defaultDatabasePath          = "~/.local/share/omnistream/omnistream.db"
	defaultAPIBind               = "127.0.0.1:7843"
	defaultMonitorInterval       = 60
	defaultSizePollInterval      = 5
	defaultRestartBackoff        = 5
	defaultEmptySegmentThreshold = 3
	defaultStreamlinkBinary      = "streamlink"
	defaultBiliupBinary          = "biliup"
	defaultProbeTimeout          = 30
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:       defaultDataDir,
			RecordingsDir: defaultRecordingsDir,
			LogDir:        defaultLogDir,
			DatabasePath:  defaultDatabasePath,
			APIBind:       defaultAPIBind,
		},
		Monitor: Monitor{
			Interval: defaultMonitorInterval,
		},
		Recorder: Recorder{
			SizePollInterval:      defaultSizePollInterval,
			RestartBackoff:        defaultRestartBackoff,
			EmptySegmentThreshold: defaultEmptySegmentThreshold,
		},
		Tools: Tools{
			StreamlinkBinary: defaultStreamlinkBinary,
			BiliupBinary:     defaultBiliupBinary,
			ProbeTimeout:     defaultProbeTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
