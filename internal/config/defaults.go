package config

const (
	defaultDownloadDir      = "~/.local/share/steamfetch/downloads"
	defaultSteamCmdDir      = "~/.local/share/steamfetch/steamcmd"
	defaultLogDir           = "~/.local/share/steamfetch/logs"
	defaultAPIBind          = "127.0.0.1:7480"
	defaultPlatform         = "windows"
	defaultDownloadTimeout  = 7200
	defaultTerminateGrace   = 10
	defaultMaxPending       = 25
	defaultMaxAttempts      = 3
	defaultRetryBackoffBase = 5
	defaultRetryBackoffCap  = 300
	defaultTerminalLinger   = 60
	defaultMinFreeDiskGiB   = 1
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DownloadDir: defaultDownloadDir,
			SteamCmdDir: defaultSteamCmdDir,
			LogDir:      defaultLogDir,
			APIBind:     defaultAPIBind,
		},
		SteamCmd: SteamCmd{
			Platform:        defaultPlatform,
			ValidateFiles:   true,
			DownloadTimeout: defaultDownloadTimeout,
			TerminateGrace:  defaultTerminateGrace,
		},
		Queue: Queue{
			MaxPending:       defaultMaxPending,
			MaxAttempts:      defaultMaxAttempts,
			RetryBackoffBase: defaultRetryBackoffBase,
			RetryBackoffCap:  defaultRetryBackoffCap,
			TerminalLinger:   defaultTerminalLinger,
			MinFreeDiskGiB:   defaultMinFreeDiskGiB,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
