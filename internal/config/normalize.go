package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSteamCmd()
	c.normalizeQueue()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DownloadDir, err = expandPath(c.Paths.DownloadDir); err != nil {
		return fmt.Errorf("paths.download_dir: %w", err)
	}
	if c.Paths.SteamCmdDir, err = expandPath(c.Paths.SteamCmdDir); err != nil {
		return fmt.Errorf("paths.steamcmd_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeSteamCmd() {
	c.SteamCmd.Platform = strings.ToLower(strings.TrimSpace(c.SteamCmd.Platform))
	if c.SteamCmd.Platform == "" {
		c.SteamCmd.Platform = defaultPlatform
	}
	if c.SteamCmd.DownloadTimeout <= 0 {
		c.SteamCmd.DownloadTimeout = defaultDownloadTimeout
	}
	if c.SteamCmd.TerminateGrace <= 0 {
		c.SteamCmd.TerminateGrace = defaultTerminateGrace
	}
}

func (c *Config) normalizeQueue() {
	if c.Queue.MaxPending <= 0 {
		c.Queue.MaxPending = defaultMaxPending
	}
	if c.Queue.MaxAttempts <= 0 {
		c.Queue.MaxAttempts = defaultMaxAttempts
	}
	if c.Queue.RetryBackoffBase <= 0 {
		c.Queue.RetryBackoffBase = defaultRetryBackoffBase
	}
	if c.Queue.RetryBackoffCap <= 0 {
		c.Queue.RetryBackoffCap = defaultRetryBackoffCap
	}
	if c.Queue.TerminalLinger < 0 {
		c.Queue.TerminalLinger = defaultTerminalLinger
	}
	if c.Queue.MinFreeDiskGiB < 0 {
		c.Queue.MinFreeDiskGiB = defaultMinFreeDiskGiB
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
