package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateSteamCmd(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.DownloadDir == "" {
		return errors.New("paths.download_dir must be set")
	}
	if c.Paths.SteamCmdDir == "" {
		return errors.New("paths.steamcmd_dir must be set")
	}
	return nil
}

func (c *Config) validateSteamCmd() error {
	switch c.SteamCmd.Platform {
	case "windows", "linux", "macos":
	default:
		return fmt.Errorf("steamcmd.platform must be one of windows, linux, macos (got %q)", c.SteamCmd.Platform)
	}
	return ensurePositiveMap(map[string]int{
		"steamcmd.download_timeout": c.SteamCmd.DownloadTimeout,
		"steamcmd.terminate_grace":  c.SteamCmd.TerminateGrace,
	})
}

func (c *Config) validateQueue() error {
	if err := ensurePositiveMap(map[string]int{
		"queue.max_pending":        c.Queue.MaxPending,
		"queue.max_attempts":       c.Queue.MaxAttempts,
		"queue.retry_backoff_base": c.Queue.RetryBackoffBase,
	}); err != nil {
		return err
	}
	if c.Queue.RetryBackoffCap < c.Queue.RetryBackoffBase {
		return errors.New("queue.retry_backoff_cap must be >= queue.retry_backoff_base")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
