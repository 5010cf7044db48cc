package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DownloadDir string `toml:"download_dir"`
	SteamCmdDir string `toml:"steamcmd_dir"`
	LogDir      string `toml:"log_dir"`
	APIBind     string `toml:"api_bind"`
	// APIToken, when set, requires "Authorization: Bearer <token>" on every
	// API request.
	APIToken string `toml:"api_token"`
}

// SteamCmd contains settings for driving the external SteamCMD binary.
type SteamCmd struct {
	// Platform applied via +@sSteamCmdForcePlatformType when not "windows".
	Platform string `toml:"platform"`
	// ValidateFiles appends "validate" to app_update commands.
	ValidateFiles bool `toml:"validate_files"`
	// DownloadTimeout bounds a single download attempt, in seconds.
	DownloadTimeout int `toml:"download_timeout"`
	// TerminateGrace is how long a cancelled process gets to exit before
	// being killed, in seconds.
	TerminateGrace int `toml:"terminate_grace"`
}

// Queue contains download queue and retry policy settings.
type Queue struct {
	MaxPending  int `toml:"max_pending"`
	MaxAttempts int `toml:"max_attempts"`
	// RetryBackoffBase is the first retry delay in seconds; it doubles per
	// attempt up to RetryBackoffCap.
	RetryBackoffBase int `toml:"retry_backoff_base"`
	RetryBackoffCap  int `toml:"retry_backoff_cap"`
	// TerminalLinger is how long terminal jobs stay visible in snapshots
	// before being pruned from active memory, in seconds.
	TerminalLinger int `toml:"terminal_linger"`
	// MinFreeDiskGiB fails preflight when the download root has less free
	// space than this.
	MinFreeDiskGiB int `toml:"min_free_disk_gib"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for steamfetch.
type Config struct {
	Paths    Paths    `toml:"paths"`
	SteamCmd SteamCmd `toml:"steamcmd"`
	Queue    Queue    `toml:"queue"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/steamfetch/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("steamfetch.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DownloadDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SteamCmdScript returns the path to the steamcmd.sh entry script.
func (c *Config) SteamCmdScript() string {
	return filepath.Join(c.Paths.SteamCmdDir, "steamcmd.sh")
}

// SteamCmdBinary returns the path to the linux32 steamcmd binary the entry
// script delegates to.
func (c *Config) SteamCmdBinary() string {
	return filepath.Join(c.Paths.SteamCmdDir, "linux32", "steamcmd")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
