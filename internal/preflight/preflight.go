package preflight

import (
	"context"

	"steamfetch/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes every check for the given config. Used by the status and
// diagnostics surfaces; the queue consults the narrower Gate instead.
func RunAll(_ context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckSteamCmd(cfg.SteamCmdScript()),
		CheckDirectoryAccess("Download directory", cfg.Paths.DownloadDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckFreeDisk(cfg.Paths.DownloadDir, minFreeBytes(cfg)),
	}

	// steamcmd.sh is a shell script; the 32-bit runtime it bootstraps needs
	// a working shell and tar on PATH.
	results = append(results,
		CheckBinary("Shell", "bash"),
		CheckBinary("Archive tool", "tar"),
	)
	return results
}

func minFreeBytes(cfg *config.Config) uint64 {
	return uint64(cfg.Queue.MinFreeDiskGiB) * 1024 * 1024 * 1024
}
