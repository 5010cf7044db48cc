package preflight

import (
	"context"
	"errors"

	"steamfetch/internal/config"
	"steamfetch/internal/faults"
)

// Gate is the pre-attempt check the queue manager runs before starting any
// download. It covers only the conditions that make an attempt pointless.
type Gate struct {
	cfg *config.Config
}

func NewGate(cfg *config.Config) (*Gate, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	return &Gate{cfg: cfg}, nil
}

// Check returns nil when downloads can proceed. Failures are classified:
// a broken SteamCMD install or unusable download directory reports
// DependencyMissing, an exhausted volume reports DiskFull.
func (g *Gate) Check(_ context.Context) error {
	if result := CheckSteamCmd(g.cfg.SteamCmdScript()); !result.Passed {
		return faults.New(faults.DependencyMissing, "preflight", result.Detail)
	}
	if result := CheckDirectoryAccess("Download directory", g.cfg.Paths.DownloadDir); !result.Passed {
		return faults.New(faults.DependencyMissing, "preflight", result.Detail)
	}
	if min := minFreeBytes(g.cfg); min > 0 {
		if result := CheckFreeDisk(g.cfg.Paths.DownloadDir, min); !result.Passed {
			return faults.New(faults.DiskFull, "preflight", result.Detail)
		}
	}
	return nil
}
