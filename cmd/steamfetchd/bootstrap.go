package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"steamfetch/internal/config"
	"steamfetch/internal/daemon"
	"steamfetch/internal/history"
	"steamfetch/internal/library"
	"steamfetch/internal/preflight"
	"steamfetch/internal/queue"
	"steamfetch/internal/steamcmd"
)

// steamcmdDriver adapts the steamcmd client to the queue's driver contract.
type steamcmdDriver struct {
	client *steamcmd.Client
}

func (d steamcmdDriver) Start(ctx context.Context, req steamcmd.Request, emit func(steamcmd.Event)) (queue.Handle, error) {
	return d.client.Start(ctx, req, emit)
}

func queueSettings(cfg *config.Config) queue.Settings {
	return queue.Settings{
		DownloadRoot:   cfg.Paths.DownloadDir,
		Platform:       cfg.SteamCmd.Platform,
		ValidateFiles:  cfg.SteamCmd.ValidateFiles,
		MaxPending:     cfg.Queue.MaxPending,
		MaxAttempts:    cfg.Queue.MaxAttempts,
		BackoffBase:    time.Duration(cfg.Queue.RetryBackoffBase) * time.Second,
		BackoffCap:     time.Duration(cfg.Queue.RetryBackoffCap) * time.Second,
		TerminalLinger: time.Duration(cfg.Queue.TerminalLinger) * time.Second,
	}
}

// bootstrap assembles the daemon from configuration. The caller owns the
// returned daemon and must Close it.
func bootstrap(cfg *config.Config, logger *slog.Logger) (*daemon.Daemon, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	store, err := history.Open(filepath.Join(cfg.Paths.LogDir, "history.db"))
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}

	client, err := steamcmd.New(cfg.SteamCmdScript(), cfg.SteamCmd.DownloadTimeout, cfg.SteamCmd.TerminateGrace, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init steamcmd client: %w", err)
	}

	gate, err := preflight.NewGate(cfg)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init preflight gate: %w", err)
	}

	manager, err := queue.NewManager(queueSettings(cfg), steamcmdDriver{client: client}, gate, store, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init queue manager: %w", err)
	}

	scanner := library.NewScanner(cfg.Paths.DownloadDir, logger)

	d, err := daemon.New(cfg, store, manager, scanner, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return d, nil
}
