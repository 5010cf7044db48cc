package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"steamfetch/internal/api"
	"steamfetch/internal/config"
	"steamfetch/internal/history"
	"steamfetch/internal/library"
	"steamfetch/internal/logging"
	"steamfetch/internal/preflight"
	"steamfetch/internal/queue"
)

// Daemon owns the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *history.Store
	manager *queue.Manager
	scanner *library.Scanner

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *history.Store, manager *queue.Manager, scanner *library.Scanner, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || manager == nil || scanner == nil {
		return nil, errors.New("daemon requires config, store, manager, and scanner")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "steamfetchd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.WithComponent(logger, "daemon"),
		store:    store,
		manager:  manager,
		scanner:  scanner,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}

	server, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = server
	return d, nil
}

// Start acquires the instance lock and launches the queue manager and API
// server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another steamfetchd instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.manager.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return fmt.Errorf("start queue manager: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		d.manager.Stop()
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return err
	}

	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String("lock", d.lockPath),
		logging.String("bind", d.cfg.Paths.APIBind))
	return nil
}

// Stop halts background processing and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.api.stop()
	d.manager.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and releases held resources.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Status reports runtime information for the status surface.
func (d *Daemon) Status(ctx context.Context) api.StatusResponse {
	return api.StatusResponse{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		Queue:         api.SummarizeQueue(d.manager.Snapshot()),
		Checks:        preflight.RunAll(ctx, d.cfg),
		HistoryDBPath: d.store.Path(),
		LockFilePath:  d.lockPath,
	}
}
