package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"steamfetch/internal/logging"
	"steamfetch/internal/steamcmd"
)

// Handle is the queue's view of one running download process.
type Handle interface {
	SubmitInput(line string) error
	Terminate()
	Wait() error
}

// Driver launches download attempts. The steamcmd client satisfies this
// through a thin adapter; tests substitute stubs.
type Driver interface {
	Start(ctx context.Context, req steamcmd.Request, emit func(steamcmd.Event)) (Handle, error)
}

// Preflight is consulted before every attempt. A returned error fails the
// job fast instead of launching the external process.
type Preflight interface {
	Check(ctx context.Context) error
}

// Recorder persists terminal job outcomes. Nil disables persistence.
type Recorder interface {
	Record(ctx context.Context, job Job) error
}

// Settings fixes queue behaviour for the Manager's lifetime.
type Settings struct {
	DownloadRoot   string
	Platform       string
	ValidateFiles  bool
	MaxPending     int
	MaxAttempts    int
	BackoffBase    time.Duration
	BackoffCap     time.Duration
	TerminalLinger time.Duration
	PollInterval   time.Duration
}

// Manager owns the job table, the pending FIFO, and the exclusive download
// slot. All mutation happens inside its critical section; snapshots are
// value copies safe to hand to concurrent readers.
type Manager struct {
	settings  Settings
	driver    Driver
	preflight Preflight
	recorder  Recorder
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	jobs     map[string]*Job
	order    []string
	pending  []string
	activeID string
	handle   Handle
	// creds holds transient secrets per job, outside the Job struct so no
	// snapshot or persisted record can carry them. Cleared on terminal.
	creds map[string]steamcmd.Credentials

	kick    chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// Option adjusts Manager construction, primarily for tests.
type Option func(*Manager)

// WithClock substitutes the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager builds a stopped Manager. Call Start to begin dispatching.
func NewManager(settings Settings, driver Driver, preflight Preflight, recorder Recorder, logger *slog.Logger, opts ...Option) (*Manager, error) {
	if driver == nil {
		return nil, errors.New("driver required")
	}
	if settings.DownloadRoot == "" {
		return nil, errors.New("download root required")
	}
	if settings.MaxPending <= 0 {
		settings.MaxPending = 25
	}
	if settings.MaxAttempts <= 0 {
		settings.MaxAttempts = 3
	}
	if settings.BackoffBase <= 0 {
		settings.BackoffBase = 5 * time.Second
	}
	if settings.BackoffCap < settings.BackoffBase {
		settings.BackoffCap = settings.BackoffBase
	}
	if settings.PollInterval <= 0 {
		settings.PollInterval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		settings:  settings,
		driver:    driver,
		preflight: preflight,
		recorder:  recorder,
		logger:    logging.WithComponent(logger, "queue"),
		now:       time.Now,
		jobs:      make(map[string]*Job),
		creds:     make(map[string]steamcmd.Credentials),
		kick:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Start launches the dispatch loop. The loop runs until Stop or until ctx
// is cancelled.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("queue manager already started")
	}
	m.started = true
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(runCtx)
	m.logger.Info("queue manager started",
		logging.Int("max_pending", m.settings.MaxPending),
		logging.Int("max_attempts", m.settings.MaxAttempts))
	return nil
}

// Stop terminates any active download and waits for the dispatch loop and
// attempt goroutines to drain.
func (m *Manager) Stop() {
	m.mu.Lock()
	handle := m.handle
	cancel := m.cancel
	m.mu.Unlock()

	if handle != nil {
		handle.Terminate()
	}
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()

	m.mu.Lock()
	m.started = false
	m.cancel = nil
	m.mu.Unlock()
	m.logger.Info("queue manager stopped")
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.settings.PollInterval)
	defer ticker.Stop()

	for {
		m.dispatch(ctx)
		m.pruneTerminal()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-m.kick:
		}
	}
}

// signal nudges the dispatch loop without blocking.
func (m *Manager) signal() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

// dispatch hands the slot to the head of the FIFO when it is free and the
// head's backoff gate has elapsed. A gated head blocks later arrivals; retry
// priority is strict.
func (m *Manager) dispatch(ctx context.Context) {
	m.mu.Lock()
	if m.activeID != "" || len(m.pending) == 0 {
		m.mu.Unlock()
		return
	}
	id := m.pending[0]
	job, ok := m.jobs[id]
	if !ok {
		m.pending = m.pending[1:]
		m.mu.Unlock()
		m.signal()
		return
	}
	if job.NotReadyUntil.After(m.now()) {
		m.mu.Unlock()
		return
	}

	m.pending = m.pending[1:]
	m.activeID = id
	job.State = StateStarting
	job.WillRetry = false
	job.NotReadyUntil = time.Time{}
	job.AttemptCount++
	job.Progress = Progress{}
	if job.StartedAt == nil {
		started := m.now()
		job.StartedAt = &started
	}
	req := m.buildRequest(job)
	attempt := job.AttemptCount
	m.mu.Unlock()

	m.logger.Info("attempt starting",
		logging.String(logging.FieldJobID, id),
		logging.Int64(logging.FieldAppID, job.AppID),
		logging.Int(logging.FieldAttempt, attempt))

	m.wg.Add(1)
	go m.runAttempt(ctx, id, req)
}

// buildRequest assembles the driver request under m.mu.
func (m *Manager) buildRequest(job *Job) steamcmd.Request {
	req := steamcmd.Request{
		AppID:      job.AppID,
		InstallDir: job.TargetDir,
		Anonymous:  job.AuthMode == AuthAnonymous,
		Platform:   job.Platform,
		Validate:   job.Validate,
	}
	if creds, ok := m.creds[job.ID]; ok {
		copied := creds
		req.Credentials = &copied
	}
	return req
}

// pruneTerminal drops terminal jobs whose linger window has elapsed. The
// persisted history retains their record.
func (m *Manager) pruneTerminal() {
	if m.settings.TerminalLinger <= 0 {
		return
	}
	cutoff := m.now().Add(-m.settings.TerminalLinger)

	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.order[:0]
	for _, id := range m.order {
		job, ok := m.jobs[id]
		if ok && job.State.Terminal() && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			delete(m.jobs, id)
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
}
