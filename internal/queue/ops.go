package queue

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"steamfetch/internal/faults"
	"steamfetch/internal/logging"
	"steamfetch/internal/steamcmd"
)

// EnqueueRequest is one download submission.
type EnqueueRequest struct {
	// Identifier is a numeric app id or a store page URL.
	Identifier string
	Title      string
	AuthMode   AuthMode
	// Credentials is required for AuthCredentialed. The Manager keeps it
	// out of the Job struct so it can never reach a snapshot, a log line,
	// or the history store.
	Credentials *steamcmd.Credentials
	// Platform and Validate override the queue defaults when non-zero.
	Platform string
	Validate *bool
}

// Enqueue appends a new Queued job and returns its snapshot.
func (m *Manager) Enqueue(req EnqueueRequest) (Job, error) {
	appID, err := ParseAppID(req.Identifier)
	if err != nil {
		return Job{}, err
	}

	authMode := req.AuthMode
	if authMode == "" {
		authMode = AuthAnonymous
	}
	switch authMode {
	case AuthAnonymous:
	case AuthCredentialed:
		if req.Credentials == nil || strings.TrimSpace(req.Credentials.Username) == "" {
			return Job{}, faults.New(faults.AuthRequired, "enqueue", "credentialed mode requires a username")
		}
	default:
		return Job{}, faults.New(faults.InvalidIdentifier, "enqueue",
			fmt.Sprintf("unknown auth mode %q", authMode))
	}

	targetDir, err := m.resolveTargetDir(appID)
	if err != nil {
		return Job{}, err
	}

	platform := req.Platform
	if platform == "" {
		platform = m.settings.Platform
	}
	validate := m.settings.ValidateFiles
	if req.Validate != nil {
		validate = *req.Validate
	}

	m.mu.Lock()
	if len(m.pending) >= m.settings.MaxPending {
		m.mu.Unlock()
		return Job{}, faults.New(faults.QueueFull, "enqueue",
			fmt.Sprintf("pending limit %d reached", m.settings.MaxPending))
	}

	job := &Job{
		ID:        uuid.NewString(),
		AppID:     appID,
		Title:     strings.TrimSpace(req.Title),
		AuthMode:  authMode,
		TargetDir: targetDir,
		Platform:  platform,
		Validate:  validate,
		State:     StateQueued,
		CreatedAt: m.now(),
	}
	m.jobs[job.ID] = job
	m.order = append(m.order, job.ID)
	m.pending = append(m.pending, job.ID)
	if authMode == AuthCredentialed {
		m.creds[job.ID] = *req.Credentials
	}
	snapshot := copyJob(job)
	m.mu.Unlock()

	m.logger.Info("job enqueued",
		logging.String(logging.FieldJobID, snapshot.ID),
		logging.Int64(logging.FieldAppID, snapshot.AppID),
		logging.String("auth_mode", string(snapshot.AuthMode)))
	m.signal()
	return snapshot, nil
}

// resolveTargetDir assigns the immutable install path for an app and
// confirms it stays under the download root.
func (m *Manager) resolveTargetDir(appID int64) (string, error) {
	root, err := filepath.Abs(m.settings.DownloadRoot)
	if err != nil {
		return "", fmt.Errorf("resolve download root: %w", err)
	}
	target := filepath.Join(root, "steamapps", "common", fmt.Sprintf("app_%d", appID))
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", faults.New(faults.InvalidIdentifier, "resolve target",
			fmt.Sprintf("target escapes download root: %s", target))
	}
	return target, nil
}

// Cancel removes a queued job or requests teardown of the active one.
// Cancellation is terminal; a cancelled job is never retried.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok || job.State.Terminal() {
		m.mu.Unlock()
		return faults.New(faults.NotFound, "cancel", fmt.Sprintf("no active or queued job %s", id))
	}

	if id == m.activeID {
		job.CancelRequested = true
		handle := m.handle
		m.mu.Unlock()
		if handle != nil {
			go handle.Terminate()
		}
		m.logger.Info("cancel requested for active job", logging.String(logging.FieldJobID, id))
		return nil
	}

	// Queued (including a job waiting out its backoff gate): remove from
	// the FIFO and finish immediately.
	m.removePending(id)
	job.CancelRequested = true
	m.finishLocked(job, StateCancelled, &FailureRecord{
		Attempt:    job.AttemptCount,
		Reason:     faults.Cancelled,
		Message:    "cancelled while queued",
		OccurredAt: m.now(),
	})
	if job.AttemptCount == 0 {
		// Never started: drop it from the visible queue entirely.
		delete(m.jobs, id)
		m.removeOrder(id)
	}
	snapshot := copyJob(job)
	m.mu.Unlock()

	m.record(snapshot)
	m.logger.Info("queued job cancelled", logging.String(logging.FieldJobID, id))
	m.signal()
	return nil
}

// SubmitGuardCode answers a pending two-factor prompt on the active job.
// The code is forwarded to the external process and never logged.
func (m *Manager) SubmitGuardCode(id, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return faults.New(faults.AuthRequired, "guard code", "empty code")
	}

	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return faults.New(faults.NotFound, "guard code", fmt.Sprintf("no job %s", id))
	}
	if id != m.activeID || !job.AwaitingGuardCode {
		m.mu.Unlock()
		return faults.New(faults.AuthRequired, "guard code", "job is not awaiting a guard code")
	}
	handle := m.handle
	m.mu.Unlock()

	if handle == nil {
		return faults.New(faults.NotFound, "guard code", "no running process")
	}
	if err := handle.SubmitInput(code); err != nil {
		return fmt.Errorf("submit guard code: %w", err)
	}

	m.mu.Lock()
	job.AwaitingGuardCode = false
	m.mu.Unlock()
	m.logger.Info("guard code submitted", logging.String(logging.FieldJobID, id))
	return nil
}

// Snapshot returns value copies of all known jobs in submission order.
func (m *Manager) Snapshot() []Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	jobs := make([]Job, 0, len(m.order))
	for _, id := range m.order {
		if job, ok := m.jobs[id]; ok {
			jobs = append(jobs, copyJob(job))
		}
	}
	return jobs
}

// Get returns a value copy of one job.
func (m *Manager) Get(id string) (Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return copyJob(job), true
}

func (m *Manager) removePending(id string) {
	for i, pendingID := range m.pending {
		if pendingID == id {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return
		}
	}
}

func (m *Manager) removeOrder(id string) {
	for i, orderedID := range m.order {
		if orderedID == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}

func copyJob(job *Job) Job {
	copied := *job
	if len(job.ErrorLog) > 0 {
		copied.ErrorLog = append([]FailureRecord(nil), job.ErrorLog...)
	}
	return copied
}
