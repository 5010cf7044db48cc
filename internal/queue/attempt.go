package queue

import (
	"context"
	"time"

	"steamfetch/internal/faults"
	"steamfetch/internal/logging"
	"steamfetch/internal/steamcmd"
)

// attemptState collects per-attempt observations from the event stream.
// Guarded by Manager.mu.
type attemptState struct {
	failure    *FailureRecord
	sawSuccess bool
}

// runAttempt executes one download attempt end to end. The slot is released
// on every exit path.
func (m *Manager) runAttempt(ctx context.Context, id string, req steamcmd.Request) {
	defer m.wg.Done()

	if m.preflight != nil {
		if err := m.preflight.Check(ctx); err != nil {
			reason, ok := faults.ReasonOf(err)
			if !ok {
				reason = faults.DependencyMissing
			}
			m.settleAttempt(id, reason, err.Error(), &attemptState{})
			return
		}
	}

	attempt := &attemptState{}
	handle, err := m.driver.Start(ctx, req, func(event steamcmd.Event) {
		m.applyEvent(id, event, attempt)
	})
	if err != nil {
		reason, _ := faults.ReasonOf(err)
		m.settleAttempt(id, reason, err.Error(), attempt)
		return
	}

	m.mu.Lock()
	m.handle = handle
	cancelRequested := false
	if job, ok := m.jobs[id]; ok {
		cancelRequested = job.CancelRequested
	}
	m.mu.Unlock()
	if cancelRequested {
		// Cancel raced the process launch; tear it down immediately.
		handle.Terminate()
	}

	waitErr := handle.Wait()

	m.mu.Lock()
	m.handle = nil
	m.mu.Unlock()

	if waitErr == nil {
		m.settleSuccess(id, attempt)
		return
	}
	reason, _ := faults.ReasonOf(waitErr)
	m.settleAttempt(id, reason, waitErr.Error(), attempt)
}

// applyEvent folds one parsed event into the job under the critical
// section. Events arriving after the job left the active states are
// ignored.
func (m *Manager) applyEvent(id string, event steamcmd.Event, attempt *attemptState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok || !job.State.Active() {
		return
	}

	switch event.Kind {
	case steamcmd.EventProgress:
		job.State = phaseState(event.Phase)
		job.Progress.Percent = event.Percent
		job.Progress.Phase = string(event.Phase)
		if event.Overall > job.Progress.Overall {
			job.Progress.Overall = event.Overall
		}
		if event.BytesDownloaded > job.Progress.BytesDownloaded {
			job.Progress.BytesDownloaded = event.BytesDownloaded
		}
		if event.BytesTotal > 0 {
			job.Progress.BytesTotal = event.BytesTotal
		}
		if event.ETASeconds > 0 {
			job.Progress.ETASeconds = event.ETASeconds
		}
	case steamcmd.EventAuthPrompt:
		job.AwaitingGuardCode = true
		m.logger.Info("auth challenge raised",
			logging.String(logging.FieldJobID, id),
			logging.String("prompt", string(event.Prompt)))
	case steamcmd.EventSuccess:
		attempt.sawSuccess = true
		job.Progress.Percent = 100
		job.Progress.Overall = 1
	case steamcmd.EventFailure:
		attempt.failure = &FailureRecord{
			Attempt:    job.AttemptCount,
			Reason:     event.Reason,
			Message:    event.Message,
			OccurredAt: m.now(),
		}
	}
}

// settleSuccess completes a zero-exit attempt. An error line followed by a
// clean exit without the success banner still counts as a failure.
func (m *Manager) settleSuccess(id string, attempt *attemptState) {
	m.mu.Lock()
	failure := attempt.failure
	sawSuccess := attempt.sawSuccess
	m.mu.Unlock()
	if failure != nil && !sawSuccess {
		m.settleAttempt(id, failure.Reason, failure.Message, attempt)
		return
	}

	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.releaseSlotLocked(id)
		m.mu.Unlock()
		m.signal()
		return
	}
	job.Progress.Percent = 100
	job.Progress.Overall = 1
	m.finishLocked(job, StateCompleted, nil)
	m.releaseSlotLocked(id)
	snapshot := copyJob(job)
	m.mu.Unlock()

	m.record(snapshot)
	m.logger.Info("download completed",
		logging.String(logging.FieldJobID, snapshot.ID),
		logging.Int64(logging.FieldAppID, snapshot.AppID),
		logging.Int(logging.FieldAttempt, snapshot.AttemptCount))
	m.signal()
}

// settleAttempt resolves a failed or cancelled attempt: retry with backoff,
// terminal Failed, or terminal Cancelled.
func (m *Manager) settleAttempt(id string, reason faults.Reason, message string, attempt *attemptState) {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.releaseSlotLocked(id)
		m.mu.Unlock()
		m.signal()
		return
	}

	// A failure line parsed mid-stream is more specific than the exit
	// classification, except for timeouts and cancellation.
	if attempt.failure != nil && reason != faults.Timeout && reason != faults.Cancelled {
		reason = attempt.failure.Reason
		message = attempt.failure.Message
	}
	if job.CancelRequested {
		reason = faults.Cancelled
		message = "cancelled by user"
	}

	record := &FailureRecord{
		Attempt:    job.AttemptCount,
		Reason:     reason,
		Message:    message,
		OccurredAt: m.now(),
	}

	switch {
	case reason == faults.Cancelled:
		m.finishLocked(job, StateCancelled, record)
	case reason.Retryable() && job.AttemptCount < m.settings.MaxAttempts:
		m.scheduleRetryLocked(job, record)
	default:
		m.finishLocked(job, StateFailed, record)
	}
	m.releaseSlotLocked(id)
	snapshot := copyJob(job)
	m.mu.Unlock()

	if snapshot.State.Terminal() {
		m.record(snapshot)
		m.logger.Warn("download failed",
			logging.String(logging.FieldJobID, snapshot.ID),
			logging.Int64(logging.FieldAppID, snapshot.AppID),
			logging.String(logging.FieldReason, string(reason)),
			logging.String(logging.FieldState, string(snapshot.State)),
			logging.Int(logging.FieldAttempt, snapshot.AttemptCount))
	} else {
		m.logger.Warn("attempt failed, retry scheduled",
			logging.String(logging.FieldJobID, snapshot.ID),
			logging.String(logging.FieldReason, string(reason)),
			logging.Int(logging.FieldAttempt, snapshot.AttemptCount),
			logging.Any("not_ready_until", snapshot.NotReadyUntil))
	}
	m.signal()
}

// scheduleRetryLocked re-enqueues the job at the FRONT of the FIFO behind a
// backoff gate. The gate is distinct from queue position: the job keeps its
// priority while the delay elapses.
func (m *Manager) scheduleRetryLocked(job *Job, record *FailureRecord) {
	job.ErrorLog = append(job.ErrorLog, *record)
	job.State = StateQueued
	job.WillRetry = true
	job.AwaitingGuardCode = false
	job.NotReadyUntil = m.now().Add(m.backoff(job.AttemptCount))
	m.pending = append([]string{job.ID}, m.pending...)
}

// backoff doubles per completed attempt, capped.
func (m *Manager) backoff(attempt int) time.Duration {
	delay := m.settings.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= m.settings.BackoffCap {
			return m.settings.BackoffCap
		}
	}
	if delay > m.settings.BackoffCap {
		delay = m.settings.BackoffCap
	}
	return delay
}

// finishLocked moves a job to a terminal state and drops its credentials.
func (m *Manager) finishLocked(job *Job, state State, record *FailureRecord) {
	if record != nil {
		job.ErrorLog = append(job.ErrorLog, *record)
	}
	job.State = state
	job.AwaitingGuardCode = false
	job.WillRetry = false
	job.NotReadyUntil = time.Time{}
	finished := m.now()
	job.FinishedAt = &finished
	delete(m.creds, job.ID)
}

func (m *Manager) releaseSlotLocked(id string) {
	if m.activeID == id {
		m.activeID = ""
	}
}

// record persists a terminal snapshot when a recorder is configured.
func (m *Manager) record(job Job) {
	if m.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.recorder.Record(ctx, job); err != nil {
		m.logger.Warn("history record failed",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err))
	}
}
