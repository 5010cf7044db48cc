package queue

import (
	"time"

	"steamfetch/internal/faults"
	"steamfetch/internal/steamcmd"
)

// State represents the lifecycle of a download job.
type State string

const (
	StateQueued      State = "queued"
	StateStarting    State = "starting"
	StateDownloading State = "downloading"
	StateVerifying   State = "verifying"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
	StateCancelled   State = "cancelled"
)

var activeStates = map[State]struct{}{
	StateStarting:    {},
	StateDownloading: {},
	StateVerifying:   {},
}

// Active reports whether the state holds the download slot.
func (s State) Active() bool {
	_, ok := activeStates[s]
	return ok
}

// Terminal reports whether no further automatic transition can occur.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// AuthMode selects how the download authenticates against Steam.
type AuthMode string

const (
	AuthAnonymous    AuthMode = "anonymous"
	AuthCredentialed AuthMode = "credentialed"
)

// Progress is the latest parsed progress snapshot for one attempt.
// BytesTotal and ETASeconds are zero until the external process reports
// them. Percent may regress across install phases; Overall never does.
type Progress struct {
	Percent         float64 `json:"percent"`
	BytesDownloaded int64   `json:"bytes_downloaded"`
	BytesTotal      int64   `json:"bytes_total,omitempty"`
	ETASeconds      int64   `json:"eta_seconds,omitempty"`
	Overall         float64 `json:"overall"`
	Phase           string  `json:"phase,omitempty"`
}

// FailureRecord is one append-only error_log entry. Message is derived from
// classified output and never contains credential material.
type FailureRecord struct {
	Attempt    int           `json:"attempt"`
	Reason     faults.Reason `json:"reason"`
	Message    string        `json:"message"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// Job is one requested download. Snapshots returned by the Manager are
// value copies; credential material is held separately by the Manager and
// never appears here.
type Job struct {
	ID        string   `json:"id"`
	AppID     int64    `json:"app_id"`
	Title     string   `json:"title,omitempty"`
	AuthMode  AuthMode `json:"auth_mode"`
	TargetDir string   `json:"target_dir"`
	Platform  string   `json:"platform"`
	Validate  bool     `json:"validate"`

	State        State           `json:"state"`
	Progress     Progress        `json:"progress"`
	AttemptCount int             `json:"attempt_count"`
	ErrorLog     []FailureRecord `json:"error_log,omitempty"`

	// AwaitingGuardCode is set while the external process is blocked on an
	// interactive two-factor prompt.
	AwaitingGuardCode bool `json:"awaiting_guard_code,omitempty"`

	// CancelRequested marks cancellation intent before teardown completes.
	CancelRequested bool `json:"cancel_requested,omitempty"`

	// WillRetry and NotReadyUntil describe the backoff gate after a
	// retryable failure. NotReadyUntil is zero unless WillRetry is set.
	WillRetry     bool      `json:"will_retry,omitempty"`
	NotReadyUntil time.Time `json:"not_ready_until,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// LastFailure returns the most recent error_log entry, if any.
func (j *Job) LastFailure() (FailureRecord, bool) {
	if len(j.ErrorLog) == 0 {
		return FailureRecord{}, false
	}
	return j.ErrorLog[len(j.ErrorLog)-1], true
}

func phaseState(phase steamcmd.Phase) State {
	if phase == steamcmd.PhaseVerifying {
		return StateVerifying
	}
	return StateDownloading
}
