package api

import (
	"time"

	"steamfetch/internal/history"
	"steamfetch/internal/library"
	"steamfetch/internal/preflight"
)

// EnqueueRequest is the POST /api/queue body. Password and GuardCode are
// consumed transiently by the daemon; they are never logged or persisted.
type EnqueueRequest struct {
	Identifier string `json:"identifier"`
	Title      string `json:"title,omitempty"`
	AuthMode   string `json:"auth_mode,omitempty"`
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
	GuardCode  string `json:"guard_code,omitempty"`
	Platform   string `json:"platform,omitempty"`
	Validate   *bool  `json:"validate,omitempty"`
}

// GuardCodeRequest is the POST /api/queue/{id}/guard body.
type GuardCodeRequest struct {
	Code string `json:"code"`
}

// ProgressView mirrors the job's progress snapshot.
type ProgressView struct {
	Percent         float64 `json:"percent"`
	BytesDownloaded int64   `json:"bytes_downloaded"`
	BytesTotal      int64   `json:"bytes_total,omitempty"`
	ETASeconds      int64   `json:"eta_seconds,omitempty"`
	Overall         float64 `json:"overall"`
	Phase           string  `json:"phase,omitempty"`
}

// FailureView is one error_log entry.
type FailureView struct {
	Attempt    int       `json:"attempt"`
	Reason     string    `json:"reason"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// JobView is the API representation of one job.
type JobView struct {
	ID                string        `json:"id"`
	AppID             int64         `json:"app_id"`
	Title             string        `json:"title,omitempty"`
	AuthMode          string        `json:"auth_mode"`
	TargetDir         string        `json:"target_dir"`
	State             string        `json:"state"`
	Progress          ProgressView  `json:"progress"`
	AttemptCount      int           `json:"attempt_count"`
	ErrorLog          []FailureView `json:"error_log,omitempty"`
	AwaitingGuardCode bool          `json:"awaiting_guard_code,omitempty"`
	CancelRequested   bool          `json:"cancel_requested,omitempty"`
	WillRetry         bool          `json:"will_retry,omitempty"`
	// RetryInSeconds is the remaining backoff countdown, 0 when not gated.
	RetryInSeconds int64      `json:"retry_in_seconds,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// QueueListResponse is the GET /api/queue payload.
type QueueListResponse struct {
	Jobs []JobView `json:"jobs"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job JobView `json:"job"`
}

// HistoryResponse is the GET /api/history payload.
type HistoryResponse struct {
	Entries []history.Entry `json:"entries"`
}

// ClearHistoryResponse reports rows removed by DELETE /api/history.
type ClearHistoryResponse struct {
	Deleted int64 `json:"deleted"`
}

// LibraryResponse is the GET /api/library payload.
type LibraryResponse struct {
	Games []library.Game `json:"games"`
}

// QueueSummary aggregates job counts per lifecycle bucket.
type QueueSummary struct {
	Total     int `json:"total"`
	Queued    int `json:"queued"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// StatusResponse is the GET /api/status payload.
type StatusResponse struct {
	Running       bool               `json:"running"`
	PID           int                `json:"pid"`
	Queue         QueueSummary       `json:"queue"`
	Checks        []preflight.Result `json:"checks"`
	HistoryDBPath string             `json:"history_db_path"`
	LockFilePath  string             `json:"lock_file_path"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}
