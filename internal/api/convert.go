package api

import (
	"time"

	"steamfetch/internal/queue"
)

// FromJob converts a queue snapshot into its wire form. The retry countdown
// is materialized relative to now so clients need no clock agreement.
func FromJob(job queue.Job, now time.Time) JobView {
	view := JobView{
		ID:        job.ID,
		AppID:     job.AppID,
		Title:     job.Title,
		AuthMode:  string(job.AuthMode),
		TargetDir: job.TargetDir,
		State:     string(job.State),
		Progress: ProgressView{
			Percent:         job.Progress.Percent,
			BytesDownloaded: job.Progress.BytesDownloaded,
			BytesTotal:      job.Progress.BytesTotal,
			ETASeconds:      job.Progress.ETASeconds,
			Overall:         job.Progress.Overall,
			Phase:           job.Progress.Phase,
		},
		AttemptCount:      job.AttemptCount,
		AwaitingGuardCode: job.AwaitingGuardCode,
		CancelRequested:   job.CancelRequested,
		WillRetry:         job.WillRetry,
		CreatedAt:         job.CreatedAt,
		StartedAt:         job.StartedAt,
		FinishedAt:        job.FinishedAt,
	}
	if job.WillRetry && job.NotReadyUntil.After(now) {
		view.RetryInSeconds = int64(job.NotReadyUntil.Sub(now).Round(time.Second) / time.Second)
	}
	for _, record := range job.ErrorLog {
		view.ErrorLog = append(view.ErrorLog, FailureView{
			Attempt:    record.Attempt,
			Reason:     string(record.Reason),
			Message:    record.Message,
			OccurredAt: record.OccurredAt,
		})
	}
	return view
}

// FromJobs converts a snapshot slice, preserving order.
func FromJobs(jobs []queue.Job, now time.Time) []JobView {
	views := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, FromJob(job, now))
	}
	return views
}

// SummarizeQueue aggregates snapshot counts for the status surface.
func SummarizeQueue(jobs []queue.Job) QueueSummary {
	summary := QueueSummary{Total: len(jobs)}
	for _, job := range jobs {
		switch {
		case job.State == queue.StateQueued:
			summary.Queued++
		case job.State.Active():
			summary.Active++
		case job.State == queue.StateCompleted:
			summary.Completed++
		case job.State == queue.StateFailed:
			summary.Failed++
		case job.State == queue.StateCancelled:
			summary.Cancelled++
		}
	}
	return summary
}
