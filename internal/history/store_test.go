package history_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"steamfetch/internal/faults"
	"steamfetch/internal/history"
	"steamfetch/internal/queue"
)

func openStore(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func terminalJob(id string, state queue.State) queue.Job {
	now := time.Now().UTC()
	finished := now.Add(time.Minute)
	return queue.Job{
		ID:           id,
		AppID:        440,
		Title:        "Team Fortress 2",
		AuthMode:     queue.AuthAnonymous,
		TargetDir:    "/downloads/steamapps/common/app_440",
		State:        state,
		AttemptCount: 1,
		CreatedAt:    now,
		FinishedAt:   &finished,
	}
}

func TestRecordAndList(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	job := terminalJob("job-1", queue.StateCompleted)
	job.ErrorLog = []queue.FailureRecord{{
		Attempt:    1,
		Reason:     faults.RateLimited,
		Message:    "scripted",
		OccurredAt: time.Now().UTC(),
	}}
	if err := store.Record(ctx, job); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entries, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.JobID != "job-1" || entry.AppID != 440 || entry.FinalState != queue.StateCompleted {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if len(entry.ErrorLog) != 1 || entry.ErrorLog[0].Reason != faults.RateLimited {
		t.Fatalf("error log did not round-trip: %+v", entry.ErrorLog)
	}
	if entry.FinishedAt == nil {
		t.Fatal("expected finished_at to round-trip")
	}
}

func TestRecordRejectsNonTerminal(t *testing.T) {
	store := openStore(t)
	job := terminalJob("job-1", queue.StateDownloading)
	if err := store.Record(context.Background(), job); err == nil {
		t.Fatal("expected error for non-terminal job")
	}
}

func TestRecordIsIdempotentPerJob(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	job := terminalJob("job-1", queue.StateFailed)
	if err := store.Record(ctx, job); err != nil {
		t.Fatalf("first Record: %v", err)
	}
	if err := store.Record(ctx, job); err != nil {
		t.Fatalf("second Record: %v", err)
	}

	entries, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected a single record, got %d", len(entries))
	}
}

func TestListLimitAndOrder(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	for i, id := range []string{"job-1", "job-2", "job-3"} {
		job := terminalJob(id, queue.StateCompleted)
		job.AppID = int64(100 + i)
		if err := store.Record(ctx, job); err != nil {
			t.Fatalf("Record(%s): %v", id, err)
		}
	}

	entries, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].JobID != "job-3" {
		t.Fatalf("expected newest first, got %s", entries[0].JobID)
	}
}

func TestClearByState(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if err := store.Record(ctx, terminalJob("job-ok", queue.StateCompleted)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := store.Record(ctx, terminalJob("job-bad", queue.StateFailed)); err != nil {
		t.Fatalf("Record: %v", err)
	}

	deleted, err := store.Clear(ctx, queue.StateFailed)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted row, got %d", deleted)
	}

	entries, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].JobID != "job-ok" {
		t.Fatalf("unexpected remaining entries %+v", entries)
	}

	deleted, err = store.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear all: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted row, got %d", deleted)
	}
}

func TestOpenIsReentrant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	first, err := history.Open(path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	second, err := history.Open(path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	_ = second.Close()
}
