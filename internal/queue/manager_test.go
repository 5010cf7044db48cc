package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"steamfetch/internal/faults"
	"steamfetch/internal/queue"
	"steamfetch/internal/steamcmd"
)

type stubHandle struct {
	term     chan struct{}
	termOnce sync.Once
	done     chan struct{}
	err      error
	inputs   chan string
}

func newStubHandle() *stubHandle {
	return &stubHandle{
		term:   make(chan struct{}),
		done:   make(chan struct{}),
		inputs: make(chan string, 4),
	}
}

func (h *stubHandle) SubmitInput(line string) error {
	h.inputs <- line
	return nil
}

func (h *stubHandle) Terminate() {
	h.termOnce.Do(func() { close(h.term) })
}

func (h *stubHandle) Wait() error {
	<-h.done
	return h.err
}

// attemptScript drives one simulated SteamCMD run. It may block on h.term
// (termination) or h.inputs (guard codes) to model interactive behaviour.
type attemptScript func(h *stubHandle, emit func(steamcmd.Event)) error

type stubDriver struct {
	mu      sync.Mutex
	scripts []attemptScript
	calls   int
	started chan steamcmd.Request
}

func newStubDriver(scripts ...attemptScript) *stubDriver {
	return &stubDriver{scripts: scripts, started: make(chan steamcmd.Request, 16)}
}

func (d *stubDriver) Start(_ context.Context, req steamcmd.Request, emit func(steamcmd.Event)) (queue.Handle, error) {
	d.mu.Lock()
	idx := d.calls
	d.calls++
	script := d.scripts[len(d.scripts)-1]
	if idx < len(d.scripts) {
		script = d.scripts[idx]
	}
	d.mu.Unlock()

	d.started <- req
	h := newStubHandle()
	go func() {
		h.err = script(h, emit)
		close(h.done)
	}()
	return h, nil
}

func (d *stubDriver) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func succeedScript(appID int64) attemptScript {
	return func(_ *stubHandle, emit func(steamcmd.Event)) error {
		emit(steamcmd.Event{
			Kind:            steamcmd.EventProgress,
			Phase:           steamcmd.PhaseDownloading,
			Percent:         10.0,
			BytesDownloaded: 1000,
			BytesTotal:      10000,
			Overall:         0.275,
		})
		emit(steamcmd.Event{Kind: steamcmd.EventSuccess, Percent: 100, Overall: 1})
		return nil
	}
}

func failScript(reason faults.Reason) attemptScript {
	return func(_ *stubHandle, emit func(steamcmd.Event)) error {
		return faults.New(reason, "steamcmd", "scripted failure")
	}
}

func testSettings() queue.Settings {
	return queue.Settings{
		DownloadRoot: "/tmp/steamfetch-test",
		Platform:     "windows",
		MaxPending:   25,
		MaxAttempts:  3,
		BackoffBase:  10 * time.Millisecond,
		BackoffCap:   40 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
	}
}

func startManager(t *testing.T, settings queue.Settings, driver queue.Driver) *queue.Manager {
	t.Helper()
	manager, err := queue.NewManager(settings, driver, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(manager.Stop)
	return manager
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSnapshotKeepsSubmissionOrder(t *testing.T) {
	manager, err := queue.NewManager(testSettings(), newStubDriver(succeedScript(0)), nil, nil, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	ids := []string{"440", "570", "730"}
	for _, id := range ids {
		if _, err := manager.Enqueue(queue.EnqueueRequest{Identifier: id}); err != nil {
			t.Fatalf("Enqueue(%s): %v", id, err)
		}
	}

	snapshot := manager.Snapshot()
	if len(snapshot) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(snapshot))
	}
	for i, want := range []int64{440, 570, 730} {
		if snapshot[i].AppID != want {
			t.Fatalf("position %d: expected app %d, got %d", i, want, snapshot[i].AppID)
		}
		if snapshot[i].State != queue.StateQueued {
			t.Fatalf("expected queued state, got %s", snapshot[i].State)
		}
	}
}

func TestEnqueueRejectsInvalidIdentifier(t *testing.T) {
	manager, err := queue.NewManager(testSettings(), newStubDriver(succeedScript(0)), nil, nil, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	_, err = manager.Enqueue(queue.EnqueueRequest{Identifier: "not-a-game"})
	reason, ok := faults.ReasonOf(err)
	if !ok || reason != faults.InvalidIdentifier {
		t.Fatalf("expected invalid_identifier, got %v", err)
	}
}

func TestEnqueueRejectsWhenFull(t *testing.T) {
	settings := testSettings()
	settings.MaxPending = 1
	manager, err := queue.NewManager(settings, newStubDriver(succeedScript(0)), nil, nil, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := manager.Enqueue(queue.EnqueueRequest{Identifier: "440"}); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	_, err = manager.Enqueue(queue.EnqueueRequest{Identifier: "570"})
	reason, ok := faults.ReasonOf(err)
	if !ok || reason != faults.QueueFull {
		t.Fatalf("expected queue_full, got %v", err)
	}
}

func TestEnqueueCredentialedRequiresUsername(t *testing.T) {
	manager, err := queue.NewManager(testSettings(), newStubDriver(succeedScript(0)), nil, nil, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	_, err = manager.Enqueue(queue.EnqueueRequest{Identifier: "440", AuthMode: queue.AuthCredentialed})
	reason, ok := faults.ReasonOf(err)
	if !ok || reason != faults.AuthRequired {
		t.Fatalf("expected auth_required, got %v", err)
	}
}

func TestTwoJobsRunFIFOAndAdvance(t *testing.T) {
	driver := newStubDriver(succeedScript(440), succeedScript(570))
	manager := startManager(t, testSettings(), driver)

	first, err := manager.Enqueue(queue.EnqueueRequest{Identifier: "440"})
	if err != nil {
		t.Fatalf("enqueue 440: %v", err)
	}
	second, err := manager.Enqueue(queue.EnqueueRequest{Identifier: "570"})
	if err != nil {
		t.Fatalf("enqueue 570: %v", err)
	}

	firstReq := <-driver.started
	if firstReq.AppID != 440 {
		t.Fatalf("expected 440 dispatched first, got %d", firstReq.AppID)
	}
	secondReq := <-driver.started
	if secondReq.AppID != 570 {
		t.Fatalf("expected 570 dispatched second, got %d", secondReq.AppID)
	}

	waitFor(t, "both jobs completed", func() bool {
		a, _ := manager.Get(first.ID)
		b, _ := manager.Get(second.ID)
		return a.State == queue.StateCompleted && b.State == queue.StateCompleted
	})

	done, _ := manager.Get(first.ID)
	if done.Progress.Percent != 100 {
		t.Fatalf("expected 100%% on completion, got %v", done.Progress.Percent)
	}
	if done.AttemptCount != 1 {
		t.Fatalf("expected one attempt, got %d", done.AttemptCount)
	}
}

func TestAtMostOneJobActive(t *testing.T) {
	release := make(chan struct{})
	blocking := func(h *stubHandle, emit func(steamcmd.Event)) error {
		emit(steamcmd.Event{Kind: steamcmd.EventProgress, Phase: steamcmd.PhaseDownloading, Percent: 1})
		select {
		case <-release:
		case <-h.term:
		}
		return nil
	}
	driver := newStubDriver(blocking)
	manager := startManager(t, testSettings(), driver)
	defer close(release)

	for _, id := range []string{"440", "570", "730", "240"} {
		if _, err := manager.Enqueue(queue.EnqueueRequest{Identifier: id}); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}

	waitFor(t, "first job active", func() bool {
		for _, job := range manager.Snapshot() {
			if job.State.Active() {
				return true
			}
		}
		return false
	})

	for i := 0; i < 50; i++ {
		active := 0
		for _, job := range manager.Snapshot() {
			if job.State.Active() {
				active++
			}
		}
		if active > 1 {
			t.Fatalf("observed %d active jobs", active)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestLoginFailureIsTerminalWithoutRetry(t *testing.T) {
	failing := func(_ *stubHandle, emit func(steamcmd.Event)) error {
		emit(steamcmd.Event{
			Kind:    steamcmd.EventFailure,
			Reason:  faults.LoginFailure,
			Message: "ERROR! Login Failure: Invalid Password",
		})
		return faults.New(faults.ProcessCrashed, "steamcmd exited", "exit status 5")
	}
	driver := newStubDriver(failing, succeedScript(570))
	manager := startManager(t, testSettings(), driver)

	first, err := manager.Enqueue(queue.EnqueueRequest{Identifier: "440"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	second, err := manager.Enqueue(queue.EnqueueRequest{Identifier: "570"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	waitFor(t, "first job failed", func() bool {
		job, _ := manager.Get(first.ID)
		return job.State == queue.StateFailed
	})

	job, _ := manager.Get(first.ID)
	if job.AttemptCount != 1 {
		t.Fatalf("login failure must not retry; attempts=%d", job.AttemptCount)
	}
	last, ok := job.LastFailure()
	if !ok || last.Reason != faults.LoginFailure {
		t.Fatalf("expected login_failure in error log, got %+v", job.ErrorLog)
	}

	waitFor(t, "queue advanced to second job", func() bool {
		job, _ := manager.Get(second.ID)
		return job.State == queue.StateCompleted
	})
}

func TestRetryableFailureStopsAfterMaxAttempts(t *testing.T) {
	settings := testSettings()
	settings.MaxAttempts = 3
	driver := newStubDriver(failScript(faults.Timeout))
	manager := startManager(t, settings, driver)

	job, err := manager.Enqueue(queue.EnqueueRequest{Identifier: "440"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	waitFor(t, "job failed terminally", func() bool {
		current, _ := manager.Get(job.ID)
		return current.State == queue.StateFailed
	})

	final, _ := manager.Get(job.ID)
	if final.AttemptCount != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", final.AttemptCount)
	}
	if len(final.ErrorLog) != 3 {
		t.Fatalf("expected 3 error log entries, got %d", len(final.ErrorLog))
	}
	if driver.callCount() != 3 {
		t.Fatalf("expected 3 driver starts, got %d", driver.callCount())
	}
	if final.Progress.BytesDownloaded != 0 {
		t.Fatalf("expected progress reset at attempt start, got %d bytes", final.Progress.BytesDownloaded)
	}
}

func TestRetryGoesToFrontBehindBackoffGate(t *testing.T) {
	settings := testSettings()
	settings.MaxAttempts = 2
	settings.BackoffBase = 50 * time.Millisecond
	driver := newStubDriver(failScript(faults.RateLimited), succeedScript(440), succeedScript(570))
	manager := startManager(t, settings, driver)

	first, err := manager.Enqueue(queue.EnqueueRequest{Identifier: "440"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := manager.Enqueue(queue.EnqueueRequest{Identifier: "570"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// Attempt 1 fails; the retry must be dispatched before 570 even though
	// 570 arrived while 440 was running.
	reqs := make([]int64, 0, 3)
	for i := 0; i < 3; i++ {
		req := <-driver.started
		reqs = append(reqs, req.AppID)
	}
	want := []int64{440, 440, 570}
	for i := range want {
		if reqs[i] != want[i] {
			t.Fatalf("dispatch order %v, want %v", reqs, want)
		}
	}

	waitFor(t, "retried job completed", func() bool {
		job, _ := manager.Get(first.ID)
		return job.State == queue.StateCompleted
	})
	job, _ := manager.Get(first.ID)
	if job.AttemptCount != 2 {
		t.Fatalf("expected 2 attempts, got %d", job.AttemptCount)
	}
	if !job.ErrorLog[0].Reason.Retryable() {
		t.Fatalf("expected retryable reason in log, got %s", job.ErrorLog[0].Reason)
	}
}

func TestCancelQueuedJobRemovesImmediately(t *testing.T) {
	manager, err := queue.NewManager(testSettings(), newStubDriver(succeedScript(0)), nil, nil, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	job, err := manager.Enqueue(queue.EnqueueRequest{Identifier: "440"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := manager.Cancel(job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if snapshot := manager.Snapshot(); len(snapshot) != 0 {
		t.Fatalf("expected empty snapshot after cancel, got %d jobs", len(snapshot))
	}
	if err := manager.Cancel(job.ID); err == nil {
		t.Fatal("expected not_found for second cancel")
	}
}

func TestCancelActiveJobFreesSlot(t *testing.T) {
	blocking := func(h *stubHandle, emit func(steamcmd.Event)) error {
		emit(steamcmd.Event{Kind: steamcmd.EventProgress, Phase: steamcmd.PhaseDownloading, Percent: 5})
		<-h.term
		return faults.New(faults.Cancelled, "steamcmd", "terminated on request")
	}
	driver := newStubDriver(blocking, succeedScript(570))
	manager := startManager(t, testSettings(), driver)

	first, err := manager.Enqueue(queue.EnqueueRequest{Identifier: "440"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	second, err := manager.Enqueue(queue.EnqueueRequest{Identifier: "570"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	waitFor(t, "first job downloading", func() bool {
		job, _ := manager.Get(first.ID)
		return job.State == queue.StateDownloading
	})

	if err := manager.Cancel(first.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	// Intent is visible immediately.
	job, _ := manager.Get(first.ID)
	if !job.CancelRequested {
		t.Fatal("expected cancel_requested flag set")
	}

	waitFor(t, "first job cancelled", func() bool {
		job, _ := manager.Get(first.ID)
		return job.State == queue.StateCancelled
	})
	waitFor(t, "second job completed", func() bool {
		job, _ := manager.Get(second.ID)
		return job.State == queue.StateCompleted
	})
}

func TestGuardCodeRoundTrip(t *testing.T) {
	interactive := func(h *stubHandle, emit func(steamcmd.Event)) error {
		emit(steamcmd.Event{Kind: steamcmd.EventAuthPrompt, Prompt: steamcmd.PromptGuardCode})
		select {
		case <-h.inputs:
		case <-h.term:
			return faults.New(faults.Cancelled, "steamcmd", "terminated")
		}
		emit(steamcmd.Event{Kind: steamcmd.EventSuccess})
		return nil
	}
	driver := newStubDriver(interactive)
	manager := startManager(t, testSettings(), driver)

	job, err := manager.Enqueue(queue.EnqueueRequest{
		Identifier:  "440",
		AuthMode:    queue.AuthCredentialed,
		Credentials: &steamcmd.Credentials{Username: "someone", Password: "secret"},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	waitFor(t, "guard code prompt surfaced", func() bool {
		current, _ := manager.Get(job.ID)
		return current.AwaitingGuardCode
	})

	if err := manager.SubmitGuardCode(job.ID, "ABC12"); err != nil {
		t.Fatalf("SubmitGuardCode: %v", err)
	}

	waitFor(t, "job completed after guard code", func() bool {
		current, _ := manager.Get(job.ID)
		return current.State == queue.StateCompleted
	})
	current, _ := manager.Get(job.ID)
	if current.AwaitingGuardCode {
		t.Fatal("awaiting_guard_code should clear after submission")
	}
}

func TestSnapshotNeverExposesCredentials(t *testing.T) {
	driver := newStubDriver(succeedScript(440))
	manager := startManager(t, testSettings(), driver)

	job, err := manager.Enqueue(queue.EnqueueRequest{
		Identifier:  "440",
		AuthMode:    queue.AuthCredentialed,
		Credentials: &steamcmd.Credentials{Username: "someone", Password: "hunter2-secret"},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	req := <-driver.started
	if req.Credentials == nil || req.Credentials.Password != "hunter2-secret" {
		t.Fatal("driver request should carry credentials")
	}

	waitFor(t, "job completed", func() bool {
		current, _ := manager.Get(job.ID)
		return current.State == queue.StateCompleted
	})
	for _, record := range mustGet(t, manager, job.ID).ErrorLog {
		if record.Message == "hunter2-secret" {
			t.Fatal("credential leaked into error log")
		}
	}
}

func mustGet(t *testing.T, manager *queue.Manager, id string) queue.Job {
	t.Helper()
	job, ok := manager.Get(id)
	if !ok {
		t.Fatalf("job %s not found", id)
	}
	return job
}

func TestPreflightFailureFailsFast(t *testing.T) {
	driver := newStubDriver(succeedScript(440))
	manager, err := queue.NewManager(testSettings(), driver, preflightFunc(func(context.Context) error {
		return faults.New(faults.DependencyMissing, "preflight", "steamcmd not installed")
	}), nil, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(manager.Stop)

	job, err := manager.Enqueue(queue.EnqueueRequest{Identifier: "440"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	waitFor(t, "job failed fast", func() bool {
		current, _ := manager.Get(job.ID)
		return current.State == queue.StateFailed
	})
	if driver.callCount() != 0 {
		t.Fatalf("driver should not start when preflight fails, started %d times", driver.callCount())
	}
	failed := mustGet(t, manager, job.ID)
	last, ok := failed.LastFailure()
	if !ok || last.Reason != faults.DependencyMissing {
		t.Fatalf("expected dependency_missing, got %+v", last)
	}
}

type preflightFunc func(ctx context.Context) error

func (f preflightFunc) Check(ctx context.Context) error { return f(ctx) }
