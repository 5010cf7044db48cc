package steamcmd_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"steamfetch/internal/faults"
	"steamfetch/internal/steamcmd"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "steamcmd.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

type eventSink struct {
	mu     sync.Mutex
	events []steamcmd.Event
}

func (s *eventSink) add(event steamcmd.Event) {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
}

func (s *eventSink) all() []steamcmd.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]steamcmd.Event(nil), s.events...)
}

func TestStartStreamsEventsAndExitsClean(t *testing.T) {
	script := writeScript(t, `
echo "Update state (0x61) downloading, progress: 10.0 (1000 / 10000)"
echo "Success! App '440' fully installed."
`)
	client, err := steamcmd.New(script, 30, 1, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	sink := &eventSink{}
	handle, err := client.Start(context.Background(), steamcmd.Request{
		AppID:      440,
		InstallDir: filepath.Join(t.TempDir(), "app_440"),
		Anonymous:  true,
	}, sink.add)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := handle.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	events := sink.all()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(events), events)
	}
	if events[0].Kind != steamcmd.EventProgress || events[0].Percent != 10.0 {
		t.Fatalf("unexpected first event %+v", events[0])
	}
	if events[1].Kind != steamcmd.EventSuccess {
		t.Fatalf("unexpected second event %+v", events[1])
	}
}

func TestWaitClassifiesNonZeroExit(t *testing.T) {
	script := writeScript(t, `
echo "ERROR! Login Failure: Invalid Password"
exit 5
`)
	client, err := steamcmd.New(script, 30, 1, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	sink := &eventSink{}
	handle, err := client.Start(context.Background(), steamcmd.Request{
		AppID:      440,
		InstallDir: filepath.Join(t.TempDir(), "app_440"),
		Anonymous:  true,
	}, sink.add)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	err = handle.Wait()
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	reason, ok := faults.ReasonOf(err)
	if !ok || reason != faults.ProcessCrashed {
		t.Fatalf("expected process_crashed classification, got %v (ok=%v)", reason, ok)
	}

	events := sink.all()
	if len(events) != 1 || events[0].Reason != faults.LoginFailure {
		t.Fatalf("expected login failure event, got %+v", events)
	}
}

func TestTimeoutTerminatesProcess(t *testing.T) {
	script := writeScript(t, `
sleep 30
`)
	client, err := steamcmd.New(script, 1, 1, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	handle, err := client.Start(context.Background(), steamcmd.Request{
		AppID:      440,
		InstallDir: filepath.Join(t.TempDir(), "app_440"),
		Anonymous:  true,
	}, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	start := time.Now()
	err = handle.Wait()
	if err == nil {
		t.Fatal("expected timeout error")
	}
	reason, _ := faults.ReasonOf(err)
	if reason != faults.Timeout {
		t.Fatalf("expected timeout classification, got %v", reason)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("termination took too long: %v", elapsed)
	}
}

func TestTerminateReportsCancelled(t *testing.T) {
	script := writeScript(t, `
sleep 30
`)
	client, err := steamcmd.New(script, 60, 1, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	handle, err := client.Start(context.Background(), steamcmd.Request{
		AppID:      570,
		InstallDir: filepath.Join(t.TempDir(), "app_570"),
		Anonymous:  true,
	}, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		handle.Terminate()
	}()

	err = handle.Wait()
	reason, _ := faults.ReasonOf(err)
	if reason != faults.Cancelled {
		t.Fatalf("expected cancelled classification, got %v", err)
	}
}

func TestStartMissingScriptFailsFast(t *testing.T) {
	client, err := steamcmd.New(filepath.Join(t.TempDir(), "nope.sh"), 30, 1, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = client.Start(context.Background(), steamcmd.Request{
		AppID:      440,
		InstallDir: filepath.Join(t.TempDir(), "app_440"),
		Anonymous:  true,
	}, nil)
	if err == nil {
		t.Fatal("expected start failure for missing script")
	}
	reason, ok := faults.ReasonOf(err)
	if !ok || reason != faults.DependencyMissing {
		t.Fatalf("expected dependency_missing classification, got %v (ok=%v)", reason, ok)
	}
}
