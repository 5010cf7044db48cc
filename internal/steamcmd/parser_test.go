package steamcmd_test

import (
	"testing"

	"steamfetch/internal/faults"
	"steamfetch/internal/steamcmd"
)

func TestParseUpdateStateLine(t *testing.T) {
	parser := steamcmd.NewParser()
	line := "Update state (0x61) downloading, progress: 10.0 (1000 / 10000 bytes)"

	event, ok := parser.ParseLine(line)
	if !ok {
		t.Fatalf("expected event for %q", line)
	}
	if event.Kind != steamcmd.EventProgress {
		t.Fatalf("expected progress event, got %s", event.Kind)
	}
	if event.Phase != steamcmd.PhaseDownloading {
		t.Fatalf("expected downloading phase, got %s", event.Phase)
	}
	if event.Percent != 10.0 {
		t.Fatalf("expected percent 10.0, got %v", event.Percent)
	}
	if event.BytesDownloaded != 1000 || event.BytesTotal != 10000 {
		t.Fatalf("unexpected byte counts %d/%d", event.BytesDownloaded, event.BytesTotal)
	}
}

func TestParseSuccessLine(t *testing.T) {
	parser := steamcmd.NewParser()
	event, ok := parser.ParseLine("Success! App '440' fully installed.")
	if !ok {
		t.Fatal("expected event for success line")
	}
	if event.Kind != steamcmd.EventSuccess {
		t.Fatalf("expected success event, got %s", event.Kind)
	}
	if event.Overall != 1 {
		t.Fatalf("expected overall 1, got %v", event.Overall)
	}
}

func TestParseErrorTaxonomy(t *testing.T) {
	tests := []struct {
		line   string
		reason faults.Reason
	}{
		{"ERROR! Login Failure: Invalid Password", faults.LoginFailure},
		{"FAILED login with result code 84 (Rate Limit Exceeded)", faults.RateLimited},
		{"ERROR! Not enough free disk space to install app '440'", faults.DiskFull},
		{"ERROR! Failed to install app '99999999' (No subscription)", faults.InvalidIdentifier},
		{"ERROR! Download of app '440' timed out", faults.Timeout},
		{"ERROR! Something nobody has seen before", faults.UnknownFailure},
	}
	for _, tc := range tests {
		parser := steamcmd.NewParser()
		event, ok := parser.ParseLine(tc.line)
		if !ok {
			t.Fatalf("expected event for %q", tc.line)
		}
		if event.Kind != steamcmd.EventFailure {
			t.Fatalf("expected failure event for %q, got %s", tc.line, event.Kind)
		}
		if event.Reason != tc.reason {
			t.Fatalf("expected reason %s for %q, got %s", tc.reason, tc.line, event.Reason)
		}
	}
}

func TestParseAuthPrompts(t *testing.T) {
	parser := steamcmd.NewParser()

	event, ok := parser.ParseLine("Steam Guard code:")
	if !ok || event.Kind != steamcmd.EventAuthPrompt || event.Prompt != steamcmd.PromptGuardCode {
		t.Fatalf("expected guard code prompt, got %+v ok=%v", event, ok)
	}

	event, ok = parser.ParseLine("Cached credentials not found.")
	if !ok || event.Prompt != steamcmd.PromptPassword {
		t.Fatalf("expected password prompt, got %+v ok=%v", event, ok)
	}
}

func TestParseUnrecognizedLineNoEvent(t *testing.T) {
	parser := steamcmd.NewParser()
	for _, line := range []string{
		"Redirecting stderr to '/root/Steam/logs/stderr.txt'",
		"Loading Steam API...OK",
		"",
		"   ",
	} {
		if _, ok := parser.ParseLine(line); ok {
			t.Fatalf("expected no event for %q", line)
		}
	}
}

func TestParseIsIdempotentPerLine(t *testing.T) {
	parser := steamcmd.NewParser()
	line := "Update state (0x61) downloading, progress: 42.5 (4250 / 10000)"

	first, ok := parser.ParseLine(line)
	if !ok {
		t.Fatal("expected event")
	}
	second, ok := parser.ParseLine(line)
	if !ok {
		t.Fatal("expected event on repeat")
	}
	if first != second {
		t.Fatalf("repeated line produced different events: %+v vs %+v", first, second)
	}
}

func TestParseCarriesForwardBytesTotal(t *testing.T) {
	parser := steamcmd.NewParser()
	if _, ok := parser.ParseLine("Update state (0x61) downloading, progress: 10.0 (1000 / 10000)"); !ok {
		t.Fatal("expected event")
	}
	event, ok := parser.ParseLine("progress: 55.0 %")
	if !ok {
		t.Fatal("expected event for bare percent line")
	}
	if event.BytesTotal != 10000 {
		t.Fatalf("expected carried total 10000, got %d", event.BytesTotal)
	}
}

func TestOverallFractionNeverRegresses(t *testing.T) {
	parser := steamcmd.NewParser()

	download, _ := parser.ParseLine("Update state (0x61) downloading, progress: 90.0 (9000 / 10000)")
	verify, _ := parser.ParseLine("Update state (0x81) verifying update, progress: 10.0 (1000 / 10000)")

	if verify.Percent != 10.0 {
		t.Fatalf("raw percent must surface unclamped, got %v", verify.Percent)
	}
	if verify.Phase != steamcmd.PhaseVerifying {
		t.Fatalf("expected verifying phase, got %s", verify.Phase)
	}
	if verify.Overall < download.Overall {
		t.Fatalf("overall regressed: %v -> %v", download.Overall, verify.Overall)
	}
}

func TestParseETAVariants(t *testing.T) {
	tests := []struct {
		line string
		want int64
	}{
		{"Update state (0x61) downloading, progress: 10.0 (1000 / 10000) ETA: 00:01:30", 90},
		{"Update state (0x61) downloading, progress: 10.0 (1000 / 10000) ETA 2m 5s", 125},
		{"Update state (0x61) downloading, progress: 10.0 (1000 / 10000) ETA 45s", 45},
	}
	for _, tc := range tests {
		parser := steamcmd.NewParser()
		event, ok := parser.ParseLine(tc.line)
		if !ok {
			t.Fatalf("expected event for %q", tc.line)
		}
		if event.ETASeconds != tc.want {
			t.Fatalf("expected eta %d for %q, got %d", tc.want, tc.line, event.ETASeconds)
		}
	}
}
