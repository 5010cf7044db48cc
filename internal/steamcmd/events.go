package steamcmd

import "steamfetch/internal/faults"

// EventKind identifies what a parsed output line means.
type EventKind string

const (
	EventProgress   EventKind = "progress"
	EventSuccess    EventKind = "success"
	EventFailure    EventKind = "failure"
	EventAuthPrompt EventKind = "auth_prompt"
)

// Phase is the install stage reported by SteamCMD update-state lines.
type Phase string

const (
	PhasePreallocating Phase = "preallocating"
	PhaseDownloading   Phase = "downloading"
	PhaseVerifying     Phase = "verifying"
	PhaseCommitting    Phase = "committing"
)

// PromptKind distinguishes the interactive prompts SteamCMD can raise
// mid-run when cached credentials are missing or two-factor auth is on.
type PromptKind string

const (
	PromptGuardCode PromptKind = "guard_code"
	PromptPassword  PromptKind = "password"
)

// Event is the structured form of one recognized output line. Kind selects
// which fields are meaningful; unrecognized lines produce no Event at all.
type Event struct {
	Kind EventKind

	// Progress fields. Percent is the raw per-phase figure and may regress
	// across phase boundaries; Overall is a monotonic 0..1 fraction across
	// the whole install. BytesTotal carries forward once reported;
	// ETASeconds is 0 when the line carried no estimate.
	Phase           Phase
	Percent         float64
	BytesDownloaded int64
	BytesTotal      int64
	ETASeconds      int64
	Overall         float64

	// Failure fields.
	Reason  faults.Reason
	Message string

	// Auth prompt fields.
	Prompt PromptKind
}
