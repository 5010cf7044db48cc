package logging

// Standardized attribute keys shared across components.
const (
	FieldComponent = "component"
	FieldJobID     = "job_id"
	FieldAppID     = "app_id"
	FieldState     = "state"
	FieldAttempt   = "attempt"
	FieldReason    = "reason"
	FieldEventType = "event_type"
	FieldErrorHint = "error_hint"
)
