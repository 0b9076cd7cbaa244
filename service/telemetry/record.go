package telemetry

import "time"

// Event names one stage of the preview-approve-patch pipeline. Events are
// recorded first-write-wins so stage latencies stay stable under races.
type Event string

const (
	EventPreviewApplied    Event = "preview_applied"
	EventGenerationStarted Event = "generation_started"
	EventPatchReady        Event = "patch_ready"
	EventPatchFailed       Event = "patch_failed"
	EventUserAccept        Event = "user_accept"
	EventUserReject        Event = "user_reject"
	EventAutoCancel        Event = "auto_cancel"
	EventWriteStarted      Event = "write_started"
	EventWriteSucceeded    Event = "write_succeeded"
	EventWriteFailed       Event = "write_failed"
)

// Outcome is the terminal branch of a session. Exactly one outcome is
// emitted per approval id.
type Outcome string

const (
	OutcomeApplied     Outcome = "applied"
	OutcomeRejected    Outcome = "rejected"
	OutcomeCancelled   Outcome = "cancelled"
	OutcomeWriteFailed Outcome = "write_failed"
)

// Record is the per-session event log. It lives only until the terminal
// summary is emitted.
type Record struct {
	ID        string              `json:"id"`
	ContextID string              `json:"contextId"`
	TargetRef string              `json:"targetRef"`
	CreatedAt time.Time           `json:"createdAt"`
	Events    map[Event]time.Time `json:"events"`
}

// Summary is the single record emitted when a session resolves. Stage
// latencies are derived from the event log.
type Summary struct {
	ID        string              `json:"id"`
	ContextID string              `json:"contextId"`
	TargetRef string              `json:"targetRef"`
	Outcome   Outcome             `json:"outcome"`
	CreatedAt time.Time           `json:"createdAt"`
	EndedAt   time.Time           `json:"endedAt"`
	Events    map[Event]time.Time `json:"events"`

	// Derived durations; zero when the corresponding stage never ran.
	GenerationLatency time.Duration `json:"generationLatency,omitempty"`
	DecisionLatency   time.Duration `json:"decisionLatency,omitempty"`
	WriteLatency      time.Duration `json:"writeLatency,omitempty"`
}
