package ndjson

import "time"

// EventType is the stable wire name of one NDJSON event.
type EventType string

const (
	EventSessionStarted      EventType = "session.started"
	EventSessionRestored     EventType = "session.restored"
	EventSessionCheckpointed EventType = "session.checkpointed"

	EventPlanCreated      EventType = "plan.created"
	EventPlanStepStarted  EventType = "plan.step_started"
	EventPlanStepFinished EventType = "plan.step_finished"

	EventToolRequested EventType = "tool.requested"
	EventToolApproved  EventType = "tool.approved"
	EventToolRejected  EventType = "tool.rejected"
	EventToolResult    EventType = "tool.result"

	EventDiffPreview        EventType = "diff.preview"
	EventDiffApplied        EventType = "diff.applied"
	EventDiffPartialApplied EventType = "diff.partial_applied"
	EventDiffRollback       EventType = "diff.rollback"

	EventErrorUser   EventType = "error.user"
	EventErrorSystem EventType = "error.system"
	EventErrorTool   EventType = "error.tool"

	EventMetricsTick EventType = "metrics.tick"
	EventUserCancel  EventType = "user.cancel"
)

// Envelope carries the fields every event shares. Extra is the
// event-specific payload, merged into the same JSON object at encode time
// so a consumer parsing line-by-line sees one flat object, not a nested
// "extra" key.
type Envelope struct {
	Event         EventType `json:"event"`
	Timestamp     time.Time `json:"ts"`
	SessionID     string    `json:"session_id"`
	RequestID     string    `json:"request_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Extra         any       `json:"-"`
}

// SessionFields is the extra payload for session.started / .restored /
// .checkpointed.
type SessionFields struct {
	CheckpointID string         `json:"checkpoint_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// PlanCreatedFields is the extra payload for plan.created.
type PlanCreatedFields struct {
	Steps      []string `json:"steps"`
	Intent     string   `json:"intent"`
	Confidence float64  `json:"confidence"`
}

// PlanStepFields is the extra payload for plan.step_started /
// plan.step_finished.
type PlanStepFields struct {
	StepIndex int    `json:"step_index"`
	StepName  string `json:"step_name"`
	Result    any    `json:"result,omitempty"`
}

// ToolFields is the extra payload for tool.requested / .approved /
// .rejected / .result.
type ToolFields struct {
	ToolName        string `json:"tool_name"`
	ToolArgs        any    `json:"tool_args"`
	Result          any    `json:"result,omitempty"`
	Error           string `json:"error,omitempty"`
	RequiresConsent bool   `json:"requires_consent"`
}

// DiffFields is the extra payload for diff.preview / .applied /
// .partial_applied / .rollback.
type DiffFields struct {
	FilePath      string   `json:"file_path"`
	DiffContent   string   `json:"diff_content,omitempty"`
	HunksApplied  []string `json:"hunks_applied,omitempty"`
	CheckpointID  string   `json:"checkpoint_id,omitempty"`
}

// ErrorFields is the extra payload for error.user / .system / .tool.
type ErrorFields struct {
	ErrorType    string         `json:"error_type"`
	ErrorMessage string         `json:"error_message"`
	ErrorDetails map[string]any `json:"error_details,omitempty"`
	Recoverable  bool           `json:"recoverable"`
}

// MetricsFields is the extra payload for metrics.tick.
type MetricsFields struct {
	Metrics map[string]any `json:"metrics"`
}
