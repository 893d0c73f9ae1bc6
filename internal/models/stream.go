package models

// Event types carried on a job's progress feed.
const (
	EventProgress       = "progress"
	EventClauses        = "clauses"
	EventRationaleDelta = "rationale_delta"
	EventFinal          = "final"
	EventError          = "error"
)

// StageEnd is the sentinel stage closing every stream. StageError marks
// failure frames; the failing pipeline stage travels in the frame data.
const (
	StageEnd   = "end"
	StageError = "error"
)

// StreamEvent is one frame of the live progress feed. Events are ephemeral:
// they are not persisted and late subscribers never see earlier frames.
type StreamEvent struct {
	Stage string `json:"stage"`
	Type  string `json:"type,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// Sentinel returns the terminal frame emitted after a job's last event.
func Sentinel() StreamEvent {
	return StreamEvent{Stage: StageEnd}
}
