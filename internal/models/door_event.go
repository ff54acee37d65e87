package models

import "time"

// Door event types.
const (
	EventTransition = "TRANSITION"
	EventCommand    = "COMMAND"
	EventFault      = "FAULT"
	EventRecovery   = "RECOVERY"
	EventOverride   = "OVERRIDE"
	EventRestore    = "RESTORE"
	EventError      = "ERROR"
)

// DoorEvent is a single event log entry.
type DoorEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Metadata    any       `json:"metadata,omitempty"`
}
