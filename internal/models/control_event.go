package models

import "time"

// Control event types recorded in the journal.
const (
	EventStart         = "START"
	EventStop          = "STOP"
	EventDutyChange    = "DUTY_CHANGE"
	EventDegraded      = "DEGRADED"
	EventRecovered     = "RECOVERED"
	EventPeersChanged  = "PEERS_CHANGED"
	EventActuatorError = "ACTUATOR_ERROR"
)

// ControlEvent is a single journal entry.
type ControlEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`        // START | STOP | DUTY_CHANGE | DEGRADED | RECOVERED | PEERS_CHANGED | ACTUATOR_ERROR
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}
