package models

import "time"

// Phase is the control loop's position in its cycle.
type Phase string

const (
	PhaseStarting    Phase = "starting"
	PhasePolling     Phase = "polling"
	PhaseAggregating Phase = "aggregating"
	PhaseActuating   Phase = "actuating"
	PhaseSleeping    Phase = "sleeping"
	PhaseStopped     Phase = "stopped"
)

// ControllerState is the snapshot the control loop publishes after each cycle.
// A published value is never modified again; readers may share its maps and slices.
type ControllerState struct {
	Mode              string               `json:"mode"`
	Phase             Phase                `json:"phase"`
	Running           bool                 `json:"running"`
	Degraded          bool                 `json:"degraded"`
	DegradedReason    string               `json:"degraded_reason,omitempty"`
	FanDutyPercent    *float64             `json:"fan_duty_percent"`
	Temperatures      map[string]*float64  `json:"temperatures"`
	SourceErrors      map[string]string    `json:"source_errors,omitempty"`
	Readings          []TemperatureReading `json:"readings"`
	AggregateMethod   string               `json:"aggregate_method"`
	RemoteMethod      string               `json:"remote_method"`
	AggregateTempC    *float64             `json:"aggregate_temp_celsius"`
	AggregateTempAvgC *float64             `json:"aggregate_temp_avg_celsius,omitempty"`
	ContributingCount int                  `json:"contributing_count"`
	StepZoneIndex     *int                 `json:"step_zone_index,omitempty"`
	ActuatorError     string               `json:"actuator_error,omitempty"`
	Peers             []string             `json:"peers"`
	Cycle             uint64               `json:"cycle"`
	Config            FanCurveConfig       `json:"config"`
	UpdatedAt         time.Time            `json:"updated_at"`
}
