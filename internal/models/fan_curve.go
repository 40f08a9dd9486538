package models

// Fan control modes.
const (
	ModeAuto   = "auto"
	ModeManual = "manual"
)

// Curve types used in auto mode.
const (
	CurveLinear      = "linear"
	CurveExponential = "exponential"
	CurveStep        = "step"
)

// StepZone is one (threshold, duty) pair of a stepped curve.
type StepZone struct {
	TempC float64 `json:"temp_c" mapstructure:"temp"`
	Duty  float64 `json:"duty" mapstructure:"duty"`
}

// FanCurveConfig describes how an aggregate temperature maps to a duty cycle.
// It is loaded once at startup and never mutated afterwards.
type FanCurveConfig struct {
	Mode                 string     `json:"mode"`  // auto | manual
	Curve                string     `json:"curve"` // linear | exponential | step
	TempLow              float64    `json:"temp_low"`
	TempHigh             float64    `json:"temp_high"`
	FanSpeedLow          float64    `json:"fan_speed_low"`
	FanSpeedHigh         float64    `json:"fan_speed_high"`
	FanMinOperatingSpeed float64    `json:"fan_min_operating_speed"`
	FanStopTemp          float64    `json:"fan_stop_temp"`
	StepZones            []StepZone `json:"step_zones,omitempty"`
	StepHysteresis       float64    `json:"step_hysteresis"`
	ManualSpeed          float64    `json:"manual_speed"`
	ExponentialK         float64    `json:"exponential_k"`
}
