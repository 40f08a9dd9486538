package models

import "time"

// LocalSourceID names the local node in per-source maps.
const LocalSourceID = "local"

// Aggregation methods.
const (
	AggregateMax = "max"
	AggregateAvg = "avg"
	AggregateMin = "min"
)

// TemperatureReading is one source's reading for a single cycle.
// Value is nil when the source failed; Err then carries the reason.
type TemperatureReading struct {
	SourceID  string    `json:"source_id"`
	Value     *float64  `json:"value_celsius"`
	Err       string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// OK reports whether the reading produced a value.
func (r TemperatureReading) OK() bool { return r.Value != nil }

// AggregateResult is the representative temperature of one cycle.
type AggregateResult struct {
	ValueC            float64 `json:"value_celsius"`
	Method            string  `json:"method"`
	ContributingCount int     `json:"contributing_count"`
}
