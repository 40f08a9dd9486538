// Package actuator drives the fan's PWM output.
package actuator

import (
	"fmt"
	"math"
)

// Actuator sets the fan duty cycle in percent.
type Actuator interface {
	SetDuty(percent float64) error
	Close() error
	Name() string
}

// ActuatorError is a failed hardware write. The control loop logs it and
// keeps running.
type ActuatorError struct {
	Actuator string
	Duty     float64
	Err      error
}

func (e *ActuatorError) Error() string {
	return fmt.Sprintf("actuator %s: set duty %.1f%%: %v", e.Actuator, e.Duty, e.Err)
}

func (e *ActuatorError) Unwrap() error { return e.Err }

// Clamp limits percent to [0,100]; NaN becomes 0.
func Clamp(percent float64) float64 {
	switch {
	case math.IsNaN(percent), percent < 0:
		return 0
	case percent > 100:
		return 100
	}
	return percent
}
