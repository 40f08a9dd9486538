// Package curve maps an aggregate temperature to a fan duty cycle.
package curve

import (
	"math"

	"fancontrol/internal/models"
)

// NoZone marks the absence of a step zone index (no prior zone, or a
// non-step curve).
const NoZone = -1

// DefaultExponentialK is the steepness used when the config leaves it unset.
const DefaultExponentialK = 3.0

const (
	minDuty = 0.0
	maxDuty = 100.0
)

// ComputeDuty returns the duty cycle for tempC and the step zone index to feed
// back into the next call. priorZone is the index returned by the previous
// call, or NoZone.
func ComputeDuty(tempC float64, cfg models.FanCurveConfig, priorZone int) (float64, int) {
	if cfg.Mode == models.ModeManual {
		return clampDuty(cfg.ManualSpeed), priorZone
	}

	if tempC < cfg.FanStopTemp {
		return 0, NoZone
	}

	var (
		duty float64
		zone = NoZone
	)
	switch cfg.Curve {
	case models.CurveStep:
		if len(cfg.StepZones) == 0 {
			duty = linear(tempC, cfg)
			break
		}
		zone = stepZone(tempC, cfg.StepZones, cfg.StepHysteresis, priorZone)
		duty = cfg.StepZones[zone].Duty
	case models.CurveExponential:
		duty = exponential(tempC, cfg)
	default:
		duty = linear(tempC, cfg)
	}

	return applyFloor(clampDuty(duty), cfg.FanMinOperatingSpeed), zone
}

// fraction normalizes tempC into [0,1] over [TempLow, TempHigh].
func fraction(tempC float64, cfg models.FanCurveConfig) float64 {
	span := cfg.TempHigh - cfg.TempLow
	if span <= 0 {
		if tempC >= cfg.TempHigh {
			return 1
		}
		return 0
	}
	x := (tempC - cfg.TempLow) / span
	return math.Max(0, math.Min(1, x))
}

func linear(tempC float64, cfg models.FanCurveConfig) float64 {
	x := fraction(tempC, cfg)
	return cfg.FanSpeedLow + x*(cfg.FanSpeedHigh-cfg.FanSpeedLow)
}

// exponential follows (e^(k·x) - 1) / (e^k - 1): flat near TempLow, steep near TempHigh.
func exponential(tempC float64, cfg models.FanCurveConfig) float64 {
	k := cfg.ExponentialK
	if k <= 0 {
		k = DefaultExponentialK
	}
	x := fraction(tempC, cfg)
	shape := math.Expm1(k*x) / math.Expm1(k)
	return cfg.FanSpeedLow + shape*(cfg.FanSpeedHigh-cfg.FanSpeedLow)
}

// rawZone is the highest zone whose threshold is <= tempC, or 0 when tempC is
// below every threshold.
func rawZone(tempC float64, zones []models.StepZone) int {
	idx := 0
	for i, z := range zones {
		if tempC >= z.TempC {
			idx = i
		}
	}
	return idx
}

// stepZone applies downward-only hysteresis. Rising into a higher zone only
// needs the threshold to be crossed. Leaving zone k downwards needs
// tempC < T_k - hysteresis, checked zone by zone.
func stepZone(tempC float64, zones []models.StepZone, hysteresis float64, prior int) int {
	target := rawZone(tempC, zones)
	if prior < 0 || prior >= len(zones) || target >= prior {
		return target
	}
	cur := prior
	for cur > target && tempC < zones[cur].TempC-hysteresis {
		cur--
	}
	return cur
}

// applyFloor lifts a non-zero duty below the fan's minimum operating speed.
func applyFloor(duty, floor float64) float64 {
	if duty > 0 && duty < floor {
		return clampDuty(floor)
	}
	return duty
}

func clampDuty(d float64) float64 {
	if math.IsNaN(d) {
		return minDuty
	}
	return math.Max(minDuty, math.Min(maxDuty, d))
}
