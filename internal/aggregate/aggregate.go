// Package aggregate reduces one cycle's readings to a single temperature.
package aggregate

import (
	"errors"
	"fmt"
	"sort"

	"fancontrol/internal/models"
	"fancontrol/internal/peers"
)

var (
	// ErrNoReadings means no source produced a value this cycle.
	ErrNoReadings = errors.New("no temperature readings")
	// ErrUnknownMethod is returned for a method other than max, avg or min.
	ErrUnknownMethod = errors.New("unknown aggregation method")
)

// ValidMethod reports whether m is a supported aggregation method.
func ValidMethod(m string) bool {
	switch m {
	case models.AggregateMax, models.AggregateAvg, models.AggregateMin:
		return true
	}
	return false
}

// Aggregate combines the local reading (nil when it failed) with every
// successful peer result.
func Aggregate(local *float64, results map[string]peers.Result, method string) (models.AggregateResult, error) {
	if !ValidMethod(method) {
		return models.AggregateResult{}, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}

	values := make([]float64, 0, len(results)+1)
	if local != nil {
		values = append(values, *local)
	}
	// sorted keys keep float summation order stable between cycles
	keys := make([]string, 0, len(results))
	for k := range results {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if r := results[k]; r.OK() {
			values = append(values, r.Value)
		}
	}
	if len(values) == 0 {
		return models.AggregateResult{}, ErrNoReadings
	}

	return models.AggregateResult{
		ValueC:            reduce(values, method),
		Method:            method,
		ContributingCount: len(values),
	}, nil
}

func reduce(values []float64, method string) float64 {
	out := values[0]
	switch method {
	case models.AggregateMax:
		for _, v := range values[1:] {
			if v > out {
				out = v
			}
		}
	case models.AggregateMin:
		for _, v := range values[1:] {
			if v < out {
				out = v
			}
		}
	default:
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		out = sum / float64(len(values))
	}
	return out
}
