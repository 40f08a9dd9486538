package service

import (
	"context"
	"time"

	"fancontrol/internal/models"
)

// SnapshotSource publishes immutable controller snapshots.
type SnapshotSource interface {
	Snapshot() models.ControllerState
}

type MonitoringService struct {
	src SnapshotSource
}

func NewMonitoringService(src SnapshotSource) *MonitoringService {
	return &MonitoringService{src: src}
}

// GetState returns the last committed snapshot. It never waits on the
// control loop.
func (s *MonitoringService) GetState(ctx context.Context) (models.ControllerState, error) {
	if err := ctx.Err(); err != nil {
		return models.ControllerState{}, err
	}
	st := s.src.Snapshot()
	st.UpdatedAt = toUTC(st.UpdatedAt)
	return st, nil
}

// toUTC normalizes non-zero time to UTC, preserving zero values.
func toUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
