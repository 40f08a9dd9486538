package service

import (
	"context"
	"errors"

	"fancontrol/internal/models"
	"fancontrol/internal/peers"
)

// Controller runs the control loop until ctx is canceled.
type Controller interface {
	Run(ctx context.Context) error
}

// Monitoring exposes the last committed controller snapshot.
type Monitoring interface {
	GetState(ctx context.Context) (models.ControllerState, error)
}

// EventLog exposes the control journal with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.ControlEvent, error)
}

// Authorization verifies bearer tokens. Nil on Service when auth is off.
type Authorization interface {
	ParseToken(accessToken string) (string, error)
}

// Recorder accepts journal events without blocking the caller.
type Recorder interface {
	Record(e models.ControlEvent)
}

// PeerPoller fetches peer temperatures for one cycle.
type PeerPoller interface {
	Poll(ctx context.Context, list peers.List) map[string]peers.Result
}

// Service aggregates the sub-services handed to the HTTP layer.
type Service struct {
	Controller
	Monitoring
	EventLog
	Authorization
}

// NewService wires the concrete services. auth may be nil.
func NewService(ctrl *ControllerService, events *EventLogService, auth *AuthService) *Service {
	s := &Service{
		Controller: ctrl,
		Monitoring: NewMonitoringService(ctrl),
		EventLog:   events,
	}
	if auth != nil {
		s.Authorization = auth
	}
	return s
}

// RunWithJournal runs ctrl until ctx is canceled. The journal writer outlives
// the controller: it is stopped only after ctrl.Run has returned, so events
// recorded during shutdown are flushed.
func RunWithJournal(ctx context.Context, ctrl Controller, journal Controller) error {
	jctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan error, 1)
	go func() { done <- journal.Run(jctx) }()

	err := ctrl.Run(ctx)
	cancel()
	return errors.Join(err, <-done)
}
