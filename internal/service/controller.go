package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"github.com/asecurityteam/rolling"

	"fancontrol/internal/actuator"
	"fancontrol/internal/aggregate"
	"fancontrol/internal/curve"
	"fancontrol/internal/logger"
	"fancontrol/internal/models"
	"fancontrol/internal/peers"
	"fancontrol/internal/sensor"
)

const (
	DefaultInterval        = 5 * time.Second
	DefaultDiscoveryEvery  = 12
	DefaultSmoothingWindow = 12
	DefaultReadTimeout     = 5 * time.Second

	// writes smaller than this many percentage points are skipped
	minDutyDelta = 1.0
)

// ControllerConfig is the immutable tuning of a ControllerService.
type ControllerConfig struct {
	Fan             models.FanCurveConfig
	Aggregate       string
	RemoteMethod    string // reported in the snapshot only
	Interval        time.Duration
	DiscoveryEvery  int
	ReadTimeout     time.Duration
	SmoothingWindow int
}

// ControllerDeps are the collaborators of the control loop. Provider may be
// nil when the peer list is static.
type ControllerDeps struct {
	Sensor   sensor.Reader
	Poller   PeerPoller
	Provider peers.Provider
	Actuator actuator.Actuator
	Journal  Recorder
	Log      *logger.Logger
}

// ControllerService owns the control loop state. Only the Run goroutine
// mutates it; readers get immutable snapshots through Snapshot.
type ControllerService struct {
	cfg  ControllerConfig
	deps ControllerDeps

	snap atomic.Pointer[models.ControllerState]

	// loop-owned
	peers       peers.List
	cycle       uint64
	zone        int
	duty        *float64
	degraded    bool
	actuatorErr string
	window      *rolling.PointPolicy
	samples     int
	state       models.ControllerState
}

func NewControllerService(cfg ControllerConfig, deps ControllerDeps, initial peers.List) *ControllerService {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.DiscoveryEvery <= 0 {
		cfg.DiscoveryEvery = DefaultDiscoveryEvery
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.SmoothingWindow <= 0 {
		cfg.SmoothingWindow = DefaultSmoothingWindow
	}
	if cfg.Aggregate == "" {
		cfg.Aggregate = models.AggregateMax
	}
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.Journal == nil {
		deps.Journal = discardRecorder{}
	}

	c := &ControllerService{
		cfg:    cfg,
		deps:   deps,
		peers:  initial,
		zone:   curve.NoZone,
		window: rolling.NewPointPolicy(rolling.NewWindow(cfg.SmoothingWindow)),
	}
	c.state = models.ControllerState{
		Mode:            cfg.Fan.Mode,
		Phase:           models.PhaseStarting,
		Temperatures:    map[string]*float64{},
		Readings:        []models.TemperatureReading{},
		AggregateMethod: cfg.Aggregate,
		RemoteMethod:    cfg.RemoteMethod,
		Peers:           initial.Addrs(),
		Config:          cfg.Fan,
		UpdatedAt:       time.Now().UTC(),
	}
	c.publish()
	return c
}

// Snapshot returns the last published state. Safe for concurrent use.
func (c *ControllerService) Snapshot() models.ControllerState {
	return *c.snap.Load()
}

// publish hands a copy of c.state to readers. Maps and slices in c.state are
// always freshly built per cycle, so sharing them is safe.
func (c *ControllerService) publish() {
	st := c.state
	c.snap.Store(&st)
}

func (c *ControllerService) setPhase(p models.Phase) {
	c.state.Phase = p
	c.publish()
}

// Run drives cycles every Interval until ctx is canceled. Cancellation is
// observed between cycles; the actuator is then driven to 0 and closed.
func (c *ControllerService) Run(ctx context.Context) error {
	log := c.deps.Log
	c.state.Running = true
	c.publish()
	c.deps.Journal.Record(models.ControlEvent{
		Type:        models.EventStart,
		Description: "controller started",
		Metadata: map[string]any{
			"mode":      c.cfg.Fan.Mode,
			"curve":     c.cfg.Fan.Curve,
			"aggregate": c.cfg.Aggregate,
			"actuator":  c.deps.Actuator.Name(),
			"peers":     c.peers.Addrs(),
		},
	})
	log.Infow("controller_started",
		"mode", c.cfg.Fan.Mode, "curve", c.cfg.Fan.Curve, "interval", c.cfg.Interval,
		"actuator", c.deps.Actuator.Name(), "peers", c.peers.Len())

	// a started cycle always completes
	cycleCtx := context.WithoutCancel(ctx)

	t := time.NewTicker(c.cfg.Interval)
	defer t.Stop()
	for {
		if ctx.Err() != nil {
			return c.stop()
		}
		c.runCycle(cycleCtx)

		select {
		case <-ctx.Done():
			return c.stop()
		case <-t.C:
		}
	}
}

func (c *ControllerService) runCycle(ctx context.Context) {
	c.cycle++
	c.refreshPeers(ctx)

	c.setPhase(models.PhasePolling)
	now := time.Now().UTC()
	readings := make([]models.TemperatureReading, 0, c.peers.Len()+1)

	local, err := c.readLocal(ctx)
	if err != nil {
		c.deps.Log.Warnw("local_read_failed", "err", err)
		readings = append(readings, models.TemperatureReading{SourceID: models.LocalSourceID, Err: err.Error(), Timestamp: now})
	} else {
		v := local
		readings = append(readings, models.TemperatureReading{SourceID: models.LocalSourceID, Value: &v, Timestamp: now})
	}

	results := c.deps.Poller.Poll(ctx, c.peers)
	// discovery may hand back an address that collides with the local source
	if _, ok := results[models.LocalSourceID]; ok {
		c.deps.Log.Warnw("peer_name_reserved", "peer", models.LocalSourceID)
		delete(results, models.LocalSourceID)
	}
	polled := time.Now().UTC()
	for _, addr := range sortedKeys(results) {
		rd := models.TemperatureReading{SourceID: addr, Timestamp: polled}
		if r := results[addr]; r.OK() {
			v := r.Value
			rd.Value = &v
		} else {
			rd.Err = r.Err.Error()
		}
		readings = append(readings, rd)
	}

	temps := make(map[string]*float64, len(readings))
	srcErrs := map[string]string{}
	for _, rd := range readings {
		temps[rd.SourceID] = rd.Value
		if !rd.OK() {
			srcErrs[rd.SourceID] = rd.Err
		}
	}

	c.setPhase(models.PhaseAggregating)
	var localPtr *float64
	if err == nil {
		localPtr = &local
	}
	agg, aggErr := aggregate.Aggregate(localPtr, results, c.cfg.Aggregate)

	next := models.ControllerState{
		Mode:            c.cfg.Fan.Mode,
		Running:         true,
		Temperatures:    temps,
		SourceErrors:    srcErrs,
		Readings:        readings,
		AggregateMethod: c.cfg.Aggregate,
		RemoteMethod:    c.cfg.RemoteMethod,
		Peers:           c.peers.Addrs(),
		Cycle:           c.cycle,
		Config:          c.cfg.Fan,
		UpdatedAt:       now,
	}

	if aggErr != nil {
		c.markDegraded(aggErr)
		next.Degraded = true
		next.DegradedReason = aggErr.Error()
		// manual duty does not depend on readings
		if c.cfg.Fan.Mode == models.ModeManual {
			c.setPhase(models.PhaseActuating)
			duty, _ := curve.ComputeDuty(0, c.cfg.Fan, c.zone)
			c.apply(duty)
		}
	} else {
		c.markRecovered(agg)
		v := agg.ValueC
		next.AggregateTempC = &v
		next.ContributingCount = agg.ContributingCount

		avg := c.smooth(agg.ValueC)
		next.AggregateTempAvgC = &avg

		c.setPhase(models.PhaseActuating)
		duty, zone := curve.ComputeDuty(agg.ValueC, c.cfg.Fan, c.zone)
		c.zone = zone
		c.apply(duty)
	}

	if c.duty != nil {
		d := *c.duty
		next.FanDutyPercent = &d
	}
	if c.cfg.Fan.Mode == models.ModeAuto && c.cfg.Fan.Curve == models.CurveStep && c.zone != curve.NoZone {
		z := c.zone
		next.StepZoneIndex = &z
	}
	next.ActuatorError = c.actuatorErr
	next.Phase = models.PhaseSleeping

	c.state = next
	c.publish()

	c.deps.Log.Debugw("cycle_done",
		"cycle", c.cycle, "aggregate", next.AggregateTempC, "contributing", next.ContributingCount,
		"duty", next.FanDutyPercent, "degraded", next.Degraded)
}

// smooth appends v to the rolling window and returns the mean of the samples
// seen so far. Buckets of a fresh window hold zeros, so the divisor is the
// number of real samples until the window is full.
func (c *ControllerService) smooth(v float64) float64 {
	c.window.Append(v)
	if c.samples < c.cfg.SmoothingWindow {
		c.samples++
	}
	return c.window.Reduce(rolling.Sum) / float64(c.samples)
}

func sortedKeys(m map[string]peers.Result) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c *ControllerService) readLocal(ctx context.Context) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ReadTimeout)
	defer cancel()
	return c.deps.Sensor.ReadLocal(ctx)
}

// apply writes duty unless it is within minDutyDelta of the last applied
// value. A failed write leaves the last applied duty untouched so the next
// cycle retries.
func (c *ControllerService) apply(duty float64) {
	duty = actuator.Clamp(duty)
	if c.duty != nil && math.Abs(duty-*c.duty) < minDutyDelta {
		return
	}

	if err := c.deps.Actuator.SetDuty(duty); err != nil {
		var ae *actuator.ActuatorError
		if !errors.As(err, &ae) {
			err = &actuator.ActuatorError{Actuator: c.deps.Actuator.Name(), Duty: duty, Err: err}
		}
		c.deps.Log.Errorw("actuator_write_failed", "duty", duty, "err", err)
		if c.actuatorErr == "" {
			c.deps.Journal.Record(models.ControlEvent{
				Type:        models.EventActuatorError,
				Description: err.Error(),
				Metadata:    map[string]any{"duty": duty},
			})
		}
		c.actuatorErr = err.Error()
		return
	}
	c.actuatorErr = ""

	var from any
	if c.duty != nil {
		from = *c.duty
	}
	c.deps.Log.Infow("duty_changed", "from", from, "to", duty)
	c.deps.Journal.Record(models.ControlEvent{
		Type:        models.EventDutyChange,
		Description: fmt.Sprintf("fan duty set to %.1f%%", duty),
		Metadata:    map[string]any{"from": from, "to": duty},
	})
	c.duty = &duty
}

func (c *ControllerService) markDegraded(err error) {
	if c.degraded {
		return
	}
	c.degraded = true
	c.deps.Log.Warnw("controller_degraded", "err", err, "holding_duty", c.duty)
	c.deps.Journal.Record(models.ControlEvent{
		Type:        models.EventDegraded,
		Description: err.Error(),
	})
}

func (c *ControllerService) markRecovered(agg models.AggregateResult) {
	if !c.degraded {
		return
	}
	c.degraded = false
	c.deps.Log.Infow("controller_recovered", "aggregate", agg.ValueC, "contributing", agg.ContributingCount)
	c.deps.Journal.Record(models.ControlEvent{
		Type:        models.EventRecovered,
		Description: "temperature readings available again",
		Metadata:    map[string]any{"contributing": agg.ContributingCount},
	})
}

// refreshPeers asks the provider for a new list every DiscoveryEvery cycles.
// A failed refresh keeps the current list.
func (c *ControllerService) refreshPeers(ctx context.Context) {
	if c.deps.Provider == nil || c.cycle%uint64(c.cfg.DiscoveryEvery) != 0 {
		return
	}
	list, err := c.deps.Provider.Peers(ctx)
	if err != nil {
		c.deps.Log.Warnw("peer_discovery_failed", "err", err, "keeping", c.peers.Len())
		return
	}
	if list.SameSet(c.peers) {
		return
	}
	c.deps.Log.Infow("peers_changed", "old", c.peers.Addrs(), "new", list.Addrs())
	c.deps.Journal.Record(models.ControlEvent{
		Type:        models.EventPeersChanged,
		Description: fmt.Sprintf("peer set changed: %d -> %d", c.peers.Len(), list.Len()),
		Metadata:    map[string]any{"old": c.peers.Addrs(), "new": list.Addrs()},
	})
	c.peers = list
}

// stop releases the actuator and publishes the final snapshot.
func (c *ControllerService) stop() error {
	log := c.deps.Log
	log.Infow("controller_stopping", "cycles", c.cycle)

	st := c.state
	st.Phase = models.PhaseStopped
	st.Running = false
	st.UpdatedAt = time.Now().UTC()

	var errs []error
	if err := c.deps.Actuator.SetDuty(0); err != nil {
		log.Errorw("actuator_release_failed", "err", err)
		errs = append(errs, err)
		st.ActuatorError = err.Error()
	} else {
		zero := 0.0
		c.duty = &zero
		st.FanDutyPercent = &zero
	}
	if err := c.deps.Actuator.Close(); err != nil {
		log.Errorw("actuator_close_failed", "err", err)
		errs = append(errs, err)
	}
	c.state = st
	c.publish()

	c.deps.Journal.Record(models.ControlEvent{
		Type:        models.EventStop,
		Description: "controller stopped",
		Metadata:    map[string]any{"cycles": c.cycle},
	})
	log.Infow("controller_stopped")
	return errors.Join(errs...)
}

type discardRecorder struct{}

func (discardRecorder) Record(models.ControlEvent) {}
