package actuator

import (
	"sync"

	"fancontrol/internal/logger"
)

// NoOp is the dry-run actuator: it logs and remembers the last duty.
type NoOp struct {
	log *logger.Logger

	mu     sync.Mutex
	last   float64
	writes int
}

func NewNoOp(log *logger.Logger) *NoOp {
	if log == nil {
		log = logger.Nop()
	}
	return &NoOp{log: log}
}

func (n *NoOp) SetDuty(percent float64) error {
	d := Clamp(percent)
	n.mu.Lock()
	n.last = d
	n.writes++
	n.mu.Unlock()
	n.log.Infow("dry_run_set_duty", "duty_percent", d)
	return nil
}

// Last returns the most recent duty and how many writes happened.
func (n *NoOp) Last() (float64, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.last, n.writes
}

func (n *NoOp) Close() error {
	n.log.Infow("dry_run_close")
	return nil
}

func (n *NoOp) Name() string { return "noop" }
