package actuator

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"

	"fancontrol/internal/logger"
)

const (
	DefaultPin  = 13
	DefaultFreq = 50

	// cycleLen is the PWM range; one step per percent.
	cycleLen = 100
)

var errClosed = errors.New("pwm closed")

// hardware PWM capable BCM pins on a Raspberry Pi
var pwmPins = map[int]bool{12: true, 13: true, 18: true, 19: true}

// ValidPin reports whether pin can output hardware PWM.
func ValidPin(pin int) bool { return pwmPins[pin] }

type dutyPin interface {
	DutyCycle(dutyLen, cycleLen uint32)
}

// PWM drives a hardware PWM pin through /dev/gpiomem.
type PWM struct {
	pin  dutyPin
	num  int
	freq int
	log  *logger.Logger

	mu      sync.Mutex
	closed  bool
	release func() error
}

// OpenPWM maps GPIO memory and configures pin for hardware PWM at freq Hz.
func OpenPWM(pin, freq int, log *logger.Logger) (*PWM, error) {
	if !ValidPin(pin) {
		return nil, fmt.Errorf("gpio %d has no hardware pwm", pin)
	}
	if freq <= 0 {
		freq = DefaultFreq
	}
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open gpio: %w", err)
	}
	p := rpio.Pin(pin)
	p.Mode(rpio.Pwm)
	// the pwm clock ticks cycleLen times per period
	p.Freq(freq * cycleLen)
	p.DutyCycle(0, cycleLen)

	pwm := newPWM(p, pin, freq, log, rpio.Close)
	pwm.log.Infow("pwm_opened", "pin", pin, "freq_hz", freq)
	return pwm, nil
}

func newPWM(pin dutyPin, num, freq int, log *logger.Logger, release func() error) *PWM {
	if log == nil {
		log = logger.Nop()
	}
	return &PWM{pin: pin, num: num, freq: freq, log: log, release: release}
}

func (p *PWM) SetDuty(percent float64) error {
	d := Clamp(percent)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return &ActuatorError{Actuator: p.Name(), Duty: d, Err: errClosed}
	}
	p.pin.DutyCycle(uint32(math.Round(d)), cycleLen)
	return nil
}

// Close drives the output to 0 and unmaps GPIO memory.
func (p *PWM) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.pin.DutyCycle(0, cycleLen)
	if p.release == nil {
		return nil
	}
	if err := p.release(); err != nil {
		return &ActuatorError{Actuator: p.Name(), Err: fmt.Errorf("close gpio: %w", err)}
	}
	p.log.Infow("pwm_closed", "pin", p.num)
	return nil
}

func (p *PWM) Name() string { return fmt.Sprintf("pwm(gpio%d@%dHz)", p.num, p.freq) }
