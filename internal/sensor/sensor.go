// Package sensor reads local node temperatures.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultVcgencmdPath = "/usr/bin/vcgencmd"
	DefaultThermalPath  = "/sys/class/thermal/thermal_zone0/temp"
	DefaultProbeTimeout = 2 * time.Second
)

// ErrUnavailable means no temperature source could be read.
var ErrUnavailable = errors.New("temperature unavailable")

var vcgencmdRe = regexp.MustCompile(`temp=([0-9]+\.?[0-9]*)'C`)

// Reader returns a fresh local CPU temperature in Celsius.
type Reader interface {
	ReadLocal(ctx context.Context) (float64, error)
}

// CommandRunner runs a command and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Probe tries vcgencmd first and falls back to the thermal-zone file.
type Probe struct {
	VcgencmdPath string
	ThermalPath  string
	Timeout      time.Duration
	Run          CommandRunner
}

// NewProbe returns a Probe with the Raspberry Pi default paths.
func NewProbe() *Probe {
	return &Probe{
		VcgencmdPath: DefaultVcgencmdPath,
		ThermalPath:  DefaultThermalPath,
		Timeout:      DefaultProbeTimeout,
		Run:          execRunner,
	}
}

// ReadLocal never caches; every call hits the hardware.
func (p *Probe) ReadLocal(ctx context.Context) (float64, error) {
	v, probeErr := p.readVcgencmd(ctx)
	if probeErr == nil {
		return v, nil
	}
	v, fileErr := ReadThermalFile(p.ThermalPath)
	if fileErr == nil {
		return v, nil
	}
	return 0, fmt.Errorf("%w: vcgencmd: %v; thermal zone: %v", ErrUnavailable, probeErr, fileErr)
}

func (p *Probe) readVcgencmd(ctx context.Context) (float64, error) {
	if p.VcgencmdPath == "" {
		return 0, errors.New("disabled")
	}
	if _, err := os.Stat(p.VcgencmdPath); err != nil {
		return 0, err
	}
	run := p.Run
	if run == nil {
		run = execRunner
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := run(ctx, p.VcgencmdPath, "measure_temp")
	if err != nil {
		return 0, err
	}
	return ParseVcgencmd(string(out))
}

// ParseVcgencmd extracts the value from "temp=48.3'C".
func ParseVcgencmd(out string) (float64, error) {
	m := vcgencmdRe.FindStringSubmatch(out)
	if m == nil {
		return 0, fmt.Errorf("unexpected vcgencmd output %q", strings.TrimSpace(out))
	}
	return strconv.ParseFloat(m[1], 64)
}

// ReadThermalFile reads a millidegree integer file such as a thermal zone or
// hwmon temp*_input.
func ReadThermalFile(path string) (float64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := ParseMillidegrees(string(b))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

// ParseMillidegrees converts "48312" (thousandths of a degree) to Celsius.
func ParseMillidegrees(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty")
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return n / 1000, nil
}

// Fixed always reports the same temperature. Used for --simulate-temp.
type Fixed float64

func (f Fixed) ReadLocal(context.Context) (float64, error) { return float64(f), nil }
