package sensor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const DefaultHwmonRoot = "/sys/class/hwmon"

// Sensor names reported by the exporter.
const (
	SensorCPU  = "cpu"
	SensorNVMe = "nvme"
	SensorRP1  = "rp1"
)

// hwmonNames maps exporter sensor names to the hwmon "name" file contents.
var hwmonNames = map[string]string{
	SensorNVMe: "nvme",
	SensorRP1:  "rp1_adc",
}

// Hwmon finds chips under Root by their name file.
type Hwmon struct {
	Root string
}

// Read returns temp1_input of the first chip whose name contains name.
func (h Hwmon) Read(name string) (float64, error) {
	root := h.Root
	if root == "" {
		root = DefaultHwmonRoot
	}
	dirs, err := filepath.Glob(filepath.Join(root, "hwmon*"))
	if err != nil {
		return 0, err
	}
	for _, d := range dirs {
		b, err := os.ReadFile(filepath.Join(d, "name"))
		if err != nil || !strings.Contains(strings.TrimSpace(string(b)), name) {
			continue
		}
		return ReadThermalFile(filepath.Join(d, "temp1_input"))
	}
	return 0, fmt.Errorf("%w: no hwmon chip named %q", ErrUnavailable, name)
}

// Reading is one named sensor value; Value is nil when unreadable.
type Reading struct {
	Value *float64
	Err   error
}

// ReadAll reads the CPU through cpu and the nvme and rp1 chips through h.
func ReadAll(ctx context.Context, cpu Reader, h Hwmon) map[string]Reading {
	out := make(map[string]Reading, 1+len(hwmonNames))
	put := func(key string, v float64, err error) {
		if err != nil {
			out[key] = Reading{Err: err}
			return
		}
		out[key] = Reading{Value: &v}
	}

	v, err := cpu.ReadLocal(ctx)
	put(SensorCPU, v, err)
	for key, chip := range hwmonNames {
		v, err := h.Read(chip)
		put(key, v, err)
	}
	return out
}
