// Package config loads the controller configuration from defaults, an
// optional YAML file, FANCONTROL_* environment variables and flags.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"fancontrol/internal/actuator"
	"fancontrol/internal/aggregate"
	"fancontrol/internal/logger"
	"fancontrol/internal/models"
	"fancontrol/internal/peers"
)

const EnvPrefix = "FANCONTROL"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

type ControlConfig struct {
	Interval       time.Duration
	DiscoveryEvery int
	Aggregate      string
	DryRun         bool
	SimulateTemp   *float64
}

type PeersConfig struct {
	Method     string // http or ssh
	Static     peers.List
	File       string
	Timeout    time.Duration
	MaxWorkers int
	Port       int
	Path       string
	SSH        SSHConfig
}

// SSHConfig is used when peers.method is ssh.
type SSHConfig struct {
	User                  string
	Port                  int
	KeyFiles              []string
	KnownHosts            string
	InsecureIgnoreHostKey bool
}

type KubernetesConfig struct {
	Enabled       bool
	Namespace     string
	LabelSelector string
	Port          int
}

type PWMConfig struct {
	Pin  int
	Freq int
}

type ServerConfig struct {
	Bind       string
	Port       int
	AuthSecret string
}

// Config is the immutable process configuration.
type Config struct {
	Fan        models.FanCurveConfig
	Control    ControlConfig
	Peers      PeersConfig
	Kubernetes KubernetesConfig
	PWM        PWMConfig
	Server     ServerConfig
	LogLevel   string
	File       string // config file actually read, if any
}

// Addr is the status server listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Bind, strconv.Itoa(c.Server.Port))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("fan.mode", models.ModeAuto)
	v.SetDefault("fan.curve", models.CurveExponential)
	v.SetDefault("fan.manual_speed", 50.0)
	v.SetDefault("fan.temp_low", 45.0)
	v.SetDefault("fan.temp_high", 60.0)
	v.SetDefault("fan.speed_low", 25.0)
	v.SetDefault("fan.speed_high", 100.0)
	v.SetDefault("fan.min_operating_speed", 10.0)
	v.SetDefault("fan.stop_temp", 20.0)
	v.SetDefault("fan.step_zones", "35:0,45:30,55:60,65:100")
	v.SetDefault("fan.step_hysteresis", 2.0)
	v.SetDefault("fan.exponential_k", 3.0)

	v.SetDefault("control.interval", 5*time.Second)
	v.SetDefault("control.discovery_every", 12)
	v.SetDefault("control.aggregate", models.AggregateMax)
	v.SetDefault("control.dry_run", false)

	v.SetDefault("peers.method", peers.MethodHTTP)
	v.SetDefault("peers.static", "")
	v.SetDefault("peers.file", "")
	v.SetDefault("peers.timeout", peers.DefaultTimeout)
	v.SetDefault("peers.max_workers", peers.DefaultMaxWorkers)
	v.SetDefault("peers.port", peers.DefaultExporterPort)
	v.SetDefault("peers.path", peers.DefaultExporterPath)
	v.SetDefault("peers.ssh.user", "")
	v.SetDefault("peers.ssh.port", peers.DefaultSSHPort)
	v.SetDefault("peers.ssh.key_files", []string{})
	v.SetDefault("peers.ssh.known_hosts", "")
	v.SetDefault("peers.ssh.insecure_ignore_host_key", false)

	v.SetDefault("discovery.kubernetes.enabled", false)
	v.SetDefault("discovery.kubernetes.namespace", "")
	v.SetDefault("discovery.kubernetes.label_selector", peers.DefaultLabelSelector)
	v.SetDefault("discovery.kubernetes.port", peers.DefaultExporterPort)

	v.SetDefault("pwm.pin", actuator.DefaultPin)
	v.SetDefault("pwm.freq", actuator.DefaultFreq)

	v.SetDefault("server.bind", "0.0.0.0")
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.auth_secret", "")

	v.SetDefault("log.level", logger.InfoLevel)
}

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"mode":               "fan.mode",
	"curve":              "fan.curve",
	"manual-speed":       "fan.manual_speed",
	"min-temp":           "fan.temp_low",
	"max-temp":           "fan.temp_high",
	"min-duty":           "fan.speed_low",
	"max-duty":           "fan.speed_high",
	"min-operating":      "fan.min_operating_speed",
	"stop-temp":          "fan.stop_temp",
	"step-zones":         "fan.step_zones",
	"hysteresis":         "fan.step_hysteresis",
	"poll":               "control.interval",
	"aggregate":          "control.aggregate",
	"dry-run":            "control.dry_run",
	"simulate-temp":      "control.simulate_temp",
	"peers":              "peers.static",
	"peers-file":         "peers.file",
	"remote-timeout":     "peers.timeout",
	"remote-method":      "peers.method",
	"ssh-user":           "peers.ssh.user",
	"ssh-port":           "peers.ssh.port",
	"ssh-key":            "peers.ssh.key_files",
	"ssh-known-hosts":    "peers.ssh.known_hosts",
	"k8s-discovery":      "discovery.kubernetes.enabled",
	"k8s-namespace":      "discovery.kubernetes.namespace",
	"k8s-label-selector": "discovery.kubernetes.label_selector",
	"pin":                "pwm.pin",
	"freq":               "pwm.freq",
	"status-bind":        "server.bind",
	"status-port":        "server.port",
	"log-level":          "log.level",
}

// NewFlagSet declares the controller's flags. Defaults live in viper, so the
// flag defaults here are only shown in --help.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringP("config", "c", "", "path to config file (default: configs/config.yml)")
	fs.String("mode", models.ModeAuto, "fan mode: auto or manual")
	fs.String("curve", models.CurveExponential, "curve: linear, exponential or step")
	fs.Float64("manual-speed", 50, "duty percent in manual mode")
	fs.Float64("min-temp", 45, "temperature (C) at which the low duty is used")
	fs.Float64("max-temp", 60, "temperature (C) at which the high duty is used")
	fs.Float64("min-duty", 25, "duty percent at min-temp")
	fs.Float64("max-duty", 100, "duty percent at max-temp")
	fs.Float64("min-operating", 10, "lowest non-zero duty the fan can spin at")
	fs.Float64("stop-temp", 20, "below this temperature (C) the fan is off")
	fs.String("step-zones", "35:0,45:30,55:60,65:100", "step curve zones as temp:duty pairs")
	fs.Float64("hysteresis", 2, "step curve hysteresis (C)")
	fs.Duration("poll", 5*time.Second, "control loop interval")
	fs.String("aggregate", models.AggregateMax, "aggregate method: max, avg or min")
	fs.Bool("dry-run", false, "don't touch GPIO; log duty changes only")
	fs.Float64("simulate-temp", 0, "use a fixed local temperature (C)")
	fs.String("peers", "", "comma separated peers to poll")
	fs.String("peers-file", "", "file with peers, comma or newline separated")
	fs.Duration("remote-timeout", peers.DefaultTimeout, "timeout per peer request")
	fs.String("remote-method", peers.MethodHTTP, "how peers are read: http (exporter) or ssh")
	fs.String("ssh-user", "", "ssh login for peers (default: current user)")
	fs.Int("ssh-port", peers.DefaultSSHPort, "ssh port for peers without one")
	fs.StringSlice("ssh-key", nil, "private key files for ssh peers (default: ~/.ssh/id_*)")
	fs.String("ssh-known-hosts", "", "known_hosts file (default: ~/.ssh/known_hosts)")
	fs.Bool("k8s-discovery", false, "discover temperature exporter pods via the kubernetes API")
	fs.String("k8s-namespace", "", "namespace for discovery (default: pod namespace)")
	fs.String("k8s-label-selector", peers.DefaultLabelSelector, "label selector for exporter pods")
	fs.Int("pin", actuator.DefaultPin, "GPIO pin (BCM) with hardware PWM")
	fs.Int("freq", actuator.DefaultFreq, "PWM frequency (Hz)")
	fs.String("status-bind", "0.0.0.0", "status server bind address")
	fs.Int("status-port", 8081, "status server port (0 disables)")
	fs.String("log-level", logger.InfoLevel, "debug, info, warn or error")
	fs.Bool("verbose", false, "shorthand for --log-level=debug")
	return fs
}

// Load parses args and builds a validated Config.
func Load(args []string) (*Config, error) {
	fs := NewFlagSet("fancontrol")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return FromFlags(fs)
}

// FromFlags builds a Config from an already parsed flag set.
func FromFlags(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for name, key := range flagKeys {
		if f := fs.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path, _ := fs.GetString("config")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("configs")
		v.SetConfigName("config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg, err := fromViper(v)
	if err != nil {
		return nil, err
	}
	if verbose, _ := fs.GetBool("verbose"); verbose {
		cfg.LogLevel = logger.DebugLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) (*Config, error) {
	zones, err := stepZones(v)
	if err != nil {
		return nil, err
	}
	static, err := stringList(v, "peers.static")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Fan: models.FanCurveConfig{
			Mode:                 strings.ToLower(v.GetString("fan.mode")),
			Curve:                strings.ToLower(v.GetString("fan.curve")),
			TempLow:              v.GetFloat64("fan.temp_low"),
			TempHigh:             v.GetFloat64("fan.temp_high"),
			FanSpeedLow:          v.GetFloat64("fan.speed_low"),
			FanSpeedHigh:         v.GetFloat64("fan.speed_high"),
			FanMinOperatingSpeed: v.GetFloat64("fan.min_operating_speed"),
			FanStopTemp:          v.GetFloat64("fan.stop_temp"),
			StepZones:            zones,
			StepHysteresis:       v.GetFloat64("fan.step_hysteresis"),
			ManualSpeed:          v.GetFloat64("fan.manual_speed"),
			ExponentialK:         v.GetFloat64("fan.exponential_k"),
		},
		Control: ControlConfig{
			Interval:       duration(v, "control.interval"),
			DiscoveryEvery: v.GetInt("control.discovery_every"),
			Aggregate:      strings.ToLower(v.GetString("control.aggregate")),
			DryRun:         v.GetBool("control.dry_run"),
		},
		Peers: PeersConfig{
			Method:     strings.ToLower(v.GetString("peers.method")),
			Static:     static,
			File:       v.GetString("peers.file"),
			Timeout:    duration(v, "peers.timeout"),
			MaxWorkers: v.GetInt("peers.max_workers"),
			Port:       v.GetInt("peers.port"),
			Path:       v.GetString("peers.path"),
			SSH: SSHConfig{
				User:                  v.GetString("peers.ssh.user"),
				Port:                  v.GetInt("peers.ssh.port"),
				KeyFiles:              v.GetStringSlice("peers.ssh.key_files"),
				KnownHosts:            v.GetString("peers.ssh.known_hosts"),
				InsecureIgnoreHostKey: v.GetBool("peers.ssh.insecure_ignore_host_key"),
			},
		},
		Kubernetes: KubernetesConfig{
			Enabled:       v.GetBool("discovery.kubernetes.enabled"),
			Namespace:     v.GetString("discovery.kubernetes.namespace"),
			LabelSelector: v.GetString("discovery.kubernetes.label_selector"),
			Port:          v.GetInt("discovery.kubernetes.port"),
		},
		PWM: PWMConfig{
			Pin:  v.GetInt("pwm.pin"),
			Freq: v.GetInt("pwm.freq"),
		},
		Server: ServerConfig{
			Bind:       v.GetString("server.bind"),
			Port:       v.GetInt("server.port"),
			AuthSecret: v.GetString("server.auth_secret"),
		},
		LogLevel: strings.ToLower(v.GetString("log.level")),
		File:     v.ConfigFileUsed(),
	}
	// an unchanged --simulate-temp flag is not "set"
	if v.IsSet("control.simulate_temp") {
		t := v.GetFloat64("control.simulate_temp")
		cfg.Control.SimulateTemp = &t
	}
	return cfg, nil
}

// stepZones accepts "35:0,45:30" or a list of {temp, duty} maps.
func stepZones(v *viper.Viper) ([]models.StepZone, error) {
	switch raw := v.Get("fan.step_zones").(type) {
	case nil:
		return nil, nil
	case string:
		zones, err := ParseStepZones(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: fan.step_zones: %v", ErrInvalid, err)
		}
		return zones, nil
	default:
		var zones []models.StepZone
		if err := v.UnmarshalKey("fan.step_zones", &zones); err != nil {
			return nil, fmt.Errorf("%w: fan.step_zones: %v", ErrInvalid, err)
		}
		return zones, nil
	}
}

// ParseStepZones parses "temp:duty" pairs separated by commas.
func ParseStepZones(s string) ([]models.StepZone, error) {
	var zones []models.StepZone
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		t, d, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("bad zone %q, want temp:duty", part)
		}
		temp, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil, fmt.Errorf("bad zone temperature %q", part)
		}
		duty, err := strconv.ParseFloat(strings.TrimSpace(d), 64)
		if err != nil {
			return nil, fmt.Errorf("bad zone duty %q", part)
		}
		zones = append(zones, models.StepZone{TempC: temp, Duty: duty})
	}
	return zones, nil
}

// duration reads key as a Go duration string ("5s") or as plain seconds.
func duration(v *viper.Viper, key string) time.Duration {
	switch raw := v.Get(key).(type) {
	case int:
		return time.Duration(raw) * time.Second
	case int64:
		return time.Duration(raw) * time.Second
	case float64:
		return time.Duration(raw * float64(time.Second))
	case string:
		if n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
			return time.Duration(n * float64(time.Second))
		}
	}
	return v.GetDuration(key)
}

func stringList(v *viper.Viper, key string) (peers.List, error) {
	switch raw := v.Get(key).(type) {
	case nil:
		return peers.List{}, nil
	case string:
		return peers.ParseList(raw), nil
	case []any, []string:
		return peers.NewList(v.GetStringSlice(key)...), nil
	default:
		return peers.List{}, fmt.Errorf("%w: %s: unsupported value %v", ErrInvalid, key, raw)
	}
}

// Validate checks the invariants the control loop relies on.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}
	duty := func(name string, d float64) {
		if d < 0 || d > 100 {
			bad("%s must be within [0,100], got %g", name, d)
		}
	}

	f := c.Fan
	switch f.Mode {
	case models.ModeAuto, models.ModeManual:
	default:
		bad("fan.mode %q", f.Mode)
	}
	switch f.Curve {
	case models.CurveLinear, models.CurveExponential, models.CurveStep:
	default:
		bad("fan.curve %q", f.Curve)
	}
	if f.TempLow >= f.TempHigh {
		bad("fan.temp_low (%g) must be below fan.temp_high (%g)", f.TempLow, f.TempHigh)
	}
	duty("fan.speed_low", f.FanSpeedLow)
	duty("fan.speed_high", f.FanSpeedHigh)
	duty("fan.min_operating_speed", f.FanMinOperatingSpeed)
	duty("fan.manual_speed", f.ManualSpeed)
	if f.FanSpeedLow > f.FanSpeedHigh {
		bad("fan.speed_low (%g) exceeds fan.speed_high (%g)", f.FanSpeedLow, f.FanSpeedHigh)
	}
	for i, z := range f.StepZones {
		duty(fmt.Sprintf("fan.step_zones[%d].duty", i), z.Duty)
		if i > 0 && z.TempC <= f.StepZones[i-1].TempC {
			bad("fan.step_zones must be strictly ascending by temperature (zone %d)", i)
		}
	}
	if f.Mode == models.ModeAuto && f.Curve == models.CurveStep && len(f.StepZones) == 0 {
		bad("fan.step_zones is empty for the step curve")
	}
	if f.StepHysteresis < 0 {
		bad("fan.step_hysteresis must be >= 0")
	}
	if f.ExponentialK <= 0 {
		bad("fan.exponential_k must be > 0")
	}

	if c.Control.Interval <= 0 {
		bad("control.interval must be positive")
	}
	if c.Control.DiscoveryEvery < 1 {
		bad("control.discovery_every must be >= 1")
	}
	if !aggregate.ValidMethod(c.Control.Aggregate) {
		bad("control.aggregate %q", c.Control.Aggregate)
	}

	if !peers.ValidMethod(c.Peers.Method) {
		bad("peers.method %q", c.Peers.Method)
	}
	if c.Peers.Method == peers.MethodSSH && c.Kubernetes.Enabled {
		bad("peers.method ssh cannot be used with kubernetes discovery, which yields exporter URLs")
	}
	if c.Peers.SSH.Port < 1 || c.Peers.SSH.Port > 65535 {
		bad("peers.ssh.port %d", c.Peers.SSH.Port)
	}
	if c.Peers.Static.Contains(models.LocalSourceID) {
		bad("peers.static may not contain %q, it names this node's own reading", models.LocalSourceID)
	}
	if c.Peers.Timeout <= 0 {
		bad("peers.timeout must be positive")
	}
	if c.Peers.MaxWorkers < 1 || c.Peers.MaxWorkers > peers.MaxWorkersLimit {
		bad("peers.max_workers must be within [1,%d]", peers.MaxWorkersLimit)
	}

	if !c.Control.DryRun && !actuator.ValidPin(c.PWM.Pin) {
		bad("pwm.pin %d has no hardware PWM", c.PWM.Pin)
	}
	if c.PWM.Freq <= 0 {
		bad("pwm.freq must be positive")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		bad("server.port %d", c.Server.Port)
	}
	if !logger.ValidLevel(c.LogLevel) {
		bad("log.level %q", c.LogLevel)
	}
	return errors.Join(errs...)
}
