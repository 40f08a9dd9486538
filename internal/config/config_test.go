package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fancontrol/internal/models"
	"fancontrol/internal/peers"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load([]string{"--dry-run"})
	require.NoError(t, err)

	assert.Equal(t, models.ModeAuto, cfg.Fan.Mode)
	assert.Equal(t, models.CurveExponential, cfg.Fan.Curve)
	assert.Equal(t, 45.0, cfg.Fan.TempLow)
	assert.Equal(t, 60.0, cfg.Fan.TempHigh)
	assert.Equal(t, 25.0, cfg.Fan.FanSpeedLow)
	assert.Equal(t, 100.0, cfg.Fan.FanSpeedHigh)
	assert.Equal(t, 10.0, cfg.Fan.FanMinOperatingSpeed)
	assert.Equal(t, 20.0, cfg.Fan.FanStopTemp)
	assert.Len(t, cfg.Fan.StepZones, 4)
	assert.Equal(t, 5*time.Second, cfg.Control.Interval)
	assert.Equal(t, 12, cfg.Control.DiscoveryEvery)
	assert.Equal(t, models.AggregateMax, cfg.Control.Aggregate)
	assert.True(t, cfg.Control.DryRun)
	assert.Nil(t, cfg.Control.SimulateTemp)
	assert.Equal(t, 0, cfg.Peers.Static.Len())
	assert.Equal(t, 5*time.Second, cfg.Peers.Timeout)
	assert.Equal(t, "http", cfg.Peers.Method)
	assert.Equal(t, 22, cfg.Peers.SSH.Port)
	assert.False(t, cfg.Peers.SSH.InsecureIgnoreHostKey)
	assert.Equal(t, 13, cfg.PWM.Pin)
	assert.Equal(t, 50, cfg.PWM.Freq)
	assert.Equal(t, "0.0.0.0:8081", cfg.Addr())
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_FileThenFlags(t *testing.T) {
	path := writeConfig(t, `
fan:
  mode: auto
  curve: step
  temp_low: 40
  temp_high: 70
  step_hysteresis: 3
  step_zones:
    - {temp: 30, duty: 0}
    - {temp: 50, duty: 40}
    - {temp: 65, duty: 100}
control:
  interval: 10
  aggregate: avg
peers:
  static: [node2, node3]
  timeout: 2s
server:
  port: 9090
`)
	cfg, err := Load([]string{"--config", path, "--dry-run", "--status-port", "9191", "--simulate-temp", "42.5"})
	require.NoError(t, err)

	assert.Equal(t, path, cfg.File)
	assert.Equal(t, models.CurveStep, cfg.Fan.Curve)
	assert.Equal(t, []models.StepZone{{TempC: 30, Duty: 0}, {TempC: 50, Duty: 40}, {TempC: 65, Duty: 100}}, cfg.Fan.StepZones)
	assert.Equal(t, 3.0, cfg.Fan.StepHysteresis)
	assert.Equal(t, 10*time.Second, cfg.Control.Interval)
	assert.Equal(t, models.AggregateAvg, cfg.Control.Aggregate)
	assert.Equal(t, []string{"node2", "node3"}, cfg.Peers.Static.Addrs())
	assert.Equal(t, 2*time.Second, cfg.Peers.Timeout)
	assert.Equal(t, 9191, cfg.Server.Port)
	require.NotNil(t, cfg.Control.SimulateTemp)
	assert.Equal(t, 42.5, *cfg.Control.SimulateTemp)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("FANCONTROL_FAN_MODE", "manual")
	t.Setenv("FANCONTROL_FAN_MANUAL_SPEED", "35")
	t.Setenv("FANCONTROL_PEERS_STATIC", "node2,node3,node2")
	t.Setenv("FANCONTROL_FAN_STEP_ZONES", "30:10,60:90")

	cfg, err := Load([]string{"--dry-run"})
	require.NoError(t, err)
	assert.Equal(t, models.ModeManual, cfg.Fan.Mode)
	assert.Equal(t, 35.0, cfg.Fan.ManualSpeed)
	assert.Equal(t, []string{"node2", "node3"}, cfg.Peers.Static.Addrs())
	assert.Equal(t, []models.StepZone{{TempC: 30, Duty: 10}, {TempC: 60, Duty: 90}}, cfg.Fan.StepZones)
}

func TestLoad_Verbose(t *testing.T) {
	cfg, err := Load([]string{"--dry-run", "--verbose"})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load([]string{"--config", filepath.Join(t.TempDir(), "nope.yml")})
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name string
		args []string
	}{
		{"temp_low not below temp_high", []string{"--dry-run", "--min-temp", "60", "--max-temp", "60"}},
		{"duty out of range", []string{"--dry-run", "--min-duty", "120"}},
		{"unknown curve", []string{"--dry-run", "--curve", "cubic"}},
		{"unknown mode", []string{"--dry-run", "--mode", "turbo"}},
		{"unknown aggregate", []string{"--dry-run", "--aggregate", "median"}},
		{"unsorted zones", []string{"--dry-run", "--step-zones", "50:30,40:60"}},
		{"zone duty out of range", []string{"--dry-run", "--step-zones", "40:130"}},
		{"non pwm pin", []string{"--pin", "17"}},
		{"bad log level", []string{"--dry-run", "--log-level", "loud"}},
		{"unknown remote method", []string{"--dry-run", "--remote-method", "telnet"}},
		{"ssh with k8s discovery", []string{"--dry-run", "--remote-method", "ssh", "--k8s-discovery"}},
		{"ssh port out of range", []string{"--dry-run", "--ssh-port", "70000"}},
		{"local as a peer", []string{"--dry-run", "--peers", "node2,local"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(tc.args)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestParseStepZones(t *testing.T) {
	zones, err := ParseStepZones(" 35:0, 45:30 ,55:60,")
	require.NoError(t, err)
	assert.Equal(t, []models.StepZone{{TempC: 35, Duty: 0}, {TempC: 45, Duty: 30}, {TempC: 55, Duty: 60}}, zones)

	for _, bad := range []string{"35", "35:x", "a:10"} {
		_, err := ParseStepZones(bad)
		assert.Error(t, err, bad)
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	cfg, err := Load([]string{"--dry-run"})
	require.NoError(t, err)

	cfg.Fan.TempLow = 80
	cfg.Control.Interval = 0
	err = cfg.Validate()
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "fan.temp_low")
	assert.Contains(t, err.Error(), "control.interval")
}

func TestLoad_SSHPeers(t *testing.T) {
	path := writeConfig(t, `
peers:
  method: SSH
  static: [pi@node2, node3]
  ssh:
    user: ops
    key_files: [/etc/fancontrol/id_ed25519]
    known_hosts: /etc/fancontrol/known_hosts
`)
	cfg, err := Load([]string{"--config", path, "--dry-run", "--ssh-port", "2222"})
	require.NoError(t, err)

	assert.Equal(t, "ssh", cfg.Peers.Method)
	assert.Equal(t, []string{"pi@node2", "node3"}, cfg.Peers.Static.Addrs())
	assert.Equal(t, "ops", cfg.Peers.SSH.User)
	assert.Equal(t, 2222, cfg.Peers.SSH.Port)
	assert.Equal(t, []string{"/etc/fancontrol/id_ed25519"}, cfg.Peers.SSH.KeyFiles)
	assert.Equal(t, "/etc/fancontrol/known_hosts", cfg.Peers.SSH.KnownHosts)
}

func TestValidate_RejectsLocalPeer(t *testing.T) {
	cfg, err := Load([]string{"--dry-run", "--peers", "node2"})
	require.NoError(t, err)

	cfg.Peers.Static = peers.NewList("node2", models.LocalSourceID)
	err = cfg.Validate()
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "peers.static")
}
