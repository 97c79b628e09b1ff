package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validShaping() *Shaping {
	return &Shaping{
		Interface:              "eth0",
		MinRateMbps:            100,
		MaxRateMbps:            280,
		AbsoluteMaxRateMbps:    280,
		OverheadMultiplier:     0.97,
		PingTarget:             "192.0.2.1",
		BaselineLatencyMs:      17.9,
		LatencyThresholdMs:     2.2,
		DecreaseFactor:         0.97,
		IncreaseFactor:         1.04,
		AdjustIntervalSec:      300,
		CalibrationIntervalSec: 43200,
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
shaping:
  interface: eth0
  min_rate_mbps: 100
  max_rate_mbps: 280
  absolute_max_rate_mbps: 280
  overhead_multiplier: 0.97
  ping_target: 192.0.2.1
  baseline_latency_ms: 17.9
  latency_threshold_ms: 2.2
  decrease_factor: 0.97
  increase_factor: 1.04
daemon:
  discipline: tbf
  apply_rates: true
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Shaping)
	require.NotNil(t, cfg.Daemon)

	assert.Equal(t, DefaultAdjustIntervalSec, cfg.Shaping.AdjustIntervalSec)
	assert.Equal(t, DefaultCalibrationIntervalSec, cfg.Shaping.CalibrationIntervalSec)

	assert.Equal(t, filepath.Join(DefaultDataDir, "baseline.yaml"), cfg.Daemon.BaselinePath)
	assert.Equal(t, filepath.Join(DefaultDataDir, "state.yaml"), cfg.Daemon.StatePath)
	assert.Equal(t, filepath.Join(DefaultDataDir, "history.csv"), cfg.Daemon.HistoryPath)
	assert.Equal(t, DefaultAPIListen, cfg.Daemon.APIListen)
	assert.Equal(t, DefaultProbeMode, cfg.Daemon.ProbeMode)
	assert.Equal(t, DefaultPingCount, cfg.Daemon.PingCount)
	assert.Equal(t, DefaultProbeTimeoutSec, cfg.Daemon.ProbeTimeoutSec)
	assert.Equal(t, DefaultSpeedtestMode, cfg.Daemon.SpeedtestMode)
	assert.Equal(t, DefaultHTTPProbeSeconds, cfg.Daemon.HTTPProbeSeconds)
	assert.Equal(t, DefaultPersistIntervalSec, cfg.Daemon.PersistSec)
	assert.Equal(t, DefaultLogLevel, cfg.Daemon.LogLevel)
	assert.Equal(t, "tbf", cfg.Daemon.Discipline)
	assert.True(t, cfg.Daemon.ApplyRates)

	require.NoError(t, Validate(cfg))
}

func TestLoadWithoutDaemonSection(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
shaping:
  interface: eth0
  min_rate_mbps: 100
  max_rate_mbps: 280
  absolute_max_rate_mbps: 280
  overhead_multiplier: 0.97
  ping_target: 192.0.2.1
  baseline_latency_ms: 17.9
  latency_threshold_ms: 2.2
  decrease_factor: 0.97
  increase_factor: 1.04
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	// The daemon section is materialized with defaults even when the
	// file never mentions it.
	require.NotNil(t, cfg.Daemon)
	assert.Equal(t, DefaultAPIListen, cfg.Daemon.APIListen)
	assert.Equal(t, DefaultDiscipline, cfg.Daemon.Discipline)
	assert.False(t, cfg.Daemon.ApplyRates)
	require.NoError(t, Validate(cfg))
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRequiresShaping(t *testing.T) {
	t.Parallel()

	err := Validate(Config{})
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Violations, "shaping section is required")
}

func TestValidateCollectsAllViolations(t *testing.T) {
	t.Parallel()

	s := validShaping()
	s.Interface = ""
	s.MinRateMbps = 300
	s.DecreaseFactor = 1.5
	err := Validate(Config{Shaping: s})
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Violations, 3)
	assert.Contains(t, verr.Violations, "interface is required")
	assert.Contains(t, verr.Violations, "min_rate_mbps 300.0 exceeds max_rate_mbps 280.0")
	assert.Contains(t, err.Error(), "invalid configuration:")
}

func TestValidateRateOrdering(t *testing.T) {
	t.Parallel()

	s := validShaping()
	s.MaxRateMbps = 300
	s.AbsoluteMaxRateMbps = 280
	err := Validate(Config{Shaping: s})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_rate_mbps 300.0 exceeds absolute_max_rate_mbps 280.0")
}

func TestValidateDaemonModes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Daemon)
		want   string
	}{
		{
			name:   "unknown probe mode",
			mutate: func(d *Daemon) { d.ProbeMode = "icmp" },
			want:   `probe_mode must be ping or udp (got "icmp")`,
		},
		{
			name:   "udp probe without reflector",
			mutate: func(d *Daemon) { d.ProbeMode = "udp"; d.ReflectorAddr = "" },
			want:   "reflector_addr is required when probe_mode is udp",
		},
		{
			name:   "http speedtest without url",
			mutate: func(d *Daemon) { d.SpeedtestMode = "http"; d.HTTPProbeURL = "" },
			want:   "http_probe_url is required when speedtest_mode is http",
		},
		{
			name:   "unknown discipline",
			mutate: func(d *Daemon) { d.Discipline = "fq_codel" },
			want:   `discipline must be cake, htb or tbf (got "fq_codel")`,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := &Daemon{ProbeMode: "ping", SpeedtestMode: "cli", Discipline: "cake"}
			tt.mutate(d)
			err := Validate(Config{Shaping: validShaping(), Daemon: d})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSaveCreatesDirAndMode(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "etc", "shaperctl", "config.yaml")
	cfg := Config{Shaping: validShaping(), Daemon: &Daemon{Discipline: "tbf"}}
	require.NoError(t, Save(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// Save materializes defaults so the written file is self-contained.
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultAPIListen, loaded.Daemon.APIListen)
	assert.Equal(t, "tbf", loaded.Daemon.Discipline)
	require.NoError(t, Validate(loaded))
}

func TestIntervalHelpers(t *testing.T) {
	t.Parallel()

	s := Shaping{AdjustIntervalSec: 300, CalibrationIntervalSec: 43200}
	assert.Equal(t, 5*time.Minute, s.AdjustInterval())
	assert.Equal(t, 12*time.Hour, s.CalibrationInterval())

	d := Daemon{PersistSec: 600, ProbeTimeoutSec: 5}
	assert.Equal(t, 10*time.Minute, d.PersistInterval())
	assert.Equal(t, 5*time.Second, d.ProbeTimeout())
}
