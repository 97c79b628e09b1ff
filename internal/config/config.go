package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIListen              = "127.0.0.1:8710"
	DefaultAdjustIntervalSec      = 300
	DefaultCalibrationIntervalSec = 43200
	DefaultPersistIntervalSec     = 600
	DefaultProbeTimeoutSec        = 5
	DefaultPingCount              = 3
	DefaultProbeMode              = "ping"
	DefaultSpeedtestMode          = "cli"
	DefaultHTTPProbeSeconds       = 10
	DefaultDiscipline             = "cake"
	DefaultLogLevel               = "info"
	DefaultDataDir                = "/var/lib/shaperctl"
)

// Config holds engine shaping parameters and daemon wiring.
type Config struct {
	Shaping *Shaping `yaml:"shaping,omitempty"`
	Daemon  *Daemon  `yaml:"daemon,omitempty"`
}

// Shaping parameterizes the rate engine for one uplink. Rates are Mbps,
// latencies are milliseconds.
type Shaping struct {
	Interface              string    `yaml:"interface"`
	MinRateMbps            float64   `yaml:"min_rate_mbps"`
	MaxRateMbps            float64   `yaml:"max_rate_mbps"`
	AbsoluteMaxRateMbps    float64   `yaml:"absolute_max_rate_mbps"`
	OverheadMultiplier     float64   `yaml:"overhead_multiplier"`
	PingTarget             string    `yaml:"ping_target"`
	BaselineLatencyMs      float64   `yaml:"baseline_latency_ms"`
	LatencyThresholdMs     float64   `yaml:"latency_threshold_ms"`
	DecreaseFactor         float64   `yaml:"decrease_factor"`
	IncreaseFactor         float64   `yaml:"increase_factor"`
	AdjustIntervalSec      int       `yaml:"adjust_interval_sec"`
	CalibrationIntervalSec int       `yaml:"calibration_interval_sec"`
	LearningMode           bool      `yaml:"learning_mode,omitempty"`
	LearningSince          time.Time `yaml:"learning_since,omitempty"`
}

// Daemon configures the collaborators around the engine: probes, the
// queue-discipline applier, persistence paths, and the local API.
type Daemon struct {
	Category         string   `yaml:"category,omitempty"`
	NominalDownMbps  float64  `yaml:"nominal_down_mbps,omitempty"`
	NominalUpMbps    float64  `yaml:"nominal_up_mbps,omitempty"`
	BaselinePath     string   `yaml:"baseline_path"`
	StatePath        string   `yaml:"state_path"`
	HistoryPath      string   `yaml:"history_path"`
	APIListen        string   `yaml:"api_listen"`
	ProbeMode        string   `yaml:"probe_mode"` // ping|udp
	ReflectorAddr    string   `yaml:"reflector_addr,omitempty"`
	PingCount        int      `yaml:"ping_count"`
	ProbeTimeoutSec  int      `yaml:"probe_timeout_sec"`
	SpeedtestMode    string   `yaml:"speedtest_mode"` // cli|http
	SpeedtestCommand string   `yaml:"speedtest_command,omitempty"`
	HTTPProbeURL     string   `yaml:"http_probe_url,omitempty"`
	HTTPProbeSeconds int      `yaml:"http_probe_seconds"`
	Discipline       string   `yaml:"discipline"` // cake|htb|tbf
	ApplyRates       bool     `yaml:"apply_rates"`
	PersistSec       int      `yaml:"persist_interval_sec"`
	STUNServers      []string `yaml:"stun_servers,omitempty"`
	LogLevel         string   `yaml:"log_level"`
}

// ValidationError reports every violated constraint at once so an
// operator sees the complete list in one pass.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", strings.Join(e.Violations, "; "))
}

// Load reads and parses a YAML config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse config")
	}

	ApplyDefaults(&cfg)
	return cfg, nil
}

// Save writes a YAML config file to disk.
func Save(path string, cfg Config) error {
	ApplyDefaults(&cfg)
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return errors.Wrap(err, "encode config")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks the full file config. All violations are reported in a
// single ValidationError rather than failing on the first.
func Validate(cfg Config) error {
	var violations []string

	if cfg.Shaping == nil {
		violations = append(violations, "shaping section is required")
	} else if err := cfg.Shaping.Validate(); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			violations = append(violations, verr.Violations...)
		} else {
			violations = append(violations, err.Error())
		}
	}

	if cfg.Daemon != nil {
		violations = append(violations, cfg.Daemon.violations()...)
	}

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

// Validate checks every shaping invariant and reports all violations.
func (s Shaping) Validate() error {
	var violations []string

	if s.Interface == "" {
		violations = append(violations, "interface is required")
	}
	if s.PingTarget == "" {
		violations = append(violations, "ping_target is required")
	}
	if s.MinRateMbps <= 0 {
		violations = append(violations, fmt.Sprintf("min_rate_mbps must be > 0 (got %.1f)", s.MinRateMbps))
	}
	if s.MaxRateMbps <= 0 {
		violations = append(violations, fmt.Sprintf("max_rate_mbps must be > 0 (got %.1f)", s.MaxRateMbps))
	}
	if s.AbsoluteMaxRateMbps <= 0 {
		violations = append(violations, fmt.Sprintf("absolute_max_rate_mbps must be > 0 (got %.1f)", s.AbsoluteMaxRateMbps))
	}
	if s.MinRateMbps > 0 && s.MaxRateMbps > 0 && s.MinRateMbps > s.MaxRateMbps {
		violations = append(violations, fmt.Sprintf("min_rate_mbps %.1f exceeds max_rate_mbps %.1f", s.MinRateMbps, s.MaxRateMbps))
	}
	if s.MaxRateMbps > 0 && s.AbsoluteMaxRateMbps > 0 && s.MaxRateMbps > s.AbsoluteMaxRateMbps {
		violations = append(violations, fmt.Sprintf("max_rate_mbps %.1f exceeds absolute_max_rate_mbps %.1f", s.MaxRateMbps, s.AbsoluteMaxRateMbps))
	}
	if s.OverheadMultiplier <= 0 || s.OverheadMultiplier > 1 {
		violations = append(violations, fmt.Sprintf("overhead_multiplier must be in (0, 1] (got %.2f)", s.OverheadMultiplier))
	}
	if s.BaselineLatencyMs <= 0 {
		violations = append(violations, fmt.Sprintf("baseline_latency_ms must be > 0 (got %.1f)", s.BaselineLatencyMs))
	}
	if s.LatencyThresholdMs <= 0 {
		violations = append(violations, fmt.Sprintf("latency_threshold_ms must be > 0 (got %.1f)", s.LatencyThresholdMs))
	}
	if s.DecreaseFactor <= 0 || s.DecreaseFactor >= 1 {
		violations = append(violations, fmt.Sprintf("decrease_factor must be in (0, 1) (got %.2f)", s.DecreaseFactor))
	}
	if s.IncreaseFactor <= 1 {
		violations = append(violations, fmt.Sprintf("increase_factor must be > 1 (got %.2f)", s.IncreaseFactor))
	}
	if s.AdjustIntervalSec <= 0 {
		violations = append(violations, fmt.Sprintf("adjust_interval_sec must be > 0 (got %d)", s.AdjustIntervalSec))
	}
	if s.CalibrationIntervalSec <= 0 {
		violations = append(violations, fmt.Sprintf("calibration_interval_sec must be > 0 (got %d)", s.CalibrationIntervalSec))
	}

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

func (d Daemon) violations() []string {
	var violations []string
	if d.ProbeMode != "ping" && d.ProbeMode != "udp" {
		violations = append(violations, fmt.Sprintf("probe_mode must be ping or udp (got %q)", d.ProbeMode))
	}
	if d.ProbeMode == "udp" && d.ReflectorAddr == "" {
		violations = append(violations, "reflector_addr is required when probe_mode is udp")
	}
	if d.SpeedtestMode != "cli" && d.SpeedtestMode != "http" {
		violations = append(violations, fmt.Sprintf("speedtest_mode must be cli or http (got %q)", d.SpeedtestMode))
	}
	if d.SpeedtestMode == "http" && d.HTTPProbeURL == "" {
		violations = append(violations, "http_probe_url is required when speedtest_mode is http")
	}
	switch d.Discipline {
	case "cake", "htb", "tbf":
	default:
		violations = append(violations, fmt.Sprintf("discipline must be cake, htb or tbf (got %q)", d.Discipline))
	}
	return violations
}

// ApplyDefaults fills in default values when empty. The daemon section
// is materialized so loaded configs never carry a nil Daemon.
func ApplyDefaults(cfg *Config) {
	if cfg.Shaping != nil {
		if cfg.Shaping.AdjustIntervalSec == 0 {
			cfg.Shaping.AdjustIntervalSec = DefaultAdjustIntervalSec
		}
		if cfg.Shaping.CalibrationIntervalSec == 0 {
			cfg.Shaping.CalibrationIntervalSec = DefaultCalibrationIntervalSec
		}
	}

	if cfg.Daemon == nil {
		cfg.Daemon = &Daemon{}
	}
	d := cfg.Daemon
	if d.BaselinePath == "" {
		d.BaselinePath = filepath.Join(DefaultDataDir, "baseline.yaml")
	}
	if d.StatePath == "" {
		d.StatePath = filepath.Join(DefaultDataDir, "state.yaml")
	}
	if d.HistoryPath == "" {
		d.HistoryPath = filepath.Join(DefaultDataDir, "history.csv")
	}
	if d.APIListen == "" {
		d.APIListen = DefaultAPIListen
	}
	if d.ProbeMode == "" {
		d.ProbeMode = DefaultProbeMode
	}
	if d.PingCount == 0 {
		d.PingCount = DefaultPingCount
	}
	if d.ProbeTimeoutSec == 0 {
		d.ProbeTimeoutSec = DefaultProbeTimeoutSec
	}
	if d.SpeedtestMode == "" {
		d.SpeedtestMode = DefaultSpeedtestMode
	}
	if d.HTTPProbeSeconds == 0 {
		d.HTTPProbeSeconds = DefaultHTTPProbeSeconds
	}
	if d.Discipline == "" {
		d.Discipline = DefaultDiscipline
	}
	if d.PersistSec == 0 {
		d.PersistSec = DefaultPersistIntervalSec
	}
	if d.LogLevel == "" {
		d.LogLevel = DefaultLogLevel
	}
}

// AdjustInterval returns the adjustment cadence as a duration.
func (s Shaping) AdjustInterval() time.Duration {
	return time.Duration(s.AdjustIntervalSec) * time.Second
}

// CalibrationInterval returns the calibration cadence as a duration.
func (s Shaping) CalibrationInterval() time.Duration {
	return time.Duration(s.CalibrationIntervalSec) * time.Second
}

// PersistInterval returns the persistence cadence as a duration.
func (d Daemon) PersistInterval() time.Duration {
	return time.Duration(d.PersistSec) * time.Second
}

// ProbeTimeout returns the per-probe timeout as a duration.
func (d Daemon) ProbeTimeout() time.Duration {
	return time.Duration(d.ProbeTimeoutSec) * time.Second
}
