// Package api defines request/response types shared by the daemon and
// the CLI, plus a thin HTTP client.
package api

import (
	"encoding/json"
	"time"
)

// StatusResponse is the engine snapshot served to the CLI.
type StatusResponse struct {
	State               string        `json:"state"`
	Interface           string        `json:"interface"`
	Discipline          string        `json:"discipline"`
	ApplyRates          bool          `json:"apply_rates"`
	CurrentRateMbps     float64       `json:"current_rate_mbps"`
	LastCalibrationMbps float64       `json:"last_calibration_mbps,omitempty"`
	LastCalibrationAt   *time.Time    `json:"last_calibration_at,omitempty"`
	LastLatencyMs       float64       `json:"last_latency_ms,omitempty"`
	CurrentHour         *HourBaseline `json:"current_hour,omitempty"`
	LearningMode        bool          `json:"learning_mode"`
	LearningSince       *time.Time    `json:"learning_since,omitempty"`
	LearningProgressPct float64       `json:"learning_progress_pct"`
	LastAdjustAt        *time.Time    `json:"last_adjust_at,omitempty"`
	LastAdjustBranch    string        `json:"last_adjust_branch,omitempty"`
	LastAdjustReason    string        `json:"last_adjust_reason,omitempty"`
	Counters            Counters      `json:"counters"`
}

// Counters are loop totals since the daemon started.
type Counters struct {
	AdjustCycles    int64 `json:"adjust_cycles"`
	CalibrateCycles int64 `json:"calibrate_cycles"`
	SkippedCycles   int64 `json:"skipped_cycles"`
	ApplyFailures   int64 `json:"apply_failures"`
}

// HourBaseline is one learned weekly slot.
type HourBaseline struct {
	Day         int       `json:"day"`
	Hour        int       `json:"hour"`
	MeanMbps    float64   `json:"mean_mbps"`
	StdDevMbps  float64   `json:"std_dev_mbps"`
	MinMbps     float64   `json:"min_mbps"`
	MaxMbps     float64   `json:"max_mbps"`
	MedianMbps  float64   `json:"median_mbps"`
	Samples     int       `json:"samples"`
	LastUpdated time.Time `json:"last_updated,omitempty"`
}

// BaselineResponse lists every known slot.
type BaselineResponse struct {
	ProgressPct float64        `json:"progress_pct"`
	Complete    bool           `json:"complete"`
	Slots       []HourBaseline `json:"slots"`
}

// CalibrateRequest optionally carries a pre-collected speed test
// result. When Result is empty the daemon runs its own probe.
type CalibrateRequest struct {
	Result json.RawMessage `json:"result,omitempty"`
}

// CalibrateResponse reports one calibration outcome.
type CalibrateResponse struct {
	MeasuredMbps      float64 `json:"measured_mbps"`
	BlendedMbps       float64 `json:"blended_mbps"`
	BaselineMbps      float64 `json:"baseline_mbps,omitempty"`
	EffectiveRateMbps float64 `json:"effective_rate_mbps"`
	Applied           bool    `json:"applied"`
}

// AdjustRequest optionally carries a latency reading. When LatencyMs
// is nil the daemon probes the link itself.
type AdjustRequest struct {
	LatencyMs *float64 `json:"latency_ms,omitempty"`
}

// AdjustResponse reports one control-law decision.
type AdjustResponse struct {
	LatencyMs   float64 `json:"latency_ms"`
	NewRateMbps float64 `json:"new_rate_mbps"`
	Branch      string  `json:"branch"`
	Reason      string  `json:"reason"`
	Applied     bool    `json:"applied"`
}

// LearningResponse reports the learning flag after a toggle.
type LearningResponse struct {
	LearningMode  bool       `json:"learning_mode"`
	LearningSince *time.Time `json:"learning_since,omitempty"`
}
