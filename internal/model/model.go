package model

import "time"

// CalibrationSample is one bandwidth-test observation after validation.
// Day and hour buckets are derived from Timestamp when the sample is
// committed to the baseline table.
type CalibrationSample struct {
	Timestamp     time.Time
	DownloadMbps  float64
	UploadMbps    float64
	LatencyMs     float64
	JitterMs      float64
	PacketLossPct float64
	ServerName    string
	ServerHost    string
	ISP           string
}

// HistoryRecord is a single row of the shaping history log, covering both
// calibration runs and latency-driven adjustments.
type HistoryRecord struct {
	Timestamp    time.Time
	Kind         string // calibrate|adjust
	LatencyMs    float64
	MeasuredMbps float64
	BlendedMbps  float64
	RateMbps     float64
	Branch       string
	Reason       string
}

// History record kinds.
const (
	KindCalibrate = "calibrate"
	KindAdjust    = "adjust"
)
