// Package calibration turns raw bandwidth-test output into validated
// samples and an effective shaped rate. It reads the baseline model but
// never writes it; committing samples is the orchestrator's job.
package calibration

import (
	"encoding/json"
	"fmt"
	"time"

	"shaperctl/internal/baseline"
	"shaperctl/internal/config"
	"shaperctl/internal/model"
)

const (
	// safetyCapRatio keeps the effective rate 5% under the absolute
	// ceiling. Not adjustable per call.
	safetyCapRatio = 0.95

	// maxPlausibleLatencyMs rejects garbage probe readings before they
	// can pollute the baseline.
	maxPlausibleLatencyMs = 2000
)

// ParseError reports a missing or malformed calibration payload field.
type ParseError struct {
	Field string
	Cause error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("parse calibration: %s: %v", e.Field, e.Cause)
	}
	return fmt.Sprintf("parse calibration: %s: missing", e.Field)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// Report mirrors the speedtest CLI JSON result. Unknown fields are
// ignored; the required numerics are pointers so absence is detectable.
type Report struct {
	Type       string     `json:"type,omitempty"`
	Timestamp  *time.Time `json:"timestamp"`
	Ping       *Ping      `json:"ping"`
	Download   *Transfer  `json:"download"`
	Upload     *Transfer  `json:"upload"`
	PacketLoss float64    `json:"packetLoss"`
	ISP        string     `json:"isp,omitempty"`
	Interface  *Interface `json:"interface,omitempty"`
	Server     *Server    `json:"server,omitempty"`
	Result     *Result    `json:"result,omitempty"`
}

// Ping is the latency block of a test result, all milliseconds.
type Ping struct {
	Jitter  float64  `json:"jitter"`
	Latency *float64 `json:"latency"`
	Low     float64  `json:"low"`
	High    float64  `json:"high"`
}

// Transfer is one direction's throughput block. Bandwidth is bytes/sec,
// Elapsed is milliseconds.
type Transfer struct {
	Bandwidth *float64 `json:"bandwidth"`
	Bytes     int64    `json:"bytes"`
	Elapsed   int64    `json:"elapsed"`
}

type Interface struct {
	InternalIP string `json:"internalIp"`
	Name       string `json:"name"`
	MacAddr    string `json:"macAddr"`
	IsVPN      bool   `json:"isVpn"`
	ExternalIP string `json:"externalIp"`
}

type Server struct {
	ID       int    `json:"id"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Name     string `json:"name"`
	Location string `json:"location"`
	Country  string `json:"country"`
	IP       string `json:"ip"`
}

type Result struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Persisted bool   `json:"persisted"`
}

// Outcome is the result of processing one calibration run.
type Outcome struct {
	// Sample carries the blended download speed so single noisy tests
	// cannot drag the learned trend; upload and latency stay raw.
	Sample         model.CalibrationSample
	MeasuredMbps   float64
	BlendedMbps    float64
	EffectiveRate  float64
	BaselineMedian float64
	BaselineKnown  bool
}

// Parse decodes a speedtest JSON payload and checks the required fields
// are present.
func Parse(raw []byte) (*Report, error) {
	var r Report
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, &ParseError{Field: "payload", Cause: err}
	}
	if r.Timestamp == nil || r.Timestamp.IsZero() {
		return nil, &ParseError{Field: "timestamp"}
	}
	if r.Download == nil || r.Download.Bandwidth == nil {
		return nil, &ParseError{Field: "download.bandwidth"}
	}
	if r.Ping == nil || r.Ping.Latency == nil {
		return nil, &ParseError{Field: "ping.latency"}
	}
	return &r, nil
}

// Validate rejects results that would corrupt the baseline.
func Validate(r *Report) error {
	if mbps := r.DownloadMbps(); mbps <= 0 {
		return fmt.Errorf("calibration rejected: download %.2f Mbps is not positive", mbps)
	}
	if lat := r.LatencyMs(); lat <= 0 || lat > maxPlausibleLatencyMs {
		return fmt.Errorf("calibration rejected: latency %.1fms is not plausible", lat)
	}
	return nil
}

// DownloadMbps converts the download bandwidth to Mbps.
func (r *Report) DownloadMbps() float64 {
	if r.Download == nil || r.Download.Bandwidth == nil {
		return 0
	}
	return *r.Download.Bandwidth * 8 / 1e6
}

// UploadMbps converts the upload bandwidth to Mbps; zero when absent.
func (r *Report) UploadMbps() float64 {
	if r.Upload == nil || r.Upload.Bandwidth == nil {
		return 0
	}
	return *r.Upload.Bandwidth * 8 / 1e6
}

// LatencyMs returns the idle ping latency.
func (r *Report) LatencyMs() float64 {
	if r.Ping == nil || r.Ping.Latency == nil {
		return 0
	}
	return *r.Ping.Latency
}

// EffectiveRate applies overhead and the safety clamp to a measured (or
// blended) speed: clamp(measured*overhead, floor, ceiling*0.95). Rounding
// happens where the rate meets the queue discipline, not here.
func EffectiveRate(measuredMbps, overhead, floor, absoluteCeiling float64) float64 {
	rate := measuredMbps * overhead
	ceil := absoluteCeiling * safetyCapRatio
	if rate < floor {
		rate = floor
	}
	if rate > ceil {
		rate = ceil
	}
	return rate
}

// Process validates a report, blends it against the current-hour
// baseline with the given tier weights, and computes the effective rate.
// The baseline table is read, never written.
func Process(r *Report, tbl *baseline.Table, within, below baseline.Weights, shaping config.Shaping) (*Outcome, error) {
	if err := Validate(r); err != nil {
		return nil, err
	}

	measured := r.DownloadMbps()
	sample := model.CalibrationSample{
		Timestamp:     *r.Timestamp,
		DownloadMbps:  measured,
		UploadMbps:    r.UploadMbps(),
		LatencyMs:     r.LatencyMs(),
		JitterMs:      r.JitterMs(),
		PacketLossPct: r.PacketLoss,
		ISP:           r.ISP,
	}
	if r.Server != nil {
		sample.ServerName = r.Server.Name
		sample.ServerHost = r.Server.Host
	}

	out := &Outcome{MeasuredMbps: measured, BlendedMbps: measured}
	if tbl != nil {
		if hb, ok := tbl.Lookup(sample.Timestamp); ok {
			out.BaselineMedian = hb.Median
			out.BaselineKnown = true
			out.BlendedMbps = baseline.Blend(measured, hb.Median, within, below)
		}
	}

	sample.DownloadMbps = out.BlendedMbps
	out.Sample = sample
	out.EffectiveRate = EffectiveRate(out.BlendedMbps, shaping.OverheadMultiplier, shaping.MinRateMbps, shaping.AbsoluteMaxRateMbps)
	return out, nil
}

// JitterMs returns ping jitter; zero when the block is absent.
func (r *Report) JitterMs() float64 {
	if r.Ping == nil {
		return 0
	}
	return r.Ping.Jitter
}
