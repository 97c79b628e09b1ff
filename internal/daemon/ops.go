package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"shaperctl/internal/api"
	"shaperctl/internal/baseline"
	"shaperctl/internal/calibration"
	"shaperctl/internal/config"
	"shaperctl/internal/engine"
	"shaperctl/internal/model"
	"shaperctl/internal/probe"
)

// Status returns the engine snapshot in wire form.
func (d *Daemon) Status() api.StatusResponse {
	resp := statusResponse(d.eng.Status(), d.cfg)
	d.statMu.Lock()
	resp.Counters = d.counters
	d.statMu.Unlock()
	return resp
}

// Baseline returns every known weekly slot.
func (d *Daemon) Baseline() api.BaselineResponse {
	views := d.eng.Baseline()
	progress := d.eng.Status().LearningProgressPct

	resp := api.BaselineResponse{
		ProgressPct: progress,
		Complete:    progress >= 100,
		Slots:       make([]api.HourBaseline, 0, len(views)),
	}
	for _, v := range views {
		resp.Slots = append(resp.Slots, toHourBaseline(v.Day, v.Hour, v.HourlyBaseline))
	}
	return resp
}

// Calibrate runs one calibration cycle. An empty result runs the
// configured bandwidth probe; otherwise the given report is processed
// as-is, which is how operators push an externally collected test.
func (d *Daemon) Calibrate(ctx context.Context, result json.RawMessage) (api.CalibrateResponse, error) {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	raw := []byte(result)
	if len(raw) == 0 {
		var err error
		raw, err = d.runSpeedtest(ctx)
		if err != nil {
			d.noteSkip()
			d.log.Warn().Err(err).Msg("bandwidth probe failed, keeping current rate")
			return api.CalibrateResponse{}, err
		}
	}

	normalized, err := normalizeReport(raw)
	if err != nil {
		return api.CalibrateResponse{}, err
	}

	out, err := d.eng.ProcessOutcome(normalized)
	if err != nil {
		return api.CalibrateResponse{}, err
	}

	d.statMu.Lock()
	d.counters.CalibrateCycles++
	d.statMu.Unlock()

	applied := d.applyRate(out.EffectiveRate)
	d.appendHistory(model.HistoryRecord{
		Timestamp:    out.Sample.Timestamp,
		Kind:         model.KindCalibrate,
		LatencyMs:    out.Sample.LatencyMs,
		MeasuredMbps: out.MeasuredMbps,
		BlendedMbps:  out.BlendedMbps,
		RateMbps:     out.EffectiveRate,
		Reason:       calibrationReason(out),
	})
	if err := d.persist(); err != nil {
		d.log.Warn().Err(err).Msg("persist after calibration failed")
	}

	d.log.Info().
		Float64("measured_mbps", out.MeasuredMbps).
		Float64("blended_mbps", out.BlendedMbps).
		Float64("effective_mbps", out.EffectiveRate).
		Bool("baseline_known", out.BaselineKnown).
		Msg("calibration committed")

	resp := api.CalibrateResponse{
		MeasuredMbps:      out.MeasuredMbps,
		BlendedMbps:       out.BlendedMbps,
		EffectiveRateMbps: out.EffectiveRate,
		Applied:           applied,
	}
	if out.BaselineKnown {
		resp.BaselineMbps = out.BaselineMedian
	}
	return resp, nil
}

// Adjust runs one control-law cycle. A nil latency runs the configured
// probe; a failed probe skips the cycle and keeps the current rate.
func (d *Daemon) Adjust(ctx context.Context, latencyMs *float64) (api.AdjustResponse, error) {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	var latency float64
	if latencyMs != nil {
		latency = *latencyMs
	} else {
		reading, err := d.measureLatency(ctx)
		if err != nil {
			d.noteSkip()
			d.statMu.Lock()
			d.probeFailures++
			streak := d.probeFailures
			d.statMu.Unlock()
			d.log.Warn().Err(err).Int("streak", streak).Msg("latency probe failed, keeping current rate")
			return api.AdjustResponse{}, err
		}
		d.statMu.Lock()
		d.probeFailures = 0
		d.statMu.Unlock()
		latency = reading.LatencyMs
	}

	current := d.eng.CurrentRate()
	newRate, reason, err := d.eng.AdjustRate(latency, current)
	if err != nil {
		return api.AdjustResponse{}, err
	}
	branch := d.eng.Status().LastAdjustBranch

	d.statMu.Lock()
	d.counters.AdjustCycles++
	d.statMu.Unlock()

	applied := d.applyRate(newRate)
	d.appendHistory(model.HistoryRecord{
		Timestamp: time.Now(),
		Kind:      model.KindAdjust,
		LatencyMs: latency,
		RateMbps:  newRate,
		Branch:    branch,
		Reason:    reason,
	})

	d.log.Info().
		Float64("latency_ms", latency).
		Float64("latency_trend_ms", d.trend.Update(latency)).
		Float64("rate_mbps", newRate).
		Str("branch", branch).
		Msg(reason)

	return api.AdjustResponse{
		LatencyMs:   latency,
		NewRateMbps: newRate,
		Branch:      branch,
		Reason:      reason,
		Applied:     applied,
	}, nil
}

// StartLearning flips the engine into learning mode and persists it.
func (d *Daemon) StartLearning() (api.LearningResponse, error) {
	if err := d.eng.StartLearningMode(); err != nil {
		return api.LearningResponse{}, err
	}
	if err := d.persist(); err != nil {
		d.log.Warn().Err(err).Msg("persist after learning toggle failed")
	}
	return d.learningResponse(), nil
}

// StopLearning returns the engine to monitoring and persists it.
func (d *Daemon) StopLearning() (api.LearningResponse, error) {
	if err := d.eng.StopLearningMode(); err != nil {
		return api.LearningResponse{}, err
	}
	if err := d.persist(); err != nil {
		d.log.Warn().Err(err).Msg("persist after learning toggle failed")
	}
	return d.learningResponse(), nil
}

func (d *Daemon) learningResponse() api.LearningResponse {
	st := d.eng.Status()
	resp := api.LearningResponse{LearningMode: st.LearningMode}
	if !st.LearningSince.IsZero() {
		since := st.LearningSince
		resp.LearningSince = &since
	}
	return resp
}

func (d *Daemon) noteSkip() {
	d.statMu.Lock()
	d.counters.SkippedCycles++
	d.statMu.Unlock()
}

// normalizeReport re-anchors the speedtest timestamp in local time so
// samples land in the operator's weekly slots, not UTC's.
func normalizeReport(raw []byte) ([]byte, error) {
	r, err := calibration.Parse(raw)
	if err != nil {
		return nil, err
	}
	local := r.Timestamp.Local()
	r.Timestamp = &local
	return json.Marshal(r)
}

// syntheticReport shapes an HTTP download measurement like a speedtest
// CLI result so the calibration pipeline has a single input format.
func syntheticReport(res probe.DownloadResult, lat probe.Latency) ([]byte, error) {
	now := time.Now().UTC()
	bandwidth := res.Mbps * 1e6 / 8
	latency := lat.LatencyMs
	report := calibration.Report{
		Type:      "result",
		Timestamp: &now,
		Ping:      &calibration.Ping{Latency: &latency, Jitter: lat.JitterMs},
		Download: &calibration.Transfer{
			Bandwidth: &bandwidth,
			Bytes:     res.Bytes,
			Elapsed:   res.Elapsed.Milliseconds(),
		},
		PacketLoss: lat.LossPct,
	}
	return json.Marshal(&report)
}

func calibrationReason(out *calibration.Outcome) string {
	if !out.BaselineKnown {
		return fmt.Sprintf("no baseline for slot, measured %.1f Mbps", out.MeasuredMbps)
	}
	return fmt.Sprintf("measured %.1f blended %.1f against baseline %.1f Mbps",
		out.MeasuredMbps, out.BlendedMbps, out.BaselineMedian)
}

func statusResponse(st engine.Status, cfg config.Config) api.StatusResponse {
	resp := api.StatusResponse{
		State:               string(st.State),
		Interface:           cfg.Shaping.Interface,
		Discipline:          cfg.Daemon.Discipline,
		ApplyRates:          cfg.Daemon.ApplyRates,
		CurrentRateMbps:     st.CurrentRateMbps,
		LastCalibrationMbps: st.LastCalibrationMbps,
		LearningMode:        st.LearningMode,
		LearningProgressPct: st.LearningProgressPct,
		LastAdjustBranch:    st.LastAdjustBranch,
		LastAdjustReason:    st.LastAdjustReason,
	}
	if st.LatencyKnown {
		resp.LastLatencyMs = st.LastLatencyMs
	}
	if !st.LastCalibrationAt.IsZero() {
		at := st.LastCalibrationAt
		resp.LastCalibrationAt = &at
	}
	if !st.LearningSince.IsZero() {
		since := st.LearningSince
		resp.LearningSince = &since
	}
	if !st.LastAdjustAt.IsZero() {
		at := st.LastAdjustAt
		resp.LastAdjustAt = &at
	}
	if st.CurrentHourBaseline != nil {
		day, hour := baseline.BucketFor(time.Now())
		hb := toHourBaseline(day, hour, *st.CurrentHourBaseline)
		resp.CurrentHour = &hb
	}
	return resp
}

func toHourBaseline(day, hour int, hb baseline.HourlyBaseline) api.HourBaseline {
	return api.HourBaseline{
		Day:         day,
		Hour:        hour,
		MeanMbps:    hb.Mean,
		StdDevMbps:  hb.StdDev,
		MinMbps:     hb.Min,
		MaxMbps:     hb.Max,
		MedianMbps:  hb.Median,
		Samples:     hb.Samples,
		LastUpdated: hb.LastUpdated,
	}
}
