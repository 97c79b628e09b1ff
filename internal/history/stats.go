package history

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"shaperctl/internal/model"
)

// Summary is a basic statistics snapshot over a history window.
type Summary struct {
	Count             int
	From              time.Time
	To                time.Time
	AvgLatencyMs      float64
	P95LatencyMs      float64
	MinLatencyMs      float64
	MaxLatencyMs      float64
	AvgRateMbps       float64
	MinRateMbps       float64
	MaxRateMbps       float64
	Calibrations      int
	Adjusts           int
	HighLatencyEvents int
}

// Summarize computes summary statistics for records in a time window.
func Summarize(items []model.HistoryRecord, since time.Time) Summary {
	filtered := make([]model.HistoryRecord, 0, len(items))
	for _, rec := range items {
		if rec.Timestamp.After(since) || rec.Timestamp.Equal(since) {
			filtered = append(filtered, rec)
		}
	}

	if len(filtered) == 0 {
		return Summary{Count: 0}
	}

	latencies := make([]float64, 0, len(filtered))
	rates := make([]float64, 0, len(filtered))
	from := filtered[0].Timestamp
	to := filtered[0].Timestamp
	calibrations := 0
	adjusts := 0
	highLatency := 0

	for _, rec := range filtered {
		latencies = append(latencies, rec.LatencyMs)
		rates = append(rates, rec.RateMbps)
		if rec.Timestamp.Before(from) {
			from = rec.Timestamp
		}
		if rec.Timestamp.After(to) {
			to = rec.Timestamp
		}
		switch rec.Kind {
		case model.KindCalibrate:
			calibrations++
		case model.KindAdjust:
			adjusts++
		}
		if rec.Branch == "high-latency" {
			highLatency++
		}
	}

	sort.Float64s(latencies)

	return Summary{
		Count:             len(filtered),
		From:              from,
		To:                to,
		AvgLatencyMs:      stat.Mean(latencies, nil),
		P95LatencyMs:      percentile(latencies, 0.95),
		MinLatencyMs:      latencies[0],
		MaxLatencyMs:      latencies[len(latencies)-1],
		AvgRateMbps:       stat.Mean(rates, nil),
		MinRateMbps:       floats.Min(rates),
		MaxRateMbps:       floats.Max(rates),
		Calibrations:      calibrations,
		Adjusts:           adjusts,
		HighLatencyEvents: highLatency,
	}
}

// percentile returns the empirical p-quantile of sorted values. The
// smallest observation whose cumulative share reaches p is chosen, so no
// interpolation between samples happens.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}
