// Package baseline maintains the weekly throughput model: one statistics
// bucket per (weekday, hour) slot, recomputed from a bounded window of
// recent calibration samples. The bucket median is the authoritative
// baseline value; everything else is kept for display and diagnostics.
package baseline

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"shaperctl/internal/model"
)

const (
	// Days * hours gives the 168 weekly slots.
	Days  = 7
	Hours = 24

	// maxWindow bounds the retained samples per bucket. Statistics are
	// recomputed over this sliding window, so the median tracks drift
	// while memory stays fixed.
	maxWindow = 32

	// blendCutoffRatio splits the two blending tiers: measurements at or
	// above this fraction of the baseline median take the faster blend.
	blendCutoffRatio = 0.9
)

// Weights is a baseline/measured blending pair. The two fields sum to 1.
type Weights struct {
	Baseline float64
	Measured float64
}

// Default two-tier blending weights.
var (
	DefaultWithin = Weights{Baseline: 0.6, Measured: 0.4}
	DefaultBelow  = Weights{Baseline: 0.8, Measured: 0.2}
)

// HourlyBaseline holds the recomputed statistics for one weekly slot.
type HourlyBaseline struct {
	Mean        float64
	StdDev      float64
	Min         float64
	Max         float64
	Median      float64
	Samples     int
	LastUpdated time.Time
}

type bucket struct {
	window []float64
	stats  HourlyBaseline
	seeded bool
}

func (b *bucket) known() bool {
	return b.stats.Samples > 0 || b.seeded
}

// Table is the 7x24 weekly baseline model. Not safe for concurrent use;
// the orchestrator serializes access.
type Table struct {
	buckets [Days][Hours]bucket
}

// New returns an empty table.
func New() *Table {
	return &Table{}
}

// BucketFor maps a timestamp to its (day, hour) slot. Day follows
// time.Weekday, Sunday = 0. The timestamp is bucketed exactly as given;
// callers pick the zone.
func BucketFor(t time.Time) (day, hour int) {
	return int(t.Weekday()), t.Hour()
}

// AddSample appends the sample's download speed to its slot window and
// recomputes that slot's statistics. Returns the updated slot.
func (t *Table) AddSample(s model.CalibrationSample) HourlyBaseline {
	day, hour := BucketFor(s.Timestamp)
	b := &t.buckets[day][hour]

	b.window = append(b.window, s.DownloadMbps)
	if len(b.window) > maxWindow {
		b.window = b.window[len(b.window)-maxWindow:]
	}
	b.stats = compute(b.window)
	b.stats.LastUpdated = s.Timestamp
	return b.stats
}

// Lookup returns the slot for the given time. The second return is false
// when no sample or seed has ever touched the slot; callers must fall
// back to a configured default, never to a zero baseline.
func (t *Table) Lookup(at time.Time) (HourlyBaseline, bool) {
	day, hour := BucketFor(at)
	return t.LookupBucket(day, hour)
}

// LookupBucket is Lookup by explicit slot indices.
func (t *Table) LookupBucket(day, hour int) (HourlyBaseline, bool) {
	if day < 0 || day >= Days || hour < 0 || hour >= Hours {
		return HourlyBaseline{}, false
	}
	b := &t.buckets[day][hour]
	if !b.known() {
		return HourlyBaseline{}, false
	}
	return b.stats, true
}

// SeedBucket sets a slot's median without recording a sample. Seeded
// slots answer Lookup but do not count toward learning progress.
func (t *Table) SeedBucket(day, hour int, median float64) error {
	if day < 0 || day >= Days {
		return fmt.Errorf("day %d out of range", day)
	}
	if hour < 0 || hour >= Hours {
		return fmt.Errorf("hour %d out of range", hour)
	}
	if median <= 0 {
		return fmt.Errorf("median must be > 0 (got %.2f)", median)
	}
	b := &t.buckets[day][hour]
	if b.stats.Samples > 0 {
		// Measured data wins over seeds.
		return nil
	}
	b.seeded = true
	b.stats = HourlyBaseline{Mean: median, Min: median, Max: median, Median: median}
	return nil
}

// BlendedSpeed mixes a live measurement with the baseline median using
// the default two-tier weights: readings holding at least 90% of the
// median blend 60/40, lower readings blend 80/20 so a single congested
// test cannot drag the learned trend down.
func BlendedSpeed(measured, median float64) float64 {
	return Blend(measured, median, DefaultWithin, DefaultBelow)
}

// Blend is BlendedSpeed with caller-supplied tier weights.
func Blend(measured, median float64, within, below Weights) float64 {
	if median <= 0 {
		return measured
	}
	if measured >= median*blendCutoffRatio {
		return median*within.Baseline + measured*within.Measured
	}
	return median*below.Baseline + measured*below.Measured
}

// LearningProgress is the percentage of the 168 slots holding at least
// one measured sample. Seeded slots do not count.
func (t *Table) LearningProgress() float64 {
	filled := 0
	for day := 0; day < Days; day++ {
		for hour := 0; hour < Hours; hour++ {
			if t.buckets[day][hour].stats.Samples > 0 {
				filled++
			}
		}
	}
	return float64(filled) / float64(Days*Hours) * 100
}

// IsComplete reports whether every slot has measured data.
func (t *Table) IsComplete() bool {
	return t.LearningProgress() >= 100
}

// BucketView pairs a slot index with its statistics, for display.
type BucketView struct {
	Day  int
	Hour int
	HourlyBaseline
}

// Known returns all seeded or measured slots ordered by day then hour.
func (t *Table) Known() []BucketView {
	var out []BucketView
	for day := 0; day < Days; day++ {
		for hour := 0; hour < Hours; hour++ {
			b := &t.buckets[day][hour]
			if b.known() {
				out = append(out, BucketView{Day: day, Hour: hour, HourlyBaseline: b.stats})
			}
		}
	}
	return out
}

// ExportFlat returns "{day}_{hour}" -> median for every known slot. Only
// medians round-trip; other statistics are rebuilt from live samples.
func (t *Table) ExportFlat() map[string]float64 {
	out := make(map[string]float64)
	for day := 0; day < Days; day++ {
		for hour := 0; hour < Hours; hour++ {
			b := &t.buckets[day][hour]
			if b.known() {
				out[fmt.Sprintf("%d_%d", day, hour)] = b.stats.Median
			}
		}
	}
	return out
}

// ImportFlat seeds slots from a flat "{day}_{hour}" -> median map. Slots
// with measured samples are left alone. Malformed keys and non-positive
// medians are all reported in one error.
func (t *Table) ImportFlat(flat map[string]float64) error {
	var bad []string
	for key, median := range flat {
		day, hour, err := parseFlatKey(key)
		if err != nil {
			bad = append(bad, fmt.Sprintf("%s: %v", key, err))
			continue
		}
		if err := t.SeedBucket(day, hour, median); err != nil {
			bad = append(bad, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(bad) > 0 {
		sort.Strings(bad)
		return fmt.Errorf("import baseline: %s", strings.Join(bad, "; "))
	}
	return nil
}

func parseFlatKey(key string) (day, hour int, err error) {
	dayStr, hourStr, ok := strings.Cut(key, "_")
	if !ok {
		return 0, 0, fmt.Errorf("want day_hour")
	}
	day, err = strconv.Atoi(dayStr)
	if err != nil {
		return 0, 0, fmt.Errorf("bad day %q", dayStr)
	}
	hour, err = strconv.Atoi(hourStr)
	if err != nil {
		return 0, 0, fmt.Errorf("bad hour %q", hourStr)
	}
	if day < 0 || day >= Days {
		return 0, 0, fmt.Errorf("day %d out of range", day)
	}
	if hour < 0 || hour >= Hours {
		return 0, 0, fmt.Errorf("hour %d out of range", hour)
	}
	return day, hour, nil
}

func compute(window []float64) HourlyBaseline {
	if len(window) == 0 {
		return HourlyBaseline{}
	}

	stats := HourlyBaseline{
		Mean:    stat.Mean(window, nil),
		Min:     floats.Min(window),
		Max:     floats.Max(window),
		Median:  median(window),
		Samples: len(window),
	}
	if len(window) > 1 {
		stats.StdDev = stat.StdDev(window, nil)
	}
	return stats
}

// median averages the two middle elements for even windows; gonum's
// quantile kinds both step to a single sample, which is not what the
// control law should anchor on.
func median(window []float64) float64 {
	sorted := append([]float64(nil), window...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
