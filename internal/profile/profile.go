// Package profile maps connection categories to the tuning constants the
// engine runs on. Each category is one row of the table; adding a
// category means adding a row, nothing else.
package profile

import (
	"fmt"
	"math"
	"sort"

	"shaperctl/internal/baseline"
	"shaperctl/internal/config"
)

// Category tags a connection technology.
type Category string

const (
	Cable         Category = "cable"
	Satellite     Category = "satellite"
	Fiber         Category = "fiber"
	DSL           Category = "dsl"
	FixedWireless Category = "fixed-wireless"
	Cellular      Category = "cellular"
)

// Tuning is one category's row: rate factors applied to the nominal
// contract speed, latency anchors, controller gains, the hourly shape
// used to seed the weekly baseline, and blending weights.
type Tuning struct {
	CeilingFactor         float64
	FloorFactor           float64
	AbsoluteCeilingFactor float64
	OverheadFactor        float64
	BaselineLatencyMs     float64
	LatencyThresholdMs    float64
	DecreaseFactor        float64
	IncreaseFactor        float64
	HourlyShape           [24]float64
	WeekendShape          *[24]float64
	BlendWithin           baseline.Weights
	BlendBelow            baseline.Weights
}

var (
	flatShape = [24]float64{
		0.98, 0.98, 0.98, 0.98, 0.98, 0.98,
		0.98, 0.98, 0.98, 0.98, 0.98, 0.98,
		0.98, 0.98, 0.98, 0.98, 0.98, 0.98,
		0.98, 0.98, 0.98, 0.98, 0.98, 0.98,
	}
	cableShape = [24]float64{
		1.00, 1.00, 1.00, 1.00, 1.00, 1.00,
		1.00, 0.95, 0.95, 0.95, 0.95, 0.95,
		0.95, 0.95, 0.95, 0.95, 0.90, 0.90,
		0.90, 0.80, 0.80, 0.80, 0.80, 0.90,
	}
	cableWeekend = [24]float64{
		1.00, 1.00, 1.00, 1.00, 1.00, 1.00,
		1.00, 1.00, 1.00, 0.85, 0.85, 0.85,
		0.85, 0.85, 0.85, 0.85, 0.85, 0.82,
		0.82, 0.82, 0.82, 0.82, 0.82, 0.90,
	}
	dslShape = [24]float64{
		1.00, 1.00, 1.00, 1.00, 1.00, 1.00,
		1.00, 0.92, 0.92, 0.92, 0.92, 0.92,
		0.92, 0.92, 0.92, 0.92, 0.88, 0.88,
		0.85, 0.75, 0.75, 0.75, 0.75, 0.88,
	}
	satelliteShape = [24]float64{
		1.00, 1.00, 1.00, 1.00, 1.00, 1.00,
		0.95, 0.85, 0.85, 0.85, 0.85, 0.85,
		0.85, 0.85, 0.85, 0.85, 0.80, 0.80,
		0.75, 0.65, 0.65, 0.65, 0.65, 0.85,
	}
	satelliteWeekend = [24]float64{
		1.00, 1.00, 1.00, 1.00, 1.00, 1.00,
		0.95, 0.90, 0.85, 0.78, 0.75, 0.75,
		0.75, 0.75, 0.75, 0.78, 0.78, 0.72,
		0.70, 0.70, 0.70, 0.70, 0.72, 0.85,
	}
	fixedWirelessShape = [24]float64{
		1.00, 1.00, 1.00, 1.00, 1.00, 1.00,
		0.95, 0.90, 0.90, 0.90, 0.90, 0.90,
		0.90, 0.90, 0.90, 0.90, 0.85, 0.85,
		0.82, 0.78, 0.78, 0.78, 0.78, 0.88,
	}
	cellularShape = [24]float64{
		1.00, 1.00, 1.00, 1.00, 1.00, 1.00,
		0.90, 0.80, 0.80, 0.85, 0.85, 0.85,
		0.85, 0.85, 0.85, 0.85, 0.80, 0.60,
		0.60, 0.60, 0.60, 0.60, 0.60, 0.80,
	}
)

var table = map[Category]Tuning{
	Cable: {
		CeilingFactor: 1.00, FloorFactor: 0.35, AbsoluteCeilingFactor: 1.12,
		OverheadFactor:    0.97,
		BaselineLatencyMs: 18.0, LatencyThresholdMs: 2.2,
		DecreaseFactor: 0.97, IncreaseFactor: 1.04,
		HourlyShape: cableShape, WeekendShape: &cableWeekend,
		BlendWithin: baseline.Weights{Baseline: 0.6, Measured: 0.4},
		BlendBelow:  baseline.Weights{Baseline: 0.8, Measured: 0.2},
	},
	Fiber: {
		CeilingFactor: 1.00, FloorFactor: 0.50, AbsoluteCeilingFactor: 1.08,
		OverheadFactor:    0.98,
		BaselineLatencyMs: 6.0, LatencyThresholdMs: 1.5,
		DecreaseFactor: 0.98, IncreaseFactor: 1.05,
		HourlyShape: flatShape,
		BlendWithin: baseline.Weights{Baseline: 0.7, Measured: 0.3},
		BlendBelow:  baseline.Weights{Baseline: 0.85, Measured: 0.15},
	},
	DSL: {
		CeilingFactor: 1.00, FloorFactor: 0.30, AbsoluteCeilingFactor: 1.05,
		OverheadFactor:    0.93,
		BaselineLatencyMs: 28.0, LatencyThresholdMs: 4.0,
		DecreaseFactor: 0.96, IncreaseFactor: 1.03,
		HourlyShape: dslShape,
		BlendWithin: baseline.Weights{Baseline: 0.6, Measured: 0.4},
		BlendBelow:  baseline.Weights{Baseline: 0.8, Measured: 0.2},
	},
	Satellite: {
		CeilingFactor: 0.95, FloorFactor: 0.20, AbsoluteCeilingFactor: 1.25,
		OverheadFactor:    0.88,
		BaselineLatencyMs: 45.0, LatencyThresholdMs: 12.0,
		DecreaseFactor: 0.93, IncreaseFactor: 1.06,
		HourlyShape: satelliteShape, WeekendShape: &satelliteWeekend,
		// High natural variance: trust the live measurement more.
		BlendWithin: baseline.Weights{Baseline: 0.5, Measured: 0.5},
		BlendBelow:  baseline.Weights{Baseline: 0.65, Measured: 0.35},
	},
	FixedWireless: {
		CeilingFactor: 0.95, FloorFactor: 0.25, AbsoluteCeilingFactor: 1.15,
		OverheadFactor:    0.92,
		BaselineLatencyMs: 24.0, LatencyThresholdMs: 6.0,
		DecreaseFactor: 0.95, IncreaseFactor: 1.04,
		HourlyShape: fixedWirelessShape,
		BlendWithin: baseline.Weights{Baseline: 0.6, Measured: 0.4},
		BlendBelow:  baseline.Weights{Baseline: 0.8, Measured: 0.2},
	},
	Cellular: {
		CeilingFactor: 0.90, FloorFactor: 0.15, AbsoluteCeilingFactor: 1.30,
		OverheadFactor:    0.85,
		BaselineLatencyMs: 38.0, LatencyThresholdMs: 10.0,
		DecreaseFactor: 0.92, IncreaseFactor: 1.06,
		HourlyShape: cellularShape,
		BlendWithin: baseline.Weights{Baseline: 0.55, Measured: 0.45},
		BlendBelow:  baseline.Weights{Baseline: 0.7, Measured: 0.3},
	},
}

// Categories returns all known categories, sorted.
func Categories() []Category {
	out := make([]Category, 0, len(table))
	for cat := range table {
		out = append(out, cat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Parse resolves a category name.
func Parse(name string) (Category, error) {
	cat := Category(name)
	if _, ok := table[cat]; !ok {
		return "", fmt.Errorf("unknown connection category %q", name)
	}
	return cat, nil
}

// Lookup returns the tuning row for a category.
func Lookup(cat Category) (Tuning, bool) {
	tuning, ok := table[cat]
	return tuning, ok
}

// Derive builds shaping parameters from a category and the nominal
// contract speeds. Interface and ping target are operator-supplied and
// left empty here.
func Derive(cat Category, nominalDown, nominalUp float64) (config.Shaping, error) {
	tuning, ok := table[cat]
	if !ok {
		return config.Shaping{}, fmt.Errorf("unknown connection category %q", cat)
	}
	if nominalDown <= 0 {
		return config.Shaping{}, fmt.Errorf("nominal download must be > 0 (got %.1f)", nominalDown)
	}
	_ = nominalUp // recorded by the caller; upload is measured, never shaped

	return config.Shaping{
		MinRateMbps:            round1(nominalDown * tuning.FloorFactor),
		MaxRateMbps:            round1(nominalDown * tuning.CeilingFactor),
		AbsoluteMaxRateMbps:    round1(nominalDown * tuning.AbsoluteCeilingFactor),
		OverheadMultiplier:     tuning.OverheadFactor,
		BaselineLatencyMs:      tuning.BaselineLatencyMs,
		LatencyThresholdMs:     tuning.LatencyThresholdMs,
		DecreaseFactor:         tuning.DecreaseFactor,
		IncreaseFactor:         tuning.IncreaseFactor,
		AdjustIntervalSec:      config.DefaultAdjustIntervalSec,
		CalibrationIntervalSec: config.DefaultCalibrationIntervalSec,
	}, nil
}

// SeedBaseline prefills a weekly table from the category's hourly shape
// so the engine has a usable baseline before learning completes. Weekend
// days take the weekend shape when the category has one.
func SeedBaseline(cat Category, nominalDown float64) (*baseline.Table, error) {
	tuning, ok := table[cat]
	if !ok {
		return nil, fmt.Errorf("unknown connection category %q", cat)
	}
	if nominalDown <= 0 {
		return nil, fmt.Errorf("nominal download must be > 0 (got %.1f)", nominalDown)
	}

	tbl := baseline.New()
	for day := 0; day < baseline.Days; day++ {
		shape := tuning.HourlyShape
		if weekend(day) && tuning.WeekendShape != nil {
			shape = *tuning.WeekendShape
		}
		for hour := 0; hour < baseline.Hours; hour++ {
			median := round1(nominalDown * tuning.CeilingFactor * shape[hour])
			if err := tbl.SeedBucket(day, hour, median); err != nil {
				return nil, err
			}
		}
	}
	return tbl, nil
}

// BlendingRatios returns the (baseline, measured) weights for the
// category's blend tier. Weights always sum to 1.
func BlendingRatios(cat Category, withinThreshold bool) (baseline.Weights, error) {
	tuning, ok := table[cat]
	if !ok {
		return baseline.Weights{}, fmt.Errorf("unknown connection category %q", cat)
	}
	if withinThreshold {
		return tuning.BlendWithin, nil
	}
	return tuning.BlendBelow, nil
}

// weekend is Saturday or Sunday in time.Weekday numbering.
func weekend(day int) bool {
	return day == 0 || day == 6
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
