package ratectl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shaperctl/internal/config"
)

func testShaping() config.Shaping {
	return config.Shaping{
		Interface:              "eth0",
		PingTarget:             "192.0.2.1",
		MinRateMbps:            100,
		MaxRateMbps:            280,
		AbsoluteMaxRateMbps:    280,
		OverheadMultiplier:     0.97,
		BaselineLatencyMs:      17.9,
		LatencyThresholdMs:     2.2,
		DecreaseFactor:         0.97,
		IncreaseFactor:         1.04,
		AdjustIntervalSec:      300,
		CalibrationIntervalSec: 43200,
	}
}

func TestAdjustHighLatency(t *testing.T) {
	t.Parallel()

	ctl := New(testShaping())
	d := ctl.Adjust(22.5, 265)

	assert.Equal(t, BranchHighLatency, d.Branch)
	assert.Equal(t, 3, d.Deviations)
	assert.InDelta(t, 241.9, d.NewRate, 1e-9)
	assert.Contains(t, d.Reason, "3 deviation(s)")
	assert.Contains(t, d.Reason, "241.9")
}

func TestAdjustRecoveryLowBand(t *testing.T) {
	t.Parallel()

	ctl := New(testShaping())
	d := ctl.Adjust(17.2, 240)

	assert.Equal(t, BranchRecovery, d.Branch)
	// Double-strength increase: 240 * 1.04 * 1.04.
	assert.InDelta(t, 259.6, d.NewRate, 1e-9)
}

func TestAdjustNormalMidBandSnap(t *testing.T) {
	t.Parallel()

	ctl := New(testShaping())
	d := ctl.Adjust(18.1, 255)

	assert.Equal(t, BranchNormal, d.Branch)
	// 255 is above the 252 lower band but below midN: snap to 257.6.
	assert.InDelta(t, 257.6, d.NewRate, 1e-9)
	assert.Contains(t, d.Reason, "257.6")
}

func TestAdjustNormalLowBandGrowth(t *testing.T) {
	t.Parallel()

	ctl := New(testShaping())
	d := ctl.Adjust(18.0, 240)

	assert.Equal(t, BranchNormal, d.Branch)
	assert.InDelta(t, 249.6, d.NewRate, 1e-9) // 240 * 1.04
}

func TestAdjustNormalHoldsOnDrift(t *testing.T) {
	t.Parallel()

	ctl := New(testShaping())
	// diff 0.6 exceeds the 0.3 normal window: no growth even in band.
	d := ctl.Adjust(18.5, 240)

	assert.Equal(t, BranchNormal, d.Branch)
	assert.InDelta(t, 240, d.NewRate, 1e-9)
}

func TestAdjustRecoveryHoldsNearCeiling(t *testing.T) {
	t.Parallel()

	ctl := New(testShaping())
	// mid band is 263.2; a rate above it holds.
	d := ctl.Adjust(17.0, 270)

	assert.Equal(t, BranchRecovery, d.Branch)
	assert.InDelta(t, 266, d.NewRate, 1e-9) // capped at absoluteMax * 0.95
	assert.Contains(t, d.Reason, "holding")
}

func TestAdjustFloorsAtMinRate(t *testing.T) {
	t.Parallel()

	ctl := New(testShaping())
	d := ctl.Adjust(100, 265)

	assert.Equal(t, BranchHighLatency, d.Branch)
	assert.InDelta(t, 100, d.NewRate, 1e-9)
}

func TestAdjustSafetyCap(t *testing.T) {
	t.Parallel()

	ctl := New(testShaping())
	// 250 * 1.04^2 = 270.4, over the 266.0 safety cap.
	d := ctl.Adjust(17.0, 250)

	assert.InDelta(t, 266, d.NewRate, 1e-9)
}

func TestAdjustConfiguredMaxCap(t *testing.T) {
	t.Parallel()

	cfg := testShaping()
	cfg.MaxRateMbps = 245
	ctl := New(cfg)
	d := ctl.Adjust(18.1, 244)

	// Growth would reach 253.8; the configured ceiling wins.
	assert.InDelta(t, 245, d.NewRate, 1e-9)
}

func TestAdjustBoundaryOperators(t *testing.T) {
	t.Parallel()

	// Exactly representable constants so the boundary comparisons are
	// exercised without float noise.
	cfg := testShaping()
	cfg.BaselineLatencyMs = 18.0
	cfg.LatencyThresholdMs = 2.25
	ctl := New(cfg)

	// Exactly baseline + threshold enters the high-latency branch with
	// a single deviation step.
	d := ctl.Adjust(20.25, 265)
	require.Equal(t, BranchHighLatency, d.Branch)
	assert.Equal(t, 1, d.Deviations)

	// Exactly baseline - 0.4 is NOT improved; it lands in the normal
	// branch and its growth arm still applies.
	d = ctl.Adjust(17.6, 240)
	require.Equal(t, BranchNormal, d.Branch)
	assert.InDelta(t, 249.6, d.NewRate, 1e-9)
}

func TestAdjustIsPure(t *testing.T) {
	t.Parallel()

	ctl := New(testShaping())
	first := ctl.Adjust(19.3, 222.2)
	for i := 0; i < 16; i++ {
		assert.Equal(t, first, ctl.Adjust(19.3, 222.2))
	}
}

func TestRound1(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 259.6, Round1(259.584), 1e-9)
	assert.InDelta(t, 241.9, Round1(241.8583), 1e-9)
	assert.InDelta(t, 100, Round1(100.04), 1e-9)
}
