package baseline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shaperctl/internal/model"
)

// sundayBase is a Sunday at midnight, so slotTime(day, hour) lands on
// weekday `day` with time.Weekday numbering.
var sundayBase = time.Date(2025, time.March, 2, 0, 0, 0, 0, time.UTC)

func slotTime(day, hour int) time.Time {
	return sundayBase.AddDate(0, 0, day).Add(time.Duration(hour) * time.Hour)
}

func sample(day, hour int, mbps float64) model.CalibrationSample {
	return model.CalibrationSample{Timestamp: slotTime(day, hour), DownloadMbps: mbps, LatencyMs: 18}
}

func TestAddSampleRecomputesBucket(t *testing.T) {
	t.Parallel()

	tbl := New()
	tbl.AddSample(sample(2, 14, 100))
	tbl.AddSample(sample(2, 14, 300))
	got := tbl.AddSample(sample(2, 14, 200))

	assert.Equal(t, 3, got.Samples)
	assert.InDelta(t, 200, got.Mean, 1e-9)
	assert.InDelta(t, 200, got.Median, 1e-9)
	assert.InDelta(t, 100, got.Min, 1e-9)
	assert.InDelta(t, 300, got.Max, 1e-9)
	assert.InDelta(t, 100, got.StdDev, 1e-9)
	assert.Equal(t, slotTime(2, 14), got.LastUpdated)
}

func TestMedianAveragesEvenWindow(t *testing.T) {
	t.Parallel()

	tbl := New()
	for _, v := range []float64{100, 400, 200, 300} {
		tbl.AddSample(sample(1, 9, v))
	}
	got, ok := tbl.LookupBucket(1, 9)
	require.True(t, ok)
	assert.InDelta(t, 250, got.Median, 1e-9)
}

func TestWindowIsBounded(t *testing.T) {
	t.Parallel()

	tbl := New()
	var last HourlyBaseline
	for i := 0; i < maxWindow+8; i++ {
		last = tbl.AddSample(sample(4, 20, float64(100+i)))
	}

	assert.Equal(t, maxWindow, last.Samples)
	// Only the most recent window survives.
	assert.InDelta(t, 108, last.Min, 1e-9)
	assert.InDelta(t, float64(100+maxWindow+7), last.Max, 1e-9)
}

func TestLookupAbsentBucket(t *testing.T) {
	t.Parallel()

	tbl := New()
	_, ok := tbl.Lookup(slotTime(3, 3))
	assert.False(t, ok)

	require.NoError(t, tbl.SeedBucket(3, 3, 250))
	got, ok := tbl.LookupBucket(3, 3)
	require.True(t, ok)
	assert.InDelta(t, 250, got.Median, 1e-9)
	assert.Equal(t, 0, got.Samples)
	// Seeds answer lookups without counting as learning.
	assert.Zero(t, tbl.LearningProgress())
}

func TestSeedDoesNotOverrideMeasured(t *testing.T) {
	t.Parallel()

	tbl := New()
	tbl.AddSample(sample(5, 8, 180))
	require.NoError(t, tbl.SeedBucket(5, 8, 999))

	got, ok := tbl.LookupBucket(5, 8)
	require.True(t, ok)
	assert.InDelta(t, 180, got.Median, 1e-9)
	assert.Equal(t, 1, got.Samples)
}

func TestLearningProgress(t *testing.T) {
	t.Parallel()

	tbl := New()
	assert.Zero(t, tbl.LearningProgress())
	assert.False(t, tbl.IsComplete())

	tbl.AddSample(sample(0, 0, 100))
	assert.InDelta(t, 100.0/168, tbl.LearningProgress(), 1e-9)

	// Same bucket again: progress must not move.
	tbl.AddSample(sample(0, 0, 120))
	assert.InDelta(t, 100.0/168, tbl.LearningProgress(), 1e-9)

	prev := tbl.LearningProgress()
	for day := 0; day < Days; day++ {
		for hour := 0; hour < Hours; hour++ {
			tbl.AddSample(sample(day, hour, 200))
			cur := tbl.LearningProgress()
			if cur < prev {
				t.Fatalf("progress regressed: %.3f -> %.3f", prev, cur)
			}
			prev = cur
		}
	}
	assert.InDelta(t, 100, tbl.LearningProgress(), 1e-9)
	assert.True(t, tbl.IsComplete())
}

func TestBlendedSpeedTwoTier(t *testing.T) {
	t.Parallel()

	// Below 90% of the median: 80/20 keeps the trend in charge.
	assert.InDelta(t, 254, BlendedSpeed(230, 260), 1e-9)

	// At or above 90%: 60/40 lets improvement move faster.
	assert.InDelta(t, 256, BlendedSpeed(250, 260), 1e-9)

	// Exactly at the cutoff takes the faster tier.
	assert.InDelta(t, 0.6*260+0.4*234, BlendedSpeed(234, 260), 1e-9)

	// No baseline yet: measurement passes through.
	assert.InDelta(t, 230, BlendedSpeed(230, 0), 1e-9)
}

func TestBlendCustomWeights(t *testing.T) {
	t.Parallel()

	within := Weights{Baseline: 0.5, Measured: 0.5}
	below := Weights{Baseline: 0.65, Measured: 0.35}
	assert.InDelta(t, 0.65*200+0.35*120, Blend(120, 200, within, below), 1e-9)
	assert.InDelta(t, 0.5*200+0.5*195, Blend(195, 200, within, below), 1e-9)
}

func TestExportImportRoundTrip(t *testing.T) {
	t.Parallel()

	tbl := New()
	tbl.AddSample(sample(1, 7, 180))
	tbl.AddSample(sample(1, 7, 220))
	tbl.AddSample(sample(6, 23, 95))
	require.NoError(t, tbl.SeedBucket(2, 12, 300))

	flat := tbl.ExportFlat()
	require.Len(t, flat, 3)

	restored := New()
	require.NoError(t, restored.ImportFlat(flat))

	for key, want := range flat {
		day, hour, err := parseFlatKey(key)
		require.NoError(t, err)
		got, ok := restored.LookupBucket(day, hour)
		require.True(t, ok, "bucket %s missing after import", key)
		assert.InDelta(t, want, got.Median, 1e-9)
	}
}

func TestImportFlatRejectsMalformed(t *testing.T) {
	t.Parallel()

	tbl := New()
	err := tbl.ImportFlat(map[string]float64{
		"7_0":  100,
		"0_24": 100,
		"x_1":  100,
		"3_3":  -5,
	})
	require.Error(t, err)
	for _, key := range []string{"7_0", "0_24", "x_1", "3_3"} {
		assert.Contains(t, err.Error(), key)
	}

	// Nothing is imported from a rejected map entry.
	_, ok := tbl.LookupBucket(3, 3)
	assert.False(t, ok)
}

func TestBucketFor(t *testing.T) {
	t.Parallel()

	day, hour := BucketFor(time.Date(2026, time.August, 21, 19, 30, 0, 0, time.UTC))
	assert.Equal(t, int(time.Friday), day)
	assert.Equal(t, 19, hour)
}
