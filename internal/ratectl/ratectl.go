// Package ratectl implements the latency-driven rate control law. Three
// mutually exclusive branches are evaluated in a fixed order; the
// boundary comparisons were tuned empirically and must stay exactly as
// written.
package ratectl

import (
	"fmt"
	"math"

	"shaperctl/internal/config"
)

// Branch names which arm of the control law produced a decision.
type Branch string

const (
	BranchHighLatency Branch = "high-latency"
	BranchRecovery    Branch = "recovery"
	BranchNormal      Branch = "normal"
)

const (
	// safetyCapRatio keeps the applied rate 5% below the absolute
	// ceiling at all times.
	safetyCapRatio = 0.95

	// Recovery branch bands, as fractions of the absolute ceiling.
	recoveryLowerRatio = 0.92
	recoveryMidRatio   = 0.94

	// Normal branch bands.
	normalLowerRatio = 0.90
	normalMidRatio   = 0.92

	// improvedMarginMs is how far below baseline latency must fall to
	// count as improved.
	improvedMarginMs = 0.4

	// normalDiffMs is the deviation ceiling for cautious growth in the
	// normal branch.
	normalDiffMs = 0.3
)

// Decision is one controller verdict. Reason names the branch and the
// numbers that drove it, for operator logs.
type Decision struct {
	NewRate    float64
	Branch     Branch
	Deviations int
	Reason     string
}

// Controller evaluates the control law for one uplink's parameters.
// Adjust is a pure function of its inputs; the controller holds no other
// state.
type Controller struct {
	cfg config.Shaping
}

func New(cfg config.Shaping) *Controller {
	return &Controller{cfg: cfg}
}

// Adjust computes the next rate from live latency and the current rate.
// Callers must skip the cycle entirely when latency is unavailable;
// there is no sentinel input.
func (c *Controller) Adjust(latencyMs, currentRate float64) Decision {
	base := c.cfg.BaselineLatencyMs
	threshold := c.cfg.LatencyThresholdMs
	absMax := c.cfg.AbsoluteMaxRateMbps

	var d Decision
	switch {
	case latencyMs >= base+threshold:
		deviations := int(math.Ceil((latencyMs - base) / threshold))
		newRate := currentRate * math.Pow(c.cfg.DecreaseFactor, float64(deviations))
		if newRate < c.cfg.MinRateMbps {
			newRate = c.cfg.MinRateMbps
		}
		d = Decision{
			NewRate:    newRate,
			Branch:     BranchHighLatency,
			Deviations: deviations,
		}

	case latencyMs < base-improvedMarginMs:
		lower := absMax * recoveryLowerRatio
		mid := absMax * recoveryMidRatio
		d = Decision{Branch: BranchRecovery}
		switch {
		case currentRate < lower:
			// Double-strength recovery while well under the ceiling.
			d.NewRate = currentRate * c.cfg.IncreaseFactor * c.cfg.IncreaseFactor
		case currentRate < mid:
			d.NewRate = mid
		default:
			d.NewRate = currentRate
		}

	default:
		lowerN := absMax * normalLowerRatio
		midN := absMax * normalMidRatio
		diff := latencyMs - base
		isNormal := diff <= normalDiffMs
		d = Decision{Branch: BranchNormal}
		switch {
		case currentRate < lowerN && isNormal:
			d.NewRate = currentRate * c.cfg.IncreaseFactor
		case currentRate < midN && isNormal:
			d.NewRate = midN
		default:
			d.NewRate = currentRate
		}
	}

	d.NewRate = Round1(math.Min(d.NewRate, math.Min(absMax*safetyCapRatio, c.cfg.MaxRateMbps)))
	d.Reason = c.reason(d, latencyMs, currentRate)
	return d
}

func (c *Controller) reason(d Decision, latencyMs, currentRate float64) string {
	base := c.cfg.BaselineLatencyMs
	switch d.Branch {
	case BranchHighLatency:
		return fmt.Sprintf("high latency %.1fms >= %.1fms: %d deviation(s), rate %.1f -> %.1f",
			latencyMs, base+c.cfg.LatencyThresholdMs, d.Deviations, currentRate, d.NewRate)
	case BranchRecovery:
		if d.NewRate > currentRate {
			return fmt.Sprintf("latency improved %.1fms < %.1fms: rate %.1f -> %.1f",
				latencyMs, base-improvedMarginMs, currentRate, d.NewRate)
		}
		return fmt.Sprintf("latency improved %.1fms but rate %.1f near ceiling: holding",
			latencyMs, currentRate)
	default:
		if d.NewRate > currentRate {
			return fmt.Sprintf("latency normal (%+.1fms vs baseline): rate %.1f -> %.1f",
				latencyMs-base, currentRate, d.NewRate)
		}
		return fmt.Sprintf("latency %.1fms (%+.1fms vs baseline): holding at %.1f",
			latencyMs, latencyMs-base, d.NewRate)
	}
}

// Round1 rounds a rate to one decimal place, the resolution handed to
// the queue discipline.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
