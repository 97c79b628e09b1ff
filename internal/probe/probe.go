// Package probe measures the uplink: latency via ICMP ping or a UDP
// reflector, throughput via the speedtest CLI or a metered HTTP
// download. Failures that only mean "no reading this cycle" wrap
// ErrUnavailable so the caller can skip instead of aborting.
package probe

import (
	"github.com/pkg/errors"
)

// ErrUnavailable marks a probe that produced no usable reading. The
// shaping loop keeps the previous rate and tries again next cycle.
var ErrUnavailable = errors.New("probe unavailable")

// Latency is one latency reading in milliseconds.
type Latency struct {
	LatencyMs float64
	JitterMs  float64
	LossPct   float64
}
