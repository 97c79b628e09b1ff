package probe

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"shaperctl/internal/execx"
)

// PingProber measures latency with the system ping binary. Timeouts are
// enforced by ping's own deadline flag, so no context is needed.
type PingProber struct {
	Runner  execx.Runner
	Target  string
	Count   int
	Timeout time.Duration
}

// Measure runs one ping burst and parses the summary lines.
func (p *PingProber) Measure() (Latency, error) {
	runner := p.Runner
	if runner == nil {
		runner = execx.NewOSRunner(nil, nil)
	}
	count := p.Count
	if count <= 0 {
		count = 3
	}

	args := []string{"-n", "-q", "-c", strconv.Itoa(count), "-i", "0.2"}
	if p.Timeout > 0 {
		secs := int(p.Timeout.Seconds())
		if secs < 1 {
			secs = 1
		}
		args = append(args, "-w", strconv.Itoa(secs))
	}
	args = append(args, p.Target)

	out, err := runner.Output("ping", args...)
	if err != nil {
		return Latency{}, errors.Wrapf(ErrUnavailable, "ping %s: %v", p.Target, err)
	}
	return parsePing(out, p.Target)
}

// parsePing handles both iputils ("rtt min/avg/max/mdev = ...") and
// busybox ("round-trip min/avg/max = ...") summaries.
func parsePing(out, target string) (Latency, error) {
	var res Latency
	haveRTT := false

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)

		if strings.Contains(line, "packet loss") {
			for _, field := range strings.Fields(line) {
				if !strings.HasSuffix(field, "%") {
					continue
				}
				if pct, err := strconv.ParseFloat(strings.TrimSuffix(field, "%"), 64); err == nil {
					res.LossPct = pct
				}
			}
			continue
		}

		if !strings.HasPrefix(line, "rtt ") && !strings.HasPrefix(line, "round-trip ") {
			continue
		}
		_, after, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		after = strings.TrimSuffix(strings.TrimSpace(after), " ms")
		parts := strings.Split(after, "/")
		if len(parts) < 3 {
			continue
		}
		avg, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			continue
		}
		res.LatencyMs = avg
		haveRTT = true
		if len(parts) >= 4 {
			if mdev, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64); err == nil {
				res.JitterMs = mdev
			}
		}
	}

	if !haveRTT {
		return Latency{}, errors.Wrapf(ErrUnavailable, "ping %s: no replies", target)
	}
	return res, nil
}
