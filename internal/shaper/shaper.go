// Package shaper installs and removes the egress queue discipline that
// enforces the engine's rate. Supported disciplines are cake, htb and
// tbf. The governed direction is the download path, so the interface
// is normally an IFB mirror of the WAN device or the LAN-side device.
package shaper

import (
	"fmt"
	"strings"
)

// Settings is one shaping target.
type Settings struct {
	Interface  string
	Discipline string
	RateMbps   float64
}

func (s Settings) validate() error {
	if s.Interface == "" {
		return fmt.Errorf("interface is required")
	}
	if s.RateMbps <= 0 {
		return fmt.Errorf("rate must be > 0 (got %.1f)", s.RateMbps)
	}
	switch s.Discipline {
	case "", "cake", "htb", "tbf":
		return nil
	default:
		return fmt.Errorf("unsupported discipline %q", s.Discipline)
	}
}

// Plan renders the tc invocations for the settings without running
// anything, so a dry run can print exactly what Apply would do.
func Plan(s Settings) ([][]string, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}

	rate := fmt.Sprintf("%.1fmbit", s.RateMbps)
	switch s.Discipline {
	case "", "cake":
		// The ingress keyword makes cake account for the packets it
		// drops, which is what a download shaper wants.
		return [][]string{
			{"qdisc", "replace", "dev", s.Interface, "root", "cake", "bandwidth", rate, "ingress"},
		}, nil
	case "htb":
		// fq_codel on the leaf so the htb class queues fairly instead of
		// growing one FIFO.
		return [][]string{
			{"qdisc", "replace", "dev", s.Interface, "root", "handle", "1:", "htb", "default", "1"},
			{"class", "replace", "dev", s.Interface, "parent", "1:", "classid", "1:1", "htb", "rate", rate, "ceil", rate},
			{"qdisc", "replace", "dev", s.Interface, "parent", "1:1", "fq_codel"},
		}, nil
	case "tbf":
		// Burst sized for roughly 10 ms at the configured rate.
		burst := int(s.RateMbps * 1250)
		if burst < 32768 {
			burst = 32768
		}
		return [][]string{
			{"qdisc", "replace", "dev", s.Interface, "root", "tbf", "rate", rate,
				"burst", fmt.Sprintf("%db", burst), "latency", "50ms"},
		}, nil
	}
	return nil, fmt.Errorf("unsupported discipline %q", s.Discipline)
}

// PlanString formats a plan the way it would appear on a shell.
func PlanString(plan [][]string) string {
	var b strings.Builder
	for i, cmd := range plan {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("tc ")
		b.WriteString(strings.Join(cmd, " "))
	}
	return b.String()
}
