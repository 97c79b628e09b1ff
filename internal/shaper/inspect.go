package shaper

import (
	"fmt"
	"strconv"
	"strings"
)

// Installed describes the shaper currently on an interface.
type Installed struct {
	Discipline string
	RateMbps   float64
}

// Inspect reports which of our disciplines is installed, if any. The
// boolean is false when the interface runs something else (or nothing).
func (m *Manager) Inspect(iface string) (Installed, bool, error) {
	if iface == "" {
		return Installed{}, false, fmt.Errorf("interface is required")
	}
	out, err := m.output("tc", "qdisc", "show", "dev", iface)
	if err != nil {
		return Installed{}, false, err
	}

	inst, ok := ParseQdisc(out)
	if !ok {
		return Installed{}, false, nil
	}
	if inst.Discipline == "htb" {
		// htb carries the rate on its class, not the qdisc line.
		classOut, err := m.output("tc", "class", "show", "dev", iface)
		if err != nil {
			return Installed{}, false, err
		}
		inst.RateMbps = ParseHTBClassRate(classOut)
	}
	return inst, true, nil
}

// ParseQdisc scans `tc qdisc show` output for one of our disciplines.
func ParseQdisc(out string) (Installed, bool) {
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) < 2 || fields[0] != "qdisc" {
			continue
		}
		switch fields[1] {
		case "cake":
			return Installed{Discipline: "cake", RateMbps: rateAfter(fields, "bandwidth")}, true
		case "tbf":
			return Installed{Discipline: "tbf", RateMbps: rateAfter(fields, "rate")}, true
		case "htb":
			return Installed{Discipline: "htb"}, true
		}
	}
	return Installed{}, false
}

// ParseHTBClassRate pulls the rate off the first htb class line.
func ParseHTBClassRate(out string) float64 {
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) < 2 || fields[0] != "class" || fields[1] != "htb" {
			continue
		}
		if rate := rateAfter(fields, "rate"); rate > 0 {
			return rate
		}
	}
	return 0
}

func rateAfter(fields []string, key string) float64 {
	for i, f := range fields {
		if f == key && i+1 < len(fields) {
			if rate, ok := parseRateToken(fields[i+1]); ok {
				return rate
			}
		}
	}
	return 0
}

// parseRateToken converts tc's rate rendering ("241900Kbit",
// "250Mbit", "1Gbit") to Mbps.
func parseRateToken(tok string) (float64, bool) {
	lower := strings.ToLower(tok)
	var mult float64
	var num string
	switch {
	case strings.HasSuffix(lower, "gbit"):
		mult, num = 1000, tok[:len(tok)-4]
	case strings.HasSuffix(lower, "mbit"):
		mult, num = 1, tok[:len(tok)-4]
	case strings.HasSuffix(lower, "kbit"):
		mult, num = 0.001, tok[:len(tok)-4]
	case strings.HasSuffix(lower, "bit"):
		mult, num = 1e-6, tok[:len(tok)-3]
	default:
		return 0, false
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}
	return v * mult, true
}
