package probe

import (
	"net"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// DefaultReflectorPort is where a reflector listens unless told
// otherwise.
const DefaultReflectorPort = 19716

// NormalizeReflector accepts a reflector address with or without a
// port and returns a dialable "host:port".
func NormalizeReflector(addr string, defaultPort int) (string, error) {
	a := strings.TrimSpace(addr)
	if a == "" {
		return "", errors.New("empty reflector address")
	}

	if _, _, err := net.SplitHostPort(a); err == nil {
		return a, nil
	}

	host := hostOnly(a)
	if host == "" {
		return "", errors.Errorf("reflector address %q has no host", addr)
	}
	if defaultPort <= 0 {
		defaultPort = DefaultReflectorPort
	}
	return net.JoinHostPort(host, strconv.Itoa(defaultPort)), nil
}

// hostOnly extracts the host from an address that may carry a port,
// including unbracketed IPv6 "host:port" forms.
func hostOnly(addr string) string {
	a := strings.TrimSpace(addr)
	if a == "" {
		return ""
	}

	if h, _, err := net.SplitHostPort(a); err == nil {
		return h
	}

	// Peel a trailing ":port" off unbracketed IPv6, but only when the
	// remainder is a whole address. "2001:db8::1" stays intact.
	if strings.Count(a, ":") > 1 && !strings.HasPrefix(a, "[") {
		if last := strings.LastIndexByte(a, ':'); last > 0 && last < len(a)-1 {
			if _, err := strconv.Atoi(a[last+1:]); err == nil && net.ParseIP(a[:last]) != nil {
				return a[:last]
			}
		}
	}

	if strings.Contains(a, ":") {
		// Raw IPv6 without a port.
		return strings.Trim(a, "[]")
	}
	return a
}
