// Package netinfo discovers the uplink's public address via STUN.
// A symmetric or carrier-grade NAT mapping is worth surfacing next to
// shaping data, since it often means the bottleneck is upstream of the
// local queue.
package netinfo

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/pion/stun/v3"
)

const (
	NATUnknown          = "unknown"
	NATSymmetric        = "symmetric"
	NATConeOrRestricted = "cone_or_restricted"
)

// DefaultServers are queried when the config lists none.
var DefaultServers = []string{
	"stun.l.google.com:19302",
	"stun.cloudflare.com:3478",
}

// PublicInfo describes how the uplink appears from outside.
type PublicInfo struct {
	Addr    string
	NATType string
	CGNAT   bool
}

// Discover queries STUN servers for the public mapped address. The
// mapped address belongs to the probe socket and may differ for other
// traffic; it is informational.
func Discover(ctx context.Context, servers []string, timeout time.Duration) (PublicInfo, error) {
	if len(servers) == 0 {
		servers = DefaultServers
	}

	results := make([]string, 0, len(servers))
	var lastErr error
	for _, server := range servers {
		addr, err := probeServer(ctx, server, timeout)
		if err != nil {
			lastErr = err
			continue
		}
		results = append(results, addr)
	}

	if len(results) == 0 {
		if lastErr == nil {
			lastErr = fmt.Errorf("STUN probe failed")
		}
		return PublicInfo{NATType: NATUnknown}, lastErr
	}

	return PublicInfo{
		Addr:    results[0],
		NATType: Classify(results),
		CGNAT:   IsCGNAT(results[0]),
	}, nil
}

// Classify infers NAT behavior by comparing mapped addresses from
// multiple servers.
func Classify(addrs []string) string {
	if len(addrs) < 2 {
		return NATUnknown
	}
	first := addrs[0]
	for _, addr := range addrs[1:] {
		if addr != first {
			return NATSymmetric
		}
	}
	return NATConeOrRestricted
}

var cgnatNet = func() *net.IPNet {
	// RFC 6598 shared address space.
	_, n, _ := net.ParseCIDR("100.64.0.0/10")
	return n
}()

// IsCGNAT reports whether a mapped address sits in carrier-grade NAT
// space, which means the ISP terminates the public address.
func IsCGNAT(addr string) bool {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return cgnatNet.Contains(ip)
}

func probeServer(ctx context.Context, server string, timeout time.Duration) (string, error) {
	uriStr := strings.TrimSpace(server)
	if uriStr == "" {
		return "", fmt.Errorf("empty STUN server")
	}
	if !strings.HasPrefix(uriStr, "stun:") {
		uriStr = "stun:" + uriStr
	}

	uri, err := stun.ParseURI(uriStr)
	if err != nil {
		return "", err
	}

	client, err := stun.DialURI(uri, &stun.DialConfig{})
	if err != nil {
		return "", err
	}
	defer client.Close()

	msg := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
	result := make(chan stun.XORMappedAddress, 1)
	fail := make(chan error, 1)

	go func() {
		var addr stun.XORMappedAddress
		err := client.Do(msg, func(res stun.Event) {
			if res.Error != nil {
				fail <- res.Error
				return
			}
			if err := addr.GetFrom(res.Message); err != nil {
				fail <- err
				return
			}
			result <- addr
		})
		if err != nil {
			fail <- err
		}
	}()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case addr := <-result:
		return addr.String(), nil
	case err := <-fail:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
