package probe

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

const (
	probePrefix = "shaperctl-probe:"
	ackPrefix   = "shaperctl-ack:"
)

// Reflector answers UDP probes so a link can be measured against a host
// the operator controls instead of a public ping target.
type Reflector struct {
	conn *net.UDPConn
}

// StartReflector listens on the given address (e.g. ":19716").
func StartReflector(addr string) (*Reflector, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}

	r := &Reflector{conn: conn}
	go r.serve()
	return r, nil
}

// LocalAddr returns the reflector's bound address.
func (r *Reflector) LocalAddr() string {
	if r == nil || r.conn == nil {
		return ""
	}
	return r.conn.LocalAddr().String()
}

// Close stops the reflector.
func (r *Reflector) Close() error {
	if r == nil || r.conn == nil {
		return nil
	}
	return r.conn.Close()
}

func (r *Reflector) serve() {
	buf := make([]byte, 2048)
	for {
		n, addr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		msg := string(buf[:n])
		if !strings.HasPrefix(msg, probePrefix) {
			continue
		}
		nonce := strings.TrimPrefix(msg, probePrefix)
		_, _ = r.conn.WriteToUDP([]byte(ackPrefix+nonce), addr)
	}
}

// UDPProber measures round-trip time against a Reflector.
type UDPProber struct {
	LocalAddr     string // defaults to ":0"
	ReflectorAddr string
	Count         int
	Timeout       time.Duration // per round
}

// Measure sends Count probes and reports mean RTT, jitter and loss.
// Every probe lost means no reading, not a zero-latency one.
func (p *UDPProber) Measure(ctx context.Context) (Latency, error) {
	count := p.Count
	if count <= 0 {
		count = 3
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	local := p.LocalAddr
	if local == "" {
		local = ":0"
	}

	localUDP, err := net.ResolveUDPAddr("udp", local)
	if err != nil {
		return Latency{}, err
	}
	peerUDP, err := net.ResolveUDPAddr("udp", p.ReflectorAddr)
	if err != nil {
		return Latency{}, err
	}

	conn, err := net.ListenUDP("udp", localUDP)
	if err != nil {
		return Latency{}, err
	}
	defer conn.Close()
	if ctx != nil {
		go func() {
			<-ctx.Done()
			_ = conn.Close()
		}()
	}

	rtts := make([]float64, 0, count)
	buf := make([]byte, 2048)

	for i := 0; i < count; i++ {
		if ctx != nil && ctx.Err() != nil {
			return Latency{}, ctx.Err()
		}

		nonce, err := randomNonce(8)
		if err != nil {
			return Latency{}, err
		}

		start := time.Now()
		if _, err := conn.WriteToUDP([]byte(probePrefix+nonce), peerUDP); err != nil {
			return Latency{}, err
		}
		_ = conn.SetReadDeadline(start.Add(timeout))

		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				// Timed out or closed: this round is lost.
				break
			}
			if addr.String() != peerUDP.String() {
				continue
			}
			if string(buf[:n]) == ackPrefix+nonce {
				rtts = append(rtts, float64(time.Since(start).Microseconds())/1000.0)
				break
			}
		}
	}

	if ctx != nil && ctx.Err() != nil {
		return Latency{}, ctx.Err()
	}
	if len(rtts) == 0 {
		return Latency{}, errors.Wrapf(ErrUnavailable, "udp probe %s: all %d probes lost", p.ReflectorAddr, count)
	}

	res := Latency{
		LatencyMs: stat.Mean(rtts, nil),
		LossPct:   100.0 * float64(count-len(rtts)) / float64(count),
	}
	if len(rtts) > 1 {
		res.JitterMs = stat.StdDev(rtts, nil)
	}
	return res, nil
}

func randomNonce(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
