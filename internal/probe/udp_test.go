package probe

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUDPProbeRoundTrip(t *testing.T) {
	t.Parallel()

	r, err := StartReflector("127.0.0.1:0")
	require.NoError(t, err)
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p := &UDPProber{ReflectorAddr: r.LocalAddr(), Count: 3, Timeout: 2 * time.Second}
	res, err := p.Measure(ctx)
	require.NoError(t, err)
	assert.Greater(t, res.LatencyMs, 0.0)
	assert.Zero(t, res.LossPct)
}

func TestUDPProbeAllLost(t *testing.T) {
	t.Parallel()

	// Grab a port and release it so nothing answers there.
	r, err := StartReflector("127.0.0.1:0")
	require.NoError(t, err)
	addr := r.LocalAddr()
	require.NoError(t, r.Close())

	p := &UDPProber{ReflectorAddr: addr, Count: 2, Timeout: 150 * time.Millisecond}
	_, err = p.Measure(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestUDPProbeContextCancel(t *testing.T) {
	t.Parallel()

	r, err := StartReflector("127.0.0.1:0")
	require.NoError(t, err)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &UDPProber{ReflectorAddr: r.LocalAddr(), Count: 3, Timeout: time.Second}
	_, err = p.Measure(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
