package probe

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	output  string
	err     error
	gotName string
	gotArgs []string
}

func (f *fakeRunner) Run(name string, args ...string) error {
	f.gotName = name
	f.gotArgs = args
	return f.err
}

func (f *fakeRunner) Output(name string, args ...string) (string, error) {
	f.gotName = name
	f.gotArgs = args
	if f.err != nil {
		return "", f.err
	}
	return f.output, nil
}

const iputilsOutput = `PING 192.0.2.1 (192.0.2.1) 56(84) bytes of data.

--- 192.0.2.1 ping statistics ---
3 packets transmitted, 3 received, 0% packet loss, time 402ms
rtt min/avg/max/mdev = 16.961/17.924/18.898/0.791 ms`

const busyboxOutput = `PING 192.0.2.1 (192.0.2.1): 56 data bytes

--- 192.0.2.1 ping statistics ---
3 packets transmitted, 3 packets received, 0% packet loss
round-trip min/avg/max = 16.961/17.924/18.898 ms`

const allLostOutput = `PING 192.0.2.1 (192.0.2.1) 56(84) bytes of data.

--- 192.0.2.1 ping statistics ---
3 packets transmitted, 0 received, 100% packet loss, time 2031ms`

func TestPingMeasure(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{output: iputilsOutput}
	p := &PingProber{Runner: runner, Target: "192.0.2.1", Count: 3, Timeout: 5 * time.Second}

	res, err := p.Measure()
	require.NoError(t, err)
	assert.Equal(t, 17.924, res.LatencyMs)
	assert.Equal(t, 0.791, res.JitterMs)
	assert.Zero(t, res.LossPct)

	assert.Equal(t, "ping", runner.gotName)
	assert.Contains(t, runner.gotArgs, "-c")
	assert.Contains(t, runner.gotArgs, "3")
	assert.Contains(t, runner.gotArgs, "-w")
	assert.Contains(t, runner.gotArgs, "5")
	assert.Equal(t, "192.0.2.1", runner.gotArgs[len(runner.gotArgs)-1])
}

func TestPingBusyboxFormat(t *testing.T) {
	t.Parallel()

	p := &PingProber{Runner: &fakeRunner{output: busyboxOutput}, Target: "192.0.2.1"}
	res, err := p.Measure()
	require.NoError(t, err)
	assert.Equal(t, 17.924, res.LatencyMs)
	assert.Zero(t, res.JitterMs)
}

func TestPingPartialLoss(t *testing.T) {
	t.Parallel()

	out := `--- 192.0.2.1 ping statistics ---
4 packets transmitted, 3 received, 25% packet loss, time 3010ms
rtt min/avg/max/mdev = 16.961/17.924/18.898/0.791 ms`
	p := &PingProber{Runner: &fakeRunner{output: out}, Target: "192.0.2.1"}
	res, err := p.Measure()
	require.NoError(t, err)
	assert.Equal(t, 25.0, res.LossPct)
	assert.Equal(t, 17.924, res.LatencyMs)
}

func TestPingAllLost(t *testing.T) {
	t.Parallel()

	p := &PingProber{Runner: &fakeRunner{output: allLostOutput}, Target: "192.0.2.1"}
	_, err := p.Measure()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestPingExecFailure(t *testing.T) {
	t.Parallel()

	p := &PingProber{Runner: &fakeRunner{err: errors.New("exec: ping: not found")}, Target: "192.0.2.1"}
	_, err := p.Measure()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}
