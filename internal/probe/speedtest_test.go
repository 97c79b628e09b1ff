package probe

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpeedtestDefaultCommand(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{output: `{"type":"result"}`}
	s := &SpeedtestCLI{Runner: runner}

	out, err := s.Run()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"result"}`, string(out))
	assert.Equal(t, "speedtest", runner.gotName)
	assert.Contains(t, runner.gotArgs, "--format=json")
}

func TestSpeedtestCustomCommand(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{output: "{}"}
	s := &SpeedtestCLI{Runner: runner, Command: "speedtest-go --json --server 1234"}

	_, err := s.Run()
	require.NoError(t, err)
	assert.Equal(t, "speedtest-go", runner.gotName)
	assert.Equal(t, []string{"--json", "--server", "1234"}, runner.gotArgs)
}

func TestSpeedtestFailure(t *testing.T) {
	t.Parallel()

	s := &SpeedtestCLI{Runner: &fakeRunner{err: errors.New("exit status 2")}}
	_, err := s.Run()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}
