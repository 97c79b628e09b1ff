package probe

import (
	"strings"

	"github.com/pkg/errors"

	"shaperctl/internal/execx"
)

// SpeedtestCLI runs the Ookla speedtest binary and returns its JSON
// report for the calibration pipeline.
type SpeedtestCLI struct {
	Runner execx.Runner
	// Command overrides the full invocation, e.g.
	// "speedtest --server-id=1234 --format=json". When empty the
	// default binary and flags are used.
	Command string
}

// Run executes one speed test. The CLI applies its own timeouts.
func (s *SpeedtestCLI) Run() ([]byte, error) {
	runner := s.Runner
	if runner == nil {
		runner = execx.NewOSRunner(nil, nil)
	}

	name := "speedtest"
	args := []string{"--accept-license", "--accept-gdpr", "--format=json"}

	if cmd := strings.TrimSpace(s.Command); cmd != "" {
		fields := strings.Fields(cmd)
		name = fields[0]
		args = fields[1:]
	}

	out, err := runner.Output(name, args...)
	if err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "speedtest: %v", err)
	}
	return []byte(out), nil
}
