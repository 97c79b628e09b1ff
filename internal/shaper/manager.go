package shaper

import (
	"fmt"
	"os"
	"strings"

	"shaperctl/internal/execx"
)

// Manager executes tc commands. It is injectable for unit tests.
type Manager struct {
	r execx.Runner
}

func NewManager(r execx.Runner) *Manager {
	if r == nil {
		r = execx.NewOSRunner(os.Stdout, os.Stderr)
	}
	return &Manager{r: r}
}

var defaultManager = NewManager(execx.NewOSRunner(os.Stdout, os.Stderr))

func DefaultManager() *Manager {
	return defaultManager
}

// Apply installs or updates the queue discipline at the target rate.
// tc's replace verb makes repeated applies idempotent.
func (m *Manager) Apply(s Settings) error {
	plan, err := Plan(s)
	if err != nil {
		return err
	}
	for _, cmd := range plan {
		if err := m.run("tc", cmd...); err != nil {
			return err
		}
	}
	return nil
}

// Clear removes the root qdisc. An interface with no shaper installed
// is not an error.
func (m *Manager) Clear(iface string) error {
	if iface == "" {
		return fmt.Errorf("interface is required")
	}
	err := m.run("tc", "qdisc", "del", "dev", iface, "root")
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "No such file") ||
		strings.Contains(err.Error(), "handle of zero") ||
		strings.Contains(err.Error(), "Cannot find device") {
		return nil
	}
	return err
}

// Status returns the raw qdisc and class statistics for display.
func (m *Manager) Status(iface string) (string, error) {
	if iface == "" {
		return "", fmt.Errorf("interface is required")
	}
	qdiscOut, qdiscErr := m.output("tc", "-s", "qdisc", "show", "dev", iface)
	classOut, classErr := m.output("tc", "-s", "class", "show", "dev", iface)
	if qdiscErr != nil && classErr != nil {
		return "", fmt.Errorf("qdisc: %v; class: %v", qdiscErr, classErr)
	}
	var b strings.Builder
	if qdiscOut != "" {
		b.WriteString("qdisc:\n")
		b.WriteString(qdiscOut)
	}
	if classOut != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("class:\n")
		b.WriteString(classOut)
	}
	return b.String(), nil
}

func (m *Manager) run(name string, args ...string) error {
	if m == nil || m.r == nil {
		return fmt.Errorf("runner not initialized")
	}
	return m.r.Run(name, args...)
}

func (m *Manager) output(name string, args ...string) (string, error) {
	if m == nil || m.r == nil {
		return "", fmt.Errorf("runner not initialized")
	}
	return m.r.Output(name, args...)
}
