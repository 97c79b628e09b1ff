package store

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// StateFile is the daemon's last known position, written periodically
// so a restart resumes shaping near where it left off.
type StateFile struct {
	UpdatedAt           time.Time `yaml:"updated_at"`
	CurrentRateMbps     float64   `yaml:"current_rate_mbps"`
	LastCalibrationMbps float64   `yaml:"last_calibration_mbps,omitempty"`
	LastCalibrationAt   time.Time `yaml:"last_calibration_at,omitempty"`
	LastLatencyMs       float64   `yaml:"last_latency_ms,omitempty"`
	LearningMode        bool      `yaml:"learning_mode,omitempty"`
	LearningSince       time.Time `yaml:"learning_since,omitempty"`
	LastAdjustAt        time.Time `yaml:"last_adjust_at,omitempty"`
	LastAdjustBranch    string    `yaml:"last_adjust_branch,omitempty"`
	LastAdjustReason    string    `yaml:"last_adjust_reason,omitempty"`
}

// LoadState loads the state file. A missing file returns a zero state.
func LoadState(path string) (*StateFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &StateFile{}, nil
		}
		return nil, err
	}

	var st StateFile
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// SaveState writes the state file to disk.
func SaveState(path string, st *StateFile) error {
	if st == nil {
		return nil
	}
	st.UpdatedAt = time.Now().UTC()
	data, err := yaml.Marshal(st)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}
