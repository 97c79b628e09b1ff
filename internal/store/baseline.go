// Package store persists the learned baseline and the daemon's last
// known state as YAML files. Missing files mean a fresh start, never
// an error.
package store

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// BaselineFile is the on-disk form of the learned weekly baseline.
// Slots are keyed "{day}_{hour}" with day 0 = Sunday.
type BaselineFile struct {
	UpdatedAt time.Time          `yaml:"updated_at"`
	Category  string             `yaml:"category,omitempty"`
	Slots     map[string]float64 `yaml:"slots"`
}

// LoadBaseline loads the baseline file. A missing file returns an
// empty baseline.
func LoadBaseline(path string) (*BaselineFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &BaselineFile{Slots: map[string]float64{}}, nil
		}
		return nil, err
	}

	var bf BaselineFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return nil, err
	}
	if bf.Slots == nil {
		bf.Slots = map[string]float64{}
	}
	return &bf, nil
}

// SaveBaseline writes the baseline file to disk.
func SaveBaseline(path string, bf *BaselineFile) error {
	if bf == nil {
		return nil
	}
	bf.UpdatedAt = time.Now().UTC()
	data, err := yaml.Marshal(bf)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}
