package sampleset

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/grailbio/base/errors"
	"gopkg.in/yaml.v2"
)

// Manifest records the sample set and execution mode chosen for a run. It is
// written exactly once before dispatch and is read-only afterwards; cluster
// array units map their array index into Samples through it.
type Manifest struct {
	RunID   string    `yaml:"run_id"`
	Mode    string    `yaml:"mode"`
	Created time.Time `yaml:"created"`
	Samples []string  `yaml:"samples"`
}

// NewManifest builds a manifest for the given sample set with a fresh run id.
func NewManifest(mode string, ids []string) *Manifest {
	return &Manifest{
		RunID:   uuid.New().String(),
		Mode:    mode,
		Created: time.Now().UTC(),
		Samples: append([]string(nil), ids...),
	}
}

// Sample returns the canonical id at the given array index.
func (m *Manifest) Sample(index int) (string, error) {
	if index < 0 || index >= len(m.Samples) {
		return "", fmt.Errorf("manifest %s: array index %d out of range [0,%d)", m.RunID, index, len(m.Samples))
	}
	return m.Samples[index], nil
}

// WriteManifest writes m to path. It refuses to overwrite an existing
// manifest: the sample list must not change after dispatch begins.
func WriteManifest(path string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return errors.E(err, path)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return errors.E(err, "manifest already exists or is unwritable", path)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return errors.E(err, path)
	}
	return nil
}

// ReadManifest reads the manifest previously written to path.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.E(err, path)
	}
	m := &Manifest{}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, errors.E(err, path)
	}
	return m, nil
}
