// SPDX-License-Identifier: MIT

package devvm

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// fileMachine mirrors Machine with optional fields so a partial file can be
// merged over Default() without clobbering unset values.
type fileMachine struct {
	Box           *string       `yaml:"box,omitempty"`
	Provider      *string       `yaml:"provider,omitempty"`
	MemoryMB      *int          `yaml:"memoryMB,omitempty"`
	CPUs          *int          `yaml:"cpus,omitempty"`
	X11Forwarding *bool         `yaml:"x11Forwarding,omitempty"`
	Bootstrap     *string       `yaml:"bootstrap,omitempty"`
	Ports         []PortForward `yaml:"ports,omitempty"`
}

// Load reads a machine definition from a YAML file. Parsing is strict:
// unknown fields and trailing documents are rejected. Fields absent from the
// file keep their Default() values. The result is validated before return.
func Load(path string) (Machine, error) {
	m := Default()

	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return m, fmt.Errorf("unsupported machine file format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- machine file paths are provided by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("read machine file: %w", err)
	}

	var fm fileMachine
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fm); err != nil {
		if err == io.EOF {
			// Empty file: defaults apply unchanged.
			return m, m.Validate()
		}
		return m, fmt.Errorf("strict machine file parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return m, fmt.Errorf("machine file contains multiple documents or trailing content")
	}

	merge(&m, &fm)

	if err := m.Validate(); err != nil {
		return m, fmt.Errorf("machine validation failed: %w", err)
	}
	return m, nil
}

func merge(m *Machine, fm *fileMachine) {
	if fm.Box != nil {
		m.Box = *fm.Box
	}
	if fm.Provider != nil {
		m.Provider = *fm.Provider
	}
	if fm.MemoryMB != nil {
		m.MemoryMB = *fm.MemoryMB
	}
	if fm.CPUs != nil {
		m.CPUs = *fm.CPUs
	}
	if fm.X11Forwarding != nil {
		m.X11Forwarding = *fm.X11Forwarding
	}
	if fm.Bootstrap != nil {
		m.Bootstrap = *fm.Bootstrap
	}
	if fm.Ports != nil {
		m.Ports = fm.Ports
	}
}
