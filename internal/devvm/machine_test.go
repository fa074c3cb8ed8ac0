// SPDX-License-Identifier: MIT

package devvm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestDefault_PinnedValues pins the committed development machine definition.
// These values are the observable contract of the machine file; changing any
// of them is a breaking change for local environments.
func TestDefault_PinnedValues(t *testing.T) {
	m := Default()

	if m.Box != "puppetlabs/centos-7.2-64-puppet" {
		t.Errorf("box = %q", m.Box)
	}
	if m.Provider != ProviderVirtualBox {
		t.Errorf("provider = %q", m.Provider)
	}
	if m.MemoryMB != 6144 {
		t.Errorf("memoryMB = %d, want 6144", m.MemoryMB)
	}
	if m.CPUs != 2 {
		t.Errorf("cpus = %d, want 2", m.CPUs)
	}
	if !m.X11Forwarding {
		t.Error("x11 forwarding should be enabled")
	}
	if m.Bootstrap != "bootstrap.sh" {
		t.Errorf("bootstrap = %q, want bootstrap.sh", m.Bootstrap)
	}

	if got := m.HostPort(5000); got != 5000 {
		t.Errorf("host port for guest 5000 = %d, want 5000", got)
	}
	if got := m.HostPort(80); got != 8081 {
		t.Errorf("host port for guest 80 = %d, want 8081", got)
	}
	if got := m.HostPort(8000); got != 8082 {
		t.Errorf("host port for guest 8000 = %d, want 8082", got)
	}
	if got := m.HostPort(22); got != 0 {
		t.Errorf("host port for unmapped guest 22 = %d, want 0", got)
	}
}

func TestDefault_Validates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default machine must validate: %v", err)
	}
}

func TestLoad_CommittedMachineFileMatchesDefault(t *testing.T) {
	// The machine.yaml at the repo root must round-trip to Default().
	path := filepath.Join("..", "..", "machine.yaml")
	if _, err := os.Stat(path); err != nil {
		t.Skipf("machine.yaml not found: %v", err)
	}

	m, err := Load(path)
	if err != nil {
		t.Fatalf("load committed machine file: %v", err)
	}
	if diff := cmp.Diff(Default(), m); diff != "" {
		t.Errorf("committed machine file drifted from Default() (-want +got):\n%s", diff)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "machine.yaml")
	content := "memoryMB: 2048\ncpus: 4\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	m, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if m.MemoryMB != 2048 || m.CPUs != 4 {
		t.Errorf("overrides not applied: memory=%d cpus=%d", m.MemoryMB, m.CPUs)
	}
	if m.Box != Default().Box {
		t.Errorf("box should keep default, got %q", m.Box)
	}
	if got := m.HostPort(80); got != 8081 {
		t.Errorf("default forwards should survive a partial file, got %d", got)
	}
}

func TestLoad_StrictParsing(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown field", "box: foo\nmemry: 1024\n"},
		{"multiple documents", "cpus: 2\n---\ncpus: 4\n"},
		{"invalid yaml", "cpus: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "machine.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected strict parse error")
			}
		})
	}
}

func TestLoad_RejectsNonYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "machine.json")
	if err := os.WriteFile(path, []byte("{}"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected format error for .json")
	}
}

func TestMachine_Validate(t *testing.T) {
	valid := Default()

	tests := []struct {
		name    string
		mutate  func(*Machine)
		wantErr bool
	}{
		{"default", func(m *Machine) {}, false},
		{"libvirt provider", func(m *Machine) { m.Provider = ProviderLibvirt }, false},
		{"empty box", func(m *Machine) { m.Box = "" }, true},
		{"unknown provider", func(m *Machine) { m.Provider = "qemu" }, true},
		{"memory too small", func(m *Machine) { m.MemoryMB = 128 }, true},
		{"memory too large", func(m *Machine) { m.MemoryMB = 1 << 20 }, true},
		{"zero cpus", func(m *Machine) { m.CPUs = 0 }, true},
		{"absolute bootstrap", func(m *Machine) { m.Bootstrap = "/usr/local/bin/setup.sh" }, true},
		{"traversal bootstrap", func(m *Machine) { m.Bootstrap = "../evil.sh" }, true},
		{"guest port out of range", func(m *Machine) {
			m.Ports = []PortForward{{Guest: 70000, Host: 8080}}
		}, true},
		{"host port zero", func(m *Machine) {
			m.Ports = []PortForward{{Guest: 80, Host: 0}}
		}, true},
		{"duplicate host port", func(m *Machine) {
			m.Ports = []PortForward{{Guest: 80, Host: 8081}, {Guest: 443, Host: 8081}}
		}, true},
		{"no ports is fine", func(m *Machine) { m.Ports = nil }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := valid
			m.Ports = append([]PortForward(nil), valid.Ports...)
			tt.mutate(&m)
			err := m.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
