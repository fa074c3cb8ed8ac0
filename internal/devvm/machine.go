// SPDX-License-Identifier: MIT

// Package devvm describes the development virtual machine used to run the
// netboost service locally. The machine definition is declarative data: this
// package loads it, validates it and answers lookups; bringing the machine up
// is the job of the virtualization provider, not of netboost.
package devvm

import (
	"github.com/netboost/netboost/internal/validate"
)

// Providers accepted in a machine definition.
const (
	ProviderVirtualBox = "virtualbox"
	ProviderLibvirt    = "libvirt"
	ProviderVMware     = "vmware_desktop"
)

// PortForward maps a guest port to a host port.
type PortForward struct {
	Guest int `yaml:"guest"`
	Host  int `yaml:"host"`
}

// Machine is the declarative description of the development VM.
type Machine struct {
	// Box is the base image identifier understood by the provider.
	Box string `yaml:"box"`
	// Provider selects the virtualization backend.
	Provider string `yaml:"provider"`
	// MemoryMB is the guest memory allocation in megabytes.
	MemoryMB int `yaml:"memoryMB"`
	// CPUs is the number of virtual CPUs.
	CPUs int `yaml:"cpus"`
	// X11Forwarding enables X11 forwarding over the provisioning SSH channel.
	X11Forwarding bool `yaml:"x11Forwarding"`
	// Bootstrap is the repo-relative shell script executed once inside the
	// guest at provisioning time.
	Bootstrap string `yaml:"bootstrap"`
	// Ports lists guest-to-host port forwards.
	Ports []PortForward `yaml:"ports"`
}

// Default returns the committed development machine definition.
func Default() Machine {
	return Machine{
		Box:           "puppetlabs/centos-7.2-64-puppet",
		Provider:      ProviderVirtualBox,
		MemoryMB:      6144,
		CPUs:          2,
		X11Forwarding: true,
		Bootstrap:     "bootstrap.sh",
		Ports: []PortForward{
			{Guest: 5000, Host: 5000},
			{Guest: 80, Host: 8081},
			{Guest: 8000, Host: 8082},
		},
	}
}

// HostPort returns the host port forwarded to the given guest port, or 0 if
// the guest port is not forwarded.
func (m Machine) HostPort(guest int) int {
	for _, p := range m.Ports {
		if p.Guest == guest {
			return p.Host
		}
	}
	return 0
}

// Validate checks the machine definition for basic type validity.
func (m Machine) Validate() error {
	v := validate.New()

	v.NotEmpty("Box", m.Box)
	v.OneOf("Provider", m.Provider, []string{ProviderVirtualBox, ProviderLibvirt, ProviderVMware})
	v.Range("MemoryMB", m.MemoryMB, 512, 65536)
	v.Positive("CPUs", m.CPUs)
	v.NotEmpty("Bootstrap", m.Bootstrap)
	v.Path("Bootstrap", m.Bootstrap)

	hostSeen := make(map[int]bool, len(m.Ports))
	for _, p := range m.Ports {
		v.Port("Ports.Guest", p.Guest)
		v.Port("Ports.Host", p.Host)
		if hostSeen[p.Host] {
			v.AddError("Ports.Host", "duplicate host port", p.Host)
		}
		hostSeen[p.Host] = true
	}

	return v.Err()
}
