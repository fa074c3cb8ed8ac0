// SPDX-License-Identifier: MIT

// validate checks netboost YAML files: the service configuration and the
// development VM machine definition.
//
// Usage:
//
//	validate -f config.yaml
//	validate -machine machine.yaml
//
// Exit codes:
//   - 0: valid
//   - 1: parse or validation error
//   - 2: usage error
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/netboost/netboost/internal/config"
	"github.com/netboost/netboost/internal/devvm"
)

var Version = "dev"

func main() {
	var file string
	var machineFile string
	var showVersion bool

	flag.StringVar(&file, "file", "", "path to service configuration YAML")
	flag.StringVar(&file, "f", "", "path to service configuration YAML (shorthand)")
	flag.StringVar(&machineFile, "machine", "", "path to machine definition YAML")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(Version)
		os.Exit(0)
	}

	if file == "" && machineFile == "" {
		fmt.Fprintln(os.Stderr, "Error: --file or --machine is required")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Usage:")
		fmt.Fprintln(os.Stderr, "  validate -f config.yaml")
		fmt.Fprintln(os.Stderr, "  validate -machine machine.yaml")
		os.Exit(2)
	}

	if file != "" {
		loader := config.NewLoader(file, Version)
		cfg, err := loader.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Configuration error in %s:\n", file)
			fmt.Fprintf(os.Stderr, "  %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s: OK\n", file)
		fmt.Printf("  data dir:  %s\n", cfg.DataDir)
		fmt.Printf("  listen:    %s\n", cfg.ListenAddr)
		fmt.Printf("  ndex:      %s\n", cfg.NDExServer)
		fmt.Printf("  biggim:    %s\n", cfg.BigGIMBase)
	}

	if machineFile != "" {
		m, err := devvm.Load(machineFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Machine definition error in %s:\n", machineFile)
			fmt.Fprintf(os.Stderr, "  %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s: OK\n", machineFile)
		fmt.Printf("  box:       %s\n", m.Box)
		fmt.Printf("  provider:  %s\n", m.Provider)
		fmt.Printf("  memory:    %d MB, %d CPUs\n", m.MemoryMB, m.CPUs)
		for _, p := range m.Ports {
			fmt.Printf("  forward:   guest %d -> host %d\n", p.Guest, p.Host)
		}
	}
}
