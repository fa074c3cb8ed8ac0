// SPDX-License-Identifier: MIT

// taskrunner drains the submitted task queue as a standalone process,
// for deployments where the API daemon runs with the embedded runner
// disabled.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/netboost/netboost/internal/biggim"
	"github.com/netboost/netboost/internal/config"
	nblog "github.com/netboost/netboost/internal/log"
	"github.com/netboost/netboost/internal/ndex"
	"github.com/netboost/netboost/internal/runner"
	"github.com/netboost/netboost/internal/tasks"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	waitTime := flag.Duration("wait", 0, "poll interval override, e.g. 30s")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	nblog.Configure(nblog.Config{
		Level:   "info",
		Service: "netboost-taskrunner",
		Version: version,
	})
	logger := nblog.WithComponent("taskrunner")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	effectiveConfigPath := strings.TrimSpace(*configPath)
	if effectiveConfigPath == "" {
		dataDir := strings.TrimSpace(config.ParseString("NETBOOST_DATA", "/tmp/netboost"))
		autoPath := filepath.Join(dataDir, "config.yaml")
		if _, err := os.Stat(autoPath); err == nil {
			effectiveConfigPath = autoPath
		}
	}

	loader := config.NewLoader(effectiveConfigPath, version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", effectiveConfigPath).
			Msg("failed to load configuration")
	}

	nblog.Reconfigure(nblog.Config{
		Level:   cfg.LogLevel,
		Service: "netboost-taskrunner",
		Version: version,
	})
	logger = nblog.WithComponent("taskrunner")

	interval := cfg.PollInterval
	if *waitTime > 0 {
		interval = *waitTime
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	idx, err := tasks.OpenIndex(filepath.Join(cfg.DataDir, "index"))
	if err != nil {
		logger.Warn().Err(err).Msg("task index unavailable, falling back to tree scans")
		idx = nil
	}
	defer func() {
		if idx != nil {
			_ = idx.Close()
		}
	}()

	store, err := tasks.NewStore(filepath.Join(cfg.DataDir, "tasks"), idx)
	if err != nil {
		logger.Fatal().Err(err).Str("event", "store.init_failed").Msg("cannot initialise task store")
	}

	logger.Info().
		Str("event", "taskrunner.starting").
		Str("version", version).
		Str("data_dir", cfg.DataDir).
		Dur("interval", interval).
		Msg("starting task runner")

	r := runner.New(store, biggim.New(cfg.BigGIMBase, cfg.BigGIMThreshold), ndex.New(cfg.NDExServer), interval)
	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Str("event", "taskrunner.failed").Msg("task runner exited with error")
	}
	logger.Info().Str("event", "taskrunner.stopped").Msg("task runner stopped")
}
