// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/netboost/netboost/internal/api"
	"github.com/netboost/netboost/internal/biggim"
	"github.com/netboost/netboost/internal/cache"
	"github.com/netboost/netboost/internal/config"
	"github.com/netboost/netboost/internal/daemon"
	"github.com/netboost/netboost/internal/health"
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
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	nblog.Configure(nblog.Config{
		Level:   "info",
		Service: "netboost",
		Version: version,
	})
	logger := nblog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Config path: explicit flag, else ${NETBOOST_DATA}/config.yaml when
	// present.
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
		Service: cfg.LogService,
		Version: cfg.Version,
	})
	logger = nblog.WithComponent("daemon")

	logger.Info().
		Str("event", "daemon.starting").
		Str("version", version).
		Str("data_dir", cfg.DataDir).
		Str("listen", cfg.ListenAddr).
		Bool("embedded_runner", cfg.EmbeddedRunner).
		Msg("starting netboost daemon")

	idx, err := tasks.OpenIndex(filepath.Join(cfg.DataDir, "index"))
	if err != nil {
		logger.Warn().Err(err).Msg("task index unavailable, falling back to tree scans")
		idx = nil
	}

	store, err := tasks.NewStore(filepath.Join(cfg.DataDir, "tasks"), idx)
	if err != nil {
		logger.Fatal().Err(err).Str("event", "store.init_failed").Msg("cannot initialise task store")
	}

	resultCache := cache.NewNoOp()
	if cfg.CacheTTL > 0 {
		resultCache = cache.New(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, cfg.CacheTTL, nblog.WithComponent("cache"))
	}

	hm := health.NewManager(version)
	hm.RegisterChecker(health.NewTaskDirChecker(store.Root()))
	if rc, ok := resultCache.(*cache.RedisCache); ok {
		hm.RegisterChecker(health.NewRedisChecker(rc.Client()))
	}

	server := api.NewServer(&cfg, store, resultCache, hm)

	manager, err := daemon.NewManager(daemon.ServerConfig{
		ListenAddr:  cfg.ListenAddr,
		MetricsAddr: cfg.MetricsAddr,
	}, daemon.Deps{
		Logger:         nblog.Base(),
		APIHandler:     server.Routes(),
		MetricsHandler: promhttp.Handler(),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot build daemon manager")
	}

	if idx != nil {
		manager.RegisterShutdownHook("task-index", func(context.Context) error {
			return idx.Close()
		})
	}
	switch c := resultCache.(type) {
	case *cache.RedisCache:
		manager.RegisterShutdownHook("redis-cache", func(context.Context) error {
			return c.Close()
		})
	case interface{ Close() }:
		manager.RegisterShutdownHook("result-cache", func(context.Context) error {
			c.Close()
			return nil
		})
	}

	var workers []daemon.Worker
	if cfg.EmbeddedRunner {
		r := runner.New(store, biggim.New(cfg.BigGIMBase, cfg.BigGIMThreshold), ndex.New(cfg.NDExServer), cfg.PollInterval)
		hm.RegisterChecker(health.NewRunnerChecker(r.LastPoll, cfg.PollInterval))
		workers = append(workers, r)
	}

	app := daemon.NewApp(nblog.Base(), manager, workers...)
	if err := app.Run(ctx); err != nil {
		logger.Fatal().Err(err).Str("event", "daemon.failed").Msg("daemon exited with error")
	}
	logger.Info().Str("event", "daemon.stopped").Msg("daemon stopped")
}
