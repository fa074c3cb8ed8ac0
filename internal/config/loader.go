// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence ENV > File > Defaults.
type Loader struct {
	configPath string
	version    string
}

// NewLoader creates a new configuration loader.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath: configPath,
		version:    version,
	}
}

// Load loads configuration with precedence: ENV > File > Defaults.
// Order is fixed: parse file (strict), apply env, then validate.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		mergeFileConfig(&cfg, fileCfg)
	}

	mergeEnvConfig(&cfg)

	cfg.Version = l.version

	// DataDir must be absolute before anything derives paths from it.
	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFile loads configuration from a YAML file with strict parsing.
// Unknown fields cause an error to prevent misconfiguration.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if err == io.EOF {
			return &FileConfig{}, nil
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}

	return &fileCfg, nil
}

func mergeFileConfig(cfg *AppConfig, f *FileConfig) {
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}
	if f.ListenAddr != "" {
		cfg.ListenAddr = f.ListenAddr
	}
	if f.MetricsAddr != nil {
		cfg.MetricsAddr = *f.MetricsAddr
	}
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}
	if f.LogService != "" {
		cfg.LogService = f.LogService
	}
	if f.NDEx.Server != "" {
		cfg.NDExServer = f.NDEx.Server
	}
	if f.BigGIM.BaseURL != "" {
		cfg.BigGIMBase = f.BigGIM.BaseURL
	}
	if f.BigGIM.Threshold != nil {
		cfg.BigGIMThreshold = *f.BigGIM.Threshold
	}
	if f.Runner.PollInterval != "" {
		if d, err := time.ParseDuration(f.Runner.PollInterval); err == nil {
			cfg.PollInterval = d
		}
	}
	if f.Runner.Embedded != nil {
		cfg.EmbeddedRunner = *f.Runner.Embedded
	}
	if f.Diffusion.Alpha != nil {
		cfg.Alpha = *f.Diffusion.Alpha
	}
	if f.API.MaxUploadBytes != nil {
		cfg.MaxUploadBytes = *f.API.MaxUploadBytes
	}
	if rl := f.API.RateLimit; rl != nil {
		if rl.Enabled != nil {
			cfg.RateLimitEnabled = *rl.Enabled
		}
		if rl.RPS != nil {
			cfg.RateLimitRPS = *rl.RPS
		}
		if rl.Burst != nil {
			cfg.RateLimitBurst = *rl.Burst
		}
	}
	if f.Cache.RedisAddr != "" {
		cfg.RedisAddr = f.Cache.RedisAddr
	}
	if f.Cache.RedisPassword != "" {
		cfg.RedisPassword = f.Cache.RedisPassword
	}
	if f.Cache.RedisDB != nil {
		cfg.RedisDB = *f.Cache.RedisDB
	}
	if f.Cache.TTL != "" {
		if d, err := time.ParseDuration(f.Cache.TTL); err == nil {
			cfg.CacheTTL = d
		}
	}
}

func mergeEnvConfig(cfg *AppConfig) {
	cfg.DataDir = ParseString("NETBOOST_DATA", cfg.DataDir)
	cfg.ListenAddr = ParseString("NETBOOST_LISTEN", cfg.ListenAddr)
	cfg.MetricsAddr = ParseString("NETBOOST_METRICS_LISTEN", cfg.MetricsAddr)
	cfg.LogLevel = ParseString("NETBOOST_LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = ParseString("NETBOOST_LOG_SERVICE", cfg.LogService)
	cfg.NDExServer = ParseString("NETBOOST_NDEX_SERVER", cfg.NDExServer)
	cfg.BigGIMBase = ParseString("NETBOOST_BIGGIM_BASE", cfg.BigGIMBase)
	cfg.BigGIMThreshold = ParseFloat("NETBOOST_BIGGIM_THRESHOLD", cfg.BigGIMThreshold)
	cfg.PollInterval = ParseDuration("NETBOOST_POLL_INTERVAL", cfg.PollInterval)
	cfg.Alpha = ParseFloat("NETBOOST_ALPHA", cfg.Alpha)
	cfg.EmbeddedRunner = ParseBool("NETBOOST_EMBEDDED_RUNNER", cfg.EmbeddedRunner)
	cfg.MaxUploadBytes = ParseInt64("NETBOOST_MAX_UPLOAD_BYTES", cfg.MaxUploadBytes)
	cfg.RateLimitEnabled = ParseBool("NETBOOST_RATE_LIMIT_ENABLED", cfg.RateLimitEnabled)
	cfg.RateLimitRPS = ParseInt("NETBOOST_RATE_LIMIT_RPS", cfg.RateLimitRPS)
	cfg.RateLimitBurst = ParseInt("NETBOOST_RATE_LIMIT_BURST", cfg.RateLimitBurst)
	cfg.RedisAddr = ParseString("NETBOOST_REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = ParseString("NETBOOST_REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = ParseInt("NETBOOST_REDIS_DB", cfg.RedisDB)
	cfg.CacheTTL = ParseDuration("NETBOOST_CACHE_TTL", cfg.CacheTTL)
}
