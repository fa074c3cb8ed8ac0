// SPDX-License-Identifier: MIT

// Package config provides configuration management for netboost.
package config

import (
	"time"

	"github.com/netboost/netboost/internal/validate"
)

// AppConfig is the resolved runtime configuration of the daemon and runner.
type AppConfig struct {
	// DataDir is the root of the file-based task tree.
	DataDir string
	// ListenAddr is the API server listen address.
	ListenAddr string
	// MetricsAddr is the Prometheus listen address; empty disables metrics.
	MetricsAddr string

	LogLevel   string
	LogService string
	Version    string

	// NDExServer is the NDEx host networks are fetched from.
	NDExServer string
	// BigGIMBase is the BigGIM API base URL.
	BigGIMBase string
	// BigGIMThreshold restricts BigGIM edges to scores above this value.
	BigGIMThreshold float64

	// PollInterval is how long the runner sleeps between empty queue scans.
	PollInterval time.Duration
	// Alpha is the default restart probability for diffusion when a
	// submission does not carry one.
	Alpha float64

	// EmbeddedRunner runs the task runner inside the daemon process.
	EmbeddedRunner bool

	// MaxUploadBytes caps the size of uploaded network files.
	MaxUploadBytes int64

	RateLimitEnabled bool
	RateLimitRPS     int
	RateLimitBurst   int

	// RedisAddr enables the Redis result cache when non-empty.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration
}

// FileConfig represents the YAML configuration structure. Pointer fields
// distinguish "not set" from explicit zero values.
type FileConfig struct {
	DataDir     string `yaml:"dataDir,omitempty"`
	ListenAddr  string `yaml:"listenAddr,omitempty"`
	MetricsAddr *string `yaml:"metricsAddr,omitempty"`
	LogLevel    string `yaml:"logLevel,omitempty"`
	LogService  string `yaml:"logService,omitempty"`

	NDEx struct {
		Server string `yaml:"server,omitempty"`
	} `yaml:"ndex,omitempty"`

	BigGIM struct {
		BaseURL   string   `yaml:"baseUrl,omitempty"`
		Threshold *float64 `yaml:"threshold,omitempty"`
	} `yaml:"biggim,omitempty"`

	Runner struct {
		PollInterval string `yaml:"pollInterval,omitempty"` // e.g. "30s"
		Embedded     *bool  `yaml:"embedded,omitempty"`
	} `yaml:"runner,omitempty"`

	Diffusion struct {
		Alpha *float64 `yaml:"alpha,omitempty"`
	} `yaml:"diffusion,omitempty"`

	API struct {
		MaxUploadBytes *int64           `yaml:"maxUploadBytes,omitempty"`
		RateLimit      *RateLimitConfig `yaml:"rateLimit,omitempty"`
	} `yaml:"api,omitempty"`

	Cache struct {
		RedisAddr     string `yaml:"redisAddr,omitempty"`
		RedisPassword string `yaml:"redisPassword,omitempty"`
		RedisDB       *int   `yaml:"redisDb,omitempty"`
		TTL           string `yaml:"ttl,omitempty"` // e.g. "5m"
	} `yaml:"cache,omitempty"`
}

// RateLimitConfig holds rate limiting settings.
type RateLimitConfig struct {
	Enabled *bool `yaml:"enabled,omitempty"`
	RPS     *int  `yaml:"rps,omitempty"`
	Burst   *int  `yaml:"burst,omitempty"`
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		DataDir:          "/tmp/netboost",
		ListenAddr:       ":8080",
		MetricsAddr:      ":9090",
		LogLevel:         "info",
		LogService:       "netboost",
		NDExServer:       "public.ndexbio.org",
		BigGIMBase:       "http://biggim.ncats.io/api",
		BigGIMThreshold:  0.8,
		PollInterval:     30 * time.Second,
		Alpha:            0.5,
		EmbeddedRunner:   false,
		MaxUploadBytes:   32 << 20,
		RateLimitEnabled: true,
		RateLimitRPS:     600,
		RateLimitBurst:   100,
		CacheTTL:         5 * time.Minute,
	}
}

// Validate checks the resolved configuration.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.Directory("DataDir", cfg.DataDir, false)
	v.NotEmpty("ListenAddr", cfg.ListenAddr)
	v.NotEmpty("NDExServer", cfg.NDExServer)
	v.URL("BigGIMBase", cfg.BigGIMBase, []string{"http", "https"})
	v.FloatRange("BigGIMThreshold", cfg.BigGIMThreshold, 0, 1)
	v.FloatRange("Alpha", cfg.Alpha, 0, 1)
	if cfg.PollInterval <= 0 {
		v.AddError("PollInterval", "poll interval must be positive", cfg.PollInterval)
	}
	if cfg.MaxUploadBytes <= 0 {
		v.AddError("MaxUploadBytes", "upload cap must be positive", cfg.MaxUploadBytes)
	}
	if cfg.RateLimitEnabled {
		v.Positive("RateLimitRPS", cfg.RateLimitRPS)
		v.NonNegative("RateLimitBurst", cfg.RateLimitBurst)
	}
	if cfg.RedisAddr != "" {
		v.NonNegative("RedisDB", cfg.RedisDB)
	}

	return v.Err()
}
