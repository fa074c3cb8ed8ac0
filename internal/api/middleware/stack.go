// SPDX-License-Identifier: MIT

// Package middleware holds the HTTP ingress middleware stack shared by
// the API and metrics servers.
package middleware

import (
	"github.com/go-chi/chi/v5"

	nblog "github.com/netboost/netboost/internal/log"
)

// StackConfig configures the canonical ingress middleware stack.
type StackConfig struct {
	EnableMetrics bool
	EnableLogging bool

	EnableRateLimit bool
	RateLimitRPM    int
}

// NewRouter constructs a chi router with the canonical middleware stack
// applied.
func NewRouter(cfg StackConfig) *chi.Mux {
	r := chi.NewRouter()
	ApplyStack(r, cfg)
	return r
}

// ApplyStack applies the canonical middleware stack to r. Order matters:
// the recoverer stays outermost, correlation comes before anything that
// logs, and rate limiting runs last so rejected requests still show up
// in metrics and logs.
func ApplyStack(r chi.Router, cfg StackConfig) {
	r.Use(Recoverer)
	r.Use(RequestID)
	if cfg.EnableMetrics {
		r.Use(Metrics())
	}
	if cfg.EnableLogging {
		r.Use(nblog.Middleware())
	}
	if cfg.EnableRateLimit {
		r.Use(APIRateLimit(cfg.RateLimitRPM))
	}
}
