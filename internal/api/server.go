// SPDX-License-Identifier: MIT

// Package api serves the task REST endpoints. Submissions are accepted
// with 202 and a Location header; the status document on GET reports the
// task state until a result or an error replaces it.
package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/netboost/netboost/internal/api/middleware"
	"github.com/netboost/netboost/internal/cache"
	"github.com/netboost/netboost/internal/config"
	"github.com/netboost/netboost/internal/health"
	"github.com/netboost/netboost/internal/log"
	"github.com/netboost/netboost/internal/metrics"
	"github.com/netboost/netboost/internal/tasks"
)

const (
	taskBasePath = "/nbgwas/tasks"

	maxNDExIDLen = 40
)

const indexHTML = `<!DOCTYPE html>
<html>
<head><title>netboost</title></head>
<body>
<h1>Network Boosted Genome Wide Association Study</h1>
<p>POST multipart form data to ` + taskBasePath + ` with fields
<code>alpha</code>, <code>seeds</code> and one network source
(<code>network</code> file upload, BigGIM <code>column</code> or NDEx
<code>ndex</code> UUID), then poll the returned Location.</p>
</body>
</html>
`

// Server holds the handler dependencies.
type Server struct {
	cfg    *config.AppConfig
	store  *tasks.Store
	cache  cache.Cache
	health *health.Manager
}

// NewServer wires the REST surface over a task store.
func NewServer(cfg *config.AppConfig, store *tasks.Store, c cache.Cache, hm *health.Manager) *Server {
	return &Server{cfg: cfg, store: store, cache: c, health: hm}
}

// Routes builds the router with the canonical middleware stack.
func (s *Server) Routes() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableMetrics:   true,
		EnableLogging:   true,
		EnableRateLimit: s.cfg.RateLimitEnabled,
		RateLimitRPM:    s.cfg.RateLimitRPS,
	})

	r.Get("/", s.handleIndex)
	r.Route(taskBasePath, func(r chi.Router) {
		if s.cfg.RateLimitEnabled {
			r.With(middleware.SubmitRateLimit(s.cfg.RateLimitBurst)).Post("/", s.handleSubmit)
		} else {
			r.Post("/", s.handleSubmit)
		}
		r.Get("/", s.handleList)
		r.Get("/{id}", s.handleStatus)
		r.Delete("/{id}", s.handleDelete)
	})
	if s.health != nil {
		r.Get("/healthz", s.health.ServeHealth)
		r.Get("/readyz", s.health.ServeReady)
	}
	return r
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

// handleList exists so the collection URL answers deterministically:
// tasks are only addressable by id.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", "POST")
	writeError(w, r, http.StatusMethodNotAllowed, "listing tasks is not supported")
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "api")

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, "unable to parse form: "+err.Error())
		return
	}

	alpha := s.cfg.Alpha
	if v := r.FormValue("alpha"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed <= 0 || parsed >= 1 {
			writeError(w, r, http.StatusBadRequest, "alpha must be a number between 0 and 1 exclusive")
			return
		}
		alpha = parsed
	}

	seeds := splitSeeds(r.FormValue("seeds"))
	if len(seeds) == 0 {
		writeError(w, r, http.StatusBadRequest, "seeds parameter is required")
		return
	}

	p := tasks.Params{
		Alpha:    alpha,
		Seeds:    seeds,
		RemoteIP: remoteIP(r),
	}

	networkUpload, _, uploadErr := r.FormFile("network")
	switch {
	case uploadErr == nil:
		defer networkUpload.Close() //nolint:errcheck
	case r.FormValue("column") != "":
		p.Column = r.FormValue("column")
	case r.FormValue("ndex") != "":
		id := r.FormValue("ndex")
		if len(id) > maxNDExIDLen {
			writeError(w, r, http.StatusBadRequest, "ndex id exceeds 40 characters")
			return
		}
		p.NDExID = id
	default:
		writeError(w, r, http.StatusBadRequest, "one of network, column or ndex is required")
		return
	}

	task, err := s.store.Create(p)
	if err != nil {
		logger.Error().Err(err).Str("event", "api.create_failed").Msg("task create failed")
		writeError(w, r, http.StatusInternalServerError, "unable to store task")
		return
	}
	if uploadErr == nil {
		if err := s.store.SaveNetwork(task, networkUpload); err != nil {
			logger.Error().Err(err).Str("event", "api.upload_failed").Str("id", task.ID).Msg("network upload failed")
			_ = s.store.Move(task, tasks.DoneState, errors.New("network upload could not be stored"))
			writeError(w, r, http.StatusInternalServerError, "unable to store network")
			return
		}
	}

	metrics.RecordTaskSubmitted(p.Source())
	logger.Info().
		Str("event", "api.task_submitted").
		Str("id", task.ID).
		Str("source", p.Source()).
		Int("seeds", len(seeds)).
		Msg("task accepted")

	w.Header().Set("Location", taskBasePath+"/"+task.ID)
	writeJSON(w, r, http.StatusAccepted, map[string]string{"id": task.ID})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	logger := log.WithComponentFromContext(r.Context(), "api")

	task, err := s.store.Find(id)
	if err != nil {
		if errors.Is(err, tasks.ErrNotFound) {
			writeJSON(w, r, http.StatusGone, map[string]string{"status": "notfound"})
			return
		}
		logger.Error().Err(err).Str("event", "api.find_failed").Str("id", id).Msg("task lookup failed")
		writeError(w, r, http.StatusInternalServerError, "unable to load task")
		return
	}

	switch task.State {
	case tasks.SubmittedState, tasks.ProcessingState:
		writeJSON(w, r, http.StatusOK, map[string]string{"status": task.State})
	case tasks.DoneState:
		s.writeDone(w, r, task)
	default:
		writeError(w, r, http.StatusInternalServerError, "task is in an unknown state")
	}
}

// writeDone reports a finished task: its error if it failed, its result
// document if one was produced, and a server error when neither exists.
func (s *Server) writeDone(w http.ResponseWriter, r *http.Request, task *tasks.Task) {
	if task.Params.Error != "" {
		writeError(w, r, http.StatusInternalServerError, task.Params.Error)
		return
	}

	cacheKey := "result:" + task.ID
	if s.cache != nil {
		if body, ok := s.cache.Get(cacheKey); ok {
			metrics.RecordResultCache(true)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(body)
			return
		}
		metrics.RecordResultCache(false)
	}

	result, ok, err := s.store.Result(task)
	if err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Str("event", "api.result_failed").Str("id", task.ID).Msg("result read failed")
		writeError(w, r, http.StatusInternalServerError, "unable to load result")
		return
	}
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "task finished without a result")
		return
	}

	doc := map[string]any{"status": tasks.DoneState, "result": result}
	body, err := json.Marshal(doc)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "unable to encode result")
		return
	}
	if s.cache != nil {
		s.cache.Set(cacheKey, body, s.cfg.CacheTTL)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// handleDelete acknowledges the route but task deletion is not offered.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusServiceUnavailable, "task deletion is not supported")
}

func splitSeeds(raw string) []string {
	parts := strings.Split(raw, ",")
	seeds := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			seeds = append(seeds, p)
		}
	}
	return seeds
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
