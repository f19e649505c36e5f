package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/dubbadge/internal/app"
	"github.com/JakeFAU/dubbadge/internal/config"
	"github.com/JakeFAU/dubbadge/internal/logging"
	"github.com/JakeFAU/dubbadge/internal/metrics"
	"github.com/JakeFAU/dubbadge/internal/settings"
)

// Controller is the part of app.Controller the server drives.
type Controller interface {
	Ready() bool
	Status() app.Status
	Settings() settings.Snapshot
	Apply(ctx context.Context, snap settings.Snapshot, force bool) (app.Result, error)
	Reload(ctx context.Context) (app.Result, error)
}

// Server wires HTTP handlers to the controller.
type Server struct {
	router chi.Router
	ctrl   Controller
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(ctrl Controller, cfg config.Config, logger *zap.Logger) *Server {
	s := &Server{
		ctrl:   ctrl,
		logger: logging.OrNop(logger).Named("api"),
	}
	timeout := time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(metrics.Middleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Get("/status", s.status)
		r.Get("/settings", s.getSettings)
		r.Put("/settings", s.putSettings)
		r.Post("/reload", s.reload)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if !s.ctrl.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "not ready",
			"dataset": s.ctrl.Status().Dataset.Status,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) getSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Settings())
}

// settingsPatch carries the fields a PUT may change; nil fields keep their value.
type settingsPatch struct {
	Language   *string            `json:"language"`
	Confidence *string            `json:"confidence"`
	Position   *settings.Position `json:"position"`
	Color      *settings.Color    `json:"color"`
	Debug      *bool              `json:"debug"`
}

func (p settingsPatch) apply(snap settings.Snapshot) settings.Snapshot {
	snap.Language = valueOrDefault(p.Language, snap.Language)
	snap.Confidence = valueOrDefault(p.Confidence, snap.Confidence)
	snap.Position = valueOrDefault(p.Position, snap.Position)
	snap.Color = valueOrDefault(p.Color, snap.Color)
	snap.Debug = valueOrDefault(p.Debug, snap.Debug)
	return snap
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}

func (s *Server) putSettings(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	var patch settingsPatch
	if err := dec.Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	snap := patch.apply(s.ctrl.Settings())
	force := r.URL.Query().Get("reload") == "true"
	res, err := s.ctrl.Apply(r.Context(), snap, force)
	s.writeApply(w, res, err)
}

func (s *Server) reload(w http.ResponseWriter, r *http.Request) {
	res, err := s.ctrl.Reload(r.Context())
	s.writeApply(w, res, err)
}

func (s *Server) writeApply(w http.ResponseWriter, res app.Result, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, settings.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusRequestTimeout, err.Error())
	default:
		s.logger.Warn("apply failed", zap.String("action", res.Action), zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
