package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hackgods/surgical-authorization-tracker/internal/metrics"
	"github.com/hackgods/surgical-authorization-tracker/internal/surgical"
)

// NoticeFeed exposes the most recent notices.
type NoticeFeed interface {
	Recent() []surgical.Notice
}

type RouterConfig struct {
	Service *surgical.Service
	Notices NoticeFeed
	Metrics *metrics.Collector
	Log     *zap.Logger
	Storage Pinger
	Redis   Pinger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log, cfg.Metrics))

	// Health endpoints
	health := NewHealthHandler(cfg.Storage, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	// Case endpoints
	r.Route("/cases", func(r chi.Router) {
		r.Get("/", listCasesHandler(cfg.Service))
		r.Post("/", createCaseHandler(cfg.Service))
		r.Get("/{id}", getCaseHandler(cfg.Service))
		r.Put("/{id}", updateCaseHandler(cfg.Service))
		r.Post("/{id}/summary", generateSummaryHandler(cfg.Service))
	})

	// Settings endpoints
	r.Route("/settings", func(r chi.Router) {
		r.Get("/", getSettingsHandler(cfg.Service))
		r.Put("/", putSettingsHandler(cfg.Service))
		r.Post("/lists/{list}", addReferenceHandler(cfg.Service))
		r.Delete("/lists/{list}/{item}", removeReferenceHandler(cfg.Service))
	})

	if cfg.Notices != nil {
		r.Get("/notices", listNoticesHandler(cfg.Notices))
	}
	r.Post("/alerts/sweep", runSweepHandler(cfg.Service))

	return r
}
