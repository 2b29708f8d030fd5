package routes

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"datamarket/gateway/middleware"
	"datamarket/indexer"
	"datamarket/native/market"
)

// EventSource serves indexed notifications.
type EventSource interface {
	List(ctx context.Context, q indexer.Query) ([]indexer.Record, error)
	Subscribe(buffer int) (<-chan indexer.Record, func())
	Export(ctx context.Context, w io.Writer, q indexer.Query) (int, error)
}

type Config struct {
	Engine        *market.Engine
	Events        EventSource
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
	Logger        *slog.Logger
}

// Rate limit keys used by the router.
const (
	RateLimitMarket = "market"
	RateLimitAdmin  = "admin"
)

func New(cfg Config) (http.Handler, error) {
	if cfg.Engine == nil {
		return nil, errors.New("routes: market engine required")
	}
	if cfg.Authenticator == nil {
		return nil, errors.New("routes: authenticator required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mr := &marketRoutes{engine: cfg.Engine, events: cfg.Events, logger: logger.With("component", "routes")}

	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.CORS))
	obs := cfg.Observability
	if obs != nil {
		r.Use(obs.Middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := cfg.Engine.Marketplace(); err != nil {
			writeJSONError(w, http.StatusServiceUnavailable, err)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if obs != nil {
		r.Handle("/metrics", obs.MetricsHandler())
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(cfg.Authenticator.Middleware)
		v1.Group(func(pub chi.Router) {
			if cfg.RateLimiter != nil {
				pub.Use(cfg.RateLimiter.Middleware(RateLimitMarket))
			}
			mr.mount(pub)
		})
		v1.Route("/admin", func(admin chi.Router) {
			admin.Use(middleware.RequireScopes(middleware.ScopeAdmin))
			if cfg.RateLimiter != nil {
				admin.Use(cfg.RateLimiter.Middleware(RateLimitAdmin))
			}
			mr.mountAdmin(admin)
		})
	})
	return r, nil
}
