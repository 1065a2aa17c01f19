package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	scoreboardhandlers "github.com/scorecard-club/scorecard/app/modules/scoreboard/infrastructure/handlers"
	"github.com/scorecard-club/scorecard/internal/observability/attr"
	"golang.org/x/time/rate"
)

// Router builds the HTTP router: health and metrics endpoints plus the
// rate-limited, authenticated scoreboard API under /api.
func (app *App) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(scoreboardhandlers.CorrelationMiddleware)

	r.Get("/healthz", app.health)
	r.Handle("/metrics", promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{Registry: app.Registry}))

	limiter := scoreboardhandlers.NewIPRateLimiter(rate.Limit(app.Config.RateLimit.RPS), app.Config.RateLimit.Burst)
	handlers := scoreboardhandlers.NewHandlers(app.Sessions, app.Store, app.Leaderboard, app.Logger).
		WithDefaultMaxRounds(app.Config.Scoreboard.MaxRounds)

	r.Route("/api", func(r chi.Router) {
		r.Use(scoreboardhandlers.RateLimitMiddleware(limiter))
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(app.Auth.Middleware)
		handlers.Routes(r)
	})
	return r
}

func (app *App) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if app.db != nil {
		if err := app.db.PingContext(ctx); err != nil {
			app.Logger.WarnContext(ctx, "Health check failed", attr.String("component", "database"), attr.Error(err))
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	if app.queue != nil {
		if err := app.queue.HealthCheck(ctx); err != nil {
			app.Logger.WarnContext(ctx, "Health check failed", attr.String("component", "queue"), attr.Error(err))
			http.Error(w, "queue unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
