// Package httpapi assembles the server's HTTP surface: middleware chain,
// health and metrics endpoints, and the agreement routes.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	agreementhandler "airdrop/internal/agreement/handler"
	"airdrop/internal/platform/metrics"
	"airdrop/internal/platform/middleware"
	"airdrop/pkg/platform/httputil"
	"airdrop/pkg/platform/middleware/admin"
	"airdrop/pkg/platform/middleware/auth"
	"airdrop/pkg/platform/middleware/requesttime"
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// Deps are the collaborators the router mounts.
type Deps struct {
	Agreements *agreementhandler.Handler
	Validator  auth.JWTValidator
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
	Clock    clockwork.Clock
	// Health is optional; nil reports healthy.
	Health HealthChecker
	// AdminToken guards the development routes.
	AdminToken string
}

// NewRouter wires all public endpoints.
func NewRouter(d Deps) http.Handler {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(requesttime.Middleware(d.Clock))
	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog(d.Logger))
	r.Use(middleware.Recover(d.Logger))
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}

	r.Get("/health", healthHandler(d.Health))
	r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		// Reads are public; writes check the principal in the handler.
		r.Use(auth.OptionalAuth(d.Validator, d.Logger))
		d.Agreements.Register(r)
	})
	r.Group(func(r chi.Router) {
		r.Use(admin.RequireAdminToken(d.AdminToken, d.Logger))
		d.Agreements.RegisterDev(r)
	})
	return r
}

func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unavailable",
				})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
