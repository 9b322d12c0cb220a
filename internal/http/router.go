package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/gorilla/csrf"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/fjod/go_checkout/pkg/logger"
)

type RouterConfig struct {
	CSRFKey        []byte
	CookieSecure   bool
	TrustedOrigins []string
	// RateLimiter guards the state-changing endpoints. nil disables it.
	RateLimiter    *RateLimiter
	RequestTimeout time.Duration
	// Health reports readiness of backing stores. nil reports ok.
	Health func(ctx context.Context) error
}

func NewRouter(h *CheckoutHandler, cfg RouterConfig, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log))
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeadersMiddleware)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.Health(ctx); err != nil {
				logger.With(r.Context(), log).Warn("health check failed", zap.Error(err))
				respondError(w, r, http.StatusServiceUnavailable, "unavailable", err.Error())
				return
			}
		}
		render.JSON(w, r, map[string]string{"status": "ok"})
	})

	protect := csrf.Protect(
		cfg.CSRFKey,
		csrf.Secure(cfg.CookieSecure),
		csrf.Path("/"),
		csrf.TrustedOrigins(cfg.TrustedOrigins),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.With(r.Context(), log).Warn("csrf validation failed", zap.Error(csrf.FailureReason(r)))
			http.Error(w, "Tu sesión expiró. Recarga la página e intenta nuevamente.", http.StatusForbidden)
		})),
	)

	limit := func(next http.Handler) http.Handler { return next }
	if cfg.RateLimiter != nil {
		limit = cfg.RateLimiter.Middleware
	}

	r.Route("/checkout", func(r chi.Router) {
		if !cfg.CookieSecure {
			r.Use(PlaintextMiddleware)
		}
		r.Use(protect)

		r.Get("/", h.Page)
		r.With(limit).Post("/", h.Submit)
		r.Post("/delivery", h.Delivery)
		r.Get("/widget", h.Widget)
		r.With(limit).Post("/callback", h.Callback)
		r.Get("/result/{orderNumber}", h.Result)
	})

	return otelhttp.NewHandler(r, "checkout-web")
}
