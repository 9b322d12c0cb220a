package http

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/csrf"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fjod/go_checkout/pkg/logger"
)

// RequestIDMiddleware copies chi's request id into the logger context and the
// response headers. It must run after middleware.RequestID.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())
		if requestID != "" {
			w.Header().Set(middleware.RequestIDHeader, requestID)
			r = r.WithContext(logger.ContextWithRequestID(r.Context(), requestID))
		}
		next.ServeHTTP(w, r)
	})
}

// LoggingMiddleware writes one access log line per request.
func LoggingMiddleware(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.With(r.Context(), log).Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("latency", time.Since(start)),
				zap.String("client_ip", clientIP(r)))
		})
	}
}

// PlaintextMiddleware tells gorilla/csrf that requests arrived over plain
// HTTP so it skips the HTTPS referer check. Only for non-TLS deployments.
func PlaintextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil {
			r = csrf.PlaintextHTTPRequest(r)
		}
		next.ServeHTTP(w, r)
	})
}

func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	limiters sync.Map
	rate     rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	mu       sync.Mutex
	lastSeen time.Time
}

func NewRateLimiter(r float64, burst int) *RateLimiter {
	return &RateLimiter{
		rate:  rate.Limit(r),
		burst: burst,
		idle:  10 * time.Minute,
		now:   time.Now,
	}
}

func (rl *RateLimiter) Allow(ip string) bool {
	v, _ := rl.limiters.LoadOrStore(ip, &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)})
	vis := v.(*visitor)
	vis.mu.Lock()
	vis.lastSeen = rl.now()
	vis.mu.Unlock()
	return vis.limiter.Allow()
}

// Cleanup forgets clients idle for longer than the idle window and returns
// how many were dropped.
func (rl *RateLimiter) Cleanup() int {
	cutoff := rl.now().Add(-rl.idle)
	n := 0
	rl.limiters.Range(func(key, value any) bool {
		vis := value.(*visitor)
		vis.mu.Lock()
		stale := vis.lastSeen.Before(cutoff)
		vis.mu.Unlock()
		if stale {
			rl.limiters.Delete(key)
			n++
		}
		return true
	})
	return n
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.Allow(ip) {
			logger.FromContext(r.Context()).Warn("rate limit exceeded", zap.String("client_ip", ip))
			http.Error(w, "Demasiadas solicitudes. Intenta nuevamente en unos segundos.", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP expects middleware.RealIP to have rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
