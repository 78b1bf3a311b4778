package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"

	"github.com/warp/allocation-ledger/allocation"
	"github.com/warp/allocation-ledger/auth"
)

// Authenticate requires a valid bearer token and stores its Actor in the
// request context.
func Authenticate(verifier *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeError(w, http.StatusUnauthorized, "Authorization header required", nil)
				return
			}
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				writeError(w, http.StatusUnauthorized, "Invalid authorization header format", nil)
				return
			}

			actor, err := verifier.Verify(strings.TrimSpace(parts[1]))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid or expired token", err)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithActor(r.Context(), actor)))
		})
	}
}

// actorFrom returns the authenticated caller. Routes behind Authenticate
// always have one.
func actorFrom(r *http.Request) allocation.Actor {
	actor, _ := auth.ActorFrom(r.Context())
	return actor
}

// RequestLogger logs one line per request through logrus.
func RequestLogger(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			fields := logrus.Fields{
				"module":     "http",
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start).String(),
				"request_id": middleware.GetReqID(r.Context()),
			}
			if actor, ok := auth.ActorFrom(r.Context()); ok {
				fields["actor"] = actor.EmpCode
			}
			entry := logger.WithFields(fields)
			if ww.Status() >= http.StatusInternalServerError {
				entry.Warn("request")
				return
			}
			entry.Info("request")
		})
	}
}

// RateLimit throttles by client IP. A nil limiter disables it.
func RateLimit(l *limiter.Limiter) func(http.Handler) http.Handler {
	if l == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	mw := stdlib.NewMiddleware(l, stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusTooManyRequests, "Too many requests", nil)
	}))
	return mw.Handler
}
