package httpapi

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"solidify/internal/shared/models"
)

type contextKey string

const (
	callerContextKey    contextKey = "caller"
	requestIDContextKey contextKey = "request_id"

	requestIDHeader = "X-Request-Id"
)

func (r *Router) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		id := strings.TrimSpace(req.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(req.Context(), requestIDContextKey, id)
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

func (r *Router) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		r.log.Info().
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("request_id", requestIDFrom(req.Context())).
			Msg("http_request")
	})
}

func (r *Router) rateLimit(next http.Handler) http.Handler {
	if r.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ok, err := r.limiter.Allow(req.Context(), clientIP(req))
		if err != nil {
			r.log.Warn().Err(err).Msg("rate limiter unavailable")
		}
		if !ok {
			writeError(w, http.StatusTooManyRequests, "RateLimited", "too many requests")
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (r *Router) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		authz := req.Header.Get("Authorization")
		if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "Unauthenticated", "missing bearer token")
			return
		}
		caller, err := r.services.Auth.ParseToken(req.Context(), strings.TrimPrefix(authz, "Bearer "))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Unauthenticated", "invalid token")
			return
		}
		ctx := context.WithValue(req.Context(), callerContextKey, caller)
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

func getCaller(ctx context.Context) models.Address {
	if v, ok := ctx.Value(callerContextKey).(models.Address); ok {
		return v
	}
	return ""
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

func clientIP(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}
