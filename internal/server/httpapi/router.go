package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"solidify/internal/server/service"
)

// Limiter decides whether a request keyed by client identity may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type Router struct {
	services        *service.Services
	log             zerolog.Logger
	maxRequestBytes int64
	limiter         Limiter
}

// NewRouter builds the API handler. limiter may be nil to disable rate
// limiting.
func NewRouter(services *service.Services, logger zerolog.Logger, maxRequestBytes int64, limiter Limiter) http.Handler {
	r := &Router{services: services, log: logger, maxRequestBytes: maxRequestBytes, limiter: limiter}
	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer, r.requestID, r.requestLog)

	mux.Get("/health", r.handleHealth)
	mux.Get("/openapi.yaml", r.handleOpenAPI)

	mux.Group(func(pub chi.Router) {
		pub.Use(r.rateLimit)
		pub.Post("/api/v1/auth/login", r.handleLogin)
		pub.Post("/api/v1/auth/refresh", r.handleRefresh)
	})

	mux.Get("/api/v1/records/{id}", r.handleRetrieve)
	mux.Get("/api/v1/records/{id}/nft", r.handleBinding)
	mux.Get("/api/v1/records/{id}/events", r.handleRecordEvents)
	mux.Get("/api/v1/roles/events", r.handleRoleEvents)
	mux.Get("/api/v1/roles/{role}/{address}", r.handleHasRole)

	mux.Group(func(pr chi.Router) {
		pr.Use(r.rateLimit, r.authMiddleware)
		pr.Post("/api/v1/auth/register", r.handleRegister)
		pr.Post("/api/v1/records", r.handleCreate)
		pr.Put("/api/v1/records/{id}", r.handleUpdate)
		pr.Post("/api/v1/records/{id}/erase", r.handleErase)
		pr.Post("/api/v1/records/{id}/nft", r.handleIssueNFT)
		pr.Put("/api/v1/roles/{role}/{address}", r.handleGrantRole)
		pr.Delete("/api/v1/roles/{role}/{address}", r.handleRevokeRole)
	})
	return mux
}

func (r *Router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, http.StatusOK, map[string]string{"status": "ok"})
}
