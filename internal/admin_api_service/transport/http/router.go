package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"

	"github.com/autobahn/moderation/internal/admin_api_service/middleware"
)

// NewRouter mounts every handler under /api/v1 behind JWT auth. /healthz stays open.
func NewRouter(jwtSecret string, logger *slog.Logger, denylists *DenylistHandler, banlist *BanlistHandler, chats *ChatHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(chi_middleware.RequestID)
	r.Use(chi_middleware.RealIP)
	r.Use(chi_middleware.Recoverer)
	r.Use(chi_middleware.Timeout(60 * time.Second))
	r.Use(PrometheusMetricsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.JWTAuthMiddleware(jwtSecret, logger))
		denylists.Routes(r)
		banlist.Routes(r)
		chats.Routes(r)
	})
	return r
}
