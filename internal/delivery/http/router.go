package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/QsSama-W/nimingChat/internal/config"
	"github.com/QsSama-W/nimingChat/internal/middleware"
)

// Limiters are the per-address request limiters for each route group.
type Limiters struct {
	API       *middleware.IPRateLimiter
	WebSocket *middleware.IPRateLimiter
}

// NewLimiters builds limiters from the configured per-second rates.
func NewLimiters(cfg *config.Config) Limiters {
	return Limiters{
		API:       middleware.NewIPRateLimiter(cfg.RateLimitAPI, config.RateBurst(cfg.RateLimitAPI)),
		WebSocket: middleware.NewIPRateLimiter(cfg.RateLimitWS, config.RateBurst(cfg.RateLimitWS)),
	}
}

// NewRouter mounts every endpoint.
func NewRouter(h *Handler, lim Limiters) http.Handler {
	r := chi.NewRouter()

	// a wildcard origin never gets credentialed CORS responses
	wildcard := hasWildcard(h.cfg.AllowedOrigins)
	if wildcard {
		h.log.Warn("ALLOWED_ORIGINS contains *, cross-origin requests will not carry credentials")
	}

	r.Use(middleware.SecurityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
		AllowCredentials: !wildcard,
		MaxAge:           300,
	}))

	trust := h.cfg.TrustProxyHeaders

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitMiddleware(lim.API, trust))
		r.Get("/api/check-lock", h.HandleCheckLock)
		r.Post("/api/login", h.HandleLogin)
		r.Post("/api/logout", h.HandleLogout)
	})

	r.With(middleware.RateLimitMiddleware(lim.WebSocket, trust)).Get("/ws", h.HandleWebSocket)

	r.Get("/healthz", h.HandleHealth)

	return r
}

func hasWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
