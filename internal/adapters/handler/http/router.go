package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type RouterConfig struct {
	// TrustProxy resolves the client address from X-Forwarded-For and
	// X-Real-IP. Enable it only behind a proxy that sets those headers.
	TrustProxy bool
	RateLimit  RateLimitConfig
}

func NewHandler(targetHandler *TargetHandler, voteHandler *VoteHandler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	throttle := newLimiterStore(cfg.RateLimit).Middleware

	r.Route("/api", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("welcome"))
		})

		r.Route("/servers", func(r chi.Router) {
			r.Post("/", targetHandler.CreateTarget)
			r.Get("/", targetHandler.ListTargets)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", targetHandler.GetTarget)
				r.With(throttle).Get("/can-vote", voteHandler.CanVote)
				r.With(throttle).Post("/vote", voteHandler.Vote)
			})
		})
	})

	return r
}
