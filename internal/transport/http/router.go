package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/auth-sessions/internal/transport/http/middleware"
)

// Options — параметры сборки HTTP-роутера.
type Options struct {
	Logger   *slog.Logger
	Timeout  time.Duration
	Metrics  middleware.RequestObserver
	BasePath string // например, "/api"; если пустой — роуты регистрируются на корне.
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(svc SessionService, tr TokenTransport, opts Options) http.Handler {
	root := chi.NewRouter()

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.Recover(),
		middleware.RequestID(), // до логирования: id попадает в логгер
		middleware.Logging(opts.Logger),
		middleware.Metrics(opts.Metrics),
		middleware.Timeout(opts.Timeout),
	)

	h := NewHandlers(svc, tr)
	gate := Authenticate(svc, tr)

	if opts.BasePath != "" {
		sub := chi.NewRouter()
		registerRoutes(sub, h, gate)
		root.Mount(opts.BasePath, sub)
		return root
	}

	registerRoutes(root, h, gate)
	return root
}

// registerRoutes — единая точка регистрации всех REST-эндпойнтов.
func registerRoutes(r chi.Router, h *Handlers, gate middleware.Middleware) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/refresh-token", h.RefreshToken)
		r.Post("/logout", h.Logout)

		r.Group(func(r chi.Router) {
			r.Use(gate)

			r.Get("/me", h.Me)
			r.Get("/sessions", h.ListSessions)
			r.Delete("/sessions", h.RevokeAllSessions)
			r.Delete("/sessions/{id}", h.RevokeSession)
		})
	})
}
