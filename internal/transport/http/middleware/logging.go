package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/pribylovaa/auth-sessions/internal/pkg/log"
)

// Logging кладёт request-scoped логгер в контекст (с request_id, если он
// уже назначен) и пишет одну запись на запрос.
func Logging(l *slog.Logger) Middleware {
	if l == nil {
		l = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := log.Into(r.Context(), l)
			if rid := r.Header.Get(HeaderRequestID); rid != "" {
				ctx = log.With(ctx, slog.String("request_id", rid))
			}
			r = r.WithContext(ctx)

			sw := newStatusWriter(w)
			start := time.Now()

			next.ServeHTTP(sw, r)

			log.From(ctx).LogAttrs(ctx, slog.LevelInfo, "http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", sw.Status()),
				slog.Duration("dur", time.Since(start)),
				slog.Int("bytes", sw.count),
			)
		})
	}
}
