package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// unmatchedRoute — метка для запросов, не попавших ни в один маршрут.
const unmatchedRoute = "unmatched"

// RequestObserver принимает итог HTTP-запроса (реализует metrics.Metrics).
type RequestObserver interface {
	ObserveRequest(method, route string, status int, dur time.Duration)
}

// Metrics учитывает запросы по шаблону маршрута chi.
// Шаблон известен только после маршрутизации, поэтому читается после next.
func Metrics(obs RequestObserver) Middleware {
	return func(next http.Handler) http.Handler {
		if obs == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := newStatusWriter(w)
			start := time.Now()

			next.ServeHTTP(sw, r)

			route := unmatchedRoute
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					route = p
				}
			}

			obs.ObserveRequest(r.Method, route, sw.Status(), time.Since(start))
		})
	}
}
