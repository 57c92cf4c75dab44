// metrics собирает метрики Prometheus сервиса сессий.
//
// Регистр собственный (не DefaultRegisterer): его отдаёт /metrics на
// ops-порту, а тесты создают независимые экземпляры.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "auth"

// Metrics — набор коллекторов сервиса.
type Metrics struct {
	registry *prometheus.Registry

	events   *prometheus.CounterVec
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	purged   prometheus.Counter
}

// New создаёт регистр и регистрирует коллекторы, включая метрики
// рантайма Go и процесса.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Auth lifecycle events by outcome.",
		}, []string{"event", "outcome"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		purged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_purged_total",
			Help:      "Expired refresh sessions removed by the sweeper.",
		}),
	}

	reg.MustRegister(
		m.events,
		m.requests,
		m.duration,
		m.purged,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry возвращает регистр (для тестов и дополнительных коллекторов).
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler отдаёт метрики в формате Prometheus.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// AuthEvent учитывает событие жизненного цикла.
func (m *Metrics) AuthEvent(event, outcome string) {
	m.events.WithLabelValues(event, outcome).Inc()
}

// ObserveRequest учитывает завершённый HTTP-запрос. route: шаблон маршрута
// chi, а не сырой путь: иначе id сессий раздуют кардинальность.
func (m *Metrics) ObserveRequest(method, route string, status int, dur time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(dur.Seconds())
}

// SessionsPurged учитывает удалённые просроченные сессии.
func (m *Metrics) SessionsPurged(n int64) {
	if n > 0 {
		m.purged.Add(float64(n))
	}
}
