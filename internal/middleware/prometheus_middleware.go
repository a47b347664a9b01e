package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// unmatchedRoute метка пути для запросов мимо маршрутов. Сырой URL в метке
// раздувал бы число серий на каждом сканере портов.
const unmatchedRoute = "unmatched"

// PrometheusMiddleware HTTP-метрики отладочного API:
//
//	<service>_http_requests_total{route,code}
//	<service>_http_request_duration_seconds{route}
//	<service>_http_request_errors_total{route,code}
//	<service>_http_requests_inflight
type PrometheusMiddleware struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	errors   *prometheus.CounterVec
	inflight prometheus.Gauge
}

// NewPrometheusMiddleware создаёт метрики и регистрирует их в reg
func NewPrometheusMiddleware(service string, reg prometheus.Registerer) *PrometheusMiddleware {
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{Namespace: service, Subsystem: "http", Name: name, Help: help}
	}

	pm := &PrometheusMiddleware{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts(opts(
			"requests_total", "Количество обработанных запросов.")), []string{"route", "code"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts(opts(
			"request_errors_total", "Запросы со статусом 4xx/5xx.")), []string{"route", "code"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts(opts(
			"requests_inflight", "Запросы в обработке."))),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: service,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Длительность обработки запроса.",
			// отладочные ручки отвечают из памяти, хвост выше секунды не нужен
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 7),
		}, []string{"route"}),
	}

	reg.MustRegister(pm.requests, pm.errors, pm.inflight, pm.latency)
	return pm
}

// Handler gin-обработчик для router.Use
func (pm *PrometheusMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		pm.inflight.Inc()
		defer pm.inflight.Dec()

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		status := c.Writer.Status()
		code := strconv.Itoa(status)

		pm.latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
		pm.requests.WithLabelValues(route, code).Inc()
		if status >= 400 {
			pm.errors.WithLabelValues(route, code).Inc()
		}
	}
}
