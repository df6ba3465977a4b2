// Package metrics exposes Prometheus instruments for the key service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "keygate"

// Validation results.
const (
	ResultOK       = "ok"
	ResultExpired  = "expired"
	ResultInvalid  = "invalid"
	ResultNotFound = "not_found"
	ResultConflict = "conflict"
	ResultError    = "error"
)

type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	KeysCreated    prometheus.Counter
	KeysExtended   prometheus.Counter
	KeysDeleted    prometheus.Counter
	KeysExpired    prometheus.Counter
	AutoRegistered prometheus.Counter
	Validations    *prometheus.CounterVec
	Heartbeats     prometheus.Counter

	RateLimitBlocks *prometheus.CounterVec
}

// New registers all instruments on a fresh registry, so several instances
// can coexist in tests.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status_code"}),

		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		KeysCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keys_created_total",
			Help:      "Keys created through the admin API",
		}),
		KeysExtended: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keys_extended_total",
			Help:      "Key extensions",
		}),
		KeysDeleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keys_deleted_total",
			Help:      "Keys deleted by admins or cleanup",
		}),
		KeysExpired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keys_expired_total",
			Help:      "Keys moved to the expired state by cleanup",
		}),
		AutoRegistered: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keys_auto_registered_total",
			Help:      "Keys registered on first use",
		}),
		Validations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_validations_total",
			Help:      "Key validation attempts by result",
		}, []string{"result"}),
		Heartbeats: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_total",
			Help:      "Accepted heartbeats",
		}),

		RateLimitBlocks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_blocks_total",
			Help:      "Requests rejected by the per-client rate limiter",
		}, []string{"route"}),
	}
}

// TrackSessions exposes the size of the session map as a gauge.
func (m *Metrics) TrackSessions(count func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Sessions currently held in memory",
	}, func() float64 { return float64(count()) }))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware records request counts and latencies per matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
