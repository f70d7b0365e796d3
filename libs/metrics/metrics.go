package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns every metric the counseling service exports. Each Collector
// has its own registry so tests can build as many as they like.
type Collector struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	TransitionsTotal   *prometheus.CounterVec
	ConflictsTotal     *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec
	StalePending       prometheus.Gauge

	OutboxPublished prometheus.Counter
	IntakeConsumed  *prometheus.CounterVec
	FeedClients     prometheus.Gauge
}

func NewCollector(namespace string) *Collector {
	namespace = strings.ReplaceAll(namespace, "-", "_")
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Collector{
		registry: reg,

		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "route"}),

		TransitionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "appointments",
			Name:      "transitions_total",
			Help:      "Committed appointment operations by operation name.",
		}, []string{"operation"}),

		ConflictsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "appointments",
			Name:      "conflicts_total",
			Help:      "Operations refused at commit time, by reason (slot_taken, stale).",
		}, []string{"reason"}),

		NotificationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "total",
			Help:      "Outbound notifications by channel and outcome (sent, failed, skipped).",
		}, []string{"channel", "outcome"}),

		StalePending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "appointments",
			Name:      "stale_pending",
			Help:      "Requests waiting in Pendente longer than the configured threshold.",
		}),

		OutboxPublished: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "published_total",
			Help:      "Domain events published to Kafka.",
		}),

		IntakeConsumed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "messages_total",
			Help:      "Intake messages consumed by outcome (created, duplicate, rejected).",
		}, []string{"outcome"}),

		FeedClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "changefeed",
			Name:      "clients",
			Help:      "Connected change feed clients.",
		}),
	}
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveRequest records one HTTP request. route should be the matched
// template, never the raw path, to keep cardinality bounded.
func (c *Collector) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	c.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.RequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (c *Collector) Transition(operation string) {
	c.TransitionsTotal.WithLabelValues(operation).Inc()
}

func (c *Collector) Conflict(reason string) {
	c.ConflictsTotal.WithLabelValues(reason).Inc()
}

func (c *Collector) Notification(channel, outcome string) {
	c.NotificationsTotal.WithLabelValues(channel, outcome).Inc()
}
