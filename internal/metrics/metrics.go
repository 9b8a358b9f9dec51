// Package metrics exposes Prometheus collectors for HTTP traffic and the
// letter lifecycle.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "noel",
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "noel",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests handled.",
	}, []string{"method", "route", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "noel",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"method", "route"})

	transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "noel",
		Subsystem: "cartas",
		Name:      "transitions_total",
		Help:      "Lifecycle operations by outcome (ok, rejected, not_found, invalid, error).",
	}, []string{"op", "outcome"})

	tasks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "noel",
		Subsystem: "worker",
		Name:      "tasks_total",
		Help:      "Background tasks processed by type and outcome.",
	}, []string{"type", "outcome"})
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		transitions,
		tasks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves the registry in the exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency by matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// ObserveTransition counts one lifecycle operation.
func ObserveTransition(op, outcome string) {
	transitions.WithLabelValues(op, outcome).Inc()
}

// ObserveTask counts one background task run.
func ObserveTask(taskType string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	tasks.WithLabelValues(taskType, outcome).Inc()
}
