// Package metrics exposes Coterie's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Set bundles the counters the auth and chat cores report into.
type Set struct {
	registry *prometheus.Registry

	LoginsTotal      *prometheus.CounterVec
	SessionEvictions prometheus.Counter
	SessionRefreshes prometheus.Counter
	MessagesSent     prometheus.Counter
}

// NewSet builds a Set backed by its own registry, pre-populated with the
// standard Go and process collectors.
func NewSet() *Set {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &Set{
		registry: reg,
		LoginsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coterie",
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by result (ok, invalid, throttled, error).",
		}, []string{"result"}),
		SessionEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coterie",
			Subsystem: "auth",
			Name:      "session_evictions_total",
			Help:      "Sessions evicted by the per-user capacity limit.",
		}),
		SessionRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coterie",
			Subsystem: "auth",
			Name:      "session_refreshes_total",
			Help:      "Successful bearer token refreshes.",
		}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coterie",
			Subsystem: "chat",
			Name:      "messages_sent_total",
			Help:      "Messages accepted for persistence.",
		}),
	}

	reg.MustRegister(s.LoginsTotal, s.SessionEvictions, s.SessionRefreshes, s.MessagesSent)
	return s
}

// Handler returns the /metrics HTTP handler for this Set's registry.
func (s *Set) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}
