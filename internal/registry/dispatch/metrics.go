package dispatch

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes command-level counters and latency histograms.
type Metrics struct {
	commands *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the dispatcher metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "corenic",
			Subsystem: "dispatch",
			Name:      "commands_total",
			Help:      "Dispatched commands by operation, resource, and result code.",
		}, []string{"op", "resource", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "corenic",
			Subsystem: "dispatch",
			Name:      "command_duration_seconds",
			Help:      "Command execution latency by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}
	if reg != nil {
		reg.MustRegister(m.commands, m.duration)
	}
	return m
}

func (m *Metrics) observe(op, resource string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(op, resource, strconv.Itoa(code)).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}
