package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tether",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"station", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tether",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"station", "method", "path", "status"},
	)
	linkState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tether",
			Subsystem: "link",
			Name:      "state",
			Help:      "Current link state code: 0 idle, 1 connecting, 2 listening, 3 connected.",
		},
	)
	linkTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tether",
			Subsystem: "link",
			Name:      "transitions_total",
			Help:      "Link state transitions by resulting state.",
		},
		[]string{"state"},
	)
	linkFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tether",
			Subsystem: "link",
			Name:      "failures_total",
			Help:      "Link worker failures by role.",
		},
		[]string{"role"},
	)
	linkFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tether",
			Subsystem: "link",
			Name:      "frames_total",
			Help:      "Framed messages moved over the link.",
		},
		[]string{"direction"},
	)
	linkFrameBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tether",
			Subsystem: "link",
			Name:      "frame_payload_bytes_total",
			Help:      "Framed payload bytes moved over the link.",
		},
		[]string{"direction"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			linkState,
			linkTransitions,
			linkFailures,
			linkFrames,
			linkFrameBytes,
		)
	})
}

func RecordHTTPRequest(station, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(station, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(station, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordLinkState publishes the state the link just entered.
func RecordLinkState(state string, code int) {
	RegisterMetrics()
	linkState.Set(float64(code))
	linkTransitions.WithLabelValues(state).Inc()
}

func RecordLinkFailure(role string) {
	RegisterMetrics()
	linkFailures.WithLabelValues(role).Inc()
}

func RecordFrameSent(payloadBytes int) {
	RegisterMetrics()
	linkFrames.WithLabelValues("sent").Inc()
	linkFrameBytes.WithLabelValues("sent").Add(float64(payloadBytes))
}

func RecordFrameReceived(payloadBytes int) {
	RegisterMetrics()
	linkFrames.WithLabelValues("received").Inc()
	linkFrameBytes.WithLabelValues("received").Add(float64(payloadBytes))
}
