package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the whisper match service
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Matchmaking metrics
	WaitingUsers    prometheus.Gauge
	ActiveSessions  prometheus.Gauge
	JoinsTotal      *prometheus.CounterVec
	MatchesTotal    prometheus.Counter
	SessionsEnded   *prometheus.CounterVec
	MessagesRelayed prometheus.Counter
	WaitDuration    prometheus.Histogram

	// Rate limiting
	RateLimitExceededTotal *prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Initialize creates and registers all Prometheus metrics
func Initialize() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_duration_seconds",
					Help:    "HTTP request latency in seconds",
					Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
				},
				[]string{"method", "path"},
			),
			WaitingUsers: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "whispermatch_waiting_users",
				Help: "Number of users currently in the wait pool",
			}),
			ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "whispermatch_active_sessions",
				Help: "Number of currently active match sessions",
			}),
			JoinsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "whispermatch_joins_total",
					Help: "Join calls by outcome",
				},
				[]string{"outcome"},
			),
			MatchesTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "whispermatch_matches_total",
				Help: "Total number of sessions created by pairing",
			}),
			SessionsEnded: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "whispermatch_sessions_ended_total",
					Help: "Terminal session transitions by reason",
				},
				[]string{"reason"},
			),
			MessagesRelayed: promauto.NewCounter(prometheus.CounterOpts{
				Name: "whispermatch_messages_relayed_total",
				Help: "Messages accepted and relayed inside sessions",
			}),
			WaitDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "whispermatch_wait_duration_seconds",
				Help:    "Time users spent waiting before being matched",
				Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300},
			}),
			RateLimitExceededTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "rate_limit_exceeded_total",
					Help: "Requests rejected by rate limiting",
				},
				[]string{"endpoint"},
			),
		}
	})
	return instance
}

// Get returns the metrics instance, initializing it if needed
func Get() *Metrics {
	return Initialize()
}
