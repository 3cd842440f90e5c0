package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpRequestsTotal     *prometheus.CounterVec
	httpLatencySeconds    *prometheus.HistogramVec
	httpErrorsTotal       *prometheus.CounterVec
	boardRequestsTotal    *prometheus.CounterVec
	activityMutations     *prometheus.CounterVec
	feedSubscribersActive prometheus.Gauge
	feedEventsTotal       *prometheus.CounterVec
	tutorSessionsActive   prometheus.Gauge
	tutorTurnsTotal       *prometheus.CounterVec
	tutorTurnLatency      prometheus.Histogram
	autoAttachTotal       prometheus.Counter
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mural_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mural_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mural_http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		boardRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mural_board_requests_total",
			Help: "Board reads by outcome.",
		}, []string{"outcome"})

		activityMutations = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mural_activity_mutations_total",
			Help: "Administrator writes to the activity store.",
		}, []string{"operation", "outcome"})

		feedSubscribersActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mural_feed_subscribers_active",
			Help: "Number of live activity feed subscribers.",
		})

		feedEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mural_feed_events_total",
			Help: "Activity change notifications by origin.",
		}, []string{"origin"})

		tutorSessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mural_tutor_sessions_active",
			Help: "Tutor sessions with a live model handle.",
		})

		tutorTurnsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mural_tutor_turns_total",
			Help: "Tutor turns by outcome.",
		}, []string{"outcome"})

		tutorTurnLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mural_tutor_turn_seconds",
			Help:    "Time from submission to the end of the streamed reply.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40},
		})

		autoAttachTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mural_tutor_auto_attach_total",
			Help: "Turns that automatically attached an activity file.",
		})

		prometheus.MustRegister(
			httpRequestsTotal, httpLatencySeconds, httpErrorsTotal,
			boardRequestsTotal, activityMutations,
			feedSubscribersActive, feedEventsTotal,
			tutorSessionsActive, tutorTurnsTotal, tutorTurnLatency, autoAttachTotal,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// BoardRequests counts board reads labelled ok or unavailable.
func BoardRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return boardRequestsTotal
}

// ActivityMutations counts create, update and delete calls.
func ActivityMutations() *prometheus.CounterVec {
	RegisterMetrics()
	return activityMutations
}

// FeedSubscribers tracks live feed subscriptions.
func FeedSubscribers() prometheus.Gauge {
	RegisterMetrics()
	return feedSubscribersActive
}

// FeedEvents counts change notifications labelled local, redis or nats.
func FeedEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return feedEventsTotal
}

// TutorSessions tracks sessions holding a model handle.
func TutorSessions() prometheus.Gauge {
	RegisterMetrics()
	return tutorSessionsActive
}

// TutorTurns counts turns labelled completed, failed or rejected.
func TutorTurns() *prometheus.CounterVec {
	RegisterMetrics()
	return tutorTurnsTotal
}

// TutorTurnLatency observes streamed turn durations.
func TutorTurnLatency() prometheus.Histogram {
	RegisterMetrics()
	return tutorTurnLatency
}

// AutoAttachments counts automatic attachment selections.
func AutoAttachments() prometheus.Counter {
	RegisterMetrics()
	return autoAttachTotal
}
