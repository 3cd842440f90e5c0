package ai

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	streamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mural",
		Subsystem: "ai",
		Name:      "stream_duration_seconds",
		Help:      "Duration of streamed model responses",
	}, []string{"provider", "model"})

	streamFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mural",
		Subsystem: "ai",
		Name:      "stream_failures_total",
		Help:      "Number of failed model requests",
	}, []string{"provider", "model"})
)
