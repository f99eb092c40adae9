package ai

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "readalong",
		Subsystem: "ai",
		Name:      "generation_duration_seconds",
		Help:      "Duration of content generation requests",
	}, []string{"provider", "kind"})

	generationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "readalong",
		Subsystem: "ai",
		Name:      "generation_failures_total",
		Help:      "Number of failed content generation requests",
	}, []string{"provider", "kind"})

	generationTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "readalong",
		Subsystem: "ai",
		Name:      "generation_tokens_total",
		Help:      "Tokens consumed by content generation",
	}, []string{"provider", "direction"})
)

func observe(provider string, kind Kind, start time.Time, usage Usage, err error) {
	generationDuration.WithLabelValues(provider, string(kind)).Observe(time.Since(start).Seconds())
	if err != nil {
		generationFailures.WithLabelValues(provider, string(kind)).Inc()
		return
	}
	generationTokens.WithLabelValues(provider, "input").Add(float64(usage.InputTokens))
	generationTokens.WithLabelValues(provider, "output").Add(float64(usage.OutputTokens))
}
