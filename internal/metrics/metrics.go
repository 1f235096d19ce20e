package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tripbooking_submissions_total",
		Help: "Trip booking submissions by resulting aggregate status",
	}, []string{"status"})

	ComponentOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tripbooking_component_outcomes_total",
		Help: "Settled component bookings by component type and status",
	}, []string{"component_type", "status"})

	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tripbooking_provider_call_duration_seconds",
		Help:    "Duration of provider booking calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})

	PersistenceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tripbooking_persistence_failures_total",
		Help: "Failed durable writes by operation",
	}, []string{"op"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tripbooking_cache_lookups_total",
		Help: "Result cache lookups by outcome (hit, miss, untrusted, error)",
	}, []string{"result"})

	ReapedComponents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tripbooking_reaped_components_total",
		Help: "Components failed by the stale component sweep",
	})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tripbooking_events_published_total",
		Help: "Kafka events published by type",
	}, []string{"type"})

	PublishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tripbooking_event_publish_errors_total",
		Help: "Failed Kafka publish attempts",
	})
)
