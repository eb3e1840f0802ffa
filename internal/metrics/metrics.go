package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// AlertsTotal counts accepted alerts by reporter confidence.
	AlertsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "community_alarm",
		Name:      "alerts_total",
		Help:      "Total number of dispatched alerts, labeled by reporter confidence.",
	}, []string{"confidence"})

	// AlertsRejectedTotal counts alerts rejected before dispatch.
	AlertsRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "community_alarm",
		Name:      "alerts_rejected_total",
		Help:      "Total number of alert submissions rejected before dispatch, labeled by error kind.",
	}, []string{"kind"})

	// IntentsTotal counts SOS intents recorded in the correlation table.
	IntentsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "community_alarm",
		Name:      "intents_total",
		Help:      "Total number of SOS intents recorded.",
	})

	// DeliveriesTotal counts delivery attempts by channel and result.
	DeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "community_alarm",
		Subsystem: "dispatch",
		Name:      "deliveries_total",
		Help:      "Total number of notification attempts, labeled by channel and result (sent, failed, skipped).",
	}, []string{"channel", "result"})

	// DispatchDurationSeconds is the wall time of one alert fan-out.
	DispatchDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "community_alarm",
		Subsystem: "dispatch",
		Name:      "duration_seconds",
		Help:      "Time to fan one alert out across all channels.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	})

	// PendingIntents is the number of entries in the correlation table.
	PendingIntents = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "community_alarm",
		Name:      "pending_intents",
		Help:      "Number of SOS intents waiting for an alert submission.",
	})
)

// MustRegister registers all collectors with the default registry. Safe to call more than once.
func MustRegister() {
	once.Do(func() {
		prometheus.MustRegister(
			AlertsTotal,
			AlertsRejectedTotal,
			IntentsTotal,
			DeliveriesTotal,
			DispatchDurationSeconds,
			PendingIntents,
		)
	})
}
