package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Queue metrics, registered on the default Prometheus registry; the
// surrounding process decides whether and where to expose them.
var (
	runsClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "weavr_queue_runs_claimed_total",
		Help: "Total runs claimed from the queue.",
	})
	runsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weavr_queue_runs_completed_total",
		Help: "Total runs reaching a terminal status, labeled by status.",
	}, []string{"status"})
	runsRescheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "weavr_queue_runs_rescheduled_total",
		Help: "Total runs returned to the queue for retry.",
	})
	activeRunsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "weavr_queue_active_runs",
		Help: "Runs currently executing on this process.",
	})
)
