package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ItemsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "possync_items_enqueued_total",
		Help: "Sync items accepted into the queue.",
	})

	ItemsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "possync_items_processed_total",
		Help: "Sync items finishing a processing pass, by resulting status.",
	}, []string{"status"})

	ConflictsDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "possync_conflicts_detected_total",
		Help: "Conflicts found against authoritative entity state.",
	})

	LockContention = promauto.NewCounter(prometheus.CounterOpts{
		Name: "possync_lock_contention_total",
		Help: "Process calls rejected because a pass was already running.",
	})

	TenantRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "possync_tenant_rejections_total",
		Help: "Items rejected by the tenant isolation check.",
	})
)
