// Package metrics exposes Prometheus instrumentation for the key
// lifecycle manager. All collectors are registered on the default
// registry so promhttp.Handler() serves them without extra wiring.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransitionsTotal counts committed state transitions by target status.
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "keymgr",
		Name:      "transitions_total",
		Help:      "Committed key record state transitions by resulting status.",
	}, []string{"to_status"})

	// VersionConflictsTotal counts optimistic concurrency rejections.
	VersionConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "keymgr",
		Name:      "version_conflicts_total",
		Help:      "Updates rejected because the expected record version was stale.",
	})

	// ScannerPassesTotal counts completed scanner passes.
	ScannerPassesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "keymgr",
		Subsystem: "scanner",
		Name:      "passes_total",
		Help:      "Completed expiry scanner passes.",
	})

	// ScannerErrorsTotal counts record-level failures inside scanner passes.
	ScannerErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "keymgr",
		Subsystem: "scanner",
		Name:      "errors_total",
		Help:      "Record-level errors encountered during scanner passes.",
	})

	// NotificationsTotal counts gateway deliveries by event kind and outcome.
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "keymgr",
		Name:      "notifications_total",
		Help:      "Notification gateway deliveries by kind and outcome.",
	}, []string{"kind", "outcome"})

	// AuditBacklogDepth tracks audit entries awaiting reconciliation.
	AuditBacklogDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "keymgr",
		Name:      "audit_backlog_depth",
		Help:      "Audit entries buffered after a failed append, awaiting retry.",
	})
)
