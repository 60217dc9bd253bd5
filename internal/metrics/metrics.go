// Package metrics holds the orchestrator's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ranked"

var (
	MatchesFormed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "matches_formed_total",
		Help:      "Matches created from the queue.",
	})

	MatchesCancelled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "matches_cancelled_total",
		Help:      "Matches that ended CANCELLED, by reason.",
	}, []string{"reason"})

	MatchesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "matches_completed_total",
		Help:      "Matches that ended COMPLETED, including forfeits.",
	})

	ProvisioningSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "provisioning_seconds",
		Help:      "Time from READY to WAITING_FOR_PLAYERS.",
		Buckets:   []float64{1, 5, 10, 15, 20, 30, 45, 60, 120},
	})

	BansIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bans_issued_total",
		Help:      "Bans created, by reason.",
	}, []string{"reason"})

	PendingDisconnects = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_disconnects",
		Help:      "Grace-period timers currently armed.",
	})
)
