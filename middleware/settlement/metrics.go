package settlement

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	judgingPasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "starboard_judging_passes_total",
		Help: "Completed judging passes by result (completed, payment_pending, cancelled).",
	}, []string{"result"})

	judgingConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "starboard_judging_conflicts_total",
		Help: "Triggers that lost the OPEN->JUDGING race and aborted.",
	})

	judgingFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "starboard_judging_fallbacks_total",
		Help: "Judging passes resolved by the deterministic fallback judge.",
	})

	judgingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "starboard_judging_duration_seconds",
		Help:    "Wall time of full judging passes including payout.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	payoutOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "starboard_payouts_total",
		Help: "Payout passes by outcome (paid, already_paid, insufficient_funds, failed).",
	}, []string{"outcome"})

	sweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "starboard_sweep_runs_total",
		Help: "Periodic sweep iterations by kind (deadline, reconcile).",
	}, []string{"kind"})

	depositVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "starboard_deposit_verifications_total",
		Help: "Deposit verification attempts by result (ok, rejected, error).",
	}, []string{"result"})
)
