package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the referral engine.
type Metrics struct {
	ReferralsCreated  prometheus.Counter
	ApprovalDecisions *prometheus.CounterVec
	ConcentrationRuns prometheus.Counter
	AlertsEmitted     prometheus.Counter
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		ReferralsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "referrals_created_total",
			Help: "Total number of referrals created.",
		}),
		ApprovalDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "referral_approval_decisions_total",
			Help: "Approval decisions applied, by action.",
		}, []string{"action"}),
		ConcentrationRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "referral_concentration_runs_total",
			Help: "Concentration analysis runs.",
		}),
		AlertsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "referral_concentration_alerts_total",
			Help: "Concentration alerts emitted across all runs.",
		}),
	}
}
