package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Job lifecycle metrics
	JobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "membership_job_runs_total",
			Help: "Total number of maintenance job runs by job and outcome",
		},
		[]string{"job", "outcome"}, // success, error, skipped
	)

	JobDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "membership_job_duration_seconds",
			Help:    "Duration of maintenance job runs",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"job"},
	)

	// Member lifecycle metrics
	MembersExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "membership_members_expired_total",
			Help: "Total number of members moved to expired by the expiration sweep",
		},
	)

	ExpiringNoticesSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "membership_expiring_notices_sent_total",
			Help: "Total number of renewal reminder emails sent",
		},
	)

	EmailFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "membership_email_failures_total",
			Help: "Total number of failed member emails by kind",
		},
		[]string{"kind"}, // expiring_notice, expired_notice
	)

	LevelMembers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "membership_level_members",
			Help: "Members per subscription level and status as of the last reconciliation",
		},
		[]string{"level_id", "status"},
	)
)
