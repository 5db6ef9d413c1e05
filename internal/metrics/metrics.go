package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the process-wide observability surface: delivery outcomes, queue
// pressure and SLA posture.
type Metrics struct {
	LogsIngested         *prometheus.CounterVec
	LogsDroppedSampling  prometheus.Counter
	LogsDroppedFiltering prometheus.Counter
	LogsEvicted          prometheus.Counter
	QueueDepth           prometheus.Gauge

	SuccessfulDeliveries *prometheus.CounterVec
	FailedDeliveries     *prometheus.CounterVec

	AlertsCreated      *prometheus.CounterVec
	AlertsEscalated    prometheus.Counter
	AlertSLACompliance prometheus.Gauge

	IncidentsCreated   *prometheus.CounterVec
	IncidentsEscalated prometheus.Counter
	SLABreaches        prometheus.Counter

	HuntFindings prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LogsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "secops_logs_ingested_total",
			Help: "Log entries accepted by the pipeline, by level and category.",
		}, []string{"level", "category"}),
		LogsDroppedSampling: factory.NewCounter(prometheus.CounterOpts{
			Name: "secops_logs_dropped_sampling_total",
			Help: "Entries dropped by sampling before queueing.",
		}),
		LogsDroppedFiltering: factory.NewCounter(prometheus.CounterOpts{
			Name: "secops_logs_dropped_filtering_total",
			Help: "Entries excluded by filter rules.",
		}),
		LogsEvicted: factory.NewCounter(prometheus.CounterOpts{
			Name: "secops_logs_evicted_total",
			Help: "Entries evicted from the queue at capacity.",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "secops_log_queue_depth",
			Help: "Current number of queued entries.",
		}),
		SuccessfulDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "secops_deliveries_success_total",
			Help: "Successful batch deliveries per provider.",
		}, []string{"provider"}),
		FailedDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "secops_deliveries_failed_total",
			Help: "Failed batch deliveries per provider, after retries.",
		}, []string{"provider"}),
		AlertsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "secops_alerts_created_total",
			Help: "SOC alerts created, by severity.",
		}, []string{"severity"}),
		AlertsEscalated: factory.NewCounter(prometheus.CounterOpts{
			Name: "secops_alerts_escalated_total",
			Help: "Alert escalations, manual and automatic.",
		}),
		AlertSLACompliance: factory.NewGauge(prometheus.GaugeOpts{
			Name: "secops_alert_sla_compliance_ratio",
			Help: "Fraction of resolved alerts whose first response met the severity target.",
		}),
		IncidentsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "secops_incidents_created_total",
			Help: "Security incidents created, by severity.",
		}, []string{"severity"}),
		IncidentsEscalated: factory.NewCounter(prometheus.CounterOpts{
			Name: "secops_incidents_escalated_total",
			Help: "Incident escalations from the escalation matrix.",
		}),
		SLABreaches: factory.NewCounter(prometheus.CounterOpts{
			Name: "secops_incident_sla_breaches_total",
			Help: "Per-phase SLA breaches detected by the periodic scan.",
		}),
		HuntFindings: factory.NewCounter(prometheus.CounterOpts{
			Name: "secops_hunt_findings_total",
			Help: "Findings recorded across all threat hunts.",
		}),
	}
}

// NewNop returns metrics bound to a throwaway registry, for tests.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
