package incident

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"secops-service/internal/metrics"
	"secops-service/internal/model"
	"secops-service/internal/sched"
	"secops-service/internal/store"
)

func newTestManager(t *testing.T) (*Manager, *sched.FakeClock, *metrics.Metrics) {
	t.Helper()
	clock := sched.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	m := metrics.New(prometheus.NewRegistry())
	mgr := NewManager(Options{
		Logger:  zap.NewNop(),
		Clock:   clock,
		Store:   store.NewMemoryStore(),
		Metrics: m,
	})
	return mgr, clock, m
}

func TestPriorityMatrix(t *testing.T) {
	tests := []struct {
		severity model.Severity
		category model.IncidentCategory
		want     int
	}{
		{model.SeverityCritical, model.IncidentDataBreach, 1},
		{model.SeverityCritical, model.IncidentSystemCompromise, 1},
		{model.SeverityCritical, model.IncidentSocialEngineering, 2},
		{model.SeverityHigh, model.IncidentDataBreach, 1},
		{model.SeverityMedium, model.IncidentMalwareInfection, 3},
		{model.SeverityLow, model.IncidentSocialEngineering, 5},
		{model.SeverityLow, "unknown_category", 5},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, model.PriorityFor(tc.severity, tc.category),
			"%s/%s", tc.severity, tc.category)
	}
}

func TestImpactAssessment(t *testing.T) {
	tests := []struct {
		name     string
		severity model.Severity
		users    int
		systems  int
		want     model.ImpactLevel
	}{
		{name: "critical_always_severe", severity: model.SeverityCritical, want: model.ImpactSevere},
		{name: "mass_users_severe", severity: model.SeverityLow, users: 1500, want: model.ImpactSevere},
		{name: "high_major", severity: model.SeverityHigh, want: model.ImpactMajor},
		{name: "medium_moderate", severity: model.SeverityMedium, want: model.ImpactModerate},
		{name: "low_with_systems_minor", severity: model.SeverityLow, systems: 2, want: model.ImpactMinor},
		{name: "low_nothing_affected_none", severity: model.SeverityLow, want: model.ImpactNone},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, businessImpact(tc.severity, tc.users, tc.systems))
		})
	}
}

func TestTeamAssignment(t *testing.T) {
	assert.Equal(t, model.TeamCISO, assignTeam(model.SeverityCritical, model.IncidentDataBreach))
	assert.Equal(t, model.TeamCISO, assignTeam(model.SeverityCritical, model.IncidentComplianceViolation))
	assert.Equal(t, model.TeamSOC, assignTeam(model.SeverityCritical, model.IncidentMalwareInfection))
	assert.Equal(t, model.TeamSOC, assignTeam(model.SeverityHigh, model.IncidentDataBreach))
	assert.Equal(t, model.TeamDevSecOps, assignTeam(model.SeverityMedium, model.IncidentDataBreach))
}

func TestCreateIncidentCriticalDataBreach(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	inc, err := mgr.CreateIncident(context.Background(), "database dump exposed", "d",
		model.SeverityCritical, model.IncidentDataBreach,
		[]model.ThreatIndicator{{Type: "ip_address", Value: "203.0.113.9"}},
		[]string{"u1", "u2"}, []string{"db-01"})
	require.NoError(t, err)

	assert.Equal(t, model.StatusDetected, inc.Status)
	assert.Equal(t, 1, inc.Priority)
	assert.Equal(t, model.TeamCISO, inc.AssignedTeam)
	assert.Equal(t, "plan-data-breach", inc.PlanID)
	assert.Equal(t, model.ImpactSevere, inc.BusinessImpact)
	assert.Equal(t, model.ImpactSevere, inc.DataImpact)
	assert.True(t, inc.RegulatoryNotificationRequired)
	assert.True(t, inc.CustomerNotificationRequired)
	assert.True(t, inc.ExecutiveNotificationRequired)

	// Upstream indicator spellings are normalized at the boundary.
	require.Len(t, inc.Indicators, 1)
	assert.Equal(t, model.IndicatorIP, inc.Indicators[0].Type)

	// Detection-time evidence with an opening chain of custody.
	require.Len(t, inc.Evidence, 1)
	assert.Equal(t, "system", inc.Evidence[0].CollectedBy)
	require.Len(t, inc.Evidence[0].ChainOfCustody, 1)
	assert.Equal(t, "collected", inc.Evidence[0].ChainOfCustody[0].Action)
}

func TestCreateIncidentLowSeverityNoNotifications(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	inc, err := mgr.CreateIncident(context.Background(), "policy drift", "d",
		model.SeverityLow, model.IncidentSocialEngineering, nil, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 5, inc.Priority)
	assert.Equal(t, model.ImpactNone, inc.BusinessImpact)
	assert.False(t, inc.RegulatoryNotificationRequired)
	assert.False(t, inc.CustomerNotificationRequired)
	assert.False(t, inc.ExecutiveNotificationRequired)
	assert.Equal(t, model.TeamDevSecOps, inc.AssignedTeam)
	assert.Equal(t, "plan-generic", inc.PlanID)
}

func TestProgressThroughFullLifecycle(t *testing.T) {
	mgr, clock, _ := newTestManager(t)
	ctx := context.Background()

	inc, err := mgr.CreateIncident(ctx, "malware on host", "d",
		model.SeverityHigh, model.IncidentMalwareInfection, nil, nil, []string{"host-7"})
	require.NoError(t, err)
	assert.Equal(t, "plan-malware", inc.PlanID)

	clock.Advance(10 * time.Minute)
	inc, err = mgr.ProgressToNextPhase(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusTriaged, inc.Status)
	require.NotNil(t, inc.TriagedAt)
	triagedAt := *inc.TriagedAt

	// Entering triaged stages the containment actions; the automatic ones run.
	require.Len(t, inc.ContainmentActions, 3)
	byType := map[string]model.ResponseAction{}
	for _, a := range inc.ContainmentActions {
		byType[a.Type] = a
	}
	assert.Equal(t, model.ActionExecuted, byType["block_ip"].Status)
	assert.Equal(t, "system", byType["block_ip"].ExecutedBy)
	assert.Equal(t, model.ActionExecuted, byType["collect_evidence"].Status)
	assert.Equal(t, model.ActionPending, byType["isolate_systems"].Status)

	clock.Advance(30 * time.Minute)
	inc, err = mgr.ProgressToNextPhase(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusContained, inc.Status)
	require.NotNil(t, inc.ContainedAt)
	require.Len(t, inc.EradicationActions, 3)
	// Timestamp stamped on entry does not move afterwards.
	assert.Equal(t, triagedAt, *inc.TriagedAt)

	inc, err = mgr.ProgressToNextPhase(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusEradicated, inc.Status)
	require.Len(t, inc.RecoveryActions, 3)

	inc, err = mgr.ProgressToNextPhase(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRecovered, inc.Status)

	// recovered -> closed goes through CloseIncident only.
	_, err = mgr.ProgressToNextPhase(ctx, inc.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	inc, err = mgr.CloseIncident(ctx, inc.ID, "phishing attachment", "tighten mail filtering")
	require.NoError(t, err)
	assert.Equal(t, model.StatusClosed, inc.Status)
	assert.Equal(t, "phishing attachment", inc.RootCause)
	require.NotNil(t, inc.ClosedAt)

	_, err = mgr.CloseIncident(ctx, inc.ID, "x", "y")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = mgr.ProgressToNextPhase(ctx, inc.ID)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestUpdateStatusForwardOnly(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := context.Background()

	inc, err := mgr.CreateIncident(ctx, "suspicious activity", "d",
		model.SeverityMedium, model.IncidentSystemCompromise, nil, nil, nil)
	require.NoError(t, err)

	// Forward jumps are allowed.
	inc, err = mgr.UpdateStatus(ctx, inc.ID, model.StatusContained)
	require.NoError(t, err)
	assert.Equal(t, model.StatusContained, inc.Status)
	require.NotNil(t, inc.ContainedAt)
	assert.Nil(t, inc.TriagedAt)

	// Backward and repeated transitions are rejected.
	_, err = mgr.UpdateStatus(ctx, inc.ID, model.StatusTriaged)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = mgr.UpdateStatus(ctx, inc.ID, model.StatusContained)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = mgr.UpdateStatus(ctx, inc.ID, "paused")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateStatusCannotClose(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := context.Background()

	inc, err := mgr.CreateIncident(ctx, "unauthorized access attempt", "d",
		model.SeverityMedium, model.IncidentSystemCompromise, nil, nil, nil)
	require.NoError(t, err)

	// Closing bypasses root cause capture and is reserved for CloseIncident,
	// from any state including freshly detected.
	_, err = mgr.UpdateStatus(ctx, inc.ID, model.StatusClosed)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	inc, err = mgr.Incident(inc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDetected, inc.Status)
	assert.Empty(t, inc.RootCause)
	assert.Nil(t, inc.ClosedAt)

	_, err = mgr.UpdateStatus(ctx, inc.ID, model.StatusRecovered)
	require.NoError(t, err)
	_, err = mgr.UpdateStatus(ctx, inc.ID, model.StatusClosed)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	inc, err = mgr.CloseIncident(ctx, inc.ID, "stolen service account", "rotate credentials")
	require.NoError(t, err)
	assert.Equal(t, model.StatusClosed, inc.Status)
	assert.Equal(t, "stolen service account", inc.RootCause)
}

func TestAddEvidenceAppendsCustody(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := context.Background()

	inc, err := mgr.CreateIncident(ctx, "suspicious activity", "d",
		model.SeverityLow, model.IncidentSystemCompromise, nil, nil, nil)
	require.NoError(t, err)

	inc, err = mgr.AddEvidence(ctx, inc.ID, model.Evidence{
		Type:        "pcap",
		Description: "capture of suspicious session",
		CollectedBy: "analyst-1",
	})
	require.NoError(t, err)
	require.Len(t, inc.Evidence, 2)

	added := inc.Evidence[1]
	assert.NotEmpty(t, added.ID)
	assert.False(t, added.CollectedAt.IsZero())
	require.Len(t, added.ChainOfCustody, 1)
	assert.Equal(t, "analyst-1", added.ChainOfCustody[0].Actor)
}

func TestExecuteAction(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := context.Background()

	inc, err := mgr.CreateIncident(ctx, "intrusion", "d",
		model.SeverityHigh, model.IncidentSystemCompromise, nil, nil, nil)
	require.NoError(t, err)
	inc, err = mgr.UpdateStatus(ctx, inc.ID, model.StatusTriaged)
	require.NoError(t, err)

	var pendingID string
	for _, a := range inc.ContainmentActions {
		if a.Status == model.ActionPending {
			pendingID = a.ID
		}
	}
	require.NotEmpty(t, pendingID)

	inc, err = mgr.ExecuteAction(ctx, inc.ID, pendingID, "analyst-2", "hosts pulled from LB")
	require.NoError(t, err)
	for _, a := range inc.ContainmentActions {
		if a.ID == pendingID {
			assert.Equal(t, model.ActionExecuted, a.Status)
			assert.Equal(t, "analyst-2", a.ExecutedBy)
			assert.NotNil(t, a.ExecutedAt)
		}
	}

	// Executing the same action twice is a not-found: it is no longer pending.
	_, err = mgr.ExecuteAction(ctx, inc.ID, pendingID, "analyst-2", "again")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEscalationScanMatrix(t *testing.T) {
	mgr, clock, _ := newTestManager(t)
	ctx := context.Background()

	inc, err := mgr.CreateIncident(ctx, "breach", "d",
		model.SeverityCritical, model.IncidentDataBreach, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, inc.EscalationLevel)

	// Before the first threshold nothing changes.
	clock.Advance(30 * time.Minute)
	mgr.EscalationScan(ctx)
	got, err := mgr.Incident(inc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.EscalationLevel)

	// Past one hour the automatic 1 -> 2 rule applies.
	clock.Advance(31 * time.Minute)
	mgr.EscalationScan(ctx)
	got, err = mgr.Incident(inc.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.EscalationLevel)

	// Past four hours the automatic 2 -> 3 rule applies.
	clock.Advance(4 * time.Hour)
	mgr.EscalationScan(ctx)
	got, err = mgr.Incident(inc.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.EscalationLevel)

	// The 3 -> 4 rule is manual: it only raises the flag.
	clock.Advance(21 * time.Hour)
	mgr.EscalationScan(ctx)
	got, err = mgr.Incident(inc.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.EscalationLevel)
	assert.True(t, got.ManualEscalationRequired)
}

func TestSLAScanReportsBreachOncePerPhase(t *testing.T) {
	mgr, clock, m := newTestManager(t)
	ctx := context.Background()

	// Critical data-breach: 15 minute triage target while detected.
	_, err := mgr.CreateIncident(ctx, "breach", "d",
		model.SeverityCritical, model.IncidentDataBreach, nil, nil, nil)
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	mgr.SLAScan(ctx)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.SLABreaches))

	clock.Advance(10 * time.Minute)
	mgr.SLAScan(ctx)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SLABreaches))

	// Repeat scans in the same phase stay silent.
	clock.Advance(time.Hour)
	mgr.SLAScan(ctx)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SLABreaches))
}

func TestLifecycleMetrics(t *testing.T) {
	mgr, clock, _ := newTestManager(t)
	ctx := context.Background()

	inc, err := mgr.CreateIncident(ctx, "breach", "d",
		model.SeverityHigh, model.IncidentDataBreach, nil, nil, nil)
	require.NoError(t, err)

	clock.Advance(20 * time.Minute)
	_, err = mgr.UpdateStatus(ctx, inc.ID, model.StatusTriaged)
	require.NoError(t, err)
	clock.Advance(40 * time.Minute)
	_, err = mgr.UpdateStatus(ctx, inc.ID, model.StatusContained)
	require.NoError(t, err)
	clock.Advance(time.Hour)
	_, err = mgr.UpdateStatus(ctx, inc.ID, model.StatusRecovered)
	require.NoError(t, err)
	_, err = mgr.CloseIncident(ctx, inc.ID, "stolen credentials", "rotate keys")
	require.NoError(t, err)

	// A second, still-open incident is excluded from the aggregates.
	_, err = mgr.CreateIncident(ctx, "open", "d",
		model.SeverityLow, model.IncidentSystemCompromise, nil, nil, nil)
	require.NoError(t, err)

	got := mgr.Metrics()
	assert.Equal(t, 2, got.TotalIncidents)
	assert.Equal(t, 1, got.OpenIncidents)
	assert.Equal(t, 1, got.ClosedIncidents)
	assert.Equal(t, 20*time.Minute, got.MTTD)
	assert.Equal(t, 2*time.Hour, got.MTTR)
	assert.Equal(t, 20*time.Minute, got.AvgTriageTime)
	assert.Equal(t, 40*time.Minute, got.AvgContainmentTime)
}

func TestRestoreRoundTrip(t *testing.T) {
	mem := store.NewMemoryStore()
	clock := sched.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	opts := Options{
		Logger:  zap.NewNop(),
		Clock:   clock,
		Store:   mem,
		Metrics: metrics.New(prometheus.NewRegistry()),
	}

	mgr := NewManager(opts)
	inc, err := mgr.CreateIncident(context.Background(), "persisted", "d",
		model.SeverityMedium, model.IncidentSystemCompromise, nil, nil, nil)
	require.NoError(t, err)

	opts.Metrics = metrics.New(prometheus.NewRegistry())
	restored := NewManager(opts)
	restored.Restore(context.Background())

	got, err := restored.Incident(inc.ID)
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.Title)
	assert.Equal(t, model.StatusDetected, got.Status)
}
