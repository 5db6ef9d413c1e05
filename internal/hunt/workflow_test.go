package hunt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"secops-service/internal/metrics"
	"secops-service/internal/model"
	"secops-service/internal/sched"
	"secops-service/internal/store"
)

type fakeAlerts struct {
	created []model.SOCAlert
	err     error
}

func (f *fakeAlerts) CreateAlert(ctx context.Context, title, description string, severity model.Severity,
	category model.AlertCategory, indicators []model.ThreatIndicator, affectedAssets []string) (*model.SOCAlert, error) {
	if f.err != nil {
		return nil, f.err
	}
	alert := model.SOCAlert{
		ID:         "alert-" + title,
		Title:      title,
		Severity:   severity,
		Category:   category,
		Indicators: indicators,
	}
	f.created = append(f.created, alert)
	return &alert, nil
}

type fakeSource struct {
	count int
	err   error
	calls []string
}

func (f *fakeSource) Execute(ctx context.Context, dataSource, query string) (int, []string, error) {
	f.calls = append(f.calls, dataSource+"|"+query)
	return f.count, nil, f.err
}

func newTestWorkflow(t *testing.T, alerts AlertCreator, source DataSource) (*Workflow, *sched.FakeClock) {
	t.Helper()
	if source == nil {
		source = NopDataSource{}
	}
	clock := sched.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	w := NewWorkflow(Options{
		Logger:  zap.NewNop(),
		Clock:   clock,
		Store:   store.NewMemoryStore(),
		Metrics: metrics.New(prometheus.NewRegistry()),
		Alerts:  alerts,
		Source:  source,
	})
	return w, clock
}

func activeHunt(t *testing.T, w *Workflow) *model.ThreatHunt {
	t.Helper()
	hunt, err := w.CreateHunt(context.Background(), "beaconing sweep",
		"compromised hosts beacon to untracked infrastructure", "hunter-1", 8*time.Hour)
	require.NoError(t, err)
	hunt, err = w.Activate(context.Background(), hunt.ID)
	require.NoError(t, err)
	return hunt
}

func TestCreateHuntRequiresHypothesis(t *testing.T) {
	w, _ := newTestWorkflow(t, nil, nil)
	_, err := w.CreateHunt(context.Background(), "noname", "", "hunter-1", time.Hour)
	assert.Error(t, err)
}

func TestHuntLifecycle(t *testing.T) {
	w, _ := newTestWorkflow(t, nil, nil)
	ctx := context.Background()

	hunt, err := w.CreateHunt(ctx, "sweep", "hypothesis", "hunter-1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, model.HuntPlanning, hunt.Status)
	assert.Nil(t, hunt.StartedAt)

	// Completing a planning hunt skips a state and is rejected.
	_, err = w.Complete(ctx, hunt.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	hunt, err = w.Activate(ctx, hunt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.HuntActive, hunt.Status)
	require.NotNil(t, hunt.StartedAt)

	_, err = w.Activate(ctx, hunt.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	hunt, err = w.Complete(ctx, hunt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.HuntCompleted, hunt.Status)
	require.NotNil(t, hunt.CompletedAt)

	// Completed hunts cannot be cancelled.
	_, err = w.Cancel(ctx, hunt.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCancelFromPlanning(t *testing.T) {
	w, _ := newTestWorkflow(t, nil, nil)
	ctx := context.Background()

	hunt, err := w.CreateHunt(ctx, "sweep", "hypothesis", "hunter-1", 0)
	require.NoError(t, err)
	hunt, err = w.Cancel(ctx, hunt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.HuntCancelled, hunt.Status)
	require.NotNil(t, hunt.CompletedAt)
}

func TestExecuteQueryRecordsOutcome(t *testing.T) {
	source := &fakeSource{count: 42}
	w, _ := newTestWorkflow(t, nil, source)
	ctx := context.Background()

	hunt := activeHunt(t, w)
	q, err := w.AddQuery(ctx, hunt.ID, "dns lookups", "dns.query:*.badcdn.example", "dns-logs")
	require.NoError(t, err)
	assert.Nil(t, q.ExecutedAt)

	q, err = w.ExecuteQuery(ctx, hunt.ID, q.ID)
	require.NoError(t, err)
	require.NotNil(t, q.ExecutedAt)
	assert.Equal(t, 42, q.ResultCount)
	assert.Equal(t, []string{"dns-logs|dns.query:*.badcdn.example"}, source.calls)
}

func TestExecuteQueryFailureKeepsCount(t *testing.T) {
	source := &fakeSource{err: errors.New("cluster unavailable")}
	w, _ := newTestWorkflow(t, nil, source)
	ctx := context.Background()

	hunt := activeHunt(t, w)
	q, err := w.AddQuery(ctx, hunt.ID, "q", "query", "ds")
	require.NoError(t, err)

	got, err := w.ExecuteQuery(ctx, hunt.ID, q.ID)
	assert.Error(t, err)
	// Execution time is still recorded; the count is not overwritten.
	require.NotNil(t, got.ExecutedAt)
	assert.Zero(t, got.ResultCount)
}

func TestExecuteQueryRequiresActiveHunt(t *testing.T) {
	w, _ := newTestWorkflow(t, nil, nil)
	ctx := context.Background()

	hunt, err := w.CreateHunt(ctx, "sweep", "hypothesis", "hunter-1", 0)
	require.NoError(t, err)
	q, err := w.AddQuery(ctx, hunt.ID, "q", "query", "ds")
	require.NoError(t, err)

	_, err = w.ExecuteQuery(ctx, hunt.ID, q.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

// growingSource adds follow-up queries to its hunt mid-execution, forcing the
// query slice to reallocate while the executing call has the lock released.
type growingSource struct {
	w      *Workflow
	huntID string
}

func (g *growingSource) Execute(ctx context.Context, dataSource, query string) (int, []string, error) {
	for i := 0; i < 4; i++ {
		if _, err := g.w.AddQuery(ctx, g.huntID, "follow-up", "related query", "ds"); err != nil {
			return 0, nil, err
		}
	}
	return 7, nil, nil
}

func TestExecuteQuerySurvivesConcurrentAddQuery(t *testing.T) {
	source := &growingSource{}
	w, _ := newTestWorkflow(t, nil, source)
	ctx := context.Background()

	hunt := activeHunt(t, w)
	source.w = w
	source.huntID = hunt.ID

	q, err := w.AddQuery(ctx, hunt.ID, "initial", "process.name:psexec", "endpoint-logs")
	require.NoError(t, err)

	got, err := w.ExecuteQuery(ctx, hunt.ID, q.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ExecutedAt)
	assert.Equal(t, 7, got.ResultCount)

	// The outcome lands on the hunt's own query, not on a stale copy of it.
	fresh, err := w.Hunt(hunt.ID)
	require.NoError(t, err)
	require.Len(t, fresh.Queries, 5)
	assert.Equal(t, q.ID, fresh.Queries[0].ID)
	require.NotNil(t, fresh.Queries[0].ExecutedAt)
	assert.Equal(t, 7, fresh.Queries[0].ResultCount)
}

func TestCriticalFindingSpawnsAlert(t *testing.T) {
	alerts := &fakeAlerts{}
	w, _ := newTestWorkflow(t, alerts, nil)
	ctx := context.Background()

	hunt := activeHunt(t, w)
	finding, err := w.AddFinding(ctx, hunt.ID, model.HuntFinding{
		Title:    "C2 beaconing confirmed",
		Severity: model.SeverityCritical,
		Indicators: []model.ThreatIndicator{
			{Type: "ip_address", Value: "198.51.100.7", IsMalicious: true},
		},
		Tags: []string{"persistence"},
	})
	require.NoError(t, err)

	require.Len(t, alerts.created, 1)
	assert.Equal(t, model.AlertCatThreatHunting, alerts.created[0].Category)
	assert.Equal(t, alerts.created[0].ID, finding.AlertID)

	// Indicator spellings are normalized before the alert is raised.
	require.Len(t, finding.Indicators, 1)
	assert.Equal(t, model.IndicatorIP, finding.Indicators[0].Type)

	assert.Contains(t, finding.RecommendedActions, "Immediately isolate affected systems")
	assert.Contains(t, finding.RecommendedActions, "Block malicious IP addresses")
	assert.Contains(t, finding.RecommendedActions, "Review scheduled tasks and startup items")
}

func TestLowFindingDoesNotSpawnAlert(t *testing.T) {
	alerts := &fakeAlerts{}
	w, _ := newTestWorkflow(t, alerts, nil)
	ctx := context.Background()

	hunt := activeHunt(t, w)
	finding, err := w.AddFinding(ctx, hunt.ID, model.HuntFinding{
		Title:    "bookmarklet of interest",
		Severity: model.SeverityLow,
	})
	require.NoError(t, err)
	assert.Empty(t, alerts.created)
	assert.Empty(t, finding.AlertID)
	assert.Contains(t, finding.RecommendedActions, "Document and monitor")
}

func TestFindingRecordedEvenWhenAlertFails(t *testing.T) {
	alerts := &fakeAlerts{err: errors.New("engine down")}
	w, _ := newTestWorkflow(t, alerts, nil)
	ctx := context.Background()

	hunt := activeHunt(t, w)
	finding, err := w.AddFinding(ctx, hunt.ID, model.HuntFinding{
		Title:    "lateral movement",
		Severity: model.SeverityHigh,
	})
	require.NoError(t, err)
	assert.Empty(t, finding.AlertID)

	got, err := w.Hunt(hunt.ID)
	require.NoError(t, err)
	assert.Len(t, got.Findings, 1)
}

func TestRecommendActionsDeduplicates(t *testing.T) {
	actions := RecommendActions(model.HuntFinding{
		Severity: model.SeverityMedium,
		Indicators: []model.ThreatIndicator{
			{Type: model.IndicatorDomain, Value: "a.example"},
			{Type: model.IndicatorDomain, Value: "b.example"},
		},
	})
	count := 0
	for _, a := range actions {
		if a == "Sinkhole suspicious domains" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestDurationScanFlagsOverdueHunts(t *testing.T) {
	w, clock := newTestWorkflow(t, nil, nil)
	ctx := context.Background()

	hunt := activeHunt(t, w) // 8 hour time box

	clock.Advance(7 * time.Hour)
	w.DurationScan(ctx)
	got, err := w.Hunt(hunt.ID)
	require.NoError(t, err)
	assert.False(t, got.Overdue)

	clock.Advance(2 * time.Hour)
	w.DurationScan(ctx)
	got, err = w.Hunt(hunt.ID)
	require.NoError(t, err)
	assert.True(t, got.Overdue)
}

func TestRestoreRoundTrip(t *testing.T) {
	mem := store.NewMemoryStore()
	clock := sched.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	opts := Options{
		Logger:  zap.NewNop(),
		Clock:   clock,
		Store:   mem,
		Metrics: metrics.New(prometheus.NewRegistry()),
		Source:  NopDataSource{},
	}

	w := NewWorkflow(opts)
	hunt, err := w.CreateHunt(context.Background(), "persisted", "hypothesis", "hunter-1", time.Hour)
	require.NoError(t, err)

	opts.Metrics = metrics.New(prometheus.NewRegistry())
	restored := NewWorkflow(opts)
	restored.Restore(context.Background())

	got, err := restored.Hunt(hunt.ID)
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.Name)
}
