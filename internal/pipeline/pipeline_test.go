package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"secops-service/internal/metrics"
	"secops-service/internal/model"
	"secops-service/internal/provider"
	"secops-service/internal/rules"
	"secops-service/internal/sched"
	"secops-service/internal/store"
)

type fakeIncidents struct {
	created []model.SecurityIncident
}

func (f *fakeIncidents) CreateIncidentFromRule(title, description string, severity model.Severity,
	category model.IncidentCategory, indicators []model.ThreatIndicator) (*model.SecurityIncident, error) {
	inc := model.SecurityIncident{
		ID:         "inc-" + title,
		Title:      title,
		Severity:   severity,
		Category:   category,
		Indicators: indicators,
	}
	f.created = append(f.created, inc)
	return &inc, nil
}

func newTestPipeline(t *testing.T, incidents IncidentCreator) (*Pipeline, *store.MemoryStore, *sched.FakeClock) {
	t.Helper()
	mem := store.NewMemoryStore()
	clock := sched.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	p := New(Options{
		Store:     mem,
		Clock:     clock,
		Metrics:   metrics.New(prometheus.NewRegistry()),
		Logger:    zap.NewNop(),
		Incidents: incidents,
		Providers: provider.Deps{Logger: zap.NewNop()},
	})
	return p, mem, clock
}

func TestLogRejectsInvalidInput(t *testing.T) {
	p, _, _ := newTestPipeline(t, nil)
	ctx := context.Background()

	_, err := p.Log(ctx, "verbose", "api", "msg", nil, model.CategorySystem)
	assert.Error(t, err)

	_, err = p.Log(ctx, model.LevelInfo, "api", "msg", nil, "networking")
	assert.Error(t, err)
}

func TestLogEnqueuesAndCounts(t *testing.T) {
	p, _, _ := newTestPipeline(t, nil)
	ctx := context.Background()

	entry, err := p.Log(ctx, model.LevelInfo, "api", "request served", nil, model.CategorySystem)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, model.LevelInfo, entry.Level)

	stats := p.Stats()
	assert.Equal(t, int64(1), stats.TotalLogs)
	assert.Equal(t, int64(1), stats.ByLevel["info"])
	assert.Equal(t, int64(1), stats.BySource["api"])
	assert.Equal(t, 1, p.QueueDepth())
	assert.Zero(t, stats.ErrorRate)
}

func TestCriticalEntryFlushesImmediately(t *testing.T) {
	p, mem, _ := newTestPipeline(t, nil)
	ctx := context.Background()

	p.Info(ctx, "api", "warm-up", nil)
	assert.Equal(t, 1, p.QueueDepth())

	p.Critical(ctx, "db", "primary unreachable", nil)

	// The critical entry drains the queue without waiting on the flush cadence.
	assert.Equal(t, 0, p.QueueDepth())

	var tail []model.LogEntry
	require.NoError(t, mem.Load(ctx, store.KeyCentralLogs, &tail))
	require.Len(t, tail, 2)
	assert.Equal(t, "primary unreachable", tail[1].Message)
}

func TestSamplingDisabledKeepsEverything(t *testing.T) {
	p, _, _ := newTestPipeline(t, nil)
	ctx := context.Background()

	cfg := p.Configuration()
	cfg.Sampling = model.SamplingConfig{Enabled: false, Rate: 0}
	p.UpdateConfiguration(ctx, cfg)

	for i := 0; i < 10; i++ {
		p.Info(ctx, "api", "event", nil)
	}
	assert.Equal(t, int64(10), p.Stats().TotalLogs)
}

func TestSamplingDropsBeforeCounting(t *testing.T) {
	p, _, _ := newTestPipeline(t, nil)
	ctx := context.Background()

	cfg := p.Configuration()
	cfg.Sampling = model.SamplingConfig{Enabled: true, Rate: 0}
	p.UpdateConfiguration(ctx, cfg)

	entry, err := p.Log(ctx, model.LevelInfo, "api", "event", nil, model.CategorySystem)
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.Equal(t, int64(0), p.Stats().TotalLogs)
	assert.Equal(t, 0, p.QueueDepth())
}

func TestSamplingRulePriorityWins(t *testing.T) {
	p, _, _ := newTestPipeline(t, nil)
	ctx := context.Background()

	cfg := p.Configuration()
	cfg.Sampling = model.SamplingConfig{
		Enabled: true,
		Rate:    0, // global drops everything
		Rules: []model.SamplingRule{
			{Name: "keep_errors", Level: model.LevelError, Rate: 1.0, Priority: 10},
			{Name: "drop_errors", Level: model.LevelError, Rate: 0, Priority: 1},
		},
	}
	p.UpdateConfiguration(ctx, cfg)

	kept, err := p.Log(ctx, model.LevelError, "api", "boom", nil, model.CategorySystem)
	require.NoError(t, err)
	assert.NotNil(t, kept)

	dropped, err := p.Log(ctx, model.LevelInfo, "api", "ok", nil, model.CategorySystem)
	require.NoError(t, err)
	assert.Nil(t, dropped)
}

func TestFilterRuleExcludes(t *testing.T) {
	p, _, _ := newTestPipeline(t, nil)
	ctx := context.Background()

	cfg := p.Configuration()
	cfg.Filtering = model.FilteringConfig{
		Enabled: true,
		Rules: []model.FilterRule{
			{Name: "mute_noisy", Condition: "source = noisy", Action: model.FilterExclude, Priority: 5},
		},
	}
	p.UpdateConfiguration(ctx, cfg)

	dropped, err := p.Log(ctx, model.LevelInfo, "noisy", "spam", nil, model.CategorySystem)
	require.NoError(t, err)
	assert.Nil(t, dropped)
	assert.Equal(t, int64(1), p.Stats().FilteredEntries)

	kept, err := p.Log(ctx, model.LevelInfo, "api", "useful", nil, model.CategorySystem)
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestQueueEvictsOldestAtCapacity(t *testing.T) {
	p, _, _ := newTestPipeline(t, nil)
	ctx := context.Background()

	cfg := p.Configuration()
	cfg.Performance.MaxQueueSize = 3
	p.UpdateConfiguration(ctx, cfg)

	for i := 0; i < 5; i++ {
		p.Info(ctx, "api", "event", nil)
	}

	stats := p.Stats()
	assert.Equal(t, 3, stats.QueueDepth)
	assert.Equal(t, int64(2), stats.EvictedEntries)
	// All five passed the intake stages; eviction is a queue concern.
	assert.Equal(t, int64(5), stats.TotalLogs)
}

func TestFlushIsBoundedByBatchSize(t *testing.T) {
	p, _, _ := newTestPipeline(t, nil)
	ctx := context.Background()

	cfg := p.Configuration()
	cfg.Performance.MaxBatchSize = 2
	cfg.Performance.MaxQueueSize = 100
	p.UpdateConfiguration(ctx, cfg)

	for i := 0; i < 5; i++ {
		p.Info(ctx, "api", "event", nil)
	}

	p.Flush(ctx)
	assert.Equal(t, 3, p.QueueDepth())
	p.Flush(ctx)
	assert.Equal(t, 1, p.QueueDepth())
}

func TestAlertRuleCreatesIncident(t *testing.T) {
	incidents := &fakeIncidents{}
	p, _, _ := newTestPipeline(t, incidents)
	ctx := context.Background()

	for _, r := range rules.DefaultAlertRules() {
		require.NoError(t, p.RegisterRule(r))
	}

	p.Critical(ctx, "db", "primary unreachable", map[string]interface{}{"source_ip": "10.0.0.9"})

	require.Len(t, incidents.created, 1)
	inc := incidents.created[0]
	assert.Equal(t, model.SeverityCritical, inc.Severity)
	assert.Equal(t, model.IncidentSystemCompromise, inc.Category)
	require.Len(t, inc.Indicators, 1)
	assert.Equal(t, model.IndicatorIP, inc.Indicators[0].Type)
	assert.Equal(t, "10.0.0.9", inc.Indicators[0].Value)
}

func TestAlertRuleCooldownAcrossEntries(t *testing.T) {
	incidents := &fakeIncidents{}
	p, _, clock := newTestPipeline(t, incidents)
	ctx := context.Background()

	require.NoError(t, p.RegisterRule(&rules.AlertRule{
		ID:       "crit",
		Name:     "crit",
		Expr:     "level = critical",
		Severity: model.SeverityCritical,
		Category: model.IncidentSystemCompromise,
		Cooldown: 5 * time.Minute,
		Actions:  []rules.RuleAction{{Type: rules.ActionIncident}},
		Enabled:  true,
	}))

	p.Critical(ctx, "db", "first", nil)
	p.Critical(ctx, "db", "second", nil)
	assert.Len(t, incidents.created, 1)

	clock.Advance(6 * time.Minute)
	p.Critical(ctx, "db", "third", nil)
	assert.Len(t, incidents.created, 2)
}

// stallingIncidents blocks its first call until released so a test can hold
// the rule dispatcher busy while other entries arrive.
type stallingIncidents struct {
	mu      sync.Mutex
	created int
	entered chan struct{}
	release chan struct{}
	first   bool
}

func (f *stallingIncidents) CreateIncidentFromRule(title, description string, severity model.Severity,
	category model.IncidentCategory, indicators []model.ThreatIndicator) (*model.SecurityIncident, error) {
	f.mu.Lock()
	stall := !f.first
	f.first = true
	f.mu.Unlock()
	if stall {
		f.entered <- struct{}{}
		<-f.release
	}
	f.mu.Lock()
	f.created++
	f.mu.Unlock()
	return &model.SecurityIncident{ID: "inc", Title: title, Severity: severity, Category: category}, nil
}

func (f *stallingIncidents) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

func TestConcurrentEntriesAllReachRules(t *testing.T) {
	incidents := &stallingIncidents{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	p, _, _ := newTestPipeline(t, incidents)
	ctx := context.Background()

	require.NoError(t, p.RegisterRule(&rules.AlertRule{
		ID:       "errs",
		Name:     "errs",
		Expr:     "level = error",
		Severity: model.SeverityHigh,
		Category: model.IncidentSystemCompromise,
		Actions:  []rules.RuleAction{{Type: rules.ActionIncident}},
		Enabled:  true,
	}))

	done := make(chan struct{})
	go func() {
		p.Error(ctx, "api", "first failure", nil)
		close(done)
	}()
	<-incidents.entered

	// The dispatcher is stalled inside the incident creator; a matching entry
	// from another goroutine must still fire the rule once it drains.
	p.Error(ctx, "worker", "second failure", nil)
	assert.Equal(t, 0, incidents.count())

	close(incidents.release)
	<-done

	assert.Equal(t, 2, incidents.count())
}

func TestFlushIsolatesProviderFailures(t *testing.T) {
	var goodHits, badHits atomic.Int32
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		goodHits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		badHits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()

	mem := store.NewMemoryStore()
	clock := sched.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	m := metrics.New(prometheus.NewRegistry())
	p := New(Options{
		Store:     mem,
		Clock:     clock,
		Metrics:   m,
		Logger:    zap.NewNop(),
		Providers: provider.Deps{Logger: zap.NewNop()},
	})
	ctx := context.Background()

	cfg := p.Configuration()
	cfg.Providers = []model.LogProvider{
		{Name: "edge-webhook", Type: model.ProviderDatadog, Enabled: true, Endpoint: good.URL},
		{Name: "siem-webhook", Type: model.ProviderDatadog, Enabled: true, Endpoint: bad.URL, RetryAttempts: 1},
	}
	p.UpdateConfiguration(ctx, cfg)

	p.Info(ctx, "api", "event one", nil)
	p.Info(ctx, "api", "event two", nil)
	p.Flush(ctx)

	// One POST to the healthy endpoint; the failing one is retried once more
	// and never holds up its sibling or the queue.
	assert.Equal(t, int32(1), goodHits.Load())
	assert.Equal(t, int32(2), badHits.Load())
	assert.Equal(t, 0, p.QueueDepth())

	stats := p.Stats()
	assert.Equal(t, int64(1), stats.SuccessfulDeliveries)
	assert.Equal(t, int64(1), stats.FailedDeliveries)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SuccessfulDeliveries.WithLabelValues("edge-webhook")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FailedDeliveries.WithLabelValues("siem-webhook")))
}

func TestEnrichmentAttachesUserContext(t *testing.T) {
	p, _, _ := newTestPipeline(t, nil)
	ctx := context.Background()

	cfg := p.Configuration()
	cfg.Privacy.HashUserIDs = false
	p.UpdateConfiguration(ctx, cfg)

	entry, err := p.Log(ctx, model.LevelInfo, "api", "request", map[string]interface{}{
		"user_id":    "alice",
		"session_id": "sess-1",
	}, model.CategorySystem)
	require.NoError(t, err)
	require.NotNil(t, entry.User)
	assert.Equal(t, "alice", entry.User.UserID)
	assert.Equal(t, "sess-1", entry.User.SessionID)
}

func TestShutdownDrainsQueue(t *testing.T) {
	p, mem, _ := newTestPipeline(t, nil)
	ctx := context.Background()

	cfg := p.Configuration()
	cfg.Performance.MaxBatchSize = 2
	p.UpdateConfiguration(ctx, cfg)

	for i := 0; i < 7; i++ {
		p.Info(ctx, "api", "event", nil)
	}
	p.Shutdown(ctx)

	assert.Equal(t, 0, p.QueueDepth())

	var persisted model.LoggingConfiguration
	require.NoError(t, mem.Load(ctx, store.KeyLoggingConfig, &persisted))
	assert.Equal(t, 2, persisted.Performance.MaxBatchSize)
}

func TestRestoreAppliesPersistedConfiguration(t *testing.T) {
	p, mem, _ := newTestPipeline(t, nil)
	ctx := context.Background()

	saved := model.DefaultLoggingConfiguration()
	saved.GlobalTags = []string{"env:test"}
	require.NoError(t, mem.Save(ctx, store.KeyLoggingConfig, saved))

	p.Restore(ctx)
	assert.Equal(t, []string{"env:test"}, p.Configuration().GlobalTags)

	entry, err := p.Log(ctx, model.LevelInfo, "api", "tagged", nil, model.CategorySystem)
	require.NoError(t, err)
	assert.Equal(t, []string{"env:test"}, entry.Tags)
}
