package hunt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"secops-service/internal/metrics"
	"secops-service/internal/model"
	"secops-service/internal/sched"
	"secops-service/internal/store"
)

var (
	ErrNotFound     = errors.New("hunt: not found")
	ErrInvalidState = errors.New("hunt: invalid state for operation")
)

// AlertCreator lets high and critical findings surface as SOC alerts.
type AlertCreator interface {
	CreateAlert(ctx context.Context, title, description string, severity model.Severity,
		category model.AlertCategory, indicators []model.ThreatIndicator, affectedAssets []string) (*model.SOCAlert, error)
}

// DataSource executes hunt queries; the workflow only records outcomes.
type DataSource interface {
	Execute(ctx context.Context, dataSource, query string) (resultCount int, findings []string, err error)
}

// Workflow manages hypothesis-driven investigations.
type Workflow struct {
	logger  *zap.Logger
	clock   sched.Clock
	store   store.Store
	metrics *metrics.Metrics
	alerts  AlertCreator
	source  DataSource

	mu    sync.Mutex
	hunts map[string]*model.ThreatHunt
}

type Options struct {
	Logger  *zap.Logger
	Clock   sched.Clock
	Store   store.Store
	Metrics *metrics.Metrics
	Alerts  AlertCreator
	Source  DataSource
}

func NewWorkflow(opts Options) *Workflow {
	return &Workflow{
		logger:  opts.Logger,
		clock:   opts.Clock,
		store:   opts.Store,
		metrics: opts.Metrics,
		alerts:  opts.Alerts,
		source:  opts.Source,
		hunts:   make(map[string]*model.ThreatHunt),
	}
}

// Restore loads persisted hunts, if any.
func (w *Workflow) Restore(ctx context.Context) {
	var hunts map[string]*model.ThreatHunt
	if err := w.store.Load(ctx, store.KeyThreatHunts, &hunts); err == nil {
		w.mu.Lock()
		w.hunts = hunts
		w.mu.Unlock()
		w.logger.Info("Restored threat hunts", zap.Int("count", len(hunts)))
	} else if !errors.Is(err, store.ErrNotFound) {
		w.logger.Warn("Failed to restore threat hunts", zap.Error(err))
	}
}

// -------------------- LIFECYCLE --------------------

func (w *Workflow) CreateHunt(ctx context.Context, name, hypothesis, hunter string, timeBox time.Duration) (*model.ThreatHunt, error) {
	if hypothesis == "" {
		return nil, fmt.Errorf("hunt requires a hypothesis")
	}
	hunt := &model.ThreatHunt{
		ID:         uuid.NewString(),
		Name:       name,
		Hypothesis: hypothesis,
		Hunter:     hunter,
		Status:     model.HuntPlanning,
		TimeBox:    timeBox,
		CreatedAt:  w.clock.Now(),
	}

	w.mu.Lock()
	w.hunts[hunt.ID] = hunt
	snapshot := *hunt
	w.mu.Unlock()

	w.logger.Info("Threat hunt created",
		zap.String("hunt_id", hunt.ID),
		zap.String("hunter", hunter))
	w.persist(ctx)
	return &snapshot, nil
}

// Activate moves a hunt from planning to active.
func (w *Workflow) Activate(ctx context.Context, id string) (*model.ThreatHunt, error) {
	return w.transition(ctx, id, model.HuntPlanning, model.HuntActive)
}

// Complete finishes an active hunt.
func (w *Workflow) Complete(ctx context.Context, id string) (*model.ThreatHunt, error) {
	return w.transition(ctx, id, model.HuntActive, model.HuntCompleted)
}

// Cancel abandons a hunt from planning or active.
func (w *Workflow) Cancel(ctx context.Context, id string) (*model.ThreatHunt, error) {
	w.mu.Lock()
	hunt, ok := w.hunts[id]
	if !ok {
		w.mu.Unlock()
		return nil, ErrNotFound
	}
	if hunt.Status != model.HuntPlanning && hunt.Status != model.HuntActive {
		w.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrInvalidState, hunt.Status)
	}
	now := w.clock.Now()
	hunt.Status = model.HuntCancelled
	hunt.CompletedAt = &now
	snapshot := *hunt
	w.mu.Unlock()

	w.persist(ctx)
	return &snapshot, nil
}

func (w *Workflow) transition(ctx context.Context, id string, from, to model.HuntStatus) (*model.ThreatHunt, error) {
	w.mu.Lock()
	hunt, ok := w.hunts[id]
	if !ok {
		w.mu.Unlock()
		return nil, ErrNotFound
	}
	if hunt.Status != from {
		w.mu.Unlock()
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidState, hunt.Status, to)
	}
	now := w.clock.Now()
	hunt.Status = to
	switch to {
	case model.HuntActive:
		hunt.StartedAt = &now
	case model.HuntCompleted:
		hunt.CompletedAt = &now
	}
	snapshot := *hunt
	w.mu.Unlock()

	w.logger.Info("Hunt transitioned",
		zap.String("hunt_id", id),
		zap.String("status", string(to)))
	w.persist(ctx)
	return &snapshot, nil
}

// -------------------- QUERIES --------------------

func (w *Workflow) AddQuery(ctx context.Context, id, name, query, dataSource string) (*model.HuntQuery, error) {
	w.mu.Lock()
	hunt, ok := w.hunts[id]
	if !ok {
		w.mu.Unlock()
		return nil, ErrNotFound
	}
	if hunt.Status == model.HuntCompleted || hunt.Status == model.HuntCancelled {
		w.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrInvalidState, hunt.Status)
	}
	q := model.HuntQuery{
		ID:         uuid.NewString(),
		Name:       name,
		Query:      query,
		DataSource: dataSource,
	}
	hunt.Queries = append(hunt.Queries, q)
	w.mu.Unlock()

	w.persist(ctx)
	return &q, nil
}

// ExecuteQuery delegates to the data-source collaborator and records only the
// execution metadata on the query.
func (w *Workflow) ExecuteQuery(ctx context.Context, id, queryID string) (*model.HuntQuery, error) {
	w.mu.Lock()
	hunt, ok := w.hunts[id]
	if !ok {
		w.mu.Unlock()
		return nil, ErrNotFound
	}
	if hunt.Status != model.HuntActive {
		w.mu.Unlock()
		return nil, fmt.Errorf("%w: hunt must be active", ErrInvalidState)
	}
	q := findQueryLocked(hunt, queryID)
	if q == nil {
		w.mu.Unlock()
		return nil, fmt.Errorf("%w: query %s", ErrNotFound, queryID)
	}
	dataSource, queryText := q.DataSource, q.Query
	w.mu.Unlock()

	count, _, err := w.source.Execute(ctx, dataSource, queryText)
	now := w.clock.Now()

	// AddQuery may have reallocated hunt.Queries while the lock was released,
	// so the query is looked up again before recording the outcome.
	w.mu.Lock()
	q = findQueryLocked(hunt, queryID)
	if q == nil {
		w.mu.Unlock()
		return nil, fmt.Errorf("%w: query %s", ErrNotFound, queryID)
	}
	q.ExecutedAt = &now
	if err == nil {
		q.ResultCount = count
	}
	snapshot := *q
	w.mu.Unlock()

	w.persist(ctx)
	if err != nil {
		w.logger.Error("Hunt query execution failed",
			zap.String("hunt_id", id),
			zap.String("query_id", queryID),
			zap.Error(err))
		return &snapshot, fmt.Errorf("query execution failed: %w", err)
	}
	return &snapshot, nil
}

func findQueryLocked(hunt *model.ThreatHunt, queryID string) *model.HuntQuery {
	for i := range hunt.Queries {
		if hunt.Queries[i].ID == queryID {
			return &hunt.Queries[i]
		}
	}
	return nil
}

// -------------------- FINDINGS --------------------

// AddFinding records a finding, derives its recommended actions and, for high
// and critical severities, spawns a SOC alert whose id is written back.
func (w *Workflow) AddFinding(ctx context.Context, id string, finding model.HuntFinding) (*model.HuntFinding, error) {
	w.mu.Lock()
	hunt, ok := w.hunts[id]
	if !ok {
		w.mu.Unlock()
		return nil, ErrNotFound
	}
	if hunt.Status != model.HuntActive {
		w.mu.Unlock()
		return nil, fmt.Errorf("%w: hunt must be active", ErrInvalidState)
	}

	now := w.clock.Now()
	finding.ID = uuid.NewString()
	finding.RecordedAt = now
	for i := range finding.Indicators {
		finding.Indicators[i].Type = model.NormalizeIndicatorType(string(finding.Indicators[i].Type))
	}
	finding.RecommendedActions = RecommendActions(finding)
	huntName := hunt.Name
	w.mu.Unlock()

	w.metrics.HuntFindings.Inc()

	if finding.Severity == model.SeverityHigh || finding.Severity == model.SeverityCritical {
		alert, err := w.alerts.CreateAlert(ctx,
			fmt.Sprintf("Hunt finding: %s", finding.Title),
			fmt.Sprintf("Finding from hunt %q: %s", huntName, finding.Description),
			finding.Severity, model.AlertCatThreatHunting, finding.Indicators, nil)
		if err != nil {
			w.logger.Error("Failed to create alert from finding",
				zap.String("hunt_id", id), zap.Error(err))
		} else {
			finding.AlertID = alert.ID
		}
	}

	w.mu.Lock()
	hunt.Findings = append(hunt.Findings, finding)
	w.mu.Unlock()

	w.logger.Info("Hunt finding recorded",
		zap.String("hunt_id", id),
		zap.String("severity", string(finding.Severity)),
		zap.String("alert_id", finding.AlertID))
	w.persist(ctx)
	return &finding, nil
}

// -------------------- DURATION CHECK --------------------

// DurationScan flags active hunts that have exceeded their time box.
func (w *Workflow) DurationScan(ctx context.Context) {
	now := w.clock.Now()
	changed := false

	w.mu.Lock()
	for _, hunt := range w.hunts {
		if hunt.Status != model.HuntActive || hunt.TimeBox <= 0 || hunt.Overdue {
			continue
		}
		started := hunt.CreatedAt
		if hunt.StartedAt != nil {
			started = *hunt.StartedAt
		}
		if now.Sub(started) > hunt.TimeBox {
			hunt.Overdue = true
			changed = true
			w.logger.Warn("Hunt exceeded its time box",
				zap.String("hunt_id", hunt.ID),
				zap.Duration("time_box", hunt.TimeBox))
		}
	}
	w.mu.Unlock()

	if changed {
		w.persist(ctx)
	}
}

// Start registers the periodic duration check.
func (w *Workflow) Start(s *sched.Scheduler, interval time.Duration) {
	s.Every("hunt_duration_check", interval, func() {
		w.DurationScan(context.Background())
	})
}

// -------------------- QUERY --------------------

func (w *Workflow) Hunt(id string) (*model.ThreatHunt, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	hunt, ok := w.hunts[id]
	if !ok {
		return nil, ErrNotFound
	}
	snapshot := *hunt
	return &snapshot, nil
}

func (w *Workflow) Hunts() []model.ThreatHunt {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]model.ThreatHunt, 0, len(w.hunts))
	for _, hunt := range w.hunts {
		out = append(out, *hunt)
	}
	return out
}

func (w *Workflow) persist(ctx context.Context) {
	w.mu.Lock()
	hunts := make(map[string]*model.ThreatHunt, len(w.hunts))
	for id, hunt := range w.hunts {
		cp := *hunt
		hunts[id] = &cp
	}
	w.mu.Unlock()

	if err := w.store.Save(ctx, store.KeyThreatHunts, hunts); err != nil {
		w.logger.Warn("Failed to persist threat hunts", zap.Error(err))
	}
}
