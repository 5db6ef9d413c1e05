package incident

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
	ErrNotFound          = errors.New("incident: not found")
	ErrInvalidTransition = errors.New("incident: invalid status transition")
	ErrClosed            = errors.New("incident: already closed")
)

// Manager owns the incident lifecycle: creation, phased response, escalation,
// SLA tracking and aggregate metrics.
type Manager struct {
	logger  *zap.Logger
	clock   sched.Clock
	store   store.Store
	metrics *metrics.Metrics

	plans []model.IncidentResponsePlan

	mu          sync.Mutex
	incidents   map[string]*model.SecurityIncident
	slaReported map[string]model.PhaseName // incident id -> last phase already reported
}

type Options struct {
	Logger  *zap.Logger
	Clock   sched.Clock
	Store   store.Store
	Metrics *metrics.Metrics
	Plans   []model.IncidentResponsePlan // defaults to DefaultPlans
}

func NewManager(opts Options) *Manager {
	plans := opts.Plans
	if len(plans) == 0 {
		plans = DefaultPlans()
	}
	return &Manager{
		logger:      opts.Logger,
		clock:       opts.Clock,
		store:       opts.Store,
		metrics:     opts.Metrics,
		plans:       plans,
		incidents:   make(map[string]*model.SecurityIncident),
		slaReported: make(map[string]model.PhaseName),
	}
}

// Restore loads persisted incidents, if any.
func (m *Manager) Restore(ctx context.Context) {
	var incidents map[string]*model.SecurityIncident
	if err := m.store.Load(ctx, store.KeyIncidents, &incidents); err == nil {
		m.mu.Lock()
		m.incidents = incidents
		m.mu.Unlock()
		m.logger.Info("Restored incidents", zap.Int("count", len(incidents)))
	} else if !errors.Is(err, store.ErrNotFound) {
		m.logger.Warn("Failed to restore incidents", zap.Error(err))
	}
}

// -------------------- CREATE --------------------

// CreateIncident builds a fully assessed incident in the detected state,
// selects its response plan and executes the automatic detection-stage work.
func (m *Manager) CreateIncident(ctx context.Context, title, description string,
	severity model.Severity, category model.IncidentCategory,
	indicators []model.ThreatIndicator, affectedUsers, affectedSystems []string) (*model.SecurityIncident, error) {

	if !severity.Valid() {
		return nil, fmt.Errorf("invalid severity %q", severity)
	}

	now := m.clock.Now()
	for i := range indicators {
		indicators[i].Type = model.NormalizeIndicatorType(string(indicators[i].Type))
	}

	inc := &model.SecurityIncident{
		ID:              uuid.NewString(),
		Title:           title,
		Description:     description,
		Severity:        severity,
		Category:        category,
		Status:          model.StatusDetected,
		Priority:        model.PriorityFor(severity, category),
		EscalationLevel: 1,
		AssignedTeam:    assignTeam(severity, category),
		Indicators:      indicators,
		AffectedUsers:   affectedUsers,
		AffectedSystems: affectedSystems,
		DetectedAt:      now,
	}

	users, systems := len(affectedUsers), len(affectedSystems)
	inc.BusinessImpact = businessImpact(severity, users, systems)
	inc.DataImpact = dataImpact(severity, category)
	inc.ReputationalImpact = reputationalImpact(severity, category)
	inc.RegulatoryNotificationRequired = regulatoryNotification(severity, category, inc.DataImpact)
	inc.CustomerNotificationRequired = customerNotification(category, users, inc.BusinessImpact)
	inc.ExecutiveNotificationRequired = executiveNotification(severity, inc.Priority, inc.BusinessImpact)

	if plan := selectPlan(m.plans, inc); plan != nil {
		inc.PlanID = plan.ID
	}

	// Initial evidence capture is automatic for every incident.
	inc.Evidence = append(inc.Evidence, model.Evidence{
		ID:          uuid.NewString(),
		Type:        "log",
		Description: "Detection-time log snapshot",
		CollectedBy: "system",
		CollectedAt: now,
		ChainOfCustody: []model.CustodyEntry{
			{Actor: "system", Action: "collected", Reason: "incident detection", Timestamp: now},
		},
	})

	m.mu.Lock()
	m.incidents[inc.ID] = inc
	snapshot := *inc
	m.mu.Unlock()

	m.metrics.IncidentsCreated.WithLabelValues(string(severity)).Inc()
	m.logger.Warn("Security incident created",
		zap.String("incident_id", inc.ID),
		zap.String("severity", string(severity)),
		zap.String("category", string(category)),
		zap.Int("priority", inc.Priority),
		zap.String("team", string(inc.AssignedTeam)),
		zap.String("plan", inc.PlanID))

	m.persist(ctx)
	return &snapshot, nil
}

// CreateIncidentFromRule is the coupling contract used by alert-rule actions
// and the SOC engine's auto-incident path.
func (m *Manager) CreateIncidentFromRule(title, description string, severity model.Severity,
	category model.IncidentCategory, indicators []model.ThreatIndicator) (*model.SecurityIncident, error) {
	return m.CreateIncident(context.Background(), title, description, severity, category, indicators, nil, nil)
}

// -------------------- LIFECYCLE --------------------

// ProgressToNextPhase advances the incident exactly one state forward,
// stamping the phase timestamp once and generating the new phase's response
// actions. The recovered -> closed step goes through CloseIncident only.
func (m *Manager) ProgressToNextPhase(ctx context.Context, id string) (*model.SecurityIncident, error) {
	m.mu.Lock()
	inc, ok := m.incidents[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	if inc.Status == model.StatusClosed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if inc.Status == model.StatusRecovered {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: recovered incidents are closed via CloseIncident", ErrInvalidTransition)
	}

	next := model.IncidentStatusOrder[model.StatusRank(inc.Status)+1]
	now := m.clock.Now()
	m.enterStatusLocked(inc, next, now)
	snapshot := *inc
	m.mu.Unlock()

	m.logger.Info("Incident advanced",
		zap.String("incident_id", id),
		zap.String("status", string(next)))
	m.persist(ctx)
	return &snapshot, nil
}

// UpdateStatus moves an incident to any strictly later state short of closed.
// Backward and repeated transitions are rejected, keeping observed statuses a
// strict forward subsequence of the canonical order. Closing always goes
// through CloseIncident so root cause and lessons learned are captured.
func (m *Manager) UpdateStatus(ctx context.Context, id string, status model.IncidentStatus) (*model.SecurityIncident, error) {
	target := model.StatusRank(status)
	if target < 0 {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
	}
	if status == model.StatusClosed {
		return nil, fmt.Errorf("%w: incidents are closed via CloseIncident", ErrInvalidTransition)
	}

	m.mu.Lock()
	inc, ok := m.incidents[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	if target <= model.StatusRank(inc.Status) {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, inc.Status, status)
	}

	now := m.clock.Now()
	m.enterStatusLocked(inc, status, now)
	snapshot := *inc
	m.mu.Unlock()

	m.logger.Info("Incident status updated",
		zap.String("incident_id", id),
		zap.String("status", string(status)))
	m.persist(ctx)
	return &snapshot, nil
}

// enterStatusLocked stamps the status timestamp exactly once and stages the
// phase's response actions.
func (m *Manager) enterStatusLocked(inc *model.SecurityIncident, status model.IncidentStatus, now time.Time) {
	inc.Status = status
	switch status {
	case model.StatusTriaged:
		if inc.TriagedAt == nil {
			inc.TriagedAt = &now
		}
		m.stageActionsLocked(inc, model.PhaseContainment, now)
	case model.StatusContained:
		if inc.ContainedAt == nil {
			inc.ContainedAt = &now
		}
		m.stageActionsLocked(inc, model.PhaseEradication, now)
	case model.StatusEradicated:
		if inc.EradicatedAt == nil {
			inc.EradicatedAt = &now
		}
		m.stageActionsLocked(inc, model.PhaseRecovery, now)
	case model.StatusRecovered:
		if inc.RecoveredAt == nil {
			inc.RecoveredAt = &now
		}
	case model.StatusClosed:
		if inc.ClosedAt == nil {
			inc.ClosedAt = &now
		}
	}
}

// stageActionsLocked instantiates the plan's action templates for a phase.
// Auto-executable actions run immediately; the rest stay pending for an
// operator.
func (m *Manager) stageActionsLocked(inc *model.SecurityIncident, phase model.PhaseName, now time.Time) {
	plan := m.planFor(inc)
	if plan == nil {
		return
	}
	ph, ok := plan.Phase(phase)
	if !ok {
		return
	}

	var target *[]model.ResponseAction
	switch phase {
	case model.PhaseContainment:
		target = &inc.ContainmentActions
	case model.PhaseEradication:
		target = &inc.EradicationActions
	case model.PhaseRecovery:
		target = &inc.RecoveryActions
	default:
		return
	}

	for _, tmpl := range ph.Actions {
		action := model.ResponseAction{
			ID:        uuid.NewString(),
			Phase:     phase,
			Type:      tmpl.Type,
			Summary:   tmpl.Summary,
			Automatic: tmpl.Automatic && autoExecutable[tmpl.Type],
			Status:    model.ActionPending,
		}
		if action.Automatic {
			action.Status = model.ActionExecuted
			action.ExecutedAt = &now
			action.ExecutedBy = "system"
			action.Result = "executed automatically"
			m.logger.Info("Response action auto-executed",
				zap.String("incident_id", inc.ID),
				zap.String("action", tmpl.Type))
		}
		*target = append(*target, action)
	}
}

func (m *Manager) planFor(inc *model.SecurityIncident) *model.IncidentResponsePlan {
	for i := range m.plans {
		if m.plans[i].ID == inc.PlanID {
			return &m.plans[i]
		}
	}
	return nil
}

// CloseIncident is terminal: it stamps ClosedAt, records root cause and
// lessons learned, and removes the incident from escalation monitoring.
func (m *Manager) CloseIncident(ctx context.Context, id, rootCause, lessonsLearned string) (*model.SecurityIncident, error) {
	m.mu.Lock()
	inc, ok := m.incidents[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	if inc.Status == model.StatusClosed {
		m.mu.Unlock()
		return nil, ErrClosed
	}

	now := m.clock.Now()
	m.enterStatusLocked(inc, model.StatusClosed, now)
	inc.RootCause = rootCause
	inc.LessonsLearned = lessonsLearned
	delete(m.slaReported, id)
	snapshot := *inc
	m.mu.Unlock()

	m.logger.Info("Incident closed",
		zap.String("incident_id", id),
		zap.String("root_cause", rootCause))
	m.persist(ctx)
	return &snapshot, nil
}

// AddEvidence appends evidence with an opening chain-of-custody entry.
func (m *Manager) AddEvidence(ctx context.Context, id string, ev model.Evidence) (*model.SecurityIncident, error) {
	m.mu.Lock()
	inc, ok := m.incidents[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	now := m.clock.Now()
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CollectedAt.IsZero() {
		ev.CollectedAt = now
	}
	ev.ChainOfCustody = append(ev.ChainOfCustody, model.CustodyEntry{
		Actor:     ev.CollectedBy,
		Action:    "collected",
		Timestamp: now,
	})
	inc.Evidence = append(inc.Evidence, ev)
	snapshot := *inc
	m.mu.Unlock()

	m.persist(ctx)
	return &snapshot, nil
}

// ExecuteAction marks a pending response action as executed by an operator.
func (m *Manager) ExecuteAction(ctx context.Context, id, actionID, operator, result string) (*model.SecurityIncident, error) {
	m.mu.Lock()
	inc, ok := m.incidents[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	now := m.clock.Now()
	found := false
	for _, list := range []*[]model.ResponseAction{&inc.ContainmentActions, &inc.EradicationActions, &inc.RecoveryActions} {
		for i := range *list {
			action := &(*list)[i]
			if action.ID == actionID && action.Status == model.ActionPending {
				action.Status = model.ActionExecuted
				action.ExecutedAt = &now
				action.ExecutedBy = operator
				action.Result = result
				found = true
			}
		}
	}
	if !found {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: action %s", ErrNotFound, actionID)
	}
	snapshot := *inc
	m.mu.Unlock()

	m.persist(ctx)
	return &snapshot, nil
}

// -------------------- PERIODIC SCANS --------------------

// EscalationScan applies each open incident's escalation matrix against
// elapsed time since detection. Automatic rules escalate immediately;
// manual rules only flag that escalation is required.
func (m *Manager) EscalationScan(ctx context.Context) {
	now := m.clock.Now()
	changed := false

	m.mu.Lock()
	for _, inc := range m.incidents {
		if inc.Status == model.StatusClosed {
			continue
		}
		plan := m.planFor(inc)
		if plan == nil {
			continue
		}
		elapsed := now.Sub(inc.DetectedAt)
		for _, rule := range plan.EscalationMatrix {
			if inc.EscalationLevel != rule.FromLevel || elapsed < rule.TimeThreshold {
				continue
			}
			if rule.Automatic {
				inc.EscalationLevel = rule.ToLevel
				changed = true
				m.metrics.IncidentsEscalated.Inc()
				m.logger.Warn("Incident auto-escalated",
					zap.String("incident_id", inc.ID),
					zap.Int("level", inc.EscalationLevel),
					zap.Strings("notified", rule.Targets))
			} else if !inc.ManualEscalationRequired {
				inc.ManualEscalationRequired = true
				changed = true
				m.logger.Warn("Incident requires manual escalation",
					zap.String("incident_id", inc.ID),
					zap.Int("from_level", rule.FromLevel),
					zap.Int("to_level", rule.ToLevel))
			}
		}
	}
	m.mu.Unlock()

	if changed {
		m.persist(ctx)
	}
}

// SLAScan compares elapsed time in the current phase with the plan's target
// for the incident's severity. Breaches are logged and counted, never
// auto-remediated. Each phase is reported once per incident.
func (m *Manager) SLAScan(_ context.Context) {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, inc := range m.incidents {
		if inc.Status == model.StatusClosed {
			continue
		}
		plan := m.planFor(inc)
		if plan == nil {
			continue
		}
		phase := model.PhaseForStatus(inc.Status)
		target, ok := plan.SLAFor(inc.Severity, phase)
		if !ok {
			continue
		}
		elapsed := now.Sub(phaseEnteredAt(inc))
		if elapsed <= target {
			continue
		}
		if m.slaReported[id] == phase {
			continue
		}
		m.slaReported[id] = phase
		m.metrics.SLABreaches.Inc()
		m.logger.Warn("Incident phase SLA breached",
			zap.String("incident_id", id),
			zap.String("phase", string(phase)),
			zap.Duration("elapsed", elapsed),
			zap.Duration("target", target))
	}
}

// phaseEnteredAt is the timestamp of the incident's latest stamped state.
func phaseEnteredAt(inc *model.SecurityIncident) time.Time {
	switch inc.Status {
	case model.StatusTriaged:
		return deref(inc.TriagedAt, inc.DetectedAt)
	case model.StatusContained:
		return deref(inc.ContainedAt, inc.DetectedAt)
	case model.StatusEradicated:
		return deref(inc.EradicatedAt, inc.DetectedAt)
	case model.StatusRecovered:
		return deref(inc.RecoveredAt, inc.DetectedAt)
	default:
		return inc.DetectedAt
	}
}

func deref(t *time.Time, fallback time.Time) time.Time {
	if t != nil {
		return *t
	}
	return fallback
}

// Start registers the escalation and SLA scans.
func (m *Manager) Start(s *sched.Scheduler, escalationInterval, slaInterval time.Duration) {
	s.Every("incident_escalation_scan", escalationInterval, func() {
		m.EscalationScan(context.Background())
	})
	s.Every("incident_sla_scan", slaInterval, func() {
		m.SLAScan(context.Background())
	})
}

// -------------------- QUERY / METRICS --------------------

func (m *Manager) Incident(id string) (*model.SecurityIncident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc, ok := m.incidents[id]
	if !ok {
		return nil, ErrNotFound
	}
	snapshot := *inc
	return &snapshot, nil
}

func (m *Manager) Incidents() []model.SecurityIncident {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.SecurityIncident, 0, len(m.incidents))
	for _, inc := range m.incidents {
		out = append(out, *inc)
	}
	return out
}

// LifecycleMetrics aggregates over closed incidents only.
type LifecycleMetrics struct {
	TotalIncidents     int           `json:"total_incidents"`
	OpenIncidents      int           `json:"open_incidents"`
	ClosedIncidents    int           `json:"closed_incidents"`
	MTTD               time.Duration `json:"mttd"` // detection to triage
	MTTR               time.Duration `json:"mttr"` // detection to recovery
	AvgTriageTime      time.Duration `json:"avg_triage_time"`
	AvgContainmentTime time.Duration `json:"avg_containment_time"`
}

func (m *Manager) Metrics() LifecycleMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := LifecycleMetrics{TotalIncidents: len(m.incidents)}
	var mttd, mttr, triage, contain time.Duration
	var nDetect, nRecover, nTriage, nContain int

	for _, inc := range m.incidents {
		if inc.Status != model.StatusClosed {
			out.OpenIncidents++
			continue
		}
		out.ClosedIncidents++
		if inc.TriagedAt != nil {
			mttd += inc.TriagedAt.Sub(inc.DetectedAt)
			triage += inc.TriagedAt.Sub(inc.DetectedAt)
			nDetect++
			nTriage++
			if inc.ContainedAt != nil {
				contain += inc.ContainedAt.Sub(*inc.TriagedAt)
				nContain++
			}
		}
		recoveredAt := inc.RecoveredAt
		if recoveredAt == nil {
			recoveredAt = inc.ClosedAt
		}
		if recoveredAt != nil {
			mttr += recoveredAt.Sub(inc.DetectedAt)
			nRecover++
		}
	}

	if nDetect > 0 {
		out.MTTD = mttd / time.Duration(nDetect)
	}
	if nRecover > 0 {
		out.MTTR = mttr / time.Duration(nRecover)
	}
	if nTriage > 0 {
		out.AvgTriageTime = triage / time.Duration(nTriage)
	}
	if nContain > 0 {
		out.AvgContainmentTime = contain / time.Duration(nContain)
	}
	return out
}

func (m *Manager) persist(ctx context.Context) {
	m.mu.Lock()
	incidents := make(map[string]*model.SecurityIncident, len(m.incidents))
	for id, inc := range m.incidents {
		cp := *inc
		incidents[id] = &cp
	}
	m.mu.Unlock()

	if err := m.store.Save(ctx, store.KeyIncidents, incidents); err != nil {
		m.logger.Warn("Failed to persist incidents", zap.Error(err))
	}
}
