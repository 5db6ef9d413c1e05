package soc

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
	ErrNotFound          = errors.New("soc: alert not found")
	ErrInvalidTransition = errors.New("soc: invalid status transition")
)

// IncidentCreator is the coupling contract toward the incident side; alerts
// that cross the auto-incident threshold call it.
type IncidentCreator interface {
	CreateIncidentFromRule(title, description string, severity model.Severity,
		category model.IncidentCategory, indicators []model.ThreatIndicator) (*model.SecurityIncident, error)
}

// Per-severity SLA before an unresolved alert auto-escalates.
var escalationSLA = map[model.Severity]time.Duration{
	model.SeverityCritical: 30 * time.Minute,
	model.SeverityHigh:     2 * time.Hour,
}

// Per-severity first-response targets for SLA compliance.
var firstResponseTarget = map[model.Severity]time.Duration{
	model.SeverityCritical: 15 * time.Minute,
	model.SeverityHigh:     30 * time.Minute,
	model.SeverityMedium:   2 * time.Hour,
	model.SeverityLow:      8 * time.Hour,
}

const (
	maxEscalationLevel = 3
	analystWorkloadCap = 10
	autoIncidentRisk   = 80
)

type analyst struct {
	name     string
	workload int
}

// Engine creates, scores, assigns, correlates and escalates SOC alerts.
type Engine struct {
	logger    *zap.Logger
	clock     sched.Clock
	store     store.Store
	metrics   *metrics.Metrics
	incidents IncidentCreator

	window time.Duration

	mu         sync.Mutex
	alerts     map[string]*model.SOCAlert
	analysts   []*analyst
	indicators map[string]model.ThreatIndicator // threat intel registry, keyed type|value
}

type Options struct {
	Logger    *zap.Logger
	Clock     sched.Clock
	Store     store.Store
	Metrics   *metrics.Metrics
	Incidents IncidentCreator
	Analysts  []string
	Window    time.Duration // correlation window, default 1h
}

func NewEngine(opts Options) *Engine {
	window := opts.Window
	if window <= 0 {
		window = time.Hour
	}
	e := &Engine{
		logger:     opts.Logger,
		clock:      opts.Clock,
		store:      opts.Store,
		metrics:    opts.Metrics,
		incidents:  opts.Incidents,
		window:     window,
		alerts:     make(map[string]*model.SOCAlert),
		indicators: make(map[string]model.ThreatIndicator),
	}
	for _, name := range opts.Analysts {
		e.analysts = append(e.analysts, &analyst{name: name})
	}
	return e
}

// Restore loads persisted alerts and threat intel, if any.
func (e *Engine) Restore(ctx context.Context) {
	var alerts map[string]*model.SOCAlert
	if err := e.store.Load(ctx, store.KeySOCAlerts, &alerts); err == nil {
		e.mu.Lock()
		e.alerts = alerts
		e.mu.Unlock()
		e.logger.Info("Restored SOC alerts", zap.Int("count", len(alerts)))
	} else if !errors.Is(err, store.ErrNotFound) {
		e.logger.Warn("Failed to restore SOC alerts", zap.Error(err))
	}

	var intel map[string]model.ThreatIndicator
	if err := e.store.Load(ctx, store.KeyThreatIntel, &intel); err == nil {
		e.mu.Lock()
		e.indicators = intel
		e.mu.Unlock()
	} else if !errors.Is(err, store.ErrNotFound) {
		e.logger.Warn("Failed to restore threat intel", zap.Error(err))
	}
}

// -------------------- CREATE --------------------

// CreateAlert scores, assigns and correlates a new alert, and may auto-create
// a security incident.
func (e *Engine) CreateAlert(ctx context.Context, title, description string, severity model.Severity,
	category model.AlertCategory, indicators []model.ThreatIndicator, affectedAssets []string) (*model.SOCAlert, error) {

	if !severity.Valid() {
		return nil, fmt.Errorf("invalid severity %q", severity)
	}

	now := e.clock.Now()
	for i := range indicators {
		indicators[i].Type = model.NormalizeIndicatorType(string(indicators[i].Type))
		if indicators[i].FirstSeen.IsZero() {
			indicators[i].FirstSeen = now
		}
		indicators[i].LastSeen = now
	}

	alert := &model.SOCAlert{
		ID:              uuid.NewString(),
		Title:           title,
		Description:     description,
		Severity:        severity,
		Category:        category,
		Status:          model.AlertOpen,
		EscalationLevel: 1,
		RiskScore:       riskScore(severity, indicators, affectedAssets),
		Confidence:      confidence(indicators),
		Indicators:      indicators,
		AffectedAssets:  affectedAssets,
		CreatedAt:       now,
	}

	e.mu.Lock()
	alert.AssignedAnalyst = e.assignLocked()
	e.correlateLocked(alert, now)
	e.alerts[alert.ID] = alert
	for _, ind := range indicators {
		e.indicators[indicatorKey(ind)] = ind
	}
	e.mu.Unlock()

	e.metrics.AlertsCreated.WithLabelValues(string(severity)).Inc()
	e.logger.Info("SOC alert created",
		zap.String("alert_id", alert.ID),
		zap.String("severity", string(severity)),
		zap.Int("risk_score", alert.RiskScore),
		zap.Int("related", len(alert.RelatedAlerts)),
		zap.String("analyst", alert.AssignedAnalyst))

	e.persist(ctx)

	// Severe alerts become incidents without waiting for a human.
	if severity == model.SeverityCritical || alert.RiskScore > autoIncidentRisk {
		e.autoCreateIncident(alert)
	}

	return alert, nil
}

func riskScore(severity model.Severity, indicators []model.ThreatIndicator, assets []string) int {
	score := severity.RiskBase()
	for _, ind := range indicators {
		if ind.IsMalicious {
			score += 10
		}
	}
	assetScore := 5 * len(assets)
	if assetScore > 30 {
		assetScore = 30
	}
	score += assetScore
	if score > 100 {
		score = 100
	}
	return score
}

func confidence(indicators []model.ThreatIndicator) int {
	if len(indicators) == 0 {
		return 50
	}
	sum := 0
	for _, ind := range indicators {
		sum += ind.Confidence.Score()
	}
	return sum / len(indicators)
}

// assignLocked picks the analyst with the lowest open workload, capped.
func (e *Engine) assignLocked() string {
	var best *analyst
	for _, a := range e.analysts {
		if a.workload >= analystWorkloadCap {
			continue
		}
		if best == nil || a.workload < best.workload {
			best = a
		}
	}
	if best == nil {
		return ""
	}
	best.workload++
	return best.name
}

func (e *Engine) releaseAnalystLocked(name string) {
	for _, a := range e.analysts {
		if a.name == name && a.workload > 0 {
			a.workload--
			return
		}
	}
}

// correlateLocked links the new alert to existing alerts seen inside the
// window. Correlation is one-directional: computed once at creation time and
// never backfilled onto older alerts.
func (e *Engine) correlateLocked(alert *model.SOCAlert, now time.Time) {
	cutoff := now.Add(-e.window)
	score := 0
	for id, other := range e.alerts {
		if other.CreatedAt.Before(cutoff) {
			continue
		}
		shared := sharedIndicators(alert.Indicators, other.Indicators)
		assets := sharedAssets(alert.AffectedAssets, other.AffectedAssets)
		sameCat := alert.Category == other.Category

		if shared == 0 && assets == 0 && !sameCat {
			continue
		}
		alert.RelatedAlerts = append(alert.RelatedAlerts, id)
		score += 20*shared + 15*assets
		if sameCat {
			score += 10
		}
	}
	if score > 100 {
		score = 100
	}
	alert.CorrelationScore = score
}

func sharedIndicators(a, b []model.ThreatIndicator) int {
	seen := make(map[string]bool, len(a))
	for _, ind := range a {
		seen[indicatorKey(ind)] = true
	}
	n := 0
	for _, ind := range b {
		if seen[indicatorKey(ind)] {
			n++
		}
	}
	return n
}

func sharedAssets(a, b []string) int {
	seen := make(map[string]bool, len(a))
	for _, asset := range a {
		seen[asset] = true
	}
	n := 0
	for _, asset := range b {
		if seen[asset] {
			n++
		}
	}
	return n
}

func indicatorKey(ind model.ThreatIndicator) string {
	return string(ind.Type) + "|" + ind.Value
}

func (e *Engine) autoCreateIncident(alert *model.SOCAlert) {
	if e.incidents == nil {
		return
	}
	category, ok := model.AlertToIncidentCategory[alert.Category]
	if !ok {
		category = model.IncidentSystemCompromise
	}
	title := fmt.Sprintf("Incident from alert: %s", alert.Title)
	desc := fmt.Sprintf("Auto-created from SOC alert %s (risk %d): %s",
		alert.ID, alert.RiskScore, alert.Description)
	if _, err := e.incidents.CreateIncidentFromRule(title, desc, alert.Severity, category, alert.Indicators); err != nil {
		e.logger.Error("Failed to auto-create incident",
			zap.String("alert_id", alert.ID), zap.Error(err))
	}
}

// -------------------- MUTATION --------------------

// UpdateStatus advances an alert through open → investigating → resolved or
// false_positive. Entering investigating stamps the first response exactly
// once; resolution releases the analyst's workload slot.
func (e *Engine) UpdateStatus(ctx context.Context, id string, status model.AlertStatus) (*model.SOCAlert, error) {
	e.mu.Lock()
	alert, ok := e.alerts[id]
	if !ok {
		e.mu.Unlock()
		return nil, ErrNotFound
	}

	now := e.clock.Now()
	switch status {
	case model.AlertInvestigating:
		if alert.Status != model.AlertOpen {
			e.mu.Unlock()
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, alert.Status, status)
		}
		alert.Status = status
		if alert.FirstResponseAt == nil {
			alert.FirstResponseAt = &now
		}
	case model.AlertResolved, model.AlertFalsePositive:
		if alert.Status == model.AlertResolved || alert.Status == model.AlertFalsePositive {
			e.mu.Unlock()
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, alert.Status, status)
		}
		alert.Status = status
		alert.ResolvedAt = &now
		if alert.FirstResponseAt == nil {
			alert.FirstResponseAt = &now
		}
		e.releaseAnalystLocked(alert.AssignedAnalyst)
	default:
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, alert.Status, status)
	}
	snapshot := *alert
	e.mu.Unlock()

	e.logger.Info("Alert status updated",
		zap.String("alert_id", id),
		zap.String("status", string(status)))
	e.persist(ctx)
	e.updateSLAGauge()
	return &snapshot, nil
}

// Escalate raises an alert's escalation level. Levels never decrease.
func (e *Engine) Escalate(ctx context.Context, id string, reason string) (*model.SOCAlert, error) {
	e.mu.Lock()
	alert, ok := e.alerts[id]
	if !ok {
		e.mu.Unlock()
		return nil, ErrNotFound
	}
	if alert.EscalationLevel >= maxEscalationLevel {
		snapshot := *alert
		e.mu.Unlock()
		return &snapshot, nil
	}
	alert.EscalationLevel++
	alert.Notes = append(alert.Notes,
		fmt.Sprintf("escalated to level %d: %s", alert.EscalationLevel, reason))

	// Reassign at the new tier.
	e.releaseAnalystLocked(alert.AssignedAnalyst)
	alert.AssignedAnalyst = e.assignLocked()
	snapshot := *alert
	e.mu.Unlock()

	e.metrics.AlertsEscalated.Inc()
	e.logger.Warn("Alert escalated",
		zap.String("alert_id", id),
		zap.Int("level", snapshot.EscalationLevel),
		zap.String("reason", reason))
	e.persist(ctx)
	return &snapshot, nil
}

// EscalationScan auto-escalates unresolved alerts whose age exceeds the
// severity SLA. Wired to the scheduler as a periodic job.
func (e *Engine) EscalationScan(ctx context.Context) {
	now := e.clock.Now()

	e.mu.Lock()
	var due []string
	for id, alert := range e.alerts {
		if alert.Status != model.AlertOpen && alert.Status != model.AlertInvestigating {
			continue
		}
		if alert.EscalationLevel >= maxEscalationLevel {
			continue
		}
		sla, ok := escalationSLA[alert.Severity]
		if !ok {
			continue
		}
		if now.Sub(alert.CreatedAt) > sla {
			due = append(due, id)
		}
	}
	e.mu.Unlock()

	for _, id := range due {
		if _, err := e.Escalate(ctx, id, "response SLA exceeded"); err != nil {
			e.logger.Error("Escalation scan failed for alert",
				zap.String("alert_id", id), zap.Error(err))
		}
	}
}

// Start registers the periodic escalation scan.
func (e *Engine) Start(s *sched.Scheduler, interval time.Duration) {
	s.Every("alert_escalation_scan", interval, func() {
		e.EscalationScan(context.Background())
	})
}

// -------------------- QUERY / METRICS --------------------

func (e *Engine) Alert(id string) (*model.SOCAlert, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	alert, ok := e.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	snapshot := *alert
	return &snapshot, nil
}

func (e *Engine) Alerts() []model.SOCAlert {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.SOCAlert, 0, len(e.alerts))
	for _, alert := range e.alerts {
		out = append(out, *alert)
	}
	return out
}

// EngineMetrics is the SOC observability snapshot.
type EngineMetrics struct {
	TotalAlerts   int     `json:"total_alerts"`
	OpenAlerts    int     `json:"open_alerts"`
	Resolved      int     `json:"resolved"`
	FalsePositive int     `json:"false_positive"`
	SLACompliance float64 `json:"sla_compliance"`
}

// Metrics computes SLA compliance as the fraction of resolved alerts whose
// first response met the severity target.
func (e *Engine) Metrics() EngineMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metricsLocked()
}

func (e *Engine) metricsLocked() EngineMetrics {
	m := EngineMetrics{TotalAlerts: len(e.alerts), SLACompliance: 1.0}
	resolved, withinSLA := 0, 0
	for _, alert := range e.alerts {
		switch alert.Status {
		case model.AlertOpen, model.AlertInvestigating:
			m.OpenAlerts++
		case model.AlertResolved:
			m.Resolved++
		case model.AlertFalsePositive:
			m.FalsePositive++
		}
		if alert.Status != model.AlertResolved || alert.FirstResponseAt == nil {
			continue
		}
		resolved++
		target, ok := firstResponseTarget[alert.Severity]
		if ok && alert.FirstResponseAt.Sub(alert.CreatedAt) <= target {
			withinSLA++
		}
	}
	if resolved > 0 {
		m.SLACompliance = float64(withinSLA) / float64(resolved)
	}
	return m
}

func (e *Engine) updateSLAGauge() {
	e.mu.Lock()
	m := e.metricsLocked()
	e.mu.Unlock()
	e.metrics.AlertSLACompliance.Set(m.SLACompliance)
}

// Indicators returns the accumulated threat-intel registry.
func (e *Engine) Indicators() []model.ThreatIndicator {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.ThreatIndicator, 0, len(e.indicators))
	for _, ind := range e.indicators {
		out = append(out, ind)
	}
	return out
}

func (e *Engine) persist(ctx context.Context) {
	e.mu.Lock()
	alerts := make(map[string]*model.SOCAlert, len(e.alerts))
	for id, alert := range e.alerts {
		cp := *alert
		alerts[id] = &cp
	}
	intel := make(map[string]model.ThreatIndicator, len(e.indicators))
	for k, v := range e.indicators {
		intel[k] = v
	}
	e.mu.Unlock()

	if err := e.store.Save(ctx, store.KeySOCAlerts, alerts); err != nil {
		e.logger.Warn("Failed to persist SOC alerts", zap.Error(err))
	}
	if err := e.store.Save(ctx, store.KeyThreatIntel, intel); err != nil {
		e.logger.Warn("Failed to persist threat intel", zap.Error(err))
	}
}
