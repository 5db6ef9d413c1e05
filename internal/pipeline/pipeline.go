package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"secops-service/internal/metrics"
	"secops-service/internal/model"
	"secops-service/internal/provider"
	"secops-service/internal/rules"
	"secops-service/internal/sched"
	"secops-service/internal/store"
)

// IncidentCreator is the only contract the pipeline needs from the incident
// side: alert-rule actions of type "incident" call it.
type IncidentCreator interface {
	CreateIncidentFromRule(title, description string, severity model.Severity,
		category model.IncidentCategory, indicators []model.ThreatIndicator) (*model.SecurityIncident, error)
}

// boundProvider pairs a provider's configuration with its transport so the
// flush path can honor per-provider retry settings.
type boundProvider struct {
	cfg  model.LogProvider
	impl provider.Provider
}

// Options carries the injectable collaborators. Rand defaults to math/rand;
// tests pin it for deterministic sampling.
type Options struct {
	Store     store.Store
	Clock     sched.Clock
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
	Incidents IncidentCreator
	Providers provider.Deps
	Rand      func() float64

	// Static enrichment context for this process.
	Device   *model.DeviceContext
	Location *model.LocationContext
}

// Pipeline is the log ingestion core: sanitize, sample, filter, enrich, queue,
// batch-deliver, and evaluate alert rules per entry.
type Pipeline struct {
	logger    *zap.Logger
	clock     sched.Clock
	store     store.Store
	metrics   *metrics.Metrics
	rules     *rules.Registry
	incidents IncidentCreator
	deps      provider.Deps
	sanitizer Sanitizer
	randFn    func() float64

	device   *model.DeviceContext
	location *model.LocationContext

	mu        sync.Mutex
	cfg       model.LoggingConfiguration
	providers []boundProvider
	filters   map[string]*rules.Condition // compiled filter rule conditions
	queue     []model.LogEntry
	tail      []model.LogEntry // recent history persisted under centralized_logs
	tailSize  int
	stats     Stats

	isProcessing atomic.Bool // flush re-entrancy guard

	dispatchMu   sync.Mutex
	dispatchBusy bool
	pendingEval  []model.LogEntry // entries awaiting rule evaluation
}

func New(opts Options) *Pipeline {
	randFn := opts.Rand
	if randFn == nil {
		randFn = rand.Float64
	}
	p := &Pipeline{
		logger:    opts.Logger,
		clock:     opts.Clock,
		store:     opts.Store,
		metrics:   opts.Metrics,
		rules:     rules.NewRegistry(),
		incidents: opts.Incidents,
		deps:      opts.Providers,
		randFn:    randFn,
		device:    opts.Device,
		location:  opts.Location,
		filters:   make(map[string]*rules.Condition),
		tailSize:  500,
		stats:     newStats(),
	}
	p.applyConfiguration(model.DefaultLoggingConfiguration())
	return p
}

// SetTailSize bounds the recent-history tail persisted on flush.
func (p *Pipeline) SetTailSize(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n > 0 {
		p.tailSize = n
	}
}

// RegisterRule compiles and installs an alert rule.
func (p *Pipeline) RegisterRule(r *rules.AlertRule) error {
	return p.rules.Register(r)
}

// Rules exposes the installed alert rules.
func (p *Pipeline) Rules() []*rules.AlertRule {
	return p.rules.Rules()
}

// Configuration returns a copy of the active configuration.
func (p *Pipeline) Configuration() model.LoggingConfiguration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// Restore loads a previously persisted configuration, if any.
func (p *Pipeline) Restore(ctx context.Context) {
	var cfg model.LoggingConfiguration
	if err := p.store.Load(ctx, store.KeyLoggingConfig, &cfg); err == nil {
		p.mu.Lock()
		p.applyConfigurationLocked(cfg)
		p.mu.Unlock()
		p.logger.Info("Restored logging configuration",
			zap.Int("providers", len(cfg.Providers)))
	} else if !errors.Is(err, store.ErrNotFound) {
		p.logger.Warn("Failed to restore logging configuration", zap.Error(err))
	}
}

// UpdateConfiguration is the single mutation point for the logging
// configuration. The new configuration is persisted fire-and-forget.
func (p *Pipeline) UpdateConfiguration(ctx context.Context, cfg model.LoggingConfiguration) {
	p.mu.Lock()
	p.applyConfigurationLocked(cfg)
	p.mu.Unlock()

	if err := p.store.Save(ctx, store.KeyLoggingConfig, cfg); err != nil {
		p.logger.Warn("Failed to persist logging configuration", zap.Error(err))
	}
	p.logger.Info("Logging configuration updated",
		zap.Int("providers", len(cfg.Providers)),
		zap.Bool("sampling", cfg.Sampling.Enabled),
		zap.Bool("filtering", cfg.Filtering.Enabled))
}

func (p *Pipeline) applyConfiguration(cfg model.LoggingConfiguration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyConfigurationLocked(cfg)
}

func (p *Pipeline) applyConfigurationLocked(cfg model.LoggingConfiguration) {
	p.cfg = cfg

	p.providers = p.providers[:0]
	for _, pc := range cfg.Providers {
		if !pc.Enabled {
			continue
		}
		impl, err := provider.New(pc, p.deps)
		if err != nil {
			p.logger.Warn("Skipping provider", zap.String("provider", pc.Name), zap.Error(err))
			continue
		}
		p.providers = append(p.providers, boundProvider{cfg: pc, impl: impl})
	}

	p.filters = make(map[string]*rules.Condition, len(cfg.Filtering.Rules))
	for _, fr := range cfg.Filtering.Rules {
		cond, err := rules.Parse(fr.Condition)
		if err != nil {
			// Malformed filter conditions never match.
			p.logger.Warn("Ignoring malformed filter rule",
				zap.String("rule", fr.Name), zap.Error(err))
			continue
		}
		p.filters[fr.Name] = cond
	}
}

// -------------------- INGRESS --------------------

// Log runs an event through the full pipeline. It never returns an error for
// downstream failures; only invalid input is rejected.
func (p *Pipeline) Log(ctx context.Context, level model.LogLevel, source, message string,
	metadata map[string]interface{}, category model.LogCategory) (*model.LogEntry, error) {

	if !level.Valid() {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	if !category.Valid() {
		return nil, fmt.Errorf("invalid log category %q", category)
	}

	p.mu.Lock()
	cfg := p.cfg
	now := p.clock.Now()

	entry := model.LogEntry{
		ID:        uuid.NewString(),
		Timestamp: now,
		Level:     level,
		Category:  category,
		Source:    source,
		Message:   p.sanitizer.Message(message, cfg.Privacy),
		Metadata:  p.sanitizer.Metadata(metadata, cfg.Privacy),
		Tags:      append([]string(nil), cfg.GlobalTags...),
	}
	if cid, ok := entry.Metadata["correlation_id"].(string); ok {
		entry.CorrelationID = cid
	}

	// Sampling drops happen before any counting or queueing.
	if !p.sampledInLocked(&entry, cfg.Sampling) {
		p.mu.Unlock()
		p.metrics.LogsDroppedSampling.Inc()
		return nil, nil
	}

	if !p.filteredInLocked(&entry, cfg.Filtering) {
		p.stats.FilteredEntries++
		p.mu.Unlock()
		p.metrics.LogsDroppedFiltering.Inc()
		return nil, nil
	}

	p.enrichLocked(&entry, cfg.Enrichment)
	p.enqueueLocked(entry, cfg.Performance.MaxQueueSize)
	p.countLocked(&entry)
	p.mu.Unlock()

	p.metrics.LogsIngested.WithLabelValues(string(level), string(category)).Inc()

	// Critical entries bypass the batching cadence.
	if level == model.LevelCritical {
		p.Flush(ctx)
	}

	p.evaluateAlertRules(ctx, &entry)
	return &entry, nil
}

// Level and category specialized wrappers, all funneling into Log.

func (p *Pipeline) Debug(ctx context.Context, source, message string, metadata map[string]interface{}) {
	p.mustLog(ctx, model.LevelDebug, source, message, metadata, model.CategorySystem)
}

func (p *Pipeline) Info(ctx context.Context, source, message string, metadata map[string]interface{}) {
	p.mustLog(ctx, model.LevelInfo, source, message, metadata, model.CategorySystem)
}

func (p *Pipeline) Warn(ctx context.Context, source, message string, metadata map[string]interface{}) {
	p.mustLog(ctx, model.LevelWarn, source, message, metadata, model.CategorySystem)
}

func (p *Pipeline) Error(ctx context.Context, source, message string, metadata map[string]interface{}) {
	p.mustLog(ctx, model.LevelError, source, message, metadata, model.CategorySystem)
}

func (p *Pipeline) Critical(ctx context.Context, source, message string, metadata map[string]interface{}) {
	p.mustLog(ctx, model.LevelCritical, source, message, metadata, model.CategorySystem)
}

func (p *Pipeline) LogSecurity(ctx context.Context, level model.LogLevel, source, message string, metadata map[string]interface{}) {
	p.mustLog(ctx, level, source, message, metadata, model.CategorySecurity)
}

func (p *Pipeline) LogPerformance(ctx context.Context, source, message string, metadata map[string]interface{}) {
	p.mustLog(ctx, model.LevelInfo, source, message, metadata, model.CategoryPerformance)
}

func (p *Pipeline) LogAudit(ctx context.Context, source, message string, metadata map[string]interface{}) {
	p.mustLog(ctx, model.LevelInfo, source, message, metadata, model.CategoryAudit)
}

func (p *Pipeline) LogCompliance(ctx context.Context, source, message string, metadata map[string]interface{}) {
	p.mustLog(ctx, model.LevelInfo, source, message, metadata, model.CategoryCompliance)
}

func (p *Pipeline) mustLog(ctx context.Context, level model.LogLevel, source, message string,
	metadata map[string]interface{}, category model.LogCategory) {
	if _, err := p.Log(ctx, level, source, message, metadata, category); err != nil {
		p.logger.Warn("Dropped invalid log entry", zap.Error(err))
	}
}

// -------------------- STAGES --------------------

// sampledInLocked decides keep/drop. Ordered rules first (highest priority
// wins); entries matching no rule use the global rate.
func (p *Pipeline) sampledInLocked(entry *model.LogEntry, cfg model.SamplingConfig) bool {
	if !cfg.Enabled {
		return true
	}
	rate := cfg.Rate
	if best := bestSamplingRule(entry, cfg.Rules); best != nil {
		rate = best.Rate
	}
	if rate >= 1.0 {
		return true
	}
	if rate <= 0 {
		return false
	}
	return p.randFn() < rate
}

func bestSamplingRule(entry *model.LogEntry, rs []model.SamplingRule) *model.SamplingRule {
	var best *model.SamplingRule
	for i := range rs {
		r := &rs[i]
		if r.Level != "" && r.Level != entry.Level {
			continue
		}
		if r.Category != "" && r.Category != entry.Category {
			continue
		}
		if r.Source != "" && !strings.EqualFold(r.Source, entry.Source) {
			continue
		}
		if best == nil || r.Priority > best.Priority {
			best = r
		}
	}
	return best
}

// filteredInLocked applies filter rules in descending priority; the first
// match decides, default include.
func (p *Pipeline) filteredInLocked(entry *model.LogEntry, cfg model.FilteringConfig) bool {
	if !cfg.Enabled {
		return true
	}
	var best *model.FilterRule
	for i := range cfg.Rules {
		fr := &cfg.Rules[i]
		cond, ok := p.filters[fr.Name]
		if !ok || !cond.Matches(entry) {
			continue
		}
		if best == nil || fr.Priority > best.Priority {
			best = fr
		}
	}
	if best == nil {
		return true
	}
	return best.Action == model.FilterInclude
}

func (p *Pipeline) enrichLocked(entry *model.LogEntry, cfg model.EnrichmentConfig) {
	if cfg.IncludeDeviceInfo && p.device != nil {
		d := *p.device
		entry.Device = &d
	}
	if cfg.IncludeLocationInfo && p.location != nil {
		l := *p.location
		entry.Location = &l
	}
	if cfg.IncludeUserContext {
		uc := model.UserContext{}
		if v, ok := entry.Metadata["user_id"].(string); ok {
			uc.UserID = v
		}
		if v, ok := entry.Metadata["session_id"].(string); ok {
			uc.SessionID = v
		}
		if uc != (model.UserContext{}) {
			entry.User = &uc
		}
	}
}

// enqueueLocked appends with FIFO eviction at capacity.
func (p *Pipeline) enqueueLocked(entry model.LogEntry, maxQueue int) {
	if maxQueue <= 0 {
		maxQueue = 1000
	}
	p.queue = append(p.queue, entry)
	for len(p.queue) > maxQueue {
		p.queue = p.queue[1:]
		p.stats.EvictedEntries++
		p.metrics.LogsEvicted.Inc()
	}
	p.metrics.QueueDepth.Set(float64(len(p.queue)))

	p.tail = append(p.tail, entry)
	if over := len(p.tail) - p.tailSize; over > 0 {
		p.tail = p.tail[over:]
	}
}

func (p *Pipeline) countLocked(entry *model.LogEntry) {
	p.stats.TotalLogs++
	p.stats.ByLevel[string(entry.Level)]++
	p.stats.ByCategory[string(entry.Category)]++
	p.stats.BySource[entry.Source]++
	errors := p.stats.ByLevel[string(model.LevelError)] + p.stats.ByLevel[string(model.LevelCritical)]
	p.stats.ErrorRate = float64(errors) / float64(p.stats.TotalLogs)
}

// -------------------- ALERT RULES --------------------

// evaluateAlertRules queues the entry and lets a single drainer run the rules.
// Entries logged while actions execute, from other goroutines or from inside
// an action, are appended and picked up by the active drainer, so nothing is
// skipped and recursive re-triggering cannot loop.
func (p *Pipeline) evaluateAlertRules(ctx context.Context, entry *model.LogEntry) {
	p.dispatchMu.Lock()
	p.pendingEval = append(p.pendingEval, *entry)
	if p.dispatchBusy {
		p.dispatchMu.Unlock()
		return
	}
	p.dispatchBusy = true
	for len(p.pendingEval) > 0 {
		next := p.pendingEval[0]
		p.pendingEval = p.pendingEval[1:]
		p.dispatchMu.Unlock()
		p.dispatchRules(ctx, &next)
		p.dispatchMu.Lock()
	}
	p.dispatchBusy = false
	p.dispatchMu.Unlock()
}

func (p *Pipeline) dispatchRules(ctx context.Context, entry *model.LogEntry) {
	for _, rule := range p.rules.Match(entry, p.clock.Now()) {
		p.logger.Info("Alert rule matched",
			zap.String("rule", rule.Name),
			zap.String("entry_id", entry.ID))
		for _, action := range rule.Actions {
			p.executeRuleAction(ctx, rule, action, entry)
		}
	}
}

func (p *Pipeline) executeRuleAction(ctx context.Context, rule *rules.AlertRule, action rules.RuleAction, entry *model.LogEntry) {
	switch action.Type {
	case rules.ActionIncident:
		if p.incidents == nil {
			p.logger.Warn("Rule wants an incident but no incident manager is wired",
				zap.String("rule", rule.Name))
			return
		}
		category := rule.Category
		if category == "" {
			category = model.IncidentSystemCompromise
		}
		title := fmt.Sprintf("Alert rule triggered: %s", rule.Name)
		desc := fmt.Sprintf("Rule %q matched log entry from %s: %s", rule.Name, entry.Source, entry.Message)
		if _, err := p.incidents.CreateIncidentFromRule(title, desc, rule.Severity, category, indicatorsFromEntry(entry, p.clock.Now())); err != nil {
			p.logger.Error("Failed to create incident from rule",
				zap.String("rule", rule.Name), zap.Error(err))
		}
	case rules.ActionNotify, rules.ActionWebhook:
		// Notification transports are external collaborators; record intent only.
		p.logger.Info("Rule action recorded",
			zap.String("rule", rule.Name),
			zap.String("action", string(action.Type)))
	default:
		p.logger.Warn("Unknown rule action",
			zap.String("rule", rule.Name),
			zap.String("action", string(action.Type)))
	}
}

// indicatorsFromEntry lifts indicator-shaped metadata off an entry.
func indicatorsFromEntry(entry *model.LogEntry, now time.Time) []model.ThreatIndicator {
	var out []model.ThreatIndicator
	if ip, ok := entry.Metadata["source_ip"].(string); ok && ip != "" {
		out = append(out, model.ThreatIndicator{
			Type: model.IndicatorIP, Value: ip,
			Confidence: model.ConfidenceMedium, Source: entry.Source,
			FirstSeen: now, LastSeen: now,
		})
	}
	if domain, ok := entry.Metadata["domain"].(string); ok && domain != "" {
		out = append(out, model.ThreatIndicator{
			Type: model.IndicatorDomain, Value: domain,
			Confidence: model.ConfidenceMedium, Source: entry.Source,
			FirstSeen: now, LastSeen: now,
		})
	}
	return out
}

// -------------------- FLUSH --------------------

// Flush drains up to MaxBatchSize entries and delivers them concurrently to
// every enabled provider. The isProcessing guard prevents two flushes from
// racing over the queue.
func (p *Pipeline) Flush(ctx context.Context) {
	if !p.isProcessing.CompareAndSwap(false, true) {
		return
	}
	defer p.isProcessing.Store(false)

	p.mu.Lock()
	maxBatch := p.cfg.Performance.MaxBatchSize
	if maxBatch <= 0 {
		maxBatch = 50
	}
	n := len(p.queue)
	if n > maxBatch {
		n = maxBatch
	}
	if n == 0 {
		p.mu.Unlock()
		return
	}
	batch := make([]model.LogEntry, n)
	for i := 0; i < n; i++ {
		batch[i] = p.queue[i].Clone()
	}
	p.queue = p.queue[n:]
	p.metrics.QueueDepth.Set(float64(len(p.queue)))
	providers := append([]boundProvider(nil), p.providers...)
	tail := append([]model.LogEntry(nil), p.tail...)
	p.mu.Unlock()

	var g errgroup.Group
	for _, bp := range providers {
		bp := bp
		g.Go(func() error {
			// Failures are isolated per provider and must not cancel siblings.
			p.deliverWithRetry(ctx, bp, batch)
			return nil
		})
	}
	_ = g.Wait()

	if err := p.store.Save(ctx, store.KeyCentralLogs, tail); err != nil {
		p.logger.Warn("Failed to persist recent log tail", zap.Error(err))
	}
}

func (p *Pipeline) deliverWithRetry(ctx context.Context, bp boundProvider, batch []model.LogEntry) {
	attempts := bp.cfg.RetryAttempts + 1
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = bp.impl.Deliver(ctx, batch); err == nil {
			p.mu.Lock()
			p.stats.SuccessfulDeliveries++
			p.mu.Unlock()
			p.metrics.SuccessfulDeliveries.WithLabelValues(bp.cfg.Name).Inc()
			return
		}
		if attempt < attempts {
			time.Sleep(time.Duration(attempt) * 200 * time.Millisecond)
		}
	}

	p.mu.Lock()
	p.stats.FailedDeliveries++
	p.mu.Unlock()
	p.metrics.FailedDeliveries.WithLabelValues(bp.cfg.Name).Inc()
	p.logger.Error("Provider delivery failed",
		zap.String("provider", bp.cfg.Name),
		zap.Int("attempts", attempts),
		zap.Int("batch_size", len(batch)),
		zap.Error(err))
}

// -------------------- LIFECYCLE --------------------

// Start registers the periodic flush on the scheduler.
func (p *Pipeline) Start(s *sched.Scheduler, interval time.Duration) {
	s.Every("pipeline_flush", interval, func() {
		p.Flush(context.Background())
	})
}

// Shutdown performs one final best-effort flush and persists state.
func (p *Pipeline) Shutdown(ctx context.Context) {
	for {
		p.mu.Lock()
		remaining := len(p.queue)
		p.mu.Unlock()
		if remaining == 0 {
			break
		}
		p.Flush(ctx)
	}
	if err := p.store.Save(ctx, store.KeyLoggingConfig, p.Configuration()); err != nil {
		p.logger.Warn("Failed to persist configuration on shutdown", zap.Error(err))
	}
	p.logger.Info("Pipeline shut down")
}

// Stats returns a counter snapshot.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats.snapshot()
	s.QueueDepth = len(p.queue)
	return s
}

// QueueDepth reports the current queue length.
func (p *Pipeline) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}
