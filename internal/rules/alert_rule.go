package rules

import (
	"fmt"
	"sync"
	"time"

	"secops-service/internal/model"
)

// ActionType is what a matched alert rule does.
type ActionType string

const (
	ActionIncident ActionType = "incident"
	ActionNotify   ActionType = "notify"
	ActionWebhook  ActionType = "webhook"
)

// RuleAction is one action executed when a rule fires.
type RuleAction struct {
	Type   ActionType             `json:"type"`
	Config map[string]interface{} `json:"config,omitempty"`
}

// AlertRule couples a compiled condition with cooldown bookkeeping and the
// actions to run on match.
type AlertRule struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Expr     string                 `json:"condition"`
	Severity model.Severity         `json:"severity"`
	Category model.IncidentCategory `json:"category"`
	Cooldown time.Duration          `json:"cooldown"`
	Actions  []RuleAction           `json:"actions,omitempty"`
	Enabled  bool                   `json:"enabled"`

	cond      *Condition
	lastFired time.Time
}

// Compile parses the rule's expression. Rules with malformed conditions are
// rejected at registration rather than silently never matching.
func (r *AlertRule) Compile() error {
	cond, err := Parse(r.Expr)
	if err != nil {
		return fmt.Errorf("rule %s: %w", r.Name, err)
	}
	r.cond = cond
	return nil
}

// Registry holds compiled alert rules. Evaluation is read-mostly; cooldown
// updates take the write lock.
type Registry struct {
	mu    sync.RWMutex
	rules map[string]*AlertRule
}

func NewRegistry() *Registry {
	return &Registry{rules: make(map[string]*AlertRule)}
}

// Register compiles and stores a rule, replacing any rule with the same id.
func (reg *Registry) Register(r *AlertRule) error {
	if err := r.Compile(); err != nil {
		return err
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.rules[r.ID] = r
	return nil
}

// Remove drops a rule by id.
func (reg *Registry) Remove(id string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.rules, id)
}

// Rules returns all registered rules.
func (reg *Registry) Rules() []*AlertRule {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]*AlertRule, 0, len(reg.rules))
	for _, r := range reg.rules {
		out = append(out, r)
	}
	return out
}

// Match returns the enabled rules whose condition matches the entry and whose
// cooldown has elapsed at now. Matching rules have their lastFired stamped, so
// a rule matching twice within its cooldown fires exactly once.
func (reg *Registry) Match(entry *model.LogEntry, now time.Time) []*AlertRule {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	var matched []*AlertRule
	for _, r := range reg.rules {
		if !r.Enabled || r.cond == nil {
			continue
		}
		if !r.cond.Matches(entry) {
			continue
		}
		if r.Cooldown > 0 && !r.lastFired.IsZero() && now.Sub(r.lastFired) < r.Cooldown {
			continue
		}
		r.lastFired = now
		matched = append(matched, r)
	}
	return matched
}
