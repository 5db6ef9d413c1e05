package rules

import (
	"time"

	"secops-service/internal/model"
)

// DefaultAlertRules are the rules installed at startup. Operators extend the
// set at runtime through the rule registry.
func DefaultAlertRules() []*AlertRule {
	return []*AlertRule{
		{
			ID:       "critical_errors",
			Name:     "critical_errors",
			Expr:     "level = critical",
			Severity: model.SeverityCritical,
			Category: model.IncidentSystemCompromise,
			Cooldown: 5 * time.Minute,
			Actions:  []RuleAction{{Type: ActionIncident}},
			Enabled:  true,
		},
		{
			ID:       "auth_brute_force",
			Name:     "auth_brute_force",
			Expr:     `category = security AND message CONTAINS "failed login"`,
			Severity: model.SeverityHigh,
			Category: model.IncidentUnauthorizedAccess,
			Cooldown: 15 * time.Minute,
			Actions:  []RuleAction{{Type: ActionIncident}},
			Enabled:  true,
		},
		{
			ID:       "compliance_gap",
			Name:     "compliance_gap",
			Expr:     "category = compliance AND level IN (error, critical)",
			Severity: model.SeverityMedium,
			Category: model.IncidentComplianceViolation,
			Cooldown: time.Hour,
			Actions:  []RuleAction{{Type: ActionNotify}},
			Enabled:  true,
		},
	}
}
