package incident

import (
	"strings"
	"time"

	"secops-service/internal/model"
)

// Action types the manager executes without a human in the loop.
var autoExecutable = map[string]bool{
	"block_ip":         true,
	"collect_evidence": true,
	"analyze_logs":     true,
}

// DefaultPlans are the built-in playbooks. Trigger conditions are
// "field=value" strings matched against the incident's severity and category;
// a plan matches when any condition holds. The first matching plan wins, the
// generic plan is the fallback.
func DefaultPlans() []model.IncidentResponsePlan {
	containment := []model.PlanAction{
		{Type: "block_ip", Summary: "Block attacker IP addresses at the edge", Automatic: true},
		{Type: "collect_evidence", Summary: "Snapshot affected systems and preserve volatile data", Automatic: true},
		{Type: "isolate_systems", Summary: "Isolate affected systems from the network", Automatic: false},
	}
	eradication := []model.PlanAction{
		{Type: "analyze_logs", Summary: "Run root-cause analysis over centralized logs", Automatic: true},
		{Type: "remove_malware", Summary: "Remove malicious artifacts from affected hosts", Automatic: false},
		{Type: "patch_vulnerabilities", Summary: "Patch the exploited vulnerabilities", Automatic: false},
	}
	recovery := []model.PlanAction{
		{Type: "restore_services", Summary: "Restore services from known-good state", Automatic: false},
		{Type: "verify_integrity", Summary: "Verify system and data integrity", Automatic: false},
		{Type: "monitor_recurrence", Summary: "Monitor for recurrence of the attack pattern", Automatic: false},
	}

	basePhases := func(containTL, eradicateTL, recoverTL time.Duration) []model.PlanPhase {
		return []model.PlanPhase{
			{Name: model.PhaseDetection, Objectives: []string{"Confirm the incident is real"}, TimeLimit: 15 * time.Minute},
			{Name: model.PhaseTriage, Objectives: []string{"Scope and prioritize"}, TimeLimit: 30 * time.Minute},
			{Name: model.PhaseContainment, Objectives: []string{"Stop the bleeding"}, Actions: containment, TimeLimit: containTL},
			{Name: model.PhaseEradication, Objectives: []string{"Remove the threat"}, Actions: eradication, TimeLimit: eradicateTL},
			{Name: model.PhaseRecovery, Objectives: []string{"Return to normal operations"}, Actions: recovery, TimeLimit: recoverTL},
			{Name: model.PhasePostIncident, Objectives: []string{"Capture lessons learned"}, TimeLimit: 7 * 24 * time.Hour},
		}
	}

	return []model.IncidentResponsePlan{
		{
			ID:   "plan-data-breach",
			Name: "Data Breach Response",
			TriggerConditions: []string{
				"category=data_breach",
				"category=unauthorized_access",
			},
			Phases: basePhases(time.Hour, 4*time.Hour, 8*time.Hour),
			EscalationMatrix: []model.EscalationRule{
				{Condition: "uncontained", FromLevel: 1, ToLevel: 2, TimeThreshold: time.Hour, Targets: []string{"soc-lead"}, Automatic: true},
				{Condition: "uncontained", FromLevel: 2, ToLevel: 3, TimeThreshold: 4 * time.Hour, Targets: []string{"ciso"}, Automatic: true},
				{Condition: "unresolved", FromLevel: 3, ToLevel: 4, TimeThreshold: 24 * time.Hour, Targets: []string{"executive"}, Automatic: false},
			},
			SLATargets: map[model.Severity]map[model.PhaseName]time.Duration{
				model.SeverityCritical: {
					model.PhaseTriage:      15 * time.Minute,
					model.PhaseContainment: time.Hour,
					model.PhaseEradication: 4 * time.Hour,
					model.PhaseRecovery:    8 * time.Hour,
				},
				model.SeverityHigh: {
					model.PhaseTriage:      30 * time.Minute,
					model.PhaseContainment: 2 * time.Hour,
					model.PhaseEradication: 8 * time.Hour,
					model.PhaseRecovery:    24 * time.Hour,
				},
			},
		},
		{
			ID:   "plan-malware",
			Name: "Malware Containment",
			TriggerConditions: []string{
				"category=malware_infection",
				"category=system_compromise",
			},
			Phases: basePhases(2*time.Hour, 8*time.Hour, 24*time.Hour),
			EscalationMatrix: []model.EscalationRule{
				{Condition: "uncontained", FromLevel: 1, ToLevel: 2, TimeThreshold: 2 * time.Hour, Targets: []string{"soc-lead"}, Automatic: true},
				{Condition: "unresolved", FromLevel: 2, ToLevel: 3, TimeThreshold: 12 * time.Hour, Targets: []string{"ciso"}, Automatic: false},
			},
			SLATargets: map[model.Severity]map[model.PhaseName]time.Duration{
				model.SeverityCritical: {
					model.PhaseTriage:      15 * time.Minute,
					model.PhaseContainment: 2 * time.Hour,
				},
			},
		},
		{
			ID:                "plan-generic",
			Name:              "Generic Incident Response",
			TriggerConditions: nil, // fallback
			Phases:            basePhases(4*time.Hour, 12*time.Hour, 48*time.Hour),
			EscalationMatrix: []model.EscalationRule{
				{Condition: "unresolved", FromLevel: 1, ToLevel: 2, TimeThreshold: 8 * time.Hour, Targets: []string{"soc-lead"}, Automatic: true},
			},
		},
	}
}

// selectPlan returns the first plan with a matching trigger condition, or the
// fallback plan with no conditions.
func selectPlan(plans []model.IncidentResponsePlan, inc *model.SecurityIncident) *model.IncidentResponsePlan {
	var fallback *model.IncidentResponsePlan
	for i := range plans {
		plan := &plans[i]
		if len(plan.TriggerConditions) == 0 {
			if fallback == nil {
				fallback = plan
			}
			continue
		}
		for _, cond := range plan.TriggerConditions {
			if triggerMatches(cond, inc) {
				return plan
			}
		}
	}
	return fallback
}

func triggerMatches(cond string, inc *model.SecurityIncident) bool {
	parts := strings.SplitN(cond, "=", 2)
	if len(parts) != 2 {
		return false
	}
	field, value := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	switch field {
	case "category":
		return string(inc.Category) == value
	case "severity":
		return string(inc.Severity) == value
	}
	return false
}
