package model

import "time"

// -------------------- RESPONSE PLAN --------------------

type PhaseName string

const (
	PhaseDetection    PhaseName = "detection"
	PhaseTriage       PhaseName = "triage"
	PhaseContainment  PhaseName = "containment"
	PhaseEradication  PhaseName = "eradication"
	PhaseRecovery     PhaseName = "recovery"
	PhasePostIncident PhaseName = "post_incident"
)

// PhaseForStatus maps an incident's current status to the phase being worked.
// An incident in "detected" is working the triage phase, and so on.
func PhaseForStatus(s IncidentStatus) PhaseName {
	switch s {
	case StatusDetected:
		return PhaseTriage
	case StatusTriaged:
		return PhaseContainment
	case StatusContained:
		return PhaseEradication
	case StatusEradicated:
		return PhaseRecovery
	case StatusRecovered:
		return PhasePostIncident
	default:
		return PhaseDetection
	}
}

// PlanPhase is one ordered step of a response plan.
type PlanPhase struct {
	Name       PhaseName     `json:"name"`
	Objectives []string      `json:"objectives,omitempty"`
	Actions    []PlanAction  `json:"actions,omitempty"`
	TimeLimit  time.Duration `json:"time_limit"`
}

// PlanAction is an action template stamped into a ResponseAction when the
// phase is entered.
type PlanAction struct {
	Type      string `json:"type"`
	Summary   string `json:"summary"`
	Automatic bool   `json:"automatic"`
}

// EscalationRule is one row of a plan's escalation matrix.
type EscalationRule struct {
	Condition     string        `json:"condition"`
	FromLevel     int           `json:"from_level"`
	ToLevel       int           `json:"to_level"`
	TimeThreshold time.Duration `json:"time_threshold"` // elapsed since detection
	Targets       []string      `json:"targets,omitempty"`
	Automatic     bool          `json:"automatic"`
}

// IncidentResponsePlan is a playbook: ordered phases, an escalation matrix and
// per-severity SLA targets for each phase.
type IncidentResponsePlan struct {
	ID                string                                  `json:"id"`
	Name              string                                  `json:"name"`
	TriggerConditions []string                                `json:"trigger_conditions,omitempty"`
	Phases            []PlanPhase                             `json:"phases"`
	EscalationMatrix  []EscalationRule                        `json:"escalation_matrix,omitempty"`
	SLATargets        map[Severity]map[PhaseName]time.Duration `json:"sla_targets,omitempty"`
}

// Phase returns the named phase, if the plan defines it.
func (p *IncidentResponsePlan) Phase(name PhaseName) (PlanPhase, bool) {
	for _, ph := range p.Phases {
		if ph.Name == name {
			return ph, true
		}
	}
	return PlanPhase{}, false
}

// SLAFor returns the plan's SLA target for a severity/phase pair, falling back
// to the phase time limit when no explicit target exists.
func (p *IncidentResponsePlan) SLAFor(sev Severity, phase PhaseName) (time.Duration, bool) {
	if bySev, ok := p.SLATargets[sev]; ok {
		if d, ok := bySev[phase]; ok {
			return d, true
		}
	}
	if ph, ok := p.Phase(phase); ok && ph.TimeLimit > 0 {
		return ph.TimeLimit, true
	}
	return 0, false
}
