package model

import "time"

// -------------------- SEVERITY --------------------

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// RiskBase is the severity contribution to an alert's risk score.
func (s Severity) RiskBase() int {
	switch s {
	case SeverityCritical:
		return 40
	case SeverityHigh:
		return 30
	case SeverityMedium:
		return 20
	case SeverityLow:
		return 10
	}
	return 0
}

// -------------------- SOC ALERT --------------------

type AlertStatus string

const (
	AlertOpen          AlertStatus = "open"
	AlertInvestigating AlertStatus = "investigating"
	AlertResolved      AlertStatus = "resolved"
	AlertFalsePositive AlertStatus = "false_positive"
)

type AlertCategory string

const (
	AlertCatIntrusion     AlertCategory = "intrusion"
	AlertCatMalware       AlertCategory = "malware"
	AlertCatDataExfil     AlertCategory = "data_exfiltration"
	AlertCatCredential    AlertCategory = "credential_abuse"
	AlertCatPolicy        AlertCategory = "policy_violation"
	AlertCatAnomaly       AlertCategory = "anomaly"
	AlertCatThreatHunting AlertCategory = "threat_hunting"
)

// SOCAlert is created once and mutated in place by status, escalation and
// assignment operations. Alerts are never deleted; resolved and
// false-positive statuses archive them.
type SOCAlert struct {
	ID               string            `json:"id"`
	Title            string            `json:"title"`
	Description      string            `json:"description"`
	Severity         Severity          `json:"severity"`
	Category         AlertCategory     `json:"category"`
	Status           AlertStatus       `json:"status"`
	EscalationLevel  int               `json:"escalation_level"` // 1..3, never decreases
	RiskScore        int               `json:"risk_score"`       // 0..100
	Confidence       int               `json:"confidence"`       // 0..100
	Indicators       []ThreatIndicator `json:"indicators,omitempty"`
	AffectedAssets   []string          `json:"affected_assets,omitempty"`
	AssignedAnalyst  string            `json:"assigned_analyst,omitempty"`
	RelatedAlerts    []string          `json:"related_alerts,omitempty"`
	CorrelationScore int               `json:"correlation_score"`
	CreatedAt        time.Time         `json:"created_at"`
	FirstResponseAt  *time.Time        `json:"first_response_at,omitempty"`
	ResolvedAt       *time.Time        `json:"resolved_at,omitempty"`
	Notes            []string          `json:"notes,omitempty"`
}

// AlertToIncidentCategory is the fixed mapping applied when an alert
// auto-creates an incident.
var AlertToIncidentCategory = map[AlertCategory]IncidentCategory{
	AlertCatIntrusion:     IncidentSystemCompromise,
	AlertCatMalware:       IncidentMalwareInfection,
	AlertCatDataExfil:     IncidentDataBreach,
	AlertCatCredential:    IncidentUnauthorizedAccess,
	AlertCatPolicy:        IncidentComplianceViolation,
	AlertCatAnomaly:       IncidentSystemCompromise,
	AlertCatThreatHunting: IncidentSystemCompromise,
}
