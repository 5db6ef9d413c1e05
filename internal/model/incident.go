package model

import "time"

// -------------------- INCIDENT ENUMS --------------------

type IncidentCategory string

const (
	IncidentDataBreach          IncidentCategory = "data_breach"
	IncidentMalwareInfection    IncidentCategory = "malware_infection"
	IncidentUnauthorizedAccess  IncidentCategory = "unauthorized_access"
	IncidentSystemCompromise    IncidentCategory = "system_compromise"
	IncidentDenialOfService     IncidentCategory = "denial_of_service"
	IncidentComplianceViolation IncidentCategory = "compliance_violation"
	IncidentSocialEngineering   IncidentCategory = "social_engineering"
	IncidentInsiderThreat       IncidentCategory = "insider_threat"
)

type IncidentStatus string

// Canonical lifecycle. Transitions are strictly forward; each state is entered
// at most once and stamps its timestamp exactly once.
const (
	StatusDetected   IncidentStatus = "detected"
	StatusTriaged    IncidentStatus = "triaged"
	StatusContained  IncidentStatus = "contained"
	StatusEradicated IncidentStatus = "eradicated"
	StatusRecovered  IncidentStatus = "recovered"
	StatusClosed     IncidentStatus = "closed"
)

// IncidentStatusOrder lists the canonical states in lifecycle order.
var IncidentStatusOrder = []IncidentStatus{
	StatusDetected, StatusTriaged, StatusContained,
	StatusEradicated, StatusRecovered, StatusClosed,
}

// StatusRank returns the position of s in the canonical order, or -1.
func StatusRank(s IncidentStatus) int {
	for i, st := range IncidentStatusOrder {
		if st == s {
			return i
		}
	}
	return -1
}

type ImpactLevel string

const (
	ImpactNone     ImpactLevel = "none"
	ImpactMinor    ImpactLevel = "minor"
	ImpactModerate ImpactLevel = "moderate"
	ImpactMajor    ImpactLevel = "major"
	ImpactSevere   ImpactLevel = "severe"
)

type ResponseTeam string

const (
	TeamCISO      ResponseTeam = "ciso"
	TeamSOC       ResponseTeam = "soc"
	TeamDevSecOps ResponseTeam = "devsecops"
)

// -------------------- EVIDENCE --------------------

// CustodyEntry is one append-only chain-of-custody record.
type CustodyEntry struct {
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Evidence struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"` // log, pcap, memory_dump, screenshot, file
	Description    string         `json:"description"`
	CollectedBy    string         `json:"collected_by"`
	CollectedAt    time.Time      `json:"collected_at"`
	Location       string         `json:"location,omitempty"`
	Hash           string         `json:"hash,omitempty"`
	ChainOfCustody []CustodyEntry `json:"chain_of_custody,omitempty"`
}

// -------------------- RESPONSE ACTIONS --------------------

type ActionStatus string

const (
	ActionPending   ActionStatus = "pending"
	ActionExecuted  ActionStatus = "executed"
	ActionFailed    ActionStatus = "failed"
	ActionSkipped   ActionStatus = "skipped"
)

type ResponseAction struct {
	ID         string       `json:"id"`
	Phase      PhaseName    `json:"phase"`
	Type       string       `json:"type"` // block_ip, collect_evidence, analyze_logs, notify_stakeholders, ...
	Summary    string       `json:"summary"`
	Automatic  bool         `json:"automatic"`
	Status     ActionStatus `json:"status"`
	ExecutedAt *time.Time   `json:"executed_at,omitempty"`
	ExecutedBy string       `json:"executed_by,omitempty"`
	Result     string       `json:"result,omitempty"`
}

// -------------------- SECURITY INCIDENT --------------------

type SecurityIncident struct {
	ID              string           `json:"id"`
	Title           string           `json:"title"`
	Description     string           `json:"description"`
	Severity        Severity         `json:"severity"`
	Category        IncidentCategory `json:"category"`
	Status          IncidentStatus   `json:"status"`
	Priority        int              `json:"priority"`         // 1 highest .. 5 lowest
	EscalationLevel int              `json:"escalation_level"` // 1..4, never decreases
	AssignedTeam    ResponseTeam     `json:"assigned_team"`
	PlanID          string           `json:"plan_id,omitempty"`
	SourceAlertID   string           `json:"source_alert_id,omitempty"`

	Indicators      []ThreatIndicator `json:"indicators,omitempty"`
	AffectedUsers   []string          `json:"affected_users,omitempty"`
	AffectedSystems []string          `json:"affected_systems,omitempty"`

	BusinessImpact     ImpactLevel `json:"business_impact"`
	DataImpact         ImpactLevel `json:"data_impact"`
	ReputationalImpact ImpactLevel `json:"reputational_impact"`

	RegulatoryNotificationRequired bool `json:"regulatory_notification_required"`
	CustomerNotificationRequired   bool `json:"customer_notification_required"`
	ExecutiveNotificationRequired  bool `json:"executive_notification_required"`

	Evidence           []Evidence       `json:"evidence,omitempty"`
	ContainmentActions []ResponseAction `json:"containment_actions,omitempty"`
	EradicationActions []ResponseAction `json:"eradication_actions,omitempty"`
	RecoveryActions    []ResponseAction `json:"recovery_actions,omitempty"`

	DetectedAt   time.Time  `json:"detected_at"`
	TriagedAt    *time.Time `json:"triaged_at,omitempty"`
	ContainedAt  *time.Time `json:"contained_at,omitempty"`
	EradicatedAt *time.Time `json:"eradicated_at,omitempty"`
	RecoveredAt  *time.Time `json:"recovered_at,omitempty"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`

	ManualEscalationRequired bool `json:"manual_escalation_required"`

	RootCause      string `json:"root_cause,omitempty"`      // set only at close
	LessonsLearned string `json:"lessons_learned,omitempty"` // set only at close
}

// -------------------- PRIORITY MATRIX --------------------

// PriorityMatrix maps (severity, category) to a response priority, 1 highest.
var PriorityMatrix = map[Severity]map[IncidentCategory]int{
	SeverityCritical: {
		IncidentDataBreach: 1, IncidentMalwareInfection: 1, IncidentUnauthorizedAccess: 1,
		IncidentSystemCompromise: 1, IncidentDenialOfService: 1, IncidentComplianceViolation: 1,
		IncidentSocialEngineering: 2, IncidentInsiderThreat: 1,
	},
	SeverityHigh: {
		IncidentDataBreach: 1, IncidentMalwareInfection: 2, IncidentUnauthorizedAccess: 2,
		IncidentSystemCompromise: 2, IncidentDenialOfService: 2, IncidentComplianceViolation: 2,
		IncidentSocialEngineering: 3, IncidentInsiderThreat: 2,
	},
	SeverityMedium: {
		IncidentDataBreach: 2, IncidentMalwareInfection: 3, IncidentUnauthorizedAccess: 3,
		IncidentSystemCompromise: 3, IncidentDenialOfService: 3, IncidentComplianceViolation: 3,
		IncidentSocialEngineering: 4, IncidentInsiderThreat: 3,
	},
	SeverityLow: {
		IncidentDataBreach: 3, IncidentMalwareInfection: 4, IncidentUnauthorizedAccess: 4,
		IncidentSystemCompromise: 4, IncidentDenialOfService: 4, IncidentComplianceViolation: 4,
		IncidentSocialEngineering: 5, IncidentInsiderThreat: 4,
	},
}

// PriorityFor is the pure lookup used at incident creation. Unknown
// combinations fall back to the lowest priority.
func PriorityFor(sev Severity, cat IncidentCategory) int {
	if row, ok := PriorityMatrix[sev]; ok {
		if p, ok := row[cat]; ok {
			return p
		}
	}
	return 5
}
