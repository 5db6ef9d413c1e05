package model

import "time"

// -------------------- THREAT HUNT --------------------

type HuntStatus string

const (
	HuntPlanning  HuntStatus = "planning"
	HuntActive    HuntStatus = "active"
	HuntCompleted HuntStatus = "completed"
	HuntCancelled HuntStatus = "cancelled"
)

// HuntQuery is a named free-text query bound to a data source. Execution is
// delegated to an external collaborator; the hunt only records the outcome.
type HuntQuery struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Query       string     `json:"query"`
	DataSource  string     `json:"data_source"`
	ExecutedAt  *time.Time `json:"executed_at,omitempty"`
	ResultCount int        `json:"result_count"`
}

// HuntFinding is one confirmed observation from a hunt. High and critical
// findings deterministically spawn a SOC alert; AlertID records it.
type HuntFinding struct {
	ID                 string            `json:"id"`
	Title              string            `json:"title"`
	Description        string            `json:"description"`
	Severity           Severity          `json:"severity"`
	Confidence         Confidence        `json:"confidence"`
	Indicators         []ThreatIndicator `json:"indicators,omitempty"`
	Evidence           []string          `json:"evidence,omitempty"`
	Tags               []string          `json:"tags,omitempty"`
	RecommendedActions []string          `json:"recommended_actions,omitempty"`
	AlertID            string            `json:"alert_id,omitempty"`
	RecordedAt         time.Time         `json:"recorded_at"`
}

// ThreatHunt is a hypothesis-driven, time-boxed investigation.
type ThreatHunt struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Hypothesis  string        `json:"hypothesis"`
	Status      HuntStatus    `json:"status"`
	Hunter      string        `json:"hunter,omitempty"`
	Queries     []HuntQuery   `json:"queries,omitempty"`
	Findings    []HuntFinding `json:"findings,omitempty"`
	TimeBox     time.Duration `json:"time_box,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Overdue     bool          `json:"overdue"`
}
