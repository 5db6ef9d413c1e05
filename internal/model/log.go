package model

import "time"

// -------------------- LOG LEVELS & CATEGORIES --------------------

type LogLevel string

const (
	LevelDebug    LogLevel = "debug"
	LevelInfo     LogLevel = "info"
	LevelWarn     LogLevel = "warn"
	LevelError    LogLevel = "error"
	LevelCritical LogLevel = "critical"
)

func (l LogLevel) Valid() bool {
	switch l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError, LevelCritical:
		return true
	}
	return false
}

// Rank orders levels from debug (0) to critical (4).
func (l LogLevel) Rank() int {
	switch l {
	case LevelDebug:
		return 0
	case LevelInfo:
		return 1
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	case LevelCritical:
		return 4
	}
	return -1
}

type LogCategory string

const (
	CategorySecurity    LogCategory = "security"
	CategoryPerformance LogCategory = "performance"
	CategoryBusiness    LogCategory = "business"
	CategorySystem      LogCategory = "system"
	CategoryAudit       LogCategory = "audit"
	CategoryCompliance  LogCategory = "compliance"
)

func (c LogCategory) Valid() bool {
	switch c {
	case CategorySecurity, CategoryPerformance, CategoryBusiness,
		CategorySystem, CategoryAudit, CategoryCompliance:
		return true
	}
	return false
}

// -------------------- LOG ENTRY --------------------

// DeviceContext is attached by enrichment when includeDeviceInfo is on.
type DeviceContext struct {
	Platform   string `json:"platform,omitempty"`
	OSVersion  string `json:"os_version,omitempty"`
	AppVersion string `json:"app_version,omitempty"`
	DeviceID   string `json:"device_id,omitempty"`
}

// LocationContext is attached by enrichment when includeLocationInfo is on.
type LocationContext struct {
	Region   string `json:"region,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// UserContext is attached by enrichment when includeUserContext is on.
type UserContext struct {
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// LogEntry is a single ingested event. Entries are immutable once built by the
// pipeline; downstream consumers receive copies.
type LogEntry struct {
	ID            string                 `json:"id"`
	Timestamp     time.Time              `json:"timestamp"`
	Level         LogLevel               `json:"level"`
	Category      LogCategory            `json:"category"`
	Source        string                 `json:"source"`
	Message       string                 `json:"message"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Tags          []string               `json:"tags,omitempty"`
	Device        *DeviceContext         `json:"device,omitempty"`
	Location      *LocationContext       `json:"location,omitempty"`
	User          *UserContext           `json:"user,omitempty"`
}

// Clone returns a deep enough copy for handing to providers: the metadata map
// is copied so a provider cannot mutate the queued entry.
func (e LogEntry) Clone() LogEntry {
	cp := e
	if e.Metadata != nil {
		cp.Metadata = make(map[string]interface{}, len(e.Metadata))
		for k, v := range e.Metadata {
			cp.Metadata[k] = v
		}
	}
	if e.Tags != nil {
		cp.Tags = append([]string(nil), e.Tags...)
	}
	return cp
}
