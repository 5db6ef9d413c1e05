package model

import "time"

// -------------------- THREAT INDICATOR --------------------

type IndicatorType string

const (
	IndicatorIP        IndicatorType = "ip"
	IndicatorDomain    IndicatorType = "domain"
	IndicatorHash      IndicatorType = "hash"
	IndicatorEmail     IndicatorType = "email"
	IndicatorURL       IndicatorType = "url"
	IndicatorUserAgent IndicatorType = "user_agent"
)

// NormalizeIndicatorType maps the variant spellings used by upstream feeds
// onto the canonical set. Unknown types pass through unchanged.
func NormalizeIndicatorType(t string) IndicatorType {
	switch t {
	case "ip_address", "ipv4", "ipv6":
		return IndicatorIP
	case "file_hash", "md5", "sha1", "sha256":
		return IndicatorHash
	case "hostname", "fqdn":
		return IndicatorDomain
	default:
		return IndicatorType(t)
	}
}

type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Score maps a qualitative confidence onto the 0-100 scale used when scoring
// alerts.
func (c Confidence) Score() int {
	switch c {
	case ConfidenceHigh:
		return 90
	case ConfidenceMedium:
		return 70
	case ConfidenceLow:
		return 40
	}
	return 50
}

// ThreatIndicator is the canonical indicator shape shared by the pipeline, the
// SOC engine and hunts.
type ThreatIndicator struct {
	Type        IndicatorType `json:"type"`
	Value       string        `json:"value"`
	Confidence  Confidence    `json:"confidence"`
	Source      string        `json:"source"`
	FirstSeen   time.Time     `json:"first_seen"`
	LastSeen    time.Time     `json:"last_seen"`
	IsMalicious bool          `json:"is_malicious"`
}
