package hunt

import (
	"strings"

	"secops-service/internal/model"
)

// RecommendActions derives a finding's recommended actions from three rule
// families: severity-based, indicator-type-based and tag-based. Order is
// stable and duplicates are removed.
func RecommendActions(f model.HuntFinding) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(action string) {
		if !seen[action] {
			seen[action] = true
			out = append(out, action)
		}
	}

	switch f.Severity {
	case model.SeverityCritical:
		add("Immediately isolate affected systems")
		add("Initiate incident response procedures")
	case model.SeverityHigh:
		add("Prioritize investigation of affected systems")
		add("Review related authentication activity")
	case model.SeverityMedium:
		add("Schedule follow-up investigation")
	default:
		add("Document and monitor")
	}

	for _, ind := range f.Indicators {
		switch ind.Type {
		case model.IndicatorIP:
			if ind.IsMalicious {
				add("Block malicious IP addresses")
			} else {
				add("Add IP addresses to watchlist")
			}
		case model.IndicatorDomain:
			add("Sinkhole suspicious domains")
		case model.IndicatorHash:
			add("Push file hashes to endpoint protection")
		case model.IndicatorEmail:
			add("Quarantine related email messages")
		case model.IndicatorURL:
			add("Block URLs at the web proxy")
		}
	}

	for _, tag := range f.Tags {
		switch strings.ToLower(tag) {
		case "lateral_movement":
			add("Audit east-west network traffic")
		case "persistence":
			add("Review scheduled tasks and startup items")
		case "exfiltration":
			add("Review egress traffic for data staging")
		case "credential_access":
			add("Force credential rotation for affected accounts")
		}
	}

	return out
}
