package incident

import "secops-service/internal/model"

// Impact assessments and notification flags are pure functions of severity,
// category and affected counts, so creation is deterministic and testable.

func businessImpact(sev model.Severity, users, systems int) model.ImpactLevel {
	switch {
	case sev == model.SeverityCritical || users > 1000:
		return model.ImpactSevere
	case sev == model.SeverityHigh || users > 500:
		return model.ImpactMajor
	case sev == model.SeverityMedium || users > 100:
		return model.ImpactModerate
	case users > 0 || systems > 0:
		return model.ImpactMinor
	default:
		return model.ImpactNone
	}
}

func dataImpact(sev model.Severity, cat model.IncidentCategory) model.ImpactLevel {
	switch cat {
	case model.IncidentDataBreach:
		if sev == model.SeverityCritical {
			return model.ImpactSevere
		}
		if sev == model.SeverityHigh {
			return model.ImpactMajor
		}
		return model.ImpactModerate
	case model.IncidentUnauthorizedAccess, model.IncidentInsiderThreat:
		if sev == model.SeverityCritical || sev == model.SeverityHigh {
			return model.ImpactModerate
		}
		return model.ImpactMinor
	case model.IncidentComplianceViolation:
		return model.ImpactModerate
	default:
		return model.ImpactNone
	}
}

func reputationalImpact(sev model.Severity, cat model.IncidentCategory) model.ImpactLevel {
	if cat == model.IncidentDataBreach && sev == model.SeverityCritical {
		return model.ImpactSevere
	}
	switch sev {
	case model.SeverityCritical:
		return model.ImpactMajor
	case model.SeverityHigh:
		return model.ImpactModerate
	case model.SeverityMedium:
		return model.ImpactMinor
	default:
		return model.ImpactNone
	}
}

func regulatoryNotification(sev model.Severity, cat model.IncidentCategory, dataImp model.ImpactLevel) bool {
	if cat == model.IncidentDataBreach || cat == model.IncidentComplianceViolation {
		return sev == model.SeverityCritical || sev == model.SeverityHigh
	}
	return dataImp == model.ImpactSevere || dataImp == model.ImpactMajor
}

func customerNotification(cat model.IncidentCategory, users int, bizImp model.ImpactLevel) bool {
	if cat == model.IncidentDataBreach && users > 0 {
		return true
	}
	return bizImp == model.ImpactSevere
}

func executiveNotification(sev model.Severity, priority int, bizImp model.ImpactLevel) bool {
	return sev == model.SeverityCritical || priority == 1 ||
		bizImp == model.ImpactSevere || bizImp == model.ImpactMajor
}

// assignTeam routes the incident to a responder tier.
func assignTeam(sev model.Severity, cat model.IncidentCategory) model.ResponseTeam {
	if sev == model.SeverityCritical &&
		(cat == model.IncidentDataBreach || cat == model.IncidentComplianceViolation) {
		return model.TeamCISO
	}
	if sev == model.SeverityCritical || sev == model.SeverityHigh {
		return model.TeamSOC
	}
	return model.TeamDevSecOps
}
