package alerts

import (
	"fmt"
	"time"

	"github.com/forenx/sentinel/internal/models"
)

// ParseSeverity validates a severity query parameter.
func ParseSeverity(s string) (models.Severity, error) {
	switch models.Severity(s) {
	case models.SeverityLow, models.SeverityMedium, models.SeverityHigh, models.SeverityCritical:
		return models.Severity(s), nil
	default:
		return "", fmt.Errorf("severity must be one of: low, medium, high, critical")
	}
}

// ParseType validates an attack-type query parameter.
func ParseType(s string) (models.AttackType, error) {
	t, ok := models.ParseAttackType(s)
	if !ok {
		return "", fmt.Errorf("unknown attack type %q", s)
	}
	return t, nil
}

// ParseTime validates an RFC3339 time query parameter.
func ParseTime(name, s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s time format (use RFC3339)", name)
	}
	return t, nil
}

// confidenceBand maps a severity bucket onto the [min, max) confidence
// range the store filters on. The top bucket has no upper bound.
func confidenceBand(sev models.Severity) (min, max float64) {
	min = sev.MinConfidence()
	switch sev {
	case models.SeverityLow:
		max = models.SeverityMedium.MinConfidence()
	case models.SeverityMedium:
		max = models.SeverityHigh.MinConfidence()
	case models.SeverityHigh:
		max = models.SeverityCritical.MinConfidence()
	default:
		max = 0
	}
	return min, max
}
