package schema

import "strings"

// Severity classifies a drift report. The ordering is total: a worse
// finding always maps to a strictly higher value.
type Severity int

const (
	SeverityCompliant Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityLabels = map[Severity]string{
	SeverityCompliant: "COMPLIANT",
	SeverityLow:       "LOW",
	SeverityMedium:    "MEDIUM",
	SeverityHigh:      "HIGH",
	SeverityCritical:  "CRITICAL",
}

func (s Severity) String() string {
	if l, ok := severityLabels[s]; ok {
		return l
	}
	return "UNKNOWN"
}

// Max returns the worse of two severities.
func (s Severity) Max(other Severity) Severity {
	if other > s {
		return other
	}
	return s
}

// SeverityRank orders incident severity labels for min-severity filters.
// Incidents carry two labels the classifier never emits (INFO, WARNING).
var SeverityRank = map[string]int{
	"CRITICAL": 5,
	"HIGH":     4,
	"MEDIUM":   3,
	"WARNING":  2,
	"LOW":      1,
	"INFO":     0,
}

// OpenIncidentStatuses are the states an incident counts as open in.
// "novo" is the legacy spelling of "new" kept for stored rows.
var OpenIncidentStatuses = []string{"new", "novo", "em_analise"}

// NormalizeStatus maps legacy status spellings to their canonical form.
func NormalizeStatus(status string) string {
	s := strings.ToLower(strings.TrimSpace(status))
	if s == "new" {
		return "novo"
	}
	return s
}

// StatusFilterValues expands a requested status filter to every stored
// spelling that should match it.
func StatusFilterValues(status string) []string {
	switch NormalizeStatus(status) {
	case "novo":
		return []string{"novo", "new"}
	case "":
		return nil
	default:
		return []string{NormalizeStatus(status)}
	}
}
