// Package diff compares two device configuration snapshots and
// classifies the result. Firewall rules get a specialized position-aware
// comparator because rule order is security-critical: a swapped pair can
// shadow a restrictive rule without changing any single rule's text.
package diff

import (
	"fmt"

	"github.com/driftwatch-net/driftwatch/pkg/schema"
)

// FieldChange records one value difference between baseline and current.
type FieldChange struct {
	Expected interface{} `json:"expected"`
	Actual   interface{} `json:"actual"`
}

// ListItemChange records per-field differences of one list element.
type ListItemChange struct {
	Index   int                    `json:"index"`
	Changes map[string]FieldChange `json:"changes"`
}

// ListItemPresence records a list element present on only one side.
type ListItemPresence struct {
	Index int         `json:"index"`
	Item  interface{} `json:"item"`
}

// RuleAt is a firewall rule present on only one side.
type RuleAt struct {
	Index int                 `json:"index"`
	Rule  schema.FirewallRule `json:"rule"`
}

// ParameterDrift is a rule whose identity (comment) held but whose
// other fields changed.
type ParameterDrift struct {
	Index   int                    `json:"index"`
	Comment string                 `json:"comment"`
	Changes map[string]FieldChange `json:"changes"`
}

// PositionDrift is an index occupied by rules of different identity.
type PositionDrift struct {
	Index           int                 `json:"index"`
	ExpectedComment string              `json:"expected_comment"`
	ActualComment   string              `json:"actual_comment"`
	ExpectedRule    schema.FirewallRule `json:"expected_rule"`
	ActualRule      schema.FirewallRule `json:"actual_rule"`
}

// FirewallAudit is the position-aware comparison of two rule lists.
type FirewallAudit struct {
	PositionDrift  []PositionDrift  `json:"position_drift"`
	ParameterDrift []ParameterDrift `json:"parameter_drift"`
	MissingRules   []RuleAt         `json:"missing_rules"`
	ExtraRules     []RuleAt         `json:"extra_rules"`
}

// Empty reports whether every firewall bucket is empty.
func (f *FirewallAudit) Empty() bool {
	return len(f.PositionDrift) == 0 && len(f.ParameterDrift) == 0 &&
		len(f.MissingRules) == 0 && len(f.ExtraRules) == 0
}

// Report holds every detected divergence between a baseline and a
// current snapshot. Added/Removed/Modified are keyed by field name;
// scalar fields map to a value or FieldChange, list fields map to
// slices of per-index entries.
type Report struct {
	Added    map[string]interface{} `json:"added"`
	Removed  map[string]interface{} `json:"removed"`
	Modified map[string]interface{} `json:"modified"`
	Firewall FirewallAudit          `json:"firewall_audit"`
}

// NewReport returns an empty report with allocated bags.
func NewReport() *Report {
	return &Report{
		Added:    map[string]interface{}{},
		Removed:  map[string]interface{}{},
		Modified: map[string]interface{}{},
	}
}

// HasDrift reports whether any bag or firewall bucket is non-empty.
func (r *Report) HasDrift() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0 || len(r.Modified) > 0 ||
		!r.Firewall.Empty()
}

// Summary renders a single-line count of each bag.
func (r *Report) Summary() string {
	return fmt.Sprintf(
		"DriftReport(added=%d, removed=%d, modified=%d, fw_position=%d, fw_parameter=%d, fw_missing=%d, fw_extra=%d)",
		len(r.Added), len(r.Removed), len(r.Modified),
		len(r.Firewall.PositionDrift), len(r.Firewall.ParameterDrift),
		len(r.Firewall.MissingRules), len(r.Firewall.ExtraRules))
}
