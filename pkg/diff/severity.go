package diff

import "github.com/driftwatch-net/driftwatch/pkg/schema"

// Classify maps a report to its worst-case severity. Each rule that
// fires raises the floor; the result is the maximum over all of them.
func Classify(r *Report) schema.Severity {
	if !r.HasDrift() {
		return schema.SeverityCompliant
	}

	sev := schema.SeverityCompliant

	if hasScalarDrift(r) {
		sev = sev.Max(schema.SeverityLow)
	}
	if hasListDrift(r) {
		sev = sev.Max(schema.SeverityMedium)
	}
	if len(r.Firewall.ParameterDrift) > 0 {
		sev = sev.Max(schema.SeverityMedium)
	}
	if len(r.Firewall.MissingRules) > 0 || len(r.Firewall.ExtraRules) > 0 {
		sev = sev.Max(schema.SeverityHigh)
	}
	if len(r.Firewall.PositionDrift) > 0 {
		sev = sev.Max(schema.SeverityCritical)
	}

	// any drift at all is at least LOW
	return sev.Max(schema.SeverityLow)
}

func hasScalarDrift(r *Report) bool {
	return anyScalarKey(r.Added) || anyScalarKey(r.Removed) || anyScalarKey(r.Modified)
}

func hasListDrift(r *Report) bool {
	for f := range listFields {
		if _, ok := r.Added[f]; ok {
			return true
		}
		if _, ok := r.Removed[f]; ok {
			return true
		}
		if _, ok := r.Modified[f]; ok {
			return true
		}
	}
	return false
}

func anyScalarKey(bag map[string]interface{}) bool {
	for k := range bag {
		if !listFields[k] {
			return true
		}
	}
	return false
}
