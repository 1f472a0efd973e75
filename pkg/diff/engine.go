package diff

import (
	"encoding/json"
	"reflect"
	"sort"

	"github.com/driftwatch-net/driftwatch/pkg/schema"
)

// DefaultExclude lists the fields skipped by every comparison unless
// the caller overrides the set.
var DefaultExclude = []string{"collected_at"}

// list-typed fields handled by the ordinal comparator, never by the
// scalar walk
var listFields = map[string]bool{
	"interfaces":     true,
	"routes":         true,
	"firewall_rules": true,
}

// Compare produces a drift report for (baseline, current). Field names
// in exclude are skipped entirely; nil means DefaultExclude.
func Compare(baseline, current *schema.DeviceConfig, exclude []string) *Report {
	if exclude == nil {
		exclude = DefaultExclude
	}
	skip := make(map[string]bool, len(exclude))
	for _, f := range exclude {
		skip[f] = true
	}

	r := NewReport()
	compareScalars(r, baseline, current, skip)
	if !skip["interfaces"] {
		compareList(r, "interfaces", toItems(baseline.Interfaces), toItems(current.Interfaces))
	}
	if !skip["routes"] {
		compareList(r, "routes", toItems(baseline.Routes), toItems(current.Routes))
	}
	if !skip["firewall_rules"] {
		r.Firewall = CompareFirewall(baseline.FirewallRules, current.FirewallRules)
	}
	return r
}

// compareScalars walks the union of non-list top-level fields. A field
// present on one side only lands in added/removed; a value difference
// lands in modified.
func compareScalars(r *Report, baseline, current *schema.DeviceConfig, skip map[string]bool) {
	exp := scalarMap(baseline)
	act := scalarMap(current)

	keys := make([]string, 0, len(exp)+len(act))
	seen := map[string]bool{}
	for k := range exp {
		keys = append(keys, k)
		seen[k] = true
	}
	for k := range act {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		if skip[k] || listFields[k] {
			continue
		}
		ev, inExp := exp[k]
		av, inAct := act[k]
		switch {
		case inExp && !inAct:
			r.Removed[k] = ev
		case !inExp && inAct:
			r.Added[k] = av
		case !reflect.DeepEqual(ev, av):
			r.Modified[k] = FieldChange{Expected: ev, Actual: av}
		}
	}
}

// scalarMap projects the aggregate to its scalar fields via its JSON
// form, so presence tracks the wire shape (omitted optionals are
// absent, not zero).
func scalarMap(cfg *schema.DeviceConfig) map[string]interface{} {
	m := itemMap(cfg)
	for f := range listFields {
		delete(m, f)
	}
	return m
}

// compareList performs ordinal comparison of two item lists.
func compareList(r *Report, field string, expected, actual []map[string]interface{}) {
	var modified []ListItemChange
	var added, removed []ListItemPresence

	n := len(expected)
	if len(actual) < n {
		n = len(actual)
	}
	for i := 0; i < n; i++ {
		changes := itemChanges(expected[i], actual[i])
		if len(changes) > 0 {
			modified = append(modified, ListItemChange{Index: i, Changes: changes})
		}
	}
	for i := n; i < len(actual); i++ {
		added = append(added, ListItemPresence{Index: i, Item: actual[i]})
	}
	for i := n; i < len(expected); i++ {
		removed = append(removed, ListItemPresence{Index: i, Item: expected[i]})
	}

	if len(modified) > 0 {
		r.Modified[field] = modified
	}
	if len(added) > 0 {
		r.Added[field] = added
	}
	if len(removed) > 0 {
		r.Removed[field] = removed
	}
}

// itemChanges diffs two items field by field over the union of keys.
func itemChanges(expected, actual map[string]interface{}) map[string]FieldChange {
	changes := map[string]FieldChange{}
	for k, ev := range expected {
		av, ok := actual[k]
		if !ok {
			changes[k] = FieldChange{Expected: ev, Actual: nil}
			continue
		}
		if !reflect.DeepEqual(ev, av) {
			changes[k] = FieldChange{Expected: ev, Actual: av}
		}
	}
	for k, av := range actual {
		if _, ok := expected[k]; !ok {
			changes[k] = FieldChange{Expected: nil, Actual: av}
		}
	}
	return changes
}

// CompareFirewall runs the position-aware comparator over two ordered
// rule lists. Per index: identical rules produce nothing; same comment
// with other differences is parameter drift; different comments is
// position drift. Indices past either list end are missing or extra
// rules. The comparator deliberately never re-pairs across indices; a
// swap reports as two position-drift entries.
func CompareFirewall(expected, actual []schema.FirewallRule) FirewallAudit {
	var audit FirewallAudit

	max := len(expected)
	if len(actual) > max {
		max = len(actual)
	}
	for i := 0; i < max; i++ {
		switch {
		case i >= len(actual):
			audit.MissingRules = append(audit.MissingRules, RuleAt{Index: i, Rule: expected[i]})
		case i >= len(expected):
			audit.ExtraRules = append(audit.ExtraRules, RuleAt{Index: i, Rule: actual[i]})
		case expected[i].Equal(actual[i]):
			// no drift at this index
		case expected[i].Comment == actual[i].Comment:
			audit.ParameterDrift = append(audit.ParameterDrift, ParameterDrift{
				Index:   i,
				Comment: expected[i].Comment,
				Changes: itemChanges(itemMap(expected[i]), itemMap(actual[i])),
			})
		default:
			audit.PositionDrift = append(audit.PositionDrift, PositionDrift{
				Index:           i,
				ExpectedComment: expected[i].Comment,
				ActualComment:   actual[i].Comment,
				ExpectedRule:    expected[i],
				ActualRule:      actual[i],
			})
		}
	}
	return audit
}

// itemMap flattens a value to its JSON field map.
func itemMap(v interface{}) map[string]interface{} {
	data, err := json.Marshal(v)
	if err != nil {
		return map[string]interface{}{}
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]interface{}{}
	}
	return m
}

func toItems[T any](items []T) []map[string]interface{} {
	out := make([]map[string]interface{}, len(items))
	for i := range items {
		out[i] = itemMap(items[i])
	}
	return out
}
