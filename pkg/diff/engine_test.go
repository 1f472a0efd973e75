package diff

import (
	"testing"

	"github.com/driftwatch-net/driftwatch/internal/testutil"
	"github.com/driftwatch-net/driftwatch/pkg/schema"
)

func TestCompareIdentity(t *testing.T) {
	base := testutil.BaseConfig(t)
	clone := testutil.CloneConfig(t, base)

	r := Compare(base, clone, nil)
	if r.HasDrift() {
		t.Errorf("identical configs reported drift: %s", r.Summary())
	}
	if Classify(r) != schema.SeverityCompliant {
		t.Errorf("identical configs classified %v, want COMPLIANT", Classify(r))
	}
}

// collected_at differs between any two snapshots and must never count
// as drift on its own.
func TestCompareExcludesCollectedAt(t *testing.T) {
	base := testutil.BaseConfig(t)
	current := testutil.CloneConfig(t, base)
	current.CollectedAt = base.CollectedAt.Add(3600e9)

	if r := Compare(base, current, nil); r.HasDrift() {
		t.Errorf("collected_at change reported as drift: %s", r.Summary())
	}
}

func TestCompareScalarDrift(t *testing.T) {
	base := testutil.BaseConfig(t)
	current := testutil.CloneConfig(t, base)
	current.OSVersion = "7.15.1"

	r := Compare(base, current, nil)
	change, ok := r.Modified["os_version"].(FieldChange)
	if !ok {
		t.Fatalf("os_version not in modified: %v", r.Modified)
	}
	if change.Expected != "7.14.2" || change.Actual != "7.15.1" {
		t.Errorf("change = %+v", change)
	}
	if got := Classify(r); got != schema.SeverityLow {
		t.Errorf("scalar-only drift classified %v, want LOW", got)
	}
}

func TestCompareListDrift(t *testing.T) {
	base := testutil.BaseConfig(t)
	current := testutil.CloneConfig(t, base)
	mtu := 9000
	current.Interfaces[0].MTU = &mtu

	r := Compare(base, current, nil)
	changes, ok := r.Modified["interfaces"].([]ListItemChange)
	if !ok || len(changes) != 1 {
		t.Fatalf("interfaces modified = %v", r.Modified["interfaces"])
	}
	if changes[0].Index != 0 {
		t.Errorf("change at index %d, want 0", changes[0].Index)
	}
	if _, ok := changes[0].Changes["mtu"]; !ok {
		t.Errorf("mtu change not recorded: %v", changes[0].Changes)
	}
	if got := Classify(r); got != schema.SeverityMedium {
		t.Errorf("list drift classified %v, want MEDIUM", got)
	}
}

func TestCompareRouteAddedRemoved(t *testing.T) {
	base := testutil.BaseConfig(t)
	current := testutil.CloneConfig(t, base)
	current.Routes = current.Routes[:1]

	r := Compare(base, current, nil)
	removed, ok := r.Removed["routes"].([]ListItemPresence)
	if !ok || len(removed) != 1 || removed[0].Index != 1 {
		t.Fatalf("removed routes = %v", r.Removed["routes"])
	}

	// symmetric: swapping sides moves the entry to added
	r2 := Compare(current, base, nil)
	added, ok := r2.Added["routes"].([]ListItemPresence)
	if !ok || len(added) != 1 || added[0].Index != 1 {
		t.Fatalf("added routes = %v", r2.Added["routes"])
	}
	if r.HasDrift() != r2.HasDrift() {
		t.Error("has_drift should be symmetric under side swap")
	}
}

func rules(specs ...schema.FirewallRule) []schema.FirewallRule { return specs }

func TestCompareFirewallIdentical(t *testing.T) {
	list := rules(
		schema.FirewallRule{Chain: "input", Action: "accept", Comment: "ssh"},
		schema.FirewallRule{Chain: "input", Action: "drop", Comment: "default"},
	)
	audit := CompareFirewall(list, list)
	if !audit.Empty() {
		t.Errorf("identical lists produced drift: %+v", audit)
	}
}

func TestCompareFirewallParameterDrift(t *testing.T) {
	expected := rules(schema.FirewallRule{Chain: "input", Action: "accept", DstPort: "22", Comment: "ssh"})
	actual := rules(schema.FirewallRule{Chain: "input", Action: "accept", DstPort: "2222", Comment: "ssh"})

	audit := CompareFirewall(expected, actual)
	if len(audit.ParameterDrift) != 1 {
		t.Fatalf("ParameterDrift = %+v", audit.ParameterDrift)
	}
	drift := audit.ParameterDrift[0]
	if drift.Index != 0 || drift.Comment != "ssh" {
		t.Errorf("drift = %+v", drift)
	}
	if _, ok := drift.Changes["dst_port"]; !ok {
		t.Errorf("dst_port change not recorded: %v", drift.Changes)
	}
	if len(audit.PositionDrift)+len(audit.MissingRules)+len(audit.ExtraRules) != 0 {
		t.Errorf("other buckets should stay empty: %+v", audit)
	}
}

func TestCompareFirewallPositionDrift(t *testing.T) {
	expected := rules(
		schema.FirewallRule{Chain: "input", Action: "accept", Comment: "ssh"},
		schema.FirewallRule{Chain: "input", Action: "drop", Comment: "default"},
	)
	// swapped order: both indices must report position drift, the
	// comparator never re-pairs
	actual := rules(expected[1], expected[0])

	audit := CompareFirewall(expected, actual)
	if len(audit.PositionDrift) != 2 {
		t.Fatalf("PositionDrift = %+v", audit.PositionDrift)
	}
	if audit.PositionDrift[0].ExpectedComment != "ssh" || audit.PositionDrift[0].ActualComment != "default" {
		t.Errorf("drift[0] = %+v", audit.PositionDrift[0])
	}
	if len(audit.ParameterDrift)+len(audit.MissingRules)+len(audit.ExtraRules) != 0 {
		t.Errorf("other buckets should stay empty: %+v", audit)
	}
}

func TestCompareFirewallMissingExtra(t *testing.T) {
	expected := rules(
		schema.FirewallRule{Chain: "input", Action: "accept", Comment: "ssh"},
		schema.FirewallRule{Chain: "input", Action: "drop", Comment: "default"},
	)

	audit := CompareFirewall(expected, expected[:1])
	if len(audit.MissingRules) != 1 || audit.MissingRules[0].Index != 1 {
		t.Errorf("MissingRules = %+v", audit.MissingRules)
	}

	audit = CompareFirewall(expected[:1], expected)
	if len(audit.ExtraRules) != 1 || audit.ExtraRules[0].Index != 1 {
		t.Errorf("ExtraRules = %+v", audit.ExtraRules)
	}
}

// Every index lands in exactly one bucket.
func TestCompareFirewallPerIndexExclusivity(t *testing.T) {
	expected := rules(
		schema.FirewallRule{Chain: "input", Action: "accept", Comment: "a"},
		schema.FirewallRule{Chain: "input", Action: "accept", DstPort: "22", Comment: "b"},
		schema.FirewallRule{Chain: "input", Action: "drop", Comment: "c"},
	)
	actual := rules(
		expected[0],                                                               // identical
		schema.FirewallRule{Chain: "input", Action: "accept", DstPort: "23", Comment: "b"}, // parameter
		schema.FirewallRule{Chain: "forward", Action: "drop", Comment: "z"},                // position
		schema.FirewallRule{Chain: "input", Action: "accept", Comment: "extra"},            // extra
	)

	audit := CompareFirewall(expected, actual)
	seen := map[int]int{}
	for _, d := range audit.ParameterDrift {
		seen[d.Index]++
	}
	for _, d := range audit.PositionDrift {
		seen[d.Index]++
	}
	for _, d := range audit.MissingRules {
		seen[d.Index]++
	}
	for _, d := range audit.ExtraRules {
		seen[d.Index]++
	}
	for idx, n := range seen {
		if n != 1 {
			t.Errorf("index %d appears in %d buckets", idx, n)
		}
	}
	if seen[0] != 0 {
		t.Error("identical index 0 should appear in no bucket")
	}
	if len(audit.ParameterDrift) != 1 || len(audit.PositionDrift) != 1 || len(audit.ExtraRules) != 1 {
		t.Errorf("audit = %+v", audit)
	}
}

func TestClassifyWorstCase(t *testing.T) {
	base := testutil.BaseConfig(t)

	// parameter drift only: MEDIUM
	current := testutil.CloneConfig(t, base)
	current.FirewallRules[0].DstPort = "2222"
	r := Compare(base, current, nil)
	if got := Classify(r); got != schema.SeverityMedium {
		t.Errorf("parameter drift classified %v, want MEDIUM", got)
	}

	// missing rule: HIGH
	current = testutil.CloneConfig(t, base)
	current.FirewallRules = current.FirewallRules[:2]
	r = Compare(base, current, nil)
	if got := Classify(r); got != schema.SeverityHigh {
		t.Errorf("missing rule classified %v, want HIGH", got)
	}

	// position drift dominates everything: CRITICAL
	current = testutil.CloneConfig(t, base)
	current.FirewallRules[0], current.FirewallRules[2] = current.FirewallRules[2], current.FirewallRules[0]
	current.OSVersion = "7.15.1"
	r = Compare(base, current, nil)
	if got := Classify(r); got != schema.SeverityCritical {
		t.Errorf("position drift classified %v, want CRITICAL", got)
	}
}

func TestReportSummary(t *testing.T) {
	base := testutil.BaseConfig(t)
	current := testutil.CloneConfig(t, base)
	current.Hostname = "core-sw1-renamed"

	r := Compare(base, current, nil)
	if !r.HasDrift() {
		t.Fatal("hostname change should be drift")
	}
	if summary := r.Summary(); summary == "" {
		t.Error("summary should not be empty")
	}
}
