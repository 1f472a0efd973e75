package health

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/driftwatch-net/driftwatch/internal/testutil"
	"github.com/driftwatch-net/driftwatch/pkg/schema"
)

func stubPing(t *testing.T, err error) *string {
	t.Helper()
	var gotHost string
	orig := runPing
	runPing = func(_ context.Context, host string, _ int) error {
		gotHost = host
		return err
	}
	t.Cleanup(func() { runPing = orig })
	return &gotHost
}

func TestCheckReachabilityPingOnly(t *testing.T) {
	gotHost := stubPing(t, nil)

	r := CheckReachability(testutil.Context(t), "10.0.0.1", "", 2)
	if !r.PingOK || r.Warning {
		t.Errorf("reachability = %+v", r)
	}
	if r.SNMPOK != nil {
		t.Errorf("SNMPOK = %v, no community means no SNMP probe", *r.SNMPOK)
	}
	if *gotHost != "10.0.0.1" {
		t.Errorf("pinged %q", *gotHost)
	}
}

func TestCheckReachabilityPingFailure(t *testing.T) {
	stubPing(t, errors.New("exit status 1"))

	r := CheckReachability(testutil.Context(t), "10.0.0.1", "", 0)
	if r.PingOK {
		t.Error("PingOK should be false")
	}
	if !r.Warning {
		t.Error("failed ping must raise the warning flag")
	}
}

func seedOverviewStore(t *testing.T) *Overview {
	t.Helper()
	st := testutil.TempStore(t)

	for i, name := range []string{"sw1", "sw2", "sw3"} {
		d := testutil.Device("acme", name)
		d.Host = fmt.Sprintf("10.0.0.%d", i+1)
		if err := st.CreateDevice(d); err != nil {
			t.Fatal(err)
		}
	}

	push := func(device, severity string) int64 {
		id, err := st.PushIncident("acme", device, severity, "config_drift", "drift", nil)
		if err != nil {
			t.Fatal(err)
		}
		return id
	}
	push("sw1", "CRITICAL")
	push("sw1", "LOW")
	push("sw2", "MEDIUM")
	resolved := push("sw3", "HIGH")
	if err := st.UpdateIncidentStatus(resolved, "resolvido"); err != nil {
		t.Fatal(err)
	}

	return &Overview{Store: st}
}

func TestOverviewBundle(t *testing.T) {
	o := seedOverviewStore(t)

	bundle, err := o.Bundle(testutil.Context(t))
	if err != nil {
		t.Fatalf("Bundle: %v", err)
	}

	devices := bundle["devices"].(map[string]interface{})
	if devices["total"] != 3 {
		t.Errorf("total = %v", devices["total"])
	}
	// sw1 carries a CRITICAL (with_incident), sw2 only a MEDIUM
	// (warning), sw3's HIGH is resolved so it counts healthy
	if devices["with_incident"] != 1 || devices["warning"] != 1 || devices["healthy"] != 1 {
		t.Errorf("devices = %+v", devices)
	}

	incidents := bundle["incidents"].(map[string]interface{})
	if incidents["open"] != 3 {
		t.Errorf("open = %v", incidents["open"])
	}
	if incidents["critical"] != 1 || incidents["warning"] != 1 || incidents["info"] != 1 {
		t.Errorf("incidents = %+v", incidents)
	}

	recent := bundle["recent_incidents"].([]map[string]interface{})
	if len(recent) != 4 {
		t.Errorf("recent = %d entries", len(recent))
	}
	for _, inc := range recent {
		status := inc["status"].(string)
		if status != schema.NormalizeStatus(status) {
			t.Errorf("recent status %q not normalized", status)
		}
	}

	if _, ok := bundle["remediation"]; !ok {
		t.Error("remediation block missing")
	}
	if _, ok := bundle["slo"]; !ok {
		t.Error("slo block missing")
	}
}

// a nil redis client is valid: the bundle is computed directly
func TestOverviewBundleNoRedis(t *testing.T) {
	o := seedOverviewStore(t)
	if o.Redis != nil {
		t.Fatal("test wants a cacheless overview")
	}
	if _, err := o.Bundle(testutil.Context(t)); err != nil {
		t.Fatalf("Bundle without redis: %v", err)
	}
}
