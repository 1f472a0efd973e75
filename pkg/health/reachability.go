// Package health computes the fleet overview KPIs and per-device
// reachability.
package health

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/driftwatch-net/driftwatch/pkg/snmp"
	"github.com/driftwatch-net/driftwatch/pkg/util"
)

// Reachability is the result of probing one device.
type Reachability struct {
	PingOK  bool  `json:"ping_ok"`
	SNMPOK  *bool `json:"snmp_ok,omitempty"`
	Warning bool  `json:"warning"`
}

// pinger is swappable for tests.
var runPing = func(ctx context.Context, host string, timeoutSeconds int) error {
	return exec.CommandContext(ctx, "ping", "-c", "1",
		"-W", fmt.Sprintf("%d", timeoutSeconds), host).Run()
}

// CheckReachability pings the host and, when an SNMP community is
// known, issues one sysDescr GET. Warning means the ping failed or
// SNMP answered badly.
func CheckReachability(ctx context.Context, host, community string, timeoutSeconds int) Reachability {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 2
	}
	r := Reachability{}

	pingCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSeconds+1)*time.Second)
	defer cancel()
	r.PingOK = runPing(pingCtx, host, timeoutSeconds) == nil

	if community != "" {
		collector := snmp.NewCollector(host, community)
		_, err := collector.SysDescr(ctx)
		ok := err == nil
		r.SNMPOK = &ok
		if err != nil {
			util.WithDevice(host).Debugf("snmp probe failed: %v", err)
		}
	}

	r.Warning = !r.PingOK || (r.SNMPOK != nil && !*r.SNMPOK)
	return r
}
