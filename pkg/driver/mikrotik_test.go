package driver

import (
	"errors"
	"testing"

	"github.com/driftwatch-net/driftwatch/internal/testutil"
	"github.com/driftwatch-net/driftwatch/pkg/schema"
	"github.com/driftwatch-net/driftwatch/pkg/util"
)

// captured from a CCR2004 running 7.14.2, trimmed
const exportFixture = `# 2026-08-01 12:00:00 by RouterOS 7.14.2
# software id = ABCD-1234
# model = CCR2004-1G-12S+2XS
/system identity
set name="core-sw1"
/interface
set default-name=ether1 name=ether1 mtu=1500 mac-address=aa:bb:cc:00:00:01
add name=vlan20 vlan-id=20 mtu=1500 interface=bridge1
add name=bridge1 disabled=yes comment="distribution bridge"
/ip address
add address=10.0.0.1/24 interface=ether1
add address=10.0.20.1/24 interface=vlan20
/ip route
add dst-address=0.0.0.0/0 gateway=10.0.0.254
add dst-address=192.168.50.0/24 gateway=10.0.0.253 distance=5
/ip firewall filter
add chain=input action=accept protocol=tcp dst-port=22 src-address=10.0.0.0/24 \
    comment="mgmt ssh"
add chain=input action=accept protocol=icmp comment=ping
add chain=input action=drop comment="default drop"
add chain=forward comment="rule with no action"
`

func newTestDriver() *MikroTik {
	return NewMikroTik(schema.Credential{Host: "10.0.0.1", Username: "audit", Password: "x", Port: 22}, Options{})
}

func TestParseExportHeader(t *testing.T) {
	cfg, err := newTestDriver().ParseExport(exportFixture)
	if err != nil {
		t.Fatalf("ParseExport: %v", err)
	}
	if cfg.Hostname != "core-sw1" {
		t.Errorf("Hostname = %q", cfg.Hostname)
	}
	if cfg.OSVersion != "7.14.2" {
		t.Errorf("OSVersion = %q", cfg.OSVersion)
	}
	if cfg.Model != "CCR2004-1G-12S+2XS" {
		t.Errorf("Model = %q", cfg.Model)
	}
	if cfg.Vendor != "mikrotik" {
		t.Errorf("Vendor = %q", cfg.Vendor)
	}
	if cfg.CollectedAt.IsZero() {
		t.Error("CollectedAt not stamped")
	}
}

// an export without /system identity falls back to the session host
func TestParseExportNoIdentity(t *testing.T) {
	cfg, err := newTestDriver().ParseExport("# by RouterOS 7.14.2\n/interface\nadd name=ether1\n")
	if err != nil {
		t.Fatalf("ParseExport: %v", err)
	}
	if cfg.Hostname != "10.0.0.1" {
		t.Errorf("Hostname = %q, want session host", cfg.Hostname)
	}
}

func TestParseExportInterfaces(t *testing.T) {
	cfg, err := newTestDriver().ParseExport(exportFixture)
	if err != nil {
		t.Fatalf("ParseExport: %v", err)
	}
	if len(cfg.Interfaces) != 3 {
		t.Fatalf("interfaces = %d, want 3: %+v", len(cfg.Interfaces), cfg.Interfaces)
	}

	byName := map[string]schema.Interface{}
	for _, iface := range cfg.Interfaces {
		byName[iface.Name] = iface
	}

	ether1 := byName["ether1"]
	if ether1.Type != schema.InterfaceEther {
		t.Errorf("ether1 type = %q", ether1.Type)
	}
	if ether1.MACAddress != "AA:BB:CC:00:00:01" {
		t.Errorf("ether1 mac = %q, not normalized", ether1.MACAddress)
	}
	if len(ether1.IPAddresses) != 1 || ether1.IPAddresses[0] != "10.0.0.1/24" {
		t.Errorf("ether1 addresses = %v, /ip address not merged", ether1.IPAddresses)
	}
	if ether1.MTU == nil || *ether1.MTU != 1500 {
		t.Errorf("ether1 mtu = %v", ether1.MTU)
	}

	vlan20 := byName["vlan20"]
	if vlan20.Type != schema.InterfaceVLAN || vlan20.VLANID == nil || *vlan20.VLANID != 20 {
		t.Errorf("vlan20 = %+v", vlan20)
	}
	if len(vlan20.IPAddresses) != 1 || vlan20.IPAddresses[0] != "10.0.20.1/24" {
		t.Errorf("vlan20 addresses = %v", vlan20.IPAddresses)
	}

	bridge1 := byName["bridge1"]
	if bridge1.Enabled {
		t.Error("bridge1 should be disabled")
	}
	if bridge1.Comment != "distribution bridge" {
		t.Errorf("bridge1 comment = %q, quoted value mangled", bridge1.Comment)
	}
}

func TestParseExportRoutes(t *testing.T) {
	cfg, err := newTestDriver().ParseExport(exportFixture)
	if err != nil {
		t.Fatalf("ParseExport: %v", err)
	}
	if len(cfg.Routes) != 2 {
		t.Fatalf("routes = %+v", cfg.Routes)
	}
	if cfg.Routes[0].Destination != "0.0.0.0/0" || cfg.Routes[0].Gateway != "10.0.0.254" {
		t.Errorf("default route = %+v", cfg.Routes[0])
	}
	if cfg.Routes[0].Distance != 1 {
		t.Errorf("distance = %d, want implicit 1", cfg.Routes[0].Distance)
	}
	if cfg.Routes[1].Distance != 5 {
		t.Errorf("distance = %d, want 5", cfg.Routes[1].Distance)
	}
}

func TestParseExportFirewall(t *testing.T) {
	cfg, err := newTestDriver().ParseExport(exportFixture)
	if err != nil {
		t.Fatalf("ParseExport: %v", err)
	}
	// the action-less rule is dropped, the valid three survive
	if len(cfg.FirewallRules) != 3 {
		t.Fatalf("rules = %+v", cfg.FirewallRules)
	}

	ssh := cfg.FirewallRules[0]
	if ssh.Comment != "mgmt ssh" {
		t.Errorf("comment = %q, line continuation not folded", ssh.Comment)
	}
	if ssh.DstPort != "22" || ssh.Protocol != "tcp" || ssh.SrcAddress != "10.0.0.0/24" {
		t.Errorf("ssh rule = %+v", ssh)
	}
	if cfg.FirewallRules[2].Action != "drop" {
		t.Errorf("rule order not preserved: %+v", cfg.FirewallRules)
	}
}

func TestParseARP(t *testing.T) {
	raw := ` 0 DC address=10.0.0.5 mac-address=aa:bb:cc:dd:ee:01 interface=bridge1
 1 DC address=10.0.0.6 mac-address=aa:bb:cc:dd:ee:02 interface=bridge1
 2  address=10.0.0.7 interface=bridge1
`
	entries := newTestDriver().ParseARP(raw)
	if len(entries) != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].IPAddress != "10.0.0.5" || entries[0].MACAddress != "AA:BB:CC:DD:EE:01" {
		t.Errorf("entry = %+v", entries[0])
	}
	if entries[0].Interface != "bridge1" {
		t.Errorf("interface = %q", entries[0].Interface)
	}
}

// Truncated captures can cut a quoted value short of its closing
// quote; the parser must take the rest of the line, not walk past it.
func TestParseAssignmentsUnterminatedQuote(t *testing.T) {
	fields := parseAssignments(`add chain=input comment="mgmt ssh`)
	if fields["chain"] != "input" {
		t.Errorf("chain = %q", fields["chain"])
	}
	if fields["comment"] != `"mgmt ssh` {
		t.Errorf("comment = %q", fields["comment"])
	}
}

func TestParseARPTruncatedLine(t *testing.T) {
	raw := ` 0 DC address=10.0.0.5 mac-address=aa:bb:cc:dd:ee:01 comment="oops`
	entries := newTestDriver().ParseARP(raw)
	if len(entries) != 1 {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].IPAddress != "10.0.0.5" || entries[0].MACAddress != "AA:BB:CC:DD:EE:01" {
		t.Errorf("entry = %+v", entries[0])
	}
}

func TestParseBridgeHosts(t *testing.T) {
	raw := ` 0 D mac-address=aa:bb:cc:dd:ee:20 on-interface=ether3 vid=20 bridge=bridge1
 1 DL mac-address=aa:bb:cc:dd:ee:21 interface=ether4
`
	entries := newTestDriver().ParseBridgeHosts(raw)
	if len(entries) != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].SwitchPort != "ether3" {
		t.Errorf("SwitchPort = %q", entries[0].SwitchPort)
	}
	if entries[0].VLANID == nil || *entries[0].VLANID != 20 {
		t.Errorf("VLANID = %v", entries[0].VLANID)
	}
	if entries[1].SwitchPort != "ether4" {
		t.Errorf("SwitchPort = %q, interface fallback not applied", entries[1].SwitchPort)
	}
}

func TestParseNeighbors(t *testing.T) {
	raw := ` 0 interface=ether1 address=10.0.0.2
     mac-address=aa:bb:cc:dd:ee:10 identity="core-sw2" platform=MikroTik
     board=CCR2004 interface-name=ether24 version=7.14.2
 1 interface=ether2 mac-address=aa:bb:cc:dd:ee:11 identity=ap-1
`
	neighbors := newTestDriver().ParseNeighbors(raw)
	if len(neighbors) != 2 {
		t.Fatalf("neighbors = %+v", neighbors)
	}

	first := neighbors[0]
	if first.RemoteDevice != "core-sw2" || first.RemotePort != "ether24" {
		t.Errorf("neighbor = %+v", first)
	}
	if first.RemoteMAC != "AA:BB:CC:DD:EE:10" {
		t.Errorf("RemoteMAC = %q", first.RemoteMAC)
	}
	if first.RemoteDescription != "MikroTik CCR2004 7.14.2" {
		t.Errorf("RemoteDescription = %q", first.RemoteDescription)
	}
	if neighbors[1].RemoteDevice != "ap-1" {
		t.Errorf("neighbor = %+v", neighbors[1])
	}
}

func TestNewDriver(t *testing.T) {
	cred := testutil.Credential()
	d, err := New("mikrotik", cred, Options{})
	if err != nil {
		t.Fatalf("New(mikrotik): %v", err)
	}
	if _, ok := d.(*MikroTik); !ok {
		t.Errorf("driver type = %T", d)
	}

	_, err = New("juniper", cred, Options{})
	if !errors.Is(err, util.ErrNotFound) {
		t.Errorf("unsupported vendor error = %v", err)
	}
}

// operations before Open fail cleanly instead of panicking
func TestOperationsBeforeOpen(t *testing.T) {
	d := newTestDriver()
	_, err := d.Snapshot(testutil.Context(t))
	if !errors.Is(err, util.ErrNotConnected) {
		t.Errorf("Snapshot before Open = %v, want ErrNotConnected", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close before Open = %v", err)
	}
}
