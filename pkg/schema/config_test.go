package schema

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/driftwatch-net/driftwatch/pkg/util"
)

func intPtr(v int) *int { return &v }

func TestNewInterface(t *testing.T) {
	tests := []struct {
		name    string
		in      Interface
		wantErr bool
		check   func(t *testing.T, got Interface)
	}{
		{
			name: "valid ether",
			in: Interface{Name: "ether1", Type: InterfaceEther,
				MACAddress: "aa:bb:cc:dd:ee:ff", MTU: intPtr(1500),
				IPAddresses: []string{"10.0.0.1"}},
			check: func(t *testing.T, got Interface) {
				if got.MACAddress != "AA:BB:CC:DD:EE:FF" {
					t.Errorf("MAC not normalized: %q", got.MACAddress)
				}
				if got.IPAddresses[0] != "10.0.0.1/32" {
					t.Errorf("address not normalized: %q", got.IPAddresses[0])
				}
			},
		},
		{
			name: "unknown type coerces to other",
			in:   Interface{Name: "veth0", Type: "veth"},
			check: func(t *testing.T, got Interface) {
				if got.Type != InterfaceOther {
					t.Errorf("Type = %q, want other", got.Type)
				}
			},
		},
		{name: "missing name", in: Interface{Type: InterfaceEther}, wantErr: true},
		{name: "mtu too small", in: Interface{Name: "e1", MTU: intPtr(42)}, wantErr: true},
		{name: "mtu too large", in: Interface{Name: "e1", MTU: intPtr(70000)}, wantErr: true},
		{name: "vlan id zero", in: Interface{Name: "v0", VLANID: intPtr(0)}, wantErr: true},
		{name: "vlan id too large", in: Interface{Name: "v1", VLANID: intPtr(4095)}, wantErr: true},
		{name: "vlan type without id", in: Interface{Name: "vlan9", Type: InterfaceVLAN}, wantErr: true},
		{name: "bad mac", in: Interface{Name: "e1", MACAddress: "nope"}, wantErr: true},
		{name: "bad address", in: Interface{Name: "e1", IPAddresses: []string{"999.1.1.1"}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewInterface(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewInterface() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, util.ErrSchemaInvalid) {
					t.Errorf("error should unwrap to ErrSchemaInvalid, got %v", err)
				}
				return
			}
			if tt.check != nil {
				tt.check(t, got)
			}
		})
	}
}

func TestInterfaceLegacyJSON(t *testing.T) {
	// old baselines carried a single ip_address plus prefix_len
	raw := `{"name":"ether1","type":"ether","enabled":true,"ip_address":"10.0.0.5","prefix_len":24}`
	var iface Interface
	if err := json.Unmarshal([]byte(raw), &iface); err != nil {
		t.Fatalf("unmarshal legacy form: %v", err)
	}
	if len(iface.IPAddresses) != 1 || iface.IPAddresses[0] != "10.0.0.5/24" {
		t.Errorf("IPAddresses = %v, want [10.0.0.5/24]", iface.IPAddresses)
	}

	// legacy address without prefix gets the /32 default
	raw = `{"name":"lo0","type":"loopback","ip_address":"192.168.9.1"}`
	if err := json.Unmarshal([]byte(raw), &iface); err != nil {
		t.Fatalf("unmarshal legacy form: %v", err)
	}
	if iface.IPAddresses[0] != "192.168.9.1/32" {
		t.Errorf("IPAddresses = %v, want [192.168.9.1/32]", iface.IPAddresses)
	}

	// canonical list wins over the legacy field
	raw = `{"name":"e1","ip_addresses":["10.1.1.1/30"],"ip_address":"10.9.9.9"}`
	if err := json.Unmarshal([]byte(raw), &iface); err != nil {
		t.Fatalf("unmarshal mixed form: %v", err)
	}
	if len(iface.IPAddresses) != 1 || iface.IPAddresses[0] != "10.1.1.1/30" {
		t.Errorf("IPAddresses = %v, want [10.1.1.1/30]", iface.IPAddresses)
	}
}

func TestNewRoute(t *testing.T) {
	route, err := NewRoute(Route{Destination: "192.168.0.0/16", Gateway: "10.0.0.1"})
	if err != nil {
		t.Fatalf("NewRoute() error: %v", err)
	}
	if route.RouteType != "static" {
		t.Errorf("RouteType = %q, want static default", route.RouteType)
	}

	if _, err := NewRoute(Route{Gateway: "10.0.0.1"}); err == nil {
		t.Error("route without destination should fail")
	}
	if _, err := NewRoute(Route{Destination: "10.0.0.0/8", Distance: 300}); err == nil {
		t.Error("distance 300 should fail")
	}
}

func TestNewFirewallRule(t *testing.T) {
	if _, err := NewFirewallRule(FirewallRule{Chain: "input", Action: "accept"}); err != nil {
		t.Errorf("valid rule rejected: %v", err)
	}
	if _, err := NewFirewallRule(FirewallRule{Action: "accept"}); err == nil {
		t.Error("rule without chain should fail")
	}
	if _, err := NewFirewallRule(FirewallRule{Chain: "input"}); err == nil {
		t.Error("rule without action should fail")
	}
}

func TestNewDeviceConfig(t *testing.T) {
	config, err := NewDeviceConfig(DeviceConfig{Hostname: "sw1", Vendor: "mikrotik"})
	if err != nil {
		t.Fatalf("NewDeviceConfig() error: %v", err)
	}
	if config.CollectedAt.IsZero() {
		t.Error("CollectedAt should default to now")
	}

	if _, err := NewDeviceConfig(DeviceConfig{Vendor: "mikrotik"}); err == nil {
		t.Error("config without hostname should fail")
	}
	if _, err := NewDeviceConfig(DeviceConfig{Hostname: "sw1"}); err == nil {
		t.Error("config without vendor should fail")
	}
}

func TestIsPhysical(t *testing.T) {
	tests := []struct {
		ifaceType string
		want      bool
	}{
		{InterfaceEther, true},
		{InterfaceWLAN, true},
		{InterfaceBridge, false},
		{InterfaceVLAN, false},
	}
	for _, tt := range tests {
		i := Interface{Type: tt.ifaceType}
		if got := i.IsPhysical(); got != tt.want {
			t.Errorf("IsPhysical(%s) = %v, want %v", tt.ifaceType, got, tt.want)
		}
	}
}
