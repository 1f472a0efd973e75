package testutil

import (
	"testing"
	"time"

	"github.com/driftwatch-net/driftwatch/pkg/schema"
)

// BaseConfig returns a small but realistic device configuration that
// tests mutate to produce drift.
func BaseConfig(t *testing.T) *schema.DeviceConfig {
	t.Helper()

	mtu := 1500
	vlanID := 20
	enabled := true

	config, err := schema.NewDeviceConfig(schema.DeviceConfig{
		Hostname:  "core-sw1",
		Vendor:    "mikrotik",
		Model:     "CCR2004-1G-12S+2XS",
		OSVersion: "7.14.2",
		Interfaces: []schema.Interface{
			{Name: "ether1", Type: schema.InterfaceEther, Enabled: true,
				MACAddress: "AA:BB:CC:00:00:01", MTU: &mtu,
				IPAddresses: []string{"10.0.0.1/24"}},
			{Name: "vlan20", Type: schema.InterfaceVLAN, Enabled: true,
				VLANID: &vlanID, VLANInterface: "ether1",
				IPAddresses: []string{"10.0.20.1/24"}},
			{Name: "bridge1", Type: schema.InterfaceBridge, Enabled: true,
				Running: &enabled},
		},
		Routes: []schema.Route{
			{Destination: "0.0.0.0/0", Gateway: "10.0.0.254"},
			{Destination: "192.168.50.0/24", Gateway: "10.0.20.254", Distance: 5},
		},
		FirewallRules: []schema.FirewallRule{
			{Chain: "input", Action: "accept", Protocol: "tcp", DstPort: "22",
				SrcAddress: "10.0.0.0/24", Comment: "mgmt ssh"},
			{Chain: "input", Action: "accept", Protocol: "icmp", Comment: "ping"},
			{Chain: "input", Action: "drop", Comment: "default drop"},
		},
		CollectedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("building fixture config: %v", err)
	}
	return &config
}

// CloneConfig deep-copies a configuration so tests can mutate one side.
func CloneConfig(t *testing.T, c *schema.DeviceConfig) *schema.DeviceConfig {
	t.Helper()

	out := *c
	out.Interfaces = append([]schema.Interface(nil), c.Interfaces...)
	for i := range out.Interfaces {
		out.Interfaces[i].IPAddresses = append([]string(nil), c.Interfaces[i].IPAddresses...)
		if c.Interfaces[i].MTU != nil {
			v := *c.Interfaces[i].MTU
			out.Interfaces[i].MTU = &v
		}
		if c.Interfaces[i].VLANID != nil {
			v := *c.Interfaces[i].VLANID
			out.Interfaces[i].VLANID = &v
		}
	}
	out.Routes = append([]schema.Route(nil), c.Routes...)
	out.FirewallRules = append([]schema.FirewallRule(nil), c.FirewallRules...)
	return &out
}

// Device returns an inventory row matching BaseConfig.
func Device(customer, device string) schema.InventoryDevice {
	return schema.InventoryDevice{
		CustomerID: customer,
		DeviceID:   device,
		Vendor:     "mikrotik",
		Host:       "10.0.0.1",
		Port:       22,
		Active:     true,
	}
}

// Credential returns a plausible vault entry.
func Credential() schema.Credential {
	return schema.Credential{
		Host:          "10.0.0.1",
		Username:      "audit",
		Password:      "hunter2-secret",
		Port:          22,
		SNMPCommunity: "public",
	}
}
