// Package schema defines the validated value types shared by the
// drivers, the diff engine and the stores. Normalization lives in the
// constructors: a value that exists is a value that passed validation.
package schema

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/driftwatch-net/driftwatch/pkg/util"
)

// Interface types recognized by the schema. Anything else coerces to
// InterfaceOther.
const (
	InterfaceEther    = "ether"
	InterfaceWLAN     = "wlan"
	InterfaceBridge   = "bridge"
	InterfaceVLAN     = "vlan"
	InterfaceBonding  = "bonding"
	InterfaceLoopback = "loopback"
	InterfaceTunnel   = "tunnel"
	InterfaceOther    = "other"
)

var interfaceTypes = map[string]bool{
	InterfaceEther:    true,
	InterfaceWLAN:     true,
	InterfaceBridge:   true,
	InterfaceVLAN:     true,
	InterfaceBonding:  true,
	InterfaceLoopback: true,
	InterfaceTunnel:   true,
	InterfaceOther:    true,
}

// Interface is one logical or physical port of a device.
type Interface struct {
	Name          string   `json:"name"`
	Type          string   `json:"type"`
	Enabled       bool     `json:"enabled"`
	Running       *bool    `json:"running,omitempty"`
	MACAddress    string   `json:"mac_address,omitempty"`
	MTU           *int     `json:"mtu,omitempty"`
	IPAddresses   []string `json:"ip_addresses,omitempty"`
	VLANID        *int     `json:"vlan_id,omitempty"`
	VLANInterface string   `json:"vlan_interface,omitempty"`
	Comment       string   `json:"comment,omitempty"`
	Slave         *bool    `json:"slave,omitempty"`
}

// interfaceAlias strips the UnmarshalJSON method so the decoder does
// not recurse through the embedded field.
type interfaceAlias Interface

// legacy single-address form still found in old baselines
type interfaceJSON struct {
	interfaceAlias
	LegacyIP     string `json:"ip_address,omitempty"`
	LegacyPrefix *int   `json:"prefix_len,omitempty"`
}

// UnmarshalJSON accepts both the canonical ip_addresses list and the
// legacy {ip_address, prefix_len} pair, then re-validates.
func (i *Interface) UnmarshalJSON(data []byte) error {
	var raw interfaceJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := Interface(raw.interfaceAlias)
	if raw.LegacyIP != "" && len(out.IPAddresses) == 0 {
		addr := raw.LegacyIP
		if raw.LegacyPrefix != nil {
			addr = fmt.Sprintf("%s/%d", addr, *raw.LegacyPrefix)
		}
		out.IPAddresses = []string{addr}
	}
	normalized, err := NewInterface(out)
	if err != nil {
		return err
	}
	*i = normalized
	return nil
}

// NewInterface validates and normalizes an interface value.
func NewInterface(in Interface) (Interface, error) {
	out := in
	if out.Type == "" {
		out.Type = InterfaceOther
	}
	if !interfaceTypes[out.Type] {
		out.Type = InterfaceOther
	}

	v := &util.ValidationBuilder{}
	v.Add(out.Name != "", "interface name is required")

	if out.MACAddress != "" {
		mac, err := NormalizeMAC(out.MACAddress)
		if err != nil {
			v.AddErrorf("interface %s: %v", out.Name, err)
		} else {
			out.MACAddress = mac
		}
	}
	if out.MTU != nil {
		v.Add(*out.MTU >= 68 && *out.MTU <= 65535,
			fmt.Sprintf("interface %s: mtu %d out of range [68,65535]", out.Name, *out.MTU))
	}
	if out.VLANID != nil {
		v.Add(*out.VLANID >= 1 && *out.VLANID <= 4094,
			fmt.Sprintf("interface %s: vlan_id %d out of range [1,4094]", out.Name, *out.VLANID))
	}
	v.Add(out.Type != InterfaceVLAN || out.VLANID != nil,
		fmt.Sprintf("interface %s: vlan type requires vlan_id", out.Name))

	normalized := make([]string, 0, len(out.IPAddresses))
	for _, addr := range out.IPAddresses {
		cidr, err := NormalizeCIDR(addr)
		if err != nil {
			v.AddErrorf("interface %s: %v", out.Name, err)
			continue
		}
		normalized = append(normalized, cidr)
	}
	out.IPAddresses = normalized

	if err := v.Build(); err != nil {
		return Interface{}, fmt.Errorf("%w: %v", util.ErrSchemaInvalid, err)
	}
	return out, nil
}

// IsPhysical reports whether the interface is a hardware port.
func (i *Interface) IsPhysical() bool {
	return i.Type == InterfaceEther || i.Type == InterfaceWLAN
}

// Route is one forwarding table entry.
type Route struct {
	Destination string `json:"destination"`
	Gateway     string `json:"gateway,omitempty"`
	Interface   string `json:"interface,omitempty"`
	Distance    int    `json:"distance"`
	RouteType   string `json:"route_type"`
}

// NewRoute validates and normalizes a route value.
func NewRoute(in Route) (Route, error) {
	out := in
	v := &util.ValidationBuilder{}

	if out.Destination == "" {
		v.AddError("route destination is required")
	} else {
		dst, err := NormalizeCIDR(out.Destination)
		if err != nil {
			v.AddErrorf("route destination: %v", err)
		} else {
			out.Destination = dst
		}
	}
	v.Add(out.Distance >= 0 && out.Distance <= 255,
		fmt.Sprintf("route distance %d out of range [0,255]", out.Distance))
	if out.RouteType == "" {
		out.RouteType = "static"
	}

	if err := v.Build(); err != nil {
		return Route{}, fmt.Errorf("%w: %v", util.ErrSchemaInvalid, err)
	}
	return out, nil
}

// FirewallRule is one filter rule. Order within the rule list is
// significant; Comment is the rule's semantic identity for drift
// classification.
type FirewallRule struct {
	Chain      string `json:"chain"`
	Action     string `json:"action"`
	SrcAddress string `json:"src_address,omitempty"`
	DstAddress string `json:"dst_address,omitempty"`
	Protocol   string `json:"protocol,omitempty"`
	SrcPort    string `json:"src_port,omitempty"`
	DstPort    string `json:"dst_port,omitempty"`
	Comment    string `json:"comment,omitempty"`
	Disabled   bool   `json:"disabled"`
}

// NewFirewallRule validates a firewall rule.
func NewFirewallRule(in FirewallRule) (FirewallRule, error) {
	v := &util.ValidationBuilder{}
	v.Add(in.Chain != "", "firewall rule chain is required")
	v.Add(in.Action != "", "firewall rule action is required")
	if err := v.Build(); err != nil {
		return FirewallRule{}, fmt.Errorf("%w: %v", util.ErrSchemaInvalid, err)
	}
	return in, nil
}

// Equal reports field-for-field equality of two rules.
func (r FirewallRule) Equal(other FirewallRule) bool {
	return r == other
}

// DeviceConfig is the aggregate snapshot of one device. CollectedAt is
// excluded from drift comparison by default.
type DeviceConfig struct {
	Hostname      string         `json:"hostname"`
	Vendor        string         `json:"vendor"`
	Model         string         `json:"model,omitempty"`
	OSVersion     string         `json:"os_version,omitempty"`
	Interfaces    []Interface    `json:"interfaces"`
	Routes        []Route        `json:"routes"`
	FirewallRules []FirewallRule `json:"firewall_rules"`
	CollectedAt   time.Time      `json:"collected_at"`
}

// NewDeviceConfig validates a snapshot aggregate.
func NewDeviceConfig(in DeviceConfig) (DeviceConfig, error) {
	v := &util.ValidationBuilder{}
	v.Add(in.Hostname != "", "hostname is required")
	v.Add(in.Vendor != "", "vendor is required")
	if err := v.Build(); err != nil {
		return DeviceConfig{}, fmt.Errorf("%w: %v", util.ErrSchemaInvalid, err)
	}
	out := in
	if out.CollectedAt.IsZero() {
		out.CollectedAt = time.Now().UTC()
	}
	return out, nil
}
