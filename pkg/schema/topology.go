package schema

import (
	"fmt"
	"time"

	"github.com/driftwatch-net/driftwatch/pkg/util"
)

// ARPEntry is one L3-to-L2 binding from a device's ARP table.
type ARPEntry struct {
	IPAddress  string `json:"ip_address"`
	MACAddress string `json:"mac_address"`
	Interface  string `json:"interface,omitempty"`
	VLANID     *int   `json:"vlan_id,omitempty"`
}

// NewARPEntry validates and normalizes an ARP entry.
func NewARPEntry(in ARPEntry) (ARPEntry, error) {
	out := in
	if !util.IsValidIPv4(out.IPAddress) {
		return ARPEntry{}, util.NewSchemaError("arp", "ip_address",
			fmt.Sprintf("not an IPv4 address: %q", out.IPAddress))
	}
	mac, err := NormalizeMAC(out.MACAddress)
	if err != nil {
		return ARPEntry{}, err
	}
	out.MACAddress = mac
	if out.VLANID != nil && (*out.VLANID < 1 || *out.VLANID > 4094) {
		return ARPEntry{}, util.NewSchemaError("arp", "vlan_id",
			fmt.Sprintf("vlan %d out of range [1,4094]", *out.VLANID))
	}
	return out, nil
}

// MACEntry is one bridge forwarding table row.
type MACEntry struct {
	MACAddress string `json:"mac_address"`
	VLANID     *int   `json:"vlan_id,omitempty"`
	SwitchPort string `json:"switch_port,omitempty"`
}

// NewMACEntry validates and normalizes a MAC table entry.
func NewMACEntry(in MACEntry) (MACEntry, error) {
	out := in
	mac, err := NormalizeMAC(out.MACAddress)
	if err != nil {
		return MACEntry{}, err
	}
	out.MACAddress = mac
	if out.VLANID != nil && (*out.VLANID < 1 || *out.VLANID > 4094) {
		return MACEntry{}, util.NewSchemaError("mac", "vlan_id",
			fmt.Sprintf("vlan %d out of range [1,4094]", *out.VLANID))
	}
	return out, nil
}

// LLDPNeighbor is one discovered adjacency.
type LLDPNeighbor struct {
	LocalInterface    string `json:"local_interface,omitempty"`
	RemoteDevice      string `json:"remote_device,omitempty"`
	RemotePort        string `json:"remote_port,omitempty"`
	RemoteMAC         string `json:"remote_mac,omitempty"`
	RemoteDescription string `json:"remote_description,omitempty"`
}

// NewLLDPNeighbor normalizes an LLDP neighbor. The remote MAC is
// optional; when present it must normalize.
func NewLLDPNeighbor(in LLDPNeighbor) (LLDPNeighbor, error) {
	out := in
	if out.RemoteMAC != "" {
		mac, err := NormalizeMAC(out.RemoteMAC)
		if err != nil {
			return LLDPNeighbor{}, err
		}
		out.RemoteMAC = mac
	}
	if out.RemoteDevice == "" && out.RemotePort == "" && out.RemoteMAC == "" {
		return LLDPNeighbor{}, util.NewSchemaError("lldp", "remote",
			"neighbor carries no identifying field")
	}
	return out, nil
}

// NetworkNode is a correlated L2/L3 endpoint, keyed by MAC within a
// customer. Authorized is sticky: scans never reset it.
type NetworkNode struct {
	CustomerID string    `json:"customer_id"`
	DeviceID   string    `json:"device_id"`
	MACAddress string    `json:"mac_address"`
	IPAddress  string    `json:"ip_address,omitempty"`
	Hostname   string    `json:"hostname,omitempty"`
	VLANID     *int      `json:"vlan_id,omitempty"`
	SwitchPort string    `json:"switch_port,omitempty"`
	VendorOUI  string    `json:"vendor_oui,omitempty"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
	Authorized bool      `json:"authorized"`
}
