package topology

import (
	"sort"
	"time"

	"github.com/driftwatch-net/driftwatch/pkg/schema"
)

// Correlate merges one device's ARP and MAC tables into nodes keyed by
// MAC. For each MAC seen in either table: the IP comes from ARP, the
// VLAN from the MAC entry (falling back to ARP), the switch port from
// the MAC entry, the vendor from the OUI table.
func Correlate(customer, device string, arp []schema.ARPEntry, mac []schema.MACEntry, oui *OUITable) []schema.NetworkNode {
	now := time.Now().UTC()

	arpByMAC := map[string]schema.ARPEntry{}
	for _, e := range arp {
		arpByMAC[e.MACAddress] = e
	}
	macByMAC := map[string]schema.MACEntry{}
	for _, e := range mac {
		macByMAC[e.MACAddress] = e
	}

	macs := make([]string, 0, len(arpByMAC)+len(macByMAC))
	seen := map[string]bool{}
	for m := range arpByMAC {
		macs = append(macs, m)
		seen[m] = true
	}
	for m := range macByMAC {
		if !seen[m] {
			macs = append(macs, m)
		}
	}
	sort.Strings(macs)

	nodes := make([]schema.NetworkNode, 0, len(macs))
	for _, m := range macs {
		node := schema.NetworkNode{
			CustomerID: customer,
			DeviceID:   device,
			MACAddress: m,
			VendorOUI:  oui.Lookup(m),
			FirstSeen:  now,
			LastSeen:   now,
		}
		if a, ok := arpByMAC[m]; ok {
			node.IPAddress = a.IPAddress
			node.VLANID = a.VLANID
		}
		if e, ok := macByMAC[m]; ok {
			node.SwitchPort = e.SwitchPort
			if e.VLANID != nil {
				node.VLANID = e.VLANID
			}
		}
		nodes = append(nodes, node)
	}
	return nodes
}
