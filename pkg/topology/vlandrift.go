package topology

import (
	"fmt"
	"sort"

	"github.com/driftwatch-net/driftwatch/pkg/schema"
)

// Drift is one detected violation of the authorized map.
type Drift struct {
	Category    string                 `json:"category"`
	Severity    string                 `json:"severity"`
	CustomerID  string                 `json:"customer_id"`
	DeviceID    string                 `json:"device_id"`
	Description string                 `json:"description"`
	Payload     map[string]interface{} `json:"payload"`
}

// DetectorOptions tunes drift detection.
type DetectorOptions struct {
	// ReportUnauthorized opts in to MEDIUM incidents for MACs absent
	// from the authorized map entirely.
	ReportUnauthorized bool
}

// DetectVLANDrift compares observed nodes against the authorized map
// {mac: allowed vlan set}. A node whose MAC is authorized but whose
// observed VLAN is not in its allowed set is HIGH drift. Unknown MACs
// are ignored unless opted in.
func DetectVLANDrift(nodes []schema.NetworkNode, authorized map[string]map[int]bool, opts DetectorOptions) []Drift {
	var drifts []Drift

	for _, node := range nodes {
		if node.VLANID == nil {
			continue
		}
		allowed, known := authorized[node.MACAddress]
		if !known {
			if opts.ReportUnauthorized {
				drifts = append(drifts, Drift{
					Category:   schema.CategoryUnauthorizedNode,
					Severity:   "MEDIUM",
					CustomerID: node.CustomerID,
					DeviceID:   node.DeviceID,
					Description: fmt.Sprintf("unauthorized node %s seen on VLAN %d",
						node.MACAddress, *node.VLANID),
					Payload: map[string]interface{}{
						"type":        schema.CategoryUnauthorizedNode,
						"mac_address": node.MACAddress,
						"ip_address":  node.IPAddress,
						"found_vlan":  *node.VLANID,
						"switch_port": node.SwitchPort,
						"severity":    "MEDIUM",
					},
				})
			}
			continue
		}
		if allowed[*node.VLANID] {
			continue
		}

		expected := make([]int, 0, len(allowed))
		for vlan := range allowed {
			expected = append(expected, vlan)
		}
		sort.Ints(expected)

		description := fmt.Sprintf("VLAN drift: %s expected on %v, found on %d (port %s)",
			node.MACAddress, expected, *node.VLANID, node.SwitchPort)
		drifts = append(drifts, Drift{
			Category:    schema.CategoryVLANDrift,
			Severity:    "HIGH",
			CustomerID:  node.CustomerID,
			DeviceID:    node.DeviceID,
			Description: description,
			Payload: map[string]interface{}{
				"type":           schema.CategoryVLANDrift,
				"mac_address":    node.MACAddress,
				"ip_address":     node.IPAddress,
				"expected_vlans": expected,
				"found_vlan":     *node.VLANID,
				"switch_port":    node.SwitchPort,
				"severity":       "HIGH",
				"description":    description,
			},
		})
	}
	return drifts
}
