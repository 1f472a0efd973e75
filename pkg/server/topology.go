package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/driftwatch-net/driftwatch/pkg/audit"
	"github.com/driftwatch-net/driftwatch/pkg/schema"
	"github.com/driftwatch-net/driftwatch/pkg/util"
)

// handleTopologySummary is the topology landing view: the node table
// plus the headline counts the dashboard shows above it.
func (s *Server) handleTopologySummary(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.store.ListNodes(r.URL.Query().Get("customer"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "node query failed")
		return
	}

	authorized, withIP := 0, 0
	vlans := map[int]struct{}{}
	for _, n := range nodes {
		if n.Authorized {
			authorized++
		}
		if n.IPAddress != "" {
			withIP++
		}
		if n.VLANID != nil {
			vlans[*n.VLANID] = struct{}{}
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"nodes": nodes,
		"kpis": map[string]interface{}{
			"total":        len(nodes),
			"authorized":   authorized,
			"unauthorized": len(nodes) - authorized,
			"with_ip":      withIP,
			"vlans":        len(vlans),
		},
	})
}

func (s *Server) handleTopologyNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.store.ListNodes(r.URL.Query().Get("customer"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "node query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"nodes": nodes, "total": len(nodes)})
}

// handleTopologyVLANs groups the node table by VLAN so operators can
// see per-VLAN membership and how much of it is authorized.
func (s *Server) handleTopologyVLANs(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.store.ListNodes(r.URL.Query().Get("customer"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "node query failed")
		return
	}

	type vlanSummary struct {
		VLANID     int `json:"vlan_id"`
		Nodes      int `json:"nodes"`
		Authorized int `json:"authorized"`
	}
	byVLAN := map[int]*vlanSummary{}
	for _, n := range nodes {
		if n.VLANID == nil {
			continue
		}
		summary, ok := byVLAN[*n.VLANID]
		if !ok {
			summary = &vlanSummary{VLANID: *n.VLANID}
			byVLAN[*n.VLANID] = summary
		}
		summary.Nodes++
		if n.Authorized {
			summary.Authorized++
		}
	}

	out := make([]vlanSummary, 0, len(byVLAN))
	for _, v := range byVLAN {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VLANID < out[j].VLANID })
	writeJSON(w, http.StatusOK, map[string]interface{}{"vlans": out, "total": len(out)})
}

func (s *Server) handleTopologyARP(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.LatestARPEntries(r.URL.Query().Get("customer"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "arp query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries, "total": len(entries)})
}

func (s *Server) handleTopologyLLDP(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.LatestLLDPEntries(r.URL.Query().Get("customer"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lldp query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries, "total": len(entries)})
}

type scanRequest struct {
	Customer string `json:"customer,omitempty"`
}

func (s *Server) handleTopologyScan(w http.ResponseWriter, r *http.Request) {
	if s.scanner == nil {
		writeError(w, http.StatusServiceUnavailable, "scanner not configured")
		return
	}
	var req scanRequest
	if r.Body != nil {
		// empty body means a fleet-wide scan
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	result, err := s.scanner.Scan(r.Context(), req.Customer)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "topology scan failed")
		util.Errorf("topology scan: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type authorizeRequest struct {
	CustomerID string `json:"customer_id"`
	MACAddress string `json:"mac_address"`
}

func (s *Server) handleAuthorizeNode(w http.ResponseWriter, r *http.Request) {
	var req authorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mac, err := schema.NormalizeMAC(req.MACAddress)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid MAC address")
		return
	}
	if err := s.store.AuthorizeNode(req.CustomerID, mac); err != nil {
		writeError(w, http.StatusInternalServerError, "authorize failed")
		return
	}
	recordEvent(r, audit.OpAuthorizeNode, req.CustomerID, mac)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"customer_id": req.CustomerID,
		"mac_address": mac,
		"authorized":  true,
	})
}

// handleGraphData flattens nodes and LLDP adjacencies into the
// node/edge lists the topology view renders.
func (s *Server) handleGraphData(w http.ResponseWriter, r *http.Request) {
	customer := r.URL.Query().Get("customer")

	nodes, err := s.store.ListNodes(customer)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "node query failed")
		return
	}
	lldp, err := s.store.LatestLLDPEntries(customer)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lldp query failed")
		return
	}

	graphNodes := make([]map[string]interface{}, 0, len(nodes))
	for _, n := range nodes {
		label := n.Hostname
		if label == "" {
			label = n.IPAddress
		}
		if label == "" {
			label = n.MACAddress
		}
		graphNodes = append(graphNodes, map[string]interface{}{
			"id":          n.MACAddress,
			"label":       label,
			"vlan":        n.VLANID,
			"vendor":      n.VendorOUI,
			"authorized":  n.Authorized,
			"switch_port": n.SwitchPort,
		})
	}

	edges := make([]map[string]interface{}, 0, len(lldp))
	for _, e := range lldp {
		edges = append(edges, map[string]interface{}{
			"source":      asEntryString(e["device_id"]),
			"target":      asEntryString(e["remote_device"]),
			"local_port":  asEntryString(e["local_interface"]),
			"remote_port": asEntryString(e["remote_port"]),
			"remote_mac":  asEntryString(e["remote_mac"]),
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"nodes": graphNodes,
		"edges": edges,
	})
}

func asEntryString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return ""
	}
}

func (s *Server) handleAuditRun(w http.ResponseWriter, r *http.Request) {
	if s.auditor == nil {
		writeError(w, http.StatusServiceUnavailable, "auditor not configured")
		return
	}
	var req scanRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	result, err := s.auditor.AuditAll(r.Context(), req.Customer)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "audit run failed")
		util.Errorf("audit run: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAuditHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	minSeverity := schema.SeverityCompliant
	if raw := q.Get("min_severity"); raw != "" {
		switch raw {
		case "LOW":
			minSeverity = schema.SeverityLow
		case "MEDIUM":
			minSeverity = schema.SeverityMedium
		case "HIGH":
			minSeverity = schema.SeverityHigh
		case "CRITICAL":
			minSeverity = schema.SeverityCritical
		}
	}
	rows, err := s.store.AuditHistory(q.Get("customer"), q.Get("device"), minSeverity, 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "history query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reports": rows, "total": len(rows)})
}

func (s *Server) handleAuditStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.AuditStats(r.URL.Query().Get("customer"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "stats query failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type advanceRequest struct {
	State string `json:"state"`
	Notes string `json:"notes,omitempty"`
}

func (s *Server) handleListRemediations(w http.ResponseWriter, r *http.Request) {
	remediations, err := s.store.ListRemediations(r.URL.Query().Get("state"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "remediation query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"remediations": remediations,
		"total":        len(remediations),
	})
}

func (s *Server) handleAdvanceRemediation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req advanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.State == "" {
		writeError(w, http.StatusBadRequest, "state required")
		return
	}
	if err := s.store.AdvanceRemediation(id, req.State, req.Notes); err != nil {
		switch {
		case errors.Is(err, util.ErrNotFound):
			writeError(w, http.StatusNotFound, "remediation not found")
		case errors.Is(err, util.ErrValidationFailed):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "remediation update failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "state": req.State})
}
