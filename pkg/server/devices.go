package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/driftwatch-net/driftwatch/pkg/audit"
	"github.com/driftwatch-net/driftwatch/pkg/discovery"
	"github.com/driftwatch-net/driftwatch/pkg/health"
	"github.com/driftwatch-net/driftwatch/pkg/schema"
	"github.com/driftwatch-net/driftwatch/pkg/util"
)

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	customer := r.URL.Query().Get("customer")
	activeOnly := r.URL.Query().Get("active_only") == "true"

	devices, err := s.store.ListDevices(customer, activeOnly)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "inventory unavailable")
		return
	}
	byDevice, err := s.store.OpenIncidentsByDevice(customer)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "incident lookup failed")
		return
	}

	probe := r.URL.Query().Get("probe") == "true"
	communities := s.snmpCommunities()

	out := make([]map[string]interface{}, 0, len(devices))
	for _, d := range devices {
		entry := map[string]interface{}{
			"customer_id": d.CustomerID,
			"device_id":   d.DeviceID,
			"vendor":      d.Vendor,
			"host":        d.Host,
			"port":        d.Port,
			"active":      d.Active,
			"created_at":  d.CreatedAt,
		}

		openCount := 0
		status := "healthy"
		if summary, ok := byDevice[[2]string{d.CustomerID, d.DeviceID}]; ok {
			openCount = summary.OpenCount
			entry["worst_severity"] = summary.WorstSeverity
			if summary.WorstRank >= schema.SeverityRank["HIGH"] {
				status = "with_incident"
			} else {
				status = "warning"
			}
		}
		entry["open_incidents"] = openCount
		entry["status"] = status

		if s.baselines != nil {
			has, at := s.baselines.Exists(d.CustomerID, d.DeviceID)
			entry["has_baseline"] = has
			if has {
				entry["baseline_at"] = at
			}
		}

		// ping probes are opt-in; a fleet-wide sweep on every list
		// request would stall the dashboard
		if probe {
			entry["reachability"] = health.CheckReachability(
				r.Context(), d.Host, communities[[2]string{d.CustomerID, d.DeviceID}], 2)
		}

		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"devices": out, "total": len(out)})
}

func (s *Server) snmpCommunities() map[[2]string]string {
	if s.vault == nil {
		return nil
	}
	communities, err := s.vault.SNMPCommunities()
	if err != nil {
		util.Debugf("snmp community lookup failed: %v", err)
		return nil
	}
	return communities
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	customer, deviceID := vars["customer"], vars["device"]

	d, err := s.store.GetDevice(customer, deviceID)
	if err != nil {
		if errors.Is(err, util.ErrNotFound) {
			writeError(w, http.StatusNotFound, "device not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "inventory unavailable")
		return
	}

	entry := map[string]interface{}{
		"customer_id": d.CustomerID,
		"device_id":   d.DeviceID,
		"vendor":      d.Vendor,
		"host":        d.Host,
		"port":        d.Port,
		"active":      d.Active,
		"created_at":  d.CreatedAt,
	}

	if s.baselines != nil {
		has, at := s.baselines.Exists(customer, deviceID)
		entry["has_baseline"] = has
		if has {
			entry["baseline_at"] = at
		}
	}
	if latest, err := s.store.LatestAuditReport(customer, deviceID); err == nil {
		entry["latest_audit"] = latest
	}
	entry["reachability"] = health.CheckReachability(
		r.Context(), d.Host, s.snmpCommunities()[[2]string{customer, deviceID}], 2)

	writeJSON(w, http.StatusOK, entry)
}

type discoverRequest struct {
	Network          string `json:"network"`
	PingOnly         bool   `json:"ping_only"`
	Extended         bool   `json:"extended"`
	OSDetection      bool   `json:"os_detection"`
	ServiceDetection bool   `json:"service_detection"`
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	var req discoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	hosts, err := discovery.Scan(r.Context(), req.Network, discovery.Options{
		PingOnly:         req.PingOnly,
		Extended:         req.Extended,
		OSDetection:      req.OSDetection,
		ServiceDetection: req.ServiceDetection,
	})
	if err != nil {
		if errors.Is(err, util.ErrDiscovery) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "discovery failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"hosts": hosts, "total": len(hosts)})
}

type onboardRequest struct {
	CustomerID    string `json:"customer_id"`
	DeviceID      string `json:"device_id"`
	Vendor        string `json:"vendor"`
	Host          string `json:"host"`
	Port          int    `json:"port"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	SNMPCommunity string `json:"snmp_community,omitempty"`
}

// handleOnboard creates the inventory row and stores the credential.
// A vault failure rolls the inventory row back so the two stores never
// disagree about what is onboarded.
func (s *Server) handleOnboard(w http.ResponseWriter, r *http.Request) {
	var req onboardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	device := schema.InventoryDevice{
		CustomerID: req.CustomerID,
		DeviceID:   req.DeviceID,
		Vendor:     req.Vendor,
		Host:       req.Host,
		Port:       req.Port,
		Active:     true,
	}
	if err := s.store.CreateDevice(device); err != nil {
		if errors.Is(err, util.ErrStoreConstraint) || errors.Is(err, util.ErrValidationFailed) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "inventory write failed")
		return
	}

	cred := schema.Credential{
		Host:          req.Host,
		Username:      req.Username,
		Password:      req.Password,
		Port:          req.Port,
		SNMPCommunity: req.SNMPCommunity,
	}
	if err := s.vault.Save(req.CustomerID, req.DeviceID, cred); err != nil {
		if rbErr := s.store.DeleteDevice(req.CustomerID, req.DeviceID); rbErr != nil {
			util.WithDevice(req.DeviceID).Errorf("onboard rollback failed: %v", rbErr)
		}
		writeError(w, http.StatusInternalServerError, "credential store failed, onboarding rolled back")
		return
	}

	recordEvent(r, audit.OpOnboardDevice, req.CustomerID, req.DeviceID)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"customer_id": req.CustomerID,
		"device_id":   req.DeviceID,
		"onboarded":   true,
	})
}

type toggleRequest struct {
	CustomerID string `json:"customer_id"`
	DeviceID   string `json:"device_id"`
}

func (s *Server) handleToggleActive(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	active, err := s.store.ToggleActive(req.CustomerID, req.DeviceID)
	if err != nil {
		if errors.Is(err, util.ErrNotFound) {
			writeError(w, http.StatusNotFound, "device not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "inventory write failed")
		return
	}
	recordEvent(r, audit.OpToggleActive, req.CustomerID, req.DeviceID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"customer_id": req.CustomerID,
		"device_id":   req.DeviceID,
		"active":      active,
	})
}
