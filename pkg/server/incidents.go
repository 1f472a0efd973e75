package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/driftwatch-net/driftwatch/pkg/audit"
	"github.com/driftwatch-net/driftwatch/pkg/store"
	"github.com/driftwatch-net/driftwatch/pkg/util"
)

func (s *Server) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.IncidentFilter{
		CustomerID:  q.Get("customer"),
		DeviceID:    q.Get("device"),
		Vendor:      q.Get("vendor"),
		Severity:    q.Get("severity"),
		MinSeverity: q.Get("min_severity"),
		Status:      q.Get("status"),
		Sort:        q.Get("sort"),
	}
	if v := q.Get("start_date"); v != "" {
		ts, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "start_date must be YYYY-MM-DD")
			return
		}
		filter.StartDate = ts
	}
	if v := q.Get("end_date"); v != "" {
		ts, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "end_date must be YYYY-MM-DD")
			return
		}
		// inclusive through the end of the named day
		filter.EndDate = ts.Add(24*time.Hour - time.Second)
	}
	if v, err := strconv.Atoi(q.Get("page")); err == nil {
		filter.Page = v
	}
	if v, err := strconv.Atoi(q.Get("page_size")); err == nil {
		filter.PageSize = v
	}

	page, err := s.store.ListIncidents(filter)
	if err != nil {
		if errors.Is(err, util.ErrValidationFailed) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "incident query failed")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid incident id")
		return
	}
	incident, err := s.store.GetIncident(id)
	if err != nil {
		if errors.Is(err, util.ErrNotFound) {
			writeError(w, http.StatusNotFound, "incident not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "incident query failed")
		return
	}
	writeJSON(w, http.StatusOK, incident)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleIncidentStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid incident id")
		return
	}
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		writeError(w, http.StatusBadRequest, "status required")
		return
	}
	if err := s.store.UpdateIncidentStatus(id, req.Status); err != nil {
		if errors.Is(err, util.ErrNotFound) {
			writeError(w, http.StatusNotFound, "incident not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "status update failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "status": req.Status})
}

func (s *Server) handleOrphanIncidents(w http.ResponseWriter, r *http.Request) {
	if !s.adminAllowed(r) {
		writeError(w, http.StatusForbidden, "admin token required")
		return
	}
	orphans, err := s.store.OrphanIncidents()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "orphan query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"incidents": orphans, "total": len(orphans)})
}

type purgeRequest struct {
	Confirm string `json:"confirm"`
}

func (s *Server) handlePurgeOrphans(w http.ResponseWriter, r *http.Request) {
	if !s.adminAllowed(r) {
		writeError(w, http.StatusForbidden, "admin token required")
		return
	}
	var req purgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Confirm != "yes" {
		writeError(w, http.StatusBadRequest, `purge requires {"confirm": "yes"}`)
		return
	}
	purged, err := s.store.PurgeOrphanIncidents()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "purge failed")
		return
	}
	util.Warnf("purged %d orphan incidents", purged)
	recordEvent(r, audit.OpPurgeOrphans, "", "")
	writeJSON(w, http.StatusOK, map[string]interface{}{"purged": purged})
}
