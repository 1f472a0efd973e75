package server

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/driftwatch-net/driftwatch/pkg/util"
)

const (
	sseMinInterval = 5
	sseMaxInterval = 300
)

var overviewPage = template.Must(template.New("overview").Parse(`<!DOCTYPE html>
<html>
<head><title>driftwatch</title></head>
<body>
<h1>Fleet overview</h1>
<p>Devices: {{.Devices}} total, {{.Healthy}} healthy, {{.WithIncident}} with incidents, {{.Warning}} warning.</p>
<p>Open incidents: {{.Open}}</p>
<p>Generated {{.At}}</p>
</body>
</html>
`))

// handleOverview answers JSON when the client asks for it, otherwise a
// minimal HTML snapshot of the same bundle.
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	bundle, ok := s.bundle(w, r)
	if !ok {
		return
	}
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		writeJSON(w, http.StatusOK, bundle)
		return
	}

	devices, _ := bundle["devices"].(map[string]interface{})
	incidents, _ := bundle["incidents"].(map[string]interface{})
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := overviewPage.Execute(w, map[string]interface{}{
		"Devices":      devices["total"],
		"Healthy":      devices["healthy"],
		"WithIncident": devices["with_incident"],
		"Warning":      devices["warning"],
		"Open":         incidents["open"],
		"At":           time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		util.Debugf("overview page render failed: %v", err)
	}
}

func (s *Server) handleOverviewJSON(w http.ResponseWriter, r *http.Request) {
	bundle, ok := s.bundle(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

func (s *Server) bundle(w http.ResponseWriter, r *http.Request) (map[string]interface{}, bool) {
	if s.overview == nil {
		writeError(w, http.StatusServiceUnavailable, "overview not configured")
		return nil, false
	}
	bundle, err := s.overview.Bundle(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "overview unavailable")
		util.Errorf("overview bundle: %v", err)
		return nil, false
	}
	return bundle, true
}

// streamInterval clamps the client-requested interval to [5,300]
// seconds; absent or unparseable values fall back to the configured
// default.
func (s *Server) streamInterval(r *http.Request) time.Duration {
	secs := s.cfg.SSEIntervalSecs
	if raw := r.URL.Query().Get("interval"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			secs = v
		}
	}
	if secs < sseMinInterval {
		secs = sseMinInterval
	}
	if secs > sseMaxInterval {
		secs = sseMaxInterval
	}
	return time.Duration(secs) * time.Second
}

// handleStream pushes the overview bundle as server-sent events. One
// data frame goes out immediately, then one per interval with a
// heartbeat comment between frames.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.overview == nil {
		writeError(w, http.StatusServiceUnavailable, "overview not configured")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	fmt.Fprint(w, "retry: 5000\n\n")
	flusher.Flush()

	send := func() {
		bundle, err := s.overview.Bundle(r.Context())
		if err != nil {
			util.Debugf("stream bundle failed: %v", err)
			fmt.Fprint(w, ": bundle unavailable\n\n")
			flusher.Flush()
			return
		}
		data, err := json.Marshal(bundle)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	send()

	interval := s.streamInterval(r)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	heartbeat := time.NewTicker(interval / 2)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case <-ticker.C:
			send()
		}
	}
}
