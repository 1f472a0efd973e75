// Package server exposes the HTTP API: fleet health, inventory,
// incidents, topology and remediation surfaces.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/driftwatch-net/driftwatch/pkg/audit"
	"github.com/driftwatch-net/driftwatch/pkg/auditor"
	"github.com/driftwatch-net/driftwatch/pkg/health"
	"github.com/driftwatch-net/driftwatch/pkg/store"
	"github.com/driftwatch-net/driftwatch/pkg/topology"
	"github.com/driftwatch-net/driftwatch/pkg/util"
	"github.com/driftwatch-net/driftwatch/pkg/vault"
)

// Config holds the HTTP server limits and the API auth material.
type Config struct {
	Listen            string
	APIToken          string
	APITokenHeader    string
	AdminToken        string
	SSEIntervalSecs   int
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
}

// DefaultConfig returns the server limits used when the caller does not
// override them. WriteTimeout stays zero so SSE streams are not cut.
func DefaultConfig() Config {
	return Config{
		Listen:            "127.0.0.1:8080",
		APITokenHeader:    "X-API-Token",
		SSEIntervalSecs:   30,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}
}

// Server wires the API handlers to their backends.
type Server struct {
	cfg       Config
	store     *store.Store
	vault     *vault.Vault
	overview  *health.Overview
	auditor   *auditor.Auditor
	scanner   *topology.Scanner
	baselines *auditor.BaselineStore

	router *mux.Router
	http   *http.Server
}

// Options holds the server dependencies. Overview, Auditor and Scanner
// may be nil; the corresponding endpoints then answer 503.
type Options struct {
	Config    Config
	Store     *store.Store
	Vault     *vault.Vault
	Overview  *health.Overview
	Auditor   *auditor.Auditor
	Scanner   *topology.Scanner
	Baselines *auditor.BaselineStore
}

// New builds the server and registers all routes.
func New(opts Options) *Server {
	cfg := opts.Config
	if cfg.APITokenHeader == "" {
		cfg.APITokenHeader = "X-API-Token"
	}
	if cfg.SSEIntervalSecs == 0 {
		cfg.SSEIntervalSecs = 30
	}

	s := &Server{
		cfg:       cfg,
		store:     opts.Store,
		vault:     opts.Vault,
		overview:  opts.Overview,
		auditor:   opts.Auditor,
		scanner:   opts.Scanner,
		baselines: opts.Baselines,
		router:    mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(s.requestLogging, s.requestMetrics)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health/ping", s.handlePing).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(s.tokenAuth)

	api.HandleFunc("/health/overview", s.handleOverview).Methods(http.MethodGet)
	api.HandleFunc("/health/api/overview", s.handleOverviewJSON).Methods(http.MethodGet)
	api.HandleFunc("/health/stream", s.handleStream).Methods(http.MethodGet)

	api.HandleFunc("/devices/", s.handleListDevices).Methods(http.MethodGet)
	api.HandleFunc("/devices/discover", s.handleDiscover).Methods(http.MethodPost)
	api.HandleFunc("/devices/onboard", s.handleOnboard).Methods(http.MethodPost)
	api.HandleFunc("/devices/toggle-active", s.handleToggleActive).Methods(http.MethodPost)
	api.HandleFunc("/devices/{customer}/{device}", s.handleGetDevice).Methods(http.MethodGet)

	api.HandleFunc("/incidents/", s.handleListIncidents).Methods(http.MethodGet)
	api.HandleFunc("/incidents/{id:[0-9]+}", s.handleGetIncident).Methods(http.MethodGet)
	api.HandleFunc("/incidents/{id:[0-9]+}/status", s.handleIncidentStatus).Methods(http.MethodPost)

	api.HandleFunc("/audit/run", s.handleAuditRun).Methods(http.MethodPost)
	api.HandleFunc("/audit/history", s.handleAuditHistory).Methods(http.MethodGet)
	api.HandleFunc("/audit/stats", s.handleAuditStats).Methods(http.MethodGet)

	api.HandleFunc("/topology/", s.handleTopologySummary).Methods(http.MethodGet)
	api.HandleFunc("/topology/nodes", s.handleTopologyNodes).Methods(http.MethodGet)
	api.HandleFunc("/topology/vlans", s.handleTopologyVLANs).Methods(http.MethodGet)
	api.HandleFunc("/topology/arp", s.handleTopologyARP).Methods(http.MethodGet)
	api.HandleFunc("/topology/lldp", s.handleTopologyLLDP).Methods(http.MethodGet)
	api.HandleFunc("/topology/scan", s.handleTopologyScan).Methods(http.MethodPost)
	api.HandleFunc("/topology/authorize", s.handleAuthorizeNode).Methods(http.MethodPost)
	api.HandleFunc("/topology/graph-data", s.handleGraphData).Methods(http.MethodGet)

	api.HandleFunc("/remediations/", s.handleListRemediations).Methods(http.MethodGet)
	api.HandleFunc("/remediations/{id:[0-9]+}/advance", s.handleAdvanceRemediation).Methods(http.MethodPost)

	api.HandleFunc("/admin/orphan-incidents", s.handleOrphanIncidents).Methods(http.MethodGet)
	api.HandleFunc("/admin/orphan-incidents/purge", s.handlePurgeOrphans).Methods(http.MethodPost)
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe blocks until the context is cancelled or the listener
// fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		MaxHeaderBytes:    s.cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		util.Infof("http server listening on %s", s.cfg.Listen)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// recordEvent writes one entry to the operational audit trail. Trail
// write failures are logged, never surfaced to the client.
func recordEvent(r *http.Request, operation, customer, device string) {
	event := audit.NewEvent("api", operation).
		WithTarget(customer, device).
		WithClientIP(r.RemoteAddr)
	if err := audit.Log(event); err != nil {
		util.Debugf("audit trail write failed: %v", err)
	}
}

// pathID extracts the numeric {id} route variable.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// writeJSON is the single success serializer.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		util.Debugf("response encode failed: %v", err)
	}
}

// writeError emits the {"error": ...} envelope every failure path uses.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
