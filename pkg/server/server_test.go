package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftwatch-net/driftwatch/internal/testutil"
	"github.com/driftwatch-net/driftwatch/pkg/auditor"
	"github.com/driftwatch-net/driftwatch/pkg/health"
	"github.com/driftwatch-net/driftwatch/pkg/schema"
	"github.com/driftwatch-net/driftwatch/pkg/store"
	"github.com/driftwatch-net/driftwatch/pkg/vault"
)

type serverHarness struct {
	server    *Server
	store     *store.Store
	vault     *vault.Vault
	vaultPath string
}

func newServerHarness(t *testing.T, cfg Config) *serverHarness {
	t.Helper()

	key, err := vault.GenerateKey()
	require.NoError(t, err)
	t.Setenv(vault.MasterKeyEnv, key)

	vaultPath := filepath.Join(t.TempDir(), "vault")
	vlt, err := vault.Open(vaultPath)
	require.NoError(t, err)

	st := testutil.TempStore(t)
	srv := New(Options{
		Config:    cfg,
		Store:     st,
		Vault:     vlt,
		Overview:  &health.Overview{Store: st},
		Baselines: &auditor.BaselineStore{Dir: t.TempDir()},
	})
	return &serverHarness{server: srv, store: st, vault: vlt, vaultPath: vaultPath}
}

func (h *serverHarness) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func jsonBody(t *testing.T, v interface{}) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

func TestPingIsPublic(t *testing.T) {
	h := newServerHarness(t, Config{APIToken: "secret"})

	rec := h.do(httptest.NewRequest(http.MethodGet, "/health/ping", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestTokenAuth(t *testing.T) {
	h := newServerHarness(t, Config{APIToken: "secret"})

	rec := h.do(httptest.NewRequest(http.MethodGet, "/devices/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error"`)

	req := httptest.NewRequest(http.MethodGet, "/devices/", nil)
	req.Header.Set("X-API-Token", "wrong")
	rec = h.do(req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/devices/", nil)
	req.Header.Set("X-API-Token", "secret")
	rec = h.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// an empty API token is development mode: everything passes
func TestTokenAuthDevMode(t *testing.T) {
	h := newServerHarness(t, Config{})
	rec := h.do(httptest.NewRequest(http.MethodGet, "/devices/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOnboardAndGetDevice(t *testing.T) {
	h := newServerHarness(t, Config{})

	rec := h.do(httptest.NewRequest(http.MethodPost, "/devices/onboard", jsonBody(t, map[string]interface{}{
		"customer_id": "acme",
		"device_id":   "sw1",
		"vendor":      "mikrotik",
		"host":        "10.0.0.1",
		"port":        22,
		"username":    "audit",
		"password":    "hunter2-secret",
	})))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// both stores agree
	_, err := h.store.GetDevice("acme", "sw1")
	assert.NoError(t, err)
	cred, err := h.vault.Get("acme", "sw1")
	require.NoError(t, err)
	assert.Equal(t, "hunter2-secret", cred.Password)

	rec = h.do(httptest.NewRequest(http.MethodGet, "/devices/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Equal(t, 1, listing.Total)
}

func TestOnboardValidation(t *testing.T) {
	h := newServerHarness(t, Config{})

	rec := h.do(httptest.NewRequest(http.MethodPost, "/devices/onboard", jsonBody(t, map[string]interface{}{
		"customer_id": "acme",
	})))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(httptest.NewRequest(http.MethodPost, "/devices/onboard", strings.NewReader("{broken")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// when the credential write fails the inventory row must not survive
func TestOnboardRollsBackOnVaultFailure(t *testing.T) {
	h := newServerHarness(t, Config{})

	// a corrupt vault file makes every Save fail
	require.NoError(t, os.WriteFile(h.vaultPath, []byte("!!not a vault!!"), 0o600))

	rec := h.do(httptest.NewRequest(http.MethodPost, "/devices/onboard", jsonBody(t, map[string]interface{}{
		"customer_id": "acme",
		"device_id":   "sw1",
		"vendor":      "mikrotik",
		"host":        "10.0.0.1",
		"port":        22,
		"username":    "audit",
		"password":    "hunter2-secret",
	})))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "rolled back")

	devices, err := h.store.ListDevices("", false)
	require.NoError(t, err)
	assert.Empty(t, devices, "inventory row must be rolled back")
}

func TestGetDeviceNotFound(t *testing.T) {
	h := newServerHarness(t, Config{})
	rec := h.do(httptest.NewRequest(http.MethodGet, "/devices/acme/ghost", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIncidentEndpoints(t *testing.T) {
	h := newServerHarness(t, Config{})
	id, err := h.store.PushIncident("acme", "sw1", "HIGH", "config_drift", "mtu changed", nil)
	require.NoError(t, err)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/incidents/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var page store.IncidentPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Total)

	rec = h.do(httptest.NewRequest(http.MethodGet, "/incidents/999", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(httptest.NewRequest(http.MethodPost, "/incidents/1/status",
		jsonBody(t, map[string]string{"status": "em_analise"})))
	require.Equal(t, http.StatusOK, rec.Code)
	inc, err := h.store.GetIncident(id)
	require.NoError(t, err)
	assert.Equal(t, "em_analise", inc.Status)

	rec = h.do(httptest.NewRequest(http.MethodGet, "/incidents/?start_date=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminGate(t *testing.T) {
	h := newServerHarness(t, Config{APIToken: "secret", AdminToken: "admin-secret"})

	authed := func(method, path string, body *bytes.Reader) *http.Request {
		var req *http.Request
		if body != nil {
			req = httptest.NewRequest(method, path, body)
		} else {
			req = httptest.NewRequest(method, path, nil)
		}
		req.Header.Set("X-API-Token", "secret")
		return req
	}

	// API token alone is not enough for admin surfaces
	rec := h.do(authed(http.MethodGet, "/admin/orphan-incidents", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req := authed(http.MethodGet, "/admin/orphan-incidents", nil)
	req.Header.Set("X-Admin-Token", "admin-secret")
	rec = h.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// the admin_token parameter is equivalent to the header
	rec = h.do(authed(http.MethodGet, "/admin/orphan-incidents?admin_token=admin-secret", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(authed(http.MethodGet, "/admin/orphan-incidents?admin_token=wrong", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// purge refuses to run without the explicit confirmation
	req = authed(http.MethodPost, "/admin/orphan-incidents/purge", jsonBody(t, map[string]string{}))
	req.Header.Set("X-Admin-Token", "admin-secret")
	rec = h.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = authed(http.MethodPost, "/admin/orphan-incidents/purge", jsonBody(t, map[string]string{"confirm": "yes"}))
	req.Header.Set("X-Admin-Token", "admin-secret")
	rec = h.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOverviewEndpoint(t *testing.T) {
	h := newServerHarness(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/health/overview", nil)
	req.Header.Set("Accept", "application/json")
	rec := h.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	var bundle map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bundle))
	assert.Contains(t, bundle, "devices")
	assert.Contains(t, bundle, "incidents")

	// without the Accept header the same bundle renders as HTML
	rec = h.do(httptest.NewRequest(http.MethodGet, "/health/overview", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
}

func TestStreamFraming(t *testing.T) {
	h := newServerHarness(t, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/health/stream?interval=5", nil).WithContext(ctx)

	rec := h.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))

	body := rec.Body.String()
	if !strings.HasPrefix(body, "retry: 5000\n\n") {
		t.Errorf("stream must open with the retry directive, got %q", body[:min(len(body), 40)])
	}
	assert.Contains(t, body, "data: {", "first bundle frame goes out immediately")
}

func TestStreamIntervalClamp(t *testing.T) {
	h := newServerHarness(t, Config{SSEIntervalSecs: 30})

	tests := []struct {
		query string
		want  time.Duration
	}{
		{"", 30 * time.Second},
		{"?interval=10", 10 * time.Second},
		{"?interval=1", 5 * time.Second},
		{"?interval=9999", 300 * time.Second},
		{"?interval=junk", 30 * time.Second},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/health/stream"+tt.query, nil)
		if got := h.server.streamInterval(req); got != tt.want {
			t.Errorf("streamInterval(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestTopologyEndpoints(t *testing.T) {
	h := newServerHarness(t, Config{})

	rec := h.do(httptest.NewRequest(http.MethodPost, "/topology/authorize",
		jsonBody(t, map[string]string{"customer_id": "acme", "mac_address": "aa-bb-cc-dd-ee-01"})))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(httptest.NewRequest(http.MethodGet, "/topology/nodes?customer=acme", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "AA:BB:CC:DD:EE:01")

	rec = h.do(httptest.NewRequest(http.MethodPost, "/topology/authorize",
		jsonBody(t, map[string]string{"customer_id": "acme", "mac_address": "not-a-mac"})))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// no scanner wired
	rec = h.do(httptest.NewRequest(http.MethodPost, "/topology/scan", jsonBody(t, map[string]string{})))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTopologySummary(t *testing.T) {
	h := newServerHarness(t, Config{})

	vlan := 20
	now := time.Now().UTC()
	require.NoError(t, h.store.UpsertNode(schema.NetworkNode{
		CustomerID: "acme", DeviceID: "sw1", MACAddress: "AA:BB:CC:DD:EE:01",
		IPAddress: "10.0.20.5", VLANID: &vlan, FirstSeen: now, LastSeen: now,
	}))
	require.NoError(t, h.store.UpsertNode(schema.NetworkNode{
		CustomerID: "acme", DeviceID: "sw1", MACAddress: "AA:BB:CC:DD:EE:02",
		FirstSeen: now, LastSeen: now,
	}))
	require.NoError(t, h.store.AuthorizeNode("acme", "AA:BB:CC:DD:EE:01"))

	rec := h.do(httptest.NewRequest(http.MethodGet, "/topology/?customer=acme", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Nodes []schema.NetworkNode `json:"nodes"`
		KPIs  map[string]int       `json:"kpis"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Nodes, 2)
	assert.Equal(t, 2, body.KPIs["total"])
	assert.Equal(t, 1, body.KPIs["authorized"])
	assert.Equal(t, 1, body.KPIs["unauthorized"])
	assert.Equal(t, 1, body.KPIs["with_ip"])
	assert.Equal(t, 1, body.KPIs["vlans"])
}
