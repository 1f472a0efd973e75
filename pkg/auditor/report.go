package auditor

import (
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/driftwatch-net/driftwatch/pkg/diff"
	"github.com/driftwatch-net/driftwatch/pkg/schema"
	"github.com/driftwatch-net/driftwatch/pkg/store"
	"github.com/driftwatch-net/driftwatch/pkg/util"
)

// Report is the archived outcome of one device audit.
type Report struct {
	AuditID       string       `json:"audit_id"`
	CustomerID    string       `json:"customer_id"`
	DeviceID      string       `json:"device_id"`
	Timestamp     time.Time    `json:"audit_timestamp"`
	Severity      int          `json:"severity"`
	SeverityLabel string       `json:"severity_label"`
	HasDrift      bool         `json:"has_drift"`
	Summary       string       `json:"drift_summary"`
	Drift         *diff.Report `json:"drift_data,omitempty"`
}

// NewReport stamps a report with a fresh audit id.
func NewReport(customer, device string, severity schema.Severity, drift *diff.Report) *Report {
	return &Report{
		AuditID:       uuid.NewString(),
		CustomerID:    customer,
		DeviceID:      device,
		Timestamp:     time.Now().UTC(),
		Severity:      int(severity),
		SeverityLabel: severity.String(),
		HasDrift:      drift.HasDrift(),
		Summary:       drift.Summary(),
		Drift:         drift,
	}
}

// Archiver persists reports to the filesystem and the store. Each sink
// fails independently; one broken sink never blocks the others.
type Archiver struct {
	Dir   string
	Store *store.Store
}

// Persist writes the JSON file, the HTML file and the database row.
// Returns the first error for the caller's log; the other sinks still
// ran.
func (a *Archiver) Persist(r *Report) error {
	var firstErr error
	record := func(sink string, err error) {
		if err == nil {
			return
		}
		util.WithFields(map[string]interface{}{
			"customer": r.CustomerID,
			"device":   r.DeviceID,
		}).Warnf("report %s sink failed: %v", sink, err)
		if firstErr == nil {
			firstErr = err
		}
	}

	if a.Dir != "" {
		record("json", a.writeJSON(r))
		record("html", a.writeHTML(r))
	}
	if a.Store != nil {
		record("store", a.insertRow(r))
	}
	return firstErr
}

func (a *Archiver) reportPath(r *Report, ext string) (string, error) {
	dir := filepath.Join(a.Dir, r.CustomerID, r.DeviceID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, r.Timestamp.Format("20060102_150405")+ext), nil
}

func (a *Archiver) writeJSON(r *Report) error {
	path, err := a.reportPath(r, ".json")
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Audit {{.AuditID}}</title></head>
<body>
<h1>Configuration audit</h1>
<table>
<tr><td>Audit</td><td>{{.AuditID}}</td></tr>
<tr><td>Customer</td><td>{{.CustomerID}}</td></tr>
<tr><td>Device</td><td>{{.DeviceID}}</td></tr>
<tr><td>Timestamp</td><td>{{.Timestamp}}</td></tr>
<tr><td>Severity</td><td>{{.SeverityLabel}}</td></tr>
<tr><td>Drift</td><td>{{.Summary}}</td></tr>
</table>
{{if .DriftJSON}}<h2>Detail</h2><pre>{{.DriftJSON}}</pre>{{end}}
</body>
</html>
`))

func (a *Archiver) writeHTML(r *Report) error {
	path, err := a.reportPath(r, ".html")
	if err != nil {
		return err
	}

	var driftJSON string
	if r.HasDrift {
		data, err := json.MarshalIndent(r.Drift, "", "  ")
		if err == nil {
			driftJSON = string(data)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return reportTemplate.Execute(f, struct {
		*Report
		DriftJSON string
	}{r, driftJSON})
}

func (a *Archiver) insertRow(r *Report) error {
	var driftJSON json.RawMessage
	if r.Drift != nil {
		data, err := json.Marshal(r.Drift)
		if err != nil {
			return fmt.Errorf("encoding drift payload: %w", err)
		}
		driftJSON = data
	}
	return a.Store.InsertAuditReport(store.AuditReportRow{
		AuditID:       r.AuditID,
		CustomerID:    r.CustomerID,
		DeviceID:      r.DeviceID,
		Timestamp:     r.Timestamp,
		Severity:      r.Severity,
		SeverityLabel: r.SeverityLabel,
		HasDrift:      r.HasDrift,
		Summary:       r.Summary,
		Drift:         driftJSON,
	})
}
