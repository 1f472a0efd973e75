package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/driftwatch-net/driftwatch/pkg/schema"
	"github.com/driftwatch-net/driftwatch/pkg/util"
)

// AuditReportRow is the archived outcome of one device audit.
type AuditReportRow struct {
	AuditID       string          `json:"audit_id"`
	CustomerID    string          `json:"customer_id"`
	DeviceID      string          `json:"device_id"`
	Timestamp     time.Time       `json:"audit_timestamp"`
	Severity      int             `json:"severity"`
	SeverityLabel string          `json:"severity_label"`
	HasDrift      bool            `json:"has_drift"`
	Summary       string          `json:"summary"`
	Drift         json.RawMessage `json:"drift,omitempty"`
}

// InsertAuditReport archives one report row.
func (s *Store) InsertAuditReport(r AuditReportRow) error {
	var drift sql.NullString
	if len(r.Drift) > 0 {
		drift = sql.NullString{String: string(r.Drift), Valid: true}
	}
	_, err := s.db.Exec(
		`INSERT INTO audit_reports
		   (audit_id, customer_id, device_id, audit_timestamp, severity, severity_label, has_drift, summary, drift_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.AuditID, r.CustomerID, r.DeviceID,
		r.Timestamp.UTC().Format(timeFormat),
		r.Severity, r.SeverityLabel, boolInt(r.HasDrift), r.Summary, drift)
	return storeErr(err)
}

// AuditHistory lists archived reports newest first, optionally scoped
// to one device and floored at a minimum severity.
func (s *Store) AuditHistory(customer, device string, minSeverity schema.Severity, limit int) ([]AuditReportRow, error) {
	query := `SELECT audit_id, customer_id, device_id, audit_timestamp, severity, severity_label, has_drift, summary, drift_json
		FROM audit_reports WHERE severity >= ?`
	args := []interface{}{int(minSeverity)}
	if customer != "" {
		query += " AND customer_id = ?"
		args = append(args, customer)
	}
	if device != "" {
		query += " AND device_id = ?"
		args = append(args, device)
	}
	query += " ORDER BY audit_timestamp DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var out []AuditReportRow
	for rows.Next() {
		var r AuditReportRow
		var ts string
		var hasDrift int
		var drift sql.NullString
		if err := rows.Scan(&r.AuditID, &r.CustomerID, &r.DeviceID, &ts,
			&r.Severity, &r.SeverityLabel, &hasDrift, &r.Summary, &drift); err != nil {
			return nil, storeErr(err)
		}
		r.Timestamp = parseTime(ts)
		r.HasDrift = hasDrift != 0
		if drift.Valid {
			r.Drift = json.RawMessage(drift.String)
		}
		out = append(out, r)
	}
	return out, storeErr(rows.Err())
}

// AuditStats returns archived-report counts per severity label.
func (s *Store) AuditStats(customer string) (map[string]int, error) {
	query := `SELECT severity_label, COUNT(*) FROM audit_reports`
	var args []interface{}
	if customer != "" {
		query += " WHERE customer_id = ?"
		args = append(args, customer)
	}
	query += " GROUP BY severity_label"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	stats := map[string]int{}
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, storeErr(err)
		}
		stats[label] = n
	}
	return stats, storeErr(rows.Err())
}

// LatestAuditReport returns the newest archived report for one device.
func (s *Store) LatestAuditReport(customer, device string) (AuditReportRow, error) {
	rows, err := s.AuditHistory(customer, device, schema.SeverityCompliant, 1)
	if err != nil {
		return AuditReportRow{}, err
	}
	if len(rows) == 0 {
		return AuditReportRow{}, fmt.Errorf("%w: no audit reports for %s/%s", util.ErrNotFound, customer, device)
	}
	return rows[0], nil
}
