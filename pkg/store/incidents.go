package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/driftwatch-net/driftwatch/pkg/schema"
	"github.com/driftwatch-net/driftwatch/pkg/util"
)

// severityRankCase orders severity labels inside SQL for min-severity
// filtering. Mirrors schema.SeverityRank.
const severityRankCase = `CASE UPPER(severity)
	WHEN 'CRITICAL' THEN 5
	WHEN 'HIGH' THEN 4
	WHEN 'MEDIUM' THEN 3
	WHEN 'WARNING' THEN 2
	WHEN 'LOW' THEN 1
	ELSE 0 END`

var incidentSortOrders = map[string]string{
	"newest":        "timestamp DESC, id DESC",
	"oldest":        "timestamp ASC, id ASC",
	"severity_desc": severityRankCase + " DESC, timestamp DESC, id DESC",
	"severity_asc":  severityRankCase + " ASC, timestamp DESC, id DESC",
}

// IncidentFilter narrows and orders an incident listing. Zero values
// mean "no constraint".
type IncidentFilter struct {
	CustomerID  string
	DeviceID    string
	Vendor      string
	Severity    string
	MinSeverity string
	Status      string
	StartDate   time.Time
	EndDate     time.Time
	Sort        string
	Page        int
	PageSize    int
}

// IncidentPage is one page of a filtered listing.
type IncidentPage struct {
	Incidents []schema.Incident `json:"incidents"`
	Total     int               `json:"total"`
	Page      int               `json:"page"`
	PageSize  int               `json:"page_size"`
	HasNext   bool              `json:"has_next"`
	HasPrev   bool              `json:"has_prev"`
}

// PushIncident appends one incident and returns its id. Timestamp is
// server-assigned; status starts at the stored canon for new.
func (s *Store) PushIncident(customer, device, severity, category, description string, payload interface{}) (int64, error) {
	var payloadJSON sql.NullString
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("incident payload: %w", err)
		}
		payloadJSON = sql.NullString{String: string(data), Valid: true}
	}

	res, err := s.db.Exec(
		`INSERT INTO incidents (timestamp, customer_id, device_id, severity, category, description, payload_json, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(timeFormat), customer, device,
		strings.ToUpper(severity), category, description, payloadJSON,
		schema.NormalizeStatus("new"))
	if err != nil {
		return 0, storeErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storeErr(err)
	}
	return id, nil
}

// GetIncident returns one incident by id.
func (s *Store) GetIncident(id int64) (schema.Incident, error) {
	row := s.db.QueryRow(
		`SELECT id, timestamp, customer_id, device_id, severity, category, description, payload_json, status
		 FROM incidents WHERE id = ?`, id)
	inc, err := scanIncident(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return schema.Incident{}, fmt.Errorf("%w: incident %d", util.ErrNotFound, id)
		}
		return schema.Incident{}, storeErr(err)
	}
	return inc, nil
}

// ListIncidents returns a filtered, sorted, paginated listing. The
// default order is newest first with id as the deterministic tiebreak.
func (s *Store) ListIncidents(f IncidentFilter) (IncidentPage, error) {
	where, args := incidentWhere(f)

	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM incidents`+where, args...).Scan(&total); err != nil {
		return IncidentPage{}, storeErr(err)
	}

	order, ok := incidentSortOrders[f.Sort]
	if !ok {
		order = incidentSortOrders["newest"]
	}
	page := f.Page
	if page < 1 {
		page = 1
	}
	pageSize := f.PageSize
	if pageSize < 1 {
		pageSize = 25
	}

	query := `SELECT id, timestamp, customer_id, device_id, severity, category, description, payload_json, status
		FROM incidents` + where + ` ORDER BY ` + order + ` LIMIT ? OFFSET ?`
	rows, err := s.db.Query(query, append(args, pageSize, (page-1)*pageSize)...)
	if err != nil {
		return IncidentPage{}, storeErr(err)
	}
	defer rows.Close()

	var incidents []schema.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return IncidentPage{}, storeErr(err)
		}
		incidents = append(incidents, inc)
	}
	if err := rows.Err(); err != nil {
		return IncidentPage{}, storeErr(err)
	}

	return IncidentPage{
		Incidents: incidents,
		Total:     total,
		Page:      page,
		PageSize:  pageSize,
		HasNext:   page*pageSize < total,
		HasPrev:   page > 1,
	}, nil
}

func incidentWhere(f IncidentFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}

	if f.CustomerID != "" {
		conds = append(conds, "customer_id = ?")
		args = append(args, f.CustomerID)
	}
	if f.DeviceID != "" {
		conds = append(conds, "device_id = ?")
		args = append(args, f.DeviceID)
	}
	if f.Vendor != "" {
		// vendor lives inside the payload, not in a column
		conds = append(conds, "LOWER(COALESCE(payload_json, '')) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.Vendor)+"%")
	}
	if f.Severity != "" {
		conds = append(conds, "UPPER(severity) = ?")
		args = append(args, strings.ToUpper(f.Severity))
	}
	if f.MinSeverity != "" {
		if rank, ok := schema.SeverityRank[strings.ToUpper(f.MinSeverity)]; ok {
			conds = append(conds, severityRankCase+" >= ?")
			args = append(args, rank)
		}
	}
	if values := schema.StatusFilterValues(f.Status); len(values) > 0 {
		ph := make([]string, len(values))
		for i, v := range values {
			ph[i] = "?"
			args = append(args, v)
		}
		conds = append(conds, "LOWER(status) IN ("+strings.Join(ph, ", ")+")")
	}
	if !f.StartDate.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, f.StartDate.UTC().Format(timeFormat))
	}
	if !f.EndDate.IsZero() {
		conds = append(conds, "timestamp <= ?")
		args = append(args, f.EndDate.UTC().Format(timeFormat))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// UpdateIncidentStatus advances an incident's status. The incident
// itself is write-once; only this column moves.
func (s *Store) UpdateIncidentStatus(id int64, status string) error {
	res, err := s.db.Exec(
		`UPDATE incidents SET status = ? WHERE id = ?`,
		schema.NormalizeStatus(status), id)
	if err != nil {
		return storeErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: incident %d", util.ErrNotFound, id)
	}
	return nil
}

// OpenIncidentCounts returns per-severity counts of open incidents,
// plus the total, optionally scoped to one customer.
func (s *Store) OpenIncidentCounts(customer string) (map[string]int, error) {
	query := `SELECT UPPER(severity), COUNT(*) FROM incidents
		WHERE LOWER(status) IN (` + openStatusPlaceholders() + `)`
	args := openStatusArgs()
	if customer != "" {
		query += " AND customer_id = ?"
		args = append(args, customer)
	}
	query += " GROUP BY UPPER(severity)"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var sev string
		var n int
		if err := rows.Scan(&sev, &n); err != nil {
			return nil, storeErr(err)
		}
		counts[sev] = n
	}
	return counts, storeErr(rows.Err())
}

// OpenIncidentsByDevice returns per-device open incident count and the
// worst open severity rank, scoped to one customer when given.
func (s *Store) OpenIncidentsByDevice(customer string) (map[[2]string]DeviceIncidentSummary, error) {
	query := `SELECT customer_id, device_id, COUNT(*), MAX(` + severityRankCase + `), MAX(UPPER(severity))
		FROM incidents WHERE LOWER(status) IN (` + openStatusPlaceholders() + `)`
	args := openStatusArgs()
	if customer != "" {
		query += " AND customer_id = ?"
		args = append(args, customer)
	}
	query += " GROUP BY customer_id, device_id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	out := map[[2]string]DeviceIncidentSummary{}
	for rows.Next() {
		var cust, dev string
		var summary DeviceIncidentSummary
		var label sql.NullString
		if err := rows.Scan(&cust, &dev, &summary.OpenCount, &summary.WorstRank, &label); err != nil {
			return nil, storeErr(err)
		}
		summary.WorstSeverity = worstLabelForRank(summary.WorstRank)
		if summary.WorstSeverity == "" && label.Valid {
			summary.WorstSeverity = label.String
		}
		out[[2]string{cust, dev}] = summary
	}
	return out, storeErr(rows.Err())
}

// DeviceIncidentSummary aggregates the open incidents of one device.
type DeviceIncidentSummary struct {
	OpenCount     int    `json:"open_incidents"`
	WorstRank     int    `json:"-"`
	WorstSeverity string `json:"worst_severity"`
}

func worstLabelForRank(rank int) string {
	for label, r := range schema.SeverityRank {
		if r == rank {
			return label
		}
	}
	return ""
}

// OrphanIncidents lists incidents whose device is no longer in the
// inventory.
func (s *Store) OrphanIncidents() ([]schema.Incident, error) {
	rows, err := s.db.Query(
		`SELECT i.id, i.timestamp, i.customer_id, i.device_id, i.severity, i.category, i.description, i.payload_json, i.status
		 FROM incidents i
		 LEFT JOIN inventory_devices d
		   ON i.customer_id = d.customer_id AND i.device_id = d.device_id
		 WHERE d.device_id IS NULL
		 ORDER BY i.timestamp DESC, i.id DESC`)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var incidents []schema.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, storeErr(err)
		}
		incidents = append(incidents, inc)
	}
	return incidents, storeErr(rows.Err())
}

// PurgeOrphanIncidents deletes every orphan incident and returns the
// number removed.
func (s *Store) PurgeOrphanIncidents() (int64, error) {
	res, err := s.db.Exec(
		`DELETE FROM incidents WHERE id IN (
			SELECT i.id FROM incidents i
			LEFT JOIN inventory_devices d
			  ON i.customer_id = d.customer_id AND i.device_id = d.device_id
			WHERE d.device_id IS NULL)`)
	if err != nil {
		return 0, storeErr(err)
	}
	n, err := res.RowsAffected()
	return n, storeErr(err)
}

// RecentIncidents returns the newest incidents across all customers.
func (s *Store) RecentIncidents(limit int) ([]schema.Incident, error) {
	if limit < 1 {
		limit = 5
	}
	page, err := s.ListIncidents(IncidentFilter{Sort: "newest", Page: 1, PageSize: limit})
	if err != nil {
		return nil, err
	}
	return page.Incidents, nil
}

func openStatusPlaceholders() string {
	ph := make([]string, len(schema.OpenIncidentStatuses))
	for i := range ph {
		ph[i] = "?"
	}
	return strings.Join(ph, ", ")
}

func openStatusArgs() []interface{} {
	args := make([]interface{}, len(schema.OpenIncidentStatuses))
	for i, s := range schema.OpenIncidentStatuses {
		args[i] = s
	}
	return args
}

func scanIncident(row rowScanner) (schema.Incident, error) {
	var inc schema.Incident
	var ts string
	var payload sql.NullString
	err := row.Scan(&inc.ID, &ts, &inc.CustomerID, &inc.DeviceID,
		&inc.Severity, &inc.Category, &inc.Description, &payload, &inc.Status)
	if err != nil {
		return schema.Incident{}, err
	}
	inc.Timestamp = parseTime(ts)
	if payload.Valid {
		inc.Payload = json.RawMessage(payload.String)
	}
	return inc, nil
}
