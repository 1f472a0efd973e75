package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/driftwatch-net/driftwatch/pkg/util"
)

// Remediation states. The pipeline is a stub: rows and transitions are
// stored, nothing is ever pushed to a device.
const (
	RemediationNew       = "novo"
	RemediationAnalyzing = "em_analise"
	RemediationApproved  = "aprovado"
	RemediationExecuted  = "executado"
	RemediationValidated = "validado"
	RemediationFailed    = "falhou"
	RemediationReverted  = "revertido"
)

// valid transitions of the remediation state machine
var remediationTransitions = map[string][]string{
	RemediationNew:       {RemediationAnalyzing},
	RemediationAnalyzing: {RemediationApproved, RemediationFailed},
	RemediationApproved:  {RemediationExecuted, RemediationFailed},
	RemediationExecuted:  {RemediationValidated, RemediationFailed},
	RemediationFailed:    {RemediationReverted},
	RemediationReverted:  {},
	RemediationValidated: {},
}

// Remediation is one suggested fix tied to an incident.
type Remediation struct {
	ID         int64     `json:"id"`
	IncidentID int64     `json:"incident_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	State      string    `json:"state"`
	Suggestion string    `json:"suggestion,omitempty"`
	Notes      string    `json:"notes,omitempty"`
}

// CreateRemediation opens a remediation row in the initial state.
func (s *Store) CreateRemediation(incidentID int64, suggestion string) (int64, error) {
	if _, err := s.GetIncident(incidentID); err != nil {
		return 0, err
	}
	now := time.Now().UTC().Format(timeFormat)
	res, err := s.db.Exec(
		`INSERT INTO remediations (incident_id, created_at, updated_at, state, suggestion)
		 VALUES (?, ?, ?, ?, ?)`,
		incidentID, now, now, RemediationNew, suggestion)
	if err != nil {
		return 0, storeErr(err)
	}
	id, err := res.LastInsertId()
	return id, storeErr(err)
}

// AdvanceRemediation moves a row to the requested state, rejecting
// transitions the state machine does not allow.
func (s *Store) AdvanceRemediation(id int64, state, notes string) error {
	r, err := s.GetRemediation(id)
	if err != nil {
		return err
	}

	allowed := false
	for _, next := range remediationTransitions[r.State] {
		if next == state {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: remediation %d cannot move %s -> %s",
			util.ErrValidationFailed, id, r.State, state)
	}

	_, err = s.db.Exec(
		`UPDATE remediations SET state = ?, notes = ?, updated_at = ? WHERE id = ?`,
		state, notes, time.Now().UTC().Format(timeFormat), id)
	return storeErr(err)
}

// GetRemediation returns one remediation row.
func (s *Store) GetRemediation(id int64) (Remediation, error) {
	row := s.db.QueryRow(
		`SELECT id, incident_id, created_at, updated_at, state, suggestion, notes
		 FROM remediations WHERE id = ?`, id)
	r, err := scanRemediation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Remediation{}, fmt.Errorf("%w: remediation %d", util.ErrNotFound, id)
		}
		return Remediation{}, storeErr(err)
	}
	return r, nil
}

// ListRemediations returns rows, optionally filtered by state.
func (s *Store) ListRemediations(state string) ([]Remediation, error) {
	query := `SELECT id, incident_id, created_at, updated_at, state, suggestion, notes
		FROM remediations`
	var args []interface{}
	if state != "" {
		query += " WHERE state = ?"
		args = append(args, state)
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var out []Remediation
	for rows.Next() {
		r, err := scanRemediation(rows)
		if err != nil {
			return nil, storeErr(err)
		}
		out = append(out, r)
	}
	return out, storeErr(rows.Err())
}

// RemediationCounts returns {pending_approval, executed_today, failed}
// for the overview KPIs.
func (s *Store) RemediationCounts() (map[string]int, error) {
	counts := map[string]int{
		"pending_approval": 0,
		"executed_today":   0,
		"failed":           0,
	}

	var pending int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM remediations WHERE state IN (?, ?)`,
		RemediationNew, RemediationAnalyzing).Scan(&pending)
	if err != nil {
		return nil, storeErr(err)
	}
	counts["pending_approval"] = pending

	today := time.Now().UTC().Truncate(24 * time.Hour).Format(timeFormat)
	var executed int
	err = s.db.QueryRow(
		`SELECT COUNT(*) FROM remediations WHERE state IN (?, ?) AND updated_at >= ?`,
		RemediationExecuted, RemediationValidated, today).Scan(&executed)
	if err != nil {
		return nil, storeErr(err)
	}
	counts["executed_today"] = executed

	var failed int
	err = s.db.QueryRow(
		`SELECT COUNT(*) FROM remediations WHERE state = ?`,
		RemediationFailed).Scan(&failed)
	if err != nil {
		return nil, storeErr(err)
	}
	counts["failed"] = failed

	return counts, nil
}

func scanRemediation(row rowScanner) (Remediation, error) {
	var r Remediation
	var created, updated string
	var suggestion, notes sql.NullString
	err := row.Scan(&r.ID, &r.IncidentID, &created, &updated, &r.State, &suggestion, &notes)
	if err != nil {
		return Remediation{}, err
	}
	r.CreatedAt = parseTime(created)
	r.UpdatedAt = parseTime(updated)
	r.Suggestion = suggestion.String
	r.Notes = notes.String
	return r, nil
}
