package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/driftwatch-net/driftwatch/pkg/schema"
	"github.com/driftwatch-net/driftwatch/pkg/util"
)

const timeFormat = time.RFC3339

func parseTime(s string) time.Time {
	if t, err := time.Parse(timeFormat, s); err == nil {
		return t
	}
	// rows written by sqlite's datetime('now')
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

// CreateDevice inserts one inventory row. Both uniqueness constraints
// are checked up front so the caller gets a message naming the
// conflicting pair instead of a bare constraint error.
func (s *Store) CreateDevice(d schema.InventoryDevice) error {
	if err := d.Validate(); err != nil {
		return err
	}

	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM inventory_devices WHERE customer_id = ? AND device_id = ?`,
		d.CustomerID, d.DeviceID).Scan(&n)
	if err != nil {
		return storeErr(err)
	}
	if n > 0 {
		return fmt.Errorf("%w: device %s/%s already exists", util.ErrStoreConstraint, d.CustomerID, d.DeviceID)
	}
	err = s.db.QueryRow(
		`SELECT COUNT(*) FROM inventory_devices WHERE host = ? AND port = ?`,
		d.Host, d.Port).Scan(&n)
	if err != nil {
		return storeErr(err)
	}
	if n > 0 {
		return fmt.Errorf("%w: endpoint %s:%d already onboarded", util.ErrStoreConstraint, d.Host, d.Port)
	}

	created := d.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err = s.db.Exec(
		`INSERT INTO inventory_devices (customer_id, device_id, vendor, host, port, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.CustomerID, d.DeviceID, d.Vendor, d.Host, d.Port, boolInt(d.Active), created.Format(timeFormat))
	return storeErr(err)
}

// DeleteDevice removes one inventory row. Used by onboarding rollback.
func (s *Store) DeleteDevice(customer, device string) error {
	res, err := s.db.Exec(
		`DELETE FROM inventory_devices WHERE customer_id = ? AND device_id = ?`,
		customer, device)
	if err != nil {
		return storeErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: device %s/%s", util.ErrNotFound, customer, device)
	}
	return nil
}

// GetDevice returns one inventory row.
func (s *Store) GetDevice(customer, device string) (schema.InventoryDevice, error) {
	row := s.db.QueryRow(
		`SELECT customer_id, device_id, vendor, host, port, active, created_at
		 FROM inventory_devices WHERE customer_id = ? AND device_id = ?`,
		customer, device)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return schema.InventoryDevice{}, fmt.Errorf("%w: device %s/%s", util.ErrNotFound, customer, device)
		}
		return schema.InventoryDevice{}, storeErr(err)
	}
	return d, nil
}

// ListDevices returns inventory rows, optionally filtered to one
// customer or to active rows only. Ordered by customer then device.
func (s *Store) ListDevices(customer string, activeOnly bool) ([]schema.InventoryDevice, error) {
	query := `SELECT customer_id, device_id, vendor, host, port, active, created_at
		FROM inventory_devices`
	var conds []string
	var args []interface{}
	if customer != "" {
		conds = append(conds, "customer_id = ?")
		args = append(args, customer)
	}
	if activeOnly {
		conds = append(conds, "active = 1")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY customer_id, device_id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var devices []schema.InventoryDevice
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, storeErr(err)
		}
		devices = append(devices, d)
	}
	return devices, storeErr(rows.Err())
}

// ToggleActive flips the active flag and returns the new value.
func (s *Store) ToggleActive(customer, device string) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE inventory_devices SET active = 1 - active
		 WHERE customer_id = ? AND device_id = ?`,
		customer, device)
	if err != nil {
		return false, storeErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, fmt.Errorf("%w: device %s/%s", util.ErrNotFound, customer, device)
	}
	d, err := s.GetDevice(customer, device)
	if err != nil {
		return false, err
	}
	return d.Active, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDevice(row rowScanner) (schema.InventoryDevice, error) {
	var d schema.InventoryDevice
	var active int
	var created string
	err := row.Scan(&d.CustomerID, &d.DeviceID, &d.Vendor, &d.Host, &d.Port, &active, &created)
	if err != nil {
		return schema.InventoryDevice{}, err
	}
	d.Active = active != 0
	d.CreatedAt = parseTime(created)
	return d, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
