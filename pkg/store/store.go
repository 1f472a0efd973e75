// Package store is the relational persistence layer: inventory,
// incidents, topology tables, audit report archive and the remediation
// pipeline rows. One SQLite file, WAL mode, short transactions.
package store

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/driftwatch-net/driftwatch/pkg/util"
)

// Store wraps the shared database handle.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrStoreUnavailable, err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", util.ErrStoreUnavailable, err)
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS inventory_devices (
		customer_id TEXT NOT NULL,
		device_id TEXT NOT NULL,
		vendor TEXT NOT NULL,
		host TEXT NOT NULL,
		port INTEGER NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL DEFAULT (datetime('now')),
		UNIQUE(customer_id, device_id),
		UNIQUE(host, port)
	);

	CREATE TABLE IF NOT EXISTS incidents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL DEFAULT (datetime('now')),
		customer_id TEXT NOT NULL,
		device_id TEXT NOT NULL,
		severity TEXT NOT NULL,
		category TEXT NOT NULL,
		description TEXT NOT NULL,
		payload_json TEXT,
		status TEXT NOT NULL DEFAULT 'new'
	);
	CREATE INDEX IF NOT EXISTS idx_incidents_customer ON incidents(customer_id);
	CREATE INDEX IF NOT EXISTS idx_incidents_device ON incidents(device_id);
	CREATE INDEX IF NOT EXISTS idx_incidents_timestamp ON incidents(timestamp);
	CREATE INDEX IF NOT EXISTS idx_incidents_status ON incidents(status);

	CREATE TABLE IF NOT EXISTS topology_nodes (
		customer_id TEXT NOT NULL,
		device_id TEXT NOT NULL,
		mac_address TEXT NOT NULL,
		ip_address TEXT,
		hostname TEXT,
		vlan_id INTEGER,
		switch_port TEXT,
		vendor_oui TEXT,
		first_seen TEXT NOT NULL,
		last_seen TEXT NOT NULL,
		authorized INTEGER NOT NULL DEFAULT 0,
		UNIQUE(customer_id, mac_address)
	);
	CREATE INDEX IF NOT EXISTS idx_topology_nodes_seen ON topology_nodes(last_seen);

	CREATE TABLE IF NOT EXISTS topology_arp (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_id TEXT NOT NULL,
		device_id TEXT NOT NULL,
		ip_address TEXT NOT NULL,
		mac_address TEXT NOT NULL,
		interface TEXT,
		vlan_id INTEGER,
		collected_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_topology_arp_device ON topology_arp(customer_id, device_id, collected_at);

	CREATE TABLE IF NOT EXISTS topology_mac (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_id TEXT NOT NULL,
		device_id TEXT NOT NULL,
		mac_address TEXT NOT NULL,
		vlan_id INTEGER,
		switch_port TEXT,
		collected_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_topology_mac_device ON topology_mac(customer_id, device_id, collected_at);

	CREATE TABLE IF NOT EXISTS topology_lldp (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_id TEXT NOT NULL,
		device_id TEXT NOT NULL,
		local_interface TEXT,
		remote_device TEXT,
		remote_port TEXT,
		remote_mac TEXT,
		remote_description TEXT,
		collected_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_topology_lldp_device ON topology_lldp(customer_id, device_id, collected_at);

	CREATE TABLE IF NOT EXISTS audit_reports (
		audit_id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		device_id TEXT NOT NULL,
		audit_timestamp TEXT NOT NULL,
		severity INTEGER NOT NULL,
		severity_label TEXT NOT NULL,
		has_drift INTEGER NOT NULL,
		summary TEXT,
		drift_json TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_audit_reports_customer ON audit_reports(customer_id);
	CREATE INDEX IF NOT EXISTS idx_audit_reports_device ON audit_reports(device_id);
	CREATE INDEX IF NOT EXISTS idx_audit_reports_timestamp ON audit_reports(audit_timestamp);
	CREATE INDEX IF NOT EXISTS idx_audit_reports_severity ON audit_reports(severity);

	CREATE TABLE IF NOT EXISTS remediations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		incident_id INTEGER NOT NULL,
		created_at TEXT NOT NULL DEFAULT (datetime('now')),
		updated_at TEXT NOT NULL DEFAULT (datetime('now')),
		state TEXT NOT NULL DEFAULT 'novo',
		suggestion TEXT,
		notes TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_remediations_incident ON remediations(incident_id);
	CREATE INDEX IF NOT EXISTS idx_remediations_state ON remediations(state);
	`
	_, err := s.db.Exec(schema)
	return err
}

// storeErr maps low-level database errors onto the store sentinels.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return util.ErrNotFound
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed") {
		return fmt.Errorf("%w: %v", util.ErrStoreConstraint, err)
	}
	return fmt.Errorf("%w: %v", util.ErrStoreUnavailable, err)
}
