package store

import (
	"database/sql"
	"time"

	"github.com/driftwatch-net/driftwatch/pkg/schema"
)

// UpsertNode writes one correlated node. The conflict clause keeps the
// invariants the scanner must not break: first_seen is preserved,
// last_seen advances, authorized never drops back to 0 once set.
func (s *Store) UpsertNode(n schema.NetworkNode) error {
	_, err := s.db.Exec(
		`INSERT INTO topology_nodes
		   (customer_id, device_id, mac_address, ip_address, hostname, vlan_id, switch_port, vendor_oui, first_seen, last_seen, authorized)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(customer_id, mac_address) DO UPDATE SET
		   device_id = excluded.device_id,
		   ip_address = COALESCE(NULLIF(excluded.ip_address, ''), topology_nodes.ip_address),
		   hostname = COALESCE(NULLIF(excluded.hostname, ''), topology_nodes.hostname),
		   vlan_id = COALESCE(excluded.vlan_id, topology_nodes.vlan_id),
		   switch_port = COALESCE(NULLIF(excluded.switch_port, ''), topology_nodes.switch_port),
		   vendor_oui = COALESCE(NULLIF(excluded.vendor_oui, ''), topology_nodes.vendor_oui),
		   last_seen = MAX(topology_nodes.last_seen, excluded.last_seen),
		   authorized = CASE WHEN topology_nodes.authorized = 1 THEN 1 ELSE excluded.authorized END`,
		n.CustomerID, n.DeviceID, n.MACAddress,
		nullStr(n.IPAddress), nullStr(n.Hostname), nullIntPtr(n.VLANID),
		nullStr(n.SwitchPort), nullStr(n.VendorOUI),
		n.FirstSeen.UTC().Format(timeFormat), n.LastSeen.UTC().Format(timeFormat),
		boolInt(n.Authorized))
	return storeErr(err)
}

// AuthorizeNode marks (customer, mac) as authorized. Operator action
// only; scans never call this.
func (s *Store) AuthorizeNode(customer, mac string) error {
	res, err := s.db.Exec(
		`UPDATE topology_nodes SET authorized = 1
		 WHERE customer_id = ? AND mac_address = ?`,
		customer, mac)
	if err != nil {
		return storeErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// node not seen yet; record the authorization anyway so the
		// next scan starts from it
		now := time.Now().UTC().Format(timeFormat)
		_, err = s.db.Exec(
			`INSERT INTO topology_nodes (customer_id, device_id, mac_address, first_seen, last_seen, authorized)
			 VALUES (?, '', ?, ?, ?, 1)`,
			customer, mac, now, now)
		return storeErr(err)
	}
	return nil
}

// ListNodes returns nodes ordered by last_seen, newest first, scoped
// to one customer when given.
func (s *Store) ListNodes(customer string) ([]schema.NetworkNode, error) {
	query := `SELECT customer_id, device_id, mac_address, ip_address, hostname, vlan_id, switch_port, vendor_oui, first_seen, last_seen, authorized
		FROM topology_nodes`
	var args []interface{}
	if customer != "" {
		query += " WHERE customer_id = ?"
		args = append(args, customer)
	}
	query += " ORDER BY last_seen DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var nodes []schema.NetworkNode
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, storeErr(err)
		}
		nodes = append(nodes, n)
	}
	return nodes, storeErr(rows.Err())
}

// GetNode returns one node by (customer, mac).
func (s *Store) GetNode(customer, mac string) (schema.NetworkNode, error) {
	row := s.db.QueryRow(
		`SELECT customer_id, device_id, mac_address, ip_address, hostname, vlan_id, switch_port, vendor_oui, first_seen, last_seen, authorized
		 FROM topology_nodes WHERE customer_id = ? AND mac_address = ?`,
		customer, mac)
	n, err := scanNode(row)
	if err != nil {
		return schema.NetworkNode{}, storeErr(err)
	}
	return n, nil
}

// AuthorizedVLANMap returns {mac: set of vlan ids} for every authorized
// node of a customer that carries a vlan.
func (s *Store) AuthorizedVLANMap(customer string) (map[string]map[int]bool, error) {
	rows, err := s.db.Query(
		`SELECT mac_address, vlan_id FROM topology_nodes
		 WHERE customer_id = ? AND authorized = 1 AND vlan_id IS NOT NULL`,
		customer)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	out := map[string]map[int]bool{}
	for rows.Next() {
		var mac string
		var vlan int
		if err := rows.Scan(&mac, &vlan); err != nil {
			return nil, storeErr(err)
		}
		if out[mac] == nil {
			out[mac] = map[int]bool{}
		}
		out[mac][vlan] = true
	}
	return out, storeErr(rows.Err())
}

// InsertARPEntries appends one collection batch of ARP rows.
func (s *Store) InsertARPEntries(customer, device string, entries []schema.ARPEntry, collectedAt time.Time) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return storeErr(err)
	}
	stmt, err := tx.Prepare(
		`INSERT INTO topology_arp (customer_id, device_id, ip_address, mac_address, interface, vlan_id, collected_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return storeErr(err)
	}
	defer stmt.Close()

	ts := collectedAt.UTC().Format(timeFormat)
	for _, e := range entries {
		if _, err := stmt.Exec(customer, device, e.IPAddress, e.MACAddress,
			nullStr(e.Interface), nullIntPtr(e.VLANID), ts); err != nil {
			tx.Rollback()
			return storeErr(err)
		}
	}
	return storeErr(tx.Commit())
}

// InsertMACEntries appends one collection batch of bridge table rows.
func (s *Store) InsertMACEntries(customer, device string, entries []schema.MACEntry, collectedAt time.Time) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return storeErr(err)
	}
	stmt, err := tx.Prepare(
		`INSERT INTO topology_mac (customer_id, device_id, mac_address, vlan_id, switch_port, collected_at)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return storeErr(err)
	}
	defer stmt.Close()

	ts := collectedAt.UTC().Format(timeFormat)
	for _, e := range entries {
		if _, err := stmt.Exec(customer, device, e.MACAddress,
			nullIntPtr(e.VLANID), nullStr(e.SwitchPort), ts); err != nil {
			tx.Rollback()
			return storeErr(err)
		}
	}
	return storeErr(tx.Commit())
}

// InsertLLDPEntries appends one collection batch of LLDP rows.
func (s *Store) InsertLLDPEntries(customer, device string, entries []schema.LLDPNeighbor, collectedAt time.Time) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return storeErr(err)
	}
	stmt, err := tx.Prepare(
		`INSERT INTO topology_lldp (customer_id, device_id, local_interface, remote_device, remote_port, remote_mac, remote_description, collected_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return storeErr(err)
	}
	defer stmt.Close()

	ts := collectedAt.UTC().Format(timeFormat)
	for _, e := range entries {
		if _, err := stmt.Exec(customer, device,
			nullStr(e.LocalInterface), nullStr(e.RemoteDevice), nullStr(e.RemotePort),
			nullStr(e.RemoteMAC), nullStr(e.RemoteDescription), ts); err != nil {
			tx.Rollback()
			return storeErr(err)
		}
	}
	return storeErr(tx.Commit())
}

// LatestARPEntries returns the most recent collection batch per device
// for a customer, or all customers when blank.
func (s *Store) LatestARPEntries(customer string) ([]map[string]interface{}, error) {
	return s.latestBatch("topology_arp",
		[]string{"ip_address", "mac_address", "interface", "vlan_id"}, customer)
}

// LatestMACEntries returns the most recent bridge table batch.
func (s *Store) LatestMACEntries(customer string) ([]map[string]interface{}, error) {
	return s.latestBatch("topology_mac",
		[]string{"mac_address", "vlan_id", "switch_port"}, customer)
}

// LatestLLDPEntries returns the most recent LLDP batch.
func (s *Store) LatestLLDPEntries(customer string) ([]map[string]interface{}, error) {
	return s.latestBatch("topology_lldp",
		[]string{"local_interface", "remote_device", "remote_port", "remote_mac", "remote_description"}, customer)
}

func (s *Store) latestBatch(table string, cols []string, customer string) ([]map[string]interface{}, error) {
	selectCols := "t.customer_id, t.device_id, t.collected_at"
	for _, c := range cols {
		selectCols += ", t." + c
	}
	query := `SELECT ` + selectCols + ` FROM ` + table + ` t
		JOIN (SELECT customer_id, device_id, MAX(collected_at) AS latest
		      FROM ` + table + ` GROUP BY customer_id, device_id) m
		  ON t.customer_id = m.customer_id AND t.device_id = m.device_id AND t.collected_at = m.latest`
	var args []interface{}
	if customer != "" {
		query += " WHERE t.customer_id = ?"
		args = append(args, customer)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var out []map[string]interface{}
	for rows.Next() {
		dest := make([]interface{}, 3+len(cols))
		ptrs := make([]interface{}, len(dest))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, storeErr(err)
		}
		m := map[string]interface{}{
			"customer_id":  asString(dest[0]),
			"device_id":    asString(dest[1]),
			"collected_at": asString(dest[2]),
		}
		for i, c := range cols {
			m[c] = dest[3+i]
		}
		out = append(out, m)
	}
	return out, storeErr(rows.Err())
}

func asString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return ""
	}
}

func scanNode(row rowScanner) (schema.NetworkNode, error) {
	var n schema.NetworkNode
	var ip, hostname, port, oui sql.NullString
	var vlan sql.NullInt64
	var first, last string
	var authorized int
	err := row.Scan(&n.CustomerID, &n.DeviceID, &n.MACAddress,
		&ip, &hostname, &vlan, &port, &oui, &first, &last, &authorized)
	if err != nil {
		return schema.NetworkNode{}, err
	}
	n.IPAddress = ip.String
	n.Hostname = hostname.String
	n.SwitchPort = port.String
	n.VendorOUI = oui.String
	if vlan.Valid {
		v := int(vlan.Int64)
		n.VLANID = &v
	}
	n.FirstSeen = parseTime(first)
	n.LastSeen = parseTime(last)
	n.Authorized = authorized != 0
	return n, nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullIntPtr(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
