// Package snmp collects topology tables over SNMPv2c. It is the
// fallback path when a device's CLI session fails or returns nothing.
package snmp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/driftwatch-net/driftwatch/pkg/schema"
	"github.com/driftwatch-net/driftwatch/pkg/util"
)

// Well-known table OIDs.
const (
	OIDARPTable  = "1.3.6.1.2.1.4.22.1.2"  // ipNetToMediaPhysAddress
	OIDMACTable  = "1.3.6.1.2.1.17.4.3.1.1" // dot1dTpFdbAddress
	OIDLLDPRem   = "1.0.8802.1.1.2.1.4"     // lldpRemTable
	OIDSysDescr  = "1.3.6.1.2.1.1.1.0"
	defaultRows  = 5000
)

// Collector walks one device's SNMP agent.
type Collector struct {
	Host      string
	Community string
	Port      uint16
	Timeout   time.Duration
	MaxRows   int
}

// NewCollector builds a collector with the standard bounds: port 161,
// 2 second timeout, one retry, 5000 row cap.
func NewCollector(host, community string) *Collector {
	return &Collector{
		Host:      host,
		Community: community,
		Port:      161,
		Timeout:   2 * time.Second,
		MaxRows:   defaultRows,
	}
}

type pdu struct {
	oid   string
	value string
}

func (c *Collector) client(ctx context.Context) *gosnmp.GoSNMP {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	port := c.Port
	if port == 0 {
		port = 161
	}
	return &gosnmp.GoSNMP{
		Context:   ctx,
		Target:    c.Host,
		Port:      port,
		Community: c.Community,
		Version:   gosnmp.Version2c,
		Timeout:   timeout,
		Retries:   1,
	}
}

// walk runs a GETNEXT walk from a base OID, capped at MaxRows.
func (c *Collector) walk(ctx context.Context, oid string) ([]pdu, error) {
	client := c.client(ctx)
	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("%w: snmp connect %s: %v", util.ErrConnectionFailed, c.Host, err)
	}
	defer client.Conn.Close()

	maxRows := c.MaxRows
	if maxRows <= 0 {
		maxRows = defaultRows
	}

	var results []pdu
	err := client.Walk(oid, func(v gosnmp.SnmpPDU) error {
		if len(results) >= maxRows {
			return fmt.Errorf("row cap reached")
		}
		results = append(results, pdu{oid: v.Name, value: pduString(v)})
		return nil
	})
	if err != nil && len(results) == 0 {
		return nil, fmt.Errorf("%w: snmp walk %s on %s: %v", util.ErrConnectionFailed, oid, c.Host, err)
	}
	util.WithDevice(c.Host).Debugf("snmp walk %s: %d results", oid, len(results))
	return results, nil
}

func pduString(v gosnmp.SnmpPDU) string {
	switch value := v.Value.(type) {
	case []byte:
		return string(value)
	case string:
		return value
	default:
		return fmt.Sprintf("%v", value)
	}
}

// macFromBytes converts an SNMP octet or hex string to a normalized
// MAC. Empty when the payload is not 12 hex digits.
func macFromBytes(s string) string {
	var hex strings.Builder
	for _, b := range []byte(s) {
		hex.WriteString(fmt.Sprintf("%02X", b))
	}
	candidate := hex.String()
	// agents that return a printable hex string instead of octets
	if len(s) != 6 {
		cleaned := strings.Map(func(r rune) rune {
			if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F') {
				return r
			}
			return -1
		}, s)
		if len(cleaned) == 12 {
			candidate = strings.ToUpper(cleaned)
		}
	}
	if len(candidate) != 12 {
		return ""
	}
	mac, err := schema.NormalizeMAC(candidate)
	if err != nil {
		return ""
	}
	return mac
}

// ARPTable walks ipNetToMediaTable. The instance OID carries the IP in
// its last four components.
func (c *Collector) ARPTable(ctx context.Context) ([]schema.ARPEntry, error) {
	raw, err := c.walk(ctx, OIDARPTable)
	if err != nil {
		return nil, err
	}

	var entries []schema.ARPEntry
	for _, r := range raw {
		if !strings.Contains(r.oid, ".4.22.1.2.") {
			continue
		}
		parts := strings.Split(r.oid, ".")
		if len(parts) < 4 {
			continue
		}
		ip := strings.Join(parts[len(parts)-4:], ".")
		mac := macFromBytes(r.value)
		if mac == "" {
			continue
		}
		entry, err := schema.NewARPEntry(schema.ARPEntry{IPAddress: ip, MACAddress: mac})
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	util.WithDevice(c.Host).Infof("snmp ARP: %d entries", len(entries))
	return entries, nil
}

// MACTable walks dot1dTpFdbTable.
func (c *Collector) MACTable(ctx context.Context) ([]schema.MACEntry, error) {
	raw, err := c.walk(ctx, OIDMACTable)
	if err != nil {
		return nil, err
	}

	var entries []schema.MACEntry
	for _, r := range raw {
		if !strings.Contains(r.oid, ".17.4.3.1.1.") {
			continue
		}
		mac := macFromBytes(r.value)
		if mac == "" {
			continue
		}
		entry, err := schema.NewMACEntry(schema.MACEntry{MACAddress: mac})
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	util.WithDevice(c.Host).Infof("snmp MAC: %d entries", len(entries))
	return entries, nil
}

// LLDPNeighbors walks lldpRemTable, grouping columns by their instance
// index (the last three OID components).
func (c *Collector) LLDPNeighbors(ctx context.Context) ([]schema.LLDPNeighbor, error) {
	raw, err := c.walk(ctx, OIDLLDPRem)
	if err != nil {
		return nil, err
	}

	grouped := map[string]*schema.LLDPNeighbor{}
	var order []string
	get := func(key string) *schema.LLDPNeighbor {
		if n, ok := grouped[key]; ok {
			return n
		}
		n := &schema.LLDPNeighbor{}
		grouped[key] = n
		order = append(order, key)
		return n
	}

	for _, r := range raw {
		parts := strings.Split(r.oid, ".")
		if len(parts) < 3 {
			continue
		}
		key := strings.Join(parts[len(parts)-3:], ".")
		switch {
		case strings.Contains(r.oid, ".1.4.1.9."): // lldpRemSysName
			get(key).RemoteDevice = r.value
		case strings.Contains(r.oid, ".1.4.1.7."): // lldpRemPortId
			get(key).RemotePort = r.value
		case strings.Contains(r.oid, ".1.4.1.10."): // lldpRemSysDesc
			get(key).RemoteDescription = r.value
		}
	}

	var neighbors []schema.LLDPNeighbor
	for _, key := range order {
		n, err := schema.NewLLDPNeighbor(*grouped[key])
		if err != nil {
			continue
		}
		neighbors = append(neighbors, n)
	}
	util.WithDevice(c.Host).Infof("snmp LLDP: %d neighbors", len(neighbors))
	return neighbors, nil
}

// SysDescr issues one GET of sysDescr, the cheapest SNMP liveness probe.
func (c *Collector) SysDescr(ctx context.Context) (string, error) {
	client := c.client(ctx)
	if err := client.Connect(); err != nil {
		return "", fmt.Errorf("%w: snmp connect %s: %v", util.ErrConnectionFailed, c.Host, err)
	}
	defer client.Conn.Close()

	result, err := client.Get([]string{OIDSysDescr})
	if err != nil || len(result.Variables) == 0 {
		return "", fmt.Errorf("%w: snmp get sysDescr on %s", util.ErrConnectionFailed, c.Host)
	}
	return pduString(result.Variables[0]), nil
}
