package topology

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/cenkalti/backoff/v4"

	"github.com/driftwatch-net/driftwatch/pkg/driver"
	"github.com/driftwatch-net/driftwatch/pkg/schema"
	"github.com/driftwatch-net/driftwatch/pkg/store"
	"github.com/driftwatch-net/driftwatch/pkg/util"
	"github.com/driftwatch-net/driftwatch/pkg/vault"

	snmpc "github.com/driftwatch-net/driftwatch/pkg/snmp"
)

// ScanResult summarizes one fleet scan.
type ScanResult struct {
	DevicesScanned  int `json:"devices_scanned"`
	NodesDiscovered int `json:"nodes_discovered"`
	Drifts          int `json:"drifts"`
}

// Scanner runs the fleet-wide topology pipeline: collect, persist,
// correlate, detect, push.
type Scanner struct {
	Store *store.Store
	Vault *vault.Vault
	OUI   *OUITable

	// NewDriver is swappable for tests; nil means driver.New.
	NewDriver func(vendor string, cred schema.Credential, opts driver.Options) (driver.Driver, error)

	// Workers bounds the fan-out pool; clamped to [8,32], default 16.
	Workers int

	Detector DetectorOptions
}

type deviceScan struct {
	device schema.InventoryDevice
	nodes  int
	drifts int
	err    error
}

func (s *Scanner) newDriver(vendor string, cred schema.Credential, opts driver.Options) (driver.Driver, error) {
	if s.NewDriver != nil {
		return s.NewDriver(vendor, cred, opts)
	}
	return driver.New(vendor, cred, opts)
}

func (s *Scanner) workers() int {
	w := s.Workers
	if w == 0 {
		w = 16
	}
	if w < 8 {
		w = 8
	}
	if w > 32 {
		w = 32
	}
	return w
}

// Scan walks every active inventory device, optionally filtered to one
// customer. Per-device failures are logged and skipped, never fatal
// for the run.
func (s *Scanner) Scan(ctx context.Context, customerFilter string) (ScanResult, error) {
	devices, err := s.Store.ListDevices(customerFilter, true)
	if err != nil {
		return ScanResult{}, err
	}

	pool := pond.NewResultPool[deviceScan](s.workers())
	defer pool.StopAndWait()
	group := pool.NewGroupContext(ctx)

	for _, device := range devices {
		device := device
		group.SubmitErr(func() (scan deviceScan, _ error) {
			// a panicking driver counts as that device's failure, the
			// rest of the fleet keeps going
			defer func() {
				if r := recover(); r != nil {
					scan = deviceScan{device: device, err: fmt.Errorf("scan panicked: %v", r)}
				}
			}()
			return s.scanDevice(ctx, device), nil
		})
	}

	scans, err := group.Wait()
	if err != nil {
		return ScanResult{}, err
	}

	result := ScanResult{}
	for _, scan := range scans {
		if scan.err != nil {
			util.WithFields(map[string]interface{}{
				"customer": scan.device.CustomerID,
				"device":   scan.device.DeviceID,
			}).Warnf("topology scan skipped device: %v", scan.err)
			continue
		}
		result.DevicesScanned++
		result.NodesDiscovered += scan.nodes
		result.Drifts += scan.drifts
	}

	util.Infof("topology scan finished: %d devices, %d nodes, %d drifts",
		result.DevicesScanned, result.NodesDiscovered, result.Drifts)
	return result, nil
}

// scanDevice collects one device's tables, CLI first with per-table
// SNMP fallback, SNMP-only when the session itself cannot be opened.
func (s *Scanner) scanDevice(ctx context.Context, device schema.InventoryDevice) deviceScan {
	scan := deviceScan{device: device}
	log := util.WithFields(map[string]interface{}{
		"customer": device.CustomerID,
		"device":   device.DeviceID,
	})

	cred, err := s.Vault.Get(device.CustomerID, device.DeviceID)
	if err != nil {
		scan.err = err
		return scan
	}

	arp, mac, lldp, err := s.collect(ctx, device, cred)
	if err != nil {
		scan.err = err
		return scan
	}
	log.Infof("collected %d arp, %d mac, %d lldp entries", len(arp), len(mac), len(lldp))

	collectedAt := time.Now().UTC()
	if err := s.Store.InsertARPEntries(device.CustomerID, device.DeviceID, arp, collectedAt); err != nil {
		log.Warnf("persisting arp batch: %v", err)
	}
	if err := s.Store.InsertMACEntries(device.CustomerID, device.DeviceID, mac, collectedAt); err != nil {
		log.Warnf("persisting mac batch: %v", err)
	}
	if err := s.Store.InsertLLDPEntries(device.CustomerID, device.DeviceID, lldp, collectedAt); err != nil {
		log.Warnf("persisting lldp batch: %v", err)
	}

	nodes := Correlate(device.CustomerID, device.DeviceID, arp, mac, s.OUI)
	for _, node := range nodes {
		if err := s.Store.UpsertNode(node); err != nil {
			log.Warnf("upserting node %s: %v", node.MACAddress, err)
		}
	}
	scan.nodes = len(nodes)

	authorized, err := s.Store.AuthorizedVLANMap(device.CustomerID)
	if err != nil {
		scan.err = err
		return scan
	}
	for _, drift := range DetectVLANDrift(nodes, authorized, s.Detector) {
		if _, err := s.Store.PushIncident(drift.CustomerID, drift.DeviceID,
			drift.Severity, drift.Category, drift.Description, drift.Payload); err != nil {
			log.Warnf("pushing drift incident: %v", err)
			continue
		}
		scan.drifts++
	}
	return scan
}

func (s *Scanner) collect(ctx context.Context, device schema.InventoryDevice, cred schema.Credential) (
	[]schema.ARPEntry, []schema.MACEntry, []schema.LLDPNeighbor, error) {

	d, err := s.newDriver(device.Vendor, cred, driver.Options{})
	if err != nil {
		return nil, nil, nil, err
	}

	openErr := openWithRetry(ctx, d)
	if openErr != nil {
		// session-level failure: SNMP-only collection when a community
		// is available, otherwise skip the device
		if cred.SNMPCommunity == "" {
			return nil, nil, nil, openErr
		}
		util.WithDevice(device.DeviceID).Warnf("CLI session failed, falling back to SNMP: %v", openErr)
		return s.collectSNMP(ctx, cred)
	}
	defer d.Close()

	collector := snmpc.NewCollector(cred.Host, cred.SNMPCommunity)

	arp, err := d.ARPTable(ctx)
	if (err != nil || len(arp) == 0) && cred.SNMPCommunity != "" {
		if fallback, ferr := collector.ARPTable(ctx); ferr == nil && len(fallback) > 0 {
			arp = fallback
		}
	}
	mac, err := d.MACTable(ctx)
	if (err != nil || len(mac) == 0) && cred.SNMPCommunity != "" {
		if fallback, ferr := collector.MACTable(ctx); ferr == nil && len(fallback) > 0 {
			mac = fallback
		}
	}
	lldp, err := d.LLDPNeighbors(ctx)
	if (err != nil || len(lldp) == 0) && cred.SNMPCommunity != "" {
		if fallback, ferr := collector.LLDPNeighbors(ctx); ferr == nil && len(fallback) > 0 {
			lldp = fallback
		}
	}
	return arp, mac, lldp, nil
}

func (s *Scanner) collectSNMP(ctx context.Context, cred schema.Credential) (
	[]schema.ARPEntry, []schema.MACEntry, []schema.LLDPNeighbor, error) {

	collector := snmpc.NewCollector(cred.Host, cred.SNMPCommunity)
	arp, err := collector.ARPTable(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	mac, err := collector.MACTable(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	lldp, err := collector.LLDPNeighbors(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	return arp, mac, lldp, nil
}

// openWithRetry dials the session with a short exponential backoff.
// Auth failures are terminal; retrying them only locks accounts.
func openWithRetry(ctx context.Context, d driver.Driver) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	return backoff.Retry(func() error {
		err := d.Open(ctx)
		if err != nil && errors.Is(err, util.ErrAuthFailed) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}
