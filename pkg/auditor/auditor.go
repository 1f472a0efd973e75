// Package auditor runs the per-device configuration audit pipeline:
// vault, driver, snapshot, baseline, diff, classify, incident.
package auditor

import (
	"context"
	"errors"
	"fmt"

	"github.com/alitto/pond/v2"
	"github.com/cenkalti/backoff/v4"

	"github.com/driftwatch-net/driftwatch/pkg/diff"
	"github.com/driftwatch-net/driftwatch/pkg/driver"
	"github.com/driftwatch-net/driftwatch/pkg/schema"
	"github.com/driftwatch-net/driftwatch/pkg/store"
	"github.com/driftwatch-net/driftwatch/pkg/util"
	"github.com/driftwatch-net/driftwatch/pkg/vault"
)

// Outcome of one device audit.
type Outcome struct {
	CustomerID string           `json:"customer_id"`
	DeviceID   string           `json:"device_id"`
	Baselined  bool             `json:"baselined"`
	HasDrift   bool             `json:"has_drift"`
	Severity   schema.Severity  `json:"severity"`
	IncidentID int64            `json:"incident_id,omitempty"`
	Report     *Report          `json:"-"`
	Err        error            `json:"-"`
}

// RunResult aggregates one fleet audit.
type RunResult struct {
	SuccessCount int       `json:"success_count"`
	FailureCount int       `json:"failure_count"`
	Outcomes     []Outcome `json:"outcomes"`
}

// Auditor wires the audit dependencies.
type Auditor struct {
	Store     *store.Store
	Vault     *vault.Vault
	Baselines *BaselineStore
	Archiver  *Archiver

	// NewDriver is swappable for tests; nil means driver.New.
	NewDriver func(vendor string, cred schema.Credential, opts driver.Options) (driver.Driver, error)

	// Workers bounds the fan-out pool; clamped to [8,32], default 16.
	Workers int
}

func (a *Auditor) newDriver(vendor string, cred schema.Credential, opts driver.Options) (driver.Driver, error) {
	if a.NewDriver != nil {
		return a.NewDriver(vendor, cred, opts)
	}
	return driver.New(vendor, cred, opts)
}

func (a *Auditor) workers() int {
	w := a.Workers
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

// AuditAll audits every active inventory device, optionally scoped to
// one customer. Devices are isolated: any per-device failure is
// typed-logged and counted, never fatal for the run.
func (a *Auditor) AuditAll(ctx context.Context, customerFilter string) (RunResult, error) {
	devices, err := a.Store.ListDevices(customerFilter, true)
	if err != nil {
		return RunResult{}, err
	}

	pool := pond.NewResultPool[Outcome](a.workers())
	defer pool.StopAndWait()
	group := pool.NewGroupContext(ctx)

	for _, device := range devices {
		device := device
		group.SubmitErr(func() (outcome Outcome, _ error) {
			// a panicking driver counts as that device's failure, the
			// rest of the fleet keeps going
			defer func() {
				if r := recover(); r != nil {
					outcome = Outcome{
						CustomerID: device.CustomerID,
						DeviceID:   device.DeviceID,
						Err:        fmt.Errorf("audit panicked: %v", r),
					}
				}
			}()
			return a.AuditDevice(ctx, device), nil
		})
	}

	outcomes, err := group.Wait()
	if err != nil {
		return RunResult{}, err
	}

	result := RunResult{Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Err != nil {
			result.FailureCount++
			logAuditFailure(o)
			continue
		}
		result.SuccessCount++
	}
	util.Infof("audit run finished: %d succeeded, %d failed", result.SuccessCount, result.FailureCount)
	return result, nil
}

// logAuditFailure gives each error kind its own message so operators
// can tell a vault problem from an unreachable device at a glance.
func logAuditFailure(o Outcome) {
	log := util.WithFields(map[string]interface{}{
		"customer": o.CustomerID,
		"device":   o.DeviceID,
	})
	switch {
	case errors.Is(o.Err, util.ErrCredentialNotFound):
		log.Errorf("no credentials in vault: %v", o.Err)
	case errors.Is(o.Err, util.ErrMasterKeyNotFound), errors.Is(o.Err, util.ErrVaultCorrupted), errors.Is(o.Err, util.ErrVaultMissing):
		log.Errorf("vault failure: %v", o.Err)
	case errors.Is(o.Err, util.ErrAuthFailed):
		log.Errorf("device rejected credentials: %v", o.Err)
	case errors.Is(o.Err, util.ErrTimeout), errors.Is(o.Err, util.ErrConnectionFailed):
		log.Errorf("device unreachable: %v", o.Err)
	case errors.Is(o.Err, util.ErrBaselineUnreadable):
		log.Errorf("baseline unreadable, refusing to overwrite: %v", o.Err)
	default:
		log.Errorf("audit failed: %v", o.Err)
	}
}

// AuditDevice runs the full pipeline for one device.
func (a *Auditor) AuditDevice(ctx context.Context, device schema.InventoryDevice) Outcome {
	outcome := Outcome{CustomerID: device.CustomerID, DeviceID: device.DeviceID}
	log := util.WithFields(map[string]interface{}{
		"customer": device.CustomerID,
		"device":   device.DeviceID,
	})

	cred, err := a.Vault.Get(device.CustomerID, device.DeviceID)
	if err != nil {
		outcome.Err = err
		return outcome
	}

	d, err := a.newDriver(device.Vendor, cred, driver.Options{})
	if err != nil {
		outcome.Err = err
		return outcome
	}

	if err := openDevice(ctx, d); err != nil {
		outcome.Err = err
		return outcome
	}
	defer d.Close()

	current, err := d.Snapshot(ctx)
	if err != nil {
		outcome.Err = err
		return outcome
	}

	baseline, err := a.Baselines.Load(device.CustomerID, device.DeviceID)
	if err != nil {
		if errors.Is(err, util.ErrBaselineMissing) {
			// first contact: the current configuration becomes the
			// reference, no drift is possible yet
			if saveErr := a.Baselines.Save(device.CustomerID, device.DeviceID, current); saveErr != nil {
				outcome.Err = saveErr
				return outcome
			}
			log.Info("initial baseline saved")
			outcome.Baselined = true
			return outcome
		}
		outcome.Err = err
		return outcome
	}

	report := diff.Compare(baseline, current, nil)
	severity := diff.Classify(report)
	outcome.HasDrift = report.HasDrift()
	outcome.Severity = severity

	archived := NewReport(device.CustomerID, device.DeviceID, severity, report)
	outcome.Report = archived
	if a.Archiver != nil {
		// archive failures never abort the audit
		_ = a.Archiver.Persist(archived)
	}

	if !report.HasDrift() {
		log.Info("device compliant with baseline")
		return outcome
	}

	payload := map[string]interface{}{
		"diff":       report,
		"vendor":     device.Vendor,
		"hostname":   current.Hostname,
		"os_version": current.OSVersion,
		"model":      current.Model,
	}
	description := fmt.Sprintf("configuration drift on %s: %s", current.Hostname, report.Summary())
	id, err := a.Store.PushIncident(device.CustomerID, device.DeviceID,
		severity.String(), schema.CategoryConfigurationDrift, description, payload)
	if err != nil {
		outcome.Err = err
		return outcome
	}
	outcome.IncidentID = id
	log.Warnf("drift detected (%s), incident %d", severity, id)
	return outcome
}

// ResetBaseline discards a device's baseline so the next audit records
// a fresh one. Operator action.
func (a *Auditor) ResetBaseline(customer, device string) error {
	return a.Baselines.Delete(customer, device)
}

func openDevice(ctx context.Context, d driver.Driver) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	return backoff.Retry(func() error {
		err := d.Open(ctx)
		if err != nil && errors.Is(err, util.ErrAuthFailed) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}
