package auditor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/driftwatch-net/driftwatch/pkg/schema"
	"github.com/driftwatch-net/driftwatch/pkg/util"
)

// BaselineStore owns the approved reference configurations, one
// canonical JSON file per device under <dir>/<customer>/<device>.json.
type BaselineStore struct {
	Dir string
}

func (b *BaselineStore) path(customer, device string) string {
	return filepath.Join(b.Dir, customer, device+".json")
}

// Load reads and validates one baseline. A missing file is
// ErrBaselineMissing (expected on first audit); anything else that
// prevents a valid read is ErrBaselineUnreadable. An unreadable
// baseline must never be silently replaced.
func (b *BaselineStore) Load(customer, device string) (*schema.DeviceConfig, error) {
	data, err := os.ReadFile(b.path(customer, device))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s/%s", util.ErrBaselineMissing, customer, device)
		}
		return nil, fmt.Errorf("%w: %s/%s: %v", util.ErrBaselineUnreadable, customer, device, err)
	}

	var cfg schema.DeviceConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %s/%s: %v", util.ErrBaselineUnreadable, customer, device, err)
	}
	validated, err := schema.NewDeviceConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %s/%s: %v", util.ErrBaselineUnreadable, customer, device, err)
	}
	return &validated, nil
}

// Save writes one baseline as canonical JSON.
func (b *BaselineStore) Save(customer, device string, cfg *schema.DeviceConfig) error {
	path := b.path(customer, device)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Exists reports whether a baseline file is present, and its mtime.
func (b *BaselineStore) Exists(customer, device string) (bool, string) {
	info, err := os.Stat(b.path(customer, device))
	if err != nil {
		return false, ""
	}
	return true, info.ModTime().UTC().Format("2006-01-02T15:04:05Z07:00")
}

// Delete removes one baseline. Operator action: the next audit saves
// the then-current configuration as the new reference.
func (b *BaselineStore) Delete(customer, device string) error {
	err := os.Remove(b.path(customer, device))
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s/%s", util.ErrBaselineMissing, customer, device)
	}
	return err
}
