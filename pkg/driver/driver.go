// Package driver opens vendor sessions and parses device output into
// schema values. A driver is a scoped session: Open, some operations,
// Close on every exit path. Close is idempotent.
package driver

import (
	"context"
	"fmt"

	"github.com/driftwatch-net/driftwatch/pkg/schema"
	"github.com/driftwatch-net/driftwatch/pkg/util"
)

// Driver is one device session.
type Driver interface {
	// Open establishes the session. Operations before Open (or after
	// Close) fail with ErrNotConnected.
	Open(ctx context.Context) error
	// Close tears the session down. Safe to call twice.
	Close() error

	// Snapshot collects and parses the running configuration.
	Snapshot(ctx context.Context) (*schema.DeviceConfig, error)
	// ARPTable collects the L3-to-L2 bindings.
	ARPTable(ctx context.Context) ([]schema.ARPEntry, error)
	// MACTable collects the bridge forwarding table.
	MACTable(ctx context.Context) ([]schema.MACEntry, error)
	// LLDPNeighbors collects discovered adjacencies.
	LLDPNeighbors(ctx context.Context) ([]schema.LLDPNeighbor, error)
}

// Options tunes session behavior.
type Options struct {
	// TimeoutSeconds bounds the SSH dial and each command. Zero means
	// the 30 second default.
	TimeoutSeconds int
}

// New returns the driver for a vendor. Only mikrotik is implemented.
func New(vendor string, cred schema.Credential, opts Options) (Driver, error) {
	switch vendor {
	case "mikrotik":
		return NewMikroTik(cred, opts), nil
	default:
		return nil, fmt.Errorf("%w: no driver for vendor %q", util.ErrNotFound, vendor)
	}
}

// SupportedVendors lists the vendors New accepts.
func SupportedVendors() []string {
	return []string{"mikrotik"}
}
