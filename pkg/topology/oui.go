// Package topology correlates L2 and L3 tables into network nodes,
// detects VLAN drift against the authorized map, and runs the
// fleet-wide scan.
package topology

import (
	"bufio"
	"os"
	"strings"

	"github.com/driftwatch-net/driftwatch/pkg/schema"
	"github.com/driftwatch-net/driftwatch/pkg/util"
)

// UnknownVendor is returned for every miss, including when no OUI
// database was loaded at all.
const UnknownVendor = "unknown"

// OUITable maps the first six hex digits of a MAC to a vendor name.
type OUITable struct {
	vendors map[string]string
}

// LoadOUITable reads an OUI file with "AABBCC  Vendor Name" lines.
// Lines starting with # are comments. A missing file is not an error;
// lookups then resolve to UnknownVendor.
func LoadOUITable(path string) *OUITable {
	t := &OUITable{vendors: map[string]string{}}

	f, err := os.Open(path)
	if err != nil {
		util.Warnf("OUI database %s not available: %v", path, err)
		return t
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		prefix := strings.ToUpper(strings.NewReplacer(":", "", "-", "").Replace(fields[0]))
		if len(prefix) != 6 {
			continue
		}
		t.vendors[prefix] = strings.Join(fields[1:], " ")
	}
	util.Infof("OUI database loaded: %d prefixes", len(t.vendors))
	return t
}

// Lookup resolves a normalized MAC to its vendor.
func (t *OUITable) Lookup(mac string) string {
	if t == nil || len(t.vendors) == 0 {
		return UnknownVendor
	}
	if vendor, ok := t.vendors[schema.OUIPrefix(mac)]; ok {
		return vendor
	}
	return UnknownVendor
}

// Size returns the number of loaded prefixes.
func (t *OUITable) Size() int {
	if t == nil {
		return 0
	}
	return len(t.vendors)
}
