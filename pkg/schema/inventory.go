package schema

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/driftwatch-net/driftwatch/pkg/util"
)

// InventoryDevice is one onboarded device. (CustomerID, DeviceID) and
// (Host, Port) are each unique across the inventory.
type InventoryDevice struct {
	CustomerID string    `json:"customer_id"`
	DeviceID   string    `json:"device_id"`
	Vendor     string    `json:"vendor"`
	Host       string    `json:"host"`
	Port       int       `json:"port"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

// Validate checks the fields an onboarding request must carry.
func (d *InventoryDevice) Validate() error {
	v := &util.ValidationBuilder{}
	v.Add(d.CustomerID != "", "customer_id is required")
	v.Add(d.DeviceID != "", "device_id is required")
	v.Add(d.Vendor != "", "vendor is required")
	v.Add(d.Host != "", "host is required")
	v.Add(d.Port >= 1 && d.Port <= 65535,
		fmt.Sprintf("port %d out of range [1,65535]", d.Port))
	return v.Build()
}

// Credential is the secret record held only by the vault.
type Credential struct {
	Host          string `json:"host"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	Port          int    `json:"port"`
	Token         string `json:"token,omitempty"`
	SNMPCommunity string `json:"snmp_community,omitempty"`
}

// Validate checks the fields a stored credential must carry.
func (c *Credential) Validate() error {
	v := &util.ValidationBuilder{}
	v.Add(c.Host != "", "host is required")
	v.Add(c.Username != "", "username is required")
	v.Add(c.Password != "", "password is required")
	if c.Port == 0 {
		c.Port = 22
	}
	v.Add(c.Port >= 1 && c.Port <= 65535,
		fmt.Sprintf("port %d out of range [1,65535]", c.Port))
	return v.Build()
}

// Incident categories pushed by the orchestrators.
const (
	CategoryConfigurationDrift = "configuration_drift"
	CategoryVLANDrift          = "vlan_drift"
	CategoryUnauthorizedNode   = "unauthorized_node"
)

// Incident is a write-once record; only Status advances after insert.
type Incident struct {
	ID          int64           `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	CustomerID  string          `json:"customer_id"`
	DeviceID    string          `json:"device_id"`
	Severity    string          `json:"severity"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Status      string          `json:"status"`
}
