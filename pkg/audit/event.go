// Package audit records operator and orchestrator actions to a
// JSON-lines trail: audit runs, baseline resets, node authorizations,
// onboarding and purges.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Operation names used across the CLI and the admin API.
const (
	OpAuditRun      = "audit_run"
	OpBaselineReset = "baseline_reset"
	OpAuthorizeNode = "authorize_node"
	OpOnboardDevice = "onboard_device"
	OpToggleActive  = "toggle_active"
	OpPurgeOrphans  = "purge_orphans"
	OpTopologyScan  = "topology_scan"
	OpVaultWrite    = "vault_write"
	OpVaultDelete   = "vault_delete"
)

// Event is one recorded action. Detail carries operation-specific
// context; credentials never go in there.
type Event struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	User      string                 `json:"user"`
	Customer  string                 `json:"customer,omitempty"`
	Device    string                 `json:"device,omitempty"`
	Operation string                 `json:"operation"`
	Detail    map[string]interface{} `json:"detail,omitempty"`
	Success   bool                   `json:"success"`
	Error     string                 `json:"error,omitempty"`
	Duration  time.Duration          `json:"duration,omitempty"`
	ClientIP  string                 `json:"client_ip,omitempty"`
}

// Filter defines criteria for querying the trail.
type Filter struct {
	Customer    string
	Device      string
	User        string
	Operation   string
	StartTime   time.Time
	EndTime     time.Time
	SuccessOnly bool
	FailureOnly bool
	Limit       int
	Offset      int
}

// NewEvent starts an event for the given actor and operation.
func NewEvent(user, operation string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		User:      user,
		Operation: operation,
		Success:   true,
	}
}

// WithTarget scopes the event to one device.
func (e *Event) WithTarget(customer, device string) *Event {
	e.Customer = customer
	e.Device = device
	return e
}

// WithDetail attaches one context value.
func (e *Event) WithDetail(key string, value interface{}) *Event {
	if e.Detail == nil {
		e.Detail = map[string]interface{}{}
	}
	e.Detail[key] = value
	return e
}

// WithError marks the event failed.
func (e *Event) WithError(err error) *Event {
	e.Success = false
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithDuration records how long the operation ran.
func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}

// WithClientIP records the caller address for API-originated events.
func (e *Event) WithClientIP(ip string) *Event {
	e.ClientIP = ip
	return e
}
