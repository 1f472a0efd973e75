// Package util provides utility functions and common error types.
package util

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the per-device pipelines and the stores
var (
	ErrMasterKeyNotFound  = errors.New("master key not found")
	ErrVaultMissing       = errors.New("vault file missing")
	ErrVaultCorrupted     = errors.New("vault corrupted")
	ErrCredentialNotFound = errors.New("credential not found")
	ErrSchemaInvalid      = errors.New("schema validation failed")
	ErrNotConnected       = errors.New("device not connected")
	ErrConnectionFailed   = errors.New("connection failed")
	ErrAuthFailed         = errors.New("authentication failed")
	ErrTimeout            = errors.New("operation timed out")
	ErrParse              = errors.New("parse error")
	ErrBaselineMissing    = errors.New("baseline missing")
	ErrBaselineUnreadable = errors.New("baseline unreadable")
	ErrStoreUnavailable   = errors.New("store unavailable")
	ErrStoreConstraint    = errors.New("store constraint violated")
	ErrDiscovery          = errors.New("discovery failed")
	ErrNotFound           = errors.New("resource not found")
	ErrAlreadyExists      = errors.New("resource already exists")
	ErrValidationFailed   = errors.New("validation failed")
	ErrPermissionDenied   = errors.New("permission denied")
)

// SchemaError reports a single-field validation failure
type SchemaError struct {
	Type   string
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.Type, e.Field, e.Reason)
}

func (e *SchemaError) Unwrap() error {
	return ErrSchemaInvalid
}

// NewSchemaError creates a schema validation error for one field
func NewSchemaError(typeName, field, reason string) *SchemaError {
	return &SchemaError{Type: typeName, Field: field, Reason: reason}
}

// DriverError wraps a session or command failure with device context.
// Kind is one of the sentinel errors above (ErrConnectionFailed,
// ErrAuthFailed, ErrTimeout, ErrNotConnected, ErrParse).
type DriverError struct {
	Device    string
	Operation string
	Kind      error
	Message   string
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("%s on %s (%s): %s", e.Kind, e.Device, e.Operation, e.Message)
}

func (e *DriverError) Unwrap() error {
	return e.Kind
}

// NewDriverError creates a driver error with device context
func NewDriverError(device, operation string, kind error, message string) *DriverError {
	return &DriverError{Device: device, Operation: operation, Kind: kind, Message: message}
}

// ValidationError represents one or more validation failures
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "validation failed: " + e.Errors[0]
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a validation error from messages
func NewValidationError(messages ...string) *ValidationError {
	return &ValidationError{Errors: messages}
}

// ValidationBuilder helps accumulate validation errors
type ValidationBuilder struct {
	errors []string
}

// Add adds an error message if condition is false
func (v *ValidationBuilder) Add(condition bool, message string) *ValidationBuilder {
	if !condition {
		v.errors = append(v.errors, message)
	}
	return v
}

// AddError adds an error message unconditionally
func (v *ValidationBuilder) AddError(message string) *ValidationBuilder {
	v.errors = append(v.errors, message)
	return v
}

// AddErrorf adds a formatted error message
func (v *ValidationBuilder) AddErrorf(format string, args ...interface{}) *ValidationBuilder {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
	return v
}

// HasErrors returns true if there are validation errors
func (v *ValidationBuilder) HasErrors() bool {
	return len(v.errors) > 0
}

// Build returns the validation error or nil if no errors
func (v *ValidationBuilder) Build() error {
	if len(v.errors) == 0 {
		return nil
	}
	return &ValidationError{Errors: v.errors}
}

// ScrubSecret removes every occurrence of secret from s. Error messages
// that passed through an SSH or SNMP library may embed the credential;
// every boundary that owns a password must scrub before logging.
func ScrubSecret(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "***")
}

// ScrubError returns err's message with secret scrubbed. Nil-safe.
func ScrubError(err error, secret string) string {
	if err == nil {
		return ""
	}
	return ScrubSecret(err.Error(), secret)
}
