package types

import (
	"errors"
	"fmt"
)

// NormalizationError reasons
const (
	NormalizeMalformed   = "malformed"
	NormalizeUnsupported = "unsupported-format"
	NormalizeEmpty       = "empty"
)

// NormalizationError means a raw input could not produce even a minimal
// canonical event. Fatal for that one input, never for the batch.
type NormalizationError struct {
	Reason string
	Format string
	Err    error
}

func (e *NormalizationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("normalize %s input: %s: %v", e.Format, e.Reason, e.Err)
	}
	return fmt.Sprintf("normalize %s input: %s", e.Format, e.Reason)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

// AdapterError reasons
const (
	AdapterAuth        = "auth"
	AdapterQuota       = "quota"
	AdapterTimeout     = "timeout"
	AdapterUnparseable = "unparseable"
	AdapterInvalidPlan = "invalid-plan"
	AdapterUnavailable = "unavailable"
)

// AdapterError is any failure of an AI planning backend. The orchestrator
// decides whether to fall back; the adapter only reports.
type AdapterError struct {
	Backend string
	Reason  string
	Err     error
}

func (e *AdapterError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s adapter: %s: %v", e.Backend, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s adapter: %s", e.Backend, e.Reason)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// AdapterFailureReason extracts the reason code from an error chain,
// or "" when no AdapterError is present
func AdapterFailureReason(err error) string {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae.Reason
	}
	return ""
}

// DispatchError is an HTTP-level failure against a capability service
type DispatchError struct {
	Service   string
	Operation string
	Status    int
	Err       error
}

func (e *DispatchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("dispatch %s/%s: status %d", e.Service, e.Operation, e.Status)
	}
	return fmt.Sprintf("dispatch %s/%s: %v", e.Service, e.Operation, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is transient: network errors and
// 5xx responses retry, 4xx never does.
func (e *DispatchError) Retryable() bool {
	if e.Status >= 400 && e.Status < 500 {
		return false
	}
	return true
}
