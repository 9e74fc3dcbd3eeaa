package types

import (
	"encoding/json"
	"time"
)

// DispatchStatus tracks the outcome of one dispatched action
type DispatchStatus string

const (
	StatusSuccess DispatchStatus = "success"
	StatusFailed  DispatchStatus = "failed"
	StatusSkipped DispatchStatus = "skipped"
)

// Skip reasons recorded on skipped dispatch results
const (
	SkipUnknownCapability = "unknown-capability"
	SkipPolicyDenied      = "policy-denied"
	SkipClamped           = "clamped"
	// SkipCancelledInFlight marks actions whose external call was already
	// started when the pipeline was cancelled. The side effect may exist,
	// so operators must not blindly re-submit.
	SkipCancelledInFlight = "skipped-but-external-effect-may-exist"
	SkipCancelled         = "cancelled"
)

// DispatchResult is the immutable outcome of executing one action.
// Exactly one of Response or Error is populated depending on Status.
type DispatchResult struct {
	Action     *Action         `json:"action"`
	Status     DispatchStatus  `json:"status"`
	Response   json.RawMessage `json:"response,omitempty"`
	Error      string          `json:"error,omitempty"`
	SkipReason string          `json:"skip_reason,omitempty"`
	Latency    time.Duration   `json:"latency"`
	Attempts   int             `json:"attempts,omitempty"`
}

// Skipped builds a skipped result for an action that was never executed
func Skipped(action *Action, reason string) DispatchResult {
	return DispatchResult{
		Action:     action,
		Status:     StatusSkipped,
		SkipReason: reason,
	}
}
