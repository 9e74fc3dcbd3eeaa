package audit

import (
	"context"
	"time"

	"github.com/yairfalse/reitti/telemetry"
	"github.com/yairfalse/reitti/types"
)

// Recorder writes pipeline decisions to the trail. Persistence failures
// are logged and never propagated; a broken trail must not stop routing.
type Recorder struct {
	trail  *Trail
	logger *telemetry.Logger
}

// NewRecorder wraps a trail for pipeline use
func NewRecorder(trail *Trail, logger *telemetry.Logger) *Recorder {
	return &Recorder{trail: trail, logger: logger}
}

// EventNormalized records a successfully normalized event
func (r *Recorder) EventNormalized(ctx context.Context, event *types.CanonicalEvent) {
	r.record(ctx, EntryEventNormalized, event.EventID, map[string]interface{}{
		"event_type": event.EventType,
		"severity":   event.Severity,
		"indicators": event.Indicators,
	}, nil)
}

// NormalizeFailed records a raw input that could not be normalized
func (r *Recorder) NormalizeFailed(ctx context.Context, format string, err error) {
	r.record(ctx, EntryNormalizeFailed, "", map[string]interface{}{
		"format": format,
	}, err)
}

// PlanProposed records the action plan chosen for an event. Fallback
// plans additionally carry the reason the AI backend failed.
func (r *Recorder) PlanProposed(ctx context.Context, eventID string, plan *types.ActionPlan, adapterFailure string) {
	data := map[string]interface{}{
		"actions":   plan.Actions,
		"reasoning": plan.Reasoning,
		"severity":  plan.SeverityAssessment,
		"priority":  plan.Priority,
		"source":    plan.Source,
	}

	entryType := EntryPlanProposed
	if plan.Source == types.PlanSourceFallback {
		entryType = EntryPlanFallback
		data["adapter_failure_reason"] = adapterFailure
	}

	r.record(ctx, entryType, eventID, data, nil)
}

// ActionResult records one dispatch outcome
func (r *Recorder) ActionResult(ctx context.Context, eventID string, result *types.DispatchResult) {
	data := map[string]interface{}{
		"service":    result.Action.Service,
		"operation":  result.Action.Operation,
		"status":     result.Status,
		"attempts":   result.Attempts,
		"latency_ms": result.Latency.Milliseconds(),
	}
	if result.SkipReason != "" {
		data["skip_reason"] = result.SkipReason
	}
	if len(result.Response) > 0 {
		data["response"] = result.Response
	}

	var err error
	if result.Error != "" {
		err = &resultError{msg: result.Error}
	}
	r.record(ctx, EntryActionResult, eventID, data, err)
}

// BatchComplete records the summary of a finished batch
func (r *Recorder) BatchComplete(ctx context.Context, processed, failed int, elapsed time.Duration) {
	r.record(ctx, EntryBatchComplete, "", map[string]interface{}{
		"processed":  processed,
		"failed":     failed,
		"elapsed_ms": elapsed.Milliseconds(),
	}, nil)
}

func (r *Recorder) record(ctx context.Context, entryType EntryType, eventID string, data map[string]interface{}, errToLog error) {
	var err error
	if errToLog != nil {
		err = r.trail.AppendError(entryType, eventID, data, errToLog)
	} else {
		err = r.trail.Append(entryType, eventID, data)
	}
	if err != nil && r.logger != nil {
		r.logger.LogAuditError(ctx, eventID, err)
	}
}

type resultError struct{ msg string }

func (e *resultError) Error() string { return e.msg }
