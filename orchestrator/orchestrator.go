// Package orchestrator drives events through the routing pipeline:
// normalize, plan, validate, dispatch, record. One orchestrator serves
// any number of events; per-event state lives on the stack.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/reitti/audit"
	"github.com/yairfalse/reitti/dispatch"
	"github.com/yairfalse/reitti/fallback"
	"github.com/yairfalse/reitti/normalizer"
	"github.com/yairfalse/reitti/planner"
	"github.com/yairfalse/reitti/policy"
	"github.com/yairfalse/reitti/registry"
	"github.com/yairfalse/reitti/storage"
	"github.com/yairfalse/reitti/telemetry"
	"github.com/yairfalse/reitti/types"
)

// State names the pipeline stage an event is in
type State string

const (
	StateNormalizing      State = "normalizing"
	StatePlanningAI       State = "planning-ai"
	StatePlanningFallback State = "planning-fallback"
	StateValidating       State = "validating"
	StateDispatching      State = "dispatching"
	StateDone             State = "done"
	StateAborted          State = "aborted"
)

// Options tunes orchestrator behavior
type Options struct {
	// Instruction is the free-text routing hint passed to the planner
	Instruction string
	// FanoutLimit bounds concurrent dispatches per event
	FanoutLimit int
	// OnProgress, when set, receives one notification per completed
	// event in a batch. It is advisory; errors cannot be returned and
	// the callback must not call back into the orchestrator.
	OnProgress func(Progress)
}

// Progress reports one completed event within a batch
type Progress struct {
	BatchID string
	Index   int
	Total   int
	Latest  *ProcessResult
}

// ProcessResult is the terminal outcome for one event
type ProcessResult struct {
	EventID string
	State   State
	Plan    *types.ActionPlan
	Results []types.DispatchResult
	Err     error
}

// BatchResult summarizes one batch run
type BatchResult struct {
	BatchID   string
	Processed int
	Failed    int
	Results   []*ProcessResult
	Elapsed   time.Duration
}

// Orchestrator wires the pipeline stages together
type Orchestrator struct {
	normalizer *normalizer.Normalizer
	planner    planner.Planner
	fallback   *fallback.Engine
	policy     *policy.Engine
	dispatcher dispatch.Dispatcher
	registry   *registry.Registry
	recorder   *audit.Recorder
	store      *storage.Store
	options    Options

	logger *telemetry.Logger
	tracer trace.Tracer
}

// New creates an orchestrator. The planner may be nil, in which case
// every plan comes from the rule-based engine. The store may be nil
// when outcome persistence is not wanted.
func New(
	plnr planner.Planner,
	fb *fallback.Engine,
	pol *policy.Engine,
	disp dispatch.Dispatcher,
	reg *registry.Registry,
	recorder *audit.Recorder,
	store *storage.Store,
	options Options,
) *Orchestrator {
	if options.FanoutLimit <= 0 {
		options.FanoutLimit = 4
	}
	return &Orchestrator{
		normalizer: normalizer.New(),
		planner:    plnr,
		fallback:   fb,
		policy:     pol,
		dispatcher: disp,
		registry:   reg,
		recorder:   recorder,
		store:      store,
		options:    options,
		logger:     telemetry.NewLogger("orchestrator"),
		tracer:     otel.Tracer("orchestrator"),
	}
}

// ProcessRaw normalizes one raw record and runs it through the pipeline
func (o *Orchestrator) ProcessRaw(ctx context.Context, raw []byte, format normalizer.Format, seq int) *ProcessResult {
	event, err := o.normalizer.Normalize(raw, format, seq)
	if err != nil {
		o.recorder.NormalizeFailed(ctx, string(format), err)
		if telemetry.NormalizationFailures != nil {
			telemetry.NormalizationFailures.Add(ctx, 1)
		}
		o.logger.WithContext(ctx).Error().
			Err(err).
			Str("format", string(format)).
			Msg("normalization failed")
		return &ProcessResult{State: StateAborted, Err: err}
	}
	return o.Process(ctx, event)
}

// Process runs a normalized event through planning, validation and
// dispatch. It always returns a terminal result; pipeline-internal
// failures degrade the plan rather than abort the event.
func (o *Orchestrator) Process(ctx context.Context, event *types.CanonicalEvent) *ProcessResult {
	ctx, span := o.tracer.Start(ctx, "orchestrator.process",
		trace.WithAttributes(
			attribute.String("event.id", event.EventID),
			attribute.String("event.severity", string(event.Severity))))
	defer span.End()

	return o.processEvent(ctx, event, "")
}

// plan asks the AI backend first and falls back to rules on any
// adapter failure. The fallback never fails; it may produce an empty
// plan, which is a valid outcome.
func (o *Orchestrator) plan(ctx context.Context, event *types.CanonicalEvent) (*types.ActionPlan, string) {
	if o.planner != nil {
		plan, err := o.planner.Plan(ctx, event, o.options.Instruction, o.registry)
		if err == nil {
			return plan, ""
		}

		reason := types.AdapterFailureReason(err)
		if reason == "" {
			reason = types.AdapterUnavailable
		}
		o.logger.LogAdapterFallback(ctx, event.EventID, o.planner.Name(), reason)
		telemetry.RecordAdapterFailure(ctx, o.planner.Name(), reason)
		if telemetry.FallbackActivations != nil {
			telemetry.FallbackActivations.Add(ctx, 1)
		}

		plan = o.fallback.Plan(event, o.options.Instruction)
		return plan, reason
	}

	return o.fallback.Plan(event, o.options.Instruction), ""
}

// validate drops actions naming unknown capabilities, then applies
// policy. Dropped actions come back as skipped results so the trail
// records them.
func (o *Orchestrator) validate(ctx context.Context, event *types.CanonicalEvent, plan *types.ActionPlan) (*types.ActionPlan, []types.DispatchResult) {
	var skipped []types.DispatchResult

	checked := *plan
	checked.Actions = nil
	for i := range plan.Actions {
		action := plan.Actions[i]
		if !o.registry.Has(action.Service, action.Operation) {
			o.logger.LogActionSkipped(ctx, event.EventID,
				action.Service, action.Operation, types.SkipUnknownCapability)
			skipped = append(skipped, types.Skipped(&plan.Actions[i], types.SkipUnknownCapability))
			continue
		}
		checked.Actions = append(checked.Actions, action)
	}

	if o.policy != nil {
		filtered, denied := o.policy.Apply(ctx, event, &checked)
		return filtered, append(skipped, denied...)
	}
	return &checked, skipped
}

// dispatchAll fans the plan's actions out to the dispatcher with
// bounded concurrency and joins before returning. Result order matches
// action order regardless of completion order. On cancellation,
// actions never started are skipped outright; actions already in
// flight are marked so operators know the external call may have
// happened.
func (o *Orchestrator) dispatchAll(ctx context.Context, event *types.CanonicalEvent, plan *types.ActionPlan) []types.DispatchResult {
	if plan.IsEmpty() {
		return nil
	}

	results := make([]types.DispatchResult, len(plan.Actions))
	sem := make(chan struct{}, o.options.FanoutLimit)
	var wg sync.WaitGroup

	for i := range plan.Actions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			action := &plan.Actions[i]
			if ctx.Err() != nil {
				results[i] = types.Skipped(action, types.SkipCancelled)
				return
			}

			result := o.dispatcher.Dispatch(ctx, event.EventID, action)
			if result.Status == types.StatusFailed && ctx.Err() != nil {
				result.Status = types.StatusSkipped
				result.SkipReason = types.SkipCancelledInFlight
				result.Error = ""
			}
			results[i] = *result
		}(i)
	}
	wg.Wait()

	return results
}

// persist stores the terminal outcome; storage failures are logged,
// never propagated
func (o *Orchestrator) persist(ctx context.Context, event *types.CanonicalEvent, result *ProcessResult, batchID string) {
	if o.store == nil {
		return
	}
	_, err := o.store.RecordOutcome(&storage.OutcomeRecord{
		EventID: event.EventID,
		BatchID: batchID,
		Plan:    result.Plan,
		Results: result.Results,
	})
	if err != nil {
		o.logger.WithContext(ctx).Error().
			Err(err).
			Str("event_id", event.EventID).
			Msg("failed to persist outcome")
	}
}

// ProcessBatch normalizes a whole input and processes every record it
// yields. Bad records are counted and skipped; one rotten event never
// stops the batch. Cancellation stops picking up new events but waits
// for the one in progress.
func (o *Orchestrator) ProcessBatch(ctx context.Context, data []byte, format normalizer.Format, batchID string) *BatchResult {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "orchestrator.process_batch",
		trace.WithAttributes(attribute.String("batch.id", batchID)))
	defer span.End()

	batch := &BatchResult{BatchID: batchID}

	events, errs := o.normalizer.Batch(data, format)
	for _, err := range errs {
		batch.Failed++
		batch.Results = append(batch.Results, &ProcessResult{State: StateAborted, Err: err})
		o.recorder.NormalizeFailed(ctx, string(format), err)
		if telemetry.NormalizationFailures != nil {
			telemetry.NormalizationFailures.Add(ctx, 1)
		}
	}

	for i, event := range events {
		if ctx.Err() != nil {
			break
		}
		result := o.processEvent(ctx, event, batchID)
		batch.Results = append(batch.Results, result)
		if result.Err != nil {
			batch.Failed++
		} else {
			batch.Processed++
		}
		o.notifyProgress(ctx, batchID, i, len(events), result)
	}

	batch.Elapsed = time.Since(start)
	o.recorder.BatchComplete(ctx, batch.Processed, batch.Failed, batch.Elapsed)
	o.logger.WithContext(ctx).Info().
		Str("batch_id", batchID).
		Int("processed", batch.Processed).
		Int("failed", batch.Failed).
		Dur("elapsed", batch.Elapsed).
		Msg("batch complete")
	return batch
}

// notifyProgress emits a per-event progress notification
func (o *Orchestrator) notifyProgress(ctx context.Context, batchID string, index, total int, result *ProcessResult) {
	o.logger.WithContext(ctx).Debug().
		Str("batch_id", batchID).
		Int("index", index+1).
		Int("total", total).
		Str("event_id", result.EventID).
		Str("state", string(result.State)).
		Msg("batch progress")
	if o.options.OnProgress != nil {
		o.options.OnProgress(Progress{
			BatchID: batchID,
			Index:   index,
			Total:   total,
			Latest:  result,
		})
	}
}

// processEvent runs one normalized event to its terminal state
func (o *Orchestrator) processEvent(ctx context.Context, event *types.CanonicalEvent, batchID string) *ProcessResult {
	start := time.Now()

	o.recorder.EventNormalized(ctx, event)

	plan, adapterFailure := o.plan(ctx, event)
	o.recorder.PlanProposed(ctx, event.EventID, plan, adapterFailure)

	plan, skipped := o.validate(ctx, event, plan)
	results := o.dispatchAll(ctx, event, plan)
	results = append(results, skipped...)

	for i := range results {
		o.recorder.ActionResult(ctx, event.EventID, &results[i])
	}

	result := &ProcessResult{
		EventID: event.EventID,
		State:   StateDone,
		Plan:    plan,
		Results: results,
	}
	o.persist(ctx, event, result, batchID)

	telemetry.RecordEventProcessed(ctx, string(plan.Source),
		float64(time.Since(start).Milliseconds()))
	return result
}
