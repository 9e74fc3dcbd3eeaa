// Package policy filters action plans before dispatch. Static rules
// handle the common cases (denied pairs, ticket severity floor, action
// cap); Rego policies cover anything organization-specific.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/reitti/telemetry"
	"github.com/yairfalse/reitti/types"
)

// DeniedPair blocks a service/operation combination. An empty Operation
// blocks the whole service.
type DeniedPair struct {
	Service   string `yaml:"service"`
	Operation string `yaml:"operation"`
}

// Rules are the static policy knobs from configuration
type Rules struct {
	MaxActions        int
	MinTicketSeverity types.Severity
	Denied            []DeniedPair
}

// Verdict is one per-action policy decision
type Verdict struct {
	Allowed bool
	Reason  string
}

// Engine evaluates plans against static rules and loaded Rego policies.
// Evaluation is read-only; denied actions are reported, never executed.
type Engine struct {
	rules   Rules
	queries map[string]rego.PreparedEvalQuery
	logger  *telemetry.Logger
	tracer  trace.Tracer
}

// NewEngine creates a policy engine with the given static rules
func NewEngine(rules Rules) *Engine {
	return &Engine{
		rules:   rules,
		queries: make(map[string]rego.PreparedEvalQuery),
		logger:  telemetry.NewLogger("policy-engine"),
		tracer:  otel.Tracer("policy-engine"),
	}
}

// LoadPolicy compiles a Rego module and adds it to the evaluation set
func (e *Engine) LoadPolicy(ctx context.Context, name string, regoCode string) error {
	ctx, span := e.tracer.Start(ctx, "policy_engine.load_policy",
		trace.WithAttributes(attribute.String("policy.name", name)))
	defer span.End()

	query := rego.New(
		rego.Query("data.reitti"),
		rego.Module(name, regoCode),
	)

	prepared, err := query.PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to compile policy %s: %w", name, err)
	}
	e.queries[name] = prepared

	e.logger.WithContext(ctx).Info().
		Str("policy_name", name).
		Msg("policy loaded")
	return nil
}

// PolicyCount returns how many Rego policies are loaded
func (e *Engine) PolicyCount() int { return len(e.queries) }

// Apply filters a plan. The returned plan keeps the surviving actions
// in their original order; every removed action comes back as a skipped
// result so the audit trail shows what policy suppressed.
func (e *Engine) Apply(ctx context.Context, event *types.CanonicalEvent, plan *types.ActionPlan) (*types.ActionPlan, []types.DispatchResult) {
	ctx, span := e.tracer.Start(ctx, "policy_engine.apply",
		trace.WithAttributes(
			attribute.String("event.id", event.EventID),
			attribute.Int("plan.actions", len(plan.Actions))))
	defer span.End()

	filtered := *plan
	filtered.Actions = nil
	var skipped []types.DispatchResult

	for i := range plan.Actions {
		action := plan.Actions[i]
		verdict := e.check(ctx, event, &action)
		if !verdict.Allowed {
			e.logger.LogActionSkipped(ctx, event.EventID,
				action.Service, action.Operation, types.SkipPolicyDenied)
			result := types.Skipped(&plan.Actions[i], types.SkipPolicyDenied)
			result.Error = verdict.Reason
			skipped = append(skipped, result)
			continue
		}
		filtered.Actions = append(filtered.Actions, action)
	}

	// Cap the surviving plan, keeping the front of the list
	if e.rules.MaxActions > 0 && len(filtered.Actions) > e.rules.MaxActions {
		for i := e.rules.MaxActions; i < len(filtered.Actions); i++ {
			e.logger.LogActionSkipped(ctx, event.EventID,
				filtered.Actions[i].Service, filtered.Actions[i].Operation, types.SkipClamped)
			skipped = append(skipped, types.Skipped(&filtered.Actions[i], types.SkipClamped))
		}
		filtered.Actions = filtered.Actions[:e.rules.MaxActions]
	}

	return &filtered, skipped
}

// check runs one action through static rules, then Rego
func (e *Engine) check(ctx context.Context, event *types.CanonicalEvent, action *types.Action) Verdict {
	for _, pair := range e.rules.Denied {
		if pair.Service != action.Service {
			continue
		}
		if pair.Operation == "" || pair.Operation == action.Operation {
			return Verdict{Reason: fmt.Sprintf("%s/%s is denied by configuration",
				action.Service, action.Operation)}
		}
	}

	if action.Category == types.CategoryTicketing &&
		e.rules.MinTicketSeverity != "" &&
		!event.Severity.AtLeast(e.rules.MinTicketSeverity) {
		return Verdict{Reason: fmt.Sprintf("ticketing requires severity %s or above",
			e.rules.MinTicketSeverity)}
	}

	return e.evaluateRego(ctx, event, action)
}

// evaluateRego runs every loaded policy. A failing policy never blocks
// an action; compilation already validated it, so evaluation errors are
// logged and treated as no-match.
func (e *Engine) evaluateRego(ctx context.Context, event *types.CanonicalEvent, action *types.Action) Verdict {
	if len(e.queries) == 0 {
		return Verdict{Allowed: true}
	}

	input := map[string]interface{}{
		"event": map[string]interface{}{
			"event_id":   event.EventID,
			"event_type": event.EventType,
			"severity":   string(event.Severity),
			"indicators": event.Indicators,
		},
		"action": map[string]interface{}{
			"service":    action.Service,
			"operation":  action.Operation,
			"category":   string(action.Category),
			"parameters": action.Parameters,
		},
	}

	for name, query := range e.queries {
		results, err := query.Eval(ctx, rego.EvalInput(input))
		if err != nil {
			e.logger.WithContext(ctx).Error().
				Err(err).
				Str("policy_name", name).
				Msg("policy evaluation failed")
			continue
		}
		if verdict := parseVerdict(results); !verdict.Allowed {
			if verdict.Reason == "" {
				verdict.Reason = fmt.Sprintf("denied by policy %s", name)
			}
			return verdict
		}
	}
	return Verdict{Allowed: true}
}

// parseVerdict extracts decision and reason from a Rego result set.
// Policies deny by setting decision := "deny"; anything else allows.
func parseVerdict(results rego.ResultSet) Verdict {
	for _, res := range results {
		for _, expr := range res.Expressions {
			values, ok := expr.Value.(map[string]interface{})
			if !ok {
				continue
			}
			decision, _ := values["decision"].(string)
			if decision != "deny" {
				continue
			}
			reason, _ := values["reason"].(string)
			return Verdict{Reason: reason}
		}
	}
	return Verdict{Allowed: true}
}
