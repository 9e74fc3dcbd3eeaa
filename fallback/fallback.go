// Package fallback is the deterministic planner used when the AI backend
// is unavailable. It never fails; it is the guaranteed terminal step.
package fallback

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yairfalse/reitti/types"
)

// Engine produces action plans from immutable rule tables. A pure
// function of (event, instruction): same input, same plan.
type Engine struct {
	tables Tables
}

// New creates an engine with the given rule tables
func New(tables Tables) *Engine {
	if tables.MaxActions <= 0 {
		tables.MaxActions = DefaultTables().MaxActions
	}
	return &Engine{tables: tables}
}

// NewDefault creates an engine with the stock tables
func NewDefault() *Engine {
	return New(DefaultTables())
}

// Plan builds a deterministic action plan. Keyword rules fire on the
// instruction, indicator rules fire on the event alone, and high or
// critical severity forces a ticket. Unknown severity counts as low and
// forces nothing.
func (e *Engine) Plan(event *types.CanonicalEvent, instruction string) *types.ActionPlan {
	plan := &types.ActionPlan{
		SeverityAssessment: event.Severity,
		Priority:           priorityFor(event.Severity),
		Source:             types.PlanSourceFallback,
	}

	e.applyIndicatorRules(plan, event)
	e.applyKeywordRules(plan, event, instruction)
	e.applySeverityAugmentation(plan, event)

	e.clamp(plan)

	if len(plan.Actions) > 0 {
		plan.Reasoning = fmt.Sprintf("rule-based analysis: %d actions from event indicators and instruction keywords", len(plan.Actions))
	}
	return plan
}

func (e *Engine) applyIndicatorRules(plan *types.ActionPlan, event *types.CanonicalEvent) {
	for _, rule := range e.tables.Indicators {
		value := event.FirstIndicator(rule.Kind)
		if value == "" {
			continue
		}
		addAction(plan, types.Action{
			Service:    rule.Service,
			Operation:  rule.Operation,
			Parameters: map[string]any{rule.ParamKey: value},
			Category:   types.CategoryEnrichment,
		})
	}
}

func (e *Engine) applyKeywordRules(plan *types.ActionPlan, event *types.CanonicalEvent, instruction string) {
	lower := strings.ToLower(instruction)
	if lower == "" {
		return
	}

	for _, rule := range e.tables.Keywords {
		if !matchesAny(lower, rule.Keywords) {
			continue
		}
		action := types.Action{
			Service:   rule.Service,
			Operation: rule.Operation,
			Category:  rule.Category,
		}
		if rule.ParamKind != "" {
			value := event.FirstIndicator(rule.ParamKind)
			if value == "" {
				// Keyword matched but the event lacks the indicator the
				// operation needs; skip rather than dispatch an empty call
				continue
			}
			action.Parameters = map[string]any{rule.ParamKey: value}
		} else if rule.Category == types.CategoryTicketing {
			action.Parameters = ticketParameters(event)
		}
		addAction(plan, action)
	}
}

// applySeverityAugmentation adds a ticket for high and critical events.
// Unknown severity is treated as low: no forced augmentation. This is an
// explicit policy choice, covered by tests.
func (e *Engine) applySeverityAugmentation(plan *types.ActionPlan, event *types.CanonicalEvent) {
	if event.Severity != types.SeverityHigh && event.Severity != types.SeverityCritical {
		return
	}
	if !event.Severity.AtLeast(e.tables.TicketSeverity) {
		return
	}
	if plan.HasAction(e.tables.TicketService, e.tables.TicketOperation) {
		return
	}
	addAction(plan, types.Action{
		Service:    e.tables.TicketService,
		Operation:  e.tables.TicketOperation,
		Parameters: ticketParameters(event),
		Category:   types.CategoryTicketing,
	})
}

// clamp drops excess actions in fixed precedence order: enrichment
// survives ticketing, ticketing survives investigation. Order within a
// category is preserved.
func (e *Engine) clamp(plan *types.ActionPlan) {
	if len(plan.Actions) <= e.tables.MaxActions {
		return
	}
	sort.SliceStable(plan.Actions, func(i, j int) bool {
		return plan.Actions[i].Category.Rank() < plan.Actions[j].Category.Rank()
	})
	plan.Actions = plan.Actions[:e.tables.MaxActions]
}

func addAction(plan *types.ActionPlan, action types.Action) {
	if plan.HasAction(action.Service, action.Operation) {
		return
	}
	plan.Actions = append(plan.Actions, action)
}

func matchesAny(haystack string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}

func ticketParameters(event *types.CanonicalEvent) map[string]any {
	return map[string]any{
		"type":        "incident",
		"summary":     fmt.Sprintf("Security event: %s", event.EventType),
		"severity":    string(event.Severity),
		"event_id":    event.EventID,
		"description": string(event.Raw),
	}
}

func priorityFor(severity types.Severity) int {
	switch severity {
	case types.SeverityCritical:
		return 1
	case types.SeverityHigh:
		return 2
	case types.SeverityMedium:
		return 3
	}
	return 4
}
