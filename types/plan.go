package types

import (
	"fmt"
	"strings"
)

// Action categories used for clamp precedence: when a plan exceeds the
// action budget, enrichment survives ticketing, ticketing survives
// investigation.
type ActionCategory string

const (
	CategoryEnrichment    ActionCategory = "enrichment"
	CategoryTicketing     ActionCategory = "ticketing"
	CategoryInvestigation ActionCategory = "investigation"
)

// categoryRank orders categories for clamping, lower survives longer
var categoryRank = map[ActionCategory]int{
	CategoryEnrichment:    0,
	CategoryTicketing:     1,
	CategoryInvestigation: 2,
}

// Rank returns the clamp precedence of a category. Unrecognized
// categories rank last.
func (c ActionCategory) Rank() int {
	if r, ok := categoryRank[c]; ok {
		return r
	}
	return len(categoryRank)
}

// Action is one planned call against a capability service
type Action struct {
	Service    string         `json:"service"`
	Operation  string         `json:"operation"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Category   ActionCategory `json:"category,omitempty"`
}

// Validate ensures the action names a service and operation
func (a *Action) Validate() error {
	if a.Service == "" {
		return fmt.Errorf("action service cannot be empty")
	}
	if a.Operation == "" {
		return fmt.Errorf("action operation cannot be empty")
	}
	return nil
}

// ClassifyOperation buckets an operation name into a clamp category.
// Lookup-style operations enrich, record/ticket operations file tickets,
// everything else counts as investigation.
func ClassifyOperation(operation string) ActionCategory {
	switch {
	case containsAny(operation, "report", "lookup", "enrich", "analyse", "analyze", "reputation"):
		return CategoryEnrichment
	case containsAny(operation, "create", "record", "ticket", "incident"):
		return CategoryTicketing
	}
	return CategoryInvestigation
}

func containsAny(s string, subs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range subs {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

// PlanSource identifies which planner produced a plan
type PlanSource string

const (
	PlanSourceAI       PlanSource = "ai"
	PlanSourceFallback PlanSource = "fallback"
)

// ActionPlan is the ordered set of calls chosen for one event, produced
// either by an AI backend or by the rule-based fallback engine
type ActionPlan struct {
	Actions            []Action   `json:"actions"`
	Reasoning          string     `json:"reasoning,omitempty"`
	SeverityAssessment Severity   `json:"severity_assessment"`
	Priority           int        `json:"priority"`
	Source             PlanSource `json:"source"`
}

// IsEmpty reports whether the plan contains no actions
func (p *ActionPlan) IsEmpty() bool {
	return len(p.Actions) == 0
}

// HasAction reports whether the plan already contains the given
// service/operation pair
func (p *ActionPlan) HasAction(service, operation string) bool {
	for _, a := range p.Actions {
		if a.Service == service && a.Operation == operation {
			return true
		}
	}
	return false
}
