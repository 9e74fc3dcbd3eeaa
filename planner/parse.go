package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yairfalse/reitti/types"
)

// wireAction tolerates both the canonical key names and the legacy
// server/action spelling some backends drift into
type wireAction struct {
	Service    string         `json:"service"`
	Server     string         `json:"server"`
	Operation  string         `json:"operation"`
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters"`
}

type wirePlan struct {
	Actions   []wireAction `json:"actions"`
	Reasoning string       `json:"reasoning"`
	Severity  string       `json:"severity"`
	Priority  int          `json:"priority"`
}

// parsePlan decodes a model response into an action plan. If the raw
// text is not valid JSON, one bounded extraction of an embedded JSON
// block is attempted before giving up.
func parsePlan(raw string) (*types.ActionPlan, error) {
	var wire wirePlan
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		extracted, ok := extractJSON(raw)
		if !ok {
			return nil, fmt.Errorf("response is not JSON and contains no JSON block")
		}
		if err := json.Unmarshal([]byte(extracted), &wire); err != nil {
			return nil, fmt.Errorf("embedded JSON block does not decode: %w", err)
		}
	}

	plan := &types.ActionPlan{
		Reasoning:          wire.Reasoning,
		SeverityAssessment: types.ParseSeverity(strings.ToLower(wire.Severity)),
		Priority:           wire.Priority,
	}
	if plan.Priority == 0 {
		plan.Priority = 3
	}

	for _, wa := range wire.Actions {
		service := wa.Service
		if service == "" {
			service = wa.Server
		}
		operation := wa.Operation
		if operation == "" {
			operation = wa.Action
		}
		plan.Actions = append(plan.Actions, types.Action{
			Service:    service,
			Operation:  operation,
			Parameters: wa.Parameters,
			Category:   types.ClassifyOperation(operation),
		})
	}
	return plan, nil
}

// extractJSON locates one JSON object embedded in surrounding prose:
// a fenced ```json block first, then the outermost brace pair
func extractJSON(raw string) (string, bool) {
	if idx := strings.Index(raw, "```json"); idx >= 0 {
		rest := raw[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end]), true
		}
	}
	if idx := strings.Index(raw, "```"); idx >= 0 {
		rest := raw[idx+3:]
		if end := strings.Index(rest, "```"); end >= 0 {
			candidate := strings.TrimSpace(rest[:end])
			if strings.HasPrefix(candidate, "{") {
				return candidate, true
			}
		}
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1], true
	}
	return "", false
}
