package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestSeverityRank(t *testing.T) {
	if !SeverityCritical.AtLeast(SeverityHigh) {
		t.Error("critical should rank at least high")
	}
	if SeverityLow.AtLeast(SeverityMedium) {
		t.Error("low should not rank at least medium")
	}
	// Unknown severity is treated as low everywhere
	if SeverityUnknown.Rank() != SeverityLow.Rank() {
		t.Errorf("unknown should rank as low, got %d", SeverityUnknown.Rank())
	}
}

func TestParseSeverity(t *testing.T) {
	cases := map[string]Severity{
		"low":      SeverityLow,
		"critical": SeverityCritical,
		"HIGH":     SeverityUnknown, // parsing is exact, normalization lowercases first
		"5":        SeverityUnknown,
		"":         SeverityUnknown,
	}
	for raw, want := range cases {
		if got := ParseSeverity(raw); got != want {
			t.Errorf("ParseSeverity(%q) = %s, want %s", raw, got, want)
		}
	}
}

func TestActionValidate(t *testing.T) {
	a := Action{Service: "virustotal", Operation: "ip_report"}
	if err := a.Validate(); err != nil {
		t.Errorf("valid action rejected: %v", err)
	}

	missing := Action{Operation: "ip_report"}
	if err := missing.Validate(); err == nil {
		t.Error("action without service should fail validation")
	}
}

func TestPlanHasAction(t *testing.T) {
	plan := ActionPlan{
		Actions: []Action{
			{Service: "virustotal", Operation: "ip_report"},
			{Service: "servicenow", Operation: "create_record"},
		},
	}

	if !plan.HasAction("servicenow", "create_record") {
		t.Error("expected plan to contain servicenow/create_record")
	}
	if plan.HasAction("servicenow", "get_record") {
		t.Error("plan should not contain servicenow/get_record")
	}
}

func TestCategoryRank(t *testing.T) {
	if CategoryEnrichment.Rank() >= CategoryTicketing.Rank() {
		t.Error("enrichment must outrank ticketing in clamp precedence")
	}
	if CategoryTicketing.Rank() >= CategoryInvestigation.Rank() {
		t.Error("ticketing must outrank investigation in clamp precedence")
	}
	if ActionCategory("bogus").Rank() <= CategoryInvestigation.Rank() {
		t.Error("unrecognized categories rank last")
	}
}

func TestAdapterFailureReason(t *testing.T) {
	err := fmt.Errorf("planning: %w", &AdapterError{Backend: "bedrock", Reason: AdapterTimeout})
	if got := AdapterFailureReason(err); got != AdapterTimeout {
		t.Errorf("expected timeout reason, got %q", got)
	}
	if got := AdapterFailureReason(errors.New("plain")); got != "" {
		t.Errorf("expected empty reason for plain error, got %q", got)
	}
}

func TestDispatchErrorRetryable(t *testing.T) {
	if (&DispatchError{Status: 404}).Retryable() {
		t.Error("4xx must not retry")
	}
	if !(&DispatchError{Status: 503}).Retryable() {
		t.Error("5xx must retry")
	}
	if !(&DispatchError{Err: errors.New("connection refused")}).Retryable() {
		t.Error("network errors must retry")
	}
}
