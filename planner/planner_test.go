package planner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/yairfalse/reitti/config"
	"github.com/yairfalse/reitti/registry"
	"github.com/yairfalse/reitti/types"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New(map[string]config.ServiceConfig{
		"virustotal": {Endpoint: "http://localhost:8001", Capabilities: []string{"ip_report", "domain_report"}},
		"servicenow": {Endpoint: "http://localhost:8002", Capabilities: []string{"create_record"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func testEvent() *types.CanonicalEvent {
	return &types.CanonicalEvent{
		EventID:    "evt-test-1",
		EventType:  "malware",
		Severity:   types.SeverityHigh,
		Indicators: map[string][]string{types.IndicatorIP: {"203.0.113.10"}},
		Raw:        []byte(`{"src_ip":"203.0.113.10"}`),
	}
}

// stubBackend satisfies completer with a fixed response or error
type stubBackend struct {
	response string
	err      error
}

func (s *stubBackend) complete(_ context.Context, _, _ string) (string, error) {
	return s.response, s.err
}

func TestPlanParsesCleanJSON(t *testing.T) {
	a := &adapter{name: "stub", backend: &stubBackend{
		response: `{"actions":[{"service":"virustotal","operation":"ip_report","parameters":{"ip":"203.0.113.10"}}],"reasoning":"reputation check","severity":"high","priority":2}`,
	}}

	plan, err := a.Plan(context.Background(), testEvent(), "check this ip", testRegistry(t))
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(plan.Actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(plan.Actions))
	}
	if plan.Actions[0].Category != types.CategoryEnrichment {
		t.Errorf("ip_report should classify as enrichment, got %s", plan.Actions[0].Category)
	}
	if plan.SeverityAssessment != types.SeverityHigh {
		t.Errorf("expected high assessment, got %s", plan.SeverityAssessment)
	}
	if plan.Source != types.PlanSourceAI {
		t.Errorf("expected ai source, got %s", plan.Source)
	}
}

func TestPlanExtractsEmbeddedJSON(t *testing.T) {
	response := "Here is my analysis of the event.\n```json\n" +
		`{"actions":[{"server":"servicenow","action":"create_record","parameters":{}}],"reasoning":"needs a ticket","severity":"critical","priority":1}` +
		"\n```\nLet me know if you need more."

	a := &adapter{name: "stub", backend: &stubBackend{response: response}}
	plan, err := a.Plan(context.Background(), testEvent(), "open an incident", testRegistry(t))
	if err != nil {
		t.Fatalf("Plan failed on embedded JSON: %v", err)
	}
	// Legacy server/action keys map onto service/operation
	if plan.Actions[0].Service != "servicenow" || plan.Actions[0].Operation != "create_record" {
		t.Errorf("legacy keys not mapped: %+v", plan.Actions[0])
	}
}

func TestPlanUnparseableResponse(t *testing.T) {
	a := &adapter{name: "stub", backend: &stubBackend{response: "I cannot help with that."}}

	_, err := a.Plan(context.Background(), testEvent(), "", testRegistry(t))
	if got := types.AdapterFailureReason(err); got != types.AdapterUnparseable {
		t.Errorf("expected unparseable, got %q (err=%v)", got, err)
	}
}

func TestPlanRejectsUnknownCapability(t *testing.T) {
	a := &adapter{name: "stub", backend: &stubBackend{
		response: `{"actions":[{"service":"virustotal","operation":"detonate_file"}],"severity":"low","priority":3}`,
	}}

	_, err := a.Plan(context.Background(), testEvent(), "", testRegistry(t))
	if got := types.AdapterFailureReason(err); got != types.AdapterInvalidPlan {
		t.Errorf("expected invalid-plan, got %q (err=%v)", got, err)
	}
}

func TestPlanBackendErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		reason string
	}{
		{"timeout", context.DeadlineExceeded, types.AdapterTimeout},
		{"auth", errors.New("status 401 Unauthorized"), types.AdapterAuth},
		{"quota", errors.New("ThrottlingException: rate exceeded"), types.AdapterQuota},
		{"other", errors.New("connection reset"), types.AdapterUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := &adapter{name: "stub", backend: &stubBackend{err: tc.err}}
			_, err := a.Plan(context.Background(), testEvent(), "", testRegistry(t))
			if got := types.AdapterFailureReason(err); got != tc.reason {
				t.Errorf("expected %s, got %q", tc.reason, got)
			}
		})
	}
}

func TestSystemPromptListsOnlyRegisteredServices(t *testing.T) {
	prompt := systemPrompt(testRegistry(t))

	for _, want := range []string{"virustotal", "ip_report", "servicenow", "create_record"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestUserPromptTruncatesOversizedRaw(t *testing.T) {
	event := testEvent()
	big := make([]byte, maxRawBytes*2)
	for i := range big {
		big[i] = 'x'
	}
	event.Raw = big

	prompt := userPrompt(event, "check")
	if len(prompt) > maxRawBytes*2 {
		t.Errorf("prompt not bounded: %d bytes", len(prompt))
	}
	if !strings.Contains(prompt, "[truncated]") {
		t.Error("truncation marker missing")
	}
}

func TestFactoryUnknownBackend(t *testing.T) {
	if _, err := New(config.AIConfig{Backend: "crystal-ball"}); err == nil {
		t.Error("unknown backend must fail")
	}
}

func TestRegisteredBackends(t *testing.T) {
	have := map[string]bool{}
	for _, name := range Backends() {
		have[name] = true
	}
	for _, want := range []string{"bedrock", "openai", "gemini"} {
		if !have[want] {
			t.Errorf("backend %s not registered", want)
		}
	}
}

