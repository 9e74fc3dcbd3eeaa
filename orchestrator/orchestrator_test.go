package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/reitti/audit"
	"github.com/yairfalse/reitti/config"
	"github.com/yairfalse/reitti/fallback"
	"github.com/yairfalse/reitti/normalizer"
	"github.com/yairfalse/reitti/planner"
	"github.com/yairfalse/reitti/policy"
	"github.com/yairfalse/reitti/registry"
	"github.com/yairfalse/reitti/storage"
	"github.com/yairfalse/reitti/types"
)

// fakePlanner returns a canned plan or error
type fakePlanner struct {
	plan *types.ActionPlan
	err  error
}

func (f *fakePlanner) Plan(ctx context.Context, event *types.CanonicalEvent, instruction string, reg *registry.Registry) (*types.ActionPlan, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.plan, nil
}

func (f *fakePlanner) Name() string { return "fake" }

// fakeDispatcher records what it was asked to dispatch
type fakeDispatcher struct {
	mu       sync.Mutex
	calls    []string
	fail     bool
	blockCtx bool
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, eventID string, action *types.Action) *types.DispatchResult {
	f.mu.Lock()
	f.calls = append(f.calls, action.Service+"/"+action.Operation)
	f.mu.Unlock()

	if f.blockCtx {
		<-ctx.Done()
		return &types.DispatchResult{
			Action: action,
			Status: types.StatusFailed,
			Error:  ctx.Err().Error(),
		}
	}
	if f.fail {
		return &types.DispatchResult{
			Action: action,
			Status: types.StatusFailed,
			Error:  "dispatch virustotal/ip_report: status 500",
		}
	}
	return &types.DispatchResult{
		Action:   action,
		Status:   types.StatusSuccess,
		Response: json.RawMessage(`{"ok":true}`),
		Attempts: 1,
	}
}

func (f *fakeDispatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type testHarness struct {
	orch     *Orchestrator
	disp     *fakeDispatcher
	store    *storage.Store
	auditDir string
}

func newHarness(t *testing.T, plnr *fakePlanner, pol *policy.Engine, options Options) *testHarness {
	t.Helper()

	reg, err := registry.New(map[string]config.ServiceConfig{
		"virustotal": {Endpoint: "http://vt.local", Capabilities: []string{"ip_report", "domain_report"}},
		"servicenow": {Endpoint: "http://snow.local", Capabilities: []string{"create_record"}},
	})
	require.NoError(t, err)

	auditDir := t.TempDir()
	trail, err := audit.Open(auditDir)
	require.NoError(t, err)
	t.Cleanup(func() { trail.Close() })

	store, err := storage.Open(t.TempDir() + "/results.db")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	disp := &fakeDispatcher{}

	// A typed nil must not sneak into the planner interface
	var p planner.Planner
	if plnr != nil {
		p = plnr
	}

	orch := New(p, fallback.NewDefault(), pol, disp, reg,
		audit.NewRecorder(trail, nil), store, options)

	return &testHarness{orch: orch, disp: disp, store: store, auditDir: auditDir}
}

func highSeverityEvent() *types.CanonicalEvent {
	return &types.CanonicalEvent{
		EventID:   "evt-test-1",
		Timestamp: time.Now(),
		EventType: "malware_detected",
		Severity:  types.SeverityHigh,
		Indicators: map[string][]string{
			types.IndicatorIP: {"198.51.100.7"},
		},
		Raw: json.RawMessage(`{"alert":"malware"}`),
	}
}

func TestProcess_AIPlanDispatched(t *testing.T) {
	plnr := &fakePlanner{plan: &types.ActionPlan{
		Actions: []types.Action{
			{Service: "virustotal", Operation: "ip_report",
				Parameters: map[string]any{"ip": "198.51.100.7"},
				Category:   types.CategoryEnrichment},
		},
		Source:   types.PlanSourceAI,
		Priority: 2,
	}}
	h := newHarness(t, plnr, nil, Options{})

	result := h.orch.Process(context.Background(), highSeverityEvent())

	assert.Equal(t, StateDone, result.State)
	assert.Equal(t, types.PlanSourceAI, result.Plan.Source)
	require.Len(t, result.Results, 1)
	assert.Equal(t, types.StatusSuccess, result.Results[0].Status)
	assert.Equal(t, 1, h.disp.callCount())

	// Outcome persisted
	record, err := h.store.GetOutcome("evt-test-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, types.PlanSourceAI, record.Plan.Source)
}

func TestProcess_AdapterFailureFallsBack(t *testing.T) {
	plnr := &fakePlanner{err: &types.AdapterError{Backend: "fake", Reason: types.AdapterTimeout}}
	h := newHarness(t, plnr, nil, Options{Instruction: "check if this ip is malicious"})

	result := h.orch.Process(context.Background(), highSeverityEvent())

	assert.Equal(t, StateDone, result.State)
	assert.Equal(t, types.PlanSourceFallback, result.Plan.Source)
	assert.True(t, result.Plan.HasAction("virustotal", "ip_report"))

	// The trail records the fallback with the failure reason
	entries, err := audit.EntriesForEvent(h.auditDir, "evt-test-1")
	require.NoError(t, err)

	var fallbackEntry *audit.Entry
	for _, e := range entries {
		if e.Type == audit.EntryPlanFallback {
			fallbackEntry = e
		}
	}
	require.NotNil(t, fallbackEntry, "expected a plan-fallback entry")

	var data map[string]any
	require.NoError(t, json.Unmarshal(fallbackEntry.Data, &data))
	assert.Equal(t, types.AdapterTimeout, data["adapter_failure_reason"])
}

func TestProcess_NoPlannerUsesRules(t *testing.T) {
	h := newHarness(t, nil, nil, Options{Instruction: "check if this ip is malicious"})

	result := h.orch.Process(context.Background(), highSeverityEvent())

	assert.Equal(t, types.PlanSourceFallback, result.Plan.Source)
	assert.NotEmpty(t, result.Plan.Actions)
}

func TestProcess_UnknownCapabilitySkipped(t *testing.T) {
	plnr := &fakePlanner{plan: &types.ActionPlan{
		Actions: []types.Action{
			{Service: "virustotal", Operation: "ip_report", Category: types.CategoryEnrichment},
			{Service: "virustotal", Operation: "detonate_sample", Category: types.CategoryInvestigation},
		},
		Source: types.PlanSourceAI,
	}}
	h := newHarness(t, plnr, nil, Options{})

	result := h.orch.Process(context.Background(), highSeverityEvent())

	require.Len(t, result.Results, 2)
	assert.Equal(t, 1, h.disp.callCount(), "unknown capability must not be dispatched")

	var skippedResult *types.DispatchResult
	for i := range result.Results {
		if result.Results[i].Status == types.StatusSkipped {
			skippedResult = &result.Results[i]
		}
	}
	require.NotNil(t, skippedResult)
	assert.Equal(t, types.SkipUnknownCapability, skippedResult.SkipReason)
	assert.Equal(t, "detonate_sample", skippedResult.Action.Operation)
}

func TestProcess_PolicyDenies(t *testing.T) {
	plnr := &fakePlanner{plan: &types.ActionPlan{
		Actions: []types.Action{
			{Service: "servicenow", Operation: "create_record", Category: types.CategoryTicketing},
		},
		Source: types.PlanSourceAI,
	}}
	pol := policy.NewEngine(policy.Rules{
		Denied: []policy.DeniedPair{{Service: "servicenow"}},
	})
	h := newHarness(t, plnr, pol, Options{})

	result := h.orch.Process(context.Background(), highSeverityEvent())

	assert.Equal(t, 0, h.disp.callCount())
	require.Len(t, result.Results, 1)
	assert.Equal(t, types.SkipPolicyDenied, result.Results[0].SkipReason)
}

func TestProcess_DispatchFailureRecorded(t *testing.T) {
	plnr := &fakePlanner{plan: &types.ActionPlan{
		Actions: []types.Action{
			{Service: "virustotal", Operation: "ip_report", Category: types.CategoryEnrichment},
		},
		Source: types.PlanSourceAI,
	}}
	h := newHarness(t, plnr, nil, Options{})
	h.disp.fail = true

	result := h.orch.Process(context.Background(), highSeverityEvent())

	assert.Equal(t, StateDone, result.State, "one failed action must not abort the event")
	require.Len(t, result.Results, 1)
	assert.Equal(t, types.StatusFailed, result.Results[0].Status)
}

func TestProcess_CancellationMarksInFlight(t *testing.T) {
	plnr := &fakePlanner{plan: &types.ActionPlan{
		Actions: []types.Action{
			{Service: "virustotal", Operation: "ip_report", Category: types.CategoryEnrichment},
		},
		Source: types.PlanSourceAI,
	}}
	h := newHarness(t, plnr, nil, Options{FanoutLimit: 1})
	h.disp.blockCtx = true

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	result := h.orch.Process(ctx, highSeverityEvent())

	require.Len(t, result.Results, 1)
	assert.Equal(t, types.StatusSkipped, result.Results[0].Status)
	assert.Equal(t, types.SkipCancelledInFlight, result.Results[0].SkipReason)
}

func TestProcessRaw_MalformedInputAborts(t *testing.T) {
	h := newHarness(t, nil, nil, Options{})

	result := h.orch.ProcessRaw(context.Background(), []byte("{broken json"), normalizer.FormatJSON, 1)

	assert.Equal(t, StateAborted, result.State)
	assert.Error(t, result.Err)
}

func TestProcessBatch(t *testing.T) {
	h := newHarness(t, nil, nil, Options{Instruction: "check if this ip is malicious"})

	records := []map[string]any{
		{"event_type": "malware", "severity": "high", "src_ip": "198.51.100.7"},
		{"event_type": "scan", "severity": "low", "src_ip": "203.0.113.9"},
	}
	data, err := json.Marshal(records)
	require.NoError(t, err)

	batch := h.orch.ProcessBatch(context.Background(), data, normalizer.FormatJSON, "batch-1")

	assert.Equal(t, 2, batch.Processed)
	assert.Equal(t, 0, batch.Failed)
	assert.Len(t, batch.Results, 2)

	stored, err := h.store.ListBatch("batch-1")
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	// Batch completion is on the trail
	var sawBatchComplete bool
	err = audit.Replay(h.auditDir, time.Time{}, func(e *audit.Entry) error {
		if e.Type == audit.EntryBatchComplete {
			sawBatchComplete = true
		}
		return nil
	})
	require.NoError(t, err)
	assert.True(t, sawBatchComplete)
}

func TestProcessBatch_ProgressNotifications(t *testing.T) {
	var progress []Progress
	h := newHarness(t, nil, nil, Options{
		Instruction: "check if this ip is malicious",
		OnProgress:  func(p Progress) { progress = append(progress, p) },
	})

	records := []map[string]any{
		{"event_type": "malware", "severity": "high", "src_ip": "198.51.100.7"},
		{"event_type": "scan", "severity": "low", "src_ip": "203.0.113.9"},
	}
	data, err := json.Marshal(records)
	require.NoError(t, err)

	h.orch.ProcessBatch(context.Background(), data, normalizer.FormatJSON, "batch-3")

	require.Len(t, progress, 2)
	assert.Equal(t, 0, progress[0].Index)
	assert.Equal(t, 1, progress[1].Index)
	assert.Equal(t, 2, progress[0].Total)
	assert.Equal(t, "batch-3", progress[0].BatchID)
	assert.NotEmpty(t, progress[1].Latest.EventID)
}

func TestProcessBatch_ContinuesPastBadRecords(t *testing.T) {
	h := newHarness(t, nil, nil, Options{})

	data := []byte(fmt.Sprintf("[%s, %s]",
		`{"event_type":"malware","severity":"high"}`,
		`"just a string, not an object"`))

	batch := h.orch.ProcessBatch(context.Background(), data, normalizer.FormatJSON, "batch-2")

	assert.Equal(t, 1, batch.Processed)
	assert.Equal(t, 1, batch.Failed)
}
