package storage

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/reitti/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRecord(eventID, batchID string) *OutcomeRecord {
	return &OutcomeRecord{
		EventID: eventID,
		BatchID: batchID,
		Plan: &types.ActionPlan{
			Actions: []types.Action{
				{Service: "virustotal", Operation: "ip_report", Category: types.CategoryEnrichment},
			},
			Source:   types.PlanSourceAI,
			Priority: 2,
		},
		Results: []types.DispatchResult{
			{
				Action: &types.Action{Service: "virustotal", Operation: "ip_report"},
				Status: types.StatusSuccess,
			},
		},
	}
}

func TestStore_RecordAndGet(t *testing.T) {
	store := openTestStore(t)

	seq, err := store.RecordOutcome(sampleRecord("evt-1", "batch-a"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, seq)

	record, err := store.GetOutcome("evt-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "evt-1", record.EventID)
	assert.Equal(t, types.PlanSourceAI, record.Plan.Source)
	assert.Len(t, record.Results, 1)
	assert.False(t, record.Timestamp.IsZero())

	missing, err := store.GetOutcome("evt-nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_RejectsEmptyEventID(t *testing.T) {
	store := openTestStore(t)
	_, err := store.RecordOutcome(&OutcomeRecord{})
	assert.Error(t, err)
}

func TestStore_ListRecent(t *testing.T) {
	store := openTestStore(t)

	for i := 1; i <= 5; i++ {
		_, err := store.RecordOutcome(sampleRecord(fmt.Sprintf("evt-%d", i), ""))
		require.NoError(t, err)
	}

	records, err := store.ListRecent(3)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "evt-5", records[0].EventID)
	assert.Equal(t, "evt-4", records[1].EventID)
	assert.Equal(t, "evt-3", records[2].EventID)
}

func TestStore_ListBatch(t *testing.T) {
	store := openTestStore(t)

	for i := 1; i <= 3; i++ {
		_, err := store.RecordOutcome(sampleRecord(fmt.Sprintf("evt-a%d", i), "batch-a"))
		require.NoError(t, err)
	}
	_, err := store.RecordOutcome(sampleRecord("evt-b1", "batch-b"))
	require.NoError(t, err)

	records, err := store.ListBatch("batch-a")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "evt-a1", records[0].EventID)
	assert.Equal(t, "evt-a3", records[2].EventID)
}

func TestStore_SequenceSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")

	store, err := Open(path)
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		_, err := store.RecordOutcome(sampleRecord(fmt.Sprintf("evt-%d", i), "batch-a"))
		require.NoError(t, err)
	}
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, 3, store.Count())

	seq, err := store.RecordOutcome(sampleRecord("evt-4", "batch-a"))
	require.NoError(t, err)
	assert.EqualValues(t, 4, seq)

	records, err := store.ListBatch("batch-a")
	require.NoError(t, err)
	assert.Len(t, records, 4)
}

func TestStore_OverwriteKeepsLatest(t *testing.T) {
	store := openTestStore(t)

	_, err := store.RecordOutcome(sampleRecord("evt-1", ""))
	require.NoError(t, err)

	updated := sampleRecord("evt-1", "")
	updated.Results[0].Status = types.StatusFailed
	_, err = store.RecordOutcome(updated)
	require.NoError(t, err)

	record, err := store.GetOutcome("evt-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, record.Results[0].Status)
}
