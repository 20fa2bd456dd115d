package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careledger/careledger-go/pkg/storage"
	"github.com/careledger/careledger-go/pkg/storage/sqlite"
)

const (
	testTextDims  = 4
	testImageDims = 4
)

func newTestStore(t *testing.T) *sqlite.Client {
	t.Helper()
	client, err := sqlite.NewClient(&sqlite.Config{
		DBPath:         filepath.Join(t.TempDir(), "test.db"),
		CollectionName: "patient_records",
		TextDims:       testTextDims,
		ImageDims:      testImageDims,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func testRecord(pointID int64, patientID, recordID string, date time.Time, textEmbedding []float64) *storage.Record {
	return &storage.Record{
		PointID:       pointID,
		PatientID:     patientID,
		RecordID:      recordID,
		RecordType:    "report",
		Modality:      "text",
		Content:       "test content",
		Date:          date,
		Metadata:      map[string]interface{}{"diagnosis": "none"},
		TextEmbedding: textEmbedding,
		ImageEmbedding: make([]float64, testImageDims),
		Memory: storage.MemoryState{
			Weight:         1.0,
			RelevanceScore: 1.0,
		},
	}
}

func TestInsertAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	date := time.Date(2025, time.April, 10, 0, 0, 0, 0, time.UTC)
	record := testRecord(1, "patient_001", "rec-1", date, []float64{1, 0, 0, 0})
	require.NoError(t, store.Insert(ctx, record))

	got, err := store.Get(ctx, 1, "patient_001")
	require.NoError(t, err)
	assert.Equal(t, "rec-1", got.RecordID)
	assert.Equal(t, "report", got.RecordType)
	assert.Equal(t, []float64{1, 0, 0, 0}, got.TextEmbedding)
	assert.Equal(t, "none", got.Metadata["diagnosis"])
	assert.Equal(t, 1.0, got.Memory.Weight)
	assert.Equal(t, 0, got.Memory.AccessCount)
	assert.Nil(t, got.Memory.LastAccessed)
}

func TestGetEnforcesPatientScope(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	record := testRecord(1, "patient_001", "rec-1", time.Now(), []float64{1, 0, 0, 0})
	require.NoError(t, store.Insert(ctx, record))

	_, err := store.Get(ctx, 1, "patient_002")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.Get(ctx, 1, "")
	assert.ErrorIs(t, err, storage.ErrPatientScopeRequired)
}

func TestInsertRejectsEmptyScope(t *testing.T) {
	store := newTestStore(t)
	record := testRecord(1, "", "rec-1", time.Now(), []float64{1, 0, 0, 0})
	assert.ErrorIs(t, store.Insert(context.Background(), record), storage.ErrPatientScopeRequired)
}

func TestSearchSimilarOrdersAndFloors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	// Aligned, orthogonal, and diagonal vectors against query (1,0,0,0).
	require.NoError(t, store.Insert(ctx, testRecord(1, "p1", "aligned", now, []float64{1, 0, 0, 0})))
	require.NoError(t, store.Insert(ctx, testRecord(2, "p1", "orthogonal", now, []float64{0, 1, 0, 0})))
	require.NoError(t, store.Insert(ctx, testRecord(3, "p1", "diagonal", now, []float64{1, 1, 0, 0})))

	results, err := store.SearchSimilar(ctx, []float64{1, 0, 0, 0}, "p1", storage.SlotText, 10, 0.3)
	require.NoError(t, err)

	require.Len(t, results, 2, "orthogonal falls below the floor")
	assert.Equal(t, "aligned", results[0].RecordID)
	assert.Equal(t, "diagonal", results[1].RecordID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.InDelta(t, 0.7071, results[1].Score, 1e-3)
}

func TestSearchSimilarScopesByPatient(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Insert(ctx, testRecord(1, "p1", "mine", now, []float64{1, 0, 0, 0})))
	require.NoError(t, store.Insert(ctx, testRecord(2, "p2", "theirs", now, []float64{1, 0, 0, 0})))

	results, err := store.SearchSimilar(ctx, []float64{1, 0, 0, 0}, "p1", storage.SlotText, 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "mine", results[0].RecordID)

	_, err = store.SearchSimilar(ctx, []float64{1, 0, 0, 0}, "", storage.SlotText, 10, 0)
	assert.ErrorIs(t, err, storage.ErrPatientScopeRequired)
}

func TestSearchSimilarSkipsZeroDates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	dated := testRecord(1, "p1", "dated", time.Now(), []float64{1, 0, 0, 0})
	undated := testRecord(2, "p1", "undated", time.Time{}, []float64{1, 0, 0, 0})
	require.NoError(t, store.Insert(ctx, dated))
	require.NoError(t, store.Insert(ctx, undated))

	results, err := store.SearchSimilar(ctx, []float64{1, 0, 0, 0}, "p1", storage.SlotText, 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1, "records without an event date are skipped, not fatal")
	assert.Equal(t, "dated", results[0].RecordID)
}

func TestTimelineOrderAndBounds(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Insert(ctx, testRecord(1, "p1", "middle", base.AddDate(0, 1, 0), []float64{1, 0, 0, 0})))
	require.NoError(t, store.Insert(ctx, testRecord(2, "p1", "first", base, []float64{1, 0, 0, 0})))
	require.NoError(t, store.Insert(ctx, testRecord(3, "p1", "last", base.AddDate(0, 2, 0), []float64{1, 0, 0, 0})))

	timeline, err := store.Timeline(ctx, "p1", nil, nil)
	require.NoError(t, err)
	require.Len(t, timeline, 3)
	assert.Equal(t, "first", timeline[0].RecordID)
	assert.Equal(t, "middle", timeline[1].RecordID)
	assert.Equal(t, "last", timeline[2].RecordID)

	start := base.AddDate(0, 0, 15)
	end := base.AddDate(0, 1, 15)
	bounded, err := store.Timeline(ctx, "p1", &start, &end)
	require.NoError(t, err)
	require.Len(t, bounded, 1)
	assert.Equal(t, "middle", bounded[0].RecordID)
}

func TestReinforceAccessProgression(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	record := testRecord(1, "p1", "rec-1", now, []float64{1, 0, 0, 0})
	require.NoError(t, store.Insert(ctx, record))

	// The first two accesses stay at level 0; the third reaches level 1.
	wantLevels := []int{0, 0, 1}
	wantWeights := []float64{1.05, 1.10, 1.30}
	for i := 0; i < 3; i++ {
		state, err := store.ReinforceAccess(ctx, 1, "p1", now)
		require.NoError(t, err)
		assert.Equal(t, i+1, state.AccessCount)
		assert.Equal(t, wantLevels[i], state.ReinforcementLevel, "level after access %d", i+1)
		assert.InDelta(t, wantWeights[i], state.Weight, 1e-9, "weight after access %d", i+1)
		assert.InDelta(t, state.Weight, state.RelevanceScore, 1e-9)
		require.NotNil(t, state.LastAccessed)
	}
}

func TestReinforceAccessCaps(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Insert(ctx, testRecord(1, "p1", "rec-1", now, []float64{1, 0, 0, 0})))

	var state *storage.MemoryState
	var err error
	for i := 0; i < 12; i++ {
		state, err = store.ReinforceAccess(ctx, 1, "p1", now)
		require.NoError(t, err)
		assert.LessOrEqual(t, state.Weight, 2.0)
	}
	assert.Equal(t, 12, state.AccessCount)
	assert.Equal(t, 3, state.ReinforcementLevel)
	assert.Equal(t, 2.0, state.Weight, "weight saturates at the ceiling")
}

func TestReinforceAccessUnknownRecord(t *testing.T) {
	store := newTestStore(t)
	_, err := store.ReinforceAccess(context.Background(), 42, "p1", time.Now())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestApplyDecay(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Insert(ctx, testRecord(1, "p1", "rec-1", now.AddDate(-2, 0, 0), []float64{1, 0, 0, 0})))

	state, err := store.ApplyDecay(ctx, 1, "p1", 0.8, 730, now)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, state.Weight, 1e-9)
	assert.True(t, state.DecayApplied)
	assert.Equal(t, 730, state.DaysSinceCreation)
	assert.InDelta(t, 0.8, state.RelevanceScore, 1e-9, "zero accesses leave relevance equal to weight")

	// Compounding: a second sweep multiplies the already-decayed weight,
	// clamped at the floor.
	state, err = store.ApplyDecay(ctx, 1, "p1", 0.3, 730, now)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, state.Weight, 1e-9, "0.8 * 0.3 clamps up to the 0.3 floor")
}

func TestApplyDecayRejectsBadFactor(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Insert(ctx, testRecord(1, "p1", "rec-1", now, []float64{1, 0, 0, 0})))
	_, err := store.ReinforceAccess(ctx, 1, "p1", now)
	require.NoError(t, err)

	before, err := store.Get(ctx, 1, "p1")
	require.NoError(t, err)

	_, err = store.ApplyDecay(ctx, 1, "p1", 0, 100, now)
	assert.ErrorIs(t, err, storage.ErrInvariantViolation)
	_, err = store.ApplyDecay(ctx, 1, "p1", 1.5, 100, now)
	assert.ErrorIs(t, err, storage.ErrInvariantViolation)

	// The rejected updates left the record untouched.
	after, err := store.Get(ctx, 1, "p1")
	require.NoError(t, err)
	assert.Equal(t, before.Memory.Weight, after.Memory.Weight)
	assert.False(t, after.Memory.DecayApplied)
}

func TestDeleteAll(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Insert(ctx, testRecord(1, "p1", "mine", now, []float64{1, 0, 0, 0})))
	require.NoError(t, store.Insert(ctx, testRecord(2, "p2", "theirs", now, []float64{1, 0, 0, 0})))

	require.NoError(t, store.DeleteAll(ctx, "p1"))

	_, err := store.Get(ctx, 1, "p1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// The other patient's records survive.
	_, err = store.Get(ctx, 2, "p2")
	assert.NoError(t, err)
}
