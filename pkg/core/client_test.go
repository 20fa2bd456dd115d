package core_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careledger/careledger-go/pkg/core"
	"github.com/careledger/careledger-go/pkg/embedder"
	"github.com/careledger/careledger-go/pkg/intelligence"
	"github.com/careledger/careledger-go/pkg/storage"
)

// fakeEmbedder returns deterministic vectors at the slot dimensions.
type fakeEmbedder struct {
	textErr   error
	embedded  []string
	dimension int
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{dimension: embedder.TextDimensions}
}

func (f *fakeEmbedder) EmbedText(ctx context.Context, text string) ([]float64, error) {
	if f.textErr != nil {
		return nil, f.textErr
	}
	f.embedded = append(f.embedded, text)
	vec := make([]float64, f.dimension)
	vec[0] = 1.0
	return vec, nil
}

func (f *fakeEmbedder) EmbedImage(ctx context.Context, data []byte) ([]float64, error) {
	return make([]float64, embedder.ImageDimensions), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range texts {
		vec, err := f.EmbedText(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions(modality string) int {
	if modality == "image" {
		return embedder.ImageDimensions
	}
	return f.dimension
}

func (f *fakeEmbedder) Close() error { return nil }

// fakeStore is an in-memory RecordStore applying the reinforcement table
// and decay clamps the way the real backends do.
type fakeStore struct {
	records      []*storage.Record
	searchHits   []*storage.Record
	searchErr    error
	reinforced   []int64
	reinforceErr error
	decayed      map[int64]float64
}

func newFakeStore() *fakeStore {
	return &fakeStore{decayed: make(map[int64]float64)}
}

func (f *fakeStore) Insert(ctx context.Context, record *storage.Record) error {
	if record.PatientID == "" {
		return storage.ErrPatientScopeRequired
	}
	f.records = append(f.records, record)
	return nil
}

func (f *fakeStore) SearchSimilar(ctx context.Context, embedding []float64, patientID string, slot storage.VectorSlot, limit int, scoreFloor float64) ([]*storage.Record, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	hits := f.searchHits
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (f *fakeStore) Timeline(ctx context.Context, patientID string, start, end *time.Time) ([]*storage.Record, error) {
	var out []*storage.Record
	for _, record := range f.records {
		if record.PatientID != patientID {
			continue
		}
		if start != nil && record.Date.Before(*start) {
			continue
		}
		if end != nil && record.Date.After(*end) {
			continue
		}
		out = append(out, record)
	}
	return out, nil
}

func (f *fakeStore) Get(ctx context.Context, pointID int64, patientID string) (*storage.Record, error) {
	for _, record := range f.records {
		if record.PointID == pointID && record.PatientID == patientID {
			return record, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) ReinforceAccess(ctx context.Context, pointID int64, patientID string, now time.Time) (*storage.MemoryState, error) {
	if f.reinforceErr != nil {
		return nil, f.reinforceErr
	}
	f.reinforced = append(f.reinforced, pointID)
	for _, record := range f.records {
		if record.PointID == pointID {
			record.Memory.AccessCount++
			record.Memory.Weight = intelligence.WeightForAccessCount(record.Memory.AccessCount)
			record.Memory.ReinforcementLevel = intelligence.LevelForAccessCount(record.Memory.AccessCount)
			state := record.Memory
			return &state, nil
		}
	}
	return &storage.MemoryState{AccessCount: 1, Weight: 1.05}, nil
}

func (f *fakeStore) ApplyDecay(ctx context.Context, pointID int64, patientID string, factor float64, ageDays int, now time.Time) (*storage.MemoryState, error) {
	if factor <= 0 || factor > 1 {
		return nil, storage.ErrInvariantViolation
	}
	f.decayed[pointID] = factor
	for _, record := range f.records {
		if record.PointID == pointID {
			record.Memory.Weight = intelligence.ClampWeight(record.Memory.Weight * factor)
			record.Memory.DecayApplied = true
			record.Memory.RelevanceScore = intelligence.RelevanceScore(record.Memory.Weight, record.Memory.AccessCount)
			state := record.Memory
			return &state, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) DeleteAll(ctx context.Context, patientID string) error {
	var kept []*storage.Record
	for _, record := range f.records {
		if record.PatientID != patientID {
			kept = append(kept, record)
		}
	}
	f.records = kept
	return nil
}

func (f *fakeStore) Close() error { return nil }

func testConfig() *core.Config {
	return &core.Config{
		Embedder: core.EmbedderConfig{Provider: "openai", APIKey: "test"},
		Store:    core.StoreConfig{Provider: "sqlite"},
	}
}

func newTestClient(t *testing.T, store *fakeStore, emb *fakeEmbedder) *core.Client {
	t.Helper()
	client, err := core.NewClientWithBackends(testConfig(), store, emb)
	require.NoError(t, err)
	return client
}

func searchHit(pointID int64, daysOld int, similarity float64) *storage.Record {
	return &storage.Record{
		PointID:    pointID,
		PatientID:  "patient_001",
		RecordID:   fmt.Sprintf("rec-%d", pointID),
		RecordType: "report",
		Modality:   "text",
		Content:    "record content",
		Date:       time.Now().AddDate(0, 0, -daysOld),
		Score:      similarity,
		Memory:     storage.MemoryState{Weight: 1.0},
	}
}

func TestIngestAssignsIdentifiers(t *testing.T) {
	store := newFakeStore()
	client := newTestClient(t, store, newFakeEmbedder())

	pointID, err := client.Ingest(context.Background(), &core.MedicalRecord{
		PatientID: "patient_001",
		Content:   "routine checkup",
		Date:      time.Now().AddDate(0, 0, -1),
	})

	require.NoError(t, err)
	assert.NotZero(t, pointID)
	require.Len(t, store.records, 1)

	stored := store.records[0]
	assert.NotEmpty(t, stored.RecordID, "record ID is generated when absent")
	assert.Equal(t, "text", stored.Modality)
	assert.Equal(t, 1.0, stored.Memory.Weight, "new records start at weight 1.0")
	assert.Equal(t, 0, stored.Memory.AccessCount)
	assert.Len(t, stored.TextEmbedding, embedder.TextDimensions)
}

func TestIngestZeroFillsAbsentSlots(t *testing.T) {
	store := newFakeStore()
	client := newTestClient(t, store, newFakeEmbedder())
	ctx := context.Background()

	_, err := client.Ingest(ctx, &core.MedicalRecord{
		PatientID: "patient_001",
		Content:   "text-only note",
		Date:      time.Now().AddDate(0, 0, -1),
	})
	require.NoError(t, err)

	_, err = client.Ingest(ctx, &core.MedicalRecord{
		PatientID: "patient_001",
		Modality:  core.ModalityImage,
		ImageData: []byte{0x89, 0x50},
		Date:      time.Now().AddDate(0, 0, -1),
	})
	require.NoError(t, err)
	require.Len(t, store.records, 2)

	// Both slots are present on every record; the unused one holds a zero
	// vector of the slot's dimension.
	textOnly, imageOnly := store.records[0], store.records[1]
	assert.Len(t, textOnly.TextEmbedding, embedder.TextDimensions)
	assert.Len(t, textOnly.ImageEmbedding, embedder.ImageDimensions)
	assert.Equal(t, make([]float64, embedder.ImageDimensions), textOnly.ImageEmbedding)
	assert.Len(t, imageOnly.TextEmbedding, embedder.TextDimensions)
	assert.Equal(t, make([]float64, embedder.TextDimensions), imageOnly.TextEmbedding)
	assert.Len(t, imageOnly.ImageEmbedding, embedder.ImageDimensions)
}

func TestIngestRejectsMissingScopeAndDate(t *testing.T) {
	client := newTestClient(t, newFakeStore(), newFakeEmbedder())
	ctx := context.Background()

	_, err := client.Ingest(ctx, &core.MedicalRecord{Content: "x", Date: time.Now()})
	assert.ErrorIs(t, err, core.ErrPatientScopeRequired)

	_, err = client.Ingest(ctx, &core.MedicalRecord{PatientID: "p", Content: "x"})
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = client.Ingest(ctx, &core.MedicalRecord{PatientID: "p", Date: time.Now()})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestIngestRejectsDimensionMismatch(t *testing.T) {
	emb := newFakeEmbedder()
	emb.dimension = 100
	client := newTestClient(t, newFakeStore(), emb)

	_, err := client.Ingest(context.Background(), &core.MedicalRecord{
		PatientID: "patient_001",
		Content:   "checkup",
		Date:      time.Now(),
	})
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestFindSimilarCasesReinforcesOnlyReturned(t *testing.T) {
	store := newFakeStore()
	// Six hits, limit 2: only the two returned records earn reinforcement.
	for i := int64(1); i <= 6; i++ {
		store.searchHits = append(store.searchHits, searchHit(i, 10, 0.9-float64(i)*0.05))
	}
	client := newTestClient(t, store, newFakeEmbedder())

	result, err := client.FindSimilarCases(context.Background(), "patient_001", "checkup",
		core.WithLimit(2), core.WithTimeWeight(0))
	require.NoError(t, err)

	assert.Len(t, result.RecentCases, 2)
	assert.Equal(t, []int64{1, 2}, store.reinforced,
		"exactly the final truncated results are reinforced")
}

func TestFindSimilarCasesPartitionsBuckets(t *testing.T) {
	store := newFakeStore()
	store.searchHits = []*storage.Record{
		searchHit(1, 30, 0.9),
		searchHit(2, 250, 0.8),
		searchHit(3, 400, 0.85),
	}
	client := newTestClient(t, store, newFakeEmbedder())

	result, err := client.FindSimilarCases(context.Background(), "patient_001", "checkup",
		core.WithTimeWeight(0))
	require.NoError(t, err)

	assert.Len(t, result.RecentCases, 1)
	assert.Len(t, result.OldCases, 1)
	assert.Len(t, result.TemporalContext, 3,
		"the temporal context covers all returned records, including beyond the old window")
	assert.Equal(t, 0.0, result.Ranking.TimeWeightApplied)
	assert.True(t, result.Ranking.MemoryEvolutionConsidered)
}

func TestFindSimilarCasesEmbedFailureIsFatal(t *testing.T) {
	emb := newFakeEmbedder()
	emb.textErr = errors.New("api down")
	client := newTestClient(t, newFakeStore(), emb)

	_, err := client.FindSimilarCases(context.Background(), "patient_001", "checkup")
	assert.ErrorIs(t, err, core.ErrEmbeddingFailed)
}

func TestFindSimilarCasesReinforceFailureIsFatal(t *testing.T) {
	store := newFakeStore()
	store.searchHits = []*storage.Record{searchHit(1, 10, 0.9)}
	store.reinforceErr = errors.New("db gone")
	client := newTestClient(t, store, newFakeEmbedder())

	_, err := client.FindSimilarCases(context.Background(), "patient_001", "checkup")
	assert.Error(t, err)
}

func TestFindSimilarCasesValidatesInput(t *testing.T) {
	client := newTestClient(t, newFakeStore(), newFakeEmbedder())
	ctx := context.Background()

	_, err := client.FindSimilarCases(ctx, "", "checkup")
	assert.ErrorIs(t, err, core.ErrPatientScopeRequired)

	_, err = client.FindSimilarCases(ctx, "patient_001", "")
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = client.FindSimilarCases(ctx, "patient_001", "checkup", core.WithTimeWeight(1.5))
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestApplyTemporalDecay(t *testing.T) {
	store := newFakeStore()
	client := newTestClient(t, store, newFakeEmbedder())
	ctx := context.Background()

	// One fresh record, one eighteen months old, one three years old with
	// frequent access.
	fresh := searchHit(1, 30, 0)
	midAge := searchHit(2, 550, 0)
	oldFrequent := searchHit(3, 365*3, 0)
	oldFrequent.Memory.AccessCount = 6
	store.records = []*storage.Record{fresh, midAge, oldFrequent}

	report, err := client.ApplyTemporalDecay(ctx, "patient_001")
	require.NoError(t, err)

	assert.Equal(t, "patient_001", report.PatientID)
	require.Len(t, report.Decayed, 2, "records within the threshold never decay")

	_, freshTouched := store.decayed[1]
	assert.False(t, freshTouched)

	// 550 days: (550-365)/365 extra years -> factor just above 0.89.
	assert.InDelta(t, 1.0-0.2*(550.0-365.0)/365.0, store.decayed[2], 1e-3)

	// Three years with frequent access: raw 0.6, raised to the 0.7 floor.
	assert.InDelta(t, 0.7, store.decayed[3], 1e-6)
	assert.True(t, oldFrequent.Memory.DecayApplied)
}

func TestApplyTemporalDecayRequiresScope(t *testing.T) {
	client := newTestClient(t, newFakeStore(), newFakeEmbedder())
	_, err := client.ApplyTemporalDecay(context.Background(), "")
	assert.ErrorIs(t, err, core.ErrPatientScopeRequired)
}

func TestAnalyzeSymptomProgression(t *testing.T) {
	store := newFakeStore()
	client := newTestClient(t, store, newFakeEmbedder())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		record := searchHit(int64(i+1), 30+i*60, 0)
		record.Content = "recurring knee pain episode"
		store.records = append(store.records, record)
	}

	progression, err := client.AnalyzeSymptomProgression(ctx, "patient_001", "knee pain", 365)
	require.NoError(t, err)
	assert.Equal(t, 3, progression.Occurrences)
	assert.Equal(t, "recurring", progression.Trend)
}

func TestGetMemorySummary(t *testing.T) {
	store := newFakeStore()
	client := newTestClient(t, store, newFakeEmbedder())
	ctx := context.Background()

	a := searchHit(1, 400, 0)
	a.RecordType = "report"
	b := searchHit(2, 10, 0)
	b.RecordType = "symptom"
	store.records = []*storage.Record{a, b}

	summary, err := client.GetMemorySummary(ctx, "patient_001")
	require.NoError(t, err)

	assert.Equal(t, 2, summary.TotalRecords)
	assert.Equal(t, 1, summary.RecordTypes["report"])
	assert.Equal(t, 1, summary.RecordTypes["symptom"])
	assert.InDelta(t, 390, float64(summary.SpanDays), 1)
	assert.NotEqual(t, "empty", summary.Health.Status)
}

func TestGetMemorySummaryEmpty(t *testing.T) {
	client := newTestClient(t, newFakeStore(), newFakeEmbedder())

	summary, err := client.GetMemorySummary(context.Background(), "patient_empty")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.TotalRecords)
	assert.Equal(t, "empty", summary.Health.Status)
	assert.Nil(t, summary.EarliestDate)
}

func TestConsolidateWindow(t *testing.T) {
	store := newFakeStore()
	client := newTestClient(t, store, newFakeEmbedder())
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		record := searchHit(i, 5, 0)
		record.RecordType = "symptom"
		store.records = append(store.records, record)
	}

	report, err := client.ConsolidateWindow(ctx, "patient_001", 30)
	require.NoError(t, err)
	assert.Equal(t, 3, report.TotalRecords)
	require.Len(t, report.Patterns, 1)
	assert.Equal(t, "symptom", report.Patterns[0].RecordType)
}

func TestDeletePatient(t *testing.T) {
	store := newFakeStore()
	client := newTestClient(t, store, newFakeEmbedder())
	ctx := context.Background()

	store.records = []*storage.Record{searchHit(1, 10, 0)}

	require.NoError(t, client.DeletePatient(ctx, "patient_001"))
	assert.Empty(t, store.records)

	assert.ErrorIs(t, client.DeletePatient(ctx, ""), core.ErrPatientScopeRequired)
}

func TestAsyncClientWrapsOperations(t *testing.T) {
	store := newFakeStore()
	client := newTestClient(t, store, newFakeEmbedder())
	async := &core.AsyncClient{Client: client}

	resultChan := async.IngestAsync(context.Background(), &core.MedicalRecord{
		PatientID: "patient_001",
		Content:   "note",
		Date:      time.Now(),
	})
	result := <-resultChan
	require.NoError(t, result.Error)
	assert.NotZero(t, result.PointID)
	async.Wait()
}
