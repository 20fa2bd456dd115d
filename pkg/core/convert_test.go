package core_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/careledger/careledger-go/pkg/core"
	"github.com/careledger/careledger-go/pkg/storage"
)

func explanationFor(t *testing.T, daysOld int, similarity float64, metadata map[string]interface{}) string {
	t.Helper()

	store := newFakeStore()
	hit := searchHit(1, daysOld, similarity)
	hit.Metadata = metadata
	store.searchHits = []*storage.Record{hit}

	client := newTestClient(t, store, newFakeEmbedder())
	result, err := client.FindSimilarCases(context.Background(), "patient_001", "checkup",
		core.WithTimeWeight(0))
	assert.NoError(t, err)

	all := append(result.RecentCases, result.OldCases...)
	if len(all) == 0 {
		t.Fatal("expected a returned case")
	}
	return all[0].Explanation
}

func TestExplanationSimilarityBands(t *testing.T) {
	assert.Contains(t, explanationFor(t, 10, 0.9, nil), "Very similar")
	assert.Contains(t, explanationFor(t, 10, 0.7, nil), "Moderately similar")
	assert.Contains(t, explanationFor(t, 10, 0.4, nil), "Potentially related")
}

func TestExplanationBandsOnWeightedScore(t *testing.T) {
	store := newFakeStore()
	hit := searchHit(1, 10, 0.5)
	hit.Memory.Weight = 1.5
	store.searchHits = []*storage.Record{hit}

	client := newTestClient(t, store, newFakeEmbedder())
	result, err := client.FindSimilarCases(context.Background(), "patient_001", "checkup",
		core.WithTimeWeight(0))
	assert.NoError(t, err)

	assert.Len(t, result.RecentCases, 1)
	assert.InDelta(t, 0.75, result.RecentCases[0].Score, 1e-9)
	assert.Contains(t, result.RecentCases[0].Explanation, "Moderately similar",
		"reinforced weight lifts the band above raw similarity")
}

func TestExplanationAgeContext(t *testing.T) {
	assert.Contains(t, explanationFor(t, 10, 0.9, nil), "(recent)")
	assert.Contains(t, explanationFor(t, 120, 0.9, nil), "4 months ago")
}

func TestExplanationSymptoms(t *testing.T) {
	explanation := explanationFor(t, 10, 0.9, map[string]interface{}{
		"symptoms": []string{"fever", "cough", "fatigue"},
	})
	assert.Contains(t, explanation, "symptoms: fever, cough")
	assert.NotContains(t, explanation, "fatigue", "at most two symptoms are named")
}
