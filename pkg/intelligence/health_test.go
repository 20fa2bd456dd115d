package intelligence_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/careledger/careledger-go/pkg/intelligence"
	"github.com/careledger/careledger-go/pkg/storage"
)

func TestAssessMemoryHealthEmpty(t *testing.T) {
	health := intelligence.AssessMemoryHealth(nil, time.Now())
	assert.Equal(t, "empty", health.Status)
	assert.Equal(t, 0.0, health.Score)
}

func TestAssessMemoryHealthFreshDiverseHistory(t *testing.T) {
	now := time.Now()
	types := []string{"symptom", "report", "scan", "doctor_note", "prescription"}

	// Five recent records of five different types, a month apart.
	var timeline []*storage.Record
	for i, recordType := range types {
		timeline = append(timeline, &storage.Record{
			RecordID:   recordType,
			RecordType: recordType,
			Date:       now.AddDate(0, 0, -i*30),
		})
	}

	health := intelligence.AssessMemoryHealth(timeline, now)

	assert.Equal(t, 1.0, health.RecencyScore)
	assert.Equal(t, 1.0, health.DiversityScore)
	assert.Greater(t, health.ContinuityScore, 0.7)
	assert.Equal(t, "excellent", health.Status)
	assert.Empty(t, health.Recommendations)
}

func TestAssessMemoryHealthStaleHistory(t *testing.T) {
	now := time.Now()

	// A single record type, all entries years old and far apart.
	timeline := []*storage.Record{
		{RecordID: "a", RecordType: "report", Date: now.AddDate(-3, 0, 0)},
		{RecordID: "b", RecordType: "report", Date: now.AddDate(-2, 0, 0)},
	}

	health := intelligence.AssessMemoryHealth(timeline, now)

	assert.Equal(t, 0.0, health.RecencyScore)
	assert.Equal(t, 0.0, health.ContinuityScore)
	assert.Equal(t, "needs_improvement", health.Status)
	assert.NotEmpty(t, health.Recommendations)
}

func TestAssessMemoryHealthSingleRecordContinuity(t *testing.T) {
	now := time.Now()
	timeline := []*storage.Record{
		{RecordID: "a", RecordType: "report", Date: now.AddDate(0, 0, -5)},
	}

	health := intelligence.AssessMemoryHealth(timeline, now)
	assert.Equal(t, 0.5, health.ContinuityScore,
		"a single record gets the neutral continuity score")
}
