// Package intelligence implements the ranking and memory-evolution logic of the
// engine: relevance scoring, access reinforcement, temporal decay, forgotten
// insight detection, and temporal progression analysis.
package intelligence

import (
	"time"

	"github.com/careledger/careledger-go/pkg/storage"
)

// ScoredCandidate wraps a record with the scoring terms computed for one query.
// It exists only for the duration of that query.
type ScoredCandidate struct {
	// Record is the underlying stored record.
	Record *storage.Record

	// BaseSimilarity is the raw similarity returned by the vector search.
	BaseSimilarity float64

	// TimeFactor is the recency term, 0.5^(daysOld/halfLife).
	TimeFactor float64

	// TimeBoosted is the blend of BaseSimilarity and TimeFactor.
	TimeBoosted float64

	// ModalityMultiplier is 1.1 when a modality keyword rule matched, else 1.0.
	ModalityMultiplier float64

	// FinalScore is TimeBoosted * ModalityMultiplier * memory weight.
	FinalScore float64

	// DaysOld is the record's age in whole days at query time (clamped at 0).
	DaysOld int
}

// InsightCategory tags one of the four forgotten-insight signals.
type InsightCategory string

const (
	// InsightSymptomGap flags symptoms reported historically but absent from
	// recent records.
	InsightSymptomGap InsightCategory = "symptom_gap"

	// InsightUnfollowedRecommendation flags an old recommendation with no
	// recorded follow-up.
	InsightUnfollowedRecommendation InsightCategory = "unfollowed_recommendation"

	// InsightHistoricalMatch flags a highly similar old episode with little
	// recent context.
	InsightHistoricalMatch InsightCategory = "historical_match"

	// InsightRecurringPattern flags a possible seasonal or cyclical pattern.
	InsightRecurringPattern InsightCategory = "recurring_pattern"
)

// Insight is one surfaced signal about an old, unresolved, or recurring
// situation. Insights are rendered as templated strings over structured
// fields, never generated prose.
type Insight struct {
	// Category is the signal type.
	Category InsightCategory `json:"category"`

	// Text is the rendered insight.
	Text string `json:"text"`

	// RecordIDs references the supporting record(s).
	RecordIDs []string `json:"record_ids,omitempty"`
}

// TemporalEvent is one entry of the temporal context view: the final candidate
// list ordered by event time with inter-record gaps.
type TemporalEvent struct {
	// Date is the record's event time.
	Date time.Time `json:"date"`

	// RecordType is the record category.
	RecordType string `json:"record_type"`

	// Similarity is the record's base similarity for this query.
	Similarity float64 `json:"similarity"`

	// DaysSincePrevious is the gap to the previous event (nil for the first).
	DaysSincePrevious *int `json:"days_since_previous,omitempty"`

	// ContentPreview is the first 100 characters of the record content.
	ContentPreview string `json:"content_preview"`
}

// ProgressionPoint is one occurrence in a symptom progression timeline.
type ProgressionPoint struct {
	// Date is when the symptom was mentioned.
	Date time.Time `json:"date"`

	// RecordType is the category of the mentioning record.
	RecordType string `json:"record_type"`
}

// Progression describes how a specific symptom has developed over a time window.
type Progression struct {
	// Symptom is the analyzed symptom term.
	Symptom string `json:"symptom"`

	// Occurrences is the number of records mentioning the symptom.
	Occurrences int `json:"occurrences"`

	// FirstOccurrence is the earliest mention (zero when Occurrences is 0).
	FirstOccurrence time.Time `json:"first_occurrence,omitempty"`

	// LatestOccurrence is the most recent mention.
	LatestOccurrence time.Time `json:"latest_occurrence,omitempty"`

	// AverageFrequencyDays is span/count for two or more occurrences, else 0.
	AverageFrequencyDays float64 `json:"average_frequency_days"`

	// Trend is "recurring" for three or more occurrences, else "isolated".
	Trend string `json:"trend"`

	// Timeline lists the occurrences in date order.
	Timeline []ProgressionPoint `json:"timeline,omitempty"`
}

// TypePattern is one recurring record-type group found by window consolidation.
type TypePattern struct {
	// RecordType is the recurring category.
	RecordType string `json:"record_type"`

	// Count is the number of occurrences inside the window.
	Count int `json:"count"`

	// Description is the rendered pattern summary.
	Description string `json:"description"`
}
