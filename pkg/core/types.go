package core

import (
	"time"

	"github.com/careledger/careledger-go/pkg/intelligence"
)

// RecordType values categorize the clinical nature of a record.
const (
	RecordTypeReport       = "report"
	RecordTypeSymptom      = "symptom"
	RecordTypeScan         = "scan"
	RecordTypeVoiceNote    = "voice_note"
	RecordTypePrescription = "prescription"
	RecordTypeDoctorNote   = "doctor_note"
)

// Modality values name the source modality of a record.
const (
	ModalityText  = "text"
	ModalityImage = "image"
	ModalityAudio = "audio"
)

// MedicalRecord is one patient observation as submitted for ingestion.
//
// Date is the event time of the observation, which drives all temporal
// logic; it is distinct from the ingestion time.
type MedicalRecord struct {
	// PatientID identifies the owning patient (required).
	PatientID string `json:"patient_id"`

	// RecordID is the immutable external identifier. Generated when empty.
	RecordID string `json:"record_id"`

	// RecordType is the record category (report, symptom, scan, voice_note,
	// prescription, doctor_note).
	RecordType string `json:"record_type"`

	// Modality is the source modality (text, image, audio). Audio records
	// are ingested through their transcript and embed as text.
	Modality string `json:"modality"`

	// Content is the text content, or the caption/transcript for non-text
	// modalities.
	Content string `json:"content"`

	// ImageData holds the encoded image bytes for image-modality records.
	ImageData []byte `json:"-"`

	// Date is the event time of the observation.
	Date time.Time `json:"date"`

	// Metadata carries open key/value context. Conventional keys:
	// "symptoms" ([]string), "diagnosis", "medications",
	// "unfollowed_recommendation".
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// SimilarCase is one ranked result of a similarity query.
type SimilarCase struct {
	// RecordID is the external identifier of the matched record.
	RecordID string `json:"record_id"`

	// RecordType is the record category.
	RecordType string `json:"record_type"`

	// Content is the record content.
	Content string `json:"content"`

	// Date is the record's event time.
	Date time.Time `json:"date"`

	// Score is the final weighted relevance score.
	Score float64 `json:"score"`

	// Explanation is a templated human-readable relevance summary.
	Explanation string `json:"explanation"`

	// Metadata is the record's stored metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// RankingInfo echoes the ranking parameters applied to a query.
type RankingInfo struct {
	// TimeWeightApplied is the recency blend weight used.
	TimeWeightApplied float64 `json:"time_weight_applied"`

	// ModalityWeighted reports whether modality keyword boosting ran.
	ModalityWeighted bool `json:"modality_weighted"`

	// MemoryEvolutionConsidered reports whether memory weights amplified scores.
	MemoryEvolutionConsidered bool `json:"memory_evolution_considered"`
}

// SimilarCasesResult is the full answer to a FindSimilarCases query.
type SimilarCasesResult struct {
	// Query is the original query text.
	Query string `json:"query"`

	// RecentCases are matches newer than the recent window boundary.
	RecentCases []SimilarCase `json:"recent_cases"`

	// OldCases are matches inside the old window.
	OldCases []SimilarCase `json:"old_cases"`

	// ForgottenInsights are the mined signals, at most the configured cap.
	ForgottenInsights []intelligence.Insight `json:"forgotten_insights,omitempty"`

	// TemporalContext orders the final matches by event time with gaps.
	TemporalContext []intelligence.TemporalEvent `json:"temporal_context,omitempty"`

	// Ranking echoes the applied ranking parameters.
	Ranking RankingInfo `json:"ranking"`
}

// DecayedRecord reports one record touched by a decay sweep.
type DecayedRecord struct {
	// RecordID is the external identifier of the decayed record.
	RecordID string `json:"record_id"`

	// AgeDays is the record age at sweep time.
	AgeDays int `json:"age_days"`

	// Factor is the decay factor that was applied.
	Factor float64 `json:"factor"`

	// Weight is the post-decay memory weight.
	Weight float64 `json:"weight"`

	// RelevanceScore is the post-decay composite relevance.
	RelevanceScore float64 `json:"relevance_score"`
}

// DecayReport summarizes one ApplyTemporalDecay sweep.
type DecayReport struct {
	// PatientID is the swept patient.
	PatientID string `json:"patient_id"`

	// Examined is the number of records considered.
	Examined int `json:"examined"`

	// Decayed lists the records whose weight changed.
	Decayed []DecayedRecord `json:"decayed,omitempty"`
}

// MemorySummary aggregates a patient's stored history.
type MemorySummary struct {
	// PatientID is the summarized patient.
	PatientID string `json:"patient_id"`

	// TotalRecords is the record count.
	TotalRecords int `json:"total_records"`

	// RecordTypes counts records by category.
	RecordTypes map[string]int `json:"record_types,omitempty"`

	// EarliestDate is the oldest event time (nil when empty).
	EarliestDate *time.Time `json:"earliest_date,omitempty"`

	// LatestDate is the newest event time (nil when empty).
	LatestDate *time.Time `json:"latest_date,omitempty"`

	// SpanDays is the days between the earliest and latest event.
	SpanDays int `json:"span_days"`

	// Health assesses the completeness and freshness of the history.
	Health intelligence.MemoryHealth `json:"memory_health"`
}

// ConsolidationReport summarizes a ConsolidateWindow pass.
type ConsolidationReport struct {
	// PatientID is the consolidated patient.
	PatientID string `json:"patient_id"`

	// WindowDays is the examined window size.
	WindowDays int `json:"window_days"`

	// TotalRecords is the number of records in the window.
	TotalRecords int `json:"total_records"`

	// Patterns lists the recurring record-type groups.
	Patterns []intelligence.TypePattern `json:"patterns,omitempty"`
}
