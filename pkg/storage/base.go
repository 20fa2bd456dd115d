// Package storage provides interfaces and types for patient record stores.
//
// It defines the RecordStore interface that all storage implementations must satisfy,
// along with the record type and its memory-evolution state.
package storage

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors shared by all storage backends.
var (
	// ErrNotFound indicates that a requested record was not found
	// (or that a patient-scoped lookup did not match).
	ErrNotFound = errors.New("record not found")

	// ErrPatientScopeRequired indicates that an operation was attempted without a
	// patient scope. Cross-patient access is never permitted, so every read and
	// write path must carry a patient ID.
	ErrPatientScopeRequired = errors.New("patient scope required")

	// ErrInvariantViolation indicates that an update would leave a record's
	// memory state outside its legal bounds. The update is rejected and the
	// record's prior state is preserved.
	ErrInvariantViolation = errors.New("memory state invariant violation")
)

// VectorSlot names one of the fixed per-modality embedding slots of a record.
type VectorSlot string

const (
	// SlotText is the 384-dimensional text embedding slot.
	SlotText VectorSlot = "text"

	// SlotImage is the 512-dimensional image embedding slot.
	SlotImage VectorSlot = "image"
)

// MemoryState holds the mutable memory-evolution fields of a record.
//
// Invariants:
//   - Weight stays within [0.3, 2.0].
//   - AccessCount only increases.
//   - ReinforcementLevel is a pure function of AccessCount, never set independently.
type MemoryState struct {
	// Weight is the multiplicative relevance factor (1.0 = new/strong).
	Weight float64

	// AccessCount is the number of times this record surfaced in a search's
	// final results.
	AccessCount int

	// ReinforcementLevel is derived from AccessCount: 0=none, 1=low, 2=medium, 3=high.
	ReinforcementLevel int

	// LastAccessed is when the record was last reinforced (nil if never).
	LastAccessed *time.Time

	// RelevanceScore is a downstream mirror combining weight and access history.
	RelevanceScore float64

	// DecayApplied reports whether a decay sweep has touched this record.
	DecayApplied bool

	// DaysSinceCreation is the cached record age, refreshed on decay.
	DaysSinceCreation int
}

// Record represents one ingested patient observation.
//
// This type is defined in the storage package to avoid circular dependencies
// with the core package. It mirrors the core.MedicalRecord structure.
type Record struct {
	// PointID is the unique storage identifier of the record.
	PointID int64

	// PatientID identifies the patient who owns this record. It partitions
	// every query; no operation spans patients.
	PatientID string

	// RecordID is the immutable external identifier, unique within a patient.
	RecordID string

	// RecordType is the record category (report, symptom, scan, ...).
	RecordType string

	// Modality is the source modality (text, image, audio).
	Modality string

	// Content is the text surrogate of the record (a caption for non-text modalities).
	Content string

	// Date is the event time of the observation, distinct from ingestion time.
	Date time.Time

	// Metadata carries open key/value context: symptoms, diagnosis, medications,
	// free-form flags such as an unfollowed-recommendation note.
	Metadata map[string]interface{}

	// CreatedAt is the ingestion time.
	CreatedAt time.Time

	// TextEmbedding is the text-slot vector (zero vector when absent).
	TextEmbedding []float64

	// ImageEmbedding is the image-slot vector (zero vector when absent).
	ImageEmbedding []float64

	// Memory is the record's mutable memory-evolution state.
	Memory MemoryState

	// Score is the similarity score from search operations.
	Score float64
}

// EmbeddingFor returns the vector stored in the given slot.
func (r *Record) EmbeddingFor(slot VectorSlot) []float64 {
	if slot == SlotImage {
		return r.ImageEmbedding
	}
	return r.TextEmbedding
}

// RecordStore defines the interface for patient record storage backends.
//
// All storage implementations (SQLite, PostgreSQL, MySQL) must implement this
// interface. Every operation is patient-scoped; implementations return
// ErrPatientScopeRequired when the scope is empty.
type RecordStore interface {
	// Insert inserts a record with its initial memory state.
	Insert(ctx context.Context, record *Record) error

	// SearchSimilar performs vector similarity search over one embedding slot,
	// restricted to a single patient and a minimum similarity floor.
	//
	// Results are sorted by similarity (highest first) and capped at limit.
	// Records whose event date cannot be interpreted are skipped, not fatal.
	SearchSimilar(ctx context.Context, embedding []float64, patientID string, slot VectorSlot, limit int, scoreFloor float64) ([]*Record, error)

	// Timeline returns all of a patient's records ordered by event time
	// ascending, optionally bounded to [start, end].
	Timeline(ctx context.Context, patientID string, start, end *time.Time) ([]*Record, error)

	// Get retrieves a single record by point ID within a patient scope.
	Get(ctx context.Context, pointID int64, patientID string) (*Record, error)

	// ReinforceAccess applies the access transition to one record as a single
	// atomic conditional update: increments AccessCount and recomputes
	// ReinforcementLevel, Weight, and RelevanceScore from the reinforcement
	// table. Two concurrent accesses must both land; a lost increment is a
	// correctness bug.
	//
	// Returns the post-transition memory state.
	ReinforceAccess(ctx context.Context, pointID int64, patientID string, now time.Time) (*MemoryState, error)

	// ApplyDecay multiplies the record's current weight by factor, clamped to
	// the [0.3, 2.0] invariant, marks decay as applied, and refreshes the
	// cached age. A factor outside (0, 1] is an invariant violation: the
	// update is rejected and the prior state preserved.
	//
	// Returns the post-decay memory state.
	ApplyDecay(ctx context.Context, pointID int64, patientID string, factor float64, ageDays int, now time.Time) (*MemoryState, error)

	// DeleteAll removes all records of a patient. Deletion is a data-governance
	// operation owned by the caller, never triggered by the engine itself.
	DeleteAll(ctx context.Context, patientID string) error

	// Close closes the store and releases resources.
	Close() error
}
