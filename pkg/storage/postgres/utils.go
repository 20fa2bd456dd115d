package postgres

import (
	"database/sql"
	"encoding/json"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/careledger/careledger-go/pkg/storage"
)

// recordColumns is the column list shared by every SELECT on the record table.
const recordColumns = `id, patient_id, record_id, record_type, modality, content, event_date, metadata,
	created_at, embedding_text, embedding_image, memory_weight, access_count,
	reinforcement_level, last_accessed, relevance_score, decay_applied, days_since_creation`

// reinforcedWeightExpr recomputes memory_weight from the post-increment access
// count. SET expressions evaluate against the pre-update row, so
// access_count + 1 is the new count throughout.
const reinforcedWeightExpr = `CASE
	WHEN access_count + 1 >= 10 THEN LEAST(2.0, 1.0 + (access_count + 1) * 0.15)
	WHEN access_count + 1 >= 5 THEN LEAST(1.5, 1.0 + (access_count + 1) * 0.12)
	WHEN access_count + 1 >= 3 THEN LEAST(1.3, 1.0 + (access_count + 1) * 0.10)
	ELSE 1.0 + (access_count + 1) * 0.05
END`

// reinforcedLevelExpr recomputes reinforcement_level from the post-increment
// access count.
const reinforcedLevelExpr = `CASE
	WHEN access_count + 1 >= 10 THEN 3
	WHEN access_count + 1 >= 5 THEN 2
	WHEN access_count + 1 >= 3 THEN 1
	ELSE 0
END`

// scanRecord scans a record from database rows. When withScore is set the row
// carries a trailing similarity column from a search query.
func scanRecord(rows *sql.Rows, withScore bool) (*storage.Record, error) {
	var record storage.Record
	var eventDate, lastAccessed sql.NullTime
	var metadataJSON []byte
	var textVec, imageVec pgvector.Vector

	dest := []interface{}{
		&record.PointID,
		&record.PatientID,
		&record.RecordID,
		&record.RecordType,
		&record.Modality,
		&record.Content,
		&eventDate,
		&metadataJSON,
		&record.CreatedAt,
		&textVec,
		&imageVec,
		&record.Memory.Weight,
		&record.Memory.AccessCount,
		&record.Memory.ReinforcementLevel,
		&lastAccessed,
		&record.Memory.RelevanceScore,
		&record.Memory.DecayApplied,
		&record.Memory.DaysSinceCreation,
	}
	if withScore {
		dest = append(dest, &record.Score)
	}

	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}

	if eventDate.Valid {
		record.Date = eventDate.Time
	}
	if lastAccessed.Valid {
		record.Memory.LastAccessed = &lastAccessed.Time
	}

	record.TextEmbedding = fromVector(textVec)
	record.ImageEmbedding = fromVector(imageVec)

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &record.Metadata); err != nil {
			return nil, err
		}
	}

	return &record, nil
}

// fromVector converts a pgvector value back to an engine vector.
func fromVector(v pgvector.Vector) []float64 {
	f32 := v.Slice()
	f64 := make([]float64, len(f32))
	for i, x := range f32 {
		f64[i] = float64(x)
	}
	return f64
}
