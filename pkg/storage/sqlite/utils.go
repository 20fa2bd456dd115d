package sqlite

import (
	"database/sql"
	"encoding/json"
	"math"

	"github.com/careledger/careledger-go/pkg/storage"
)

// recordColumns is the column list shared by every SELECT on the record table.
const recordColumns = `id, patient_id, record_id, record_type, modality, content, event_date, metadata,
	created_at, embedding_text, embedding_image, memory_weight, access_count,
	reinforcement_level, last_accessed, relevance_score, decay_applied, days_since_creation`

// reinforcedWeightExpr recomputes memory_weight from the post-increment access
// count. All column references evaluate against the pre-update row, so
// access_count + 1 is the new count throughout.
const reinforcedWeightExpr = `CASE
	WHEN access_count + 1 >= 10 THEN MIN(2.0, 1.0 + (access_count + 1) * 0.15)
	WHEN access_count + 1 >= 5 THEN MIN(1.5, 1.0 + (access_count + 1) * 0.12)
	WHEN access_count + 1 >= 3 THEN MIN(1.3, 1.0 + (access_count + 1) * 0.10)
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

// scanRecord scans a record from database rows.
func scanRecord(rows *sql.Rows) (*storage.Record, error) {
	var record storage.Record
	var eventDate, lastAccessed sql.NullTime
	var metadataStr, textStr, imageStr string
	var decayApplied int

	err := rows.Scan(
		&record.PointID,
		&record.PatientID,
		&record.RecordID,
		&record.RecordType,
		&record.Modality,
		&record.Content,
		&eventDate,
		&metadataStr,
		&record.CreatedAt,
		&textStr,
		&imageStr,
		&record.Memory.Weight,
		&record.Memory.AccessCount,
		&record.Memory.ReinforcementLevel,
		&lastAccessed,
		&record.Memory.RelevanceScore,
		&decayApplied,
		&record.Memory.DaysSinceCreation,
	)
	if err != nil {
		return nil, err
	}

	if eventDate.Valid {
		record.Date = eventDate.Time
	}
	if lastAccessed.Valid {
		record.Memory.LastAccessed = &lastAccessed.Time
	}
	record.Memory.DecayApplied = decayApplied != 0

	if err := json.Unmarshal([]byte(textStr), &record.TextEmbedding); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(imageStr), &record.ImageEmbedding); err != nil {
		return nil, err
	}
	if metadataStr != "" {
		if err := json.Unmarshal([]byte(metadataStr), &record.Metadata); err != nil {
			return nil, err
		}
	}

	return &record, nil
}

// cosineSimilarity calculates the cosine similarity between two vectors.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// sortByScore sorts records by score (descending) and limits the number of results.
//
// Uses a simple insertion sort which is sufficient for small candidate sets
// and keeps insertion order for equal scores.
func sortByScore(records []*storage.Record, limit int) []*storage.Record {
	for i := 1; i < len(records); i++ {
		for j := i; j > 0 && records[j-1].Score < records[j].Score; j-- {
			records[j-1], records[j] = records[j], records[j-1]
		}
	}

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
