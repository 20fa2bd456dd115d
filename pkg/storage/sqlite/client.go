// Package sqlite provides the SQLite implementation of the patient record store.
//
// SQLite is a lightweight, file-based database suitable for local development
// and small-scale deployments. Vectors are stored as JSON strings in TEXT fields,
// and similarity search uses in-memory cosine similarity calculation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/careledger/careledger-go/pkg/storage"
)

// Client implements RecordStore using SQLite as the backend.
type Client struct {
	// db is the SQLite database connection.
	db *sql.DB

	// collectionName is the name of the table storing records.
	collectionName string

	// textDims and imageDims are the embedding dimensions per slot.
	textDims  int
	imageDims int
}

// Config contains configuration for creating a SQLite RecordStore.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// CollectionName is the name of the table to use.
	CollectionName string

	// TextDims is the dimension of text-slot embeddings.
	TextDims int

	// ImageDims is the dimension of image-slot embeddings.
	ImageDims int
}

// NewClient creates a new SQLite RecordStore client.
//
// Parameters:
//   - cfg: Configuration containing database path, table name, and embedding dimensions
//
// Returns:
//   - *Client: The SQLite client instance
//   - error: Error if database connection or table creation fails
func NewClient(cfg *Config) (*Client, error) {
	// Create parent directory if it doesn't exist
	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("NewSQLiteClient: failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	client := &Client{
		db:             db,
		collectionName: cfg.CollectionName,
		textDims:       cfg.TextDims,
		imageDims:      cfg.ImageDims,
	}

	// Initialize table structure
	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}

	return client, nil
}

// initTables initializes the database table structure.
//
// SQLite stores both embedding slots as JSON strings in TEXT fields.
func (c *Client) initTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY,
			patient_id TEXT NOT NULL,
			record_id TEXT NOT NULL,
			record_type TEXT NOT NULL,
			modality TEXT NOT NULL,
			content TEXT NOT NULL,
			event_date DATETIME,
			metadata TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			embedding_text TEXT NOT NULL,
			embedding_image TEXT NOT NULL,
			memory_weight REAL NOT NULL DEFAULT 1.0,
			access_count INTEGER NOT NULL DEFAULT 0,
			reinforcement_level INTEGER NOT NULL DEFAULT 0,
			last_accessed DATETIME,
			relevance_score REAL NOT NULL DEFAULT 1.0,
			decay_applied INTEGER NOT NULL DEFAULT 0,
			days_since_creation INTEGER NOT NULL DEFAULT 0,
			UNIQUE(patient_id, record_id)
		)
	`, c.collectionName)

	_, err := c.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	// Timeline queries scan by patient and event time
	indexQuery := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_patient_date ON %s(patient_id, event_date)
	`, c.collectionName, c.collectionName)
	_, err = c.db.ExecContext(ctx, indexQuery)
	if err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	return nil
}

// Insert inserts a record into the SQLite database.
//
// Both embedding slots are stored as JSON strings.
func (c *Client) Insert(ctx context.Context, record *storage.Record) error {
	if record.PatientID == "" {
		return fmt.Errorf("Insert: %w", storage.ErrPatientScopeRequired)
	}

	textJSON, err := json.Marshal(record.TextEmbedding)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}
	imageJSON, err := json.Marshal(record.ImageEmbedding)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}
	metadataJSON, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s
		(id, patient_id, record_id, record_type, modality, content, event_date, metadata,
		 created_at, embedding_text, embedding_image, memory_weight, access_count,
		 reinforcement_level, relevance_score, decay_applied, days_since_creation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.collectionName)

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = c.db.ExecContext(ctx, query,
		record.PointID,
		record.PatientID,
		record.RecordID,
		record.RecordType,
		record.Modality,
		record.Content,
		record.Date,
		string(metadataJSON),
		createdAt,
		string(textJSON),
		string(imageJSON),
		record.Memory.Weight,
		record.Memory.AccessCount,
		record.Memory.ReinforcementLevel,
		record.Memory.RelevanceScore,
		boolToInt(record.Memory.DecayApplied),
		record.Memory.DaysSinceCreation,
	)

	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	return nil
}

// SearchSimilar performs vector similarity search using cosine similarity.
//
// SQLite does not have native vector operations, so similarity is calculated
// in memory after loading the patient's records. Records with a missing or
// unreadable event date are skipped rather than failing the search.
func (c *Client) SearchSimilar(ctx context.Context, embedding []float64, patientID string, slot storage.VectorSlot, limit int, scoreFloor float64) ([]*storage.Record, error) {
	if patientID == "" {
		return nil, fmt.Errorf("SearchSimilar: %w", storage.ErrPatientScopeRequired)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE patient_id = ?
		ORDER BY id
	`, recordColumns, c.collectionName)

	rows, err := c.db.QueryContext(ctx, query, patientID)
	if err != nil {
		return nil, fmt.Errorf("SearchSimilar: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*storage.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			// Malformed payloads fail the record, not the whole query
			continue
		}
		if record.Date.IsZero() {
			continue
		}

		score := cosineSimilarity(embedding, record.EmbeddingFor(slot))
		record.Score = score

		if score >= scoreFloor {
			records = append(records, record)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("SearchSimilar: %w", err)
	}

	return sortByScore(records, limit), nil
}

// Timeline returns the patient's records ordered by event time ascending.
func (c *Client) Timeline(ctx context.Context, patientID string, start, end *time.Time) ([]*storage.Record, error) {
	if patientID == "" {
		return nil, fmt.Errorf("Timeline: %w", storage.ErrPatientScopeRequired)
	}

	whereClause := "WHERE patient_id = ? AND event_date IS NOT NULL"
	args := []interface{}{patientID}
	if start != nil {
		whereClause += " AND event_date >= ?"
		args = append(args, *start)
	}
	if end != nil {
		whereClause += " AND event_date <= ?"
		args = append(args, *end)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		%s
		ORDER BY event_date ASC
	`, recordColumns, c.collectionName, whereClause)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Timeline: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*storage.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			continue
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Timeline: %w", err)
	}

	return records, nil
}

// Get retrieves a record by point ID within a patient scope.
func (c *Client) Get(ctx context.Context, pointID int64, patientID string) (*storage.Record, error) {
	if patientID == "" {
		return nil, fmt.Errorf("Get: %w", storage.ErrPatientScopeRequired)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE id = ? AND patient_id = ?
	`, recordColumns, c.collectionName)

	rows, err := c.db.QueryContext(ctx, query, pointID, patientID)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return nil, fmt.Errorf("Get: %w", storage.ErrNotFound)
	}

	record, err := scanRecord(rows)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}

	return record, nil
}

// ReinforceAccess applies the access transition as a single atomic UPDATE.
//
// The increment and the level/weight recomputation happen inside one SQL
// statement evaluated against the pre-update row, so concurrent accesses to
// the same record never lose an increment.
func (c *Client) ReinforceAccess(ctx context.Context, pointID int64, patientID string, now time.Time) (*storage.MemoryState, error) {
	if patientID == "" {
		return nil, fmt.Errorf("ReinforceAccess: %w", storage.ErrPatientScopeRequired)
	}

	query := fmt.Sprintf(`
		UPDATE %s SET
			memory_weight = %s,
			relevance_score = %s,
			reinforcement_level = %s,
			access_count = access_count + 1,
			last_accessed = ?
		WHERE id = ? AND patient_id = ?
	`, c.collectionName, reinforcedWeightExpr, reinforcedWeightExpr, reinforcedLevelExpr)

	result, err := c.db.ExecContext(ctx, query, now, pointID, patientID)
	if err != nil {
		return nil, fmt.Errorf("ReinforceAccess: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("ReinforceAccess: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("ReinforceAccess: %w", storage.ErrNotFound)
	}

	return c.readMemoryState(ctx, pointID, patientID, "ReinforceAccess")
}

// ApplyDecay multiplies the current weight by factor, clamped to [0.3, 2.0].
func (c *Client) ApplyDecay(ctx context.Context, pointID int64, patientID string, factor float64, ageDays int, now time.Time) (*storage.MemoryState, error) {
	if patientID == "" {
		return nil, fmt.Errorf("ApplyDecay: %w", storage.ErrPatientScopeRequired)
	}
	if factor <= 0 || factor > 1 {
		return nil, fmt.Errorf("ApplyDecay: factor %v: %w", factor, storage.ErrInvariantViolation)
	}

	query := fmt.Sprintf(`
		UPDATE %s SET
			memory_weight = MAX(0.3, MIN(2.0, memory_weight * ?)),
			relevance_score = MAX(0.3, MIN(2.0, memory_weight * ?)) * (1.0 + access_count * 0.1),
			decay_applied = 1,
			days_since_creation = ?
		WHERE id = ? AND patient_id = ?
	`, c.collectionName)

	result, err := c.db.ExecContext(ctx, query, factor, factor, ageDays, pointID, patientID)
	if err != nil {
		return nil, fmt.Errorf("ApplyDecay: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("ApplyDecay: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("ApplyDecay: %w", storage.ErrNotFound)
	}

	return c.readMemoryState(ctx, pointID, patientID, "ApplyDecay")
}

// DeleteAll removes all records of a patient.
func (c *Client) DeleteAll(ctx context.Context, patientID string) error {
	if patientID == "" {
		return fmt.Errorf("DeleteAll: %w", storage.ErrPatientScopeRequired)
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE patient_id = ?", c.collectionName)
	if _, err := c.db.ExecContext(ctx, query, patientID); err != nil {
		return fmt.Errorf("DeleteAll: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// readMemoryState reads back a record's memory state after an update.
func (c *Client) readMemoryState(ctx context.Context, pointID int64, patientID, op string) (*storage.MemoryState, error) {
	query := fmt.Sprintf(`
		SELECT memory_weight, access_count, reinforcement_level, last_accessed,
		       relevance_score, decay_applied, days_since_creation
		FROM %s
		WHERE id = ? AND patient_id = ?
	`, c.collectionName)

	var state storage.MemoryState
	var lastAccessed sql.NullTime
	var decayApplied int

	err := c.db.QueryRowContext(ctx, query, pointID, patientID).Scan(
		&state.Weight,
		&state.AccessCount,
		&state.ReinforcementLevel,
		&lastAccessed,
		&state.RelevanceScore,
		&decayApplied,
		&state.DaysSinceCreation,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if lastAccessed.Valid {
		state.LastAccessed = &lastAccessed.Time
	}
	state.DecayApplied = decayApplied != 0

	return &state, nil
}
