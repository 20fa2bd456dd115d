// Package postgres provides the PostgreSQL + pgvector implementation of the
// patient record store.
//
// Both embedding slots are native pgvector columns, so similarity search and
// the score floor are evaluated inside the database with the cosine distance
// operator.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/careledger/careledger-go/pkg/storage"
)

// Client implements RecordStore using PostgreSQL with the pgvector extension.
type Client struct {
	db             *sql.DB
	collectionName string
	textDims       int
	imageDims      int
}

// Config contains PostgreSQL configuration.
type Config struct {
	Host           string
	Port           int
	User           string
	Password       string
	DBName         string
	CollectionName string
	TextDims       int
	ImageDims      int
	SSLMode        string
}

// NewClient creates a new PostgreSQL client.
func NewClient(cfg *Config) (*Client, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	client := &Client{
		db:             db,
		collectionName: cfg.CollectionName,
		textDims:       cfg.TextDims,
		imageDims:      cfg.ImageDims,
	}

	// Initialize pgvector extension and table structure
	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}

	return client, nil
}

// initTables initializes the database table.
func (c *Client) initTables(ctx context.Context) error {
	// Enable pgvector extension
	_, err := c.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("initTables: create extension: %w", err)
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGINT PRIMARY KEY,
			patient_id VARCHAR(255) NOT NULL,
			record_id VARCHAR(255) NOT NULL,
			record_type VARCHAR(64) NOT NULL,
			modality VARCHAR(32) NOT NULL,
			content TEXT NOT NULL,
			event_date TIMESTAMP,
			metadata JSONB,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			embedding_text vector(%d) NOT NULL,
			embedding_image vector(%d) NOT NULL,
			memory_weight FLOAT NOT NULL DEFAULT 1.0,
			access_count INTEGER NOT NULL DEFAULT 0,
			reinforcement_level INTEGER NOT NULL DEFAULT 0,
			last_accessed TIMESTAMP,
			relevance_score FLOAT NOT NULL DEFAULT 1.0,
			decay_applied BOOLEAN NOT NULL DEFAULT FALSE,
			days_since_creation INTEGER NOT NULL DEFAULT 0,
			UNIQUE(patient_id, record_id)
		)
	`, c.collectionName, c.textDims, c.imageDims)

	_, err = c.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("initTables: create table: %w", err)
	}

	indexQuery := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_patient_date ON %s(patient_id, event_date)
	`, c.collectionName, c.collectionName)
	_, err = c.db.ExecContext(ctx, indexQuery)
	if err != nil {
		return fmt.Errorf("initTables: create index: %w", err)
	}

	return nil
}

// Insert inserts a record.
func (c *Client) Insert(ctx context.Context, record *storage.Record) error {
	if record.PatientID == "" {
		return fmt.Errorf("Insert: %w", storage.ErrPatientScopeRequired)
	}

	metadataJSON, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := fmt.Sprintf(`
		INSERT INTO %s
		(id, patient_id, record_id, record_type, modality, content, event_date, metadata,
		 created_at, embedding_text, embedding_image, memory_weight, access_count,
		 reinforcement_level, relevance_score, decay_applied, days_since_creation)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, c.collectionName)

	_, err = c.db.ExecContext(ctx, query,
		record.PointID,
		record.PatientID,
		record.RecordID,
		record.RecordType,
		record.Modality,
		record.Content,
		record.Date,
		metadataJSON,
		createdAt,
		toVector(record.TextEmbedding),
		toVector(record.ImageEmbedding),
		record.Memory.Weight,
		record.Memory.AccessCount,
		record.Memory.ReinforcementLevel,
		record.Memory.RelevanceScore,
		record.Memory.DecayApplied,
		record.Memory.DaysSinceCreation,
	)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	return nil
}

// SearchSimilar performs vector search with pgvector's cosine distance.
//
// The score floor is applied inside the query, so only qualifying rows cross
// the wire. Records with a NULL event date are excluded up front.
func (c *Client) SearchSimilar(ctx context.Context, embedding []float64, patientID string, slot storage.VectorSlot, limit int, scoreFloor float64) ([]*storage.Record, error) {
	if patientID == "" {
		return nil, fmt.Errorf("SearchSimilar: %w", storage.ErrPatientScopeRequired)
	}

	column := "embedding_text"
	if slot == storage.SlotImage {
		column = "embedding_image"
	}

	query := fmt.Sprintf(`
		SELECT %s, 1 - (%s <=> $1) AS score
		FROM %s
		WHERE patient_id = $2
		  AND event_date IS NOT NULL
		  AND 1 - (%s <=> $1) >= $3
		ORDER BY %s <=> $1
		LIMIT $4
	`, recordColumns, column, c.collectionName, column, column)

	rows, err := c.db.QueryContext(ctx, query, toVector(embedding), patientID, scoreFloor, limit)
	if err != nil {
		return nil, fmt.Errorf("SearchSimilar: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*storage.Record
	for rows.Next() {
		record, err := scanRecord(rows, true)
		if err != nil {
			continue
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("SearchSimilar: %w", err)
	}

	return records, nil
}

// Timeline returns the patient's records ordered by event time ascending.
func (c *Client) Timeline(ctx context.Context, patientID string, start, end *time.Time) ([]*storage.Record, error) {
	if patientID == "" {
		return nil, fmt.Errorf("Timeline: %w", storage.ErrPatientScopeRequired)
	}

	whereClause := "WHERE patient_id = $1 AND event_date IS NOT NULL"
	args := []interface{}{patientID}
	if start != nil {
		args = append(args, *start)
		whereClause += fmt.Sprintf(" AND event_date >= $%d", len(args))
	}
	if end != nil {
		args = append(args, *end)
		whereClause += fmt.Sprintf(" AND event_date <= $%d", len(args))
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
		record, err := scanRecord(rows, false)
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
		WHERE id = $1 AND patient_id = $2
	`, recordColumns, c.collectionName)

	rows, err := c.db.QueryContext(ctx, query, pointID, patientID)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return nil, fmt.Errorf("Get: %w", storage.ErrNotFound)
	}

	record, err := scanRecord(rows, false)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}

	return record, nil
}

// ReinforceAccess applies the access transition as a single atomic UPDATE
// with RETURNING, so the increment, recomputation, and state read-back happen
// in one round trip.
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
			last_accessed = $1
		WHERE id = $2 AND patient_id = $3
		RETURNING memory_weight, access_count, reinforcement_level, last_accessed,
		          relevance_score, decay_applied, days_since_creation
	`, c.collectionName, reinforcedWeightExpr, reinforcedWeightExpr, reinforcedLevelExpr)

	return c.scanState(c.db.QueryRowContext(ctx, query, now, pointID, patientID), "ReinforceAccess")
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
			memory_weight = GREATEST(0.3, LEAST(2.0, memory_weight * $1)),
			relevance_score = GREATEST(0.3, LEAST(2.0, memory_weight * $1)) * (1.0 + access_count * 0.1),
			decay_applied = TRUE,
			days_since_creation = $2
		WHERE id = $3 AND patient_id = $4
		RETURNING memory_weight, access_count, reinforcement_level, last_accessed,
		          relevance_score, decay_applied, days_since_creation
	`, c.collectionName)

	return c.scanState(c.db.QueryRowContext(ctx, query, factor, ageDays, pointID, patientID), "ApplyDecay")
}

// DeleteAll removes all records of a patient.
func (c *Client) DeleteAll(ctx context.Context, patientID string) error {
	if patientID == "" {
		return fmt.Errorf("DeleteAll: %w", storage.ErrPatientScopeRequired)
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE patient_id = $1", c.collectionName)
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

// scanState scans a memory state from a RETURNING row.
func (c *Client) scanState(row *sql.Row, op string) (*storage.MemoryState, error) {
	var state storage.MemoryState
	var lastAccessed sql.NullTime

	err := row.Scan(
		&state.Weight,
		&state.AccessCount,
		&state.ReinforcementLevel,
		&lastAccessed,
		&state.RelevanceScore,
		&state.DecayApplied,
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

	return &state, nil
}

// toVector converts an engine vector to a pgvector value.
func toVector(v []float64) pgvector.Vector {
	f32 := make([]float32, len(v))
	for i, x := range v {
		f32[i] = float32(x)
	}
	return pgvector.NewVector(f32)
}
