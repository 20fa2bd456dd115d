package core

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"

	"github.com/careledger/careledger-go/pkg/embedder"
	openaiEmbedder "github.com/careledger/careledger-go/pkg/embedder/openai"
	"github.com/careledger/careledger-go/pkg/intelligence"
	"github.com/careledger/careledger-go/pkg/storage"
	mysqlStore "github.com/careledger/careledger-go/pkg/storage/mysql"
	postgresStore "github.com/careledger/careledger-go/pkg/storage/postgres"
	sqliteStore "github.com/careledger/careledger-go/pkg/storage/sqlite"
)

// Client is the main CareLedger client for patient history memory.
//
// It provides a complete interface for ingesting, retrieving, and aging
// patient records with support for:
//   - Per-patient vector similarity search
//   - Temporal re-ranking and modality boosting
//   - Access-driven reinforcement and time-driven decay
//   - Forgotten-insight mining
//   - Temporal context and symptom progression analysis
//
// The client is thread-safe and can be used concurrently from multiple goroutines.
//
// Example usage:
//
//	config, _ := core.LoadConfigFromEnv()
//	client, _ := core.NewClient(config)
//	defer client.Close()
//
//	result, _ := client.FindSimilarCases(ctx, "patient_001", "persistent headache",
//	    core.WithLimit(5),
//	    core.WithTimeWeight(0.3),
//	)
type Client struct {
	// config contains the client configuration.
	config *Config

	// store is the record store for patient history persistence.
	store storage.RecordStore

	// embedder is the embedding provider for vector generation.
	embedder embedder.Provider

	// scorer re-ranks search hits with temporal and modality awareness.
	scorer *intelligence.Scorer

	// detector mines forgotten insights from ranked candidates.
	detector *intelligence.InsightDetector

	// snowflakeNode generates unique point IDs for records.
	snowflakeNode *snowflake.Node

	// locks serializes decay sweeps against queries, per patient.
	locks *patientLocks

	// now is the clock, replaceable in tests.
	now func() time.Time
}

// NewClient creates a new CareLedger client.
//
// The client is initialized with:
//   - Record store (SQLite, PostgreSQL, or MySQL)
//   - Embedding provider (OpenAI), optionally wrapped with a circuit
//     breaker and rate limiter per the resilience configuration
//
// Parameters:
//   - cfg: Configuration containing store, embedder, and memory settings
//
// Returns a new Client instance, or an error if initialization fails.
func NewClient(cfg *Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Memory.ApplyDefaults()

	store, err := initStore(cfg.Store)
	if err != nil {
		return nil, err
	}

	embedderProvider, err := initEmbedder(cfg.Embedder, cfg.Resilience)
	if err != nil {
		return nil, err
	}

	return NewClientWithBackends(cfg, store, embedderProvider)
}

// NewClientWithBackends creates a client over pre-built backends. It is the
// injection point for tests and for callers managing their own store or
// embedder lifecycle.
func NewClientWithBackends(cfg *Config, store storage.RecordStore, provider embedder.Provider) (*Client, error) {
	cfg.Memory.ApplyDefaults()

	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, NewRecordError("NewClient", err)
	}

	return &Client{
		config:        cfg,
		store:         store,
		embedder:      provider,
		scorer:        intelligence.NewScorer(float64(cfg.Memory.HalfLifeDays)),
		detector:      intelligence.NewInsightDetector(cfg.Memory.RecentWindowDays, cfg.Memory.OldWindowDays, cfg.Memory.MaxInsights),
		snowflakeNode: node,
		locks:         newPatientLocks(),
		now:           time.Now,
	}, nil
}

// initStore initializes the record store based on configuration.
func initStore(cfg StoreConfig) (storage.RecordStore, error) {
	switch cfg.Provider {
	case "sqlite":
		return sqliteStore.NewClient(&sqliteStore.Config{
			DBPath:         getStringConfig(cfg.Config, "db_path", "./careledger.db"),
			CollectionName: getStringConfig(cfg.Config, "table_name", "patient_records"),
			TextDims:       embedder.TextDimensions,
			ImageDims:      embedder.ImageDimensions,
		})
	case "postgres":
		return postgresStore.NewClient(&postgresStore.Config{
			Host:           getStringConfig(cfg.Config, "host", "localhost"),
			Port:           getIntConfig(cfg.Config, "port", 5432),
			User:           getStringConfig(cfg.Config, "user", "postgres"),
			Password:       getStringConfig(cfg.Config, "password", ""),
			DBName:         getStringConfig(cfg.Config, "db_name", "careledger"),
			CollectionName: getStringConfig(cfg.Config, "table_name", "patient_records"),
			TextDims:       embedder.TextDimensions,
			ImageDims:      embedder.ImageDimensions,
			SSLMode:        getStringConfig(cfg.Config, "ssl_mode", "disable"),
		})
	case "mysql":
		return mysqlStore.NewClient(&mysqlStore.Config{
			Host:           getStringConfig(cfg.Config, "host", "127.0.0.1"),
			Port:           getIntConfig(cfg.Config, "port", 3306),
			User:           getStringConfig(cfg.Config, "user", "root"),
			Password:       getStringConfig(cfg.Config, "password", ""),
			DBName:         getStringConfig(cfg.Config, "db_name", "careledger"),
			CollectionName: getStringConfig(cfg.Config, "table_name", "patient_records"),
			TextDims:       embedder.TextDimensions,
			ImageDims:      embedder.ImageDimensions,
		})
	default:
		return nil, NewRecordError("initStore",
			fmt.Errorf("%w: unknown store provider %q", ErrInvalidConfig, cfg.Provider))
	}
}

// initEmbedder initializes the embedding provider and applies the optional
// resilience wrappers: rate limiter innermost, breaker outermost, so a fast
// breaker rejection never consumes a rate token.
func initEmbedder(cfg EmbedderConfig, resilience *ResilienceConfig) (embedder.Provider, error) {
	var provider embedder.Provider
	switch cfg.Provider {
	case "openai":
		client, err := openaiEmbedder.NewClient(&openaiEmbedder.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
		if err != nil {
			return nil, NewRecordError("initEmbedder", err)
		}
		provider = client
	default:
		return nil, NewRecordError("initEmbedder",
			fmt.Errorf("%w: unknown embedder provider %q", ErrInvalidConfig, cfg.Provider))
	}

	if resilience != nil {
		if resilience.RateLimitPerSec > 0 {
			burst := resilience.RateLimitBurst
			if burst <= 0 {
				burst = 1
			}
			provider = embedder.WithRateLimit(provider, resilience.RateLimitPerSec, burst)
		}
		if resilience.BreakerEnabled {
			provider = embedder.WithBreaker(provider, embedder.BreakerConfig{})
		}
	}
	return provider, nil
}

// Ingest stores one medical record: embeds its content into the slot matching
// its modality, assigns identifiers, and persists it with a fresh memory state.
//
// Audio records embed their transcript as text. Records without a patient
// scope or an event date are rejected.
//
// Returns the stored record's point ID.
func (c *Client) Ingest(ctx context.Context, record *MedicalRecord) (int64, error) {
	if record.PatientID == "" {
		return 0, NewRecordError("Ingest", ErrPatientScopeRequired)
	}
	if record.Date.IsZero() {
		return 0, NewRecordError("Ingest", fmt.Errorf("%w: record date is required", ErrInvalidInput))
	}
	if record.Content == "" && len(record.ImageData) == 0 {
		return 0, NewRecordError("Ingest", fmt.Errorf("%w: record content is required", ErrInvalidInput))
	}

	recordID := record.RecordID
	if recordID == "" {
		recordID = uuid.New().String()
	}
	modality := record.Modality
	if modality == "" {
		modality = ModalityText
	}

	var textEmbedding, imageEmbedding []float64
	if record.Content != "" {
		vec, err := c.embedder.EmbedText(ctx, record.Content)
		if err != nil {
			return 0, NewRecordError("Ingest", fmt.Errorf("%w: %v", ErrEmbeddingFailed, err))
		}
		if len(vec) != embedder.TextDimensions {
			return 0, NewRecordError("Ingest",
				fmt.Errorf("%w: text slot expects %d dimensions, got %d", ErrDimensionMismatch, embedder.TextDimensions, len(vec)))
		}
		textEmbedding = vec
	}
	if modality == ModalityImage && len(record.ImageData) > 0 {
		vec, err := c.embedder.EmbedImage(ctx, record.ImageData)
		if err != nil {
			return 0, NewRecordError("Ingest", fmt.Errorf("%w: %v", ErrEmbeddingFailed, err))
		}
		if len(vec) != embedder.ImageDimensions {
			return 0, NewRecordError("Ingest",
				fmt.Errorf("%w: image slot expects %d dimensions, got %d", ErrDimensionMismatch, embedder.ImageDimensions, len(vec)))
		}
		imageEmbedding = vec
	}
	// The store schema carries both slots on every record; an absent modality
	// holds a zero vector of the slot's dimension.
	if textEmbedding == nil {
		textEmbedding = make([]float64, embedder.TextDimensions)
	}
	if imageEmbedding == nil {
		imageEmbedding = make([]float64, embedder.ImageDimensions)
	}

	stored := &storage.Record{
		PointID:        c.snowflakeNode.Generate().Int64(),
		PatientID:      record.PatientID,
		RecordID:       recordID,
		RecordType:     record.RecordType,
		Modality:       modality,
		Content:        record.Content,
		Date:           record.Date,
		Metadata:       record.Metadata,
		CreatedAt:      c.now(),
		TextEmbedding:  textEmbedding,
		ImageEmbedding: imageEmbedding,
		Memory: storage.MemoryState{
			Weight:         1.0,
			RelevanceScore: 1.0,
		},
	}

	lock := c.locks.forPatient(record.PatientID)
	lock.RLock()
	defer lock.RUnlock()

	if err := c.store.Insert(ctx, stored); err != nil {
		return 0, NewRecordError("Ingest", err)
	}
	return stored.PointID, nil
}

// FindSimilarCases retrieves a patient's most relevant history for a query.
//
// The pipeline: embed the query, over-fetch twice the requested limit from
// the vector store at the configured score floor, re-rank with the temporal
// and modality terms amplified by each record's memory weight, truncate to
// the limit, then reinforce exactly the returned records. Only records that
// actually surface to the caller earn reinforcement.
//
// The result partitions matches into recent and old buckets, attaches
// forgotten insights and the temporal context view, and echoes the ranking
// parameters.
func (c *Client) FindSimilarCases(ctx context.Context, patientID, query string, opts ...SearchOption) (*SimilarCasesResult, error) {
	if patientID == "" {
		return nil, NewRecordError("FindSimilarCases", ErrPatientScopeRequired)
	}
	if query == "" {
		return nil, NewRecordError("FindSimilarCases", fmt.Errorf("%w: query is required", ErrInvalidInput))
	}

	options := DefaultSearchOptions()
	for _, opt := range opts {
		opt(options)
	}
	if options.Limit <= 0 {
		options.Limit = 5
	}
	if options.TimeWeight < 0 || options.TimeWeight > 1 {
		return nil, NewRecordError("FindSimilarCases",
			fmt.Errorf("%w: time weight must be in [0, 1]", ErrInvalidInput))
	}

	queryEmbedding, err := c.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, NewRecordError("FindSimilarCases", fmt.Errorf("%w: %v", ErrEmbeddingFailed, err))
	}
	if len(queryEmbedding) != embedder.TextDimensions {
		return nil, NewRecordError("FindSimilarCases",
			fmt.Errorf("%w: text slot expects %d dimensions, got %d", ErrDimensionMismatch, embedder.TextDimensions, len(queryEmbedding)))
	}

	slot := storage.SlotText
	if options.Slot == ModalityImage {
		slot = storage.SlotImage
	}

	lock := c.locks.forPatient(patientID)
	lock.RLock()
	defer lock.RUnlock()

	// Over-fetch so temporal re-ranking can promote hits beyond the cutoff.
	hits, err := c.store.SearchSimilar(ctx, queryEmbedding, patientID, slot, options.Limit*2, c.config.Memory.ScoreFloor)
	if err != nil {
		return nil, NewRecordError("FindSimilarCases", err)
	}

	now := c.now()
	ranked := c.scorer.Rank(hits, query, options.TimeWeight, options.ModalityWeight, options.Limit, now)

	// Reinforce only what the caller actually receives.
	for _, candidate := range ranked {
		if _, err := c.store.ReinforceAccess(ctx, candidate.Record.PointID, patientID, now); err != nil {
			return nil, NewRecordError("FindSimilarCases", err)
		}
	}

	recent, old := c.detector.Partition(ranked, now)

	result := &SimilarCasesResult{
		Query:       query,
		RecentCases: make([]SimilarCase, 0, len(recent)),
		OldCases:    make([]SimilarCase, 0, len(old)),
		Ranking: RankingInfo{
			TimeWeightApplied:         options.TimeWeight,
			ModalityWeighted:          options.ModalityWeight,
			MemoryEvolutionConsidered: true,
		},
	}
	for _, candidate := range recent {
		result.RecentCases = append(result.RecentCases, toSimilarCase(candidate))
	}
	for _, candidate := range old {
		result.OldCases = append(result.OldCases, toSimilarCase(candidate))
	}

	if options.Insights {
		result.ForgottenInsights = c.detector.Detect(recent, old, now)
	}
	result.TemporalContext = intelligence.BuildTemporalContext(ranked)

	return result, nil
}

// ApplyTemporalDecay sweeps a patient's history and weakens records older
// than the decay threshold. The sweep holds the patient's write lock, so no
// query observes a half-decayed history.
//
// Records the store cannot interpret are skipped; store failures abort the
// sweep.
func (c *Client) ApplyTemporalDecay(ctx context.Context, patientID string) (*DecayReport, error) {
	if patientID == "" {
		return nil, NewRecordError("ApplyTemporalDecay", ErrPatientScopeRequired)
	}

	lock := c.locks.forPatient(patientID)
	lock.Lock()
	defer lock.Unlock()

	now := c.now()
	cutoff := now.AddDate(0, 0, -c.config.Memory.DecayThresholdDays)

	// Only records past the threshold can decay.
	timeline, err := c.store.Timeline(ctx, patientID, nil, &cutoff)
	if err != nil {
		return nil, NewRecordError("ApplyTemporalDecay", err)
	}

	report := &DecayReport{PatientID: patientID, Examined: len(timeline)}
	for _, record := range timeline {
		ageDays := int(now.Sub(record.Date).Hours() / 24)
		factor := intelligence.DecayFactor(ageDays, record.Memory.AccessCount, c.config.Memory.DecayThresholdDays)
		if factor >= 1.0 {
			continue
		}
		state, err := c.store.ApplyDecay(ctx, record.PointID, patientID, factor, ageDays, now)
		if err != nil {
			return nil, NewRecordError("ApplyTemporalDecay", err)
		}
		report.Decayed = append(report.Decayed, DecayedRecord{
			RecordID:       record.RecordID,
			AgeDays:        ageDays,
			Factor:         factor,
			Weight:         state.Weight,
			RelevanceScore: state.RelevanceScore,
		})
	}
	return report, nil
}

// AnalyzeSymptomProgression reports how a symptom has developed across a
// patient's timeline window (default 365 days when windowDays <= 0).
//
// Matching is a case-insensitive substring scan over record content, a
// timeline pass rather than a vector search.
func (c *Client) AnalyzeSymptomProgression(ctx context.Context, patientID, symptom string, windowDays int) (*intelligence.Progression, error) {
	if patientID == "" {
		return nil, NewRecordError("AnalyzeSymptomProgression", ErrPatientScopeRequired)
	}
	if symptom == "" {
		return nil, NewRecordError("AnalyzeSymptomProgression", fmt.Errorf("%w: symptom is required", ErrInvalidInput))
	}
	if windowDays <= 0 {
		windowDays = 365
	}

	lock := c.locks.forPatient(patientID)
	lock.RLock()
	defer lock.RUnlock()

	now := c.now()
	start := now.AddDate(0, 0, -windowDays)
	timeline, err := c.store.Timeline(ctx, patientID, &start, &now)
	if err != nil {
		return nil, NewRecordError("AnalyzeSymptomProgression", err)
	}

	progression := intelligence.AnalyzeProgression(timeline, symptom)
	return &progression, nil
}

// Timeline returns a patient's records ordered by event time, optionally
// bounded to [start, end].
func (c *Client) Timeline(ctx context.Context, patientID string, start, end *time.Time) ([]*storage.Record, error) {
	if patientID == "" {
		return nil, NewRecordError("Timeline", ErrPatientScopeRequired)
	}

	lock := c.locks.forPatient(patientID)
	lock.RLock()
	defer lock.RUnlock()

	timeline, err := c.store.Timeline(ctx, patientID, start, end)
	if err != nil {
		return nil, NewRecordError("Timeline", err)
	}
	return timeline, nil
}

// GetMemorySummary aggregates a patient's stored history: totals by record
// type, date range, and a memory health assessment.
func (c *Client) GetMemorySummary(ctx context.Context, patientID string) (*MemorySummary, error) {
	if patientID == "" {
		return nil, NewRecordError("GetMemorySummary", ErrPatientScopeRequired)
	}

	lock := c.locks.forPatient(patientID)
	lock.RLock()
	defer lock.RUnlock()

	timeline, err := c.store.Timeline(ctx, patientID, nil, nil)
	if err != nil {
		return nil, NewRecordError("GetMemorySummary", err)
	}

	summary := &MemorySummary{
		PatientID:    patientID,
		TotalRecords: len(timeline),
		Health:       intelligence.AssessMemoryHealth(timeline, c.now()),
	}
	if len(timeline) == 0 {
		return summary, nil
	}

	summary.RecordTypes = make(map[string]int)
	earliest := timeline[0].Date
	latest := timeline[0].Date
	for _, record := range timeline {
		recordType := record.RecordType
		if recordType == "" {
			recordType = "unknown"
		}
		summary.RecordTypes[recordType]++
		if record.Date.Before(earliest) {
			earliest = record.Date
		}
		if record.Date.After(latest) {
			latest = record.Date
		}
	}
	summary.EarliestDate = &earliest
	summary.LatestDate = &latest
	summary.SpanDays = int(latest.Sub(earliest).Hours() / 24)
	return summary, nil
}

// ConsolidateWindow groups a recent window's records by type and reports
// the recurring-type patterns (default 30 days when windowDays <= 0).
func (c *Client) ConsolidateWindow(ctx context.Context, patientID string, windowDays int) (*ConsolidationReport, error) {
	if patientID == "" {
		return nil, NewRecordError("ConsolidateWindow", ErrPatientScopeRequired)
	}
	if windowDays <= 0 {
		windowDays = 30
	}

	lock := c.locks.forPatient(patientID)
	lock.RLock()
	defer lock.RUnlock()

	now := c.now()
	start := now.AddDate(0, 0, -windowDays)
	records, err := c.store.Timeline(ctx, patientID, &start, &now)
	if err != nil {
		return nil, NewRecordError("ConsolidateWindow", err)
	}

	return &ConsolidationReport{
		PatientID:    patientID,
		WindowDays:   windowDays,
		TotalRecords: len(records),
		Patterns:     intelligence.ConsolidateWindow(records, windowDays),
	}, nil
}

// DeletePatient removes all records of a patient. Deletion is a
// data-governance operation for the caller; the engine never deletes on
// its own.
func (c *Client) DeletePatient(ctx context.Context, patientID string) error {
	if patientID == "" {
		return NewRecordError("DeletePatient", ErrPatientScopeRequired)
	}

	lock := c.locks.forPatient(patientID)
	lock.Lock()
	defer lock.Unlock()

	if err := c.store.DeleteAll(ctx, patientID); err != nil {
		return NewRecordError("DeletePatient", err)
	}
	return nil
}

// Close closes the client and releases backend resources.
func (c *Client) Close() error {
	if err := c.embedder.Close(); err != nil {
		return NewRecordError("Close", err)
	}
	if err := c.store.Close(); err != nil {
		return NewRecordError("Close", err)
	}
	return nil
}

func getStringConfig(config map[string]interface{}, key, fallback string) string {
	if value, ok := config[key].(string); ok && value != "" {
		return value
	}
	return fallback
}

func getIntConfig(config map[string]interface{}, key string, fallback int) int {
	switch value := config[key].(type) {
	case int:
		return value
	case float64:
		return int(value)
	default:
		return fallback
	}
}
