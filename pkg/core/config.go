package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config contains the complete configuration for a CareLedger client.
//
// It includes settings for:
//   - Embedding provider (for vector generation)
//   - Record store (for patient history persistence)
//   - Memory tuning (reinforcement, decay, and insight windows)
//   - Embedder resilience (circuit breaker, rate limit)
//
// Example:
//
//	config := &core.Config{
//	    Embedder: core.EmbedderConfig{
//	        Provider: "openai",
//	        APIKey:   "sk-...",
//	        Model:    "text-embedding-3-small",
//	    },
//	    Store: core.StoreConfig{
//	        Provider: "sqlite",
//	        Config: map[string]interface{}{
//	            "db_path": "./careledger.db",
//	        },
//	    },
//	}
type Config struct {
	// Embedder contains embedding provider configuration.
	Embedder EmbedderConfig `json:"embedder" yaml:"embedder"`

	// Store contains record store configuration.
	Store StoreConfig `json:"store" yaml:"store"`

	// Memory contains memory tuning parameters.
	Memory MemoryConfig `json:"memory" yaml:"memory"`

	// Resilience contains embedder resilience settings (optional).
	Resilience *ResilienceConfig `json:"resilience,omitempty" yaml:"resilience,omitempty"`
}

// EmbedderConfig contains configuration for the embedding provider.
//
// Supported providers: openai
type EmbedderConfig struct {
	// Provider is the embedding provider name.
	Provider string `json:"provider" yaml:"provider"`

	// APIKey is the API key for the embedding provider.
	APIKey string `json:"api_key" yaml:"api_key"`

	// Model is the embedding model name (e.g., "text-embedding-3-small").
	Model string `json:"model" yaml:"model"`

	// BaseURL is the base URL for the API (optional, uses provider default if empty).
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

// StoreConfig contains configuration for the record store.
//
// Supported providers: sqlite, postgres, mysql
type StoreConfig struct {
	// Provider is the record store provider name (sqlite, postgres, mysql).
	Provider string `json:"provider" yaml:"provider"`

	// Config contains provider-specific configuration.
	// For SQLite: db_path, table_name
	// For PostgreSQL: host, port, user, password, db_name, table_name, ssl_mode
	// For MySQL: host, port, user, password, db_name, table_name
	Config map[string]interface{} `json:"config" yaml:"config"`
}

// MemoryConfig contains the tuning parameters of the memory engine.
//
// The zero value of any field falls back to its default via ApplyDefaults.
type MemoryConfig struct {
	// DecayThresholdDays is the age beyond which decay starts. Default: 365
	DecayThresholdDays int `json:"decay_threshold_days" yaml:"decay_threshold_days"`

	// HalfLifeDays is the recency half-life for scoring. Default: 365
	HalfLifeDays int `json:"half_life_days" yaml:"half_life_days"`

	// ReinforcementThreshold is the access count for the first level step.
	// Default: 3
	ReinforcementThreshold int `json:"reinforcement_threshold" yaml:"reinforcement_threshold"`

	// RecentWindowDays bounds the recent insight bucket. Default: 180
	RecentWindowDays int `json:"recent_window_days" yaml:"recent_window_days"`

	// OldWindowDays bounds the old insight bucket. Default: 365
	OldWindowDays int `json:"old_window_days" yaml:"old_window_days"`

	// ScoreFloor is the minimum raw similarity admitted from search.
	// Default: 0.3
	ScoreFloor float64 `json:"score_floor" yaml:"score_floor"`

	// MaxInsights caps the insights emitted per query. Default: 3
	MaxInsights int `json:"max_insights" yaml:"max_insights"`
}

// ResilienceConfig contains embedder resilience settings.
type ResilienceConfig struct {
	// BreakerEnabled wraps the embedder with a circuit breaker.
	BreakerEnabled bool `json:"breaker_enabled" yaml:"breaker_enabled"`

	// RateLimitPerSec caps embedding requests per second (0 = unlimited).
	RateLimitPerSec float64 `json:"rate_limit_per_sec" yaml:"rate_limit_per_sec"`

	// RateLimitBurst is the token bucket burst size. Default: 1 when limited.
	RateLimitBurst int `json:"rate_limit_burst" yaml:"rate_limit_burst"`
}

// ApplyDefaults fills zero-valued memory tuning fields with their defaults.
func (m *MemoryConfig) ApplyDefaults() {
	if m.DecayThresholdDays == 0 {
		m.DecayThresholdDays = 365
	}
	if m.HalfLifeDays == 0 {
		m.HalfLifeDays = 365
	}
	if m.ReinforcementThreshold == 0 {
		m.ReinforcementThreshold = 3
	}
	if m.RecentWindowDays == 0 {
		m.RecentWindowDays = 180
	}
	if m.OldWindowDays == 0 {
		m.OldWindowDays = 365
	}
	if m.ScoreFloor == 0 {
		m.ScoreFloor = 0.3
	}
	if m.MaxInsights == 0 {
		m.MaxInsights = 3
	}
}

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function:
//  1. Searches for .env or .env.example files (up to 5 directory levels up)
//  2. Loads environment variables from the found file
//  3. Parses environment variables into a Config struct
//
// Supported environment variables:
//   - CARELEDGER_STORE_PROVIDER (sqlite, postgres, mysql)
//   - SQLITE_PATH, SQLITE_TABLE
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD, etc.
//   - MYSQL_HOST, MYSQL_PORT, MYSQL_USER, MYSQL_PASSWORD, etc.
//   - EMBEDDING_PROVIDER, EMBEDDING_API_KEY, EMBEDDING_MODEL, EMBEDDING_BASE_URL
//   - CARELEDGER_DECAY_THRESHOLD_DAYS, CARELEDGER_HALF_LIFE_DAYS,
//     CARELEDGER_RECENT_WINDOW_DAYS, CARELEDGER_OLD_WINDOW_DAYS,
//     CARELEDGER_SCORE_FLOOR, CARELEDGER_MAX_INSIGHTS
//   - CARELEDGER_BREAKER_ENABLED, CARELEDGER_RATE_LIMIT_PER_SEC
//
// Returns a Config instance, or an error if loading fails.
//
// Example:
//
//	config, err := core.LoadConfigFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
func LoadConfigFromEnv() (*Config, error) {
	envPath, found := FindEnvFile()
	if found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	provider := getEnvOrDefault("CARELEDGER_STORE_PROVIDER", "sqlite")

	storeConfig := make(map[string]interface{})
	switch provider {
	case "postgres":
		port, _ := strconv.Atoi(getEnvOrDefault("POSTGRES_PORT", "5432"))
		storeConfig = map[string]interface{}{
			"host":       getEnvOrDefault("POSTGRES_HOST", "localhost"),
			"port":       port,
			"user":       getEnvOrDefault("POSTGRES_USER", "postgres"),
			"password":   os.Getenv("POSTGRES_PASSWORD"),
			"db_name":    getEnvOrDefault("POSTGRES_DATABASE", "careledger"),
			"table_name": getEnvOrDefault("POSTGRES_TABLE", "patient_records"),
			"ssl_mode":   getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		}
	case "mysql":
		port, _ := strconv.Atoi(getEnvOrDefault("MYSQL_PORT", "3306"))
		storeConfig = map[string]interface{}{
			"host":       getEnvOrDefault("MYSQL_HOST", "127.0.0.1"),
			"port":       port,
			"user":       getEnvOrDefault("MYSQL_USER", "root"),
			"password":   os.Getenv("MYSQL_PASSWORD"),
			"db_name":    getEnvOrDefault("MYSQL_DATABASE", "careledger"),
			"table_name": getEnvOrDefault("MYSQL_TABLE", "patient_records"),
		}
	default:
		storeConfig = map[string]interface{}{
			"db_path":    getEnvOrDefault("SQLITE_PATH", "./careledger.db"),
			"table_name": getEnvOrDefault("SQLITE_TABLE", "patient_records"),
		}
	}

	config := &Config{
		Embedder: EmbedderConfig{
			Provider: getEnvOrDefault("EMBEDDING_PROVIDER", "openai"),
			APIKey:   os.Getenv("EMBEDDING_API_KEY"),
			Model:    getEnvOrDefault("EMBEDDING_MODEL", "text-embedding-3-small"),
			BaseURL:  os.Getenv("EMBEDDING_BASE_URL"),
		},
		Store: StoreConfig{
			Provider: provider,
			Config:   storeConfig,
		},
		Memory: MemoryConfig{
			DecayThresholdDays:     getEnvInt("CARELEDGER_DECAY_THRESHOLD_DAYS", 365),
			HalfLifeDays:           getEnvInt("CARELEDGER_HALF_LIFE_DAYS", 365),
			ReinforcementThreshold: getEnvInt("CARELEDGER_REINFORCEMENT_THRESHOLD", 3),
			RecentWindowDays:       getEnvInt("CARELEDGER_RECENT_WINDOW_DAYS", 180),
			OldWindowDays:          getEnvInt("CARELEDGER_OLD_WINDOW_DAYS", 365),
			ScoreFloor:             getEnvFloat("CARELEDGER_SCORE_FLOOR", 0.3),
			MaxInsights:            getEnvInt("CARELEDGER_MAX_INSIGHTS", 3),
		},
	}

	if os.Getenv("CARELEDGER_BREAKER_ENABLED") == "true" ||
		os.Getenv("CARELEDGER_RATE_LIMIT_PER_SEC") != "" {
		config.Resilience = &ResilienceConfig{
			BreakerEnabled:  os.Getenv("CARELEDGER_BREAKER_ENABLED") == "true",
			RateLimitPerSec: getEnvFloat("CARELEDGER_RATE_LIMIT_PER_SEC", 0),
			RateLimitBurst:  getEnvInt("CARELEDGER_RATE_LIMIT_BURST", 1),
		}
	}

	return config, nil
}

// LoadConfigFromEnvFile loads configuration from a specific .env file.
//
// Parameters:
//   - envPath: Path to the .env file
//
// Returns a Config instance, or an error if loading fails.
func LoadConfigFromEnvFile(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	return LoadConfigFromEnv()
}

// LoadConfigFromFile loads configuration from a YAML file.
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns a Config instance, or an error if loading or parsing fails.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewRecordError("LoadConfigFromFile", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, NewRecordError("LoadConfigFromFile", err)
	}

	return &config, nil
}

// Validate validates the configuration.
//
// Checks that all required fields are set:
//   - Embedder provider must be specified
//   - Store provider must be specified and known
//   - Memory windows must not be inverted
//
// Returns an error if validation fails, nil otherwise.
func (c *Config) Validate() error {
	if c.Embedder.Provider == "" {
		return NewRecordError("Validate", ErrInvalidConfig)
	}
	switch c.Store.Provider {
	case "sqlite", "postgres", "mysql":
	default:
		return NewRecordError("Validate",
			fmt.Errorf("%w: unknown store provider %q", ErrInvalidConfig, c.Store.Provider))
	}
	if c.Memory.RecentWindowDays != 0 && c.Memory.OldWindowDays != 0 &&
		c.Memory.RecentWindowDays > c.Memory.OldWindowDays {
		return NewRecordError("Validate",
			fmt.Errorf("%w: recent window exceeds old window", ErrInvalidConfig))
	}
	if c.Memory.ScoreFloor < 0 || c.Memory.ScoreFloor > 1 {
		return NewRecordError("Validate",
			fmt.Errorf("%w: score floor out of range", ErrInvalidConfig))
	}
	return nil
}

// FindEnvFile searches for a .env file in the current directory and up to
// five parent directories. A .env.example is used as a fallback.
//
// Returns the path and true when found.
func FindEnvFile() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}

	for i := 0; i < 5; i++ {
		for _, name := range []string{".env", ".env.example"} {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, true
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

func getEnvOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
