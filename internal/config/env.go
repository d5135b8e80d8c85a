package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/listing-matcher/internal/match"
	"github.com/listing-matcher/internal/training"
)

// DefaultEnvPaths are searched in order by LoadEnv
var DefaultEnvPaths = []string{".env", "../.env", "../../.env"}

// LoadEnv loads the first .env file found. Variables already set in the environment win.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = DefaultEnvPaths
	}

	for _, envPath := range paths {
		if _, err := os.Stat(envPath); err != nil {
			continue
		}
		if err := godotenv.Load(envPath); err != nil {
			return fmt.Errorf("failed to load %s: %w", envPath, err)
		}
		return nil
	}
	return nil
}

// Tunables are the matcher settings exposed to operators
type Tunables struct {
	ProximityRadiusMeters     float64 `envconfig:"PROXIMITY_RADIUS_METERS" default:"20" json:"proximity_radius_meters"`
	MinPositiveExamples       int     `envconfig:"MIN_POSITIVE_EXAMPLES" default:"5" json:"min_positive_examples"`
	MinNegativeExamples       int     `envconfig:"MIN_NEGATIVE_EXAMPLES" default:"5" json:"min_negative_examples"`
	MinTotalExamples          int     `envconfig:"MIN_TOTAL_EXAMPLES" default:"20" json:"min_total_examples"`
	MaxTrainingExamples       int     `envconfig:"MAX_TRAINING_EXAMPLES" default:"1000" json:"max_training_examples"`
	SearchRadiusMeters        float64 `envconfig:"SEARCH_RADIUS_METERS" default:"500" json:"search_radius_meters"`
	CandidateRadiusMeters     float64 `envconfig:"CANDIDATE_RADIUS_METERS" default:"1000" json:"candidate_radius_meters"`
	ConsolidationRadiusMeters float64 `envconfig:"CONSOLIDATION_RADIUS_METERS" default:"20" json:"consolidation_radius_meters"`
	LearningRate              float64 `envconfig:"LEARNING_RATE" default:"0.1" json:"learning_rate"`
	Workers                   int     `envconfig:"WORKERS" default:"4" json:"workers"`
}

// DefaultTunables mirrors the envconfig defaults
func DefaultTunables() Tunables {
	return Tunables{
		ProximityRadiusMeters:     20,
		MinPositiveExamples:       5,
		MinNegativeExamples:       5,
		MinTotalExamples:          20,
		MaxTrainingExamples:       1000,
		SearchRadiusMeters:        500,
		CandidateRadiusMeters:     1000,
		ConsolidationRadiusMeters: 20,
		LearningRate:              0.1,
		Workers:                   4,
	}
}

// Validate checks the tunables are usable
func (t Tunables) Validate() error {
	if t.ProximityRadiusMeters < 0 {
		return fmt.Errorf("PROXIMITY_RADIUS_METERS must be >= 0")
	}
	if t.MinPositiveExamples < 1 || t.MinNegativeExamples < 1 {
		return fmt.Errorf("MIN_POSITIVE_EXAMPLES and MIN_NEGATIVE_EXAMPLES must be >= 1")
	}
	if t.MinTotalExamples < t.MinPositiveExamples+t.MinNegativeExamples {
		return fmt.Errorf("MIN_TOTAL_EXAMPLES (%d) must be at least MIN_POSITIVE_EXAMPLES + MIN_NEGATIVE_EXAMPLES (%d)",
			t.MinTotalExamples, t.MinPositiveExamples+t.MinNegativeExamples)
	}
	if t.MaxTrainingExamples < t.MinTotalExamples {
		return fmt.Errorf("MAX_TRAINING_EXAMPLES (%d) cannot be below MIN_TOTAL_EXAMPLES (%d)",
			t.MaxTrainingExamples, t.MinTotalExamples)
	}
	if t.SearchRadiusMeters <= 0 || t.CandidateRadiusMeters <= 0 {
		return fmt.Errorf("SEARCH_RADIUS_METERS and CANDIDATE_RADIUS_METERS must be > 0")
	}
	if t.CandidateRadiusMeters < t.SearchRadiusMeters {
		return fmt.Errorf("CANDIDATE_RADIUS_METERS (%.0f) cannot be below SEARCH_RADIUS_METERS (%.0f)",
			t.CandidateRadiusMeters, t.SearchRadiusMeters)
	}
	if t.ConsolidationRadiusMeters <= 0 {
		return fmt.Errorf("CONSOLIDATION_RADIUS_METERS must be > 0")
	}
	if t.LearningRate <= 0 || t.LearningRate > 1 {
		return fmt.Errorf("LEARNING_RATE must be in (0, 1]")
	}
	if t.Workers < 1 {
		return fmt.Errorf("WORKERS must be >= 1")
	}
	return nil
}

// RetrainPolicy converts tunables into a retrain policy
func (t Tunables) RetrainPolicy() match.RetrainPolicy {
	p := match.DefaultRetrainPolicy()
	p.MinPositive = t.MinPositiveExamples
	p.MinNegative = t.MinNegativeExamples
	p.MinTotal = t.MinTotalExamples
	p.LearningRate = t.LearningRate
	return p
}

// TrainingLimits converts tunables into training store limits
func (t Tunables) TrainingLimits() training.Limits {
	return training.Limits{
		MaxExamples: t.MaxTrainingExamples,
		MinPositive: t.MinPositiveExamples,
		MinNegative: t.MinNegativeExamples,
		MinTotal:    t.MinTotalExamples,
	}
}

// Config is the process configuration read from the environment
type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"data/matcher.db"`

	MQTTBroker      string `envconfig:"MQTT_BROKER"`
	MQTTClientID    string `envconfig:"MQTT_CLIENT_ID" default:"listing-matcher"`
	MQTTUsername    string `envconfig:"MQTT_USERNAME"`
	MQTTPassword    string `envconfig:"MQTT_PASSWORD"`
	MQTTTopicPrefix string `envconfig:"MQTT_TOPIC_PREFIX" default:"listing-matcher"`

	WebHost            string `envconfig:"WEB_HOST" default:"0.0.0.0"`
	WebPort            int    `envconfig:"WEB_PORT" default:"8080"`
	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	APIKey             string `envconfig:"API_KEY"`
	ExportEnabled      bool   `envconfig:"EXPORT_ENABLED" default:"true"`

	RateLimitRPS   float64 `envconfig:"RATE_LIMIT_RPS" default:"0"`
	RateLimitBurst int     `envconfig:"RATE_LIMIT_BURST" default:"20"`

	ModelSeedPath string `envconfig:"MODEL_SEED_PATH"`
	AutoRetrain   bool   `envconfig:"AUTO_RETRAIN" default:"true"`

	Tunables
}

// Load reads the configuration from the environment and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "local", "development", "staging", "production", "test":
	default:
		return fmt.Errorf("ENVIRONMENT must be one of local, development, staging, production, test")
	}
	if strings.TrimSpace(c.SQLitePath) == "" {
		return fmt.Errorf("SQLITE_PATH is required")
	}
	if c.WebPort < 1 || c.WebPort > 65535 {
		return fmt.Errorf("WEB_PORT must be in 1..65535")
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must not be negative")
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_BURST must be at least 1 when rate limiting is enabled")
	}
	if c.MQTTBroker != "" && strings.TrimSpace(c.MQTTTopicPrefix) == "" {
		return fmt.Errorf("MQTT_TOPIC_PREFIX is required when MQTT_BROKER is set")
	}
	return c.Tunables.Validate()
}

// UsePostgres reports whether reference addresses come from PostgreSQL
func (c *Config) UsePostgres() bool {
	return strings.TrimSpace(c.DatabaseURL) != ""
}

// CORSAllowedOriginsList splits the comma-separated origins, dropping blanks and duplicates
func (c *Config) CORSAllowedOriginsList() []string {
	if c == nil {
		return nil
	}

	parts := strings.Split(c.CORSAllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		origin := strings.TrimSpace(part)
		if origin == "" {
			continue
		}
		if _, exists := seen[origin]; exists {
			continue
		}
		seen[origin] = struct{}{}
		origins = append(origins, origin)
	}
	return origins
}
