package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver" validate:"oneof=sqlite3 postgres"`
	DSN    string `yaml:"dsn" validate:"required"`
}

// AnthropicConfig holds the content-synthesis credentials. An empty key
// disables generation; the engine still runs on existing content.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// WeightsConfig sets the ranker's composite score coefficients. They
// should sum to 1 so the score stays in [0,1].
type WeightsConfig struct {
	Decay      float64 `yaml:"decay" validate:"gte=0,lte=1"`
	Centrality float64 `yaml:"centrality" validate:"gte=0,lte=1"`
	Relevance  float64 `yaml:"relevance" validate:"gte=0,lte=1"`
	Novelty    float64 `yaml:"novelty" validate:"gte=0,lte=1"`
}

// EngineConfig tunes the scheduling and generation policy.
type EngineConfig struct {
	TargetRetention           float64       `yaml:"target_retention" validate:"gt=0,lt=1"`
	MinRemediationAtoms       int           `yaml:"min_remediation_atoms" validate:"min=1"`
	GapMasteryThreshold       float64       `yaml:"gap_mastery_threshold" validate:"gte=0,lte=1"`
	MaxProactiveConcepts      int           `yaml:"max_proactive_concepts" validate:"min=1"`
	SynthesisTimeoutSeconds   int           `yaml:"synthesis_timeout_seconds" validate:"min=1"`
	CacheTTLMinutes           int           `yaml:"cache_ttl_minutes" validate:"min=1"`
	HypercorrectionConfidence int           `yaml:"hypercorrection_confidence" validate:"min=1,max=5"`
	ZScoreWeights             WeightsConfig `yaml:"zscore_weights"`
}

// MaintenanceConfig tunes the background sweep jobs.
type MaintenanceConfig struct {
	DecayRate       float64 `yaml:"decay_rate" validate:"gt=0,lt=1"`
	DecayMinAgeDays int     `yaml:"decay_min_age_days" validate:"min=1"`
}

// Config is the full runtime configuration. Values come from an optional
// YAML file layered under environment variables; env wins.
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Anthropic   AnthropicConfig   `yaml:"anthropic"`
	Engine      EngineConfig      `yaml:"engine"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "data/studyengine.db",
		},
		Engine: EngineConfig{
			TargetRetention:           0.90,
			MinRemediationAtoms:       3,
			GapMasteryThreshold:       0.5,
			MaxProactiveConcepts:      3,
			SynthesisTimeoutSeconds:   60,
			CacheTTLMinutes:           15,
			HypercorrectionConfidence: 4,
			ZScoreWeights: WeightsConfig{
				Decay:      0.30,
				Centrality: 0.25,
				Relevance:  0.25,
				Novelty:    0.20,
			},
		},
		Maintenance: MaintenanceConfig{
			DecayRate:       0.10,
			DecayMinAgeDays: 2,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// any), then environment variables. A .env file in the working directory is
// honored the same way as real environment variables.
func Load(path string) (*Config, error) {
	// Missing .env is the normal production case.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Anthropic.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_MODEL"); v != "" {
		cfg.Anthropic.Model = v
	}
}

// SynthesisTimeout returns the synthesis timeout as a duration.
func (c *EngineConfig) SynthesisTimeout() time.Duration {
	return time.Duration(c.SynthesisTimeoutSeconds) * time.Second
}

// CacheTTL returns the generation cache TTL as a duration.
func (c *EngineConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// DecayMinAge returns the minimum age before a sweep decays a weight.
func (c *MaintenanceConfig) DecayMinAge() time.Duration {
	return time.Duration(c.DecayMinAgeDays) * 24 * time.Hour
}
