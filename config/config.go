package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port          string              `mapstructure:"port"`
	LogLevel      string              `mapstructure:"log_level"`
	Development   bool                `mapstructure:"development"`
	AI            AIConfig            `mapstructure:"ai"`
	VectorStore   VectorStoreConfig   `mapstructure:"vector_store"`
	MetadataStore MetadataStoreConfig `mapstructure:"metadata_store"`
	Chunker       ChunkerConfig       `mapstructure:"chunker"`
	Ranking       RankingConfig       `mapstructure:"ranking"`
	Archive       ArchiveConfig       `mapstructure:"archive"`
	JWT           JWTConfig           `mapstructure:"jwt"`
}

type AIConfig struct {
	Provider       string        `mapstructure:"provider"`
	Endpoint       string        `mapstructure:"endpoint"`
	APIKey         string        `mapstructure:"api_key"`
	GeminiAPIKeys  []string      `mapstructure:"gemini_api_keys"`
	Model          string        `mapstructure:"model"`
	EmbeddingModel string        `mapstructure:"embedding_model"`
	Dimension      int           `mapstructure:"dimension"`
	Timeout        time.Duration `mapstructure:"timeout"`
	Attempts       int           `mapstructure:"attempts"`
}

type VectorStoreConfig struct {
	Driver       string        `mapstructure:"driver"`
	Host         string        `mapstructure:"host"`
	APIKey       string        `mapstructure:"api_key"`
	Class        string        `mapstructure:"class"`
	BatchSize    int           `mapstructure:"batch_size"`
	Timeout      time.Duration `mapstructure:"timeout"`
	ReadyTimeout time.Duration `mapstructure:"ready_timeout"`
	ReadyPoll    time.Duration `mapstructure:"ready_poll"`
	ScanLimit    int           `mapstructure:"scan_limit"`
}

type MetadataStoreConfig struct {
	Driver   string `mapstructure:"driver"`
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
	Path     string `mapstructure:"path"`
}

type ChunkerConfig struct {
	Size    int `mapstructure:"size"`
	Overlap int `mapstructure:"overlap"`
}

// QueryParams are the retrieval knobs selected by query classification.
type QueryParams struct {
	TopK           int     `mapstructure:"top_k"`
	ScoreThreshold float64 `mapstructure:"score_threshold"`
	Limit          int     `mapstructure:"limit"`
}

type RankingConfig struct {
	RelationshipTerms []string    `mapstructure:"relationship_terms"`
	IndicatorPhrases  []string    `mapstructure:"indicator_phrases"`
	Relationship      QueryParams `mapstructure:"relationship"`
	Default           QueryParams `mapstructure:"default"`
}

type ArchiveConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SSE             string `mapstructure:"sse"`
	EncryptionKey   string `mapstructure:"encryption_key"`
}

// Enabled reports whether every setting needed for archival is present.
func (c ArchiveConfig) Enabled() bool {
	return c.Endpoint != "" && c.Region != "" && c.Bucket != "" &&
		c.AccessKeyID != "" && c.SecretAccessKey != "" && c.EncryptionKey != ""
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

var envBindings = map[string]string{
	"ai.api_key":                "OPENAI_API_KEY",
	"ai.gemini_api_keys":        "GEMINI_API_KEY",
	"vector_store.api_key":      "WEAVIATE_APIKEY",
	"metadata_store.uri":        "MONGODB_URI",
	"jwt.secret":                "JWT_SECRET_USER",
	"archive.encryption_key":    "APP_ENCRYPTION_KEY",
	"archive.access_key_id":     "S3_ACCESS_KEY_ID",
	"archive.secret_access_key": "S3_SECRET_ACCESS_KEY",
	"archive.endpoint":          "S3_ENDPOINT_URL",
	"archive.region":            "S3_REGION",
	"archive.bucket":            "S3_BUCKET",
	"archive.prefix":            "S3_PREFIX",
	"archive.sse":               "S3_SSE",
}

// LoadConfig reads configPath (yaml) overlaid with environment variables.
// A missing file is not an error: defaults and environment still apply.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set up Viper to read from config file
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// Set up Viper to read from environment variables
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("error binding %s: %w", env, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	applyDefaults(&config)
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	if c.Chunker.Size <= 0 {
		return fmt.Errorf("chunker.size must be positive, got %d", c.Chunker.Size)
	}
	if c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.Size {
		return fmt.Errorf("chunker.overlap must be in [0, %d), got %d", c.Chunker.Size, c.Chunker.Overlap)
	}
	if c.AI.Dimension <= 0 {
		return fmt.Errorf("ai.dimension must be positive, got %d", c.AI.Dimension)
	}
	switch c.VectorStore.Driver {
	case "weaviate", "memory":
	default:
		return fmt.Errorf("unknown vector_store.driver %q", c.VectorStore.Driver)
	}
	switch c.MetadataStore.Driver {
	case "mongo", "sqlite":
	default:
		return fmt.Errorf("unknown metadata_store.driver %q", c.MetadataStore.Driver)
	}
	switch c.AI.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("unknown ai.provider %q", c.AI.Provider)
	}
	return nil
}
