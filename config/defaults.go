package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultPort           = "8080"
	DefaultChunkSize      = 2000
	DefaultChunkOverlap   = 500
	DefaultDimension      = 1536
	DefaultBatchSize      = 10
	DefaultScanLimit      = 1000
	DefaultClass          = "DocumentChunk"
	DefaultModel          = "gpt-4o-mini"
	DefaultEmbeddingModel = "text-embedding-ada-002"
	DefaultAttempts       = 2
	DefaultAITimeout      = 30 * time.Second
	DefaultIndexTimeout   = 20 * time.Second
	DefaultReadyTimeout   = 60 * time.Second
	DefaultReadyPoll      = 2 * time.Second
	DefaultSQLitePath     = ".data/assistant.db"
	DefaultMongoDatabase  = "edu_assistant"
	DefaultArchivePrefix  = "uploads"
	DefaultTokenTTL       = 24 * time.Hour
)

// DefaultRelationshipTerms mark a question as being about people and how the
// author met or worked with them.
var DefaultRelationshipTerms = []string{
	"introduced", "met", "mentor", "worked with",
	"studied", "learned from", "shadow", "interview",
}

// DefaultIndicatorPhrases promote passages that contain them above passages
// that do not, regardless of similarity.
var DefaultIndicatorPhrases = []string{
	"ten success skills",
	"10 success skills",
	"all ten skills",
	"Technology of Success skills",
	"introduced me to",
	"I met",
	"worked with",
	"studied with",
	"interviewed",
	"shadowed",
}

var (
	DefaultRelationshipParams = QueryParams{TopK: 300, ScoreThreshold: 0.5, Limit: 25}
	DefaultQueryParams        = QueryParams{TopK: 200, ScoreThreshold: 0.6, Limit: 15}
)

// Default returns a configuration with every default applied and local
// drivers selected.
func Default() *Config {
	cfg := &Config{
		VectorStore:   VectorStoreConfig{Driver: "memory"},
		MetadataStore: MetadataStoreConfig{Driver: "sqlite"},
	}
	applyDefaults(cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", DefaultPort)
	v.SetDefault("log_level", "info")
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.endpoint", "")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.gemini_api_keys", []string{})
	v.SetDefault("ai.model", DefaultModel)
	v.SetDefault("ai.embedding_model", DefaultEmbeddingModel)
	v.SetDefault("ai.dimension", DefaultDimension)
	v.SetDefault("ai.timeout", DefaultAITimeout)
	v.SetDefault("ai.attempts", DefaultAttempts)
	v.SetDefault("vector_store.driver", "weaviate")
	v.SetDefault("vector_store.host", "http://localhost:8080")
	v.SetDefault("vector_store.api_key", "")
	v.SetDefault("vector_store.class", DefaultClass)
	v.SetDefault("vector_store.batch_size", DefaultBatchSize)
	v.SetDefault("vector_store.timeout", DefaultIndexTimeout)
	v.SetDefault("vector_store.ready_timeout", DefaultReadyTimeout)
	v.SetDefault("vector_store.ready_poll", DefaultReadyPoll)
	v.SetDefault("vector_store.scan_limit", DefaultScanLimit)
	v.SetDefault("metadata_store.driver", "sqlite")
	v.SetDefault("metadata_store.uri", "")
	v.SetDefault("metadata_store.database", DefaultMongoDatabase)
	v.SetDefault("metadata_store.path", DefaultSQLitePath)
	v.SetDefault("chunker.size", DefaultChunkSize)
	v.SetDefault("chunker.overlap", DefaultChunkOverlap)
	v.SetDefault("ranking.relationship_terms", DefaultRelationshipTerms)
	v.SetDefault("ranking.indicator_phrases", DefaultIndicatorPhrases)
	v.SetDefault("ranking.relationship.top_k", DefaultRelationshipParams.TopK)
	v.SetDefault("ranking.relationship.score_threshold", DefaultRelationshipParams.ScoreThreshold)
	v.SetDefault("ranking.relationship.limit", DefaultRelationshipParams.Limit)
	v.SetDefault("ranking.default.top_k", DefaultQueryParams.TopK)
	v.SetDefault("ranking.default.score_threshold", DefaultQueryParams.ScoreThreshold)
	v.SetDefault("ranking.default.limit", DefaultQueryParams.Limit)
	v.SetDefault("archive.prefix", DefaultArchivePrefix)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.ttl", DefaultTokenTTL)
}

// applyDefaults fills zero values left by an explicit empty entry in the file.
func applyDefaults(cfg *Config) {
	if cfg.Port == "" {
		cfg.Port = DefaultPort
	}
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "openai"
	}
	if cfg.AI.Model == "" {
		cfg.AI.Model = DefaultModel
	}
	if cfg.AI.EmbeddingModel == "" {
		cfg.AI.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.AI.Dimension == 0 {
		cfg.AI.Dimension = DefaultDimension
	}
	if cfg.AI.Timeout == 0 {
		cfg.AI.Timeout = DefaultAITimeout
	}
	if cfg.AI.Attempts <= 0 {
		cfg.AI.Attempts = DefaultAttempts
	}
	if cfg.VectorStore.Class == "" {
		cfg.VectorStore.Class = DefaultClass
	}
	if cfg.VectorStore.BatchSize <= 0 {
		cfg.VectorStore.BatchSize = DefaultBatchSize
	}
	if cfg.VectorStore.Timeout == 0 {
		cfg.VectorStore.Timeout = DefaultIndexTimeout
	}
	if cfg.VectorStore.ReadyTimeout == 0 {
		cfg.VectorStore.ReadyTimeout = DefaultReadyTimeout
	}
	if cfg.VectorStore.ReadyPoll == 0 {
		cfg.VectorStore.ReadyPoll = DefaultReadyPoll
	}
	if cfg.VectorStore.ScanLimit <= 0 {
		cfg.VectorStore.ScanLimit = DefaultScanLimit
	}
	if cfg.MetadataStore.Database == "" {
		cfg.MetadataStore.Database = DefaultMongoDatabase
	}
	if cfg.MetadataStore.Path == "" {
		cfg.MetadataStore.Path = DefaultSQLitePath
	}
	if cfg.Chunker.Size == 0 {
		cfg.Chunker.Size = DefaultChunkSize
	}
	if cfg.Chunker.Size == DefaultChunkSize && cfg.Chunker.Overlap == 0 {
		cfg.Chunker.Overlap = DefaultChunkOverlap
	}
	if len(cfg.Ranking.RelationshipTerms) == 0 {
		cfg.Ranking.RelationshipTerms = append([]string(nil), DefaultRelationshipTerms...)
	}
	if len(cfg.Ranking.IndicatorPhrases) == 0 {
		cfg.Ranking.IndicatorPhrases = append([]string(nil), DefaultIndicatorPhrases...)
	}
	if cfg.Ranking.Relationship == (QueryParams{}) {
		cfg.Ranking.Relationship = DefaultRelationshipParams
	}
	if cfg.Ranking.Default == (QueryParams{}) {
		cfg.Ranking.Default = DefaultQueryParams
	}
	if cfg.Archive.Prefix == "" {
		cfg.Archive.Prefix = DefaultArchivePrefix
	}
	if cfg.JWT.TTL == 0 {
		cfg.JWT.TTL = DefaultTokenTTL
	}
}
