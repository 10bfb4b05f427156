package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultChunkSize, cfg.Chunker.Size)
	assert.Equal(t, DefaultChunkOverlap, cfg.Chunker.Overlap)
	assert.Equal(t, DefaultDimension, cfg.AI.Dimension)
	assert.Equal(t, DefaultBatchSize, cfg.VectorStore.BatchSize)
	assert.Equal(t, DefaultRelationshipParams, cfg.Ranking.Relationship)
	assert.Equal(t, DefaultQueryParams, cfg.Ranking.Default)
	assert.Equal(t, DefaultRelationshipTerms, cfg.Ranking.RelationshipTerms)
	assert.Equal(t, "weaviate", cfg.VectorStore.Driver)
}

func TestLoadConfig_FileValues(t *testing.T) {
	path := writeConfig(t, `
port: "9000"
vector_store:
  driver: memory
  ready_poll: 500ms
metadata_store:
  driver: sqlite
  path: /tmp/x.db
ranking:
  indicator_phrases: [alpha, beta]
  default:
    top_k: 50
    score_threshold: 0.7
    limit: 5
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "memory", cfg.VectorStore.Driver)
	assert.Equal(t, 500*time.Millisecond, cfg.VectorStore.ReadyPoll)
	assert.Equal(t, "/tmp/x.db", cfg.MetadataStore.Path)
	assert.Equal(t, []string{"alpha", "beta"}, cfg.Ranking.IndicatorPhrases)
	assert.Equal(t, QueryParams{TopK: 50, ScoreThreshold: 0.7, Limit: 5}, cfg.Ranking.Default)
	assert.Equal(t, DefaultRelationshipParams, cfg.Ranking.Relationship)
}

func TestLoadConfig_EnvSecrets(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("WEAVIATE_APIKEY", "wv-test")
	t.Setenv("JWT_SECRET_USER", "secret")

	cfg, err := LoadConfig(writeConfig(t, "port: \"8080\"\n"))
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.AI.APIKey)
	assert.Equal(t, "wv-test", cfg.VectorStore.APIKey)
	assert.Equal(t, "secret", cfg.JWT.Secret)
}

func TestLoadConfig_RejectsOverlapLargerThanSize(t *testing.T) {
	path := writeConfig(t, `
chunker:
  size: 100
  overlap: 100
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunker.overlap")
}

func TestLoadConfig_RejectsUnknownDriver(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "vector_store:\n  driver: pinecone\n"))
	require.Error(t, err)
}

func TestArchiveConfig_Enabled(t *testing.T) {
	assert.False(t, ArchiveConfig{}.Enabled())
	assert.True(t, ArchiveConfig{
		Endpoint: "https://s3.local", Region: "us-east-1", Bucket: "b",
		AccessKeyID: "a", SecretAccessKey: "s", EncryptionKey: "k",
	}.Enabled())
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "memory", cfg.VectorStore.Driver)
	assert.Equal(t, "sqlite", cfg.MetadataStore.Driver)
}
