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

const demoConfig = `
app:
  name: neurologix-search
llm:
  provider: template
embedding:
  provider: hashing
  dimension: 64
auth:
  jwtSecret: ${NEUROLOGIX_TEST_SECRET}
pipeline:
  structuredStore: memory
  vectorStore: memory
  semanticTimeout: 1500ms
  teamAliases:
    lsu: LSU_TIGERS
`

func TestLoadConfig_DefaultsAndEnv(t *testing.T) {
	t.Setenv("NEUROLOGIX_TEST_SECRET", "s3cret")
	cfg, err := LoadConfig(writeConfig(t, demoConfig))
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Auth.JwtSecret)
	assert.Equal(t, "teams", cfg.Auth.TeamsClaim)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 1500*time.Millisecond, cfg.Pipeline.SemanticTimeout)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.StructuredTimeout)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.RequestTimeout)
	assert.Equal(t, "inverse", cfg.Pipeline.ScoreTransform)
	assert.Equal(t, 0.7, cfg.Pipeline.ConfidenceThreshold)
	assert.Equal(t, map[string]string{"lsu": "LSU_TIGERS"}, cfg.Pipeline.TeamAliases)
}

func TestLoadConfig_Validation(t *testing.T) {
	t.Setenv("NEUROLOGIX_TEST_SECRET", "s3cret")

	_, err := LoadConfig(writeConfig(t, demoConfig+"\n  unknownKey: 1\n"))
	require.NoError(t, err, "unknown keys are ignored")

	bad := `
llm: {provider: template}
embedding: {provider: hashing, dimension: 64}
auth: {jwtSecret: x}
pipeline: {structuredStore: memory}
databases:
  milvus:
    schema:
      vectorField: embedding
      fields:
        - {name: embedding, dataType: FloatVector, dim: 768}
`
	_, err = LoadConfig(writeConfig(t, bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "768")

	_, err = LoadConfig(writeConfig(t, "llm: {provider: claude}\n"))
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestMilvusDimension(t *testing.T) {
	m := MilvusConfig{Schema: SchemaConfig{
		VectorField: "embedding",
		Fields:      []FieldConfig{{Name: "id"}, {Name: "embedding", Dim: 128}},
	}}
	assert.Equal(t, 128, m.Dimension())
	assert.Zero(t, MilvusConfig{}.Dimension())
}

func TestLoadConfig_ShippedExample(t *testing.T) {
	t.Setenv("NEUROLOGIX_JWT_SECRET", "s3cret")
	cfg, err := LoadConfig(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 768, cfg.Databases.Milvus.Dimension())
	assert.Equal(t, "neurologix.query-audit", cfg.Databases.Kafka.AuditTopic)
	assert.True(t, cfg.LLM.CircuitBreaker.Enabled)
	assert.Equal(t, "tokenBucket", cfg.Middleware.RateLimiter.Algorithm)
	assert.Equal(t, 3*time.Second, cfg.Pipeline.SemanticTimeout)
	assert.Equal(t, "LSU_TIGERS", cfg.Pipeline.TeamAliases["tigers"])
}
