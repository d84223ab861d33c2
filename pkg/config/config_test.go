package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.Corpus.Size)
	assert.Equal(t, 1000, cfg.Model.MaxFeatures)
	assert.Equal(t, 100, cfg.Model.Trees)
	assert.Equal(t, int64(42), cfg.Model.Seed)
	assert.InDelta(t, 0.2, cfg.Model.TestRatio, 1e-9)
	assert.Equal(t, "llama-3.3-70b-versatile", cfg.LLM.Model)
	assert.Equal(t, 15*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, ":8000", cfg.HTTP.Addr)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, time.Hour, cfg.Webhook.Cooldown)
	assert.Equal(t, 5*time.Second, cfg.Webhook.Timeout)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
model:
  trees: 25
  max_features: 200
llm:
  timeout: 3s
kafka:
  enabled: true
  group_id: triage
webhook:
  min_confidence: 0.9
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Model.Trees)
	assert.Equal(t, 200, cfg.Model.MaxFeatures)
	assert.Equal(t, 3*time.Second, cfg.LLM.Timeout)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, "triage", cfg.Kafka.GroupID)
	assert.InDelta(t, 0.9, cfg.Webhook.MinConfidence, 1e-9)
	// 未出现在文件中的键仍使用默认值
	assert.Equal(t, "threatnet.requests", cfg.Kafka.Topic)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("THREATNET_HTTP_ADDR", ":9999")
	t.Setenv("THREATNET_LLM_API_KEY", "from-env")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.HTTP.Addr)
	assert.Equal(t, "from-env", cfg.LLM.APIKey)
}

func TestLoad_GroqKeyFallback(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("VITE_GROQ_API_KEY", "vite-key")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "vite-key", cfg.LLM.APIKey)
}

func TestLoad_Malformed(t *testing.T) {
	path := writeFile(t, "model: [unterminated\n")
	_, err := Load(path)
	assert.Error(t, err)
}
