package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GATEWAY_CONFIG_PATH", "")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultProviderChain, cfg.Extraction.Chain)
	assert.Equal(t, 1, cfg.Extraction.MinNodes)
	assert.Equal(t, 1, cfg.Extraction.MinEdges)
	assert.Equal(t, 2, cfg.Extraction.MaxAttempts)
	assert.Equal(t, 300*time.Millisecond, cfg.Extraction.RateLimitBackoff.Duration)
	assert.Equal(t, "local-embed", cfg.Embedding.Model)
	assert.Equal(t, 1, cfg.Retrieval.MaxHops)
	assert.Equal(t, 3, cfg.Retrieval.HopLimit)
	require.Len(t, cfg.Providers, 3)
	assert.False(t, *cfg.Providers[2].StrictJSON, "gemini entrypoint has no JSON mode")
}

func TestLoadYAMLFile(t *testing.T) {
	p := writeConfig(t, `
env: production
http:
  addr: ":9090"
  shutdown_timeout: 3s
litellm:
  base_url: http://proxy:4000/v1/
providers:
  - id: fast
  - id: careful
    strict_json: false
    upstream_model: careful-v2
extraction:
  min_nodes: 2
  parallelism: 2
  rate_limit_backoff: 50ms
retrieval:
  top_k: 8
  max_hops: 4
  hop_limit: 2
`)
	t.Setenv("GATEWAY_CONFIG_PATH", p)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 3*time.Second, cfg.HTTP.ShutdownTimeout.Duration)
	assert.Equal(t, "http://proxy:4000/v1", cfg.LiteLLM.BaseURL)
	assert.Equal(t, 2, cfg.Extraction.MinNodes)
	assert.Equal(t, 2, cfg.Extraction.Parallelism)
	assert.Equal(t, 50*time.Millisecond, cfg.Extraction.RateLimitBackoff.Duration)
	assert.Equal(t, 8, cfg.Retrieval.TopK)
	assert.Equal(t, 2, cfg.Retrieval.HopLimit)
	assert.Equal(t, 2, cfg.Retrieval.MaxHops, "max_hops is clamped to hop_limit")
	// Without an explicit chain the providers list order is the chain.
	assert.Equal(t, []string{"fast", "careful"}, cfg.Extraction.Chain)
	require.Len(t, cfg.Providers, 2)
	assert.Equal(t, "careful-v2", cfg.Providers[1].UpstreamModel)
	assert.False(t, *cfg.Providers[1].StrictJSON)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GATEWAY_CONFIG_PATH", "")
	t.Setenv("GRAPH_PROVIDER_CHAIN", "a, b ,,c")
	t.Setenv("GRAPH_MIN_NODES", "4")
	t.Setenv("GRAPH_ALLOW_EMPTY", "true")
	t.Setenv("GRAPH_PARALLELISM", "3")
	t.Setenv("API_GATEWAY_KEYS", "k1,k2")
	t.Setenv("NEO4J_URI", "bolt://neo4j:7687")
	t.Setenv("GATEWAY_HTTP_ADDR", ":7000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, cfg.Extraction.Chain)
	assert.Equal(t, 4, cfg.Extraction.MinNodes)
	assert.True(t, cfg.Extraction.AllowEmpty)
	assert.Equal(t, 3, cfg.Extraction.Parallelism)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Auth.LegacyKeys)
	assert.Equal(t, "bolt://neo4j:7687", cfg.Neo4j.URI)
	assert.Equal(t, ":7000", cfg.HTTP.Addr)

	ids := map[string]bool{}
	for _, p := range cfg.Providers {
		ids[p.ID] = true
	}
	for _, id := range []string{"a", "b", "c"} {
		assert.True(t, ids[id], "chain id %s should get a provider entry", id)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("GATEWAY_CONFIG_PATH", "")
	t.Setenv("GRAPH_MIN_EDGES", "many")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsDuplicateProviders(t *testing.T) {
	p := writeConfig(t, `
providers:
  - id: x
  - id: x
`)
	t.Setenv("GATEWAY_CONFIG_PATH", p)
	_, err := Load()
	assert.ErrorContains(t, err, "duplicate provider id")
}

func TestDurationJSON(t *testing.T) {
	var v struct {
		A Duration `json:"a"`
		B Duration `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"1.5s","b":1000}`), &v))
	assert.Equal(t, 1500*time.Millisecond, v.A.Duration)
	assert.Equal(t, time.Microsecond, v.B.Duration)

	b, err := json.Marshal(v.A)
	require.NoError(t, err)
	assert.Equal(t, `"1.5s"`, string(b))
}
