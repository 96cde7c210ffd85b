package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		d.Duration = 0
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		u, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		return d.parse(u)
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("duration must be a JSON string like \"5s\" or an int nanoseconds: %w", err)
	}
	d.Duration = time.Duration(n)
	return nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar, line %d", node.Line)
	}
	if node.Tag == "!!int" {
		n, err := strconv.ParseInt(node.Value, 10, 64)
		if err != nil {
			return err
		}
		d.Duration = time.Duration(n)
		return nil
	}
	return d.parse(node.Value)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

func (d *Duration) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" || s == "~" {
		d.Duration = 0
		return nil
	}
	dd, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dd
	return nil
}

var DefaultProviderChain = []string{"graph-extractor", "graph-extractor-o1mini", "graph-extractor-gemini"}

func boolPtr(b bool) *bool { return &b }

func defaultConfig() *Config {
	return &Config{
		Env:     "development",
		Version: "dev",
		HTTP: HTTPConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: Duration{Duration: 5 * time.Second},
			IdleTimeout:       Duration{Duration: 2 * time.Minute},
			ShutdownTimeout:   Duration{Duration: 15 * time.Second},
			MaxRequestBytes:   10 << 20,
		},
		LiteLLM: EngineConfig{
			Type:    "litellm",
			BaseURL: "http://litellm:4000/v1",
			Timeout: Duration{Duration: 60 * time.Second},
		},
		// Chain is left empty so it follows whatever providers list ends up loaded.
		Providers: []ProviderConfig{
			{ID: "graph-extractor", StrictJSON: boolPtr(true)},
			{ID: "graph-extractor-o1mini", StrictJSON: boolPtr(true)},
			{ID: "graph-extractor-gemini", StrictJSON: boolPtr(false)},
		},
		Extraction: ExtractionConfig{
			MinNodes:         1,
			MinEdges:         1,
			MaxAttempts:      2,
			Parallelism:      1,
			RateLimitBackoff: Duration{Duration: 300 * time.Millisecond},
			MaxContextChars:  200_000,
		},
		Embedding: EmbeddingConfig{
			Model:    "local-embed",
			CacheTTL: Duration{Duration: 24 * time.Hour},
		},
		Retrieval: RetrievalConfig{
			Collection: "chunks",
			TopK:       5,
			MaxTopK:    100,
			MaxHops:    1,
			HopLimit:   3,
			MaxSeeds:   3,
		},
		Qdrant:   QdrantConfig{Timeout: Duration{Duration: 10 * time.Second}},
		Neo4j:    Neo4jConfig{User: "neo4j", Timeout: Duration{Duration: 15 * time.Second}},
		Reranker: RerankerConfig{Timeout: Duration{Duration: 30 * time.Second}},
	}
}

// Load reads GATEWAY_CONFIG_PATH (or ./config/gateway.yaml when present) over the defaults,
// then applies environment overrides and validates the result.
func Load() (*Config, error) {
	cfg := defaultConfig()

	cfgPath := strings.TrimSpace(os.Getenv("GATEWAY_CONFIG_PATH"))
	if cfgPath == "" {
		if wd, err := os.Getwd(); err == nil {
			p := filepath.Join(wd, "config", "gateway.yaml")
			if _, err := os.Stat(p); err == nil {
				cfgPath = p
			}
		}
	}
	if cfgPath != "" {
		b, err := os.ReadFile(cfgPath)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", cfgPath, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("LOG_MODE", &cfg.Env)
	str("APP_VERSION", &cfg.Version)
	str("GATEWAY_HTTP_ADDR", &cfg.HTTP.Addr)
	str("LITELLM_BASE", &cfg.LiteLLM.BaseURL)
	str("LITELLM_KEY", &cfg.LiteLLM.APIKey)
	str("QDRANT_URL", &cfg.Qdrant.URL)
	str("QDRANT_API_KEY", &cfg.Qdrant.APIKey)
	str("NEO4J_URI", &cfg.Neo4j.URI)
	str("NEO4J_USER", &cfg.Neo4j.User)
	str("NEO4J_PASSWORD", &cfg.Neo4j.Password)
	str("RERANKER_URL", &cfg.Reranker.URL)
	str("REDIS_ADDR", &cfg.Redis.Addr)
	str("DATABASE_URL", &cfg.Auth.DatabaseURL)

	if v := strings.TrimSpace(os.Getenv("API_GATEWAY_KEYS")); v != "" {
		cfg.Auth.LegacyKeys = splitList(v)
	}
	if v := strings.TrimSpace(os.Getenv("GRAPH_PROVIDER_CHAIN")); v != "" {
		cfg.Extraction.Chain = splitList(v)
	}
	if v := strings.TrimSpace(os.Getenv("GRAPH_ALLOW_EMPTY")); v != "" {
		cfg.Extraction.AllowEmpty = parseBool(v)
	}
	for key, dst := range map[string]*int{
		"GRAPH_MIN_NODES":    &cfg.Extraction.MinNodes,
		"GRAPH_MIN_EDGES":    &cfg.Extraction.MinEdges,
		"GRAPH_MAX_ATTEMPTS": &cfg.Extraction.MaxAttempts,
		"GRAPH_PARALLELISM":  &cfg.Extraction.Parallelism,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	return nil
}

func (cfg *Config) normalize() error {
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	if strings.TrimSpace(cfg.HTTP.Addr) == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.MaxRequestBytes <= 0 {
		cfg.HTTP.MaxRequestBytes = 10 << 20
	}
	if cfg.HTTP.ShutdownTimeout.Duration <= 0 {
		cfg.HTTP.ShutdownTimeout = Duration{Duration: 15 * time.Second}
	}

	if err := normalizeEngine("litellm", &cfg.LiteLLM); err != nil {
		return err
	}

	seen := map[string]struct{}{}
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			return errors.New("provider id is required")
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("duplicate provider id: %s", p.ID)
		}
		seen[p.ID] = struct{}{}
		if strings.TrimSpace(p.UpstreamModel) == "" {
			p.UpstreamModel = p.ID
		}
		switch strings.ToLower(strings.TrimSpace(p.Kind)) {
		case "", "extraction":
			p.Kind = "extraction"
		case "completion":
			p.Kind = "completion"
		default:
			return fmt.Errorf("provider %q invalid kind %q", p.ID, p.Kind)
		}
		if p.StrictJSON == nil {
			p.StrictJSON = boolPtr(true)
		}
		if p.Engine != nil {
			if err := normalizeEngine("provider "+p.ID, p.Engine); err != nil {
				return err
			}
		}
	}

	// Chain ids without a provider entry get one with default settings, so an env-supplied
	// chain works without editing the providers list.
	if len(cfg.Extraction.Chain) == 0 {
		for _, p := range cfg.Providers {
			cfg.Extraction.Chain = append(cfg.Extraction.Chain, p.ID)
		}
	}
	if len(cfg.Extraction.Chain) == 0 {
		return errors.New("config must define at least one provider")
	}
	for _, id := range cfg.Extraction.Chain {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		cfg.Providers = append(cfg.Providers, ProviderConfig{ID: id, UpstreamModel: id, Kind: "extraction", StrictJSON: boolPtr(true)})
	}

	x := &cfg.Extraction
	if x.MinNodes < 0 || x.MinEdges < 0 {
		return errors.New("extraction.min_nodes and extraction.min_edges must be non-negative")
	}
	if x.MaxAttempts <= 0 {
		x.MaxAttempts = 2
	}
	if x.Parallelism <= 0 {
		x.Parallelism = 1
	}
	if x.RateLimitBackoff.Duration <= 0 {
		x.RateLimitBackoff = Duration{Duration: 300 * time.Millisecond}
	}

	if strings.TrimSpace(cfg.Embedding.Model) == "" {
		cfg.Embedding.Model = "local-embed"
	}
	r := &cfg.Retrieval
	if r.Collection == "" {
		r.Collection = "chunks"
	}
	if r.TopK <= 0 {
		r.TopK = 5
	}
	if r.MaxTopK < r.TopK {
		r.MaxTopK = max(r.TopK, 100)
	}
	if r.HopLimit <= 0 {
		r.HopLimit = 3
	}
	if r.MaxHops <= 0 {
		r.MaxHops = 1
	}
	if r.MaxHops > r.HopLimit {
		r.MaxHops = r.HopLimit
	}
	if r.MaxSeeds <= 0 {
		r.MaxSeeds = 3
	}

	cfg.Qdrant.URL = strings.TrimRight(strings.TrimSpace(cfg.Qdrant.URL), "/")
	cfg.Reranker.URL = strings.TrimRight(strings.TrimSpace(cfg.Reranker.URL), "/")
	return nil
}

func normalizeEngine(name string, e *EngineConfig) error {
	e.Type = strings.ToLower(strings.TrimSpace(e.Type))
	e.BaseURL = strings.TrimRight(strings.TrimSpace(e.BaseURL), "/")
	switch e.Type {
	case "", "litellm", "openai", "oai_http":
		e.Type = "litellm"
		if e.BaseURL == "" {
			return fmt.Errorf("%s engine missing base_url", name)
		}
	case "mock":
	default:
		return fmt.Errorf("%s engine: unsupported type %q", name, e.Type)
	}
	if e.Timeout.Duration <= 0 {
		e.Timeout = Duration{Duration: 60 * time.Second}
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "t", "true", "y", "yes", "on":
		return true
	default:
		return false
	}
}
