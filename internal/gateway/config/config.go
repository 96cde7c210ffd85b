package config

import "time"

type Duration struct {
	Duration time.Duration
}

type HTTPConfig struct {
	Addr              string   `yaml:"addr" json:"addr"`
	ReadHeaderTimeout Duration `yaml:"read_header_timeout" json:"read_header_timeout"`
	IdleTimeout       Duration `yaml:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout   Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	MaxRequestBytes   int64    `yaml:"max_request_bytes" json:"max_request_bytes"`

	// CORSOrigins lists allowed browser origins; empty disables the CORS middleware.
	CORSOrigins []string `yaml:"cors_origins,omitempty" json:"cors_origins,omitempty"`
}

type EngineConfig struct {
	// Type is "litellm" (any OpenAI-compatible proxy) or "mock".
	Type    string   `yaml:"type" json:"type"`
	BaseURL string   `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	APIKey  string   `yaml:"api_key,omitempty" json:"-"`
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

type ProviderConfig struct {
	ID string `yaml:"id" json:"id"`

	// UpstreamModel overrides the model name sent to the engine. Defaults to ID.
	UpstreamModel string `yaml:"upstream_model,omitempty" json:"upstream_model,omitempty"`

	Kind string `yaml:"kind,omitempty" json:"kind,omitempty"`

	// StrictJSON marks providers that accept response_format=json_object. Defaults to true.
	StrictJSON *bool `yaml:"strict_json,omitempty" json:"strict_json,omitempty"`

	// Engine overrides the shared LiteLLM engine for this provider only.
	Engine *EngineConfig `yaml:"engine,omitempty" json:"engine,omitempty"`
}

type ExtractionConfig struct {
	// Chain is the default provider order. Empty means the order of Providers.
	Chain            []string `yaml:"chain" json:"chain"`
	MinNodes         int      `yaml:"min_nodes" json:"min_nodes"`
	MinEdges         int      `yaml:"min_edges" json:"min_edges"`
	AllowEmpty       bool     `yaml:"allow_empty" json:"allow_empty"`
	MaxAttempts      int      `yaml:"max_attempts" json:"max_attempts"`
	Parallelism      int      `yaml:"parallelism" json:"parallelism"`
	RateLimitBackoff Duration `yaml:"rate_limit_backoff" json:"rate_limit_backoff"`
	Temperature      float64  `yaml:"temperature" json:"temperature"`
	MaxContextChars  int      `yaml:"max_context_chars" json:"max_context_chars"`
}

type EmbeddingConfig struct {
	Model    string   `yaml:"model" json:"model"`
	CacheTTL Duration `yaml:"cache_ttl" json:"cache_ttl"`
}

type RetrievalConfig struct {
	Collection string `yaml:"collection" json:"collection"`
	TopK       int    `yaml:"top_k" json:"top_k"`
	MaxTopK    int    `yaml:"max_top_k" json:"max_top_k"`
	MaxHops    int    `yaml:"max_hops" json:"max_hops"`
	// HopLimit caps a request's max_hops. The graph store clamps again at 5.
	HopLimit int `yaml:"hop_limit" json:"hop_limit"`
	MaxSeeds int `yaml:"max_seeds" json:"max_seeds"`
}

type QdrantConfig struct {
	URL     string   `yaml:"url" json:"url"`
	APIKey  string   `yaml:"api_key,omitempty" json:"-"`
	Timeout Duration `yaml:"timeout" json:"timeout"`
	// Distance applies to collections created on first index: Cosine, Dot, Euclid or Manhattan.
	Distance string `yaml:"distance,omitempty" json:"distance,omitempty"`
}

type Neo4jConfig struct {
	URI      string   `yaml:"uri" json:"uri"`
	User     string   `yaml:"user" json:"user"`
	Password string   `yaml:"password,omitempty" json:"-"`
	Database string   `yaml:"database,omitempty" json:"database,omitempty"`
	Timeout  Duration `yaml:"timeout" json:"timeout"`
}

type RerankerConfig struct {
	URL     string   `yaml:"url" json:"url"`
	Timeout Duration `yaml:"timeout" json:"timeout"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password,omitempty" json:"-"`
	DB       int    `yaml:"db" json:"db"`
}

type AuthConfig struct {
	// LegacyKeys are accepted as tenant "default".
	LegacyKeys  []string `yaml:"legacy_keys,omitempty" json:"-"`
	DatabaseURL string   `yaml:"database_url,omitempty" json:"-"`
	Disabled    bool     `yaml:"disabled" json:"disabled"`
}

type CypherConfig struct {
	DenyList []string `yaml:"deny_list,omitempty" json:"deny_list,omitempty"`
}

type Config struct {
	Env     string `yaml:"env" json:"env"`
	Version string `yaml:"version" json:"version"`

	HTTP HTTPConfig `yaml:"http" json:"http"`

	LiteLLM                EngineConfig     `yaml:"litellm" json:"litellm"`
	Providers              []ProviderConfig `yaml:"providers" json:"providers"`
	AllowUnlistedProviders bool             `yaml:"allow_unlisted_providers" json:"allow_unlisted_providers"`

	Extraction ExtractionConfig `yaml:"extraction" json:"extraction"`
	Embedding  EmbeddingConfig  `yaml:"embedding" json:"embedding"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" json:"retrieval"`

	Qdrant   QdrantConfig   `yaml:"qdrant" json:"qdrant"`
	Neo4j    Neo4jConfig    `yaml:"neo4j" json:"neo4j"`
	Reranker RerankerConfig `yaml:"reranker" json:"reranker"`
	Redis    RedisConfig    `yaml:"redis" json:"redis"`

	Auth   AuthConfig   `yaml:"auth" json:"auth"`
	Cypher CypherConfig `yaml:"cypher" json:"cypher"`
}
