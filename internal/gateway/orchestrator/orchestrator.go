// Package orchestrator is the façade the HTTP layer calls: extraction through the provider
// chain, hybrid retrieval, gated Cypher reads, graph and chunk upserts, and provider probes. It holds
// no state between calls beyond its injected, immutable configuration.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/graphrag-gateway/internal/gateway/chain"
	"github.com/yungbote/graphrag-gateway/internal/gateway/cypher"
	"github.com/yungbote/graphrag-gateway/internal/gateway/graphschema"
	"github.com/yungbote/graphrag-gateway/internal/gateway/ports"
	"github.com/yungbote/graphrag-gateway/internal/gateway/retrieval"
	"github.com/yungbote/graphrag-gateway/internal/platform/ctxutil"
	"github.com/yungbote/graphrag-gateway/internal/platform/logger"
)

var ErrInvalidArgument = errors.New("invalid argument")

// Providers resolves provider ids to descriptors.
type Providers interface {
	DefaultChain() []chain.ProviderDescriptor
	Resolve(ids []string) ([]chain.ProviderDescriptor, error)
}

// Retrieve outcomes reported to the Recorder.
const (
	RetrieveOK       = "ok"
	RetrieveDegraded = "degraded"
	RetrieveError    = "error"
)

// Recorder receives per-operation outcomes for metrics.
type Recorder interface {
	ExtractDone(provider string, ok bool, attempts int, elapsed time.Duration)
	RetrieveDone(outcome string, elapsed time.Duration)
	QueryRejected(keyword string)
}

type nopRecorder struct{}

func (nopRecorder) ExtractDone(string, bool, int, time.Duration) {}
func (nopRecorder) RetrieveDone(string, time.Duration)           {}
func (nopRecorder) QueryRejected(string)                         {}

type Config struct {
	Policy           graphschema.Policy
	MaxAttempts      int
	Parallelism      int
	RateLimitBackoff time.Duration
	Temperature      float64
	MaxContextChars  int
	Collection       string
}

type Deps struct {
	Providers  Providers
	Completion ports.Completion
	Driver     *chain.Driver
	Merger     *retrieval.Merger
	Gate       *cypher.Gate
	Reader     ports.GraphReader
	Writer     ports.GraphWriter
	Graph      ports.GraphDeleter
	Embedder   ports.Embedder
	Indexer    ports.VectorIndexer
	Search     ports.VectorSearcher
	Vectors    ports.VectorDeleter
	Recorder   Recorder
	Log        *logger.Logger
}

type Orchestrator struct {
	cfg        Config
	providers  Providers
	completion ports.Completion
	driver     *chain.Driver
	merger     *retrieval.Merger
	gate       *cypher.Gate
	reader     ports.GraphReader
	writer     ports.GraphWriter
	graphDel   ports.GraphDeleter
	embedder   ports.Embedder
	indexer    ports.VectorIndexer
	search     ports.VectorSearcher
	vectorDel  ports.VectorDeleter
	rec        Recorder
	log        *logger.Logger
	tracer     trace.Tracer
}

func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Providers == nil || deps.Completion == nil {
		return nil, fmt.Errorf("orchestrator: providers and completion are required")
	}
	log := deps.Log
	if log == nil {
		log = logger.NewNop()
	}
	driver := deps.Driver
	if driver == nil {
		driver = chain.New(log, nil)
	}
	gate := deps.Gate
	if gate == nil {
		gate = cypher.New(nil)
	}
	rec := deps.Recorder
	if rec == nil {
		rec = nopRecorder{}
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = chain.DefaultMaxAttempts
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	return &Orchestrator{
		cfg:        cfg,
		providers:  deps.Providers,
		completion: deps.Completion,
		driver:     driver,
		merger:     deps.Merger,
		gate:       gate,
		reader:     deps.Reader,
		writer:     deps.Writer,
		graphDel:   deps.Graph,
		embedder:   deps.Embedder,
		indexer:    deps.Indexer,
		search:     deps.Search,
		vectorDel:  deps.Vectors,
		rec:        rec,
		log:        log,
		tracer:     otel.Tracer("github.com/yungbote/graphrag-gateway/orchestrator"),
	}, nil
}

// tenantOf resolves the calling tenant; every read and write is scoped to it.
func tenantOf(ctx context.Context) string {
	return ports.TenantOrDefault(ctxutil.TenantID(ctx))
}

// collectionFor resolves the caller's logical collection name and the tenant's physical one.
func (o *Orchestrator) collectionFor(ctx context.Context, requested string) (string, string) {
	base := strings.TrimSpace(requested)
	if base == "" {
		base = o.cfg.Collection
	}
	if base == "" {
		base = "chunks"
	}
	return base, ports.TenantCollection(base, tenantOf(ctx))
}

// Defaults reports the process-wide extraction settings, for /whoami.
func (o *Orchestrator) Defaults() (graphschema.Policy, int, int) {
	return o.cfg.Policy, o.cfg.MaxAttempts, o.cfg.Parallelism
}

func (o *Orchestrator) DefaultChain() []chain.ProviderDescriptor {
	return o.providers.DefaultChain()
}
