// Package app wires configuration into backends, the orchestrator and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/yungbote/graphrag-gateway/internal/gateway/chain"
	"github.com/yungbote/graphrag-gateway/internal/gateway/config"
	"github.com/yungbote/graphrag-gateway/internal/gateway/cypher"
	"github.com/yungbote/graphrag-gateway/internal/gateway/graphschema"
	"github.com/yungbote/graphrag-gateway/internal/gateway/httpapi"
	"github.com/yungbote/graphrag-gateway/internal/gateway/orchestrator"
	"github.com/yungbote/graphrag-gateway/internal/gateway/ports"
	"github.com/yungbote/graphrag-gateway/internal/gateway/retrieval"
	"github.com/yungbote/graphrag-gateway/internal/gateway/router"
	"github.com/yungbote/graphrag-gateway/internal/observability"
	"github.com/yungbote/graphrag-gateway/internal/platform/apikeys"
	"github.com/yungbote/graphrag-gateway/internal/platform/embedcache"
	"github.com/yungbote/graphrag-gateway/internal/platform/envutil"
	"github.com/yungbote/graphrag-gateway/internal/platform/logger"
	"github.com/yungbote/graphrag-gateway/internal/platform/neo4jdb"
	"github.com/yungbote/graphrag-gateway/internal/platform/qdrant"
	"github.com/yungbote/graphrag-gateway/internal/platform/reranker"
	"github.com/yungbote/graphrag-gateway/internal/platform/shutdown"
)

type App struct {
	Log    *logger.Logger
	Config *config.Config

	server  *http.Server
	closers *shutdown.Stack
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Env, envutil.String("LOG_LEVEL", ""))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a, err := Build(ctx, cfg, log)
	if err != nil {
		log.Sync()
		return nil, err
	}
	return a, nil
}

// backends holds the optional adapters. Nil fields mean "not configured".
type backends struct {
	embedder ports.Embedder
	vectors  *qdrant.Store
	graph    *neo4jdb.Client
	rerank   *reranker.Client
	keyStore *apikeys.PGStore
}

// Build assembles the app from an already loaded config. Optional backends that fail to
// initialise are logged and left out; the matching routes then answer 503.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	closers := &shutdown.Stack{}
	closers.Push("otel", observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "graphrag-gateway",
		Environment: cfg.Env,
		Version:     cfg.Version,
	}))
	metrics := observability.NewMetrics()

	rt, err := router.New(cfg)
	if err != nil {
		return nil, err
	}
	b := openBackends(ctx, cfg, log, rt, closers)

	var merger *retrieval.Merger
	if b.vectors != nil {
		deps := retrieval.Deps{Embedder: b.embedder, Search: b.vectors, Log: log}
		if b.graph != nil {
			deps.Graph = b.graph
		}
		if b.rerank != nil {
			deps.Reranker = b.rerank
		}
		merger, err = retrieval.New(deps, retrieval.Defaults{
			Collection: cfg.Retrieval.Collection,
			TopK:       cfg.Retrieval.TopK,
			MaxTopK:    cfg.Retrieval.MaxTopK,
			MaxHops:    cfg.Retrieval.MaxHops,
			HopLimit:   cfg.Retrieval.HopLimit,
			MaxSeeds:   cfg.Retrieval.MaxSeeds,
		})
		if err != nil {
			return nil, err
		}
	}

	deps := orchestrator.Deps{
		Providers:  rt,
		Completion: rt,
		Driver:     chain.New(log, metrics),
		Merger:     merger,
		Gate:       cypher.New(cfg.Cypher.DenyList),
		Embedder:   b.embedder,
		Recorder:   metrics,
		Log:        log,
	}
	if b.graph != nil {
		deps.Reader, deps.Writer, deps.Graph = b.graph, b.graph, b.graph
	}
	if b.vectors != nil {
		deps.Indexer, deps.Search, deps.Vectors = b.vectors, b.vectors, b.vectors
	}
	orch, err := orchestrator.New(orchestrator.Config{
		Policy: graphschema.Policy{
			MinNodes:   cfg.Extraction.MinNodes,
			MinEdges:   cfg.Extraction.MinEdges,
			AllowEmpty: cfg.Extraction.AllowEmpty,
		},
		MaxAttempts:      cfg.Extraction.MaxAttempts,
		Parallelism:      cfg.Extraction.Parallelism,
		RateLimitBackoff: cfg.Extraction.RateLimitBackoff.Duration,
		Temperature:      cfg.Extraction.Temperature,
		MaxContextChars:  cfg.Extraction.MaxContextChars,
		Collection:       cfg.Retrieval.Collection,
	}, deps)
	if err != nil {
		return nil, err
	}

	var store apikeys.TenantStore
	if b.keyStore != nil {
		store = b.keyStore
	}
	verifier := apikeys.NewVerifier(cfg.Auth.LegacyKeys, store)
	if !verifier.Enabled() && !cfg.Auth.Disabled {
		log.Warn("no API keys configured; protected routes will refuse every request")
	}

	srv := httpapi.NewServer(httpapi.Deps{
		Config:  cfg,
		Log:     log,
		Gateway: orch,
		Auth:    verifier,
		Metrics: metrics,
	})

	log.Info("gateway configured",
		"addr", cfg.HTTP.Addr,
		"chain", cfg.Extraction.Chain,
		"qdrant", b.vectors != nil,
		"neo4j", b.graph != nil,
		"reranker", b.rerank != nil,
		"tenant_keys", b.keyStore != nil)
	return &App{Log: log, Config: cfg, server: srv, closers: closers}, nil
}

func openBackends(ctx context.Context, cfg *config.Config, log *logger.Logger, rt *router.Router, closers *shutdown.Stack) backends {
	b := backends{embedder: rt}

	if cfg.Redis.Addr != "" {
		cache, err := embedcache.New(ctx, log, rt, embedcache.Options{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Namespace: cfg.Embedding.Model,
			TTL:       cfg.Embedding.CacheTTL.Duration,
		})
		if err != nil {
			log.Warn("embedding cache disabled", "error", err)
		} else {
			b.embedder = cache
			closers.Push("redis", func(context.Context) error { return cache.Close() })
		}
	}

	if cfg.Qdrant.URL != "" {
		store, err := qdrant.New(log, qdrant.Config{
			URL:      cfg.Qdrant.URL,
			APIKey:   cfg.Qdrant.APIKey,
			Timeout:  cfg.Qdrant.Timeout.Duration,
			Distance: cfg.Qdrant.Distance,
		})
		if err != nil {
			log.Warn("qdrant disabled", "error", err)
		} else {
			b.vectors = store
		}
	}

	if cfg.Neo4j.URI != "" {
		client, err := neo4jdb.New(ctx, log, neo4jdb.Config{
			URI:      cfg.Neo4j.URI,
			User:     cfg.Neo4j.User,
			Password: cfg.Neo4j.Password,
			Database: cfg.Neo4j.Database,
			Timeout:  cfg.Neo4j.Timeout.Duration,
		})
		if err != nil {
			log.Warn("neo4j disabled", "error", err)
		} else if client != nil {
			b.graph = client
			closers.Push("neo4j", client.Close)
		}
	}

	if cfg.Reranker.URL != "" {
		rr, err := reranker.New(cfg.Reranker.URL, cfg.Reranker.Timeout.Duration)
		if err != nil {
			log.Warn("reranker disabled", "error", err)
		} else {
			b.rerank = rr
		}
	}

	if cfg.Auth.DatabaseURL != "" {
		ks, err := apikeys.NewPGStore(ctx, log, cfg.Auth.DatabaseURL)
		if err != nil {
			log.Warn("tenant key store disabled; only legacy keys accepted", "error", err)
		} else {
			b.keyStore = ks
			closers.Push("postgres", func(context.Context) error { ks.Close(); return nil })
		}
	}
	return b
}

func (a *App) Handler() http.Handler { return a.server.Handler }

// Run serves until ctx is cancelled or the listener fails, then drains in-flight requests
// and closes backends.
func (a *App) Run(ctx context.Context) error {
	defer a.Log.Sync()

	errCh := make(chan error, 1)
	go func() {
		a.Log.Info("http server listening", "addr", a.server.Addr)
		errCh <- a.server.ListenAndServe()
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.Log.Info("shutdown requested")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.HTTP.ShutdownTimeout.Duration)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.Log.Warn("http shutdown incomplete", "error", err)
	}
	if err := a.closers.Close(shutdownCtx); err != nil {
		a.Log.Warn("backend close failed", "error", err)
	}
	return runErr
}
