// Package httpapi is the gateway's HTTP surface. Handlers decode requests, call the
// orchestrator and map its typed errors onto status codes in one place.
package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yungbote/graphrag-gateway/internal/gateway/chain"
	"github.com/yungbote/graphrag-gateway/internal/gateway/config"
	"github.com/yungbote/graphrag-gateway/internal/gateway/graphschema"
	"github.com/yungbote/graphrag-gateway/internal/gateway/orchestrator"
	"github.com/yungbote/graphrag-gateway/internal/gateway/ports"
	"github.com/yungbote/graphrag-gateway/internal/observability"
	"github.com/yungbote/graphrag-gateway/internal/platform/apikeys"
	"github.com/yungbote/graphrag-gateway/internal/platform/logger"
)

// Gateway is the orchestrator surface the handlers need.
type Gateway interface {
	Extract(ctx context.Context, req orchestrator.ExtractRequest) (orchestrator.ExtractResult, error)
	Retrieve(ctx context.Context, req orchestrator.RetrieveRequest) (orchestrator.RetrieveResult, error)
	Query(ctx context.Context, req orchestrator.CypherRequest) ([]map[string]any, error)
	Upsert(ctx context.Context, p *graphschema.Payload) (ports.WriteAck, error)
	Probe(ctx context.Context, req orchestrator.ProbeRequest) (orchestrator.ProbeResult, error)
	Index(ctx context.Context, req orchestrator.IndexRequest) (orchestrator.IndexResult, error)
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Search(ctx context.Context, req orchestrator.SearchRequest) ([]ports.Hit, error)
	DeleteVectors(ctx context.Context, collection, docID string) (int, error)
	DeleteGraph(ctx context.Context, docID string) (int, error)
	DefaultChain() []chain.ProviderDescriptor
	Defaults() (graphschema.Policy, int, int)
}

type Authenticator interface {
	Enabled() bool
	Verify(ctx context.Context, token string) (apikeys.Identity, error)
}

type Deps struct {
	Config  *config.Config
	Log     *logger.Logger
	Gateway Gateway
	Auth    Authenticator
	Metrics *observability.Metrics
}

func NewServer(d Deps) *http.Server {
	return &http.Server{
		Addr:              d.Config.HTTP.Addr,
		Handler:           NewHandler(d),
		ReadHeaderTimeout: d.Config.HTTP.ReadHeaderTimeout.Duration,
		IdleTimeout:       d.Config.HTTP.IdleTimeout.Duration,
		// Extraction can outlive any fixed write deadline.
		WriteTimeout: 0,
	}
}

func NewHandler(d Deps) *gin.Engine {
	log := d.Log
	if log == nil {
		log = logger.NewNop()
	}
	log = log.With("component", "httpapi")
	h := &handlers{cfg: d.Config, log: log, gw: d.Gateway}

	r := gin.New()
	r.Use(recoverMiddleware(log))
	r.Use(otelgin.Middleware("graphrag-gateway"))
	r.Use(requestContext())
	r.Use(accessLog(log))
	r.Use(metricsMiddleware(d.Metrics))
	if origins := d.Config.HTTP.CORSOrigins; len(origins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  origins,
			AllowMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:  []string{"Authorization", "Content-Type", "X-API-Key", headerRequestID},
			ExposeHeaders: []string{headerRequestID, headerTraceID},
		}))
	}

	r.GET("/health", h.health)
	r.GET("/version", h.version)
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	protected := r.Group("/")
	protected.Use(requireKey(log, d.Auth, d.Config.Auth.Disabled, d.Metrics))
	{
		protected.GET("/whoami", h.whoami)

		protected.POST("/graph/extract", h.extract)
		protected.POST("/graph/query", h.query)
		protected.POST("/graph/upsert", h.upsert)
		protected.POST("/graph/probe", h.probe)

		protected.POST("/retrieve", h.retrieve)
		protected.POST("/search", h.search)
		protected.POST("/index/chunks", h.indexChunks)
		protected.POST("/embed", h.embed)

		protected.POST("/delete/vector", h.deleteVector)
		protected.POST("/delete/graph", h.deleteGraph)
	}
	return r
}

type handlers struct {
	cfg *config.Config
	log *logger.Logger
	gw  Gateway
}
