// Package router maps public provider ids onto upstream engines and model names.
package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/graphrag-gateway/internal/gateway/chain"
	"github.com/yungbote/graphrag-gateway/internal/gateway/config"
	"github.com/yungbote/graphrag-gateway/internal/gateway/engine"
	"github.com/yungbote/graphrag-gateway/internal/gateway/engine/litellm"
	"github.com/yungbote/graphrag-gateway/internal/gateway/engine/mock"
	"github.com/yungbote/graphrag-gateway/internal/gateway/ports"
)

type Route struct {
	Descriptor    chain.ProviderDescriptor
	UpstreamModel string
	Engine        engine.Engine
}

type Router struct {
	routes         map[string]Route
	chain          []string
	shared         engine.Engine
	embeddingModel string
	allowUnlisted  bool
}

// New builds a router from config. Engines are constructed eagerly so a bad engine
// block fails startup rather than the first request.
func New(cfg *config.Config) (*Router, error) {
	shared, err := newEngine(cfg.LiteLLM)
	if err != nil {
		return nil, fmt.Errorf("litellm engine: %w", err)
	}
	r := &Router{
		routes:         map[string]Route{},
		chain:          append([]string(nil), cfg.Extraction.Chain...),
		shared:         shared,
		embeddingModel: cfg.Embedding.Model,
		allowUnlisted:  cfg.AllowUnlistedProviders,
	}
	for _, p := range cfg.Providers {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return nil, fmt.Errorf("provider id required")
		}
		if _, exists := r.routes[id]; exists {
			return nil, fmt.Errorf("duplicate provider id: %s", id)
		}

		eng := shared
		if p.Engine != nil {
			e, err := newEngine(*p.Engine)
			if err != nil {
				return nil, fmt.Errorf("provider %s: %w", id, err)
			}
			eng = e
		}

		upstream := strings.TrimSpace(p.UpstreamModel)
		if upstream == "" {
			upstream = id
		}
		strict := p.StrictJSON == nil || *p.StrictJSON

		r.routes[id] = Route{
			Descriptor: chain.ProviderDescriptor{
				ID:                 id,
				Kind:               chain.ProviderKind(p.Kind),
				SupportsStrictJSON: strict,
			},
			UpstreamModel: upstream,
			Engine:        eng,
		}
	}
	for _, id := range r.chain {
		if _, ok := r.routes[id]; !ok {
			return nil, fmt.Errorf("chain references unknown provider %q", id)
		}
	}
	return r, nil
}

// NewWithRoutes is intended for tests and embedding the gateway in another process.
func NewWithRoutes(shared engine.Engine, routes []Route, chainIDs []string) *Router {
	r := &Router{routes: map[string]Route{}, chain: chainIDs, shared: shared, embeddingModel: "local-embed"}
	for _, rt := range routes {
		r.routes[rt.Descriptor.ID] = rt
	}
	return r
}

func newEngine(cfg config.EngineConfig) (engine.Engine, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "mock":
		return mock.New(), nil
	case "", "litellm", "openai", "oai_http":
		return litellm.New(cfg)
	default:
		return nil, fmt.Errorf("unsupported engine type %q", cfg.Type)
	}
}

func (r *Router) ListProviders() []string {
	out := make([]string, 0, len(r.routes))
	for id := range r.routes {
		out = append(out, id)
	}
	return out
}

func (r *Router) RouteFor(provider string) (Route, bool) {
	id := strings.TrimSpace(provider)
	route, ok := r.routes[id]
	if ok {
		return route, true
	}
	if r.allowUnlisted && id != "" && r.shared != nil {
		return Route{
			Descriptor:    chain.ProviderDescriptor{ID: id, Kind: chain.KindExtraction, SupportsStrictJSON: true},
			UpstreamModel: id,
			Engine:        r.shared,
		}, true
	}
	return Route{}, false
}

func (r *Router) DefaultChain() []chain.ProviderDescriptor {
	out := make([]chain.ProviderDescriptor, 0, len(r.chain))
	for _, id := range r.chain {
		if rt, ok := r.routes[id]; ok {
			out = append(out, rt.Descriptor)
		}
	}
	return out
}

// Resolve turns a request-level chain override into descriptors, preserving order.
func (r *Router) Resolve(ids []string) ([]chain.ProviderDescriptor, error) {
	out := make([]chain.ProviderDescriptor, 0, len(ids))
	for _, id := range ids {
		rt, ok := r.RouteFor(id)
		if !ok {
			return nil, fmt.Errorf("unknown provider %q", id)
		}
		out = append(out, rt.Descriptor)
	}
	return out, nil
}

// Complete implements ports.Completion.
func (r *Router) Complete(ctx context.Context, req ports.CompletionRequest) (string, error) {
	rt, ok := r.RouteFor(req.Provider)
	if !ok {
		return "", fmt.Errorf("unknown provider %q", req.Provider)
	}
	return rt.Engine.GenerateText(ctx, rt.UpstreamModel, req.Messages, engine.GenerateOptions{
		Temperature: req.Temperature,
		ForceJSON:   req.ForceJSON,
	})
}

// Embed implements ports.Embedder against the shared engine.
func (r *Router) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if r.shared == nil {
		return nil, fmt.Errorf("no embedding engine configured")
	}
	return r.shared.Embed(ctx, r.embeddingModel, texts)
}
