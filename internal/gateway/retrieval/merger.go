// Package retrieval merges vector search with graph-neighborhood expansion. Vector hits
// stay the ranked list; the subgraph rides along as auxiliary evidence.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/graphrag-gateway/internal/gateway/ports"
	"github.com/yungbote/graphrag-gateway/internal/platform/logger"
)

var ErrInvalidRequest = errors.New("invalid retrieval request")

type Request struct {
	Query           string
	TopK            int
	IncludeSubgraph bool
	MaxHops         int
	Collection      string
	Filters         map[string]any
	Rerank          bool
	// Tenant scopes both the vector collection and the graph expansion. Empty means the
	// default tenant.
	Tenant string
}

type Response struct {
	Hits      []ports.Hit
	Subgraph  *ports.Subgraph
	Degraded  bool
	Reranked  bool
	Seeds     []string
	QueryTime time.Duration
}

type Defaults struct {
	Collection string
	TopK       int
	MaxTopK    int
	MaxHops    int
	// HopLimit caps any requested max_hops before it reaches the graph backend.
	HopLimit int
	MaxSeeds int
}

func (d Defaults) withFallbacks() Defaults {
	if d.Collection == "" {
		d.Collection = "chunks"
	}
	if d.TopK <= 0 {
		d.TopK = 5
	}
	if d.MaxTopK <= 0 {
		d.MaxTopK = 100
	}
	if d.HopLimit <= 0 {
		d.HopLimit = 3
	}
	if d.MaxHops <= 0 {
		d.MaxHops = 1
	}
	if d.MaxHops > d.HopLimit {
		d.MaxHops = d.HopLimit
	}
	if d.MaxSeeds <= 0 {
		d.MaxSeeds = 3
	}
	return d
}

// Deps are the ports the merger reads from. Graph and Reranker may be nil.
type Deps struct {
	Embedder ports.Embedder
	Search   ports.VectorSearcher
	Graph    ports.GraphNeighborhood
	Reranker ports.Reranker
	Log      *logger.Logger
}

type Merger struct {
	embedder ports.Embedder
	search   ports.VectorSearcher
	graph    ports.GraphNeighborhood
	reranker ports.Reranker
	log      *logger.Logger
	defaults Defaults
}

func New(deps Deps, defaults Defaults) (*Merger, error) {
	if deps.Embedder == nil || deps.Search == nil {
		return nil, fmt.Errorf("retrieval: embedder and vector search are required")
	}
	log := deps.Log
	if log == nil {
		log = logger.NewNop()
	}
	return &Merger{
		embedder: deps.Embedder,
		search:   deps.Search,
		graph:    deps.Graph,
		reranker: deps.Reranker,
		log:      log,
		defaults: defaults.withFallbacks(),
	}, nil
}

// Retrieve runs the vector task and, when a subgraph is requested, the graph task. Both are
// awaited before anything is assembled. Only a vector failure is an error; a graph failure
// yields Degraded=true with a nil Subgraph.
func (m *Merger) Retrieve(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	req, err := m.normalize(req)
	if err != nil {
		return Response{}, err
	}

	seeds := KeywordSeeds(req.Query, m.defaults.MaxSeeds)
	runGraph := req.IncludeSubgraph && m.graph != nil && len(seeds) > 0

	var (
		hits     []ports.Hit
		vecErr   error
		sub      *ports.Subgraph
		graphErr error
	)

	// Plain Group: neither task's failure cancels the other.
	var g errgroup.Group
	g.Go(func() error {
		hits, vecErr = m.vectorSearch(ctx, req)
		return nil
	})
	if runGraph {
		g.Go(func() error {
			sub, graphErr = m.graph.Neighborhood(ctx, req.Tenant, seeds, req.MaxHops)
			return nil
		})
	}
	_ = g.Wait()

	if vecErr != nil {
		return Response{QueryTime: time.Since(start)}, fmt.Errorf("retrieval: vector search: %w", vecErr)
	}

	resp := Response{Hits: cite(hits), Seeds: seeds}
	if req.IncludeSubgraph {
		switch {
		case m.graph == nil:
			resp.Degraded = true
			m.log.Warn("subgraph requested but no graph backend configured")
		case graphErr != nil:
			resp.Degraded = true
			m.log.Warn("graph expansion failed, returning vector-only hits",
				"error_kind", ports.KindOf(graphErr), "error", graphErr, "seeds", len(seeds))
		case sub == nil:
			resp.Subgraph = &ports.Subgraph{Nodes: []ports.SubgraphNode{}, Edges: []ports.SubgraphEdge{}}
		default:
			resp.Subgraph = sub
		}
	}

	if req.Rerank {
		resp.Hits, resp.Reranked = m.rerank(ctx, req.Query, resp.Hits)
	}

	resp.QueryTime = time.Since(start)
	return resp, nil
}

func (m *Merger) normalize(req Request) (Request, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return req, fmt.Errorf("%w: query is required", ErrInvalidRequest)
	}
	if req.TopK < 0 || req.MaxHops < 0 {
		return req, fmt.Errorf("%w: top_k and max_hops must be non-negative", ErrInvalidRequest)
	}
	if req.TopK == 0 {
		req.TopK = m.defaults.TopK
	}
	if req.TopK > m.defaults.MaxTopK {
		req.TopK = m.defaults.MaxTopK
	}
	if req.MaxHops == 0 {
		req.MaxHops = m.defaults.MaxHops
	}
	if req.MaxHops > m.defaults.HopLimit {
		req.MaxHops = m.defaults.HopLimit
	}
	req.Tenant = ports.TenantOrDefault(req.Tenant)
	base := strings.TrimSpace(req.Collection)
	if base == "" {
		base = m.defaults.Collection
	}
	req.Collection = ports.TenantCollection(base, req.Tenant)
	return req, nil
}

func (m *Merger) vectorSearch(ctx context.Context, req Request) ([]ports.Hit, error) {
	vecs, err := m.embedder.Embed(ctx, []string{req.Query})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, ports.NewBackendError("embedder", "embed", ports.KindMalformed, 0, errors.New("empty embedding"))
	}
	return m.search.Search(ctx, ports.VectorQuery{
		Collection: req.Collection,
		Vector:     vecs[0],
		TopK:       req.TopK,
		Filters:    req.Filters,
	})
}

// cite tags every hit with exactly one vector citation, keeping vector order.
func cite(hits []ports.Hit) []ports.Hit {
	out := make([]ports.Hit, len(hits))
	for i, h := range hits {
		ref := h.DocID
		if ref == "" {
			ref = h.ID
		}
		score := h.Score
		h.Citations = []ports.Citation{{Source: ports.SourceVector, RefID: ref, Score: &score}}
		if h.Metadata == nil {
			h.Metadata = map[string]any{}
		}
		out[i] = h
	}
	return out
}

func (m *Merger) rerank(ctx context.Context, query string, hits []ports.Hit) ([]ports.Hit, bool) {
	if m.reranker == nil || len(hits) < 2 {
		return hits, false
	}
	docs := make([]string, len(hits))
	for i, h := range hits {
		docs[i] = h.Text
	}
	results, err := m.reranker.Rerank(ctx, query, docs, len(hits))
	if err != nil {
		m.log.Warn("rerank failed, keeping vector order", "error_kind", ports.KindOf(err), "error", err)
		return hits, false
	}
	return applyRerank(hits, results), true
}

// applyRerank orders hits by the reranker's answer. Indexes it omitted keep their vector
// order after the reranked ones; out-of-range or repeated indexes are ignored.
func applyRerank(hits []ports.Hit, results []ports.RerankResult) []ports.Hit {
	out := make([]ports.Hit, 0, len(hits))
	used := make([]bool, len(hits))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(hits) || used[r.Index] {
			continue
		}
		used[r.Index] = true
		h := hits[r.Index]
		score := r.Score
		h.Rerank = &score
		out = append(out, h)
	}
	for i, h := range hits {
		if !used[i] {
			out = append(out, h)
		}
	}
	return out
}
