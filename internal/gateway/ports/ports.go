// Package ports declares the capability interfaces the orchestrator consumes. Concrete
// backends (LiteLLM, Qdrant, Neo4j, the reranker) satisfy them through adapters under
// internal/platform and internal/gateway/engine.
package ports

import "context"

type Message struct {
	Role    string
	Content string
}

type CompletionRequest struct {
	Provider    string
	Messages    []Message
	ForceJSON   bool
	Temperature float64
}

// Completion generates text (or JSON text) from a named upstream provider.
type Completion interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type VectorQuery struct {
	Collection string
	Vector     []float32
	TopK       int
	Filters    map[string]any
}

type VectorSearcher interface {
	Search(ctx context.Context, q VectorQuery) ([]Hit, error)
}

// VectorPoint is one chunk to index. An empty ID lets the adapter derive a stable one.
type VectorPoint struct {
	ID       string
	DocID    string
	TenantID string
	Text     string
	Vector   []float32
	Metadata map[string]any
}

type VectorIndexer interface {
	Upsert(ctx context.Context, collection string, points []VectorPoint) (int, error)
}

// VectorDeleter removes one document's points, or the whole collection when docID is empty.
// A missing collection deletes nothing and is not an error.
type VectorDeleter interface {
	Delete(ctx context.Context, collection, docID string) (int, error)
}

// GraphNeighborhood expands up to maxHops relationships around the tenant's nodes matching
// the seed keywords. Nodes of other tenants are never traversed.
type GraphNeighborhood interface {
	Neighborhood(ctx context.Context, tenant string, seeds []string, maxHops int) (*Subgraph, error)
}

type GraphReader interface {
	Read(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
}

type WriteNode struct {
	ID    string
	Type  string
	Props map[string]any
}

type WriteEdge struct {
	Src   string
	Dst   string
	Type  string
	Props map[string]any
}

type WriteAck struct {
	Nodes int
	Edges int
}

// GraphWriter merges nodes and edges into the tenant's partition of the graph.
type GraphWriter interface {
	Write(ctx context.Context, tenant string, nodes []WriteNode, edges []WriteEdge) (WriteAck, error)
}

// GraphDeleter removes the tenant's nodes tagged with docID, or all of them when docID is
// empty, and reports how many nodes were deleted.
type GraphDeleter interface {
	Delete(ctx context.Context, tenant, docID string) (int, error)
}

type RerankResult struct {
	Index int
	Score float64
}

type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string, topN int) ([]RerankResult, error)
}
