package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/graphrag-gateway/internal/gateway/ports"
)

type SearchRequest struct {
	Query      string
	TopK       int
	Collection string
	Filters    map[string]any
}

const (
	defaultSearchTopK = 5
	maxSearchTopK     = 100
)

// Search is plain vector search over the tenant's collection: no graph expansion, no rerank,
// no citations.
func (o *Orchestrator) Search(ctx context.Context, req SearchRequest) ([]ports.Hit, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.search")
	defer span.End()

	if o.embedder == nil || o.search == nil {
		return nil, ErrIndexDisabled
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidArgument)
	}
	if req.TopK < 0 {
		return nil, fmt.Errorf("%w: top_k must be non-negative", ErrInvalidArgument)
	}
	topK := req.TopK
	if topK == 0 {
		topK = defaultSearchTopK
	}
	topK = min(topK, maxSearchTopK)
	_, physical := o.collectionFor(ctx, req.Collection)

	vecs, err := o.embedder.Embed(ctx, []string{query})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embed failed")
		return nil, fmt.Errorf("search: embed: %w", err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, ports.NewBackendError("embedder", "embed", ports.KindMalformed, 0, errors.New("empty embedding"))
	}
	hits, err := o.search.Search(ctx, ports.VectorQuery{
		Collection: physical,
		Vector:     vecs[0],
		TopK:       topK,
		Filters:    req.Filters,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "vector search failed")
		return nil, fmt.Errorf("search: %w", err)
	}
	if hits == nil {
		hits = []ports.Hit{}
	}
	span.SetAttributes(attribute.Int("search.hits", len(hits)), attribute.String("search.collection", physical))
	return hits, nil
}

// DeleteVectors removes docID's chunks from the tenant's collection, or drops the tenant's
// collection when docID is empty. It returns the number of points (or collections) removed.
func (o *Orchestrator) DeleteVectors(ctx context.Context, collection, docID string) (int, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.delete_vectors")
	defer span.End()

	if o.vectorDel == nil {
		return 0, ErrIndexDisabled
	}
	if strings.TrimSpace(collection) == "" {
		return 0, fmt.Errorf("%w: collection is required", ErrInvalidArgument)
	}
	_, physical := o.collectionFor(ctx, collection)
	n, err := o.vectorDel.Delete(ctx, physical, strings.TrimSpace(docID))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "vector delete failed")
		return 0, fmt.Errorf("delete vectors: %w", err)
	}
	span.SetAttributes(attribute.Int("delete.count", n))
	o.log.Info("vectors deleted", "collection", physical, "doc_id", docID, "deleted", n)
	return n, nil
}

// DeleteGraph removes the tenant's nodes written for docID, or all of the tenant's nodes
// when docID is empty.
func (o *Orchestrator) DeleteGraph(ctx context.Context, docID string) (int, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.delete_graph")
	defer span.End()

	if o.graphDel == nil {
		return 0, ErrGraphDisabled
	}
	tenant := tenantOf(ctx)
	n, err := o.graphDel.Delete(ctx, tenant, strings.TrimSpace(docID))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "graph delete failed")
		return 0, fmt.Errorf("delete graph: %w", err)
	}
	span.SetAttributes(attribute.Int("delete.count", n))
	o.log.Info("graph nodes deleted", "tenant_id", tenant, "doc_id", docID, "deleted", n)
	return n, nil
}
