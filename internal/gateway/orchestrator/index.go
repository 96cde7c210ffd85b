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

var ErrIndexDisabled = errors.New("vector index not configured")

type Chunk struct {
	DocID    string
	ChunkID  string
	Text     string
	Metadata map[string]any
}

type IndexRequest struct {
	Collection string
	Chunks     []Chunk
}

type IndexResult struct {
	Upserted   int
	Dim        int
	Collection string
}

// maxIndexChunks bounds a single request; larger corpora are sent in pages.
const maxIndexChunks = 512

// Index embeds chunks and upserts them into the caller tenant's copy of the collection.
// Re-sending a chunk with the same chunk id (or the same doc and text) overwrites it.
func (o *Orchestrator) Index(ctx context.Context, req IndexRequest) (IndexResult, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.index")
	defer span.End()

	if o.embedder == nil || o.indexer == nil {
		return IndexResult{}, ErrIndexDisabled
	}
	collection, physical := o.collectionFor(ctx, req.Collection)
	tenant := tenantOf(ctx)
	if len(req.Chunks) == 0 {
		return IndexResult{}, fmt.Errorf("%w: chunks must be non-empty", ErrInvalidArgument)
	}
	if len(req.Chunks) > maxIndexChunks {
		return IndexResult{}, fmt.Errorf("%w: at most %d chunks per request", ErrInvalidArgument, maxIndexChunks)
	}

	texts := make([]string, len(req.Chunks))
	for i, c := range req.Chunks {
		if strings.TrimSpace(c.DocID) == "" || strings.TrimSpace(c.Text) == "" {
			return IndexResult{}, fmt.Errorf("%w: chunks[%d] needs doc_id and text", ErrInvalidArgument, i)
		}
		texts[i] = c.Text
	}

	vectors, err := o.embedder.Embed(ctx, texts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embed failed")
		return IndexResult{}, fmt.Errorf("index: embed: %w", err)
	}
	if len(vectors) != len(texts) {
		return IndexResult{}, fmt.Errorf("index: embed: got %d vectors for %d chunks", len(vectors), len(texts))
	}

	points := make([]ports.VectorPoint, len(req.Chunks))
	for i, c := range req.Chunks {
		points[i] = ports.VectorPoint{
			ID:       c.ChunkID,
			DocID:    c.DocID,
			TenantID: tenant,
			Text:     c.Text,
			Vector:   vectors[i],
			Metadata: c.Metadata,
		}
	}
	n, err := o.indexer.Upsert(ctx, physical, points)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "vector upsert failed")
		return IndexResult{}, fmt.Errorf("index: %w", err)
	}

	res := IndexResult{Upserted: n, Collection: collection}
	if len(vectors) > 0 {
		res.Dim = len(vectors[0])
	}
	span.SetAttributes(attribute.Int("index.upserted", n), attribute.String("index.collection", physical))
	o.log.Info("chunks indexed", "collection", physical, "tenant_id", tenant, "upserted", n, "dim", res.Dim)
	return res, nil
}

// Embed exposes the configured embedder directly.
func (o *Orchestrator) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if o.embedder == nil {
		return nil, ErrIndexDisabled
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: input must be non-empty", ErrInvalidArgument)
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("%w: input[%d] is empty", ErrInvalidArgument, i)
		}
	}
	return o.embedder.Embed(ctx, texts)
}
