package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/graphrag-gateway/internal/gateway/retrieval"
)

type RetrieveRequest = retrieval.Request

type RetrieveResult = retrieval.Response

var ErrRetrievalDisabled = errors.New("retrieval backend not configured")

func (o *Orchestrator) Retrieve(ctx context.Context, req RetrieveRequest) (RetrieveResult, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.retrieve")
	defer span.End()

	if o.merger == nil {
		return RetrieveResult{}, ErrRetrievalDisabled
	}
	start := time.Now()
	req.Tenant = tenantOf(ctx)
	resp, err := o.merger.Retrieve(ctx, req)
	if err != nil {
		o.rec.RetrieveDone(RetrieveError, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieval failed")
		if errors.Is(err, retrieval.ErrInvalidRequest) {
			return resp, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		return resp, err
	}
	outcome := RetrieveOK
	if resp.Degraded {
		outcome = RetrieveDegraded
	}
	o.rec.RetrieveDone(outcome, time.Since(start))
	span.SetAttributes(
		attribute.Int("retrieve.hits", len(resp.Hits)),
		attribute.Bool("retrieve.degraded", resp.Degraded),
		attribute.Bool("retrieve.reranked", resp.Reranked),
	)
	return resp, nil
}
