package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/graphrag-gateway/internal/gateway/cypher"
	"github.com/yungbote/graphrag-gateway/internal/gateway/graphschema"
	"github.com/yungbote/graphrag-gateway/internal/gateway/ports"
)

var ErrGraphDisabled = errors.New("graph backend not configured")

// CypherRequest is a free-form graph read. The gate runs whatever ReadOnly says; writes go
// through Upsert.
type CypherRequest struct {
	QueryText string
	Params    map[string]any
	ReadOnly  bool
}

// Query gates req.QueryText and forwards it to the graph reader only when allowed. A
// rejection returns *cypher.UnsafeQueryError; an empty query returns ErrInvalidArgument.
// The caller's tenant is bound as $tenant_id, overriding any caller-supplied value; the
// query text itself is not rewritten, so tenant scoping is up to the query.
func (o *Orchestrator) Query(ctx context.Context, req CypherRequest) ([]map[string]any, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.query")
	defer span.End()

	if err := o.gate.Enforce(req.QueryText); err != nil {
		var unsafe *cypher.UnsafeQueryError
		if errors.As(err, &unsafe) {
			o.rec.QueryRejected(unsafe.Keyword)
			o.log.Warn("cypher query rejected", "keyword", unsafe.Keyword)
			span.SetAttributes(attribute.String("query.rejected_keyword", unsafe.Keyword))
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if o.reader == nil {
		return nil, ErrGraphDisabled
	}

	params := make(map[string]any, len(req.Params)+1)
	for k, v := range req.Params {
		params[k] = v
	}
	params["tenant_id"] = tenantOf(ctx)
	rows, err := o.reader.Read(ctx, req.QueryText, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "graph read failed")
		return nil, fmt.Errorf("query: %w", err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	span.SetAttributes(attribute.Int("query.rows", len(rows)))
	return rows, nil
}

// Upsert writes an extracted payload to the graph store.
func (o *Orchestrator) Upsert(ctx context.Context, p *graphschema.Payload) (ports.WriteAck, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.upsert")
	defer span.End()

	if p == nil {
		return ports.WriteAck{}, fmt.Errorf("%w: payload is required", ErrInvalidArgument)
	}
	if o.writer == nil {
		return ports.WriteAck{}, ErrGraphDisabled
	}
	nodes := make([]ports.WriteNode, 0, len(p.Nodes))
	for i, n := range p.Nodes {
		if strings.TrimSpace(n.ID) == "" || strings.TrimSpace(n.Type) == "" {
			return ports.WriteAck{}, fmt.Errorf("%w: nodes[%d] needs id and type", ErrInvalidArgument, i)
		}
		nodes = append(nodes, ports.WriteNode{ID: n.ID, Type: n.Type, Props: propsMap(n.Props)})
	}
	edges := make([]ports.WriteEdge, 0, len(p.Edges))
	for i, e := range p.Edges {
		if strings.TrimSpace(e.Src) == "" || strings.TrimSpace(e.Dst) == "" || strings.TrimSpace(e.Type) == "" {
			return ports.WriteAck{}, fmt.Errorf("%w: edges[%d] needs src, dst and type", ErrInvalidArgument, i)
		}
		edges = append(edges, ports.WriteEdge{Src: e.Src, Dst: e.Dst, Type: e.Type, Props: propsMap(e.Props)})
	}
	if len(nodes) == 0 && len(edges) == 0 {
		return ports.WriteAck{}, nil
	}

	tenant := tenantOf(ctx)
	ack, err := o.writer.Write(ctx, tenant, nodes, edges)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "graph write failed")
		return ack, fmt.Errorf("upsert: %w", err)
	}
	span.SetAttributes(attribute.Int("upsert.nodes", ack.Nodes), attribute.Int("upsert.edges", ack.Edges))
	o.log.Info("graph upserted", "tenant_id", tenant, "nodes", ack.Nodes, "edges", ack.Edges)
	return ack, nil
}

// propsMap flattens a KV list; a repeated key keeps its last value.
func propsMap(kvs []graphschema.KV) map[string]any {
	out := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		if strings.TrimSpace(kv.Key) == "" {
			continue
		}
		out[kv.Key] = kv.Value
	}
	return out
}
