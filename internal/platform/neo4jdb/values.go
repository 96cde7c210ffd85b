package neo4jdb

import (
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// jsonValue converts driver values into plain maps and slices that encode cleanly.
func jsonValue(v any) any {
	switch t := v.(type) {
	case nil, bool, string, int64, float64:
		return t
	case neo4j.Node:
		return map[string]any{
			"element_id": t.ElementId,
			"labels":     t.Labels,
			"props":      jsonMap(t.Props),
		}
	case neo4j.Relationship:
		return map[string]any{
			"element_id": t.ElementId,
			"type":       t.Type,
			"start":      t.StartElementId,
			"end":        t.EndElementId,
			"props":      jsonMap(t.Props),
		}
	case neo4j.Path:
		nodes := make([]any, len(t.Nodes))
		for i, n := range t.Nodes {
			nodes[i] = jsonValue(n)
		}
		rels := make([]any, len(t.Relationships))
		for i, r := range t.Relationships {
			rels[i] = jsonValue(r)
		}
		return map[string]any{"nodes": nodes, "relationships": rels}
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = jsonValue(x)
		}
		return out
	case map[string]any:
		return jsonMap(t)
	case []byte:
		return t
	case fmt.Stringer:
		// Temporal and spatial types.
		return t.String()
	default:
		return t
	}
}

func jsonMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = jsonValue(v)
	}
	return out
}
