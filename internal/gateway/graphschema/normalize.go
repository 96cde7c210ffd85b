package graphschema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	defaultNodeType = "Entity"
	defaultEdgeType = "RELATED_TO"
)

// normalize maps the loose shapes providers actually emit (name/label/source/target aliases,
// props as an object, a bare node list) onto Payload.
func normalize(v any) (*Payload, *Defect) {
	var rawNodes, rawEdges []any
	switch t := v.(type) {
	case []any:
		rawNodes = t
	case map[string]any:
		nodesVal, hasNodes := t["nodes"]
		if items, ok := t["items"].([]any); ok && (!hasNodes || isEmptyList(nodesVal)) {
			nodesVal, hasNodes = items, true
		}
		if !hasNodes {
			return nil, &Defect{Kind: DefectParse, Reason: `missing required field "nodes"`, MissingCount: 1}
		}
		if nodesVal != nil {
			list, ok := nodesVal.([]any)
			if !ok {
				return nil, &Defect{Kind: DefectParse, Reason: `"nodes" must be an array`}
			}
			rawNodes = list
		}
		if edgesVal, ok := t["edges"]; ok && edgesVal != nil {
			list, ok := edgesVal.([]any)
			if !ok {
				return nil, &Defect{Kind: DefectParse, Reason: `"edges" must be an array`}
			}
			rawEdges = list
		}
	default:
		return nil, &Defect{Kind: DefectParse, Reason: "top-level JSON value must be an object"}
	}

	var (
		missing     int
		firstReason string
	)
	miss := func(reason string) {
		missing++
		if firstReason == "" {
			firstReason = reason
		}
	}

	nodes := make([]Node, 0, len(rawNodes))
	for i, rn := range rawNodes {
		n, ok := rn.(map[string]any)
		if !ok {
			miss(fmt.Sprintf("nodes[%d] is not an object", i))
			continue
		}
		id := firstString(n, "id", "name", "node_id")
		if id == "" {
			miss(fmt.Sprintf("nodes[%d] missing id", i))
			continue
		}
		typ := firstString(n, "type", "label")
		if typ == "" {
			if labels, ok := n["labels"].([]any); ok && len(labels) > 0 {
				typ = stringify(labels[0])
			}
		}
		if typ == "" {
			typ = defaultNodeType
		}
		props := kvize(n["props"])
		if name := stringify(n["name"]); name != "" && !hasKey(props, "name") {
			props = append(props, KV{Key: "name", Value: n["name"]})
		}
		nodes = append(nodes, Node{ID: id, Type: typ, Props: pruneProps(props)})
	}

	edges := make([]Edge, 0, len(rawEdges))
	for i, re := range rawEdges {
		e, ok := re.(map[string]any)
		if !ok {
			miss(fmt.Sprintf("edges[%d] is not an object", i))
			continue
		}
		src := firstString(e, "src", "source", "from")
		dst := firstString(e, "dst", "target", "to")
		if src == "" || dst == "" {
			miss(fmt.Sprintf("edges[%d] missing src/dst", i))
			continue
		}
		typ := firstString(e, "type", "label")
		if typ == "" {
			typ = defaultEdgeType
		}
		edges = append(edges, Edge{Src: src, Dst: dst, Type: typ, Props: pruneProps(kvize(e["props"]))})
	}

	if missing > 0 {
		reason := firstReason
		if missing > 1 {
			reason = fmt.Sprintf("%d entries missing required fields (first: %s)", missing, firstReason)
		}
		return nil, &Defect{Kind: DefectParse, Reason: reason, MissingCount: missing}
	}

	return &Payload{Nodes: mergeDuplicateNodes(nodes), Edges: edges}, nil
}

func isEmptyList(v any) bool {
	list, ok := v.([]any)
	return v == nil || (ok && len(list) == 0)
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringify(m[k]); s != "" {
			return s
		}
	}
	return ""
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

// kvize accepts props either as an object or as a [{key, value}] list.
func kvize(v any) []KV {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]KV, 0, len(keys))
		for _, k := range keys {
			out = append(out, KV{Key: k, Value: t[k]})
		}
		return out
	case []any:
		out := make([]KV, 0, len(t))
		for _, it := range t {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			key, hasKey := m["key"]
			val, hasVal := m["value"]
			if !hasKey || !hasVal {
				continue
			}
			out = append(out, KV{Key: fmt.Sprint(key), Value: val})
		}
		return out
	default:
		return []KV{}
	}
}

func hasKey(props []KV, key string) bool {
	for _, p := range props {
		if p.Key == key {
			return true
		}
	}
	return false
}

func pruneProps(props []KV) []KV {
	out := make([]KV, 0, len(props))
	for _, p := range props {
		if strings.TrimSpace(p.Key) == "" || p.Value == nil {
			continue
		}
		if s, ok := p.Value.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// mergeDuplicateNodes keeps the first occurrence of each id and unions later props into it.
func mergeDuplicateNodes(nodes []Node) []Node {
	out := make([]Node, 0, len(nodes))
	index := make(map[string]int, len(nodes))
	seen := make(map[string]map[string]struct{}, len(nodes))
	for _, n := range nodes {
		i, dup := index[n.ID]
		if !dup {
			index[n.ID] = len(out)
			sigs := make(map[string]struct{}, len(n.Props))
			for _, p := range n.Props {
				sigs[propSignature(p)] = struct{}{}
			}
			seen[n.ID] = sigs
			out = append(out, n)
			continue
		}
		for _, p := range n.Props {
			sig := propSignature(p)
			if _, ok := seen[n.ID][sig]; ok {
				continue
			}
			seen[n.ID][sig] = struct{}{}
			out[i].Props = append(out[i].Props, p)
		}
	}
	return out
}

func propSignature(p KV) string {
	b, err := json.Marshal(p.Value)
	if err != nil {
		return p.Key + "\x00" + fmt.Sprint(p.Value)
	}
	return p.Key + "\x00" + string(b)
}
