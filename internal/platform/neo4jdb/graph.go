package neo4jdb

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/graphrag-gateway/internal/gateway/ports"
)

var (
	_ ports.GraphReader       = (*Client)(nil)
	_ ports.GraphNeighborhood = (*Client)(nil)
	_ ports.GraphWriter       = (*Client)(nil)
	_ ports.GraphDeleter      = (*Client)(nil)
)

const (
	seedMatchLimit = 5
	defaultLabel   = "Entity"
	defaultRelType = "RELATED_TO"
)

// Read runs caller-supplied Cypher in a read transaction. Safety gating happens upstream;
// the read access mode additionally makes clustered servers reject writes.
func (c *Client) Read(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	session := c.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		recs, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		rows := make([]map[string]any, 0, len(recs))
		for _, rec := range recs {
			rows = append(rows, jsonMap(rec.AsMap()))
		}
		return rows, nil
	})
	if err != nil {
		return nil, classify("read", err)
	}
	return out.([]map[string]any), nil
}

const seedQuery = `
MATCH (n {tenant_id: $tenant_id})
WHERE toLower(toString(n.id)) CONTAINS $keyword
   OR ANY(prop IN keys(n) WHERE toLower(toString(n[prop])) CONTAINS $keyword)
RETURN DISTINCT n.id AS id
LIMIT $limit
`

// MaxTraversalHops caps the variable-length segment rendered into neighborhood queries.
const MaxTraversalHops = 5

// neighborhoodCypher renders the expansion query for a hop bound. Cypher takes no
// parameters inside a variable-length pattern, so the bound is clamped to
// [1, MaxTraversalHops] and formatted in. Every node on a path must belong to the tenant;
// each relationship is returned once, oriented by its stored direction.
func neighborhoodCypher(maxHops int) string {
	hops := min(max(maxHops, 1), MaxTraversalHops)
	return fmt.Sprintf(`
MATCH p = (a {id: $id, tenant_id: $tenant_id})-[*1..%d]-(b)
WHERE all(x IN nodes(p) WHERE x.tenant_id = $tenant_id)
WITH p LIMIT $limit
UNWIND relationships(p) AS r
WITH DISTINCT r
WITH r, startNode(r) AS s, endNode(r) AS e
RETURN s.id AS src_id, coalesce(s.type, head(labels(s))) AS src_type, properties(s) AS src_props,
       type(r) AS rel_type, properties(r) AS rel_props,
       e.id AS dst_id, coalesce(e.type, head(labels(e))) AS dst_type, properties(e) AS dst_props
`, hops)
}

// pathLimit bounds the paths expanded per matched seed.
func pathLimit(maxHops int) int {
	return min(max(maxHops, 1), MaxTraversalHops) * 10
}

type neighborRow struct {
	SrcID, SrcType string
	SrcProps       map[string]any
	RelType        string
	RelProps       map[string]any
	DstID, DstType string
	DstProps       map[string]any
}

// Neighborhood finds the tenant's nodes whose id or properties contain a seed keyword, then
// walks up to maxHops relationships out from each distinct match (at most len(seeds) matches).
func (c *Client) Neighborhood(ctx context.Context, tenant string, seeds []string, maxHops int) (*ports.Subgraph, error) {
	tenant = ports.TenantOrDefault(tenant)
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	session := c.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	cypher := neighborhoodCypher(maxHops)
	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		var matched []string
		seen := map[string]bool{}
		for _, kw := range seeds {
			res, err := tx.Run(ctx, seedQuery, map[string]any{
				"keyword":   strings.ToLower(kw),
				"tenant_id": tenant,
				"limit":     seedMatchLimit,
			})
			if err != nil {
				return nil, err
			}
			recs, err := res.Collect(ctx)
			if err != nil {
				return nil, err
			}
			for _, rec := range recs {
				id := stringValue(rec, "id")
				if id == "" || seen[id] {
					continue
				}
				seen[id] = true
				matched = append(matched, id)
			}
		}
		if len(matched) > len(seeds) {
			matched = matched[:len(seeds)]
		}

		var rows []neighborRow
		for _, id := range matched {
			res, err := tx.Run(ctx, cypher, map[string]any{"id": id, "tenant_id": tenant, "limit": pathLimit(maxHops)})
			if err != nil {
				return nil, err
			}
			recs, err := res.Collect(ctx)
			if err != nil {
				return nil, err
			}
			for _, rec := range recs {
				rows = append(rows, rowFromRecord(rec))
			}
		}
		return rows, nil
	})
	if err != nil {
		return nil, classify("neighborhood", err)
	}
	return assembleSubgraph(out.([]neighborRow)), nil
}

func rowFromRecord(rec *neo4j.Record) neighborRow {
	return neighborRow{
		SrcID:    stringValue(rec, "src_id"),
		SrcType:  stringValue(rec, "src_type"),
		SrcProps: mapValue(rec, "src_props"),
		RelType:  stringValue(rec, "rel_type"),
		RelProps: mapValue(rec, "rel_props"),
		DstID:    stringValue(rec, "dst_id"),
		DstType:  stringValue(rec, "dst_type"),
		DstProps: mapValue(rec, "dst_props"),
	}
}

// assembleSubgraph dedupes nodes by id and edges by (src, dst, type). Rows arrive already
// oriented from start node to end node.
func assembleSubgraph(rows []neighborRow) *ports.Subgraph {
	sub := &ports.Subgraph{Nodes: []ports.SubgraphNode{}, Edges: []ports.SubgraphEdge{}}
	nodeSeen := map[string]bool{}
	edgeSeen := map[string]bool{}
	addNode := func(id, typ string, props map[string]any) {
		if id == "" || nodeSeen[id] {
			return
		}
		nodeSeen[id] = true
		if typ == "" {
			typ = defaultLabel
		}
		if props == nil {
			props = map[string]any{}
		}
		sub.Nodes = append(sub.Nodes, ports.SubgraphNode{ID: id, Type: typ, Props: props})
	}
	for _, r := range rows {
		addNode(r.SrcID, r.SrcType, r.SrcProps)
		addNode(r.DstID, r.DstType, r.DstProps)
		if r.SrcID == "" || r.DstID == "" {
			continue
		}
		src, dst := r.SrcID, r.DstID
		key := src + "\x00" + dst + "\x00" + r.RelType
		if edgeSeen[key] {
			continue
		}
		edgeSeen[key] = true
		props := r.RelProps
		if props == nil {
			props = map[string]any{}
		}
		sub.Edges = append(sub.Edges, ports.SubgraphEdge{Src: src, Dst: dst, Type: r.RelType, Props: props})
	}
	return sub
}

// Write MERGEs nodes under :Entity plus their sanitized type label, keyed by (tenant_id, id),
// then MERGEs edges between the same tenant's existing nodes. Edges whose endpoints are
// missing are skipped and not counted in the ack.
func (c *Client) Write(ctx context.Context, tenant string, nodes []ports.WriteNode, edges []ports.WriteEdge) (ports.WriteAck, error) {
	tenant = ports.TenantOrDefault(tenant)
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	session := c.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	c.schemaOnce.Do(func() {
		res, err := session.Run(ctx, `CREATE CONSTRAINT entity_tenant_id_unique IF NOT EXISTS FOR (e:Entity) REQUIRE (e.tenant_id, e.id) IS UNIQUE`, nil)
		if err != nil {
			c.log.Warn("neo4j schema init failed (continuing)", "error", err)
			return
		}
		_, _ = res.Consume(ctx)
	})

	nb, err := nodeBatches(nodes)
	if err != nil {
		return ports.WriteAck{}, err
	}
	eb, err := edgeBatches(edges)
	if err != nil {
		return ports.WriteAck{}, err
	}

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		var ack ports.WriteAck
		for _, b := range nb {
			n, err := runCount(ctx, tx, nodeMergeCypher(b.label), tenant, b.rows)
			if err != nil {
				return nil, err
			}
			ack.Nodes += n
		}
		for _, b := range eb {
			n, err := runCount(ctx, tx, edgeMergeCypher(b.label), tenant, b.rows)
			if err != nil {
				return nil, err
			}
			ack.Edges += n
		}
		return ack, nil
	})
	if err != nil {
		return ports.WriteAck{}, classify("write", err)
	}
	return out.(ports.WriteAck), nil
}

func nodeMergeCypher(label string) string {
	return fmt.Sprintf(`
UNWIND $rows AS row
MERGE (x:Entity:%s {tenant_id: $tenant_id, id: row.id})
ON CREATE SET x.created_at = timestamp()
SET x.updated_at = timestamp(), x.type = row.type, x.props_json = row.props_json,
    x.doc_id = coalesce(row.doc_id, x.doc_id)
RETURN count(x) AS n
`, quoteIdent(label))
}

func edgeMergeCypher(label string) string {
	return fmt.Sprintf(`
UNWIND $rows AS row
MATCH (a:Entity {tenant_id: $tenant_id, id: row.src})
MATCH (b:Entity {tenant_id: $tenant_id, id: row.dst})
MERGE (a)-[r:%s]->(b)
ON CREATE SET r.created_at = timestamp()
SET r.updated_at = timestamp(), r.type = row.type, r.props_json = row.props_json
RETURN count(r) AS n
`, quoteIdent(label))
}

const deleteCypher = `
MATCH (n:Entity {tenant_id: $tenant_id})
WHERE $doc_id = '' OR n.doc_id = $doc_id
WITH collect(n) AS doomed
FOREACH (x IN doomed | DETACH DELETE x)
RETURN size(doomed) AS n
`

// Delete removes the tenant's nodes (and their relationships) written for docID, or every
// node the tenant owns when docID is empty.
func (c *Client) Delete(ctx context.Context, tenant, docID string) (int, error) {
	tenant = ports.TenantOrDefault(tenant)
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	session := c.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, deleteCypher, map[string]any{"tenant_id": tenant, "doc_id": strings.TrimSpace(docID)})
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		n, _ := recValue(rec, "n").(int64)
		return int(n), nil
	})
	if err != nil {
		return 0, classify("delete", err)
	}
	c.log.Info("graph nodes deleted", "tenant_id", tenant, "doc_id", docID, "deleted", out)
	return out.(int), nil
}

func runCount(ctx context.Context, tx neo4j.ManagedTransaction, cypher, tenant string, rows []map[string]any) (int, error) {
	res, err := tx.Run(ctx, cypher, map[string]any{"rows": rows, "tenant_id": tenant})
	if err != nil {
		return 0, err
	}
	rec, err := res.Single(ctx)
	if err != nil {
		return 0, err
	}
	n, _ := recValue(rec, "n").(int64)
	return int(n), nil
}

type batch struct {
	label string
	rows  []map[string]any
}

// nodeBatches groups rows by label because labels cannot be query parameters.
func nodeBatches(nodes []ports.WriteNode) ([]batch, error) {
	groups := map[string][]map[string]any{}
	for _, n := range nodes {
		if strings.TrimSpace(n.ID) == "" {
			continue
		}
		pj, err := propsJSON(n.Props)
		if err != nil {
			return nil, err
		}
		label := SanitizeLabel(n.Type, defaultLabel)
		row := map[string]any{"id": n.ID, "type": n.Type, "props_json": pj, "doc_id": nil}
		if doc, ok := n.Props["doc_id"].(string); ok && strings.TrimSpace(doc) != "" {
			row["doc_id"] = strings.TrimSpace(doc)
		}
		groups[label] = append(groups[label], row)
	}
	return sortedBatches(groups), nil
}

func edgeBatches(edges []ports.WriteEdge) ([]batch, error) {
	groups := map[string][]map[string]any{}
	for _, e := range edges {
		if strings.TrimSpace(e.Src) == "" || strings.TrimSpace(e.Dst) == "" {
			continue
		}
		pj, err := propsJSON(e.Props)
		if err != nil {
			return nil, err
		}
		label := SanitizeLabel(e.Type, defaultRelType)
		groups[label] = append(groups[label], map[string]any{"src": e.Src, "dst": e.Dst, "type": e.Type, "props_json": pj})
	}
	return sortedBatches(groups), nil
}

func sortedBatches(groups map[string][]map[string]any) []batch {
	out := make([]batch, 0, len(groups))
	for label, rows := range groups {
		out = append(out, batch{label: label, rows: rows})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].label < out[j].label })
	return out
}

// propsJSON stores properties as a sorted [{key, value}] list, the same shape extraction emits.
func propsJSON(props map[string]any) (string, error) {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	kv := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		kv = append(kv, map[string]any{"key": k, "value": props[k]})
	}
	b, err := json.Marshal(kv)
	if err != nil {
		return "", ports.NewBackendError(backendName, "write", ports.KindInvalidInput, 0, fmt.Errorf("encode props: %w", err))
	}
	return string(b), nil
}

// SanitizeLabel keeps letters, digits and underscores, replacing anything else with "_".
// Labels that end up empty or start with a digit fall back to def.
func SanitizeLabel(s, def string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" || unicode.IsDigit([]rune(out)[0]) {
		return def
	}
	return out
}

func quoteIdent(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "") + "`"
}

func recValue(rec *neo4j.Record, key string) any {
	v, _ := rec.Get(key)
	return v
}

func stringValue(rec *neo4j.Record, key string) string {
	switch v := recValue(rec, key).(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func mapValue(rec *neo4j.Record, key string) map[string]any {
	m, _ := recValue(rec, key).(map[string]any)
	if m == nil {
		return nil
	}
	return jsonMap(m)
}
