package graphschema

import (
	"errors"
	"testing"
)

func TestExtractJSONObject(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: `{"a":1}`, want: `{"a":1}`},
		{name: "prose around", in: `Sure! Here it is: {"a":{"b":2}} hope that helps`, want: `{"a":{"b":2}}`},
		{name: "fenced", in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "brace in string", in: `note {"a":"}{"} trailing }`, want: `{"a":"}{"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractJSONObject(tc.in)
			if err != nil {
				t.Fatalf("ExtractJSONObject: %v", err)
			}
			if got != tc.want {
				t.Fatalf("want=%q got=%q", tc.want, got)
			}
		})
	}
}

func TestExtractJSONObjectNoObject(t *testing.T) {
	if _, err := ExtractJSONObject("no braces here"); !errors.Is(err, ErrNoJSONObject) {
		t.Fatalf("want ErrNoJSONObject, got %v", err)
	}
}

func TestParseEmptyOutputIsParseDefect(t *testing.T) {
	_, d := Parse("   ")
	if d == nil || d.Kind != DefectParse {
		t.Fatalf("want parse defect, got %+v", d)
	}
}

func TestParseMissingNodesKey(t *testing.T) {
	_, d := Parse(`{"edges":[]}`)
	if d == nil || d.Kind != DefectParse {
		t.Fatalf("want parse defect, got %+v", d)
	}
	if d.MissingCount != 1 {
		t.Fatalf("missing count: want=1 got=%d", d.MissingCount)
	}
}

func TestParseCountsEntriesMissingFields(t *testing.T) {
	_, d := Parse(`{"nodes":[{"type":"Person"},{"id":"a"}],"edges":[{"src":"a","type":"X"}]}`)
	if d == nil || d.Kind != DefectParse {
		t.Fatalf("want parse defect, got %+v", d)
	}
	if d.MissingCount != 2 {
		t.Fatalf("missing count: want=2 got=%d (%s)", d.MissingCount, d.Reason)
	}
}

func TestParseNormalizesAliases(t *testing.T) {
	raw := "```json\n" + `{
	  "nodes": [
	    {"name": "Alice", "label": "Person", "props": {"role": "CEO", "empty": ""}},
	    {"node_id": "acme", "labels": ["Company"]},
	    {"id": "x"}
	  ],
	  "edges": [
	    {"source": "Alice", "target": "acme", "label": "EMPLOYED_AT", "props": [{"key": "since", "value": 2020}]},
	    {"from": "acme", "to": "x"}
	  ]
	}` + "\n```"

	p, d := Parse(raw)
	if d != nil {
		t.Fatalf("unexpected defect: %v", d)
	}
	if len(p.Nodes) != 3 || len(p.Edges) != 2 {
		t.Fatalf("shape: want 3 nodes/2 edges got %d/%d", len(p.Nodes), len(p.Edges))
	}

	alice := p.Nodes[0]
	if alice.ID != "Alice" || alice.Type != "Person" {
		t.Fatalf("alice: got %+v", alice)
	}
	if !hasKey(alice.Props, "name") || !hasKey(alice.Props, "role") {
		t.Fatalf("alice props should carry name and role: %+v", alice.Props)
	}
	if hasKey(alice.Props, "empty") {
		t.Fatalf("empty prop should be pruned: %+v", alice.Props)
	}
	if p.Nodes[1].ID != "acme" || p.Nodes[1].Type != "Company" {
		t.Fatalf("acme: got %+v", p.Nodes[1])
	}
	if p.Nodes[2].Type != defaultNodeType {
		t.Fatalf("default node type: want=%s got=%s", defaultNodeType, p.Nodes[2].Type)
	}

	e0 := p.Edges[0]
	if e0.Src != "Alice" || e0.Dst != "acme" || e0.Type != "EMPLOYED_AT" {
		t.Fatalf("edge0: got %+v", e0)
	}
	if len(e0.Props) != 1 || e0.Props[0].Key != "since" {
		t.Fatalf("edge0 props: got %+v", e0.Props)
	}
	if p.Edges[1].Type != defaultEdgeType {
		t.Fatalf("default edge type: want=%s got=%s", defaultEdgeType, p.Edges[1].Type)
	}
}

func TestParseMergesDuplicateNodes(t *testing.T) {
	p, d := Parse(`{"nodes":[
	  {"id":"a","type":"T","props":{"x":1}},
	  {"id":"b","type":"T"},
	  {"id":"a","type":"Other","props":{"x":1,"y":"z"}}
	],"edges":[]}`)
	if d != nil {
		t.Fatalf("unexpected defect: %v", d)
	}
	if len(p.Nodes) != 2 {
		t.Fatalf("nodes: want=2 got=%d", len(p.Nodes))
	}
	a := p.Nodes[0]
	if a.Type != "T" {
		t.Fatalf("first occurrence type should win: got %s", a.Type)
	}
	if len(a.Props) != 2 {
		t.Fatalf("props union: want=2 got=%+v", a.Props)
	}
}

func TestParseAcceptsBareNodeList(t *testing.T) {
	p, d := Parse(`[{"id":"a","type":"T"}]`)
	if d != nil {
		t.Fatalf("unexpected defect: %v", d)
	}
	if len(p.Nodes) != 1 || len(p.Edges) != 0 {
		t.Fatalf("shape: got %d/%d", len(p.Nodes), len(p.Edges))
	}
}
