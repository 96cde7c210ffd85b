package graphschema

import (
	"fmt"
	"strings"
)

// Validation is the full outcome of checking one candidate payload.
type Validation struct {
	Defect        *Defect
	DanglingEdges []Edge
}

func (v Validation) OK() bool { return v.Defect == nil }

// Validate applies the content thresholds of policy to an already parsed payload.
// Dangling edges never produce a defect; see DanglingEdges.
func Validate(p *Payload, policy Policy) *Defect {
	if p == nil {
		return &Defect{Kind: DefectParse, Reason: "no payload"}
	}
	if isErrorSentinel(p) {
		return &Defect{Kind: DefectQuality, Reason: "model returned an error node instead of a graph"}
	}
	if policy.AllowEmpty {
		return nil
	}
	nodeGap := policy.MinNodes - len(p.Nodes)
	edgeGap := policy.MinEdges - len(p.Edges)
	if nodeGap <= 0 && edgeGap <= 0 {
		return nil
	}
	missing := 0
	if nodeGap > 0 {
		missing += nodeGap
	}
	if edgeGap > 0 {
		missing += edgeGap
	}
	return &Defect{
		Kind: DefectQuality,
		Reason: fmt.Sprintf("got %d nodes and %d edges, need at least %d nodes and %d edges",
			len(p.Nodes), len(p.Edges), policy.MinNodes, policy.MinEdges),
		MissingCount: missing,
	}
}

// DanglingEdges returns the edges whose src or dst is not a node id of p.
func DanglingEdges(p *Payload) []Edge {
	if p == nil || len(p.Edges) == 0 {
		return nil
	}
	ids := make(map[string]struct{}, len(p.Nodes))
	for _, n := range p.Nodes {
		ids[n.ID] = struct{}{}
	}
	var out []Edge
	for _, e := range p.Edges {
		_, okSrc := ids[e.Src]
		_, okDst := ids[e.Dst]
		if !okSrc || !okDst {
			out = append(out, e)
		}
	}
	return out
}

// Check parses raw and validates the result. Parse defects take precedence over quality.
func Check(raw string, policy Policy) (*Payload, Validation) {
	p, defect := Parse(raw)
	if defect != nil {
		return nil, Validation{Defect: defect}
	}
	if defect := Validate(p, policy); defect != nil {
		return p, Validation{Defect: defect}
	}
	return p, Validation{DanglingEdges: DanglingEdges(p)}
}

// Some models answer an impossible prompt with {"nodes":[{"id":"error","type":"error"}]}.
func isErrorSentinel(p *Payload) bool {
	return len(p.Nodes) == 1 && strings.EqualFold(p.Nodes[0].Type, "error")
}
