package ports

type CitationSource string

const (
	SourceVector CitationSource = "vector"
	SourceGraph  CitationSource = "graph"
)

type Citation struct {
	Source CitationSource `json:"source"`
	RefID  string         `json:"ref_id,omitempty"`
	Score  *float64       `json:"score,omitempty"`
}

// Hit is one ranked retrieval result. Vector adapters fill ID/Text/Metadata/Score; the
// retrieval merger attaches Citations.
type Hit struct {
	ID        string         `json:"id,omitempty"`
	DocID     string         `json:"doc_id,omitempty"`
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata"`
	Score     float64        `json:"score"`
	Rerank    *float64       `json:"rerank_score,omitempty"`
	Citations []Citation     `json:"citations"`
}

type SubgraphNode struct {
	ID    string         `json:"id"`
	Type  string         `json:"type"`
	Props map[string]any `json:"props"`
}

type SubgraphEdge struct {
	Src   string         `json:"src"`
	Dst   string         `json:"dst"`
	Type  string         `json:"type"`
	Props map[string]any `json:"props"`
}

type Subgraph struct {
	Nodes []SubgraphNode `json:"nodes"`
	Edges []SubgraphEdge `json:"edges"`
}
