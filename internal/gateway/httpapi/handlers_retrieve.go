package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/graphrag-gateway/internal/gateway/orchestrator"
	"github.com/yungbote/graphrag-gateway/internal/gateway/ports"
)

type retrieveRequest struct {
	Query           string         `json:"query"`
	TopK            int            `json:"top_k"`
	IncludeSubgraph bool           `json:"include_subgraph"`
	MaxHops         int            `json:"max_hops"`
	Collection      string         `json:"collection"`
	Filters         map[string]any `json:"filters"`
	Rerank          bool           `json:"rerank"`
}

type retrieveResponse struct {
	OK          bool            `json:"ok"`
	Hits        []ports.Hit     `json:"hits"`
	Subgraph    *ports.Subgraph `json:"subgraph"`
	Degraded    bool            `json:"degraded"`
	Reranked    bool            `json:"reranked"`
	Seeds       []string        `json:"seeds,omitempty"`
	QueryTimeMS int64           `json:"query_time_ms"`
}

func (h *handlers) retrieve(c *gin.Context) {
	var req retrieveRequest
	if !h.bind(c, &req) {
		return
	}
	res, err := h.gw.Retrieve(c.Request.Context(), orchestrator.RetrieveRequest{
		Query:           req.Query,
		TopK:            req.TopK,
		IncludeSubgraph: req.IncludeSubgraph,
		MaxHops:         req.MaxHops,
		Collection:      req.Collection,
		Filters:         req.Filters,
		Rerank:          req.Rerank,
	})
	if err != nil {
		h.writeOrchestratorError(c, "retrieve", err)
		return
	}
	hits := res.Hits
	if hits == nil {
		hits = []ports.Hit{}
	}
	c.JSON(http.StatusOK, retrieveResponse{
		OK:          true,
		Hits:        hits,
		Subgraph:    res.Subgraph,
		Degraded:    res.Degraded,
		Reranked:    res.Reranked,
		Seeds:       res.Seeds,
		QueryTimeMS: res.QueryTime.Milliseconds(),
	})
}

type searchRequest struct {
	Query      string         `json:"query"`
	TopK       int            `json:"top_k"`
	Collection string         `json:"collection"`
	Filters    map[string]any `json:"filters"`
}

func (h *handlers) search(c *gin.Context) {
	var req searchRequest
	if !h.bind(c, &req) {
		return
	}
	hits, err := h.gw.Search(c.Request.Context(), orchestrator.SearchRequest{
		Query:      req.Query,
		TopK:       req.TopK,
		Collection: req.Collection,
		Filters:    req.Filters,
	})
	if err != nil {
		h.writeOrchestratorError(c, "search", err)
		return
	}
	if hits == nil {
		hits = []ports.Hit{}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "hits": hits})
}

type deleteVectorRequest struct {
	Collection string `json:"collection"`
	DocID      string `json:"doc_id"`
}

func (h *handlers) deleteVector(c *gin.Context) {
	var req deleteVectorRequest
	if !h.bind(c, &req) {
		return
	}
	n, err := h.gw.DeleteVectors(c.Request.Context(), req.Collection, req.DocID)
	if err != nil {
		h.writeOrchestratorError(c, "delete_vector", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "deleted": n})
}

type chunkRequest struct {
	DocID    string         `json:"doc_id"`
	ChunkID  string         `json:"chunk_id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

type indexRequest struct {
	Collection string         `json:"collection"`
	Chunks     []chunkRequest `json:"chunks"`
}

func (h *handlers) indexChunks(c *gin.Context) {
	var req indexRequest
	if !h.bind(c, &req) {
		return
	}
	chunks := make([]orchestrator.Chunk, len(req.Chunks))
	for i, ch := range req.Chunks {
		chunks[i] = orchestrator.Chunk{DocID: ch.DocID, ChunkID: ch.ChunkID, Text: ch.Text, Metadata: ch.Metadata}
	}
	res, err := h.gw.Index(c.Request.Context(), orchestrator.IndexRequest{Collection: req.Collection, Chunks: chunks})
	if err != nil {
		h.writeOrchestratorError(c, "index", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "upserted": res.Upserted, "dim": res.Dim, "collection": res.Collection})
}

type embedRequest struct {
	Texts []string `json:"texts"`
}

func (h *handlers) embed(c *gin.Context) {
	var req embedRequest
	if !h.bind(c, &req) {
		return
	}
	vecs, err := h.gw.Embed(c.Request.Context(), req.Texts)
	if err != nil {
		h.writeOrchestratorError(c, "embed", err)
		return
	}
	dim := 0
	if len(vecs) > 0 {
		dim = len(vecs[0])
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "vectors": vecs, "dim": dim})
}
