package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/graphrag-gateway/internal/gateway/chain"
	"github.com/yungbote/graphrag-gateway/internal/gateway/graphschema"
	"github.com/yungbote/graphrag-gateway/internal/gateway/orchestrator"
	"github.com/yungbote/graphrag-gateway/internal/gateway/ports"
	"github.com/yungbote/graphrag-gateway/internal/platform/apierr"
)

// maxLoggedAttempts caps the attempt log echoed in a 422 body.
const maxLoggedAttempts = 50

type extractRequest struct {
	Context       string   `json:"context"`
	MinNodes      *int     `json:"min_nodes"`
	MinEdges      *int     `json:"min_edges"`
	AllowEmpty    *bool    `json:"allow_empty"`
	MaxAttempts   *int     `json:"max_attempts"`
	Parallelism   *int     `json:"parallelism"`
	ProviderChain []string `json:"provider_chain"`
}

type extractResponse struct {
	OK         bool                 `json:"ok"`
	Data       *graphschema.Payload `json:"data"`
	Provider   string               `json:"provider"`
	Attempts   chain.AttemptLog     `json:"attempts"`
	SchemaHash string               `json:"schema_hash"`
	Warnings   []string             `json:"warnings,omitempty"`
}

type extractFailure struct {
	Error         APIError         `json:"error"`
	MinNodes      int              `json:"min_nodes"`
	MinEdges      int              `json:"min_edges"`
	AllowEmpty    bool             `json:"allow_empty"`
	MaxAttempts   int              `json:"max_attempts"`
	ProviderChain []string         `json:"provider_chain"`
	Attempts      chain.AttemptLog `json:"attempts"`
	SchemaHash    string           `json:"schema_hash"`
}

func (h *handlers) extract(c *gin.Context) {
	var req extractRequest
	if !h.bind(c, &req) {
		return
	}
	for name, v := range map[string]*int{"min_nodes": req.MinNodes, "min_edges": req.MinEdges, "max_attempts": req.MaxAttempts, "parallelism": req.Parallelism} {
		if v != nil && *v < 0 {
			writeError(c, apierr.BadRequest(name, fmt.Errorf("%s must be non-negative", name)))
			return
		}
	}
	if strings.TrimSpace(req.Context) == "" {
		writeError(c, apierr.BadRequest("context", errors.New("context must be a non-empty string")))
		return
	}

	oreq := orchestrator.ExtractRequest{
		Context:       req.Context,
		MinNodes:      req.MinNodes,
		MinEdges:      req.MinEdges,
		AllowEmpty:    req.AllowEmpty,
		ProviderChain: req.ProviderChain,
	}
	if req.MaxAttempts != nil {
		oreq.MaxAttempts = *req.MaxAttempts
	}
	if req.Parallelism != nil {
		oreq.Parallelism = *req.Parallelism
	}

	res, err := h.gw.Extract(c.Request.Context(), oreq)
	if err != nil {
		var exhausted *chain.ChainExhaustedError
		if errors.As(err, &exhausted) {
			h.writeExhausted(c, oreq, res, exhausted)
			return
		}
		h.writeOrchestratorError(c, "extract", err)
		return
	}
	c.JSON(http.StatusOK, extractResponse{
		OK:         true,
		Data:       res.Payload,
		Provider:   res.ProviderUsed,
		Attempts:   res.Attempts,
		SchemaHash: res.SchemaHash,
		Warnings:   res.Warnings,
	})
}

func (h *handlers) writeExhausted(c *gin.Context, req orchestrator.ExtractRequest, res orchestrator.ExtractResult, e *chain.ChainExhaustedError) {
	_, maxAttempts, _ := h.gw.Defaults()
	if req.MaxAttempts > 0 {
		maxAttempts = req.MaxAttempts
	}
	attempts := e.Log
	if len(attempts) > maxLoggedAttempts {
		attempts = attempts[:maxLoggedAttempts]
	}
	c.JSON(http.StatusUnprocessableEntity, extractFailure{
		Error: APIError{
			Code:    "graph_extraction_failed",
			Message: "no provider produced acceptable output",
		},
		MinNodes:      res.Policy.MinNodes,
		MinEdges:      res.Policy.MinEdges,
		AllowEmpty:    res.Policy.AllowEmpty,
		MaxAttempts:   maxAttempts,
		ProviderChain: e.Chain,
		Attempts:      attempts,
		SchemaHash:    res.SchemaHash,
	})
}

type queryRequest struct {
	Query  string         `json:"query"`
	Params map[string]any `json:"params"`
}

func (h *handlers) query(c *gin.Context) {
	var req queryRequest
	if !h.bind(c, &req) {
		return
	}
	rows, err := h.gw.Query(c.Request.Context(), orchestrator.CypherRequest{
		QueryText: req.Query,
		Params:    req.Params,
		ReadOnly:  true,
	})
	if err != nil {
		h.writeOrchestratorError(c, "query", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "records": rows})
}

func (h *handlers) upsert(c *gin.Context) {
	var p graphschema.Payload
	if !h.bind(c, &p) {
		return
	}
	ack, err := h.gw.Upsert(c.Request.Context(), &p)
	if err != nil {
		h.writeOrchestratorError(c, "upsert", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "nodes": ack.Nodes, "edges": ack.Edges})
}

type probeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type probeRequest struct {
	Provider    string         `json:"provider"`
	Model       string         `json:"model"`
	StrictJSON  bool           `json:"strict_json"`
	Temperature float64        `json:"temperature"`
	Messages    []probeMessage `json:"messages"`
}

type probeResponse struct {
	OK        bool   `json:"ok"`
	Mode      string `json:"mode"`
	Provider  string `json:"provider"`
	Data      any    `json:"data,omitempty"`
	Text      string `json:"text,omitempty"`
	Error     string `json:"error,omitempty"`
	Raw       string `json:"raw,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

func (h *handlers) probe(c *gin.Context) {
	var req probeRequest
	if !h.bind(c, &req) {
		return
	}
	provider := req.Provider
	if provider == "" {
		provider = req.Model
	}
	msgs := make([]ports.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, ports.Message{Role: m.Role, Content: m.Content})
	}
	res, err := h.gw.Probe(c.Request.Context(), orchestrator.ProbeRequest{
		Provider:    provider,
		StrictJSON:  req.StrictJSON,
		Temperature: req.Temperature,
		Messages:    msgs,
	})
	if err != nil {
		e := classify(err)
		if e.Status >= 500 {
			e.Code = "upstream_probe_error"
		}
		h.log.Warn("probe failed", "provider", provider, "error", err)
		writeError(c, e)
		return
	}

	out := probeResponse{OK: true, Mode: res.Mode, Provider: res.Provider, ElapsedMS: res.Elapsed.Milliseconds()}
	switch {
	case !req.StrictJSON:
		out.Text = res.Text
	case res.ParseError != "":
		out.OK, out.Mode, out.Error, out.Raw = false, "json", "json_parse_error: "+res.ParseError, res.Text
	default:
		if _, isObject := res.Data.(map[string]any); !isObject {
			out.OK, out.Error, out.Raw = false, "JSON not an object", res.Text
		} else {
			out.Data = res.Data
		}
	}
	c.JSON(http.StatusOK, out)
}

type deleteGraphRequest struct {
	DocID string `json:"doc_id"`
}

// deleteGraph removes the caller's nodes for doc_id, or all of them when doc_id is omitted.
func (h *handlers) deleteGraph(c *gin.Context) {
	var req deleteGraphRequest
	if !h.bind(c, &req) {
		return
	}
	n, err := h.gw.DeleteGraph(c.Request.Context(), req.DocID)
	if err != nil {
		h.writeOrchestratorError(c, "delete_graph", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "deleted": n})
}
