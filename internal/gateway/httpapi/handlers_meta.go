package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/graphrag-gateway/internal/gateway/graphschema"
	"github.com/yungbote/graphrag-gateway/internal/platform/apierr"
	"github.com/yungbote/graphrag-gateway/internal/platform/apikeys"
)

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *handlers) version(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": h.cfg.Version})
}

type graphDefaults struct {
	MinNodes      int      `json:"min_nodes"`
	MinEdges      int      `json:"min_edges"`
	AllowEmpty    bool     `json:"allow_empty"`
	MaxAttempts   int      `json:"max_attempts"`
	Parallelism   int      `json:"parallelism"`
	ProviderChain []string `json:"provider_chain"`
}

type whoamiResponse struct {
	AppVersion    string        `json:"app_version"`
	TenantID      string        `json:"tenant_id"`
	KeyID         string        `json:"key_id,omitempty"`
	LiteLLMBase   string        `json:"litellm_base"`
	Entrypoints   []string      `json:"entrypoints"`
	SchemaHash    string        `json:"schema_hash"`
	GraphDefaults graphDefaults `json:"graph_defaults"`
}

func (h *handlers) whoami(c *gin.Context) {
	policy, maxAttempts, parallelism := h.gw.Defaults()
	var ids []string
	for _, p := range h.gw.DefaultChain() {
		ids = append(ids, p.ID)
	}
	var entrypoints []string
	for _, p := range h.cfg.Providers {
		entrypoints = append(entrypoints, p.ID)
	}

	out := whoamiResponse{
		AppVersion:  h.cfg.Version,
		TenantID:    apikeys.DefaultTenant,
		LiteLLMBase: h.cfg.LiteLLM.BaseURL,
		Entrypoints: entrypoints,
		SchemaHash:  graphschema.SchemaHash(),
		GraphDefaults: graphDefaults{
			MinNodes:      policy.MinNodes,
			MinEdges:      policy.MinEdges,
			AllowEmpty:    policy.AllowEmpty,
			MaxAttempts:   maxAttempts,
			Parallelism:   parallelism,
			ProviderChain: ids,
		},
	}
	if v, ok := c.Get("identity"); ok {
		if id, ok := v.(apikeys.Identity); ok {
			out.TenantID, out.KeyID = id.TenantID, id.KeyID
		}
	}
	c.JSON(http.StatusOK, out)
}

// bind decodes a JSON body bounded by http.max_request_bytes and writes a 400 on failure.
func (h *handlers) bind(c *gin.Context, dst any) bool {
	if limit := h.cfg.HTTP.MaxRequestBytes; limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, apierr.New(http.StatusRequestEntityTooLarge, "request_too_large", err))
			return false
		}
		writeError(c, apierr.New(http.StatusBadRequest, "invalid_json", err))
		return false
	}
	return true
}
