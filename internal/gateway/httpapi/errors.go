package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/graphrag-gateway/internal/gateway/cypher"
	"github.com/yungbote/graphrag-gateway/internal/gateway/orchestrator"
	"github.com/yungbote/graphrag-gateway/internal/gateway/ports"
	"github.com/yungbote/graphrag-gateway/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
	Keyword string `json:"keyword,omitempty"`
	Backend string `json:"backend,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func writeError(c *gin.Context, e *apierr.Error) {
	c.JSON(e.Status, ErrorEnvelope{Error: envelopeFor(e)})
}

func envelopeFor(e *apierr.Error) APIError {
	out := APIError{Message: e.Error(), Code: e.Code, Param: e.Param}
	var unsafe *cypher.UnsafeQueryError
	if errors.As(e, &unsafe) {
		out.Keyword = unsafe.Keyword
	}
	var be *ports.BackendError
	if errors.As(e, &be) {
		out.Backend = be.Backend
	}
	return out
}

// classify maps orchestrator and backend errors onto the HTTP contract.
// Chain exhaustion is handled by the extract handler, which needs the attempt log.
func classify(err error) *apierr.Error {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return ae
	}
	var unsafe *cypher.UnsafeQueryError
	switch {
	case errors.As(err, &unsafe):
		return apierr.New(http.StatusBadRequest, "unsafe_query", err)
	case errors.Is(err, orchestrator.ErrInvalidArgument):
		return apierr.New(http.StatusBadRequest, "invalid_argument", err)
	case ports.KindOf(err) == ports.KindInvalidInput:
		return apierr.New(http.StatusBadRequest, "invalid_input", err)
	case errors.Is(err, orchestrator.ErrRetrievalDisabled),
		errors.Is(err, orchestrator.ErrGraphDisabled),
		errors.Is(err, orchestrator.ErrIndexDisabled):
		return apierr.New(http.StatusServiceUnavailable, "backend_disabled", err)
	case ports.IsBackendError(err):
		return apierr.New(http.StatusBadGateway, "upstream_"+string(ports.KindOf(err)), err)
	case errors.Is(err, context.DeadlineExceeded):
		return apierr.New(http.StatusGatewayTimeout, "timeout", err)
	case errors.Is(err, context.Canceled):
		return apierr.New(499, "client_closed_request", err)
	default:
		return apierr.New(http.StatusInternalServerError, "internal_error", err)
	}
}

func (h *handlers) writeOrchestratorError(c *gin.Context, op string, err error) {
	e := classify(err)
	if e.Status >= 500 {
		h.log.Error(op+" failed", "error", err, "status", e.Status)
	}
	writeError(c, e)
}
