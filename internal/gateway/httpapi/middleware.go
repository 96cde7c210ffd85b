package httpapi

import (
	"errors"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/graphrag-gateway/internal/observability"
	"github.com/yungbote/graphrag-gateway/internal/platform/apierr"
	"github.com/yungbote/graphrag-gateway/internal/platform/apikeys"
	"github.com/yungbote/graphrag-gateway/internal/platform/ctxutil"
	"github.com/yungbote/graphrag-gateway/internal/platform/logger"
)

const (
	headerTraceID   = "X-Trace-Id"
	headerRequestID = "X-Request-Id"
)

func requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := strings.TrimSpace(c.GetHeader(headerRequestID))
		if reqID == "" {
			reqID = uuid.New().String()
		}
		var traceID string
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
			traceID = sc.TraceID().String()
		}
		ctx := ctxutil.WithTraceData(c.Request.Context(), &ctxutil.TraceData{
			TraceID:   traceID,
			RequestID: reqID,
		})
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set(headerRequestID, reqID)
		if traceID != "" {
			c.Writer.Header().Set(headerTraceID, traceID)
		}
		c.Next()
	}
}

func accessLog(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		fields := []interface{}{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"bytes", c.Writer.Size(),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if td := ctxutil.GetTraceData(c.Request.Context()); td != nil {
			fields = append(fields, "request_id", td.RequestID)
			if td.TraceID != "" {
				fields = append(fields, "trace_id", td.TraceID)
			}
			if td.TenantID != "" {
				fields = append(fields, "tenant_id", td.TenantID)
			}
		}
		switch {
		case status >= 500:
			log.Error("http request", fields...)
		case status >= 400:
			log.Warn("http request", fields...)
		default:
			log.Info("http request", fields...)
		}
	}
}

func recoverMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("panic recovered",
					"request_id", ctxutil.RequestID(c.Request.Context()),
					"panic", rec,
					"stack", string(debug.Stack()))
				writeError(c, apierr.New(http.StatusInternalServerError, "internal_error", errors.New("internal server error")))
				c.Abort()
			}
		}()
		c.Next()
	}
}

func metricsMiddleware(m *observability.Metrics) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		m.APIInflightInc()
		defer m.APIInflightDec()

		c.Next()

		m.ObserveAPI(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}

// requireKey accepts X-API-Key or "Authorization: Bearer". With no key source configured
// every request is refused unless auth is explicitly disabled.
func requireKey(log *logger.Logger, auth Authenticator, disabled bool, m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		td := ctxutil.GetTraceData(c.Request.Context())
		if disabled {
			if td != nil {
				td.TenantID = apikeys.DefaultTenant
			}
			c.Next()
			return
		}

		token := extractToken(c)
		if auth == nil || !auth.Enabled() {
			m.AuthFailed("not_configured")
			abortUnauthorized(c)
			return
		}
		id, err := auth.Verify(c.Request.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, apikeys.ErrMissingKey):
				m.AuthFailed("missing")
			case errors.Is(err, apikeys.ErrInvalidKey):
				m.AuthFailed("invalid")
			default:
				m.AuthFailed("lookup_error")
				log.Error("api key lookup failed", "error", err)
			}
			abortUnauthorized(c)
			return
		}
		if td != nil {
			td.TenantID = id.TenantID
			td.KeyID = id.KeyID
		}
		c.Set("identity", id)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context) {
	writeError(c, apierr.New(http.StatusUnauthorized, "unauthorized", errors.New("missing or invalid API key")))
	c.Abort()
}

func extractToken(c *gin.Context) string {
	if k := strings.TrimSpace(c.GetHeader("X-API-Key")); k != "" {
		return k
	}
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
