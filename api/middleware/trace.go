package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tradefleet/fleet-autoscaler/internal/logger"
)

// TraceIDHeader carries the request trace ID. Inbound values are trusted
// as-is so operators can correlate across the trading gateway's own IDs.
const TraceIDHeader = "X-Fleet-Trace"

const traceContextKey = "trace_id"

func TraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceIDHeader)
		if traceID == "" {
			traceID = uuid.New().String()
		}

		c.Set(traceContextKey, traceID)
		c.Header(TraceIDHeader, traceID)

		// Propagate into the request context so logger.WithCtx picks it
		// up in handlers and everything they call.
		c.Request = c.Request.WithContext(logger.WithTraceID(c.Request.Context(), traceID))

		c.Next()
	}
}

func GetTraceID(c *gin.Context) string {
	if traceID, exists := c.Get(traceContextKey); exists {
		return traceID.(string)
	}
	return ""
}
