package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TraceIDKey is the Gin context key holding the per-request trace ID.
const TraceIDKey = "trace_id"

// TraceIDHeader carries the trace ID on requests and responses, so a
// client (or an upstream proxy) can correlate logs across hops.
const TraceIDHeader = "X-Trace-ID"

// TraceID assigns every request a trace ID. An ID supplied by the
// caller in the header is honored; otherwise a fresh UUID is minted.
// The ID is stored in the context and echoed in the response header.
func TraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(TraceIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(TraceIDKey, id)
		c.Header(TraceIDHeader, id)
		c.Next()
	}
}

// GetTraceID returns the request's trace ID, or "" when the TraceID
// middleware did not run.
func GetTraceID(c *gin.Context) string {
	if v, ok := c.Get(TraceIDKey); ok {
		return v.(string)
	}
	return ""
}
