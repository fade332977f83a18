package middleware

import (
	"context"
	"time"

	"github.com/climatequery/engine/internal/logger"
	"github.com/climatequery/engine/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestID threads a correlation id through the gin context, the request
// context, and the request-scoped logger, honoring a caller-supplied
// X-Request-ID so an upstream proxy's id survives into our logs.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header("X-Request-ID", requestID)
		c.Set(types.RequestIDContextKey.String(), requestID)

		requestLogger := logger.GetLogger(c).WithField("request_id", requestID)
		c.Set(types.LoggerContextKey.String(), requestLogger)

		c.Request = c.Request.WithContext(
			context.WithValue(
				context.WithValue(c.Request.Context(), types.RequestIDContextKey, requestID),
				types.LoggerContextKey, requestLogger,
			),
		)

		c.Next()
	}
}

// Logger writes one access-log line per request after the handler chain
// completes.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		requestID, exists := c.Get(types.RequestIDContextKey.String())
		if !exists {
			requestID = "unknown"
		}

		logger.GetLogger(c).Infof("[%s] %d | %3d | %13v | %15s | %s %s",
			requestID,
			c.Writer.Status(),
			c.Writer.Size(),
			time.Since(start),
			c.ClientIP(),
			c.Request.Method,
			path,
		)
	}
}
