package middleware

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/climatequery/engine/internal/tracing"
	"github.com/climatequery/engine/internal/types"
)

// maxRecordedBody bounds how much request/response content is attached to
// a span; a long generated answer doesn't need to be carried in full.
const maxRecordedBody = 4096

type responseBodyWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (r responseBodyWriter) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// TracingMiddleware opens one span per HTTP request, recording the method,
// path, a bounded copy of the query payload and response, and the final
// status. Authorization and cookie headers are never recorded.
func TracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if tracing.GetTracer() == nil {
			c.Next()
			return
		}

		spanName := fmt.Sprintf("%s %s", c.Request.Method, c.FullPath())
		ctx, span := tracing.ContextWithSpan(c.Request.Context(), spanName)
		defer span.End()

		span.SetAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.url", c.Request.URL.String()),
			attribute.String("http.path", c.FullPath()),
		)
		if requestID := c.GetString(string(types.RequestIDContextKey)); requestID != "" {
			span.SetAttributes(attribute.String("request.id", requestID))
		}

		for key, values := range c.Request.Header {
			lower := strings.ToLower(key)
			if lower == "authorization" || lower == "cookie" {
				continue
			}
			span.SetAttributes(attribute.String("http.request.header."+key, strings.Join(values, ";")))
		}

		if c.Request.Body != nil &&
			(c.Request.Method == "POST" || c.Request.Method == "PUT" || c.Request.Method == "PATCH") {
			bodyBytes, _ := io.ReadAll(c.Request.Body)
			span.SetAttributes(attribute.String("http.request.body", truncateForSpan(bodyBytes)))
			c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
		}
		if len(c.Request.URL.RawQuery) > 0 {
			span.SetAttributes(attribute.String("http.request.query", c.Request.URL.RawQuery))
		}

		c.Request = c.Request.WithContext(ctx)

		responseBody := &bytes.Buffer{}
		c.Writer = &responseBodyWriter{ResponseWriter: c.Writer, body: responseBody}

		c.Next()

		statusCode := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", statusCode))
		if responseBody.Len() > 0 {
			span.SetAttributes(attribute.String("http.response.body", truncateForSpan(responseBody.Bytes())))
		}

		if statusCode >= 400 {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", statusCode))
			if err := c.Errors.Last(); err != nil {
				span.RecordError(err.Err)
			}
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
}

func truncateForSpan(b []byte) string {
	if len(b) > maxRecordedBody {
		return string(b[:maxRecordedBody]) + "...(truncated)"
	}
	return string(b)
}
