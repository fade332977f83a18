package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/climatequery/engine/internal/logger"
	"github.com/climatequery/engine/internal/types"
)

// Recovery converts a panic into a 500 response. The panic value and stack
// go to the log only; the client sees the request ID, never the panic.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				requestID, _ := c.Get(types.RequestIDContextKey.String())
				logger.GetLogger(c).Errorf("[PANIC] %v | %v | %s", requestID, err, debug.Stack())

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":      "Internal Server Error",
					"request_id": fmt.Sprintf("%v", requestID),
				})
			}
		}()

		c.Next()
	}
}
