package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/dig"

	"github.com/climatequery/engine/internal/handler"
	"github.com/climatequery/engine/internal/middleware"
)

// RouterParams wires the handlers the orchestrator's HTTP surface needs.
type RouterParams struct {
	dig.In

	QueryHandler    *handler.QueryHandler
	SystemHandler   *handler.SystemHandler
	FeedbackHandler *handler.FeedbackHandler
}

// NewRouter builds the gin engine. The HTTP/SSE surface is deliberately
// thin: it adapts process_query to a request/response cycle.
func NewRouter(params RouterParams) *gin.Engine {
	r := gin.New()

	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.TracingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	{
		RegisterQueryRoutes(v1, params.QueryHandler)
		RegisterSystemRoutes(v1, params.SystemHandler)
		RegisterFeedbackRoutes(v1, params.FeedbackHandler)
	}

	return r
}

// RegisterQueryRoutes registers the single process_query operation.
func RegisterQueryRoutes(r *gin.RouterGroup, h *handler.QueryHandler) {
	queries := r.Group("/query")
	{
		queries.POST("", h.ProcessQuery)
		queries.POST("/stream", h.ProcessQueryStream)
	}
}

// RegisterSystemRoutes registers system information routes.
func RegisterSystemRoutes(r *gin.RouterGroup, h *handler.SystemHandler) {
	system := r.Group("/system")
	{
		system.GET("/info", h.GetSystemInfo)
	}
}

// RegisterFeedbackRoutes registers the enhanced-feedback submission route.
func RegisterFeedbackRoutes(r *gin.RouterGroup, h *handler.FeedbackHandler) {
	feedback := r.Group("/feedback")
	{
		feedback.POST("", h.SubmitFeedback)
	}
}
