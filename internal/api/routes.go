package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes 挂载同步相关的路由
func RegisterRoutes(r gin.IRouter, h *HTTPHandler) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.POST("/callbacks/kie", h.KieCallback)

	protected := api.Group("")
	protected.Use(h.AuthMiddleware())
	{
		protected.GET("/generations/events", h.StreamGenerationEvents)

		ops := protected.Group("")
		ops.Use(h.RequireOperator())
		ops.POST("/generations/:taskId/sync", h.SyncGeneration)
	}
}
