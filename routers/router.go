package routers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"StoryToVideo-client/routers/api"
)

// InitRouter metrics 为 nil 时不暴露 /metrics
func InitRouter(h *api.Handler, metrics http.Handler, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))
	v1 := r.Group("/v1/api")
	{
		v1.POST("/projects", h.CreateProject)
		v1.GET("/projects/:project_id", h.GetProject)
		v1.PUT("/projects/:project_id/text", h.ReplaceText)
		v1.DELETE("/projects/:project_id", h.DeleteProject)
		v1.POST("/projects/:project_id/close", h.CloseProject)
		v1.POST("/projects/:project_id/stages/:stage/run", h.RunStage)
		v1.POST("/projects/:project_id/stages/:stage/regenerate", h.RegenerateStage)
		v1.POST("/projects/:project_id/validate", h.ValidateProject)
	}
	r.GET("/projects/:project_id/wss", h.ProjectWebSocket)
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}
	return r
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(started),
		)
	}
}
