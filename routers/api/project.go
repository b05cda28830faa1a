package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"StoryToVideo-client/models"
	"StoryToVideo-client/pipeline"
	"StoryToVideo-client/service"
)

// ProjectService 处理函数依赖的工作区操作，*service.Workspace 即满足
type ProjectService interface {
	Create(ctx context.Context, in service.ProjectInput) (models.Project, error)
	Open(ctx context.Context, projectID string) (models.Project, error)
	ReplaceText(ctx context.Context, projectID, text string) (models.Project, error)
	Delete(ctx context.Context, projectID string) error
	Close(projectID string) error
	Run(ctx context.Context, projectID string, stage models.Stage, chunks []models.TextChunk) (models.Project, error)
	Regenerate(ctx context.Context, projectID string, stage models.Stage, ids ...string) (models.Project, error)
	Validate(ctx context.Context, projectID string) (models.ValidationResult, error)
	Watch(projectID string) (<-chan models.Project, func())
	Tracker() pipeline.Tracker
}

var _ ProjectService = (*service.Workspace)(nil)

type Handler struct {
	Projects ProjectService
	Logger   *slog.Logger
}

func NewHandler(projects ProjectService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Projects: projects, Logger: logger.With("component", "api")}
}

// ProjectView 项目快照 + 各阶段状态与可执行操作
type ProjectView struct {
	Project      models.Project                       `json:"project"`
	Stages       models.StageStates                   `json:"stages"`
	Capabilities map[models.Stage]pipeline.Capability `json:"capabilities"`
}

func (h *Handler) view(p models.Project) ProjectView {
	tracker := h.Projects.Tracker()
	return ProjectView{
		Project:      p,
		Stages:       tracker.Statuses(p),
		Capabilities: tracker.Capabilities(p),
	}
}

// 错误分类映射到 HTTP 状态码
func (h *Handler) fail(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, pipeline.ErrValidation):
		code = http.StatusBadRequest
	case errors.Is(err, pipeline.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, pipeline.ErrConflict):
		code = http.StatusConflict
	case errors.Is(err, pipeline.ErrNetwork):
		code = http.StatusBadGateway
	}
	if code >= http.StatusInternalServerError {
		h.Logger.Warn("request failed", "path", c.FullPath(), "project_id", c.Param("project_id"), "error", err)
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

// 创建项目：POST /v1/api/projects
func (h *Handler) CreateProject(c *gin.Context) {
	var req service.ProjectInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.Projects.Create(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.view(p))
}

// 获取项目详情：GET /v1/api/projects/:project_id
func (h *Handler) GetProject(c *gin.Context) {
	p, err := h.Projects.Open(c.Request.Context(), c.Param("project_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(p))
}

// 修改源文本：PUT /v1/api/projects/:project_id/text
func (h *Handler) ReplaceText(c *gin.Context) {
	var req struct {
		TextContent *string `json:"textContent"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.TextContent == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "textContent is required"})
		return
	}
	p, err := h.Projects.ReplaceText(c.Request.Context(), c.Param("project_id"), *req.TextContent)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(p))
}

// 删除项目（远端 + 本地）
func (h *Handler) DeleteProject(c *gin.Context) {
	projectID := c.Param("project_id")
	if err := h.Projects.Delete(c.Request.Context(), projectID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project_id": projectID, "deleted": true})
}

// 停止观察项目（只影响本地）
func (h *Handler) CloseProject(c *gin.Context) {
	projectID := c.Param("project_id")
	if err := h.Projects.Close(projectID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project_id": projectID, "closed": true})
}

// 执行阶段：POST /v1/api/projects/:project_id/stages/:stage/run，body 可选 {chunks}
func (h *Handler) RunStage(c *gin.Context) {
	stage, ok := models.ParseStage(c.Param("stage"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown stage: " + c.Param("stage")})
		return
	}
	var req struct {
		Chunks []models.TextChunk `json:"chunks"`
	}
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.Projects.Run(c.Request.Context(), c.Param("project_id"), stage, req.Chunks)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(p))
}

// 重新生成：POST /v1/api/projects/:project_id/stages/:stage/regenerate，body 可选 {ids}
func (h *Handler) RegenerateStage(c *gin.Context) {
	stage, ok := models.ParseStage(c.Param("stage"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown stage: " + c.Param("stage")})
		return
	}
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.Projects.Regenerate(c.Request.Context(), c.Param("project_id"), stage, req.IDs...)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(p))
}

// 校验生成结果
func (h *Handler) ValidateProject(c *gin.Context) {
	projectID := c.Param("project_id")
	res, err := h.Projects.Validate(c.Request.Context(), projectID)
	if err != nil {
		h.fail(c, err)
		return
	}
	resp := gin.H{"validation": res}
	if p, err := h.Projects.Open(c.Request.Context(), projectID); err == nil {
		resp["project"] = h.view(p)
	}
	c.JSON(http.StatusOK, resp)
}

// bindOptionalJSON 空 body 视为没有参数
func bindOptionalJSON(c *gin.Context, dst any) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
