package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"StoryToVideo-client/config"
	"StoryToVideo-client/models"
	"StoryToVideo-client/pipeline"
)

// envelope 远端服务统一响应格式
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

// ProjectInput 创建远端项目时提交的字段
type ProjectInput struct {
	UserID      string `json:"userId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	TextContent string `json:"textContent"`
}

// Client 远端生成服务的 HTTP 客户端，实现 pipeline.Generator
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

var _ pipeline.Generator = (*Client)(nil)

func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  logger.With("component", "remote_client"),
	}
}

// NewClientFromConfig 按 api.base_url / api.timeout_seconds 构造客户端
func NewClientFromConfig(cfg *config.Config, logger *slog.Logger) *Client {
	return NewClient(cfg.API.BaseURL, &http.Client{Timeout: cfg.Timeout()}, logger)
}

// CreateProject POST /projects
func (c *Client) CreateProject(ctx context.Context, in ProjectInput) (models.Project, error) {
	var p models.Project
	if err := c.do(ctx, http.MethodPost, "/projects", in, &p); err != nil {
		return models.Project{}, err
	}
	return p, nil
}

// UpdateProject PUT /projects/{id}，fields 为要修改的顶层字段
func (c *Client) UpdateProject(ctx context.Context, projectID string, fields map[string]any) (models.Project, error) {
	var p models.Project
	if err := c.do(ctx, http.MethodPut, projectPath(projectID, ""), fields, &p); err != nil {
		return models.Project{}, err
	}
	return p, nil
}

func (c *Client) GetProject(ctx context.Context, projectID string) (models.Project, error) {
	var p models.Project
	if err := c.do(ctx, http.MethodGet, projectPath(projectID, ""), nil, &p); err != nil {
		return models.Project{}, err
	}
	if p.ID == "" {
		return models.Project{}, pipeline.Wrap(pipeline.ErrNotFound, "", "get project", projectID, nil)
	}
	return p, nil
}

func (c *Client) DeleteProject(ctx context.Context, projectID string) error {
	return c.do(ctx, http.MethodDelete, projectPath(projectID, ""), nil, nil)
}

// AnalyzeText POST /analyze-text，场景列表在 data.scenes
func (c *Client) AnalyzeText(ctx context.Context, text string) ([]models.Scene, error) {
	var data struct {
		Scenes []models.Scene `json:"scenes"`
	}
	if err := c.do(ctx, http.MethodPost, "/analyze-text", map[string]string{"text": text}, &data); err != nil {
		return nil, err
	}
	return data.Scenes, nil
}

// GenerateImages 触发图片生成。data 为空表示结果稍后经推送通道到达
func (c *Client) GenerateImages(ctx context.Context, projectID string, chunks []models.TextChunk) ([]models.GeneratedImage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, projectPath(projectID, "generate-images"), chunkRequest(chunks), &raw); err != nil {
		return nil, err
	}
	images, err := decodeList[models.GeneratedImage](raw, "images", "generatedImages")
	if err != nil {
		return nil, pipeline.Wrap(pipeline.ErrNetwork, "images", "decode response", projectID, err)
	}
	for i := range images {
		images[i].Status = artifactStatus(images[i].Status, images[i].URL)
	}
	return images, nil
}

func (c *Client) GenerateAudio(ctx context.Context, projectID string, chunks []models.TextChunk) ([]models.GeneratedAudio, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, projectPath(projectID, "generate-audio"), chunkRequest(chunks), &raw); err != nil {
		return nil, err
	}
	audio, err := decodeList[models.GeneratedAudio](raw, "audio", "generatedAudio")
	if err != nil {
		return nil, pipeline.Wrap(pipeline.ErrNetwork, "audio", "decode response", projectID, err)
	}
	for i := range audio {
		audio[i].Status = artifactStatus(audio[i].Status, audio[i].URL)
	}
	return audio, nil
}

// GenerateVideo 触发视频合成；返回 nil 表示视频稍后经推送到达
func (c *Client) GenerateVideo(ctx context.Context, projectID string) (*models.GeneratedVideo, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, projectPath(projectID, "generate-video"), nil, &raw); err != nil {
		return nil, err
	}
	videos, err := decodeList[models.GeneratedVideo](raw, "video", "finalVideo")
	if err != nil {
		return nil, pipeline.Wrap(pipeline.ErrNetwork, "video", "decode response", projectID, err)
	}
	if len(videos) == 0 {
		return nil, nil
	}
	v := videos[0]
	v.Status = artifactStatus(v.Status, v.URL)
	return &v, nil
}

func (c *Client) ValidateGeneration(ctx context.Context, projectID string) (models.ValidationResult, error) {
	var res models.ValidationResult
	if err := c.do(ctx, http.MethodPost, projectPath(projectID, "validate"), nil, &res); err != nil {
		return models.ValidationResult{}, err
	}
	return res, nil
}

// do 发送请求并解开响应信封。out 为 nil 时丢弃 data
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	operation := method + " " + path

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pipeline.Wrap(pipeline.ErrValidation, "", operation, "encode request", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pipeline.Wrap(pipeline.ErrValidation, "", operation, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("remote request failed", "method", method, "path", path, "error", err)
		return pipeline.Wrap(pipeline.ErrNetwork, "", operation, "", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return pipeline.Wrap(pipeline.ErrNetwork, "", operation, "read response", err)
	}
	c.logger.Debug("remote request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"elapsed", time.Since(started),
	)

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, operation, env.reason(raw))
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if decodeErr != nil {
		return pipeline.Wrap(pipeline.ErrNetwork, "", operation, "decode envelope", decodeErr)
	}
	if !env.Success {
		return pipeline.Wrap(pipeline.ErrValidation, "", operation, env.reason(raw), nil)
	}
	if out == nil || isNull(env.Data) {
		return nil
	}
	if rm, ok := out.(*json.RawMessage); ok {
		*rm = append((*rm)[:0], env.Data...)
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return pipeline.Wrap(pipeline.ErrNetwork, "", operation, "decode data", err)
	}
	return nil
}

func (e envelope) reason(raw []byte) string {
	switch {
	case e.Error != "":
		return e.Error
	case e.Message != "":
		return e.Message
	}
	text := strings.TrimSpace(string(raw))
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	return text
}

// statusError 将 HTTP 状态码映射到错误分类
func statusError(code int, operation, reason string) error {
	msg := fmt.Sprintf("status %d", code)
	if reason != "" {
		msg += ": " + reason
	}
	switch {
	case code == http.StatusNotFound:
		return pipeline.Wrap(pipeline.ErrNotFound, "", operation, msg, nil)
	case code == http.StatusConflict:
		return pipeline.Wrap(pipeline.ErrConflict, "", operation, msg, nil)
	case code >= 500, code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return pipeline.Wrap(pipeline.ErrNetwork, "", operation, msg, nil)
	default:
		return pipeline.Wrap(pipeline.ErrValidation, "", operation, msg, nil)
	}
}

func projectPath(projectID, action string) string {
	p := "/projects/" + url.PathEscape(projectID)
	if action != "" {
		p += "/" + action
	}
	return p
}

func chunkRequest(chunks []models.TextChunk) map[string]any {
	if chunks == nil {
		chunks = []models.TextChunk{}
	}
	return map[string]any{"chunks": chunks}
}

// artifactStatus 状态缺省但已有 url 时视为完成
func artifactStatus(status, link string) string {
	if strings.TrimSpace(status) == "" && link != "" {
		return models.ArtifactCompleted
	}
	return models.NormalizeArtifactStatus(status)
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// unwrap 兼容 data 直接是数组 / 单个对象，或包在 {images: [...]} 这类对象里
func unwrap(raw json.RawMessage, keys ...string) json.RawMessage {
	if isNull(raw) {
		return nil
	}
	trimmed := bytes.TrimSpace(raw)
	if trimmed[0] != '{' || len(keys) == 0 {
		return trimmed
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return trimmed
	}
	for _, key := range keys {
		if v, ok := obj[key]; ok {
			return unwrap(v)
		}
	}
	return trimmed
}

// decodeList 解析产物列表；既没有 id 也没有 url 的对象（如排队回执）视为无结果
func decodeList[T any](raw json.RawMessage, keys ...string) ([]T, error) {
	data := unwrap(raw, keys...)
	if data == nil {
		return nil, nil
	}
	switch data[0] {
	case '[':
		var out []T
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, err
		}
		return out, nil
	case '{':
		var head struct {
			ID  string `json:"id"`
			URL string `json:"url"`
		}
		if err := json.Unmarshal(data, &head); err != nil {
			return nil, err
		}
		if head.ID == "" && head.URL == "" {
			return nil, nil
		}
		var one T
		if err := json.Unmarshal(data, &one); err != nil {
			return nil, err
		}
		return []T{one}, nil
	default:
		return nil, errors.New("unexpected data payload")
	}
}
