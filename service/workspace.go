package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"StoryToVideo-client/models"
	"StoryToVideo-client/pipeline"
)

// Remote 远端项目的增删改查，*Client 即满足
type Remote interface {
	CreateProject(ctx context.Context, in ProjectInput) (models.Project, error)
	UpdateProject(ctx context.Context, projectID string, fields map[string]any) (models.Project, error)
	GetProject(ctx context.Context, projectID string) (models.Project, error)
	DeleteProject(ctx context.Context, projectID string) error
}

// SnapshotStore 本地快照持久化，*models.Store 即满足
type SnapshotStore interface {
	Save(ctx context.Context, p models.Project) error
	List(ctx context.Context) ([]models.Project, error)
	Delete(ctx context.Context, id string) error
}

// Workspace 本地工作区：远端项目、快照 arena、编排客户端与推送订阅
type Workspace struct {
	remote     Remote
	orch       *pipeline.Orchestrator
	reconciler *pipeline.Reconciler
	store      SnapshotStore
	logger     *slog.Logger
}

// NewWorkspace store 可以为 nil（未配置 MySQL）
func NewWorkspace(remote Remote, orch *pipeline.Orchestrator, reconciler *pipeline.Reconciler, store SnapshotStore, logger *slog.Logger) *Workspace {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workspace{
		remote:     remote,
		orch:       orch,
		reconciler: reconciler,
		store:      store,
		logger:     logger.With("component", "workspace"),
	}
}

func (w *Workspace) Arena() *pipeline.Arena {
	return w.orch.Arena()
}

func (w *Workspace) Tracker() pipeline.Tracker {
	return w.orch.Arena().Tracker()
}

// Create 先在远端创建项目，再以远端 id 建立本地草稿快照并订阅推送
func (w *Workspace) Create(ctx context.Context, in ProjectInput) (models.Project, error) {
	remote, err := w.remote.CreateProject(ctx, in)
	if err != nil {
		return models.Project{}, err
	}
	if strings.TrimSpace(remote.ID) == "" {
		return models.Project{}, pipeline.Wrap(pipeline.ErrNetwork, "", "create project", "remote returned no id", nil)
	}
	p := models.NewProject(in.TextContent)
	p.ID = remote.ID
	p.UserID = firstNonEmpty(remote.UserID, in.UserID)
	p.Title = firstNonEmpty(remote.Title, in.Title)
	p.Description = firstNonEmpty(remote.Description, in.Description)
	if !remote.CreatedAt.IsZero() {
		p.CreatedAt = remote.CreatedAt
	}
	stored := w.Arena().Put(p)
	w.observe(ctx, stored.ID)
	w.logger.Info("project created", "project_id", stored.ID)
	return stored, nil
}

// Open 返回本地快照；本地没有时从远端拉取并开始观察
func (w *Workspace) Open(ctx context.Context, projectID string) (models.Project, error) {
	if p, ok := w.Arena().Get(projectID); ok {
		return p, nil
	}
	remote, err := w.remote.GetProject(ctx, projectID)
	if err != nil {
		return models.Project{}, err
	}
	remote.ID = projectID
	stored := w.Arena().Put(AdoptRemote(remote))
	w.observe(ctx, projectID)
	w.logger.Info("project opened", "project_id", projectID, "status", stored.Status)
	return stored, nil
}

func (w *Workspace) Get(projectID string) (models.Project, bool) {
	return w.Arena().Get(projectID)
}

// ReplaceText 外部编辑源文本：远端写入成功后本地清空派生产物
func (w *Workspace) ReplaceText(ctx context.Context, projectID, text string) (models.Project, error) {
	if _, err := w.Open(ctx, projectID); err != nil {
		return models.Project{}, err
	}
	if _, err := w.remote.UpdateProject(ctx, projectID, map[string]any{"textContent": text}); err != nil {
		return models.Project{}, err
	}
	return w.Arena().Update(projectID, func(p models.Project) (models.Project, error) {
		if p.TextContent == text {
			return p, nil
		}
		return p.ReplaceText(text), nil
	})
}

// Delete 删除远端项目并丢弃本地快照；远端已不存在时视为成功
func (w *Workspace) Delete(ctx context.Context, projectID string) error {
	if err := w.remote.DeleteProject(ctx, projectID); err != nil && !errors.Is(err, pipeline.ErrNotFound) {
		return err
	}
	w.forget(projectID)
	if w.store != nil {
		if err := w.store.Delete(ctx, projectID); err != nil {
			w.logger.Warn("snapshot delete failed", "project_id", projectID, "error", err)
		}
	}
	w.logger.Info("project deleted", "project_id", projectID)
	return nil
}

// Close 停止观察项目：取消订阅并移出 arena，迟到的结果与推送都会被丢弃
func (w *Workspace) Close(projectID string) error {
	if _, ok := w.Arena().Get(projectID); !ok {
		return pipeline.Wrap(pipeline.ErrNotFound, "", "close", projectID, nil)
	}
	w.forget(projectID)
	w.logger.Info("project closed", "project_id", projectID)
	return nil
}

// Run 执行一个阶段。调用方断开不会取消已发出的远端请求
func (w *Workspace) Run(ctx context.Context, projectID string, stage models.Stage, chunks []models.TextChunk) (models.Project, error) {
	if _, err := w.Open(ctx, projectID); err != nil {
		return models.Project{}, err
	}
	return w.orch.Run(context.WithoutCancel(ctx), projectID, stage, chunks)
}

func (w *Workspace) Regenerate(ctx context.Context, projectID string, stage models.Stage, ids ...string) (models.Project, error) {
	if _, err := w.Open(ctx, projectID); err != nil {
		return models.Project{}, err
	}
	return w.orch.Regenerate(context.WithoutCancel(ctx), projectID, stage, ids...)
}

func (w *Workspace) Validate(ctx context.Context, projectID string) (models.ValidationResult, error) {
	if _, err := w.Open(ctx, projectID); err != nil {
		return models.ValidationResult{}, err
	}
	return w.orch.Validate(ctx, projectID)
}

func (w *Workspace) Watch(projectID string) (<-chan models.Project, func()) {
	return w.Arena().Watch(projectID)
}

// Restore 启动时从快照存储加载项目并重新订阅推送
func (w *Workspace) Restore(ctx context.Context) (int, error) {
	if w.store == nil {
		return 0, nil
	}
	projects, err := w.store.List(ctx)
	if err != nil {
		return 0, err
	}
	for _, p := range projects {
		w.Arena().Put(settleRestored(AdoptRemote(p)))
		w.observe(ctx, p.ID)
	}
	w.logger.Info("snapshots restored", "count", len(projects))
	return len(projects), nil
}

// Shutdown 关闭所有推送订阅
func (w *Workspace) Shutdown() {
	if w.reconciler != nil {
		w.reconciler.Close()
	}
}

func (w *Workspace) observe(ctx context.Context, projectID string) {
	if w.reconciler == nil {
		return
	}
	if _, err := w.reconciler.Subscribe(ctx, projectID); err != nil {
		// 推送不可用时仍可依赖同步响应中的结果
		w.logger.Warn("push subscription failed", "project_id", projectID, "error", err)
	}
}

func (w *Workspace) forget(projectID string) {
	if w.reconciler != nil {
		if err := w.reconciler.Unsubscribe(projectID); err != nil {
			w.logger.Debug("push unsubscribe", "project_id", projectID, "error", err)
		}
	}
	w.Arena().Delete(projectID)
}

// PersistSnapshots 返回 arena 钩子：每次快照替换都写入存储
func PersistSnapshots(store SnapshotStore, logger *slog.Logger) pipeline.ReplaceHook {
	if logger == nil {
		logger = slog.Default()
	}
	return func(p models.Project) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Save(ctx, p); err != nil {
			logger.Warn("snapshot save failed", "project_id", p.ID, "error", err)
		}
	}
}

// AdoptRemote 把远端或存储中读出的项目整理成可发布的快照
func AdoptRemote(p models.Project) models.Project {
	p = p.Clone()
	if p.Scenes == nil {
		p.Scenes = []models.Scene{}
	}
	p.Scenes = models.NormalizeScenes(p.Scenes)
	if p.GeneratedImages == nil {
		p.GeneratedImages = []models.GeneratedImage{}
	}
	for i := range p.GeneratedImages {
		p.GeneratedImages[i].Status = artifactStatus(p.GeneratedImages[i].Status, p.GeneratedImages[i].URL)
	}
	if p.GeneratedAudio == nil {
		p.GeneratedAudio = []models.GeneratedAudio{}
	}
	for i := range p.GeneratedAudio {
		p.GeneratedAudio[i].Status = artifactStatus(p.GeneratedAudio[i].Status, p.GeneratedAudio[i].URL)
	}
	if p.FinalVideo != nil {
		p.FinalVideo.Status = artifactStatus(p.FinalVideo.Status, p.FinalVideo.URL)
	}
	if p.Stages == nil {
		p.Stages = models.NewStageStates()
	}
	if p.Status == "" {
		p.Status = models.ProjectStatusDraft
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	return p
}

// settleRestored 重启后本进程没有在途的分析 / 视频请求；图片与音频仍可由推送补齐
func settleRestored(p models.Project) models.Project {
	for _, stage := range []models.Stage{models.StageAnalysis, models.StageVideo} {
		if p.Stages.Get(stage) == models.StageInFlight {
			p.Stages[stage] = models.StageNotStarted
		}
	}
	p.ProcessingStep = nil
	return p
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
