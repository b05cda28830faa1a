package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"StoryToVideo-client/models"
	"StoryToVideo-client/pipeline"
)

// 归档结果（metrics 标签）
const (
	ArchiveOutcomeArchived = "archived"
	ArchiveOutcomeSkipped  = "skipped"
	ArchiveOutcomeFailed   = "failed"
)

// ProjectSource 读取当前项目快照，pipeline.Arena 即满足
type ProjectSource interface {
	Get(id string) (models.Project, bool)
}

// ArchiveRecorder 记录归档结果
type ArchiveRecorder interface {
	ArchiveFinished(outcome string)
}

type nopArchiveRecorder struct{}

func (nopArchiveRecorder) ArchiveFinished(string) {}

// Archiver 处理 project:archive 任务：把最终视频和已完成的图片 / 音频转存到对象存储
type Archiver struct {
	source   ProjectSource
	store    ObjectStore
	http     *http.Client
	logger   *slog.Logger
	recorder ArchiveRecorder
}

func NewArchiver(source ProjectSource, store ObjectStore, httpClient *http.Client, logger *slog.Logger, recorder ArchiveRecorder) *Archiver {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = nopArchiveRecorder{}
	}
	return &Archiver{
		source:   source,
		store:    store,
		http:     httpClient,
		logger:   logger.With("component", "archiver"),
		recorder: recorder,
	}
}

// Mux 注册归档任务处理函数
func (a *Archiver) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeArchiveProject, a.HandleArchiveTask)
	return mux
}

// StartProcessor 启动任务消费者；调用方负责 Shutdown
func (a *Archiver) StartProcessor(opt asynq.RedisConnOpt, concurrency int) (*asynq.Server, error) {
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			"default": 1,
		},
	})
	if err := srv.Start(a.Mux()); err != nil {
		return nil, fmt.Errorf("could not start archive processor: %w", err)
	}
	a.logger.Info("archive processor started", "concurrency", concurrency)
	return srv, nil
}

// HandleArchiveTask 核心处理逻辑
func (a *Archiver) HandleArchiveTask(ctx context.Context, t *asynq.Task) error {
	var payload ArchivePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		a.recorder.ArchiveFinished(ArchiveOutcomeFailed)
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	logger := a.logger.With("project_id", payload.ProjectID, "epoch", payload.Epoch)

	p, ok := a.source.Get(payload.ProjectID)
	switch {
	case !ok:
		logger.Info("archive skipped: project no longer held")
		a.recorder.ArchiveFinished(ArchiveOutcomeSkipped)
		return nil
	case p.Epoch != payload.Epoch || p.FinalVideo == nil:
		// 视频已被重新生成或源文本已修改，新 epoch 会另行入队
		logger.Info("archive skipped: project moved on", "current_epoch", p.Epoch)
		a.recorder.ArchiveFinished(ArchiveOutcomeSkipped)
		return nil
	}

	objects, err := a.Archive(ctx, p)
	if err != nil {
		logger.Warn("archive failed", "uploaded", len(objects), "error", err)
		a.recorder.ArchiveFinished(ArchiveOutcomeFailed)
		return err // 返回 err 触发重试
	}
	logger.Info("project archived", "objects", len(objects))
	a.recorder.ArchiveFinished(ArchiveOutcomeArchived)
	return nil
}

// Archive 上传项目产物，返回已上传的对象名
//
//	projects/{id}/video.mp4
//	projects/{id}/images/{order}-{imageID}.png
//	projects/{id}/audio/{audioID}.mp3
func (a *Archiver) Archive(ctx context.Context, p models.Project) ([]string, error) {
	type item struct {
		url    string
		object string
	}
	var items []item
	if p.FinalVideo != nil && p.FinalVideo.URL != "" {
		items = append(items, item{p.FinalVideo.URL, fmt.Sprintf("projects/%s/video.mp4", p.ID)})
	}
	for _, img := range p.GeneratedImages {
		if img.Status == models.ArtifactCompleted && img.URL != "" {
			items = append(items, item{img.URL, fmt.Sprintf("projects/%s/images/%d-%s.png", p.ID, img.Order, img.ID)})
		}
	}
	for _, au := range p.GeneratedAudio {
		if au.Status == models.ArtifactCompleted && au.URL != "" {
			items = append(items, item{au.URL, fmt.Sprintf("projects/%s/audio/%s.mp3", p.ID, au.ID)})
		}
	}

	uploaded := make([]string, 0, len(items))
	for _, it := range items {
		if err := a.downloadAndUpload(ctx, it.url, it.object); err != nil {
			return uploaded, fmt.Errorf("archive %s: %w", it.object, err)
		}
		uploaded = append(uploaded, it.object)
	}
	return uploaded, nil
}

func (a *Archiver) downloadAndUpload(ctx context.Context, sourceURL, objectName string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download status: %d", resp.StatusCode)
	}
	if _, err := a.store.Upload(ctx, objectName, resp.Body, resp.ContentLength); err != nil {
		return err
	}
	return nil
}

// ArchiveOnCompletion 返回 arena 钩子：项目进入 completed 时每个 (project, epoch) 入队一次
func ArchiveOnCompletion(q Enqueuer, logger *slog.Logger) pipeline.ReplaceHook {
	if logger == nil {
		logger = slog.Default()
	}
	var (
		mu   sync.Mutex
		sent = make(map[string]int)
	)
	return func(p models.Project) {
		if p.Status != models.ProjectStatusCompleted || p.FinalVideo == nil {
			return
		}
		mu.Lock()
		if epoch, ok := sent[p.ID]; ok && epoch == p.Epoch {
			mu.Unlock()
			return
		}
		sent[p.ID] = p.Epoch
		mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := q.EnqueueArchive(ctx, ArchivePayload{ProjectID: p.ID, Epoch: p.Epoch}); err != nil {
			logger.Warn("archive enqueue failed", "project_id", p.ID, "epoch", p.Epoch, "error", err)
			mu.Lock()
			if sent[p.ID] == p.Epoch {
				delete(sent, p.ID)
			}
			mu.Unlock()
		}
	}
}
