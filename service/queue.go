package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"StoryToVideo-client/config"
)

const (
	TypeArchiveProject = "project:archive"
)

// ArchivePayload 归档任务参数；Epoch 用于丢弃已被重新生成覆盖的旧任务
type ArchivePayload struct {
	ProjectID string `json:"project_id"`
	Epoch     int    `json:"epoch"`
}

// Enqueuer 归档任务入队接口
type Enqueuer interface {
	EnqueueArchive(ctx context.Context, payload ArchivePayload) error
}

// RedisOpt 由配置构造 asynq 的 Redis 连接参数
func RedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	}
}

// Queue 基于 asynq 的归档队列
type Queue struct {
	client *asynq.Client
	logger *slog.Logger
}

func NewQueue(opt asynq.RedisConnOpt, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		client: asynq.NewClient(opt),
		logger: logger.With("component", "archive_queue"),
	}
}

// NewArchiveTask 同一 (project, epoch) 使用固定 TaskID，重复入队会被 asynq 拒绝
func NewArchiveTask(payload ArchivePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload failed: %w", err)
	}
	return asynq.NewTask(TypeArchiveProject, data,
		asynq.TaskID(archiveTaskID(payload)),
		asynq.MaxRetry(3),             // 失败重试 3 次
		asynq.Timeout(10*time.Minute), // 下载 + 上传视频
		asynq.Retention(24*time.Hour), // 任务结果在 Redis 保留时间
	), nil
}

func archiveTaskID(payload ArchivePayload) string {
	return fmt.Sprintf("archive:%s:%d", payload.ProjectID, payload.Epoch)
}

func (q *Queue) EnqueueArchive(ctx context.Context, payload ArchivePayload) error {
	task, err := NewArchiveTask(payload)
	if err != nil {
		return err
	}
	info, err := q.client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		q.logger.Debug("archive already queued", "project_id", payload.ProjectID, "epoch", payload.Epoch)
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue failed: %w", err)
	}
	q.logger.Info("archive task enqueued",
		"project_id", payload.ProjectID,
		"epoch", payload.Epoch,
		"task_id", info.ID,
		"queue", info.Queue,
	)
	return nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}
