package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"StoryToVideo-client/config"
)

// ObjectStore 归档产物的对象存储
type ObjectStore interface {
	// Upload 写入 objectName 并返回可访问的 URL；size 为 -1 表示未知大小
	Upload(ctx context.Context, objectName string, reader io.Reader, size int64) (string, error)
}

// MinIOStore ObjectStore 的 MinIO 实现
type MinIOStore struct {
	client *minio.Client
	bucket string
	expiry time.Duration
	logger *slog.Logger

	bucketMu    sync.Mutex
	bucketReady bool
}

var _ ObjectStore = (*MinIOStore)(nil)

// NewMinIOStore 初始化连接，在 serve 中调用
func NewMinIOStore(cfg *config.Config, logger *slog.Logger) (*MinIOStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := cfg.MinIO
	client, err := minio.New(m.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(m.AccessKey, m.SecretKey, ""),
		Secure: m.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("MinIO 初始化失败: %w", err)
	}
	return &MinIOStore{
		client: client,
		bucket: m.Bucket,
		expiry: 72 * time.Hour,
		logger: logger.With("component", "minio", "bucket", m.Bucket),
	}, nil
}

// ensureBucket 首次上传时检查并自动创建 Bucket；失败时下次上传重试
func (s *MinIOStore) ensureBucket(ctx context.Context) error {
	s.bucketMu.Lock()
	defer s.bucketMu.Unlock()
	if s.bucketReady {
		return nil
	}
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("检查 Bucket 失败: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("创建 Bucket 失败: %w", err)
		}
		s.logger.Info("bucket created")
	}
	s.bucketReady = true
	return nil
}

func (s *MinIOStore) Upload(ctx context.Context, objectName string, reader io.Reader, size int64) (string, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return "", err
	}
	_, err := s.client.PutObject(ctx, s.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentTypeFor(objectName),
	})
	if err != nil {
		return "", fmt.Errorf("上传到 MinIO 失败: %w", err)
	}

	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, s.expiry, make(url.Values))
	if err != nil {
		return "", fmt.Errorf("生成签名 URL 失败: %w", err)
	}
	s.logger.Debug("object uploaded", "object", objectName)
	return presigned.String(), nil
}

// contentTypeFor 根据文件扩展名确定 ContentType
func contentTypeFor(objectName string) string {
	switch strings.ToLower(filepath.Ext(objectName)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}
