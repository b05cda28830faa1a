package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// DefaultPath 未指定 --config 时读取的配置文件
const DefaultPath = "config/config.yaml"

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	// API 远端生成服务
	API struct {
		BaseURL        string `yaml:"base_url"`
		PushURL        string `yaml:"push_url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"api"`
	Pipeline struct {
		VideoReadiness string `yaml:"video_readiness"` // all | any
		FanOut         int    `yaml:"fan_out"`
	} `yaml:"pipeline"`
	MySQL struct {
		DSN string `yaml:"dsn"`
	} `yaml:"mysql"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
	} `yaml:"redis"`
	Worker struct {
		Concurrency int `yaml:"concurrency"`
	} `yaml:"worker"`
	MinIO struct {
		Endpoint  string `yaml:"endpoint"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
		Bucket    string `yaml:"bucket"`
		UseSSL    bool   `yaml:"use_ssl"`
	} `yaml:"minio"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default 返回内置默认值
func Default() Config {
	var cfg Config
	cfg.Server.Port = ":8080"
	cfg.API.BaseURL = "http://localhost:8000/api"
	cfg.API.TimeoutSeconds = 60
	cfg.Pipeline.VideoReadiness = "all"
	cfg.Pipeline.FanOut = 4
	cfg.Worker.Concurrency = 2
	cfg.MinIO.Bucket = "story-to-video"
	cfg.Log.Level = "info"
	cfg.Log.Format = "console"
	return cfg
}

// Load 依次叠加：默认值 → YAML 文件 → .env → STV_* 环境变量，最后校验。
// path 为空时尝试 DefaultPath，不存在则只用默认值。
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = DefaultPath
	}
	if err := cfg.readFile(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	if err := loadEnvFiles(filepath.Dir(path)); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) readFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("配置文件读取失败: %w", err)
	}
	defer f.Close()
	if err := yaml.NewDecoder(f).Decode(c); err != nil {
		return fmt.Errorf("配置文件解析失败 %s: %w", path, err)
	}
	return nil
}

// loadEnvFiles 加载配置目录与当前目录下的 .env，不覆盖已有环境变量
func loadEnvFiles(dir string) error {
	seen := map[string]struct{}{}
	for _, candidate := range []string{filepath.Join(dir, ".env"), ".env"} {
		abs, err := filepath.Abs(candidate)
		if err != nil {
			abs = candidate
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		if err := godotenv.Load(candidate); err != nil {
			return fmt.Errorf("failed to load %s: %w", candidate, err)
		}
	}
	return nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"STV_SERVER_PORT":      &c.Server.Port,
		"STV_API_BASE_URL":     &c.API.BaseURL,
		"STV_API_PUSH_URL":     &c.API.PushURL,
		"STV_VIDEO_READINESS":  &c.Pipeline.VideoReadiness,
		"STV_MYSQL_DSN":        &c.MySQL.DSN,
		"STV_REDIS_ADDR":       &c.Redis.Addr,
		"STV_REDIS_PASSWORD":   &c.Redis.Password,
		"STV_MINIO_ENDPOINT":   &c.MinIO.Endpoint,
		"STV_MINIO_ACCESS_KEY": &c.MinIO.AccessKey,
		"STV_MINIO_SECRET_KEY": &c.MinIO.SecretKey,
		"STV_MINIO_BUCKET":     &c.MinIO.Bucket,
		"STV_LOG_LEVEL":        &c.Log.Level,
		"STV_LOG_FORMAT":       &c.Log.Format,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	ints := map[string]*int{
		"STV_API_TIMEOUT_SECONDS": &c.API.TimeoutSeconds,
		"STV_FAN_OUT":             &c.Pipeline.FanOut,
		"STV_WORKER_CONCURRENCY":  &c.Worker.Concurrency,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}

	if v, ok := os.LookupEnv("STV_MINIO_USE_SSL"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("STV_MINIO_USE_SSL: %w", err)
		}
		c.MinIO.UseSSL = b
	}
	return nil
}

// Validate 校验配置并补齐推导值（push_url 缺省时由 base_url 推导）
func (c *Config) Validate() error {
	base, err := url.Parse(strings.TrimSpace(c.API.BaseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return fmt.Errorf("api.base_url: invalid url %q", c.API.BaseURL)
	}
	c.API.BaseURL = strings.TrimRight(base.String(), "/")

	if strings.TrimSpace(c.API.PushURL) == "" {
		c.API.PushURL = derivePushURL(base)
	}
	push, err := url.Parse(c.API.PushURL)
	if err != nil || (push.Scheme != "ws" && push.Scheme != "wss") {
		return fmt.Errorf("api.push_url: expected ws:// or wss:// url, got %q", c.API.PushURL)
	}
	c.API.PushURL = strings.TrimRight(push.String(), "/")

	if c.API.TimeoutSeconds <= 0 {
		return fmt.Errorf("api.timeout_seconds must be positive")
	}
	switch strings.ToLower(strings.TrimSpace(c.Pipeline.VideoReadiness)) {
	case "", "all", "any":
	default:
		return fmt.Errorf("pipeline.video_readiness: unknown policy %q", c.Pipeline.VideoReadiness)
	}
	if c.Pipeline.FanOut <= 0 {
		return fmt.Errorf("pipeline.fan_out must be positive")
	}
	if c.Worker.Concurrency <= 0 {
		c.Worker.Concurrency = 1
	}
	if c.ArchiveEnabled() && strings.TrimSpace(c.MinIO.Bucket) == "" {
		return fmt.Errorf("minio.bucket is required when archiving is enabled")
	}
	return nil
}

// derivePushURL 推送地址默认与 API 同主机：ws(s)://host/ws
func derivePushURL(base *url.URL) string {
	scheme := "ws"
	if base.Scheme == "https" {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: base.Host, Path: "/ws"}
	return u.String()
}

// Timeout 单次远端请求超时
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// StoreEnabled 配置了 MySQL 时持久化项目快照
func (c *Config) StoreEnabled() bool {
	return strings.TrimSpace(c.MySQL.DSN) != ""
}

// ArchiveEnabled 同时配置 Redis 与 MinIO 时启用归档
func (c *Config) ArchiveEnabled() bool {
	return strings.TrimSpace(c.Redis.Addr) != "" && strings.TrimSpace(c.MinIO.Endpoint) != ""
}
