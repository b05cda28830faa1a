package models

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrSnapshotNotFound Load 时该 id 没有记录
var ErrSnapshotNotFound = errors.New("project snapshot not found")

// ProjectData 项目快照的 JSON 列
type ProjectData Project

// 实现 driver.Valuer 接口: Go Struct -> JSON String (存入数据库)
func (d ProjectData) Value() (driver.Value, error) {
	return json.Marshal(Project(d))
}

// 实现 sql.Scanner 接口: JSON String -> Go Struct (从数据库读取)
func (d *ProjectData) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported project_snapshot.data value %T", value)
	}
	var p Project
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decode project snapshot: %w", err)
	}
	*d = ProjectData(p)
	return nil
}

// ProjectRecord 本地持久化的项目快照（每次快照替换时写入）
type ProjectRecord struct {
	ID        string      `gorm:"primaryKey;type:varchar(64)"`
	Status    string      `gorm:"type:varchar(32);index"`
	Progress  int         `gorm:"not null;default:0"`
	Epoch     int         `gorm:"not null;default:0"`
	Data      ProjectData `gorm:"type:json"`
	UpdatedAt time.Time
}

func (ProjectRecord) TableName() string {
	return "project_snapshot"
}

// NewProjectRecord 快照转为表记录
func NewProjectRecord(p Project) ProjectRecord {
	return ProjectRecord{
		ID:        p.ID,
		Status:    p.Status,
		Progress:  p.Progress,
		Epoch:     p.Epoch,
		Data:      ProjectData(p.Clone()),
		UpdatedAt: time.Now(),
	}
}

// Store 基于 MySQL + GORM 的快照存储
type Store struct {
	DB     *sql.DB
	GormDB *gorm.DB
}

// NewStore 打开数据库连接并自动建表
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn: db,
	}), &gorm.Config{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("GORM 初始化失败: %w", err)
	}
	if err := gormDB.AutoMigrate(&ProjectRecord{}); err != nil {
		db.Close()
		return nil, fmt.Errorf("自动建表失败: %w", err)
	}
	return &Store{DB: db, GormDB: gormDB}, nil
}

// Save 以 upsert 方式写入最新快照
func (s *Store) Save(ctx context.Context, p Project) error {
	rec := NewProjectRecord(p)
	return s.GormDB.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error
}

func (s *Store) Load(ctx context.Context, id string) (Project, error) {
	var rec ProjectRecord
	err := s.GormDB.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Project{}, ErrSnapshotNotFound
	}
	if err != nil {
		return Project{}, err
	}
	return Project(rec.Data), nil
}

// List 返回所有未删除的快照，按更新时间倒序
func (s *Store) List(ctx context.Context) ([]Project, error) {
	var recs []ProjectRecord
	if err := s.GormDB.WithContext(ctx).Order("updated_at DESC").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]Project, 0, len(recs))
	for _, rec := range recs {
		out = append(out, Project(rec.Data))
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return s.GormDB.WithContext(ctx).Delete(&ProjectRecord{}, "id = ?", id).Error
}

func (s *Store) Close() error {
	return s.DB.Close()
}
