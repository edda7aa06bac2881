// Package database 提供基于 GORM 的文件登记存储。
// 向量索引只存块，文件级状态（展示名、可见性、块数）落在这里，
// 进程重启后上传列表与开关状态仍然可用。
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/ragserve/rag"
	"github.com/BaSui01/ragserve/types"
)

// Config 数据库配置。
type Config struct {
	// Path SQLite 数据库文件路径，":memory:" 用于测试。
	Path string `yaml:"path" json:"path"`

	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// DefaultConfig 返回默认数据库配置。
func DefaultConfig() Config {
	return Config{
		Path:            "ragserve.db",
		MaxOpenConns:    1, // SQLite 单写者
		ConnMaxLifetime: time.Hour,
	}
}

// fileModel files 表结构。
type fileModel struct {
	ID         string    `gorm:"primaryKey;size:64"`
	Filename   string    `gorm:"size:512;not null"`
	Active     bool      `gorm:"not null;default:true;index"`
	ChunkCount int       `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (fileModel) TableName() string { return "files" }

// FileStore 文件登记表的 GORM 实现。
type FileStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open 打开 SQLite 数据库并迁移表结构。
func Open(cfg Config, logger *zap.Logger) (*FileStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Path == "" {
		cfg.Path = "ragserve.db"
	}

	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.AutoMigrate(&fileModel{}); err != nil {
		return nil, fmt.Errorf("migrate files table: %w", err)
	}

	logger.Info("file store opened", zap.String("path", cfg.Path))
	return &FileStore{
		db:     db,
		logger: logger.With(zap.String("component", "file_store")),
	}, nil
}

// Close 关闭底层连接。
func (s *FileStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping 探活。
func (s *FileStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *FileStore) CreateFile(ctx context.Context, rec rag.FileRecord) error {
	model := fileModel{
		ID:         rec.ID,
		Filename:   rec.Filename,
		Active:     rec.Active,
		ChunkCount: rec.ChunkCount,
		CreatedAt:  rec.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("create file record: %w", err)
	}
	return nil
}

func (s *FileStore) GetFile(ctx context.Context, fileID string) (rag.FileRecord, error) {
	var model fileModel
	err := s.db.WithContext(ctx).First(&model, "id = ?", fileID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return rag.FileRecord{}, types.NewError(types.ErrNotFound,
			fmt.Sprintf("file %s not found", fileID))
	}
	if err != nil {
		return rag.FileRecord{}, fmt.Errorf("load file record: %w", err)
	}
	return toRecord(model), nil
}

func (s *FileStore) ListFiles(ctx context.Context) ([]rag.FileRecord, error) {
	var models []fileModel
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list file records: %w", err)
	}

	out := make([]rag.FileRecord, 0, len(models))
	for _, m := range models {
		out = append(out, toRecord(m))
	}
	return out, nil
}

func (s *FileStore) SetFileActive(ctx context.Context, fileID string, active bool) error {
	res := s.db.WithContext(ctx).Model(&fileModel{}).
		Where("id = ?", fileID).
		Update("active", active)
	if res.Error != nil {
		return fmt.Errorf("update file visibility: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NewError(types.ErrNotFound, fmt.Sprintf("file %s not found", fileID))
	}
	return nil
}

func (s *FileStore) DeleteFile(ctx context.Context, fileID string) error {
	res := s.db.WithContext(ctx).Delete(&fileModel{}, "id = ?", fileID)
	if res.Error != nil {
		return fmt.Errorf("delete file record: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NewError(types.ErrNotFound, fmt.Sprintf("file %s not found", fileID))
	}
	return nil
}

func toRecord(m fileModel) rag.FileRecord {
	return rag.FileRecord{
		ID:         m.ID,
		Filename:   m.Filename,
		Active:     m.Active,
		ChunkCount: m.ChunkCount,
		CreatedAt:  m.CreatedAt,
	}
}

var _ rag.FileRegistry = (*FileStore)(nil)
