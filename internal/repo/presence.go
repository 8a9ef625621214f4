package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/ceyewan/genesis/clog"
	"github.com/ceyewan/genesis/db"
	"github.com/wealthline/supportchat/internal/model"
	"gorm.io/gorm/clause"
)

// PresenceRepoOption 配置 PresenceRepo 的选项
type PresenceRepoOption func(*presenceRepoOptions)

type presenceRepoOptions struct {
	logger clog.Logger
}

// WithPresenceRepoLogger 设置日志记录器
func WithPresenceRepoLogger(logger clog.Logger) PresenceRepoOption {
	return func(o *presenceRepoOptions) {
		o.logger = logger
	}
}

// presenceRepo 实现 PresenceRepo 接口
type presenceRepo struct {
	db     db.DB
	logger clog.Logger
}

// NewPresenceRepo 创建 PresenceRepo 实例
func NewPresenceRepo(database db.DB, opts ...PresenceRepoOption) (PresenceRepo, error) {
	if database == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}

	options := &presenceRepoOptions{}
	for _, opt := range opts {
		opt(options)
	}

	// 提供默认 logger
	var logger clog.Logger
	if options.logger != nil {
		logger = options.logger.WithNamespace("presence_repo")
	} else {
		var err error
		logger, err = clog.New(&clog.Config{
			Level:  "info",
			Format: "json",
			Output: "/dev/null",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create default logger: %w", err)
		}
		logger = logger.WithNamespace("presence_repo")
	}

	return &presenceRepo{
		db:     database,
		logger: logger,
	}, nil
}

// SetOnline 记录用户上线，按 user_id 幂等覆盖
func (r *presenceRepo) SetOnline(ctx context.Context, userID int64, connectionHandle string) error {
	if userID <= 0 {
		return fmt.Errorf("user id must be positive")
	}
	if connectionHandle == "" {
		return fmt.Errorf("connection_handle cannot be empty")
	}

	record := model.PresenceRecord{
		UserID:           userID,
		IsOnline:         true,
		LastSeenAt:       time.Now(),
		ConnectionHandle: connectionHandle,
	}

	gormDB := r.db.DB(ctx)
	if err := gormDB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_online", "last_seen_at", "connection_handle", "updated_at"}),
	}).Create(&record).Error; err != nil {
		r.logger.Error("记录用户上线失败",
			clog.Int64("user_id", userID),
			clog.Error(err))
		return fmt.Errorf("failed to set user online: %w", err)
	}

	r.logger.Debug("记录用户上线",
		clog.Int64("user_id", userID),
		clog.String("connection_handle", connectionHandle))
	return nil
}

// SetOffline 记录用户下线并刷新最后在线时间
func (r *presenceRepo) SetOffline(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return fmt.Errorf("user id must be positive")
	}

	gormDB := r.db.DB(ctx)
	if err := gormDB.Model(&model.PresenceRecord{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"is_online":         false,
			"last_seen_at":      time.Now(),
			"connection_handle": "",
		}).Error; err != nil {
		r.logger.Error("记录用户下线失败",
			clog.Int64("user_id", userID),
			clog.Error(err))
		return fmt.Errorf("failed to set user offline: %w", err)
	}

	r.logger.Debug("记录用户下线", clog.Int64("user_id", userID))
	return nil
}

// ListOnline 获取当前标记为在线的记录
func (r *presenceRepo) ListOnline(ctx context.Context) ([]*model.PresenceRecord, error) {
	var records []*model.PresenceRecord
	gormDB := r.db.DB(ctx)

	if err := gormDB.Where("is_online = ?", true).
		Find(&records).Error; err != nil {
		r.logger.Error("获取在线用户列表失败", clog.Error(err))
		return nil, fmt.Errorf("failed to list online users: %w", err)
	}

	return records, nil
}

// ListAll 获取全部在线状态记录
func (r *presenceRepo) ListAll(ctx context.Context) ([]*model.PresenceRecord, error) {
	var records []*model.PresenceRecord
	gormDB := r.db.DB(ctx)

	if err := gormDB.Find(&records).Error; err != nil {
		r.logger.Error("获取在线状态记录失败", clog.Error(err))
		return nil, fmt.Errorf("failed to list presence records: %w", err)
	}

	return records, nil
}

// MarkAllOffline 将所有记录标记为离线
// 进程重启后内存注册表是空的，数据库里的在线标记必须跟着清掉
func (r *presenceRepo) MarkAllOffline(ctx context.Context) error {
	gormDB := r.db.DB(ctx)
	result := gormDB.Model(&model.PresenceRecord{}).
		Where("is_online = ?", true).
		Updates(map[string]interface{}{
			"is_online":         false,
			"last_seen_at":      time.Now(),
			"connection_handle": "",
		})
	if result.Error != nil {
		r.logger.Error("批量标记离线失败", clog.Error(result.Error))
		return fmt.Errorf("failed to mark all offline: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		r.logger.Info("批量标记离线", clog.Int64("count", result.RowsAffected))
	}
	return nil
}

// Close 释放资源
func (r *presenceRepo) Close() error {
	r.logger.Info("关闭 PresenceRepo")
	// db 实例由外部管理，这里不需要关闭
	return nil
}
