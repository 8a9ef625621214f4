package repo

import (
	"context"
	"fmt"

	"github.com/ceyewan/genesis/clog"
	"github.com/ceyewan/genesis/db"
	"github.com/wealthline/supportchat/internal/model"
	"gorm.io/gorm"
)

// UserRepoOption 配置 UserRepo 的选项
type UserRepoOption func(*userRepoOptions)

type userRepoOptions struct {
	logger clog.Logger
}

// WithUserRepoLogger 设置日志记录器
func WithUserRepoLogger(logger clog.Logger) UserRepoOption {
	return func(o *userRepoOptions) {
		o.logger = logger
	}
}

// userRepo 实现 UserRepo 接口
type userRepo struct {
	db     db.DB
	logger clog.Logger
}

// NewUserRepo 创建 UserRepo 实例
func NewUserRepo(database db.DB, opts ...UserRepoOption) (UserRepo, error) {
	if database == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}

	options := &userRepoOptions{}
	for _, opt := range opts {
		opt(options)
	}

	// 提供默认 logger
	var logger clog.Logger
	if options.logger != nil {
		logger = options.logger.WithNamespace("user_repo")
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
		logger = logger.WithNamespace("user_repo")
	}

	return &userRepo{
		db:     database,
		logger: logger,
	}, nil
}

// CreateUser 创建新用户
func (r *userRepo) CreateUser(ctx context.Context, user *model.User) error {
	if user == nil {
		return fmt.Errorf("user cannot be nil")
	}
	if user.Email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if user.DisplayName == "" {
		return fmt.Errorf("display_name cannot be empty")
	}

	gormDB := r.db.DB(ctx)
	if err := gormDB.Create(user).Error; err != nil {
		r.logger.Error("创建用户失败",
			clog.String("email", user.Email),
			clog.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}

	r.logger.Debug("创建用户成功",
		clog.Int64("user_id", user.ID),
		clog.String("email", user.Email))
	return nil
}

// GetUserByID 根据用户 ID 获取用户
func (r *userRepo) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	if id <= 0 {
		return nil, fmt.Errorf("user id must be positive")
	}

	var user model.User
	gormDB := r.db.DB(ctx)

	if err := gormDB.Where("id = ?", id).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, gorm.ErrRecordNotFound
		}
		r.logger.Error("获取用户失败",
			clog.Int64("user_id", id),
			clog.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// GetUserByEmail 根据邮箱获取用户
func (r *userRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	if email == "" {
		return nil, fmt.Errorf("email cannot be empty")
	}

	var user model.User
	gormDB := r.db.DB(ctx)

	if err := gormDB.Where("email = ?", email).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, gorm.ErrRecordNotFound
		}
		r.logger.Error("根据邮箱获取用户失败",
			clog.String("email", email),
			clog.Error(err))
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return &user, nil
}

// ListUsers 获取全部用户，按昵称升序
func (r *userRepo) ListUsers(ctx context.Context) ([]*model.User, error) {
	var users []*model.User
	gormDB := r.db.DB(ctx)

	if err := gormDB.Order("display_name ASC").Find(&users).Error; err != nil {
		r.logger.Error("获取用户列表失败", clog.Error(err))
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	return users, nil
}

// Close 释放资源
func (r *userRepo) Close() error {
	r.logger.Info("关闭 UserRepo")
	// db 实例由外部管理，这里不需要关闭
	return nil
}
