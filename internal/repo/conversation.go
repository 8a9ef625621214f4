package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ceyewan/genesis/clog"
	"github.com/ceyewan/genesis/db"
	"github.com/wealthline/supportchat/internal/model"
	"gorm.io/gorm"
)

// 历史消息单次拉取上限，防止超长会话一次性拖垮进程
const maxHistoryLimit = 1000

// ConversationRepoOption 配置 ConversationRepo 的选项
type ConversationRepoOption func(*conversationRepoOptions)

type conversationRepoOptions struct {
	logger clog.Logger
}

// WithConversationRepoLogger 设置日志记录器
func WithConversationRepoLogger(logger clog.Logger) ConversationRepoOption {
	return func(o *conversationRepoOptions) {
		o.logger = logger
	}
}

// conversationRepo 实现 ConversationRepo 接口
type conversationRepo struct {
	db     db.DB
	logger clog.Logger
}

// NewConversationRepo 创建 ConversationRepo 实例
func NewConversationRepo(database db.DB, opts ...ConversationRepoOption) (ConversationRepo, error) {
	if database == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}

	options := &conversationRepoOptions{}
	for _, opt := range opts {
		opt(options)
	}

	// 提供默认 logger
	var logger clog.Logger
	if options.logger != nil {
		logger = options.logger.WithNamespace("conversation_repo")
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
		logger = logger.WithNamespace("conversation_repo")
	}

	return &conversationRepo{
		db:     database,
		logger: logger,
	}, nil
}

// GetOrCreateConversation 获取会话，不存在则以给定参与者创建（幂等）
// 新建会话的未读计数初始化为 1：首条消息总是紧随创建写入
func (r *conversationRepo) GetOrCreateConversation(ctx context.Context, conv *model.Conversation) (*model.Conversation, error) {
	if conv == nil {
		return nil, fmt.Errorf("conversation cannot be nil")
	}
	if conv.ID == "" {
		return nil, fmt.Errorf("conversation id cannot be empty")
	}
	if conv.UserID <= 0 || conv.SupportID <= 0 {
		return nil, fmt.Errorf("conversation participants must be set")
	}

	gormDB := r.db.DB(ctx)

	var existing model.Conversation
	err := gormDB.Where("id = ?", conv.ID).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		r.logger.Error("查询会话失败",
			clog.String("conversation_id", conv.ID),
			clog.Error(err))
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	created := model.Conversation{
		ID:              conv.ID,
		UserID:          conv.UserID,
		SupportID:       conv.SupportID,
		LastMessageText: conv.LastMessageText,
		LastMessageAt:   time.Now(),
		UnreadCount:     1,
	}
	if err := gormDB.Create(&created).Error; err != nil {
		// 并发创建同一会话时主键冲突，回退为读取已存在的那行
		var again model.Conversation
		if ferr := gormDB.Where("id = ?", conv.ID).First(&again).Error; ferr == nil {
			return &again, nil
		}
		r.logger.Error("创建会话失败",
			clog.String("conversation_id", conv.ID),
			clog.Error(err))
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	r.logger.Debug("创建会话成功",
		clog.String("conversation_id", created.ID),
		clog.Int64("user_id", created.UserID),
		clog.Int64("support_id", created.SupportID))
	return &created, nil
}

// GetConversation 获取会话详情
func (r *conversationRepo) GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversation_id cannot be empty")
	}

	var conversation model.Conversation
	gormDB := r.db.DB(ctx)

	if err := gormDB.Where("id = ?", conversationID).First(&conversation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gorm.ErrRecordNotFound
		}
		r.logger.Error("查询会话失败",
			clog.String("conversation_id", conversationID),
			clog.Error(err))
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	return &conversation, nil
}

// AppendMessage 追加消息并更新会话摘要
// 两次写入刻意不放在同一事务里：消息落库即视为成功，
// 摘要更新失败只记日志，下一条消息会再次覆盖摘要
func (r *conversationRepo) AppendMessage(ctx context.Context, msg *model.Message) error {
	if msg == nil {
		return fmt.Errorf("message cannot be nil")
	}
	if msg.ConversationID == "" {
		return fmt.Errorf("conversation_id cannot be empty")
	}
	if msg.SenderID <= 0 || msg.RecipientID <= 0 {
		return fmt.Errorf("sender and recipient must be set")
	}
	if msg.Content == "" {
		return fmt.Errorf("content cannot be empty")
	}
	if msg.Kind == "" {
		msg.Kind = model.MessageKindText
	}

	gormDB := r.db.DB(ctx)
	if err := gormDB.Create(msg).Error; err != nil {
		r.logger.Error("保存消息失败",
			clog.String("conversation_id", msg.ConversationID),
			clog.Int64("sender_id", msg.SenderID),
			clog.Error(err))
		return fmt.Errorf("failed to save message: %w", err)
	}

	update := gormDB.Model(&model.Conversation{}).
		Where("id = ?", msg.ConversationID).
		Updates(map[string]interface{}{
			"last_message_text": msg.Content,
			"last_message_at":   msg.CreatedAt,
			"unread_count":      gorm.Expr("unread_count + 1"),
		})
	if update.Error != nil {
		r.logger.Warn("更新会话摘要失败，消息已落库",
			clog.String("conversation_id", msg.ConversationID),
			clog.Int64("msg_id", msg.ID),
			clog.Error(update.Error))
	}

	r.logger.Debug("保存消息成功",
		clog.String("conversation_id", msg.ConversationID),
		clog.Int64("msg_id", msg.ID))
	return nil
}

// ListConversationsFor 按角色获取某身份参与的全部会话，最新消息在前
func (r *conversationRepo) ListConversationsFor(ctx context.Context, identityID int64, role string) ([]*model.Conversation, error) {
	if identityID <= 0 {
		return nil, fmt.Errorf("identity id must be positive")
	}

	column := "user_id"
	if role == model.RoleSupport {
		column = "support_id"
	}

	var conversations []*model.Conversation
	gormDB := r.db.DB(ctx)

	if err := gormDB.Where(column+" = ?", identityID).
		Order("last_message_at DESC").
		Find(&conversations).Error; err != nil {
		r.logger.Error("获取会话列表失败",
			clog.Int64("identity_id", identityID),
			clog.String("role", role),
			clog.Error(err))
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	return conversations, nil
}

// ListMessages 获取会话的历史消息，最旧在前
func (r *conversationRepo) ListMessages(ctx context.Context, conversationID string, limit int) ([]*model.Message, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversation_id cannot be empty")
	}
	if limit <= 0 || limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	var messages []*model.Message
	gormDB := r.db.DB(ctx)

	if err := gormDB.Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&messages).Error; err != nil {
		r.logger.Error("拉取历史消息失败",
			clog.String("conversation_id", conversationID),
			clog.Int("limit", limit),
			clog.Error(err))
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	return messages, nil
}

// MarkRead 将会话中发给 recipient 的未读消息置为已读，并清零未读计数
func (r *conversationRepo) MarkRead(ctx context.Context, conversationID string, recipientID int64) error {
	if conversationID == "" {
		return fmt.Errorf("conversation_id cannot be empty")
	}
	if recipientID <= 0 {
		return fmt.Errorf("recipient id must be positive")
	}

	err := r.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if err := tx.Model(&model.Message{}).
			Where("conversation_id = ? AND recipient_id = ? AND is_read = ?", conversationID, recipientID, false).
			Update("is_read", true).Error; err != nil {
			return fmt.Errorf("failed to mark messages read: %w", err)
		}

		if err := tx.Model(&model.Conversation{}).
			Where("id = ?", conversationID).
			Update("unread_count", 0).Error; err != nil {
			return fmt.Errorf("failed to reset unread count: %w", err)
		}
		return nil
	})

	if err != nil {
		r.logger.Error("标记已读失败",
			clog.String("conversation_id", conversationID),
			clog.Int64("recipient_id", recipientID),
			clog.Error(err))
		return err
	}

	r.logger.Debug("标记已读成功",
		clog.String("conversation_id", conversationID),
		clog.Int64("recipient_id", recipientID))
	return nil
}

// Close 释放资源
func (r *conversationRepo) Close() error {
	r.logger.Info("关闭 ConversationRepo")
	// db 实例由外部管理，这里不需要关闭
	return nil
}
