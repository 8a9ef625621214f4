package repo

import (
	"context"

	"github.com/wealthline/supportchat/internal/model"
)

// UserRepo 定义了用户数据访问接口
type UserRepo interface {
	// CreateUser 创建新用户
	CreateUser(ctx context.Context, user *model.User) error
	// GetUserByID 根据用户 ID 获取用户
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	// GetUserByEmail 根据邮箱获取用户
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	// ListUsers 获取全部用户，按昵称升序
	ListUsers(ctx context.Context) ([]*model.User, error)
	// Close 释放资源（如数据库连接等）
	Close() error
}

// ConversationRepo 定义了会话与消息的数据访问接口
type ConversationRepo interface {
	// GetOrCreateConversation 获取会话，不存在则以给定参与者创建（幂等）
	GetOrCreateConversation(ctx context.Context, conv *model.Conversation) (*model.Conversation, error)
	// GetConversation 获取会话详情
	GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error)
	// AppendMessage 追加消息并更新会话摘要（两次独立写入，后者失败不回滚）
	AppendMessage(ctx context.Context, msg *model.Message) error
	// ListConversationsFor 按角色获取某身份参与的全部会话，最新消息在前
	ListConversationsFor(ctx context.Context, identityID int64, role string) ([]*model.Conversation, error)
	// ListMessages 获取会话的历史消息，最旧在前
	ListMessages(ctx context.Context, conversationID string, limit int) ([]*model.Message, error)
	// MarkRead 将会话中发给 recipient 的未读消息置为已读，并清零未读计数
	MarkRead(ctx context.Context, conversationID string, recipientID int64) error
	// Close 释放资源（如数据库连接等）
	Close() error
}

// PresenceRepo 定义了在线状态记录的数据访问接口
type PresenceRepo interface {
	// SetOnline 记录用户上线（不存在则插入，存在则覆盖）
	SetOnline(ctx context.Context, userID int64, connectionHandle string) error
	// SetOffline 记录用户下线并刷新最后在线时间
	SetOffline(ctx context.Context, userID int64) error
	// ListOnline 获取当前标记为在线的记录
	ListOnline(ctx context.Context) ([]*model.PresenceRecord, error)
	// ListAll 获取全部在线状态记录
	ListAll(ctx context.Context) ([]*model.PresenceRecord, error)
	// MarkAllOffline 将所有记录标记为离线（进程启动与优雅退出时调用）
	MarkAllOffline(ctx context.Context) error
	// Close 释放资源（如数据库连接等）
	Close() error
}
