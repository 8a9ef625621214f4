package model

import "time"

// 角色常量，角色不落库，由邮箱推导
const (
	RoleUser    = "USER"
	RoleSupport = "SUPPORT"
)

// 消息类型常量，当前仅支持文本
const MessageKindText = "text"

// User 对应 t_user 表
type User struct {
	ID           int64  `gorm:"primaryKey;column:id;autoIncrement"`
	DisplayName  string `gorm:"column:display_name;type:varchar(128);not null"`
	Email        string `gorm:"column:email;type:varchar(255);not null;uniqueIndex:uniq_user_email"`
	PasswordHash string `gorm:"column:password_hash;type:varchar(128);not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Conversation 对应 t_conversation 表
// 会话 ID 由调用方给定（user 与 support 的配对键），不自增
type Conversation struct {
	ID              string    `gorm:"primaryKey;column:id;type:varchar(64);not null"`
	UserID          int64     `gorm:"column:user_id;type:bigint;not null;index:idx_conv_user"`
	SupportID       int64     `gorm:"column:support_id;type:bigint;not null;index:idx_conv_support"`
	LastMessageText string    `gorm:"column:last_message_text;type:text"`
	LastMessageAt   time.Time `gorm:"column:last_message_at;not null"`
	UnreadCount     int       `gorm:"column:unread_count;type:int;default:0"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Message 对应 t_message 表
type Message struct {
	ID             int64     `gorm:"primaryKey;column:id;autoIncrement"`
	ConversationID string    `gorm:"column:conversation_id;type:varchar(64);not null;index:idx_msg_conv_created,priority:1"`
	SenderID       int64     `gorm:"column:sender_id;type:bigint;not null"`
	RecipientID    int64     `gorm:"column:recipient_id;type:bigint;not null;index:idx_msg_recipient_read,priority:1"`
	Content        string    `gorm:"column:content;type:text;not null"`
	Kind           string    `gorm:"column:kind;type:varchar(32);not null;default:text"`
	IsRead         bool      `gorm:"column:is_read;not null;default:false;index:idx_msg_recipient_read,priority:2"`
	CreatedAt      time.Time `gorm:"column:created_at;index:idx_msg_conv_created,priority:2"`
}

// PresenceRecord 对应 t_presence 表，每个用户至多一行
type PresenceRecord struct {
	ID               int64     `gorm:"primaryKey;column:id;autoIncrement"`
	UserID           int64     `gorm:"column:user_id;type:bigint;not null;uniqueIndex:uniq_presence_user"`
	IsOnline         bool      `gorm:"column:is_online;not null;default:false"`
	LastSeenAt       time.Time `gorm:"column:last_seen_at"`
	ConnectionHandle string    `gorm:"column:connection_handle;type:varchar(64)"`
	UpdatedAt        time.Time
}

// TableName overrides the default table name
func (User) TableName() string           { return "t_user" }
func (Conversation) TableName() string   { return "t_conversation" }
func (Message) TableName() string        { return "t_message" }
func (PresenceRecord) TableName() string { return "t_presence" }

// AllModels 返回所有需要迁移的模型，供 bootstrap 的 AutoMigrate 使用
func AllModels() []any {
	return []any{
		&User{},
		&Conversation{},
		&Message{},
		&PresenceRecord{},
	}
}
