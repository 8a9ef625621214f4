// Package protocol 定义 WebSocket 上的 JSON 事件信封与事件负载
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// 客户端上行事件
const (
	EventSendMessage      = "sendMessage"
	EventTyping           = "typing"
	EventGetConversations = "getConversations"
	EventGetMessages      = "getMessages"
	EventMarkAsRead       = "markAsRead"
)

// 服务端下行事件
const (
	EventMessageDelivered     = "messageDelivered"
	EventNewMessage           = "newMessage"
	EventMessageError         = "messageError"
	EventUserTyping           = "userTyping"
	EventConversationsList    = "conversationsList"
	EventConversationsUpdated = "conversationsUpdated"
	EventMessagesHistory      = "messagesHistory"
	EventMessagesRead         = "messagesRead"
	EventOnlineUsers          = "onlineUsers"
)

// Event 是统一的事件信封，event 字段区分类型，data 延迟解码
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode 将事件编码为字节流
func Encode(name string, payload interface{}) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event payload: %w", err)
		}
		data = raw
	}
	return json.Marshal(&Event{Name: name, Data: data})
}

// Decode 将字节流解码为事件信封
func Decode(raw []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	if event.Name == "" {
		return nil, fmt.Errorf("event name cannot be empty")
	}
	return &event, nil
}

// Bind 将事件负载解码到目标结构
func (e *Event) Bind(target interface{}) error {
	if len(e.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Data, target); err != nil {
		return fmt.Errorf("failed to bind %s payload: %w", e.Name, err)
	}
	return nil
}

// MessagePayload 是消息在事件流上的表示
type MessagePayload struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       int64     `json:"senderId"`
	RecipientID    int64     `json:"recipientId"`
	Content        string    `json:"content"`
	Kind           string    `json:"kind"`
	IsRead         bool      `json:"isRead"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ConversationPayload 是会话在事件流上的表示
type ConversationPayload struct {
	ID                   string    `json:"id"`
	ParticipantUserID    int64     `json:"participantUserId"`
	ParticipantSupportID int64     `json:"participantSupportId"`
	LastMessageText      string    `json:"lastMessageText"`
	LastMessageAt        time.Time `json:"lastMessageAt"`
	UnreadCount          int       `json:"unreadCount"`
}

// OnlineUserPayload 是在线用户在事件流与 REST 查询上的表示
type OnlineUserPayload struct {
	ID          int64     `json:"id"`
	DisplayName string    `json:"displayName"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	IsOnline    bool      `json:"isOnline"`
	LastSeenAt  time.Time `json:"lastSeenAt"`
}

// SendMessageRequest 上行 sendMessage 负载
type SendMessageRequest struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
	RecipientID    int64  `json:"recipientId"`
	TempID         string `json:"tempId,omitempty"`
}

// TypingRequest 上行 typing 负载
type TypingRequest struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

// GetMessagesRequest 上行 getMessages 负载
type GetMessagesRequest struct {
	ConversationID string `json:"conversationId"`
}

// MarkAsReadRequest 上行 markAsRead 负载
type MarkAsReadRequest struct {
	ConversationID string `json:"conversationId"`
}

// MessageDeliveredPayload 下行 messageDelivered 负载
type MessageDeliveredPayload struct {
	TempID  string          `json:"tempId,omitempty"`
	Message *MessagePayload `json:"message"`
}

// NewMessagePayload 下行 newMessage 负载
type NewMessagePayload struct {
	Message *MessagePayload `json:"message"`
}

// MessageErrorPayload 下行 messageError 负载
type MessageErrorPayload struct {
	Error string `json:"error"`
}

// UserTypingPayload 下行 userTyping 负载
type UserTypingPayload struct {
	UserID         int64  `json:"userId"`
	UserName       string `json:"userName"`
	IsTyping       bool   `json:"isTyping"`
	ConversationID string `json:"conversationId"`
}

// ConversationsPayload 下行 conversationsList / conversationsUpdated 负载
type ConversationsPayload struct {
	Conversations []*ConversationPayload `json:"conversations"`
}

// MessagesHistoryPayload 下行 messagesHistory 负载
type MessagesHistoryPayload struct {
	ConversationID string            `json:"conversationId"`
	Messages       []*MessagePayload `json:"messages"`
}

// MessagesReadPayload 下行 messagesRead 负载
type MessagesReadPayload struct {
	ConversationID string `json:"conversationId"`
}

// OnlineUsersPayload 下行 onlineUsers 负载
type OnlineUsersPayload struct {
	List []*OnlineUserPayload `json:"list"`
}
