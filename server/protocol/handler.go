package protocol

import (
	"context"
	"fmt"

	"github.com/ceyewan/genesis/clog"
	"github.com/wealthline/supportchat/internal/model"
)

// Handler 处理 WebSocket 事件的接口
type Handler interface {
	// HandleEvent 处理接收到的事件
	HandleEvent(ctx context.Context, conn Connection, event *Event) error
}

// Connection 表示一个 WebSocket 连接的抽象
type Connection interface {
	// Send 发送事件到客户端
	Send(name string, payload interface{}) error
	// Close 关闭连接
	Close() error
	// Identity 获取连接对应的身份
	Identity() *model.Identity
	// Handle 获取连接句柄（进程内唯一）
	Handle() string
	// RemoteAddr 获取远程地址
	RemoteAddr() string
}

// DefaultHandler 默认的事件处理器，按事件名分发到回调
type DefaultHandler struct {
	logger             clog.Logger
	onSendMessage      func(ctx context.Context, conn Connection, req *SendMessageRequest) error
	onTyping           func(ctx context.Context, conn Connection, req *TypingRequest) error
	onGetConversations func(ctx context.Context, conn Connection) error
	onGetMessages      func(ctx context.Context, conn Connection, req *GetMessagesRequest) error
	onMarkAsRead       func(ctx context.Context, conn Connection, req *MarkAsReadRequest) error
}

// NewDefaultHandler 创建默认处理器
func NewDefaultHandler(
	logger clog.Logger,
	onSendMessage func(ctx context.Context, conn Connection, req *SendMessageRequest) error,
	onTyping func(ctx context.Context, conn Connection, req *TypingRequest) error,
	onGetConversations func(ctx context.Context, conn Connection) error,
	onGetMessages func(ctx context.Context, conn Connection, req *GetMessagesRequest) error,
	onMarkAsRead func(ctx context.Context, conn Connection, req *MarkAsReadRequest) error,
) *DefaultHandler {
	return &DefaultHandler{
		logger:             logger,
		onSendMessage:      onSendMessage,
		onTyping:           onTyping,
		onGetConversations: onGetConversations,
		onGetMessages:      onGetMessages,
		onMarkAsRead:       onMarkAsRead,
	}
}

// HandleEvent 实现 Handler 接口
func (h *DefaultHandler) HandleEvent(ctx context.Context, conn Connection, event *Event) error {
	switch event.Name {
	case EventSendMessage:
		if h.onSendMessage == nil {
			return nil
		}
		var req SendMessageRequest
		if err := event.Bind(&req); err != nil {
			return err
		}
		return h.onSendMessage(ctx, conn, &req)

	case EventTyping:
		if h.onTyping == nil {
			return nil
		}
		var req TypingRequest
		if err := event.Bind(&req); err != nil {
			return err
		}
		return h.onTyping(ctx, conn, &req)

	case EventGetConversations:
		if h.onGetConversations == nil {
			return nil
		}
		return h.onGetConversations(ctx, conn)

	case EventGetMessages:
		if h.onGetMessages == nil {
			return nil
		}
		var req GetMessagesRequest
		if err := event.Bind(&req); err != nil {
			return err
		}
		return h.onGetMessages(ctx, conn, &req)

	case EventMarkAsRead:
		if h.onMarkAsRead == nil {
			return nil
		}
		var req MarkAsReadRequest
		if err := event.Bind(&req); err != nil {
			return err
		}
		return h.onMarkAsRead(ctx, conn, &req)

	default:
		return fmt.Errorf("unknown event: %s", event.Name)
	}
}
