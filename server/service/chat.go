package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ceyewan/genesis/clog"
	"github.com/wealthline/supportchat/internal/model"
	"github.com/wealthline/supportchat/internal/repo"
	"github.com/wealthline/supportchat/server/protocol"
	"gorm.io/gorm"
)

// ChatService 消息路由：持久化消息并向相关连接推送事件
type ChatService struct {
	conversations repo.ConversationRepo
	pusher        Pusher
	registry      Registry
	logger        clog.Logger
}

// NewChatService 创建消息路由服务
func NewChatService(
	conversations repo.ConversationRepo,
	pusher Pusher,
	registry Registry,
	logger clog.Logger,
) *ChatService {
	return &ChatService{
		conversations: conversations,
		pusher:        pusher,
		registry:      registry,
		logger:        logger.WithNamespace("chat"),
	}
}

// SendMessage 处理 sendMessage 事件
// 落库成功即回发 messageDelivered，收件人在线时推送 newMessage，
// 之后异步刷新双方的会话列表视图
func (s *ChatService) SendMessage(ctx context.Context, sender *model.Identity, req *protocol.SendMessageRequest) error {
	if req.ConversationID == "" {
		return fmt.Errorf("conversationId is required")
	}
	if req.Content == "" {
		return fmt.Errorf("content is required")
	}
	if req.RecipientID <= 0 {
		return fmt.Errorf("recipientId is required")
	}

	// 会话总是一名用户配一名客服，按发送者角色摆放双方
	userID, supportID := sender.ID, req.RecipientID
	if sender.IsSupport() {
		userID, supportID = req.RecipientID, sender.ID
	}

	conv, err := s.conversations.GetOrCreateConversation(ctx, &model.Conversation{
		ID:              req.ConversationID,
		UserID:          userID,
		SupportID:       supportID,
		LastMessageText: req.Content,
	})
	if err != nil {
		return fmt.Errorf("failed to resolve conversation: %w", err)
	}

	msg := &model.Message{
		ConversationID: conv.ID,
		SenderID:       sender.ID,
		RecipientID:    req.RecipientID,
		Content:        req.Content,
		Kind:           model.MessageKindText,
	}
	if err := s.conversations.AppendMessage(ctx, msg); err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	payload := toMessagePayload(msg)

	// 给发送方回执，带上客户端的临时 ID 以便对齐本地乐观回显
	if err := s.pusher.SendToUser(sender.ID, protocol.EventMessageDelivered, &protocol.MessageDeliveredPayload{
		TempID:  req.TempID,
		Message: payload,
	}); err != nil {
		s.logger.Warn("failed to deliver confirmation",
			clog.Int64("sender_id", sender.ID),
			clog.Error(err))
	}

	// 收件人在线才推送，不在线不补偿
	if s.registry.IsOnline(req.RecipientID) {
		if err := s.pusher.SendToUser(req.RecipientID, protocol.EventNewMessage, &protocol.NewMessagePayload{
			Message: payload,
		}); err != nil {
			s.logger.Warn("failed to push new message",
				clog.Int64("recipient_id", req.RecipientID),
				clog.Error(err))
		}
	}

	s.logger.Info("message routed",
		clog.String("conversation_id", conv.ID),
		clog.Int64("msg_id", msg.ID),
		clog.Int64("sender_id", sender.ID),
		clog.Int64("recipient_id", req.RecipientID))

	// 双方的会话列表异步刷新，保证未读计数在列表视图里到位
	go s.refreshConversationList(userID, model.RoleUser)
	go s.refreshConversationList(supportID, model.RoleSupport)

	return nil
}

// Typing 处理 typing 事件，无持久化，转发给会话另一侧
func (s *ChatService) Typing(ctx context.Context, sender *model.Identity, req *protocol.TypingRequest) error {
	if req.ConversationID == "" {
		return fmt.Errorf("conversationId is required")
	}

	conv, err := s.conversations.GetConversation(ctx, req.ConversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 会话还没建立时输入信号没有去处，直接丢弃
			return nil
		}
		return fmt.Errorf("failed to resolve conversation: %w", err)
	}

	counterpart := conv.UserID
	if sender.ID == conv.UserID {
		counterpart = conv.SupportID
	}

	// 尽力而为，对方不在线就算了
	if err := s.pusher.SendToUser(counterpart, protocol.EventUserTyping, &protocol.UserTypingPayload{
		UserID:         sender.ID,
		UserName:       sender.DisplayName,
		IsTyping:       req.IsTyping,
		ConversationID: req.ConversationID,
	}); err != nil {
		s.logger.Debug("typing signal dropped",
			clog.Int64("counterpart_id", counterpart),
			clog.Error(err))
	}
	return nil
}

// GetConversations 处理 getConversations 事件，推送按角色过滤的完整列表
func (s *ChatService) GetConversations(ctx context.Context, caller *model.Identity) error {
	conversations, err := s.conversations.ListConversationsFor(ctx, caller.ID, caller.Role)
	if err != nil {
		return fmt.Errorf("failed to load conversations: %w", err)
	}

	return s.pusher.SendToUser(caller.ID, protocol.EventConversationsList, &protocol.ConversationsPayload{
		Conversations: toConversationPayloads(conversations),
	})
}

// GetMessages 处理 getMessages 事件，推送会话的完整历史
func (s *ChatService) GetMessages(ctx context.Context, caller *model.Identity, req *protocol.GetMessagesRequest) error {
	if req.ConversationID == "" {
		return fmt.Errorf("conversationId is required")
	}

	messages, err := s.conversations.ListMessages(ctx, req.ConversationID, 0)
	if err != nil {
		return fmt.Errorf("failed to load messages: %w", err)
	}

	payloads := make([]*protocol.MessagePayload, 0, len(messages))
	for _, msg := range messages {
		payloads = append(payloads, toMessagePayload(msg))
	}

	return s.pusher.SendToUser(caller.ID, protocol.EventMessagesHistory, &protocol.MessagesHistoryPayload{
		ConversationID: req.ConversationID,
		Messages:       payloads,
	})
}

// MarkAsRead 处理 markAsRead 事件，调用方作为收件人清未读
func (s *ChatService) MarkAsRead(ctx context.Context, caller *model.Identity, req *protocol.MarkAsReadRequest) error {
	if req.ConversationID == "" {
		return fmt.Errorf("conversationId is required")
	}

	if err := s.conversations.MarkRead(ctx, req.ConversationID, caller.ID); err != nil {
		return fmt.Errorf("failed to mark conversation read: %w", err)
	}

	return s.pusher.SendToUser(caller.ID, protocol.EventMessagesRead, &protocol.MessagesReadPayload{
		ConversationID: req.ConversationID,
	})
}

// refreshConversationList 推送 conversationsUpdated 给指定参与者
// 异步调用，失败只记日志
func (s *ChatService) refreshConversationList(identityID int64, role string) {
	if !s.registry.IsOnline(identityID) {
		return
	}

	conversations, err := s.conversations.ListConversationsFor(context.Background(), identityID, role)
	if err != nil {
		s.logger.Warn("failed to refresh conversation list",
			clog.Int64("identity_id", identityID),
			clog.Error(err))
		return
	}

	if err := s.pusher.SendToUser(identityID, protocol.EventConversationsUpdated, &protocol.ConversationsPayload{
		Conversations: toConversationPayloads(conversations),
	}); err != nil {
		s.logger.Debug("conversation list refresh dropped",
			clog.Int64("identity_id", identityID),
			clog.Error(err))
	}
}

func toMessagePayload(msg *model.Message) *protocol.MessagePayload {
	return &protocol.MessagePayload{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		RecipientID:    msg.RecipientID,
		Content:        msg.Content,
		Kind:           msg.Kind,
		IsRead:         msg.IsRead,
		CreatedAt:      msg.CreatedAt,
	}
}

func toConversationPayloads(conversations []*model.Conversation) []*protocol.ConversationPayload {
	payloads := make([]*protocol.ConversationPayload, 0, len(conversations))
	for _, conv := range conversations {
		payloads = append(payloads, &protocol.ConversationPayload{
			ID:                   conv.ID,
			ParticipantUserID:    conv.UserID,
			ParticipantSupportID: conv.SupportID,
			LastMessageText:      conv.LastMessageText,
			LastMessageAt:        conv.LastMessageAt,
			UnreadCount:          conv.UnreadCount,
		})
	}
	return payloads
}
