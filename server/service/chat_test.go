package service

import (
	"context"
	"testing"
	"time"

	"github.com/ceyewan/genesis/clog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wealthline/supportchat/internal/model"
	"github.com/wealthline/supportchat/server/protocol"
)

var (
	testUser    = &model.Identity{ID: 7, DisplayName: "Uma", Email: "uma@example.com", Role: model.RoleUser}
	testSupport = &model.Identity{ID: 1, DisplayName: "Agent", Email: "support@wealthline.com", Role: model.RoleSupport}
)

func TestChatService_SendMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("首次发送创建会话并回执", func(t *testing.T) {
		store := newFakeConversationRepo()
		pusher := newFakePusher()
		registry := newFakeRegistry(7, 1)
		svc := NewChatService(store, pusher, registry, clog.Discard())

		err := svc.SendMessage(ctx, testUser, &protocol.SendMessageRequest{
			ConversationID: "u7-s1",
			Content:        "hi",
			RecipientID:    1,
			TempID:         "abc",
		})
		require.NoError(t, err)

		// 发送方收到 messageDelivered，携带 tempId
		delivered := pusher.eventsFor(7, protocol.EventMessageDelivered)
		require.Len(t, delivered, 1)
		dp := delivered[0].Payload.(*protocol.MessageDeliveredPayload)
		assert.Equal(t, "abc", dp.TempID)
		assert.Equal(t, int64(7), dp.Message.SenderID)
		assert.Equal(t, "hi", dp.Message.Content)

		// 在线收件人收到 newMessage
		pushed := pusher.eventsFor(1, protocol.EventNewMessage)
		require.Len(t, pushed, 1)
		np := pushed[0].Payload.(*protocol.NewMessagePayload)
		assert.Equal(t, int64(7), np.Message.SenderID)

		// 会话以正确的参与者创建
		conv, err := store.GetConversation(ctx, "u7-s1")
		require.NoError(t, err)
		assert.Equal(t, int64(7), conv.UserID)
		assert.Equal(t, int64(1), conv.SupportID)

		// 双方的会话列表异步刷新
		require.Eventually(t, func() bool {
			return len(pusher.eventsFor(7, protocol.EventConversationsUpdated)) == 1 &&
				len(pusher.eventsFor(1, protocol.EventConversationsUpdated)) == 1
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("客服发送时参与者位置互换", func(t *testing.T) {
		store := newFakeConversationRepo()
		pusher := newFakePusher()
		svc := NewChatService(store, pusher, newFakeRegistry(7, 1), clog.Discard())

		err := svc.SendMessage(ctx, testSupport, &protocol.SendMessageRequest{
			ConversationID: "u7-s1",
			Content:        "how can I help",
			RecipientID:    7,
		})
		require.NoError(t, err)

		conv, err := store.GetConversation(ctx, "u7-s1")
		require.NoError(t, err)
		assert.Equal(t, int64(7), conv.UserID)
		assert.Equal(t, int64(1), conv.SupportID)
	})

	t.Run("重复会话ID不创建第二个会话", func(t *testing.T) {
		store := newFakeConversationRepo()
		pusher := newFakePusher()
		svc := NewChatService(store, pusher, newFakeRegistry(7, 1), clog.Discard())

		for i := 0; i < 2; i++ {
			require.NoError(t, svc.SendMessage(ctx, testUser, &protocol.SendMessageRequest{
				ConversationID: "u7-s1",
				Content:        "hello",
				RecipientID:    1,
			}))
		}

		messages, err := store.ListMessages(ctx, "u7-s1", 0)
		require.NoError(t, err)
		assert.Len(t, messages, 2)
		assert.Len(t, store.conversations, 1)
	})

	t.Run("收件人离线不推送newMessage", func(t *testing.T) {
		store := newFakeConversationRepo()
		pusher := newFakePusher()
		svc := NewChatService(store, pusher, newFakeRegistry(7), clog.Discard())

		require.NoError(t, svc.SendMessage(ctx, testUser, &protocol.SendMessageRequest{
			ConversationID: "u7-s1",
			Content:        "anyone there?",
			RecipientID:    1,
		}))

		assert.Empty(t, pusher.eventsFor(1, protocol.EventNewMessage))
		assert.Len(t, pusher.eventsFor(7, protocol.EventMessageDelivered), 1)
	})

	t.Run("持久化失败返回错误且无任何推送", func(t *testing.T) {
		store := newFakeConversationRepo()
		store.failAppend = true
		pusher := newFakePusher()
		svc := NewChatService(store, pusher, newFakeRegistry(7, 1), clog.Discard())

		err := svc.SendMessage(ctx, testUser, &protocol.SendMessageRequest{
			ConversationID: "u7-s1",
			Content:        "hi",
			RecipientID:    1,
		})
		require.Error(t, err)
		assert.Empty(t, pusher.eventsFor(7, protocol.EventMessageDelivered))
		assert.Empty(t, pusher.eventsFor(1, protocol.EventNewMessage))
	})

	t.Run("缺少必填字段返回错误", func(t *testing.T) {
		svc := NewChatService(newFakeConversationRepo(), newFakePusher(), newFakeRegistry(), clog.Discard())

		assert.Error(t, svc.SendMessage(ctx, testUser, &protocol.SendMessageRequest{Content: "x", RecipientID: 1}))
		assert.Error(t, svc.SendMessage(ctx, testUser, &protocol.SendMessageRequest{ConversationID: "c", RecipientID: 1}))
		assert.Error(t, svc.SendMessage(ctx, testUser, &protocol.SendMessageRequest{ConversationID: "c", Content: "x"}))
	})
}

func TestChatService_Typing(t *testing.T) {
	ctx := context.Background()

	t.Run("转发给会话另一侧", func(t *testing.T) {
		store := newFakeConversationRepo()
		pusher := newFakePusher()
		svc := NewChatService(store, pusher, newFakeRegistry(7, 1), clog.Discard())

		require.NoError(t, svc.SendMessage(ctx, testUser, &protocol.SendMessageRequest{
			ConversationID: "u7-s1",
			Content:        "hi",
			RecipientID:    1,
		}))

		require.NoError(t, svc.Typing(ctx, testUser, &protocol.TypingRequest{
			ConversationID: "u7-s1",
			IsTyping:       true,
		}))

		events := pusher.eventsFor(1, protocol.EventUserTyping)
		require.Len(t, events, 1)
		tp := events[0].Payload.(*protocol.UserTypingPayload)
		assert.Equal(t, int64(7), tp.UserID)
		assert.Equal(t, "Uma", tp.UserName)
		assert.True(t, tp.IsTyping)
		assert.Equal(t, "u7-s1", tp.ConversationID)

		// 客服输入时信号发给用户侧
		require.NoError(t, svc.Typing(ctx, testSupport, &protocol.TypingRequest{
			ConversationID: "u7-s1",
			IsTyping:       false,
		}))
		assert.Len(t, pusher.eventsFor(7, protocol.EventUserTyping), 1)
	})

	t.Run("会话不存在时静默丢弃", func(t *testing.T) {
		pusher := newFakePusher()
		svc := NewChatService(newFakeConversationRepo(), pusher, newFakeRegistry(7), clog.Discard())

		err := svc.Typing(ctx, testUser, &protocol.TypingRequest{ConversationID: "ghost", IsTyping: true})
		assert.NoError(t, err)
		assert.Empty(t, pusher.sent)
	})
}

func TestChatService_GetConversations(t *testing.T) {
	ctx := context.Background()
	store := newFakeConversationRepo()
	pusher := newFakePusher()
	svc := NewChatService(store, pusher, newFakeRegistry(7, 1), clog.Discard())

	require.NoError(t, svc.SendMessage(ctx, testUser, &protocol.SendMessageRequest{
		ConversationID: "u7-s1",
		Content:        "hi",
		RecipientID:    1,
	}))

	t.Run("用户侧列表", func(t *testing.T) {
		require.NoError(t, svc.GetConversations(ctx, testUser))
		events := pusher.eventsFor(7, protocol.EventConversationsList)
		require.Len(t, events, 1)
		cp := events[0].Payload.(*protocol.ConversationsPayload)
		require.Len(t, cp.Conversations, 1)
		assert.Equal(t, "u7-s1", cp.Conversations[0].ID)
	})

	t.Run("无关身份得到空列表", func(t *testing.T) {
		other := &model.Identity{ID: 55, DisplayName: "Other", Role: model.RoleUser}
		registry := newFakeRegistry(55)
		svc := NewChatService(store, pusher, registry, clog.Discard())
		require.NoError(t, svc.GetConversations(ctx, other))
		events := pusher.eventsFor(55, protocol.EventConversationsList)
		require.Len(t, events, 1)
		assert.Empty(t, events[0].Payload.(*protocol.ConversationsPayload).Conversations)
	})
}

func TestChatService_GetMessages(t *testing.T) {
	ctx := context.Background()
	store := newFakeConversationRepo()
	pusher := newFakePusher()
	svc := NewChatService(store, pusher, newFakeRegistry(7, 1), clog.Discard())

	for _, content := range []string{"one", "two", "three"} {
		require.NoError(t, svc.SendMessage(ctx, testUser, &protocol.SendMessageRequest{
			ConversationID: "u7-s1",
			Content:        content,
			RecipientID:    1,
		}))
	}

	require.NoError(t, svc.GetMessages(ctx, testSupport, &protocol.GetMessagesRequest{ConversationID: "u7-s1"}))

	events := pusher.eventsFor(1, protocol.EventMessagesHistory)
	require.Len(t, events, 1)
	hp := events[0].Payload.(*protocol.MessagesHistoryPayload)
	assert.Equal(t, "u7-s1", hp.ConversationID)
	require.Len(t, hp.Messages, 3)
	assert.Equal(t, "one", hp.Messages[0].Content)
	assert.Equal(t, "three", hp.Messages[2].Content)
}

func TestChatService_MarkAsRead(t *testing.T) {
	ctx := context.Background()
	store := newFakeConversationRepo()
	pusher := newFakePusher()
	svc := NewChatService(store, pusher, newFakeRegistry(7, 1), clog.Discard())

	require.NoError(t, svc.SendMessage(ctx, testUser, &protocol.SendMessageRequest{
		ConversationID: "u7-s1",
		Content:        "hi",
		RecipientID:    1,
	}))

	require.NoError(t, svc.MarkAsRead(ctx, testSupport, &protocol.MarkAsReadRequest{ConversationID: "u7-s1"}))

	t.Run("调用方收到读回执", func(t *testing.T) {
		events := pusher.eventsFor(1, protocol.EventMessagesRead)
		require.Len(t, events, 1)
		assert.Equal(t, "u7-s1", events[0].Payload.(*protocol.MessagesReadPayload).ConversationID)
	})

	t.Run("发给调用方的消息已读", func(t *testing.T) {
		messages, err := store.ListMessages(ctx, "u7-s1", 0)
		require.NoError(t, err)
		require.Len(t, messages, 1)
		assert.True(t, messages[0].IsRead)
	})

	t.Run("未读计数清零", func(t *testing.T) {
		conv, err := store.GetConversation(ctx, "u7-s1")
		require.NoError(t, err)
		assert.Equal(t, 0, conv.UnreadCount)
	})
}
