package repo

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wealthline/supportchat/internal/model"
)

func TestConversationRepo_GetOrCreateConversation(t *testing.T) {
	database, cleanup := setupTestContext(t)
	defer cleanup()

	repo, err := NewConversationRepo(database, WithConversationRepoLogger(getTestLogger(t)))
	require.NoError(t, err)
	defer repo.Close()

	ctx := context.Background()

	t.Run("创建新会话", func(t *testing.T) {
		conv, err := repo.GetOrCreateConversation(ctx, &model.Conversation{
			ID:        "conv_1_100",
			UserID:    1,
			SupportID: 100,
		})
		require.NoError(t, err)
		assert.Equal(t, "conv_1_100", conv.ID)
		assert.Equal(t, int64(1), conv.UserID)
		assert.Equal(t, int64(100), conv.SupportID)
		assert.Equal(t, 1, conv.UnreadCount)
		assert.False(t, conv.LastMessageAt.IsZero())
	})

	t.Run("重复创建返回已有会话", func(t *testing.T) {
		first, err := repo.GetOrCreateConversation(ctx, &model.Conversation{
			ID:        "conv_2_100",
			UserID:    2,
			SupportID: 100,
		})
		require.NoError(t, err)

		again, err := repo.GetOrCreateConversation(ctx, &model.Conversation{
			ID:        "conv_2_100",
			UserID:    2,
			SupportID: 100,
		})
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID)
		assert.Equal(t, first.CreatedAt.Unix(), again.CreatedAt.Unix())
	})

	t.Run("空会话ID应失败", func(t *testing.T) {
		_, err := repo.GetOrCreateConversation(ctx, &model.Conversation{
			UserID:    1,
			SupportID: 100,
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "conversation id cannot be empty")
	})

	t.Run("缺少参与者应失败", func(t *testing.T) {
		_, err := repo.GetOrCreateConversation(ctx, &model.Conversation{
			ID:     "conv_bad",
			UserID: 1,
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "participants must be set")
	})

	t.Run("nil会话应失败", func(t *testing.T) {
		_, err := repo.GetOrCreateConversation(ctx, nil)
		assert.Error(t, err)
	})
}

func TestConversationRepo_AppendMessage(t *testing.T) {
	database, cleanup := setupTestContext(t)
	defer cleanup()

	repo, err := NewConversationRepo(database, WithConversationRepoLogger(getTestLogger(t)))
	require.NoError(t, err)
	defer repo.Close()

	ctx := context.Background()

	t.Run("追加消息并更新会话摘要", func(t *testing.T) {
		conv, err := repo.GetOrCreateConversation(ctx, &model.Conversation{
			ID:        "conv_3_100",
			UserID:    3,
			SupportID: 100,
		})
		require.NoError(t, err)
		require.Equal(t, 1, conv.UnreadCount)

		msg := &model.Message{
			ConversationID: conv.ID,
			SenderID:       3,
			RecipientID:    100,
			Content:        "I need help with a transfer",
		}
		err = repo.AppendMessage(ctx, msg)
		require.NoError(t, err)
		assert.NotZero(t, msg.ID)
		assert.Equal(t, model.MessageKindText, msg.Kind)

		conversations, err := repo.ListConversationsFor(ctx, int64(3), model.RoleUser)
		require.NoError(t, err)
		require.Len(t, conversations, 1)
		assert.Equal(t, "I need help with a transfer", conversations[0].LastMessageText)
		assert.Equal(t, 2, conversations[0].UnreadCount)
	})

	t.Run("空内容应失败", func(t *testing.T) {
		err := repo.AppendMessage(ctx, &model.Message{
			ConversationID: "conv_3_100",
			SenderID:       3,
			RecipientID:    100,
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "content cannot be empty")
	})

	t.Run("缺少收发双方应失败", func(t *testing.T) {
		err := repo.AppendMessage(ctx, &model.Message{
			ConversationID: "conv_3_100",
			Content:        "hi",
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "sender and recipient must be set")
	})

	t.Run("nil消息应失败", func(t *testing.T) {
		err := repo.AppendMessage(ctx, nil)
		assert.Error(t, err)
	})
}

func TestConversationRepo_ListConversationsFor(t *testing.T) {
	database, cleanup := setupTestContext(t)
	defer cleanup()

	repo, err := NewConversationRepo(database, WithConversationRepoLogger(getTestLogger(t)))
	require.NoError(t, err)
	defer repo.Close()

	ctx := context.Background()

	// 同一个客服名下挂三个用户的会话，发消息制造不同的最新时间
	for i := 1; i <= 3; i++ {
		conv, err := repo.GetOrCreateConversation(ctx, &model.Conversation{
			ID:        fmt.Sprintf("conv_%d_200", i),
			UserID:    int64(i),
			SupportID: 200,
		})
		require.NoError(t, err)

		err = repo.AppendMessage(ctx, &model.Message{
			ConversationID: conv.ID,
			SenderID:       int64(i),
			RecipientID:    200,
			Content:        fmt.Sprintf("message from user %d", i),
		})
		require.NoError(t, err)
	}

	t.Run("客服视角看到全部会话且最新在前", func(t *testing.T) {
		conversations, err := repo.ListConversationsFor(ctx, int64(200), model.RoleSupport)
		require.NoError(t, err)
		require.Len(t, conversations, 3)
		assert.Equal(t, "conv_3_200", conversations[0].ID)
		for i := 1; i < len(conversations); i++ {
			assert.False(t, conversations[i].LastMessageAt.After(conversations[i-1].LastMessageAt))
		}
	})

	t.Run("用户视角只看到自己的会话", func(t *testing.T) {
		conversations, err := repo.ListConversationsFor(ctx, int64(2), model.RoleUser)
		require.NoError(t, err)
		require.Len(t, conversations, 1)
		assert.Equal(t, "conv_2_200", conversations[0].ID)
	})

	t.Run("无会话返回空列表", func(t *testing.T) {
		conversations, err := repo.ListConversationsFor(ctx, int64(999), model.RoleUser)
		require.NoError(t, err)
		assert.Empty(t, conversations)
	})
}

func TestConversationRepo_ListMessages(t *testing.T) {
	database, cleanup := setupTestContext(t)
	defer cleanup()

	repo, err := NewConversationRepo(database, WithConversationRepoLogger(getTestLogger(t)))
	require.NoError(t, err)
	defer repo.Close()

	ctx := context.Background()

	conv, err := repo.GetOrCreateConversation(ctx, &model.Conversation{
		ID:        "conv_5_200",
		UserID:    5,
		SupportID: 200,
	})
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		err := repo.AppendMessage(ctx, &model.Message{
			ConversationID: conv.ID,
			SenderID:       5,
			RecipientID:    200,
			Content:        fmt.Sprintf("Message %d", i),
		})
		require.NoError(t, err)
	}

	t.Run("按时间升序返回", func(t *testing.T) {
		messages, err := repo.ListMessages(ctx, conv.ID, 0)
		require.NoError(t, err)
		require.Len(t, messages, 5)
		assert.Equal(t, "Message 1", messages[0].Content)
		assert.Equal(t, "Message 5", messages[4].Content)
	})

	t.Run("limit 生效", func(t *testing.T) {
		messages, err := repo.ListMessages(ctx, conv.ID, 2)
		require.NoError(t, err)
		assert.Len(t, messages, 2)
	})

	t.Run("空会话ID应失败", func(t *testing.T) {
		_, err := repo.ListMessages(ctx, "", 0)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "conversation_id cannot be empty")
	})
}

func TestConversationRepo_MarkRead(t *testing.T) {
	database, cleanup := setupTestContext(t)
	defer cleanup()

	repo, err := NewConversationRepo(database, WithConversationRepoLogger(getTestLogger(t)))
	require.NoError(t, err)
	defer repo.Close()

	ctx := context.Background()

	conv, err := repo.GetOrCreateConversation(ctx, &model.Conversation{
		ID:        "conv_6_200",
		UserID:    6,
		SupportID: 200,
	})
	require.NoError(t, err)

	// 用户发两条给客服，客服发一条给用户
	for i := 0; i < 2; i++ {
		require.NoError(t, repo.AppendMessage(ctx, &model.Message{
			ConversationID: conv.ID,
			SenderID:       6,
			RecipientID:    200,
			Content:        fmt.Sprintf("user message %d", i),
		}))
	}
	require.NoError(t, repo.AppendMessage(ctx, &model.Message{
		ConversationID: conv.ID,
		SenderID:       200,
		RecipientID:    6,
		Content:        "support reply",
	}))

	t.Run("只翻转发给指定收件人的未读消息", func(t *testing.T) {
		err := repo.MarkRead(ctx, conv.ID, 200)
		require.NoError(t, err)

		messages, err := repo.ListMessages(ctx, conv.ID, 0)
		require.NoError(t, err)
		require.Len(t, messages, 3)
		for _, m := range messages {
			if m.RecipientID == 200 {
				assert.True(t, m.IsRead)
			} else {
				assert.False(t, m.IsRead)
			}
		}
	})

	t.Run("未读计数清零", func(t *testing.T) {
		conversations, err := repo.ListConversationsFor(ctx, int64(6), model.RoleUser)
		require.NoError(t, err)
		require.Len(t, conversations, 1)
		assert.Equal(t, 0, conversations[0].UnreadCount)
	})

	t.Run("幂等重复标记", func(t *testing.T) {
		err := repo.MarkRead(ctx, conv.ID, 200)
		require.NoError(t, err)
	})

	t.Run("空会话ID应失败", func(t *testing.T) {
		err := repo.MarkRead(ctx, "", 200)
		assert.Error(t, err)
	})
}
