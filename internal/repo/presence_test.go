package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func onlineIDs(t *testing.T, repo PresenceRepo) []int64 {
	t.Helper()
	records, err := repo.ListOnline(context.Background())
	require.NoError(t, err)
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.UserID)
	}
	return ids
}

func TestPresenceRepo_SetOnline(t *testing.T) {
	database, cleanup := setupTestContext(t)
	defer cleanup()

	repo, err := NewPresenceRepo(database, WithPresenceRepoLogger(getTestLogger(t)))
	require.NoError(t, err)
	defer repo.Close()

	ctx := context.Background()

	t.Run("首次上线插入记录", func(t *testing.T) {
		err := repo.SetOnline(ctx, 1, "conn-a")
		require.NoError(t, err)
		assert.Contains(t, onlineIDs(t, repo), int64(1))
	})

	t.Run("重复上线覆盖连接句柄不产生新行", func(t *testing.T) {
		require.NoError(t, repo.SetOnline(ctx, 1, "conn-b"))
		require.NoError(t, repo.SetOnline(ctx, 1, "conn-c"))

		records, err := repo.ListOnline(ctx)
		require.NoError(t, err)
		count := 0
		for _, r := range records {
			if r.UserID == 1 {
				count++
				assert.Equal(t, "conn-c", r.ConnectionHandle)
			}
		}
		assert.Equal(t, 1, count)
	})

	t.Run("非法用户ID应失败", func(t *testing.T) {
		err := repo.SetOnline(ctx, 0, "conn-x")
		assert.Error(t, err)
	})

	t.Run("空连接句柄应失败", func(t *testing.T) {
		err := repo.SetOnline(ctx, 2, "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "connection_handle cannot be empty")
	})
}

func TestPresenceRepo_SetOffline(t *testing.T) {
	database, cleanup := setupTestContext(t)
	defer cleanup()

	repo, err := NewPresenceRepo(database, WithPresenceRepoLogger(getTestLogger(t)))
	require.NoError(t, err)
	defer repo.Close()

	ctx := context.Background()

	t.Run("下线后不再出现在在线列表但保留记录", func(t *testing.T) {
		require.NoError(t, repo.SetOnline(ctx, 3, "conn-3"))
		require.NoError(t, repo.SetOffline(ctx, 3))

		assert.NotContains(t, onlineIDs(t, repo), int64(3))

		all, err := repo.ListAll(ctx)
		require.NoError(t, err)
		found := false
		for _, r := range all {
			if r.UserID == 3 {
				found = true
				assert.False(t, r.IsOnline)
				assert.False(t, r.LastSeenAt.IsZero())
			}
		}
		assert.True(t, found)
	})

	t.Run("无记录时下线不报错", func(t *testing.T) {
		err := repo.SetOffline(ctx, 999)
		assert.NoError(t, err)
	})
}

func TestPresenceRepo_MarkAllOffline(t *testing.T) {
	database, cleanup := setupTestContext(t)
	defer cleanup()

	repo, err := NewPresenceRepo(database, WithPresenceRepoLogger(getTestLogger(t)))
	require.NoError(t, err)
	defer repo.Close()

	ctx := context.Background()

	require.NoError(t, repo.SetOnline(ctx, 10, "conn-10"))
	require.NoError(t, repo.SetOnline(ctx, 11, "conn-11"))

	err = repo.MarkAllOffline(ctx)
	require.NoError(t, err)

	assert.Empty(t, onlineIDs(t, repo))
}
