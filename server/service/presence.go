package service

import (
	"context"

	"github.com/ceyewan/genesis/clog"
	"github.com/wealthline/supportchat/internal/model"
	"github.com/wealthline/supportchat/internal/repo"
	"github.com/wealthline/supportchat/server/protocol"
)

// Registry 是连接注册表的只读视图
type Registry interface {
	// IsOnline 判断用户是否有存活连接
	IsOnline(userID int64) bool
	// OnlineUserIDs 获取当前有存活连接的用户 ID 集合
	OnlineUserIDs() []int64
}

// Pusher 向已注册连接推送事件
type Pusher interface {
	// SendToUser 发送事件给指定用户的当前连接
	SendToUser(userID int64, event string, payload interface{}) error
	// BroadcastSupport 广播事件给所有客服连接
	BroadcastSupport(event string, payload interface{})
}

// PresenceService 在线状态发布器：落库、重算、向客服组广播
// 每个连接生命周期精确触发两次广播：注册完成后一次，注销完成后一次
type PresenceService struct {
	presence    repo.PresenceRepo
	users       repo.UserRepo
	registry    Registry
	pusher      Pusher
	resolveRole roleResolver
	logger      clog.Logger
}

// NewPresenceService 创建在线状态服务
// resolveRole 与认证网关共用同一套邮箱推导规则（传 Gate.RoleFor）
func NewPresenceService(
	presence repo.PresenceRepo,
	users repo.UserRepo,
	registry Registry,
	pusher Pusher,
	resolveRole func(email string) string,
	logger clog.Logger,
) *PresenceService {
	return &PresenceService{
		presence:    presence,
		users:       users,
		registry:    registry,
		pusher:      pusher,
		resolveRole: resolveRole,
		logger:      logger.WithNamespace("presence"),
	}
}

// HandleConnect 实现 connection.PresenceSync
func (s *PresenceService) HandleConnect(ctx context.Context, identity *model.Identity, connectionHandle string) error {
	if err := s.presence.SetOnline(ctx, identity.ID, connectionHandle); err != nil {
		// 广播仍然要发：注册表才是实时在线的权威来源
		s.logger.Error("failed to persist online record",
			clog.Int64("user_id", identity.ID),
			clog.Error(err))
	}
	s.RecomputeAndBroadcast(ctx)
	return nil
}

// HandleDisconnect 实现 connection.PresenceSync
func (s *PresenceService) HandleDisconnect(ctx context.Context, identity *model.Identity) error {
	if err := s.presence.SetOffline(ctx, identity.ID); err != nil {
		s.logger.Error("failed to persist offline record",
			clog.Int64("user_id", identity.ID),
			clog.Error(err))
	}
	s.RecomputeAndBroadcast(ctx)
	return nil
}

// RecomputeAndBroadcast 重算在线列表并推送给客服组
// 广播失败只记日志，不向上冒泡
func (s *PresenceService) RecomputeAndBroadcast(ctx context.Context) {
	list, err := s.GetOnlineUsers(ctx)
	if err != nil {
		s.logger.Error("failed to recompute online users", clog.Error(err))
		return
	}
	s.pusher.BroadcastSupport(protocol.EventOnlineUsers, &protocol.OnlineUsersPayload{List: list})
}

// GetOnlineUsers 返回当前在线的用户列表
// 以持久化记录为底，和注册表的存活连接求交集，剔除残留的脏标记
func (s *PresenceService) GetOnlineUsers(ctx context.Context) ([]*protocol.OnlineUserPayload, error) {
	records, err := s.presence.ListOnline(ctx)
	if err != nil {
		return nil, err
	}

	usersByID, err := s.usersByID(ctx)
	if err != nil {
		return nil, err
	}

	list := make([]*protocol.OnlineUserPayload, 0, len(records))
	for _, record := range records {
		if !s.registry.IsOnline(record.UserID) {
			continue
		}
		user, ok := usersByID[record.UserID]
		if !ok {
			continue
		}
		list = append(list, &protocol.OnlineUserPayload{
			ID:          user.ID,
			DisplayName: user.DisplayName,
			Email:       user.Email,
			Role:        user.Role,
			IsOnline:    true,
			LastSeenAt:  record.LastSeenAt,
		})
	}
	return list, nil
}

// GetAllUsers 返回全部用户及其在线信息，按昵称升序
func (s *PresenceService) GetAllUsers(ctx context.Context) ([]*protocol.OnlineUserPayload, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	records, err := s.presence.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	recordsByID := make(map[int64]*model.PresenceRecord, len(records))
	for _, record := range records {
		recordsByID[record.UserID] = record
	}

	list := make([]*protocol.OnlineUserPayload, 0, len(users))
	for _, user := range users {
		payload := &protocol.OnlineUserPayload{
			ID:          user.ID,
			DisplayName: user.DisplayName,
			Email:       user.Email,
			Role:        s.roleOf(user),
			IsOnline:    s.registry.IsOnline(user.ID),
		}
		if record, ok := recordsByID[user.ID]; ok {
			payload.LastSeenAt = record.LastSeenAt
		}
		list = append(list, payload)
	}
	return list, nil
}

func (s *PresenceService) usersByID(ctx context.Context) (map[int64]*identityView, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*identityView, len(users))
	for _, user := range users {
		byID[user.ID] = &identityView{
			ID:          user.ID,
			DisplayName: user.DisplayName,
			Email:       user.Email,
			Role:        s.roleOf(user),
		}
	}
	return byID, nil
}

type identityView struct {
	ID          int64
	DisplayName string
	Email       string
	Role        string
}

// roleResolver 按邮箱推导角色，由认证网关提供
type roleResolver func(email string) string

func (s *PresenceService) roleOf(user *model.User) string {
	if s.resolveRole != nil {
		return s.resolveRole(user.Email)
	}
	return model.RoleUser
}
