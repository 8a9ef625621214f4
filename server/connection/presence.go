package connection

import (
	"context"

	"github.com/ceyewan/genesis/clog"
	"github.com/wealthline/supportchat/internal/model"
)

// PresenceSync 上下线时需要完成的在线状态同步
type PresenceSync interface {
	// HandleConnect 持久化上线记录并向客服组广播在线列表
	HandleConnect(ctx context.Context, identity *model.Identity, connectionHandle string) error
	// HandleDisconnect 持久化下线记录并向客服组广播在线列表
	HandleDisconnect(ctx context.Context, identity *model.Identity) error
}

// PresenceCallback 上下线回调函数
// 挂在连接管理器上，注册/注销各触发一次
type PresenceCallback struct {
	sync   PresenceSync
	logger clog.Logger
}

// NewPresenceCallback 创建上下线回调
func NewPresenceCallback(sync PresenceSync, logger clog.Logger) *PresenceCallback {
	return &PresenceCallback{
		sync:   sync,
		logger: logger,
	}
}

// OnUserOnline 用户上线回调
// 同步失败只记日志，连接本身照常服务
func (p *PresenceCallback) OnUserOnline(identity *model.Identity, handle, remoteAddr string) {
	ctx := context.Background()
	if err := p.sync.HandleConnect(ctx, identity, handle); err != nil {
		p.logger.Error("failed to sync user online",
			clog.Int64("user_id", identity.ID),
			clog.String("remote_addr", remoteAddr),
			clog.Error(err))
		return
	}
	p.logger.Info("user online synced",
		clog.Int64("user_id", identity.ID),
		clog.String("handle", handle))
}

// OnUserOffline 用户下线回调
func (p *PresenceCallback) OnUserOffline(identity *model.Identity) {
	ctx := context.Background()
	if err := p.sync.HandleDisconnect(ctx, identity); err != nil {
		p.logger.Error("failed to sync user offline",
			clog.Int64("user_id", identity.ID),
			clog.Error(err))
		return
	}
	p.logger.Info("user offline synced", clog.Int64("user_id", identity.ID))
}
