package connection

import (
	"fmt"
	"sync"

	"github.com/ceyewan/genesis/clog"
	"github.com/gorilla/websocket"
	"github.com/wealthline/supportchat/internal/model"
)

// Manager 管理所有 WebSocket 连接，键为用户 ID，同一用户只保留最新连接
type Manager struct {
	connections sync.Map // userID(int64) -> *Conn
	logger      clog.Logger
	upgrader    *websocket.Upgrader

	// 回调函数，注册/注销各触发一次
	mu           sync.RWMutex
	onConnect    func(identity *model.Identity, handle, remoteAddr string)
	onDisconnect func(identity *model.Identity)
}

// NewManager 创建连接管理器
func NewManager(logger clog.Logger, upgrader *websocket.Upgrader) *Manager {
	return &Manager{
		logger:   logger,
		upgrader: upgrader,
	}
}

// SetCallbacks 设置上线/下线回调
// 回调依赖连接管理器本身做广播，所以不能在构造时注入
func (m *Manager) SetCallbacks(
	onConnect func(identity *model.Identity, handle, remoteAddr string),
	onDisconnect func(identity *model.Identity),
) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnect = onConnect
	m.onDisconnect = onDisconnect
}

// Register 注册连接，已存在同用户连接时关闭旧连接
func (m *Manager) Register(conn *Conn) {
	identity := conn.Identity()

	if old, ok := m.connections.Load(identity.ID); ok {
		m.logger.Warn("user already connected, closing old connection",
			clog.Int64("user_id", identity.ID))
		old.(*Conn).Close()
	}

	m.connections.Store(identity.ID, conn)
	m.logger.Info("user connected",
		clog.Int64("user_id", identity.ID),
		clog.String("role", identity.Role),
		clog.String("handle", conn.Handle()),
		clog.String("remote_addr", conn.RemoteAddr()))

	m.mu.RLock()
	onConnect := m.onConnect
	m.mu.RUnlock()
	if onConnect != nil {
		onConnect(identity, conn.Handle(), conn.RemoteAddr())
	}
}

// Unregister 注销连接
// 只在注册表仍指向该连接时删除，避免旧连接的善后挤掉刚重连的新连接
func (m *Manager) Unregister(conn *Conn) {
	identity := conn.Identity()

	if !m.connections.CompareAndDelete(identity.ID, conn) {
		conn.Close()
		return
	}
	conn.Close()
	m.logger.Info("user disconnected", clog.Int64("user_id", identity.ID))

	m.mu.RLock()
	onDisconnect := m.onDisconnect
	m.mu.RUnlock()
	if onDisconnect != nil {
		onDisconnect(identity)
	}
}

// GetConnection 获取连接
func (m *Manager) GetConnection(userID int64) (*Conn, bool) {
	if conn, ok := m.connections.Load(userID); ok {
		return conn.(*Conn), true
	}
	return nil, false
}

// IsOnline 判断用户是否有存活连接
func (m *Manager) IsOnline(userID int64) bool {
	_, ok := m.connections.Load(userID)
	return ok
}

// SendToUser 发送事件给指定用户
func (m *Manager) SendToUser(userID int64, event string, payload interface{}) error {
	conn, ok := m.GetConnection(userID)
	if !ok {
		return fmt.Errorf("user not connected: %d", userID)
	}
	return conn.Send(event, payload)
}

// BroadcastSupport 广播事件给所有客服连接
func (m *Manager) BroadcastSupport(event string, payload interface{}) {
	m.connections.Range(func(key, value interface{}) bool {
		conn := value.(*Conn)
		if !conn.Identity().IsSupport() {
			return true
		}
		if err := conn.Send(event, payload); err != nil {
			m.logger.Error("failed to broadcast event",
				clog.Int64("user_id", key.(int64)),
				clog.String("event", event),
				clog.Error(err))
		}
		return true
	})
}

// OnlineUserIDs 获取当前有存活连接的用户 ID 集合
func (m *Manager) OnlineUserIDs() []int64 {
	var ids []int64
	m.connections.Range(func(key, value interface{}) bool {
		ids = append(ids, key.(int64))
		return true
	})
	return ids
}

// OnlineCount 获取在线用户数
func (m *Manager) OnlineCount() int {
	count := 0
	m.connections.Range(func(key, value interface{}) bool {
		count++
		return true
	})
	return count
}

// Close 关闭所有连接
func (m *Manager) Close() error {
	m.connections.Range(func(key, value interface{}) bool {
		value.(*Conn).Close()
		return true
	})
	return nil
}

// Upgrader 获取 WebSocket 升级器
func (m *Manager) Upgrader() *websocket.Upgrader {
	return m.upgrader
}
