package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ceyewan/genesis/clog"
	"github.com/ceyewan/genesis/idgen"
	"github.com/gorilla/websocket"
	"github.com/wealthline/supportchat/server/connection"
	"github.com/wealthline/supportchat/server/middleware"
	"github.com/wealthline/supportchat/server/protocol"
	"github.com/wealthline/supportchat/server/service"
)

// WebSocket 处理 WebSocket 握手与连接建立
type WebSocket struct {
	gate     *service.Gate
	chat     *service.ChatService
	connMgr  *connection.Manager
	logger   clog.Logger
	upgrader *websocket.Upgrader
	config   *WSConfig
	idgen    idgen.Generator
}

// WSConfig WebSocket 配置
type WSConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	MaxMessageSize  int64
	PingInterval    int // 秒
	PongTimeout     int // 秒
}

// DefaultWSConfig 默认 WebSocket 配置
func DefaultWSConfig() *WSConfig {
	return &WSConfig{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		MaxMessageSize:  512, // 512KB
		PingInterval:    30,  // 30秒
		PongTimeout:     60,  // 60秒
	}
}

// NewWebSocket 创建 WebSocket 处理器
func NewWebSocket(
	gate *service.Gate,
	chat *service.ChatService,
	connMgr *connection.Manager,
	logger clog.Logger,
	cfg *WSConfig,
	idgen idgen.Generator,
) *WebSocket {
	if cfg == nil {
		cfg = DefaultWSConfig()
	}

	upgrader := &websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			// 生产环境需要严格检查 Origin
			return true
		},
	}

	return &WebSocket{
		gate:     gate,
		chat:     chat,
		connMgr:  connMgr,
		logger:   logger,
		upgrader: upgrader,
		config:   cfg,
		idgen:    idgen,
	}
}

// HandleWebSocket 处理 WebSocket 连接请求
// 凭证优先取 URL 参数 token，浏览器外的客户端也可以走 Authorization 头
func (ws *WebSocket) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	credential := r.URL.Query().Get("token")
	if credential == "" {
		credential = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}

	identity, err := ws.gate.Authenticate(r.Context(), credential)
	if err != nil {
		ws.logger.Warn("websocket connection rejected",
			clog.String("remote_addr", r.RemoteAddr),
			clog.Error(err))
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	// 获取或生成 trace_id（会话级，整个 WebSocket 连接共用）
	traceID := r.Header.Get(middleware.TraceIDHeader)
	if traceID == "" && ws.idgen != nil {
		traceID = ws.idgen.NextString()
	}

	// 连接句柄：进程内唯一，写入在线记录便于排查
	handle := traceID
	if handle == "" {
		handle = r.RemoteAddr
	}

	// 升级为 WebSocket 连接
	wsConn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.logger.Error("failed to upgrade websocket",
			clog.Int64("user_id", identity.ID),
			clog.String("remote_addr", r.RemoteAddr),
			clog.Error(err))
		return
	}

	// 创建协议处理器，事件分发到消息路由服务
	handler := protocol.NewDefaultHandler(
		ws.logger,
		func(ctx context.Context, conn protocol.Connection, req *protocol.SendMessageRequest) error {
			return ws.chat.SendMessage(ctx, conn.Identity(), req)
		},
		func(ctx context.Context, conn protocol.Connection, req *protocol.TypingRequest) error {
			return ws.chat.Typing(ctx, conn.Identity(), req)
		},
		func(ctx context.Context, conn protocol.Connection) error {
			return ws.chat.GetConversations(ctx, conn.Identity())
		},
		func(ctx context.Context, conn protocol.Connection, req *protocol.GetMessagesRequest) error {
			return ws.chat.GetMessages(ctx, conn.Identity(), req)
		},
		func(ctx context.Context, conn protocol.Connection, req *protocol.MarkAsReadRequest) error {
			return ws.chat.MarkAsRead(ctx, conn.Identity(), req)
		},
	)

	// 创建连接
	conn := connection.NewConn(
		identity,
		handle,
		wsConn,
		ws.logger,
		handler,
		ws.config.MaxMessageSize*1024,
		time.Duration(ws.config.PingInterval)*time.Second,
		time.Duration(ws.config.PongTimeout)*time.Second,
	)

	// 添加到连接管理器（会触发上线广播）
	ws.connMgr.Register(conn)

	// 启动连接的读写协程
	conn.Run()

	// 连接退出后注销（会触发下线广播）
	go func() {
		<-conn.Done()
		ws.connMgr.Unregister(conn)
	}()

	ws.logger.Info("websocket connection established",
		clog.Int64("user_id", identity.ID),
		clog.String("role", identity.Role),
		clog.String("trace_id", traceID),
		clog.String("remote_addr", r.RemoteAddr))
}

// Upgrader 返回 WebSocket 升级器
func (ws *WebSocket) Upgrader() *websocket.Upgrader {
	return ws.upgrader
}
