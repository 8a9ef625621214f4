package connection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ceyewan/genesis/clog"
	"github.com/gorilla/websocket"
	"github.com/wealthline/supportchat/internal/model"
	"github.com/wealthline/supportchat/server/protocol"
)

// Conn 表示一个 WebSocket 连接
type Conn struct {
	identity   *model.Identity
	handle     string
	conn       *websocket.Conn
	send       chan []byte
	logger     clog.Logger
	handler    protocol.Handler
	ctx        context.Context
	cancel     context.CancelFunc
	closeOnce  sync.Once
	remoteAddr string

	// 配置
	maxMessageSize int64
	pingInterval   time.Duration
	pongTimeout    time.Duration
}

// NewConn 创建新的连接
func NewConn(
	identity *model.Identity,
	handle string,
	conn *websocket.Conn,
	logger clog.Logger,
	handler protocol.Handler,
	maxMessageSize int64,
	pingInterval time.Duration,
	pongTimeout time.Duration,
) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		identity:       identity,
		handle:         handle,
		conn:           conn,
		send:           make(chan []byte, 256),
		logger:         logger,
		handler:        handler,
		ctx:            ctx,
		cancel:         cancel,
		remoteAddr:     conn.RemoteAddr().String(),
		maxMessageSize: maxMessageSize,
		pingInterval:   pingInterval,
		pongTimeout:    pongTimeout,
	}
}

// Identity 实现 protocol.Connection 接口
func (c *Conn) Identity() *model.Identity {
	return c.identity
}

// Handle 实现 protocol.Connection 接口
func (c *Conn) Handle() string {
	return c.handle
}

// RemoteAddr 实现 protocol.Connection 接口
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}

// Send 实现 protocol.Connection 接口，编码事件并排入发送队列
func (c *Conn) Send(name string, payload interface{}) error {
	data, err := protocol.Encode(name, payload)
	if err != nil {
		return err
	}

	select {
	case <-c.ctx.Done():
		return fmt.Errorf("connection closed")
	case c.send <- data:
		return nil
	default:
		return fmt.Errorf("send buffer full")
	}
}

// Close 实现 protocol.Connection 接口
// send 通道不关闭，避免与并发 Send 竞争，writePump 通过 ctx 退出
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.conn.Close()
	})
	return nil
}

// Done 在连接关闭后收到信号
func (c *Conn) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Run 启动连接的读写协程
func (c *Conn) Run() {
	go c.writePump()
	go c.readPump()
}

// readPump 从 WebSocket 读取事件
func (c *Conn) readPump() {
	defer c.Close()

	c.conn.SetReadLimit(c.maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket read error",
					clog.Int64("user_id", c.identity.ID),
					clog.Error(err))
			}
			break
		}

		// 解码事件
		event, err := protocol.Decode(message)
		if err != nil {
			c.logger.Warn("failed to decode event",
				clog.Int64("user_id", c.identity.ID),
				clog.Error(err))
			c.sendError(err)
			continue
		}

		// 处理事件，失败只影响当前连接
		if err := c.handler.HandleEvent(c.ctx, c, event); err != nil {
			c.logger.Error("failed to handle event",
				clog.Int64("user_id", c.identity.ID),
				clog.String("event", event.Name),
				clog.Error(err))
			c.sendError(err)
		}
	}
}

// sendError 将错误作为 messageError 事件回发给当前连接
func (c *Conn) sendError(err error) {
	if serr := c.Send(protocol.EventMessageError, &protocol.MessageErrorPayload{Error: err.Error()}); serr != nil {
		c.logger.Debug("failed to send error event",
			clog.Int64("user_id", c.identity.ID),
			clog.Error(serr))
	}
}

// writePump 向 WebSocket 写入事件
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case data := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Error("failed to write message",
					clog.Int64("user_id", c.identity.ID),
					clog.Error(err))
				return
			}

		case <-ticker.C:
			// 发送心跳
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
