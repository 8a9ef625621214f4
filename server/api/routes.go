package api

import (
	"github.com/gin-gonic/gin"
)

// RouteConfig 路由配置
type RouteConfig struct {
	RecoveryMiddleware        gin.HandlerFunc
	LoggerMiddleware          gin.HandlerFunc
	SlowQueryMiddleware       gin.HandlerFunc
	GlobalRateLimitMiddleware gin.HandlerFunc
	IPRateLimitMiddleware     gin.HandlerFunc
	UserRateLimitMiddleware   gin.HandlerFunc
}

// RouteOption 路由选项函数
type RouteOption func(*RouteConfig)

// WithRecovery 设置 Recovery 中间件
func WithRecovery(middleware gin.HandlerFunc) RouteOption {
	return func(cfg *RouteConfig) {
		cfg.RecoveryMiddleware = middleware
	}
}

// WithLogger 设置 Logger 中间件
func WithLogger(middleware gin.HandlerFunc) RouteOption {
	return func(cfg *RouteConfig) {
		cfg.LoggerMiddleware = middleware
	}
}

// WithSlowQuery 设置慢查询检测中间件
func WithSlowQuery(middleware gin.HandlerFunc) RouteOption {
	return func(cfg *RouteConfig) {
		cfg.SlowQueryMiddleware = middleware
	}
}

// WithGlobalRateLimit 设置全局限流中间件
func WithGlobalRateLimit(middleware gin.HandlerFunc) RouteOption {
	return func(cfg *RouteConfig) {
		cfg.GlobalRateLimitMiddleware = middleware
	}
}

// WithIPRateLimit 设置 IP 限流中间件
func WithIPRateLimit(middleware gin.HandlerFunc) RouteOption {
	return func(cfg *RouteConfig) {
		cfg.IPRateLimitMiddleware = middleware
	}
}

// WithUserRateLimit 设置用户限流中间件
func WithUserRateLimit(middleware gin.HandlerFunc) RouteOption {
	return func(cfg *RouteConfig) {
		cfg.UserRateLimitMiddleware = middleware
	}
}

// RegisterRoutes 注册路由到 Gin，使用路由分组和中间件
// WebSocket 握手自带认证，REST 查询走认证中间件
func (h *HTTPHandler) RegisterRoutes(router *gin.Engine, ws *WebSocket, opts ...RouteOption) {
	cfg := &RouteConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	// 握手路由组：不走认证中间件，握手流程自己校验凭证
	wsGroup := router.Group("")
	if cfg.RecoveryMiddleware != nil {
		wsGroup.Use(cfg.RecoveryMiddleware)
	}
	if cfg.LoggerMiddleware != nil {
		wsGroup.Use(cfg.LoggerMiddleware)
	}
	if cfg.GlobalRateLimitMiddleware != nil {
		wsGroup.Use(cfg.GlobalRateLimitMiddleware)
	}
	if cfg.IPRateLimitMiddleware != nil {
		wsGroup.Use(cfg.IPRateLimitMiddleware)
	}
	wsGroup.GET("/ws", gin.WrapF(ws.HandleWebSocket))

	// 认证路由组：REST 查询接口
	authGroup := router.Group("")
	if cfg.RecoveryMiddleware != nil {
		authGroup.Use(cfg.RecoveryMiddleware)
	}
	if cfg.LoggerMiddleware != nil {
		authGroup.Use(cfg.LoggerMiddleware)
	}
	if cfg.SlowQueryMiddleware != nil {
		authGroup.Use(cfg.SlowQueryMiddleware)
	}
	if cfg.GlobalRateLimitMiddleware != nil {
		authGroup.Use(cfg.GlobalRateLimitMiddleware)
	}
	// 认证中间件
	authGroup.Use(h.authConfig.RequireAuth())
	if cfg.UserRateLimitMiddleware != nil {
		authGroup.Use(cfg.UserRateLimitMiddleware)
	}

	authGroup.GET("/api/users", h.GetAllUsers)
	authGroup.GET("/api/users/online", h.GetOnlineUsers)
}
