package api

import (
	"net/http"

	"github.com/ceyewan/genesis/clog"
	"github.com/gin-gonic/gin"
	"github.com/wealthline/supportchat/server/middleware"
	"github.com/wealthline/supportchat/server/service"
)

// HTTPHandler 实现 REST 查询接口
type HTTPHandler struct {
	presence   *service.PresenceService
	logger     clog.Logger
	authConfig *middleware.AuthConfig
}

// NewHTTPHandler 创建 API Handler
func NewHTTPHandler(presence *service.PresenceService, gate *service.Gate, logger clog.Logger) *HTTPHandler {
	return &HTTPHandler{
		presence:   presence,
		logger:     logger,
		authConfig: middleware.NewAuthConfig(gate, logger),
	}
}

// RequireAuthMiddleware 提供给外部路由使用的认证中间件
func (h *HTTPHandler) RequireAuthMiddleware() gin.HandlerFunc {
	return h.authConfig.RequireAuth()
}

// GetOnlineUsers 处理 GET /api/users/online
func (h *HTTPHandler) GetOnlineUsers(c *gin.Context) {
	list, err := h.presence.GetOnlineUsers(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to load online users", clog.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"users": list})
}

// GetAllUsers 处理 GET /api/users
func (h *HTTPHandler) GetAllUsers(c *gin.Context) {
	list, err := h.presence.GetAllUsers(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to load users", clog.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"users": list})
}
