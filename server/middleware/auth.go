package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/ceyewan/genesis/clog"
	"github.com/gin-gonic/gin"
	"github.com/wealthline/supportchat/internal/model"
)

const (
	// IdentityKey 是上下文中存储已认证身份的键
	IdentityKey = "identity"
)

// Authenticator 握手认证，由 service.Gate 实现
type Authenticator interface {
	// Authenticate 校验原始凭证并解析身份
	Authenticate(ctx context.Context, rawCredential string) (*model.Identity, error)
}

// AuthConfig 认证中间件配置
type AuthConfig struct {
	gate   Authenticator
	logger clog.Logger
}

// NewAuthConfig 创建认证配置
func NewAuthConfig(gate Authenticator, logger clog.Logger) *AuthConfig {
	return &AuthConfig{
		gate:   gate,
		logger: logger,
	}
}

// RequireAuth 返回一个需要认证的中间件
// 从 Authorization 头或查询参数中获取凭证并验证
func (a *AuthConfig) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := a.extractAndValidate(c)
		if err != nil {
			a.logger.Warn("authentication failed",
				clog.String("client_ip", c.ClientIP()),
				clog.Error(err),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": err.Error(),
			})
			return
		}

		c.Set(IdentityKey, identity)
		c.Next()
	}
}

// extractAndValidate 从请求中提取并验证凭证
func (a *AuthConfig) extractAndValidate(c *gin.Context) (*model.Identity, error) {
	// 从请求头获取凭证，支持 "Bearer <token>" 格式
	credential := c.GetHeader("Authorization")
	if credential != "" {
		credential = strings.TrimPrefix(credential, "Bearer ")
	} else {
		// 从查询参数获取凭证
		credential = c.Query("token")
	}

	return a.gate.Authenticate(c.Request.Context(), credential)
}

// GetIdentity 从上下文获取已认证身份
func GetIdentity(c *gin.Context) (*model.Identity, bool) {
	value, exists := c.Get(IdentityKey)
	if !exists {
		return nil, false
	}
	identity, ok := value.(*model.Identity)
	return identity, ok
}

// MustGetIdentity 从上下文获取已认证身份，不存在则 panic
func MustGetIdentity(c *gin.Context) *model.Identity {
	identity, exists := GetIdentity(c)
	if !exists {
		panic("identity not found in context")
	}
	return identity
}
