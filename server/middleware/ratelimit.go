package middleware

import (
	"fmt"
	"net/http"

	"github.com/ceyewan/genesis/clog"
	"github.com/ceyewan/genesis/ratelimit"
	"github.com/gin-gonic/gin"
)

// RateLimitConfig 限流中间件配置
type RateLimitConfig struct {
	limiter ratelimit.Limiter
	logger  clog.Logger
}

// NewRateLimitConfig 创建限流配置
func NewRateLimitConfig(limiter ratelimit.Limiter, logger clog.Logger) *RateLimitConfig {
	return &RateLimitConfig{
		limiter: limiter,
		logger:  logger,
	}
}

// IPBased 基于路径的 IP 限流中间件
// 不同路径有不同的限流规则，适用于握手等公开接口
func (r *RateLimitConfig) IPBased(pathLimits map[string]ratelimit.Limit, defaultLimit ratelimit.Limit) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, ok := pathLimits[c.FullPath()]
		if !ok {
			limit = defaultLimit
		}

		key := fmt.Sprintf("ip:%s:path:%s", c.ClientIP(), c.FullPath())

		allowed, err := r.limiter.Allow(c.Request.Context(), key, limit)
		if err != nil {
			r.logger.Error("ratelimit check failed", clog.Error(err))
			// 降级：限流器出错时放行
			c.Next()
			return
		}

		if !allowed {
			r.logger.Warn("rate limit exceeded (IP-based)",
				clog.String("client_ip", c.ClientIP()),
				clog.String("path", c.FullPath()),
			)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}

// UserBased 基于用户的限流中间件
// 必须在 Auth 中间件之后使用，从上下文获取身份进行限流
func (r *RateLimitConfig) UserBased(pathLimits map[string]ratelimit.Limit, defaultLimit ratelimit.Limit) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := GetIdentity(c)
		if !ok {
			r.logger.Warn("user-based ratelimit used without auth middleware",
				clog.String("path", c.FullPath()),
			)
			c.Next()
			return
		}

		limit, found := pathLimits[c.FullPath()]
		if !found {
			limit = defaultLimit
		}

		key := fmt.Sprintf("user:%d:path:%s", identity.ID, c.FullPath())

		allowed, err := r.limiter.Allow(c.Request.Context(), key, limit)
		if err != nil {
			r.logger.Error("ratelimit check failed", clog.Error(err))
			// 降级：限流器出错时放行
			c.Next()
			return
		}

		if !allowed {
			r.logger.Warn("rate limit exceeded (User-based)",
				clog.Int64("user_id", identity.ID),
				clog.String("path", c.FullPath()),
			)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}

// GlobalIP 全局 IP 限流中间件，所有请求共享一个限流池
func (r *RateLimitConfig) GlobalIP(limit ratelimit.Limit) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("global_ip:%s", c.ClientIP())

		allowed, err := r.limiter.Allow(c.Request.Context(), key, limit)
		if err != nil {
			r.logger.Error("global ratelimit check failed", clog.Error(err))
			c.Next()
			return
		}

		if !allowed {
			r.logger.Warn("global rate limit exceeded",
				clog.String("client_ip", c.ClientIP()),
			)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}

// PredefinedRateLimits 预定义的限流规则
var PredefinedRateLimits = struct {
	// 握手与查询接口（IP 级别限流）
	HandshakeIPLimits map[string]ratelimit.Limit
	// 用户查询接口（用户级别限流）
	QueryUserLimits map[string]ratelimit.Limit
	// 默认限流规则
	DefaultLimit ratelimit.Limit
}{
	HandshakeIPLimits: map[string]ratelimit.Limit{
		"/ws": {
			Rate:  5, // 握手：5 QPS（防连接风暴）
			Burst: 10,
		},
	},
	QueryUserLimits: map[string]ratelimit.Limit{
		"/api/users": {
			Rate:  20,
			Burst: 40,
		},
		"/api/users/online": {
			Rate:  50,
			Burst: 100,
		},
	},
	DefaultLimit: ratelimit.Limit{
		Rate:  100,
		Burst: 200,
	},
}
