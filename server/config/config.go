package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ceyewan/genesis/clog"
	"github.com/ceyewan/genesis/config"
	"github.com/ceyewan/genesis/connector"
)

// Config 服务配置
type Config struct {
	// 服务基础配置
	Service struct {
		Name     string `mapstructure:"name"`      // 服务名称
		Host     string `mapstructure:"host"`      // 服务主机名（环境变量 HOSTNAME）
		HTTPPort int    `mapstructure:"http_port"` // HTTP 服务端口
	} `mapstructure:"service"`

	// 基础组件配置
	Log      clog.Config                `mapstructure:"log"`      // 日志配置
	Postgres connector.PostgreSQLConfig `mapstructure:"postgres"` // PostgreSQL 配置

	// 认证配置
	Auth AuthConfig `mapstructure:"auth"`

	// WebSocket 配置
	WSConfig WSConfig `mapstructure:"ws_config"`

	// WorkerID 配置（单实例部署，直接静态分配）
	WorkerID int64 `mapstructure:"worker_id"`
}

// AuthConfig 认证相关配置
type AuthConfig struct {
	Secret              string        `mapstructure:"secret"`                // JWT 签名密钥
	Issuer              string        `mapstructure:"issuer"`                // JWT 签发方
	TokenTTL            time.Duration `mapstructure:"token_ttl"`             // Token 有效期
	SupportEmail        string        `mapstructure:"support_email"`         // 客服账号邮箱（精确匹配）
	SupportEmailPattern string        `mapstructure:"support_email_pattern"` // 客服邮箱正则（可选）
}

// GetIssuer 获取签发方，默认 "supportchat"
func (c *AuthConfig) GetIssuer() string {
	if c.Issuer != "" {
		return c.Issuer
	}
	return "supportchat"
}

// GetTokenTTL 获取 Token 有效期，默认 24 小时
func (c *AuthConfig) GetTokenTTL() time.Duration {
	if c.TokenTTL > 0 {
		return c.TokenTTL
	}
	return 24 * time.Hour
}

// GetSupportEmail 获取客服邮箱，默认 "support@wealthline.com"
func (c *AuthConfig) GetSupportEmail() string {
	if c.SupportEmail != "" {
		return c.SupportEmail
	}
	return "support@wealthline.com"
}

// WSConfig WebSocket 相关配置
type WSConfig struct {
	ReadBufferSize  int   `mapstructure:"read_buffer_size"`  // 读缓冲区大小
	WriteBufferSize int   `mapstructure:"write_buffer_size"` // 写缓冲区大小
	MaxMessageSize  int64 `mapstructure:"max_message_size"`  // 最大消息大小（KB）
	PingInterval    int   `mapstructure:"ping_interval"`     // 心跳间隔（秒）
	PongTimeout     int   `mapstructure:"pong_timeout"`      // 心跳超时（秒）
}

// GetHost 获取服务主机名，优先使用配置，其次环境变量 HOSTNAME，最后 "localhost"
func (c *Config) GetHost() string {
	if c.Service.Host != "" {
		return c.Service.Host
	}
	if host := os.Getenv("HOSTNAME"); host != "" {
		return host
	}
	return "localhost"
}

// GetServiceName 获取服务名称，默认 "supportchat-server"
func (c *Config) GetServiceName() string {
	if c.Service.Name != "" {
		return c.Service.Name
	}
	return "supportchat-server"
}

// GetHTTPPort 获取 HTTP 端口
func (c *Config) GetHTTPPort() int {
	if c.Service.HTTPPort > 0 && c.Service.HTTPPort < 65536 {
		return c.Service.HTTPPort
	}
	return 8080
}

// GetHTTPAddr 获取 HTTP 绑定地址
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.GetHTTPPort())
}

// GetWorkerID 获取 worker ID，默认 1
func (c *Config) GetWorkerID() int64 {
	if c.WorkerID > 0 {
		return c.WorkerID
	}
	return 1
}

// Load 创建并加载服务配置（无参数）
// 配置加载顺序：环境变量 > .env > server.{env}.yaml > server.yaml
func Load() (*Config, error) {
	loader, err := config.New(&config.Config{
		Name:      "server",
		FileType:  "yaml",
		Paths:     []string{"./configs"},
		EnvPrefix: "SUPPORTCHAT",
	})
	if err != nil {
		return nil, err
	}

	// 必须先 Load 才能读取配置
	ctx := context.Background()
	if err := loader.Load(ctx); err != nil {
		return nil, err
	}

	var cfg Config
	if err := loader.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// 在 debug 模式下，打印最终生效的配置
	if os.Getenv("DEBUG_CONFIG") == "true" || os.Getenv("SUPPORTCHAT_DEBUG_CONFIG") == "true" {
		dumpConfig(&cfg)
	}

	return &cfg, nil
}

// dumpConfig 以 JSON 格式打印配置（脱敏敏感字段）
func dumpConfig(cfg *Config) {
	// 创建配置副本用于脱敏
	sanitized := *cfg
	if sanitized.Postgres.Password != "" {
		sanitized.Postgres.Password = "***"
	}
	if sanitized.Auth.Secret != "" {
		sanitized.Auth.Secret = "***"
	}

	data, _ := json.MarshalIndent(sanitized, "", "  ")
	fmt.Fprintf(os.Stderr, "\n=== Server Configuration ===\n%s\n=== End of Configuration ===\n\n", data)
}
