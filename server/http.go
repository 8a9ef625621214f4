package server

import (
	"context"
	"net/http"

	"github.com/ceyewan/genesis/clog"
	"github.com/gin-gonic/gin"
	"github.com/wealthline/supportchat/pkg/health"
	"github.com/wealthline/supportchat/server/api"
	"github.com/wealthline/supportchat/server/config"
)

// HTTPServer HTTP 服务包装器
type HTTPServer struct {
	config      *config.Config
	logger      clog.Logger
	handler     *api.HTTPHandler
	wsHandler   *api.WebSocket
	middlewares *Middlewares
	healthProbe *health.Probe
	server      *http.Server
}

// NewHTTPServer 创建 HTTP 服务
func NewHTTPServer(
	cfg *config.Config,
	logger clog.Logger,
	h *api.HTTPHandler,
	ws *api.WebSocket,
	m *Middlewares,
	probe *health.Probe,
) *HTTPServer {
	return &HTTPServer{
		config:      cfg,
		logger:      logger,
		handler:     h,
		wsHandler:   ws,
		middlewares: m,
		healthProbe: probe,
	}
}

// Start 启动 HTTP 服务
func (s *HTTPServer) Start() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// 注册 API 路由（中间件挂在路由组上）
	s.handler.RegisterRoutes(router, s.wsHandler, s.middlewares.RouteOptions()...)

	// 健康检查
	router.GET("/health", gin.WrapF(s.healthProbe.LivenessHandler()))
	router.GET("/ready", gin.WrapF(s.healthProbe.ReadinessHandler()))

	s.server = &http.Server{
		Addr:    s.config.GetHTTPAddr(),
		Handler: router,
	}

	s.logger.Info("http server started", clog.String("addr", s.config.GetHTTPAddr()))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop 停止 HTTP 服务
func (s *HTTPServer) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
