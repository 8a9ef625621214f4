package server

import (
	"context"
	"fmt"
	"time"

	"github.com/ceyewan/genesis/clog"
	"github.com/ceyewan/genesis/connector"
	"github.com/ceyewan/genesis/db"
	"github.com/ceyewan/genesis/idgen"
	"github.com/ceyewan/genesis/ratelimit"
	"github.com/wealthline/supportchat/internal/repo"
	"github.com/wealthline/supportchat/internal/token"
	"github.com/wealthline/supportchat/pkg/health"
	"github.com/wealthline/supportchat/server/api"
	"github.com/wealthline/supportchat/server/config"
	"github.com/wealthline/supportchat/server/connection"
	"github.com/wealthline/supportchat/server/service"
)

// Server 客服消息服务生命周期管理器
type Server struct {
	config *config.Config
	logger clog.Logger

	// 服务实例
	httpServer  *HTTPServer
	healthProbe *health.Probe

	// 核心资源
	resources *resources
	ctx       context.Context
	cancel    context.CancelFunc
}

// resources 内部资源聚合，方便统一管理
type resources struct {
	pgConn   connector.PostgreSQLConnector
	database db.DB

	users         repo.UserRepo
	conversations repo.ConversationRepo
	presence      repo.PresenceRepo

	connMgr     *connection.Manager
	presenceSvc *service.PresenceService
}

// New 创建 Server 实例
func New() (*Server, error) {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	// 创建上下文
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}
	// 初始化各个组件
	if err := s.initComponents(); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

// initComponents 初始化所有组件
func (s *Server) initComponents() error {
	// 1. 初始化 Logger
	logger, err := clog.New(&s.config.Log, clog.WithNamespace(s.config.GetServiceName()))
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	s.logger = logger

	// 2. 初始化核心资源 (PostgreSQL、仓储层)
	res, err := s.initBaseResources()
	if err != nil {
		return err
	}
	s.resources = res

	// 3. 认证网关
	tokenMgr, err := token.NewManager(s.config.Auth.Secret, s.config.Auth.GetIssuer(), s.config.Auth.GetTokenTTL())
	if err != nil {
		return fmt.Errorf("token manager init: %w", err)
	}
	gate, err := service.NewGate(
		res.users,
		tokenMgr,
		s.config.Auth.GetSupportEmail(),
		s.config.Auth.SupportEmailPattern,
		s.logger,
	)
	if err != nil {
		return fmt.Errorf("auth gate init: %w", err)
	}

	// 4. 连接管理器与在线状态服务
	// 在线广播依赖连接管理器推送，所以回调在两者都就绪后再挂上
	connMgr := connection.NewManager(s.logger, nil)
	presenceSvc := service.NewPresenceService(
		res.presence,
		res.users,
		connMgr,
		connMgr,
		gate.RoleFor,
		s.logger,
	)
	presenceCb := connection.NewPresenceCallback(presenceSvc, s.logger)
	connMgr.SetCallbacks(presenceCb.OnUserOnline, presenceCb.OnUserOffline)
	res.connMgr = connMgr
	res.presenceSvc = presenceSvc

	// 5. 消息路由服务
	chatSvc := service.NewChatService(res.conversations, connMgr, connMgr, s.logger)

	// 6. 创建 ID 生成器（连接句柄、trace_id）
	idGen, err := idgen.NewGenerator(&idgen.GeneratorConfig{WorkerID: s.config.GetWorkerID()})
	if err != nil {
		return fmt.Errorf("create id generator: %w", err)
	}

	// 7. 初始化服务接口
	s.healthProbe = health.NewProbe()
	s.initServers(gate, chatSvc, idGen)

	return nil
}

// initBaseResources 初始化外部连接与仓储层
func (s *Server) initBaseResources() (*resources, error) {
	// PostgreSQL
	pgConn, err := connector.NewPostgreSQL(&s.config.Postgres, connector.WithLogger(s.logger))
	if err != nil {
		return nil, fmt.Errorf("postgresql init: %w", err)
	}
	if err := pgConn.Connect(s.ctx); err != nil {
		return nil, fmt.Errorf("postgresql connect: %w", err)
	}

	// DB 组件
	database, err := db.New(&db.Config{
		Driver:         "postgresql",
		EnableSharding: false,
	}, db.WithPostgreSQLConnector(pgConn), db.WithLogger(s.logger))
	if err != nil {
		pgConn.Close()
		return nil, fmt.Errorf("db init: %w", err)
	}

	// 仓储层
	users, err := repo.NewUserRepo(database, repo.WithUserRepoLogger(s.logger))
	if err != nil {
		pgConn.Close()
		return nil, fmt.Errorf("user repo init: %w", err)
	}
	conversations, err := repo.NewConversationRepo(database, repo.WithConversationRepoLogger(s.logger))
	if err != nil {
		pgConn.Close()
		return nil, fmt.Errorf("conversation repo init: %w", err)
	}
	presence, err := repo.NewPresenceRepo(database, repo.WithPresenceRepoLogger(s.logger))
	if err != nil {
		pgConn.Close()
		return nil, fmt.Errorf("presence repo init: %w", err)
	}

	return &resources{
		pgConn:        pgConn,
		database:      database,
		users:         users,
		conversations: conversations,
		presence:      presence,
	}, nil
}

// initServers 初始化 HTTP 服务
func (s *Server) initServers(gate *service.Gate, chatSvc *service.ChatService, idGen idgen.Generator) {
	// WebSocket Handler
	wsHandler := api.NewWebSocket(
		gate,
		chatSvc,
		s.resources.connMgr,
		s.logger,
		&api.WSConfig{
			ReadBufferSize:  s.config.WSConfig.ReadBufferSize,
			WriteBufferSize: s.config.WSConfig.WriteBufferSize,
			MaxMessageSize:  s.config.WSConfig.MaxMessageSize,
			PingInterval:    s.config.WSConfig.PingInterval,
			PongTimeout:     s.config.WSConfig.PongTimeout,
		},
		idGen,
	)

	// HTTP Handler & Middlewares
	limiter, _ := ratelimit.New(&ratelimit.Config{
		Driver: ratelimit.DriverStandalone,
	}, ratelimit.WithLogger(s.logger))
	middlewares := NewMiddlewares(s.logger, limiter, idGen)
	apiHandler := api.NewHTTPHandler(s.resources.presenceSvc, gate, s.logger)

	s.httpServer = NewHTTPServer(s.config, s.logger, apiHandler, wsHandler, middlewares, s.healthProbe)
}

// Run 启动服务
func (s *Server) Run() error {
	s.logger.Info("starting server...")
	s.healthProbe.SetReady(false)
	s.healthProbe.SetShutdown(false)

	// 清掉上次进程残留的在线标记，重启后以注册表为准
	if err := s.resources.presence.MarkAllOffline(s.ctx); err != nil {
		s.logger.Error("failed to reset presence records", clog.Error(err))
	}

	go s.httpServer.Start()

	s.healthProbe.SetReady(true)
	s.logger.Info("server started", clog.String("addr", s.config.GetHTTPAddr()))
	return nil
}

// Close 优雅关闭资源
func (s *Server) Close() error {
	if s.logger != nil {
		s.logger.Info("shutting down server...")
	}
	if s.healthProbe != nil {
		s.healthProbe.SetReady(false)
		s.healthProbe.SetShutdown(true)
	}
	s.cancel()

	// 1. 停止 HTTP 服务，不再接受新握手
	httpShutdownCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if s.httpServer != nil {
		s.httpServer.Stop(httpShutdownCtx)
	}

	// 2. 释放核心资源（带超时控制）
	if s.resources != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		done := make(chan struct{})
		go func() {
			if s.resources.connMgr != nil {
				s.resources.connMgr.Close()
			}
			if s.resources.presence != nil {
				// 所有连接都关了，在线记录同步清零
				if err := s.resources.presence.MarkAllOffline(context.Background()); err != nil && s.logger != nil {
					s.logger.Error("failed to reset presence records on shutdown", clog.Error(err))
				}
			}
			if s.resources.database != nil {
				s.resources.database.Close()
			}
			if s.resources.pgConn != nil {
				s.resources.pgConn.Close()
			}
			close(done)
		}()

		select {
		case <-done:
			// 正常关闭完成
		case <-shutdownCtx.Done():
			// 超时，记录警告但继续
			if s.logger != nil {
				s.logger.Warn("resource shutdown timed out after 10s, some connections may not be closed cleanly")
			}
		}
	}

	return nil
}
