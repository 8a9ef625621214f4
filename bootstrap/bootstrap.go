// Package bootstrap 提供数据库初始化能力：AutoMigrate 建表 + Seed 种子数据。
// 通过 `go run main.go -module init` 调用，幂等可重复执行。
package bootstrap

import (
	"context"
	"fmt"

	"github.com/ceyewan/genesis/clog"
	"github.com/ceyewan/genesis/config"
	"github.com/ceyewan/genesis/connector"
	"github.com/ceyewan/genesis/db"
	"github.com/wealthline/supportchat/internal/model"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Config 初始化所需的配置（复用 server.yaml）
type Config struct {
	Log      clog.Config                `mapstructure:"log"`
	Postgres connector.PostgreSQLConfig `mapstructure:"postgres"`
	Seed     SeedConfig                 `mapstructure:"seed"`
}

// SeedConfig 客服账号初始化配置
type SeedConfig struct {
	SupportEmail    string `mapstructure:"support_email"`
	SupportPassword string `mapstructure:"support_password"`
	SupportName     string `mapstructure:"support_name"`
}

// Run 执行数据库初始化：建表 + 种子数据
func Run() error {
	// 1. 加载配置（复用 server.yaml）
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. 初始化日志
	logger, _ := clog.New(&cfg.Log)

	logger.Info("starting database initialization...")

	// 3. 连接 PostgreSQL
	postgresConn, err := connector.NewPostgreSQL(&cfg.Postgres, connector.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("postgresql connector: %w", err)
	}
	defer postgresConn.Close()

	dbInstance, err := db.New(&db.Config{Driver: "postgresql"}, db.WithPostgreSQLConnector(postgresConn), db.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("db init: %w", err)
	}
	defer dbInstance.Close()

	ctx := context.Background()
	gormDB := dbInstance.DB(ctx)

	// 4. AutoMigrate 建表 + 索引
	logger.Info("running AutoMigrate...")
	if err := gormDB.AutoMigrate(model.AllModels()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	logger.Info("AutoMigrate completed")

	// 5. Seed 种子数据
	logger.Info("seeding initial data...")
	if err := seed(gormDB, &cfg.Seed, logger); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	logger.Info("seed completed")

	logger.Info("database initialization finished successfully")
	return nil
}

// seed 插入种子数据（幂等）
func seed(gormDB *gorm.DB, seedCfg *SeedConfig, logger clog.Logger) error {
	// 1. 创建客服账号
	if seedCfg.SupportEmail == "" || seedCfg.SupportPassword == "" {
		logger.Info("support seed skipped: missing email or password in config")
		return nil
	}
	name := seedCfg.SupportName
	if name == "" {
		name = "客服"
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(seedCfg.SupportPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash support password: %w", err)
	}

	support := &model.User{
		DisplayName:  name,
		Email:        seedCfg.SupportEmail,
		PasswordHash: string(hashedPassword),
	}
	result := gormDB.Where("email = ?", support.Email).FirstOrCreate(support)
	if result.Error != nil {
		return fmt.Errorf("seed support user: %w", result.Error)
	}
	logger.Info("support user ready",
		clog.String("email", support.Email),
		clog.Int64("user_id", support.ID))

	// 2. 为客服账号补一条离线的在线状态记录
	record := &model.PresenceRecord{
		UserID:   support.ID,
		IsOnline: false,
	}
	result = gormDB.Where("user_id = ?", record.UserID).FirstOrCreate(record)
	if result.Error != nil {
		return fmt.Errorf("seed support presence: %w", result.Error)
	}

	return nil
}

// loadConfig 加载配置（复用 server.yaml）
func loadConfig() (*Config, error) {
	loader, err := config.New(&config.Config{
		Name:      "server",
		FileType:  "yaml",
		Paths:     []string{"./configs"},
		EnvPrefix: "SUPPORTCHAT",
	})
	if err != nil {
		return nil, err
	}

	if err := loader.Load(context.Background()); err != nil {
		return nil, err
	}

	var cfg Config
	if err := loader.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
