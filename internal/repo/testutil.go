package repo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ceyewan/genesis/clog"
	"github.com/ceyewan/genesis/connector"
	"github.com/ceyewan/genesis/db"
	"github.com/joho/godotenv"
	"github.com/wealthline/supportchat/internal/model"
)

var (
	globalDB      db.DB
	globalDBOnce  sync.Once
	globalLogger  clog.Logger
	globalLogOnce sync.Once

	globalPostgresConn connector.PostgreSQLConnector
	globalDBInitErr    error

	envLoadedOnce sync.Once
)

// loadTestEnv 加载测试环境变量（项目根目录的 .env，存在才加载）
func loadTestEnv() {
	envLoadedOnce.Do(func() {
		envFile := filepath.Join("..", "..", ".env")
		if _, err := os.Stat(envFile); err == nil {
			_ = godotenv.Load(envFile)
		}
	})
}

// getEnvOrDefault 获取环境变量，如果不存在则返回默认值
func getEnvOrDefault(key, defaultValue string) string {
	loadTestEnv()
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvIntOrDefault 获取环境变量并转换为 int，如果不存在或转换失败则返回默认值
func getEnvIntOrDefault(key string, defaultValue int) int {
	loadTestEnv()
	if value := os.Getenv(key); value != "" {
		var intValue int
		if _, err := fmt.Sscanf(value, "%d", &intValue); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getTestLogger(t *testing.T) clog.Logger {
	globalLogOnce.Do(func() {
		globalLogger = clog.Discard()
	})

	if globalLogger == nil {
		t.Fatalf("测试日志初始化失败")
	}
	return globalLogger
}

func autoMigrateTables(ctx context.Context) error {
	if globalDB == nil {
		return fmt.Errorf("database not initialized")
	}

	gormDB := globalDB.DB(ctx)
	if err := gormDB.AutoMigrate(model.AllModels()...); err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}
	return nil
}

// setupTestDB 初始化全局测试数据库连接
// 数据库地址来自环境变量，连不上就跳过测试
func setupTestDB(t *testing.T) db.DB {
	globalDBOnce.Do(func() {
		logger := getTestLogger(t)

		postgresCfg := &connector.PostgreSQLConfig{
			Name:            "test-postgres",
			Host:            getEnvOrDefault("POSTGRES_HOST", "127.0.0.1"),
			Port:            getEnvIntOrDefault("POSTGRES_PORT", 5432),
			Username:        getEnvOrDefault("POSTGRES_USER", "supportchat"),
			Password:        getEnvOrDefault("POSTGRES_PASSWORD", "supportchat123"),
			Database:        getEnvOrDefault("POSTGRES_DATABASE", "supportchat_test"),
			SSLMode:         "disable",
			MaxIdleConns:    10,
			MaxOpenConns:    20,
			ConnMaxLifetime: time.Hour,
			ConnectTimeout:  5 * time.Second,
			Timezone:        "UTC",
		}

		var err error
		globalPostgresConn, err = connector.NewPostgreSQL(postgresCfg, connector.WithLogger(logger))
		if err != nil {
			globalDBInitErr = fmt.Errorf("创建 PostgreSQL 连接器失败: %w", err)
			return
		}

		if err := globalPostgresConn.Connect(context.Background()); err != nil {
			globalDBInitErr = fmt.Errorf("连接 PostgreSQL 失败: %w", err)
			return
		}

		globalDB, err = db.New(&db.Config{
			Driver:         "postgresql",
			EnableSharding: false,
		}, db.WithPostgreSQLConnector(globalPostgresConn), db.WithLogger(logger))
		if err != nil {
			globalDBInitErr = fmt.Errorf("创建 DB 组件失败: %w", err)
			return
		}

		if err := autoMigrateTables(context.Background()); err != nil {
			globalDBInitErr = fmt.Errorf("自动迁移表结构失败: %w", err)
			_ = globalDB.Close()
			globalDB = nil
			return
		}
	})

	if globalDBInitErr != nil {
		t.Skipf("跳过测试：%v", globalDBInitErr)
		return nil
	}
	if globalDB == nil {
		t.Skip("数据库连接不可用，跳过测试")
		return nil
	}
	return globalDB
}

// cleanupTestData 清理测试数据，为下一次测试做准备
func cleanupTestData(t *testing.T, database db.DB) {
	ctx := context.Background()
	gormDB := database.DB(ctx)

	tables := []string{
		"t_message",
		"t_conversation",
		"t_presence",
		"t_user",
	}

	for _, table := range tables {
		stmt := fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", table)
		if err := gormDB.Exec(stmt).Error; err != nil {
			if strings.Contains(err.Error(), "does not exist") {
				continue
			}
			t.Logf("警告：清理表 %s 失败: %v", table, err)
		}
	}
}

// setupTestContext 创建一个测试用的数据库上下文，返回 DB 实例和清理函数
func setupTestContext(t *testing.T) (db.DB, func()) {
	database := setupTestDB(t)
	cleanupTestData(t, database)
	cleanupFunc := func() {
		cleanupTestData(t, database)
	}
	return database, cleanupFunc
}

// TestMain 是包级别的测试入口，用于管理全局资源
func TestMain(m *testing.M) {
	code := m.Run()

	if globalDB != nil {
		_ = globalDB.Close()
		globalDB = nil
	}
	if globalPostgresConn != nil {
		_ = globalPostgresConn.Close()
		globalPostgresConn = nil
	}

	os.Exit(code)
}
