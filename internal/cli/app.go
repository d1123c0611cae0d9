package cli

import (
	"fmt"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"koerner360/backend/config"
	"koerner360/backend/internal/clock"
	"koerner360/backend/internal/mail"
	"koerner360/backend/internal/repository"
	"koerner360/backend/internal/service"
	"koerner360/backend/pkg/database"
	applogger "koerner360/backend/pkg/logger"
	"koerner360/backend/pkg/redis"
)

// App 命令执行所需的依赖
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	DB      *gorm.DB
	Service *service.Service

	closers []func()
}

// Close 释放数据库与 Redis 连接
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Opener 按配置文件路径组装 App
type Opener func(configPath string) (*App, error)

// Open 与 cmd/server 相同的装配顺序，不启动调度器与 HTTP
func Open(configPath string) (*App, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}

	logger, err := applogger.NewLogger(&cfg.Log, "koerctl")
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	app := &App{Config: cfg, Logger: logger}
	app.closers = append(app.closers, func() { _ = logger.Sync() })

	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}
	app.DB = db
	app.closers = append(app.closers, func() {
		if sqlDB, _ := db.DB(); sqlDB != nil {
			sqlDB.Close()
		}
	})

	var locker service.Locker
	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(&cfg.Redis, logger)
		if err != nil {
			logger.Warn("Redis 连接失败，按单实例执行", zap.Error(err))
		} else {
			locker = rdb
			app.closers = append(app.closers, func() { rdb.Close() })
		}
	}

	mailer, err := mail.New(&cfg.Mail, logger.Named("mail"))
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("初始化邮件通道失败: %w", err)
	}

	svc, err := service.NewService(cfg, repository.NewRepository(db), mailer, locker, clock.System{}, logger)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("初始化业务服务失败: %w", err)
	}
	app.Service = svc
	return app, nil
}
