// cmd/server — 时间线重建服务主入口。
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/WLONEGI/Sol-LeWitt-sub000/internal/apiserver"
	"github.com/WLONEGI/Sol-LeWitt-sub000/internal/bus"
	"github.com/WLONEGI/Sol-LeWitt-sub000/internal/config"
	"github.com/WLONEGI/Sol-LeWitt-sub000/internal/database"
	"github.com/WLONEGI/Sol-LeWitt-sub000/internal/session"
	"github.com/WLONEGI/Sol-LeWitt-sub000/pkg/logger"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.Load()
	logger.Init(cfg.LogLevel)
	if cfg.LogDir != "" {
		if err := logger.InitWithFile(cfg.LogDir); err != nil {
			logger.Warn("file logging unavailable", logger.Any(logger.FieldError, err))
		}
		defer logger.ShutdownFileHandler()
	}

	// DB 可选: 未配置连接串时纯内存运行 (无快照持久化)
	var stores *apiserver.Stores
	if cfg.PostgresConnStr != "" {
		pool, err := database.NewPool(ctx, cfg)
		if err != nil {
			logger.Fatal("database init failed", logger.Any(logger.FieldError, err))
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool, "./migrations"); err != nil {
			logger.Fatal("migration failed", logger.Any(logger.FieldError, err))
		}
		stores = apiserver.NewStores(pool)
	} else {
		logger.Warn("POSTGRES_CONNECTION_STRING not set, running in-memory only")
	}

	b := bus.NewMessageBus()
	registry := session.NewRegistry(session.Options{
		MsgCountUnit:  cfg.MsgCountUnit,
		FollowupLimit: cfg.FollowupLimit,
		MaxEvents:     cfg.MaxEvents,
		Coalesce:      time.Duration(cfg.CoalesceMS) * time.Millisecond,
	}, b)
	registry.StartSweeper(ctx,
		time.Minute,
		time.Duration(cfg.SessionIdleMin)*time.Minute)

	srv := apiserver.New(cfg, registry, b, stores)
	if err := srv.Run(ctx); err != nil {
		logger.Fatal("server failed", logger.Any(logger.FieldError, err))
	}
	logger.Info("shutting down")
}
