// cmd/migrate — 独立迁移执行器 (部署管线里先于服务跑)。
package main

import (
	"context"
	"os"

	"github.com/WLONEGI/Sol-LeWitt-sub000/internal/config"
	"github.com/WLONEGI/Sol-LeWitt-sub000/internal/database"
	"github.com/WLONEGI/Sol-LeWitt-sub000/pkg/logger"
)

func main() {
	ctx := context.Background()

	cfg := config.Load()
	logger.Init(cfg.LogLevel)

	pool, err := database.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("database init failed", logger.Any(logger.FieldError, err))
	}
	defer pool.Close()

	dir := "./migrations"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}
	if err := database.Migrate(ctx, pool, dir); err != nil {
		logger.Fatal("migration failed", logger.Any(logger.FieldError, err))
	}
	logger.Info("migrations up to date")
}
