// Package database 管理 PostgreSQL 连接池与 schema 迁移。
// 裸 SQL + pgxpool, 不引入 ORM; DB 整体可选, 连接串未配置时
// 服务在纯内存模式下运行。
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/WLONEGI/Sol-LeWitt-sub000/internal/config"
	apperrors "github.com/WLONEGI/Sol-LeWitt-sub000/pkg/errors"
	"github.com/WLONEGI/Sol-LeWitt-sub000/pkg/logger"
)

// NewPool 创建连接池并验证连通性。
// 建池与首次 ping 受 POSTGRES_POOL_TIMEOUT_SEC 约束, 避免启动挂死。
func NewPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if cfg.PostgresConnStr == "" {
		return nil, apperrors.New("Database.NewPool", "POSTGRES_CONNECTION_STRING is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnStr)
	if err != nil {
		return nil, apperrors.Wrap(err, "Database.NewPool", "parse connection string")
	}
	poolCfg.MinConns = int32(cfg.PostgresPoolMinSize)
	poolCfg.MaxConns = int32(cfg.PostgresPoolMaxSize)

	// 非 public schema 时每条新连接设置 search_path (Sanitize 防注入)
	if schema := cfg.PostgresSchema; schema != "" && schema != "public" {
		poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", pgx.Identifier{schema}.Sanitize()))
			return err
		}
	}

	connectCtx, cancel := context.WithTimeout(ctx,
		time.Duration(cfg.PostgresPoolTimeoutSec)*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, apperrors.Wrap(err, "Database.NewPool", "create pool")
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, apperrors.Wrap(err, "Database.NewPool", "ping")
	}

	logger.Info("postgres pool ready",
		logger.Int("min_conns", cfg.PostgresPoolMinSize),
		logger.Int("max_conns", cfg.PostgresPoolMaxSize),
		logger.String("schema", cfg.PostgresSchema))
	return pool, nil
}
