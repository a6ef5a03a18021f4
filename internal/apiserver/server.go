// Package apiserver 提供时间线服务的对外接口:
//
//	REST (gin)     — 消息流写入 / 时间线与投影读取 / 快照保存与恢复
//	WebSocket      — 旁路事件流式接入 + timeline.update 推送
//	/metrics       — Prometheus 指标
//
// 引擎本身不做持久化; 本层在事件盖戳后写 ui_events, 消息写
// thread_messages, 快照写 thread_snapshots。
package apiserver

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/WLONEGI/Sol-LeWitt-sub000/internal/bus"
	"github.com/WLONEGI/Sol-LeWitt-sub000/internal/config"
	"github.com/WLONEGI/Sol-LeWitt-sub000/internal/session"
	"github.com/WLONEGI/Sol-LeWitt-sub000/internal/store"
	"github.com/WLONEGI/Sol-LeWitt-sub000/internal/timeline"
	pkgerr "github.com/WLONEGI/Sol-LeWitt-sub000/pkg/errors"
	"github.com/WLONEGI/Sol-LeWitt-sub000/pkg/logger"
	"github.com/WLONEGI/Sol-LeWitt-sub000/pkg/util"
)

// Stores 聚合持久层依赖; DB 未配置时整体为 nil, 服务退化为纯内存。
type Stores struct {
	Messages  *store.ThreadMessageStore
	Events    *store.UIEventStore
	Snapshots *store.ThreadSnapshotStore
}

// NewStores 从连接池构建全部 store。
func NewStores(pool *pgxpool.Pool) *Stores {
	return &Stores{
		Messages:  store.NewThreadMessageStore(pool),
		Events:    store.NewUIEventStore(pool),
		Snapshots: store.NewThreadSnapshotStore(pool),
	}
}

// Server HTTP/WS 服务。
type Server struct {
	router   *gin.Engine
	cfg      *config.Config
	registry *session.Registry
	bus      *bus.MessageBus
	stores   *Stores
	upgrader websocket.Upgrader
}

// New 创建服务。stores 可为 nil (无 DB 模式)。
func New(cfg *config.Config, registry *session.Registry, b *bus.MessageBus, stores *Stores) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	s := &Server{
		router:   r,
		cfg:      cfg,
		registry: registry,
		bus:      b,
		stores:   stores,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	if stores != nil {
		registry.SetEventSink(s.persistEvents)
	}
	s.registerRoutes()
	return s
}

// Engine 返回 gin 引擎 (测试用)。
func (s *Server) Engine() *gin.Engine { return s.router }

// persistEvents 盖戳事件落盘 (flush 同步回调, 写库丢到后台防止拖慢合并)。
func (s *Server) persistEvents(threadID string, events []timeline.StructuredEvent) {
	evs := make([]store.UIEvent, 0, len(events))
	for _, ev := range events {
		payload, err := json.Marshal(ev.Data)
		if err != nil {
			payload = nil
		}
		evs = append(evs, store.UIEvent{
			ThreadID:       threadID,
			EventType:      ev.Type,
			Payload:        payload,
			Seq:            int64(ev.Seq),
			MsgCountAtEmit: ev.MsgCountAtEmit,
		})
	}
	util.SafeGo(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for i := range evs {
			if err := s.stores.Events.Insert(ctx, &evs[i]); err != nil {
				logger.Warn("persist event failed",
					logger.String(logger.FieldThreadID, threadID),
					logger.Any(logger.FieldError, err))
				return
			}
		}
	})
}

// Run 启动 HTTP 服务, ctx 取消时优雅关闭。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 优雅关闭: 给活跃连接 5 秒完成处理
	util.SafeGo(func() {
		<-ctx.Done()
		logger.Info("apiserver: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("apiserver: shutdown error", logger.Any(logger.FieldError, err))
		}
	})

	logger.Info("apiserver: listening", logger.String(logger.FieldAddr, s.cfg.ListenAddr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return pkgerr.Wrap(err, "Server.Run", "listen")
	}
	return nil
}

// requestLogger 请求日志中间件 (慢请求与错误才记, 避免刷屏)。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		if c.Writer.Status() >= http.StatusBadRequest || latency > time.Second {
			logger.Warn("http request",
				logger.String(logger.FieldMethod, c.Request.Method),
				logger.String(logger.FieldPath, c.Request.URL.Path),
				logger.Int("status", c.Writer.Status()),
				logger.Int64(logger.FieldLatencyMS, latency.Milliseconds()))
		}
	}
}
