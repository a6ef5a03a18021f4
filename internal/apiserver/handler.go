// handler.go — REST API handlers。
package apiserver

import (
	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/WLONEGI/Sol-LeWitt-sub000/internal/bus"
	"github.com/WLONEGI/Sol-LeWitt-sub000/internal/session"
	"github.com/WLONEGI/Sol-LeWitt-sub000/internal/store"
	"github.com/WLONEGI/Sol-LeWitt-sub000/internal/timeline"
	"github.com/WLONEGI/Sol-LeWitt-sub000/pkg/logger"
)

// registerRoutes 注册 API 路由。
func (s *Server) registerRoutes() {
	api := s.router.Group("/api")

	api.POST("/threads/:id/messages", s.upsertMessage)
	api.POST("/threads/:id/events", s.ingestEvent)
	api.POST("/threads/:id/turn/begin", s.beginTurn)
	api.POST("/threads/:id/turn/settle", s.settleTurn)

	api.GET("/threads/:id/timeline", s.getTimeline)
	api.GET("/threads/:id/plan", s.getPlan)
	api.GET("/threads/:id/outline", s.getOutline)
	api.GET("/threads/:id/deck", s.getDeck)
	api.GET("/threads/:id/events", s.listRawEvents)
	api.GET("/threads/:id/stats", s.getStats)

	api.POST("/threads/:id/snapshot", s.saveSnapshot)
	api.POST("/threads/:id/resume", s.resumeSnapshot)
	api.DELETE("/threads/:id", s.deleteThread)

	s.router.GET("/ws/threads/:id", s.handleWS)
	s.router.GET("/healthz", s.health)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (s *Server) health(c *gin.Context) {
	metricSessions.Set(float64(s.registry.Count()))
	success(c, gin.H{"status": "ok", "sessions": s.registry.Count()})
}

// ========================================
// 消息流
// ========================================

func (s *Server) upsertMessage(c *gin.Context) {
	var msg timeline.Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		badRequest(c, "invalid_request", err.Error())
		return
	}
	if msg.Role == "" {
		badRequest(c, "invalid_request", "role is required")
		return
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	sess := s.registry.GetOrCreate(c.Param("id"))
	sess.Engine().UpsertMessage(msg)

	if s.stores != nil {
		parts, err := json.Marshal(msg.Parts)
		if err != nil {
			parts = nil
		}
		if err := s.stores.Messages.Upsert(c.Request.Context(), &store.ThreadMessage{
			ThreadID:  c.Param("id"),
			MessageID: msg.ID,
			Role:      msg.Role,
			Parts:     parts,
			Content:   msg.Content,
		}); err != nil {
			serverError(c, err)
			return
		}
	}
	success(c, gin.H{"messageId": msg.ID})
}

func (s *Server) beginTurn(c *gin.Context) {
	s.registry.GetOrCreate(c.Param("id")).Engine().BeginTurn()
	success(c, nil)
}

func (s *Server) settleTurn(c *gin.Context) {
	s.registry.GetOrCreate(c.Param("id")).Engine().SettleTurn()
	success(c, nil)
}

// ========================================
// 旁路事件
// ========================================

func (s *Server) ingestEvent(c *gin.Context) {
	var req struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", err.Error())
		return
	}
	if req.Type == "" {
		badRequest(c, "invalid_request", "type is required")
		return
	}
	s.registry.GetOrCreate(c.Param("id")).Offer(req.Type, req.Data)
	metricEventsIngested.WithLabelValues(timeline.NormalizeEventType(req.Type)).Inc()
	accepted(c, nil)
}

func (s *Server) listRawEvents(c *gin.Context) {
	sess, ok := s.sessionFor(c)
	if !ok {
		return
	}
	success(c, sess.Engine().RawEvents())
}

// ========================================
// 时间线与投影
// ========================================

// sessionFor 读路径共用: 取会话并冲刷合并窗口, 保证读到已提交事件。
func (s *Server) sessionFor(c *gin.Context) (*session.Session, bool) {
	sess, ok := s.registry.Get(c.Param("id"))
	if !ok {
		notFound(c, "thread has no live session")
		return nil, false
	}
	sess.Flush()
	return sess, true
}

func (s *Server) getTimeline(c *gin.Context) {
	sess, ok := s.sessionFor(c)
	if !ok {
		return
	}
	metricTimelineBuilds.Inc()
	success(c, sess.Engine().Timeline())
}

func (s *Server) getPlan(c *gin.Context) {
	sess, ok := s.sessionFor(c)
	if !ok {
		return
	}
	success(c, sess.Engine().LatestPlan())
}

func (s *Server) getOutline(c *gin.Context) {
	sess, ok := s.sessionFor(c)
	if !ok {
		return
	}
	success(c, sess.Engine().LatestOutline())
}

func (s *Server) getDeck(c *gin.Context) {
	sess, ok := s.sessionFor(c)
	if !ok {
		return
	}
	success(c, sess.Engine().LatestDeck())
}

func (s *Server) getStats(c *gin.Context) {
	sess, ok := s.sessionFor(c)
	if !ok {
		return
	}
	success(c, sess.Engine().EngineStats())
}

// ========================================
// 快照
// ========================================

func (s *Server) saveSnapshot(c *gin.Context) {
	sess, ok := s.sessionFor(c)
	if !ok {
		return
	}
	snap := sess.Engine().Snapshot()
	if s.stores == nil {
		// 无 DB 模式: 快照直接返回给调用方自行保管
		success(c, snap)
		return
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		serverError(c, err)
		return
	}
	threadID := c.Param("id")
	if err := s.stores.Snapshots.Save(c.Request.Context(), threadID, raw); err != nil {
		serverError(c, err)
		return
	}
	if _, err := s.stores.Snapshots.Prune(c.Request.Context(), threadID, 5); err != nil {
		logger.Warn("snapshot prune failed",
			logger.String(logger.FieldThreadID, threadID),
			logger.Any(logger.FieldError, err))
	}
	metricSnapshotsSaved.Inc()
	s.bus.Publish(bus.Message{
		Topic:    bus.ThreadTopic(threadID, "session"),
		ThreadID: threadID,
		Type:     bus.MsgSnapshotSaved,
	})
	success(c, gin.H{"messages": len(snap.Messages), "events": len(snap.UIEvents)})
}

func (s *Server) resumeSnapshot(c *gin.Context) {
	threadID := c.Param("id")
	var req struct {
		Snapshot *timeline.Snapshot `json:"snapshot"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid_request", err.Error())
			return
		}
	}

	snap := req.Snapshot
	if snap == nil {
		if s.stores == nil {
			badRequest(c, "invalid_request", "snapshot body required without a database")
			return
		}
		rec, err := s.stores.Snapshots.Latest(c.Request.Context(), threadID)
		if err != nil {
			serverError(c, err)
			return
		}
		if rec == nil {
			// 线程从未存过快照: 退化为从持久层逐行重放
			s.resumeFromStore(c, threadID)
			return
		}
		snap = &timeline.Snapshot{}
		if err := json.Unmarshal(rec.Snapshot, snap); err != nil {
			serverError(c, err)
			return
		}
	}

	sess := s.registry.GetOrCreate(threadID)
	sess.Engine().HydrateSnapshot(*snap)
	metricSnapshotsRestored.Inc()
	success(c, sess.Engine().EngineStats())
}

// resumeFromStore 无快照时的恢复兜底: 把落盘的消息与盖戳事件按写入顺序
// 组装成快照重放。事件保留原始 seq/msg_count_at_emit, 时间线与宕机前一致。
func (s *Server) resumeFromStore(c *gin.Context, threadID string) {
	ctx := c.Request.Context()
	msgs, err := s.stores.Messages.ListByThread(ctx, threadID)
	if err != nil {
		serverError(c, err)
		return
	}
	evs, err := s.stores.Events.ListByThread(ctx, threadID, 0)
	if err != nil {
		serverError(c, err)
		return
	}
	if len(msgs) == 0 && len(evs) == 0 {
		notFound(c, "nothing persisted for thread")
		return
	}

	var snap timeline.Snapshot
	for _, m := range msgs {
		var parts []timeline.Part
		if len(m.Parts) > 0 {
			if err := json.Unmarshal(m.Parts, &parts); err != nil {
				parts = nil
			}
		}
		snap.Messages = append(snap.Messages, timeline.Message{
			ID:      m.MessageID,
			Role:    m.Role,
			Parts:   parts,
			Content: m.Content,
		})
	}
	for _, ev := range evs {
		var data map[string]any
		if len(ev.Payload) > 0 {
			if err := json.Unmarshal(ev.Payload, &data); err != nil {
				data = nil
			}
		}
		snap.UIEvents = append(snap.UIEvents, timeline.StructuredEvent{
			Type:           ev.EventType,
			Data:           data,
			Seq:            uint64(ev.Seq),
			MsgCountAtEmit: ev.MsgCountAtEmit,
		})
	}

	sess := s.registry.GetOrCreate(threadID)
	sess.Engine().HydrateSnapshot(snap)
	metricSnapshotsRestored.Inc()
	logger.Info("thread resumed from persisted rows",
		logger.String(logger.FieldThreadID, threadID),
		logger.Int(logger.FieldMsgCount, len(msgs)),
		logger.Int(logger.FieldCount, len(evs)))
	success(c, sess.Engine().EngineStats())
}

func (s *Server) deleteThread(c *gin.Context) {
	threadID := c.Param("id")
	s.registry.Remove(threadID)
	if s.stores != nil && c.Query("purge") == "true" {
		ctx := c.Request.Context()
		if err := s.stores.Messages.DeleteByThread(ctx, threadID); err != nil {
			serverError(c, err)
			return
		}
		if err := s.stores.Events.DeleteByThread(ctx, threadID); err != nil {
			serverError(c, err)
			return
		}
		if err := s.stores.Snapshots.DeleteByThread(ctx, threadID); err != nil {
			serverError(c, err)
			return
		}
	}
	success(c, nil)
}
