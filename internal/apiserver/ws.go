// ws.go — WebSocket 接入: 客户端推旁路事件 / 消息流操作,
// 服务端回推 thread.{id} 总线通知 (timeline.update / session.* / snapshot.saved)。
package apiserver

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/WLONEGI/Sol-LeWitt-sub000/internal/bus"
	"github.com/WLONEGI/Sol-LeWitt-sub000/internal/timeline"
	"github.com/WLONEGI/Sol-LeWitt-sub000/pkg/logger"
	"github.com/WLONEGI/Sol-LeWitt-sub000/pkg/util"
)

// wsInbound 客户端入站帧。
type wsInbound struct {
	// Op 操作: "event" (缺省) / "message" / "turn.begin" / "turn.settle"
	Op      string            `json:"op,omitempty"`
	Type    string            `json:"type,omitempty"`
	Data    map[string]any    `json:"data,omitempty"`
	Message *timeline.Message `json:"message,omitempty"`
}

func (s *Server) handleWS(c *gin.Context) {
	threadID := c.Param("id")
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("ws upgrade failed",
			logger.String(logger.FieldThreadID, threadID),
			logger.Any(logger.FieldError, err))
		return
	}
	metricWSConnections.Inc()
	defer metricWSConnections.Dec()
	defer conn.Close()

	conn.SetReadLimit(int64(s.cfg.WSReadLimit))
	sess := s.registry.GetOrCreate(threadID)

	// 出站: 订阅线程总线, 通知与心跳单 goroutine 串行写
	subID := "ws-" + uuid.NewString()
	sub := s.bus.Subscribe(subID, bus.TopicThreadPrefix+threadID)
	defer s.bus.Unsubscribe(subID)

	done := make(chan struct{})
	defer close(done)
	util.SafeGo(func() {
		ping := time.NewTicker(time.Duration(s.cfg.WSPingSec) * time.Second)
		defer ping.Stop()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-sub.Ch:
				if !ok {
					return
				}
				if err := conn.WriteJSON(msg); err != nil {
					return
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil,
					time.Now().Add(5*time.Second)); err != nil {
					return
				}
			}
		}
	})

	logger.Info("ws connected",
		logger.String(logger.FieldThreadID, threadID),
		logger.String(logger.FieldRemote, conn.RemoteAddr().String()))

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			logger.Debug("ws closed",
				logger.String(logger.FieldThreadID, threadID),
				logger.Any(logger.FieldError, err))
			return
		}
		var in wsInbound
		if err := json.Unmarshal(raw, &in); err != nil {
			logger.Warn("ws bad frame",
				logger.String(logger.FieldThreadID, threadID),
				logger.Int(logger.FieldDataLen, len(raw)),
				logger.String("preview", util.CompactOneLine(string(raw), 120)))
			continue
		}
		switch in.Op {
		case "", "event":
			if in.Type == "" {
				continue
			}
			sess.Offer(in.Type, in.Data)
			metricEventsIngested.WithLabelValues(timeline.NormalizeEventType(in.Type)).Inc()
		case "message":
			if in.Message == nil {
				continue
			}
			if in.Message.ID == "" {
				in.Message.ID = uuid.NewString()
			}
			sess.Engine().UpsertMessage(*in.Message)
		case "turn.begin":
			sess.Engine().BeginTurn()
		case "turn.settle":
			sess.Engine().SettleTurn()
		}
	}
}
