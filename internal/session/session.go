// Package session 管理会话线程的生命周期: 每个线程一个 Session,
// 内含独立的时间线引擎与合并调度器; Registry 负责按线程 id 索引与
// 空闲回收。引擎状态严格线程隔离, 不存在跨线程共享计数器。
package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/WLONEGI/Sol-LeWitt-sub000/internal/bus"
	"github.com/WLONEGI/Sol-LeWitt-sub000/internal/feed"
	"github.com/WLONEGI/Sol-LeWitt-sub000/internal/timeline"
	"github.com/WLONEGI/Sol-LeWitt-sub000/pkg/logger"
)

// Options 会话参数。
type Options struct {
	MsgCountUnit  int
	FollowupLimit int
	MaxEvents     int
	Coalesce      time.Duration
}

// inbound 待合并的旁路事件。
type inbound struct {
	Type string
	Data map[string]any
}

// updatePayload timeline.update 通知的载荷。
type updatePayload struct {
	Ingested int    `json:"ingested"`
	Events   int    `json:"events"`
	Evicted  uint64 `json:"evicted"`
	Seq      uint64 `json:"seq"`
}

// Session 单个会话线程。
// 旁路事件经 Offer 进入合并调度器, 每 tick 批量进引擎后发一次
// thread.{id}.timeline 通知; 消息流操作直达引擎, 不走合并。
type Session struct {
	ThreadID string

	engine    *timeline.Engine
	coalescer *feed.Coalescer[inbound]
	bus       *bus.MessageBus

	mu          sync.Mutex
	lastActive  time.Time
	lastEvicted uint64
	closed      bool
	sink        func(threadID string, events []timeline.StructuredEvent)
}

// New 创建会话。
func New(threadID string, opts Options, b *bus.MessageBus) *Session {
	s := &Session{
		ThreadID: threadID,
		engine: timeline.NewEngine(timeline.Options{
			MsgCountUnit:  opts.MsgCountUnit,
			FollowupLimit: opts.FollowupLimit,
			MaxEvents:     opts.MaxEvents,
		}),
		bus:        b,
		lastActive: time.Now(),
	}
	s.coalescer = feed.NewCoalescer(opts.Coalesce, s.flush)
	if b != nil {
		b.Publish(bus.Message{
			Topic:    bus.ThreadTopic(threadID, "session"),
			ThreadID: threadID,
			Type:     bus.MsgSessionOpened,
		})
	}
	return s
}

// Engine 底层时间线引擎 (消息流与快照操作直接在其上进行)。
func (s *Session) Engine() *timeline.Engine {
	s.Touch()
	return s.engine
}

// Offer 提交一个旁路事件, 进入合并窗口。
func (s *Session) Offer(typ string, data map[string]any) {
	s.Touch()
	s.coalescer.Offer(inbound{Type: typ, Data: data})
}

// Flush 立即冲刷合并窗口 (HTTP 同步读之前调用, 保证读到已提交事件)。
func (s *Session) Flush() {
	s.coalescer.Flush()
}

// SetEventSink 设置盖戳事件回调 (落盘用); 在 flush 内同 goroutine 调用。
func (s *Session) SetEventSink(fn func(threadID string, events []timeline.StructuredEvent)) {
	s.mu.Lock()
	s.sink = fn
	s.mu.Unlock()
}

func (s *Session) flush(batch []inbound) {
	stamped := make([]timeline.StructuredEvent, 0, len(batch))
	for _, in := range batch {
		stamped = append(stamped, s.engine.IngestEvent(in.Type, in.Data))
	}
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink != nil {
		sink(s.ThreadID, stamped)
	}
	st := s.engine.EngineStats()
	logger.Debug("event batch merged",
		logger.String(logger.FieldThreadID, s.ThreadID),
		logger.Int(logger.FieldCount, len(batch)),
		logger.Uint64(logger.FieldEvicted, st.Evicted))
	if s.bus == nil {
		return
	}
	payload, _ := json.Marshal(updatePayload{
		Ingested: len(batch),
		Events:   st.Events,
		Evicted:  st.Evicted,
		Seq:      st.Seq,
	})
	s.bus.Publish(bus.Message{
		Topic:    bus.ThreadTopic(s.ThreadID, "timeline"),
		ThreadID: s.ThreadID,
		Type:     bus.MsgTimelineUpdate,
		Payload:  payload,
	})
	for _, ev := range stamped {
		if timeline.ProjectionRelevant(ev.Type) {
			s.bus.Publish(bus.Message{
				Topic:    bus.ThreadTopic(s.ThreadID, "timeline"),
				ThreadID: s.ThreadID,
				Type:     bus.MsgProjectionUpdate,
			})
			break
		}
	}
	s.mu.Lock()
	evicted := st.Evicted > s.lastEvicted
	s.lastEvicted = st.Evicted
	s.mu.Unlock()
	if evicted {
		epayload, _ := json.Marshal(map[string]uint64{"evicted": st.Evicted})
		s.bus.Publish(bus.Message{
			Topic:    bus.ThreadTopic(s.ThreadID, "timeline"),
			ThreadID: s.ThreadID,
			Type:     bus.MsgEventsEvicted,
			Payload:  epayload,
		})
	}
}

// Touch 刷新活跃时间。
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// IdleFor 距最近一次活跃的时长。
func (s *Session) IdleFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActive)
}

// Close 关闭会话: 排空合并窗口, 停掉定时器, 发关闭通知。幂等。
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.coalescer.Flush()
	s.coalescer.Stop()
	if s.bus != nil {
		s.bus.Publish(bus.Message{
			Topic:    bus.ThreadTopic(s.ThreadID, "session"),
			ThreadID: s.ThreadID,
			Type:     bus.MsgSessionClosed,
		})
	}
}
