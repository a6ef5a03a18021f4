// registry.go — 会话注册表: 按线程 id 索引 Session, 空闲超时回收。
package session

import (
	"context"
	"sync"
	"time"

	"github.com/WLONEGI/Sol-LeWitt-sub000/internal/bus"
	"github.com/WLONEGI/Sol-LeWitt-sub000/internal/timeline"
	"github.com/WLONEGI/Sol-LeWitt-sub000/pkg/logger"
	"github.com/WLONEGI/Sol-LeWitt-sub000/pkg/util"
)

// Registry 线程 id → Session。
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	opts     Options
	bus      *bus.MessageBus
	sink     func(threadID string, events []timeline.StructuredEvent)
}

// SetEventSink 为后续创建的会话设置盖戳事件回调。
func (r *Registry) SetEventSink(fn func(threadID string, events []timeline.StructuredEvent)) {
	r.mu.Lock()
	r.sink = fn
	r.mu.Unlock()
}

// NewRegistry 创建注册表。
func NewRegistry(opts Options, b *bus.MessageBus) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		opts:     opts,
		bus:      b,
	}
}

// Get 查找既有会话。
func (r *Registry) Get(threadID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[threadID]
	return s, ok
}

// GetOrCreate 查找或创建会话。
func (r *Registry) GetOrCreate(threadID string) *Session {
	r.mu.RLock()
	s, ok := r.sessions[threadID]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[threadID]; ok {
		return s
	}
	s = New(threadID, r.opts, r.bus)
	if r.sink != nil {
		s.SetEventSink(r.sink)
	}
	r.sessions[threadID] = s
	logger.Info("session created", logger.String(logger.FieldThreadID, threadID))
	return s
}

// Remove 关闭并移除会话。
func (r *Registry) Remove(threadID string) {
	r.mu.Lock()
	s, ok := r.sessions[threadID]
	delete(r.sessions, threadID)
	r.mu.Unlock()
	if ok {
		s.Close()
	}
}

// Count 当前会话数。
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// SweepIdle 回收空闲超过 maxIdle 的会话, 返回回收数。
func (r *Registry) SweepIdle(maxIdle time.Duration) int {
	r.mu.Lock()
	var victims []*Session
	for id, s := range r.sessions {
		if s.IdleFor() > maxIdle {
			victims = append(victims, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range victims {
		s.Close()
		logger.Info("idle session reclaimed",
			logger.String(logger.FieldThreadID, s.ThreadID))
	}
	return len(victims)
}

// StartSweeper 启动后台空闲回收循环, ctx 取消时退出。
func (r *Registry) StartSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	util.SafeGo(func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.SweepIdle(maxIdle)
			}
		}
	})
}
