// coalescer.go — 尾沿 (trailing-edge) 合并调度器。
// 事件风暴时不做逐事件处理: 事件先入 pending, 仅在无挂起定时器时
// 起一个 tick, tick 触发后整批交给 flush。每个 tick 最多一次 flush。
package feed

import (
	"sync"
	"time"
)

// Coalescer 把高频 Offer 调用合并为低频批量 flush。
// flush 在定时器 goroutine 上执行, 不持有内部锁。
type Coalescer[T any] struct {
	mu      sync.Mutex
	pending []T
	timer   *time.Timer
	delay   time.Duration
	flush   func([]T)
	stopped bool
}

// NewCoalescer delay 为合并窗口 (典型 16ms); delay <= 0 退化为 1ms。
func NewCoalescer[T any](delay time.Duration, flush func([]T)) *Coalescer[T] {
	if delay <= 0 {
		delay = time.Millisecond
	}
	return &Coalescer[T]{delay: delay, flush: flush}
}

// Offer 提交一个条目。已 Stop 的调度器静默丢弃。
func (c *Coalescer[T]) Offer(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.pending = append(c.pending, v)
	if c.timer == nil {
		c.timer = time.AfterFunc(c.delay, c.fire)
	}
}

func (c *Coalescer[T]) fire() {
	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	c.timer = nil
	stopped := c.stopped
	c.mu.Unlock()
	if stopped || len(batch) == 0 {
		return
	}
	c.flush(batch)
}

// Flush 同步冲刷当前积压 (测试与关停前排空用)。
func (c *Coalescer[T]) Flush() {
	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()
	if len(batch) > 0 {
		c.flush(batch)
	}
}

// Stop 停止调度器并清掉挂起定时器; 之后的 Offer 被丢弃。
func (c *Coalescer[T]) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	c.pending = nil
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
