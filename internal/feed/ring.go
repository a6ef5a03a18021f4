// Package feed 提供事件入口侧的两个小构件:
// 有界 FIFO 环形缓冲 (防单线程长会话内存无界增长) 与
// 尾沿合并调度器 (事件风暴时把 N 次重建压成每 tick 一次)。
package feed

import "sync"

// Ring 有界 FIFO 缓冲。容量满时静默淘汰最旧条目, 只记一个淘汰计数;
// 派生状态 (槽位/标记) 不受淘汰影响, 只有原始事件历史被截断。
type Ring[T any] struct {
	mu      sync.Mutex
	buf     []T
	start   int
	count   int
	evicted uint64
}

// NewRing 创建容量为 capacity 的环; capacity < 1 时按 1 处理。
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Append 追加一个条目, 满则淘汰最旧。
func (r *Ring[T]) Append(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == len(r.buf) {
		var zero T
		r.buf[r.start] = zero
		r.start = (r.start + 1) % len(r.buf)
		r.count--
		r.evicted++
	}
	r.buf[(r.start+r.count)%len(r.buf)] = v
	r.count++
}

// Snapshot 返回当前内容的有序副本 (最旧在前)。
func (r *Ring[T]) Snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// Len 当前条目数。
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Evicted 累计淘汰条目数。
func (r *Ring[T]) Evicted() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evicted
}

// Reset 清空缓冲与淘汰计数。
func (r *Ring[T]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.buf {
		var zero T
		r.buf[i] = zero
	}
	r.start, r.count, r.evicted = 0, 0, 0
}
