// Package bus 提供进程内 pub/sub 消息总线。
//
// 引擎在合并批量事件后发布 thread.{id}.timeline 通知, WS 推送端与
// 快照落盘端各自订阅; fan-out 非阻塞, 慢订阅者丢消息不拖慢发布者。
package bus

import (
	"encoding/json"
	"sync"
	"time"
)

// ========================================
// 消息类型
// ========================================

// Message 总线消息。
type Message struct {
	Topic     string          `json:"topic"` // thread.{id}.timeline / thread.{id}.session / system.health
	ThreadID  string          `json:"threadId,omitempty"`
	Type      string          `json:"type"`              // 消息类型 (timeline.update / session.closed 等)
	Payload   json.RawMessage `json:"payload,omitempty"` // 具体数据
	Timestamp time.Time       `json:"timestamp"`
	Seq       int64           `json:"seq"` // 全局序列号
}

// 消息类型常量。
const (
	// MsgTimelineUpdate 时间线重建完成 (一批事件合并后发一次)。
	MsgTimelineUpdate = "timeline.update"
	// MsgProjectionUpdate 最新值投影变化。
	MsgProjectionUpdate = "projection.update"
	// MsgEventsEvicted 原始缓冲发生淘汰。
	MsgEventsEvicted = "events.evicted"
	// MsgSessionOpened 会话创建。
	MsgSessionOpened = "session.opened"
	// MsgSessionClosed 会话关闭 (空闲回收或显式删除)。
	MsgSessionClosed = "session.closed"
	// MsgSnapshotSaved 快照落盘完成。
	MsgSnapshotSaved = "snapshot.saved"
)

// Topic 模式常量。
const (
	// TopicThreadPrefix 线程消息前缀: thread.{id}.{subtopic}。
	TopicThreadPrefix = "thread."
	// TopicSystem 系统消息。
	TopicSystem = "system"
	// TopicAll 广播 (所有订阅者收到)。
	TopicAll = "*"
)

// ThreadTopic 线程子主题拼装: ThreadTopic("t1", "timeline") → "thread.t1.timeline"。
func ThreadTopic(threadID, sub string) string {
	return TopicThreadPrefix + threadID + "." + sub
}

// ========================================
// Subscriber
// ========================================

// Subscriber 订阅者。
type Subscriber struct {
	ID     string       // 唯一标识
	Filter string       // topic 前缀过滤 ("thread.t1" / "*" / "system")
	Ch     chan Message // 消息通道
}

// ========================================
// MessageBus — topic pub/sub
// ========================================

// MessageBus 进程内消息总线。
//
// 支持 topic 前缀匹配和广播:
//   - 订阅 "thread.t1" → 收到 thread.t1.timeline, thread.t1.session 等
//   - 订阅 "*" → 收到所有消息
type MessageBus struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber // key = subscriber ID
	seq         int64
	onPublish   func(Message) // 可选: 每条消息的全局回调 (桥接指标/日志)
}

// NewMessageBus 创建消息总线。
func NewMessageBus() *MessageBus {
	return &MessageBus{
		subscribers: make(map[string]*Subscriber),
	}
}

// SetOnPublish 设置全局发布回调。
func (b *MessageBus) SetOnPublish(fn func(Message)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onPublish = fn
}

// Publish 发布消息到匹配的订阅者。
//
// seq 递增和 fan-out 在同一把锁下执行, 保证消息到达顺序与 seq 一致。
func (b *MessageBus) Publish(msg Message) {
	b.mu.Lock()
	b.seq++
	msg.Seq = b.seq
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	onPub := b.onPublish

	for _, sub := range b.subscribers {
		if matchTopic(sub.Filter, msg.Topic) {
			select {
			case sub.Ch <- msg:
			default:
				// 通道满, 丢弃 (避免阻塞发布者)
			}
		}
	}
	b.mu.Unlock()

	// 全局回调在锁外执行 (回调可能耗时, 避免持锁太久)
	if onPub != nil {
		onPub(msg)
	}
}

// Subscribe 订阅消息。filter 为 topic 前缀 ("thread.t1" / "*" / "system")。
func (b *MessageBus) Subscribe(id, filter string) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscriber{
		ID:     id,
		Filter: filter,
		Ch:     make(chan Message, 64),
	}
	b.subscribers[id] = sub
	return sub
}

// Unsubscribe 取消订阅。
func (b *MessageBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		close(sub.Ch)
		delete(b.subscribers, id)
	}
}

// SubscriberCount 返回当前订阅者数量。
func (b *MessageBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Seq 返回当前序列号。
func (b *MessageBus) Seq() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.seq
}

// ========================================
// Topic 匹配
// ========================================

// matchTopic 检查 topic 是否匹配 filter。
//
// 规则:
//   - filter "*" 匹配所有 topic
//   - filter "thread.t1" 匹配 "thread.t1", "thread.t1.timeline"
//   - filter "system" 匹配 "system", "system.health"
func matchTopic(filter, topic string) bool {
	if filter == TopicAll {
		return true
	}
	if topic == filter {
		return true
	}
	if len(topic) > len(filter) && topic[:len(filter)] == filter && topic[len(filter)] == '.' {
		return true
	}
	return false
}
