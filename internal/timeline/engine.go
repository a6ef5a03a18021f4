// engine.go — 时间线引擎: 每会话线程一个实例, 持有全部派生状态
// (槽位 / 标记 / 计数器), 消息列表与旁路事件作为只追加输入。
// 所有可变计数器集中在 engineState, 换线程时整体 Reset, 无包级单例。
package timeline

import (
	"strconv"
	"strings"
	"sync"

	"github.com/WLONEGI/Sol-LeWitt-sub000/internal/feed"
	"github.com/WLONEGI/Sol-LeWitt-sub000/pkg/logger"
)

// DefaultMaxEvents 旁路原始缓冲容量缺省值。
const DefaultMaxEvents = 200

// DefaultFollowupLimit 单条追问建议条目的选项上限。
const DefaultFollowupLimit = 3

// Options 引擎参数; 零值字段取缺省。
type Options struct {
	MsgCountUnit  int
	FollowupLimit int
	MaxEvents     int
}

// Engine 单线程会话的时间线重建引擎。
// 方法可被多 goroutine 调用 (HTTP 读 + WS 写), 由内部锁串行化;
// 事件处理本身无并发。
type Engine struct {
	mu            sync.RWMutex
	unit          int
	followupLimit int

	messages []Message
	events   *feed.Ring[StructuredEvent]
	state    engineState

	slots     map[string]*ArtifactSlot
	markers   []TimelineItem
	followups []TimelineItem
	research  map[string]*researchEntry

	appliedParts  map[string]struct{}
	openStepID    string
	openStepTitle string
	researchSynth int
}

// NewEngine 创建引擎。
func NewEngine(opts Options) *Engine {
	if opts.MsgCountUnit <= 0 {
		opts.MsgCountUnit = DefaultMsgCountUnit
	}
	if opts.FollowupLimit <= 0 {
		opts.FollowupLimit = DefaultFollowupLimit
	}
	if opts.MaxEvents <= 0 {
		opts.MaxEvents = DefaultMaxEvents
	}
	e := &Engine{
		unit:          opts.MsgCountUnit,
		followupLimit: opts.FollowupLimit,
		events:        feed.NewRing[StructuredEvent](opts.MaxEvents),
	}
	e.resetLocked()
	return e
}

func (e *Engine) resetLocked() {
	e.messages = nil
	e.events.Reset()
	e.state = newEngineState()
	e.slots = make(map[string]*ArtifactSlot)
	e.markers = nil
	e.followups = nil
	e.research = make(map[string]*researchEntry)
	e.appliedParts = make(map[string]struct{})
	e.openStepID, e.openStepTitle = "", ""
	e.researchSynth = 0
}

// Reset 清空全部状态 (线程切换时调用)。
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked()
}

// ========================================
// 消息流输入
// ========================================

// SetMessages 整体替换消息列表 (历史加载)。内嵌事件按 part 去重补分发。
func (e *Engine) SetMessages(msgs []Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messages = msgs
	e.state.msgCount = len(msgs)
	for i := range msgs {
		e.applyEmbeddedLocked(msgs[i], i)
	}
}

// UpsertMessage 按 id 更新或追加一条消息 (流式期间 parts 只增)。
func (e *Engine) UpsertMessage(msg Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx := -1
	for i := range e.messages {
		if e.messages[i].ID == msg.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		e.messages = append(e.messages, msg)
		idx = len(e.messages) - 1
	} else {
		e.messages[idx] = msg
	}
	e.state.msgCount = len(e.messages)
	e.applyEmbeddedLocked(msg, idx)
}

// applyEmbeddedLocked 分发消息内嵌事件 part (按消息 id+part 下标去重)。
// 内嵌事件属于消息正文位置, order 直接取消息区段内的 part 位。
func (e *Engine) applyEmbeddedLocked(msg Message, msgIndex int) {
	for _, ee := range messageEmbeddedEvents(msg) {
		key := msg.ID + "#" + strconv.Itoa(ee.partIndex)
		if _, done := e.appliedParts[key]; done {
			continue
		}
		e.appliedParts[key] = struct{}{}
		h, ok := eventHandlers[ee.eventType]
		if !ok {
			continue
		}
		ev := StructuredEvent{
			Type:           ee.eventType,
			Data:           ee.data,
			Seq:            e.state.nextSeq(),
			MsgCountAtEmit: msgIndex,
		}
		h(e, ee.data, ev, runOrderKey(msgIndex, ee.partIndex, e.unit))
	}
}

// BeginTurn 用户提交新消息时乐观锚定: 本回合事件全部挂到
// 尚未落地的助手消息位上。在用户消息追加进列表之前调用。
func (e *Engine) BeginTurn() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.anchor = len(e.messages) + 1
}

// SettleTurn 流结束 (成功或失败) 后清除锚点。
func (e *Engine) SettleTurn() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.anchor = 0
}

// ========================================
// 旁路事件输入
// ========================================

// IngestEvent 实时事件入口: 到达即盖戳 (seq, msgCountAtEmit), 随后分发。
// 返回盖戳后的事件供持久化。
func (e *Engine) IngestEvent(typ string, data map[string]any) StructuredEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	ev := StructuredEvent{
		Type:           typ,
		Data:           data,
		Seq:            e.state.nextSeq(),
		MsgCountAtEmit: e.state.stampCount(),
	}
	e.applyEventLocked(ev)
	return ev
}

// ReplayEvent 重放已盖戳事件 (快照恢复 / 持久层补发)。
// 戳缺失 (旧快照格式) 时以当前消息数近似, 不拒绝。
func (e *Engine) ReplayEvent(ev StructuredEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.replayEventLocked(ev)
}

func (e *Engine) replayEventLocked(ev StructuredEvent) {
	if ev.Seq == 0 {
		ev.Seq = e.state.nextSeq()
	} else if ev.Seq > e.state.seq {
		e.state.seq = ev.Seq
	}
	if ev.MsgCountAtEmit == 0 {
		ev.MsgCountAtEmit = len(e.messages)
	}
	e.applyEventLocked(ev)
}

// HydrateSnapshot 从持久化快照恢复: 先整体复位, 再经由与实时路径
// 完全相同的盖戳/分类链路重放, 保证恢复出的时间线与实时流式不可区分。
func (e *Engine) HydrateSnapshot(snap Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked()

	e.messages = snap.Messages
	e.state.msgCount = len(snap.Messages)
	for i := range snap.Messages {
		e.applyEmbeddedLocked(snap.Messages[i], i)
	}
	for _, ev := range snap.UIEvents {
		e.replayEventLocked(ev)
	}

	// 槽位以快照导出值为准, 重放结果只垫底: 缓冲留存的事件在快照槽位里
	// 已经累积过一次, 重放后再叠 delta 会二次累加; 被淘汰截断的历史
	// 则只有快照槽位还记得
	for key, a := range snap.Artifacts {
		slot := cloneSlot(&a)
		if slot.ID == "" {
			if _, id, ok := strings.Cut(key, ":"); ok {
				slot.ID = id
			} else {
				slot.ID = key
			}
		}
		slot.modeLocked = slot.Kind == SlotCharacterSheetDeck || slot.Kind == SlotComicPageDeck
		e.slots[slotKey(slotGroup(slot.Kind), slot.ID)] = slot
	}
	logger.Debug("snapshot hydrated",
		logger.Int(logger.FieldMsgCount, len(snap.Messages)),
		logger.Int(logger.FieldCount, len(snap.UIEvents)),
		logger.Int(logger.FieldItems, len(e.slots)))
}

// slotGroup 槽位族前缀。
func slotGroup(kind SlotKind) string {
	switch kind {
	case SlotDataAnalyst:
		return "analyst"
	case SlotWriterOutput:
		return "writer"
	case SlotOutline:
		return "outline"
	default:
		return "deck"
	}
}

// ========================================
// 对外输出
// ========================================

// Timeline 构建当前有序时间线。返回值为独立快照, 调用方可任意持有。
func (e *Engine) Timeline() []TimelineItem {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.buildTimelineLocked()
}

// RawEvents 旁路原始缓冲的有序副本 (最旧在前, 可能已被淘汰截断)。
func (e *Engine) RawEvents() []StructuredEvent {
	return e.events.Snapshot()
}

// Snapshot 导出当前状态为可持久化快照。
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	snap := Snapshot{
		Messages: cloneMessages(e.messages),
		UIEvents: e.events.Snapshot(),
	}
	if len(e.slots) > 0 {
		snap.Artifacts = make(map[string]ArtifactSlot, len(e.slots))
		// key 用内部 "族:id" 复合键: 不同族共用同一 artifact_id 时不互相覆盖
		for key, slot := range e.slots {
			snap.Artifacts[key] = *cloneSlot(slot)
		}
	}
	return snap
}

// Stats 观测计数。
type Stats struct {
	Messages int    `json:"messages"`
	Events   int    `json:"events"`
	Evicted  uint64 `json:"evicted"`
	Slots    int    `json:"slots"`
	Markers  int    `json:"markers"`
	Seq      uint64 `json:"seq"`
}

// EngineStats 当前观测计数快照。
func (e *Engine) EngineStats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{
		Messages: len(e.messages),
		Events:   e.events.Len(),
		Evicted:  e.events.Evicted(),
		Slots:    len(e.slots),
		Markers:  len(e.markers) + len(e.followups),
		Seq:      e.state.seq,
	}
}
