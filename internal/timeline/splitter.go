// splitter.go — 消息 part 切分: 把一条消息的 part 序列切成
// 连续同类 run (正文 run / 推理 run), 收集附件, 并抽出内嵌事件 part。
package timeline

import (
	"strconv"
	"strings"
)

// embeddedEvent 消息 part 中内嵌的结构化事件 (类型带 data- 前缀)。
type embeddedEvent struct {
	partIndex int
	eventType string
	data      map[string]any
}

// runBuffer 进行中的连续 run。
type runBuffer struct {
	kind     PartKind
	startIdx int
	chunks   []string
}

func (b *runBuffer) active() bool { return b.chunks != nil }

func (b *runBuffer) reset() {
	b.chunks = nil
	b.startIdx = 0
}

// splitMessageRuns 把一条消息切成 TimelineItem run 列表。
//
// 规则:
//   - 相邻同类 text/reasoning part 合并为一个 run, 类型切换即断开
//   - 内嵌事件 part 打断当前 run (事件前后的正文各自成段)
//   - 用户消息的 file part 收集为待挂附件, 挂到下一个冲刷出的正文 run 上;
//     若消息始终没有正文 run, 附件自成一个空文本 run; 其余角色的 file part 忽略
//   - 纯空白且无附件的 run 丢弃
//   - 整条消息零 run 且原始全文非空时, 以全文兜底生成一个 run
//
// run 的 id 由消息 id 与起始 part 下标构成, 对同一逻辑 run 跨重建稳定。
func splitMessageRuns(msg Message, msgIndex, unit int) []TimelineItem {
	var (
		items   []TimelineItem
		buf     runBuffer
		pending []Attachment
	)

	flush := func() {
		if !buf.active() {
			return
		}
		text := strings.Join(buf.chunks, "")
		start, kind := buf.startIdx, buf.kind
		buf.reset()
		var attach []Attachment
		if kind == PartText {
			attach = pending
			pending = nil
		}
		if strings.TrimSpace(text) == "" && len(attach) == 0 {
			return
		}
		items = append(items, TimelineItem{
			ID:          msg.ID + "-run-" + strconv.Itoa(start),
			Kind:        ItemMessageRun,
			Order:       runOrderKey(msgIndex, start, unit),
			Role:        msg.Role,
			Text:        text,
			Reasoning:   kind == PartReasoning,
			Attachments: attach,
		})
	}

	for i, p := range msg.Parts {
		switch p.Kind {
		case PartText, PartReasoning:
			if buf.active() && buf.kind != p.Kind {
				flush()
			}
			if !buf.active() {
				buf.kind = p.Kind
				buf.startIdx = i
				buf.chunks = []string{}
			}
			buf.chunks = append(buf.chunks, p.Text)
		case PartFile:
			// 附件只来自用户消息; 助手消息的产物走旁路事件与槽位
			if msg.Role != RoleUser || p.URL == "" {
				continue
			}
			pending = append(pending, Attachment{
				URL:       p.URL,
				MediaType: p.MediaType,
				Filename:  p.Filename,
			})
		case PartEvent:
			// 事件 part 打断 run; 事件本身由 Engine 单独分发
			flush()
		}
	}
	flush()

	// 附件没等到可挂的正文 run: 自成一条
	if len(pending) > 0 {
		items = append(items, TimelineItem{
			ID:          msg.ID + "-attachments",
			Kind:        ItemMessageRun,
			Order:       runOrderKey(msgIndex, len(msg.Parts), unit),
			Role:        msg.Role,
			Attachments: pending,
		})
	}

	// 零 run 兜底: 旧格式消息只有 content 全文; 用户消息即使全空
	// 也要在时间线上占位, 不允许凭空消失
	if len(items) == 0 && (strings.TrimSpace(msg.Content) != "" || msg.Role == RoleUser) {
		items = append(items, TimelineItem{
			ID:    msg.ID + "-run-0",
			Kind:  ItemMessageRun,
			Order: runOrderKey(msgIndex, 0, unit),
			Role:  msg.Role,
			Text:  msg.Content,
		})
	}
	return items
}

// messageEmbeddedEvents 抽出消息中带 data- 前缀的内嵌事件 part。
func messageEmbeddedEvents(msg Message) []embeddedEvent {
	var out []embeddedEvent
	for i, p := range msg.Parts {
		if p.Kind != PartEvent {
			continue
		}
		typ := NormalizeEventType(p.EventType)
		if typ == "" {
			continue
		}
		out = append(out, embeddedEvent{partIndex: i, eventType: typ, data: p.Data})
	}
	return out
}
