// slots.go — 产物槽位的通用 upsert 逻辑与 analyst/writer/outline 三族处理。
// 合并语义: 按字段 last-write-wins, payload 未携带的字段保留既有值;
// 同 payload 重放得到同一结果 (幂等)。
package timeline

// 各族缺省槽位 key (payload 缺 artifact_id 时的兜底)。
const (
	defaultDeckKey    = "visual_deck"
	defaultAnalystKey = "data_analyst"
	defaultWriterKey  = "writer_output"
	defaultOutlineKey = "outline"
)

// 槽位 map 的 key 按族加前缀, 避免不同族撞同一 artifact_id。
func slotKey(group, id string) string { return group + ":" + id }

// ensureSlotLocked 取出或创建槽位。每个逻辑产物恰有一个槽位, 更新绝不复制。
func (e *Engine) ensureSlotLocked(group, id string, kind SlotKind) *ArtifactSlot {
	key := slotKey(group, id)
	slot, ok := e.slots[key]
	if !ok {
		slot = &ArtifactSlot{ID: id, Kind: kind, Status: StatusStreaming}
		e.slots[key] = slot
	}
	return slot
}

// touchSlotLocked 合并收尾: 版本递增, order 跟随本次事件
// (槽位时间线位置反映最近活动, 不是创建时刻)。
func touchSlotLocked(slot *ArtifactSlot, order float64) {
	slot.Version++
	slot.Order = order
}

// advanceStatus 状态推进, 带终态保护: failed 粘滞不可复活;
// completed 不回退为 streaming, 仅允许转入 failed。
func advanceStatus(slot *ArtifactSlot, next SlotStatus) {
	switch slot.Status {
	case StatusFailed:
		return
	case StatusCompleted:
		if next != StatusFailed {
			return
		}
	}
	if next != "" {
		slot.Status = next
	}
}

// payloadStatus 读取 payload 中的显式状态字段。
func payloadStatus(data map[string]any) SlotStatus {
	switch extractFirstString(data, "status", "state") {
	case "completed", "complete", "done", "success":
		return StatusCompleted
	case "failed", "error":
		return StatusFailed
	case "streaming", "running", "in_progress":
		return StatusStreaming
	}
	return ""
}

// mergeExtra 把处理函数未消费的 payload 字段留存到 Extra (快照保真)。
func mergeExtra(slot *ArtifactSlot, data map[string]any, consumed ...string) {
	if len(data) == 0 {
		return
	}
	skip := make(map[string]struct{}, len(consumed))
	for _, k := range consumed {
		skip[k] = struct{}{}
	}
	for k, v := range data {
		if _, ok := skip[k]; ok {
			continue
		}
		if slot.Extra == nil {
			slot.Extra = make(map[string]any)
		}
		slot.Extra[k] = v
	}
}

// ========================================
// 数据分析 (analyst)
// ========================================

func handleAnalystEvent(e *Engine, data map[string]any, ev StructuredEvent, order float64) {
	id := extractFirstString(data, "artifact_id", "artifactId")
	if id == "" {
		id = defaultAnalystKey
	}
	slot := e.ensureSlotLocked("analyst", id, SlotDataAnalyst)
	if slot.Analyst == nil {
		slot.Analyst = &AnalystContent{}
	}
	if t := extractFirstString(data, "title", "name"); t != "" {
		slot.Title = t
	}

	switch NormalizeEventType(ev.Type) {
	case EventAnalystStart:
		if in, ok := data["input"]; ok {
			slot.Analyst.Input = in
		}
		advanceStatus(slot, StatusStreaming)
	case EventAnalystCodeDelta:
		slot.Analyst.Code += extractFirstString(data, "delta", "code", "text")
	case EventAnalystLogDelta:
		slot.Analyst.Log += extractFirstString(data, "delta", "log", "text")
	case EventAnalystOutput:
		if out, ok := data["output"]; ok {
			slot.Analyst.Output = out
		} else if out, ok := data["result"]; ok {
			slot.Analyst.Output = out
		}
	case EventAnalystComplete:
		if st := payloadStatus(data); st != "" {
			advanceStatus(slot, st)
		} else {
			advanceStatus(slot, StatusCompleted)
		}
	}
	mergeExtra(slot, data, "artifact_id", "artifactId", "title", "name",
		"delta", "code", "log", "text", "input", "output", "result", "status", "state")
	touchSlotLocked(slot, order)
}

// ========================================
// 写作产物 (writer)
// ========================================

func handleWriterOutput(e *Engine, data map[string]any, _ StructuredEvent, order float64) {
	subkind := extractFirstString(data, "artifact_type", "artifactType", "subtype", "kind")
	if subkind == "outline" {
		// 大纲由 outline 族专责渲染, 此处抑制以免重复
		return
	}
	id := extractFirstString(data, "artifact_id", "artifactId")
	if id == "" {
		id = defaultWriterKey
	}
	slot := e.ensureSlotLocked("writer", id, SlotWriterOutput)
	if slot.Writer == nil {
		slot.Writer = &WriterContent{}
	}
	if subkind != "" {
		slot.Writer.Subkind = subkind
	}
	if t := extractFirstString(data, "title", "name"); t != "" {
		slot.Title = t
	}
	if c := extractFirstString(data, "content", "markdown", "text"); c != "" {
		slot.Writer.Content = c
	}
	if st := payloadStatus(data); st != "" {
		advanceStatus(slot, st)
	} else if slot.Writer.Content != "" {
		advanceStatus(slot, StatusCompleted)
	}
	mergeExtra(slot, data, "artifact_id", "artifactId", "artifact_type", "artifactType",
		"subtype", "kind", "title", "name", "content", "markdown", "text", "status", "state")
	touchSlotLocked(slot, order)
}

// ========================================
// 大纲 (outline)
// ========================================

func handleOutline(e *Engine, data map[string]any, _ StructuredEvent, order float64) {
	id := extractFirstString(data, "artifact_id", "artifactId")
	if id == "" {
		id = defaultOutlineKey
	}
	slot := e.ensureSlotLocked("outline", id, SlotOutline)

	// 整体替换: 每次 outline 事件重建标题与页列表, 不与旧页合并
	out := outlineFromPayload(data)
	slot.Outline = out
	if out.Title != "" {
		slot.Title = out.Title
	}
	if st := payloadStatus(data); st != "" {
		advanceStatus(slot, st)
	} else if len(out.Slides) > 0 {
		advanceStatus(slot, StatusCompleted)
	}
	mergeExtra(slot, data, "artifact_id", "artifactId", "title", "deck_title", "deckTitle",
		"slides", "pages", "items", "status", "state")
	touchSlotLocked(slot, order)
}
