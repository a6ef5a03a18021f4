// classifier.go — 结构化事件分类与分发。
// 输入 (type, payload, order key), 输出一次槽位合并或一个一次性标记条目。
// 未识别类型只进原始缓冲 (快照保真), 不产生派生状态。
package timeline

import (
	"strconv"

	"github.com/WLONEGI/Sol-LeWitt-sub000/pkg/logger"
)

type eventHandler func(e *Engine, data map[string]any, ev StructuredEvent, order float64)

// eventHandlers 归一化类型 → 处理函数。
var eventHandlers = map[string]eventHandler{
	EventPlanUpdate:           handlePlanUpdate,
	EventPlanStepStarted:      handlePlanStepStarted,
	EventPlanStepEnded:        handlePlanStepEnded,
	EventResearchStart:        handleResearchStart,
	EventResearchReport:       handleResearchReport,
	EventResearchComplete:     handleResearchComplete,
	EventOutline:              handleOutline,
	EventVisualPlan:           handleDeckEvent,
	EventVisualPrompt:         handleDeckEvent,
	EventVisualImage:          handleDeckEvent,
	EventVisualPDF:            handleDeckEvent,
	EventAnalystStart:         handleAnalystEvent,
	EventAnalystCodeDelta:     handleAnalystEvent,
	EventAnalystLogDelta:      handleAnalystEvent,
	EventAnalystOutput:        handleAnalystEvent,
	EventAnalystComplete:      handleAnalystEvent,
	EventWriterOutput:         handleWriterOutput,
	EventCoordinatorFollowups: handleFollowups,
}

// applyEventLocked 单事件入口: 去重 → 入原始缓冲 → 分发。
// 调用方持有 e.mu 写锁。
func (e *Engine) applyEventLocked(ev StructuredEvent) {
	if _, dup := e.state.appliedSeq[ev.Seq]; dup {
		return
	}
	e.state.appliedSeq[ev.Seq] = struct{}{}
	e.events.Append(ev)

	typ := NormalizeEventType(ev.Type)
	h, ok := eventHandlers[typ]
	if !ok {
		logger.Debug("unrecognized event type, stored only",
			logger.String(logger.FieldEventType, ev.Type),
			logger.Uint64(logger.FieldSeq, ev.Seq))
		return
	}
	order := orderKey(ev.MsgCountAtEmit, ev.Seq, e.unit)
	if typ == EventCoordinatorFollowups {
		order = followupOrderKey(ev.MsgCountAtEmit, ev.Seq, e.unit)
	}
	h(e, ev.Data, ev, order)
}

// ========================================
// 计划
// ========================================

// plan-update 只服务最新值投影, 不产生时间线条目; 原始缓冲已留存。
func handlePlanUpdate(_ *Engine, _ map[string]any, _ StructuredEvent, _ float64) {}

func handlePlanStepStarted(e *Engine, data map[string]any, _ StructuredEvent, order float64) {
	stepID := extractFirstString(data, "step_id", "stepId", "id")
	if stepID == "" {
		stepID = "step-" + strconv.Itoa(len(e.markers)+1)
	}
	title := extractFirstString(data, "title", "name")

	// 同一时刻至多一个进行中步骤: 上一步未收到 ended 时补一个隐式结束标记,
	// 排在新步骤 start 之前
	if e.openStepID != "" && e.openStepID != stepID {
		e.appendMarkerLocked(ItemPlanStepEndMarker, e.openStepID, e.openStepTitle, order-0.5/orderSeqDiv)
	}
	e.openStepID, e.openStepTitle = stepID, title
	e.appendMarkerLocked(ItemPlanStepMarker, stepID, title, order)
}

func handlePlanStepEnded(e *Engine, data map[string]any, _ StructuredEvent, order float64) {
	stepID := extractFirstString(data, "step_id", "stepId", "id")
	title := extractFirstString(data, "title", "name")
	if stepID == "" {
		stepID, title = e.openStepID, e.openStepTitle
	}
	if stepID == "" {
		return
	}
	if stepID == e.openStepID {
		e.openStepID, e.openStepTitle = "", ""
	}
	e.appendMarkerLocked(ItemPlanStepEndMarker, stepID, title, order)
}

func (e *Engine) appendMarkerLocked(kind ItemKind, stepID, title string, order float64) {
	prefix := "plan-start-"
	if kind == ItemPlanStepEndMarker {
		prefix = "plan-end-"
	}
	// 同一步骤的 start/end 各至多一条: 隐式补发过结束标记后,
	// 迟到的显式 ended 不再追加第二条
	for i := range e.markers {
		if e.markers[i].ID == prefix+stepID {
			return
		}
	}
	e.markers = append(e.markers, TimelineItem{
		ID:        prefix + stepID,
		Kind:      kind,
		Order:     order,
		StepID:    stepID,
		StepTitle: title,
	})
}

// ========================================
// 调研
// ========================================

type researchEntry struct {
	task  ResearchTask
	order float64
}

func (e *Engine) researchTaskLocked(data map[string]any) *researchEntry {
	taskID := extractFirstString(data, "task_id", "taskId", "id")
	if taskID == "" {
		// 缺 key 的事件用合成 key 兜底显示, 不丢弃
		e.researchSynth++
		taskID = "task-" + strconv.Itoa(e.researchSynth)
	}
	entry, ok := e.research[taskID]
	if !ok {
		entry = &researchEntry{task: ResearchTask{TaskID: taskID, Status: ResearchRunning}}
		e.research[taskID] = entry
	}
	return entry
}

func handleResearchStart(e *Engine, data map[string]any, _ StructuredEvent, order float64) {
	entry := e.researchTaskLocked(data)
	entry.order = order
	if p := extractFirstString(data, "perspective", "angle", "topic"); p != "" {
		entry.task.Perspective = p
	}
	if entry.task.Status == "" {
		entry.task.Status = ResearchRunning
	}
}

func handleResearchReport(e *Engine, data map[string]any, _ StructuredEvent, order float64) {
	entry := e.researchTaskLocked(data)
	entry.order = order
	if r := extractFirstString(data, "report", "content", "text"); r != "" {
		entry.task.Report = r
	}
	if src := sourcesFromPayload(data); src != nil {
		entry.task.Sources = src
	}
}

func handleResearchComplete(e *Engine, data map[string]any, _ StructuredEvent, order float64) {
	entry := e.researchTaskLocked(data)
	entry.order = order
	next := extractFirstString(data, "status")
	if next == "" {
		next = ResearchCompleted
	}
	// 终态保护与槽位一致: failed 粘滞; completed 不回退 running
	switch entry.task.Status {
	case ResearchFailed:
		next = ""
	case ResearchCompleted:
		if next != ResearchFailed {
			next = ""
		}
	}
	if next != "" {
		entry.task.Status = next
	}
	if r := extractFirstString(data, "report", "content", "text"); r != "" {
		entry.task.Report = r
	}
	if src := sourcesFromPayload(data); src != nil {
		entry.task.Sources = src
	}
}

// ========================================
// 追问建议
// ========================================

func handleFollowups(e *Engine, data map[string]any, ev StructuredEvent, order float64) {
	options := extractStringList(data, "suggestions", "followups", "options", "prompts")
	if len(options) == 0 {
		// 无有效选项: 静默丢弃, 不产生条目
		return
	}
	if len(options) > e.followupLimit {
		options = options[:e.followupLimit]
	}
	e.followups = append(e.followups, TimelineItem{
		ID:        "followups-" + strconv.FormatUint(ev.Seq, 10),
		Kind:      ItemFollowups,
		Order:     order,
		Followups: options,
	})
}
