// projectors.go — 最新值投影: 直接在旁路原始缓冲上回答
// "现在的计划/大纲/主视觉稿是什么", 不走完整时间线。
// 无内部状态; 缓冲被淘汰截断时结果即 "可见范围内的最新", 不算错误。
package timeline

// ProjectLatestPlan 倒序找最后一条 plan-update 并归一化。无则返回 nil。
func ProjectLatestPlan(events []StructuredEvent) *PlanUpdate {
	for i := len(events) - 1; i >= 0; i-- {
		if NormalizeEventType(events[i].Type) == EventPlanUpdate {
			return planFromPayload(events[i].Data)
		}
	}
	return nil
}

// ProjectLatestOutline 倒序找最后一条 outline 并归一化。无则返回 nil。
func ProjectLatestOutline(events []StructuredEvent) *OutlineContent {
	for i := len(events) - 1; i >= 0; i-- {
		if NormalizeEventType(events[i].Type) == EventOutline {
			return outlineFromPayload(events[i].Data)
		}
	}
	return nil
}

// ProjectLatestDeck 把全部 visual_* 事件折叠成单一 deck 视图
// (单稿一线程假设)。出现新 artifact_id 时丢弃旧稿的页重新累积,
// 页合并与槽位路径共用同一 slide-map 逻辑。无 visual 事件返回 nil。
func ProjectLatestDeck(events []StructuredEvent) *DeckProjection {
	var (
		proj       *DeckProjection
		pdfForced  bool
		modeLocked bool
	)
	for _, ev := range events {
		typ := NormalizeEventType(ev.Type)
		switch typ {
		case EventVisualPlan, EventVisualPrompt, EventVisualImage, EventVisualPDF:
		default:
			continue
		}
		id := extractFirstString(ev.Data, "artifact_id", "artifactId")
		if id == "" {
			id = defaultDeckKey
		}
		if proj == nil || proj.ArtifactID != id {
			proj = &DeckProjection{
				ArtifactID: id,
				Kind:       SlotSlideDeck,
				Deck:       DeckContent{Slides: make(map[int]DeckSlide)},
			}
			pdfForced, modeLocked = false, false
		}
		if !modeLocked {
			if mode := inferDeckMode(ev.Data); mode != SlotSlideDeck {
				proj.Kind = mode
				modeLocked = true
			}
		}
		if t := extractFirstString(ev.Data, "deck_title", "deckTitle"); t != "" {
			proj.Title = t
		}
		mergeDeckEvent(&proj.Deck, typ, ev.Data)
		if typ == EventVisualPDF {
			pdfForced = true
		}
	}
	if proj == nil {
		return nil
	}
	if pdfForced {
		proj.Status = StatusCompleted
	} else {
		proj.Status = deriveDeckStatus(&proj.Deck)
	}
	return proj
}

// ProjectionRelevant 判断事件类型是否会改变三个最新值投影之一。
func ProjectionRelevant(typ string) bool {
	switch NormalizeEventType(typ) {
	case EventPlanUpdate, EventOutline,
		EventVisualPlan, EventVisualPrompt, EventVisualImage, EventVisualPDF:
		return true
	}
	return false
}

// 引擎侧包装: 在当前原始缓冲快照上投影。

// LatestPlan 当前计划。
func (e *Engine) LatestPlan() *PlanUpdate {
	return ProjectLatestPlan(e.events.Snapshot())
}

// LatestOutline 当前大纲。
func (e *Engine) LatestOutline() *OutlineContent {
	return ProjectLatestOutline(e.events.Snapshot())
}

// LatestDeck 当前主视觉稿。
func (e *Engine) LatestDeck() *DeckProjection {
	return ProjectLatestDeck(e.events.Snapshot())
}
