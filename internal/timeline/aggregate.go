// aggregate.go — 聚合排序: run + 槽位 + 标记 + 调研 + 追问拼成一个数组,
// 按 (order key, id 字典序) 排序。id 兜底比较保证等键时的完全确定性。
package timeline

import "sort"

func (e *Engine) buildTimelineLocked() []TimelineItem {
	items := make([]TimelineItem, 0,
		len(e.messages)*2+len(e.slots)+len(e.markers)+len(e.research)+len(e.followups))

	for i := range e.messages {
		items = append(items, splitMessageRuns(e.messages[i], i, e.unit)...)
	}

	for _, slot := range e.slots {
		kind := ItemArtifact
		if slot.Kind == SlotOutline {
			kind = ItemSlideOutline
		}
		items = append(items, TimelineItem{
			ID:       "artifact-" + slot.ID,
			Kind:     kind,
			Order:    slot.Order,
			Artifact: cloneSlot(slot),
		})
	}

	for _, entry := range e.research {
		task := entry.task
		task.Sources = append([]ResearchSource(nil), entry.task.Sources...)
		items = append(items, TimelineItem{
			ID:       "research-" + task.TaskID,
			Kind:     ItemResearchReport,
			Order:    entry.order,
			Research: &task,
		})
	}

	for _, m := range e.markers {
		items = append(items, m)
	}
	for _, f := range e.followups {
		item := f
		item.Followups = append([]string(nil), f.Followups...)
		items = append(items, item)
	}

	sort.SliceStable(items, func(a, b int) bool {
		if items[a].Order != items[b].Order {
			return items[a].Order < items[b].Order
		}
		return items[a].ID < items[b].ID
	})
	return items
}
