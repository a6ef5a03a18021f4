// extract.go — 松散 payload (map[string]any) 的字段提取工具。
// 旁路事件来自多个后端管道, 字段命名存在 snake/camel 混用与类型漂移,
// 这里统一做多键回退与宽容类型转换; 提取失败一律返回零值, 不报错。
package timeline

import (
	"encoding/json"
	"strconv"
	"strings"
)

// extractFirstString 依次尝试 keys, 返回第一个非空字符串值。
func extractFirstString(data map[string]any, keys ...string) string {
	if data == nil {
		return ""
	}
	for _, k := range keys {
		if v, ok := data[k]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	return ""
}

// extractInt 宽容整数提取: 接受 float64 (JSON 默认数值)、int、数字字符串。
func extractInt(data map[string]any, keys ...string) (int, bool) {
	if data == nil {
		return 0, false
	}
	for _, k := range keys {
		v, ok := data[k]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return int(n), true
		case int:
			return n, true
		case int64:
			return int(n), true
		case json.Number:
			if i, err := n.Int64(); err == nil {
				return int(i), true
			}
		case string:
			if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
				return i, true
			}
		}
	}
	return 0, false
}

// extractStringList 提取字符串列表; 元素可以是字符串, 也可以是
// 带 text/prompt/content 字段的子对象。空白元素丢弃。
func extractStringList(data map[string]any, keys ...string) []string {
	if data == nil {
		return nil
	}
	for _, k := range keys {
		raw, ok := data[k].([]any)
		if !ok {
			continue
		}
		out := make([]string, 0, len(raw))
		for _, item := range raw {
			var s string
			switch v := item.(type) {
			case string:
				s = v
			case map[string]any:
				s = extractFirstString(v, "text", "prompt", "content", "title")
			}
			s = strings.TrimSpace(s)
			if s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

// extractMapList 提取对象列表, 忽略非对象元素。
func extractMapList(data map[string]any, keys ...string) []map[string]any {
	if data == nil {
		return nil
	}
	for _, k := range keys {
		raw, ok := data[k].([]any)
		if !ok {
			continue
		}
		out := make([]map[string]any, 0, len(raw))
		for _, item := range raw {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

// parseStructuredPrompt 尽力把结构化提示解析成对象;
// 非 JSON 文本按原始字符串透传, 保证单页损坏不拖垮整张 deck。
func parseStructuredPrompt(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return s
	}
	var parsed any
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return s
	}
	return parsed
}

// NormalizeEventType 事件类型归一化: 去空白、转小写、下划线转连字符、
// 剥离内嵌事件 part 的保留前缀。
func NormalizeEventType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	t = strings.ReplaceAll(t, "_", "-")
	t = strings.TrimPrefix(t, EventPartPrefix)
	return t
}

// planFromPayload 解析 plan-update payload 为 PlanUpdate。
func planFromPayload(data map[string]any) *PlanUpdate {
	plan := &PlanUpdate{
		Title:       extractFirstString(data, "title", "plan_title", "planTitle"),
		Description: extractFirstString(data, "description", "summary"),
	}
	for i, sm := range extractMapList(data, "steps", "plan_steps", "planSteps") {
		step := PlanStep{
			ID:            extractFirstString(sm, "id", "step_id", "stepId"),
			Title:         extractFirstString(sm, "title", "name"),
			Description:   extractFirstString(sm, "description"),
			Instruction:   extractFirstString(sm, "instruction", "prompt"),
			Status:        extractFirstString(sm, "status"),
			Capability:    extractFirstString(sm, "capability", "agent", "tool"),
			ResultSummary: extractFirstString(sm, "result_summary", "resultSummary", "result"),
		}
		if step.ID == "" {
			step.ID = "step-" + strconv.Itoa(i+1)
		}
		if step.Status == "" {
			step.Status = StepPending
		}
		plan.Steps = append(plan.Steps, step)
	}
	return plan
}

// outlineFromPayload 解析 outline payload; 整体替换语义, 不合并旧页。
func outlineFromPayload(data map[string]any) *OutlineContent {
	out := &OutlineContent{
		Title: extractFirstString(data, "title", "deck_title", "deckTitle"),
	}
	for i, sm := range extractMapList(data, "slides", "pages", "items") {
		num, ok := extractInt(sm, "slide_number", "slideNumber", "number", "index")
		if !ok {
			num = i + 1
		}
		out.Slides = append(out.Slides, OutlineSlide{
			SlideNumber: num,
			Title:       extractFirstString(sm, "title", "heading"),
			Bullets:     extractStringList(sm, "bullets", "points", "content"),
		})
	}
	return out
}

// sourcesFromPayload 解析调研引用来源列表。
func sourcesFromPayload(data map[string]any) []ResearchSource {
	var out []ResearchSource
	for _, sm := range extractMapList(data, "sources", "references", "citations") {
		src := ResearchSource{
			Title: extractFirstString(sm, "title", "name"),
			URL:   extractFirstString(sm, "url", "link", "href"),
		}
		if src.Title != "" || src.URL != "" {
			out = append(out, src)
		}
	}
	return out
}
