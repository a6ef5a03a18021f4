package timeline

import (
	"reflect"
	"strconv"
	"testing"
)

func findItem(t *testing.T, items []TimelineItem, id string) TimelineItem {
	t.Helper()
	for _, it := range items {
		if it.ID == id {
			return it
		}
	}
	t.Fatalf("item %q not found in timeline (%d items)", id, len(items))
	return TimelineItem{}
}

func itemIndex(items []TimelineItem, id string) int {
	for i, it := range items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

// 具体场景: 0 条消息, 用户提交 → 锚定到 1, 三个 visual 事件
// 最终收敛为 completed 的 d1 槽位。
func TestDeckScenario(t *testing.T) {
	e := NewEngine(Options{})
	e.BeginTurn()

	e.IngestEvent("visual-plan", map[string]any{
		"artifact_id": "d1", "slide_number": 1, "title": "Intro",
	})
	e.IngestEvent("visual-image", map[string]any{
		"artifact_id": "d1", "slide_number": 1, "image_url": "https://x/1.png",
	})
	e.IngestEvent("visual-pdf", map[string]any{
		"artifact_id": "d1", "pdf_url": "https://x/d.pdf",
	})

	item := findItem(t, e.Timeline(), "artifact-d1")
	slot := item.Artifact
	if slot.Status != StatusCompleted {
		t.Fatalf("status = %v, want %v", slot.Status, StatusCompleted)
	}
	if slot.Deck.PDFURL != "https://x/d.pdf" {
		t.Fatalf("pdf url = %q, want %q", slot.Deck.PDFURL, "https://x/d.pdf")
	}
	slides := slot.Deck.SortedSlides()
	if len(slides) != 1 {
		t.Fatalf("slides = %d, want 1", len(slides))
	}
	if slides[0].Title != "Intro" || slides[0].ImageURL != "https://x/1.png" {
		t.Fatalf("slide = %+v, want title Intro image https://x/1.png", slides[0])
	}
	// 锚定在尚未落地的助手消息位之前
	if slot.Order >= float64(e.unit) {
		t.Fatalf("order = %v, want < %v", slot.Order, e.unit)
	}
	if slot.Order < float64(e.unit)-1 {
		t.Fatalf("order = %v, want anchored near message slot 1", slot.Order)
	}
}

// 同 seq 事件重放两次, 时间线与一次完全一致。
func TestIdempotentReplay(t *testing.T) {
	e := NewEngine(Options{})
	ev := e.IngestEvent("visual-image", map[string]any{
		"artifact_id": "d1", "slide_number": 2, "image_url": "https://x/2.png",
	})
	before := e.Timeline()

	e.ReplayEvent(ev)
	after := e.Timeline()

	if !reflect.DeepEqual(before, after) {
		t.Fatalf("timeline changed after duplicate replay:\nbefore %+v\nafter  %+v", before, after)
	}
	if got := findItem(t, after, "artifact-d1").Artifact.Version; got != 1 {
		t.Fatalf("version = %d, want 1", got)
	}
}

// msgCountAtEmit 小的事件永远排前, 与到达顺序无关。
func TestOrderStability(t *testing.T) {
	e := NewEngine(Options{})
	// 后一个回合的事件先到
	e.ReplayEvent(StructuredEvent{
		Type: "research-start", Seq: 10, MsgCountAtEmit: 2,
		Data: map[string]any{"task_id": "late"},
	})
	e.ReplayEvent(StructuredEvent{
		Type: "research-start", Seq: 11, MsgCountAtEmit: 1,
		Data: map[string]any{"task_id": "early"},
	})

	items := e.Timeline()
	ei, li := itemIndex(items, "research-early"), itemIndex(items, "research-late")
	if ei < 0 || li < 0 {
		t.Fatalf("research items missing: early=%d late=%d", ei, li)
	}
	if ei > li {
		t.Fatalf("early sorted at %d after late at %d", ei, li)
	}
}

// 实时流式后导出快照再恢复, 条目 id/kind 与槽位终态一致。
func TestSnapshotLiveEquivalence(t *testing.T) {
	live := NewEngine(Options{})
	live.BeginTurn()
	live.UpsertMessage(Message{ID: "m1", Role: RoleUser, Parts: []Part{
		{Kind: PartText, Text: "Make a deck"},
	}})
	live.IngestEvent("plan-step-started", map[string]any{"step_id": "s1", "title": "Research"})
	live.IngestEvent("visual-plan", map[string]any{"artifact_id": "d1", "slide_number": 1, "title": "Intro"})
	live.IngestEvent("visual-image", map[string]any{"artifact_id": "d1", "slide_number": 1, "image_url": "https://x/1.png"})
	live.IngestEvent("plan-step-ended", map[string]any{"step_id": "s1"})
	live.SettleTurn()

	restored := NewEngine(Options{})
	restored.HydrateSnapshot(live.Snapshot())

	a, b := live.Timeline(), restored.Timeline()
	if len(a) != len(b) {
		t.Fatalf("item count = %d, want %d", len(b), len(a))
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Kind != b[i].Kind {
			t.Fatalf("item %d = (%s, %s), want (%s, %s)", i, b[i].ID, b[i].Kind, a[i].ID, a[i].Kind)
		}
	}
	ls := findItem(t, a, "artifact-d1").Artifact
	rs := findItem(t, b, "artifact-d1").Artifact
	if ls.Status != rs.Status || !reflect.DeepEqual(ls.Deck.Slides, rs.Deck.Slides) {
		t.Fatalf("restored slot = %+v, want %+v", rs, ls)
	}
}

// delta 累积槽位经快照恢复后内容与实时一致, 不因重放二次累加。
func TestSnapshotDeltaSlotEquivalence(t *testing.T) {
	live := NewEngine(Options{})
	live.IngestEvent("analyst-code-delta", map[string]any{"artifact_id": "a1", "delta": "import pandas\n"})
	live.IngestEvent("analyst-code-delta", map[string]any{"artifact_id": "a1", "delta": "df.head()"})

	restored := NewEngine(Options{})
	restored.HydrateSnapshot(live.Snapshot())

	got := findItem(t, restored.Timeline(), "artifact-a1").Artifact.Analyst.Code
	if got != "import pandas\ndf.head()" {
		t.Fatalf("restored code = %q, want %q", got, "import pandas\ndf.head()")
	}
}

// 不同族共用同一 artifact_id: 快照导出与恢复互不覆盖。
func TestSnapshotSlotKeyCollision(t *testing.T) {
	live := NewEngine(Options{})
	live.IngestEvent("visual-plan", map[string]any{"artifact_id": "x1", "slide_number": 1, "title": "Intro"})
	live.IngestEvent("outline", map[string]any{
		"artifact_id": "x1", "title": "Deck",
		"slides": []any{map[string]any{"slide_number": 1, "title": "Intro"}},
	})

	snap := live.Snapshot()
	if got := len(snap.Artifacts); got != 2 {
		t.Fatalf("exported artifacts = %d, want 2", got)
	}

	restored := NewEngine(Options{})
	restored.HydrateSnapshot(snap)
	kinds := make(map[ItemKind]bool)
	for _, it := range restored.Timeline() {
		kinds[it.Kind] = true
	}
	if !kinds[ItemArtifact] || !kinds[ItemSlideOutline] {
		t.Fatalf("restored kinds = %v, want both deck artifact and outline", kinds)
	}
}

// 乱序页号 1,3,2 → 渲染顺序 1,2,3。
func TestSlideMapMergeOrder(t *testing.T) {
	e := NewEngine(Options{})
	for _, n := range []int{1, 3, 2} {
		e.IngestEvent("visual-plan", map[string]any{
			"artifact_id": "d1", "slide_number": n, "title": "S" + strconv.Itoa(n),
		})
	}
	slides := findItem(t, e.Timeline(), "artifact-d1").Artifact.Deck.SortedSlides()
	if len(slides) != 3 {
		t.Fatalf("slides = %d, want 3", len(slides))
	}
	for i, want := range []int{1, 2, 3} {
		if slides[i].SlideNumber != want {
			t.Fatalf("slides[%d].SlideNumber = %d, want %d", i, slides[i].SlideNumber, want)
		}
	}
}

// 缓冲容量 MAX_EVENTS, 超量后只留最新的。
func TestEvictionBound(t *testing.T) {
	e := NewEngine(Options{MaxEvents: 5})
	for i := 0; i < 8; i++ {
		e.IngestEvent("custom-telemetry", map[string]any{"n": i})
	}
	raw := e.RawEvents()
	if len(raw) != 5 {
		t.Fatalf("raw buffer = %d, want 5", len(raw))
	}
	if raw[0].Seq != 4 || raw[4].Seq != 8 {
		t.Fatalf("raw window = [%d..%d], want [4..8]", raw[0].Seq, raw[4].Seq)
	}
	if got := e.EngineStats().Evicted; got != 3 {
		t.Fatalf("evicted = %d, want 3", got)
	}
}

// s1 未结束即开始 s2: 自动补 s1 的隐式结束标记, 排在 s2 开始之前。
func TestImplicitPlanStepEnd(t *testing.T) {
	e := NewEngine(Options{})
	e.IngestEvent("plan-step-started", map[string]any{"step_id": "s1", "title": "Research"})
	e.IngestEvent("plan-step-started", map[string]any{"step_id": "s2", "title": "Write"})

	items := e.Timeline()
	s1 := itemIndex(items, "plan-start-s1")
	end1 := itemIndex(items, "plan-end-s1")
	s2 := itemIndex(items, "plan-start-s2")
	if s1 < 0 || end1 < 0 || s2 < 0 {
		t.Fatalf("markers missing: s1=%d end1=%d s2=%d", s1, end1, s2)
	}
	if !(s1 < end1 && end1 < s2) {
		t.Fatalf("marker order = s1:%d end1:%d s2:%d, want s1 < end1 < s2", s1, end1, s2)
	}

	// 迟到的显式 ended: 隐式标记已补过, 不得出现第二条同 id 条目
	e.IngestEvent("plan-step-ended", map[string]any{"step_id": "s1"})
	count := 0
	for _, it := range e.Timeline() {
		if it.ID == "plan-end-s1" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("plan-end-s1 appears %d times, want 1", count)
	}
}

// 调研任务终态保护: failed 粘滞, 后续 running 不复活。
func TestResearchFailedSticky(t *testing.T) {
	e := NewEngine(Options{})
	e.IngestEvent("research-start", map[string]any{"task_id": "t1", "perspective": "market"})
	e.IngestEvent("research-complete", map[string]any{"task_id": "t1", "status": "failed"})
	e.IngestEvent("research-complete", map[string]any{"task_id": "t1", "status": "running"})

	task := findItem(t, e.Timeline(), "research-t1").Research
	if task.Status != ResearchFailed {
		t.Fatalf("status = %q, want sticky %q", task.Status, ResearchFailed)
	}
}

// 追问建议: 截断到上限, 零有效选项静默丢弃, 排在同回合其他事件之后。
func TestFollowups(t *testing.T) {
	e := NewEngine(Options{})
	e.BeginTurn()
	e.IngestEvent("visual-plan", map[string]any{"artifact_id": "d1", "slide_number": 1})
	ev := e.IngestEvent("coordinator-followups", map[string]any{
		"suggestions": []any{"one", "two", " ", "three", "four"},
	})
	e.IngestEvent("coordinator-followups", map[string]any{"suggestions": []any{"", "  "}})

	items := e.Timeline()
	fu := findItem(t, items, "followups-"+strconv.FormatUint(ev.Seq, 10))
	if got := len(fu.Followups); got != 3 {
		t.Fatalf("followup options = %d, want 3", got)
	}
	if fu.Followups[2] != "three" {
		t.Fatalf("followups[2] = %q, want %q", fu.Followups[2], "three")
	}
	if fi, ai := itemIndex(items, fu.ID), itemIndex(items, "artifact-d1"); fi < ai {
		t.Fatalf("followups at %d before artifact at %d", fi, ai)
	}
	count := 0
	for _, it := range items {
		if it.Kind == ItemFollowups {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("followup items = %d, want 1 (empty payload must drop)", count)
	}
}

// analyst 族: delta 串接累积, complete 置完成, failed 粘滞。
func TestAnalystLifecycle(t *testing.T) {
	e := NewEngine(Options{})
	e.IngestEvent("analyst-start", map[string]any{"artifact_id": "a1", "title": "Revenue"})
	e.IngestEvent("analyst-code-delta", map[string]any{"artifact_id": "a1", "delta": "import pandas\n"})
	e.IngestEvent("analyst-code-delta", map[string]any{"artifact_id": "a1", "delta": "df.head()"})
	e.IngestEvent("analyst-log-delta", map[string]any{"artifact_id": "a1", "delta": "ok"})
	e.IngestEvent("analyst-complete", map[string]any{"artifact_id": "a1"})

	slot := findItem(t, e.Timeline(), "artifact-a1").Artifact
	if slot.Analyst.Code != "import pandas\ndf.head()" {
		t.Fatalf("code = %q, want accumulated deltas", slot.Analyst.Code)
	}
	if slot.Status != StatusCompleted {
		t.Fatalf("status = %v, want %v", slot.Status, StatusCompleted)
	}

	// failed 不可复活
	e.IngestEvent("analyst-complete", map[string]any{"artifact_id": "a2", "status": "failed"})
	e.IngestEvent("analyst-complete", map[string]any{"artifact_id": "a2"})
	if got := findItem(t, e.Timeline(), "artifact-a2").Artifact.Status; got != StatusFailed {
		t.Fatalf("status = %v, want sticky %v", got, StatusFailed)
	}
}

// writer 的 outline 子类在本层抑制, 由 outline 族专责渲染。
func TestWriterOutlineSuppressed(t *testing.T) {
	e := NewEngine(Options{})
	e.IngestEvent("writer-output", map[string]any{
		"artifact_id": "w1", "artifact_type": "outline", "content": "# Outline",
	})
	for _, it := range e.Timeline() {
		if it.Kind == ItemArtifact {
			t.Fatalf("unexpected artifact item %q from suppressed writer outline", it.ID)
		}
	}

	e.IngestEvent("outline", map[string]any{
		"artifact_id": "o1", "title": "Deck",
		"slides": []any{map[string]any{"slide_number": 1, "title": "Intro"}},
	})
	item := findItem(t, e.Timeline(), "artifact-o1")
	if item.Kind != ItemSlideOutline {
		t.Fatalf("kind = %v, want %v", item.Kind, ItemSlideOutline)
	}
}

// 下划线事件名与 data- 前缀统一归一化。
func TestEventTypeNormalization(t *testing.T) {
	e := NewEngine(Options{})
	e.IngestEvent("Visual_Image", map[string]any{"artifact_id": "d1", "slide_number": 1, "image_url": "u"})
	e.IngestEvent("data-visual_pdf", map[string]any{"artifact_id": "d1", "pdf_url": "p"})
	slot := findItem(t, e.Timeline(), "artifact-d1").Artifact
	if slot.Deck.PDFURL != "p" || slot.Deck.Slides[1].ImageURL != "u" {
		t.Fatalf("slot deck = %+v, want both normalized events merged", slot.Deck)
	}
}

// deck 模式推断一经判定粘滞, 含糊 payload 不回退。
func TestDeckModeSticky(t *testing.T) {
	e := NewEngine(Options{})
	e.IngestEvent("visual-plan", map[string]any{
		"artifact_id": "c1", "slide_number": 1, "character_name": "Hero",
	})
	e.IngestEvent("visual-image", map[string]any{
		"artifact_id": "c1", "slide_number": 1, "image_url": "u",
	})
	if got := findItem(t, e.Timeline(), "artifact-c1").Artifact.Kind; got != SlotCharacterSheetDeck {
		t.Fatalf("kind = %v, want sticky %v", got, SlotCharacterSheetDeck)
	}
}

// 消息内嵌事件 part: 分发一次且仅一次, 即使消息被重复 upsert。
func TestEmbeddedEventParts(t *testing.T) {
	e := NewEngine(Options{})
	msg := Message{ID: "m1", Role: RoleAssistant, Parts: []Part{
		{Kind: PartText, Text: "Here is the plan"},
		{Kind: PartEvent, EventType: "data-visual-image",
			Data: map[string]any{"artifact_id": "d1", "slide_number": 1, "image_url": "u"}},
	}}
	e.UpsertMessage(msg)
	e.UpsertMessage(msg)

	slot := findItem(t, e.Timeline(), "artifact-d1").Artifact
	if slot.Version != 1 {
		t.Fatalf("version = %d, want 1 (duplicate upsert must not redispatch)", slot.Version)
	}
}

// Reset 清空全部派生状态与计数器。
func TestReset(t *testing.T) {
	e := NewEngine(Options{})
	e.UpsertMessage(Message{ID: "m1", Role: RoleUser, Parts: []Part{{Kind: PartText, Text: "hi"}}})
	e.IngestEvent("visual-plan", map[string]any{"artifact_id": "d1", "slide_number": 1})
	e.Reset()

	if got := len(e.Timeline()); got != 0 {
		t.Fatalf("timeline after reset = %d items, want 0", got)
	}
	st := e.EngineStats()
	if st.Seq != 0 || st.Events != 0 || st.Slots != 0 || st.Messages != 0 {
		t.Fatalf("stats after reset = %+v, want zeroed", st)
	}
}
