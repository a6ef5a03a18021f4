// Package timeline 将消息流与旁路结构化事件流重建为确定性的渲染时间线。
//
// 两条输入流:
//   - 消息流: 消息由增量追加的 part (正文/推理/附件/内嵌事件) 组成
//   - 旁路事件流: 后端 agent 管道异步发出的结构化事件
//     (计划更新 / 调研任务 / 代码与日志增量 / 幻灯片与 PDF / 写作产物 / 追问建议)
//
// 输出: 一条按 (order key, id) 全序排列的 TimelineItem 序列, 以及
// 三个 "最新值" 投影 (当前计划 / 当前大纲 / 当前主视觉产物)。
package timeline

// ========================================
// 消息与 part
// ========================================

// 消息角色。
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// PartKind part 类型标签。
type PartKind string

const (
	PartText      PartKind = "text"
	PartReasoning PartKind = "reasoning"
	PartFile      PartKind = "file"
	PartEvent     PartKind = "event"
)

// EventPartPrefix 内嵌结构化事件 part 的保留类型前缀。
const EventPartPrefix = "data-"

// Part 消息内容片段 (封闭标签联合: 按 Kind 区分有效字段)。
type Part struct {
	Kind PartKind `json:"kind"`

	// PartText / PartReasoning
	Text string `json:"text,omitempty"`

	// PartFile
	URL       string `json:"url,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
	Filename  string `json:"filename,omitempty"`

	// PartEvent — EventType 不含 EventPartPrefix 前缀; 未识别字段保留在 Data
	EventType string         `json:"eventType,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Message 一条会话消息。parts 在流式期间只增不改, 流结束后整体不可变。
type Message struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Parts   []Part `json:"parts"`
	Content string `json:"content,omitempty"` // 原始全文, 仅作零 run 时的兜底渲染
}

// ========================================
// 旁路结构化事件
// ========================================

// StructuredEvent 旁路流事件。Seq 与 MsgCountAtEmit 在发射时一次性赋值,
// 存储后不得重算 (重算会导致排序随消息数变化而跳动)。
type StructuredEvent struct {
	Type           string         `json:"type"`
	Data           map[string]any `json:"data"`
	Seq            uint64         `json:"seq"`
	MsgCountAtEmit int            `json:"msgCountAtEmit"`
}

// 事件类型常量 (归一化后的连字符形式)。
const (
	EventPlanUpdate           = "plan-update"
	EventPlanStepStarted      = "plan-step-started"
	EventPlanStepEnded        = "plan-step-ended"
	EventResearchStart        = "research-start"
	EventResearchReport       = "research-report"
	EventResearchComplete     = "research-complete"
	EventOutline              = "outline"
	EventVisualPlan           = "visual-plan"
	EventVisualPrompt         = "visual-prompt"
	EventVisualImage          = "visual-image"
	EventVisualPDF            = "visual-pdf"
	EventAnalystStart         = "analyst-start"
	EventAnalystCodeDelta     = "analyst-code-delta"
	EventAnalystLogDelta      = "analyst-log-delta"
	EventAnalystOutput        = "analyst-output"
	EventAnalystComplete      = "analyst-complete"
	EventWriterOutput         = "writer-output"
	EventCoordinatorFollowups = "coordinator-followups"
)

// ========================================
// 产物槽位 (slot)
// ========================================

// SlotKind 产物槽位类型。
type SlotKind string

const (
	SlotSlideDeck          SlotKind = "slide_deck"
	SlotCharacterSheetDeck SlotKind = "character_sheet_deck"
	SlotComicPageDeck      SlotKind = "comic_page_deck"
	SlotDataAnalyst        SlotKind = "data_analyst"
	SlotWriterOutput       SlotKind = "writer_output"
	SlotOutline            SlotKind = "outline"
)

// SlotStatus 产物状态。completed / failed 为终态; failed 不可复活。
type SlotStatus string

const (
	StatusStreaming SlotStatus = "streaming"
	StatusCompleted SlotStatus = "completed"
	StatusFailed    SlotStatus = "failed"
)

// DeckSlide 视觉稿单页。按 SlideNumber 定位, 乱序/重发的 payload 按页号覆盖。
type DeckSlide struct {
	SlideNumber int    `json:"slideNumber"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	// StructuredPrompt 结构化生成提示; JSON 解析失败时保留原始字符串。
	StructuredPrompt any    `json:"structuredPrompt,omitempty"`
	ImageURL         string `json:"imageUrl,omitempty"`
	ThumbnailURL     string `json:"thumbnailUrl,omitempty"`
}

// DeckContent 视觉稿 (slide deck / character sheet / comic page) 内容。
type DeckContent struct {
	Slides map[int]DeckSlide `json:"slides"`
	PDFURL string            `json:"pdfUrl,omitempty"`
}

// AnalystContent 数据分析产物: code/log 按 delta 串接累积,
// input/output 整体替换。
type AnalystContent struct {
	Code   string `json:"code,omitempty"`
	Log    string `json:"log,omitempty"`
	Input  any    `json:"input,omitempty"`
	Output any    `json:"output,omitempty"`
}

// WriterContent 写作产物。
type WriterContent struct {
	Subkind string `json:"subkind,omitempty"`
	Content string `json:"content,omitempty"`
}

// OutlineSlide 大纲中的单页条目。
type OutlineSlide struct {
	SlideNumber int      `json:"slideNumber"`
	Title       string   `json:"title,omitempty"`
	Bullets     []string `json:"bullets,omitempty"`
}

// OutlineContent 幻灯片大纲; 每次 outline 事件整体替换标题与页列表。
type OutlineContent struct {
	Title  string         `json:"title,omitempty"`
	Slides []OutlineSlide `json:"slides,omitempty"`
}

// ArtifactSlot 单个逻辑产物的唯一可变表示。
// 每个产物 id 恰有一个 slot; 更新合并入既有 slot, 绝不复制。
// Version 每次合并递增, 供下游检测陈旧。
// Order 跟随最近一次合并事件的 order key (时间线位置反映最近活动)。
type ArtifactSlot struct {
	ID      string     `json:"id"`
	Kind    SlotKind   `json:"kind"`
	Title   string     `json:"title,omitempty"`
	Status  SlotStatus `json:"status"`
	Version int        `json:"version"`
	Order   float64    `json:"order"`

	Deck    *DeckContent    `json:"deck,omitempty"`
	Analyst *AnalystContent `json:"analyst,omitempty"`
	Writer  *WriterContent  `json:"writer,omitempty"`
	Outline *OutlineContent `json:"outline,omitempty"`

	// Extra 保留未识别的 payload 字段 (快照保真, 不污染类型模型)。
	Extra map[string]any `json:"extra,omitempty"`

	// modeLocked 为 true 时 deck 类型已从 payload 推断确定,
	// 之后的含糊 payload 不再改写 Kind。
	modeLocked bool
}

// ========================================
// 计划 / 调研 / 追问
// ========================================

// PlanStepStatus 计划步骤状态。
const (
	StepPending    = "pending"
	StepInProgress = "in_progress"
	StepCompleted  = "completed"
	StepBlocked    = "blocked"
)

// PlanStep 计划中的单个步骤。
type PlanStep struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	Instruction   string `json:"instruction,omitempty"`
	Status        string `json:"status"`
	Capability    string `json:"capability,omitempty"`
	ResultSummary string `json:"resultSummary,omitempty"`
}

// PlanUpdate 计划快照; 整体替换上一份快照 (latest-wins, 步骤间不做增量合并)。
type PlanUpdate struct {
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	Steps       []PlanStep `json:"steps"`
}

// ResearchStatus 调研任务状态。
const (
	ResearchRunning   = "running"
	ResearchCompleted = "completed"
	ResearchFailed    = "failed"
)

// ResearchSource 调研引用来源。
type ResearchSource struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url,omitempty"`
}

// ResearchTask 单个调研任务; start 创建, report/complete 按 TaskID 原地更新。
type ResearchTask struct {
	TaskID      string           `json:"taskId"`
	Perspective string           `json:"perspective,omitempty"`
	Status      string           `json:"status"`
	Report      string           `json:"report,omitempty"`
	Sources     []ResearchSource `json:"sources,omitempty"`
}

// ========================================
// 时间线条目
// ========================================

// ItemKind 时间线条目类型 (discriminated union 标签)。
type ItemKind string

const (
	ItemMessageRun        ItemKind = "message_run"
	ItemArtifact          ItemKind = "artifact"
	ItemPlanStepMarker    ItemKind = "plan_step_marker"
	ItemPlanStepEndMarker ItemKind = "plan_step_end_marker"
	ItemSlideOutline      ItemKind = "slide_outline"
	ItemResearchReport    ItemKind = "research_report"
	ItemFollowups         ItemKind = "coordinator_followups"
)

// Attachment 用户消息附带的文件引用。
type Attachment struct {
	URL       string `json:"url"`
	MediaType string `json:"mediaType,omitempty"`
	Filename  string `json:"filename,omitempty"`
}

// TimelineItem 统一渲染条目。
// ID 对同一逻辑单元跨重建保持稳定; Order 仅用于排序, 绝不用于身份判定。
type TimelineItem struct {
	ID    string   `json:"id"`
	Kind  ItemKind `json:"kind"`
	Order float64  `json:"order"`

	// ItemMessageRun
	Role        string       `json:"role,omitempty"`
	Text        string       `json:"text,omitempty"`
	Reasoning   bool         `json:"reasoning,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`

	// ItemArtifact / ItemSlideOutline
	Artifact *ArtifactSlot `json:"artifact,omitempty"`

	// ItemPlanStepMarker / ItemPlanStepEndMarker
	StepID    string `json:"stepId,omitempty"`
	StepTitle string `json:"stepTitle,omitempty"`

	// ItemResearchReport
	Research *ResearchTask `json:"research,omitempty"`

	// ItemFollowups
	Followups []string `json:"followups,omitempty"`
}

// ========================================
// 快照恢复
// ========================================

// Snapshot 持久化恢复载荷。事件重放与实时路径共用同一 stamping/分类链路,
// 保证快照重建的时间线与实时流式得到的时间线不可区分。
type Snapshot struct {
	Messages []Message `json:"messages"`
	// Artifacts 按 "族:artifact_id" 复合键导出 (与引擎内部槽位 key 一致)。
	Artifacts map[string]ArtifactSlot `json:"artifacts,omitempty"`
	UIEvents  []StructuredEvent       `json:"ui_events"`
}

// DeckProjection 最新主视觉产物投影 (单 deck 视角: 跨 artifact id 折叠)。
type DeckProjection struct {
	ArtifactID string      `json:"artifactId"`
	Kind       SlotKind    `json:"kind"`
	Title      string      `json:"title,omitempty"`
	Status     SlotStatus  `json:"status"`
	Deck       DeckContent `json:"deck"`
}
